package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"game-overlay/src/desktop"
	"game-overlay/src/settings"

	"github.com/joho/godotenv"
)

const (
	AltConfigEnvVar    = "GAME_OVERLAY"
	SettingsFileEnvVar = "SETTINGS_FILE"

	DefaultPortStart = 49600
	DefaultPortEnd   = 49650
	minPort          = 1024
	maxPort          = 65535

	DefaultHotkeyCatch = "Ctrl+Shift+P"
	DefaultHotkeyShow  = "Ctrl+Shift+S"
	DefaultHotkeyHide  = "Ctrl+Shift+H"
	DefaultHotkeyInput = "Ctrl+Shift+I"
	DefaultHotkeyQuit  = "Ctrl+Shift+Q"
)

type LoadOptions struct {
	SettingsPathOverride string
}

// Hotkeys are the global key combinations bound to engine commands
type Hotkeys struct {
	Catch string
	Show  string
	Hide  string
	Input string
	Quit  string
}

type Config struct {
	SettingsPath      string
	EnableFileLogging bool
	PortStart         int
	PortEnd           int
	Hotkeys           Hotkeys
	CaptureMethod     desktop.CaptureMethod
	ShowOnStart       bool
}

func Load() (*Config, error) {
	return LoadWithOptions(LoadOptions{})
}

func LoadWithOptions(opts LoadOptions) (*Config, error) {
	// Load configuration from sources in priority order:
	// 1) .env in the application (executable) directory
	// 2) If not found, use GAME_OVERLAY env var as a path to a config file
	envPath := resolveEnvPath()
	dotenvValues := readDotenvValues(envPath)
	if envPath != "" {
		_ = godotenv.Load(envPath)
	}

	start, end := resolvePorts(os.Getenv("CONTROL_PORT_START"), os.Getenv("CONTROL_PORT_END"))

	cfg := &Config{
		SettingsPath:      resolveSettingsPath(opts, dotenvValues),
		EnableFileLogging: strings.ToLower(os.Getenv("ENABLE_FILE_LOGGING")) == "true",
		PortStart:         start,
		PortEnd:           end,
		Hotkeys: Hotkeys{
			Catch: getEnvWithDefault("HOTKEY_CATCH", DefaultHotkeyCatch),
			Show:  getEnvWithDefault("HOTKEY_SHOW", DefaultHotkeyShow),
			Hide:  getEnvWithDefault("HOTKEY_HIDE", DefaultHotkeyHide),
			Input: getEnvWithDefault("HOTKEY_INPUT", DefaultHotkeyInput),
			Quit:  getEnvWithDefault("HOTKEY_QUIT", DefaultHotkeyQuit),
		},
		CaptureMethod: desktop.ParseCaptureMethod(os.Getenv("CAPTURE_METHOD")),
		ShowOnStart:   resolveBool(os.Getenv("SHOW_ON_START"), true),
	}

	return cfg, nil
}

func resolveEnvPath() string {
	execPath, err := os.Executable()
	if err != nil {
		return ""
	}

	execDir := filepath.Dir(execPath)
	exeEnv := filepath.Join(execDir, ".env")
	if _, err := os.Stat(exeEnv); err == nil {
		return exeEnv
	}

	if alt := os.Getenv(AltConfigEnvVar); alt != "" {
		if _, err := os.Stat(alt); err == nil {
			return alt
		}
	}

	return ""
}

func readDotenvValues(envPath string) map[string]string {
	if envPath == "" {
		return map[string]string{}
	}

	values, err := godotenv.Read(envPath)
	if err != nil {
		return map[string]string{}
	}

	return values
}

// resolveSettingsPath applies, lowest first: default next to the
// executable, environment, .env file, explicit override.
func resolveSettingsPath(opts LoadOptions, dotenvValues map[string]string) string {
	path := settings.DefaultPath()

	if envPath := strings.TrimSpace(os.Getenv(SettingsFileEnvVar)); envPath != "" {
		path = envPath
	}

	if dotenvPath := strings.TrimSpace(dotenvValues[SettingsFileEnvVar]); dotenvPath != "" {
		path = dotenvPath
	}

	if overridePath := strings.TrimSpace(opts.SettingsPathOverride); overridePath != "" {
		path = overridePath
	}

	return path
}

func resolvePorts(startValue, endValue string) (int, int) {
	start := parsePort(startValue, DefaultPortStart)
	end := parsePort(endValue, DefaultPortEnd)
	if end < start {
		end = start
	}
	return start, end
}

func parsePort(value string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return def
	}
	if n < minPort {
		return minPort
	}
	if n > maxPort {
		return maxPort
	}
	return n
}

func resolveBool(value string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "1", "yes", "on":
		return true
	case "false", "0", "no", "off":
		return false
	default:
		return def
	}
}

func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
