// Package settings loads and saves the overlay settings file.
package settings

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	CurrentVersion        = 1
	DefaultTransparency   = 0xD0
	DefaultRedrawTimeout  = 300 // milliseconds
	defaultSettingsFormat = "settings.cfg"
)

// WebPage is a persisted web-content overlay
type WebPage struct {
	URL    string `yaml:"url"`
	X      int    `yaml:"x"`
	Y      int    `yaml:"y"`
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`
}

// Settings is the document stored in the settings file
type Settings struct {
	Version       int       `yaml:"version"`
	Apps          []string  `yaml:"apps"`
	WebPages      []WebPage `yaml:"web_pages"`
	Transparency  int       `yaml:"transparency"`
	UseColorKey   bool      `yaml:"use_color_key"`
	RedrawTimeout int       `yaml:"redraw_timeout"`
}

// Defaults returns the settings used when no file exists
func Defaults() Settings {
	return Settings{
		Version:       CurrentVersion,
		Transparency:  DefaultTransparency,
		RedrawTimeout: DefaultRedrawTimeout,
	}
}

// normalize clamps transparency and defaults a non-positive redraw timeout
func (s *Settings) normalize() {
	if s.Version == 0 {
		s.Version = CurrentVersion
	}
	if s.Transparency < 0 {
		s.Transparency = 0
	}
	if s.Transparency > 255 {
		s.Transparency = 255
	}
	if s.RedrawTimeout <= 0 {
		s.RedrawTimeout = DefaultRedrawTimeout
	}
}

// Store guards a Settings value and the file it came from
type Store struct {
	mu   sync.Mutex
	path string
	cur  Settings
}

// DefaultPath returns settings.cfg next to the executable
func DefaultPath() string {
	exe, err := os.Executable()
	if err != nil {
		return defaultSettingsFormat
	}
	return filepath.Join(filepath.Dir(exe), defaultSettingsFormat)
}

// NewStore returns a store holding defaults, bound to path
func NewStore(path string) *Store {
	return &Store{path: path, cur: Defaults()}
}

// Load reads path. A missing file yields defaults.
func Load(path string) (*Store, error) {
	st := NewStore(path)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		log.Printf("Settings: %s not found, using defaults", path)
		return st, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	s := Defaults()
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse settings %s: %w", path, err)
	}
	s.normalize()
	st.cur = s
	log.Printf("Settings: loaded %s (%d apps, %d web pages)", path, len(s.Apps), len(s.WebPages))
	return st, nil
}

// Path returns the file the store saves to
func (st *Store) Path() string { return st.path }

// Snapshot returns a copy of the current settings
func (st *Store) Snapshot() Settings {
	st.mu.Lock()
	defer st.mu.Unlock()
	s := st.cur
	s.Apps = append([]string(nil), st.cur.Apps...)
	s.WebPages = append([]WebPage(nil), st.cur.WebPages...)
	return s
}

// Update applies fn to the settings under the store lock
func (st *Store) Update(fn func(s *Settings)) {
	st.mu.Lock()
	defer st.mu.Unlock()
	fn(&st.cur)
	st.cur.normalize()
}

// AddApp records a process name, ignoring case-insensitive duplicates.
// It reports whether the name was new.
func (st *Store) AddApp(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		return false
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	for _, app := range st.cur.Apps {
		if strings.EqualFold(app, name) {
			return false
		}
	}
	st.cur.Apps = append(st.cur.Apps, name)
	return true
}

// SetWebPages replaces the persisted web-content overlays
func (st *Store) SetWebPages(pages []WebPage) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.cur.WebPages = append([]WebPage(nil), pages...)
}

// Alpha returns the global transparency as a byte
func (st *Store) Alpha() uint8 {
	st.mu.Lock()
	defer st.mu.Unlock()
	return uint8(st.cur.Transparency)
}

// UseColorKey reports whether overlays use a color key instead of alpha
func (st *Store) UseColorKey() bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.cur.UseColorKey
}

// RedrawInterval is the recapture period
func (st *Store) RedrawInterval() time.Duration {
	st.mu.Lock()
	defer st.mu.Unlock()
	return time.Duration(st.cur.RedrawTimeout) * time.Millisecond
}

// Save writes the settings atomically (temp file + rename)
func (st *Store) Save() error {
	st.mu.Lock()
	s := st.cur
	path := st.path
	st.mu.Unlock()

	data, err := yaml.Marshal(&s)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".settings-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp settings: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close settings: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace settings: %w", err)
	}
	log.Printf("Settings: saved %s", path)
	return nil
}
