package runtimeinit

import (
	"fmt"
	"log"

	"game-overlay/src/config"
	"game-overlay/src/desktop"
	"game-overlay/src/settings"
)

type Options struct {
	LoadOptions  config.LoadOptions
	SetupLogging func(bool)

	// NewDesktop opens the platform desktop. Defaults to desktop.New.
	NewDesktop func() (desktop.Desktop, error)
}

// Runtime is everything the resident needs before the engine starts.
type Runtime struct {
	Config   *config.Config
	Settings *settings.Store
	Desktop  desktop.Desktop
}

// Bootstrap loads configuration, configures logging, reads the persisted
// settings and opens the desktop, in that order.
func Bootstrap(opts Options) (*Runtime, error) {
	cfg, err := config.LoadWithOptions(opts.LoadOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if opts.SetupLogging != nil {
		opts.SetupLogging(cfg.EnableFileLogging)
	}

	store, err := settings.Load(cfg.SettingsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}

	newDesktop := opts.NewDesktop
	if newDesktop == nil {
		newDesktop = desktop.New
	}
	desk, err := newDesktop()
	if err != nil {
		return nil, fmt.Errorf("failed to open desktop: %w", err)
	}

	log.Printf("Game overlay initialized (settings %s, capture %s)", cfg.SettingsPath, cfg.CaptureMethod)
	return &Runtime{Config: cfg, Settings: store, Desktop: desk}, nil
}
