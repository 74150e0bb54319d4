package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"game-overlay/src/config"
	"game-overlay/src/control"
	"game-overlay/src/engine"
	"game-overlay/src/hotkey"
	"game-overlay/src/input"
	"game-overlay/src/logutil"
	"game-overlay/src/notification"
	"game-overlay/src/runtimeinit"
	"game-overlay/src/tray"
)

const (
	appTitle     = "Game Overlay"
	stopDeadline = 5 * time.Second
)

var errAlreadyRunning = errors.New("game overlay is already running")

type mainOptions struct {
	settingsPath string
	hidden       bool
	noRestore    bool
	noTray       bool
}

func main() {
	if err := runWithArgs(normalizeLegacyArgs(os.Args)); err != nil {
		if !errors.Is(err, errAlreadyRunning) {
			notification.ShowBlockingError(appTitle, err.Error())
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runWithArgs(args []string) error {
	if len(args) == 0 {
		args = []string{"game-overlay"}
	}
	opts := &mainOptions{}
	cmd := newRootCmd(opts)
	cmd.SetArgs(args[1:])
	return cmd.Execute()
}

func newRootCmd(opts *mainOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "game-overlay",
		Short:         "Mirror application windows into always-on-top overlays",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResident(cmd.Context(), *opts)
		},
	}

	cmd.Flags().StringVar(&opts.settingsPath, "settings", "", "Path to the settings file (highest precedence)")
	cmd.Flags().BoolVar(&opts.hidden, "hidden", false, "Start with overlays hidden")
	cmd.Flags().BoolVar(&opts.noRestore, "no-restore", false, "Do not reattach remembered apps and web pages")
	cmd.Flags().BoolVar(&opts.noTray, "no-tray", false, "Run without a notification area icon")

	return cmd
}

// normalizeLegacyArgs maps single-dash long flags to their GNU form.
func normalizeLegacyArgs(args []string) []string {
	if len(args) == 0 {
		return args
	}
	normalized := make([]string, len(args))
	copy(normalized, args)

	for i := 1; i < len(normalized); i++ {
		for _, name := range []string{"settings", "hidden", "no-restore", "no-tray"} {
			arg := normalized[i]
			switch {
			case arg == "-"+name:
				normalized[i] = "--" + name
			case strings.HasPrefix(arg, "-"+name+"="):
				normalized[i] = "-" + arg
			}
		}
	}
	return normalized
}

type residentDetector interface {
	DetectResident(ctx context.Context) (int, bool)
}

// ensureSingleInstance fails when another resident answers in the port
// range.
func ensureSingleInstance(ctx context.Context, d residentDetector) error {
	if port, ok := d.DetectResident(ctx); ok {
		fmt.Printf("one is already running on port %d\n", port)
		return fmt.Errorf("%w (port %d)", errAlreadyRunning, port)
	}
	return nil
}

// Controller is what hotkeys drive.
type Controller interface {
	Show() error
	Hide() error
	CatchForeground() error
	TakeInput() error
	ReleaseInput() error
	Intercepting() bool
}

func hotkeyBindings(keys config.Hotkeys, eng Controller, quit func()) []hotkey.Binding {
	run := func(name string, fn func() error) func() {
		return func() {
			if err := fn(); err != nil {
				log.Printf("Hotkey %s: %v", name, err)
			}
		}
	}
	toggleInput := func() error {
		if eng.Intercepting() {
			return eng.ReleaseInput()
		}
		return eng.TakeInput()
	}
	return []hotkey.Binding{
		{Combo: keys.Catch, Action: run("catch", eng.CatchForeground)},
		{Combo: keys.Show, Action: run("show", eng.Show)},
		{Combo: keys.Hide, Action: run("hide", eng.Hide)},
		{Combo: keys.Input, Action: run("input", toggleInput)},
		{Combo: keys.Quit, Action: quit},
	}
}

func runResident(parent context.Context, opts mainOptions) error {
	if parent == nil {
		parent = context.Background()
	}
	prepareProcess()

	rt, err := runtimeinit.Bootstrap(runtimeinit.Options{
		LoadOptions:  config.LoadOptions{SettingsPathOverride: opts.settingsPath},
		SetupLogging: logutil.Setup,
	})
	if err != nil {
		return err
	}
	cfg := rt.Config

	if err := ensureSingleInstance(parent, control.NewClient(cfg.PortStart, cfg.PortEnd)); err != nil {
		return err
	}

	backend, err := input.NewBackend()
	if err != nil {
		log.Printf("Input interception unavailable: %v", err)
		backend = nil
	}

	eng := engine.New(engine.Options{
		Desktop:      rt.Desktop,
		Settings:     rt.Settings,
		Method:       cfg.CaptureMethod,
		InputBackend: backend,
		ShowOnStart:  cfg.ShowOnStart && !opts.hidden,
		Restore:      !opts.noRestore,
	})

	var quitOnce sync.Once
	quitCh := make(chan struct{})
	quit := func() { quitOnce.Do(func() { close(quitCh) }) }

	sigCtx, stopSignals := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	if err := eng.Start(context.Background()); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}

	srv := control.NewServer(cfg.PortStart, &control.Commands{Engine: eng, Quit: quit})
	if err := srv.Start(sigCtx); err != nil {
		stopEngine(eng)
		return fmt.Errorf("%w: control port %d busy", errAlreadyRunning, cfg.PortStart)
	}
	defer srv.Close()

	stopHotkeys, err := hotkey.Listen(hotkeyBindings(cfg.Hotkeys, eng, quit))
	if err != nil {
		log.Printf("Hotkeys disabled: %v", err)
		stopHotkeys = func() {}
	}
	defer stopHotkeys()

	if !opts.noTray {
		tr, err := tray.New(tray.Config{
			Title:   appTitle,
			Tooltip: fmt.Sprintf("%s - %s catches the foreground app", appTitle, cfg.Hotkeys.Catch),
			Engine:  eng,
			OnExit:  quit,
		})
		if err != nil {
			log.Printf("Tray disabled: %v", err)
		} else {
			go tr.Run()
			defer tr.Stop()
		}
	}

	log.Printf("Resident ready on port %d", cfg.PortStart)
	select {
	case <-sigCtx.Done():
		log.Printf("Signal received, shutting down")
	case <-quitCh:
		log.Printf("Quit requested, shutting down")
	case <-eng.Done():
		log.Printf("Engine stopped on its own")
	}
	return stopEngine(eng)
}

func stopEngine(eng *engine.Engine) error {
	ctx, cancel := context.WithTimeout(context.Background(), stopDeadline)
	defer cancel()
	err := eng.Stop(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		log.Printf("Engine did not release every overlay within %s", stopDeadline)
		return nil
	}
	return err
}
