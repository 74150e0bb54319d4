package main

import (
	"context"
	"errors"
	"testing"

	"game-overlay/src/config"
)

func TestNormalizeLegacyArgs(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		out  []string
	}{
		{
			name: "Normalizes long single dash flags",
			in:   []string{"game-overlay", "-hidden", "-settings", "/tmp/s.cfg"},
			out:  []string{"game-overlay", "--hidden", "--settings", "/tmp/s.cfg"},
		},
		{
			name: "Normalizes equals form",
			in:   []string{"game-overlay", "-no-restore=true", "-settings=/tmp/s.cfg"},
			out:  []string{"game-overlay", "--no-restore=true", "--settings=/tmp/s.cfg"},
		},
		{
			name: "Leaves other flags unchanged",
			in:   []string{"game-overlay", "--no-tray", "-x"},
			out:  []string{"game-overlay", "--no-tray", "-x"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := normalizeLegacyArgs(tt.in)
			if len(got) != len(tt.out) {
				t.Fatalf("Expected len=%d, got %d", len(tt.out), len(got))
			}
			for i := range got {
				if got[i] != tt.out[i] {
					t.Fatalf("Expected arg[%d]=%q, got %q", i, tt.out[i], got[i])
				}
			}
		})
	}
}

func TestNewRootCmdParsesFlags(t *testing.T) {
	opts := &mainOptions{}
	cmd := newRootCmd(opts)
	if err := cmd.ParseFlags([]string{"--hidden", "--settings", "/tmp/s.cfg", "--no-tray"}); err != nil {
		t.Fatalf("ParseFlags failed: %v", err)
	}
	if !opts.hidden || !opts.noTray || opts.noRestore {
		t.Fatalf("unexpected options %+v", *opts)
	}
	if opts.settingsPath != "/tmp/s.cfg" {
		t.Fatalf("Expected settingsPath=/tmp/s.cfg, got %q", opts.settingsPath)
	}
}

func TestRootCmdRejectsArguments(t *testing.T) {
	if err := runWithArgs([]string{"game-overlay", "extra"}); err == nil {
		t.Fatal("expected positional arguments to be rejected")
	}
}

type fakeDetector struct {
	port int
	ok   bool
}

func (f fakeDetector) DetectResident(context.Context) (int, bool) { return f.port, f.ok }

func TestEnsureSingleInstance(t *testing.T) {
	if err := ensureSingleInstance(context.Background(), fakeDetector{}); err != nil {
		t.Fatalf("expected no error without resident, got %v", err)
	}
	err := ensureSingleInstance(context.Background(), fakeDetector{port: 49600, ok: true})
	if !errors.Is(err, errAlreadyRunning) {
		t.Fatalf("expected errAlreadyRunning, got %v", err)
	}
}

type fakeController struct {
	calls        []string
	intercepting bool
	err          error
}

func (f *fakeController) record(name string) error {
	f.calls = append(f.calls, name)
	return f.err
}

func (f *fakeController) Show() error            { return f.record("show") }
func (f *fakeController) Hide() error            { return f.record("hide") }
func (f *fakeController) CatchForeground() error { return f.record("catch") }
func (f *fakeController) Intercepting() bool     { return f.intercepting }

func (f *fakeController) TakeInput() error {
	f.intercepting = true
	return f.record("take")
}

func (f *fakeController) ReleaseInput() error {
	f.intercepting = false
	return f.record("release")
}

func TestHotkeyBindings(t *testing.T) {
	keys := config.Hotkeys{Catch: "Ctrl+1", Show: "Ctrl+2", Hide: "Ctrl+3", Input: "Ctrl+4", Quit: "Ctrl+5"}
	fc := &fakeController{}
	quit := 0
	bindings := hotkeyBindings(keys, fc, func() { quit++ })
	if len(bindings) != 5 {
		t.Fatalf("expected 5 bindings, got %d", len(bindings))
	}

	byCombo := map[string]func(){}
	for _, b := range bindings {
		byCombo[b.Combo] = b.Action
	}
	for _, combo := range []string{"Ctrl+1", "Ctrl+2", "Ctrl+3", "Ctrl+4", "Ctrl+4", "Ctrl+5"} {
		byCombo[combo]()
	}

	want := []string{"catch", "show", "hide", "take", "release"}
	if len(fc.calls) != len(want) {
		t.Fatalf("calls = %v, want %v", fc.calls, want)
	}
	for i := range want {
		if fc.calls[i] != want[i] {
			t.Fatalf("calls = %v, want %v", fc.calls, want)
		}
	}
	if quit != 1 {
		t.Fatalf("quit fired %d times", quit)
	}

	// errors are logged, not propagated
	fc.err = errors.New("engine: not running")
	byCombo["Ctrl+2"]()
}
