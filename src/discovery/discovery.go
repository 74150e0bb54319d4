// Package discovery finds candidate source windows by process name.
package discovery

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"strings"

	"game-overlay/src/desktop"

	"github.com/shirou/gopsutil/v4/process"
)

// Process is a running process seen by the finder
type Process struct {
	PID  int32
	Name string
}

// ProcessLister enumerates running processes
type ProcessLister interface {
	Processes(ctx context.Context) ([]Process, error)
	Name(ctx context.Context, pid int32) (string, error)
}

// Finder maps process names to their visible top-level windows
type Finder struct {
	desk  desktop.Desktop
	procs ProcessLister
}

// NewFinder returns a finder backed by gopsutil
func NewFinder(desk desktop.Desktop) *Finder {
	return &Finder{desk: desk, procs: systemProcesses{}}
}

// NewFinderWith returns a finder over a custom process source
func NewFinderWith(desk desktop.Desktop, procs ProcessLister) *Finder {
	return &Finder{desk: desk, procs: procs}
}

// WindowsForProcess returns the visible, unowned top-level windows of every
// process whose executable name contains namePart.
func (f *Finder) WindowsForProcess(ctx context.Context, namePart string) ([]desktop.Handle, error) {
	namePart = strings.ToLower(strings.TrimSpace(namePart))
	if namePart == "" {
		return nil, fmt.Errorf("empty process name")
	}
	procs, err := f.procs.Processes(ctx)
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}

	var out []desktop.Handle
	for _, p := range procs {
		if !strings.Contains(strings.ToLower(p.Name), namePart) {
			continue
		}
		windows := f.desk.TopLevelWindows(uint32(p.PID))
		log.Printf("Discovery: %s (pid %d) has %d windows", p.Name, p.PID, len(windows))
		out = append(out, windows...)
	}
	return out, nil
}

// ForegroundWindows returns the foreground window's pid and that process's
// top-level windows.
func (f *Finder) ForegroundWindows() (uint32, []desktop.Handle) {
	top := f.desk.ForegroundWindow()
	if top == 0 {
		return 0, nil
	}
	pid := f.desk.WindowProcessID(top)
	if pid == 0 {
		return 0, nil
	}
	return pid, f.desk.TopLevelWindows(pid)
}

// ProcessName returns the executable file name of pid.
func (f *Finder) ProcessName(ctx context.Context, pid uint32) (string, error) {
	name, err := f.procs.Name(ctx, int32(pid))
	if err != nil {
		return "", err
	}
	return filepath.Base(name), nil
}

type systemProcesses struct{}

func (systemProcesses) Processes(ctx context.Context) ([]Process, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Process, 0, len(procs))
	for _, p := range procs {
		name, err := p.NameWithContext(ctx)
		if err != nil {
			// processes we may not inspect are skipped
			continue
		}
		out = append(out, Process{PID: p.Pid, Name: name})
	}
	return out, nil
}

func (systemProcesses) Name(ctx context.Context, pid int32) (string, error) {
	p, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		return "", fmt.Errorf("open process %d: %w", pid, err)
	}
	name, err := p.NameWithContext(ctx)
	if err != nil {
		return "", fmt.Errorf("name of process %d: %w", pid, err)
	}
	return name, nil
}
