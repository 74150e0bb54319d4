// Package input intercepts keyboard and mouse input aimed at a caught
// foreground window and redirects it to the overlay host.
package input

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"game-overlay/src/desktop"
)

// VKEscape releases interception when pressed.
const VKEscape = 27

// ErrNoForeground is returned by Hook when there is no window to catch.
var ErrNoForeground = errors.New("input: no foreground window")

// EventKind tells key events from mouse events
type EventKind int

const (
	KeyEvent EventKind = iota
	MouseEvent
)

// Event is one intercepted input event
type Event struct {
	Kind    EventKind
	Message uint32 // platform message identifier
	Key     uint16 // virtual key code for key events
	Down    bool
	Move    bool // mouse movement without buttons
	X, Y    int
}

// Handler inspects an event and reports whether it must be swallowed.
type Handler func(Event) bool

// Backend installs the OS hooks. Each install returns the function that undoes it.
type Backend interface {
	InstallKeyboard(h Handler) (remove func(), err error)
	InstallMouse(h Handler) (remove func(), err error)
	// OverrideIME detaches the target's input method so typed text is not
	// composed into the caught window.
	OverrideIME(target desktop.Handle) (restore func(), err error)
}

// Interceptor owns the hook state. Hook is all-or-nothing: either every
// hook and the IME override are in place, or none are.
type Interceptor struct {
	backend   Backend
	desk      desktop.Desktop
	onRelease func()

	mu           sync.Mutex
	intercepting bool
	target       desktop.Handle
	undo         []func()

	events  chan Event
	dropped atomic.Int64
}

// New returns an idle interceptor. onRelease runs from the hook callback
// when Escape is pressed; it must not block.
func New(backend Backend, desk desktop.Desktop, onRelease func()) *Interceptor {
	return &Interceptor{
		backend:   backend,
		desk:      desk,
		onRelease: onRelease,
		events:    make(chan Event, 256),
	}
}

// Events delivers intercepted input. Events are dropped when nobody reads.
func (i *Interceptor) Events() <-chan Event { return i.events }

// Dropped returns how many events were dropped for lack of a reader.
func (i *Interceptor) Dropped() int64 { return i.dropped.Load() }

// Intercepting reports whether hooks are installed.
func (i *Interceptor) Intercepting() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.intercepting
}

// Target returns the caught window, zero when idle.
func (i *Interceptor) Target() desktop.Handle {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.target
}

// Hook catches the foreground window and installs the keyboard hook, the
// mouse hook and the IME override. A failure rolls back what was installed.
func (i *Interceptor) Hook() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.intercepting {
		return nil
	}
	target := i.desk.ForegroundWindow()
	if target == 0 {
		return ErrNoForeground
	}
	log.Printf("Input: catching window %#x %q", target, i.desk.WindowTitle(target))

	var undo []func()
	rollback := func() {
		for j := len(undo) - 1; j >= 0; j-- {
			undo[j]()
		}
	}

	removeKeyboard, err := i.backend.InstallKeyboard(i.handleKey)
	if err != nil {
		return fmt.Errorf("keyboard hook: %w", err)
	}
	undo = append(undo, removeKeyboard)

	removeMouse, err := i.backend.InstallMouse(i.handleMouse)
	if err != nil {
		rollback()
		return fmt.Errorf("mouse hook: %w", err)
	}
	undo = append(undo, removeMouse)

	restoreIME, err := i.backend.OverrideIME(target)
	if err != nil {
		rollback()
		return fmt.Errorf("ime override: %w", err)
	}
	undo = append(undo, restoreIME)

	i.undo = undo
	i.target = target
	i.intercepting = true
	log.Printf("Input: hooked")
	return nil
}

// Unhook removes the hooks and restores the IME association. Idempotent.
func (i *Interceptor) Unhook() {
	i.mu.Lock()
	defer i.mu.Unlock()

	if !i.intercepting {
		return
	}
	for j := len(i.undo) - 1; j >= 0; j-- {
		i.undo[j]()
	}
	i.undo = nil
	i.target = 0
	i.intercepting = false
	log.Printf("Input: unhooked")
}

// handleKey forwards and swallows every key; Escape releases interception.
func (i *Interceptor) handleKey(ev Event) bool {
	if ev.Key == VKEscape {
		if ev.Down && i.onRelease != nil {
			i.onRelease()
		}
		return true
	}
	i.deliver(ev)
	return true
}

// handleMouse forwards every mouse event and swallows all but movement.
func (i *Interceptor) handleMouse(ev Event) bool {
	i.deliver(ev)
	return !ev.Move
}

func (i *Interceptor) deliver(ev Event) {
	select {
	case i.events <- ev:
	default:
		i.dropped.Add(1)
	}
}
