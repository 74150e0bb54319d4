//go:build !windows

package input

import (
	"log"
	"sync"

	"game-overlay/src/desktop"
	"game-overlay/src/hookevents"

	gohook "github.com/robotn/gohook"
)

const eventBuffer = 256

// observerBackend forwards input from the shared hook event stream. It
// cannot swallow events; the handlers' verdicts are ignored.
type observerBackend struct {
	mu       sync.Mutex
	keyboard Handler
	mouse    Handler
	cancel   func()
}

// NewBackend returns the gohook observer backend.
func NewBackend() (Backend, error) {
	return &observerBackend{}, nil
}

func (b *observerBackend) start() error {
	if b.cancel != nil {
		return nil
	}
	evChan, cancel, err := hookevents.Subscribe(eventBuffer)
	if err != nil {
		return err
	}
	b.cancel = cancel
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("PANIC in input goroutine: %v", r)
			}
		}()
		for ev := range evChan {
			b.dispatch(ev)
		}
	}()
	return nil
}

func (b *observerBackend) stopIfIdle() {
	if b.cancel != nil && b.keyboard == nil && b.mouse == nil {
		b.cancel()
		b.cancel = nil
	}
}

func (b *observerBackend) dispatch(ev gohook.Event) {
	b.mu.Lock()
	kb, ms := b.keyboard, b.mouse
	b.mu.Unlock()

	switch ev.Kind {
	case gohook.KeyDown, gohook.KeyUp:
		if kb != nil {
			kb(Event{Kind: KeyEvent, Message: uint32(ev.Kind), Key: ev.Rawcode, Down: ev.Kind == gohook.KeyDown})
		}
	case gohook.MouseDown, gohook.MouseUp, gohook.MouseMove, gohook.MouseDrag, gohook.MouseWheel:
		if ms != nil {
			ms(Event{
				Kind:    MouseEvent,
				Message: uint32(ev.Kind),
				Move:    ev.Kind == gohook.MouseMove,
				Down:    ev.Kind == gohook.MouseDown,
				X:       int(ev.X),
				Y:       int(ev.Y),
			})
		}
	}
}

func (b *observerBackend) InstallKeyboard(h Handler) (func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.start(); err != nil {
		return nil, err
	}
	b.keyboard = h
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.keyboard = nil
		b.stopIfIdle()
	}, nil
}

func (b *observerBackend) InstallMouse(h Handler) (func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.start(); err != nil {
		return nil, err
	}
	b.mouse = h
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.mouse = nil
		b.stopIfIdle()
	}, nil
}

// OverrideIME has nothing to detach outside Windows.
func (b *observerBackend) OverrideIME(desktop.Handle) (func(), error) {
	return func() {}, nil
}
