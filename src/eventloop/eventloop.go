package eventloop

import (
	"context"
	"log"
	"runtime"
	"time"

	"game-overlay/src/desktop"
	"game-overlay/src/messages"
	"game-overlay/src/registry"
)

const (
	defaultRedraw  = 300 * time.Millisecond
	defaultPump    = 10 * time.Millisecond
	shutdownWindow = 2 * time.Second
)

// Options configure the primary loop.
type Options struct {
	Registry *registry.Registry
	Desktop  desktop.Desktop
	Inbox    <-chan messages.Envelope
	// RedrawInterval is the recapture period (defaults to 300ms).
	RedrawInterval time.Duration
	// PumpInterval is how often OS window messages are dispatched.
	PumpInterval time.Duration
	// Startup runs on the loop thread before the first message.
	Startup func()
}

// Loop is the primary execution context. Render windows are created,
// painted and destroyed only on its goroutine, which stays on one OS thread.
type Loop struct {
	reg     *registry.Registry
	desk    desktop.Desktop
	inbox   <-chan messages.Envelope
	redraw  time.Duration
	pump    time.Duration
	startup func()
}

// New creates a loop. Nothing runs until Run.
func New(opts Options) *Loop {
	l := &Loop{
		reg:     opts.Registry,
		desk:    opts.Desktop,
		inbox:   opts.Inbox,
		redraw:  opts.RedrawInterval,
		pump:    opts.PumpInterval,
		startup: opts.Startup,
	}
	if l.redraw <= 0 {
		l.redraw = defaultRedraw
	}
	if l.pump <= 0 {
		l.pump = defaultPump
	}
	return l
}

// RedrawInterval returns the recapture period of this loop.
func (l *Loop) RedrawInterval() time.Duration { return l.redraw }

// Run processes overlays messages, recapture ticks and OS messages until
// the registry has quit and released every entry. If ctx is cancelled
// first, the registry is quit on this thread before returning ctx.Err().
func (l *Loop) Run(ctx context.Context) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if l.startup != nil {
		l.safely("startup", l.startup)
	}

	redraw := time.NewTicker(l.redraw)
	defer redraw.Stop()
	pump := time.NewTicker(l.pump)
	defer pump.Stop()

	log.Printf("EventLoop: running (redraw every %v)", l.redraw)
	for {
		select {
		case <-ctx.Done():
			l.shutdown()
			return ctx.Err()
		case <-l.reg.Done():
			log.Printf("EventLoop: registry released, exiting")
			return nil
		case env, ok := <-l.inbox:
			if !ok {
				log.Printf("EventLoop: inbox closed")
				return nil
			}
			l.handle(env)
		case <-redraw.C:
			l.safely("recapture", l.reg.RecaptureTick)
		case <-pump.C:
			l.desk.Pump()
		}
	}
}

func (l *Loop) handle(env messages.Envelope) {
	l.safely(env.Message.Type(), func() { l.reg.Handle(env.Message) })
}

// shutdown quits the registry and keeps serving its destroy notifications
// for a bounded time so windows are destroyed on their owning thread.
func (l *Loop) shutdown() {
	l.safely("quit", l.reg.Quit)
	deadline := time.NewTimer(shutdownWindow)
	defer deadline.Stop()
	for {
		select {
		case <-l.reg.Done():
			return
		case env, ok := <-l.inbox:
			if !ok {
				return
			}
			l.handle(env)
		case <-deadline.C:
			log.Printf("EventLoop: %d overlays still alive at shutdown", l.reg.Count())
			return
		default:
			l.desk.Pump()
			time.Sleep(time.Millisecond)
		}
	}
}

func (l *Loop) safely(what string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("PANIC in event loop (%s): %v", what, r)
		}
	}()
	fn()
}
