// Package engine wires the overlay registry, the primary event loop and the
// web-content worker together and exposes the control surface used by the
// resident program, its tray and its control server.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"game-overlay/src/desktop"
	"game-overlay/src/discovery"
	"game-overlay/src/eventloop"
	"game-overlay/src/input"
	"game-overlay/src/messages"
	"game-overlay/src/overlay"
	"game-overlay/src/registry"
	"game-overlay/src/router"
	"game-overlay/src/settings"
	"game-overlay/src/webview"

	"golang.org/x/sync/errgroup"
)

var (
	ErrNotRunning     = errors.New("engine: not running")
	ErrAlreadyStarted = errors.New("engine: already started")
	ErrUnknownOverlay = errors.New("engine: unknown overlay")
	ErrNoInput        = errors.New("engine: input interception unavailable")
)

const defaultMailboxSize = 256

// Status is the engine lifecycle state
type Status int32

const (
	StatusStopped Status = iota
	StatusStarting
	StatusRunning
	StatusStopping
	StatusCrashed
)

func (s Status) String() string {
	switch s {
	case StatusStopped:
		return "stopped"
	case StatusStarting:
		return "starting"
	case StatusRunning:
		return "running"
	case StatusStopping:
		return "stopping"
	case StatusCrashed:
		return "crashed"
	default:
		return "unknown"
	}
}

// Options configure an Engine. Desktop is required; the rest default.
type Options struct {
	Desktop  desktop.Desktop
	Settings *settings.Store
	Finder   registry.WindowFinder
	Method   desktop.CaptureMethod

	// InputBackend enables TakeInput. Nil disables interception.
	InputBackend input.Backend

	ShowOnStart bool
	Restore     bool // attach remembered apps and web pages when the loop starts

	Renderer     webview.Renderer
	MailboxSize  int
	PumpInterval time.Duration
}

// Info describes one overlay for listings.
type Info struct {
	ID       int
	Kind     string
	State    string
	Geometry desktop.Rect
	Source   desktop.Handle
	URL      string
}

// Engine runs the overlay host. It can be started once.
type Engine struct {
	opts  Options
	bus   *router.Router
	reg   *registry.Registry
	input *input.Interceptor

	status  atomic.Int32
	started atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
	err    error
	done   chan struct{}
}

// New builds an engine around opts.Desktop. Nothing runs until Start.
func New(opts Options) *Engine {
	if opts.Settings == nil {
		opts.Settings = settings.NewStore("")
	}
	if opts.Finder == nil {
		opts.Finder = discovery.NewFinder(opts.Desktop)
	}
	if opts.MailboxSize <= 0 {
		opts.MailboxSize = defaultMailboxSize
	}

	e := &Engine{opts: opts, bus: router.NewRouter(), done: make(chan struct{})}
	regOpts := registry.Options{
		Desktop:     opts.Desktop,
		Bus:         e.bus,
		Settings:    opts.Settings,
		Finder:      opts.Finder,
		Method:      opts.Method,
		ShowOnStart: opts.ShowOnStart,
	}
	if opts.InputBackend != nil {
		e.input = input.New(opts.InputBackend, opts.Desktop, func() {
			if err := e.ReleaseInput(); err != nil {
				log.Printf("Engine: release input: %v", err)
			}
		})
		regOpts.Input = e.input
	}
	e.reg = registry.New(regOpts)
	return e
}

// Start launches the primary loop and the web-content worker.
func (e *Engine) Start(ctx context.Context) error {
	if e.started.Swap(true) {
		return ErrAlreadyStarted
	}
	e.status.Store(int32(StatusStarting))

	inbox, err := e.bus.Register(messages.ContextOverlays, e.opts.MailboxSize)
	if err != nil {
		e.status.Store(int32(StatusCrashed))
		return fmt.Errorf("register overlays context: %w", err)
	}
	workerInbox, err := e.bus.Register(messages.ContextWebView, e.opts.MailboxSize)
	if err != nil {
		e.status.Store(int32(StatusCrashed))
		return fmt.Errorf("register webview context: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	e.mu.Lock()
	e.cancel = cancel
	e.mu.Unlock()

	loop := eventloop.New(eventloop.Options{
		Registry:       e.reg,
		Desktop:        e.opts.Desktop,
		Inbox:          inbox,
		RedrawInterval: e.opts.Settings.RedrawInterval(),
		PumpInterval:   e.opts.PumpInterval,
		Startup: func() {
			if e.opts.Restore {
				e.reg.Restore(runCtx)
			}
		},
	})
	worker := webview.New(webview.Options{Bus: e.bus, Inbox: workerInbox, Renderer: e.opts.Renderer})

	e.status.Store(int32(StatusRunning))
	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		err := loop.Run(gctx)
		// the worker has no overlays left to serve
		if perr := e.bus.PostTo(messages.ContextHost, messages.ContextWebView, messages.Command(messages.WorkerQuit)); perr != nil {
			cancel()
		}
		return err
	})
	g.Go(func() error {
		return worker.Run(gctx)
	})
	go e.wait(g, cancel)

	log.Printf("Engine: started (capture=%s, showing=%v)", e.opts.Method, e.reg.Showing())
	return nil
}

func (e *Engine) wait(g *errgroup.Group, cancel context.CancelFunc) {
	err := g.Wait()
	cancel()
	if e.input != nil {
		e.input.Unhook()
	}
	e.bus.Shutdown()

	e.mu.Lock()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	e.err = err
	e.mu.Unlock()

	if err != nil {
		e.status.Store(int32(StatusCrashed))
		log.Printf("Engine: stopped with error: %v", err)
	} else {
		e.status.Store(int32(StatusStopped))
		log.Printf("Engine: stopped")
	}
	close(e.done)
}

// Stop quits the registry and waits for every overlay to be released. If
// ctx expires first the loop is cancelled, which still tears overlays down
// on the loop thread.
func (e *Engine) Stop(ctx context.Context) error {
	if !e.started.Load() {
		return nil
	}
	if e.status.CompareAndSwap(int32(StatusRunning), int32(StatusStopping)) {
		if err := e.post(messages.Command(messages.Quit)); err != nil {
			log.Printf("Engine: quit not delivered, cancelling: %v", err)
			e.cancelRun()
		}
	}
	select {
	case <-e.done:
		return e.Err()
	case <-ctx.Done():
		e.cancelRun()
		<-e.done
		return ctx.Err()
	}
}

func (e *Engine) cancelRun() {
	e.mu.Lock()
	cancel := e.cancel
	e.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Err returns the error the engine stopped with, if any.
func (e *Engine) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}

// Done is closed once the engine stopped.
func (e *Engine) Done() <-chan struct{} { return e.done }

func (e *Engine) Status() Status { return Status(e.status.Load()) }

func (e *Engine) post(msg messages.Message) error {
	if s := e.Status(); s != StatusRunning && !(s == StatusStopping && msg.Code == messages.Quit) {
		msg.Release()
		return ErrNotRunning
	}
	return e.bus.PostTo(messages.ContextHost, messages.ContextOverlays, msg)
}

func (e *Engine) command(code messages.Code) error {
	return e.post(messages.Command(code))
}

func (e *Engine) Show() error            { return e.command(messages.ShowOverlays) }
func (e *Engine) Hide() error            { return e.command(messages.HideOverlays) }
func (e *Engine) UpdateAll() error       { return e.command(messages.UpdateOverlays) }
func (e *Engine) CatchForeground() error { return e.command(messages.CatchForegroundApp) }

// TakeInput starts intercepting input aimed at the foreground window.
func (e *Engine) TakeInput() error {
	if e.input == nil {
		return ErrNoInput
	}
	return e.command(messages.TakeInput)
}

// ReleaseInput stops interception. It is safe to call from hook callbacks.
func (e *Engine) ReleaseInput() error {
	if e.input == nil {
		return ErrNoInput
	}
	return e.command(messages.ReleaseInput)
}

// Intercepting reports whether input is currently redirected.
func (e *Engine) Intercepting() bool {
	return e.input != nil && e.input.Intercepting()
}

// InputEvents delivers intercepted input. It is nil without an input backend.
func (e *Engine) InputEvents() <-chan input.Event {
	if e.input == nil {
		return nil
	}
	return e.input.Events()
}

// AddWebView creates a web-content overlay at r and returns its id.
func (e *Engine) AddWebView(url string, r desktop.Rect) (int, error) {
	if e.Status() != StatusRunning {
		return 0, ErrNotRunning
	}
	return e.reg.CreateWebView(url, r)
}

func (e *Engine) addressed(id int, code messages.Code, payload messages.Payload) error {
	if e.reg.Get(id) == nil {
		if payload != nil {
			payload.Release()
		}
		return fmt.Errorf("%w: %d", ErrUnknownOverlay, id)
	}
	return e.post(messages.To(id, code, payload))
}

// SetURL points a web-content overlay at url.
func (e *Engine) SetURL(id int, url string) error {
	if url == "" {
		return fmt.Errorf("engine: empty url")
	}
	return e.addressed(id, messages.OverlayURL, messages.URL(url))
}

// MoveOverlay places overlay id at (x, y), keeping its size.
func (e *Engine) MoveOverlay(id, x, y int) error {
	return e.addressed(id, messages.OverlayPosition, messages.Rect{Rect: desktop.Rect{X: x, Y: y}})
}

// SetTransparency sets the alpha of overlay id, or of every overlay and
// the saved default when id is zero.
func (e *Engine) SetTransparency(id, level int) error {
	if level < 0 || level > 255 {
		return fmt.Errorf("engine: transparency %d out of range 0-255", level)
	}
	if id == 0 {
		return e.post(messages.To(0, messages.OverlayTransparency, messages.Alpha(level)))
	}
	return e.addressed(id, messages.OverlayTransparency, messages.Alpha(level))
}

// Remove tears overlay id down.
func (e *Engine) Remove(id int) error {
	return e.addressed(id, messages.OverlayClose, nil)
}

func (e *Engine) IDs() []int    { return e.reg.IDs() }
func (e *Engine) Count() int    { return e.reg.Count() }
func (e *Engine) Showing() bool { return e.reg.Showing() }

// Overlays describes every overlay in creation order.
func (e *Engine) Overlays() []Info {
	var out []Info
	for _, id := range e.reg.IDs() {
		o := e.reg.Get(id)
		if o == nil {
			continue
		}
		out = append(out, describe(o))
	}
	return out
}

func describe(o *overlay.Entry) Info {
	return Info{
		ID:       o.ID(),
		Kind:     o.Kind().String(),
		State:    o.State().String(),
		Geometry: o.Geometry(),
		Source:   o.Source(),
		URL:      o.URL(),
	}
}
