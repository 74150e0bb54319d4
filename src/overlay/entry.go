package overlay

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"game-overlay/src/desktop"
	"game-overlay/src/messages"
	"game-overlay/src/settings"
)

// FirstID is the identifier given to the first entry of the process.
const FirstID = 128

var idCounter atomic.Int64

func nextID() int {
	return FirstID + int(idCounter.Add(1)) - 1
}

// Poster delivers a message to another execution context without blocking.
// On failure the message payload has already been released.
type Poster interface {
	PostTo(from, to string, msg messages.Message) error
}

// Options are shared by every entry of a registry
type Options struct {
	Desktop desktop.Desktop
	Bus     Poster
	Method  desktop.CaptureMethod
	// Showing reports whether overlays may currently be made visible. Nil means always.
	Showing func() bool
	// Released finalizes an entry directly when its EntryDestroyed
	// notification could not be posted.
	Released func(id int)
}

// Entry is one tracked overlay: a source, its render window, capture buffer
// and geometry.
type Entry struct {
	id   int
	kind Kind
	opts Options

	state atomic.Int32

	// mu guards geometry only, so repositioning never waits on a capture
	mu             sync.Mutex
	geometry       desktop.Rect
	manualPosition bool

	// res guards OS handles, the capture buffer and the content flags
	res              sync.Mutex
	source           desktop.Handle
	render           desktop.Handle
	closing          desktop.Handle
	buffer           desktop.Surface
	updateFromSource bool
	url              string
	overlayCreated   bool
}

func newEntry(kind Kind, opts Options) *Entry {
	e := &Entry{
		id:               nextID(),
		kind:             kind,
		opts:             opts,
		updateFromSource: true,
	}
	e.state.Store(int32(StateCreating))
	return e
}

// NewWindowEntry returns an entry in StateCreating that will mirror an OS window.
func NewWindowEntry(opts Options) *Entry {
	return newEntry(KindWindow, opts)
}

// NewWebViewEntry returns a web-content entry. It stays in StateCreating
// until the worker reports its view through BindSource.
func NewWebViewEntry(opts Options, url string, r desktop.Rect) *Entry {
	e := newEntry(KindWebView, opts)
	e.url = url
	e.geometry = r
	return e
}

func (e *Entry) ID() int      { return e.id }
func (e *Entry) Kind() Kind   { return e.kind }
func (e *Entry) State() State { return State(e.state.Load()) }

func (e *Entry) advance(from, to State) bool {
	return e.state.CompareAndSwap(int32(from), int32(to))
}

func (e *Entry) showing() bool {
	return e.opts.Showing == nil || e.opts.Showing()
}

// BindSource records the source handle and moves Creating to SourceReady.
func (e *Entry) BindSource(h desktop.Handle) bool {
	e.res.Lock()
	defer e.res.Unlock()
	if h == 0 || !e.advance(StateCreating, StateSourceReady) {
		return false
	}
	e.source = h
	if e.kind == KindWebView {
		e.overlayCreated = true
	}
	return true
}

// Ready reports whether a render window may be created for the entry.
func (e *Entry) Ready() bool {
	e.res.Lock()
	defer e.res.Unlock()
	return e.State() == StateSourceReady && e.source != 0 && e.render == 0
}

// AttachWindow hands the entry its render window and moves it to Working.
// It fails when the entry left SourceReady in the meantime; the caller then
// owns h and must destroy it.
func (e *Entry) AttachWindow(h desktop.Handle) bool {
	e.res.Lock()
	defer e.res.Unlock()
	if e.render != 0 || !e.advance(StateSourceReady, StateWorking) {
		return false
	}
	e.render = h
	return true
}

func (e *Entry) Source() desktop.Handle {
	e.res.Lock()
	defer e.res.Unlock()
	return e.source
}

func (e *Entry) Render() desktop.Handle {
	e.res.Lock()
	defer e.res.Unlock()
	return e.render
}

// OwnsWindow reports whether h is, or was until teardown, the render window.
func (e *Entry) OwnsWindow(h desktop.Handle) bool {
	if h == 0 {
		return false
	}
	e.res.Lock()
	defer e.res.Unlock()
	return e.render == h || e.closing == h
}

func (e *Entry) Geometry() desktop.Rect {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.geometry
}

func (e *Entry) ManualPosition() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.manualPosition
}

// UpdateFromSource reports whether recapture still pulls from the source.
func (e *Entry) UpdateFromSource() bool {
	e.res.Lock()
	defer e.res.Unlock()
	return e.updateFromSource
}

// Buffer returns the current capture buffer, nil if none.
func (e *Entry) Buffer() desktop.Surface {
	e.res.Lock()
	defer e.res.Unlock()
	return e.buffer
}

func (e *Entry) URL() string {
	e.res.Lock()
	defer e.res.Unlock()
	return e.url
}

// Created reports whether the worker has created the web view.
func (e *Entry) Created() bool {
	e.res.Lock()
	defer e.res.Unlock()
	return e.overlayCreated
}

// PaintSurface returns the buffer for the render window's paint handler.
// It never blocks: while the buffer is being replaced it returns nil and the
// window is repainted on the next invalidation.
func (e *Entry) PaintSurface() desktop.Surface {
	if !e.res.TryLock() {
		return nil
	}
	defer e.res.Unlock()
	if e.State() != StateWorking {
		return nil
	}
	return e.buffer
}

// Capture refreshes the buffer from the source window and reports whether
// the render window needs repainting. Entries fed by an external producer,
// and web-content entries, return true without touching the source.
func (e *Entry) Capture() (bool, error) {
	e.res.Lock()
	defer e.res.Unlock()

	st := e.State()
	if st == StateDestroying {
		return false, ErrDestroying
	}
	if !e.updateFromSource {
		return true, nil
	}
	if e.kind == KindWebView || st == StateCreating {
		return false, nil
	}

	src := e.source
	r, ok := e.opts.Desktop.WindowRect(src)
	if !ok || r.Empty() {
		// the source may come back, keep the entry and just hide it
		e.setVisibleLocked(false)
		return false, fmt.Errorf("source %#x rectangle unreadable", src)
	}

	buf := e.buffer
	fresh := false
	if buf == nil || buf.Width() != r.Width || buf.Height() != r.Height {
		nb, err := e.opts.Desktop.NewSurface(src, r.Width, r.Height)
		if err != nil {
			return false, fmt.Errorf("allocate %dx%d buffer: %w", r.Width, r.Height, err)
		}
		buf, fresh = nb, true
	}

	if err := e.opts.Desktop.Acquire(e.opts.Method, src, r, buf); err != nil {
		if fresh {
			buf.Release()
		}
		e.setVisibleLocked(false)
		return false, fmt.Errorf("%s capture of %#x: %w", e.opts.Method, src, err)
	}

	if fresh {
		if e.buffer != nil {
			e.buffer.Release()
		}
		e.buffer = buf
	}

	if next, moved := e.trackSource(r); moved && e.render != 0 {
		e.opts.Desktop.MoveWindow(e.render, next)
	}
	if e.showing() {
		e.setVisibleLocked(true)
	}
	return true, nil
}

// trackSource folds a fresh source rectangle into the geometry. With a
// manual position only the size follows the source.
func (e *Entry) trackSource(src desktop.Rect) (desktop.Rect, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	next := src
	if e.manualPosition {
		next = desktop.Rect{X: e.geometry.X, Y: e.geometry.Y, Width: src.Width, Height: src.Height}
	}
	if next == e.geometry {
		return next, false
	}
	e.geometry = next
	return next, true
}

func (e *Entry) setVisibleLocked(show bool) {
	if e.render == 0 {
		return
	}
	if e.opts.Desktop.IsVisible(e.render) != show {
		e.opts.Desktop.ShowWindow(e.render, show)
	}
}

// PaintFromExternalBuffer copies pushed BGRA pixels into the buffer, stops
// pulling from the source and makes the render window visible.
func (e *Entry) PaintFromExternalBuffer(pix []byte, width, height int) error {
	if err := desktop.ValidatePixels(pix, width, height); err != nil {
		return err
	}

	e.res.Lock()
	defer e.res.Unlock()
	if e.State() == StateDestroying {
		return ErrDestroying
	}

	buf := e.buffer
	if buf == nil || buf.Width() != width || buf.Height() != height {
		nb, err := e.opts.Desktop.NewSurface(e.source, width, height)
		if err != nil {
			return fmt.Errorf("allocate %dx%d buffer: %w", width, height, err)
		}
		if e.buffer != nil {
			e.buffer.Release()
		}
		e.buffer = nb
		buf = nb
	}
	if err := buf.WritePixels(pix, width, height); err != nil {
		return err
	}
	e.updateFromSource = false
	if e.showing() {
		e.setVisibleLocked(true)
	}
	return nil
}

// SetGeometry repositions the overlay to r's origin, keeping its size, and
// pins the position against source movement. Web-content entries forward
// the request to the worker and keep their geometry until it answers.
func (e *Entry) SetGeometry(r desktop.Rect) bool {
	if e.State() == StateDestroying {
		return false
	}
	if e.kind == KindWebView {
		err := e.opts.Bus.PostTo(messages.ContextOverlays, messages.ContextWebView,
			messages.To(e.id, messages.WebViewPosition, messages.Rect{Rect: r}))
		if err != nil {
			log.Printf("Overlay %d: position request not delivered: %v", e.id, err)
			return false
		}
		return true
	}

	e.mu.Lock()
	next := e.geometry.MoveTo(r.X, r.Y)
	e.geometry = next
	e.manualPosition = true
	e.mu.Unlock()

	e.res.Lock()
	if e.render != 0 {
		e.opts.Desktop.MoveWindow(e.render, next)
	}
	e.res.Unlock()
	return true
}

// MoveTo is SetGeometry with the current size.
func (e *Entry) MoveTo(x, y int) bool {
	return e.SetGeometry(e.Geometry().MoveTo(x, y))
}

// ApplyGeometry adopts a rectangle reported by the content producer.
func (e *Entry) ApplyGeometry(r desktop.Rect) {
	if e.State() == StateDestroying || r.Empty() {
		return
	}
	e.mu.Lock()
	e.geometry = r
	e.mu.Unlock()

	e.res.Lock()
	if e.render != 0 {
		e.opts.Desktop.MoveWindow(e.render, r)
	}
	e.res.Unlock()
}

// SetTransparency applies alpha to the render window if there is one.
func (e *Entry) SetTransparency(alpha uint8) {
	if e.State() == StateDestroying {
		return
	}
	e.res.Lock()
	if e.render != 0 {
		e.opts.Desktop.SetTransparency(e.render, alpha)
	}
	e.res.Unlock()

	if e.kind == KindWebView {
		err := e.opts.Bus.PostTo(messages.ContextOverlays, messages.ContextWebView,
			messages.To(e.id, messages.WebViewTransparency, messages.Alpha(alpha)))
		if err != nil {
			log.Printf("Overlay %d: transparency not delivered: %v", e.id, err)
		}
	}
}

// SetURL asks the worker to navigate. The URL is recorded only when the
// request was delivered. Window entries have no URL.
func (e *Entry) SetURL(url string) bool {
	if e.kind != KindWebView || e.State() == StateDestroying {
		return false
	}
	err := e.opts.Bus.PostTo(messages.ContextOverlays, messages.ContextWebView,
		messages.To(e.id, messages.WebViewURL, messages.URL(url)))
	if err != nil {
		log.Printf("Overlay %d: url not delivered: %v", e.id, err)
		return false
	}
	e.res.Lock()
	e.url = url
	e.res.Unlock()
	return true
}

// Hide hides the render window without changing the entry state.
func (e *Entry) Hide() {
	e.res.Lock()
	defer e.res.Unlock()
	e.setVisibleLocked(false)
}

// Reveal shows the render window if it has content to show.
func (e *Entry) Reveal() {
	e.res.Lock()
	defer e.res.Unlock()
	if e.State() == StateWorking && e.buffer != nil {
		e.setVisibleLocked(true)
	}
}

// Invalidate schedules a repaint of the render window.
func (e *Entry) Invalidate() {
	e.res.Lock()
	defer e.res.Unlock()
	if e.render != 0 {
		e.opts.Desktop.Invalidate(e.render)
	}
}

// Persist returns the settings record of a web-content entry.
func (e *Entry) Persist() (settings.WebPage, bool) {
	if e.kind != KindWebView {
		return settings.WebPage{}, false
	}
	g := e.Geometry()
	return settings.WebPage{URL: e.URL(), X: g.X, Y: g.Y, Width: g.Width, Height: g.Height}, true
}

// Teardown moves the entry to Destroying, releases the capture buffer and
// destroys the render window. Without a render window it signals completion
// itself. It returns false if teardown had already started.
func (e *Entry) Teardown() bool {
	for {
		st := e.State()
		if st == StateDestroying {
			return false
		}
		if e.advance(st, StateDestroying) {
			break
		}
	}

	e.res.Lock()
	buf := e.buffer
	e.buffer = nil
	render := e.render
	e.render = 0
	e.closing = render
	e.res.Unlock()

	log.Printf("Overlay %d: releasing resources (render=%#x)", e.id, render)
	if buf != nil {
		buf.Release()
	}

	if e.kind == KindWebView {
		if err := e.opts.Bus.PostTo(messages.ContextOverlays, messages.ContextWebView,
			messages.To(e.id, messages.WebViewClose, nil)); err != nil {
			log.Printf("Overlay %d: close not delivered to worker: %v", e.id, err)
		}
	}

	if render != 0 {
		// the window's destroy notification completes the removal
		err := e.opts.Desktop.DestroyWindow(render)
		if err == nil {
			return true
		}
		log.Printf("Overlay %d: destroy window: %v", e.id, err)
	}
	e.signalReleased()
	return true
}

func (e *Entry) signalReleased() {
	err := e.opts.Bus.PostTo(messages.ContextOverlays, messages.ContextOverlays,
		messages.To(e.id, messages.EntryDestroyed, nil))
	if err == nil {
		return
	}
	log.Printf("Overlay %d: destroyed notification not delivered: %v", e.id, err)
	if e.opts.Released != nil {
		e.opts.Released(e.id)
	}
}
