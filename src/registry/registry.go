// Package registry owns the collection of overlay entries and dispatches
// collection-wide and entry-addressed commands to them.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"game-overlay/src/desktop"
	"game-overlay/src/messages"
	"game-overlay/src/overlay"
	"game-overlay/src/settings"
)

var (
	// ErrQuitting is returned by creation calls once shutdown started.
	ErrQuitting = errors.New("registry: quitting")
	// ErrDuplicateSource is returned when the source window is already tracked.
	ErrDuplicateSource = errors.New("registry: source already tracked")
	// ErrNoSource is returned for a zero source handle.
	ErrNoSource = errors.New("registry: no source window")
)

// Interceptor is the input hook owner driven by TakeInput/ReleaseInput
type Interceptor interface {
	Hook() error
	Unhook()
}

// WindowFinder supplies candidate source windows
type WindowFinder interface {
	ForegroundWindows() (uint32, []desktop.Handle)
	WindowsForProcess(ctx context.Context, namePart string) ([]desktop.Handle, error)
	ProcessName(ctx context.Context, pid uint32) (string, error)
}

// Options configure a Registry. Input and Finder may be nil.
type Options struct {
	Desktop     desktop.Desktop
	Bus         overlay.Poster
	Settings    *settings.Store
	Input       Interceptor
	Finder      WindowFinder
	Method      desktop.CaptureMethod
	ShowOnStart bool
}

// Registry is the overlay collection. Lookups and iteration take the read
// lock; insertion and removal take the write lock. Iterations that may
// mutate the collection act on a snapshot taken under the read lock.
type Registry struct {
	opts      Options
	entryOpts overlay.Options

	mu      sync.RWMutex
	entries []*overlay.Entry

	showing  atomic.Bool
	quitting atomic.Bool

	done     chan struct{}
	doneOnce sync.Once
}

// New creates an empty registry
func New(opts Options) *Registry {
	if opts.Settings == nil {
		opts.Settings = settings.NewStore("")
	}
	r := &Registry{opts: opts, done: make(chan struct{})}
	r.showing.Store(opts.ShowOnStart)
	r.entryOpts = overlay.Options{
		Desktop:  opts.Desktop,
		Bus:      opts.Bus,
		Method:   opts.Method,
		Showing:  r.showing.Load,
		Released: func(id int) { r.finalize(id) },
	}
	return r
}

// Done is closed once the registry is quitting and the last entry is gone.
func (r *Registry) Done() <-chan struct{} { return r.done }

func (r *Registry) Showing() bool  { return r.showing.Load() }
func (r *Registry) Quitting() bool { return r.quitting.Load() }

func (r *Registry) post(msg messages.Message) error {
	return r.opts.Bus.PostTo(messages.ContextOverlays, messages.ContextOverlays, msg)
}

// Dispatch runs a collection-wide command and reports whether it was recognized.
func (r *Registry) Dispatch(code messages.Code) bool {
	log.Printf("Registry: dispatch %s", code)
	switch code {
	case messages.CatchForegroundApp:
		r.CatchForeground(context.Background())
	case messages.ShowOverlays:
		r.Show()
	case messages.HideOverlays:
		r.Hide()
	case messages.UpdateOverlays:
		r.UpdateAll()
	case messages.Quit:
		r.Quit()
	case messages.TakeInput:
		if r.opts.Input != nil {
			if err := r.opts.Input.Hook(); err != nil {
				log.Printf("Registry: take input: %v", err)
			}
		}
	case messages.ReleaseInput:
		if r.opts.Input != nil {
			r.opts.Input.Unhook()
		}
	default:
		return false
	}
	return true
}

// Handle processes one message from the overlays mailbox and releases its payload.
func (r *Registry) Handle(msg messages.Message) {
	defer msg.Release()

	if msg.Code.Collection() {
		r.Dispatch(msg.Code)
		return
	}

	switch msg.Code {
	case messages.WindowDestroyed:
		if w, ok := msg.Payload.(messages.Window); ok {
			r.OnWindowDestroyed(w.Handle)
		}
		return
	case messages.EntryDestroyed:
		r.OnEntryDestroyed(r.Get(msg.ID))
		return
	}

	if msg.Code == messages.OverlayTransparency && msg.ID == 0 {
		if a, ok := msg.Payload.(messages.Alpha); ok {
			r.SetTransparency(0, uint8(a))
		}
		return
	}

	e := r.Get(msg.ID)
	if e == nil {
		log.Printf("Registry: %s for unknown overlay %d", msg.Code, msg.ID)
		return
	}

	switch msg.Code {
	case messages.SourceReady:
		if w, ok := msg.Payload.(messages.Window); ok {
			e.BindSource(w.Handle)
		}
		if err := r.CreateWindowFor(e); err != nil {
			log.Printf("Registry: overlay %d window: %v", e.ID(), err)
		}
	case messages.FramePushed:
		if f, ok := msg.Payload.(*messages.Frame); ok {
			if err := e.PaintFromExternalBuffer(f.Pix, f.Width, f.Height); err != nil {
				log.Printf("Registry: overlay %d frame: %v", e.ID(), err)
				return
			}
			e.Invalidate()
		}
	case messages.GeometryChanged:
		if rect, ok := msg.Payload.(messages.Rect); ok {
			e.ApplyGeometry(rect.Rect)
		}
	case messages.OverlayClose:
		r.RemoveEntry(e)
	case messages.OverlayPosition:
		if rect, ok := msg.Payload.(messages.Rect); ok {
			e.MoveTo(rect.X, rect.Y)
		}
	case messages.OverlayTransparency:
		if a, ok := msg.Payload.(messages.Alpha); ok {
			e.SetTransparency(uint8(a))
		}
	case messages.OverlayURL:
		if u, ok := msg.Payload.(messages.URL); ok {
			e.SetURL(string(u))
		}
	default:
		log.Printf("Registry: unhandled %s for overlay %d", msg.Code, msg.ID)
	}
}

// CreateFromWindow starts mirroring h. The initial capture runs before the
// entry is inserted; the render window is created when SourceReady is handled.
func (r *Registry) CreateFromWindow(h desktop.Handle) (int, error) {
	if h == 0 {
		return 0, ErrNoSource
	}
	if r.quitting.Load() {
		return 0, ErrQuitting
	}
	if existing := r.GetBySource(h); existing != nil {
		return existing.ID(), ErrDuplicateSource
	}

	e := overlay.NewWindowEntry(r.entryOpts)
	e.BindSource(h)
	if _, err := e.Capture(); err != nil {
		log.Printf("Registry: initial capture of %#x: %v", h, err)
	}

	r.mu.Lock()
	if r.quitting.Load() {
		r.mu.Unlock()
		e.Teardown()
		return 0, ErrQuitting
	}
	for _, other := range r.entries {
		if other.Source() == h {
			r.mu.Unlock()
			e.Teardown()
			return other.ID(), ErrDuplicateSource
		}
	}
	r.entries = append(r.entries, e)
	r.mu.Unlock()

	log.Printf("Registry: overlay %d created for %#x %q", e.ID(), h, r.opts.Desktop.WindowTitle(h))
	if err := r.post(messages.To(e.ID(), messages.SourceReady, nil)); err != nil {
		log.Printf("Registry: source ready not delivered, creating window now: %v", err)
		if err := r.CreateWindowFor(e); err != nil {
			log.Printf("Registry: overlay %d window: %v", e.ID(), err)
		}
	}
	return e.ID(), nil
}

// CreateWebView adds a web-content overlay and asks the worker to create its view.
func (r *Registry) CreateWebView(url string, rect desktop.Rect) (int, error) {
	if url == "" {
		return 0, fmt.Errorf("registry: empty url")
	}
	if rect.Empty() {
		return 0, fmt.Errorf("registry: invalid web view rectangle %v", rect)
	}
	if r.quitting.Load() {
		return 0, ErrQuitting
	}

	e := overlay.NewWebViewEntry(r.entryOpts, url, rect)
	// Quit flips quitting under the write lock, so an entry appended here is
	// always in the snapshot it tears down
	r.mu.Lock()
	if r.quitting.Load() {
		r.mu.Unlock()
		return 0, ErrQuitting
	}
	r.entries = append(r.entries, e)
	r.mu.Unlock()

	err := r.opts.Bus.PostTo(messages.ContextOverlays, messages.ContextWebView,
		messages.To(e.ID(), messages.WebViewCreate, messages.WebView{URL: url, Rect: rect, Alpha: r.opts.Settings.Alpha()}))
	if err != nil {
		r.mu.Lock()
		r.entries = removeByID(r.entries, e.ID())
		r.mu.Unlock()
		r.checkFinished()
		return 0, fmt.Errorf("registry: web view not created: %w", err)
	}
	log.Printf("Registry: web view %d requested for %s at %v", e.ID(), url, rect)
	return e.ID(), nil
}

// CreateWindowFor creates the render window of a ready entry. It does
// nothing for entries that have a window or no source yet. On failure the
// entry stays SourceReady and is retried by the next recapture tick.
func (r *Registry) CreateWindowFor(e *overlay.Entry) error {
	if e == nil || !e.Ready() {
		return nil
	}
	h, err := r.opts.Desktop.CreateOverlayWindow(desktop.WindowOptions{
		Rect:      e.Geometry(),
		Alpha:     r.opts.Settings.Alpha(),
		ColorKey:  r.opts.Settings.UseColorKey(),
		Visible:   r.showing.Load(),
		Paint:     e.PaintSurface,
		Destroyed: r.windowDestroyed,
	})
	if err != nil {
		return fmt.Errorf("create render window: %w", err)
	}
	if !e.AttachWindow(h) {
		r.opts.Desktop.DestroyWindow(h)
		return fmt.Errorf("overlay %d left source-ready before its window was attached", e.ID())
	}
	log.Printf("Registry: overlay %d render window %#x at %v", e.ID(), h, e.Geometry())
	return nil
}

// windowDestroyed runs on the owning thread when a render window is gone.
func (r *Registry) windowDestroyed(h desktop.Handle) {
	if err := r.post(messages.To(0, messages.WindowDestroyed, messages.Window{Handle: h})); err != nil {
		r.OnWindowDestroyed(h)
	}
}

// Get returns the entry with id, or nil
func (r *Registry) Get(id int) *overlay.Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.entries {
		if e.ID() == id {
			return e
		}
	}
	return nil
}

// GetByWindow returns the entry whose render window is h, including a
// window that is being destroyed.
func (r *Registry) GetByWindow(h desktop.Handle) *overlay.Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.entries {
		if e.OwnsWindow(h) {
			return e
		}
	}
	return nil
}

// GetBySource returns the entry mirroring source window h, or nil
func (r *Registry) GetBySource(h desktop.Handle) *overlay.Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.entries {
		if e.Source() == h {
			return e
		}
	}
	return nil
}

// IDs returns the identifiers of all entries in insertion order
func (r *Registry) IDs() []int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]int, 0, len(r.entries))
	for _, e := range r.entries {
		ids = append(ids, e.ID())
	}
	return ids
}

// Count returns the number of entries
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

func (r *Registry) snapshot() []*overlay.Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*overlay.Entry(nil), r.entries...)
}

// RemoveEntry starts teardown. It returns false if teardown already began.
func (r *Registry) RemoveEntry(e *overlay.Entry) bool {
	if e == nil {
		return false
	}
	return e.Teardown()
}

// OnWindowDestroyed finalizes the entry that owned render window h.
func (r *Registry) OnWindowDestroyed(h desktop.Handle) bool {
	e := r.GetByWindow(h)
	if e == nil {
		r.checkFinished()
		return false
	}
	return r.OnEntryDestroyed(e)
}

// OnEntryDestroyed erases a Destroying entry from the collection. When the
// collection empties while quitting, Done is closed.
func (r *Registry) OnEntryDestroyed(e *overlay.Entry) bool {
	if e == nil {
		r.checkFinished()
		return false
	}
	return r.finalize(e.ID())
}

func (r *Registry) finalize(id int) bool {
	removed := false
	r.mu.Lock()
	for _, e := range r.entries {
		if e.ID() == id && e.State() == overlay.StateDestroying {
			r.entries = removeByID(r.entries, id)
			removed = true
			break
		}
	}
	remaining := len(r.entries)
	r.mu.Unlock()

	if removed {
		log.Printf("Registry: overlay %d removed, %d remaining", id, remaining)
	}
	r.checkFinished()
	return removed
}

func (r *Registry) checkFinished() {
	if r.quitting.Load() && r.Count() == 0 {
		r.doneOnce.Do(func() {
			log.Printf("Registry: all overlays released")
			close(r.done)
		})
	}
}

func removeByID(entries []*overlay.Entry, id int) []*overlay.Entry {
	for i, e := range entries {
		if e.ID() == id {
			return append(entries[:i:i], entries[i+1:]...)
		}
	}
	return entries
}

// RecaptureTick retries pending window creation and, while overlays are
// shown, recaptures every working entry and invalidates those that changed.
func (r *Registry) RecaptureTick() {
	entries := r.snapshot()
	for _, e := range entries {
		if e.State() == overlay.StateSourceReady {
			if err := r.CreateWindowFor(e); err != nil {
				log.Printf("Registry: overlay %d window retry: %v", e.ID(), err)
			}
		}
	}
	if !r.showing.Load() {
		return
	}
	for _, e := range entries {
		if e.State() != overlay.StateWorking {
			continue
		}
		repaint, err := e.Capture()
		if err != nil && !errors.Is(err, overlay.ErrDestroying) {
			log.Printf("Overlay %d: %v", e.ID(), err)
		}
		if repaint {
			e.Invalidate()
		}
	}
}

// UpdateAll recaptures every working entry while overlays are shown.
func (r *Registry) UpdateAll() {
	if !r.showing.Load() {
		return
	}
	for _, e := range r.snapshot() {
		if e.State() != overlay.StateWorking {
			continue
		}
		repaint, err := e.Capture()
		if err != nil && !errors.Is(err, overlay.ErrDestroying) {
			log.Printf("Overlay %d: %v", e.ID(), err)
		}
		if repaint {
			if !e.UpdateFromSource() {
				e.Reveal()
			}
			e.Invalidate()
		}
	}
}

// Show makes overlays visible. Showing again hides first so the windows
// are re-shown rather than ignored.
func (r *Registry) Show() {
	if r.showing.Load() {
		r.showing.Store(false)
		r.BroadcastHide()
	}
	r.showing.Store(true)
	r.UpdateAll()
}

// Hide hides every overlay until the next Show.
func (r *Registry) Hide() {
	r.showing.Store(false)
	r.BroadcastHide()
}

// BroadcastHide hides every render window without changing entry state.
func (r *Registry) BroadcastHide() {
	for _, e := range r.snapshot() {
		e.Hide()
	}
}

// SetTransparency applies alpha to entry id, or to every entry and the
// settings when id is zero.
func (r *Registry) SetTransparency(id int, alpha uint8) {
	if id != 0 {
		if e := r.Get(id); e != nil {
			e.SetTransparency(alpha)
		}
		return
	}
	r.opts.Settings.Update(func(s *settings.Settings) { s.Transparency = int(alpha) })
	for _, e := range r.snapshot() {
		e.SetTransparency(alpha)
	}
}

// CatchForeground mirrors every top-level window of the foreground
// window's process and remembers the process for the next start.
func (r *Registry) CatchForeground(ctx context.Context) int {
	if r.opts.Finder == nil {
		return 0
	}
	pid, windows := r.opts.Finder.ForegroundWindows()
	if pid == 0 {
		log.Printf("Registry: no foreground window to catch")
		return 0
	}

	caught := 0
	for _, h := range windows {
		if _, err := r.CreateFromWindow(h); err != nil {
			if !errors.Is(err, ErrDuplicateSource) {
				log.Printf("Registry: catch %#x: %v", h, err)
			}
			continue
		}
		caught++
	}
	if caught > 0 {
		name, err := r.opts.Finder.ProcessName(ctx, pid)
		if err != nil {
			log.Printf("Registry: process name of %d: %v", pid, err)
		} else if r.opts.Settings.AddApp(name) {
			log.Printf("Registry: remembering app %s", name)
		}
	}
	log.Printf("Registry: caught %d windows of process %d", caught, pid)
	return caught
}

// Restore re-attaches the remembered apps and web pages.
func (r *Registry) Restore(ctx context.Context) {
	s := r.opts.Settings.Snapshot()
	if r.opts.Finder != nil {
		for _, app := range s.Apps {
			windows, err := r.opts.Finder.WindowsForProcess(ctx, app)
			if err != nil {
				log.Printf("Registry: find %s: %v", app, err)
				continue
			}
			for _, h := range windows {
				if _, err := r.CreateFromWindow(h); err != nil && !errors.Is(err, ErrDuplicateSource) {
					log.Printf("Registry: attach %s window %#x: %v", app, h, err)
				}
			}
		}
	}
	for _, page := range s.WebPages {
		rect := desktop.Rect{X: page.X, Y: page.Y, Width: page.Width, Height: page.Height}
		if _, err := r.CreateWebView(page.URL, rect); err != nil {
			log.Printf("Registry: restore web page %s: %v", page.URL, err)
		}
	}
}

// persist writes the web-content overlays back to the settings file.
func (r *Registry) persist() {
	var pages []settings.WebPage
	for _, e := range r.snapshot() {
		if page, ok := e.Persist(); ok {
			pages = append(pages, page)
		}
	}
	r.opts.Settings.SetWebPages(pages)
	if r.opts.Settings.Path() == "" {
		return
	}
	if err := r.opts.Settings.Save(); err != nil {
		log.Printf("Registry: save settings: %v", err)
	}
}

// Quit begins shutdown: it saves settings, releases input and tears down
// every entry. Done closes when the last entry is gone.
func (r *Registry) Quit() {
	r.mu.Lock()
	started := r.quitting.CompareAndSwap(false, true)
	r.mu.Unlock()
	if !started {
		return
	}
	log.Printf("Registry: quitting with %d overlays", r.Count())

	r.persist()
	if r.opts.Input != nil {
		r.opts.Input.Unhook()
	}

	for _, e := range r.snapshot() {
		r.RemoveEntry(e)
	}
	r.checkFinished()
}
