// Package desktoptest provides an in-memory desktop.Desktop for tests.
package desktoptest

import (
	"errors"
	"fmt"
	"sync"

	"game-overlay/src/desktop"
)

// ErrCapture is returned by Acquire for sources marked with FailCapture.
var ErrCapture = errors.New("desktoptest: capture failed")

// Surface is a plain pixel buffer that counts its releases.
type Surface struct {
	ID     int
	W, H   int
	Pix    []byte
	mu     sync.Mutex
	frees  int
	writes int
}

func (s *Surface) Width() int  { return s.W }
func (s *Surface) Height() int { return s.H }

func (s *Surface) WritePixels(pix []byte, width, height int) error {
	if err := desktop.ValidatePixels(pix, width, height); err != nil {
		return err
	}
	if width != s.W || height != s.H {
		return fmt.Errorf("frame %dx%d does not match surface %dx%d", width, height, s.W, s.H)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	copy(s.Pix, pix)
	s.writes++
	return nil
}

// Release frees the surface once; later calls are counted but ignored.
func (s *Surface) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frees++
}

// Releases returns how many times Release was called.
func (s *Surface) Releases() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frees
}

// Writes returns how many frames were written into the surface.
func (s *Surface) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

// Window is the recorded state of an overlay window.
type Window struct {
	Handle       desktop.Handle
	Options      desktop.WindowOptions
	Rect         desktop.Rect
	Alpha        uint8
	Visible      bool
	Invalidated  int
	ShowRequests int
	Destroyed    bool
}

type source struct {
	rect        desktop.Rect
	title       string
	pid         uint32
	failCapture bool
	closed      bool
}

// Desktop is a scripted desktop.Desktop.
type Desktop struct {
	mu          sync.Mutex
	next        desktop.Handle
	sources     map[desktop.Handle]*source
	windows     map[desktop.Handle]*Window
	surfaces    []*Surface
	captures    map[desktop.Handle]int
	foreground  desktop.Handle
	failWindows bool
	pumps       int
}

// New returns an empty desktop. Handles start at 0x1000.
func New() *Desktop {
	return &Desktop{
		next:     0x1000,
		sources:  make(map[desktop.Handle]*source),
		windows:  make(map[desktop.Handle]*Window),
		captures: make(map[desktop.Handle]int),
	}
}

func (d *Desktop) allocHandle() desktop.Handle {
	d.next += 4
	return d.next
}

// AddSource registers a source window owned by pid and returns its handle.
func (d *Desktop) AddSource(pid uint32, title string, r desktop.Rect) desktop.Handle {
	d.mu.Lock()
	defer d.mu.Unlock()
	h := d.allocHandle()
	d.sources[h] = &source{rect: r, title: title, pid: pid}
	return h
}

// SetSourceRect moves or resizes a source window.
func (d *Desktop) SetSourceRect(h desktop.Handle, r desktop.Rect) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if s, ok := d.sources[h]; ok {
		s.rect = r
	}
}

// CloseSource makes the source's rectangle unreadable.
func (d *Desktop) CloseSource(h desktop.Handle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if s, ok := d.sources[h]; ok {
		s.closed = true
	}
}

// ReopenSource undoes CloseSource.
func (d *Desktop) ReopenSource(h desktop.Handle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if s, ok := d.sources[h]; ok {
		s.closed = false
	}
}

// FailCapture makes Acquire fail for h while fail is true.
func (d *Desktop) FailCapture(h desktop.Handle, fail bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if s, ok := d.sources[h]; ok {
		s.failCapture = fail
	}
}

// FailWindows makes CreateOverlayWindow fail while fail is true.
func (d *Desktop) FailWindows(fail bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failWindows = fail
}

// SetForeground sets the handle returned by ForegroundWindow.
func (d *Desktop) SetForeground(h desktop.Handle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.foreground = h
}

// Window returns a copy of the recorded overlay window state.
func (d *Desktop) Window(h desktop.Handle) (Window, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	w, ok := d.windows[h]
	if !ok {
		return Window{}, false
	}
	return *w, true
}

// LiveWindows returns the number of overlay windows not yet destroyed.
func (d *Desktop) LiveWindows() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, w := range d.windows {
		if !w.Destroyed {
			n++
		}
	}
	return n
}

// Surfaces returns every surface allocated so far, in allocation order.
func (d *Desktop) Surfaces() []*Surface {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Surface(nil), d.surfaces...)
}

// Captures returns how many acquisitions ran against source h.
func (d *Desktop) Captures(h desktop.Handle) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.captures[h]
}

// Pumps returns how many times Pump was called.
func (d *Desktop) Pumps() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pumps
}

func (d *Desktop) WindowRect(h desktop.Handle) (desktop.Rect, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if s, ok := d.sources[h]; ok && !s.closed {
		return s.rect, true
	}
	if w, ok := d.windows[h]; ok && !w.Destroyed {
		return w.Rect, true
	}
	return desktop.Rect{}, false
}

func (d *Desktop) IsWindow(h desktop.Handle) bool {
	_, ok := d.WindowRect(h)
	return ok
}

func (d *Desktop) WindowTitle(h desktop.Handle) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if s, ok := d.sources[h]; ok {
		return s.title
	}
	return ""
}

func (d *Desktop) ForegroundWindow() desktop.Handle {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.foreground
}

func (d *Desktop) WindowProcessID(h desktop.Handle) uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if s, ok := d.sources[h]; ok {
		return s.pid
	}
	return 0
}

// TopLevelWindows returns the open sources of pid in handle order.
func (d *Desktop) TopLevelWindows(pid uint32) []desktop.Handle {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []desktop.Handle
	for h := desktop.Handle(0x1000); h <= d.next; h += 4 {
		if s, ok := d.sources[h]; ok && s.pid == pid && !s.closed {
			out = append(out, h)
		}
	}
	return out
}

func (d *Desktop) NewSurface(_ desktop.Handle, width, height int) (desktop.Surface, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid surface size %dx%d", width, height)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	s := &Surface{ID: len(d.surfaces) + 1, W: width, H: height, Pix: make([]byte, width*height*desktop.BytesPerPixel)}
	d.surfaces = append(d.surfaces, s)
	return s, nil
}

func (d *Desktop) Acquire(_ desktop.CaptureMethod, h desktop.Handle, area desktop.Rect, dst desktop.Surface) error {
	d.mu.Lock()
	d.captures[h]++
	s, ok := d.sources[h]
	fail := !ok || s.failCapture || s.closed
	d.mu.Unlock()
	if fail {
		return ErrCapture
	}
	if area.Width != dst.Width() || area.Height != dst.Height() {
		return fmt.Errorf("area %v does not match surface %dx%d", area, dst.Width(), dst.Height())
	}
	return nil
}

func (d *Desktop) CreateOverlayWindow(opts desktop.WindowOptions) (desktop.Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failWindows {
		return 0, errors.New("desktoptest: window creation failed")
	}
	h := d.allocHandle()
	d.windows[h] = &Window{Handle: h, Options: opts, Rect: opts.Rect, Alpha: opts.Alpha, Visible: opts.Visible}
	return h, nil
}

func (d *Desktop) SetTransparency(h desktop.Handle, alpha uint8) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if w, ok := d.windows[h]; ok {
		w.Alpha = alpha
	}
}

func (d *Desktop) MoveWindow(h desktop.Handle, r desktop.Rect) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if w, ok := d.windows[h]; ok {
		w.Rect = r
	}
}

func (d *Desktop) ShowWindow(h desktop.Handle, show bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if w, ok := d.windows[h]; ok {
		w.Visible = show
		w.ShowRequests++
	}
}

func (d *Desktop) IsVisible(h desktop.Handle) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if w, ok := d.windows[h]; ok {
		return w.Visible && !w.Destroyed
	}
	return false
}

func (d *Desktop) Invalidate(h desktop.Handle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if w, ok := d.windows[h]; ok {
		w.Invalidated++
	}
}

// DestroyWindow marks the window destroyed and runs its Destroyed callback
// synchronously, outside the desktop lock.
func (d *Desktop) DestroyWindow(h desktop.Handle) error {
	d.mu.Lock()
	w, ok := d.windows[h]
	if !ok || w.Destroyed {
		d.mu.Unlock()
		return desktop.ErrNoWindow
	}
	w.Destroyed = true
	w.Visible = false
	cb := w.Options.Destroyed
	d.mu.Unlock()
	if cb != nil {
		cb(h)
	}
	return nil
}

func (d *Desktop) Pump() {
	d.mu.Lock()
	d.pumps++
	d.mu.Unlock()
}

var _ desktop.Desktop = (*Desktop)(nil)
