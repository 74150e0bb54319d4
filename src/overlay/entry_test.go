package overlay

import (
	"errors"
	"sync"
	"testing"

	"game-overlay/src/desktop"
	"game-overlay/src/desktop/desktoptest"
	"game-overlay/src/messages"
)

// recordingBus records posted messages and can be told to refuse them.
type recordingBus struct {
	mu     sync.Mutex
	posted []messages.Envelope
	fail   bool
}

var errRefused = errors.New("refused")

func (b *recordingBus) PostTo(from, to string, msg messages.Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fail {
		msg.Release()
		return errRefused
	}
	b.posted = append(b.posted, messages.Envelope{From: from, To: to, Message: msg})
	return nil
}

func (b *recordingBus) codes(to string) []messages.Code {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []messages.Code
	for _, env := range b.posted {
		if env.To == to {
			out = append(out, env.Message.Code)
		}
	}
	return out
}

type fixture struct {
	desk *desktoptest.Desktop
	bus  *recordingBus
	opts Options
}

func newFixture() *fixture {
	f := &fixture{desk: desktoptest.New(), bus: &recordingBus{}}
	f.opts = Options{Desktop: f.desk, Bus: f.bus, Method: desktop.SelfPaint}
	return f
}

// workingEntry returns a Working window entry mirroring a source at r.
func (f *fixture) workingEntry(t *testing.T, r desktop.Rect) (*Entry, desktop.Handle) {
	t.Helper()
	src := f.desk.AddSource(42, "game", r)
	e := NewWindowEntry(f.opts)
	if !e.BindSource(src) {
		t.Fatal("BindSource failed")
	}
	if _, err := e.Capture(); err != nil {
		t.Fatalf("initial capture: %v", err)
	}
	h, err := f.desk.CreateOverlayWindow(desktop.WindowOptions{Rect: e.Geometry()})
	if err != nil {
		t.Fatal(err)
	}
	if !e.AttachWindow(h) {
		t.Fatal("AttachWindow failed")
	}
	return e, src
}

func TestIDsAreUniqueAndStartAtFirstID(t *testing.T) {
	a := NewWindowEntry(Options{})
	b := NewWindowEntry(Options{})
	if a.ID() < FirstID || b.ID() <= a.ID() {
		t.Fatalf("unexpected ids %d, %d", a.ID(), b.ID())
	}
}

func TestStateOnlyAdvances(t *testing.T) {
	f := newFixture()
	e := NewWindowEntry(f.opts)
	if e.State() != StateCreating {
		t.Fatalf("expected creating, got %v", e.State())
	}
	if e.AttachWindow(0x10) {
		t.Fatal("AttachWindow must not skip SourceReady")
	}

	src := f.desk.AddSource(1, "src", desktop.Rect{Width: 10, Height: 10})
	if !e.BindSource(src) || e.State() != StateSourceReady {
		t.Fatalf("expected source-ready, got %v", e.State())
	}
	if e.BindSource(src) {
		t.Fatal("second BindSource must fail")
	}
	if !e.AttachWindow(0x10) || e.State() != StateWorking {
		t.Fatalf("expected working, got %v", e.State())
	}
	if e.AttachWindow(0x20) {
		t.Fatal("second AttachWindow must fail")
	}

	e.Teardown()
	if e.State() != StateDestroying {
		t.Fatalf("expected destroying, got %v", e.State())
	}
	if e.BindSource(src) || e.AttachWindow(0x30) {
		t.Fatal("destroying entry must not move backwards")
	}
	if e.Render() != 0 {
		t.Fatal("render handle must be cleared once destroying")
	}
}

func TestCaptureReusesBufferWhenSizeUnchanged(t *testing.T) {
	f := newFixture()
	e, src := f.workingEntry(t, desktop.Rect{X: 10, Y: 10, Width: 400, Height: 300})
	first := e.Buffer()

	f.desk.SetSourceRect(src, desktop.Rect{X: 50, Y: 10, Width: 400, Height: 300})
	if repaint, err := e.Capture(); err != nil || !repaint {
		t.Fatalf("capture: repaint=%v err=%v", repaint, err)
	}
	if e.Buffer() != first {
		t.Fatal("expected buffer identity preserved for unchanged size")
	}
	if len(f.desk.Surfaces()) != 1 {
		t.Fatalf("expected a single allocation, got %d", len(f.desk.Surfaces()))
	}
}

func TestCaptureReallocatesOnResizeAndReleasesOldOnce(t *testing.T) {
	f := newFixture()
	e, src := f.workingEntry(t, desktop.Rect{X: 10, Y: 10, Width: 400, Height: 300})
	old := e.Buffer().(*desktoptest.Surface)

	f.desk.SetSourceRect(src, desktop.Rect{X: 10, Y: 10, Width: 640, Height: 480})
	if _, err := e.Capture(); err != nil {
		t.Fatalf("capture: %v", err)
	}
	cur := e.Buffer().(*desktoptest.Surface)
	if cur == old || cur.W != 640 || cur.H != 480 {
		t.Fatalf("expected new 640x480 buffer, got %dx%d", cur.W, cur.H)
	}
	if old.Releases() != 1 {
		t.Fatalf("expected old buffer released once, got %d", old.Releases())
	}
	if cur.Releases() != 0 {
		t.Fatal("new buffer must not be released")
	}
}

func TestCaptureFailureKeepsPreviousBufferAndHides(t *testing.T) {
	f := newFixture()
	e, src := f.workingEntry(t, desktop.Rect{X: 0, Y: 0, Width: 100, Height: 100})
	f.desk.ShowWindow(e.Render(), true)
	prev := e.Buffer()

	f.desk.SetSourceRect(src, desktop.Rect{X: 0, Y: 0, Width: 200, Height: 100})
	f.desk.FailCapture(src, true)
	repaint, err := e.Capture()
	if err == nil || repaint {
		t.Fatalf("expected failed capture, repaint=%v err=%v", repaint, err)
	}
	if e.Buffer() != prev {
		t.Fatal("previous buffer must be kept after a failed acquisition")
	}
	surfaces := f.desk.Surfaces()
	if discarded := surfaces[len(surfaces)-1]; discarded.Releases() != 1 {
		t.Fatalf("expected the new buffer discarded once, got %d", discarded.Releases())
	}
	if f.desk.IsVisible(e.Render()) {
		t.Fatal("expected render window hidden after failed acquisition")
	}
	if e.Geometry().Width != 100 {
		t.Fatalf("geometry must not change on failure, got %v", e.Geometry())
	}

	f.desk.FailCapture(src, false)
	if _, err := e.Capture(); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if !f.desk.IsVisible(e.Render()) {
		t.Fatal("expected render window shown after recovery")
	}
}

func TestCaptureUnreadableSourceHidesButKeepsEntry(t *testing.T) {
	f := newFixture()
	e, src := f.workingEntry(t, desktop.Rect{Width: 100, Height: 100})
	f.desk.ShowWindow(e.Render(), true)

	f.desk.CloseSource(src)
	if _, err := e.Capture(); err == nil {
		t.Fatal("expected error for unreadable source")
	}
	if e.State() != StateWorking {
		t.Fatalf("entry must stay working, got %v", e.State())
	}
	if f.desk.IsVisible(e.Render()) {
		t.Fatal("expected render window hidden")
	}
}

func TestCaptureTracksSourceWithoutManualPosition(t *testing.T) {
	f := newFixture()
	e, src := f.workingEntry(t, desktop.Rect{X: 10, Y: 10, Width: 400, Height: 300})
	if got := e.Geometry(); got != (desktop.Rect{X: 10, Y: 10, Width: 400, Height: 300}) {
		t.Fatalf("unexpected initial geometry %v", got)
	}

	f.desk.SetSourceRect(src, desktop.Rect{X: 50, Y: 10, Width: 400, Height: 300})
	e.Capture()

	want := desktop.Rect{X: 50, Y: 10, Width: 400, Height: 300}
	if got := e.Geometry(); got != want {
		t.Fatalf("expected geometry %v, got %v", want, got)
	}
	w, _ := f.desk.Window(e.Render())
	if w.Rect != want {
		t.Fatalf("expected render window moved to %v, got %v", want, w.Rect)
	}
}

func TestManualPositionPreservesOriginAcrossResize(t *testing.T) {
	f := newFixture()
	e, src := f.workingEntry(t, desktop.Rect{X: 10, Y: 10, Width: 400, Height: 300})

	if !e.SetGeometry(desktop.Rect{X: 100, Y: 100, Width: 500, Height: 400}) {
		t.Fatal("SetGeometry failed")
	}
	if !e.ManualPosition() {
		t.Fatal("expected manual position")
	}
	if got := e.Geometry(); got != (desktop.Rect{X: 100, Y: 100, Width: 400, Height: 300}) {
		t.Fatalf("SetGeometry must preserve size, got %v", got)
	}

	// same-size capture keeps the manual origin
	e.Capture()
	if got := e.Geometry(); got != (desktop.Rect{X: 100, Y: 100, Width: 400, Height: 300}) {
		t.Fatalf("expected manual origin kept, got %v", got)
	}

	f.desk.SetSourceRect(src, desktop.Rect{X: 10, Y: 10, Width: 600, Height: 400})
	e.Capture()
	want := desktop.Rect{X: 100, Y: 100, Width: 600, Height: 400}
	if got := e.Geometry(); got != want {
		t.Fatalf("expected %v, got %v", want, got)
	}
	w, _ := f.desk.Window(e.Render())
	if w.Rect != want {
		t.Fatalf("expected render window at %v, got %v", want, w.Rect)
	}
}

func TestMoveToKeepsSize(t *testing.T) {
	f := newFixture()
	e, _ := f.workingEntry(t, desktop.Rect{X: 0, Y: 0, Width: 320, Height: 200})
	e.MoveTo(7, 9)
	if got := e.Geometry(); got != (desktop.Rect{X: 7, Y: 9, Width: 320, Height: 200}) {
		t.Fatalf("unexpected geometry %v", got)
	}
}

func TestTeardownIsIdempotent(t *testing.T) {
	f := newFixture()
	e, _ := f.workingEntry(t, desktop.Rect{Width: 100, Height: 100})
	buf := e.Buffer().(*desktoptest.Surface)
	render := e.Render()

	if !e.Teardown() {
		t.Fatal("first teardown must report true")
	}
	if e.Teardown() {
		t.Fatal("second teardown must report false")
	}
	if buf.Releases() != 1 {
		t.Fatalf("expected exactly one buffer release, got %d", buf.Releases())
	}
	w, _ := f.desk.Window(render)
	if !w.Destroyed {
		t.Fatal("expected render window destroyed")
	}
	if !e.OwnsWindow(render) {
		t.Fatal("entry must still recognise its closing window")
	}
	// completion comes from the window destroy path, not from the entry
	if codes := f.bus.codes(messages.ContextOverlays); len(codes) != 0 {
		t.Fatalf("unexpected notifications %v", codes)
	}
}

func TestTeardownWithoutWindowSignalsCompletion(t *testing.T) {
	f := newFixture()
	e := NewWindowEntry(f.opts)
	e.Teardown()
	codes := f.bus.codes(messages.ContextOverlays)
	if len(codes) != 1 || codes[0] != messages.EntryDestroyed {
		t.Fatalf("expected EntryDestroyed, got %v", codes)
	}
}

func TestTeardownFallsBackWhenNotificationFails(t *testing.T) {
	f := newFixture()
	var released []int
	f.opts.Released = func(id int) { released = append(released, id) }
	f.bus.fail = true

	e := NewWindowEntry(f.opts)
	e.Teardown()
	if len(released) != 1 || released[0] != e.ID() {
		t.Fatalf("expected direct release of %d, got %v", e.ID(), released)
	}
}

func TestOperationsOnDestroyingEntryAreNoOps(t *testing.T) {
	f := newFixture()
	e, _ := f.workingEntry(t, desktop.Rect{Width: 100, Height: 100})
	e.Teardown()
	before := len(f.desk.Surfaces())

	if _, err := e.Capture(); !errors.Is(err, ErrDestroying) {
		t.Fatalf("expected ErrDestroying, got %v", err)
	}
	if err := e.PaintFromExternalBuffer(make([]byte, 16), 2, 2); !errors.Is(err, ErrDestroying) {
		t.Fatalf("expected ErrDestroying, got %v", err)
	}
	if e.SetGeometry(desktop.Rect{X: 1, Y: 1}) {
		t.Fatal("SetGeometry must fail on a destroying entry")
	}
	if len(f.desk.Surfaces()) != before {
		t.Fatal("no buffer may be allocated after teardown")
	}
}

func TestPaintFromExternalBufferSuspendsSourceCapture(t *testing.T) {
	f := newFixture()
	e, src := f.workingEntry(t, desktop.Rect{Width: 2, Height: 2})
	captures := f.desk.Captures(src)

	pix := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}
	if err := e.PaintFromExternalBuffer(pix, 2, 2); err != nil {
		t.Fatalf("paint: %v", err)
	}
	if e.UpdateFromSource() {
		t.Fatal("expected updateFromSource cleared")
	}
	if !f.desk.IsVisible(e.Render()) {
		t.Fatal("expected render window visible")
	}
	buf := e.Buffer().(*desktoptest.Surface)
	if buf.Pix[15] != 16 || buf.Writes() != 1 {
		t.Fatalf("expected pixels written, writes=%d", buf.Writes())
	}

	repaint, err := e.Capture()
	if err != nil || !repaint {
		t.Fatalf("capture after push: repaint=%v err=%v", repaint, err)
	}
	if f.desk.Captures(src) != captures {
		t.Fatal("source must not be captured once frames are pushed")
	}
}

func TestPaintFromExternalBufferRejectsShortFrame(t *testing.T) {
	f := newFixture()
	e, _ := f.workingEntry(t, desktop.Rect{Width: 2, Height: 2})
	if err := e.PaintFromExternalBuffer(make([]byte, 3), 2, 2); err == nil {
		t.Fatal("expected error for short frame")
	}
	if !e.UpdateFromSource() {
		t.Fatal("rejected frame must not suspend source capture")
	}
}

func TestSetTransparencyAppliesOnlyWithWindow(t *testing.T) {
	f := newFixture()
	e := NewWindowEntry(f.opts)
	e.SetTransparency(0x40) // no window yet

	e2, _ := f.workingEntry(t, desktop.Rect{Width: 10, Height: 10})
	e2.SetTransparency(0x40)
	w, _ := f.desk.Window(e2.Render())
	if w.Alpha != 0x40 {
		t.Fatalf("expected alpha 0x40, got %#x", w.Alpha)
	}
}

func TestHideAndReveal(t *testing.T) {
	f := newFixture()
	e, _ := f.workingEntry(t, desktop.Rect{Width: 10, Height: 10})
	e.Reveal()
	if !f.desk.IsVisible(e.Render()) {
		t.Fatal("expected visible after Reveal")
	}
	e.Hide()
	if f.desk.IsVisible(e.Render()) {
		t.Fatal("expected hidden after Hide")
	}
	if e.State() != StateWorking {
		t.Fatal("Hide must not change state")
	}
}

func TestCaptureDoesNotRevealWhileHidden(t *testing.T) {
	f := newFixture()
	f.opts.Showing = func() bool { return false }
	e, _ := f.workingEntry(t, desktop.Rect{Width: 10, Height: 10})
	e.Capture()
	if f.desk.IsVisible(e.Render()) {
		t.Fatal("capture must not show overlays while they are hidden")
	}
}

func TestPaintSurfaceOnlyWhileWorking(t *testing.T) {
	f := newFixture()
	e, _ := f.workingEntry(t, desktop.Rect{Width: 10, Height: 10})
	if e.PaintSurface() == nil {
		t.Fatal("expected a paint surface while working")
	}
	e.Teardown()
	if e.PaintSurface() != nil {
		t.Fatal("expected no paint surface after teardown")
	}
}
