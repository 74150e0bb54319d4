// Package desktop wraps the window-system calls the overlay engine needs:
// source window geometry, capture surfaces, layered overlay windows and
// foreground/process window lookups.
package desktop

import (
	"errors"
	"fmt"
	"strings"
)

// BytesPerPixel is the pixel stride of every surface and pushed frame (BGRA).
const BytesPerPixel = 4

var (
	// ErrUnsupported is returned on platforms without layered window support.
	ErrUnsupported = errors.New("desktop: platform not supported")
	// ErrNoWindow is returned when a handle does not refer to a live window.
	ErrNoWindow = errors.New("desktop: no such window")
)

// Handle is an opaque window handle owned by the OS.
type Handle uintptr

// Rect is a window rectangle in virtual-screen coordinates.
type Rect struct {
	X      int `yaml:"x"`
	Y      int `yaml:"y"`
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// Empty reports whether the rectangle has no area.
func (r Rect) Empty() bool { return r.Width <= 0 || r.Height <= 0 }

// SameSize reports whether both rectangles have identical dimensions.
func (r Rect) SameSize(o Rect) bool { return r.Width == o.Width && r.Height == o.Height }

// MoveTo returns the rectangle translated to origin (x, y).
func (r Rect) MoveTo(x, y int) Rect { return Rect{X: x, Y: y, Width: r.Width, Height: r.Height} }

func (r Rect) String() string {
	return fmt.Sprintf("(%d,%d %dx%d)", r.X, r.Y, r.Width, r.Height)
}

// CaptureMethod selects how pixels are pulled from a source window.
type CaptureMethod int

const (
	// ScreenCopy copies the screen area under the source window.
	ScreenCopy CaptureMethod = iota
	// SelfPaint asks the source window to render itself into the surface.
	SelfPaint
	// MessagePaint sends a synchronous print message to the source window.
	MessagePaint
)

func (m CaptureMethod) String() string {
	switch m {
	case ScreenCopy:
		return "screen"
	case SelfPaint:
		return "print"
	case MessagePaint:
		return "message"
	default:
		return "unknown"
	}
}

// ParseCaptureMethod maps a config value to a CaptureMethod. Unknown values
// fall back to SelfPaint.
func ParseCaptureMethod(value string) CaptureMethod {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "screen", "bitblt", "screencopy":
		return ScreenCopy
	case "message", "message_print", "wm_print":
		return MessagePaint
	default:
		return SelfPaint
	}
}

// Surface is a device-context/bitmap pair sized to one overlay.
// Release must be safe to call more than once; only the first call frees.
type Surface interface {
	Width() int
	Height() int
	// WritePixels overwrites the surface with width*height BGRA pixels.
	WritePixels(pix []byte, width, height int) error
	Release()
}

// WindowOptions describes a transparent, topmost, click-through overlay window.
type WindowOptions struct {
	Rect     Rect
	Alpha    uint8
	ColorKey bool
	Visible  bool
	// Paint returns the surface to blit into the window, or nil.
	Paint func() Surface
	// Destroyed runs on the owning thread once the window is gone.
	Destroyed func(h Handle)
}

// Desktop is the window-system backend. Window-creating calls and Pump must
// run on the thread that owns the overlay windows.
type Desktop interface {
	WindowRect(h Handle) (Rect, bool)
	IsWindow(h Handle) bool
	WindowTitle(h Handle) string
	ForegroundWindow() Handle
	WindowProcessID(h Handle) uint32
	// TopLevelWindows lists visible, unowned top-level windows of pid.
	TopLevelWindows(pid uint32) []Handle

	NewSurface(source Handle, width, height int) (Surface, error)
	Acquire(method CaptureMethod, source Handle, area Rect, dst Surface) error

	CreateOverlayWindow(opts WindowOptions) (Handle, error)
	SetTransparency(h Handle, alpha uint8)
	MoveWindow(h Handle, r Rect)
	ShowWindow(h Handle, show bool)
	IsVisible(h Handle) bool
	Invalidate(h Handle)
	DestroyWindow(h Handle) error

	// Pump dispatches pending OS messages without blocking.
	Pump()
}

// ValidatePixels checks that pix holds at least width*height BGRA pixels.
func ValidatePixels(pix []byte, width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("invalid frame dimensions %dx%d", width, height)
	}
	if need := width * height * BytesPerPixel; len(pix) < need {
		return fmt.Errorf("frame too short: have %d bytes, need %d", len(pix), need)
	}
	return nil
}
