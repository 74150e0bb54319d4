//go:build windows

package desktop

import (
	"fmt"
	"log"
	"sync"
	"syscall"
	"unsafe"

	"game-overlay/src/screenshot"

	"github.com/lxn/win"
	"golang.org/x/sys/windows"
)

const overlayClassName = "GameOverlayWindow"

var (
	user32                         = windows.NewLazySystemDLL("user32.dll")
	procSetLayeredWindowAttributes = user32.NewProc("SetLayeredWindowAttributes")
	procPrintWindow                = user32.NewProc("PrintWindow")
	procIsWindow                   = user32.NewProc("IsWindow")
	procEnumWindows                = user32.NewProc("EnumWindows")
	procGetWindowTextW             = user32.NewProc("GetWindowTextW")
)

const (
	lwaColorKey   = 0x1
	lwaAlpha      = 0x2
	colorKeyWhite = 0x00FFFFFF
	colorKeyAlpha = 0xD0
)

var (
	// the window procedure is a package-level callback, so it needs a way
	// back to the backend that owns the overlay windows
	activeMu sync.Mutex
	active   *winDesktop

	enumWindowsCallback = syscall.NewCallback(enumWindowsProc)
)

type winDesktop struct {
	mu        sync.Mutex
	windows   map[win.HWND]WindowOptions
	classOnce sync.Once
	classErr  error
	className *uint16
}

// New returns the Win32 backend. Only one backend may own overlay windows.
func New() (Desktop, error) {
	d := &winDesktop{windows: make(map[win.HWND]WindowOptions)}
	activeMu.Lock()
	active = d
	activeMu.Unlock()
	return d, nil
}

func (d *winDesktop) WindowRect(h Handle) (Rect, bool) {
	if h == 0 {
		return Rect{}, false
	}
	var r win.RECT
	if !win.GetWindowRect(win.HWND(h), &r) {
		return Rect{}, false
	}
	return Rect{X: int(r.Left), Y: int(r.Top), Width: int(r.Right - r.Left), Height: int(r.Bottom - r.Top)}, true
}

func (d *winDesktop) IsWindow(h Handle) bool {
	ret, _, _ := procIsWindow.Call(uintptr(h))
	return ret != 0
}

func (d *winDesktop) WindowTitle(h Handle) string {
	var buf [256]uint16
	procGetWindowTextW.Call(uintptr(h), uintptr(unsafe.Pointer(&buf[0])), uintptr(len(buf)))
	return windows.UTF16ToString(buf[:])
}

func (d *winDesktop) ForegroundWindow() Handle { return Handle(win.GetForegroundWindow()) }

func (d *winDesktop) WindowProcessID(h Handle) uint32 {
	var pid uint32
	win.GetWindowThreadProcessId(win.HWND(h), &pid)
	return pid
}

type enumState struct {
	pid   uint32
	found []Handle
}

func enumWindowsProc(hwnd uintptr, lParam uintptr) uintptr {
	st := (*enumState)(unsafe.Pointer(lParam))
	var pid uint32
	win.GetWindowThreadProcessId(win.HWND(hwnd), &pid)
	if pid == st.pid && win.GetWindow(win.HWND(hwnd), win.GW_OWNER) == 0 && win.IsWindowVisible(win.HWND(hwnd)) {
		st.found = append(st.found, Handle(hwnd))
	}
	return 1
}

func (d *winDesktop) TopLevelWindows(pid uint32) []Handle {
	st := &enumState{pid: pid}
	procEnumWindows.Call(enumWindowsCallback, uintptr(unsafe.Pointer(st)))
	return st.found
}

// gdiSurface is a memory DC with a compatible bitmap selected into it.
type gdiSurface struct {
	hdc   win.HDC
	hbmp  win.HBITMAP
	old   win.HGDIOBJ
	w, h  int
	once  sync.Once
	mu    sync.Mutex
	freed bool
}

func (d *winDesktop) NewSurface(source Handle, width, height int) (Surface, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid surface size %dx%d", width, height)
	}
	owner := win.HWND(source)
	screen := win.GetDC(owner)
	if screen == 0 {
		// sources owned by the web-content worker are not real windows
		owner = 0
		screen = win.GetDC(0)
	}
	if screen == 0 {
		return nil, fmt.Errorf("GetDC failed for %#x", source)
	}
	defer win.ReleaseDC(owner, screen)

	hdc := win.CreateCompatibleDC(screen)
	if hdc == 0 {
		return nil, fmt.Errorf("CreateCompatibleDC failed")
	}
	hbmp := win.CreateCompatibleBitmap(screen, int32(width), int32(height))
	if hbmp == 0 {
		win.DeleteDC(hdc)
		return nil, fmt.Errorf("CreateCompatibleBitmap %dx%d failed", width, height)
	}
	old := win.SelectObject(hdc, win.HGDIOBJ(hbmp))
	return &gdiSurface{hdc: hdc, hbmp: hbmp, old: old, w: width, h: height}, nil
}

func (s *gdiSurface) Width() int  { return s.w }
func (s *gdiSurface) Height() int { return s.h }

func (s *gdiSurface) WritePixels(pix []byte, width, height int) error {
	if err := ValidatePixels(pix, width, height); err != nil {
		return err
	}
	if width != s.w || height != s.h {
		return fmt.Errorf("frame %dx%d does not match surface %dx%d", width, height, s.w, s.h)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.freed {
		return fmt.Errorf("surface released")
	}
	bmi := win.BITMAPINFO{
		BmiHeader: win.BITMAPINFOHEADER{
			BiSize:        uint32(unsafe.Sizeof(win.BITMAPINFOHEADER{})),
			BiWidth:       int32(width),
			BiHeight:      -int32(height), // top-down
			BiPlanes:      1,
			BiBitCount:    32,
			BiCompression: win.BI_RGB,
		},
	}
	// SetDIBits needs the bitmap deselected from the DC
	win.SelectObject(s.hdc, s.old)
	lines := win.SetDIBits(s.hdc, s.hbmp, 0, uint32(height), &pix[0], &bmi, win.DIB_RGB_COLORS)
	win.SelectObject(s.hdc, win.HGDIOBJ(s.hbmp))
	if lines == 0 {
		return fmt.Errorf("SetDIBits wrote no scan lines")
	}
	return nil
}

func (s *gdiSurface) Release() {
	s.once.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.freed = true
		win.SelectObject(s.hdc, s.old)
		win.DeleteDC(s.hdc)
		win.DeleteObject(win.HGDIOBJ(s.hbmp))
	})
}

func (d *winDesktop) Acquire(method CaptureMethod, source Handle, area Rect, dst Surface) error {
	switch method {
	case ScreenCopy:
		pix, err := screenshot.CaptureRegion(screenshot.Region{X: area.X, Y: area.Y, Width: area.Width, Height: area.Height})
		if err != nil {
			return err
		}
		return dst.WritePixels(pix, area.Width, area.Height)
	case SelfPaint:
		s, ok := dst.(*gdiSurface)
		if !ok {
			return fmt.Errorf("self paint needs a GDI surface")
		}
		ret, _, err := procPrintWindow.Call(uintptr(source), uintptr(s.hdc), 0)
		if ret == 0 {
			return fmt.Errorf("PrintWindow: %v", err)
		}
		return nil
	case MessagePaint:
		s, ok := dst.(*gdiSurface)
		if !ok {
			return fmt.Errorf("message paint needs a GDI surface")
		}
		flags := uintptr(win.PRF_CHILDREN | win.PRF_CLIENT | win.PRF_ERASEBKGND | win.PRF_NONCLIENT | win.PRF_OWNED)
		if ret := win.SendMessage(win.HWND(source), win.WM_PRINT, uintptr(s.hdc), flags); ret != 0 {
			return fmt.Errorf("WM_PRINT returned %#x", ret)
		}
		return nil
	default:
		return fmt.Errorf("unknown capture method %d", method)
	}
}

func (d *winDesktop) registerClass() error {
	d.classOnce.Do(func() {
		d.className = syscall.StringToUTF16Ptr(overlayClassName)
		wndClass := win.WNDCLASSEX{
			CbSize:        uint32(unsafe.Sizeof(win.WNDCLASSEX{})),
			Style:         win.CS_HREDRAW | win.CS_VREDRAW,
			LpfnWndProc:   syscall.NewCallback(overlayWndProc),
			HInstance:     win.GetModuleHandle(nil),
			HCursor:       win.LoadCursor(0, win.MAKEINTRESOURCE(win.IDC_ARROW)),
			HbrBackground: win.HBRUSH(win.COLOR_WINDOW + 1),
			LpszClassName: d.className,
		}
		if atom := win.RegisterClassEx(&wndClass); atom == 0 {
			d.classErr = fmt.Errorf("failed to register overlay window class")
		}
	})
	return d.classErr
}

func (d *winDesktop) CreateOverlayWindow(opts WindowOptions) (Handle, error) {
	if err := d.registerClass(); err != nil {
		return 0, err
	}
	const exStyle = win.WS_EX_LAYERED | win.WS_EX_TOPMOST | win.WS_EX_NOACTIVATE | win.WS_EX_TRANSPARENT
	hwnd := win.CreateWindowEx(exStyle, d.className, nil, win.WS_POPUP, 0, 0, 0, 0, 0, 0, win.GetModuleHandle(nil), nil)
	if hwnd == 0 {
		return 0, fmt.Errorf("CreateWindowEx failed")
	}

	d.mu.Lock()
	d.windows[hwnd] = opts
	d.mu.Unlock()

	if opts.ColorKey {
		setLayered(hwnd, colorKeyWhite, colorKeyAlpha, lwaColorKey)
	} else {
		setLayered(hwnd, colorKeyWhite, opts.Alpha, lwaAlpha)
	}
	r := opts.Rect
	win.SetWindowPos(hwnd, win.HWND_TOPMOST, int32(r.X), int32(r.Y), int32(r.Width), int32(r.Height), win.SWP_NOREDRAW)
	d.ShowWindow(Handle(hwnd), opts.Visible)
	return Handle(hwnd), nil
}

func setLayered(hwnd win.HWND, key uint32, alpha uint8, flags uint32) {
	ret, _, err := procSetLayeredWindowAttributes.Call(uintptr(hwnd), uintptr(key), uintptr(alpha), uintptr(flags))
	if ret == 0 {
		log.Printf("desktop: SetLayeredWindowAttributes(%#x) failed: %v", hwnd, err)
	}
}

func (d *winDesktop) SetTransparency(h Handle, alpha uint8) {
	setLayered(win.HWND(h), colorKeyWhite, alpha, lwaAlpha)
}

func (d *winDesktop) MoveWindow(h Handle, r Rect) {
	win.MoveWindow(win.HWND(h), int32(r.X), int32(r.Y), int32(r.Width), int32(r.Height), false)
}

func (d *winDesktop) ShowWindow(h Handle, show bool) {
	if show {
		win.ShowWindow(win.HWND(h), win.SW_SHOWNA)
	} else {
		win.ShowWindow(win.HWND(h), win.SW_HIDE)
	}
}

func (d *winDesktop) IsVisible(h Handle) bool { return win.IsWindowVisible(win.HWND(h)) }

func (d *winDesktop) Invalidate(h Handle) { win.InvalidateRect(win.HWND(h), nil, true) }

func (d *winDesktop) DestroyWindow(h Handle) error {
	if !win.DestroyWindow(win.HWND(h)) {
		return fmt.Errorf("DestroyWindow(%#x): %w", h, ErrNoWindow)
	}
	return nil
}

func (d *winDesktop) Pump() {
	var msg win.MSG
	for win.PeekMessage(&msg, 0, 0, 0, win.PM_REMOVE) {
		win.TranslateMessage(&msg)
		win.DispatchMessage(&msg)
	}
}

func (d *winDesktop) lookup(hwnd win.HWND) (WindowOptions, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	opts, ok := d.windows[hwnd]
	return opts, ok
}

func (d *winDesktop) forget(hwnd win.HWND) (WindowOptions, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	opts, ok := d.windows[hwnd]
	delete(d.windows, hwnd)
	return opts, ok
}

func overlayWndProc(hwnd win.HWND, msg uint32, wParam, lParam uintptr) uintptr {
	activeMu.Lock()
	d := active
	activeMu.Unlock()
	if d == nil {
		return win.DefWindowProc(hwnd, msg, wParam, lParam)
	}

	switch msg {
	case win.WM_PAINT:
		var ps win.PAINTSTRUCT
		hdc := win.BeginPaint(hwnd, &ps)
		if opts, ok := d.lookup(hwnd); ok && opts.Paint != nil {
			if s, ok := opts.Paint().(*gdiSurface); ok && s != nil {
				s.mu.Lock()
				if !s.freed && !win.BitBlt(hdc, 0, 0, int32(s.w), int32(s.h), s.hdc, 0, 0, win.SRCCOPY) {
					log.Printf("desktop: paint of %#x failed", hwnd)
				}
				s.mu.Unlock()
			}
		}
		win.EndPaint(hwnd, &ps)
		return 0

	case win.WM_ERASEBKGND:
		return 1

	case win.WM_DESTROY:
		if opts, ok := d.forget(hwnd); ok && opts.Destroyed != nil {
			opts.Destroyed(Handle(hwnd))
		}
		return 0
	}

	return win.DefWindowProc(hwnd, msg, wParam, lParam)
}
