//go:build windows

package input

import (
	"fmt"
	"sync"
	"syscall"
	"unsafe"

	"game-overlay/src/desktop"

	"github.com/lxn/win"
	"golang.org/x/sys/windows"
)

const (
	whKeyboardLL = 13
	whMouseLL    = 14
)

var (
	user32                  = windows.NewLazySystemDLL("user32.dll")
	imm32                   = windows.NewLazySystemDLL("imm32.dll")
	procSetWindowsHookExW   = user32.NewProc("SetWindowsHookExW")
	procUnhookWindowsHookEx = user32.NewProc("UnhookWindowsHookEx")
	procCallNextHookEx      = user32.NewProc("CallNextHookEx")
	procImmCreateContext    = imm32.NewProc("ImmCreateContext")
	procImmAssociateContext = imm32.NewProc("ImmAssociateContext")
	procImmDestroyContext   = imm32.NewProc("ImmDestroyContext")

	keyboardProc = syscall.NewCallback(lowLevelKeyboardProc)
	mouseProc    = syscall.NewCallback(lowLevelMouseProc)

	// hook procedures have no user data, so they find the backend here
	activeMu sync.Mutex
	active   *hookBackend
)

type kbdLLHookStruct struct {
	VkCode      uint32
	ScanCode    uint32
	Flags       uint32
	Time        uint32
	DwExtraInfo uintptr
}

type msLLHookStruct struct {
	Pt          win.POINT
	MouseData   uint32
	Flags       uint32
	Time        uint32
	DwExtraInfo uintptr
}

// hookBackend installs low-level hooks on the calling thread, which must
// pump messages for the hooks to fire.
type hookBackend struct {
	mu       sync.Mutex
	keyboard Handler
	mouse    Handler
}

// NewBackend returns the low-level hook backend.
func NewBackend() (Backend, error) {
	b := &hookBackend{}
	activeMu.Lock()
	active = b
	activeMu.Unlock()
	return b, nil
}

func currentBackend() *hookBackend {
	activeMu.Lock()
	defer activeMu.Unlock()
	return active
}

func setHook(id int, proc uintptr) (uintptr, error) {
	h, _, err := procSetWindowsHookExW.Call(uintptr(id), proc, uintptr(win.GetModuleHandle(nil)), 0)
	if h == 0 {
		return 0, fmt.Errorf("SetWindowsHookEx(%d): %v", id, err)
	}
	return h, nil
}

func (b *hookBackend) InstallKeyboard(h Handler) (func(), error) {
	hook, err := setHook(whKeyboardLL, keyboardProc)
	if err != nil {
		return nil, err
	}
	b.mu.Lock()
	b.keyboard = h
	b.mu.Unlock()
	return func() {
		procUnhookWindowsHookEx.Call(hook)
		b.mu.Lock()
		b.keyboard = nil
		b.mu.Unlock()
	}, nil
}

func (b *hookBackend) InstallMouse(h Handler) (func(), error) {
	hook, err := setHook(whMouseLL, mouseProc)
	if err != nil {
		return nil, err
	}
	b.mu.Lock()
	b.mouse = h
	b.mu.Unlock()
	return func() {
		procUnhookWindowsHookEx.Call(hook)
		b.mu.Lock()
		b.mouse = nil
		b.mu.Unlock()
	}, nil
}

func (b *hookBackend) OverrideIME(target desktop.Handle) (func(), error) {
	ctx, _, err := procImmCreateContext.Call()
	if ctx == 0 {
		return nil, fmt.Errorf("ImmCreateContext: %v", err)
	}
	// a zero previous context only means the window had none
	prev, _, _ := procImmAssociateContext.Call(uintptr(target), ctx)
	return func() {
		procImmAssociateContext.Call(uintptr(target), prev)
		procImmDestroyContext.Call(ctx)
	}, nil
}

func (b *hookBackend) handlers() (Handler, Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.keyboard, b.mouse
}

func lowLevelKeyboardProc(nCode, wParam, lParam uintptr) uintptr {
	if int32(nCode) >= 0 {
		if b := currentBackend(); b != nil {
			if h, _ := b.handlers(); h != nil {
				kb := (*kbdLLHookStruct)(unsafe.Pointer(lParam))
				ev := Event{
					Kind:    KeyEvent,
					Message: uint32(wParam),
					Key:     uint16(kb.VkCode),
					Down:    wParam == win.WM_KEYDOWN || wParam == win.WM_SYSKEYDOWN,
				}
				if h(ev) {
					return 1
				}
			}
		}
	}
	ret, _, _ := procCallNextHookEx.Call(0, nCode, wParam, lParam)
	return ret
}

func lowLevelMouseProc(nCode, wParam, lParam uintptr) uintptr {
	if int32(nCode) >= 0 {
		if b := currentBackend(); b != nil {
			if _, h := b.handlers(); h != nil {
				ms := (*msLLHookStruct)(unsafe.Pointer(lParam))
				ev := Event{
					Kind:    MouseEvent,
					Message: uint32(wParam),
					Move:    wParam == win.WM_MOUSEMOVE,
					Down:    wParam == win.WM_LBUTTONDOWN || wParam == win.WM_RBUTTONDOWN || wParam == win.WM_MBUTTONDOWN,
					X:       int(ms.Pt.X),
					Y:       int(ms.Pt.Y),
				}
				if h(ev) {
					return 1
				}
			}
		}
	}
	ret, _, _ := procCallNextHookEx.Call(0, nCode, wParam, lParam)
	return ret
}
