//go:build windows

package notification

import (
	"unsafe"

	"golang.org/x/sys/windows"
)

const (
	mbOK              = 0x00000000
	mbIconError       = 0x00000010
	mbIconInformation = 0x00000040
	mbSetForeground   = 0x00010000
	mbTopmost         = 0x00040000
)

var (
	user32          = windows.NewLazySystemDLL("user32.dll")
	procMessageBoxW = user32.NewProc("MessageBoxW")
)

// ShowBlockingError displays a modal error box and returns once the user
// dismisses it.
func ShowBlockingError(title, message string) {
	_ = messageBox(title, message, mbOK|mbIconError|mbSetForeground|mbTopmost)
}

func showPopup(title, text string) error {
	return messageBox(title, text, mbOK|mbIconInformation|mbSetForeground)
}

func messageBox(title, message string, flags uintptr) error {
	titlePtr, err := windows.UTF16PtrFromString(title)
	if err != nil {
		return err
	}
	messagePtr, err := windows.UTF16PtrFromString(message)
	if err != nil {
		return err
	}
	if err := procMessageBoxW.Find(); err != nil {
		return err
	}
	procMessageBoxW.Call(
		0,
		uintptr(unsafe.Pointer(messagePtr)),
		uintptr(unsafe.Pointer(titlePtr)),
		flags,
	)
	return nil
}
