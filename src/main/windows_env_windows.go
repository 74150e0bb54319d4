//go:build windows

package main

import (
	"log"

	"golang.org/x/sys/windows"
)

const (
	processPerMonitorDPIAware = 2

	smXVirtualScreen  = 76
	smYVirtualScreen  = 77
	smCXVirtualScreen = 78
	smCYVirtualScreen = 79
	smCMonitors       = 80
)

var (
	shcore = windows.NewLazySystemDLL("Shcore.dll")
	user32 = windows.NewLazySystemDLL("user32.dll")

	procSetProcessDpiAwareness = shcore.NewProc("SetProcessDpiAwareness")
	procSetProcessDPIAware     = user32.NewProc("SetProcessDPIAware")
	procGetSystemMetrics       = user32.NewProc("GetSystemMetrics")
)

// prepareProcess makes window rectangles and captures use physical pixels.
// It must run before the first window is created.
func prepareProcess() {
	enableDPIAwareness()
	logMonitorConfiguration()
}

func enableDPIAwareness() {
	if err := procSetProcessDpiAwareness.Find(); err == nil {
		ret, _, _ := procSetProcessDpiAwareness.Call(uintptr(processPerMonitorDPIAware))
		if ret == 0 {
			log.Printf("DPI: per-monitor awareness enabled")
		} else {
			log.Printf("DPI: SetProcessDpiAwareness failed, code %#x", ret)
		}
		return
	}

	if err := procSetProcessDPIAware.Find(); err != nil {
		log.Printf("DPI: no DPI awareness API available")
		return
	}
	if ret, _, _ := procSetProcessDPIAware.Call(); ret != 0 {
		log.Printf("DPI: system awareness enabled (fallback)")
	} else {
		log.Printf("DPI: SetProcessDPIAware failed")
	}
}

func metric(index int) int {
	ret, _, _ := procGetSystemMetrics.Call(uintptr(index))
	return int(int32(ret))
}

func logMonitorConfiguration() {
	if err := procGetSystemMetrics.Find(); err != nil {
		return
	}
	log.Printf("MONITOR: %d monitors, virtual screen x:%d y:%d w:%d h:%d",
		metric(smCMonitors),
		metric(smXVirtualScreen), metric(smYVirtualScreen),
		metric(smCXVirtualScreen), metric(smCYVirtualScreen))
}
