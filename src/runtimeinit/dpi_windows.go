//go:build windows

package runtimeinit

import (
	"log"

	"golang.org/x/sys/windows"
)

var (
	shcore                     = windows.NewLazySystemDLL("shcore.dll")
	user32                     = windows.NewLazySystemDLL("user32.dll")
	procSetProcessDpiAwareness = shcore.NewProc("SetProcessDpiAwareness")
	procSetProcessDPIAware     = user32.NewProc("SetProcessDPIAware")
)

// enableDPIAwareness makes hook coordinates and display bounds physical
// pixels. Windows otherwise scales both per monitor.
func enableDPIAwareness() {
	const processPerMonitorDPIAware = 2
	if err := procSetProcessDpiAwareness.Find(); err == nil {
		ret, _, _ := procSetProcessDpiAwareness.Call(uintptr(processPerMonitorDPIAware))
		if ret != 0 {
			log.Printf("DPI: Failed to set per-monitor DPI awareness, error code: %d", ret)
		}
		return
	}

	log.Printf("DPI: Shcore.SetProcessDpiAwareness not available, trying fallback")
	if err := procSetProcessDPIAware.Find(); err == nil {
		if ret, _, _ := procSetProcessDPIAware.Call(); ret == 0 {
			log.Printf("DPI: Failed to set system DPI awareness (fallback)")
		}
	} else {
		log.Printf("DPI: SetProcessDPIAware not available, no DPI awareness set")
	}
}
