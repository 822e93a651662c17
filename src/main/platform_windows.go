//go:build windows

package main

import (
	"log"
	"syscall"
)

// preparePlatform opts into per-monitor DPI awareness so captures of
// scaled displays are not blurred, and logs the virtual screen layout.
func preparePlatform() {
	shcore := syscall.NewLazyDLL("Shcore.dll")
	setProcessDpiAwareness := shcore.NewProc("SetProcessDpiAwareness")
	const processPerMonitorDPIAware = 2
	if err := setProcessDpiAwareness.Find(); err == nil {
		if ret, _, _ := setProcessDpiAwareness.Call(uintptr(processPerMonitorDPIAware)); ret != 0 {
			log.Printf("main: SetProcessDpiAwareness failed, code %d", ret)
		}
	} else {
		user32 := syscall.NewLazyDLL("user32.dll")
		setProcessDPIAware := user32.NewProc("SetProcessDPIAware")
		if err := setProcessDPIAware.Find(); err == nil {
			_, _, _ = setProcessDPIAware.Call()
		} else {
			log.Printf("main: no DPI awareness API available")
		}
	}

	getSystemMetrics := syscall.NewLazyDLL("user32.dll").NewProc("GetSystemMetrics")
	metric := func(index int) int {
		v, _, _ := getSystemMetrics.Call(uintptr(index))
		return int(int32(v))
	}
	// SM_CMONITORS, SM_XVIRTUALSCREEN, SM_YVIRTUALSCREEN, SM_CXVIRTUALSCREEN, SM_CYVIRTUALSCREEN
	log.Printf("main: %d monitors, virtual screen x:%d y:%d w:%d h:%d",
		metric(80), metric(76), metric(77), metric(78), metric(79))
}
