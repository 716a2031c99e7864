//go:build !windows

package runtimeinit

// macOS reports points and X11 reports pixels without any opt-in.
func enableDPIAwareness() {}
