package singleinstance

import (
	"net"
	"os"
	"strconv"
)

const (
	residentHost     = "127.0.0.1"
	defaultPortStart = 49600
	defaultPortEnd   = 49650
)

// portRange reads RODSPOT_PORT_START / RODSPOT_PORT_END (inclusive). Unset or
// invalid values fall back to the defaults; the result is clamped to
// [1024, 65535] and ordered.
func portRange() (int, int) {
	start := envPort("RODSPOT_PORT_START", defaultPortStart)
	end := envPort("RODSPOT_PORT_END", defaultPortEnd)
	if start < 1024 {
		start = 1024
	}
	if end > 65535 {
		end = 65535
	}
	if end < start {
		start, end = end, start
	}
	return start, end
}

func envPort(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func residentAddr(port int) string {
	return net.JoinHostPort(residentHost, strconv.Itoa(port))
}
