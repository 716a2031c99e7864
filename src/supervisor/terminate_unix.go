//go:build !windows

package supervisor

import (
	"os"

	"golang.org/x/sys/unix"
)

// signalTerminate sends SIGTERM so the tracker can release its hook and exit 0.
func signalTerminate(p *os.Process) error {
	return p.Signal(unix.SIGTERM)
}
