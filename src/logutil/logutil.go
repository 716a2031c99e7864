package logutil

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
)

const (
	logFileName  = "rodspot_debug.log"
	maxSizeBytes = 10 * 1024 * 1024 // 10 MB
	maxArchives  = 3
)

var debugEnabled atomic.Bool

// Setup routes the standard logger to stderr and, when enabled, also to a
// rotating debug file (10MB, max 3 archives). Stdout is never touched: the
// tracker owns it for click events.
func Setup(enableFileLogging bool, level string) {
	SetLevel(level)
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	if !enableFileLogging {
		log.SetOutput(os.Stderr)
		return
	}
	rotateIfNeeded()
	f, err := os.OpenFile(logFileName, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open log file: %v\n", err)
		log.SetOutput(os.Stderr)
		return
	}
	log.SetOutput(io.MultiWriter(os.Stderr, &rotatingWriter{f: f}))
}

// SetLevel toggles Debugf output. Only "debug" enables it.
func SetLevel(level string) {
	debugEnabled.Store(strings.EqualFold(strings.TrimSpace(level), "debug"))
}

// DebugEnabled reports whether Debugf writes anything.
func DebugEnabled() bool { return debugEnabled.Load() }

// Debugf logs through the standard logger when the level is debug.
func Debugf(format string, args ...any) {
	if !debugEnabled.Load() {
		return
	}
	_ = log.Output(2, "DEBUG: "+fmt.Sprintf(format, args...))
}

type rotatingWriter struct{ f *os.File }

func (w *rotatingWriter) Write(p []byte) (int, error) {
	// naive rotation check per write
	if st, err := w.f.Stat(); err == nil && st.Size()+int64(len(p)) > maxSizeBytes {
		_ = w.f.Close()
		rotateFile(logFileName)
		nf, err := os.OpenFile(logFileName, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return 0, err
		}
		w.f = nf
	}
	return w.f.Write(p)
}

func rotateIfNeeded() {
	if st, err := os.Stat(logFileName); err == nil && st.Size() > maxSizeBytes {
		rotateFile(logFileName)
	}
}

// rotateFile shifts base to base.1, base.1 to base.2 and so on; the oldest
// archive is discarded.
func rotateFile(base string) {
	_ = os.Remove(archiveName(base, maxArchives))
	for i := maxArchives - 1; i >= 1; i-- {
		_ = os.Rename(archiveName(base, i), archiveName(base, i+1))
	}
	_ = os.Rename(base, archiveName(base, 1))
}

func archiveName(base string, n int) string {
	return filepath.Join(filepath.Dir(base), fmt.Sprintf("%s.%d", filepath.Base(base), n))
}
