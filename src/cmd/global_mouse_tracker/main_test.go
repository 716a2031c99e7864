package main

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"rodspot/src/hook"
	"rodspot/src/hook/hooktest"
	"rodspot/src/protocol"
)

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func useAdapter(t *testing.T, a hook.Adapter) {
	t.Helper()
	prev := newAdapter
	newAdapter = func(hook.Options) hook.Adapter { return a }
	t.Cleanup(func() { newAdapter = prev })
}

func TestUsageErrors(t *testing.T) {
	useAdapter(t, hooktest.New())

	tests := []struct {
		name string
		args []string
	}{
		{"no arguments", []string{"global_mouse_tracker"}},
		{"missing height", []string{"global_mouse_tracker", "0", "0", "600"}},
		{"garbage", []string{"global_mouse_tracker", "a", "b", "c", "d"}},
		{"empty rect", []string{"global_mouse_tracker", "0", "0", "0", "0"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr lockedBuffer
			code := run(context.Background(), tt.args, strings.NewReader(""), &stdout, &stderr)
			if code != protocol.ExitUsage {
				t.Errorf("Expected exit %d, got %d", protocol.ExitUsage, code)
			}
			if stdout.String() != "" {
				t.Errorf("Expected nothing on stdout, got %q", stdout.String())
			}
			if !strings.Contains(stderr.String(), "usage") {
				t.Errorf("Expected usage message on stderr, got %q", stderr.String())
			}
		})
	}
}

func TestHelpGoesToStderr(t *testing.T) {
	var stdout, stderr lockedBuffer
	code := run(context.Background(), []string{"global_mouse_tracker", "--help"}, strings.NewReader(""), &stdout, &stderr)
	if code != protocol.ExitOK {
		t.Errorf("Expected exit 0, got %d", code)
	}
	if stdout.String() != "" {
		t.Errorf("Expected stdout to stay clean, got %q", stdout.String())
	}
	if !strings.Contains(stderr.String(), protocol.Prefix) {
		t.Errorf("Expected help text on stderr, got %q", stderr.String())
	}
}

func TestHookFailureExitCode(t *testing.T) {
	a := hooktest.New()
	a.InstallErr = hook.ErrDisplay
	useAdapter(t, a)

	var stdout, stderr lockedBuffer
	code := run(context.Background(), []string{"global_mouse_tracker", "100", "100", "600", "440"}, strings.NewReader(""), &stdout, &stderr)
	if code != protocol.ExitHook {
		t.Errorf("Expected exit %d, got %d", protocol.ExitHook, code)
	}
	if !strings.Contains(stderr.String(), hook.ErrDisplay.Error()) {
		t.Errorf("Expected display error on stderr, got %q", stderr.String())
	}
}

func TestBadButtonsConfig(t *testing.T) {
	useAdapter(t, hooktest.New())
	t.Setenv("TRACKER_BUTTONS", "thumb")

	var stdout, stderr lockedBuffer
	code := run(context.Background(), []string{"global_mouse_tracker", "100", "100", "600", "440"}, strings.NewReader(""), &stdout, &stderr)
	if code != protocol.ExitUsage {
		t.Errorf("Expected exit %d, got %d", protocol.ExitUsage, code)
	}
}

func TestNegativeOriginAndStdinShutdown(t *testing.T) {
	a := hooktest.New()
	useAdapter(t, a)
	t.Setenv("TRACKER_EXIT_ON_STDIN_EOF", "true")
	t.Setenv("TRACKER_DEBOUNCE_MS", "0")

	stdinR, stdinW := io.Pipe()
	var stdout, stderr lockedBuffer

	done := make(chan int, 1)
	go func() {
		done <- run(context.Background(),
			[]string{"global_mouse_tracker", "-1920", "-200", "1920", "1080"},
			stdinR, &stdout, &stderr)
	}()

	a.Feed(hook.Click{X: -1, Y: 879, Button: hook.ButtonLeft, When: time.Now()})

	deadline := time.Now().Add(3 * time.Second)
	for stdout.String() == "" && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if got := stdout.String(); got != "TILE_CLICKED 14 10 -1 879\n" {
		t.Errorf("Unexpected stdout %q (stderr %q)", got, stderr.String())
	}

	stdinW.Close()
	select {
	case code := <-done:
		if code != protocol.ExitOK {
			t.Errorf("Expected clean exit, got %d (stderr %q)", code, stderr.String())
		}
	case <-time.After(3 * time.Second):
		t.Fatal("tracker did not stop on stdin EOF")
	}
}
