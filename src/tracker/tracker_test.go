package tracker

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"rodspot/src/grid"
	"rodspot/src/hook"
	"rodspot/src/hook/hooktest"
	"rodspot/src/protocol"
)

var testRect = grid.Rect{X: 100, Y: 100, Width: 600, Height: 440}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, io.ErrClosedPipe }

func click(x, y int, at time.Time) hook.Click {
	return hook.Click{X: x, Y: y, Button: hook.ButtonLeft, When: at}
}

func TestParseArgs(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected grid.Rect
		wantErr  bool
	}{
		{"original defaults", []string{"100", "100", "600", "440"}, testRect, false},
		{"negative origin", []string{"-1920", "-200", "1920", "1080"}, grid.Rect{X: -1920, Y: -200, Width: 1920, Height: 1080}, false},
		{"no args", nil, grid.Rect{}, true},
		{"three args", []string{"1", "2", "3"}, grid.Rect{}, true},
		{"five args", []string{"1", "2", "3", "4", "5"}, grid.Rect{}, true},
		{"not a number", []string{"1", "two", "3", "4"}, grid.Rect{}, true},
		{"float", []string{"1.5", "2", "3", "4"}, grid.Rect{}, true},
		{"zero width", []string{"0", "0", "0", "440"}, grid.Rect{}, true},
		{"negative height", []string{"0", "0", "600", "-1"}, grid.Rect{}, true},
		{"int32 limits", []string{"-2147483648", "0", "2147483647", "1"}, grid.Rect{X: -2147483648, Y: 0, Width: 2147483647, Height: 1}, false},
		{"x beyond int32", []string{"9223372036854775000", "0", "600", "440"}, grid.Rect{}, true},
		{"width beyond int32", []string{"0", "0", "2147483648", "440"}, grid.Rect{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseArgs(tt.args)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseArgs(%v) error = %v, wantErr %v", tt.args, err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, ErrUsage) {
					t.Errorf("Expected ErrUsage, got %v", err)
				}
				if ExitCode(err) != protocol.ExitUsage {
					t.Errorf("Expected exit code %d, got %d", protocol.ExitUsage, ExitCode(err))
				}
				return
			}
			if got != tt.expected {
				t.Errorf("ParseArgs(%v) = %v, expected %v", tt.args, got, tt.expected)
			}
		})
	}
}

func TestDebouncer(t *testing.T) {
	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	d := newDebouncer(5, 100*time.Millisecond)

	steps := []struct {
		name   string
		c      hook.Click
		accept bool
	}{
		{"first", click(10, 10, t0), true},
		{"duplicate", click(12, 13, t0.Add(20*time.Millisecond)), false},
		{"far away", click(30, 10, t0.Add(40*time.Millisecond)), true},
		{"radius is exclusive", click(35, 10, t0.Add(50*time.Millisecond)), true},
		{"after window", click(35, 10, t0.Add(150*time.Millisecond)), true},
		{"window measured from last accepted", click(36, 11, t0.Add(240*time.Millisecond)), false},
	}
	for _, s := range steps {
		if got := d.accept(s.c); got != s.accept {
			t.Errorf("%s: accept = %v, expected %v", s.name, got, s.accept)
		}
	}

	diag := newDebouncer(5, 100*time.Millisecond)
	diag.accept(click(100, 100, t0))
	if !diag.accept(click(104, 104, t0.Add(10*time.Millisecond))) {
		t.Errorf("Expected press 5.66px away to be accepted")
	}
	if diag.accept(click(107, 107, t0.Add(20*time.Millisecond))) {
		t.Errorf("Expected press 4.24px away to be dropped")
	}

	off := newDebouncer(5, 0)
	if !off.accept(click(1, 1, t0)) || !off.accept(click(1, 1, t0)) {
		t.Errorf("Expected zero window to disable debouncing")
	}
}

func TestRunEmitsHitsOnly(t *testing.T) {
	a := hooktest.New()
	var out syncBuffer
	tr := New(Options{Rect: testRect, Adapter: a, Out: &out})

	t0 := time.Now()
	a.Feed(
		click(400, 320, t0),
		click(50, 50, t0.Add(time.Second)),
		click(699, 539, t0.Add(2*time.Second)),
		click(700, 320, t0.Add(3*time.Second)),
	)
	a.End()

	err := tr.Run(context.Background())
	if !errors.Is(err, ErrHookLost) {
		t.Fatalf("Expected ErrHookLost once the feed ends, got %v", err)
	}
	if ExitCode(err) != protocol.ExitRuntime {
		t.Errorf("Expected exit code %d, got %d", protocol.ExitRuntime, ExitCode(err))
	}

	expected := "TILE_CLICKED 7 5 400 320\nTILE_CLICKED 14 10 699 539\n"
	if out.String() != expected {
		t.Errorf("Expected output %q, got %q", expected, out.String())
	}
	if tr.State() != StateTerminated {
		t.Errorf("Expected terminated state, got %s", tr.State())
	}
	if a.CloseCalls() != 1 {
		t.Errorf("Expected hook to be closed once, got %d", a.CloseCalls())
	}
}

func TestRunInstallFailure(t *testing.T) {
	a := hooktest.New()
	a.InstallErr = hook.ErrPermission
	var out syncBuffer

	tr := New(Options{Rect: testRect, Adapter: a, Out: &out})
	err := tr.Run(context.Background())

	if !errors.Is(err, ErrHookInstall) || !errors.Is(err, hook.ErrPermission) {
		t.Fatalf("Expected ErrHookInstall wrapping ErrPermission, got %v", err)
	}
	if ExitCode(err) != protocol.ExitHook {
		t.Errorf("Expected exit code %d, got %d", protocol.ExitHook, ExitCode(err))
	}
	if out.String() != "" {
		t.Errorf("Expected no output, got %q", out.String())
	}
	if tr.State() != StateTerminated {
		t.Errorf("Expected terminated state, got %s", tr.State())
	}
}

func TestRunCancelIsClean(t *testing.T) {
	a := hooktest.New()
	var out syncBuffer
	tr := New(Options{Rect: testRect, Adapter: a, Out: &out})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tr.Run(ctx) }()

	a.Feed(click(400, 320, time.Now()))
	deadline := time.Now().Add(2 * time.Second)
	for out.String() == "" && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if tr.State() != StateRunning {
		t.Errorf("Expected running state, got %s", tr.State())
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Expected clean shutdown, got %v", err)
		}
		if ExitCode(err) != protocol.ExitOK {
			t.Errorf("Expected exit code 0")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if a.Installed() {
		t.Errorf("Expected hook to be released")
	}
}

func TestRunStdinEOFStops(t *testing.T) {
	a := hooktest.New()
	var out syncBuffer
	tr := New(Options{Rect: testRect, Adapter: a, Out: &out, Stdin: strings.NewReader("")})

	done := make(chan error, 1)
	go func() { done <- tr.Run(context.Background()) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Expected nil error on stdin EOF, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after stdin EOF")
	}
}

func TestRunWriteFailure(t *testing.T) {
	a := hooktest.New()
	tr := New(Options{Rect: testRect, Adapter: a, Out: failingWriter{}})

	a.Feed(click(50, 50, time.Now()), click(400, 320, time.Now().Add(time.Second)))

	err := tr.Run(context.Background())
	if !errors.Is(err, ErrOutput) {
		t.Fatalf("Expected ErrOutput, got %v", err)
	}
	if ExitCode(err) != protocol.ExitRuntime {
		t.Errorf("Expected exit code %d, got %d", protocol.ExitRuntime, ExitCode(err))
	}
}

func TestRunDebouncesDoubleReports(t *testing.T) {
	a := hooktest.New()
	var out syncBuffer
	tr := New(Options{
		Rect:           testRect,
		Adapter:        a,
		Out:            &out,
		DebounceRadius: 5,
		DebounceWindow: 100 * time.Millisecond,
	})

	t0 := time.Now()
	a.Feed(click(400, 320, t0), click(401, 321, t0.Add(10*time.Millisecond)))
	a.End()
	_ = tr.Run(context.Background())

	if n := strings.Count(out.String(), protocol.Prefix); n != 1 {
		t.Errorf("Expected 1 event after debounce, got %d (%q)", n, out.String())
	}
}
