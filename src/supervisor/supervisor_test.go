package supervisor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"

	"rodspot/src/config"
	"rodspot/src/grid"
	"rodspot/src/hook"
	"rodspot/src/hook/hooktest"
	"rodspot/src/protocol"
	"rodspot/src/tracker"
)

const (
	helperEnv       = "RODSPOT_HELPER_TRACKER"
	helperModeEnv   = "RODSPOT_HELPER_MODE"
	helperClicksEnv = "RODSPOT_HELPER_CLICKS"
)

// TestMain lets the test binary stand in for the tracker executable: the
// supervisor spawns os.Args[0] with the helper variable set.
func TestMain(m *testing.M) {
	if os.Getenv(helperEnv) == "1" {
		os.Exit(helperTracker(os.Args[1:]))
	}
	os.Exit(m.Run())
}

// helperTracker runs the real tracker pipeline with a scripted hook.
func helperTracker(args []string) int {
	switch os.Getenv(helperModeEnv) {
	case "crash":
		fmt.Fprintln(os.Stderr, "helper: crashing")
		return 9
	case "stubborn":
		signal.Ignore(syscall.SIGTERM)
		time.Sleep(time.Minute)
		return 0
	}

	rect, err := tracker.ParseArgs(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return tracker.ExitCode(err)
	}

	a := hooktest.New()
	if os.Getenv(helperModeEnv) == "hookfail" {
		a.InstallErr = hook.ErrPermission
	}
	for _, pair := range strings.Split(os.Getenv(helperClicksEnv), ";") {
		xy := strings.Split(pair, ",")
		if len(xy) != 2 {
			continue
		}
		x, _ := strconv.Atoi(xy[0])
		y, _ := strconv.Atoi(xy[1])
		a.Feed(hook.Click{X: x, Y: y, Button: hook.ButtonLeft, When: time.Now()})
	}
	// Noise the host must skip.
	fmt.Println("tracker banner")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := tracker.Options{Rect: rect, Adapter: a, Out: os.Stdout}
	if os.Getenv(config.ExitOnStdinEOFEnvVar) == "true" {
		opts.Stdin = os.Stdin
	}
	err = tracker.New(opts).Run(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
	return tracker.ExitCode(err)
}

func newHelperSupervisor(t *testing.T, mode string, clicks string, tweak func(*Options)) *Supervisor {
	t.Helper()
	opts := Options{
		TrackerPath: os.Args[0],
		Env: []string{
			helperEnv + "=1",
			helperModeEnv + "=" + mode,
			helperClicksEnv + "=" + clicks,
		},
		RestartDelay: 10 * time.Millisecond,
		KillGrace:    5 * time.Second,
		MaxRestarts:  2,
	}
	if tweak != nil {
		tweak(&opts)
	}
	s := New(opts)
	t.Cleanup(func() { _ = s.Stop() })
	return s
}

func nextEvent(t *testing.T, s *Supervisor) protocol.CellEvent {
	t.Helper()
	select {
	case e := <-s.Events():
		return e
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for cell event")
	}
	return protocol.CellEvent{}
}

func nextExit(t *testing.T, s *Supervisor) Exit {
	t.Helper()
	select {
	case ex := <-s.Exits():
		return ex
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for tracker exit")
	}
	return Exit{}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state    State
		expected string
	}{
		{StateNone, "none"},
		{StateStarting, "starting"},
		{StateRunning, "running"},
		{State(42), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.expected {
			t.Errorf("State(%d).String() = %q, expected %q", tt.state, got, tt.expected)
		}
	}
}

func TestUpdateRespawnsWithNewRect(t *testing.T) {
	rectA := grid.Rect{X: 100, Y: 100, Width: 600, Height: 440}
	rectB := grid.Rect{X: 0, Y: 0, Width: 1500, Height: 1100}
	s := newHelperSupervisor(t, "run", "400,320;50,50", nil)
	ctx := context.Background()

	if err := s.Start(ctx, rectA); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := nextEvent(t, s); got != (protocol.CellEvent{Col: 7, Row: 5, X: 400, Y: 320}) {
		t.Errorf("Unexpected first event %+v", got)
	}
	if s.State() != StateRunning {
		t.Errorf("Expected running, got %s", s.State())
	}

	if err := s.Update(ctx, rectB); err != nil {
		t.Fatalf("Update: %v", err)
	}
	ex := nextExit(t, s)
	if !ex.Intentional || ex.Rect != rectA {
		t.Errorf("Expected intentional exit of the first tracker, got %+v", ex)
	}
	if ex.Kind != protocol.ExitKindClean {
		t.Errorf("Expected SIGTERM to yield a clean exit, got %s (%v)", ex.Kind, ex.Err)
	}

	want := []protocol.CellEvent{
		{Col: 4, Row: 3, X: 400, Y: 320},
		{Col: 0, Row: 0, X: 50, Y: 50},
	}
	for i, w := range want {
		if got := nextEvent(t, s); got != w {
			t.Errorf("event %d = %+v, expected %+v", i, got, w)
		}
	}
	if s.Rect() != rectB {
		t.Errorf("Expected rect %s, got %s", rectB, s.Rect())
	}

	// Same rectangle: nothing is restarted.
	if err := s.Update(ctx, rectB); err != nil {
		t.Fatalf("Update same rect: %v", err)
	}
	select {
	case ex := <-s.Exits():
		t.Fatalf("Unexpected exit on no-op update: %+v", ex)
	case <-time.After(200 * time.Millisecond):
	}

	if err := s.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if ex := nextExit(t, s); !ex.Intentional {
		t.Errorf("Expected intentional exit on Stop, got %+v", ex)
	}
	if s.State() != StateNone {
		t.Errorf("Expected none after Stop, got %s", s.State())
	}
	if err := s.Stop(); !errors.Is(err, ErrNotRunning) {
		t.Errorf("Expected ErrNotRunning on second Stop, got %v", err)
	}
}

func TestUpdateToSmallerRectDropsOutsideClick(t *testing.T) {
	rectA := grid.Rect{X: 100, Y: 100, Width: 600, Height: 440}
	small := grid.Rect{X: 0, Y: 0, Width: 300, Height: 220}
	s := newHelperSupervisor(t, "run", "400,320;50,50", nil)
	ctx := context.Background()

	if err := s.Start(ctx, rectA); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := nextEvent(t, s); got != (protocol.CellEvent{Col: 7, Row: 5, X: 400, Y: 320}) {
		t.Errorf("Unexpected first event %+v", got)
	}

	if err := s.Update(ctx, small); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if ex := nextExit(t, s); !ex.Intentional || ex.Rect != rectA {
		t.Errorf("Expected intentional exit of the first tracker, got %+v", ex)
	}

	// Clicks replay in order, so the first event after the respawn shows
	// whether 400,320 was reported.
	if got := nextEvent(t, s); got != (protocol.CellEvent{Col: 2, Row: 2, X: 50, Y: 50}) {
		t.Fatalf("Expected 400,320 to be outside %s, first event was %+v", small, got)
	}
	select {
	case e := <-s.Events():
		t.Errorf("Unexpected extra event %+v", e)
	case <-time.After(200 * time.Millisecond):
	}
	if s.Rect() != small {
		t.Errorf("Expected rect %s, got %s", small, s.Rect())
	}
}

func TestStartRejectsSecondTracker(t *testing.T) {
	s := newHelperSupervisor(t, "run", "", nil)
	rect := grid.Rect{X: 0, Y: 0, Width: 10, Height: 10}
	if err := s.Start(context.Background(), rect); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.Start(context.Background(), rect); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("Expected ErrAlreadyRunning, got %v", err)
	}
}

func TestStartInvalidRect(t *testing.T) {
	s := New(Options{TrackerPath: os.Args[0]})
	err := s.Start(context.Background(), grid.Rect{Width: 0, Height: 10})
	if !errors.Is(err, ErrInvalidRect) {
		t.Errorf("Expected ErrInvalidRect, got %v", err)
	}
}

func TestStartMissingBinary(t *testing.T) {
	s := New(Options{TrackerPath: filepath.Join(t.TempDir(), "no-such-tracker")})
	err := s.Start(context.Background(), grid.Rect{X: 0, Y: 0, Width: 10, Height: 10})
	if err == nil {
		t.Fatal("Expected spawn failure")
	}
	if s.State() != StateNone {
		t.Errorf("Expected none after failed spawn, got %s", s.State())
	}
}

func TestHookFailureIsReported(t *testing.T) {
	s := newHelperSupervisor(t, "hookfail", "", nil)
	if err := s.Start(context.Background(), grid.Rect{X: 0, Y: 0, Width: 10, Height: 10}); err != nil {
		t.Fatalf("Start: %v", err)
	}

	ex := nextExit(t, s)
	if ex.Code != protocol.ExitHook || ex.Kind != protocol.ExitKindHook {
		t.Errorf("Expected hook exit, got %+v", ex)
	}
	if ex.Intentional || ex.Kind.Retryable() {
		t.Errorf("Hook failure must be unintentional and not retryable: %+v", ex)
	}
}

func TestRestartLimit(t *testing.T) {
	s := newHelperSupervisor(t, "crash", "", nil)
	ctx := context.Background()
	if err := s.Start(ctx, grid.Rect{X: 0, Y: 0, Width: 10, Height: 10}); err != nil {
		t.Fatalf("Start: %v", err)
	}

	for i := 0; i < 2; i++ {
		ex := nextExit(t, s)
		if ex.Kind != protocol.ExitKindCrash || !ex.Kind.Retryable() {
			t.Fatalf("Expected retryable crash, got %+v", ex)
		}
		if err := s.Restart(ctx); err != nil {
			t.Fatalf("Restart %d: %v", i+1, err)
		}
	}
	nextExit(t, s)
	if err := s.Restart(ctx); !errors.Is(err, ErrRestartLimit) {
		t.Errorf("Expected ErrRestartLimit, got %v", err)
	}
}

func TestStopKillsStubbornTracker(t *testing.T) {
	s := newHelperSupervisor(t, "stubborn", "", func(o *Options) {
		o.KillGrace = 200 * time.Millisecond
	})
	if err := s.Start(context.Background(), grid.Rect{X: 0, Y: 0, Width: 10, Height: 10}); err != nil {
		t.Fatalf("Start: %v", err)
	}

	start := time.Now()
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Stop took %v", elapsed)
	}
	ex := nextExit(t, s)
	if !ex.Intentional {
		t.Errorf("Expected intentional exit, got %+v", ex)
	}
	if ex.Kind == protocol.ExitKindClean {
		t.Errorf("Expected a killed tracker, got clean exit")
	}
}
