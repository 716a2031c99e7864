// Package supervisor owns the tracker child process: it spawns it for a
// rectangle, relays its events, and replaces it when the rectangle changes.
// A live tracker is never reconfigured in place.
package supervisor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"rodspot/src/config"
	"rodspot/src/grid"
	"rodspot/src/logutil"
	"rodspot/src/protocol"
)

var (
	ErrNotRunning     = errors.New("tracker not running")
	ErrAlreadyRunning = errors.New("tracker already running")
	ErrInvalidRect    = errors.New("invalid tracking rectangle")
	ErrRestartLimit   = errors.New("tracker restart limit reached")
)

// State of the supervised tracker.
type State int

const (
	StateNone State = iota
	StateStarting
	StateRunning
)

func (s State) String() string {
	switch s {
	case StateNone:
		return "none"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	default:
		return "unknown"
	}
}

type Options struct {
	// TrackerPath is the tracker executable.
	TrackerPath string
	// Env is appended to the host environment.
	Env          []string
	RestartDelay time.Duration
	KillGrace    time.Duration
	MaxRestarts  int
}

// Exit describes how a tracker process ended.
type Exit struct {
	Rect grid.Rect
	Code int
	Kind protocol.ExitKind
	// Intentional is set when the supervisor asked the process to stop.
	Intentional bool
	Err         error
}

type child struct {
	cmd         *exec.Cmd
	stdin       io.WriteCloser
	rect        grid.Rect
	intentional atomic.Bool
	done        chan struct{}
}

type Supervisor struct {
	opts   Options
	events chan protocol.CellEvent
	exits  chan Exit

	// opMu serializes Start, Update, Restart and Stop.
	opMu sync.Mutex

	mu       sync.Mutex
	state    State
	rect     grid.Rect
	cur      *child
	restarts int
}

func New(opts Options) *Supervisor {
	if opts.KillGrace <= 0 {
		opts.KillGrace = 500 * time.Millisecond
	}
	if opts.MaxRestarts < 0 {
		opts.MaxRestarts = 0
	}
	return &Supervisor{
		opts:   opts,
		events: make(chan protocol.CellEvent, 64),
		exits:  make(chan Exit, 8),
	}
}

// Events carries every cell event of every tracker this supervisor spawns.
func (s *Supervisor) Events() <-chan protocol.CellEvent { return s.events }

// Exits reports each tracker termination.
func (s *Supervisor) Exits() <-chan Exit { return s.exits }

func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Rect returns the rectangle of the live tracker, or the last one requested.
func (s *Supervisor) Rect() grid.Rect {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rect
}

// Start spawns a tracker for rect. A spawn failure leaves the state at none.
func (s *Supervisor) Start(ctx context.Context, rect grid.Rect) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if !rect.Valid() {
		return fmt.Errorf("%w: %s", ErrInvalidRect, rect)
	}
	s.mu.Lock()
	if s.cur != nil {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	s.restarts = 0
	s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	return s.spawn(rect)
}

// Update replaces the live tracker with one for rect: terminate, wait for
// exit, pause RestartDelay, spawn. An unchanged rectangle with a live tracker
// is a no-op.
func (s *Supervisor) Update(ctx context.Context, rect grid.Rect) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if !rect.Valid() {
		return fmt.Errorf("%w: %s", ErrInvalidRect, rect)
	}
	s.mu.Lock()
	cur := s.cur
	if cur != nil && cur.rect == rect {
		s.mu.Unlock()
		return nil
	}
	s.restarts = 0
	s.mu.Unlock()

	if cur != nil {
		log.Printf("supervisor: restarting tracker for %s", rect)
		s.terminate(cur)
		if err := s.pause(ctx); err != nil {
			return err
		}
	}
	return s.spawn(rect)
}

// Restart respawns the tracker for the last rectangle after an unexpected
// exit, up to MaxRestarts times between rectangle changes.
func (s *Supervisor) Restart(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	if s.cur != nil {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	if !s.rect.Valid() {
		s.mu.Unlock()
		return ErrNotRunning
	}
	if s.restarts >= s.opts.MaxRestarts {
		n := s.restarts
		s.mu.Unlock()
		return fmt.Errorf("%w (%d)", ErrRestartLimit, n)
	}
	s.restarts++
	n := s.restarts
	rect := s.rect
	s.mu.Unlock()

	log.Printf("supervisor: restart attempt %d/%d for %s", n, s.opts.MaxRestarts, rect)
	if err := s.pause(ctx); err != nil {
		return err
	}
	return s.spawn(rect)
}

// Stop terminates the live tracker and waits for it to exit.
func (s *Supervisor) Stop() error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	cur := s.cur
	s.mu.Unlock()
	if cur == nil {
		return ErrNotRunning
	}
	s.terminate(cur)
	return nil
}

func (s *Supervisor) pause(ctx context.Context) error {
	if s.opts.RestartDelay <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(s.opts.RestartDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (s *Supervisor) spawn(rect grid.Rect) error {
	s.mu.Lock()
	s.state = StateStarting
	s.rect = rect
	s.mu.Unlock()

	cmd := exec.Command(s.opts.TrackerPath, rect.Args()...)
	cmd.Env = append(os.Environ(), config.ExitOnStdinEOFEnvVar+"=true")
	cmd.Env = append(cmd.Env, s.opts.Env...)

	c := &child{cmd: cmd, rect: rect, done: make(chan struct{})}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return s.spawnFailed(rect, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return s.spawnFailed(rect, err)
	}
	if c.stdin, err = cmd.StdinPipe(); err != nil {
		return s.spawnFailed(rect, err)
	}
	if err := cmd.Start(); err != nil {
		return s.spawnFailed(rect, err)
	}

	s.mu.Lock()
	s.cur = c
	s.state = StateRunning
	s.mu.Unlock()
	log.Printf("supervisor: tracker pid %d started for %s", cmd.Process.Pid, rect)

	go s.watch(c, stdout, stderr)
	return nil
}

func (s *Supervisor) spawnFailed(rect grid.Rect, err error) error {
	s.mu.Lock()
	s.state = StateNone
	s.mu.Unlock()
	return fmt.Errorf("starting tracker %q for %s: %w", s.opts.TrackerPath, rect, err)
}

func (s *Supervisor) watch(c *child, stdout, stderr io.Reader) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		err := protocol.Scan(stdout, s.emit, func(line string) {
			logutil.Debugf("supervisor: ignoring tracker line %q", line)
		})
		if err != nil {
			log.Printf("supervisor: reading tracker stdout: %v", err)
		}
	}()
	go func() {
		defer wg.Done()
		sc := bufio.NewScanner(stderr)
		for sc.Scan() {
			log.Printf("tracker[%d]: %s", c.cmd.Process.Pid, sc.Text())
		}
	}()
	wg.Wait()

	waitErr := c.cmd.Wait()
	_ = c.stdin.Close()

	ex := Exit{Rect: c.rect, Intentional: c.intentional.Load()}
	var exitErr *exec.ExitError
	switch {
	case waitErr == nil:
		ex.Code = protocol.ExitOK
	case errors.As(waitErr, &exitErr):
		ex.Code = exitErr.ExitCode()
	default:
		ex.Code = -1
		ex.Err = waitErr
	}
	ex.Kind = protocol.ClassifyExit(ex.Code)
	if ex.Err == nil && ex.Kind != protocol.ExitKindClean {
		ex.Err = fmt.Errorf("tracker exited with status %d (%s)", ex.Code, ex.Kind)
	}

	s.mu.Lock()
	if s.cur == c {
		s.cur = nil
		s.state = StateNone
	}
	s.mu.Unlock()

	log.Printf("supervisor: tracker for %s exited: code=%d kind=%s intentional=%v", c.rect, ex.Code, ex.Kind, ex.Intentional)
	select {
	case s.exits <- ex:
	default:
		log.Printf("supervisor: exit report dropped, nobody listening")
	}
	close(c.done)
}

// emit never blocks the tracker's pipe reader.
func (s *Supervisor) emit(e protocol.CellEvent) {
	select {
	case s.events <- e:
	default:
		log.Printf("supervisor: event queue full, dropping %s", protocol.Format(e))
	}
}

// terminate asks the process to exit, kills it after KillGrace, and waits
// until its exit has been reported.
func (s *Supervisor) terminate(c *child) {
	c.intentional.Store(true)
	_ = c.stdin.Close()
	if err := signalTerminate(c.cmd.Process); err != nil {
		logutil.Debugf("supervisor: terminate signal: %v", err)
	}

	t := time.NewTimer(s.opts.KillGrace)
	defer t.Stop()
	select {
	case <-c.done:
		return
	case <-t.C:
	}
	log.Printf("supervisor: tracker pid %d ignored termination, killing", c.cmd.Process.Pid)
	_ = c.cmd.Process.Kill()
	<-c.done
}
