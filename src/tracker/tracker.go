// Package tracker runs the hook-to-stdout pipeline of the tracker process:
// install the global hook, resolve each press against the grid, emit hits.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"rodspot/src/grid"
	"rodspot/src/hook"
	"rodspot/src/logutil"
	"rodspot/src/protocol"
)

var (
	// ErrHookInstall wraps every failure to acquire the hook.
	ErrHookInstall = errors.New("hook install failed")
	// ErrHookLost means the hook stopped delivering events while running.
	ErrHookLost = errors.New("hook event stream ended")
	// ErrOutput means an event could not be written, usually because the
	// reading end of stdout is gone.
	ErrOutput = errors.New("event output failed")
)

// State is the tracker lifetime.
type State int

const (
	StateStarting State = iota
	StateRunning
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

type Options struct {
	Rect    grid.Rect
	Adapter hook.Adapter
	// Out receives protocol lines only.
	Out io.Writer
	// Stdin, when set, is drained; EOF ends the run.
	Stdin          io.Reader
	DebounceRadius int
	DebounceWindow time.Duration
}

type Tracker struct {
	opts Options
	out  *protocol.Writer
	deb  *debouncer

	mu    sync.Mutex
	state State
}

func New(opts Options) *Tracker {
	return &Tracker{
		opts:  opts,
		out:   protocol.NewWriter(opts.Out),
		deb:   newDebouncer(opts.DebounceRadius, opts.DebounceWindow),
		state: StateStarting,
	}
}

func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Tracker) setState(s State) {
	t.mu.Lock()
	prev := t.state
	t.state = s
	t.mu.Unlock()
	logutil.Debugf("tracker: %s -> %s", prev, s)
}

// Run blocks until ctx is cancelled (nil error), stdin reaches EOF (nil
// error), or the pipeline fails.
func (t *Tracker) Run(ctx context.Context) error {
	t.setState(StateStarting)
	if err := t.opts.Adapter.Install(); err != nil {
		t.setState(StateTerminated)
		return fmt.Errorf("%w: %w", ErrHookInstall, err)
	}
	defer func() {
		if err := t.opts.Adapter.Close(); err != nil {
			log.Printf("tracker: closing hook: %v", err)
		}
		t.setState(StateTerminated)
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if t.opts.Stdin != nil {
		go watchStdin(t.opts.Stdin, cancel)
	}

	t.setState(StateRunning)
	log.Printf("tracker: tracking %s", t.opts.Rect)

	for {
		c, err := t.opts.Adapter.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("%w: %w", ErrHookLost, err)
		}
		if err := t.handle(c); err != nil {
			return err
		}
	}
}

func (t *Tracker) handle(c hook.Click) error {
	if !t.deb.accept(c) {
		logutil.Debugf("tracker: debounced %s click at %d,%d", c.Button, c.X, c.Y)
		return nil
	}

	cell, ok := grid.ResolveDefault(t.opts.Rect, grid.Point{X: c.X, Y: c.Y})
	if !ok {
		logutil.Debugf("tracker: click at %d,%d outside %s", c.X, c.Y, t.opts.Rect)
		return nil
	}

	ev := protocol.CellEvent{Col: cell.Col, Row: cell.Row, X: c.X, Y: c.Y}
	if err := t.out.Write(ev); err != nil {
		return fmt.Errorf("%w: %w", ErrOutput, err)
	}
	return nil
}

func watchStdin(r io.Reader, cancel context.CancelFunc) {
	_, err := io.Copy(io.Discard, r)
	if err != nil {
		log.Printf("tracker: stdin closed: %v", err)
	} else {
		log.Printf("tracker: stdin reached EOF, shutting down")
	}
	cancel()
}

// ExitCode maps a Run or ParseArgs result to the process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return protocol.ExitOK
	case errors.Is(err, ErrUsage):
		return protocol.ExitUsage
	case errors.Is(err, ErrHookInstall):
		return protocol.ExitHook
	default:
		return protocol.ExitRuntime
	}
}
