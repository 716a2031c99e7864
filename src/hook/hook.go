// Package hook observes system-wide mouse button presses outside the
// process's own windows. Exactly one implementation is compiled per GOOS.
package hook

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"
)

var (
	// ErrPermission means the OS refused the hook because the process lacks
	// Accessibility / Input Monitoring trust.
	ErrPermission = errors.New("input monitoring permission required")
	// ErrDisplay means no X display could be reached.
	ErrDisplay = errors.New("no X display reachable")
	// ErrInstall covers any other refusal to install the hook.
	ErrInstall = errors.New("failed to install mouse hook")
	// ErrUnsupported is returned on platforms without an adapter.
	ErrUnsupported = errors.New("global mouse hook not supported on this platform")
	// ErrClosed is returned by Next after Close.
	ErrClosed = errors.New("hook closed")
)

// Button identifies a mouse button.
type Button int

const (
	ButtonLeft Button = iota + 1
	ButtonRight
	ButtonMiddle
)

func (b Button) String() string {
	switch b {
	case ButtonLeft:
		return "left"
	case ButtonRight:
		return "right"
	case ButtonMiddle:
		return "middle"
	default:
		return "unknown"
	}
}

// ParseButtons converts a comma separated list such as "left,right".
func ParseButtons(s string) ([]Button, error) {
	var out []Button
	for _, part := range strings.Split(s, ",") {
		switch strings.ToLower(strings.TrimSpace(part)) {
		case "":
			continue
		case "left", "primary":
			out = append(out, ButtonLeft)
		case "right", "secondary":
			out = append(out, ButtonRight)
		case "middle", "center":
			out = append(out, ButtonMiddle)
		default:
			return nil, fmt.Errorf("unknown mouse button %q", part)
		}
	}
	return out, nil
}

// Click is one button press at absolute screen coordinates.
type Click struct {
	X      int
	Y      int
	Button Button
	When   time.Time
}

// Adapter is the per-platform hook.
type Adapter interface {
	// Install acquires the system-wide hook. It fails fast and never retries.
	Install() error
	// Next blocks until the next qualifying press or until ctx is done.
	Next(ctx context.Context) (Click, error)
	// Close releases the hook. Safe to call more than once.
	Close() error
}

// Options configure an adapter.
type Options struct {
	// Buttons that qualify. Empty means left only.
	Buttons []Button
	// QueueSize bounds clicks waiting for the consumer.
	QueueSize int
	// Now is used to timestamp clicks.
	Now func() time.Time
}

func (o Options) withDefaults() Options {
	if len(o.Buttons) == 0 {
		o.Buttons = []Button{ButtonLeft}
	}
	if o.QueueSize <= 0 {
		o.QueueSize = 64
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// New returns the adapter compiled for this platform.
func New(opts Options) Adapter {
	return newPlatformAdapter(opts.withDefaults())
}

// queue hands clicks from the native callback thread to Next. The callback
// side never blocks: when the consumer lags the click is dropped.
type queue struct {
	opts      Options
	ch        chan Click
	done      chan struct{}
	closeOnce sync.Once
}

func newQueue(opts Options) *queue {
	return &queue{
		opts: opts,
		ch:   make(chan Click, opts.QueueSize),
		done: make(chan struct{}),
	}
}

func (q *queue) wants(b Button) bool {
	for _, want := range q.opts.Buttons {
		if want == b {
			return true
		}
	}
	return false
}

// push is called from the native hook thread.
func (q *queue) push(x, y int, b Button) {
	if !q.wants(b) {
		return
	}
	c := Click{X: x, Y: y, Button: b, When: q.opts.Now()}
	select {
	case <-q.done:
	case q.ch <- c:
	default:
		log.Printf("hook: queue full, dropping %s click at %d,%d", b, x, y)
	}
}

func (q *queue) next(ctx context.Context) (Click, error) {
	select {
	case <-ctx.Done():
		return Click{}, ctx.Err()
	case <-q.done:
		return Click{}, ErrClosed
	case c := <-q.ch:
		return c, nil
	}
}

func (q *queue) close() {
	q.closeOnce.Do(func() { close(q.done) })
}
