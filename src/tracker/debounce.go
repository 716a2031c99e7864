package tracker

import (
	"time"

	"rodspot/src/hook"
)

// debouncer drops a press that lands closer than radius pixels to, and within
// window of, the last accepted press. Some drivers report a single physical
// press twice.
type debouncer struct {
	radius int
	window time.Duration
	last   hook.Click
	have   bool
}

func newDebouncer(radius int, window time.Duration) *debouncer {
	return &debouncer{radius: radius, window: window}
}

func (d *debouncer) accept(c hook.Click) bool {
	if d.window <= 0 {
		return true
	}
	if d.have &&
		c.When.Sub(d.last.When) < d.window &&
		sq(c.X-d.last.X)+sq(c.Y-d.last.Y) < sq(d.radius) {
		return false
	}
	d.last = c
	d.have = true
	return true
}

func sq(n int) int { return n * n }
