// Package hooktest provides a scripted hook.Adapter for tests that cannot
// install a real system-wide hook.
package hooktest

import (
	"context"
	"sync"

	"rodspot/src/hook"
)

// Adapter delivers clicks fed through Feed. Closing the feed via End makes
// Next report hook.ErrClosed.
type Adapter struct {
	InstallErr error

	clicks chan hook.Click
	endOne sync.Once

	mu        sync.Mutex
	installed bool
	closed    int
}

func New() *Adapter {
	return &Adapter{clicks: make(chan hook.Click, 64)}
}

func (a *Adapter) Install() error {
	if a.InstallErr != nil {
		return a.InstallErr
	}
	a.mu.Lock()
	a.installed = true
	a.mu.Unlock()
	return nil
}

func (a *Adapter) Next(ctx context.Context) (hook.Click, error) {
	select {
	case <-ctx.Done():
		return hook.Click{}, ctx.Err()
	case c, ok := <-a.clicks:
		if !ok {
			return hook.Click{}, hook.ErrClosed
		}
		return c, nil
	}
}

func (a *Adapter) Close() error {
	a.mu.Lock()
	a.installed = false
	a.closed++
	a.mu.Unlock()
	return nil
}

// Feed queues clicks for Next.
func (a *Adapter) Feed(clicks ...hook.Click) {
	for _, c := range clicks {
		a.clicks <- c
	}
}

// End simulates the OS tearing the hook down.
func (a *Adapter) End() {
	a.endOne.Do(func() { close(a.clicks) })
}

func (a *Adapter) Installed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.installed
}

func (a *Adapter) CloseCalls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closed
}
