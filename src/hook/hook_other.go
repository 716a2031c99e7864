//go:build !windows && !(darwin && cgo) && !(linux && cgo)

package hook

import "context"

type unsupportedAdapter struct {
	q *queue
}

func newPlatformAdapter(opts Options) Adapter {
	return &unsupportedAdapter{q: newQueue(opts)}
}

func (a *unsupportedAdapter) Install() error { return ErrUnsupported }

func (a *unsupportedAdapter) Next(ctx context.Context) (Click, error) { return a.q.next(ctx) }

func (a *unsupportedAdapter) Close() error {
	a.q.close()
	return nil
}
