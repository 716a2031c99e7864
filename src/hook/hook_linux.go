//go:build linux && cgo

package hook

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/jezek/xgb"
	gohook "github.com/robotn/gohook"
)

// enableTimeout bounds the wait for libuiohook's hook-enabled event.
const enableTimeout = 2 * time.Second

// linuxAdapter observes the X server through libuiohook (XRecord on the
// root window). It never grabs the pointer, so clicks still reach the game.
type linuxAdapter struct {
	q         *queue
	mu        sync.Mutex
	installed bool
	pumpDone  chan struct{}
}

func newPlatformAdapter(opts Options) Adapter {
	return &linuxAdapter{q: newQueue(opts)}
}

func (a *linuxAdapter) Install() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.installed {
		return fmt.Errorf("%w: already installed", ErrInstall)
	}

	// libuiohook only logs when XOpenDisplay fails and then delivers nothing,
	// so reachability is checked up front.
	if err := probeDisplay(); err != nil {
		return err
	}

	evChan := gohook.Start()
	if evChan == nil {
		return fmt.Errorf("%w: gohook returned no event channel", ErrInstall)
	}
	// Missing XRecord is only logged by the C side; HookEnabled never comes.
	if err := awaitEvent(evChan, func(ev gohook.Event) bool {
		return ev.Kind == gohook.HookEnabled
	}, enableTimeout); err != nil {
		gohook.End()
		return err
	}

	a.installed = true
	a.pumpDone = make(chan struct{})
	go a.pump(evChan, a.pumpDone)

	log.Printf("hook: X11 record hook installed")
	return nil
}

func probeDisplay() error {
	conn, err := xgb.NewConn()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDisplay, err)
	}
	conn.Close()
	return nil
}

func (a *linuxAdapter) pump(events <-chan gohook.Event, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-a.q.done:
			return
		case ev, ok := <-events:
			if !ok {
				log.Printf("hook: gohook event channel closed")
				return
			}
			if b, ok := buttonFromUiohook(ev.Kind, ev.Button); ok {
				a.q.push(int(ev.X), int(ev.Y), b)
			}
		}
	}
}

func (a *linuxAdapter) Next(ctx context.Context) (Click, error) {
	return a.q.next(ctx)
}

func (a *linuxAdapter) Close() error {
	a.mu.Lock()
	installed := a.installed
	a.installed = false
	done := a.pumpDone
	a.mu.Unlock()

	a.q.close()
	if installed {
		gohook.End()
		log.Printf("hook: X11 record hook removed")
	}
	if done != nil {
		<-done
	}
	return nil
}
