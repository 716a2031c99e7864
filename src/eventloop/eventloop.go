package eventloop

import (
	"context"
	"errors"
	"fmt"
	"log"

	"rodspot/src/grid"
	"rodspot/src/logutil"
	"rodspot/src/protocol"
	"rodspot/src/singleinstance"
	"rodspot/src/supervisor"
)

// Supervisor is the subset of *supervisor.Supervisor the loop drives.
type Supervisor interface {
	Start(ctx context.Context, rect grid.Rect) error
	Update(ctx context.Context, rect grid.Rect) error
	Restart(ctx context.Context) error
	Stop() error
	Events() <-chan protocol.CellEvent
	Exits() <-chan supervisor.Exit
	State() supervisor.State
	Rect() grid.Rect
}

// BoundsStore persists the rectangle after every accepted change.
type BoundsStore interface {
	Save(grid.Rect) error
}

// Loop is the single-threaded coordinator of the resident host: it owns the
// supervisor, answers control requests and forwards cell events to the sink.
type Loop struct {
	sup   Supervisor
	store BoundsStore
	sink  Sink
	srv   singleinstance.Server
}

// New creates a loop. store and srv may be nil.
func New(sup Supervisor, store BoundsStore, sink Sink, srv singleinstance.Server) *Loop {
	return &Loop{sup: sup, store: store, sink: sink, srv: srv}
}

// Run starts tracking rect and blocks until ctx is cancelled, then stops the
// tracker.
func (l *Loop) Run(ctx context.Context, rect grid.Rect) error {
	reqCh := make(chan singleinstance.Conn, 4)
	if l.srv != nil {
		if err := l.srv.Start(ctx); err != nil {
			return fmt.Errorf("another rodspot host owns the tracker: %w", err)
		}
		defer l.srv.Close()
		log.Printf("Resident listening on 127.0.0.1:%d", l.srv.Port())

		// Accept loop in background so events keep flowing while idle.
		go l.forward(ctx, reqCh)
	}

	if err := l.sup.Start(ctx, rect); err != nil {
		log.Printf("eventloop: tracking disabled: %v", err)
		l.sink.Notice(fmt.Sprintf("tracking disabled: %v", err))
	}
	defer func() {
		if err := l.sup.Stop(); err != nil && !errors.Is(err, supervisor.ErrNotRunning) {
			log.Printf("eventloop: stopping tracker: %v", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case conn, ok := <-reqCh:
			if !ok {
				reqCh = nil
				continue
			}
			l.handleConn(ctx, conn)
		case e := <-l.sup.Events():
			if err := l.sink.Cell(e); err != nil {
				log.Printf("eventloop: delivering %s: %v", protocol.Format(e), err)
			}
		case ex := <-l.sup.Exits():
			l.handleExit(ctx, ex)
		}
	}
}

// forward hands accepted connections to Run until ctx ends. A connection
// accepted after Run stopped reading is closed unanswered.
func (l *Loop) forward(ctx context.Context, reqCh chan<- singleinstance.Conn) {
	defer close(reqCh)
	for {
		conn, err := l.srv.Next(ctx)
		if err != nil {
			return
		}
		select {
		case reqCh <- conn:
		case <-ctx.Done():
			_ = conn.Close()
			return
		}
	}
}

func (l *Loop) handleConn(ctx context.Context, conn singleinstance.Conn) {
	defer conn.Close()

	req := conn.Request()
	switch req.Kind {
	case singleinstance.RequestBounds:
		if err := l.setBounds(ctx, req.Rect); err != nil {
			_ = conn.RespondError(err.Error())
			return
		}
		_ = conn.RespondOK("")
	case singleinstance.RequestStatus:
		_ = conn.RespondOK(l.status())
	default:
		_ = conn.RespondError(fmt.Sprintf("unsupported request %s", req.Kind))
	}
}

func (l *Loop) setBounds(ctx context.Context, rect grid.Rect) error {
	if err := l.sup.Update(ctx, rect); err != nil {
		return fmt.Errorf("restarting tracker: %w", err)
	}
	if l.store != nil {
		if err := l.store.Save(rect); err != nil {
			log.Printf("eventloop: could not save bounds: %v", err)
		}
	}
	return nil
}

func (l *Loop) status() string {
	r := l.sup.Rect()
	return fmt.Sprintf("%s %d %d %d %d", l.sup.State(), r.X, r.Y, r.Width, r.Height)
}

func (l *Loop) handleExit(ctx context.Context, ex supervisor.Exit) {
	if ex.Intentional {
		logutil.Debugf("eventloop: tracker for %s stopped on request", ex.Rect)
		return
	}

	switch ex.Kind {
	case protocol.ExitKindHook:
		l.sink.Notice(hookAdvice)
	case protocol.ExitKindUsage:
		l.sink.Notice(fmt.Sprintf("tracker rejected rectangle %s", ex.Rect))
	case protocol.ExitKindClean:
		l.sink.Notice("tracker stopped by an outside signal")
	default:
		if err := l.sup.Restart(ctx); err != nil {
			log.Printf("eventloop: not restarting tracker: %v", err)
			l.sink.Notice(fmt.Sprintf("tracker failed (%v); giving up: %v", ex.Err, err))
			return
		}
		log.Printf("eventloop: tracker restarted after %s exit", ex.Kind)
	}
}

// hookAdvice is shown when the OS refuses the global hook. Retrying cannot
// help until the user acts.
const hookAdvice = "global mouse hook unavailable: on macOS grant Accessibility and Input Monitoring " +
	"to the tracker, on Linux run inside an X11 session with DISPLAY set; then send new bounds to retry"
