package singleinstance

// This file defines the API for single-instance ownership and the control
// requests a second invocation delegates to the resident host.

import (
	"context"

	"rodspot/src/grid"
)

// Server owns the TCP endpoint and answers control requests.
type Server interface {
	// Start listens on the first port of the configured range. If it is
	// taken, another resident owns the tracker and Start fails.
	Start(ctx context.Context) error
	// Port returns the bound TCP port, or 0 if not started.
	Port() int
	// Next returns the next accepted request as a Conn, or ctx error.
	Next(ctx context.Context) (Conn, error)
	// Close releases ownership and stops accepting clients.
	Close() error
}

// Conn represents one client connection and exposes request + response API.
type Conn interface {
	Request() Request
	// RespondOK sends OK, followed by body on the next line when non-empty.
	RespondOK(body string) error
	// RespondError sends an error with human-readable message.
	RespondError(msg string) error
	Close() error
}

type RequestKind int

const (
	RequestBounds RequestKind = iota + 1
	RequestStatus
)

func (k RequestKind) String() string {
	switch k {
	case RequestBounds:
		return "BOUNDS"
	case RequestStatus:
		return "STATUS"
	default:
		return "UNKNOWN"
	}
}

// Request is a single control request.
type Request struct {
	Kind RequestKind
	// Rect is set for RequestBounds.
	Rect grid.Rect
}

// Client talks to a resident host, if any.
type Client interface {
	// SendBounds asks the resident to track rect. delegated is false when no
	// resident answered.
	SendBounds(ctx context.Context, rect grid.Rect) (delegated bool, err error)
	// Status returns the resident's "<state> <x> <y> <w> <h>" line.
	Status(ctx context.Context) (delegated bool, status string, err error)
}

// NewServer returns TCP implementation.
func NewServer() Server { return newTcpServer() }

// NewClient returns TCP implementation.
func NewClient() Client { return newTcpClient() }
