// Package transport abstracts the connection to the guest's Spice agent:
// a production variant drives a native Spice client library through a
// narrow CGo FFI boundary, and a mock variant synthesizes timer-driven
// traffic for development and non-host platforms. Both implement the
// same Transport interface so the stream state machine (internal/stream)
// never knows which one it is talking to.
package transport

import (
	"context"
	"fmt"
)

// Kind selects how a Transport reaches the guest (spec.md §4.4).
type Kind string

const (
	KindTCP       Kind = "tcp"
	KindSharedFD  Kind = "shared-fd"
)

// Config configures a single transport connection.
type Config struct {
	Kind Kind

	// TCP fields.
	Host   string
	Port   int
	TLS    bool
	Ticket string

	// Shared-file-descriptor fields.
	Descriptor int
}

// Error is a transport-layer failure, tagged with the reason named in
// spec.md §4.4 / §7.
type Error struct {
	Reason string
	Detail string
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return "transport: " + e.Reason
	}
	return fmt.Sprintf("transport: %s (%s)", e.Reason, e.Detail)
}

const (
	ReasonSharedMemoryUnavailable = "shared-memory-unavailable"
	ReasonConnectionFailed        = "connection-failed"
	ReasonAuthenticationFailed    = "authentication-failed"
)

// Callbacks is the sink a caller registers with OpenStream. OnData
// delivers raw byte chunks exactly as received off the wire -- the
// stream state machine's control-byte parser (internal/stream) is the
// only thing that interprets them. Implementations may invoke these
// from a native worker thread distinct from the caller's goroutine;
// callers must hand off to their own bounded, ordered queue rather than
// do any non-trivial work inline (spec.md §4.4 "Callback thread
// semantics").
type Callbacks struct {
	OnData   func(chunk []byte)
	OnClosed func(err error)
}

// Subscription is a scoped per-window connection. Callers must Close it;
// implementations also guarantee release on transport teardown.
type Subscription interface {
	Close() error
	WindowID() uint32
}

// Transport is the capability set a per-window stream and the control
// channel drive the guest connection through.
type Transport interface {
	OpenStream(ctx context.Context, cfg Config, windowID uint32, cb Callbacks) (Subscription, error)
	CloseStream(sub Subscription) error

	SendMouseEvent(sub Subscription, payload []byte) error
	SendKeyboardEvent(sub Subscription, payload []byte) error
	SendClipboard(sub Subscription, payload []byte) error
	RequestClipboard(sub Subscription) error
	SendDragDropEvent(sub Subscription, payload []byte) error

	SetControlCallback(fn func(chunk []byte))
	SendControlMessage(data []byte) bool
}
