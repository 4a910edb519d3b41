// Package stream implements the per-window Spice stream state machine:
// connect/disconnect/reconnect/pause/resume lifecycle, a re-entrant
// control-byte parser for the guest's mixed envelope-and-raw-payload
// byte stream, and a reconnect backoff policy. Each Stream owns a
// serialized delivery queue so observer callbacks are always invoked
// in order, never from a transport's native callback thread directly.
package stream

import (
	"errors"
	"time"

	"github.com/sadewadee/spicehost/internal/protocol"
)

// ErrNotConnected is returned by the send* methods when the stream is
// not currently connected; the event is dropped, not retried.
var ErrNotConnected = errors.New("stream: not connected")

// StateKind is the observable lifecycle position of a Stream.
type StateKind string

const (
	StateDisconnected StateKind = "disconnected"
	StateConnecting   StateKind = "connecting"
	StateConnected    StateKind = "connected"
	StateReconnecting StateKind = "reconnecting"
	StateFailed       StateKind = "failed"
)

// ConnectionState is the value observers are notified of on every
// transition (spec.md §4.5 "connectionState").
type ConnectionState struct {
	Kind        StateKind
	Attempt     int
	MaxAttempts int
	Reason      string
}

// ReconnectPolicy is a geometric backoff: delay(attempt) =
// min(initialDelay * multiplier^(attempt-1), maxDelay). MaxAttempts == 0
// means unlimited.
type ReconnectPolicy struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	MaxAttempts  int
}

func (p ReconnectPolicy) delayFor(attempt int) time.Duration {
	multiplier := p.Multiplier
	if multiplier <= 0 {
		multiplier = 1
	}
	d := float64(p.InitialDelay)
	for i := 1; i < attempt; i++ {
		d *= multiplier
	}
	delay := time.Duration(d)
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

// Frame is a fully reassembled frame ready for delivery to an observer.
type Frame struct {
	WindowID    uint32
	Width       int32
	Height      int32
	Stride      int32
	Format      protocol.PixelFormat
	FrameNumber uint64
	IsKeyFrame  bool
	Payload     []byte
}

// Observer receives ordered delivery callbacks from a single Stream. All
// callbacks run on the stream's own delivery queue goroutine.
type Observer struct {
	OnFrame       func(Frame)
	OnMetadata    func(*protocol.WindowMetadataMsg)
	OnClipboard   func(*protocol.ClipboardChangedMsg)
	OnStateChange func(ConnectionState)
}

// Metrics is a point-in-time counter snapshot (spec.md §4.5
// "metricsSnapshot").
type Metrics struct {
	FramesReceived        uint64
	MetadataUpdates       uint64
	ReconnectAttempts     uint64
	LastErrorDescription  string
}

// pendingFrame tracks a frameData header whose raw payload bytes are
// still arriving across one or more chunks.
type pendingFrame struct {
	header        protocol.FrameDataHeader
	remaining     int
	shouldDeliver bool
	payload       []byte
}
