package stream

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sadewadee/spicehost/internal/metrics"
	"github.com/sadewadee/spicehost/internal/protocol"
	"github.com/sadewadee/spicehost/internal/shmring"
	"github.com/sadewadee/spicehost/internal/transport"
)

// Stream is the central per-window state machine (spec.md §4.5). A
// Stream bound to window ID 0 with unbound set is the discovery stream
// cmd/spicehostd opens, which accepts metadata regardless of window ID.
type Stream struct {
	windowID  uint32
	unbound   bool
	transport transport.Transport
	cfg       transport.Config
	policy    ReconnectPolicy
	observer  Observer
	logger    *slog.Logger
	registry  *metrics.Registry

	mu                   sync.Mutex
	state                ConnectionState
	sub                  transport.Subscription
	isUserInitiatedClose bool
	paused               bool
	droppedWhilePaused   bool
	attempt              int
	reconnectTimer       *time.Timer

	// buf and pending belong exclusively to the delivery queue goroutine;
	// every mutation happens inside a function run via enqueue, so they
	// need no lock of their own.
	buf     []byte
	pending *pendingFrame

	queue     chan func()
	queueDone chan struct{}
	closeOnce sync.Once

	ctx    context.Context
	cancel context.CancelFunc

	framesReceived       atomic.Uint64
	metadataUpdates      atomic.Uint64
	reconnectAttempts    atomic.Uint64
	lastErrorDescription atomic.Value
}

// New creates a Stream for windowID. unbound should be true only for the
// window-0 discovery stream, which is not scoped to a single window's
// frame traffic.
func New(windowID uint32, unbound bool, tp transport.Transport, cfg transport.Config, policy ReconnectPolicy, observer Observer, logger *slog.Logger) *Stream {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Stream{
		windowID:  windowID,
		unbound:   unbound,
		transport: tp,
		cfg:       cfg,
		policy:    policy,
		observer:  observer,
		logger:    logger,
		state:     ConnectionState{Kind: StateDisconnected},
		queue:     make(chan func(), 64),
		queueDone: make(chan struct{}),
		ctx:       ctx,
		cancel:    cancel,
	}
	s.lastErrorDescription.Store("")
	go s.runQueue()
	return s
}

// WindowID returns the window this stream is bound to.
func (s *Stream) WindowID() uint32 { return s.windowID }

// SetRegistry attaches a metrics registry that frame, metadata, error,
// and reconnect events are reported to. Safe to call before or after
// Connect; recordings are skipped entirely when none is set.
func (s *Stream) SetRegistry(r *metrics.Registry) {
	s.registry = r
}

func (s *Stream) runQueue() {
	defer close(s.queueDone)
	for {
		select {
		case fn := <-s.queue:
			fn()
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Stream) enqueue(fn func()) {
	select {
	case s.queue <- fn:
	case <-s.ctx.Done():
	}
}

// Connect opens the transport for this window. It is idempotent while
// already connecting or connected.
func (s *Stream) Connect() error {
	s.mu.Lock()
	if s.state.Kind == StateConnecting || s.state.Kind == StateConnected {
		s.mu.Unlock()
		return nil
	}
	s.isUserInitiatedClose = false
	s.paused = false
	s.droppedWhilePaused = false
	s.attempt = 0
	s.setStateLocked(ConnectionState{Kind: StateConnecting})
	s.mu.Unlock()

	return s.doConnect()
}

// Disconnect marks the close as user-initiated, closes the transport,
// cancels any pending reconnect, and clears in-flight frame
// reassembly state. It does not wait for already-delivered callbacks.
func (s *Stream) Disconnect() {
	s.mu.Lock()
	s.isUserInitiatedClose = true
	s.stopReconnectTimerLocked()
	sub := s.sub
	s.sub = nil
	s.setStateLocked(ConnectionState{Kind: StateDisconnected})
	s.mu.Unlock()

	if sub != nil {
		s.transport.CloseStream(sub)
	}
	s.enqueue(func() {
		s.buf = nil
		s.pending = nil
	})
}

// Reconnect resets the attempt counter and last error, tears down any
// live subscription, and reopens immediately (bypassing backoff).
func (s *Stream) Reconnect() error {
	s.mu.Lock()
	s.attempt = 0
	s.lastErrorDescription.Store("")
	s.stopReconnectTimerLocked()
	sub := s.sub
	s.sub = nil
	s.isUserInitiatedClose = false
	s.setStateLocked(ConnectionState{Kind: StateConnecting})
	s.mu.Unlock()

	if sub != nil {
		s.transport.CloseStream(sub)
	}
	return s.doConnect()
}

// Pause silences delivery without tearing down the transport.
func (s *Stream) Pause() {
	s.mu.Lock()
	s.paused = true
	s.mu.Unlock()
}

// Resume re-enables delivery; if the transport was dropped while
// paused, it reopens the connection.
func (s *Stream) Resume() {
	s.mu.Lock()
	s.paused = false
	dropped := s.droppedWhilePaused
	s.droppedWhilePaused = false
	s.mu.Unlock()

	if dropped {
		s.Reconnect()
	}
}

func (s *Stream) doConnect() error {
	cb := transport.Callbacks{
		OnData: func(chunk []byte) {
			s.enqueue(func() { s.handleChunk(chunk) })
		},
		OnClosed: func(err error) {
			s.enqueue(func() { s.handleClosed(err) })
		},
	}

	sub, err := s.transport.OpenStream(s.ctx, s.cfg, s.windowID, cb)
	if err != nil {
		s.handleConnectError(err)
		return err
	}

	s.mu.Lock()
	s.sub = sub
	s.attempt = 0
	s.setStateLocked(ConnectionState{Kind: StateConnected})
	s.mu.Unlock()
	return nil
}

func (s *Stream) handleConnectError(err error) {
	if isTerminal(err) {
		s.mu.Lock()
		s.setStateLocked(ConnectionState{Kind: StateFailed, Reason: err.Error()})
		s.mu.Unlock()
		return
	}
	s.scheduleReconnect(err.Error())
}

func (s *Stream) handleClosed(err error) {
	s.mu.Lock()
	userInitiated := s.isUserInitiatedClose
	paused := s.paused
	s.sub = nil
	s.mu.Unlock()

	if userInitiated {
		return
	}
	if paused {
		s.mu.Lock()
		s.droppedWhilePaused = true
		s.mu.Unlock()
		return
	}
	if err != nil && isTerminal(err) {
		s.mu.Lock()
		s.setStateLocked(ConnectionState{Kind: StateFailed, Reason: err.Error()})
		s.mu.Unlock()
		return
	}

	reason := "remote closed"
	if err != nil {
		reason = err.Error()
	}
	s.scheduleReconnect(reason)
}

func (s *Stream) scheduleReconnect(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.attempt++
	s.reconnectAttempts.Add(1)
	s.lastErrorDescription.Store(reason)
	if s.registry != nil {
		s.registry.RecordReconnectAttempt(s.windowID)
		s.registry.RecordError(s.windowID, reason)
	}

	if s.policy.MaxAttempts > 0 && s.attempt > s.policy.MaxAttempts {
		s.setStateLocked(ConnectionState{Kind: StateFailed, Reason: reason})
		return
	}

	s.setStateLocked(ConnectionState{Kind: StateReconnecting, Attempt: s.attempt, MaxAttempts: s.policy.MaxAttempts})
	delay := s.policy.delayFor(s.attempt)
	s.reconnectTimer = time.AfterFunc(delay, func() {
		s.doConnect()
	})
}

func (s *Stream) stopReconnectTimerLocked() {
	if s.reconnectTimer != nil {
		s.reconnectTimer.Stop()
		s.reconnectTimer = nil
	}
}

// setStateLocked must be called with mu held.
func (s *Stream) setStateLocked(next ConnectionState) {
	s.state = next
	if s.observer.OnStateChange != nil {
		cb := s.observer.OnStateChange
		s.enqueue(func() { cb(next) })
	}
}

// ConnectionState returns the current observable state.
func (s *Stream) ConnectionState() ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Stream) isPaused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

func (s *Stream) isConnected() (transport.Subscription, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Kind != StateConnected || s.paused {
		return nil, false
	}
	return s.sub, true
}

// SendMouseEvent forwards a mouse input payload, dropping it and
// returning ErrNotConnected if not connected.
func (s *Stream) SendMouseEvent(payload []byte) error {
	sub, ok := s.isConnected()
	if !ok {
		return ErrNotConnected
	}
	return s.transport.SendMouseEvent(sub, payload)
}

// SendKeyboardEvent forwards a keyboard input payload, dropping it and
// returning ErrNotConnected if not connected.
func (s *Stream) SendKeyboardEvent(payload []byte) error {
	sub, ok := s.isConnected()
	if !ok {
		return ErrNotConnected
	}
	return s.transport.SendKeyboardEvent(sub, payload)
}

// SendClipboard forwards a clipboard payload, dropping it and returning
// ErrNotConnected if not connected.
func (s *Stream) SendClipboard(payload []byte) error {
	sub, ok := s.isConnected()
	if !ok {
		return ErrNotConnected
	}
	return s.transport.SendClipboard(sub, payload)
}

// RequestClipboard asks the guest for its current clipboard contents.
func (s *Stream) RequestClipboard() error {
	sub, ok := s.isConnected()
	if !ok {
		return ErrNotConnected
	}
	return s.transport.RequestClipboard(sub)
}

// SendDragDropEvent forwards a drag-and-drop payload, dropping it and
// returning ErrNotConnected if not connected.
func (s *Stream) SendDragDropEvent(payload []byte) error {
	sub, ok := s.isConnected()
	if !ok {
		return ErrNotConnected
	}
	return s.transport.SendDragDropEvent(sub, payload)
}

// DeliverSharedFrame hands a frame read from the shared-memory ring
// buffer (via the router's frame-ready dispatch) to this stream's
// observer, on the stream's own delivery queue. Used for the
// usesSharedMemory path, as opposed to handleChunk's inline frameData
// path.
func (s *Stream) DeliverSharedFrame(f shmring.Frame) {
	s.enqueue(func() {
		s.framesReceived.Add(1)
		if s.registry != nil {
			s.registry.RecordFrame(s.windowID, time.Now())
		}
		if s.observer.OnFrame == nil || s.isPaused() {
			return
		}
		s.observer.OnFrame(Frame{
			WindowID:    f.WindowID,
			Width:       int32(f.Width),
			Height:      int32(f.Height),
			Stride:      int32(f.Stride),
			Format:      protocol.PixelFormat(f.Format),
			FrameNumber: f.FrameNumber,
			IsKeyFrame:  f.IsKeyFrame,
			Payload:     f.Payload,
		})
	})
}

// MetricsSnapshot returns the current counter values.
func (s *Stream) MetricsSnapshot() Metrics {
	return Metrics{
		FramesReceived:       s.framesReceived.Load(),
		MetadataUpdates:      s.metadataUpdates.Load(),
		ReconnectAttempts:    s.reconnectAttempts.Load(),
		LastErrorDescription: s.lastErrorDescription.Load().(string),
	}
}

// Close fully tears the stream down: disconnects, cancels the delivery
// queue, and waits for it to drain.
func (s *Stream) Close() {
	s.closeOnce.Do(func() {
		s.Disconnect()
		s.cancel()
		<-s.queueDone
	})
}

func isTerminal(err error) bool {
	te, ok := err.(*transport.Error)
	if !ok {
		return false
	}
	switch te.Reason {
	case transport.ReasonAuthenticationFailed, transport.ReasonSharedMemoryUnavailable:
		return true
	default:
		return false
	}
}
