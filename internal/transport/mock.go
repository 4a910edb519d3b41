//go:build !spice_native

package transport

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sadewadee/spicehost/internal/protocol"
)

// tickInterval is how often the mock transport synthesizes a frame and a
// metadata update for each open stream, when no real libspice-client is
// linked in (spec.md §4.4 "a mock transport producing synthetic
// timer-driven frames and metadata for testing and for non-host
// platforms").
const tickInterval = 250 * time.Millisecond

// Mock is a synthetic Transport used in development builds and on
// non-macOS hosts where the native library is unavailable.
type Mock struct {
	cfg Config

	controlMu sync.RWMutex
	onControl func(chunk []byte)

	mu    sync.Mutex
	subs  map[*mockSubscription]struct{}
	closed bool
}

type mockSubscription struct {
	windowID uint32
	cb       Callbacks
	stop     chan struct{}
	stopOnce sync.Once
	frameNo  uint64
}

func (s *mockSubscription) WindowID() uint32 { return s.windowID }

func (s *mockSubscription) Close() error {
	s.stopOnce.Do(func() { close(s.stop) })
	return nil
}

// New constructs a mock transport. It never fails to "connect" except
// for the one case the spec calls out explicitly: a shared-fd config
// with a negative descriptor, which is treated as an invalid handle.
func New(cfg Config) (*Mock, error) {
	if cfg.Kind == KindSharedFD && cfg.Descriptor < 0 {
		return nil, &Error{Reason: ReasonSharedMemoryUnavailable, Detail: fmt.Sprintf("descriptor %d", cfg.Descriptor)}
	}
	return &Mock{cfg: cfg, subs: make(map[*mockSubscription]struct{})}, nil
}

func (m *Mock) OpenStream(ctx context.Context, cfg Config, windowID uint32, cb Callbacks) (Subscription, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, &Error{Reason: ReasonConnectionFailed, Detail: "transport closed"}
	}
	sub := &mockSubscription{windowID: windowID, cb: cb, stop: make(chan struct{})}
	m.subs[sub] = struct{}{}
	m.mu.Unlock()

	go m.run(sub)
	return sub, nil
}

func (m *Mock) run(sub *mockSubscription) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	// A window-metadata created event arrives immediately on open, the
	// way a real guest agent announces a window as soon as it exists.
	m.emitMetadata(sub, protocol.WindowEventCreated)

	for {
		select {
		case <-sub.stop:
			m.mu.Lock()
			delete(m.subs, sub)
			m.mu.Unlock()
			return
		case <-ticker.C:
			m.emitFrame(sub)
		}
	}
}

func (m *Mock) emitMetadata(sub *mockSubscription, evt protocol.WindowEventKind) {
	if sub.cb.OnData == nil {
		return
	}
	msg := &protocol.WindowMetadataMsg{
		WindowID:    sub.windowID,
		Title:       fmt.Sprintf("Mock Window %d", sub.windowID),
		Bounds:      protocol.Rect{X: 0, Y: 0, Width: 640, Height: 480},
		EventType:   evt,
		IsResizable: true,
		ScaleFactor: 1.0,
	}
	encoded, err := protocol.Encode(protocol.TypeWindowMetadata, msg)
	if err != nil {
		return
	}
	sub.cb.OnData(encoded)
}

func (m *Mock) emitFrame(sub *mockSubscription) {
	if sub.cb.OnData == nil {
		return
	}
	frameNo := atomic.AddUint64(&sub.frameNo, 1)

	const width, height, stride = 64, 64, 64 * 4
	pixels := make([]byte, stride*height)
	fill := byte(frameNo % 256)
	for i := range pixels {
		pixels[i] = fill
	}

	header := &protocol.FrameDataHeader{
		WindowID:    sub.windowID,
		Width:       width,
		Height:      height,
		Stride:      stride,
		Format:      protocol.PixelFormatBGRA32,
		DataLength:  uint32(len(pixels)),
		FrameNumber: frameNo,
		IsKeyFrame:  frameNo == 1,
	}
	encoded, err := protocol.Encode(protocol.TypeFrameData, header)
	if err != nil {
		return
	}

	chunk := make([]byte, 0, len(encoded)+len(pixels))
	chunk = append(chunk, encoded...)
	chunk = append(chunk, pixels...)
	sub.cb.OnData(chunk)
}

func (m *Mock) CloseStream(sub Subscription) error {
	return sub.Close()
}

// Close tears down every open subscription and marks the transport
// closed; subsequent OpenStream calls fail with connection-failed.
func (m *Mock) Close() error {
	m.mu.Lock()
	m.closed = true
	subs := make([]*mockSubscription, 0, len(m.subs))
	for s := range m.subs {
		subs = append(subs, s)
	}
	m.mu.Unlock()

	for _, s := range subs {
		s.Close()
	}
	return nil
}

func (m *Mock) SendMouseEvent(sub Subscription, payload []byte) error    { return m.ack(sub) }
func (m *Mock) SendKeyboardEvent(sub Subscription, payload []byte) error { return m.ack(sub) }
func (m *Mock) SendClipboard(sub Subscription, payload []byte) error     { return m.ack(sub) }
func (m *Mock) SendDragDropEvent(sub Subscription, payload []byte) error { return m.ack(sub) }

func (m *Mock) RequestClipboard(sub Subscription) error {
	ms, ok := sub.(*mockSubscription)
	if !ok || ms.cb.OnData == nil {
		return nil
	}
	encoded, err := protocol.Encode(protocol.TypeClipboardChanged, &protocol.ClipboardChangedMsg{
		Format: protocol.ClipboardFormatText,
		Data:   []byte("mock clipboard contents"),
	})
	if err != nil {
		return err
	}
	ms.cb.OnData(encoded)
	return nil
}

func (m *Mock) ack(sub Subscription) error {
	if _, ok := sub.(*mockSubscription); !ok {
		return fmt.Errorf("transport: not a mock subscription")
	}
	return nil
}

func (m *Mock) SetControlCallback(fn func(chunk []byte)) {
	m.controlMu.Lock()
	m.onControl = fn
	m.controlMu.Unlock()
}

// SendControlMessage synthesizes an AckMsg reply for every control
// request sent to it, correlated by messageId when the caller's payload
// carries one.
func (m *Mock) SendControlMessage(data []byte) bool {
	m.controlMu.RLock()
	fn := m.onControl
	m.controlMu.RUnlock()
	if fn == nil {
		return false
	}

	reply, err := protocol.Encode(protocol.TypeAck, &protocol.AckMsg{MessageID: extractMessageID(data), Success: true})
	if err != nil {
		return false
	}
	fn(reply)
	return true
}

// extractMessageID peeks at a raw host-directed envelope's JSON payload
// to recover its messageId for correlation in the synthetic reply,
// without going through protocol.Decode (which rejects host-directed
// types -- correct for the real guest-facing wire, but SendControlMessage
// here is looping a host request back to a host callback).
func extractMessageID(data []byte) *uint64 {
	if len(data) < protocol.EnvelopeHeaderSize {
		return nil
	}
	length := binary.LittleEndian.Uint32(data[1:5])
	total := protocol.EnvelopeHeaderSize + int(length)
	if len(data) < total {
		return nil
	}

	var probe struct {
		MessageID *uint64 `json:"messageId"`
	}
	if err := json.Unmarshal(data[protocol.EnvelopeHeaderSize:total], &probe); err != nil {
		return nil
	}
	return probe.MessageID
}
