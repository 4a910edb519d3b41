// Package control implements the control channel (C7): a logically
// separate stream bound to window identifier zero that layers
// request/response correlation on top of the transport's raw
// sendControlMessage, grounded on the teacher's pool.Pool.Exec pattern
// of racing a result channel against a timeout.
package control

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sadewadee/spicehost/internal/metrics"
	"github.com/sadewadee/spicehost/internal/protocol"
	"github.com/sadewadee/spicehost/internal/transport"
)

// Error is a control-channel failure, tagged with the reason named in
// spec.md §4.7.
type Error struct {
	Reason string
	Detail string
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return "control: " + e.Reason
	}
	return fmt.Sprintf("control: %s (%s)", e.Reason, e.Detail)
}

const (
	ReasonTimeout           = "timeout"
	ReasonUnexpectedResponse = "unexpected-response"
	ReasonGuestError        = "guest-error"
)

// Channel is the control channel. It owns no transport connection of
// its own: New registers it as the transport's control callback sink,
// and requests go out through the transport's SendControlMessage.
type Channel struct {
	transport transport.Transport
	registry  *metrics.Registry

	nextMessageID atomic.Uint64

	mu      sync.Mutex
	pending map[uint64]chan *protocol.Envelope

	onUnsolicited func(*protocol.Envelope)
}

// New creates a control channel over an already-open transport and
// registers it as the transport's control callback sink.
func New(tp transport.Transport) *Channel {
	c := &Channel{
		transport: tp,
		pending:   make(map[uint64]chan *protocol.Envelope),
	}
	tp.SetControlCallback(c.handleInbound)
	return c
}

// SetRegistry attaches a metrics registry; request/timeout counters are
// skipped when none is set.
func (c *Channel) SetRegistry(r *metrics.Registry) {
	c.registry = r
}

// SetUnsolicitedHandler registers a sink for responses that arrive with
// no matching pending request (spec.md §5 ordering guarantee iii).
func (c *Channel) SetUnsolicitedHandler(fn func(*protocol.Envelope)) {
	c.mu.Lock()
	c.onUnsolicited = fn
	c.mu.Unlock()
}

func (c *Channel) handleInbound(chunk []byte) {
	env, _, err := protocol.Decode(chunk)
	if err != nil || env == nil {
		return
	}

	messageID, ok := extractMessageID(env)
	if !ok {
		c.dispatchUnsolicited(env)
		return
	}

	c.mu.Lock()
	sink, found := c.pending[messageID]
	c.mu.Unlock()

	if !found {
		c.dispatchUnsolicited(env)
		return
	}

	select {
	case sink <- env:
	default:
	}
}

func (c *Channel) dispatchUnsolicited(env *protocol.Envelope) {
	c.mu.Lock()
	fn := c.onUnsolicited
	c.mu.Unlock()
	if fn != nil {
		fn(env)
	}
}

func extractMessageID(env *protocol.Envelope) (uint64, bool) {
	var probe struct {
		MessageID *uint64 `json:"messageId"`
	}
	if err := env.Decode(&probe); err != nil || probe.MessageID == nil {
		return 0, false
	}
	return *probe.MessageID, true
}

// NextMessageID allocates a fresh correlation id.
func (c *Channel) NextMessageID() uint64 {
	return c.nextMessageID.Add(1)
}

// sendAndWait encodes t/payload, hands it to the transport, registers a
// one-shot sink under messageID, and races the sink against timeout.
// The sink is always removed before returning (spec.md §4.7).
func (c *Channel) sendAndWait(t protocol.MessageType, payload interface{}, messageID uint64, timeout time.Duration) (*protocol.Envelope, error) {
	encoded, err := protocol.Encode(t, payload)
	if err != nil {
		return nil, err
	}

	sink := make(chan *protocol.Envelope, 1)
	c.mu.Lock()
	c.pending[messageID] = sink
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, messageID)
		c.mu.Unlock()
	}()

	if c.registry != nil {
		c.registry.RecordControlRequestStart()
		defer c.registry.RecordControlRequestDone()
	}

	if !c.transport.SendControlMessage(encoded) {
		return nil, &Error{Reason: ReasonTimeout, Detail: "transport rejected control message"}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case env := <-sink:
		if env.Type == protocol.TypeError {
			var errMsg protocol.ErrorMsg
			if err := env.Decode(&errMsg); err == nil {
				return nil, &Error{Reason: ReasonGuestError, Detail: fmt.Sprintf("%s: %s", errMsg.Code, errMsg.Message)}
			}
			return nil, &Error{Reason: ReasonGuestError}
		}
		return env, nil
	case <-timer.C:
		if c.registry != nil {
			c.registry.RecordControlTimeout()
		}
		return nil, &Error{Reason: ReasonTimeout}
	}
}

// ListSessions requests the guest's active session list.
func (c *Channel) ListSessions(timeout time.Duration) ([]protocol.SessionInfo, error) {
	id := c.NextMessageID()
	env, err := c.sendAndWait(protocol.TypeListSessions, &protocol.ListSessionsMsg{MessageID: id}, id, timeout)
	if err != nil {
		return nil, err
	}
	if env.Type != protocol.TypeSessionList {
		return nil, &Error{Reason: ReasonUnexpectedResponse, Detail: env.Type.String()}
	}
	var list protocol.SessionListMsg
	if err := env.Decode(&list); err != nil {
		return nil, &Error{Reason: ReasonUnexpectedResponse, Detail: err.Error()}
	}
	return list.Sessions, nil
}

// CloseSession asks the guest to close session id, erroring if the ack
// reports failure.
func (c *Channel) CloseSession(id string, timeout time.Duration) error {
	messageID := c.NextMessageID()
	env, err := c.sendAndWait(protocol.TypeCloseSession, &protocol.CloseSessionMsg{MessageID: messageID, SessionID: id}, messageID, timeout)
	if err != nil {
		return err
	}
	if env.Type != protocol.TypeAck {
		return &Error{Reason: ReasonUnexpectedResponse, Detail: env.Type.String()}
	}
	var ack protocol.AckMsg
	if err := env.Decode(&ack); err != nil {
		return &Error{Reason: ReasonUnexpectedResponse, Detail: err.Error()}
	}
	if !ack.Success {
		return &Error{Reason: ReasonGuestError, Detail: ack.Reason}
	}
	return nil
}

// ListShortcuts requests the guest's detected shortcut list.
func (c *Channel) ListShortcuts(timeout time.Duration) ([]protocol.ShortcutInfo, error) {
	id := c.NextMessageID()
	env, err := c.sendAndWait(protocol.TypeListShortcuts, &protocol.ListShortcutsMsg{MessageID: id}, id, timeout)
	if err != nil {
		return nil, err
	}
	if env.Type != protocol.TypeShortcutList {
		return nil, &Error{Reason: ReasonUnexpectedResponse, Detail: env.Type.String()}
	}
	var list protocol.ShortcutListMsg
	if err := env.Decode(&list); err != nil {
		return nil, &Error{Reason: ReasonUnexpectedResponse, Detail: err.Error()}
	}
	return list.Shortcuts, nil
}
