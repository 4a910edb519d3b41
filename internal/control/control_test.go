package control

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/sadewadee/spicehost/internal/metrics"
	"github.com/sadewadee/spicehost/internal/protocol"
	"github.com/sadewadee/spicehost/internal/transport"
)

// loopbackTransport is a transport.Transport double whose
// SendControlMessage synthesizes a response via a test-supplied
// responder, exercising the sendAndWait race without any real
// transport.
type loopbackTransport struct {
	onControl func([]byte)
	responder func(messageID uint64, reqType protocol.MessageType) (protocol.MessageType, interface{})
}

func (l *loopbackTransport) SetControlCallback(fn func([]byte)) { l.onControl = fn }

func (l *loopbackTransport) SendControlMessage(data []byte) bool {
	if len(data) < protocol.EnvelopeHeaderSize {
		return false
	}
	reqType := protocol.MessageType(data[0])
	length := binary.LittleEndian.Uint32(data[1:5])
	var probe struct {
		MessageID uint64 `json:"messageId"`
	}
	json.Unmarshal(data[protocol.EnvelopeHeaderSize:protocol.EnvelopeHeaderSize+int(length)], &probe)

	if l.responder == nil || l.onControl == nil {
		return true
	}
	respType, respPayload := l.responder(probe.MessageID, reqType)
	encoded, err := protocol.Encode(respType, respPayload)
	if err != nil {
		return false
	}
	go l.onControl(encoded)
	return true
}

func (l *loopbackTransport) OpenStream(_ context.Context, _ transport.Config, _ uint32, _ transport.Callbacks) (transport.Subscription, error) {
	return nil, nil
}
func (l *loopbackTransport) CloseStream(transport.Subscription) error               { return nil }
func (l *loopbackTransport) SendMouseEvent(transport.Subscription, []byte) error    { return nil }
func (l *loopbackTransport) SendKeyboardEvent(transport.Subscription, []byte) error { return nil }
func (l *loopbackTransport) SendClipboard(transport.Subscription, []byte) error     { return nil }
func (l *loopbackTransport) RequestClipboard(transport.Subscription) error          { return nil }
func (l *loopbackTransport) SendDragDropEvent(transport.Subscription, []byte) error  { return nil }

func TestListSessionsRoundtrip(t *testing.T) {
	lb := &loopbackTransport{responder: func(id uint64, _ protocol.MessageType) (protocol.MessageType, interface{}) {
		return protocol.TypeSessionList, &protocol.SessionListMsg{
			MessageID: id,
			Sessions:  []protocol.SessionInfo{{ID: "s1", Exe: "notepad.exe"}},
		}
	}}
	c := New(lb)

	sessions, err := c.ListSessions(time.Second)
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(sessions) != 1 || sessions[0].ID != "s1" {
		t.Fatalf("sessions = %+v", sessions)
	}
}

func TestCloseSessionFailureReportsGuestError(t *testing.T) {
	lb := &loopbackTransport{responder: func(id uint64, _ protocol.MessageType) (protocol.MessageType, interface{}) {
		return protocol.TypeAck, &protocol.AckMsg{MessageID: &id, Success: false, Reason: "no such session"}
	}}
	c := New(lb)

	err := c.CloseSession("missing", time.Second)
	if err == nil {
		t.Fatal("expected error")
	}
	ce, ok := err.(*Error)
	if !ok || ce.Reason != ReasonGuestError {
		t.Fatalf("err = %v, want guest-error", err)
	}
}

func TestSendAndWaitTimesOut(t *testing.T) {
	lb := &loopbackTransport{} // never replies
	c := New(lb)

	_, err := c.ListSessions(20 * time.Millisecond)
	if err == nil {
		t.Fatal("expected timeout error")
	}
	ce, ok := err.(*Error)
	if !ok || ce.Reason != ReasonTimeout {
		t.Fatalf("err = %v, want timeout", err)
	}

	// The sink must have been removed even on timeout.
	c.mu.Lock()
	n := len(c.pending)
	c.mu.Unlock()
	if n != 0 {
		t.Fatalf("pending map not cleaned up: %d entries", n)
	}
}

func TestRegistryTracksControlRequestsAndTimeouts(t *testing.T) {
	lb := &loopbackTransport{responder: func(id uint64, _ protocol.MessageType) (protocol.MessageType, interface{}) {
		return protocol.TypeSessionList, &protocol.SessionListMsg{MessageID: id}
	}}
	c := New(lb)
	reg := metrics.New()
	c.SetRegistry(reg)

	if _, err := c.ListSessions(time.Second); err != nil {
		t.Fatalf("ListSessions: %v", err)
	}

	timeoutLb := &loopbackTransport{} // never replies
	tc := New(timeoutLb)
	tc.SetRegistry(reg)
	if _, err := tc.ListSessions(20 * time.Millisecond); err == nil {
		t.Fatal("expected timeout error")
	}

	var buf bytes.Buffer
	reg.WriteText(&buf)
	out := buf.String()
	if !strings.Contains(out, "spicehost_control_requests_total 2\n") {
		t.Errorf("expected 2 total control requests recorded, got:\n%s", out)
	}
	if !strings.Contains(out, "spicehost_control_pending 0\n") {
		t.Errorf("expected pending to settle back to 0, got:\n%s", out)
	}
	if !strings.Contains(out, "spicehost_control_timeouts_total 1\n") {
		t.Errorf("expected 1 recorded timeout, got:\n%s", out)
	}
}

func TestUnsolicitedResponseDispatched(t *testing.T) {
	lb := &loopbackTransport{}
	c := New(lb)

	done := make(chan *protocol.Envelope, 1)
	c.SetUnsolicitedHandler(func(env *protocol.Envelope) { done <- env })

	encoded, _ := protocol.Encode(protocol.TypeAck, &protocol.AckMsg{Success: true})
	lb.onControl(encoded)

	select {
	case env := <-done:
		if env.Type != protocol.TypeAck {
			t.Fatalf("type = %v, want Ack", env.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("unsolicited handler never invoked")
	}
}
