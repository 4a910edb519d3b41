package protocol

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

// EnvelopeHeaderSize is the fixed [type:1][length:4] prefix size.
const EnvelopeHeaderSize = 5

// Envelope is a decoded frame: a type byte and its raw JSON payload.
type Envelope struct {
	Type    MessageType
	Payload []byte
}

// Reason values used inside ProtocolError.Reason.
const (
	ReasonInvalidMessageType    = "invalid-message-type"
	ReasonUnexpectedDirection   = "unexpected-direction"
	ReasonIncompatibleVersion   = "incompatible-version"
	ReasonSerializeFailed       = "serialize-failed"
	ReasonDeserializeFailed     = "deserialize-failed"
)

// ProtocolError is returned for every protocol-layer failure (C1/C2).
type ProtocolError struct {
	Op     string
	Reason string
	Detail string
}

func (e *ProtocolError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("protocol: %s: %s", e.Op, e.Reason)
	}
	return fmt.Sprintf("protocol: %s: %s (%s)", e.Op, e.Reason, e.Detail)
}

// Encode serializes a payload value into an Envelope's raw bytes:
// [type:1][length:4 LE][payload:length].
func Encode(t MessageType, payload interface{}) ([]byte, error) {
	if err := ValidateType(t); err != nil {
		return nil, err
	}

	var body []byte
	var err error
	switch v := payload.(type) {
	case nil:
		body = nil
	case []byte:
		body = v
	default:
		body, err = json.Marshal(v)
		if err != nil {
			return nil, &ProtocolError{Op: "encode", Reason: ReasonSerializeFailed, Detail: err.Error()}
		}
	}

	buf := make([]byte, EnvelopeHeaderSize+len(body))
	buf[0] = byte(t)
	binary.LittleEndian.PutUint32(buf[1:5], uint32(len(body)))
	copy(buf[5:], body)
	return buf, nil
}

// WriteMessage encodes and writes a message to w in one call.
func WriteMessage(w io.Writer, t MessageType, payload interface{}) error {
	buf, err := Encode(t, payload)
	if err != nil {
		return err
	}
	_, err = w.Write(buf)
	return err
}

// Decode reads a single envelope from the front of buf, returning the
// envelope and the number of bytes consumed. It returns (nil, 0, nil) when
// fewer than 5+length bytes are present ("incomplete" per spec.md §4.2) --
// this is not an error, the caller should wait for more bytes.
func Decode(buf []byte) (*Envelope, int, error) {
	if len(buf) < EnvelopeHeaderSize {
		return nil, 0, nil
	}

	t := MessageType(buf[0])
	length := binary.LittleEndian.Uint32(buf[1:5])
	total := EnvelopeHeaderSize + int(length)
	if len(buf) < total {
		return nil, 0, nil
	}

	if t.IsHostDirected() {
		return nil, 0, &ProtocolError{Op: "decode", Reason: ReasonUnexpectedDirection, Detail: t.String()}
	}
	if err := ValidateType(t); err != nil {
		return nil, 0, err
	}

	payload := make([]byte, length)
	copy(payload, buf[EnvelopeHeaderSize:total])
	return &Envelope{Type: t, Payload: payload}, total, nil
}

// TryReadMessage is the incremental variant of Decode: it reports how many
// bytes were consumed (0 if incomplete) and the decoded envelope (nil if
// incomplete), whose Type field carries the message type. Callers drain a growing buffer by repeatedly calling
// this until it reports 0 bytes consumed.
func TryReadMessage(buf []byte) (consumed int, env *Envelope, err error) {
	env, consumed, err = Decode(buf)
	if err != nil {
		return 0, nil, err
	}
	if env == nil {
		return 0, nil, nil
	}
	return consumed, env, nil
}

// Decode unmarshals a message's JSON payload into v.
func (e *Envelope) Decode(v interface{}) error {
	if len(e.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return &ProtocolError{Op: "decode-payload", Reason: ReasonDeserializeFailed, Detail: err.Error()}
	}
	return nil
}
