package protocol

import (
	"bytes"
	"testing"
)

func TestEncodeDecodeRoundtrip(t *testing.T) {
	tests := []struct {
		name    string
		msgType MessageType
		payload interface{}
	}{
		{"window metadata", TypeWindowMetadata, &WindowMetadataMsg{
			WindowID: 1, Title: "A", Bounds: Rect{0, 0, 100, 100},
			EventType: WindowEventCreated, IsResizable: true, ScaleFactor: 1.0,
		}},
		{"frame data header", TypeFrameData, &FrameDataHeader{
			WindowID: 1, Width: 2, Height: 2, Stride: 8,
			Format: PixelFormatBGRA32, DataLength: 16, FrameNumber: 7,
		}},
		{"clipboard changed", TypeClipboardChanged, &ClipboardChangedMsg{
			Format: ClipboardFormatText, Data: []byte("hello"),
		}},
		{"ack no payload", TypeAck, &AckMsg{Success: true}},
		{"nil payload", TypeHeartbeat, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded, err := Encode(tt.msgType, tt.payload)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}

			env, consumed, err := Decode(encoded)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if env == nil {
				t.Fatal("Decode reported incomplete on a fully encoded frame")
			}
			if consumed != len(encoded) {
				t.Fatalf("consumed %d, want %d", consumed, len(encoded))
			}
			if env.Type != tt.msgType {
				t.Fatalf("type = %v, want %v", env.Type, tt.msgType)
			}

			wantLen := len(encoded) - EnvelopeHeaderSize
			if len(env.Payload) != wantLen {
				t.Fatalf("payload length = %d, want %d", len(env.Payload), wantLen)
			}
		})
	}
}

func TestDecodeIncomplete(t *testing.T) {
	full, err := Encode(TypeHeartbeat, &HeartbeatMsg{UptimeSeconds: 42})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	for n := 0; n < len(full); n++ {
		env, consumed, err := Decode(full[:n])
		if err != nil {
			t.Fatalf("Decode(%d bytes): unexpected error %v", n, err)
		}
		if env != nil || consumed != 0 {
			t.Fatalf("Decode(%d bytes): expected incomplete, got env=%v consumed=%d", n, env, consumed)
		}
	}
}

// TestIncrementalParseSplit covers spec.md §8's "incremental parse"
// property: for k complete envelopes followed by b trailing bytes
// (b < 5+nextLength), the parser consumes exactly the bytes for k
// envelopes regardless of chunking.
func TestIncrementalParseSplit(t *testing.T) {
	e1, _ := Encode(TypeHeartbeat, &HeartbeatMsg{UptimeSeconds: 1})
	e2, _ := Encode(TypeAck, &AckMsg{Success: true})
	trailing := []byte{0x86, 0x02, 0x00} // a truncated third envelope header

	var buf bytes.Buffer
	buf.Write(e1)
	buf.Write(e2)
	buf.Write(trailing)
	full := buf.Bytes()

	var got []MessageType
	offset := 0
	for {
		consumed, env, err := TryReadMessage(full[offset:])
		if err != nil {
			t.Fatalf("TryReadMessage: %v", err)
		}
		if env == nil {
			break
		}
		got = append(got, env.Type)
		offset += consumed
	}

	if len(got) != 2 || got[0] != TypeHeartbeat || got[1] != TypeAck {
		t.Fatalf("got %v, want [Heartbeat Ack]", got)
	}
	remaining := len(full) - offset
	if remaining != len(trailing) {
		t.Fatalf("remaining = %d, want %d", remaining, len(trailing))
	}
}

func TestDecodeRejectsHostDirectedType(t *testing.T) {
	encoded, err := Encode(TypeMouseInput, &MouseInputMsg{WindowID: 1})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	_, _, err = Decode(encoded)
	if err == nil {
		t.Fatal("expected unexpected-direction error")
	}
	perr, ok := err.(*ProtocolError)
	if !ok || perr.Reason != ReasonUnexpectedDirection {
		t.Fatalf("err = %v, want unexpected-direction", err)
	}
}

func TestDecodeRejectsUnknownType(t *testing.T) {
	buf := make([]byte, EnvelopeHeaderSize)
	buf[0] = 0x90 // unassigned guest->host byte

	_, _, err := Decode(buf)
	if err == nil {
		t.Fatal("expected invalid-message-type error")
	}
	perr, ok := err.(*ProtocolError)
	if !ok || perr.Reason != ReasonInvalidMessageType {
		t.Fatalf("err = %v, want invalid-message-type", err)
	}
}

func TestVersionCompatibility(t *testing.T) {
	host := ProtocolVersion{Major: 1, Minor: 3}

	tests := []struct {
		guest ProtocolVersion
		want  bool
	}{
		{ProtocolVersion{1, 0}, true},
		{ProtocolVersion{1, 3}, true},
		{ProtocolVersion{1, 4}, false},
		{ProtocolVersion{2, 0}, false},
		{ProtocolVersion{0, 3}, false},
	}

	for _, tt := range tests {
		if got := host.IsCompatible(tt.guest); got != tt.want {
			t.Errorf("IsCompatible(%+v) = %v, want %v", tt.guest, got, tt.want)
		}
	}
}

func TestVersionPackUnpack(t *testing.T) {
	v := ProtocolVersion{Major: 1, Minor: 3}
	if got := UnpackVersion(v.Packed()); got != v {
		t.Fatalf("UnpackVersion(Packed()) = %+v, want %+v", got, v)
	}
}
