package stream

import (
	"time"

	"github.com/sadewadee/spicehost/internal/protocol"
)

// handleChunk is the control-byte parser (spec.md §4.5). It runs only on
// the stream's delivery queue goroutine, so buf and pending need no
// locking. It must be re-entrant across however the transport happens
// to chunk bytes, and must never drop bytes belonging to the next
// envelope.
func (s *Stream) handleChunk(chunk []byte) {
	s.buf = append(s.buf, chunk...)

	for {
		if s.pending != nil {
			n := s.pending.remaining
			if n > len(s.buf) {
				n = len(s.buf)
			}
			if n > 0 {
				if s.pending.shouldDeliver {
					s.pending.payload = append(s.pending.payload, s.buf[:n]...)
				}
				s.buf = s.buf[n:]
			}
			s.pending.remaining -= n

			if s.pending.remaining > 0 {
				// Zero-length frames (remaining already 0) fall
				// through even with an empty buffer -- only a
				// genuinely incomplete payload waits for more bytes.
				return
			}
			if s.pending.shouldDeliver {
				s.deliverFrame(s.pending)
			}
			s.pending = nil
			continue
		}

		consumed, env, err := protocol.TryReadMessage(s.buf)
		if err != nil {
			s.recordParseError(err)
			return
		}
		if env == nil {
			return
		}
		s.buf = s.buf[consumed:]

		switch env.Type {
		case protocol.TypeFrameData:
			var hdr protocol.FrameDataHeader
			if err := env.Decode(&hdr); err != nil {
				s.recordParseError(err)
				return
			}
			s.pending = &pendingFrame{
				header:        hdr,
				remaining:     int(hdr.DataLength),
				shouldDeliver: hdr.WindowID == s.windowID,
				payload:       make([]byte, 0, hdr.DataLength),
			}
			// Stop draining further envelopes until the raw payload
			// this header announced has been fully consumed.
			continue

		case protocol.TypeWindowMetadata:
			var meta protocol.WindowMetadataMsg
			if err := env.Decode(&meta); err != nil {
				s.recordParseError(err)
				return
			}
			s.emitMetadata(&meta)

		case protocol.TypeClipboardChanged:
			var cc protocol.ClipboardChangedMsg
			if err := env.Decode(&cc); err != nil {
				s.recordParseError(err)
				return
			}
			s.emitClipboard(&cc)

		default:
			// Every other guest->host type is handled elsewhere
			// (control channel, diagnostics) -- a per-window stream
			// ignores it.
		}
	}
}

func (s *Stream) deliverFrame(p *pendingFrame) {
	s.framesReceived.Add(1)
	if s.registry != nil {
		s.registry.RecordFrame(s.windowID, time.Now())
	}
	if s.observer.OnFrame == nil || s.isPaused() {
		return
	}
	s.observer.OnFrame(Frame{
		WindowID:    p.header.WindowID,
		Width:       p.header.Width,
		Height:      p.header.Height,
		Stride:      p.header.Stride,
		Format:      p.header.Format,
		FrameNumber: p.header.FrameNumber,
		IsKeyFrame:  p.header.IsKeyFrame,
		Payload:     p.payload,
	})
}

func (s *Stream) emitMetadata(meta *protocol.WindowMetadataMsg) {
	if !s.unbound && meta.WindowID != s.windowID {
		return
	}
	s.metadataUpdates.Add(1)
	if s.registry != nil {
		s.registry.RecordMetadataUpdate(meta.WindowID)
	}
	if s.observer.OnMetadata != nil && !s.isPaused() {
		s.observer.OnMetadata(meta)
	}
}

func (s *Stream) emitClipboard(cc *protocol.ClipboardChangedMsg) {
	if s.observer.OnClipboard != nil && !s.isPaused() {
		s.observer.OnClipboard(cc)
	}
}

// recordParseError records the failure and clears the buffer so a
// malformed byte sequence cannot wedge the parser into an infinite loop.
// It does not tear down the connection; the next chunk starts fresh.
func (s *Stream) recordParseError(err error) {
	s.lastErrorDescription.Store(err.Error())
	if s.registry != nil {
		s.registry.RecordError(s.windowID, err.Error())
	}
	s.buf = nil
	s.pending = nil
}
