package shmring

import "fmt"

// Reader is a per-window view onto a slice of a larger shared-memory
// mapping. The frame router (C6) creates one Reader per window once it
// knows both the window's buffer allocation (offset/size reported by the
// guest) and the base shared-memory region (reported by the transport).
// Multiple Readers share the same parent mapping without copying it;
// each is bounded to its own non-overlapping byte range (spec.md §4.3
// "Ownership").
type Reader struct {
	*Region
	windowID uint32
	offset   uint64
	size     uint32
}

// NewReader carves a bounded, non-owning view for windowID out of base,
// starting at byte offset and spanning size bytes. It fails with
// buffer-too-small if that range does not fit inside base, and
// re-validates the carved region's own header.
func NewReader(base []byte, windowID uint32, offset uint64, size uint32) (*Reader, error) {
	end := offset + uint64(size)
	if end > uint64(len(base)) {
		return nil, &Error{
			Reason: ReasonBufferTooSmall,
			Detail: fmt.Sprintf("window %d: slice [%d:%d] exceeds base region of %d bytes", windowID, offset, end, len(base)),
		}
	}

	region := New(base[offset:end])
	if err := region.Validate(); err != nil {
		return nil, err
	}

	return &Reader{Region: region, windowID: windowID, offset: offset, size: size}, nil
}

// WindowID returns the window this Reader's slice was carved for.
func (r *Reader) WindowID() uint32 { return r.windowID }

// Offset returns the byte offset of this Reader's slice within the
// parent shared-memory mapping.
func (r *Reader) Offset() uint64 { return r.offset }

// SliceSize returns the byte length of this Reader's carved slice.
func (r *Reader) SliceSize() uint32 { return r.size }
