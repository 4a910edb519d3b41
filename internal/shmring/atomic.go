package shmring

import "unsafe"

// wordAt returns a pointer to the 4-byte-aligned uint32 at the given byte
// offset within data, for use with sync/atomic. The region header's
// writeIndex/readIndex/flags fields are defined at 4-byte-aligned offsets
// specifically so single-word atomic access is possible here without a
// shared mutex between host and guest (spec.md §9 "Ring buffer safety
// without a shared mutex").
func wordAt(data []byte, offset int) unsafe.Pointer {
	return unsafe.Pointer(&data[offset])
}
