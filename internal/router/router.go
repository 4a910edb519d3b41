// Package router maintains the mapping from window identifier to the
// per-window stream, its reported buffer allocation, and the
// shared-memory reader carved out for it once both are known. All
// mutations are serialized through a single work queue so
// registerStream / handleBufferAllocation / setSharedMemoryRegion can
// arrive in any order and still converge on each reader being attached
// exactly once (spec.md §4.6, §5 ordering guarantee ii).
package router

import (
	"context"
	"log/slog"

	"github.com/sadewadee/spicehost/internal/shmring"
	"github.com/sadewadee/spicehost/internal/stream"
)

// AllocationInfo is the per-window shared-memory allocation the guest
// reports via a WindowBufferAllocatedMsg.
type AllocationInfo struct {
	WindowID         uint32
	BufferOffset     uint64
	BufferSize       uint32
	SlotSize         uint32
	SlotCount        uint32
	IsCompressed     bool
	UsesSharedMemory bool
}

// Router is the frame router (C6).
type Router struct {
	logger *slog.Logger

	queue     chan func()
	queueDone chan struct{}
	ctx       context.Context
	cancel    context.CancelFunc

	streams     map[uint32]*stream.Stream
	allocations map[uint32]AllocationInfo
	readers     map[uint32]*shmring.Reader

	regionBase []byte
	hasRegion  bool

	onFrameReady func(windowID uint32, reader *shmring.Reader)
}

// New creates an empty Router and starts its serialized work queue.
func New(logger *slog.Logger) *Router {
	ctx, cancel := context.WithCancel(context.Background())
	r := &Router{
		logger:      logger,
		queue:       make(chan func(), 256),
		queueDone:   make(chan struct{}),
		ctx:         ctx,
		cancel:      cancel,
		streams:     make(map[uint32]*stream.Stream),
		allocations: make(map[uint32]AllocationInfo),
		readers:     make(map[uint32]*shmring.Reader),
	}
	go r.run()
	return r
}

func (r *Router) run() {
	defer close(r.queueDone)
	for {
		select {
		case fn := <-r.queue:
			fn()
		case <-r.ctx.Done():
			return
		}
	}
}

// do runs fn on the router's serial queue and blocks until it has run.
func (r *Router) do(fn func()) {
	done := make(chan struct{})
	select {
	case r.queue <- func() { fn(); close(done) }:
		<-done
	case <-r.ctx.Done():
	}
}

// SetFrameReadyHandler registers the callback routeFrameReady invokes
// when a frame-ready notification matches a registered stream.
func (r *Router) SetFrameReadyHandler(fn func(windowID uint32, reader *shmring.Reader)) {
	r.do(func() { r.onFrameReady = fn })
}

// RegisterStream stores s under windowID. If a reader already exists
// for this window it is attached immediately; otherwise, if an
// allocation is already known and a shared-memory region is
// configured, the reader is created now.
func (r *Router) RegisterStream(s *stream.Stream, windowID uint32) {
	r.do(func() {
		r.streams[windowID] = s
		if _, ok := r.readers[windowID]; ok {
			return
		}
		if _, ok := r.allocations[windowID]; ok && r.hasRegion {
			r.tryCreateReader(windowID)
		}
	})
}

// UnregisterStream detaches and drops the reader and allocation info
// for windowID.
func (r *Router) UnregisterStream(windowID uint32) {
	r.do(func() {
		delete(r.streams, windowID)
		delete(r.readers, windowID)
		delete(r.allocations, windowID)
	})
}

// HandleBufferAllocation stores a window's reported allocation and, if
// it uses shared memory and a region is already configured, creates and
// attaches its reader.
func (r *Router) HandleBufferAllocation(alloc AllocationInfo) {
	r.do(func() {
		r.allocations[alloc.WindowID] = alloc
		if alloc.UsesSharedMemory && r.hasRegion {
			r.tryCreateReader(alloc.WindowID)
		}
	})
}

// SetSharedMemoryRegion records the base shared-memory mapping and
// retroactively creates readers for every previously buffered
// allocation that uses shared memory.
func (r *Router) SetSharedMemoryRegion(base []byte) {
	r.do(func() {
		r.regionBase = base
		r.hasRegion = true
		for windowID, alloc := range r.allocations {
			if alloc.UsesSharedMemory {
				r.tryCreateReader(windowID)
			}
		}
	})
}

// ClearSharedMemoryRegion drops the base mapping but keeps allocation
// records so readers can be recreated once a new region is set.
func (r *Router) ClearSharedMemoryRegion() {
	r.do(func() {
		r.regionBase = nil
		r.hasRegion = false
		r.readers = make(map[uint32]*shmring.Reader)
	})
}

// RouteFrameReady looks up the stream for windowID and, if present,
// invokes the frame-ready handler; otherwise it drops the notification
// with a debug log.
func (r *Router) RouteFrameReady(windowID uint32, frameNumber uint64) {
	r.do(func() {
		if _, ok := r.streams[windowID]; !ok {
			r.logger.Debug("dropping frame-ready for unregistered window", "window_id", windowID, "frame_number", frameNumber)
			return
		}
		reader, ok := r.readers[windowID]
		if !ok {
			r.logger.Debug("dropping frame-ready with no reader attached", "window_id", windowID, "frame_number", frameNumber)
			return
		}
		if r.onFrameReady != nil {
			r.onFrameReady(windowID, reader)
		}
	})
}

// tryCreateReader must run on the router's queue. It enforces the
// bounds invariant from spec.md §4.6: 0 <= offset and
// offset+bufferSize <= region size; violations are logged and no
// reader is created.
func (r *Router) tryCreateReader(windowID uint32) {
	alloc, ok := r.allocations[windowID]
	if !ok || !r.hasRegion {
		return
	}

	end := alloc.BufferOffset + uint64(alloc.BufferSize)
	if end > uint64(len(r.regionBase)) {
		r.logger.Warn("shared-memory allocation out of bounds, skipping reader",
			"window_id", windowID, "offset", alloc.BufferOffset, "size", alloc.BufferSize, "region_size", len(r.regionBase))
		return
	}

	reader, err := shmring.NewReader(r.regionBase, windowID, alloc.BufferOffset, alloc.BufferSize)
	if err != nil {
		r.logger.Warn("failed to create shared-memory reader", "window_id", windowID, "error", err)
		return
	}
	r.readers[windowID] = reader
}

// Streams returns a snapshot copy of the windowID -> stream mapping,
// used by the diagnostics server's /debug/streams endpoint.
func (r *Router) Streams() map[uint32]*stream.Stream {
	out := make(map[uint32]*stream.Stream)
	r.do(func() {
		for windowID, s := range r.streams {
			out[windowID] = s
		}
	})
	return out
}

// HasRegion reports whether a shared-memory region is currently configured.
func (r *Router) HasRegion() bool {
	var has bool
	r.do(func() { has = r.hasRegion })
	return has
}

// Close stops the router's work queue.
func (r *Router) Close() {
	r.cancel()
	<-r.queueDone
}
