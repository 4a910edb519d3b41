// Package metrics collects Prometheus-compatible counters for the
// stream, router, and control subsystems and renders them as
// Prometheus text exposition, in the same hand-rolled shape as the
// teacher's internal/server/metrics.go (sync.Map-backed counters, no
// prometheus/client_golang dependency).
package metrics

import (
	"fmt"
	"io"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// Registry collects per-window and control-channel counters.
type Registry struct {
	mu      sync.Mutex
	streams map[uint32]*streamCounters

	controlPending  atomic.Int64
	controlTimeouts atomic.Int64
	controlRequests atomic.Int64

	intervalBuckets []float64
	intervalCounts  sync.Map // bucket key -> *atomic.Int64
	intervalSum     atomic.Int64
	intervalCount   atomic.Int64
}

type streamCounters struct {
	framesReceived    atomic.Uint64
	metadataUpdates   atomic.Uint64
	reconnectAttempts atomic.Uint64
	lastErrorAt       atomic.Value // string
	lastFrameAt       atomic.Value // time.Time
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		streams:         make(map[uint32]*streamCounters),
		intervalBuckets: []float64{0.008, 0.016, 0.033, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
	}
}

func (r *Registry) counters(windowID uint32) *streamCounters {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.streams[windowID]
	if !ok {
		c = &streamCounters{}
		r.streams[windowID] = c
	}
	return c
}

// RegisterWindow ensures a counter set exists for windowID, so a newly
// connected stream shows up in /debug/streams even before its first frame.
func (r *Registry) RegisterWindow(windowID uint32) {
	r.counters(windowID)
}

// UnregisterWindow drops a window's counters once its stream is closed.
func (r *Registry) UnregisterWindow(windowID uint32) {
	r.mu.Lock()
	delete(r.streams, windowID)
	r.mu.Unlock()
}

// RecordFrame increments a window's frame counter and folds the
// inter-arrival time (since the window's previous frame, if any) into
// the shared frame-interval histogram.
func (r *Registry) RecordFrame(windowID uint32, at time.Time) {
	c := r.counters(windowID)
	c.framesReceived.Add(1)

	if prev, ok := c.lastFrameAt.Load().(time.Time); ok {
		interval := at.Sub(prev).Seconds()
		r.intervalSum.Add(int64(at.Sub(prev)))
		r.intervalCount.Add(1)
		for _, bucket := range r.intervalBuckets {
			if interval <= bucket {
				key := fmt.Sprintf("%.3f", bucket)
				bc, _ := r.intervalCounts.LoadOrStore(key, &atomic.Int64{})
				bc.(*atomic.Int64).Add(1)
			}
		}
	}
	c.lastFrameAt.Store(at)
}

// RecordMetadataUpdate increments a window's metadata-update counter.
func (r *Registry) RecordMetadataUpdate(windowID uint32) {
	r.counters(windowID).metadataUpdates.Add(1)
}

// RecordReconnectAttempt increments a window's reconnect-attempt counter.
func (r *Registry) RecordReconnectAttempt(windowID uint32) {
	r.counters(windowID).reconnectAttempts.Add(1)
}

// RecordError stores the most recent error description for a window.
func (r *Registry) RecordError(windowID uint32, description string) {
	r.counters(windowID).lastErrorAt.Store(description)
}

// RecordControlRequestStart marks a control-channel request as sent: it
// counts toward the running total and the in-flight gauge.
func (r *Registry) RecordControlRequestStart() {
	r.controlRequests.Add(1)
	r.controlPending.Add(1)
}

// RecordControlRequestDone marks a previously-started request as settled
// (response received or timed out), dropping the in-flight gauge.
func (r *Registry) RecordControlRequestDone() {
	r.controlPending.Add(-1)
}

// RecordControlTimeout increments the control-channel timeout counter.
func (r *Registry) RecordControlTimeout() {
	r.controlTimeouts.Add(1)
}

// WindowSnapshot is a point-in-time view of one window's counters,
// used by the diagnostics /debug/streams endpoint.
type WindowSnapshot struct {
	WindowID             uint32
	FramesReceived       uint64
	MetadataUpdates      uint64
	ReconnectAttempts    uint64
	LastErrorDescription string
}

// Snapshot returns a stable copy of every window's counters.
func (r *Registry) Snapshot() []WindowSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]WindowSnapshot, 0, len(r.streams))
	for windowID, c := range r.streams {
		desc, _ := c.lastErrorAt.Load().(string)
		out = append(out, WindowSnapshot{
			WindowID:             windowID,
			FramesReceived:       c.framesReceived.Load(),
			MetadataUpdates:      c.metadataUpdates.Load(),
			ReconnectAttempts:    c.reconnectAttempts.Load(),
			LastErrorDescription: desc,
		})
	}
	return out
}

// WriteText renders the registry as Prometheus text exposition format.
func (r *Registry) WriteText(w io.Writer) {
	var b []byte
	buf := func(format string, args ...interface{}) {
		b = append(b, []byte(fmt.Sprintf(format, args...))...)
	}

	buf("# HELP spicehost_frames_received_total Frames received per window.\n")
	buf("# TYPE spicehost_frames_received_total counter\n")
	for _, s := range r.Snapshot() {
		buf("spicehost_frames_received_total{window_id=\"%d\"} %d\n", s.WindowID, s.FramesReceived)
	}

	buf("# HELP spicehost_metadata_updates_total Window metadata updates received per window.\n")
	buf("# TYPE spicehost_metadata_updates_total counter\n")
	for _, s := range r.Snapshot() {
		buf("spicehost_metadata_updates_total{window_id=\"%d\"} %d\n", s.WindowID, s.MetadataUpdates)
	}

	buf("# HELP spicehost_reconnect_attempts_total Reconnect attempts per window.\n")
	buf("# TYPE spicehost_reconnect_attempts_total counter\n")
	for _, s := range r.Snapshot() {
		buf("spicehost_reconnect_attempts_total{window_id=\"%d\"} %d\n", s.WindowID, s.ReconnectAttempts)
	}

	buf("# HELP spicehost_frame_interval_seconds Time between consecutively received frames.\n")
	buf("# TYPE spicehost_frame_interval_seconds histogram\n")
	var cumulative int64
	totalCount := r.intervalCount.Load()
	for _, bucket := range r.intervalBuckets {
		key := fmt.Sprintf("%.3f", bucket)
		if bc, ok := r.intervalCounts.Load(key); ok {
			cumulative = bc.(*atomic.Int64).Load()
		}
		buf("spicehost_frame_interval_seconds_bucket{le=\"%.3f\"} %d\n", bucket, cumulative)
	}
	buf("spicehost_frame_interval_seconds_bucket{le=\"+Inf\"} %d\n", totalCount)
	buf("spicehost_frame_interval_seconds_sum %.6f\n", float64(r.intervalSum.Load())/float64(time.Second))
	buf("spicehost_frame_interval_seconds_count %d\n", totalCount)

	buf("# HELP spicehost_control_requests_total Total control-channel requests sent.\n")
	buf("# TYPE spicehost_control_requests_total counter\n")
	buf("spicehost_control_requests_total %d\n", r.controlRequests.Load())

	buf("# HELP spicehost_control_pending Current number of in-flight control-channel requests.\n")
	buf("# TYPE spicehost_control_pending gauge\n")
	buf("spicehost_control_pending %d\n", r.controlPending.Load())

	buf("# HELP spicehost_control_timeouts_total Total control-channel requests that timed out.\n")
	buf("# TYPE spicehost_control_timeouts_total counter\n")
	buf("spicehost_control_timeouts_total %d\n", r.controlTimeouts.Load())

	buf("# HELP spicehost_go_goroutines Number of goroutines.\n")
	buf("# TYPE spicehost_go_goroutines gauge\n")
	buf("spicehost_go_goroutines %d\n", runtime.NumGoroutine())

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	buf("# HELP spicehost_go_memstats_alloc_bytes Number of bytes allocated.\n")
	buf("# TYPE spicehost_go_memstats_alloc_bytes gauge\n")
	buf("spicehost_go_memstats_alloc_bytes %d\n", mem.Alloc)

	w.Write(b)
}
