package diagserver

import (
	"encoding/json"
	"net/http"
	"runtime"
	"time"
)

var startTime = time.Now()

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(startTime).String(),
	})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ready := s.readyFn == nil || s.readyFn()

	status := http.StatusOK
	statusStr := "ready"
	if !ready {
		status = http.StatusServiceUnavailable
		statusStr = "not_ready"
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":         statusStr,
		"uptime_seconds": time.Since(startTime).Seconds(),
		"goroutines":     runtime.NumGoroutine(),
		"memory_alloc_mb": mem.Alloc / 1024 / 1024,
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	s.registry.WriteText(w)
}

// streamSnapshot is the JSON shape served by /debug/streams, combining
// the stream's own observable state with its counter snapshot.
type streamSnapshot struct {
	WindowID             uint32 `json:"windowId"`
	State                string `json:"state"`
	Attempt              int    `json:"attempt"`
	MaxAttempts          int    `json:"maxAttempts"`
	FramesReceived       uint64 `json:"framesReceived"`
	MetadataUpdates      uint64 `json:"metadataUpdates"`
	ReconnectAttempts    uint64 `json:"reconnectAttempts"`
	LastErrorDescription string `json:"lastErrorDescription,omitempty"`
}

type routerSnapshot struct {
	RegisteredWindows int              `json:"registeredWindows"`
	HasSharedRegion   bool             `json:"hasSharedRegion"`
	Streams           []streamSnapshot `json:"streams"`
}

func (s *Server) handleDebugStreams(w http.ResponseWriter, r *http.Request) {
	streams := s.router.Streams()

	metricsByWindow := map[uint32]struct {
		frames, metadata, reconnects uint64
		lastError                    string
	}{}
	for _, snap := range s.registry.Snapshot() {
		metricsByWindow[snap.WindowID] = struct {
			frames, metadata, reconnects uint64
			lastError                    string
		}{snap.FramesReceived, snap.MetadataUpdates, snap.ReconnectAttempts, snap.LastErrorDescription}
	}

	out := routerSnapshot{
		RegisteredWindows: len(streams),
		HasSharedRegion:   s.router.HasRegion(),
		Streams:           make([]streamSnapshot, 0, len(streams)),
	}
	for windowID, st := range streams {
		cs := st.ConnectionState()
		m := metricsByWindow[windowID]
		out.Streams = append(out.Streams, streamSnapshot{
			WindowID:             windowID,
			State:                string(cs.Kind),
			Attempt:              cs.Attempt,
			MaxAttempts:          cs.MaxAttempts,
			FramesReceived:       m.frames,
			MetadataUpdates:      m.metadata,
			ReconnectAttempts:    m.reconnects,
			LastErrorDescription: m.lastError,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}
