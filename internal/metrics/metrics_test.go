package metrics

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestRecordFrameAccumulatesPerWindow(t *testing.T) {
	r := New()
	r.RecordFrame(1, time.Unix(0, 0))
	r.RecordFrame(1, time.Unix(1, 0))
	r.RecordFrame(2, time.Unix(0, 0))

	snap := r.Snapshot()
	counts := map[uint32]uint64{}
	for _, s := range snap {
		counts[s.WindowID] = s.FramesReceived
	}
	if counts[1] != 2 {
		t.Errorf("window 1 frames = %d, want 2", counts[1])
	}
	if counts[2] != 1 {
		t.Errorf("window 2 frames = %d, want 1", counts[2])
	}
}

func TestUnregisterWindowDropsCounters(t *testing.T) {
	r := New()
	r.RegisterWindow(5)
	if len(r.Snapshot()) != 1 {
		t.Fatal("expected one registered window")
	}
	r.UnregisterWindow(5)
	if len(r.Snapshot()) != 0 {
		t.Fatal("expected window counters to be dropped")
	}
}

func TestRecordErrorStoresLastDescription(t *testing.T) {
	r := New()
	r.RecordError(9, "connection reset")
	snap := r.Snapshot()
	if len(snap) != 1 || snap[0].LastErrorDescription != "connection reset" {
		t.Fatalf("snapshot = %+v", snap)
	}
}

func TestWriteTextIncludesCoreMetricNames(t *testing.T) {
	r := New()
	r.RegisterWindow(1)
	r.RecordFrame(1, time.Unix(0, 0))
	r.RecordMetadataUpdate(1)
	r.RecordReconnectAttempt(1)
	r.RecordControlRequestStart()
	r.RecordControlTimeout()

	var buf bytes.Buffer
	r.WriteText(&buf)
	out := buf.String()

	for _, want := range []string{
		"spicehost_frames_received_total",
		"spicehost_metadata_updates_total",
		"spicehost_reconnect_attempts_total",
		"spicehost_frame_interval_seconds_bucket",
		"spicehost_control_requests_total",
		"spicehost_control_pending",
		"spicehost_control_timeouts_total",
		"spicehost_go_goroutines",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing metric %q", want)
		}
	}
}

func TestControlRequestStartDoneTracksPendingNotTotal(t *testing.T) {
	r := New()
	r.RecordControlRequestStart()
	r.RecordControlRequestStart()
	if got := r.controlPending.Load(); got != 2 {
		t.Fatalf("pending = %d, want 2", got)
	}
	if got := r.controlRequests.Load(); got != 2 {
		t.Fatalf("total requests = %d, want 2", got)
	}
	r.RecordControlRequestDone()
	if got := r.controlPending.Load(); got != 1 {
		t.Fatalf("pending = %d, want 1 after one request settles", got)
	}
	if got := r.controlRequests.Load(); got != 2 {
		t.Fatalf("total requests = %d, want 2 (unchanged by Done)", got)
	}
}

func TestFrameIntervalHistogramBucketsAreCumulative(t *testing.T) {
	r := New()
	base := time.Unix(0, 0)
	r.RecordFrame(1, base)
	r.RecordFrame(1, base.Add(5*time.Millisecond))
	r.RecordFrame(1, base.Add(10*time.Millisecond))

	var buf bytes.Buffer
	r.WriteText(&buf)
	out := buf.String()
	if !strings.Contains(out, `le="+Inf"} 2`) {
		t.Errorf("expected 2 recorded intervals at +Inf bucket, got:\n%s", out)
	}
	// Both 5ms intervals fall in the smallest bucket; every wider bucket
	// must report the same cumulative count, not a running sum of them.
	if !strings.Contains(out, `le="0.008"} 2`) {
		t.Errorf("expected 2 intervals in the 0.008 bucket, got:\n%s", out)
	}
	if !strings.Contains(out, `le="2.000"} 2`) {
		t.Errorf("expected cumulative count 2 in the 2.000 bucket, got:\n%s", out)
	}
}
