package diagserver

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sadewadee/spicehost/internal/config"
	"github.com/sadewadee/spicehost/internal/metrics"
	"github.com/sadewadee/spicehost/internal/router"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T, ready bool) *Server {
	t.Helper()
	r := router.New(testLogger())
	t.Cleanup(r.Close)
	reg := metrics.New()
	return New(config.DiagnosticsConfig{Addr: "127.0.0.1:0"}, reg, r, func() bool { return ready }, testLogger())
}

func TestHealthzAlwaysOK(t *testing.T) {
	s := newTestServer(t, false)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	s.http.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("body = %+v", body)
	}
}

func TestReadyzReflectsReadyFn(t *testing.T) {
	s := newTestServer(t, false)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	s.http.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503 when not ready", rec.Code)
	}

	s2 := newTestServer(t, true)
	rec2 := httptest.NewRecorder()
	req2 := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	s2.http.Handler.ServeHTTP(rec2, req2)
	if rec2.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 when ready", rec2.Code)
	}
}

func TestMetricsEndpointServesPrometheusText(t *testing.T) {
	s := newTestServer(t, true)
	s.registry.RegisterWindow(1)
	s.registry.RecordFrame(1, time.Now())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	s.http.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct == "" {
		t.Fatal("expected a Content-Type header")
	}
}

func TestDebugStreamsEmptyByDefault(t *testing.T) {
	s := newTestServer(t, true)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/debug/streams", nil)
	s.http.Handler.ServeHTTP(rec, req)

	var body routerSnapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if body.RegisteredWindows != 0 {
		t.Fatalf("expected zero registered windows, got %d", body.RegisteredWindows)
	}
}

func TestBroadcasterPublishReachesNoClientsWithoutError(t *testing.T) {
	b := newBroadcaster(testLogger())
	defer b.close()
	b.publish(stateChangeEvent{WindowID: 1, State: "connected", At: time.Now()})
}
