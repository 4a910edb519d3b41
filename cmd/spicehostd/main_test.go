package main

import (
	"log/slog"
	"testing"
	"time"

	"github.com/sadewadee/spicehost/internal/config"
	"github.com/sadewadee/spicehost/internal/stream"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discardWriter{}, nil))
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestSetupLoggerLevels(t *testing.T) {
	cases := []struct {
		level string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tc := range cases {
		logger, closer := setupLogger(tc.level, "json")
		if logger == nil {
			t.Fatalf("level %q: expected non-nil logger", tc.level)
		}
		if closer != nil {
			t.Fatalf("level %q: expected nil closer, spicehostd logs only to stdout", tc.level)
		}
		if !logger.Enabled(nil, tc.want) {
			t.Fatalf("level %q: expected handler enabled at %v", tc.level, tc.want)
		}
	}
}

func TestMapSharedRegionInvalidDescriptor(t *testing.T) {
	if _, err := mapSharedRegion(-1, 4096); err == nil {
		t.Fatal("expected error mapping a negative file descriptor")
	}
}

func newMockApp(t *testing.T) *app {
	t.Helper()
	cfg := config.Default()
	a, err := newApp(cfg, testLogger())
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	t.Cleanup(func() { a.router.Close() })
	return a
}

func TestIsReadyWithoutSharedMemoryTransport(t *testing.T) {
	a := newMockApp(t)
	if !a.isReady() {
		t.Fatal("expected ready immediately when no shared-memory transport is configured")
	}
}

func TestCreateAndDestroyWindowStream(t *testing.T) {
	a := newMockApp(t)

	a.createWindowStream(7)
	a.mu.Lock()
	_, exists := a.windows[7]
	a.mu.Unlock()
	if !exists {
		t.Fatal("expected window 7 to be tracked after createWindowStream")
	}

	// Calling it again for the same window must be a no-op, not a second stream.
	a.createWindowStream(7)
	a.mu.Lock()
	count := len(a.windows)
	a.mu.Unlock()
	if count != 1 {
		t.Fatalf("expected exactly one tracked window, got %d", count)
	}

	a.destroyWindowStream(7)
	a.mu.Lock()
	_, stillExists := a.windows[7]
	a.mu.Unlock()
	if stillExists {
		t.Fatal("expected window 7 to be removed after destroyWindowStream")
	}
}

func TestReconnectFailedStreamsOnlyTouchesFailedState(t *testing.T) {
	a := newMockApp(t)
	a.createWindowStream(1)

	a.mu.Lock()
	s := a.windows[1]
	a.mu.Unlock()

	// Put the stream into a user-initiated disconnected state (not
	// failed), then confirm reconnectFailedStreams leaves it alone.
	s.Disconnect()
	for i := 0; i < 50 && s.ConnectionState().Kind != stream.StateDisconnected; i++ {
		time.Sleep(time.Millisecond)
	}

	a.reconnectFailedStreams()
	// Disconnected (user-initiated) streams are not StateFailed, so this
	// must be a no-op: state stays Disconnected, not Connecting/Connected.
	if s.ConnectionState().Kind != stream.StateDisconnected {
		t.Fatalf("expected disconnected stream to stay untouched by reconnectFailedStreams, got %v", s.ConnectionState().Kind)
	}
}
