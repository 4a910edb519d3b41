// Command spicehostd is the host-side Spice client runtime: it wires
// configuration, the shared-memory region, the frame router, and the
// control channel together and serves a local diagnostics surface,
// mirroring the teacher's cmd/maboo/main.go shape (subcommands, signal
// handling, structured logging, graceful shutdown/reload).
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sadewadee/spicehost/internal/config"
	"github.com/sadewadee/spicehost/internal/control"
	"github.com/sadewadee/spicehost/internal/diagserver"
	"github.com/sadewadee/spicehost/internal/metrics"
	"github.com/sadewadee/spicehost/internal/protocol"
	"github.com/sadewadee/spicehost/internal/router"
	"github.com/sadewadee/spicehost/internal/shmring"
	"github.com/sadewadee/spicehost/internal/stream"
	"github.com/sadewadee/spicehost/internal/transport"
)

var version = "0.1.0-dev"

// sharedRegionSize is the fixed mmap length requested for
// WINRUN_SPICE_SHM_FD. The guest declares its own slot layout inside
// this window via the region header (spec.md §3); spicehostd just needs
// a mapping large enough to contain it.
const sharedRegionSize = 64 * 1024 * 1024

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve", "start":
		serve()
	case "version":
		fmt.Printf("spicehostd v%s\n", version)
	case "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func serve() {
	cfgPath := os.Getenv("WINRUN_SPICE_CONFIG")

	logger, startupCloser := setupLogger("info", "json")
	if startupCloser != nil {
		defer startupCloser.Close()
	}
	logger.Info("spicehostd starting", "version", version)

	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "path", cfgPath, "error", err)
		os.Exit(1)
	}

	if startupCloser != nil {
		startupCloser.Close()
	}
	logger, logCloser := setupLogger(cfg.Logging.Level, cfg.Logging.Format)
	if logCloser != nil {
		defer logCloser.Close()
	}

	app, err := newApp(cfg, logger)
	if err != nil {
		logger.Error("failed to initialize runtime", "error", err)
		os.Exit(1)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	reload := make(chan os.Signal, 1)
	signal.Notify(reload, syscall.SIGHUP)
	go func() {
		for range reload {
			logger.Info("SIGHUP received, reconnecting failed streams")
			app.reconnectFailedStreams()
		}
	}()

	go func() {
		if err := app.diag.Start(); err != nil {
			logger.Error("diagnostics server error", "error", err)
		}
	}()

	if err := app.startDiscovery(); err != nil {
		logger.Error("failed to start discovery stream", "error", err)
		os.Exit(1)
	}

	logger.Info("spicehostd ready", "diag_addr", cfg.Diagnostics.Addr)

	<-quit
	logger.Info("shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	app.shutdown(ctx)

	logger.Info("spicehostd stopped")
}

// app holds every long-lived runtime component, so signal handlers and
// the discovery dispatcher can reach them without package-level state.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	tp       transport.Transport
	control  *control.Channel
	router   *router.Router
	registry *metrics.Registry
	diag     *diagserver.Server
	discover *stream.Stream

	mu      sync.Mutex
	windows map[uint32]*stream.Stream
}

func newApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	tpCfg := transport.Config{
		Host:       cfg.Transport.Host,
		Port:       cfg.Transport.Port,
		TLS:        cfg.Transport.TLS,
		Ticket:     cfg.Transport.Ticket,
		Descriptor: cfg.Transport.SharedFD,
	}
	if cfg.Transport.UseSharedMemory {
		tpCfg.Kind = transport.KindSharedFD
	} else {
		tpCfg.Kind = transport.KindTCP
	}

	tp, err := transport.New(tpCfg)
	if err != nil {
		return nil, fmt.Errorf("opening transport: %w", err)
	}

	r := router.New(logger)
	registry := metrics.New()
	ctl := control.New(tp)
	ctl.SetRegistry(registry)

	a := &app{
		cfg:      cfg,
		logger:   logger,
		tp:       tp,
		control:  ctl,
		router:   r,
		registry: registry,
		windows:  make(map[uint32]*stream.Stream),
	}

	a.diag = diagserver.New(cfg.Diagnostics, registry, r, a.isReady, logger)
	a.control.SetUnsolicitedHandler(a.handleUnsolicited)

	r.SetFrameReadyHandler(func(windowID uint32, reader *shmring.Reader) {
		frame, err := reader.ReadNextFrame()
		if err != nil {
			logger.Debug("failed to read ready frame", "window_id", windowID, "error", err)
			return
		}
		if frame == nil {
			return
		}
		a.mu.Lock()
		s := a.windows[windowID]
		a.mu.Unlock()
		if s != nil {
			// s.DeliverSharedFrame records the frame into the registry
			// itself, the same single source the inline frameData path
			// uses, so neither path double-counts.
			s.DeliverSharedFrame(*frame)
		}
	})

	if cfg.Transport.UseSharedMemory {
		base, err := mapSharedRegion(cfg.Transport.SharedFD, sharedRegionSize)
		if err != nil {
			logger.Warn("failed to map shared-memory region, frames will be dropped", "error", err)
		} else {
			r.SetSharedMemoryRegion(base)
		}
	}

	return a, nil
}

// startDiscovery opens the unbound window-0 stream that receives
// WindowMetadata lifecycle events for windows the guest has not yet
// told spicehostd about, and creates/tears down per-window streams in
// response.
func (a *app) startDiscovery() error {
	policy := stream.ReconnectPolicy{
		InitialDelay: a.cfg.Reconnect.InitialDelay.Duration(),
		Multiplier:   a.cfg.Reconnect.Multiplier,
		MaxDelay:     a.cfg.Reconnect.MaxDelay.Duration(),
		MaxAttempts:  a.cfg.Reconnect.MaxAttempts,
	}

	tpCfg := transport.Config{
		Host: a.cfg.Transport.Host, Port: a.cfg.Transport.Port,
		TLS: a.cfg.Transport.TLS, Ticket: a.cfg.Transport.Ticket,
		Descriptor: a.cfg.Transport.SharedFD,
	}

	observer := stream.Observer{
		OnMetadata: a.handleWindowMetadata,
	}
	a.discover = stream.New(0, true, a.tp, tpCfg, policy, observer, a.logger)
	a.discover.SetRegistry(a.registry)
	return a.discover.Connect()
}

func (a *app) handleWindowMetadata(msg *protocol.WindowMetadataMsg) {
	switch msg.EventType {
	case protocol.WindowEventCreated:
		a.createWindowStream(msg.WindowID)
	case protocol.WindowEventDestroyed:
		a.destroyWindowStream(msg.WindowID)
	}
}

func (a *app) createWindowStream(windowID uint32) {
	a.mu.Lock()
	if _, exists := a.windows[windowID]; exists {
		a.mu.Unlock()
		return
	}
	a.mu.Unlock()

	policy := stream.ReconnectPolicy{
		InitialDelay: a.cfg.Reconnect.InitialDelay.Duration(),
		Multiplier:   a.cfg.Reconnect.Multiplier,
		MaxDelay:     a.cfg.Reconnect.MaxDelay.Duration(),
		MaxAttempts:  a.cfg.Reconnect.MaxAttempts,
	}
	tpCfg := transport.Config{
		Host: a.cfg.Transport.Host, Port: a.cfg.Transport.Port,
		TLS: a.cfg.Transport.TLS, Ticket: a.cfg.Transport.Ticket,
		Descriptor: a.cfg.Transport.SharedFD,
	}

	observer := stream.Observer{
		OnMetadata: a.handleWindowMetadata,
		OnStateChange: func(cs stream.ConnectionState) {
			a.diag.BroadcastStateChange(windowID, string(cs.Kind), cs.Reason)
		},
	}
	s := stream.New(windowID, false, a.tp, tpCfg, policy, observer, a.logger)
	s.SetRegistry(a.registry)

	a.mu.Lock()
	a.windows[windowID] = s
	a.mu.Unlock()

	a.registry.RegisterWindow(windowID)
	a.router.RegisterStream(s, windowID)

	if err := s.Connect(); err != nil {
		a.logger.Warn("failed to connect new window stream", "window_id", windowID, "error", err)
	}
}

func (a *app) destroyWindowStream(windowID uint32) {
	a.mu.Lock()
	s, ok := a.windows[windowID]
	delete(a.windows, windowID)
	a.mu.Unlock()
	if !ok {
		return
	}
	a.router.UnregisterStream(windowID)
	a.registry.UnregisterWindow(windowID)
	s.Close()
}

func (a *app) handleUnsolicited(env *protocol.Envelope) {
	switch env.Type {
	case protocol.TypeFrameReady:
		var msg protocol.FrameReadyMsg
		if err := env.Decode(&msg); err == nil {
			a.router.RouteFrameReady(msg.WindowID, msg.FrameNumber)
		}
	case protocol.TypeWindowBufferAlloc:
		var msg protocol.WindowBufferAllocatedMsg
		if err := env.Decode(&msg); err == nil {
			a.router.HandleBufferAllocation(router.AllocationInfo{
				WindowID: msg.WindowID, BufferOffset: msg.BufferOffset,
				BufferSize: msg.BufferSize, SlotSize: msg.SlotSize,
				SlotCount: msg.SlotCount, IsCompressed: msg.IsCompressed,
				UsesSharedMemory: msg.UsesSharedMemory,
			})
		}
	}
}

// isReady backs /readyz: ready once a shared-memory region is attached,
// or immediately for a non-shared-memory (mock/TCP) transport.
func (a *app) isReady() bool {
	return !a.cfg.Transport.UseSharedMemory || a.router.HasRegion()
}

// reconnectFailedStreams gives every window stream that has given up
// retrying one more chance, in response to SIGHUP (analogous to the
// teacher's SIGUSR1 worker reload, repurposed to "the operator fixed
// the guest, try again").
func (a *app) reconnectFailedStreams() {
	a.mu.Lock()
	streams := make([]*stream.Stream, 0, len(a.windows))
	for _, s := range a.windows {
		streams = append(streams, s)
	}
	a.mu.Unlock()

	for _, s := range streams {
		if s.ConnectionState().Kind == stream.StateFailed {
			s.Reconnect()
		}
	}
}

func (a *app) shutdown(ctx context.Context) {
	if err := a.diag.Stop(ctx); err != nil {
		a.logger.Error("diagnostics server shutdown error", "error", err)
	}
	if a.discover != nil {
		a.discover.Close()
	}
	a.mu.Lock()
	streams := make([]*stream.Stream, 0, len(a.windows))
	for _, s := range a.windows {
		streams = append(streams, s)
	}
	a.mu.Unlock()
	for _, s := range streams {
		s.Close()
	}
	a.router.Close()
}

func mapSharedRegion(fd int, size int) ([]byte, error) {
	data, err := syscall.Mmap(fd, 0, size, syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap fd %d: %w", fd, err)
	}
	return data, nil
}

func setupLogger(level, format string) (*slog.Logger, io.Closer) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler
	if format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	return slog.New(handler), nil
}

func printUsage() {
	fmt.Println(`spicehostd - macOS host-side Spice client runtime

Usage:
  spicehostd <command>

Commands:
  serve     Start the runtime (configured via WINRUN_SPICE_* env vars / WINRUN_SPICE_CONFIG)
  version   Show version
  help      Show this help

Signals:
  SIGHUP           Reconnect any window stream that has given up retrying
  SIGINT/SIGTERM   Graceful shutdown`)
}
