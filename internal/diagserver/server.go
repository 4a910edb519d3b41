// Package diagserver is the local HTTP(S) introspection surface the
// out-of-scope macOS UI/CLI consumes: liveness, readiness, Prometheus
// metrics, a JSON stream snapshot, and a live WebSocket feed of
// connection-state transitions. Grounded on the teacher's
// internal/server.Server and internal/websocket manager/handler.
package diagserver

import (
	"context"
	"crypto/tls"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/crypto/acme/autocert"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/sadewadee/spicehost/internal/config"
	"github.com/sadewadee/spicehost/internal/metrics"
	"github.com/sadewadee/spicehost/internal/router"
)

// Server is the diagnostics HTTP server.
type Server struct {
	cfg      config.DiagnosticsConfig
	registry *metrics.Registry
	router   *router.Router
	logger   *slog.Logger

	http    *http.Server
	bcast   *broadcaster
	readyFn func() bool
}

// New builds a diagnostics server. readyFn reports whether the core is
// ready to serve frames (in cmd/spicehostd: a shared-memory region is
// attached, or the shared-memory transport is not in use); it backs
// /readyz.
func New(cfg config.DiagnosticsConfig, registry *metrics.Registry, r *router.Router, readyFn func() bool, logger *slog.Logger) *Server {
	s := &Server{
		cfg:      cfg,
		registry: registry,
		router:   r,
		logger:   logger,
		bcast:    newBroadcaster(logger),
		readyFn:  readyFn,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/readyz", s.handleReadyz)
	mux.HandleFunc("/metrics", s.handleMetrics)
	mux.HandleFunc("/debug/streams", s.handleDebugStreams)
	mux.Handle("/debug/ws", newWebSocketHandler(s.bcast, logger))

	handler := coreMiddleware(logger)(mux)
	handler = compressionMiddleware()(handler)

	s.http = &http.Server{
		Addr:         cfg.Addr,
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	if cfg.ACMEDomain == "" {
		s.http.Handler = h2c.NewHandler(handler, &http2.Server{})
	}

	return s
}

// BroadcastStateChange fans out a stream state transition to every
// connected /debug/ws subscriber. Safe to call from any goroutine; the
// broadcast itself is serialized onto the broadcaster's own queue.
func (s *Server) BroadcastStateChange(windowID uint32, kind string, reason string) {
	s.bcast.publish(stateChangeEvent{
		WindowID: windowID,
		State:    kind,
		Reason:   reason,
		At:       time.Now(),
	})
}

// Start begins serving; it blocks until Stop is called or the listener fails.
func (s *Server) Start() error {
	if s.cfg.Addr == "" {
		s.logger.Info("diagnostics server disabled (no listen address configured)")
		return nil
	}

	if s.cfg.ACMEDomain != "" {
		manager := &autocert.Manager{
			Prompt:     autocert.AcceptTOS,
			HostPolicy: autocert.HostWhitelist(s.cfg.ACMEDomain),
			Cache:      autocert.DirCache("spicehostd-acme-cache"),
		}
		s.http.TLSConfig = &tls.Config{
			GetCertificate: manager.GetCertificate,
			MinVersion:     tls.VersionTLS12,
			NextProtos:     []string{"h2", "http/1.1", "acme-tls/1"},
		}
		s.logger.Info("diagnostics server starting with ACME TLS", "addr", s.cfg.Addr, "domain", s.cfg.ACMEDomain)
		return s.http.ListenAndServeTLS("", "")
	}

	s.logger.Info("diagnostics server starting", "addr", s.cfg.Addr)
	return s.http.ListenAndServe()
}

// Stop gracefully shuts down the diagnostics server.
func (s *Server) Stop(ctx context.Context) error {
	s.bcast.close()
	return s.http.Shutdown(ctx)
}
