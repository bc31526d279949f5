// Package server assembles the HTTP + WebSocket API surface.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/anchorbot/internal/server/handler"
	"github.com/alanyoungcy/anchorbot/internal/server/middleware"
	"github.com/alanyoungcy/anchorbot/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled
}

// Handlers aggregates the HTTP handlers the server registers.
type Handlers struct {
	Health    *handler.HealthHandler
	Cycles    *handler.CycleHandler
	Positions *handler.PositionHandler
	Events    *handler.EventHandler
	Metrics   http.Handler // optional; serves GET /metrics when set
}

// Server is the headless HTTP + WebSocket API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered and the middleware
// chain (auth, logging, CORS) applied. wsHub may be nil.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check (no auth required for the rest either; auth is uniform).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Manual cycle trigger and worker introspection.
	mux.HandleFunc("POST /api/cycles/run", handlers.Cycles.RunCycles)
	mux.HandleFunc("GET /api/worker/status", handlers.Cycles.WorkerStatus)

	// Position endpoints.
	mux.HandleFunc("POST /api/positions", handlers.Positions.CreatePosition)
	mux.HandleFunc("GET /api/positions", handlers.Positions.ListPositions)
	mux.HandleFunc("GET /api/positions/{id}", handlers.Positions.GetPosition)
	mux.HandleFunc("PUT /api/positions/{id}/auto_cycle", handlers.Positions.SetAutoCycle)
	mux.HandleFunc("POST /api/positions/{id}/dividends", handlers.Positions.AccrueDividend)
	mux.HandleFunc("POST /api/positions/{id}/dividends/pay", handlers.Positions.PayDividend)

	// Audit trail endpoints.
	mux.HandleFunc("GET /api/events", handlers.Events.ListEvents)
	mux.HandleFunc("GET /api/events/export", handlers.Events.ExportEvents)
	mux.HandleFunc("POST /api/archive/run", handlers.Events.RunArchive)

	// Prometheus metrics.
	if handlers.Metrics != nil {
		mux.Handle("GET /metrics", handlers.Metrics)
	}

	// WebSocket event tail.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey)(h)
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
