// Package server exposes the read-only status API, the Prometheus metrics
// endpoint and the WebSocket snapshot stream. All trading decisions happen in
// the engine; nothing routed here can mutate engine state.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/quantfold/polyscout/internal/config"
	"github.com/quantfold/polyscout/internal/server/handler"
	"github.com/quantfold/polyscout/internal/server/middleware"
	"github.com/quantfold/polyscout/internal/server/ws"
)

// Handlers aggregates the HTTP handlers the server registers.
type Handlers struct {
	Health    *handler.HealthHandler
	Status    *handler.StatusHandler
	Positions *handler.PositionHandler
}

// Server is the HTTP + WebSocket API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer registers all routes and builds the middleware chain. The metrics
// handler and WebSocket hub are optional; pass nil to skip their routes.
func NewServer(cfg config.ServerConfig, handlers Handlers, metricsHandler http.Handler, wsHub *ws.Hub, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	mux.HandleFunc("GET /api/status", handlers.Status.Status)
	mux.HandleFunc("GET /api/opportunities", handlers.Status.Opportunities)
	mux.HandleFunc("GET /api/risk", handlers.Status.Risk)
	mux.HandleFunc("GET /api/detectors", handlers.Status.Detectors)

	mux.HandleFunc("GET /api/positions", handlers.Positions.ListOpen)
	mux.HandleFunc("GET /api/positions/history", handlers.Positions.History)
	mux.HandleFunc("GET /api/pnl", handlers.Positions.Pnl)

	if metricsHandler != nil {
		mux.Handle("GET /metrics", metricsHandler)
	}

	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	var h http.Handler = mux
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
		logger:     logger.With(slog.String("component", "server")),
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
