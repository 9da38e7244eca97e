package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"ledgermeta/internal/xrpl"
)

// NodeStatsSource reports the health of upstream nodes
type NodeStatsSource interface {
	Stats() []xrpl.NodeStats
}

// Pinger checks store connectivity
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server represents the HTTP API server
// Provides endpoints for Prometheus metrics, health checks and ingest status
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	status     StatusSource
	store      Pinger
	nodes      NodeStatsSource
	port       int
}

// NewServer creates a new API server instance
func NewServer(port int, status StatusSource, store Pinger, nodes NodeStatsSource) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", port),
			Handler:      mux,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		mux:    mux,
		status: status,
		store:  store,
		nodes:  nodes,
		port:   port,
	}

	s.registerRoutes()
	return s
}

// Handler returns the server's router
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /{$}", s.handleIndex)
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.Handle("GET /metrics", s.handleMetrics())
	s.mux.HandleFunc("GET /status", s.handleStatus)
	s.mux.HandleFunc("GET /nodes", s.handleNodes)
}

// Start starts the HTTP server in a goroutine
// Returns immediately after starting the server
func (s *Server) Start() error {
	go func() {
		slog.Info("API server starting",
			"port", s.port,
			"endpoints", []string{"/", "/health", "/metrics", "/status", "/nodes"},
		)

		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("API server error", "error", err)
		}
	}()
	return nil
}

// Shutdown gracefully shuts down the HTTP server
// Waits for active connections to close or context to timeout
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("API server shutting down...")
	return s.httpServer.Shutdown(ctx)
}
