package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// handleIndex returns basic service information
// GET / - Returns service info and available endpoints
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	info := map[string]any{
		"service":     "ledgermeta",
		"description": "Ledger state snapshot, sync and backfill",
		"endpoints": map[string]string{
			"GET /":        "This page - Service information",
			"GET /health":  "Health check endpoint",
			"GET /metrics": "Prometheus metrics for monitoring",
			"GET /status":  "Snapshot, sync and backfill progress",
			"GET /nodes":   "Upstream node health",
		},
	}
	s.sendJSON(w, info, http.StatusOK)
}

// handleHealth returns health status
// GET /health - 503 when the store is unreachable
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"service":   "ledgermeta",
	}

	if s.store != nil {
		if err := s.store.Ping(r.Context()); err != nil {
			health["status"] = "unhealthy"
			health["error"] = err.Error()
			s.sendJSON(w, health, http.StatusServiceUnavailable)
			return
		}
	}
	s.sendJSON(w, health, http.StatusOK)
}

// handleMetrics returns Prometheus metrics
// GET /metrics - Prometheus scraping endpoint
func (s *Server) handleMetrics() http.Handler {
	return promhttp.Handler()
}

// handleStatus reports ingest progress
// GET /status
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := BuildStatus(r.Context(), s.status)
	if err != nil {
		slog.Error("Failed to build status", "error", err)
		s.sendError(w, "Failed to read status", http.StatusInternalServerError)
		return
	}
	s.sendJSON(w, status, http.StatusOK)
}

// handleNodes reports upstream node health
// GET /nodes
func (s *Server) handleNodes(w http.ResponseWriter, r *http.Request) {
	if s.nodes == nil {
		s.sendJSON(w, []any{}, http.StatusOK)
		return
	}
	s.sendJSON(w, s.nodes.Stats(), http.StatusOK)
}

func (s *Server) sendJSON(w http.ResponseWriter, body any, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// sendError sends a JSON error response
func (s *Server) sendError(w http.ResponseWriter, message string, code int) {
	s.sendJSON(w, map[string]any{
		"error":  message,
		"status": code,
	}, code)
}
