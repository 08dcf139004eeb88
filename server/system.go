package server

import (
	"context"
	"net/http"
	"time"
)

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// handleReady reports whether the database answers.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.db.PingContext(ctx); err != nil {
			respondJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if s.metrics == nil {
		http.NotFound(w, r)
		return
	}
	s.metrics.Handler().ServeHTTP(w, r)
}

// handleInfo returns process status.
func (s *Server) handleInfo(w http.ResponseWriter, _ *http.Request) {
	active := 0
	if s.sessions != nil {
		active = s.sessions.ActiveCount()
	}
	var uptime time.Duration
	if !s.startedAt.IsZero() {
		uptime = time.Since(s.startedAt).Round(time.Second)
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":          "running",
		"active_sessions": active,
		"tools":           s.tools,
		"uptime":          uptime.String(),
	})
}
