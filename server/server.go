// Package server exposes the travel agent over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/aschepis/backscratcher/travel/agent"
	"github.com/aschepis/backscratcher/travel/memory"
	"github.com/aschepis/backscratcher/travel/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// ChatService runs conversational turns.
type ChatService interface {
	Chat(ctx context.Context, sessionID, message string) (*agent.Reply, error)
	EndSession(ctx context.Context, sessionID string) error
}

// MemoryService reads and clears per-session memory.
type MemoryService interface {
	RecallWithSummary(ctx context.Context, sessionID, query string, maxTurns int) (*memory.SessionMemoryView, error)
	GetUserPreferences(ctx context.Context, sessionID string) (map[string]string, error)
	GetBookingHistory(ctx context.Context, sessionID string) ([]memory.Fact, error)
	GetChatHistory(ctx context.Context, sessionID string, limit int) ([]memory.Message, error)
	ClearSession(ctx context.Context, sessionID string) error
}

// Sessions is the live session registry as seen by the API. Touch returns
// an error when the session is not live.
type Sessions interface {
	ActiveCount() int
	Touch(id string) error
}

// Pinger checks backing storage.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Config holds server configuration options.
type Config struct {
	Addr   string
	Logger zerolog.Logger
}

// Server is the HTTP API and ops endpoint.
type Server struct {
	chat      ChatService
	memory    MemoryService
	sessions  Sessions
	db        Pinger
	tools     []string
	metrics   *metrics.Metrics
	logger    zerolog.Logger
	http      *http.Server
	startedAt time.Time
}

// New creates a Server. chat and mem may be nil, in which case their routes
// answer 503.
func New(cfg Config, chat ChatService, mem MemoryService, sessions Sessions, db Pinger, tools []string, m *metrics.Metrics) *Server {
	s := &Server{
		chat:     chat,
		memory:   mem,
		sessions: sessions,
		db:       db,
		tools:    tools,
		metrics:  m,
		logger:   cfg.Logger.With().Str("component", "http-server").Logger(),
	}
	s.http = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Router builds the route table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.logRequests)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", s.handleMetrics)
	r.Get("/v1/info", s.handleInfo)

	r.Post("/v1/chat", s.handleChat)
	r.Post("/v1/sessions/{id}/end", s.handleEndSession)
	r.Get("/v1/sessions/{id}/memory", s.handleGetMemory)
	r.Get("/v1/sessions/{id}/history", s.handleGetHistory)
	r.Delete("/v1/sessions/{id}/memory", s.handleClearMemory)
	return r
}

// Serve accepts connections on listener until Shutdown.
func (s *Server) Serve(listener net.Listener) error {
	s.startedAt = time.Now()
	s.logger.Info().Str("address", listener.Addr().String()).Msg("Starting HTTP server")
	if err := s.http.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ListenAndServe listens on the configured address.
func (s *Server) ListenAndServe() error {
	listener, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return err
	}
	return s.Serve(listener)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("Gracefully stopping HTTP server")
	return s.http.Shutdown(ctx)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		ev := s.logger.Debug()
		if rec.status >= http.StatusInternalServerError {
			ev = s.logger.Error()
		}
		ev.Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("request completed")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

type errorResponse struct {
	Error string `json:"error"`
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, errorResponse{Error: msg})
}
