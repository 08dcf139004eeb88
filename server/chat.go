package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/aschepis/backscratcher/travel/llm"
	"github.com/aschepis/backscratcher/travel/session"
	"github.com/go-chi/chi/v5"
)

type chatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

type chatResponse struct {
	SessionID    string  `json:"session_id"`
	Response     string  `json:"response"`
	Intent       string  `json:"intent"`
	Confidence   float64 `json:"confidence"`
	FirstMessage bool    `json:"first_message"`
}

// handleChat runs one turn. An empty session_id starts a new session.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if s.chat == nil {
		respondError(w, http.StatusServiceUnavailable, "chat is not configured")
		return
	}
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		respondError(w, http.StatusBadRequest, "message is required")
		return
	}

	reply, err := s.chat.Chat(r.Context(), strings.TrimSpace(req.SessionID), req.Message)
	if err != nil {
		s.logger.Error().Err(err).Str("session_id", req.SessionID).Msg("chat turn failed")
		respondError(w, chatErrorStatus(err), err.Error())
		return
	}
	respondJSON(w, http.StatusOK, chatResponse{
		SessionID:    reply.SessionID,
		Response:     reply.Text,
		Intent:       string(reply.Classification.Intent),
		Confidence:   reply.Classification.Confidence,
		FirstMessage: reply.FirstMessage,
	})
}

func chatErrorStatus(err error) int {
	switch llm.TypeOf(err) {
	case llm.ErrorTypeTimeout:
		return http.StatusGatewayTimeout
	case llm.ErrorTypeRateLimit:
		return http.StatusTooManyRequests
	case llm.ErrorTypeProvider:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// handleEndSession writes the final summary and drops the live session.
func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	if s.chat == nil {
		respondError(w, http.StatusServiceUnavailable, "chat is not configured")
		return
	}
	id := chi.URLParam(r, "id")
	if err := s.chat.EndSession(r.Context(), id); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			respondError(w, http.StatusNotFound, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"session_id": id, "ended": true})
}
