package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/aschepis/backscratcher/travel/memory"
	"github.com/go-chi/chi/v5"
	"github.com/samber/lo"
)

type turnView struct {
	ID        int64          `json:"id"`
	Messages  []messageView  `json:"messages"`
	UserData  map[string]any `json:"user_data,omitempty"`
	CreatedAt string         `json:"created_at"`
}

type messageView struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type memoryResponse struct {
	SessionID     string            `json:"session_id"`
	Summary       string            `json:"summary"`
	Preferences   map[string]string `json:"preferences"`
	Bookings      []memory.Fact     `json:"bookings"`
	Facts         []memory.Fact     `json:"facts"`
	RecentTurns   []turnView        `json:"recent_turns"`
	RelevantTurns []turnView        `json:"relevant_turns"`
}

// handleGetMemory returns what the agent remembers about a session. The
// optional q parameter steers the similarity search.
func (s *Server) handleGetMemory(w http.ResponseWriter, r *http.Request) {
	if s.memory == nil {
		respondError(w, http.StatusServiceUnavailable, "memory is not configured")
		return
	}
	id := chi.URLParam(r, "id")
	ctx := r.Context()

	view, err := s.memory.RecallWithSummary(ctx, id, r.URL.Query().Get("q"), intParam(r, "turns", 3))
	if err != nil {
		respondMemoryError(w, err)
		return
	}
	prefs, err := s.memory.GetUserPreferences(ctx, id)
	if err != nil {
		respondMemoryError(w, err)
		return
	}
	bookings, err := s.memory.GetBookingHistory(ctx, id)
	if err != nil {
		respondMemoryError(w, err)
		return
	}

	s.touch(id)
	respondJSON(w, http.StatusOK, memoryResponse{
		SessionID:     id,
		Summary:       view.Summary,
		Preferences:   prefs,
		Bookings:      lo.Ternary(bookings == nil, []memory.Fact{}, bookings),
		Facts:         lo.Ternary(view.Facts == nil, []memory.Fact{}, view.Facts),
		RecentTurns:   lo.Map(view.RecentTurns, toTurnView),
		RelevantTurns: lo.Map(view.RelevantTurns, toTurnView),
	})
}

// handleGetHistory returns the reconstructed chat history, oldest first.
func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	if s.memory == nil {
		respondError(w, http.StatusServiceUnavailable, "memory is not configured")
		return
	}
	id := chi.URLParam(r, "id")
	msgs, err := s.memory.GetChatHistory(r.Context(), id, intParam(r, "limit", memory.DefaultHistoryTurns))
	if err != nil {
		respondMemoryError(w, err)
		return
	}
	s.touch(id)
	respondJSON(w, http.StatusOK, map[string]any{
		"session_id": id,
		"messages":   lo.Map(msgs, toMessageView),
	})
}

// handleClearMemory deletes everything stored for a session.
func (s *Server) handleClearMemory(w http.ResponseWriter, r *http.Request) {
	if s.memory == nil {
		respondError(w, http.StatusServiceUnavailable, "memory is not configured")
		return
	}
	id := chi.URLParam(r, "id")
	if err := s.memory.ClearSession(r.Context(), id); err != nil {
		respondMemoryError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"session_id": id, "cleared": true})
}

// touch keeps a live session from idling out while a client reads its
// memory. Sessions that are not live are left alone.
func (s *Server) touch(id string) {
	if s.sessions == nil {
		return
	}
	_ = s.sessions.Touch(id)
}

func respondMemoryError(w http.ResponseWriter, err error) {
	if errors.Is(err, memory.ErrEmptySession) {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondError(w, http.StatusInternalServerError, err.Error())
}

func intParam(r *http.Request, name string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil || v <= 0 {
		return def
	}
	return v
}

func toTurnView(t memory.Turn, _ int) turnView {
	return turnView{
		ID:        t.ID,
		Messages:  lo.Map(memory.DeserializeAll(t.Messages), toMessageView),
		UserData:  t.UserData,
		CreatedAt: t.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
	}
}

func toMessageView(m memory.Message, _ int) messageView {
	return messageView{Role: m.Role.String(), Content: m.Content}
}
