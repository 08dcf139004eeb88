package memory

import (
	"context"
	"slices"
)

// GetChatHistory rebuilds the chat transcript from the newest limit turns,
// in chronological order, keeping at most MaxHistoryMessages messages.
// Records that fail to decode are dropped. limit <= 0 uses
// DefaultHistoryTurns.
func (s *Store) GetChatHistory(ctx context.Context, sessionID string, limit int) ([]Message, error) {
	if sessionID == "" {
		return nil, ErrEmptySession
	}
	if limit <= 0 {
		limit = DefaultHistoryTurns
	}

	turns, err := s.recentTurns(ctx, sessionID, limit)
	if err != nil {
		return nil, err
	}
	slices.Reverse(turns)

	var messages []Message
	for _, t := range turns {
		messages = append(messages, DeserializeAll(t.Messages)...)
	}
	if len(messages) > MaxHistoryMessages {
		messages = messages[len(messages)-MaxHistoryMessages:]
	}
	return messages, nil
}

// ChatHistory is a per-session view of the store shaped like a chat
// message history.
type ChatHistory struct {
	store     *Store
	sessionID string
	limit     int
}

// History returns the chat history view of a session.
func (s *Store) History(sessionID string) *ChatHistory {
	return &ChatHistory{store: s, sessionID: sessionID, limit: DefaultHistoryTurns}
}

// Messages returns the reconstructed transcript.
func (h *ChatHistory) Messages(ctx context.Context) ([]Message, error) {
	return h.store.GetChatHistory(ctx, h.sessionID, h.limit)
}

// AddMessage stores a single message as its own turn.
func (h *ChatHistory) AddMessage(ctx context.Context, m Message) error {
	_, err := h.store.Remember(ctx, h.sessionID, []Message{m}, nil)
	return err
}

// Clear fully resets the session's memory.
func (h *ChatHistory) Clear(ctx context.Context) error {
	return h.store.ClearSession(ctx, h.sessionID)
}
