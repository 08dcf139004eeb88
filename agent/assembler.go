package agent

import (
	"context"
	"fmt"

	"github.com/aschepis/backscratcher/travel/memory"
	"github.com/rs/zerolog"
)

// MemoryStore is the part of memory.Store the assembler depends on.
type MemoryStore interface {
	RecallWithSummary(ctx context.Context, sessionID, query string, maxTurns int) (*memory.SessionMemoryView, error)
	GetUserPreferences(ctx context.Context, sessionID string) (map[string]string, error)
	GetBookingHistory(ctx context.Context, sessionID string) ([]memory.Fact, error)
	GetChatHistory(ctx context.Context, sessionID string, limit int) ([]memory.Message, error)
	HasHistory(ctx context.Context, sessionID string) (bool, error)
	Remember(ctx context.Context, sessionID string, messages []memory.Message, userData map[string]any) (memory.Turn, error)
	StoreConversationSummary(ctx context.Context, sessionID string, threshold int) (*memory.Summary, error)
}

// MemoryContext is the memory loaded for one turn. A zero value means the
// turn runs without memory.
type MemoryContext struct {
	SessionID   string
	View        *memory.SessionMemoryView
	Preferences map[string]string
	Bookings    []memory.Fact
}

// Empty reports whether there is nothing to add to the prompt.
func (c *MemoryContext) Empty() bool {
	if c == nil {
		return true
	}
	return (c.View == nil || c.View.Empty()) && len(c.Preferences) == 0 && len(c.Bookings) == 0
}

func (c *MemoryContext) preferences() map[string]string {
	if c == nil {
		return nil
	}
	return c.Preferences
}

func (c *MemoryContext) bookings() []memory.Fact {
	if c == nil {
		return nil
	}
	return c.Bookings
}

// defaultRecallTurns bounds the recent turns loaded for a prompt.
const defaultRecallTurns = 3

// AssemblerConfig tunes how much memory is loaded and when it is folded.
type AssemblerConfig struct {
	RecallTurns      int
	HistoryTurns     int
	SummaryThreshold int
}

// Assembler loads memory before a turn and records the exchange after it.
type Assembler struct {
	store  MemoryStore
	cfg    AssemblerConfig
	logger zerolog.Logger
}

// NewAssembler creates an assembler. Zero config values take the memory
// package defaults.
func NewAssembler(store MemoryStore, cfg AssemblerConfig, logger zerolog.Logger) *Assembler {
	if cfg.RecallTurns <= 0 {
		cfg.RecallTurns = defaultRecallTurns
	}
	if cfg.HistoryTurns <= 0 {
		cfg.HistoryTurns = memory.DefaultHistoryTurns
	}
	if cfg.SummaryThreshold <= 0 {
		cfg.SummaryThreshold = memory.DefaultSummaryThreshold
	}
	return &Assembler{
		store:  store,
		cfg:    cfg,
		logger: logger.With().Str("component", "assembler").Logger(),
	}
}

// IsFirstMessage reports whether a turn opens its session: nothing has been
// processed in this process and nothing is stored.
func (a *Assembler) IsFirstMessage(ctx context.Context, sessionID string, turnsInProcess int) (bool, error) {
	if turnsInProcess > 0 {
		return false, nil
	}
	has, err := a.store.HasHistory(ctx, sessionID)
	if err != nil {
		return false, fmt.Errorf("check history: %w", err)
	}
	return !has, nil
}

// Load assembles the memory context for a turn. The first message of a
// session gets an empty context without touching the store.
func (a *Assembler) Load(ctx context.Context, sessionID, query string, firstMessage bool) (*MemoryContext, error) {
	mc := &MemoryContext{SessionID: sessionID}
	if firstMessage {
		a.logger.Debug().Str("session_id", sessionID).Msg("first message, skipping memory load")
		return mc, nil
	}

	view, err := a.store.RecallWithSummary(ctx, sessionID, query, a.cfg.RecallTurns)
	if err != nil {
		return nil, fmt.Errorf("recall: %w", err)
	}
	prefs, err := a.store.GetUserPreferences(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("preferences: %w", err)
	}
	bookings, err := a.store.GetBookingHistory(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("booking history: %w", err)
	}
	mc.View = view
	mc.Preferences = prefs
	mc.Bookings = bookings

	a.logger.Debug().
		Str("session_id", sessionID).
		Int("recent_turns", len(view.RecentTurns)).
		Int("relevant_turns", len(view.RelevantTurns)).
		Int("facts", len(view.Facts)).
		Int("preferences", len(prefs)).
		Int("bookings", len(bookings)).
		Msg("memory context loaded")
	return mc, nil
}

// History returns stored chat messages to replay ahead of the new message.
func (a *Assembler) History(ctx context.Context, sessionID string) ([]memory.Message, error) {
	return a.store.GetChatHistory(ctx, sessionID, a.cfg.HistoryTurns)
}

// Complete records the user and assistant messages as one turn, then gives
// the store a chance to fold old turns into a summary.
func (a *Assembler) Complete(ctx context.Context, sessionID, userMsg, assistantMsg string, userData map[string]any) error {
	msgs := []memory.Message{memory.UserMessage(userMsg), memory.AssistantMessage(assistantMsg)}
	if _, err := a.store.Remember(ctx, sessionID, msgs, userData); err != nil {
		return fmt.Errorf("remember turn: %w", err)
	}
	summary, err := a.store.StoreConversationSummary(ctx, sessionID, a.cfg.SummaryThreshold)
	if err != nil {
		return fmt.Errorf("summarize: %w", err)
	}
	if summary != nil {
		a.logger.Info().Str("session_id", sessionID).Int("turns", summary.TurnCount).Msg("folded turns into summary")
	}
	return nil
}

// Finalize folds the session with a low threshold when it ends.
func (a *Assembler) Finalize(ctx context.Context, sessionID string) (*memory.Summary, error) {
	return a.store.StoreConversationSummary(ctx, sessionID, memory.FinalSummaryThreshold)
}
