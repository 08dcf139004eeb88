package memory

import (
	"errors"
	"time"
)

// ErrEmptySession is returned by every session-scoped operation when the
// session identifier is blank.
var ErrEmptySession = errors.New("session id is empty")

// FactKind classifies a structured signal extracted from conversation text.
type FactKind string

const (
	FactBooking     FactKind = "booking"
	FactPreference  FactKind = "preference"
	FactDestination FactKind = "destination"
)

// Preference keys assigned by the fact extractor.
const (
	PreferenceBudget   = "budget_preference"
	PreferenceLocation = "location_preference"
	PreferenceGeneral  = "general_preference"
)

const (
	// DefaultRecallTurns bounds recent turns when the caller passes no limit.
	DefaultRecallTurns = 5
	// RelevantTurnsK is the number of turns requested from the similarity index on recall.
	RelevantTurnsK = 3
	// MaxRecalledFacts caps facts returned by recall.
	MaxRecalledFacts = 10
	// DefaultHistoryTurns is the turn limit for chat history reconstruction.
	DefaultHistoryTurns = 10
	// MaxHistoryMessages caps the flattened chat history.
	MaxHistoryMessages = 20
	// DefaultSummaryThreshold is the turn count that triggers a summary fold.
	DefaultSummaryThreshold = 10
	// FinalSummaryThreshold is used for the end-of-session fold; it is the
	// smallest threshold that still folds a turn.
	FinalSummaryThreshold = 3
	// DefaultRetentionDays is the age after which cleanup removes records.
	DefaultRetentionDays = 30
)

// Turn is one persisted conversational exchange.
type Turn struct {
	ID        int64          `json:"id"`
	SessionID string         `json:"session_id"`
	Messages  []Record       `json:"messages"`
	UserData  map[string]any `json:"user_data,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Fact is a structured signal distilled from a turn. Key and Value are only
// populated for preference facts.
type Fact struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"session_id"`
	Kind      FactKind  `json:"kind"`
	Content   string    `json:"content"`
	Key       string    `json:"key,omitempty"`
	Value     string    `json:"value,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Summary replaces a folded, contiguous range of turns.
type Summary struct {
	ID         int64     `json:"id"`
	SessionID  string    `json:"session_id"`
	Text       string    `json:"summary"`
	TurnCount  int       `json:"turn_count"`
	RangeStart time.Time `json:"range_start"`
	RangeEnd   time.Time `json:"range_end"`
	CreatedAt  time.Time `json:"created_at"`
}

// EmbeddingRecord is the vector form of one turn's concatenated text.
type EmbeddingRecord struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"session_id"`
	TurnID    int64     `json:"turn_id"`
	Content   string    `json:"content"`
	Vector    []float32 `json:"vector,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// SessionMemoryView is the context assembled for a single turn. It is built
// fresh on every recall.
type SessionMemoryView struct {
	SessionID     string
	RecentTurns   []Turn
	RelevantTurns []Turn
	Facts         []Fact
	Summary       string
	Preferences   map[string]string
}

// Empty reports whether the view carries no recalled memory at all.
func (v *SessionMemoryView) Empty() bool {
	if v == nil {
		return true
	}
	return len(v.RecentTurns) == 0 && len(v.RelevantTurns) == 0 &&
		len(v.Facts) == 0 && v.Summary == "" && len(v.Preferences) == 0
}

// CleanupReport counts rows removed by a retention sweep.
type CleanupReport struct {
	Turns      int64
	Facts      int64
	Summaries  int64
	Embeddings int64
}

// Total returns the number of rows removed across all tables.
func (r CleanupReport) Total() int64 {
	return r.Turns + r.Facts + r.Summaries + r.Embeddings
}
