package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/aschepis/backscratcher/travel/metrics"
	"github.com/rs/zerolog"
)

// Store owns every persisted memory entity: turns, facts, summaries and
// embeddings. All reads and writes are scoped by session id.
type Store struct {
	db         *sql.DB
	index      *Index
	summarizer *Summarizer
	locks      *sessionLocks
	metrics    *metrics.Metrics
	logger     zerolog.Logger
	now        func() time.Time

	embedder     Embedder
	embedTimeout time.Duration
}

// Option configures a Store.
type Option func(*Store)

// WithSummarizer sets the summarizer used to fold old turns. Without it every
// fold uses the fallback summary.
func WithSummarizer(s *Summarizer) Option {
	return func(st *Store) { st.summarizer = s }
}

// WithMetrics attaches Prometheus instruments.
func WithMetrics(m *metrics.Metrics) Option {
	return func(st *Store) { st.metrics = m }
}

// WithClock overrides the time source used for stored timestamps.
func WithClock(now func() time.Time) Option {
	return func(st *Store) { st.now = now }
}

// WithEmbedTimeout bounds each embedding call.
func WithEmbedTimeout(d time.Duration) Option {
	return func(st *Store) { st.embedTimeout = d }
}

// NewStore creates and returns a Store. embedder may be nil.
func NewStore(db *sql.DB, embedder Embedder, logger zerolog.Logger, opts ...Option) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("db is nil")
	}
	logger = logger.With().Str("component", "memory_store").Logger()
	s := &Store{
		db:       db,
		embedder: embedder,
		locks:    newSessionLocks(),
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}

	s.index = NewIndex(db, embedder, s.embedTimeout, logger)
	s.index.metrics = s.metrics
	s.index.now = s.now

	if s.summarizer == nil {
		s.summarizer = NewSummarizer(nil, 0, logger)
	}

	logger.Info().Bool("embedder", embedder != nil).Msg("Initialized memory store")
	return s, nil
}

// Index exposes the store's similarity index.
func (s *Store) Index() *Index { return s.index }

// Remember appends one turn for the session, then records the facts it
// carries and indexes its text. A failed turn insert is returned and nothing
// else is attempted. Fact and embedding failures are logged and counted but
// do not fail the call.
func (s *Store) Remember(ctx context.Context, sessionID string, messages []Message, userData map[string]any) (Turn, error) {
	s.logger.Debug().
		Str("method", "Remember").
		Str("session_id", sessionID).
		Int("messages", len(messages)).
		Msg("called")
	if sessionID == "" {
		return Turn{}, ErrEmptySession
	}

	unlock := s.locks.lock(sessionID)
	defer unlock()

	turn := Turn{
		SessionID: sessionID,
		Messages:  make([]Record, 0, len(messages)),
		UserData:  userData,
		CreatedAt: s.now(),
	}
	for _, m := range messages {
		turn.Messages = append(turn.Messages, Serialize(m))
	}

	id, err := s.insertTurn(ctx, turn)
	if err != nil {
		s.logger.Error().
			Str("method", "Remember").
			Str("session_id", sessionID).
			Err(err).
			Msg("Failed to insert turn")
		return Turn{}, fmt.Errorf("insert turn: %w", err)
	}
	turn.ID = id
	s.metrics.IncTurnsRemembered()

	facts := ExtractFactsAt(messages, sessionID, s.now())
	if err := s.insertFacts(ctx, facts); err != nil {
		s.logger.Error().
			Str("method", "Remember").
			Str("session_id", sessionID).
			Int64("turn_id", id).
			Int("facts", len(facts)).
			Err(err).
			Msg("Failed to store extracted facts")
		s.metrics.IncSubWriteFailure("facts")
	} else {
		for kind, n := range countByKind(facts) {
			s.metrics.AddFacts(string(kind), n)
		}
	}

	if text := ConcatContent(messages); text != "" {
		if err := s.index.Add(ctx, sessionID, id, text); err != nil {
			s.logger.Error().
				Str("method", "Remember").
				Str("session_id", sessionID).
				Int64("turn_id", id).
				Err(err).
				Msg("Failed to index turn")
			s.metrics.IncSubWriteFailure("embedding")
		}
	}

	return turn, nil
}

func (s *Store) insertTurn(ctx context.Context, t Turn) (int64, error) {
	msgsJSON, err := json.Marshal(t.Messages)
	if err != nil {
		return 0, fmt.Errorf("marshal messages: %w", err)
	}
	var userData any
	if len(t.UserData) > 0 {
		b, err := json.Marshal(t.UserData)
		if err != nil {
			return 0, fmt.Errorf("marshal user data: %w", err)
		}
		userData = string(b)
	}

	query, args, err := StatementBuilder().
		Insert("turns").
		Columns("session_id", "messages", "user_data", "created_at").
		Values(t.SessionID, string(msgsJSON), userData, t.CreatedAt.UnixNano()).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build insert: %w", err)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// insertFacts writes all facts in a single statement.
func (s *Store) insertFacts(ctx context.Context, facts []Fact) error {
	if len(facts) == 0 {
		return nil
	}
	b := StatementBuilder().
		Insert("facts").
		Columns("session_id", "kind", "content", "pref_key", "pref_value", "created_at")
	for _, f := range facts {
		b = b.Values(f.SessionID, string(f.Kind), f.Content, nullable(f.Key), nullable(f.Value), f.CreatedAt.UnixNano())
	}
	query, args, err := b.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	_, err = s.db.ExecContext(ctx, query, args...)
	return err
}

// ClearSession removes every turn, fact, summary and embedding of a session.
func (s *Store) ClearSession(ctx context.Context, sessionID string) error {
	s.logger.Debug().Str("method", "ClearSession").Str("session_id", sessionID).Msg("called")
	if sessionID == "" {
		return ErrEmptySession
	}

	unlock := s.locks.lock(sessionID)
	defer unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range memoryTables {
		query, args, err := StatementBuilder().
			Delete(table).
			Where(sq.Eq{"session_id": sessionID}).
			ToSql()
		if err != nil {
			return fmt.Errorf("build delete: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	s.logger.Info().Str("session_id", sessionID).Msg("Cleared session memory")
	return nil
}

// HasHistory reports whether the session has any stored turns or summaries.
func (s *Store) HasHistory(ctx context.Context, sessionID string) (bool, error) {
	if sessionID == "" {
		return false, ErrEmptySession
	}
	turns, err := s.TurnCount(ctx, sessionID)
	if err != nil {
		return false, err
	}
	if turns > 0 {
		return true, nil
	}
	summaries, err := s.countRows(ctx, "summaries", sessionID)
	if err != nil {
		return false, err
	}
	return summaries > 0, nil
}

// TurnCount returns the number of stored turns for a session.
func (s *Store) TurnCount(ctx context.Context, sessionID string) (int, error) {
	if sessionID == "" {
		return 0, ErrEmptySession
	}
	return s.countRows(ctx, "turns", sessionID)
}

func (s *Store) countRows(ctx context.Context, table, sessionID string) (int, error) {
	query, args, err := StatementBuilder().
		Select("COUNT(*)").
		From(table).
		Where(sq.Eq{"session_id": sessionID}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build query: %w", err)
	}
	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

func countByKind(facts []Fact) map[FactKind]int {
	out := make(map[FactKind]int)
	for _, f := range facts {
		out[f.Kind]++
	}
	return out
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
