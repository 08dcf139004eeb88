package memory

import (
	"context"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/samber/lo"
)

var recallKinds = []string{string(FactBooking), string(FactPreference), string(FactDestination)}

// Recall assembles recent turns, similarity-ranked turns and matching facts
// for the session. maxTurns <= 0 uses DefaultRecallTurns.
func (s *Store) Recall(ctx context.Context, sessionID, query string, maxTurns int) (*SessionMemoryView, error) {
	s.logger.Debug().
		Str("method", "Recall").
		Str("session_id", sessionID).
		Str("query", truncateString(query, 40)).
		Int("max_turns", maxTurns).
		Msg("called")
	if sessionID == "" {
		return nil, ErrEmptySession
	}
	if maxTurns <= 0 {
		maxTurns = DefaultRecallTurns
	}

	recent, err := s.recentTurns(ctx, sessionID, maxTurns)
	if err != nil {
		return nil, fmt.Errorf("recent turns: %w", err)
	}

	var relevant []Turn
	refs, err := s.index.Search(ctx, sessionID, query, RelevantTurnsK)
	if err != nil {
		s.logger.Warn().Str("method", "Recall").Str("session_id", sessionID).Err(err).Msg("Similarity search failed")
	} else if len(refs) > 0 {
		relevant, err = s.turnsByID(ctx, sessionID, refs)
		if err != nil {
			s.logger.Warn().Str("method", "Recall").Str("session_id", sessionID).Err(err).Msg("Failed to load relevant turns")
			relevant = nil
		}
	}

	facts, err := s.matchingFacts(ctx, sessionID, query)
	if err != nil {
		return nil, fmt.Errorf("facts: %w", err)
	}

	return &SessionMemoryView{
		SessionID:     sessionID,
		RecentTurns:   recent,
		RelevantTurns: relevant,
		Facts:         facts,
	}, nil
}

// RecallWithSummary is Recall plus the session's accumulated summaries.
func (s *Store) RecallWithSummary(ctx context.Context, sessionID, query string, maxTurns int) (*SessionMemoryView, error) {
	view, err := s.Recall(ctx, sessionID, query, maxTurns)
	if err != nil {
		return nil, err
	}
	summary, err := s.ConversationSummary(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	view.Summary = summary
	return view, nil
}

// ConversationSummary concatenates all summaries of the session oldest
// first, each prefixed with the date range it covers.
func (s *Store) ConversationSummary(ctx context.Context, sessionID string) (string, error) {
	summaries, err := s.Summaries(ctx, sessionID)
	if err != nil {
		return "", err
	}
	parts := lo.Map(summaries, func(sum Summary, _ int) string {
		return fmt.Sprintf("Summary from %s to %s:\n%s",
			sum.RangeStart.Format("2006-01-02"), sum.RangeEnd.Format("2006-01-02"), sum.Text)
	})
	return strings.Join(parts, "\n\n"), nil
}

// Summaries returns every summary of the session, oldest first.
func (s *Store) Summaries(ctx context.Context, sessionID string) ([]Summary, error) {
	if sessionID == "" {
		return nil, ErrEmptySession
	}
	query, args, err := StatementBuilder().
		Select(summaryColumns...).
		From("summaries").
		Where(sq.Eq{"session_id": sessionID}).
		OrderBy("created_at ASC", "id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query summaries: %w", err)
	}
	defer rows.Close() //nolint:errcheck // No remedy for rows close errors

	var out []Summary
	for rows.Next() {
		sum, err := scanSummary(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

// GetUserPreferences folds the session's preference facts into a key/value
// map. Later facts override earlier ones with the same key.
func (s *Store) GetUserPreferences(ctx context.Context, sessionID string) (map[string]string, error) {
	facts, err := s.factsOfKind(ctx, sessionID, FactPreference, "id ASC")
	if err != nil {
		return nil, err
	}
	prefs := make(map[string]string, len(facts))
	for _, f := range facts {
		if f.Key == "" {
			continue
		}
		prefs[f.Key] = f.Value
	}
	return prefs, nil
}

// GetBookingHistory returns the session's booking facts, newest first.
func (s *Store) GetBookingHistory(ctx context.Context, sessionID string) ([]Fact, error) {
	return s.factsOfKind(ctx, sessionID, FactBooking, "created_at DESC", "id DESC")
}

func (s *Store) recentTurns(ctx context.Context, sessionID string, limit int) ([]Turn, error) {
	return s.selectTurns(ctx, StatementBuilder().
		Select(turnColumns...).
		From("turns").
		Where(sq.Eq{"session_id": sessionID}).
		OrderBy("created_at DESC", "id DESC").
		Limit(uint64(limit))) //nolint:gosec // limit is positive
}

func (s *Store) oldestTurns(ctx context.Context, sessionID string, limit int) ([]Turn, error) {
	return s.selectTurns(ctx, StatementBuilder().
		Select(turnColumns...).
		From("turns").
		Where(sq.Eq{"session_id": sessionID}).
		OrderBy("created_at ASC", "id ASC").
		Limit(uint64(limit))) //nolint:gosec // limit is positive
}

// turnsByID loads the given turns of the session in the order of ids.
// Ids that no longer exist are skipped.
func (s *Store) turnsByID(ctx context.Context, sessionID string, ids []int64) ([]Turn, error) {
	turns, err := s.selectTurns(ctx, StatementBuilder().
		Select(turnColumns...).
		From("turns").
		Where(sq.Eq{"session_id": sessionID}).
		Where(sq.Eq{"id": ids}))
	if err != nil {
		return nil, err
	}
	byID := lo.KeyBy(turns, func(t Turn) int64 { return t.ID })
	return lo.FilterMap(ids, func(id int64, _ int) (Turn, bool) {
		t, ok := byID[id]
		return t, ok
	}), nil
}

func (s *Store) selectTurns(ctx context.Context, b sq.SelectBuilder) ([]Turn, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck // No remedy for rows close errors

	var out []Turn
	for rows.Next() {
		t, err := scanTurn(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// matchingFacts returns facts whose content contains query case-insensitively
// or whose kind is one of the travel kinds, capped at MaxRecalledFacts.
func (s *Store) matchingFacts(ctx context.Context, sessionID, query string) ([]Fact, error) {
	return s.selectFacts(ctx, StatementBuilder().
		Select(factColumns...).
		From("facts").
		Where(sq.Eq{"session_id": sessionID}).
		Where(sq.Or{
			sq.Expr("instr(lower(content), lower(?)) > 0", query),
			sq.Eq{"kind": recallKinds},
		}).
		OrderBy("id ASC").
		Limit(MaxRecalledFacts))
}

func (s *Store) factsOfKind(ctx context.Context, sessionID string, kind FactKind, orderBy ...string) ([]Fact, error) {
	if sessionID == "" {
		return nil, ErrEmptySession
	}
	return s.selectFacts(ctx, StatementBuilder().
		Select(factColumns...).
		From("facts").
		Where(sq.Eq{"session_id": sessionID}).
		Where(sq.Eq{"kind": string(kind)}).
		OrderBy(orderBy...))
}

func (s *Store) selectFacts(ctx context.Context, b sq.SelectBuilder) ([]Fact, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck // No remedy for rows close errors

	var out []Fact
	for rows.Next() {
		f, err := scanFact(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}
