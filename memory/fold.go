package memory

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/samber/lo"
)

// foldMargin is the number of newest turns kept out of a fold when the
// threshold is reached.
const foldMargin = 2

// StoreConversationSummary folds the oldest threshold-2 turns of the session
// into a summary once at least threshold turns exist. The folded turns and
// their embeddings are deleted in the same transaction that writes the
// summary. It returns nil when no fold happened. A threshold of 2 or less
// never folds.
func (s *Store) StoreConversationSummary(ctx context.Context, sessionID string, threshold int) (*Summary, error) {
	s.logger.Debug().
		Str("method", "StoreConversationSummary").
		Str("session_id", sessionID).
		Int("threshold", threshold).
		Msg("called")
	if sessionID == "" {
		return nil, ErrEmptySession
	}
	if threshold <= foldMargin {
		return nil, nil
	}

	unlock := s.locks.lock(sessionID)
	defer unlock()

	count, err := s.TurnCount(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if count < threshold {
		return nil, nil
	}

	turns, err := s.oldestTurns(ctx, sessionID, threshold-foldMargin)
	if err != nil {
		return nil, fmt.Errorf("select turns to fold: %w", err)
	}
	if len(turns) == 0 {
		return nil, nil
	}

	result := s.summarizer.Attempt(ctx, turns)
	fallback := !result.OK()
	if fallback {
		s.logger.Warn().
			Str("session_id", sessionID).
			Int("turns", len(turns)).
			AnErr("reason", result.Err).
			Msg("Using fallback summary")
	}

	summary := Summary{
		SessionID:  sessionID,
		Text:       result.TextOrFallback(len(turns)),
		TurnCount:  len(turns),
		RangeStart: turns[0].CreatedAt,
		RangeEnd:   turns[len(turns)-1].CreatedAt,
		CreatedAt:  s.now(),
	}
	ids := lo.Map(turns, func(t Turn, _ int) int64 { return t.ID })

	id, err := s.commitFold(ctx, summary, ids)
	if err != nil {
		s.logger.Error().
			Str("method", "StoreConversationSummary").
			Str("session_id", sessionID).
			Err(err).
			Msg("Failed to fold turns into summary")
		return nil, err
	}
	summary.ID = id
	s.metrics.ObserveFold(len(turns), fallback)

	s.logger.Info().
		Str("session_id", sessionID).
		Int("folded_turns", len(turns)).
		Bool("fallback", fallback).
		Msg("Folded turns into summary")
	return &summary, nil
}

func (s *Store) commitFold(ctx context.Context, summary Summary, turnIDs []int64) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query, args, err := StatementBuilder().
		Insert("summaries").
		Columns("session_id", "summary", "turn_count", "range_start", "range_end", "created_at").
		Values(summary.SessionID, summary.Text, summary.TurnCount,
			summary.RangeStart.UnixNano(), summary.RangeEnd.UnixNano(), summary.CreatedAt.UnixNano()).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build insert: %w", err)
	}
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("insert summary: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	deletes := []sq.DeleteBuilder{
		StatementBuilder().Delete("turns").
			Where(sq.Eq{"session_id": summary.SessionID}).
			Where(sq.Eq{"id": turnIDs}),
		StatementBuilder().Delete("embeddings").
			Where(sq.Eq{"session_id": summary.SessionID}).
			Where(sq.Eq{"turn_id": turnIDs}),
	}
	for _, d := range deletes {
		query, args, err := d.ToSql()
		if err != nil {
			return 0, fmt.Errorf("build delete: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return 0, fmt.Errorf("delete folded rows: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return id, nil
}
