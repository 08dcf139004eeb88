package memory

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// CleanupOldData deletes turns, facts, summaries and embeddings created more
// than daysOld days ago, across all sessions. daysOld <= 0 uses
// DefaultRetentionDays.
func (s *Store) CleanupOldData(ctx context.Context, daysOld int) (CleanupReport, error) {
	if daysOld <= 0 {
		daysOld = DefaultRetentionDays
	}
	cutoff := s.now().Add(-time.Duration(daysOld) * 24 * time.Hour)
	s.logger.Debug().
		Str("method", "CleanupOldData").
		Int("days_old", daysOld).
		Time("cutoff", cutoff).
		Msg("called")

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return CleanupReport{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	deleted := make(map[string]int64, len(memoryTables))
	for _, table := range memoryTables {
		query, args, err := StatementBuilder().
			Delete(table).
			Where(sq.Lt{"created_at": cutoff.UnixNano()}).
			ToSql()
		if err != nil {
			return CleanupReport{}, fmt.Errorf("build delete: %w", err)
		}
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return CleanupReport{}, fmt.Errorf("cleanup %s: %w", table, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return CleanupReport{}, err
		}
		deleted[table] = n
	}

	if err := tx.Commit(); err != nil {
		return CleanupReport{}, fmt.Errorf("commit: %w", err)
	}

	report := CleanupReport{
		Turns:      deleted["turns"],
		Facts:      deleted["facts"],
		Summaries:  deleted["summaries"],
		Embeddings: deleted["embeddings"],
	}
	for table, n := range deleted {
		s.metrics.AddCleanup(table, n)
	}
	s.logger.Info().
		Int64("turns", report.Turns).
		Int64("facts", report.Facts).
		Int64("summaries", report.Summaries).
		Int64("embeddings", report.Embeddings).
		Msg("Retention cleanup finished")
	return report, nil
}
