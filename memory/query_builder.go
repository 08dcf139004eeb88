package memory

import (
	"database/sql"
	"encoding/json"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// StatementBuilder returns a Squirrel StatementBuilder configured for SQLite.
// SQLite uses '?' as placeholders, which is Squirrel's default.
func StatementBuilder() sq.StatementBuilderType {
	return sq.StatementBuilder
}

var (
	turnColumns      = []string{"id", "session_id", "messages", "user_data", "created_at"}
	factColumns      = []string{"id", "session_id", "kind", "content", "pref_key", "pref_value", "created_at"}
	summaryColumns   = []string{"id", "session_id", "summary", "turn_count", "range_start", "range_end", "created_at"}
	embeddingColumns = []string{"id", "session_id", "turn_id", "content", "embedding", "created_at"}

	memoryTables = []string{"turns", "facts", "summaries", "embeddings"}
)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTurn(row rowScanner) (Turn, error) {
	var (
		t         Turn
		msgsJSON  string
		userData  sql.NullString
		createdAt int64
	)
	if err := row.Scan(&t.ID, &t.SessionID, &msgsJSON, &userData, &createdAt); err != nil {
		return Turn{}, err
	}
	if err := json.Unmarshal([]byte(msgsJSON), &t.Messages); err != nil {
		return Turn{}, err
	}
	if userData.Valid && userData.String != "" {
		_ = json.Unmarshal([]byte(userData.String), &t.UserData)
	}
	t.CreatedAt = time.Unix(0, createdAt).UTC()
	return t, nil
}

func scanFact(row rowScanner) (Fact, error) {
	var (
		f          Fact
		kind       string
		key, value sql.NullString
		createdAt  int64
	)
	if err := row.Scan(&f.ID, &f.SessionID, &kind, &f.Content, &key, &value, &createdAt); err != nil {
		return Fact{}, err
	}
	f.Kind = FactKind(kind)
	f.Key = key.String
	f.Value = value.String
	f.CreatedAt = time.Unix(0, createdAt).UTC()
	return f, nil
}

func scanSummary(row rowScanner) (Summary, error) {
	var (
		s                     Summary
		start, end, createdAt int64
	)
	if err := row.Scan(&s.ID, &s.SessionID, &s.Text, &s.TurnCount, &start, &end, &createdAt); err != nil {
		return Summary{}, err
	}
	s.RangeStart = time.Unix(0, start).UTC()
	s.RangeEnd = time.Unix(0, end).UTC()
	s.CreatedAt = time.Unix(0, createdAt).UTC()
	return s, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
