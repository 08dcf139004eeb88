package memory

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/aschepis/backscratcher/travel/metrics"
	"github.com/rs/zerolog"
)

// Embedder is a pluggable interface for getting embeddings for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// EncodeEmbedding encodes a []float32 into a little-endian blob for storage.
func EncodeEmbedding(vec []float32) []byte {
	if vec == nil {
		return nil
	}
	b := make([]byte, len(vec)*4)
	for i, f := range vec {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(f))
	}
	return b
}

// DecodeEmbedding decodes a blob written by EncodeEmbedding.
func DecodeEmbedding(b []byte) ([]float32, error) {
	if b == nil {
		return nil, nil
	}
	if len(b)%4 != 0 {
		return nil, errors.New("invalid embedding blob length")
	}
	vec := make([]float32, len(b)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return vec, nil
}

// CosineSimilarity between two equal-length vectors.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		fa, fb := float64(a[i]), float64(b[i])
		dot += fa * fb
		na += fa * fa
		nb += fb * fb
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// Index stores one vector per turn and ranks a session's turns against a
// query. Ranking is by cosine similarity when the query can be embedded and
// degrades to most-recent-first otherwise.
type Index struct {
	db       *sql.DB
	embedder Embedder
	timeout  time.Duration
	metrics  *metrics.Metrics
	logger   zerolog.Logger
	now      func() time.Time
}

// NewIndex creates an Index over the embeddings table. embedder may be nil,
// in which case vectors are not computed and search is recency-ordered.
func NewIndex(db *sql.DB, embedder Embedder, timeout time.Duration, logger zerolog.Logger) *Index {
	if timeout <= 0 {
		timeout = DefaultGenerationTimeout
	}
	return &Index{
		db:       db,
		embedder: embedder,
		timeout:  timeout,
		logger:   logger.With().Str("component", "embedding_index").Logger(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (ix *Index) embed(ctx context.Context, text string) ([]float32, error) {
	if ix.embedder == nil {
		return nil, errors.New("no embedder configured")
	}
	ctx, cancel := context.WithTimeout(ctx, ix.timeout)
	defer cancel()
	vec, err := ix.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(vec) == 0 {
		return nil, errors.New("embedder returned an empty vector")
	}
	return vec, nil
}

// Add indexes text for turnID. A failed embedding still records the turn
// reference without a vector so recency search can return it; only a
// database failure is reported.
func (ix *Index) Add(ctx context.Context, sessionID string, turnID int64, text string) error {
	if sessionID == "" {
		return ErrEmptySession
	}

	var blob []byte
	if ix.embedder != nil {
		vec, err := ix.embed(ctx, text)
		if err != nil {
			ix.logger.Warn().
				Str("method", "Add").
				Str("session_id", sessionID).
				Int64("turn_id", turnID).
				Err(err).
				Msg("Embedding failed. Indexing turn without vector.")
			ix.metrics.IncSubWriteFailure("embedding_vector")
		} else {
			blob = EncodeEmbedding(vec)
		}
	}

	query, args, err := StatementBuilder().
		Insert("embeddings").
		Columns("session_id", "turn_id", "content", "embedding", "created_at").
		Values(sessionID, turnID, text, blob, ix.now().UnixNano()).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := ix.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert embedding: %w", err)
	}
	return nil
}

// Records returns every embedding record of a session, newest first.
func (ix *Index) Records(ctx context.Context, sessionID string) ([]EmbeddingRecord, error) {
	if sessionID == "" {
		return nil, ErrEmptySession
	}

	query, args, err := StatementBuilder().
		Select(embeddingColumns...).
		From("embeddings").
		Where(sq.Eq{"session_id": sessionID}).
		OrderBy("created_at DESC", "id DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := ix.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck // No remedy for rows close errors

	var out []EmbeddingRecord
	for rows.Next() {
		var (
			rec       EmbeddingRecord
			blob      []byte
			createdAt int64
		)
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.TurnID, &rec.Content, &blob, &createdAt); err != nil {
			return nil, err
		}
		vec, err := DecodeEmbedding(blob)
		if err != nil {
			ix.logger.Warn().Int64("embedding_id", rec.ID).Err(err).Msg("Skipping corrupt embedding blob")
		}
		rec.Vector = vec
		rec.CreatedAt = time.Unix(0, createdAt).UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Search returns up to k turn references of the session most relevant to
// query.
func (ix *Index) Search(ctx context.Context, sessionID, query string, k int) ([]int64, error) {
	if k <= 0 {
		return nil, nil
	}
	records, err := ix.Records(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}

	if ranked, ok := ix.rank(ctx, records, query); ok {
		return turnRefs(ranked, k), nil
	}

	ix.metrics.IncSearchFallback()
	return turnRefs(records, k), nil
}

type scoredRecord struct {
	EmbeddingRecord
	score float64
}

// rank orders records by similarity to query. It reports false when no
// vector comparison was possible.
func (ix *Index) rank(ctx context.Context, records []EmbeddingRecord, query string) ([]EmbeddingRecord, bool) {
	if ix.embedder == nil || query == "" {
		return nil, false
	}
	qvec, err := ix.embed(ctx, query)
	if err != nil {
		ix.logger.Warn().Str("method", "Search").Err(err).Msg("Query embedding failed. Falling back to recency.")
		return nil, false
	}

	scored := make([]scoredRecord, 0, len(records))
	var unscored []EmbeddingRecord
	for _, r := range records {
		if len(r.Vector) != len(qvec) {
			unscored = append(unscored, r)
			continue
		}
		scored = append(scored, scoredRecord{EmbeddingRecord: r, score: CosineSimilarity(qvec, r.Vector)})
	}
	if len(scored) == 0 {
		return nil, false
	}

	// records arrive newest first, so a stable sort keeps recency as the tie-break
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].score > scored[j].score })

	// turns without a usable vector follow the ranked ones, newest first
	out := make([]EmbeddingRecord, 0, len(records))
	for _, s := range scored {
		out = append(out, s.EmbeddingRecord)
	}
	return append(out, unscored...), true
}

func turnRefs(records []EmbeddingRecord, k int) []int64 {
	seen := make(map[int64]bool, k)
	refs := make([]int64, 0, k)
	for _, r := range records {
		if len(refs) == k {
			break
		}
		if seen[r.TurnID] {
			continue
		}
		seen[r.TurnID] = true
		refs = append(refs, r.TurnID)
	}
	return refs
}
