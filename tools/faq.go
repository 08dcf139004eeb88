package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/aschepis/backscratcher/travel/memory"
	chromem "github.com/philippgille/chromem-go"
	"github.com/rs/zerolog"
)

// faqTopK is the number of entries returned per question.
const faqTopK = 3

// DefaultFAQEntries are the hotel policy answers served by the FAQ tool.
var DefaultFAQEntries = []string{
	"What is your refund policy? You can cancel up to 48 hours before check-in for a full refund.",
	"How does the loyalty program work? Members earn 1 point per €1 spent.",
	"Check-in: 3 PM, Check-out: 11 AM.",
	"Pets allowed under 25kg for a €20 fee.",
	"Continental breakfast included with all room rates.",
}

// FAQ answers policy questions from a fixed set of entries. Entries are
// embedded into an in-memory chromem collection; without an embedder, or when
// a query cannot be embedded, entries are ranked by word overlap.
type FAQ struct {
	entries []string
	col     *chromem.Collection
	logger  zerolog.Logger
}

// NewFAQ builds the FAQ index. Embedding failures degrade to keyword ranking.
func NewFAQ(ctx context.Context, embedder memory.Embedder, entries []string, logger zerolog.Logger) *FAQ {
	f := &FAQ{
		entries: entries,
		logger:  logger.With().Str("component", "faq").Logger(),
	}
	if embedder == nil || len(entries) == 0 {
		return f
	}

	db := chromem.NewDB()
	col, err := db.CreateCollection("faq", nil, chromem.EmbeddingFunc(embedder.Embed))
	if err != nil {
		f.logger.Warn().Err(err).Msg("create faq collection failed, using keyword ranking")
		return f
	}
	docs := make([]chromem.Document, len(entries))
	for i, e := range entries {
		docs[i] = chromem.Document{ID: strconv.Itoa(i), Content: e}
	}
	if err := col.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		f.logger.Warn().Err(err).Msg("embed faq entries failed, using keyword ranking")
		return f
	}
	f.col = col
	return f
}

// Answer returns the entries most relevant to question, one per line.
func (f *FAQ) Answer(ctx context.Context, question string) string {
	n := faqTopK
	if len(f.entries) < n {
		n = len(f.entries)
	}
	if n == 0 {
		return ""
	}

	if f.col != nil {
		results, err := f.col.Query(ctx, question, n, nil, nil)
		if err == nil {
			out := make([]string, len(results))
			for i, r := range results {
				out[i] = r.Content
			}
			return strings.Join(out, "\n")
		}
		f.logger.Warn().Err(err).Msg("faq query failed, using keyword ranking")
	}
	return strings.Join(keywordRank(f.entries, question)[:n], "\n")
}

// keywordRank orders entries by the number of words they share with query.
// Ties keep the original order.
func keywordRank(entries []string, query string) []string {
	q := wordSet(query)
	type scored struct {
		text  string
		score int
	}
	ranked := make([]scored, len(entries))
	for i, e := range entries {
		score := 0
		for w := range wordSet(e) {
			if q[w] {
				score++
			}
		}
		ranked[i] = scored{text: e, score: score}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })
	out := make([]string, len(ranked))
	for i, r := range ranked {
		out[i] = r.text
	}
	return out
}

func wordSet(s string) map[string]bool {
	words := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	set := make(map[string]bool, len(words))
	for _, w := range words {
		if len(w) >= 3 {
			set[w] = true
		}
	}
	return set
}

// RegisterFAQTool registers the FAQ tool.
func (r *Registry) RegisterFAQTool(faq *FAQ) {
	r.Register("faq_tool", func(ctx context.Context, sessionID string, raw json.RawMessage) (any, error) {
		a, err := decodeArgs(raw)
		if err != nil {
			return err.Error(), nil
		}
		q := a.str("question")
		if q == "" {
			q = a.str("query")
		}
		if q == "" {
			return "Please provide a question.", nil
		}
		answer := faq.Answer(ctx, q)
		if answer == "" {
			return fmt.Sprintf("No FAQ entries match %q.", q), nil
		}
		return answer, nil
	})
}
