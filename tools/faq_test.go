package tools

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

// topicEmbedder maps text onto a few policy topics so related questions and
// entries land close together.
type topicEmbedder struct {
	fail bool
}

var topics = [][]string{
	{"refund", "cancel", "money"},
	{"loyalty", "points", "member"},
	{"check-in", "check-out", "checkin", "arrive", "pm"},
	{"pet", "pets", "dog", "cat"},
	{"breakfast", "food", "meal"},
}

func (e topicEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if e.fail {
		return nil, errors.New("embedding service unavailable")
	}
	lower := strings.ToLower(text)
	vec := make([]float32, len(topics)+1)
	vec[len(topics)] = 0.1
	for i, words := range topics {
		for _, w := range words {
			if strings.Contains(lower, w) {
				vec[i]++
			}
		}
	}
	return vec, nil
}

func TestFAQ_EmbeddingRanking(t *testing.T) {
	faq := NewFAQ(context.Background(), topicEmbedder{}, DefaultFAQEntries, zerolog.Nop())
	if faq.col == nil {
		t.Fatal("expected embedded collection")
	}

	got := faq.Answer(context.Background(), "Can I bring my dog?")
	lines := strings.Split(got, "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 entries, got %d: %q", len(lines), got)
	}
	if lines[0] != DefaultFAQEntries[3] {
		t.Errorf("top entry = %q, want pets policy", lines[0])
	}
}

func TestFAQ_KeywordFallbackWithoutEmbedder(t *testing.T) {
	faq := NewFAQ(context.Background(), nil, DefaultFAQEntries, zerolog.Nop())
	got := faq.Answer(context.Background(), "what is the refund policy")
	lines := strings.Split(got, "\n")
	if len(lines) != 3 || lines[0] != DefaultFAQEntries[0] {
		t.Errorf("unexpected answer: %q", got)
	}
}

func TestFAQ_KeywordFallbackWhenEmbeddingFails(t *testing.T) {
	faq := NewFAQ(context.Background(), topicEmbedder{fail: true}, DefaultFAQEntries, zerolog.Nop())
	if faq.col != nil {
		t.Fatal("collection should not be built when embedding fails")
	}
	got := faq.Answer(context.Background(), "is breakfast included")
	if !strings.HasPrefix(got, DefaultFAQEntries[4]) {
		t.Errorf("unexpected answer: %q", got)
	}
}

func TestFAQ_FewerEntriesThanTopK(t *testing.T) {
	faq := NewFAQ(context.Background(), topicEmbedder{}, DefaultFAQEntries[:2], zerolog.Nop())
	if got := strings.Split(faq.Answer(context.Background(), "refund"), "\n"); len(got) != 2 {
		t.Errorf("expected 2 entries, got %v", got)
	}
	empty := NewFAQ(context.Background(), nil, nil, zerolog.Nop())
	if got := empty.Answer(context.Background(), "refund"); got != "" {
		t.Errorf("empty FAQ answered %q", got)
	}
}

func TestFAQTool(t *testing.T) {
	reg := NewRegistry(zerolog.Nop(), nil)
	reg.RegisterFAQTool(NewFAQ(context.Background(), nil, DefaultFAQEntries, zerolog.Nop()))

	if got := call(t, reg, "faq_tool", map[string]any{"question": "When is check-in?"}); !strings.Contains(got, "Check-in: 3 PM") {
		t.Errorf("faq_tool = %q", got)
	}
	if got := call(t, reg, "faq_tool", map[string]any{}); got != "Please provide a question." {
		t.Errorf("faq_tool without question = %q", got)
	}
}
