package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// DefaultGenerationTimeout bounds a single summarization or embedding call.
const DefaultGenerationTimeout = 30 * time.Second

// Generator produces text from a prompt. Implementations wrap a hosted or
// local language model.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, prompt string) (string, error)

// Generate calls f.
func (f GeneratorFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

var (
	errNoGenerator  = errors.New("no generator configured")
	errEmptySummary = errors.New("generator returned an empty summary")
)

// SummaryResult is the outcome of one summarization attempt: either the
// generated text or the reason it could not be produced.
type SummaryResult struct {
	Text string
	Err  error
}

// OK reports whether the attempt produced usable text.
func (r SummaryResult) OK() bool {
	return r.Err == nil && strings.TrimSpace(r.Text) != ""
}

// TextOrFallback returns the generated text, or the deterministic fallback
// for turnCount turns when the attempt failed.
func (r SummaryResult) TextOrFallback(turnCount int) string {
	if r.OK() {
		return strings.TrimSpace(r.Text)
	}
	return FallbackSummary(turnCount)
}

// FallbackSummary is the fixed sentence used when generation fails.
func FallbackSummary(turnCount int) string {
	return fmt.Sprintf("Conversation summary covering %d interactions about travel booking and inquiries.", turnCount)
}

// Summarizer condenses a batch of turns into a short digest.
type Summarizer struct {
	gen     Generator
	timeout time.Duration
	logger  zerolog.Logger
}

// NewSummarizer creates a Summarizer. A nil generator always yields the
// fallback summary. A non-positive timeout uses DefaultGenerationTimeout.
func NewSummarizer(gen Generator, timeout time.Duration, logger zerolog.Logger) *Summarizer {
	if timeout <= 0 {
		timeout = DefaultGenerationTimeout
	}
	return &Summarizer{
		gen:     gen,
		timeout: timeout,
		logger:  logger.With().Str("component", "summarizer").Logger(),
	}
}

// Attempt asks the generator for a summary of turns under the configured
// timeout. It never mutates turns.
func (s *Summarizer) Attempt(ctx context.Context, turns []Turn) SummaryResult {
	if s == nil || s.gen == nil {
		return SummaryResult{Err: errNoGenerator}
	}

	prompt := BuildSummaryPrompt(RenderTranscript(turns))

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	text, err := s.gen.Generate(ctx, prompt)
	if err != nil {
		s.logger.Warn().
			Err(err).
			Int("turns", len(turns)).
			Dur("elapsed", time.Since(start)).
			Msg("Summary generation failed")
		return SummaryResult{Err: fmt.Errorf("generate summary: %w", err)}
	}
	if strings.TrimSpace(text) == "" {
		return SummaryResult{Err: errEmptySummary}
	}

	s.logger.Debug().
		Int("turns", len(turns)).
		Int("summary_len", len(text)).
		Dur("elapsed", time.Since(start)).
		Msg("Summary generated")
	return SummaryResult{Text: text}
}

// Summarize returns a non-empty summary of turns, falling back to the fixed
// sentence when generation fails or times out.
func (s *Summarizer) Summarize(ctx context.Context, turns []Turn) string {
	return s.Attempt(ctx, turns).TextOrFallback(len(turns))
}

// RenderTranscript renders every decodable message of every turn as a
// "role: content" line.
func RenderTranscript(turns []Turn) string {
	var b strings.Builder
	for _, t := range turns {
		for _, m := range DeserializeAll(t.Messages) {
			b.WriteString(m.Role.String())
			b.WriteString(": ")
			b.WriteString(m.Content)
			b.WriteString("\n")
		}
	}
	return b.String()
}

// BuildSummaryPrompt wraps a transcript in the summarization instructions.
func BuildSummaryPrompt(transcript string) string {
	return `Please create a concise summary of this travel booking conversation history.
Focus on:
1. User's travel preferences and requirements
2. Bookings made or inquired about
3. Important decisions or outcomes
4. Key facts that would be useful for future conversations

Conversation History:
` + transcript + `
Summary:`
}
