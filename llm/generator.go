package llm

import (
	"context"
	"errors"
	"strings"
)

// TextGenerator turns a chat Client into a single-prompt text generator,
// which is the shape the memory summarizer needs.
type TextGenerator struct {
	Client      Client
	Model       string
	System      string
	MaxTokens   int64
	Temperature float64
}

// Generate sends prompt as a single user message and returns the text of the
// reply.
func (g *TextGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	if g == nil || g.Client == nil {
		return "", errors.New("no llm client configured")
	}
	maxTokens := g.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 512
	}
	resp, err := g.Client.Synchronous(ctx, &Request{
		Model:       g.Model,
		System:      g.System,
		Messages:    []Message{NewTextMessage(RoleUser, prompt)},
		MaxTokens:   maxTokens,
		Temperature: Float64(g.Temperature),
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Text()), nil
}
