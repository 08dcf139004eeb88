package ollama

import (
	"context"
	"fmt"
	"strings"

	"github.com/aschepis/backscratcher/travel/memory"
	"github.com/ollama/ollama/api"
)

const summarySystemPrompt = `You summarize travel booking conversations for a booking assistant's long-term memory.

Rules:
- Keep every stated preference, requirement, booking reference and decision
- Produce concise sentences or fragments
- Use plain text only (no markdown, no bullet points, no numbered lists)`

// Generator produces summaries with Ollama's generate endpoint.
type Generator struct {
	client *api.Client
	model  string
}

var _ memory.Generator = (*Generator)(nil)

// NewGenerator creates a Generator for model. An empty host reads
// OLLAMA_HOST from the environment.
func NewGenerator(host, model string) (*Generator, error) {
	if model == "" {
		model = "llama3.2:3b"
	}
	cli, err := newClient(host)
	if err != nil {
		return nil, err
	}
	return &Generator{client: cli, model: model}, nil
}

// Generate runs prompt through the model without streaming.
func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	var out strings.Builder
	stream := false
	req := &api.GenerateRequest{
		Model:  g.model,
		Prompt: prompt,
		System: summarySystemPrompt,
		Stream: &stream,
		Options: map[string]any{
			"temperature": 0,
		},
	}

	err := g.client.Generate(ctx, req, func(resp api.GenerateResponse) error {
		out.WriteString(resp.Response)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate summary: %w", err)
	}

	text := strings.TrimSpace(out.String())
	if text == "" {
		return "", fmt.Errorf("received empty summary from model")
	}
	return text, nil
}
