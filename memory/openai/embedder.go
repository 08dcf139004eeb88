package openai

import (
	"context"
	"fmt"

	"github.com/aschepis/backscratcher/travel/memory"
	"github.com/sashabaranov/go-openai"
)

// DefaultModel is the embedding model used when none is configured.
const DefaultModel = openai.SmallEmbedding3

type embedder struct {
	client *openai.Client
	model  openai.EmbeddingModel
}

// NewEmbedder returns an Embedder backed by the OpenAI embeddings API.
func NewEmbedder(apiKey, baseURL, model string) (memory.Embedder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai API key is required for embeddings")
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	m := DefaultModel
	if model != "" {
		m = openai.EmbeddingModel(model)
	}
	return &embedder{client: openai.NewClientWithConfig(cfg), model: m}, nil
}

func (e *embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: e.model,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to embed text: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("openai returned no embeddings for model %s", e.model)
	}
	return resp.Data[0].Embedding, nil
}
