package ollama

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/aschepis/backscratcher/travel/memory"
	"github.com/ollama/ollama/api"
)

type Model string

const (
	ModelMXBAI      Model = "mxbai-embed-large"
	ModelNomicEmbed Model = "nomic-embed-text"
)

type embedder struct {
	client *api.Client
	model  Model
}

// NewEmbedder returns an Embedder backed by an Ollama server. An empty host
// reads OLLAMA_HOST from the environment.
func NewEmbedder(host string, model Model) (memory.Embedder, error) {
	if model == "" {
		model = ModelMXBAI
	}
	cli, err := newClient(host)
	if err != nil {
		return nil, err
	}
	return &embedder{client: cli, model: model}, nil
}

func (e *embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.Embed(ctx, &api.EmbedRequest{
		Model: string(e.model),
		Input: text,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to embed text: %w", err)
	}
	if len(resp.Embeddings) == 0 {
		return nil, fmt.Errorf("ollama returned no embeddings for model %s", e.model)
	}
	return resp.Embeddings[0], nil
}

func newClient(host string) (*api.Client, error) {
	if host == "" {
		cli, err := api.ClientFromEnvironment()
		if err != nil {
			return nil, fmt.Errorf("failed to create ollama client: %w", err)
		}
		return cli, nil
	}
	base, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama host %q: %w", host, err)
	}
	return api.NewClient(base, &http.Client{}), nil
}
