package agent

import (
	"fmt"

	"github.com/aschepis/backscratcher/travel/llm"
	"github.com/aschepis/backscratcher/travel/llm/anthropic"
	"github.com/aschepis/backscratcher/travel/llm/ollama"
	"github.com/aschepis/backscratcher/travel/llm/openai"
	"github.com/aschepis/backscratcher/travel/metrics"
	"github.com/rs/zerolog"
)

// NewClient creates the provider client named by key.
func NewClient(key *llm.ClientKey, logger zerolog.Logger) (llm.Client, error) {
	if key == nil {
		return nil, fmt.Errorf("client key is required")
	}
	var (
		client llm.Client
		err    error
	)
	switch key.Provider {
	case llm.ProviderOpenAI:
		client, err = openai.NewOpenAIClient(key.APIKey, key.BaseURL, key.Model, key.Organization)
	case llm.ProviderAnthropic:
		client, err = anthropic.NewAnthropicClient(key.APIKey, key.Model, logger)
	case llm.ProviderOllama:
		client, err = ollama.NewOllamaClient(key.Host, key.Model)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", key.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("create %s client: %w", key.Provider, err)
	}
	return client, nil
}

// NewChatClient creates the client used for chat turns: the provider client
// with logging, history trimming and rate limit retries. maxContextChars <= 0
// uses DefaultMaxContextChars.
func NewChatClient(key *llm.ClientKey, logger zerolog.Logger, m *metrics.Metrics, maxContextChars int) (llm.Client, error) {
	client, err := NewClient(key, logger)
	if err != nil {
		return nil, err
	}
	client = llm.WrapWithMiddleware(client,
		NewTrimMiddleware(logger, maxContextChars),
		NewObservingMiddleware(logger, m),
	)
	handler := NewRateLimitHandler(logger, nil)
	return WithRateLimitRetry(client, handler), nil
}
