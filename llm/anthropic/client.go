package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/aschepis/backscratcher/travel/llm"
	"github.com/rs/zerolog"
)

// DefaultModel is used when neither config nor request names a model.
const DefaultModel = "claude-haiku-4-5"

const defaultRetryAfter = 15 * time.Second

// AnthropicClient implements the llm.Client interface for Anthropic's API.
type AnthropicClient struct {
	client *anthropic.Client
	model  string
	logger zerolog.Logger
}

// NewAnthropicClient creates a new AnthropicClient with the given API key.
func NewAnthropicClient(apiKey, model string, logger zerolog.Logger) (*AnthropicClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	if model == "" {
		model = DefaultModel
	}

	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &AnthropicClient{
		client: &client,
		model:  model,
		logger: logger.With().Str("component", "anthropic").Logger(),
	}, nil
}

// Synchronous implements llm.Client.Synchronous.
func (c *AnthropicClient) Synchronous(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	if req == nil {
		return nil, fmt.Errorf("request is required")
	}

	msgs := toMessageParams(req.Messages)
	if len(msgs) == 0 {
		return nil, fmt.Errorf("request has no messages")
	}

	model := req.Model
	if model == "" {
		model = c.model
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: maxTokens,
		Messages:  msgs,
		Tools:     toToolParams(req.Tools),
	}
	if req.System != "" {
		params.System = buildSystemBlocks(req.System)
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	}

	message, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, convertAnthropicError(err)
	}

	content := make([]llm.ContentBlock, 0, len(message.Content))
	for _, blockUnion := range message.Content {
		switch block := blockUnion.AsAny().(type) {
		case anthropic.TextBlock:
			content = append(content, llm.ContentBlock{
				Type: llm.ContentBlockTypeText,
				Text: block.Text,
			})
		case anthropic.ToolUseBlock:
			content = append(content, llm.ContentBlock{
				Type: llm.ContentBlockTypeToolUse,
				ToolUse: &llm.ToolUseBlock{
					ID:    block.ID,
					Name:  block.Name,
					Input: decodeInput(block.Input),
				},
			})
		}
	}

	c.logger.Debug().
		Int64("input_tokens", message.Usage.InputTokens).
		Int64("output_tokens", message.Usage.OutputTokens).
		Int64("cache_read_tokens", message.Usage.CacheReadInputTokens).
		Msg("message complete")

	return &llm.Response{
		Content: content,
		Usage: &llm.Usage{
			InputTokens:  message.Usage.InputTokens,
			OutputTokens: message.Usage.OutputTokens,
		},
		StopReason: string(message.StopReason),
	}, nil
}

func decodeInput(raw any) map[string]interface{} {
	input := make(map[string]interface{})
	if raw == nil {
		return input
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return input
	}
	if err := json.Unmarshal(b, &input); err != nil || input == nil {
		return make(map[string]interface{})
	}
	return input
}

// buildSystemBlocks marks the system prompt for ephemeral prompt caching, which
// covers the tool definitions that precede it.
func buildSystemBlocks(systemPrompt string) []anthropic.TextBlockParam {
	return []anthropic.TextBlockParam{
		{Text: systemPrompt, CacheControl: anthropic.NewCacheControlEphemeralParam()},
	}
}

func convertAnthropicError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return llm.NewTimeoutError("Anthropic request timed out", err)
	}

	var apiErr *anthropic.Error
	if !errors.As(err, &apiErr) {
		return llm.NewProviderError("Anthropic API error", err)
	}

	switch apiErr.StatusCode {
	case http.StatusTooManyRequests:
		retryAfter := defaultRetryAfter
		if apiErr.Response != nil {
			if secs, perr := time.ParseDuration(apiErr.Response.Header.Get("retry-after") + "s"); perr == nil && secs > 0 {
				retryAfter = secs
			}
		}
		return llm.NewRateLimitError("Anthropic rate limit", &retryAfter, err)
	case http.StatusRequestEntityTooLarge:
		return llm.NewRequestTooLargeError("Anthropic request too large", err)
	case http.StatusBadRequest:
		return &llm.Error{
			Type:        llm.ErrorTypeInvalidRequest,
			Message:     "Anthropic invalid request",
			StatusCode:  apiErr.StatusCode,
			ProviderErr: err,
		}
	default:
		return &llm.Error{
			Type:        llm.ErrorTypeProvider,
			Message:     "Anthropic API error",
			Retryable:   apiErr.StatusCode >= http.StatusInternalServerError,
			StatusCode:  apiErr.StatusCode,
			ProviderErr: err,
		}
	}
}

var _ llm.Client = (*AnthropicClient)(nil)
