package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/aschepis/backscratcher/travel/llm"
	openai "github.com/sashabaranov/go-openai"
)

// OpenAI API errors don't expose retry-after headers, so rate limits use a
// fixed wait.
const defaultRetryAfter = 20 * time.Second

// DefaultModel is the chat model used when neither config nor request names one.
const DefaultModel = openai.GPT4o

// OpenAIClient implements the llm.Client interface for OpenAI's API.
type OpenAIClient struct {
	client *openai.Client
	model  string
}

// NewOpenAIClient creates a new OpenAIClient. baseURL and organization are
// optional.
func NewOpenAIClient(apiKey, baseURL, model, organization string) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("api key is required")
	}

	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	if organization != "" {
		config.OrgID = organization
	}
	if model == "" {
		model = DefaultModel
	}

	return &OpenAIClient{
		client: openai.NewClientWithConfig(config),
		model:  model,
	}, nil
}

// Synchronous implements llm.Client.Synchronous.
func (c *OpenAIClient) Synchronous(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	if req == nil {
		return nil, fmt.Errorf("request is required")
	}

	chatReq, err := c.buildRequest(req)
	if err != nil {
		return nil, err
	}

	chatResp, err := c.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, convertOpenAIError(err)
	}
	if len(chatResp.Choices) == 0 {
		return nil, llm.NewProviderError("OpenAI returned no choices", nil)
	}

	choice := chatResp.Choices[0]
	content := make([]llm.ContentBlock, 0, 1+len(choice.Message.ToolCalls))
	if choice.Message.Content != "" {
		content = append(content, llm.ContentBlock{
			Type: llm.ContentBlockTypeText,
			Text: choice.Message.Content,
		})
	}
	for _, toolCall := range choice.Message.ToolCalls {
		content = append(content, llm.ContentBlock{
			Type:    llm.ContentBlockTypeToolUse,
			ToolUse: FromOpenAIToolCall(toolCall),
		})
	}

	return &llm.Response{
		Content: content,
		Usage: &llm.Usage{
			InputTokens:  int64(chatResp.Usage.PromptTokens),
			OutputTokens: int64(chatResp.Usage.CompletionTokens),
		},
		StopReason: stopReason(choice.FinishReason),
	}, nil
}

func (c *OpenAIClient) buildRequest(req *llm.Request) (openai.ChatCompletionRequest, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}

	msgs, err := ToOpenAIMessages(req.Messages)
	if err != nil {
		return openai.ChatCompletionRequest{}, fmt.Errorf("failed to convert messages: %w", err)
	}
	if req.System != "" {
		msgs = append([]openai.ChatCompletionMessage{{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		}}, msgs...)
	}

	chatReq := openai.ChatCompletionRequest{
		Model:    model,
		Messages: msgs,
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = ToOpenAITools(req.Tools)
		chatReq.ToolChoice = "auto"
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = int(req.MaxTokens)
	}
	if req.Temperature != nil {
		chatReq.Temperature = float32(*req.Temperature)
	}
	return chatReq, nil
}

func stopReason(reason openai.FinishReason) string {
	switch reason {
	case openai.FinishReasonLength:
		return "max_tokens"
	case openai.FinishReasonToolCalls:
		return "tool_use"
	default:
		return "stop"
	}
}

// convertOpenAIError converts OpenAI API errors to llm.Error types.
func convertOpenAIError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return llm.NewTimeoutError("OpenAI request timed out", err)
	}

	var apiErr *openai.APIError
	if !errors.As(err, &apiErr) {
		return llm.NewProviderError("OpenAI API error", err)
	}

	switch apiErr.HTTPStatusCode {
	case http.StatusTooManyRequests:
		retryAfter := defaultRetryAfter
		return llm.NewRateLimitError(
			fmt.Sprintf("OpenAI rate limit: %s", apiErr.Message),
			&retryAfter,
			err,
		)
	case http.StatusRequestEntityTooLarge:
		return llm.NewRequestTooLargeError(
			fmt.Sprintf("OpenAI request too large: %s", apiErr.Message),
			err,
		)
	case http.StatusBadRequest:
		return &llm.Error{
			Type:        llm.ErrorTypeInvalidRequest,
			Message:     fmt.Sprintf("OpenAI invalid request: %s", apiErr.Message),
			StatusCode:  apiErr.HTTPStatusCode,
			ProviderErr: err,
		}
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable:
		return &llm.Error{
			Type:        llm.ErrorTypeProvider,
			Message:     fmt.Sprintf("OpenAI server error: %s", apiErr.Message),
			Retryable:   true,
			StatusCode:  apiErr.HTTPStatusCode,
			ProviderErr: err,
		}
	default:
		return &llm.Error{
			Type:        llm.ErrorTypeProvider,
			Message:     fmt.Sprintf("OpenAI API error: %s", apiErr.Message),
			StatusCode:  apiErr.HTTPStatusCode,
			ProviderErr: err,
		}
	}
}

var _ llm.Client = (*OpenAIClient)(nil)
