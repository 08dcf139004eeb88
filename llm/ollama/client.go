package ollama

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/aschepis/backscratcher/travel/llm"
	"github.com/ollama/ollama/api"
)

// DefaultModel is used when neither config nor request names a model.
const DefaultModel = "llama3.2:3b"

// OllamaClient implements the llm.Client interface for Ollama's API.
type OllamaClient struct {
	client *api.Client
	model  string
}

// NewOllamaClient creates a new OllamaClient.
// If host is empty, it will use the default from environment (OLLAMA_HOST or http://localhost:11434).
func NewOllamaClient(host, model string) (*OllamaClient, error) {
	var client *api.Client
	if host != "" {
		baseURL, err := parseHost(host)
		if err != nil {
			return nil, fmt.Errorf("invalid host: %w", err)
		}
		client = api.NewClient(baseURL, &http.Client{})
	} else {
		var err error
		client, err = api.ClientFromEnvironment()
		if err != nil {
			return nil, fmt.Errorf("failed to create ollama client: %w", err)
		}
	}
	if model == "" {
		model = DefaultModel
	}

	return &OllamaClient{
		client: client,
		model:  model,
	}, nil
}

// parseHost parses a host string into a URL, defaulting the scheme to http.
func parseHost(host string) (*url.URL, error) {
	if !strings.HasPrefix(host, "http://") && !strings.HasPrefix(host, "https://") {
		host = "http://" + host
	}
	return url.Parse(host)
}

// Synchronous implements llm.Client.Synchronous.
func (c *OllamaClient) Synchronous(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	if req == nil {
		return nil, fmt.Errorf("request is required")
	}

	model := req.Model
	if model == "" {
		model = c.model
	}

	ollamaMsgs, err := ToOllamaMessages(req.Messages, req.Tools)
	if err != nil {
		return nil, fmt.Errorf("failed to convert messages: %w", err)
	}
	if req.System != "" {
		ollamaMsgs = append([]api.Message{{Role: "system", Content: req.System}}, ollamaMsgs...)
	}

	chatReq := &api.ChatRequest{
		Model:    model,
		Messages: ollamaMsgs,
		Stream:   new(bool),
		Options:  make(map[string]interface{}),
	}
	if len(req.Tools) > 0 {
		tools, err := ToOllamaTools(req.Tools)
		if err != nil {
			return nil, fmt.Errorf("failed to convert tools: %w", err)
		}
		chatReq.Tools = tools
	}
	if req.MaxTokens > 0 {
		chatReq.Options["num_predict"] = int(req.MaxTokens)
	}
	if req.Temperature != nil {
		chatReq.Options["temperature"] = *req.Temperature
	}

	var chatResp api.ChatResponse
	err = c.client.Chat(ctx, chatReq, func(resp api.ChatResponse) error {
		chatResp = resp
		return nil
	})
	if err != nil {
		return nil, convertOllamaError(err)
	}

	content := make([]llm.ContentBlock, 0, 1+len(chatResp.Message.ToolCalls))
	if chatResp.Message.Content != "" {
		content = append(content, llm.ContentBlock{
			Type: llm.ContentBlockTypeText,
			Text: chatResp.Message.Content,
		})
	}
	for i, toolCall := range chatResp.Message.ToolCalls {
		content = append(content, llm.ContentBlock{
			Type:    llm.ContentBlockTypeToolUse,
			ToolUse: FromOllamaToolCall(toolCall, i),
		})
	}

	stopReason := "stop"
	if len(chatResp.Message.ToolCalls) > 0 {
		stopReason = "tool_use"
	}

	return &llm.Response{
		Content: content,
		Usage: &llm.Usage{
			InputTokens:  int64(chatResp.PromptEvalCount),
			OutputTokens: int64(chatResp.EvalCount),
		},
		StopReason: stopReason,
	}, nil
}

func convertOllamaError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return llm.NewTimeoutError("ollama request timed out", err)
	}
	var statusErr api.StatusError
	if errors.As(err, &statusErr) {
		return &llm.Error{
			Type:        llm.ErrorTypeProvider,
			Message:     fmt.Sprintf("ollama chat request failed: %s", statusErr.ErrorMessage),
			Retryable:   statusErr.StatusCode >= http.StatusInternalServerError,
			StatusCode:  statusErr.StatusCode,
			ProviderErr: err,
		}
	}
	return llm.NewProviderError("ollama chat request failed", err)
}

var _ llm.Client = (*OllamaClient)(nil)
