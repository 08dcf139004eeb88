package agent

import (
	"context"
	"encoding/json"

	"github.com/aschepis/backscratcher/travel/llm"
	"github.com/aschepis/backscratcher/travel/metrics"
	"github.com/rs/zerolog"
)

// DefaultMaxContextChars is the prompt size above which old history is
// dropped before a request.
const DefaultMaxContextChars = 200000

type requestStartKey struct{}

// ObservingMiddleware logs chat calls and counts provider errors by type.
type ObservingMiddleware struct {
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// NewObservingMiddleware creates an ObservingMiddleware. m may be nil.
func NewObservingMiddleware(logger zerolog.Logger, m *metrics.Metrics) *ObservingMiddleware {
	return &ObservingMiddleware{
		metrics: m,
		logger:  logger.With().Str("component", "llmMiddleware").Logger(),
	}
}

// BeforeRequest implements llm.Middleware.BeforeRequest.
func (m *ObservingMiddleware) BeforeRequest(ctx context.Context, req *llm.Request) (*llm.Request, error) {
	m.logger.Debug().
		Str("session_id", sessionIDFrom(ctx)).
		Str("model", req.Model).
		Int("messages", len(req.Messages)).
		Int("tools", len(req.Tools)).
		Int("context_chars", getContextSize(req.System, req.Messages)).
		Msg("Calling LLM")
	return req, nil
}

// AfterResponse implements llm.Middleware.AfterResponse.
func (m *ObservingMiddleware) AfterResponse(ctx context.Context, req *llm.Request, resp *llm.Response) (*llm.Response, error) {
	ev := m.logger.Debug().
		Str("session_id", sessionIDFrom(ctx)).
		Str("stop_reason", resp.StopReason).
		Int("tool_uses", len(resp.ToolUses()))
	if resp.Usage != nil {
		ev = ev.Int64("input_tokens", resp.Usage.InputTokens).Int64("output_tokens", resp.Usage.OutputTokens)
	}
	ev.Msg("LLM responded")
	return resp, nil
}

// OnError implements llm.Middleware.OnError.
func (m *ObservingMiddleware) OnError(ctx context.Context, req *llm.Request, err error) error {
	errType := llm.TypeOf(err)
	m.metrics.IncProviderError(string(errType))
	m.logger.Warn().
		Str("session_id", sessionIDFrom(ctx)).
		Str("model", req.Model).
		Str("error_type", string(errType)).
		Err(err).
		Msg("LLM call failed")
	return err
}

// TrimMiddleware drops the oldest history messages while the request is
// larger than maxChars. The newest user message is always kept, and the
// remaining history starts at a plain user message.
type TrimMiddleware struct {
	maxChars int
	logger   zerolog.Logger
}

// NewTrimMiddleware creates a TrimMiddleware. maxChars <= 0 uses
// DefaultMaxContextChars.
func NewTrimMiddleware(logger zerolog.Logger, maxChars int) *TrimMiddleware {
	if maxChars <= 0 {
		maxChars = DefaultMaxContextChars
	}
	return &TrimMiddleware{
		maxChars: maxChars,
		logger:   logger.With().Str("component", "trimMiddleware").Logger(),
	}
}

// BeforeRequest implements llm.Middleware.BeforeRequest.
func (m *TrimMiddleware) BeforeRequest(ctx context.Context, req *llm.Request) (*llm.Request, error) {
	size := getContextSize(req.System, req.Messages)
	if size <= m.maxChars {
		return req, nil
	}
	msgs := trimHistory(req.System, req.Messages, m.maxChars)
	m.logger.Info().
		Str("session_id", sessionIDFrom(ctx)).
		Int("context_chars", size).
		Int("dropped_messages", len(req.Messages)-len(msgs)).
		Msg("Context too large, dropping oldest history")
	trimmed := *req
	trimmed.Messages = msgs
	return &trimmed, nil
}

// AfterResponse implements llm.Middleware.AfterResponse.
func (m *TrimMiddleware) AfterResponse(ctx context.Context, req *llm.Request, resp *llm.Response) (*llm.Response, error) {
	return resp, nil
}

// OnError implements llm.Middleware.OnError.
func (m *TrimMiddleware) OnError(ctx context.Context, req *llm.Request, err error) error {
	return err
}

func trimHistory(system string, msgs []llm.Message, maxChars int) []llm.Message {
	start := 0
	for start < len(msgs)-1 && getContextSize(system, msgs[start:]) > maxChars {
		start++
		for start < len(msgs)-1 && !isPlainUserMessage(msgs[start]) {
			start++
		}
	}
	return msgs[start:]
}

func isPlainUserMessage(m llm.Message) bool {
	if m.Role != llm.RoleUser {
		return false
	}
	for _, b := range m.Content {
		if b.Type != llm.ContentBlockTypeText {
			return false
		}
	}
	return true
}

// getContextSize returns the character count of the prompt and every
// message block.
func getContextSize(systemPrompt string, messages []llm.Message) int {
	total := len(systemPrompt)
	for _, msg := range messages {
		for _, block := range msg.Content {
			switch block.Type {
			case llm.ContentBlockTypeText:
				total += len(block.Text)
			case llm.ContentBlockTypeToolUse:
				if block.ToolUse != nil {
					total += len(block.ToolUse.Name)
					if block.ToolUse.Input != nil {
						if b, err := json.Marshal(block.ToolUse.Input); err == nil {
							total += len(b)
						}
					}
				}
			case llm.ContentBlockTypeToolResult:
				if block.ToolResult != nil {
					total += len(block.ToolResult.Content)
				}
			}
		}
	}
	return total
}

var (
	_ llm.Middleware = (*ObservingMiddleware)(nil)
	_ llm.Middleware = (*TrimMiddleware)(nil)
)
