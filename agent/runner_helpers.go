package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aschepis/backscratcher/travel/llm"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

const (
	// DefaultMaxToolRounds bounds the model calls made for one user message.
	DefaultMaxToolRounds = 5
	maxRepeatedFailures  = 3
	maxToolResultChars   = 4000
)

// ErrToolRoundsExceeded is returned when the model keeps calling tools past
// the round limit.
var ErrToolRoundsExceeded = errors.New("tool loop exceeded maximum rounds")

// ToolExecutor runs a tool call on behalf of a session.
type ToolExecutor interface {
	Handle(ctx context.Context, toolName, sessionID string, inputJSON []byte) (any, error)
}

// ToolProvider lists the tools offered to the model.
type ToolProvider interface {
	Specs() []llm.ToolSpec
}

// toolCallKey identifies repeated identical failing tool calls.
type toolCallKey struct {
	toolName string
	input    string
}

type toolExecutionResult struct {
	ToolID          string
	ToolName        string
	Content         string
	IsError         bool
	RepeatedFailure bool
}

// toolLoopContext holds the state of one turn's tool loop.
type toolLoopContext struct {
	ctx              context.Context
	sessionID        string
	toolExec         ToolExecutor
	repeatedFailures map[toolCallKey]int
	logger           zerolog.Logger
}

func newToolLoopContext(ctx context.Context, sessionID string, toolExec ToolExecutor, logger zerolog.Logger) *toolLoopContext {
	return &toolLoopContext{
		ctx:              ctx,
		sessionID:        sessionID,
		toolExec:         toolExec,
		repeatedFailures: make(map[toolCallKey]int),
		logger:           logger.With().Str("component", "toolLoop").Str("session_id", sessionID).Logger(),
	}
}

// executeSingleTool runs one tool call. Tool errors go back to the model as
// error results; the same call failing maxRepeatedFailures times ends the turn.
func (tlc *toolLoopContext) executeSingleTool(toolUse *llm.ToolUseBlock) (*toolExecutionResult, error) {
	if toolUse == nil {
		return nil, fmt.Errorf("toolUse is nil")
	}

	raw, err := json.Marshal(toolUse.Input)
	if err != nil || toolUse.Input == nil {
		raw = []byte("{}")
	}

	if tlc.toolExec == nil {
		return &toolExecutionResult{
			ToolID:   toolUse.ID,
			ToolName: toolUse.Name,
			Content:  resultContent(map[string]any{"error": "no tools available"}),
			IsError:  true,
		}, nil
	}

	result, callErr := tlc.toolExec.Handle(tlc.ctx, toolUse.Name, tlc.sessionID, raw)
	callKey := toolCallKey{toolName: toolUse.Name, input: string(raw)}

	if callErr != nil {
		tlc.repeatedFailures[callKey]++
		if tlc.repeatedFailures[callKey] >= maxRepeatedFailures {
			tlc.logger.Warn().
				Str("toolName", toolUse.Name).
				Str("input", string(raw)).
				Int("failures", tlc.repeatedFailures[callKey]).
				Msg("Tool has failed too many times. Breaking loop to prevent infinite retry")
			return &toolExecutionResult{
					ToolID:          toolUse.ID,
					ToolName:        toolUse.Name,
					RepeatedFailure: true,
				}, fmt.Errorf("tool '%s' repeatedly failed with same input after %d attempts: %w",
					toolUse.Name, maxRepeatedFailures, callErr)
		}
		result = map[string]any{"error": callErr.Error()}
	} else {
		delete(tlc.repeatedFailures, callKey)
	}

	return &toolExecutionResult{
		ToolID:   toolUse.ID,
		ToolName: toolUse.Name,
		Content:  resultContent(result),
		IsError:  callErr != nil,
	}, nil
}

// buildToolResultMessage creates the message carrying tool results back to
// the model, one block per tool call id.
func buildToolResultMessage(results []*toolExecutionResult) llm.Message {
	seen := make(map[string]bool)
	blocks := lo.FilterMap(results, func(r *toolExecutionResult, _ int) (llm.ToolResultBlock, bool) {
		if seen[r.ToolID] {
			return llm.ToolResultBlock{}, false
		}
		seen[r.ToolID] = true
		return llm.ToolResultBlock{ID: r.ToolID, Content: r.Content, IsError: r.IsError}, true
	})
	return llm.NewToolResultMessage(blocks)
}

// executeToolLoop calls the model until it answers without tool calls.
func executeToolLoop(
	ctx context.Context,
	client llm.Client,
	req *llm.Request,
	sessionID string,
	toolExec ToolExecutor,
	maxRounds int,
	logger zerolog.Logger,
) (string, error) {
	if maxRounds <= 0 {
		maxRounds = DefaultMaxToolRounds
	}
	tlc := newToolLoopContext(ctx, sessionID, toolExec, logger)
	conversation := req.Messages

	for round := 1; round <= maxRounds; round++ {
		current := *req
		current.Messages = conversation

		resp, err := client.Synchronous(ctx, &current)
		if err != nil {
			return "", err
		}

		var toolResults []*toolExecutionResult
		for _, block := range resp.Content {
			if block.Type != llm.ContentBlockTypeToolUse || block.ToolUse == nil {
				continue
			}
			result, err := tlc.executeSingleTool(block.ToolUse)
			if err != nil && result != nil && result.RepeatedFailure {
				return "", err
			}
			if result != nil {
				toolResults = append(toolResults, result)
			}
		}

		if len(toolResults) == 0 {
			return strings.TrimSpace(resp.Text()), nil
		}

		tlc.logger.Debug().
			Int("round", round).
			Strs("tools", lo.Map(toolResults, func(r *toolExecutionResult, _ int) string { return r.ToolName })).
			Msg("Executed tool calls")
		conversation = append(conversation,
			llm.Message{Role: llm.RoleAssistant, Content: resp.Content},
			buildToolResultMessage(toolResults),
		)
	}

	return "", fmt.Errorf("%w (%d)", ErrToolRoundsExceeded, maxRounds)
}

// resultContent renders a tool result as text for the model.
func resultContent(result any) string {
	var s string
	switch v := result.(type) {
	case nil:
		s = ""
	case string:
		s = v
	case []byte:
		s = string(v)
	case fmt.Stringer:
		s = v.String()
	default:
		b, err := json.Marshal(v)
		if err != nil {
			s = fmt.Sprint(v)
		} else {
			s = string(b)
		}
	}
	if len(s) > maxToolResultChars {
		s = s[:maxToolResultChars] + "... (truncated)"
	}
	return s
}
