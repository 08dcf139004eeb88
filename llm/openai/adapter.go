package openai

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aschepis/backscratcher/travel/llm"
	openai "github.com/sashabaranov/go-openai"
	"github.com/samber/lo"
)

// ToOpenAIMessages converts llm.Messages to OpenAI chat messages. Tool
// results become one "tool" role message each, as the chat API requires.
func ToOpenAIMessages(msgs []llm.Message) ([]openai.ChatCompletionMessage, error) {
	result := make([]openai.ChatCompletionMessage, 0, len(msgs))
	for _, msg := range msgs {
		converted, err := toOpenAIMessage(msg)
		if err != nil {
			return nil, err
		}
		result = append(result, converted...)
	}
	return result, nil
}

func toOpenAIMessage(msg llm.Message) ([]openai.ChatCompletionMessage, error) {
	var role string
	switch msg.Role {
	case llm.RoleUser:
		role = openai.ChatMessageRoleUser
	case llm.RoleAssistant:
		role = openai.ChatMessageRoleAssistant
	case llm.RoleSystem:
		role = openai.ChatMessageRoleSystem
	default:
		return nil, fmt.Errorf("unsupported role %q", msg.Role)
	}

	var (
		text      []string
		toolCalls []openai.ToolCall
		results   []openai.ChatCompletionMessage
	)
	for _, block := range msg.Content {
		switch block.Type {
		case llm.ContentBlockTypeText:
			text = append(text, block.Text)
		case llm.ContentBlockTypeToolUse:
			if block.ToolUse == nil {
				continue
			}
			argsJSON, err := json.Marshal(block.ToolUse.Input)
			if err != nil {
				return nil, fmt.Errorf("failed to marshal tool input: %w", err)
			}
			toolCalls = append(toolCalls, openai.ToolCall{
				ID:   block.ToolUse.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      block.ToolUse.Name,
					Arguments: string(argsJSON),
				},
			})
		case llm.ContentBlockTypeToolResult:
			if block.ToolResult == nil {
				continue
			}
			results = append(results, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    block.ToolResult.Content,
				ToolCallID: block.ToolResult.ID,
			})
		}
	}

	if len(results) > 0 && len(text) == 0 {
		return results, nil
	}

	out := openai.ChatCompletionMessage{
		Role:      role,
		Content:   strings.Join(text, "\n"),
		ToolCalls: toolCalls,
	}
	return append(results, out), nil
}

// ToOpenAITools converts llm.ToolSpecs to OpenAI function definitions.
func ToOpenAITools(specs []llm.ToolSpec) []openai.Tool {
	return lo.Map(specs, func(spec llm.ToolSpec, _ int) openai.Tool {
		return ToOpenAITool(spec)
	})
}

// ToOpenAITool converts a single llm.ToolSpec to an OpenAI Tool.
func ToOpenAITool(spec llm.ToolSpec) openai.Tool {
	properties := make(map[string]interface{}, len(spec.Schema.Properties))
	for k, v := range spec.Schema.Properties {
		properties[k] = v
	}

	schemaType := spec.Schema.Type
	if schemaType == "" {
		schemaType = "object"
	}
	parameters := map[string]interface{}{
		"type":       schemaType,
		"properties": properties,
	}
	if len(spec.Schema.Required) > 0 {
		parameters["required"] = spec.Schema.Required
	}
	for k, v := range spec.Schema.ExtraFields {
		parameters[k] = v
	}

	return openai.Tool{
		Type: openai.ToolTypeFunction,
		Function: &openai.FunctionDefinition{
			Name:        spec.Name,
			Description: spec.Description,
			Parameters:  parameters,
		},
	}
}

// FromOpenAIToolCall converts an OpenAI tool call to llm.ToolUseBlock.
// Unparseable arguments yield an empty input map.
func FromOpenAIToolCall(toolCall openai.ToolCall) *llm.ToolUseBlock {
	input := make(map[string]interface{})
	if toolCall.Function.Arguments != "" {
		if err := json.Unmarshal([]byte(toolCall.Function.Arguments), &input); err != nil {
			input = make(map[string]interface{})
		}
	}
	return &llm.ToolUseBlock{
		ID:    toolCall.ID,
		Name:  toolCall.Function.Name,
		Input: input,
	}
}
