package anthropic

import (
	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/aschepis/backscratcher/travel/llm"
	"github.com/samber/lo"
)

// toMessageParams converts chat history. Messages with no convertible
// content are skipped; the API rejects empty turns.
func toMessageParams(msgs []llm.Message) []anthropic.MessageParam {
	return lo.FilterMap(msgs, func(msg llm.Message, _ int) (anthropic.MessageParam, bool) {
		blocks := lo.FilterMap(msg.Content, toBlockParam)
		if len(blocks) == 0 {
			return anthropic.MessageParam{}, false
		}
		if msg.Role == llm.RoleAssistant {
			return anthropic.NewAssistantMessage(blocks...), true
		}
		return anthropic.NewUserMessage(blocks...), true
	})
}

func toBlockParam(block llm.ContentBlock, _ int) (anthropic.ContentBlockParamUnion, bool) {
	switch {
	case block.Type == llm.ContentBlockTypeText && block.Text != "":
		return anthropic.NewTextBlock(block.Text), true
	case block.Type == llm.ContentBlockTypeToolUse && block.ToolUse != nil:
		return anthropic.NewToolUseBlock(block.ToolUse.ID, block.ToolUse.Input, block.ToolUse.Name), true
	case block.Type == llm.ContentBlockTypeToolResult && block.ToolResult != nil:
		r := block.ToolResult
		return anthropic.NewToolResultBlock(r.ID, r.Content, r.IsError), true
	default:
		return anthropic.ContentBlockParamUnion{}, false
	}
}

func toToolParams(specs []llm.ToolSpec) []anthropic.ToolUnionParam {
	return lo.Map(specs, func(spec llm.ToolSpec, _ int) anthropic.ToolUnionParam {
		return anthropic.ToolUnionParam{OfTool: &anthropic.ToolParam{
			Name:        spec.Name,
			Description: anthropic.String(spec.Description),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties:  spec.Schema.Properties,
				Required:    spec.Schema.Required,
				ExtraFields: spec.Schema.ExtraFields,
			},
		}}
	})
}
