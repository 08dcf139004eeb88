package llm

import (
	"strings"
)

// MessageRole represents the role of a message in a conversation.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
)

// Message represents a single message in a conversation.
type Message struct {
	Role    MessageRole
	Content []ContentBlock
}

// ContentBlock is one piece of message content: text, a tool use, or a
// tool result.
type ContentBlock struct {
	Type       ContentBlockType
	Text       string           // For text blocks
	ToolUse    *ToolUseBlock    // For tool use blocks
	ToolResult *ToolResultBlock // For tool result blocks
}

// ContentBlockType represents the type of content block.
type ContentBlockType string

const (
	ContentBlockTypeText       ContentBlockType = "text"
	ContentBlockTypeToolUse    ContentBlockType = "tool_use"
	ContentBlockTypeToolResult ContentBlockType = "tool_result"
)

// ToolUseBlock represents a tool invocation request from the assistant.
type ToolUseBlock struct {
	ID    string
	Name  string
	Input map[string]interface{}
}

// ToolResultBlock represents the result of a tool invocation.
type ToolResultBlock struct {
	ID      string
	Content string
	IsError bool
}

// ToolSpec represents a tool definition that can be provided to an LLM.
type ToolSpec struct {
	Name        string
	Description string
	Schema      ToolSchema
}

// ToolSchema represents the JSON schema for a tool's input parameters.
type ToolSchema struct {
	Type        string
	Properties  map[string]interface{}
	Required    []string
	ExtraFields map[string]interface{}
}

// Request represents a complete LLM API request.
type Request struct {
	Model       string
	Messages    []Message
	System      string
	Tools       []ToolSpec
	MaxTokens   int64
	Temperature *float64
}

// Response represents a complete LLM API response.
type Response struct {
	Content    []ContentBlock
	Usage      *Usage
	StopReason string
}

// Usage represents token usage information from an LLM response.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
}

// Text joins the text blocks of the response.
func (r *Response) Text() string {
	if r == nil {
		return ""
	}
	return TextOf(r.Content)
}

// ToolUses returns the tool invocations requested by the response.
func (r *Response) ToolUses() []ToolUseBlock {
	if r == nil {
		return nil
	}
	var out []ToolUseBlock
	for _, b := range r.Content {
		if b.Type == ContentBlockTypeToolUse && b.ToolUse != nil {
			out = append(out, *b.ToolUse)
		}
	}
	return out
}

// TextOf joins the text of all text blocks with newlines.
func TextOf(blocks []ContentBlock) string {
	var parts []string
	for _, b := range blocks {
		if b.Type == ContentBlockTypeText && b.Text != "" {
			parts = append(parts, b.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// NewTextMessage creates a message with a single text block.
func NewTextMessage(role MessageRole, text string) Message {
	return Message{
		Role: role,
		Content: []ContentBlock{
			{
				Type: ContentBlockTypeText,
				Text: text,
			},
		},
	}
}

// NewToolResultMessage creates a user message carrying tool results.
func NewToolResultMessage(toolResults []ToolResultBlock) Message {
	content := make([]ContentBlock, len(toolResults))
	for i := range toolResults {
		content[i] = ContentBlock{
			Type:       ContentBlockTypeToolResult,
			ToolResult: &toolResults[i],
		}
	}
	return Message{
		Role:    RoleUser,
		Content: content,
	}
}

// Float64 returns a pointer to v, for optional request fields.
func Float64(v float64) *float64 {
	return &v
}
