package ollama

import (
	"strings"
	"testing"

	"github.com/aschepis/backscratcher/travel/llm"
)

var bookingSpec = llm.ToolSpec{
	Name: "lookup_booking",
	Schema: llm.ToolSchema{
		Type: "object",
		Properties: map[string]interface{}{
			"booking_id": map[string]interface{}{"type": "integer"},
		},
		Required: []string{"booking_id"},
	},
}

func toolUse(input map[string]interface{}) llm.Message {
	return llm.Message{Role: llm.RoleAssistant, Content: []llm.ContentBlock{{
		Type:    llm.ContentBlockTypeToolUse,
		ToolUse: &llm.ToolUseBlock{ID: "call_lookup_booking_0", Name: "lookup_booking", Input: input},
	}}}
}

func TestToOllamaMessages_CoercesArguments(t *testing.T) {
	msgs, err := ToOllamaMessages([]llm.Message{toolUse(map[string]interface{}{"booking_id": "3"})}, []llm.ToolSpec{bookingSpec})
	if err != nil {
		t.Fatalf("ToOllamaMessages: %v", err)
	}
	if len(msgs) != 1 || len(msgs[0].ToolCalls) != 1 {
		t.Fatalf("unexpected messages: %+v", msgs)
	}
	if got := msgs[0].ToolCalls[0].Function.Arguments["booking_id"]; got != 3 {
		t.Errorf("booking_id = %v (%T), want int 3", got, got)
	}
}

func TestToOllamaMessages_MissingRequired(t *testing.T) {
	_, err := ToOllamaMessages([]llm.Message{toolUse(map[string]interface{}{})}, []llm.ToolSpec{bookingSpec})
	if err == nil || !strings.Contains(err.Error(), "missing required parameter 'booking_id'") {
		t.Errorf("expected missing parameter error, got %v", err)
	}
}

func TestToOllamaMessages_ToolResults(t *testing.T) {
	msgs, err := ToOllamaMessages([]llm.Message{
		llm.NewToolResultMessage([]llm.ToolResultBlock{{ID: "a", Content: "one"}, {ID: "b", Content: "two"}}),
	}, nil)
	if err != nil {
		t.Fatalf("ToOllamaMessages: %v", err)
	}
	if len(msgs) != 2 || msgs[0].Role != "tool" || msgs[1].Content != "two" {
		t.Errorf("unexpected messages: %+v", msgs)
	}
}

func TestConvertValueToType(t *testing.T) {
	tests := []struct {
		in      interface{}
		typ     string
		want    interface{}
		wantErr bool
	}{
		{in: "12", typ: "integer", want: 12},
		{in: 4.0, typ: "integer", want: 4},
		{in: "2.5", typ: "number", want: 2.5},
		{in: "yes", typ: "boolean", want: true},
		{in: 7, typ: "string", want: "7"},
		{in: "abc", typ: "integer", wantErr: true},
	}
	for _, tt := range tests {
		got, err := convertValueToType(tt.in, tt.typ, "p")
		if tt.wantErr {
			if err == nil {
				t.Errorf("%v as %s: expected error", tt.in, tt.typ)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("%v as %s = %v, %v; want %v", tt.in, tt.typ, got, err, tt.want)
		}
	}
}
