package agent

import (
	"github.com/aschepis/backscratcher/travel/llm"
	"github.com/aschepis/backscratcher/travel/memory"
)

// toLLMMessages converts stored chat history into chat messages. System
// messages are dropped since the system prompt is rebuilt every turn.
func toLLMMessages(msgs []memory.Message) []llm.Message {
	out := make([]llm.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Content == "" {
			continue
		}
		switch m.Role {
		case memory.RoleUser:
			out = append(out, llm.NewTextMessage(llm.RoleUser, m.Content))
		case memory.RoleAssistant:
			out = append(out, llm.NewTextMessage(llm.RoleAssistant, m.Content))
		}
	}
	// providers expect the history to open with a user message
	for len(out) > 0 && out[0].Role != llm.RoleUser {
		out = out[1:]
	}
	return out
}
