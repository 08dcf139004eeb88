package memory

import (
	"strings"
	"time"
)

// Role is the author of a chat message.
type Role int

const (
	RoleUser Role = iota + 1
	RoleAssistant
	RoleSystem
)

// Record type tags.
const (
	TypeUser      = "user"
	TypeAssistant = "assistant"
	TypeSystem    = "system"
)

// String returns the record type tag for the role.
func (r Role) String() string {
	switch r {
	case RoleUser:
		return TypeUser
	case RoleAssistant:
		return TypeAssistant
	case RoleSystem:
		return TypeSystem
	default:
		return "unknown"
	}
}

// ParseRole maps a record type tag back to a Role.
func ParseRole(tag string) (Role, bool) {
	switch tag {
	case TypeUser:
		return RoleUser, true
	case TypeAssistant:
		return RoleAssistant, true
	case TypeSystem:
		return RoleSystem, true
	default:
		return 0, false
	}
}

// Message is a chat message as seen by the agent runtime.
type Message struct {
	Role     Role
	Content  string
	Metadata map[string]any
}

// UserMessage builds a user message.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// AssistantMessage builds an assistant message.
func AssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// Record is the flat, storable form of a Message.
type Record struct {
	Type      string         `json:"type"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Serialize converts a message into a record stamped with the current time.
func Serialize(m Message) Record {
	return Record{
		Type:      m.Role.String(),
		Content:   m.Content,
		Metadata:  copyMetadata(m.Metadata),
		Timestamp: time.Now().UTC(),
	}
}

// Deserialize converts a record back into a message. Records with an
// unrecognized type tag are reported with ok == false.
func Deserialize(r Record) (Message, bool) {
	role, ok := ParseRole(r.Type)
	if !ok {
		return Message{}, false
	}
	return Message{
		Role:     role,
		Content:  r.Content,
		Metadata: copyMetadata(r.Metadata),
	}, true
}

// DeserializeAll decodes records in order, dropping any that fail to decode.
func DeserializeAll(records []Record) []Message {
	out := make([]Message, 0, len(records))
	for _, r := range records {
		if m, ok := Deserialize(r); ok {
			out = append(out, m)
		}
	}
	return out
}

// ConcatContent joins message texts with a single space, skipping messages
// without text.
func ConcatContent(messages []Message) string {
	parts := make([]string, 0, len(messages))
	for _, m := range messages {
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		parts = append(parts, m.Content)
	}
	return strings.Join(parts, " ")
}

func copyMetadata(in map[string]any) map[string]any {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
