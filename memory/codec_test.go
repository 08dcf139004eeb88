package memory

import (
	"encoding/json"
	"reflect"
	"testing"
	"time"
)

func TestCodec_RoundTrip(t *testing.T) {
	for _, role := range []Role{RoleUser, RoleAssistant, RoleSystem} {
		m := Message{Role: role, Content: "Check-in is at 3 PM", Metadata: map[string]any{"intent": "faq_question"}}
		got, ok := Deserialize(Serialize(m))
		if !ok {
			t.Fatalf("%v: deserialize failed", role)
		}
		if got.Role != m.Role || got.Content != m.Content {
			t.Errorf("%v: round trip = %+v, want %+v", role, got, m)
		}
		if !reflect.DeepEqual(got.Metadata, m.Metadata) {
			t.Errorf("%v: metadata = %v, want %v", role, got.Metadata, m.Metadata)
		}
	}
}

func TestCodec_RoundTripThroughJSON(t *testing.T) {
	rec := Serialize(Message{Role: RoleAssistant, Content: "Booking 3 is paid", Metadata: map[string]any{"booking_id": 3}})
	b, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded Record
	if err := json.Unmarshal(b, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	m, ok := Deserialize(decoded)
	if !ok {
		t.Fatal("deserialize failed")
	}
	if m.Role != RoleAssistant || m.Content != "Booking 3 is paid" {
		t.Errorf("got %+v", m)
	}
	// numbers come back as float64 after JSON, but the key survives
	if _, ok := m.Metadata["booking_id"]; !ok {
		t.Error("metadata key lost")
	}
}

func TestCodec_UnknownTypeReturnsFalse(t *testing.T) {
	for _, tag := range []string{"", "tool", "HumanMessage", "USER"} {
		if _, ok := Deserialize(Record{Type: tag, Content: "x", Timestamp: time.Now()}); ok {
			t.Errorf("tag %q should not decode", tag)
		}
	}
}

func TestCodec_SerializeUnsupportedRole(t *testing.T) {
	rec := Serialize(Message{Content: "no role"})
	if rec.Type != "unknown" {
		t.Errorf("type = %q, want unknown", rec.Type)
	}
	if _, ok := Deserialize(rec); ok {
		t.Error("unsupported role should not decode")
	}
}

func TestConcatContent(t *testing.T) {
	got := ConcatContent([]Message{
		UserMessage("Find hotels in Lisbon"),
		{Role: RoleAssistant},
		AssistantMessage("   "),
		AssistantMessage("Here are three options"),
	})
	if want := "Find hotels in Lisbon Here are three options"; got != want {
		t.Errorf("ConcatContent = %q, want %q", got, want)
	}
	if got := ConcatContent(nil); got != "" {
		t.Errorf("ConcatContent(nil) = %q", got)
	}
}

func TestDeserializeAllKeepsOrder(t *testing.T) {
	records := []Record{
		Serialize(UserMessage("a")),
		{Type: "function", Content: "dropped"},
		Serialize(AssistantMessage("b")),
	}
	got := DeserializeAll(records)
	if len(got) != 2 || got[0].Content != "a" || got[1].Content != "b" {
		t.Errorf("DeserializeAll = %+v", got)
	}
}
