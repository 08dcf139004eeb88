package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
)

func TestRegistry_SpecsFollowSchemas(t *testing.T) {
	reg := NewRegistry(zerolog.Nop(), nil)
	reg.RegisterBookingTools(NewBookingStore(setupTestDB(t)))
	reg.RegisterSearchTools(NewSearchClient("", ""))
	reg.RegisterFAQTool(NewFAQ(context.Background(), nil, DefaultFAQEntries, zerolog.Nop()))
	reg.Register("internal_only", func(ctx context.Context, sessionID string, args json.RawMessage) (any, error) {
		return "ok", nil
	})

	specs := reg.Specs()
	if len(specs) != 7 {
		t.Fatalf("expected 7 advertised tools, got %d", len(specs))
	}
	for i := 1; i < len(specs); i++ {
		if specs[i-1].Name >= specs[i].Name {
			t.Errorf("specs not sorted: %s before %s", specs[i-1].Name, specs[i].Name)
		}
	}
	for _, s := range specs {
		if s.Schema.Type != "object" || len(s.Schema.Required) == 0 || s.Description == "" {
			t.Errorf("incomplete spec for %s: %+v", s.Name, s.Schema)
		}
	}
	if len(reg.Names()) != 8 {
		t.Errorf("expected 8 registered handlers, got %d", len(reg.Names()))
	}
}

func TestRegistry_HandleUnknownAndErrors(t *testing.T) {
	reg := NewRegistry(zerolog.Nop(), nil)
	if _, err := reg.Handle(context.Background(), "nope", "s1", nil); err == nil {
		t.Error("expected unknown tool error")
	}

	boom := errors.New("boom")
	reg.Register("failing", func(ctx context.Context, sessionID string, args json.RawMessage) (any, error) {
		if sessionID != "s1" {
			t.Errorf("sessionID = %q", sessionID)
		}
		return nil, boom
	})
	if _, err := reg.Handle(context.Background(), "failing", "s1", nil); !errors.Is(err, boom) {
		t.Errorf("Handle error = %v, want boom", err)
	}
}

func TestArgsAccessors(t *testing.T) {
	a, err := decodeArgs(json.RawMessage(`{"id": 3, "name": " Lisbon ", "paid": "yes", "flag": false}`))
	if err != nil {
		t.Fatalf("decodeArgs: %v", err)
	}
	if a.str("id") != "3" || a.str("name") != "Lisbon" || a.str("missing") != "" {
		t.Errorf("str accessors: %q %q", a.str("id"), a.str("name"))
	}
	if !a.boolean("paid", false) || a.boolean("flag", true) || !a.boolean("missing", true) {
		t.Error("boolean accessors")
	}
	if _, err := decodeArgs(json.RawMessage(`{bad`)); err == nil {
		t.Error("expected decode error")
	}
}
