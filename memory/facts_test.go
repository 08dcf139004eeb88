package memory

import (
	"reflect"
	"testing"
	"time"
)

func TestExtractFacts_Rules(t *testing.T) {
	at := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name  string
		text  string
		kinds []FactKind
		key   string
	}{
		{name: "booking with id", text: "My Booking ID is 4", kinds: []FactKind{FactBooking}},
		{name: "booking with confirmation", text: "booking confirmation please", kinds: []FactKind{FactBooking}},
		{name: "booking alone", text: "booking", kinds: nil},
		{name: "budget preference", text: "I want something on a budget", kinds: []FactKind{FactPreference}, key: PreferenceBudget},
		{name: "location preference", text: "I prefer a central location", kinds: []FactKind{FactPreference}, key: PreferenceLocation},
		{name: "destination preference", text: "I need a warm destination", kinds: []FactKind{FactPreference}, key: PreferenceLocation},
		{name: "general preference", text: "I like quiet rooms", kinds: []FactKind{FactPreference}, key: PreferenceGeneral},
		{name: "destination only", text: "Flights to Porto", kinds: []FactKind{FactDestination}},
		{name: "all three", text: "I need my booking number for the hotel", kinds: []FactKind{FactBooking, FactPreference, FactDestination}, key: PreferenceGeneral},
		{name: "no signal", text: "hello there", kinds: nil},
		// substring matching is literal: "idea" contains "id"
		{name: "substring match", text: "booking idea", kinds: []FactKind{FactBooking}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			facts := ExtractFactsAt([]Message{UserMessage(tt.text)}, "s1", at)
			var kinds []FactKind
			for _, f := range facts {
				kinds = append(kinds, f.Kind)
				if f.Content != tt.text {
					t.Errorf("content = %q, want original text", f.Content)
				}
				if f.SessionID != "s1" || !f.CreatedAt.Equal(at) {
					t.Errorf("unexpected fact metadata: %+v", f)
				}
				if f.Kind == FactPreference {
					if f.Key != tt.key || f.Value != tt.text {
						t.Errorf("preference key/value = %q/%q, want %q/%q", f.Key, f.Value, tt.key, tt.text)
					}
				} else if f.Key != "" {
					t.Errorf("non-preference fact has key %q", f.Key)
				}
			}
			if !reflect.DeepEqual(kinds, tt.kinds) {
				t.Errorf("kinds = %v, want %v", kinds, tt.kinds)
			}
		})
	}
}

func TestExtractFacts_Idempotent(t *testing.T) {
	at := time.Now().UTC()
	msgs := []Message{
		UserMessage("I want to book a hotel in Lisbon, budget €200"),
		AssistantMessage("Your booking confirmation is 12"),
	}
	first := ExtractFactsAt(msgs, "s1", at)
	second := ExtractFactsAt(msgs, "s1", at)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("extraction not idempotent:\n%+v\n%+v", first, second)
	}
}

func TestExtractFacts_Scenario(t *testing.T) {
	facts := ExtractFacts([]Message{UserMessage("I want to book a hotel in Lisbon, budget €200")}, "s1")

	var budget, destination bool
	for _, f := range facts {
		if f.Kind == FactPreference && f.Key == PreferenceBudget {
			budget = true
		}
		if f.Kind == FactDestination {
			destination = true
		}
	}
	if !budget || !destination {
		t.Errorf("expected budget preference and destination facts, got %+v", facts)
	}
}

func TestExtractFacts_SkipsEmptyContent(t *testing.T) {
	if facts := ExtractFacts([]Message{{Role: RoleUser}}, "s1"); len(facts) != 0 {
		t.Errorf("expected no facts, got %+v", facts)
	}
}
