package memory

import (
	"strings"
	"time"

	"github.com/samber/lo"
)

var (
	bookingMarkers     = []string{"id", "number", "confirmation"}
	preferenceMarkers  = []string{"prefer", "like", "want", "need"}
	destinationMarkers = []string{"hotel", "flight", "city", "country"}
)

// ExtractFacts scans messages for travel signals and returns the facts they
// carry, stamped with the current time.
func ExtractFacts(messages []Message, sessionID string) []Fact {
	return ExtractFactsAt(messages, sessionID, time.Now().UTC())
}

// ExtractFactsAt is ExtractFacts with an explicit extraction time. Each rule
// is evaluated independently, so one message can produce several facts.
func ExtractFactsAt(messages []Message, sessionID string, at time.Time) []Fact {
	var facts []Fact
	for _, m := range messages {
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		lower := strings.ToLower(m.Content)

		if strings.Contains(lower, "booking") && containsAny(lower, bookingMarkers) {
			facts = append(facts, Fact{
				SessionID: sessionID,
				Kind:      FactBooking,
				Content:   m.Content,
				CreatedAt: at,
			})
		}

		if containsAny(lower, preferenceMarkers) {
			facts = append(facts, Fact{
				SessionID: sessionID,
				Kind:      FactPreference,
				Content:   m.Content,
				Key:       preferenceKey(lower),
				Value:     m.Content,
				CreatedAt: at,
			})
		}

		if containsAny(lower, destinationMarkers) {
			facts = append(facts, Fact{
				SessionID: sessionID,
				Kind:      FactDestination,
				Content:   m.Content,
				CreatedAt: at,
			})
		}
	}
	return facts
}

func preferenceKey(lower string) string {
	switch {
	case strings.Contains(lower, "budget"):
		return PreferenceBudget
	case strings.Contains(lower, "location"), strings.Contains(lower, "destination"):
		return PreferenceLocation
	default:
		return PreferenceGeneral
	}
}

func containsAny(text string, markers []string) bool {
	return lo.SomeBy(markers, func(marker string) bool {
		return strings.Contains(text, marker)
	})
}
