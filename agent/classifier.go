package agent

import (
	"regexp"
	"strings"
)

// Intent is the coarse category of a user message.
type Intent string

const (
	IntentGreeting      Intent = "greeting"
	IntentInquiry       Intent = "inquiry"
	IntentBookingLookup Intent = "booking_lookup"
	IntentBookingCreate Intent = "booking_create"
	IntentPaymentUpdate Intent = "payment_update"
	IntentSearchHotels  Intent = "search_hotels"
	IntentSearchFlights Intent = "search_flights"
	IntentSearchGeneral Intent = "search_general"
	IntentFAQ           Intent = "faq_question"
	IntentGoodbye       Intent = "goodbye"
	IntentUnknown       Intent = "unknown"
)

// unknownConfidence is reported when no rule matches.
const unknownConfidence = 0.1

type intentRule struct {
	intent     Intent
	confidence float64
	patterns   []*regexp.Regexp
}

func rule(intent Intent, confidence float64, patterns ...string) intentRule {
	r := intentRule{intent: intent, confidence: confidence}
	for _, p := range patterns {
		r.patterns = append(r.patterns, regexp.MustCompile(`(?i)`+p))
	}
	return r
}

// Rules are checked in order; the first match wins.
var intentRules = []intentRule{
	rule(IntentGreeting, 0.9, `\b(hello|hi|hey|good morning|good afternoon|good evening)\b`),
	rule(IntentInquiry, 0.85, `\b(inquire|ask|question|need\s+help|help)\b`, `\bcan\s+you\s+tell\s+me\b`, `\bwhat\s+is\b`),
	rule(IntentBookingLookup, 0.85, `\b(lookup|find|check|view)\s+(booking|reservation)`, `\bbooking\s+(id|number)`, `\bmy\s+booking\b`),
	rule(IntentBookingCreate, 0.85, `\b(book|reserve|create)\s+(hotel|room)`, `\bmake\s+a\s+(booking|reservation)`, `\bi\s+want\s+to\s+book\b`),
	rule(IntentPaymentUpdate, 0.8, `\b(pay|payment|paid)`, `\bupdate\s+payment`, `\bmark\s+as\s+paid\b`),
	rule(IntentSearchHotels, 0.8, `\bhotels?\s+in\b`, `\bfind\s+hotels?\b`, `\bwhere\s+to\s+stay\b`),
	rule(IntentSearchFlights, 0.8, `\bflights?\s+(from|to)\b`, `\bfind\s+flights?\b`, `\bfly\s+(from|to)\b`),
	rule(IntentSearchGeneral, 0.7, `\bsearch\s+for\b`, `\bfind\s+information\b`, `\btell\s+me\s+about\b`),
	rule(IntentFAQ, 0.75, `\bwhat\s+is\b`, `\bhow\s+do\s+i\b`, `\bcan\s+you\s+explain\b`, `\bpolicy\b`, `\brules\b`),
	rule(IntentGoodbye, 0.9, `\b(bye|goodbye|see you|thanks|thank you)\b`, `\bthat's all\b`),
}

// Classification is the result of classifying one message.
type Classification struct {
	Intent     Intent
	Confidence float64
}

// Classify returns the intent of a user message.
func Classify(message string) Classification {
	content := strings.TrimSpace(message)
	for _, r := range intentRules {
		for _, p := range r.patterns {
			if p.MatchString(content) {
				return Classification{Intent: r.intent, Confidence: r.confidence}
			}
		}
	}
	return Classification{Intent: IntentUnknown, Confidence: unknownConfidence}
}
