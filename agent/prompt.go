package agent

import (
	"fmt"
	"sort"
	"strings"
)

// SystemPrompt is the base instruction for the travel assistant. The memory
// block from RenderMemoryBlock is appended to it when context is available.
const SystemPrompt = `You are a helpful AI travel booking assistant with the following capabilities:

Available tools:
- search_travel_info: Search the web for general travel information, attractions, and recommendations
- search_hotels: Find hotels in specific locations with dates and guest preferences
- search_flights: Search for flights between cities with date and passenger options
- lookup_booking: Look up existing booking details by booking ID
- create_booking: Create new hotel reservations with all necessary details
- update_payment_status: Update payment status for existing bookings
- faq_tool: Answer frequently asked questions about hotel policies and travel

Your primary goal is to provide exceptional travel assistance by helping users search for travel options, manage their bookings, and answer travel-related questions in a professional and efficient manner.

Operating principles:
1. Think step by step before acting.
2. Use tools when you need external information or actions.
3. Ask for clarification when instructions are unclear.
4. Admit when you don't know something.
5. Collect all necessary information before creating bookings (hotel name, location, dates, price).
6. Provide clear, actionable information with relevant details.

Special instructions:
- For booking lookups: always ask for the booking ID if not provided
- For hotel searches: ask for location at minimum; dates and guest count improve results
- For flight searches: require origin and destination; date and passengers are helpful
- For new bookings: collect hotel name, city, country, check-in/out dates, and price
- Always be polite and provide clear next steps when appropriate
- Use emojis and formatting to make responses more engaging and readable`

const (
	noSummaryText     = "No previous conversation summary available."
	noPreferencesText = "No preferences stored yet."
	noBookingsText    = "No previous bookings found."
	recentBookings    = 3
)

// BuildSystemPrompt returns the system prompt for a turn, with the memory
// block appended when mc carries anything worth showing.
func BuildSystemPrompt(mc *MemoryContext) string {
	if mc.Empty() {
		return SystemPrompt
	}
	return SystemPrompt + "\n\n" + RenderMemoryBlock(mc)
}

// RenderMemoryBlock renders the memory context section of the system prompt.
func RenderMemoryBlock(mc *MemoryContext) string {
	var b strings.Builder
	b.WriteString("**MEMORY CONTEXT FOR PERSONALIZED ASSISTANCE:**\n\n")

	b.WriteString("**Conversation Summary:**\n")
	summary := ""
	if mc != nil && mc.View != nil {
		summary = mc.View.Summary
	}
	if summary == "" {
		summary = noSummaryText
	}
	b.WriteString(summary)
	b.WriteString("\n\n")

	b.WriteString("**User Preferences:**\n")
	b.WriteString(renderPreferences(mc.preferences()))
	b.WriteString("\n\n")

	bookings := mc.bookings()
	b.WriteString("**Booking History:**\n")
	fmt.Fprintf(&b, "- Total Bookings: %d\n", len(bookings))
	if len(bookings) == 0 {
		fmt.Fprintf(&b, "- Recent Bookings: %s\n", noBookingsText)
	} else {
		b.WriteString("- Recent Bookings:\n")
		for i, f := range bookings {
			if i == recentBookings {
				break
			}
			fmt.Fprintf(&b, "  %d. %s\n", i+1, f.Content)
		}
	}
	b.WriteString("\n")

	recent, facts := 0, 0
	if mc != nil && mc.View != nil {
		recent = len(mc.View.RecentTurns)
		facts = len(mc.View.Facts)
	}
	b.WriteString("**Recent Conversation Context:**\n")
	fmt.Fprintf(&b, "- Previous Interactions: %d recent conversations\n", recent)
	fmt.Fprintf(&b, "- Relevant Facts: %d travel-related facts stored\n\n", facts)

	b.WriteString("**Instructions:**\n")
	b.WriteString("Use this context to provide personalized assistance. Reference previous conversations, " +
		"preferences, and booking patterns when relevant. Be conversational and acknowledge returning users appropriately.")
	return b.String()
}

func renderPreferences(prefs map[string]string) string {
	if len(prefs) == 0 {
		return noPreferencesText
	}
	keys := make([]string, 0, len(prefs))
	for k := range prefs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	lines := make([]string, len(keys))
	for i, k := range keys {
		lines[i] = fmt.Sprintf("- %s: %s", k, prefs[k])
	}
	return strings.Join(lines, "\n")
}
