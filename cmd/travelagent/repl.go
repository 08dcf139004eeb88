package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/aschepis/backscratcher/travel/memory"
	"github.com/aschepis/backscratcher/travel/session"
	"github.com/samber/lo"
)

const helpText = `Available commands:
  profile        view your preferences, bookings and conversation summary
  help           show this help message
  clear          delete all memory for this session
  bye/exit/quit  end the conversation
Ask about hotels, flights, bookings, or travel questions!`

// repl is the interactive chat loop.
type repl struct {
	app   *app
	out   io.Writer
	lines <-chan string
}

func newREPL(a *app, in io.Reader, out io.Writer) *repl {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()
	return &repl{app: a, out: out, lines: lines}
}

// readLine prints prompt and waits for the next input line. ok is false on
// end of input or cancellation.
func (r *repl) readLine(ctx context.Context, prompt string) (line string, ok bool) {
	fmt.Fprint(r.out, prompt)
	select {
	case <-ctx.Done():
		return "", false
	case line, ok = <-r.lines:
		return strings.TrimSpace(line), ok
	}
}

func (r *repl) confirm(ctx context.Context, prompt string) bool {
	answer, ok := r.readLine(ctx, prompt)
	if !ok {
		return false
	}
	answer = strings.ToLower(answer)
	return answer == "y" || answer == "yes"
}

// Run chats until the user leaves, input ends or ctx is cancelled.
func (r *repl) Run(ctx context.Context, sessionID string) error {
	fmt.Fprintln(r.out, "TRAVEL BOOKING ASSISTANT WITH MEMORY")
	fmt.Fprintln(r.out, strings.Repeat("=", 40))

	if sessionID == "" {
		var ok bool
		sessionID, ok = r.readLine(ctx, "Enter your user ID (or press Enter for new session): ")
		if !ok {
			return nil
		}
	}
	if sessionID == "" {
		sessionID = session.NewID()
		fmt.Fprintf(r.out, "New session created: %s\n", sessionID)
	} else if err := r.greet(ctx, sessionID); err != nil {
		return err
	}

	fmt.Fprintf(r.out, "\nChat active for session: %s\n", shortID(sessionID))
	fmt.Fprintln(r.out, "Type 'profile' to see your profile, 'help' for commands, or 'bye' to exit.")

	for {
		input, ok := r.readLine(ctx, "\nYou: ")
		if !ok {
			fmt.Fprintf(r.out, "\nGoodbye! Session saved as: %s\n", sessionID)
			return nil
		}

		switch strings.ToLower(input) {
		case "":
			fmt.Fprintln(r.out, "Please enter a message or type 'help' for commands.")
		case "bye", "exit", "quit":
			r.farewell(ctx, sessionID)
			return nil
		case "profile":
			r.showProfile(ctx, sessionID)
		case "help":
			fmt.Fprintln(r.out, helpText)
		case "clear":
			answer, ok := r.readLine(ctx, "Clear all memory for this session? (type 'yes' to confirm): ")
			if ok && strings.ToLower(answer) == "yes" {
				if err := r.app.store.History(sessionID).Clear(ctx); err != nil {
					fmt.Fprintf(r.out, "Error: %v\n", err)
					continue
				}
				fmt.Fprintln(r.out, "Memory cleared for this session!")
			}
		default:
			reply, err := r.app.agent.Chat(ctx, sessionID, input)
			if err != nil {
				r.app.logger.Error().Err(err).Str("session_id", sessionID).Msg("chat turn failed")
				fmt.Fprintf(r.out, "Error: %v\nPlease try again or type 'help' for commands.\n", err)
				continue
			}
			fmt.Fprintf(r.out, "Assistant: %s\n", reply.Text)
		}
	}
}

// greet welcomes a returning user or announces a new profile.
func (r *repl) greet(ctx context.Context, sessionID string) error {
	count, err := r.app.store.TurnCount(ctx, sessionID)
	if err != nil {
		return err
	}
	summaries, err := r.app.store.Summaries(ctx, sessionID)
	if err != nil {
		return err
	}
	if count == 0 && len(summaries) == 0 {
		fmt.Fprintf(r.out, "New user profile created: %s\n", sessionID)
		return nil
	}
	fmt.Fprintf(r.out, "Welcome back! Found %d previous conversations.\n", count)
	if r.confirm(ctx, "Would you like to see your profile? (y/n): ") {
		r.showProfile(ctx, sessionID)
	}
	return nil
}

func (r *repl) farewell(ctx context.Context, sessionID string) {
	fmt.Fprintln(r.out, "Thanks for using Travel Booking Assistant!")
	fmt.Fprintf(r.out, "Your conversation has been saved under session: %s\n", sessionID)
	if !r.confirm(ctx, "Create a final summary of this session? (y/n): ") {
		return
	}
	if err := r.app.agent.EndSession(ctx, sessionID); err != nil {
		fmt.Fprintf(r.out, "Error: %v\n", err)
		return
	}
	fmt.Fprintln(r.out, "Final summary created and saved!")
}

func (r *repl) showProfile(ctx context.Context, sessionID string) {
	prefs, err := r.app.store.GetUserPreferences(ctx, sessionID)
	if err != nil {
		fmt.Fprintf(r.out, "Error: %v\n", err)
		return
	}
	bookings, err := r.app.store.GetBookingHistory(ctx, sessionID)
	if err != nil {
		fmt.Fprintf(r.out, "Error: %v\n", err)
		return
	}
	summary, err := r.app.store.ConversationSummary(ctx, sessionID)
	if err != nil {
		fmt.Fprintf(r.out, "Error: %v\n", err)
		return
	}
	fmt.Fprint(r.out, renderProfile(sessionID, prefs, bookingLines(bookings), summary))
}

func renderProfile(sessionID string, prefs map[string]string, bookings []string, summary string) string {
	var b strings.Builder
	rule := strings.Repeat("=", 50)
	fmt.Fprintf(&b, "\n%s\nUSER PROFILE: %s\n%s\n", rule, shortID(sessionID), rule)

	if len(prefs) == 0 {
		b.WriteString("PREFERENCES: None stored yet\n")
	} else {
		b.WriteString("PREFERENCES:\n")
		keys := make([]string, 0, len(prefs))
		for k := range prefs {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "  - %s: %s\n", k, prefs[k])
		}
	}

	fmt.Fprintf(&b, "\nBOOKING HISTORY: %d total bookings\n", len(bookings))
	for i, line := range bookings {
		if i == 3 {
			break
		}
		fmt.Fprintf(&b, "  %d. %s\n", i+1, line)
	}

	if summary == "" {
		b.WriteString("\nCONVERSATION SUMMARY: No summary available yet\n")
	} else {
		if len(summary) > 200 {
			summary = summary[:200] + "..."
		}
		fmt.Fprintf(&b, "\nCONVERSATION SUMMARY:\n  %s\n", summary)
	}
	b.WriteString(rule + "\n")
	return b.String()
}

func bookingLines(facts []memory.Fact) []string {
	return lo.Map(facts, func(f memory.Fact, _ int) string { return f.Content })
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8] + "..."
	}
	return id
}
