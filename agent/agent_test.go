package agent

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aschepis/backscratcher/travel/llm"
	"github.com/aschepis/backscratcher/travel/memory"
	"github.com/aschepis/backscratcher/travel/session"
	"github.com/aschepis/backscratcher/travel/tools"
	"github.com/rs/zerolog"
)

// scriptedClient replays responses in order and records every request.
// Once the script runs out, the last response repeats.
type scriptedClient struct {
	mu        sync.Mutex
	responses []*llm.Response
	requests  []llm.Request
	calls     func(ctx context.Context) error
}

func (c *scriptedClient) Synchronous(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	c.mu.Lock()
	c.requests = append(c.requests, *req)
	n := len(c.requests)
	c.mu.Unlock()

	if c.calls != nil {
		if err := c.calls(ctx); err != nil {
			return nil, err
		}
	}
	if len(c.responses) == 0 {
		return textResponse("ok"), nil
	}
	if n > len(c.responses) {
		n = len(c.responses)
	}
	return c.responses[n-1], nil
}

func (c *scriptedClient) recorded() []llm.Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]llm.Request(nil), c.requests...)
}

func textResponse(text string) *llm.Response {
	return &llm.Response{
		Content:    []llm.ContentBlock{{Type: llm.ContentBlockTypeText, Text: text}},
		StopReason: "stop",
	}
}

func toolResponse(id, name string, input map[string]any) *llm.Response {
	return &llm.Response{
		Content: []llm.ContentBlock{{
			Type:    llm.ContentBlockTypeToolUse,
			ToolUse: &llm.ToolUseBlock{ID: id, Name: name, Input: input},
		}},
		StopReason: "tool_use",
	}
}

type testEnv struct {
	agent    *Agent
	store    *memory.Store
	sessions *session.Registry
}

func newTestEnv(t *testing.T, client llm.Client, cfg Config) testEnv {
	t.Helper()
	db := setupTestDB(t)
	store := newTestStore(t, db)
	reg := tools.NewRegistry(zerolog.Nop(), nil)
	reg.RegisterBookingTools(tools.NewBookingStore(db))
	sessions := session.NewRegistry(time.Minute, zerolog.Nop())
	a, err := New(zerolog.Nop(), client, cfg,
		NewAssembler(store, AssemblerConfig{}, zerolog.Nop()),
		sessions, reg, reg, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return testEnv{agent: a, store: store, sessions: sessions}
}

func TestNew_RequiresCollaborators(t *testing.T) {
	if _, err := New(zerolog.Nop(), nil, Config{}, &Assembler{}, &session.Registry{}, nil, nil, nil); err == nil {
		t.Error("expected error without client")
	}
	if _, err := New(zerolog.Nop(), &scriptedClient{}, Config{}, nil, &session.Registry{}, nil, nil, nil); err == nil {
		t.Error("expected error without assembler")
	}
}

func TestChat_ToolLoopAndMemory(t *testing.T) {
	client := &scriptedClient{responses: []*llm.Response{
		toolResponse("call_1", "lookup_booking", map[string]any{"booking_id": "3"}),
		textResponse("Your booking 3 is at Valverde Hotel."),
		textResponse("Noted, I will look for central hotels."),
	}}
	env := newTestEnv(t, client, Config{Model: "test-model"})
	ctx := context.Background()

	reply, err := env.agent.Chat(ctx, "", "Can you check my booking ID 3?")
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if reply.SessionID == "" || !reply.FirstMessage {
		t.Errorf("first reply = %+v", reply)
	}
	if reply.Text != "Your booking 3 is at Valverde Hotel." {
		t.Errorf("reply text = %q", reply.Text)
	}
	if reply.Classification.Intent != IntentBookingLookup {
		t.Errorf("intent = %s", reply.Classification.Intent)
	}

	reqs := client.recorded()
	if len(reqs) != 2 {
		t.Fatalf("expected 2 model calls, got %d", len(reqs))
	}
	if reqs[0].System != SystemPrompt {
		t.Error("first message should not carry a memory block")
	}
	if reqs[0].Model != "test-model" || len(reqs[0].Tools) != 3 || len(reqs[0].Messages) != 1 {
		t.Errorf("unexpected first request: model=%s tools=%d messages=%d", reqs[0].Model, len(reqs[0].Tools), len(reqs[0].Messages))
	}
	last := reqs[1].Messages[len(reqs[1].Messages)-1]
	if len(last.Content) != 1 || last.Content[0].ToolResult == nil {
		t.Fatalf("second call should end with a tool result, got %+v", last)
	}
	result := last.Content[0].ToolResult
	if result.ID != "call_1" || result.IsError || !strings.Contains(result.Content, "Valverde Hotel") {
		t.Errorf("tool result = %+v", result)
	}

	count, err := env.store.TurnCount(ctx, reply.SessionID)
	if err != nil {
		t.Fatalf("TurnCount: %v", err)
	}
	if count != 1 {
		t.Errorf("turns stored = %d, want 1", count)
	}

	second, err := env.agent.Chat(ctx, reply.SessionID, "I prefer a central location")
	if err != nil {
		t.Fatalf("second Chat: %v", err)
	}
	if second.FirstMessage || second.SessionID != reply.SessionID {
		t.Errorf("second reply = %+v", second)
	}
	reqs = client.recorded()
	third := reqs[2]
	if !strings.Contains(third.System, "**MEMORY CONTEXT FOR PERSONALIZED ASSISTANCE:**") ||
		!strings.Contains(third.System, "- Total Bookings: 1") {
		t.Errorf("memory block missing from system prompt:\n%s", third.System)
	}
	if len(third.Messages) != 3 || llm.TextOf(third.Messages[0].Content) != "Can you check my booking ID 3?" {
		t.Errorf("history not replayed: %+v", third.Messages)
	}

	prefs, err := env.store.GetUserPreferences(ctx, reply.SessionID)
	if err != nil {
		t.Fatalf("GetUserPreferences: %v", err)
	}
	if prefs[memory.PreferenceLocation] != "I prefer a central location" {
		t.Errorf("preferences = %v", prefs)
	}
}

func TestChat_StoredHistoryIsNotFirstMessage(t *testing.T) {
	client := &scriptedClient{}
	env := newTestEnv(t, client, Config{})
	ctx := context.Background()

	if _, err := env.store.Remember(ctx, "returning", []memory.Message{
		memory.UserMessage("I need a hotel in Porto"), memory.AssistantMessage("Sure"),
	}, nil); err != nil {
		t.Fatalf("Remember: %v", err)
	}
	reply, err := env.agent.Chat(ctx, "returning", "hello again")
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if reply.FirstMessage {
		t.Error("session with stored turns should load memory")
	}
	if reqs := client.recorded(); reqs[0].System == SystemPrompt {
		t.Error("expected memory block for returning session")
	}
}

type failingExecutor struct {
	calls atomic.Int32
}

func (f *failingExecutor) Handle(ctx context.Context, toolName, sessionID string, inputJSON []byte) (any, error) {
	f.calls.Add(1)
	return nil, errors.New("backend down")
}

func TestChat_RepeatedToolFailureEndsTurn(t *testing.T) {
	client := &scriptedClient{responses: []*llm.Response{
		toolResponse("call_1", "lookup_booking", map[string]any{"booking_id": "1"}),
	}}
	exec := &failingExecutor{}
	env := newTestEnv(t, client, Config{MaxToolRounds: 10})
	env.agent.toolExec = exec

	_, err := env.agent.Chat(context.Background(), "s1", "check booking 1")
	if err == nil || !strings.Contains(err.Error(), "repeatedly failed") {
		t.Fatalf("expected repeated failure error, got %v", err)
	}
	if exec.calls.Load() != maxRepeatedFailures {
		t.Errorf("tool calls = %d, want %d", exec.calls.Load(), maxRepeatedFailures)
	}
	reqs := client.recorded()
	errResult := reqs[1].Messages[len(reqs[1].Messages)-1].Content[0].ToolResult
	if errResult == nil || !errResult.IsError || !strings.Contains(errResult.Content, "backend down") {
		t.Errorf("tool error not returned to model: %+v", errResult)
	}
	if count, _ := env.store.TurnCount(context.Background(), "s1"); count != 0 {
		t.Error("failed turn should not be remembered")
	}
}

func TestChat_ToolRoundsExceeded(t *testing.T) {
	client := &scriptedClient{responses: []*llm.Response{
		toolResponse("call_1", "lookup_booking", map[string]any{"booking_id": "1"}),
	}}
	env := newTestEnv(t, client, Config{MaxToolRounds: 2})

	_, err := env.agent.Chat(context.Background(), "s1", "loop forever")
	if !errors.Is(err, ErrToolRoundsExceeded) {
		t.Fatalf("expected ErrToolRoundsExceeded, got %v", err)
	}
	if n := len(client.recorded()); n != 2 {
		t.Errorf("model calls = %d, want 2", n)
	}
}

func TestChat_TimeoutIsReported(t *testing.T) {
	client := &scriptedClient{calls: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}}
	env := newTestEnv(t, client, Config{ChatTimeout: 20 * time.Millisecond})

	start := time.Now()
	_, err := env.agent.Chat(context.Background(), "s1", "hello")
	if time.Since(start) > 2*time.Second {
		t.Fatal("chat did not honor its timeout")
	}
	if llm.TypeOf(err) != llm.ErrorTypeTimeout {
		t.Errorf("error type = %q (%v), want timeout", llm.TypeOf(err), err)
	}

	// the session is usable again after a failed turn
	client.calls = nil
	if _, err := env.agent.Chat(context.Background(), "s1", "hello"); err != nil {
		t.Errorf("Chat after timeout: %v", err)
	}
}

func TestChat_SerializesTurnsPerSession(t *testing.T) {
	var inFlight, maxInFlight atomic.Int32
	client := &scriptedClient{calls: func(ctx context.Context) error {
		n := inFlight.Add(1)
		for {
			m := maxInFlight.Load()
			if n <= m || maxInFlight.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		return nil
	}}
	env := newTestEnv(t, client, Config{})

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := env.agent.Chat(context.Background(), "shared", "hello"); err != nil {
				t.Errorf("Chat: %v", err)
			}
		}()
	}
	wg.Wait()

	if maxInFlight.Load() != 1 {
		t.Errorf("max concurrent turns = %d, want 1", maxInFlight.Load())
	}
	count, err := env.store.TurnCount(context.Background(), "shared")
	if err != nil {
		t.Fatalf("TurnCount: %v", err)
	}
	if count != 5 {
		t.Errorf("turns stored = %d, want 5", count)
	}
	s, err := env.sessions.Get("shared")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if s.Turns != 5 {
		t.Errorf("session turns = %d, want 5", s.Turns)
	}
}

func TestEndSession(t *testing.T) {
	env := newTestEnv(t, &scriptedClient{}, Config{})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := env.agent.Chat(ctx, "s1", "hello"); err != nil {
			t.Fatalf("Chat: %v", err)
		}
	}
	if err := env.agent.EndSession(ctx, "s1"); err != nil {
		t.Fatalf("EndSession: %v", err)
	}
	summaries, err := env.store.Summaries(ctx, "s1")
	if err != nil {
		t.Fatalf("Summaries: %v", err)
	}
	if len(summaries) != 1 || summaries[0].TurnCount != 1 {
		t.Errorf("summaries = %+v", summaries)
	}
	if _, err := env.sessions.Get("s1"); !errors.Is(err, session.ErrNotFound) {
		t.Errorf("session should be gone, got %v", err)
	}
}

func TestResultContent(t *testing.T) {
	if got := resultContent("plain"); got != "plain" {
		t.Errorf("string = %q", got)
	}
	got := resultContent(map[string]any{"error": "boom"})
	var decoded map[string]string
	if err := json.Unmarshal([]byte(got), &decoded); err != nil || decoded["error"] != "boom" {
		t.Errorf("map = %q", got)
	}
	if got := resultContent(strings.Repeat("x", maxToolResultChars+10)); !strings.HasSuffix(got, "... (truncated)") {
		t.Error("long results should be truncated")
	}
}
