package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/aschepis/backscratcher/travel/agent"
	"github.com/aschepis/backscratcher/travel/llm"
	"github.com/aschepis/backscratcher/travel/memory"
	"github.com/aschepis/backscratcher/travel/metrics"
	"github.com/aschepis/backscratcher/travel/migrations"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	_ "github.com/mattn/go-sqlite3"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	if err := migrations.RunMigrations(db, zerolog.Nop()); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}
	return db
}

type fakeChat struct {
	err   error
	ended []string
}

func (f *fakeChat) Chat(ctx context.Context, sessionID, message string) (*agent.Reply, error) {
	if f.err != nil {
		return nil, f.err
	}
	if sessionID == "" {
		sessionID = "generated"
	}
	return &agent.Reply{
		SessionID:      sessionID,
		Text:           "echo: " + message,
		Classification: agent.Classify(message),
		FirstMessage:   true,
	}, nil
}

func (f *fakeChat) EndSession(ctx context.Context, sessionID string) error {
	f.ended = append(f.ended, sessionID)
	return nil
}

type fakeSessions struct {
	mu      sync.Mutex
	count   int
	touched []string
}

func (f *fakeSessions) ActiveCount() int { return f.count }

func (f *fakeSessions) Touch(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.touched = append(f.touched, id)
	return nil
}

func newTestServer(t *testing.T, chat ChatService) (*httptest.Server, *memory.Store) {
	t.Helper()
	return newTestServerWithSessions(t, chat, &fakeSessions{count: 2})
}

func newTestServerWithSessions(t *testing.T, chat ChatService, sessions Sessions) (*httptest.Server, *memory.Store) {
	t.Helper()
	db := setupTestDB(t)
	store, err := memory.NewStore(db, nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	m := metrics.New("test", prometheus.NewRegistry())
	s := New(Config{Logger: zerolog.Nop()}, chat, store, sessions, db, []string{"lookup_booking"}, m)
	ts := httptest.NewServer(s.Router())
	t.Cleanup(ts.Close)
	return ts, store
}

func decode(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return body
}

func TestChatEndpoint(t *testing.T) {
	ts, _ := newTestServer(t, &fakeChat{})

	resp, err := http.Post(ts.URL+"/v1/chat", "application/json",
		strings.NewReader(`{"session_id":"s1","message":"Hello there"}`))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	body := decode(t, resp)
	if body["session_id"] != "s1" || body["response"] != "echo: Hello there" || body["intent"] != "greeting" {
		t.Errorf("unexpected body %v", body)
	}
}

func TestChatEndpoint_Validation(t *testing.T) {
	ts, _ := newTestServer(t, &fakeChat{})
	for _, payload := range []string{`{"message":"   "}`, `not json`} {
		resp, err := http.Post(ts.URL+"/v1/chat", "application/json", strings.NewReader(payload))
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%q: status = %d, want 400", payload, resp.StatusCode)
		}
	}
}

func TestChatEndpoint_ErrorStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{llm.NewTimeoutError("chat timed out", context.DeadlineExceeded), http.StatusGatewayTimeout},
		{fmt.Errorf("turn: %w", llm.NewRateLimitError("slow down", nil, nil)), http.StatusTooManyRequests},
		{llm.NewProviderError("bad gateway", nil), http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		ts, _ := newTestServer(t, &fakeChat{err: tt.err})
		resp, err := http.Post(ts.URL+"/v1/chat", "application/json", strings.NewReader(`{"message":"hi"}`))
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != tt.want {
			t.Errorf("%v: status = %d, want %d", tt.err, resp.StatusCode, tt.want)
		}
	}
}

func TestChatEndpoint_NotConfigured(t *testing.T) {
	ts, _ := newTestServer(t, nil)
	resp, err := http.Post(ts.URL+"/v1/chat", "application/json", strings.NewReader(`{"message":"hi"}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", resp.StatusCode)
	}
}

func TestEndSessionEndpoint(t *testing.T) {
	chat := &fakeChat{}
	ts, _ := newTestServer(t, chat)
	resp, err := http.Post(ts.URL+"/v1/sessions/s9/end", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || len(chat.ended) != 1 || chat.ended[0] != "s9" {
		t.Errorf("status = %d, ended = %v", resp.StatusCode, chat.ended)
	}
}

func TestMemoryEndpoints(t *testing.T) {
	sessions := &fakeSessions{}
	ts, store := newTestServerWithSessions(t, &fakeChat{}, sessions)
	ctx := context.Background()
	if _, err := store.Remember(ctx, "s1", []memory.Message{
		memory.UserMessage("I want something on a budget"),
		memory.AssistantMessage("Noted."),
	}, nil); err != nil {
		t.Fatalf("Remember: %v", err)
	}

	resp, err := http.Get(ts.URL + "/v1/sessions/s1/memory?q=budget")
	if err != nil {
		t.Fatal(err)
	}
	body := decode(t, resp)
	prefs, _ := body["preferences"].(map[string]any)
	if prefs[memory.PreferenceBudget] != "I want something on a budget" {
		t.Errorf("preferences = %v", body["preferences"])
	}
	recent, _ := body["recent_turns"].([]any)
	if len(recent) != 1 {
		t.Errorf("recent turns = %v", body["recent_turns"])
	}

	resp, err = http.Get(ts.URL + "/v1/sessions/s1/history")
	if err != nil {
		t.Fatal(err)
	}
	body = decode(t, resp)
	msgs, _ := body["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("history = %v", body["messages"])
	}
	if first, _ := msgs[0].(map[string]any); first["role"] != "user" {
		t.Errorf("first message = %v", msgs[0])
	}

	sessions.mu.Lock()
	touched := append([]string(nil), sessions.touched...)
	sessions.mu.Unlock()
	if len(touched) != 2 || touched[0] != "s1" || touched[1] != "s1" {
		t.Errorf("touched sessions = %v, want [s1 s1]", touched)
	}

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/v1/sessions/s1/memory", nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("clear status = %d", resp.StatusCode)
	}
	has, err := store.HasHistory(ctx, "s1")
	if err != nil || has {
		t.Errorf("HasHistory after clear = %v, %v", has, err)
	}
}

func TestSystemEndpoints(t *testing.T) {
	ts, _ := newTestServer(t, &fakeChat{})

	for _, path := range []string{"/healthz", "/readyz"} {
		resp, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("%s status = %d", path, resp.StatusCode)
		}
	}

	resp, err := http.Get(ts.URL + "/v1/info")
	if err != nil {
		t.Fatal(err)
	}
	body := decode(t, resp)
	if body["active_sessions"] != float64(2) {
		t.Errorf("info = %v", body)
	}

	resp, err = http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("metrics status = %d", resp.StatusCode)
	}
}
