package agent

import (
	"context"
	"database/sql"
	"testing"

	"github.com/aschepis/backscratcher/travel/memory"
	"github.com/aschepis/backscratcher/travel/migrations"
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

func newTestStore(t *testing.T, db *sql.DB) *memory.Store {
	t.Helper()
	store, err := memory.NewStore(db, nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return store
}

// untouchedStore panics on any call, proving a code path never reads memory.
type untouchedStore struct {
	MemoryStore
}

func TestAssembler_FirstMessageSkipsStore(t *testing.T) {
	a := NewAssembler(untouchedStore{}, AssemblerConfig{}, zerolog.Nop())
	mc, err := a.Load(context.Background(), "s1", "hello", true)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !mc.Empty() || mc.SessionID != "s1" {
		t.Errorf("expected empty context for s1, got %+v", mc)
	}

	first, err := a.IsFirstMessage(context.Background(), "s1", 2)
	if err != nil || first {
		t.Errorf("IsFirstMessage with in-process turns = %v, %v", first, err)
	}
}

func TestAssembler_LoadAfterTurns(t *testing.T) {
	store := newTestStore(t, setupTestDB(t))
	a := NewAssembler(store, AssemblerConfig{}, zerolog.Nop())
	ctx := context.Background()

	first, err := a.IsFirstMessage(ctx, "s1", 0)
	if err != nil || !first {
		t.Fatalf("new session should be first: %v, %v", first, err)
	}

	if err := a.Complete(ctx, "s1", "My booking ID is 4", "Booking 4 is at Santiago de Alfama", nil); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if err := a.Complete(ctx, "s1", "I prefer a central location", "Noted", map[string]any{"intent": "unknown"}); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	first, err = a.IsFirstMessage(ctx, "s1", 0)
	if err != nil || first {
		t.Fatalf("session with stored turns is not first: %v, %v", first, err)
	}

	mc, err := a.Load(ctx, "s1", "central", false)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if mc.Empty() {
		t.Fatal("expected memory context")
	}
	if len(mc.View.RecentTurns) != 2 {
		t.Errorf("recent turns = %d, want 2", len(mc.View.RecentTurns))
	}
	if mc.Preferences[memory.PreferenceLocation] != "I prefer a central location" {
		t.Errorf("preferences = %v", mc.Preferences)
	}
	if len(mc.Bookings) != 1 || mc.Bookings[0].Content != "My booking ID is 4" {
		t.Errorf("bookings = %+v", mc.Bookings)
	}

	history, err := a.History(ctx, "s1")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 4 || history[0].Content != "My booking ID is 4" || history[3].Content != "Noted" {
		t.Errorf("history = %+v", history)
	}
}

func TestAssembler_CompleteFoldsAtThreshold(t *testing.T) {
	store := newTestStore(t, setupTestDB(t))
	a := NewAssembler(store, AssemblerConfig{SummaryThreshold: 4}, zerolog.Nop())
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		if err := a.Complete(ctx, "s1", "hello", "hi", nil); err != nil {
			t.Fatalf("Complete %d: %v", i, err)
		}
	}
	summaries, err := store.Summaries(ctx, "s1")
	if err != nil {
		t.Fatalf("Summaries: %v", err)
	}
	if len(summaries) != 1 || summaries[0].TurnCount != 2 {
		t.Fatalf("summaries = %+v", summaries)
	}
	count, err := store.TurnCount(ctx, "s1")
	if err != nil {
		t.Fatalf("TurnCount: %v", err)
	}
	if count != 2 {
		t.Errorf("turns left = %d, want 2", count)
	}

	mc, err := a.Load(ctx, "s1", "hello", false)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if mc.View.Summary == "" {
		t.Error("summary should be part of the loaded context")
	}
}

func TestAssembler_Finalize(t *testing.T) {
	store := newTestStore(t, setupTestDB(t))
	a := NewAssembler(store, AssemblerConfig{}, zerolog.Nop())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := a.Complete(ctx, "s1", "hello", "hi", nil); err != nil {
			t.Fatalf("Complete: %v", err)
		}
	}
	summary, err := a.Finalize(ctx, "s1")
	if err != nil || summary != nil {
		t.Fatalf("two turns should not fold: %v, %v", summary, err)
	}

	if err := a.Complete(ctx, "s1", "bye", "goodbye", nil); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	summary, err = a.Finalize(ctx, "s1")
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if summary == nil || summary.TurnCount != 1 {
		t.Errorf("summary = %+v, want one folded turn", summary)
	}
}
