package db

import (
	"context"
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewSQLite(filepath.Join(t.TempDir(), "quill.db"))
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestMigrationsCreateSchema(t *testing.T) {
	store := openTestStore(t)

	for _, table := range []string{"selections", "error_logs"} {
		var name string
		err := store.DB().QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("table %s missing: %v", table, err)
		}
	}
}

func TestRecordAndListSelections(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	first, err := store.RecordSelection(ctx, Selection{
		SessionID:       "sess-1",
		ConversationRef: "alice@example.com",
		SuggestionIndex: 1,
		Text:            "sure",
		Inserted:        true,
	})
	if err != nil {
		t.Fatalf("RecordSelection failed: %v", err)
	}
	if first == 0 {
		t.Error("expected a nonzero row id")
	}

	if _, err := store.RecordSelection(ctx, Selection{
		SessionID:       "sess-1",
		SuggestionIndex: 0,
		Text:            "ok",
		Inserted:        false,
	}); err != nil {
		t.Fatalf("second RecordSelection failed: %v", err)
	}

	sels, err := store.ListSelections(ctx, 10)
	if err != nil {
		t.Fatalf("ListSelections failed: %v", err)
	}
	if len(sels) != 2 {
		t.Fatalf("expected 2 selections, got %d", len(sels))
	}

	// Newest first
	if sels[0].Text != "ok" {
		t.Errorf("expected newest selection first, got %q", sels[0].Text)
	}
	if sels[0].Inserted {
		t.Error("second selection should not be marked inserted")
	}
	if !sels[1].Inserted {
		t.Error("first selection should be marked inserted")
	}
	if sels[1].ConversationRef != "alice@example.com" {
		t.Errorf("conversation ref lost: %q", sels[1].ConversationRef)
	}
}

func TestListSelectionsLimit(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := store.RecordSelection(ctx, Selection{
			SessionID:       "sess-1",
			SuggestionIndex: i,
			Text:            "text",
		}); err != nil {
			t.Fatal(err)
		}
	}

	sels, err := store.ListSelections(ctx, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(sels) != 3 {
		t.Errorf("expected 3 selections, got %d", len(sels))
	}
}

func TestErrorLogRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.InsertErrorLog(ctx, "error", "hub", "agent exited unexpectedly", "", `{"pid":"123"}`); err != nil {
		t.Fatalf("InsertErrorLog failed: %v", err)
	}
	if err := store.InsertErrorLog(ctx, "panic", "overlay", "nil window", "stack here", ""); err != nil {
		t.Fatalf("InsertErrorLog failed: %v", err)
	}

	logs, err := store.ListErrorLogs(ctx, 10)
	if err != nil {
		t.Fatalf("ListErrorLogs failed: %v", err)
	}
	if len(logs) != 2 {
		t.Fatalf("expected 2 logs, got %d", len(logs))
	}
	if logs[0].Module != "overlay" {
		t.Errorf("expected newest log first, got module %q", logs[0].Module)
	}
	if logs[0].Stacktrace != "stack here" {
		t.Errorf("stacktrace lost: %q", logs[0].Stacktrace)
	}
	if logs[1].Context != `{"pid":"123"}` {
		t.Errorf("context lost: %q", logs[1].Context)
	}
}
