package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/quillhq/quill/internal/suggest"
)

type stubProvider struct {
	response string
	err      error
}

func (p stubProvider) ID() string { return "stub" }

func (p stubProvider) Complete(ctx context.Context, system, user string) (string, error) {
	return p.response, p.err
}

func newTestServer(response string, err error) *Server {
	engine := suggest.NewEngineWithProvider(stubProvider{response: response, err: err}, 5, time.Second, "")
	return NewServer(engine)
}

func TestDraftReturnsJSONArray(t *testing.T) {
	s := newTestServer(`["Yes!","No, sorry.","Maybe later?"]`, nil)

	text, isError := s.draft(context.Background(), draftArgs{Context: "them: are you coming?"})
	if isError {
		t.Fatalf("unexpected tool error: %s", text)
	}

	var replies []string
	if err := json.Unmarshal([]byte(text), &replies); err != nil {
		t.Fatalf("payload is not a JSON array: %s", text)
	}
	if len(replies) != 3 || replies[0] != "Yes!" {
		t.Errorf("unexpected replies: %v", replies)
	}
}

func TestDraftHonorsCount(t *testing.T) {
	s := newTestServer(`["a","b","c","d"]`, nil)

	text, isError := s.draft(context.Background(), draftArgs{Context: "hi", Count: 2})
	if isError {
		t.Fatalf("unexpected tool error: %s", text)
	}

	var replies []string
	if err := json.Unmarshal([]byte(text), &replies); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(replies) != 2 {
		t.Errorf("count=2 should truncate, got %v", replies)
	}
}

func TestDraftFallsBackOnProviderError(t *testing.T) {
	s := newTestServer("", errors.New("provider down"))

	text, isError := s.draft(context.Background(), draftArgs{Context: "hi"})
	if isError {
		t.Fatalf("provider errors should fall back, not error: %s", text)
	}

	var replies []string
	if err := json.Unmarshal([]byte(text), &replies); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(replies) == 0 {
		t.Error("fallback replies missing")
	}
}

func TestDraftWithoutEngine(t *testing.T) {
	s := NewServer(nil)

	_, isError := s.draft(context.Background(), draftArgs{Context: "hi"})
	if !isError {
		t.Error("expected a tool error without an engine")
	}
}

func TestHandlerIsMountable(t *testing.T) {
	s := newTestServer(`["ok"]`, nil)
	if s.Handler() == nil {
		t.Fatal("handler is nil")
	}
}
