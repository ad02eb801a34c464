package hub

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/quillhq/quill/internal/config"
	"github.com/quillhq/quill/internal/db"
	"github.com/quillhq/quill/internal/defaults"
	"github.com/quillhq/quill/internal/lifecycle"
	"github.com/quillhq/quill/internal/suggest"
)

type stubProvider struct{}

func (stubProvider) ID() string { return "stub" }

func (stubProvider) Complete(ctx context.Context, system, user string) (string, error) {
	return `["Yes!","Sounds great."]`, nil
}

// standInProcess starts a long-lived process that plays the agent's role
// for the reaper; the websocket side is driven by the test itself.
func standInProcess(t *testing.T) *exec.Cmd {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("needs a sleep binary")
	}
	cmd := exec.Command("sleep", "60")
	if err := cmd.Start(); err != nil {
		t.Fatalf("start stand-in process: %v", err)
	}
	return cmd
}

func newTestSupervisor(t *testing.T, store *db.Store) *Supervisor {
	t.Helper()
	t.Setenv("QUILL_DATA_DIR", t.TempDir())

	cfg := config.DefaultConfig()
	cfg.Hub.StartupTimeoutMS = 3000
	cfg.Hub.ShutdownGraceMS = 50

	h := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go h.Run(ctx)

	engine := suggest.NewEngineWithProvider(stubProvider{}, 3, time.Second, "")
	sup, err := NewSupervisor(cfg, h, engine, store)
	if err != nil {
		t.Fatalf("new supervisor: %v", err)
	}
	return sup
}

func dialAgent(port int, token string) (*websocket.Conn, error) {
	wsURL := fmt.Sprintf("ws://127.0.0.1:%d/ws?token=%s&pid=%d", port, url.QueryEscape(token), os.Getpid())
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	return ws, err
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(20 * time.Millisecond)
	}
	return cond()
}

func TestSupervisorActivateDeactivate(t *testing.T) {
	store, err := db.NewSQLite(filepath.Join(t.TempDir(), "quill.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	sup := newTestSupervisor(t, store)

	// Activation must clear a leftover "closed by user" marker
	if err := defaults.SetOverlayDisabled(true); err != nil {
		t.Fatalf("seed marker: %v", err)
	}

	agentConn := make(chan *websocket.Conn, 1)
	sup.SetLauncher(func(port int, sessionID, token string) (*exec.Cmd, error) {
		cmd := standInProcess(t)
		go func() {
			ws, err := dialAgent(port, token)
			if err == nil {
				agentConn <- ws
			}
		}()
		return cmd, nil
	})

	if err := sup.Activate(context.Background()); err != nil {
		t.Fatalf("activate: %v", err)
	}

	st := sup.Status()
	if st.State != StateActive {
		t.Fatalf("expected active, got %s", st.State)
	}
	if st.Port == 0 || st.SessionID == "" {
		t.Errorf("incomplete status: %+v", st)
	}
	if !st.Connected {
		t.Error("status should report a connected agent")
	}
	if disabled, _ := defaults.IsOverlayDisabled(); disabled {
		t.Error("activation should clear the disabled marker")
	}

	var ws *websocket.Conn
	select {
	case ws = <-agentConn:
	case <-time.After(2 * time.Second):
		t.Fatal("agent connection never arrived")
	}
	defer ws.Close()

	if frame := readFrame(t, ws); frame.Type != TypeConnected {
		t.Fatalf("expected greeting, got %s", frame.Type)
	}

	// Second activate while active is a no-op and keeps the session
	if err := sup.Activate(context.Background()); err != nil {
		t.Fatalf("second activate: %v", err)
	}
	if got := sup.Status().SessionID; got != st.SessionID {
		t.Errorf("session changed across idempotent activate: %s vs %s", got, st.SessionID)
	}

	// Fresh context flows through the suggestion engine and back
	if err := ws.WriteMessage(websocket.TextMessage, EncodeContext("them: dinner tonight?", "chat1")); err != nil {
		t.Fatalf("write context: %v", err)
	}

	loading := readFrame(t, ws)
	if loading.Type != TypeSuggestions || !loading.Loading {
		t.Fatalf("expected loading frame, got %+v", loading)
	}

	result := readFrame(t, ws)
	if result.Type != TypeSuggestions || result.Loading {
		t.Fatalf("expected result frame, got %+v", result)
	}
	if len(result.Suggestions) != 2 || result.Suggestions[0] != "Yes!" {
		t.Errorf("unexpected suggestions: %v", result.Suggestions)
	}

	// Selections are persisted with the conversation ref in effect
	if err := ws.WriteMessage(websocket.TextMessage, EncodeSelected(1, "Sounds great.", true)); err != nil {
		t.Fatalf("write selection: %v", err)
	}

	var rows []db.Selection
	ok := waitUntil(t, 2*time.Second, func() bool {
		rows, _ = store.ListSelections(context.Background(), 10)
		return len(rows) == 1
	})
	if !ok {
		t.Fatal("selection never recorded")
	}
	sel := rows[0]
	if sel.SessionID != st.SessionID || sel.SuggestionIndex != 1 || !sel.Inserted || sel.ConversationRef != "chat1" {
		t.Errorf("unexpected selection row: %+v", sel)
	}

	// Deactivate announces shutdown, then reaps the process
	done := make(chan error, 1)
	go func() { done <- sup.Deactivate(context.Background()) }()

	notice := readFrame(t, ws)
	if notice.Type != TypeStatus || notice.Status != "shutting_down" {
		t.Errorf("expected shutting_down notice, got %+v", notice)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("deactivate: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("deactivate never returned")
	}

	if got := sup.Status().State; got != StateInactive {
		t.Errorf("expected inactive after deactivate, got %s", got)
	}
}

func TestSupervisorStartupTimeout(t *testing.T) {
	sup := newTestSupervisor(t, nil)
	sup.cfg.Hub.StartupTimeoutMS = 1000

	// Process starts but never connects
	sup.SetLauncher(func(port int, sessionID, token string) (*exec.Cmd, error) {
		return standInProcess(t), nil
	})

	err := sup.Activate(context.Background())
	if !errors.Is(err, ErrAgentFailedToStart) {
		t.Fatalf("expected ErrAgentFailedToStart, got %v", err)
	}
	if got := sup.Status().State; got != StateInactive {
		t.Errorf("expected inactive after failed start, got %s", got)
	}
}

func TestSupervisorAgentExitsBeforeConnecting(t *testing.T) {
	sup := newTestSupervisor(t, nil)

	sup.SetLauncher(func(port int, sessionID, token string) (*exec.Cmd, error) {
		if runtime.GOOS == "windows" {
			t.Skip("needs a true binary")
		}
		cmd := exec.Command("true")
		if err := cmd.Start(); err != nil {
			t.Fatalf("start: %v", err)
		}
		return cmd, nil
	})

	err := sup.Activate(context.Background())
	if !errors.Is(err, ErrAgentFailedToStart) {
		t.Fatalf("expected ErrAgentFailedToStart, got %v", err)
	}
	if got := sup.Status().State; got != StateInactive {
		t.Errorf("expected inactive, got %s", got)
	}
}

func TestSupervisorLauncherError(t *testing.T) {
	sup := newTestSupervisor(t, nil)
	sup.SetLauncher(func(port int, sessionID, token string) (*exec.Cmd, error) {
		return nil, errors.New("binary missing")
	})

	if err := sup.Activate(context.Background()); err == nil {
		t.Fatal("expected activate to fail")
	}
	if got := sup.Status().State; got != StateInactive {
		t.Errorf("expected inactive, got %s", got)
	}
}

func TestSupervisorDeactivateWhenInactive(t *testing.T) {
	sup := newTestSupervisor(t, nil)
	if err := sup.Deactivate(context.Background()); err != nil {
		t.Fatalf("deactivate on inactive supervisor: %v", err)
	}
}

func TestSupervisorPushWithoutSession(t *testing.T) {
	sup := newTestSupervisor(t, nil)
	if err := sup.PushSuggestions([]string{"hi"}); err == nil {
		t.Error("expected push without a session to fail")
	}
}

func TestSupervisorOverlayDisabledByUser(t *testing.T) {
	sup := newTestSupervisor(t, nil)

	agentConn := make(chan *websocket.Conn, 1)
	var agentCmd *exec.Cmd
	sup.SetLauncher(func(port int, sessionID, token string) (*exec.Cmd, error) {
		agentCmd = standInProcess(t)
		go func() {
			ws, err := dialAgent(port, token)
			if err == nil {
				agentConn <- ws
			}
		}()
		return agentCmd, nil
	})

	if err := sup.Activate(context.Background()); err != nil {
		t.Fatalf("activate: %v", err)
	}

	var ws *websocket.Conn
	select {
	case ws = <-agentConn:
	case <-time.After(2 * time.Second):
		t.Fatal("agent connection never arrived")
	}
	readFrame(t, ws) // greeting

	// User closes the overlay: the agent reports it, then exits
	if err := ws.WriteMessage(websocket.TextMessage, EncodeStatus("overlay_disabled")); err != nil {
		t.Fatalf("write status: %v", err)
	}

	ok := waitUntil(t, 2*time.Second, func() bool {
		disabled, _ := defaults.IsOverlayDisabled()
		return disabled
	})
	if !ok {
		t.Fatal("disabled marker never written")
	}

	ws.Close()
	agentCmd.Process.Kill()

	ok = waitUntil(t, 2*time.Second, func() bool {
		return sup.Status().State == StateInactive
	})
	if !ok {
		t.Error("supervisor never returned to inactive after user close")
	}
}

func TestSupervisorAgentCrash(t *testing.T) {
	sup := newTestSupervisor(t, nil)

	agentConn := make(chan *websocket.Conn, 1)
	var agentCmd *exec.Cmd
	sup.SetLauncher(func(port int, sessionID, token string) (*exec.Cmd, error) {
		agentCmd = standInProcess(t)
		go func() {
			ws, err := dialAgent(port, token)
			if err == nil {
				agentConn <- ws
			}
		}()
		return agentCmd, nil
	})

	crashed := make(chan string, 1)
	lifecycle.On(lifecycle.EventAgentCrashed, func(_ lifecycle.Event, data any) {
		if id, ok := data.(string); ok {
			select {
			case crashed <- id:
			default:
			}
		}
	})

	if err := sup.Activate(context.Background()); err != nil {
		t.Fatalf("activate: %v", err)
	}
	session := sup.Status().SessionID

	var ws *websocket.Conn
	select {
	case ws = <-agentConn:
	case <-time.After(2 * time.Second):
		t.Fatal("agent connection never arrived")
	}
	defer ws.Close()
	readFrame(t, ws) // greeting

	// The process dies with no shutdown notice
	agentCmd.Process.Kill()

	select {
	case id := <-crashed:
		if id != session {
			t.Errorf("crash reported for session %s, want %s", id, session)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("crash never surfaced")
	}

	if !waitUntil(t, 2*time.Second, func() bool { return sup.Status().State == StateInactive }) {
		t.Error("supervisor never returned to inactive after crash")
	}
	if sup.Status().Connected {
		t.Error("status still reports a connected agent")
	}
}
