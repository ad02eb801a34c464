package hub

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quillhq/quill/internal/config"
	"github.com/quillhq/quill/internal/crashlog"
	"github.com/quillhq/quill/internal/db"
	"github.com/quillhq/quill/internal/defaults"
	"github.com/quillhq/quill/internal/lifecycle"
	"github.com/quillhq/quill/internal/logging"
	"github.com/quillhq/quill/internal/schedule"
	"github.com/quillhq/quill/internal/suggest"
)

// State describes the supervisor's view of the agent process.
type State string

const (
	StateInactive  State = "inactive"
	StateLaunching State = "launching"
	StateActive    State = "active"
)

// ErrAgentFailedToStart is returned when a launched agent process never
// connects back within the startup window.
var ErrAgentFailedToStart = errors.New("agent failed to start")

// tokenTTL bounds how long a minted session token stays valid. It only
// needs to cover the startup window.
const tokenTTL = time.Minute

// Launcher spawns the agent process that will dial back into the hub.
// The returned command must already be started.
type Launcher func(port int, sessionID, token string) (*exec.Cmd, error)

// defaultLauncher re-executes the current binary in agent mode.
func defaultLauncher(port int, sessionID, token string) (*exec.Cmd, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("resolve executable: %w", err)
	}

	cmd := exec.Command(exe, "agent",
		"--hub-port", strconv.Itoa(port),
		"--hub-token", token,
	)
	cmd.Env = os.Environ()

	var logFile *os.File
	if logsDir, err := defaults.LogsDir(); err == nil {
		path := filepath.Join(logsDir, "agent.log")
		if f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644); err == nil {
			logFile = f
			cmd.Stdout = f
			cmd.Stderr = f
		}
	}

	err = cmd.Start()
	if logFile != nil {
		// The child holds its own descriptor after Start
		logFile.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("start agent process: %w", err)
	}
	return cmd, nil
}

// Supervisor owns the agent process lifecycle: it opens an ephemeral
// loopback listener for the control channel, launches the agent with the
// port and a session token, waits for it to connect, and tears everything
// down on deactivation or unexpected exit. At most one agent runs at a
// time and a dead agent is never restarted automatically.
type Supervisor struct {
	hub   *Hub
	store *db.Store

	mu           sync.Mutex
	cfg          *config.Config
	engine       *suggest.Engine
	gate         *schedule.Gate
	launcher     Launcher
	state        State
	sessionID    string
	port         int
	cmd          *exec.Cmd
	waitDone     chan struct{}
	connected    chan struct{}
	httpServer   *http.Server
	deactivating bool
	lastRef      string
}

// NewSupervisor wires a supervisor into the hub's frame handlers. The
// store may be nil, in which case selections are not persisted.
func NewSupervisor(cfg *config.Config, h *Hub, engine *suggest.Engine, store *db.Store) (*Supervisor, error) {
	gate, err := schedule.NewGate(cfg.ActiveHours)
	if err != nil {
		return nil, fmt.Errorf("active_hours: %w", err)
	}

	s := &Supervisor{
		hub:      h,
		store:    store,
		cfg:      cfg,
		engine:   engine,
		gate:     gate,
		launcher: defaultLauncher,
		state:    StateInactive,
	}

	h.SetConnectHandler(s.onConnect)
	h.SetContextHandler(s.handleContext)
	h.SetSelectedHandler(s.handleSelected)
	h.SetStatusHandler(s.handleStatus)
	return s, nil
}

// SetLauncher replaces how the agent process is spawned. Tests use this
// to connect an in-process agent instead of forking the real binary.
func (s *Supervisor) SetLauncher(l Launcher) {
	s.mu.Lock()
	s.launcher = l
	s.mu.Unlock()
}

// Activate launches the agent and blocks until it connects, the startup
// window elapses, or ctx is cancelled. Calling it while an agent is
// already launching or active is a no-op.
func (s *Supervisor) Activate(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateInactive {
		s.mu.Unlock()
		logging.Debugf("[supervisor] activate ignored, already %s", s.state)
		return nil
	}
	s.state = StateLaunching
	s.deactivating = false
	launcher := s.launcher
	startupTimeout := time.Duration(s.cfg.Hub.StartupTimeoutMS) * time.Millisecond
	s.mu.Unlock()

	// Activating always clears a "closed by user" marker
	if err := defaults.SetOverlayDisabled(false); err != nil {
		logging.Debugf("[supervisor] could not clear disabled marker: %v", err)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		s.reset()
		return fmt.Errorf("listen for agent: %w", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.hub.HandleWebSocket)
	srv := &http.Server{Handler: mux}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Debugf("[supervisor] hub listener closed: %v", err)
		}
	}()

	sessionID := uuid.New().String()
	connected := make(chan struct{}, 1)

	// Session identity goes in before the launch: the agent may dial
	// back before the launcher even returns.
	s.mu.Lock()
	s.sessionID = sessionID
	s.port = port
	s.connected = connected
	s.httpServer = srv
	s.mu.Unlock()

	token, err := MintToken(s.hub.Secret(), sessionID, tokenTTL)
	if err != nil {
		s.reset()
		return fmt.Errorf("mint session token: %w", err)
	}
	s.hub.Expect(sessionID)

	cmd, err := launcher(port, sessionID, token)
	if err != nil {
		s.reset()
		return fmt.Errorf("launch agent: %w", err)
	}

	// Reaper: the only goroutine allowed to call cmd.Wait
	waitDone := make(chan struct{})
	go func() {
		defer close(waitDone)
		if err := cmd.Wait(); err != nil {
			logging.Debugf("[supervisor] agent process exited: %v", err)
		}
	}()

	s.mu.Lock()
	s.cmd = cmd
	s.waitDone = waitDone
	s.mu.Unlock()

	pid := 0
	if cmd.Process != nil {
		pid = cmd.Process.Pid
	}
	logging.Infof("[supervisor] launched agent pid=%d session=%s port=%d", pid, sessionID, port)

	select {
	case <-connected:
		// onConnect flipped the state when the session registered

	case <-waitDone:
		s.mu.Lock()
		s.teardownLocked()
		s.mu.Unlock()
		return fmt.Errorf("agent exited before connecting: %w", ErrAgentFailedToStart)

	case <-time.After(startupTimeout):
		s.mu.Lock()
		if s.state != StateActive {
			s.killLocked()
			s.teardownLocked()
			s.mu.Unlock()
			return fmt.Errorf("no connection within %v: %w", startupTimeout, ErrAgentFailedToStart)
		}
		// Connected in the same instant the timer fired
		s.mu.Unlock()

	case <-ctx.Done():
		s.mu.Lock()
		s.killLocked()
		s.teardownLocked()
		s.mu.Unlock()
		return ctx.Err()
	}

	go s.watchExit(sessionID, waitDone)

	lifecycle.Emit(lifecycle.EventOverlayActivated, sessionID)
	logging.Infof("[supervisor] overlay active, session %s", sessionID)
	return nil
}

// Deactivate asks the agent to shut down, waits out the grace window and
// kills it if it is still alive. Deactivating an inactive supervisor is
// a no-op.
func (s *Supervisor) Deactivate(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateInactive {
		s.mu.Unlock()
		return nil
	}
	s.deactivating = true
	waitDone := s.waitDone
	cmd := s.cmd
	grace := time.Duration(s.cfg.Hub.ShutdownGraceMS) * time.Millisecond
	s.mu.Unlock()

	if session := s.hub.Session(); session != nil {
		if err := session.Send(EncodeStatus("shutting_down")); err != nil {
			logging.Debugf("[supervisor] shutdown notice not delivered: %v", err)
		}
	}

	if waitDone != nil {
		select {
		case <-waitDone:
			// Agent exited on its own within the grace window
		case <-time.After(grace):
			if cmd != nil && cmd.Process != nil {
				logging.Infof("[supervisor] agent still alive after %v, killing pid %d", grace, cmd.Process.Pid)
				cmd.Process.Kill()
			}
			<-waitDone
		case <-ctx.Done():
			if cmd != nil && cmd.Process != nil {
				cmd.Process.Kill()
			}
		}
	}

	s.mu.Lock()
	s.teardownLocked()
	s.mu.Unlock()

	lifecycle.Emit(lifecycle.EventOverlayDeactivated, nil)
	logging.Infof("[supervisor] overlay deactivated")
	return nil
}

// PushSuggestions delivers replies to the connected agent out of band,
// bypassing the context-driven flow.
func (s *Supervisor) PushSuggestions(replies []string) error {
	s.mu.Lock()
	sessionID := s.sessionID
	s.mu.Unlock()
	if sessionID == "" {
		return errors.New("no active agent session")
	}
	if err := s.hub.Push(sessionID, EncodeSuggestions(replies, false)); err != nil {
		return err
	}
	lifecycle.Emit(lifecycle.EventSuggestionsPushed, len(replies))
	return nil
}

// ApplyConfig swaps in a reloaded configuration. A provider or schedule
// that fails to build keeps its previous value.
func (s *Supervisor) ApplyConfig(cfg *config.Config) {
	gate, err := schedule.NewGate(cfg.ActiveHours)
	if err != nil {
		logging.Errorf("[supervisor] invalid active_hours %q: %v", cfg.ActiveHours, err)
		gate = nil
	}

	engine, err := suggest.NewEngine(cfg)
	if err != nil {
		logging.Errorf("[supervisor] config reload: %v (keeping previous provider)", err)
		engine = nil
	}

	s.mu.Lock()
	s.cfg = cfg
	if gate != nil {
		s.gate = gate
	}
	if engine != nil {
		s.engine = engine
	}
	s.mu.Unlock()

	logging.Infof("[supervisor] configuration reloaded")
}

// Status is a point-in-time snapshot of the supervisor.
type Status struct {
	State       State  `json:"state"`
	SessionID   string `json:"session_id,omitempty"`
	Port        int    `json:"port,omitempty"`
	PID         int    `json:"pid,omitempty"`
	Connected   bool   `json:"connected"`
	Disabled    bool   `json:"disabled"`
	ActiveHours string `json:"active_hours"`
}

func (s *Supervisor) Status() Status {
	s.mu.Lock()
	st := Status{
		State:     s.state,
		SessionID: s.sessionID,
		Port:      s.port,
	}
	if s.cmd != nil && s.cmd.Process != nil {
		st.PID = s.cmd.Process.Pid
	}
	gate := s.gate
	s.mu.Unlock()

	st.Connected = s.hub.IsConnected()
	if gate != nil {
		st.ActiveHours = gate.String()
	}
	if disabled, err := defaults.IsOverlayDisabled(); err == nil {
		st.Disabled = disabled
	}
	return st
}

// onConnect runs when the hub installs a session. It completes a pending
// Activate if the session is the one this activation launched.
func (s *Supervisor) onConnect(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sessionID != s.sessionID {
		return
	}
	if s.state == StateLaunching {
		s.state = StateActive
	}
	if s.connected != nil {
		select {
		case s.connected <- struct{}{}:
		default:
		}
	}
}

// watchExit tears down supervisor state when the agent process dies
// after a successful start. There is no automatic restart.
func (s *Supervisor) watchExit(sessionID string, waitDone <-chan struct{}) {
	<-waitDone

	s.mu.Lock()
	if s.sessionID != sessionID {
		// A newer activation owns the supervisor now
		s.mu.Unlock()
		return
	}
	clean := s.deactivating
	s.teardownLocked()
	s.mu.Unlock()

	if clean {
		return
	}
	logging.Errorf("[supervisor] agent exited unexpectedly, session %s", sessionID)
	crashlog.LogError("supervisor", errors.New("agent process exited unexpectedly"),
		map[string]string{"session_id": sessionID})
	lifecycle.Emit(lifecycle.EventAgentCrashed, sessionID)
}

// handleContext reacts to fresh conversation context from the agent: it
// pushes a loading frame, generates replies and pushes the result. The
// push is keyed by session ID, so results for a dead session are
// silently discarded.
func (s *Supervisor) handleContext(session *AgentSession, convoCtx, ref string) {
	s.mu.Lock()
	s.lastRef = ref
	engine := s.engine
	gate := s.gate
	s.mu.Unlock()

	lifecycle.Emit(lifecycle.EventSuggestionsRequested, ref)

	if gate != nil && !gate.Active(time.Now()) {
		logging.Debugf("[supervisor] outside active hours (%s), pausing", gate)
		s.hub.Push(session.ID, EncodeStatus("paused"))
		return
	}

	if err := s.hub.Push(session.ID, EncodeSuggestions(nil, true)); err != nil {
		logging.Debugf("[supervisor] loading push failed: %v", err)
		return
	}

	go func() {
		var replies []string
		if engine != nil {
			replies = engine.Generate(context.Background(), convoCtx)
		} else {
			replies = suggest.Fallback()
		}
		if err := s.hub.Push(session.ID, EncodeSuggestions(replies, false)); err != nil {
			logging.Debugf("[supervisor] suggestions push failed: %v", err)
			return
		}
		lifecycle.Emit(lifecycle.EventSuggestionsPushed, len(replies))
	}()
}

// handleSelected records a selection the user made in the overlay.
func (s *Supervisor) handleSelected(session *AgentSession, index int, text string, inserted bool) {
	s.mu.Lock()
	ref := s.lastRef
	s.mu.Unlock()

	logging.Infof("[supervisor] suggestion selected: index=%d inserted=%v", index, inserted)
	lifecycle.Emit(lifecycle.EventSuggestionSelected, lifecycle.SelectionEventData{
		SessionID: session.ID,
		Index:     index,
		Text:      text,
		Inserted:  inserted,
	})

	if s.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := s.store.RecordSelection(ctx, db.Selection{
		SessionID:       session.ID,
		ConversationRef: ref,
		SuggestionIndex: index,
		Text:            text,
		Inserted:        inserted,
	}); err != nil {
		crashlog.LogError("supervisor", fmt.Errorf("record selection: %w", err),
			map[string]string{"session_id": session.ID})
	}
}

// handleStatus reacts to agent status frames.
func (s *Supervisor) handleStatus(session *AgentSession, status string) {
	switch status {
	case "overlay_disabled":
		// The user closed the overlay. The agent exits on its own after
		// sending this, so the exit is not treated as a crash.
		logging.Infof("[supervisor] overlay closed by user, writing disabled marker")
		s.mu.Lock()
		s.deactivating = true
		s.mu.Unlock()
		if err := defaults.SetOverlayDisabled(true); err != nil {
			logging.Errorf("[supervisor] failed to write disabled marker: %v", err)
		}
		lifecycle.Emit(lifecycle.EventOverlayDisabled, session.ID)
	case "store_permission_denied":
		// Surfaced once per agent process. On macOS this means the host
		// app has no Full Disk Access grant for ~/Library/Messages.
		logging.Warnf("[supervisor] agent cannot read the message store (permission denied)")
		lifecycle.Emit(lifecycle.EventStorePermissionDenied, session.ID)
	default:
		logging.Debugf("[supervisor] agent status: %s", status)
	}
}

// reset rolls back a failed activation that never attached process state.
func (s *Supervisor) reset() {
	s.mu.Lock()
	s.teardownLocked()
	s.mu.Unlock()
}

// killLocked force-kills the agent process if one is attached.
func (s *Supervisor) killLocked() {
	if s.cmd != nil && s.cmd.Process != nil {
		s.cmd.Process.Kill()
	}
}

// teardownLocked releases everything an activation set up. It is safe to
// call repeatedly; callers hold s.mu.
func (s *Supervisor) teardownLocked() {
	if s.httpServer != nil {
		s.httpServer.Close()
		s.httpServer = nil
	}
	if sess := s.hub.Session(); sess != nil {
		sess.Close()
	}
	s.hub.Expect("")
	s.cmd = nil
	s.waitDone = nil
	s.connected = nil
	s.port = 0
	s.sessionID = ""
	s.deactivating = false
	s.state = StateInactive
}
