// Package hub is the host side of the agent control channel.
//
// It accepts exactly one agent connection at a time over a localhost
// WebSocket, speaks the five-type frame protocol, and supervises the
// agent process lifecycle (launch, graceful shutdown, crash detection).
package hub

import (
	"context"
	"net/http"
	"strconv"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/quillhq/quill/internal/lifecycle"
	"github.com/quillhq/quill/internal/logging"
)

// ContextHandler receives conversation context reported by the agent.
type ContextHandler func(session *AgentSession, context, conversationRef string)

// SelectedHandler receives suggestion selections reported by the agent.
type SelectedHandler func(session *AgentSession, index int, text string, inserted bool)

// StatusHandler receives status frames from the agent.
type StatusHandler func(session *AgentSession, status string)

// Hub manages the single agent session and routes its frames.
type Hub struct {
	sessionMu sync.RWMutex
	session   *AgentSession

	register   chan *AgentSession
	unregister chan *AgentSession

	// secret signs session tokens; expectedID names the one session
	// allowed to connect. Both are set by the supervisor at launch.
	secret     string
	expectedMu sync.Mutex
	expectedID string

	handlersMu        sync.RWMutex
	contextHandler    ContextHandler
	selectedHandler   SelectedHandler
	statusHandler     StatusHandler
	connectHandler    func(sessionID string)
	disconnectHandler func(sessionID string)

	upgrader websocket.Upgrader
}

// NewHub creates a hub with a fresh token secret.
func NewHub() *Hub {
	return &Hub{
		register:   make(chan *AgentSession, 1),
		unregister: make(chan *AgentSession, 1),
		secret:     NewSecret(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// The channel is loopback-only; browsers never connect here
				return true
			},
		},
	}
}

// Run starts the hub's main loop
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case session := <-h.register:
			h.addSession(session)
		case session := <-h.unregister:
			h.removeSession(session)
		}
	}
}

// Secret returns the token signing secret.
func (h *Hub) Secret() string {
	return h.secret
}

// Expect names the session allowed to connect next. Clearing it (empty
// string) makes the hub refuse all new connections.
func (h *Hub) Expect(sessionID string) {
	h.expectedMu.Lock()
	defer h.expectedMu.Unlock()
	h.expectedID = sessionID
}

func (h *Hub) expected() string {
	h.expectedMu.Lock()
	defer h.expectedMu.Unlock()
	return h.expectedID
}

// SetContextHandler sets the conversation context handler
func (h *Hub) SetContextHandler(fn ContextHandler) {
	h.handlersMu.Lock()
	defer h.handlersMu.Unlock()
	h.contextHandler = fn
}

// SetSelectedHandler sets the suggestion selection handler
func (h *Hub) SetSelectedHandler(fn SelectedHandler) {
	h.handlersMu.Lock()
	defer h.handlersMu.Unlock()
	h.selectedHandler = fn
}

// SetStatusHandler sets the status frame handler
func (h *Hub) SetStatusHandler(fn StatusHandler) {
	h.handlersMu.Lock()
	defer h.handlersMu.Unlock()
	h.statusHandler = fn
}

// SetConnectHandler sets the handler called after a session is installed.
func (h *Hub) SetConnectHandler(fn func(sessionID string)) {
	h.handlersMu.Lock()
	defer h.handlersMu.Unlock()
	h.connectHandler = fn
}

// SetDisconnectHandler sets the handler called after a session is removed
func (h *Hub) SetDisconnectHandler(fn func(sessionID string)) {
	h.handlersMu.Lock()
	defer h.handlersMu.Unlock()
	h.disconnectHandler = fn
}

// Session returns the current session, or nil when no agent is connected.
func (h *Hub) Session() *AgentSession {
	h.sessionMu.RLock()
	defer h.sessionMu.RUnlock()
	return h.session
}

// IsConnected returns true if an agent session is live.
func (h *Hub) IsConnected() bool {
	return h.Session() != nil
}

// Push delivers an encoded frame to the named session. Pushes keyed to a
// session that is gone (or replaced) are discarded silently: results for
// dead sessions must never leak to a newer one.
func (h *Hub) Push(sessionID string, data []byte) error {
	h.sessionMu.RLock()
	session := h.session
	h.sessionMu.RUnlock()

	if session == nil || session.ID != sessionID {
		logging.Debugf("[hub] discarding push for session %s (not connected)", sessionID)
		return nil
	}
	return session.Send(data)
}

// HandleWebSocket authenticates and upgrades an agent connection.
// The agent presents its launch token as a query parameter.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID, err := VerifyToken(h.secret, r.URL.Query().Get("token"))
	if err != nil {
		logging.Infof("[hub] rejecting connection: bad token: %v", err)
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	if sessionID != h.expected() {
		logging.Infof("[hub] rejecting connection for stale session %s", sessionID)
		http.Error(w, "stale session", http.StatusConflict)
		return
	}

	// One session max. Re-checked in addSession; this rejects early
	// without burning the upgrade.
	if h.IsConnected() {
		logging.Infof("[hub] rejecting second connection for session %s", sessionID)
		http.Error(w, "agent already connected", http.StatusConflict)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Errorf("[hub] upgrade error: %v", err)
		return
	}

	session := newAgentSession(h, conn, sessionID, pidFromRequest(r))

	h.register <- session

	go session.readPump()
	go session.writePump()
}

// addSession installs a new session, or rejects it if one already exists.
func (h *Hub) addSession(newSession *AgentSession) {
	h.sessionMu.Lock()

	if h.session != nil {
		h.sessionMu.Unlock()
		logging.Infof("[hub] session %s already live, closing newcomer %s", h.session.ID, newSession.ID)
		newSession.Close()
		return
	}

	h.session = newSession
	h.sessionMu.Unlock()

	logging.Infof("[hub] agent connected: session %s", newSession.ID)
	lifecycle.Emit(lifecycle.EventAgentConnected, newSession.ID)

	// Greet the agent so it knows the channel is live
	if err := newSession.Send(EncodeConnected("quill host ready")); err != nil {
		logging.Errorf("[hub] failed to greet session %s: %v", newSession.ID, err)
	}

	h.handlersMu.RLock()
	fn := h.connectHandler
	h.handlersMu.RUnlock()
	if fn != nil {
		fn(newSession.ID)
	}
}

// removeSession tears down a session if it is still the registered one.
func (h *Hub) removeSession(session *AgentSession) {
	h.sessionMu.Lock()
	registered := h.session != nil && h.session.ID == session.ID
	if registered {
		h.session = nil
	}
	h.sessionMu.Unlock()

	if !registered {
		// Rejected newcomer: already closed by addSession
		return
	}

	session.Close()
	logging.Infof("[hub] agent disconnected: session %s", session.ID)
	lifecycle.Emit(lifecycle.EventAgentDisconnected, session.ID)

	h.handlersMu.RLock()
	fn := h.disconnectHandler
	h.handlersMu.RUnlock()
	if fn != nil {
		fn(session.ID)
	}
}

// handleFrame routes one decoded frame from the agent.
func (h *Hub) handleFrame(session *AgentSession, frame *Frame) {
	switch frame.Type {
	case TypeConversationContext:
		h.handlersMu.RLock()
		fn := h.contextHandler
		h.handlersMu.RUnlock()
		if fn != nil {
			fn(session, frame.Context, frame.ConversationRef)
		}

	case TypeSuggestionSelected:
		h.handlersMu.RLock()
		fn := h.selectedHandler
		h.handlersMu.RUnlock()
		if fn != nil {
			fn(session, frame.Index, frame.Text, frame.Inserted)
		}

	case TypeStatus:
		h.handlersMu.RLock()
		fn := h.statusHandler
		h.handlersMu.RUnlock()
		if fn != nil {
			fn(session, frame.Status)
		}

	default:
		// Host-direction types echoed back are dropped
		logging.Infof("[hub] session %s sent host-direction frame %s, ignoring", session.ID, frame.Type)
	}
}

// pidFromRequest reads the agent's self-reported PID, 0 if absent.
func pidFromRequest(r *http.Request) int {
	pid, _ := strconv.Atoi(r.URL.Query().Get("pid"))
	return pid
}
