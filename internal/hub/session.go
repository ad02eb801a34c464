package hub

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/quillhq/quill/internal/logging"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 32768 // 32KB
)

var (
	ErrSessionSendBufferFull = errors.New("session send buffer full")
	ErrSessionClosed         = errors.New("session closed")
)

// AgentSession is one live agent connection. The hub holds at most one;
// its ID is the identity that keys suggestion pushes and result discards.
type AgentSession struct {
	// ID is the session identity minted at launch time
	ID string

	// PID of the spawned agent process, 0 when externally launched
	PID int

	ConnectedAt time.Time

	conn *websocket.Conn
	send chan []byte
	hub  *Hub

	closed   bool
	closedMu sync.RWMutex
}

func newAgentSession(hub *Hub, conn *websocket.Conn, id string, pid int) *AgentSession {
	return &AgentSession{
		ID:          id,
		PID:         pid,
		ConnectedAt: time.Now(),
		conn:        conn,
		send:        make(chan []byte, 64),
		hub:         hub,
	}
}

// Send queues an encoded frame for delivery. Drops with an error when the
// buffer is full rather than blocking the caller.
func (s *AgentSession) Send(data []byte) (err error) {
	// Recover handles the race where the channel closes between the
	// closed check and the send.
	defer func() {
		if r := recover(); r != nil {
			err = ErrSessionClosed
		}
	}()

	s.closedMu.RLock()
	if s.closed {
		s.closedMu.RUnlock()
		return ErrSessionClosed
	}
	s.closedMu.RUnlock()

	select {
	case s.send <- data:
		return nil
	default:
		return ErrSessionSendBufferFull
	}
}

// IsClosed returns whether the session has been torn down
func (s *AgentSession) IsClosed() bool {
	s.closedMu.RLock()
	defer s.closedMu.RUnlock()
	return s.closed
}

// Close tears down the connection. Safe to call more than once.
func (s *AgentSession) Close() {
	s.closedMu.Lock()
	if s.closed {
		s.closedMu.Unlock()
		return
	}
	s.closed = true
	s.closedMu.Unlock()

	close(s.send)
	s.conn.Close()
}

// readPump pumps frames from the agent to the hub's handlers.
func (s *AgentSession) readPump() {
	defer func() {
		s.hub.unregister <- s
		s.conn.Close()
	}()

	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, msg, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logging.Errorf("[hub] session %s read error: %v", s.ID, err)
			}
			break
		}

		frame, err := DecodeFrame(msg)
		if err != nil {
			// Unknown types and malformed frames are dropped, not fatal
			logging.Infof("[hub] session %s: dropping frame: %v", s.ID, err)
			continue
		}

		s.hub.handleFrame(s, frame)
	}
}

// writePump pumps queued frames to the agent and keeps the connection alive.
func (s *AgentSession) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case message, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := s.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
