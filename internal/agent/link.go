package agent

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/quillhq/quill/internal/hub"
	"github.com/quillhq/quill/internal/logging"
)

const (
	dialRetryWindow = 3 * time.Second
	dialRetryDelay  = 100 * time.Millisecond
)

// Link is the agent's WebSocket connection back to the host hub.
// Writes are serialized; the hub allows one concurrent writer per
// connection.
type Link struct {
	conn   *websocket.Conn
	sendMu sync.Mutex
}

// Dial connects to the hub on loopback, presenting the launch token.
// The host's listener is up before the agent spawns, but a loaded
// machine can still race, so transient failures retry briefly. Auth
// rejections are final and fail immediately.
func Dial(ctx context.Context, port int, token string) (*Link, error) {
	wsURL := fmt.Sprintf("ws://127.0.0.1:%d/ws?token=%s&pid=%d",
		port, url.QueryEscape(token), os.Getpid())

	deadline := time.Now().Add(dialRetryWindow)
	for {
		conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
		if err == nil {
			if resp != nil && resp.Body != nil {
				resp.Body.Close()
			}
			logging.Infof("[link] connected to hub on port %d", port)
			return &Link{conn: conn}, nil
		}
		if resp != nil {
			code := resp.StatusCode
			resp.Body.Close()
			if code == http.StatusUnauthorized || code == http.StatusConflict {
				return nil, fmt.Errorf("hub refused connection: %s", resp.Status)
			}
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("dial hub on port %d: %w", port, err)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(dialRetryDelay):
		}
	}
}

// Close tears down the connection.
func (l *Link) Close() error {
	return l.conn.Close()
}

// SendContext reports the active conversation's recent transcript.
func (l *Link) SendContext(transcript, conversationRef string) error {
	return l.send(hub.EncodeContext(transcript, conversationRef))
}

// SendSelected reports a suggestion click.
func (l *Link) SendSelected(index int, text string, inserted bool) error {
	return l.send(hub.EncodeSelected(index, text, inserted))
}

// SendStatus reports an agent-side status change.
func (l *Link) SendStatus(status string) error {
	return l.send(hub.EncodeStatus(status))
}

func (l *Link) send(data []byte) error {
	l.sendMu.Lock()
	defer l.sendMu.Unlock()
	return l.conn.WriteMessage(websocket.TextMessage, data)
}

// ReadLoop delivers host frames to fn until the connection drops or ctx
// is canceled. Returns nil on cancellation, the read error otherwise.
// Malformed or out-of-protocol frames are dropped, never fatal.
func (l *Link) ReadLoop(ctx context.Context, fn func(*hub.Frame)) error {
	// ReadMessage has no context form; closing the conn unblocks it
	go func() {
		<-ctx.Done()
		l.conn.Close()
	}()

	for {
		_, data, err := l.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("hub connection lost: %w", err)
		}

		frame, err := hub.DecodeFrame(data)
		if err != nil {
			logging.Warnf("[link] dropping frame: %v", err)
			continue
		}
		fn(frame)
	}
}
