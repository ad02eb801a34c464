// Package chatstore reads recent messages out of the desktop messenger's
// own database. Access is strictly read-only: the store belongs to the
// messenger app, which keeps writing while we read.
package chatstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// cocoaEpochOffset is the number of seconds between Unix epoch (1970-01-01)
// and Apple's Cocoa epoch (2001-01-01). Messages stores dates as
// nanoseconds since the latter.
const cocoaEpochOffset = 978307200

var (
	// ErrUnavailable means the store is locked by a writer. Retry on the
	// next cycle rather than in place.
	ErrUnavailable = errors.New("message store is busy")
	// ErrPermission means the OS denied access. On macOS this is the
	// Full Disk Access prompt the host UI needs to surface.
	ErrPermission = errors.New("message store access denied")
	// ErrNotFound covers both a missing store file and an unknown
	// conversation ref.
	ErrNotFound = errors.New("not found")
)

// Direction says who sent a message.
type Direction int

const (
	DirectionReceived Direction = iota
	DirectionSent
)

func (d Direction) String() string {
	if d == DirectionSent {
		return "sent"
	}
	return "received"
}

// Message is one row of conversation history.
type Message struct {
	Text      string
	Direction Direction
	Timestamp time.Time
}

// Context is the recent history of one conversation, oldest first.
// It is built fresh per request and never cached.
type Context struct {
	Ref      string
	Messages []Message
}

// Transcript renders the history as "Me:"/"Them:" lines for the
// suggestion prompt.
func (c *Context) Transcript() string {
	var sb strings.Builder
	for _, m := range c.Messages {
		who := "Them"
		if m.Direction == DirectionSent {
			who = "Me"
		}
		fmt.Fprintf(&sb, "%s: %s\n", who, m.Text)
	}
	return strings.TrimRight(sb.String(), "\n")
}

// NormalizeRef strips the service prefix some platforms put in front of
// conversation handles, e.g. "iMessage;-;+15551234567".
func NormalizeRef(ref string) string {
	ref = strings.TrimSpace(ref)
	if i := strings.LastIndex(ref, ";-;"); i >= 0 {
		ref = ref[i+len(";-;"):]
	}
	return ref
}

// Reader fetches bounded conversation history from the store. The zero
// path means the platform default location.
type Reader struct {
	path  string
	depth int
}

// NewReader builds a reader returning at most depth messages per
// conversation. depth <= 0 falls back to 10.
func NewReader(path string, depth int) *Reader {
	if depth <= 0 {
		depth = 10
	}
	return &Reader{path: path, depth: depth}
}

// Read returns the newest non-empty messages of one conversation in
// ascending timestamp order.
func (r *Reader) Read(ctx context.Context, ref string) (*Context, error) {
	ref = NormalizeRef(ref)
	if ref == "" {
		return nil, fmt.Errorf("%w: empty conversation ref", ErrNotFound)
	}

	db, err := r.open(ctx)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	// The ref usually comes from a window title, which may be either
	// the raw handle or the contact's display name. Resolve both and
	// report the stable identifier back.
	var chatID int64
	var identifier string
	err = db.QueryRowContext(ctx, `
		SELECT ROWID, chat_identifier FROM chat
		WHERE chat_identifier = ? OR display_name = ?
		ORDER BY ROWID LIMIT 1
	`, ref, ref).Scan(&chatID, &identifier)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: conversation %s", ErrNotFound, ref)
	}
	if err != nil {
		return nil, classify(err)
	}

	rows, err := db.QueryContext(ctx, `
		SELECT m.is_from_me, m.text, m.date
		FROM message m
		JOIN chat_message_join cmj ON cmj.message_id = m.ROWID
		WHERE cmj.chat_id = ?
		  AND m.text IS NOT NULL AND m.text != ''
		ORDER BY m.date DESC
		LIMIT ?
	`, chatID, r.depth)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var isFromMe int
		var text string
		var date int64
		if err := rows.Scan(&isFromMe, &text, &date); err != nil {
			continue
		}
		dir := DirectionReceived
		if isFromMe == 1 {
			dir = DirectionSent
		}
		msgs = append(msgs, Message{Text: text, Direction: dir, Timestamp: cocoaToTime(date)})
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}

	// Queried newest-first for the LIMIT, present oldest-first
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return &Context{Ref: identifier, Messages: msgs}, nil
}

// Ping verifies the store is present and readable. Error classes match
// Read so callers can surface permission problems specifically.
func (r *Reader) Ping(ctx context.Context) error {
	db, err := r.open(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chat`).Scan(&n); err != nil {
		return classify(err)
	}
	return nil
}

func (r *Reader) open(ctx context.Context) (*sql.DB, error) {
	path := r.path
	if path == "" {
		p, err := defaultStorePath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: message store at %s", ErrNotFound, path)
		}
		if os.IsPermission(err) {
			return nil, fmt.Errorf("%w: %v", ErrPermission, err)
		}
		return nil, classify(err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=query_only(1)")
	if err != nil {
		return nil, classify(err)
	}

	// sql.Open is lazy, ping to verify we can actually read the file
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, classify(err)
	}
	return db, nil
}

func defaultStorePath() (string, error) {
	if runtime.GOOS != "darwin" {
		return "", fmt.Errorf("no default message store on %s, set messenger.store_path", runtime.GOOS)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, "Library", "Messages", "chat.db"), nil
}

// classify maps driver errors onto the package error classes. The
// sqlite driver surfaces permission and lock problems in several shapes
// depending on OS version, so this matches on substrings.
func classify(err error) error {
	if err == nil {
		return nil
	}
	s := strings.ToLower(err.Error())
	switch {
	case strings.Contains(s, "database is locked"),
		strings.Contains(s, "database is busy"),
		strings.Contains(s, "sqlite_busy"):
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	case strings.Contains(s, "operation not permitted"),
		strings.Contains(s, "authorization denied"),
		strings.Contains(s, "unable to open database file"),
		strings.Contains(s, "cantopen"):
		return fmt.Errorf("%w: %v", ErrPermission, err)
	}
	return err
}

func cocoaToTime(cocoaNanos int64) time.Time {
	unixSeconds := cocoaNanos/1e9 + cocoaEpochOffset
	return time.Unix(unixSeconds, 0)
}
