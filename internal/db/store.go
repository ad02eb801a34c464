package db

import (
	"context"
	"database/sql"
	"time"
)

// Selection records one accepted suggestion: which session offered it,
// which conversation it was drafted for, and whether insertion succeeded.
type Selection struct {
	ID              int64     `json:"id"`
	SessionID       string    `json:"session_id"`
	ConversationRef string    `json:"conversation_ref,omitempty"`
	SuggestionIndex int       `json:"suggestion_index"`
	Text            string    `json:"text"`
	Inserted        bool      `json:"inserted"`
	CreatedAt       time.Time `json:"created_at"`
}

// ErrorLog is one persisted error or panic record.
type ErrorLog struct {
	ID         int64     `json:"id"`
	Level      string    `json:"level"`
	Module     string    `json:"module"`
	Message    string    `json:"message"`
	Stacktrace string    `json:"stacktrace,omitempty"`
	Context    string    `json:"context,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Store wraps the SQLite connection with typed queries.
type Store struct {
	db *sql.DB
}

// NewStore creates a Store from an open database connection
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// DB returns the underlying connection for sharing with other components
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordSelection persists an accepted suggestion.
func (s *Store) RecordSelection(ctx context.Context, sel Selection) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO selections (session_id, conversation_ref, suggestion_index, text, inserted)
		 VALUES (?, ?, ?, ?, ?)`,
		sel.SessionID, sel.ConversationRef, sel.SuggestionIndex, sel.Text, boolToInt(sel.Inserted))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ListSelections returns the most recent selections, newest first.
func (s *Store) ListSelections(ctx context.Context, limit int) ([]Selection, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, conversation_ref, suggestion_index, text, inserted, created_at
		 FROM selections ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Selection
	for rows.Next() {
		var sel Selection
		var inserted int
		if err := rows.Scan(&sel.ID, &sel.SessionID, &sel.ConversationRef,
			&sel.SuggestionIndex, &sel.Text, &inserted, &sel.CreatedAt); err != nil {
			return nil, err
		}
		sel.Inserted = inserted != 0
		out = append(out, sel)
	}
	return out, rows.Err()
}

// InsertErrorLog persists one error record. Used by crashlog.
func (s *Store) InsertErrorLog(ctx context.Context, level, module, message, stacktrace, contextJSON string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO error_logs (level, module, message, stacktrace, context)
		 VALUES (?, ?, ?, NULLIF(?, ''), NULLIF(?, ''))`,
		level, module, message, stacktrace, contextJSON)
	return err
}

// ListErrorLogs returns the most recent error records, newest first.
func (s *Store) ListErrorLogs(ctx context.Context, limit int) ([]ErrorLog, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, level, module, message, COALESCE(stacktrace, ''), COALESCE(context, ''), created_at
		 FROM error_logs ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ErrorLog
	for rows.Next() {
		var e ErrorLog
		if err := rows.Scan(&e.ID, &e.Level, &e.Module, &e.Message, &e.Stacktrace, &e.Context, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
