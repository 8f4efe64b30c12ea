// Package intercept captures raw tool calls ahead of the pipeline and
// keeps a per-session audit trail in sqlite. The audit store is best
// effort: when the database cannot be opened the interceptor still
// stamps calls, it just stops persisting them.
package intercept

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"meshrouter/internal/logging"
	"meshrouter/internal/toolcall"
)

const schema = `
CREATE TABLE IF NOT EXISTS intercepted_calls (
	id         TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	tool       TEXT NOT NULL,
	params     TEXT NOT NULL DEFAULT '{}',
	prompt     TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_intercepted_session ON intercepted_calls(session_id, created_at);
`

// Interceptor stamps incoming calls and records them for later review.
type Interceptor struct {
	db *sql.DB
}

// New opens (or creates) the audit database at dbPath. An empty path or
// an open failure yields a working interceptor without persistence.
func New(dbPath string) *Interceptor {
	if dbPath == "" {
		return &Interceptor{}
	}
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			logging.Intercept("audit dir unavailable, persistence off: %v", err)
			return &Interceptor{}
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		logging.Intercept("audit db unavailable, persistence off: %v", err)
		return &Interceptor{}
	}
	// The pipeline is single-in-flight; one connection avoids sqlite
	// write contention.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		logging.Intercept("audit schema failed, persistence off: %v", err)
		db.Close()
		return &Interceptor{}
	}
	return &Interceptor{db: db}
}

// Persistent reports whether calls are being written to the audit store.
func (i *Interceptor) Persistent() bool {
	return i.db != nil
}

// Intercept stamps a raw call and records it.
func (i *Interceptor) Intercept(sessionID, tool string, params map[string]any, prompt string) toolcall.InterceptedToolCall {
	call := toolcall.NewIntercepted(sessionID, tool, params, prompt)
	logging.InterceptDebug("session=%s tool=%s id=%s", sessionID, tool, call.ID)
	if i.db == nil {
		return call
	}

	paramsJSON, err := json.Marshal(call.Params)
	if err != nil {
		paramsJSON = []byte("{}")
	}
	_, err = i.db.Exec(
		`INSERT INTO intercepted_calls (id, session_id, tool, params, prompt, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		call.ID, call.SessionID, call.Tool, string(paramsJSON), call.Prompt, call.Timestamp,
	)
	if err != nil {
		logging.Intercept("audit insert failed: %v", err)
	}
	return call
}

// Recent returns the latest recorded calls for a session, newest first.
// An empty sessionID spans all sessions.
func (i *Interceptor) Recent(sessionID string, limit int) ([]toolcall.InterceptedToolCall, error) {
	if i.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}

	var rows *sql.Rows
	var err error
	if sessionID == "" {
		rows, err = i.db.Query(
			`SELECT id, session_id, tool, params, prompt, created_at FROM intercepted_calls ORDER BY created_at DESC LIMIT ?`, limit)
	} else {
		rows, err = i.db.Query(
			`SELECT id, session_id, tool, params, prompt, created_at FROM intercepted_calls WHERE session_id = ? ORDER BY created_at DESC LIMIT ?`,
			sessionID, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("querying audit store: %w", err)
	}
	defer rows.Close()

	var calls []toolcall.InterceptedToolCall
	for rows.Next() {
		var call toolcall.InterceptedToolCall
		var paramsJSON string
		var createdAt time.Time
		if err := rows.Scan(&call.ID, &call.SessionID, &call.Tool, &paramsJSON, &call.Prompt, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning audit row: %w", err)
		}
		call.Timestamp = createdAt
		if err := json.Unmarshal([]byte(paramsJSON), &call.Params); err != nil {
			call.Params = map[string]any{}
		}
		calls = append(calls, call)
	}
	return calls, rows.Err()
}

// CountBySession aggregates recorded call counts per session.
func (i *Interceptor) CountBySession() (map[string]int, error) {
	if i.db == nil {
		return nil, nil
	}
	rows, err := i.db.Query(`SELECT session_id, COUNT(*) FROM intercepted_calls GROUP BY session_id`)
	if err != nil {
		return nil, fmt.Errorf("counting audit rows: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var session string
		var n int
		if err := rows.Scan(&session, &n); err != nil {
			return nil, err
		}
		out[session] = n
	}
	return out, rows.Err()
}

// Close releases the audit database.
func (i *Interceptor) Close() error {
	if i.db == nil {
		return nil
	}
	return i.db.Close()
}
