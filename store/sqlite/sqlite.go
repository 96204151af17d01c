// Package sqlite provides the durable PersistenceBackend backed by SQLite
// (pure-Go driver, no cgo). Appends are single INSERT statements, which
// gives the atomic append semantics the store's ordering guarantees rely on.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver

	"github.com/peakform/coachcore/core"
)

const schema = `
CREATE TABLE IF NOT EXISTS messages (
	session_id      TEXT    NOT NULL,
	seq             INTEGER NOT NULL,
	id              TEXT    NOT NULL,
	role            TEXT    NOT NULL,
	content         TEXT    NOT NULL,
	function_call   TEXT,
	function_result TEXT,
	created_at      TEXT    NOT NULL,
	PRIMARY KEY (session_id, seq)
);
CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id);
`

// Backend is a SQLite-backed PersistenceBackend.
type Backend struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies the schema. Use
// ":memory:" for an in-memory database in tests.
func Open(path string) (*Backend, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite: %w", err)
	}

	// WAL mode for better concurrent read performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	return &Backend{db: db}, nil
}

// Close closes the database connection.
func (b *Backend) Close() error { return b.db.Close() }

// Append implements store.PersistenceBackend.
func (b *Backend) Append(ctx context.Context, msg core.ConversationMessage) error {
	var fnCall, fnRes sql.NullString
	if msg.FunctionCall != nil {
		data, err := json.Marshal(msg.FunctionCall)
		if err != nil {
			return fmt.Errorf("encoding function call: %w", err)
		}
		fnCall = sql.NullString{String: string(data), Valid: true}
	}
	if msg.FunctionRes != nil {
		data, err := json.Marshal(msg.FunctionRes)
		if err != nil {
			return fmt.Errorf("encoding function result: %w", err)
		}
		fnRes = sql.NullString{String: string(data), Valid: true}
	}

	_, err := b.db.ExecContext(ctx,
		`INSERT INTO messages (session_id, seq, id, role, content, function_call, function_result, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.SessionID, msg.Seq, msg.ID, string(msg.Role), msg.Content, fnCall, fnRes,
		msg.Timestamp.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}
	return nil
}

// Read implements store.PersistenceBackend.
func (b *Backend) Read(ctx context.Context, sessionID string, limit int) ([]core.ConversationMessage, error) {
	query := `SELECT session_id, seq, id, role, content, function_call, function_result, created_at
	          FROM messages WHERE session_id = ? ORDER BY seq DESC`
	args := []any{sessionID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var msgs []core.ConversationMessage
	for rows.Next() {
		var (
			msg           core.ConversationMessage
			role, created string
			fnCall, fnRes sql.NullString
		)
		if err := rows.Scan(&msg.SessionID, &msg.Seq, &msg.ID, &role, &msg.Content, &fnCall, &fnRes, &created); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		msg.Role = core.Role(role)
		if ts, err := time.Parse(time.RFC3339Nano, created); err == nil {
			msg.Timestamp = ts
		}
		if fnCall.Valid {
			var fc core.FunctionCall
			if err := json.Unmarshal([]byte(fnCall.String), &fc); err == nil {
				msg.FunctionCall = &fc
			}
		}
		if fnRes.Valid {
			var fr core.FunctionResult
			if err := json.Unmarshal([]byte(fnRes.String), &fr); err == nil {
				msg.FunctionRes = &fr
			}
		}
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating messages: %w", err)
	}

	// Rows arrive newest-first; flip to chronological order.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// Prune implements store.PersistenceBackend.
func (b *Backend) Prune(ctx context.Context, sessionID string, keepLast int) error {
	if keepLast < 0 {
		keepLast = 0
	}
	_, err := b.db.ExecContext(ctx,
		`DELETE FROM messages WHERE session_id = ? AND seq NOT IN (
			SELECT seq FROM messages WHERE session_id = ? ORDER BY seq DESC LIMIT ?
		)`,
		sessionID, sessionID, keepLast,
	)
	if err != nil {
		return fmt.Errorf("pruning messages: %w", err)
	}
	return nil
}

// Delete implements store.PersistenceBackend.
func (b *Backend) Delete(ctx context.Context, sessionID string) error {
	if _, err := b.db.ExecContext(ctx, `DELETE FROM messages WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

// LastSeq implements store.PersistenceBackend.
func (b *Backend) LastSeq(ctx context.Context, sessionID string) (uint64, error) {
	var seq sql.NullInt64
	err := b.db.QueryRowContext(ctx,
		`SELECT MAX(seq) FROM messages WHERE session_id = ?`, sessionID,
	).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("reading last seq: %w", err)
	}
	if !seq.Valid {
		return 0, nil
	}
	return uint64(seq.Int64), nil
}
