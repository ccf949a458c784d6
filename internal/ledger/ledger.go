// Package ledger keeps a local sqlite record of completion outcomes. It stores
// metadata only: no message text, instructions or provider output.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Entry is one completion attempt.
type Entry struct {
	RequestID    string
	Model        string
	Outcome      string // "ok" or "error"
	ErrorKind    string
	Duration     time.Duration
	PromptDigest string
	CreatedAt    time.Time
}

const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Ledger is safe for concurrent use; database/sql pools the connection.
type Ledger struct {
	db *sql.DB
}

// Open opens (or creates) the ledger at path and ensures its schema.
func Open(path string) (*Ledger, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create ledger directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// sqlite serializes writers anyway
	db.SetMaxOpenConns(1)

	createCompletionsTable := `
	CREATE TABLE IF NOT EXISTS completions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		request_id TEXT,
		model TEXT NOT NULL,
		outcome TEXT NOT NULL,
		error_kind TEXT,
		duration_ms INTEGER,
		prompt_digest TEXT,
		created_at INTEGER NOT NULL
	);`

	if _, err := db.Exec(createCompletionsTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create completions table: %w", err)
	}
	return &Ledger{db: db}, nil
}

// Record appends e. A zero CreatedAt is stamped with the current time.
func (l *Ledger) Record(ctx context.Context, e Entry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	_, err := l.db.ExecContext(ctx,
		"INSERT INTO completions (request_id, model, outcome, error_kind, duration_ms, prompt_digest, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		e.RequestID, e.Model, e.Outcome, e.ErrorKind, e.Duration.Milliseconds(), e.PromptDigest, e.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to record completion: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (l *Ledger) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := l.db.QueryContext(ctx,
		"SELECT request_id, model, outcome, error_kind, duration_ms, prompt_digest, created_at FROM completions ORDER BY id DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query completions: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var (
			e          Entry
			kind       sql.NullString
			durationMS int64
			createdAt  int64
		)
		if err := rows.Scan(&e.RequestID, &e.Model, &e.Outcome, &kind, &durationMS, &e.PromptDigest, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan completion: %w", err)
		}
		e.ErrorKind = kind.String
		e.Duration = time.Duration(durationMS) * time.Millisecond
		e.CreatedAt = time.UnixMilli(createdAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (l *Ledger) Close() error {
	return l.db.Close()
}
