// Package runstore persists terminal runs in SQLite.
package runstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ormasoftchile/uirun/pkg/schema"
)

var (
	// ErrStoreUnavailable indicates the run store is not configured.
	ErrStoreUnavailable = errors.New("run store unavailable")
	// ErrNotFound is returned by Get for an unknown run id.
	ErrNotFound = errors.New("run not found")
)

const createRuns = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	prompt     TEXT NOT NULL,
	url        TEXT NOT NULL,
	status     TEXT NOT NULL,
	error      TEXT NOT NULL DEFAULT '',
	step_count INTEGER NOT NULL DEFAULT 0,
	started_at TEXT NOT NULL DEFAULT '',
	ended_at   TEXT NOT NULL DEFAULT '',
	document   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_ended_at ON runs(ended_at);
`

// Summary is one row of List.
type Summary struct {
	ID        string           `json:"id"`
	Prompt    string           `json:"prompt"`
	URL       string           `json:"url"`
	Status    schema.RunStatus `json:"status"`
	Error     string           `json:"error,omitempty"`
	StepCount int              `json:"stepCount"`
	EndedAt   time.Time        `json:"endedAt"`
}

// Store manages run persistence.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database at path and migrates it.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	if _, err := db.Exec(createRuns); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return NewStore(db), nil
}

// NewStore wraps an already migrated database handle.
func NewStore(db *sql.DB) *Store {
	if db == nil {
		return nil
	}
	return &Store{db: db}
}

// Close closes the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Save upserts a run. Only terminal runs are accepted.
func (s *Store) Save(ctx context.Context, run schema.RunSnapshot) error {
	if s == nil || s.db == nil {
		return ErrStoreUnavailable
	}
	if !run.Status.Terminal() {
		return fmt.Errorf("run %s: refusing to store non-terminal status %s", run.ID, run.Status)
	}
	doc, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("marshal run: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO runs (id, prompt, url, status, error, step_count, started_at, ended_at, document)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	status = excluded.status,
	error = excluded.error,
	step_count = excluded.step_count,
	started_at = excluded.started_at,
	ended_at = excluded.ended_at,
	document = excluded.document`,
		run.ID, run.Prompt, run.URL, string(run.Status), run.Error, len(run.Steps),
		formatTime(run.StartedAt), formatTime(run.EndedAt), string(doc))
	if err != nil {
		return fmt.Errorf("save run %s: %w", run.ID, err)
	}
	return nil
}

// Get loads a run by id.
func (s *Store) Get(ctx context.Context, id string) (*schema.RunSnapshot, error) {
	if s == nil || s.db == nil {
		return nil, ErrStoreUnavailable
	}
	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT document FROM runs WHERE id = ?`, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", id, err)
	}
	var run schema.RunSnapshot
	if err := json.Unmarshal([]byte(doc), &run); err != nil {
		return nil, fmt.Errorf("decode run %s: %w", id, err)
	}
	return &run, nil
}

// List returns the most recently ended runs first. limit <= 0 means 50.
func (s *Store) List(ctx context.Context, limit int) ([]Summary, error) {
	if s == nil || s.db == nil {
		return nil, ErrStoreUnavailable
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, prompt, url, status, error, step_count, ended_at
FROM runs ORDER BY ended_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var (
			sum     Summary
			status  string
			endedAt string
		)
		if err := rows.Scan(&sum.ID, &sum.Prompt, &sum.URL, &status, &sum.Error, &sum.StepCount, &endedAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		sum.Status = schema.RunStatus(status)
		sum.EndedAt = parseTime(endedAt)
		out = append(out, sum)
	}
	return out, rows.Err()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
