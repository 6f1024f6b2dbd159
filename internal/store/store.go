// Package store keeps the run audit table behind /ops/runs.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// Store wraps SQLite access for pipeline run records.
type Store struct {
	db *sql.DB
}

// Open creates the database file (and its directory) if needed and migrates it.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate store: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			query TEXT NOT NULL,
			intent TEXT,
			summary TEXT,
			steps_json TEXT,
			duration_ms INTEGER,
			created_at TIMESTAMP
		);`,
		`CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Run is one audited pipeline execution.
type Run struct {
	ID         string    `json:"id"`
	Query      string    `json:"query"`
	Intent     string    `json:"intent"`
	Summary    string    `json:"summary"`
	Steps      []string  `json:"steps"`
	DurationMS int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

// RecordRun inserts r. A blank ID gets a fresh UUID and a zero CreatedAt is
// set to now.
func (s *Store) RecordRun(ctx context.Context, r *Run) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	if r.Steps == nil {
		r.Steps = []string{}
	}
	steps, err := json.Marshal(r.Steps)
	if err != nil {
		return fmt.Errorf("encode steps: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO runs(id, query, intent, summary, steps_json, duration_ms, created_at)
		VALUES(?, ?, ?, ?, ?, ?, ?)`, r.ID, r.Query, r.Intent, r.Summary, string(steps), r.DurationMS, r.CreatedAt)
	if err != nil {
		return fmt.Errorf("record run %s: %w", r.ID, err)
	}
	return nil
}

// ListRuns returns the most recent runs first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	limit = min(limit, maxListLimit)
	rows, err := s.db.QueryContext(ctx, `SELECT id, query, intent, summary, steps_json, duration_ms, created_at
		FROM runs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	runs := []Run{}
	for rows.Next() {
		var r Run
		var intent, summary, steps sql.NullString
		if err := rows.Scan(&r.ID, &r.Query, &intent, &summary, &steps, &r.DurationMS, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.Intent = intent.String
		r.Summary = summary.String
		r.Steps = []string{}
		if steps.Valid && steps.String != "" {
			if err := json.Unmarshal([]byte(steps.String), &r.Steps); err != nil {
				return nil, fmt.Errorf("decode steps for run %s: %w", r.ID, err)
			}
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Health returns err if DB not reachable.
func (s *Store) Health(ctx context.Context) error {
	row := s.db.QueryRowContext(ctx, `SELECT 1`)
	var v int
	if err := row.Scan(&v); err != nil {
		return fmt.Errorf("db health: %w", err)
	}
	return nil
}
