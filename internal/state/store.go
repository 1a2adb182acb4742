// Package state maintains the queryable index over run records and
// audit lines. The JSONL audit file and the run artifacts stay
// authoritative; this store only serves list and query surfaces.
package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/opsgate/opsgate/internal/audit"
	"github.com/opsgate/opsgate/internal/tool"

	_ "modernc.org/sqlite" // SQLite driver registration
)

const defaultBusyTimeout = 5000

// Store wraps the sqlite database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the state database at path.
// WAL mode, 5 s busy timeout, single connection.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("state: create directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("state: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	ctx := context.Background()
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("state: enable WAL: %w", err)
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout=%d", defaultBusyTimeout)); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("state: set busy_timeout: %w", err)
	}
	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func migrate(db *sql.DB) error {
	const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id      TEXT PRIMARY KEY,
	runbook     TEXT NOT NULL,
	outcome     TEXT NOT NULL,
	started_at  TEXT NOT NULL,
	finished_at TEXT,
	record      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_runbook ON runs(runbook);

CREATE TABLE IF NOT EXISTS audit_index (
	id       INTEGER PRIMARY KEY AUTOINCREMENT,
	ts       TEXT NOT NULL,
	tool     TEXT NOT NULL,
	action   TEXT,
	status   TEXT NOT NULL,
	trace_id TEXT NOT NULL,
	span_id  TEXT NOT NULL,
	file     TEXT NOT NULL,
	record   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_trace ON audit_index(trace_id);
CREATE INDEX IF NOT EXISTS idx_audit_tool ON audit_index(tool);
`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("state: migrate: %w", err)
	}
	return nil
}

// PutRun stores or replaces a run record snapshot.
func (s *Store) PutRun(ctx context.Context, runID, runbook, outcome string, startedAt, finishedAt time.Time, record any) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("state: marshal run record: %w", err)
	}
	var finished any
	if !finishedAt.IsZero() {
		finished = finishedAt.UTC().Format(time.RFC3339Nano)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO runs (run_id, runbook, outcome, started_at, finished_at, record)
		VALUES (?, ?, ?, ?, ?, ?)`,
		runID, runbook, outcome,
		startedAt.UTC().Format(time.RFC3339Nano), finished, string(data),
	)
	if err != nil {
		return fmt.Errorf("state: put run: %w", err)
	}
	return nil
}

// RunRow is one indexed run.
type RunRow struct {
	RunID      string          `json:"run_id"`
	Runbook    string          `json:"runbook"`
	Outcome    string          `json:"outcome"`
	StartedAt  string          `json:"started_at"`
	FinishedAt string          `json:"finished_at,omitempty"`
	Record     json.RawMessage `json:"record,omitempty"`
}

// GetRun returns one run by id.
func (s *Store) GetRun(ctx context.Context, runID string) (*RunRow, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT run_id, runbook, outcome, started_at, COALESCE(finished_at, ''), record
		FROM runs WHERE run_id = ?`, runID)
	var r RunRow
	var record string
	if err := row.Scan(&r.RunID, &r.Runbook, &r.Outcome, &r.StartedAt, &r.FinishedAt, &record); err != nil {
		if err == sql.ErrNoRows {
			return nil, tool.NotFound("run_unknown", "no run with id %s", runID)
		}
		return nil, fmt.Errorf("state: get run: %w", err)
	}
	r.Record = json.RawMessage(record)
	return &r, nil
}

// ListRuns returns runs newest first, optionally filtered by runbook
// name, with total count for pagination.
func (s *Store) ListRuns(ctx context.Context, runbook string, limit, offset int) ([]RunRow, int, error) {
	var total int
	countQ := `SELECT COUNT(*) FROM runs`
	listQ := `SELECT run_id, runbook, outcome, started_at, COALESCE(finished_at, '')
		FROM runs`
	var args []any
	if runbook != "" {
		countQ += ` WHERE runbook = ?`
		listQ += ` WHERE runbook = ?`
		args = append(args, runbook)
	}
	if err := s.db.QueryRowContext(ctx, countQ, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("state: count runs: %w", err)
	}

	listQ += ` ORDER BY started_at DESC LIMIT ? OFFSET ?`
	rows, err := s.db.QueryContext(ctx, listQ, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("state: list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []RunRow
	for rows.Next() {
		var r RunRow
		if err := rows.Scan(&r.RunID, &r.Runbook, &r.Outcome, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, 0, fmt.Errorf("state: scan run: %w", err)
		}
		out = append(out, r)
	}
	return out, total, rows.Err()
}

// IndexAudit implements audit.Indexer.
func (s *Store) IndexAudit(rec audit.Record, file string) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("state: marshal audit record: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO audit_index (ts, tool, action, status, trace_id, span_id, file, record)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Timestamp.Format(time.RFC3339Nano), rec.Tool, rec.Action,
		rec.Status, rec.TraceID, rec.SpanID, file, string(data),
	)
	if err != nil {
		return fmt.Errorf("state: index audit: %w", err)
	}
	return nil
}

// AuditFilter narrows an audit query. Zero values match everything.
type AuditFilter struct {
	TraceID string
	Tool    string
	Status  string
	Since   time.Time
	Until   time.Time
}

// QueryAudit returns indexed audit records newest first with the total
// matching count.
func (s *Store) QueryAudit(ctx context.Context, f AuditFilter, limit, offset int) ([]json.RawMessage, int, error) {
	where := ` WHERE 1=1`
	var args []any
	if f.TraceID != "" {
		where += ` AND trace_id = ?`
		args = append(args, f.TraceID)
	}
	if f.Tool != "" {
		where += ` AND tool = ?`
		args = append(args, f.Tool)
	}
	if f.Status != "" {
		where += ` AND status = ?`
		args = append(args, f.Status)
	}
	if !f.Since.IsZero() {
		where += ` AND ts >= ?`
		args = append(args, f.Since.UTC().Format(time.RFC3339Nano))
	}
	if !f.Until.IsZero() {
		where += ` AND ts <= ?`
		args = append(args, f.Until.UTC().Format(time.RFC3339Nano))
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_index`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("state: count audit: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT record FROM audit_index`+where+` ORDER BY id DESC LIMIT ? OFFSET ?`,
		append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("state: query audit: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []json.RawMessage
	for rows.Next() {
		var record string
		if err := rows.Scan(&record); err != nil {
			return nil, 0, fmt.Errorf("state: scan audit: %w", err)
		}
		out = append(out, json.RawMessage(record))
	}
	return out, total, rows.Err()
}
