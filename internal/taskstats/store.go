// Package taskstats persists finished task executions in SQLite so the CLI
// can report per-action history across daemon restarts.
package taskstats

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"foreman/internal/config"
	"foreman/internal/pool"
)

// Store records task executions backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

const schema = `
CREATE TABLE IF NOT EXISTS task_executions (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    submission_id TEXT NOT NULL,
    action        TEXT NOT NULL,
    category      TEXT NOT NULL,
    priority      TEXT NOT NULL,
    worker_id     TEXT NOT NULL,
    streaming     INTEGER NOT NULL DEFAULT 0,
    outcome       TEXT NOT NULL,
    duration_ms   INTEGER NOT NULL,
    started_at    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_task_executions_action ON task_executions(action);
CREATE INDEX IF NOT EXISTS idx_task_executions_started_at ON task_executions(started_at);
`

// Open initializes or connects to the stats database under the data
// directory.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := cfg.StatsDBPath()
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init stats schema: %w", err)
	}

	return &Store{db: db, path: dbPath}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string { return s.path }

// RecordExecution implements pool.ExecutionRecorder.
func (s *Store) RecordExecution(ctx context.Context, rec pool.ExecutionRecord) error {
	if ctx == nil {
		ctx = context.Background()
	}
	streaming := 0
	if rec.Streaming {
		streaming = 1
	}
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO task_executions
            (submission_id, action, category, priority, worker_id, streaming, outcome, duration_ms, started_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.SubmissionID, rec.Action, rec.Category, rec.Priority, rec.WorkerID,
		streaming, rec.Outcome, rec.Duration.Milliseconds(),
		rec.StartedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("record execution: %w", err)
	}
	return nil
}

// ActionSummary aggregates the recorded history of one action.
type ActionSummary struct {
	Action     string
	Category   string
	Executions int64
	Failures   int64
	Timeouts   int64
	TotalMS    int64
	LastRun    time.Time
}

// AverageDuration returns the mean execution duration.
func (a ActionSummary) AverageDuration() time.Duration {
	if a.Executions == 0 {
		return 0
	}
	return time.Duration(a.TotalMS/a.Executions) * time.Millisecond
}

// Summaries aggregates execution history per action, ordered by action name.
func (s *Store) Summaries(ctx context.Context) ([]ActionSummary, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT action,
               category,
               COUNT(1),
               SUM(CASE WHEN outcome = 'error' THEN 1 ELSE 0 END),
               SUM(CASE WHEN outcome = 'timeout' THEN 1 ELSE 0 END),
               SUM(duration_ms),
               MAX(started_at)
        FROM task_executions
        GROUP BY action, category
        ORDER BY action`)
	if err != nil {
		return nil, fmt.Errorf("query summaries: %w", err)
	}
	defer rows.Close()

	var out []ActionSummary
	for rows.Next() {
		var summary ActionSummary
		var lastRun string
		if err := rows.Scan(&summary.Action, &summary.Category, &summary.Executions,
			&summary.Failures, &summary.Timeouts, &summary.TotalMS, &lastRun); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		if parsed, perr := time.Parse(time.RFC3339Nano, lastRun); perr == nil {
			summary.LastRun = parsed
		}
		out = append(out, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate summaries: %w", err)
	}
	return out, nil
}

// Recent returns the most recent executions, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]pool.ExecutionRecord, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT submission_id, action, category, priority, worker_id, streaming, outcome, duration_ms, started_at
        FROM task_executions
        ORDER BY id DESC
        LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent executions: %w", err)
	}
	defer rows.Close()

	var out []pool.ExecutionRecord
	for rows.Next() {
		var rec pool.ExecutionRecord
		var streaming int
		var durationMS int64
		var startedAt string
		if err := rows.Scan(&rec.SubmissionID, &rec.Action, &rec.Category, &rec.Priority,
			&rec.WorkerID, &streaming, &rec.Outcome, &durationMS, &startedAt); err != nil {
			return nil, fmt.Errorf("scan execution: %w", err)
		}
		rec.Streaming = streaming != 0
		rec.Duration = time.Duration(durationMS) * time.Millisecond
		if parsed, perr := time.Parse(time.RFC3339Nano, startedAt); perr == nil {
			rec.StartedAt = parsed
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate executions: %w", err)
	}
	return out, nil
}
