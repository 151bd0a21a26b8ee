/*
Package sqlite persists refresh history and table snapshots in SQLite.

PURPOSE:
  Every load of the goal spreadsheet is recorded as a refresh run. The last
  good table for each source is kept as a snapshot so the dashboard can keep
  serving numbers while the spreadsheet is unreachable.

KEY TABLES:
  refresh_runs:    One row per load attempt (append-only)
  table_snapshots: Latest successfully loaded table per source, as JSON

INDEXES:
  - idx_refresh_runs_started: Newest-first listing

CONCURRENCY:
  Uses sync.RWMutex for thread-safety on top of database/sql.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging):
  - Readers don't block the refresh writer
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/dashboard.db")
  if err != nil {
      return err
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New().

SEE ALSO:
  - ingest/fetcher.go: Writes runs and snapshots
  - api/handlers.go: GET /api/refreshes
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/warp/attainment-dashboard/sheet"
)

// timeLayout is fixed width so started_at sorts chronologically as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store persists refresh runs and snapshots.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A second connection to ":memory:" would see an empty database.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Refresh runs (append-only)
	CREATE TABLE IF NOT EXISTS refresh_runs (
		id TEXT PRIMARY KEY,
		source TEXT NOT NULL,
		status TEXT NOT NULL,
		rows INTEGER NOT NULL DEFAULT 0,
		columns INTEGER NOT NULL DEFAULT 0,
		error TEXT,
		started_at TEXT NOT NULL,
		finished_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_refresh_runs_started
		ON refresh_runs(started_at DESC);

	-- Latest good table per source
	CREATE TABLE IF NOT EXISTS table_snapshots (
		source TEXT PRIMARY KEY,
		table_json TEXT NOT NULL,
		rows INTEGER NOT NULL,
		captured_at TEXT NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// REFRESH RUNS
// =============================================================================

// RunStatus is the outcome of a refresh attempt.
type RunStatus string

const (
	RunSucceeded RunStatus = "succeeded"
	RunFallback  RunStatus = "fallback"
	RunFailed    RunStatus = "failed"
)

// RefreshRun is one recorded load attempt.
type RefreshRun struct {
	ID         string    `json:"id"`
	Source     string    `json:"source"`
	Status     RunStatus `json:"status"`
	Rows       int       `json:"rows"`
	Columns    int       `json:"columns"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Duration returns how long the attempt took.
func (r RefreshRun) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// RecordRefreshRun appends a run. An empty ID is generated.
func (s *Store) RecordRefreshRun(ctx context.Context, run RefreshRun) (RefreshRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if run.ID == "" {
		run.ID = uuid.NewString()
	}

	query := `
		INSERT INTO refresh_runs (id, source, status, rows, columns, error, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	var errText sql.NullString
	if run.Error != "" {
		errText = sql.NullString{String: run.Error, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, query,
		run.ID, run.Source, string(run.Status), run.Rows, run.Columns, errText,
		run.StartedAt.UTC().Format(timeLayout),
		run.FinishedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return RefreshRun{}, fmt.Errorf("failed to record refresh run: %w", err)
	}
	return run, nil
}

// ListRefreshRuns returns the most recent runs, newest first.
// A limit <= 0 returns every run.
func (s *Store) ListRefreshRuns(ctx context.Context, limit int) ([]RefreshRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT id, source, status, rows, columns, error, started_at, finished_at
		 FROM refresh_runs ORDER BY started_at DESC, rowid DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []RefreshRun
	for rows.Next() {
		var (
			r                   RefreshRun
			status              string
			errText             sql.NullString
			startedAt, finished string
		)
		if err := rows.Scan(&r.ID, &r.Source, &status, &r.Rows, &r.Columns, &errText, &startedAt, &finished); err != nil {
			return nil, err
		}
		r.Status = RunStatus(status)
		r.Error = errText.String
		r.StartedAt, _ = time.Parse(timeLayout, startedAt)
		r.FinishedAt, _ = time.Parse(timeLayout, finished)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// =============================================================================
// SNAPSHOTS
// =============================================================================

// Snapshot is the last good table loaded from a source.
type Snapshot struct {
	Source     string
	Table      *sheet.Table
	CapturedAt time.Time
}

// SaveSnapshot replaces the snapshot for the table's source.
func (s *Store) SaveSnapshot(ctx context.Context, source string, table *sheet.Table, capturedAt time.Time) error {
	data, err := json.Marshal(table)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO table_snapshots (source, table_json, rows, captured_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(source) DO UPDATE SET
			table_json = excluded.table_json,
			rows = excluded.rows,
			captured_at = excluded.captured_at
	`

	_, err = s.db.ExecContext(ctx, query,
		source, string(data), table.Len(), capturedAt.UTC().Format(timeLayout),
	)
	return err
}

// LatestSnapshot returns the snapshot for source, or nil if there is none.
func (s *Store) LatestSnapshot(ctx context.Context, source string) (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var data, capturedAt string
	err := s.db.QueryRowContext(ctx,
		"SELECT table_json, captured_at FROM table_snapshots WHERE source = ?",
		source,
	).Scan(&data, &capturedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var table sheet.Table
	if err := json.Unmarshal([]byte(data), &table); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot for %s: %w", source, err)
	}

	snap := &Snapshot{Source: source, Table: &table}
	snap.CapturedAt, _ = time.Parse(timeLayout, capturedAt)
	return snap, nil
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, table := range []string{"refresh_runs", "table_snapshots"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}
