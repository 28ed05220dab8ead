// Package history keeps a SQLite ledger of sync runs and per-item outcomes.
// It is the record of items that failed acquisition after the watermark
// moved past them.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Outcome classifies what happened to one selected item.
type Outcome string

const (
	OutcomeAcquired Outcome = "acquired"
	OutcomeExisting Outcome = "existing"
	OutcomeFailed   Outcome = "failed"
	OutcomeSkipped  Outcome = "skipped"
)

// Run status values.
const (
	StatusRunning     = "running"
	StatusNoNewItems  = "no_new_items"
	StatusCompleted   = "completed"
	StatusFailed      = "failed"
	StatusPublishFail = "publish_failed"
)

// Run is one sync invocation.
type Run struct {
	ID              string
	StartedAt       time.Time
	FinishedAt      *time.Time
	Status          string
	WatermarkBefore int
	WatermarkAfter  int
	SnapshotSize    int
	Selected        int
	Acquired        int
	Existing        int
	Failed          int
	Skipped         int
	Published       bool
	Error           string
}

// Attempt is the outcome recorded for one item in one run.
type Attempt struct {
	RunID      string
	ItemID     string
	Position   int
	Title      string
	Artifact   string
	Outcome    Outcome
	Strategy   string
	Error      string
	RecordedAt time.Time
}

// Recorder is the subset of Store the sync engine writes to.
type Recorder interface {
	StartRun(ctx context.Context, run Run) error
	RecordAttempt(ctx context.Context, attempt Attempt) error
	FinishRun(ctx context.Context, run Run) error
	FailedItems(ctx context.Context) ([]Attempt, error)
}

// Store manages history persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

var _ Recorder = (*Store)(nil)

// Open initializes or connects to the history database and applies migrations.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One connection keeps PRAGMAs (foreign_keys) in effect for every query.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path}
	if err := store.applyMigrations(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database file.
func (s *Store) Path() string { return s.path }

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// StartRun inserts a run row in the running state.
func (s *Store) StartRun(ctx context.Context, run Run) error {
	if run.Status == "" {
		run.Status = StatusRunning
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, started_at, status, watermark_before, watermark_after)
         VALUES (?, ?, ?, ?, ?)`,
		run.ID,
		formatTime(run.StartedAt),
		run.Status,
		run.WatermarkBefore,
		run.WatermarkBefore,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// RecordAttempt appends an item outcome to a run.
func (s *Store) RecordAttempt(ctx context.Context, attempt Attempt) error {
	if attempt.RecordedAt.IsZero() {
		attempt.RecordedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO item_attempts (
            run_id, item_id, position, title, artifact, outcome, strategy, error, recorded_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		attempt.RunID,
		attempt.ItemID,
		attempt.Position,
		attempt.Title,
		attempt.Artifact,
		string(attempt.Outcome),
		attempt.Strategy,
		nullableString(attempt.Error),
		formatTime(attempt.RecordedAt),
	)
	if err != nil {
		return fmt.Errorf("insert item attempt: %w", err)
	}
	return nil
}

// FinishRun stores the final counters and status of a run.
func (s *Store) FinishRun(ctx context.Context, run Run) error {
	finished := time.Now()
	if run.FinishedAt != nil {
		finished = *run.FinishedAt
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET
            finished_at = ?, status = ?, watermark_after = ?, snapshot_size = ?,
            selected = ?, acquired = ?, existing = ?, failed = ?, skipped = ?,
            published = ?, error = ?
        WHERE id = ?`,
		formatTime(finished),
		run.Status,
		run.WatermarkAfter,
		run.SnapshotSize,
		run.Selected,
		run.Acquired,
		run.Existing,
		run.Failed,
		run.Skipped,
		boolToInt(run.Published),
		nullableString(run.Error),
		run.ID,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("finish run %s: %w", run.ID, sql.ErrNoRows)
	}
	return nil
}

// RecentRuns returns up to limit runs, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, started_at, finished_at, status, watermark_before, watermark_after,
                snapshot_size, selected, acquired, existing, failed, skipped, published, error
         FROM runs ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			run       Run
			started   string
			finished  sql.NullString
			published int
			errText   sql.NullString
		)
		if err := rows.Scan(&run.ID, &started, &finished, &run.Status, &run.WatermarkBefore, &run.WatermarkAfter,
			&run.SnapshotSize, &run.Selected, &run.Acquired, &run.Existing, &run.Failed, &run.Skipped,
			&published, &errText); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		run.StartedAt = parseTime(started)
		if finished.Valid {
			ts := parseTime(finished.String)
			run.FinishedAt = &ts
		}
		run.Published = published != 0
		run.Error = errText.String
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// LastRun returns the most recent run, or nil when none is recorded.
func (s *Store) LastRun(ctx context.Context) (*Run, error) {
	runs, err := s.RecentRuns(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, nil
	}
	return &runs[0], nil
}

// Attempts returns the item outcomes of one run in recording order.
func (s *Store) Attempts(ctx context.Context, runID string) ([]Attempt, error) {
	return s.queryAttempts(ctx,
		`SELECT run_id, item_id, position, title, artifact, outcome, strategy, error, recorded_at
         FROM item_attempts WHERE run_id = ? ORDER BY id`, runID)
}

// FailedItems returns, per item, the latest failed attempt for items that
// have never been acquired or found existing since. Newest failures first.
func (s *Store) FailedItems(ctx context.Context) ([]Attempt, error) {
	return s.queryAttempts(ctx,
		`SELECT a.run_id, a.item_id, a.position, a.title, a.artifact, a.outcome, a.strategy, a.error, a.recorded_at
         FROM item_attempts a
         WHERE a.outcome = ?
           AND a.id = (SELECT MAX(b.id) FROM item_attempts b WHERE b.item_id = a.item_id)
         ORDER BY a.id DESC`, string(OutcomeFailed))
}

func (s *Store) queryAttempts(ctx context.Context, query string, args ...any) ([]Attempt, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query item attempts: %w", err)
	}
	defer rows.Close()

	var attempts []Attempt
	for rows.Next() {
		var (
			attempt  Attempt
			outcome  string
			errText  sql.NullString
			recorded string
		)
		if err := rows.Scan(&attempt.RunID, &attempt.ItemID, &attempt.Position, &attempt.Title, &attempt.Artifact,
			&outcome, &attempt.Strategy, &errText, &recorded); err != nil {
			return nil, fmt.Errorf("scan item attempt: %w", err)
		}
		attempt.Outcome = Outcome(outcome)
		attempt.Error = errText.String
		attempt.RecordedAt = parseTime(recorded)
		attempts = append(attempts, attempt)
	}
	if err := rows.Err(); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	return attempts, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(value string) time.Time {
	ts, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return ts
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
