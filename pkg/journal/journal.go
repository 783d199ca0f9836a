// Package journal records program runs in SQLite.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id       TEXT PRIMARY KEY,
	program      TEXT NOT NULL,
	endpoint     TEXT NOT NULL,
	segments     INTEGER NOT NULL,
	total_steps  INTEGER NOT NULL,
	started_at   TEXT NOT NULL,
	finished_at  TEXT,
	outcome      TEXT,
	frames       INTEGER NOT NULL DEFAULT 0,
	error        TEXT
);

CREATE INDEX IF NOT EXISTS runs_started_at ON runs(started_at);
`

// Outcomes recorded by FinishRun.
const (
	OutcomeCompleted   = "completed"
	OutcomeInterrupted = "interrupted"
	OutcomeSendFailed  = "send_failed"
	OutcomeFailed      = "failed"
)

// ErrNotFound is returned for an unknown run ID.
var ErrNotFound = errors.New("run not found")

// Run is one journal entry. FinishedAt is zero and Outcome empty while the
// run is in progress or if the process died during it.
type Run struct {
	ID         string
	Program    string
	Endpoint   string
	Segments   int
	TotalSteps int
	StartedAt  time.Time
	FinishedAt time.Time
	Outcome    string
	Frames     int
	Error      string
}

// Duration returns how long the run took, or zero if it never finished.
func (r Run) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Store is the run journal.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens the journal database at path, creating it if needed.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// BeginRun inserts a new run and returns it with its ID and start time set.
func (s *Store) BeginRun(ctx context.Context, program, endpoint string, segments, totalSteps int) (Run, error) {
	r := Run{
		ID:         uuid.New().String(),
		Program:    program,
		Endpoint:   endpoint,
		Segments:   segments,
		TotalSteps: totalSteps,
		StartedAt:  s.now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (run_id, program, endpoint, segments, total_steps, started_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, r.Program, r.Endpoint, r.Segments, r.TotalSteps, r.StartedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return Run{}, fmt.Errorf("insert run: %w", err)
	}
	return r, nil
}

// FinishRun records how a run ended. runErr may be nil.
func (s *Store) FinishRun(ctx context.Context, id, outcome string, frames int, runErr error) error {
	var msg sql.NullString
	if runErr != nil {
		msg = sql.NullString{String: runErr.Error(), Valid: true}
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, outcome = ?, frames = ?, error = ? WHERE run_id = ?`,
		s.now().UTC().Format(time.RFC3339Nano), outcome, frames, msg, id,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// Get returns one run.
func (s *Store) Get(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, selectRuns+` WHERE run_id = ?`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return r, err
}

// List returns the most recent runs, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, selectRuns+` ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

const selectRuns = `SELECT run_id, program, endpoint, segments, total_steps, started_at,
	finished_at, outcome, frames, error FROM runs`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (Run, error) {
	var (
		r                 Run
		started           string
		finished, outcome sql.NullString
		msg               sql.NullString
	)
	err := sc.Scan(&r.ID, &r.Program, &r.Endpoint, &r.Segments, &r.TotalSteps, &started,
		&finished, &outcome, &r.Frames, &msg)
	if err != nil {
		return Run{}, err
	}
	if r.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
		return Run{}, fmt.Errorf("parse started_at: %w", err)
	}
	if finished.Valid {
		if r.FinishedAt, err = time.Parse(time.RFC3339Nano, finished.String); err != nil {
			return Run{}, fmt.Errorf("parse finished_at: %w", err)
		}
	}
	r.Outcome = outcome.String
	r.Error = msg.String
	return r, nil
}
