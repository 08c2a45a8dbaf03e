package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

var (
	// ErrRunNotFound is returned when no run matches an ID prefix.
	ErrRunNotFound = errors.New("run not found")
	// ErrAmbiguousRun is returned when an ID prefix matches more than one run.
	ErrAmbiguousRun = errors.New("run id prefix matches more than one run")
)

const runColumns = `id, started_at, finished_at, root, command, dry_run, images, created, merged,
	overwritten, skipped, renamed, orphans_removed, errors`

// Counts are the per-action totals of a run.
type Counts struct {
	Images         int
	Created        int
	Merged         int
	Overwritten    int
	Skipped        int
	Renamed        int
	OrphansRemoved int
	Errors         int
}

// Run is one row of the runs table.
type Run struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	Root       string
	Command    string
	DryRun     bool
	Counts     Counts
}

// Finished reports whether the run recorded its completion.
func (r Run) Finished() bool {
	return !r.FinishedAt.IsZero()
}

// Event is one decision made during a run.
type Event struct {
	RunID     string
	Path      string
	Target    string
	Action    string
	Reason    string
	Error     string
	CreatedAt time.Time
}

// BeginRun inserts the runs row for a new run.
func (s *Store) BeginRun(ctx context.Context, run Run) error {
	if strings.TrimSpace(run.ID) == "" {
		return errors.New("run id is required")
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	err := s.execWithRetry(ctx,
		`INSERT INTO runs (id, started_at, root, command, dry_run) VALUES (?, ?, ?, ?, ?)`,
		run.ID, formatTime(run.StartedAt), run.Root, run.Command, boolToInt(run.DryRun),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// RecordEvent appends a decision to the run's event log.
func (s *Store) RecordEvent(ctx context.Context, event Event) error {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	err := s.execWithRetry(ctx,
		`INSERT INTO events (run_id, path, target, action, reason, error, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		event.RunID, event.Path, event.Target, event.Action, event.Reason, event.Error, formatTime(event.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// FinishRun stamps the finish time and totals on a run.
func (s *Store) FinishRun(ctx context.Context, id string, finishedAt time.Time, counts Counts) error {
	if finishedAt.IsZero() {
		finishedAt = time.Now()
	}
	err := s.execWithRetry(ctx,
		`UPDATE runs SET finished_at = ?, images = ?, created = ?, merged = ?, overwritten = ?,
			skipped = ?, renamed = ?, orphans_removed = ?, errors = ? WHERE id = ?`,
		formatTime(finishedAt), counts.Images, counts.Created, counts.Merged, counts.Overwritten,
		counts.Skipped, counts.Renamed, counts.OrphansRemoved, counts.Errors, id,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

// Runs returns the most recent runs, newest first. A limit <= 0 returns all runs.
func (s *Store) Runs(ctx context.Context, limit int) ([]Run, error) {
	ctx = ensureContext(ctx)
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC, id DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// FindRun returns the run whose ID starts with prefix.
func (s *Store) FindRun(ctx context.Context, prefix string) (Run, error) {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return Run{}, ErrRunNotFound
	}
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs WHERE substr(id, 1, ?) = ? ORDER BY id LIMIT 2`,
		utf8.RuneCountInString(prefix), prefix,
	)
	if err != nil {
		return Run{}, fmt.Errorf("query run: %w", err)
	}
	defer rows.Close()

	var matches []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return Run{}, err
		}
		matches = append(matches, run)
	}
	if err := rows.Err(); err != nil {
		return Run{}, err
	}
	switch len(matches) {
	case 0:
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, prefix)
	case 1:
		return matches[0], nil
	default:
		return Run{}, fmt.Errorf("%w: %s", ErrAmbiguousRun, prefix)
	}
}

func scanRun(rows *sql.Rows) (Run, error) {
	var (
		run      Run
		started  sql.NullString
		finished sql.NullString
		dryRun   int
	)
	if err := rows.Scan(&run.ID, &started, &finished, &run.Root, &run.Command, &dryRun,
		&run.Counts.Images, &run.Counts.Created, &run.Counts.Merged, &run.Counts.Overwritten,
		&run.Counts.Skipped, &run.Counts.Renamed, &run.Counts.OrphansRemoved, &run.Counts.Errors,
	); err != nil {
		return Run{}, fmt.Errorf("scan run: %w", err)
	}
	run.StartedAt = parseTime(started)
	run.FinishedAt = parseTime(finished)
	run.DryRun = dryRun != 0
	return run, nil
}

// Events returns the decisions recorded for runID in insertion order.
func (s *Store) Events(ctx context.Context, runID string) ([]Event, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, path, target, action, reason, error, created_at FROM events WHERE run_id = ? ORDER BY id`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			event   Event
			created sql.NullString
		)
		if err := rows.Scan(&event.RunID, &event.Path, &event.Target, &event.Action, &event.Reason, &event.Error, &created); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		event.CreatedAt = parseTime(created)
		events = append(events, event)
	}
	return events, rows.Err()
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
