package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"stockcast/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// RunLedger records every batch run and its per-instrument outcomes in a
// SQLite database.
type RunLedger struct {
	db *sql.DB
}

// RunRecord is one row of the runs table.
type RunRecord struct {
	ID         string
	Stage      string
	StartedAt  time.Time
	FinishedAt time.Time
	Total      int
	Succeeded  int
	NewRows    int
}

// OutcomeRecord is one row of the outcomes table.
type OutcomeRecord struct {
	RunID      string
	Instrument string
	Success    bool
	Cause      string
	Message    string
	NewRows    int
}

// NewRunLedger opens (or creates) a SQLite database at dbPath and returns
// a ready-to-use RunLedger.
func NewRunLedger(dbPath string) (*RunLedger, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	l := &RunLedger{db: db}
	if err := l.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return l, nil
}

func (l *RunLedger) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id          TEXT PRIMARY KEY,
			stage       TEXT NOT NULL,
			started_at  INTEGER NOT NULL,
			finished_at INTEGER,
			total       INTEGER DEFAULT 0,
			succeeded   INTEGER DEFAULT 0,
			new_rows    INTEGER DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at)`,

		`CREATE TABLE IF NOT EXISTS outcomes (
			run_id     TEXT NOT NULL,
			instrument TEXT NOT NULL,
			success    INTEGER NOT NULL,
			cause      TEXT,
			message    TEXT,
			new_rows   INTEGER,
			PRIMARY KEY (run_id, instrument)
		)`,
	}
	for _, s := range stmts {
		if _, err := l.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

// Close closes the underlying database connection.
func (l *RunLedger) Close() error {
	return l.db.Close()
}

// BeginRun inserts a new run for stage and returns its ID.
func (l *RunLedger) BeginRun(ctx context.Context, stage domain.Stage) (string, error) {
	id := uuid.NewString()
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO runs (id, stage, started_at) VALUES (?, ?, ?)`,
		id, string(stage), time.Now().UnixMilli(),
	)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}
	return id, nil
}

// RecordOutcomes stores per-instrument outcomes for a run in one transaction.
func (l *RunLedger) RecordOutcomes(ctx context.Context, runID string, outcomes []domain.Outcome) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO outcomes
		(run_id, instrument, success, cause, message, new_rows)
		VALUES (?,?,?,?,?,?)`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, o := range outcomes {
		if _, err := stmt.ExecContext(ctx, runID, o.Instrument, o.Success,
			string(o.Cause()), o.Message, o.NewRows); err != nil {
			return fmt.Errorf("insert outcome %s: %w", o.Instrument, err)
		}
	}
	return tx.Commit()
}

// FinishRun stamps the run's completion time and totals.
func (l *RunLedger) FinishRun(ctx context.Context, runID string, total, succeeded, newRows int) error {
	_, err := l.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, total = ?, succeeded = ?, new_rows = ? WHERE id = ?`,
		time.Now().UnixMilli(), total, succeeded, newRows, runID,
	)
	return err
}

// RecentRuns returns up to limit runs, newest first.
func (l *RunLedger) RecentRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	rows, err := l.db.QueryContext(ctx, `SELECT id, stage, started_at, COALESCE(finished_at, 0),
		total, succeeded, new_rows FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var r RunRecord
		var started, finished int64
		if err := rows.Scan(&r.ID, &r.Stage, &started, &finished, &r.Total, &r.Succeeded, &r.NewRows); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.StartedAt = time.UnixMilli(started)
		if finished > 0 {
			r.FinishedAt = time.UnixMilli(finished)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// FailuresForRun returns the failed outcomes of a run ordered by instrument.
func (l *RunLedger) FailuresForRun(ctx context.Context, runID string) ([]OutcomeRecord, error) {
	rows, err := l.db.QueryContext(ctx, `SELECT run_id, instrument, success, cause, message, new_rows
		FROM outcomes WHERE run_id = ? AND success = 0 ORDER BY instrument`, runID)
	if err != nil {
		return nil, fmt.Errorf("query outcomes: %w", err)
	}
	defer rows.Close()

	var out []OutcomeRecord
	for rows.Next() {
		var r OutcomeRecord
		if err := rows.Scan(&r.RunID, &r.Instrument, &r.Success, &r.Cause, &r.Message, &r.NewRows); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
