// Package db persists run history in a project-local SQLite database
// (.andon/andon.db). History is advisory: a broken database degrades a
// run to warnings, it never fails one.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/chrisallenlane/andon/internal/unit"
)

// FileName is the database file name under the .andon directory.
const FileName = "andon.db"

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	workflow    TEXT NOT NULL,
	started_at  TIMESTAMP NOT NULL,
	finished_at TIMESTAMP,
	outcome     TEXT NOT NULL DEFAULT 'running'
);

CREATE TABLE IF NOT EXISTS unit_outcomes (
	run_id      TEXT NOT NULL REFERENCES runs(id),
	unit_id     TEXT NOT NULL,
	outcome     TEXT NOT NULL,
	attempts    INTEGER NOT NULL DEFAULT 0,
	reason      TEXT,
	recorded_at TIMESTAMP NOT NULL,
	PRIMARY KEY (run_id, unit_id)
);

CREATE INDEX IF NOT EXISTS idx_unit_outcomes_unit ON unit_outcomes(unit_id);
`

// DB wraps the run history database.
type DB struct {
	conn *sql.DB
	path string
}

// Open opens (and migrates) the database at path, creating the parent
// directory if needed.
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	return open(path)
}

// OpenInMemory opens an isolated in-memory database, mainly for tests.
func OpenInMemory() (*DB, error) {
	return open(":memory:")
}

func open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate db: %w", err)
	}
	return &DB{conn: conn, path: dsn}, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.conn.Close()
}

// Path returns the database path.
func (d *DB) Path() string { return d.path }

// StartRun records a new run in the running state.
func (d *DB) StartRun(runID, workflowKind string, startedAt time.Time) error {
	_, err := d.conn.Exec(
		`INSERT INTO runs (id, workflow, started_at) VALUES (?, ?, ?)`,
		runID, workflowKind, startedAt.UTC())
	if err != nil {
		return fmt.Errorf("record run start: %w", err)
	}
	return nil
}

// RecordUnit records one unit's terminal outcome within a run.
func (d *DB) RecordUnit(runID string, u *unit.WorkUnit, outcome unit.TerminalOutcome, reason string) error {
	_, err := d.conn.Exec(
		`INSERT OR REPLACE INTO unit_outcomes (run_id, unit_id, outcome, attempts, reason, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		runID, u.ID, string(outcome), u.AttemptCount(), reason, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("record unit %s: %w", u.ID, err)
	}
	return nil
}

// FinishRun marks a run terminal with its overall outcome.
func (d *DB) FinishRun(runID string, finishedAt time.Time, outcome string) error {
	_, err := d.conn.Exec(
		`UPDATE runs SET finished_at = ?, outcome = ? WHERE id = ?`,
		finishedAt.UTC(), outcome, runID)
	if err != nil {
		return fmt.Errorf("record run finish: %w", err)
	}
	return nil
}

// RunSummary is one row of run history.
type RunSummary struct {
	ID         string
	Workflow   string
	StartedAt  time.Time
	FinishedAt *time.Time
	Outcome    string
	Units      int
}

// RecentRuns returns the latest runs, newest first.
func (d *DB) RecentRuns(limit int) ([]RunSummary, error) {
	rows, err := d.conn.Query(`
		SELECT r.id, r.workflow, r.started_at, r.finished_at, r.outcome,
		       (SELECT COUNT(*) FROM unit_outcomes uo WHERE uo.run_id = r.id)
		FROM runs r
		ORDER BY r.started_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var rs RunSummary
		var finished sql.NullTime
		if err := rows.Scan(&rs.ID, &rs.Workflow, &rs.StartedAt, &finished, &rs.Outcome, &rs.Units); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if finished.Valid {
			t := finished.Time
			rs.FinishedAt = &t
		}
		out = append(out, rs)
	}
	return out, rows.Err()
}

// UnitRow is one unit outcome within a run.
type UnitRow struct {
	UnitID   string
	Outcome  string
	Attempts int
	Reason   string
}

// RunUnits returns the unit outcomes of one run in recorded order.
func (d *DB) RunUnits(runID string) ([]UnitRow, error) {
	rows, err := d.conn.Query(`
		SELECT unit_id, outcome, attempts, COALESCE(reason, '')
		FROM unit_outcomes
		WHERE run_id = ?
		ORDER BY recorded_at, unit_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("query unit outcomes: %w", err)
	}
	defer rows.Close()

	var out []UnitRow
	for rows.Next() {
		var ur UnitRow
		if err := rows.Scan(&ur.UnitID, &ur.Outcome, &ur.Attempts, &ur.Reason); err != nil {
			return nil, fmt.Errorf("scan unit outcome: %w", err)
		}
		out = append(out, ur)
	}
	return out, rows.Err()
}

// UnitHistory returns every recorded outcome for one unit across runs,
// newest first. Useful when a unit keeps getting skipped.
func (d *DB) UnitHistory(unitID string) ([]UnitRow, error) {
	rows, err := d.conn.Query(`
		SELECT unit_id, outcome, attempts, COALESCE(reason, '')
		FROM unit_outcomes
		WHERE unit_id = ?
		ORDER BY recorded_at DESC`, unitID)
	if err != nil {
		return nil, fmt.Errorf("query unit history: %w", err)
	}
	defer rows.Close()

	var out []UnitRow
	for rows.Next() {
		var ur UnitRow
		if err := rows.Scan(&ur.UnitID, &ur.Outcome, &ur.Attempts, &ur.Reason); err != nil {
			return nil, fmt.Errorf("scan unit history: %w", err)
		}
		out = append(out, ur)
	}
	return out, rows.Err()
}
