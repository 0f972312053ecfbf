// Package profile keeps a history of scenario runs in a local SQLite
// database so cache behaviour can be compared across engine changes.
package profile

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite" // Pure-Go SQLite driver.

	"structura/pkg/runner"
	"structura/pkg/vm"
)

var log = commonlog.GetLogger("structura.profile")

// ErrNotFound is returned by Get for an unknown run id.
var ErrNotFound = errors.New("run not found")

const schema = `
CREATE TABLE IF NOT EXISTS runs (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    started_at  INTEGER NOT NULL,
    duration_ns INTEGER NOT NULL,
    passed      INTEGER NOT NULL,
    failed      INTEGER NOT NULL,
    skipped     INTEGER NOT NULL,
    workers     INTEGER NOT NULL,
    stats       TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS scenario_results (
    run_id      INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    path        TEXT NOT NULL,
    name        TEXT NOT NULL,
    mode        TEXT NOT NULL,
    passed      INTEGER NOT NULL,
    steps       INTEGER NOT NULL,
    error       TEXT NOT NULL DEFAULT '',
    duration_ns INTEGER NOT NULL,
    hit_rate    REAL NOT NULL,
    PRIMARY KEY (run_id, path, mode)
);

CREATE INDEX IF NOT EXISTS scenario_results_path ON scenario_results(path, run_id);
`

// Run is one recorded batch.
type Run struct {
	ID        int64
	StartedAt time.Time
	Duration  time.Duration
	Passed    int
	Failed    int
	Skipped   int
	Workers   int
	Stats     vm.Stats
}

// ScenarioResult is one scenario in one mode within a run.
type ScenarioResult struct {
	RunID    int64
	Path     string
	Name     string
	Mode     string
	Passed   bool
	Steps    int
	Error    string
	Duration time.Duration
	HitRate  float64
}

// Store is a run history database.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("profile: open database: %w", err)
	}
	// One writer; see the busy timeout below for concurrent CLI invocations.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("profile: %s: %w", pragma, err)
		}
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("profile: create schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Record stores a report and returns the new run id.
func (s *Store) Record(ctx context.Context, report *runner.Report, started time.Time) (int64, error) {
	stats, err := json.Marshal(report.Totals)
	if err != nil {
		return 0, fmt.Errorf("profile: encode stats: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("profile: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	res, err := tx.ExecContext(ctx,
		`INSERT INTO runs (started_at, duration_ns, passed, failed, skipped, workers, stats)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		started.UnixNano(), int64(report.Duration), report.Passed, report.Failed, report.Skipped,
		report.Pool.WorkerCount, string(stats))
	if err != nil {
		return 0, fmt.Errorf("profile: insert run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("profile: run id: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO scenario_results (run_id, path, name, mode, passed, steps, error, duration_ns, hit_rate)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("profile: prepare result insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range report.Results {
		msg := ""
		if r.Err != nil {
			msg = r.Err.Error()
		}
		if _, err := stmt.ExecContext(ctx, id, r.Path, r.Name, r.Mode(), r.Passed, r.Steps, msg,
			int64(r.Duration), r.Stats.HitRate()); err != nil {
			return 0, fmt.Errorf("profile: insert result %s (%s): %w", r.Path, r.Mode(), err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("profile: commit run: %w", err)
	}
	log.Debugf("recorded run %d with %d results", id, len(report.Results))
	return id, nil
}

const runColumns = `id, started_at, duration_ns, passed, failed, skipped, workers, stats`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (Run, error) {
	var (
		run     Run
		started int64
		dur     int64
		stats   string
	)
	if err := sc.Scan(&run.ID, &started, &dur, &run.Passed, &run.Failed, &run.Skipped, &run.Workers, &stats); err != nil {
		return Run{}, err
	}
	run.StartedAt = time.Unix(0, started)
	run.Duration = time.Duration(dur)
	if err := json.Unmarshal([]byte(stats), &run.Stats); err != nil {
		return Run{}, fmt.Errorf("profile: decode stats of run %d: %w", run.ID, err)
	}
	return run, nil
}

// Recent returns up to limit runs, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+runColumns+` FROM runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("profile: query runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("profile: scan run: %w", err)
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

// Get returns one run, or ErrNotFound.
func (s *Store) Get(ctx context.Context, id int64) (Run, error) {
	run, err := scanRun(s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("profile: run %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return Run{}, fmt.Errorf("profile: get run %d: %w", id, err)
	}
	return run, nil
}

// Results returns the scenario results of a run ordered by path and mode.
func (s *Store) Results(ctx context.Context, runID int64) ([]ScenarioResult, error) {
	return s.queryResults(ctx,
		`SELECT run_id, path, name, mode, passed, steps, error, duration_ns, hit_rate
		 FROM scenario_results WHERE run_id = ? ORDER BY path, mode`, runID)
}

// History returns the most recent results for one scenario file, newest
// run first.
func (s *Store) History(ctx context.Context, path string, limit int) ([]ScenarioResult, error) {
	return s.queryResults(ctx,
		`SELECT run_id, path, name, mode, passed, steps, error, duration_ns, hit_rate
		 FROM scenario_results WHERE path = ? ORDER BY run_id DESC, mode LIMIT ?`, path, limit)
}

func (s *Store) queryResults(ctx context.Context, q string, args ...any) ([]ScenarioResult, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("profile: query results: %w", err)
	}
	defer rows.Close()

	var out []ScenarioResult
	for rows.Next() {
		var (
			r   ScenarioResult
			dur int64
		)
		if err := rows.Scan(&r.RunID, &r.Path, &r.Name, &r.Mode, &r.Passed, &r.Steps, &r.Error, &dur, &r.HitRate); err != nil {
			return nil, fmt.Errorf("profile: scan result: %w", err)
		}
		r.Duration = time.Duration(dur)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Prune deletes all but the newest keep runs and returns how many went.
func (s *Store) Prune(ctx context.Context, keep int) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM runs WHERE id NOT IN (SELECT id FROM runs ORDER BY id DESC LIMIT ?)`, keep)
	if err != nil {
		return 0, fmt.Errorf("profile: prune: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n > 0 {
		log.Infof("pruned %d runs", n)
	}
	return n, nil
}
