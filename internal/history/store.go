// Package history keeps a SQLite log of batch runs so case outcomes can
// be followed across invocations.
package history

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ppiankov/goldrun/internal/task"
)

//go:embed schema.sql
var schemaSQL string

const currentSchemaVersion = 1

// Store is the history database.
type Store struct {
	db *sql.DB
}

// Open creates or opens the history database at path, creating parent
// directories as needed. Safe to call on an existing database.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create history dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	// one writer; avoids SQLITE_BUSY between pooled connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect history: %w", err)
	}
	if err := applyPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := applySchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("apply %q: %w", p, err)
		}
	}
	return nil
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

// Record stores a finished batch and its cases. Recording the same run
// id again replaces the earlier rows.
func (s *Store) Record(ctx context.Context, report *task.BatchReport) error {
	if report.RunID == "" {
		return fmt.Errorf("record history: report has no run id")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("record history: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM batches WHERE run_id = ?`, report.RunID); err != nil {
		return fmt.Errorf("record history: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO batches (run_id, started_ns, target, engine, total, passed, failed, errored, skipped, duration_ms, aborted)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		report.RunID, report.Timestamp.UnixNano(), report.Target, report.Engine,
		report.TotalCases, report.Passed, report.Failed, report.Errored, report.Skipped,
		report.TotalDuration.Milliseconds(), report.Aborted,
	)
	if err != nil {
		return fmt.Errorf("record batch: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO cases (run_id, seq, name, config_path, state, error_kind, error, exit_code, common_count, differing, accepted, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("record cases: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i, r := range report.Results {
		_, err := stmt.ExecContext(ctx,
			report.RunID, i, r.Case, r.ConfigPath, r.State.String(), r.ErrorKind, r.Error,
			r.ExitCode, r.CommonCount, strings.Join(r.Differing, "\n"), r.Accepted, r.Duration.Milliseconds(),
		)
		if err != nil {
			return fmt.Errorf("record case %s: %w", r.Case, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("record history: %w", err)
	}
	return nil
}

// Batch is one recorded batch run.
type Batch struct {
	RunID     string
	Timestamp time.Time
	Target    string
	Engine    string
	Total     int
	Passed    int
	Failed    int
	Errored   int
	Skipped   int
	Duration  time.Duration
	Aborted   string
}

// Batches returns the most recent batches, newest first. limit <= 0
// returns all of them.
func (s *Store) Batches(ctx context.Context, limit int) ([]Batch, error) {
	q := `SELECT run_id, started_ns, target, engine, total, passed, failed, errored, skipped, duration_ms, aborted
		FROM batches ORDER BY started_ns DESC`
	var args []any
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query batches: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Batch
	for rows.Next() {
		var b Batch
		var startedNS, durMS int64
		if err := rows.Scan(&b.RunID, &startedNS, &b.Target, &b.Engine, &b.Total, &b.Passed,
			&b.Failed, &b.Errored, &b.Skipped, &durMS, &b.Aborted); err != nil {
			return nil, fmt.Errorf("scan batch: %w", err)
		}
		b.Timestamp = time.Unix(0, startedNS)
		b.Duration = time.Duration(durMS) * time.Millisecond
		out = append(out, b)
	}
	return out, rows.Err()
}

// Entry is one recorded case outcome.
type Entry struct {
	RunID       string
	Timestamp   time.Time
	Case        string
	ConfigPath  string
	State       task.State
	ErrorKind   string
	Error       string
	ExitCode    int
	CommonCount int
	Differing   []string
	Accepted    bool
	Duration    time.Duration
}

// Query selects case entries. Empty Case matches every case.
type Query struct {
	Case  string
	Limit int
}

// Cases returns recorded case outcomes, newest batch first and in
// execution order within a batch.
func (s *Store) Cases(ctx context.Context, q Query) ([]Entry, error) {
	stmt := `SELECT c.run_id, b.started_ns, c.name, c.config_path, c.state, c.error_kind, c.error,
			c.exit_code, c.common_count, c.differing, c.accepted, c.duration_ms
		FROM cases c JOIN batches b ON b.run_id = c.run_id`
	var args []any
	if q.Case != "" {
		stmt += ` WHERE c.name = ?`
		args = append(args, q.Case)
	}
	stmt += ` ORDER BY b.started_ns DESC, c.seq ASC`
	if q.Limit > 0 {
		stmt += ` LIMIT ?`
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query cases: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Entry
	for rows.Next() {
		var e Entry
		var startedNS, durMS int64
		var state, differing string
		if err := rows.Scan(&e.RunID, &startedNS, &e.Case, &e.ConfigPath, &state, &e.ErrorKind, &e.Error,
			&e.ExitCode, &e.CommonCount, &differing, &e.Accepted, &durMS); err != nil {
			return nil, fmt.Errorf("scan case: %w", err)
		}
		if err := e.State.UnmarshalText([]byte(state)); err != nil {
			return nil, fmt.Errorf("scan case %s: %w", e.Case, err)
		}
		if differing != "" {
			e.Differing = strings.Split(differing, "\n")
		}
		e.Timestamp = time.Unix(0, startedNS)
		e.Duration = time.Duration(durMS) * time.Millisecond
		out = append(out, e)
	}
	return out, rows.Err()
}
