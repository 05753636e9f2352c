// Package history persists runs, model replies and command results in SQLite.
package history

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/computerscienceiscool/llm-autorun/pkg/evaluator"
)

// Run statuses
const (
	StatusRunning   = "running"
	StatusSuccess   = "success"
	StatusFailure   = "failure"
	StatusAborted   = "aborted"
	StatusCancelled = "cancelled"
)

type Store struct {
	db *sql.DB
}

type Run struct {
	RunID     string
	Mode      string // repo or chat
	Target    string // repository URL or working directory
	Request   string
	Model     string
	Status    string
	Attempts  int
	StartedAt time.Time
	EndedAt   time.Time
	LastError string
}

type Reply struct {
	Attempt int
	Content string
}

type Result struct {
	Attempt int
	Seq     int
	evaluator.ExecutionResult
}

// NewRunID returns a fresh run identifier
func NewRunID() string {
	return uuid.NewString()
}

// Open opens (or creates) the database at path
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create history dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init history schema: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) initSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			mode TEXT NOT NULL,
			target TEXT NOT NULL,
			request TEXT NOT NULL,
			model TEXT NOT NULL,
			status TEXT NOT NULL,
			attempts INTEGER NOT NULL DEFAULT 0,
			started_at TEXT NOT NULL,
			ended_at TEXT,
			last_error TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS replies (
			run_id TEXT NOT NULL,
			attempt INTEGER NOT NULL,
			content TEXT NOT NULL,
			created_at TEXT NOT NULL,
			FOREIGN KEY(run_id) REFERENCES runs(run_id)
		);`,
		`CREATE TABLE IF NOT EXISTS results (
			run_id TEXT NOT NULL,
			attempt INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			command TEXT NOT NULL,
			status TEXT NOT NULL,
			exit_code INTEGER NOT NULL,
			stdout TEXT,
			stderr TEXT,
			crash_error TEXT,
			blocked_by TEXT,
			duration_ms INTEGER NOT NULL,
			timed_out INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY(run_id, attempt, seq),
			FOREIGN KEY(run_id) REFERENCES runs(run_id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// StartRun inserts r with status running; an empty RunID is filled in
func (s *Store) StartRun(r *Run) error {
	if r.RunID == "" {
		r.RunID = NewRunID()
	}
	if r.StartedAt.IsZero() {
		r.StartedAt = time.Now().UTC()
	}
	r.Status = StatusRunning
	_, err := s.db.Exec(
		`INSERT INTO runs (run_id, mode, target, request, model, status, attempts, started_at)
		 VALUES (?, ?, ?, ?, ?, ?, 0, ?)`,
		r.RunID, r.Mode, r.Target, r.Request, r.Model, r.Status, formatTime(r.StartedAt),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// RecordReply stores the raw model reply for one attempt
func (s *Store) RecordReply(runID string, attempt int, content string) error {
	_, err := s.db.Exec(
		`INSERT INTO replies (run_id, attempt, content, created_at) VALUES (?, ?, ?, ?)`,
		runID, attempt, content, formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("insert reply: %w", err)
	}
	return nil
}

// RecordBatch stores every result of one attempt and bumps the run's attempt count
func (s *Store) RecordBatch(runID string, batch evaluator.Batch) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	for i, r := range batch.Results {
		_, err := tx.Exec(
			`INSERT INTO results (run_id, attempt, seq, command, status, exit_code, stdout, stderr, crash_error, blocked_by, duration_ms, timed_out)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			runID, batch.Attempt, i+1, r.Command, string(r.Status), r.ExitCode,
			nullableString(r.Stdout), nullableString(r.Stderr), nullableString(r.CrashError), nullableString(r.BlockedBy),
			r.Duration.Milliseconds(), r.TimedOut,
		)
		if err != nil {
			return fmt.Errorf("insert result: %w", err)
		}
	}
	if _, err := tx.Exec(`UPDATE runs SET attempts = MAX(attempts, ?) WHERE run_id = ?`, batch.Attempt, runID); err != nil {
		return fmt.Errorf("update attempts: %w", err)
	}
	return tx.Commit()
}

// FinishRun sets the terminal status
func (s *Store) FinishRun(runID, status, lastError string) error {
	res, err := s.db.Exec(
		`UPDATE runs SET status = ?, ended_at = ?, last_error = ? WHERE run_id = ?`,
		status, formatTime(time.Now()), nullableString(lastError), runID,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run not found: %s", runID)
	}
	return nil
}

const runColumns = `run_id, mode, target, request, model, status, attempts, started_at, COALESCE(ended_at,''), COALESCE(last_error,'')`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var r Run
	var started, ended string
	if err := row.Scan(&r.RunID, &r.Mode, &r.Target, &r.Request, &r.Model, &r.Status, &r.Attempts, &started, &ended, &r.LastError); err != nil {
		return Run{}, err
	}
	r.StartedAt = parseTime(started)
	r.EndedAt = parseTime(ended)
	return r, nil
}

// GetRun loads one run by id
func (s *Store) GetRun(runID string) (Run, error) {
	r, err := scanRun(s.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE run_id = ?`, runID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, fmt.Errorf("run not found: %s", runID)
		}
		return Run{}, err
	}
	return r, nil
}

// ListRuns returns the most recent runs first
func (s *Store) ListRuns(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Run, 0)
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Replies returns a run's model replies in attempt order
func (s *Store) Replies(runID string) ([]Reply, error) {
	rows, err := s.db.Query(`SELECT attempt, content FROM replies WHERE run_id = ? ORDER BY attempt, rowid`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Reply, 0)
	for rows.Next() {
		var r Reply
		if err := rows.Scan(&r.Attempt, &r.Content); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Results returns a run's command results in execution order
func (s *Store) Results(runID string) ([]Result, error) {
	rows, err := s.db.Query(`SELECT attempt, seq, command, status, exit_code, COALESCE(stdout,''), COALESCE(stderr,''),
		COALESCE(crash_error,''), COALESCE(blocked_by,''), duration_ms, timed_out
		FROM results WHERE run_id = ? ORDER BY attempt, seq`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Result, 0)
	for rows.Next() {
		var r Result
		var status string
		var durationMS int64
		if err := rows.Scan(&r.Attempt, &r.Seq, &r.Command, &status, &r.ExitCode, &r.Stdout, &r.Stderr,
			&r.CrashError, &r.BlockedBy, &durationMS, &r.TimedOut); err != nil {
			return nil, err
		}
		r.Status = evaluator.Status(status)
		r.Duration = time.Duration(durationMS) * time.Millisecond
		out = append(out, r)
	}
	return out, rows.Err()
}

// fixed-width so that text order matches time order
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullableString(v string) any {
	if v == "" {
		return nil
	}
	return v
}
