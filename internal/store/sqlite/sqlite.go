// Package sqlite is the canonical state-store backend: one SQLite file
// per flow, holding the job_runs, step_runs, and locks tables. Schema,
// connection setup (single writer connection, busy timeout, WAL), and
// the upsert idioms are adapted from the teacher's
// internal/controller/backend/sqlite package.
package sqlite

import (
	"context"
	"database/sql"
	"time"

	afstore "github.com/aetherflow/aetherflow/internal/store"
	aferrors "github.com/aetherflow/aetherflow/pkg/errors"

	_ "modernc.org/sqlite"
)

// Config controls how the backing database is opened.
type Config struct {
	// Path is the database file path, e.g. flow.state.path.
	Path string
	// WAL enables write-ahead logging for better concurrent-reader
	// throughput across multiple run processes.
	WAL bool
}

// Store is the SQLite-backed implementation of store.Store.
type Store struct {
	db *sql.DB
}

var _ afstore.Store = (*Store)(nil)

// Open creates (if needed) and migrates the database at cfg.Path.
func Open(cfg Config) (*Store, error) {
	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, aferrors.Wrap(err, "opening state database")
	}
	// A single writer connection avoids SQLITE_BUSY storms under the
	// same-process concurrent step execution the runner never actually
	// performs, but keeps migrations and concurrent readers from
	// another process well-behaved regardless.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, aferrors.Wrap(err, "pinging state database")
	}

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	if cfg.WAL {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL")
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, aferrors.Wrapf(err, "applying pragma %q", p)
		}
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS job_runs (
			job_id TEXT NOT NULL,
			run_id TEXT NOT NULL,
			status TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (job_id, run_id)
		)`,
		`CREATE TABLE IF NOT EXISTS step_runs (
			job_id TEXT NOT NULL,
			run_id TEXT NOT NULL,
			step_id TEXT NOT NULL,
			status TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (job_id, run_id, step_id)
		)`,
		`CREATE TABLE IF NOT EXISTS locks (
			lock_key TEXT PRIMARY KEY,
			owner TEXT NOT NULL,
			expires_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_step_runs_job_run ON step_runs (job_id, run_id)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return aferrors.Wrap(err, "running state database migration")
		}
	}
	return nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) GetJobStatus(ctx context.Context, jobID, runID string) (afstore.JobStatus, bool, error) {
	var status string
	err := s.db.QueryRowContext(ctx,
		`SELECT status FROM job_runs WHERE job_id = ? AND run_id = ?`, jobID, runID,
	).Scan(&status)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, aferrors.Wrap(err, "reading job status")
	}
	return afstore.JobStatus(status), true, nil
}

func (s *Store) SetJobStatus(ctx context.Context, jobID, runID string, status afstore.JobStatus) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO job_runs (job_id, run_id, status, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (job_id, run_id) DO UPDATE SET
			status = excluded.status,
			updated_at = excluded.updated_at
	`, jobID, runID, string(status), nowRFC3339())
	if err != nil {
		return aferrors.Wrap(err, "writing job status")
	}
	return nil
}

func (s *Store) GetStepStatus(ctx context.Context, jobID, runID, stepID string) (afstore.StepStatus, bool, error) {
	var status string
	err := s.db.QueryRowContext(ctx,
		`SELECT status FROM step_runs WHERE job_id = ? AND run_id = ? AND step_id = ?`, jobID, runID, stepID,
	).Scan(&status)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, aferrors.Wrap(err, "reading step status")
	}
	return afstore.StepStatus(status), true, nil
}

func (s *Store) SetStepStatus(ctx context.Context, jobID, runID, stepID string, status afstore.StepStatus) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO step_runs (job_id, run_id, step_id, status, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (job_id, run_id, step_id) DO UPDATE SET
			status = excluded.status,
			updated_at = excluded.updated_at
	`, jobID, runID, stepID, string(status), nowRFC3339())
	if err != nil {
		return aferrors.Wrap(err, "writing step status")
	}
	return nil
}

// TryAcquireLock performs the acquire as a single atomic upsert: the
// conditional ON CONFLICT...WHERE clause only lets the write through when
// the existing row is expired or already owned by the same owner, so two
// processes racing on the same key can never both believe they hold it.
func (s *Store) TryAcquireLock(ctx context.Context, key, owner string, ttlSeconds int) (bool, error) {
	now := time.Now().Unix()
	expiresAt := now + int64(ttlSeconds)

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO locks (lock_key, owner, expires_at)
		VALUES (?, ?, ?)
		ON CONFLICT (lock_key) DO UPDATE SET
			owner = excluded.owner,
			expires_at = excluded.expires_at
		WHERE locks.expires_at <= ? OR locks.owner = ?
	`, key, owner, expiresAt, now, owner)
	if err != nil {
		return false, aferrors.Wrap(err, "acquiring lock")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, aferrors.Wrap(err, "reading lock acquisition result")
	}
	return affected > 0, nil
}

func (s *Store) ReleaseLock(ctx context.Context, key, owner string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM locks WHERE lock_key = ? AND owner = ?`, key, owner)
	if err != nil {
		return aferrors.Wrap(err, "releasing lock")
	}
	return nil
}

func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
