// Package store persists jobs, subtasks, and artifacts in SQLite.
//
// The store is the single owner of all rows; stages and the engine write
// through it and the dashboard reads from it. Write failures never
// propagate into the engine: every write method swallows its error and
// logs a diagnostic line, so the pipeline always makes forward progress.
package store

import (
	"database/sql"
	"fmt"
	"log"

	_ "modernc.org/sqlite"
)

// Store wraps the SQLite connection with orchestrator-specific operations.
type Store struct {
	conn *sql.DB
}

// Open creates or opens the database at path, enabling WAL mode and
// foreign keys, and runs migrations.
func Open(path string) (*Store, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite permits one writer. A single pooled connection serialises
	// concurrent writers instead of surfacing SQLITE_BUSY, and keeps the
	// pragmas below in effect for every query.
	conn.SetMaxOpenConns(1)

	if _, err := conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s := &Store{conn: conn}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// migrate creates or updates the database schema.
func (s *Store) migrate() error {
	schema := `
-- Jobs table: one row per orchestrator run
CREATE TABLE IF NOT EXISTS jobs (
    id               TEXT PRIMARY KEY,
    repo_root        TEXT NOT NULL,
    base_branch      TEXT NOT NULL,
    task_description TEXT NOT NULL DEFAULT '',
    user_task        TEXT NOT NULL DEFAULT '',
    push_result      INTEGER NOT NULL DEFAULT 0,
    status           TEXT NOT NULL,
    started_at       DATETIME NOT NULL,
    updated_at       DATETIME NOT NULL
);

-- Subtasks table: units of the plan within a job
CREATE TABLE IF NOT EXISTS subtasks (
    job_id          TEXT NOT NULL REFERENCES jobs(id) ON DELETE CASCADE,
    subtask_id      TEXT NOT NULL,
    title           TEXT NOT NULL DEFAULT '',
    description     TEXT NOT NULL DEFAULT '',
    parallel_group  TEXT NOT NULL DEFAULT '',
    worktree_path   TEXT NOT NULL DEFAULT '',
    branch          TEXT NOT NULL DEFAULT '',
    summary         TEXT NOT NULL DEFAULT '',
    important_files TEXT NOT NULL DEFAULT '[]',
    error           TEXT NOT NULL DEFAULT '',
    last_reasoning  TEXT NOT NULL DEFAULT '',
    status          TEXT NOT NULL,
    started_at      DATETIME,
    finished_at     DATETIME,
    updated_at      DATETIME NOT NULL,
    PRIMARY KEY (job_id, subtask_id)
);

-- Artifacts table: immutable append-only event records
CREATE TABLE IF NOT EXISTS artifacts (
    id          TEXT PRIMARY KEY,
    job_id      TEXT NOT NULL REFERENCES jobs(id) ON DELETE CASCADE,
    type        TEXT NOT NULL,
    label       TEXT NOT NULL DEFAULT '',
    subtask_id  TEXT,
    created_at  DATETIME NOT NULL,
    data        TEXT NOT NULL DEFAULT '{}'
);

-- Indexes for common queries
CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
CREATE INDEX IF NOT EXISTS idx_subtasks_job_id ON subtasks(job_id);
CREATE INDEX IF NOT EXISTS idx_artifacts_job_id ON artifacts(job_id);
CREATE INDEX IF NOT EXISTS idx_artifacts_type ON artifacts(job_id, type);
`

	if _, err := s.conn.Exec(schema); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	return nil
}

// logf records a swallowed storage failure. The dashboard may miss events
// after a catastrophic storage failure, but the engine keeps going.
func logf(format string, args ...any) {
	log.Printf("state store: "+format, args...)
}
