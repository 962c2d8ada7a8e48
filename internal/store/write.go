package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
)

// MarkJobStatus upserts the job row and applies the status under the
// monotonic transition rule.
func (s *Store) MarkJobStatus(ctx context.Context, meta JobMeta, status JobStatus) {
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		return ensureJobTx(tx, meta, status, time.Now().UTC())
	})
	if err != nil {
		logf("mark job %s status %s: %v", meta.ID, status, err)
	}
}

// RecordAnalysisOutput appends an analysis artifact and moves the job to
// analyzing.
func (s *Store) RecordAnalysisOutput(ctx context.Context, meta JobMeta, data any) {
	s.recordStageArtifact(ctx, meta, ArtifactAnalysis, StatusAnalyzing, "", data)
}

// RecordRefactorOutput appends a refactor artifact and moves the job to
// refactoring.
func (s *Store) RecordRefactorOutput(ctx context.Context, meta JobMeta, data any) {
	s.recordStageArtifact(ctx, meta, ArtifactRefactor, StatusRefactoring, "", data)
}

// RecordPlannerOutput appends a plan artifact and moves the job to
// planning.
func (s *Store) RecordPlannerOutput(ctx context.Context, meta JobMeta, plan *Plan) {
	s.recordStageArtifact(ctx, meta, ArtifactPlan, StatusPlanning, "", plan)
}

// RecordMergeStart appends a merge_input artifact and moves the job to
// merging.
func (s *Store) RecordMergeStart(ctx context.Context, meta JobMeta, data any) {
	s.recordStageArtifact(ctx, meta, ArtifactMergeInput, StatusMerging, "", data)
}

// RecordMergeResult appends a merge_result artifact and moves the job to
// done, or to needs_manual_review when the merge reports it.
func (s *Store) RecordMergeResult(ctx context.Context, meta JobMeta, result *MergeResult) {
	status := StatusDone
	if result.Status == MergeStatusNeedsManualReview {
		status = StatusNeedsManualReview
	}
	s.recordStageArtifact(ctx, meta, ArtifactMergeResult, status, "", result)
}

// RecordMergeFailure appends a merge_error artifact and fails the job.
func (s *Store) RecordMergeFailure(ctx context.Context, meta JobMeta, message string) {
	s.recordStageArtifact(ctx, meta, ArtifactMergeError, StatusFailed, "", map[string]string{"error": message})
}

// RecordProgress appends a short progress artifact for live streaming. The
// job transitions to the owning stage's entry status.
func (s *Store) RecordProgress(ctx context.Context, meta JobMeta, typ ArtifactType, subtaskID, text string) {
	s.recordStageArtifact(ctx, meta, typ, progressStatus(typ), subtaskID, map[string]string{"text": text})
}

// RecordSubtaskStart upserts the subtask as running, setting startedAt
// only on the first start, and moves the job to running.
func (s *Store) RecordSubtaskStart(ctx context.Context, meta JobMeta, sub *Subtask) {
	now := time.Now().UTC()
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if err := ensureJobTx(tx, meta, StatusRunning, now); err != nil {
			return err
		}
		files, err := json.Marshal(emptyIfNil(sub.ImportantFiles))
		if err != nil {
			return err
		}
		_, err = tx.Exec(`
			INSERT INTO subtasks (
				job_id, subtask_id, title, description, parallel_group,
				worktree_path, branch, summary, important_files, error,
				last_reasoning, status, started_at, finished_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, ?)
			ON CONFLICT(job_id, subtask_id) DO UPDATE SET
				title = excluded.title,
				description = excluded.description,
				parallel_group = excluded.parallel_group,
				worktree_path = excluded.worktree_path,
				branch = excluded.branch,
				status = excluded.status,
				started_at = COALESCE(subtasks.started_at, excluded.started_at),
				updated_at = excluded.updated_at`,
			meta.ID, sub.SubtaskID, sub.Title, sub.Description, sub.ParallelGroup,
			sub.WorktreePath, sub.Branch, sub.Summary, string(files), sub.Error,
			sub.LastReasoning, SubtaskRunning, now, now,
		)
		return err
	})
	if err != nil {
		logf("record subtask %s/%s start: %v", meta.ID, sub.SubtaskID, err)
	}
}

// RecordSubtaskResult upserts the subtask with its final status, sets
// finishedAt, appends a subtask_result artifact, and moves the job to
// running on success or failed on failure.
func (s *Store) RecordSubtaskResult(ctx context.Context, meta JobMeta, sub *Subtask, payload any) {
	now := time.Now().UTC()
	jobStatus := StatusRunning
	if sub.Status == SubtaskFailed {
		jobStatus = StatusFailed
	}
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if err := ensureJobTx(tx, meta, jobStatus, now); err != nil {
			return err
		}
		files, err := json.Marshal(emptyIfNil(sub.ImportantFiles))
		if err != nil {
			return err
		}
		_, err = tx.Exec(`
			INSERT INTO subtasks (
				job_id, subtask_id, title, description, parallel_group,
				worktree_path, branch, summary, important_files, error,
				last_reasoning, status, started_at, finished_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(job_id, subtask_id) DO UPDATE SET
				summary = excluded.summary,
				important_files = excluded.important_files,
				error = excluded.error,
				status = excluded.status,
				started_at = COALESCE(subtasks.started_at, excluded.started_at),
				finished_at = excluded.finished_at,
				updated_at = excluded.updated_at`,
			meta.ID, sub.SubtaskID, sub.Title, sub.Description, sub.ParallelGroup,
			sub.WorktreePath, sub.Branch, sub.Summary, string(files), sub.Error,
			sub.LastReasoning, sub.Status, now, now, now,
		)
		if err != nil {
			return err
		}
		return appendArtifactTx(tx, meta.ID, ArtifactSubtaskResult, "", sub.SubtaskID, payload, now)
	})
	if err != nil {
		logf("record subtask %s/%s result: %v", meta.ID, sub.SubtaskID, err)
	}
}

// RecordSubtaskReasoning updates the subtask's last captured reasoning
// line for live streaming.
func (s *Store) RecordSubtaskReasoning(ctx context.Context, jobID, subtaskID, reasoning string) {
	_, err := s.conn.ExecContext(ctx, `
		UPDATE subtasks SET last_reasoning = ?, updated_at = ?
		WHERE job_id = ? AND subtask_id = ?`,
		reasoning, time.Now().UTC(), jobID, subtaskID,
	)
	if err != nil {
		logf("record subtask %s/%s reasoning: %v", jobID, subtaskID, err)
	}
}

// EnsureTerminalJobStatus promotes a live job to fallback so no
// live-but-finished job is left behind. Terminal jobs are untouched.
func (s *Store) EnsureTerminalJobStatus(ctx context.Context, jobID string, fallback JobStatus) {
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var current JobStatus
		err := tx.QueryRow(`SELECT status FROM jobs WHERE id = ?`, jobID).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		if current.Terminal() {
			return nil
		}
		_, err = tx.Exec(`UPDATE jobs SET status = ?, updated_at = ? WHERE id = ?`,
			fallback, time.Now().UTC(), jobID)
		return err
	})
	if err != nil {
		logf("ensure terminal status for job %s: %v", jobID, err)
	}
}

// recordStageArtifact appends one artifact and applies the stage's entry
// status in a single transaction.
func (s *Store) recordStageArtifact(ctx context.Context, meta JobMeta, typ ArtifactType, status JobStatus, subtaskID string, data any) {
	now := time.Now().UTC()
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if err := ensureJobTx(tx, meta, status, now); err != nil {
			return err
		}
		return appendArtifactTx(tx, meta.ID, typ, "", subtaskID, data, now)
	})
	if err != nil {
		logf("record %s artifact for job %s: %v", typ, meta.ID, err)
	}
}

// inTx runs fn inside one transaction.
func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// ensureJobTx upserts the job row, enforcing monotonic status: transitions
// to lower priority are ignored and terminal statuses freeze the row.
func ensureJobTx(tx *sql.Tx, meta JobMeta, status JobStatus, now time.Time) error {
	var current JobStatus
	err := tx.QueryRow(`SELECT status FROM jobs WHERE id = ?`, meta.ID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		_, err = tx.Exec(`
			INSERT INTO jobs (id, repo_root, base_branch, task_description,
				user_task, push_result, status, started_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			meta.ID, meta.RepoRoot, meta.BaseBranch, meta.TaskDescription,
			meta.UserTask, meta.PushResult, status, now, now,
		)
		return err
	}
	if err != nil {
		return err
	}
	if current.Terminal() || status.Priority() < current.Priority() {
		return nil
	}
	_, err = tx.Exec(`UPDATE jobs SET status = ?, updated_at = ? WHERE id = ?`,
		status, now, meta.ID)
	return err
}

// appendArtifactTx inserts one immutable artifact row.
func appendArtifactTx(tx *sql.Tx, jobID string, typ ArtifactType, label, subtaskID string, data any, now time.Time) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	var subtask any
	if subtaskID != "" {
		subtask = subtaskID
	}
	_, err = tx.Exec(`
		INSERT INTO artifacts (id, job_id, type, label, subtask_id, created_at, data)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ulid.Make().String(), jobID, typ, label, subtask, now, string(payload),
	)
	return err
}

// progressStatus maps a progress artifact type to its stage entry status.
func progressStatus(typ ArtifactType) JobStatus {
	switch typ {
	case ArtifactAnalysisProgress:
		return StatusAnalyzing
	case ArtifactRefactorProgress:
		return StatusRefactoring
	case ArtifactPlanProgress:
		return StatusPlanning
	case ArtifactMergeProgress:
		return StatusMerging
	}
	return StatusRunning
}

func emptyIfNil(files []string) []string {
	if files == nil {
		return []string{}
	}
	return files
}
