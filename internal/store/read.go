package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// DashboardData returns the full snapshot of all jobs with their subtasks
// and artifacts. Jobs are ordered newest first, artifacts newest first.
func (s *Store) DashboardData(ctx context.Context) (*Dashboard, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, repo_root, base_branch, task_description, user_task,
			push_result, status, started_at, updated_at
		FROM jobs ORDER BY started_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}
	defer rows.Close()

	dashboard := &Dashboard{Jobs: []*JobView{}}
	for rows.Next() {
		var job Job
		if err := rows.Scan(&job.ID, &job.RepoRoot, &job.BaseBranch,
			&job.TaskDescription, &job.UserTask, &job.PushResult,
			&job.Status, &job.StartedAt, &job.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		dashboard.Jobs = append(dashboard.Jobs, &JobView{Job: job})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, view := range dashboard.Jobs {
		if err := s.fillJobView(ctx, view); err != nil {
			return nil, err
		}
	}
	return dashboard, nil
}

// ActiveJob returns the most recently started non-terminal job, or nil
// when every job is terminal or none exist.
func (s *Store) ActiveJob(ctx context.Context) (*JobView, error) {
	var job Job
	err := s.conn.QueryRowContext(ctx, `
		SELECT id, repo_root, base_branch, task_description, user_task,
			push_result, status, started_at, updated_at
		FROM jobs
		WHERE status NOT IN (?, ?, ?)
		ORDER BY started_at DESC, id DESC LIMIT 1`,
		StatusDone, StatusFailed, StatusNeedsManualReview,
	).Scan(&job.ID, &job.RepoRoot, &job.BaseBranch, &job.TaskDescription,
		&job.UserTask, &job.PushResult, &job.Status, &job.StartedAt, &job.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query active job: %w", err)
	}

	view := &JobView{Job: job}
	if err := s.fillJobView(ctx, view); err != nil {
		return nil, err
	}
	return view, nil
}

// JobByID returns one job with its subtasks and artifacts, or nil when no
// such job exists.
func (s *Store) JobByID(ctx context.Context, jobID string) (*JobView, error) {
	var job Job
	err := s.conn.QueryRowContext(ctx, `
		SELECT id, repo_root, base_branch, task_description, user_task,
			push_result, status, started_at, updated_at
		FROM jobs WHERE id = ?`, jobID,
	).Scan(&job.ID, &job.RepoRoot, &job.BaseBranch, &job.TaskDescription,
		&job.UserTask, &job.PushResult, &job.Status, &job.StartedAt, &job.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query job %s: %w", jobID, err)
	}

	view := &JobView{Job: job}
	if err := s.fillJobView(ctx, view); err != nil {
		return nil, err
	}
	return view, nil
}

// JobStatusOf returns the stored status of a job, or "" when the job does
// not exist.
func (s *Store) JobStatusOf(ctx context.Context, jobID string) (JobStatus, error) {
	var status JobStatus
	err := s.conn.QueryRowContext(ctx,
		`SELECT status FROM jobs WHERE id = ?`, jobID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to query job %s status: %w", jobID, err)
	}
	return status, nil
}

func (s *Store) fillJobView(ctx context.Context, view *JobView) error {
	subtasks, err := s.subtasksFor(ctx, view.ID)
	if err != nil {
		return err
	}
	artifacts, err := s.artifactsFor(ctx, view.ID)
	if err != nil {
		return err
	}
	view.Subtasks = subtasks
	view.Artifacts = artifacts

	// Derive structured payloads from the newest matching artifacts.
	// Artifacts are ordered newest first, so the first hit wins.
	for _, art := range artifacts {
		if view.Plan == nil && art.Type == ArtifactPlan {
			var plan Plan
			if err := json.Unmarshal(art.Data, &plan); err == nil {
				view.Plan = &plan
			}
		}
		if view.MergeResult == nil && art.Type == ArtifactMergeResult {
			var result MergeResult
			if err := json.Unmarshal(art.Data, &result); err == nil {
				view.MergeResult = &result
			}
		}
	}
	return nil
}

func (s *Store) subtasksFor(ctx context.Context, jobID string) ([]*Subtask, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT job_id, subtask_id, title, description, parallel_group,
			worktree_path, branch, summary, important_files, error,
			last_reasoning, status, started_at, finished_at, updated_at
		FROM subtasks WHERE job_id = ?
		ORDER BY started_at ASC, subtask_id ASC`, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to query subtasks: %w", err)
	}
	defer rows.Close()

	subtasks := []*Subtask{}
	for rows.Next() {
		var sub Subtask
		var files string
		var started, finished sql.NullTime
		if err := rows.Scan(&sub.JobID, &sub.SubtaskID, &sub.Title,
			&sub.Description, &sub.ParallelGroup, &sub.WorktreePath,
			&sub.Branch, &sub.Summary, &files, &sub.Error,
			&sub.LastReasoning, &sub.Status, &started, &finished,
			&sub.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan subtask: %w", err)
		}
		if err := json.Unmarshal([]byte(files), &sub.ImportantFiles); err != nil {
			sub.ImportantFiles = nil
		}
		sub.StartedAt = timePtr(started)
		sub.FinishedAt = timePtr(finished)
		subtasks = append(subtasks, &sub)
	}
	return subtasks, rows.Err()
}

func (s *Store) artifactsFor(ctx context.Context, jobID string) ([]*Artifact, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, job_id, type, label, subtask_id, created_at, data
		FROM artifacts WHERE job_id = ?
		ORDER BY created_at DESC, id DESC`, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to query artifacts: %w", err)
	}
	defer rows.Close()

	artifacts := []*Artifact{}
	for rows.Next() {
		var art Artifact
		var subtask sql.NullString
		var data string
		if err := rows.Scan(&art.ID, &art.JobID, &art.Type, &art.Label,
			&subtask, &art.CreatedAt, &data); err != nil {
			return nil, fmt.Errorf("failed to scan artifact: %w", err)
		}
		art.SubtaskID = subtask.String
		art.Data = json.RawMessage(data)
		artifacts = append(artifacts, &art)
	}
	return artifacts, rows.Err()
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}
