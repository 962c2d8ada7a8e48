package stage

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/orchard-dev/orchard/internal/git"
	"github.com/orchard-dev/orchard/internal/store"
	"github.com/orchard-dev/orchard/internal/worker"
)

// SubtaskResult is the normalised output of one run-subtask invocation.
type SubtaskResult struct {
	SubtaskID      string   `json:"subtaskId"`
	Status         string   `json:"status"`
	Summary        string   `json:"summary"`
	ImportantFiles []string `json:"importantFiles"`

	// Branch and WorktreePath identify where the work landed. Set by the
	// stage, not the worker.
	Branch       string `json:"-"`
	WorktreePath string `json:"-"`
}

// OK reports whether the worker completed the subtask.
func (r *SubtaskResult) OK() bool {
	return r.Status == "ok"
}

// RunSubtask executes one planned subtask in its own worktree on branch
// task-<slug>-<jobId>. The worker edits files; the stage commits them. A
// parseable failure payload is a valid result, not an error.
func (t *Tools) RunSubtask(ctx context.Context, job Job, userTask string, sub store.PlanSubtask, slug string) (*SubtaskResult, error) {
	branch := git.SanitizeBranch(fmt.Sprintf("task-%s-%s", slug, job.Meta.ID))
	path := filepath.Join(job.WorktreesRoot, "task-"+slug)

	wt, err := t.ensureWorktree(ctx, path, branch, job.Meta.BaseBranch)
	if err != nil {
		t.recordSubtaskFailure(ctx, job, sub, path, branch, err)
		return nil, fmt.Errorf("subtask %s: %w", sub.ID, err)
	}

	t.Store.RecordSubtaskStart(ctx, job.Meta, &store.Subtask{
		SubtaskID:     sub.ID,
		Title:         sub.Title,
		Description:   sub.Description,
		ParallelGroup: sub.ParallelGroup,
		WorktreePath:  path,
		Branch:        branch,
	})

	progress := newProgressReporter(ctx, t.Store, job.Meta, "", sub.ID)

	var result SubtaskResult
	err = t.runWorker(ctx, "subtask", worker.Request{
		Prompt:       subtaskPrompt(userTask, sub),
		Dir:          path,
		Label:        "task-" + slug,
		OnStdoutLine: progress.Line,
		OnStderrLine: progress.Line,
	}, &result)
	if err != nil {
		t.recordSubtaskFailure(ctx, job, sub, path, branch, err)
		return nil, err
	}

	normalizeSubtaskResult(&result, sub.ID)
	result.Branch = branch
	result.WorktreePath = path

	message := fmt.Sprintf("job %s: subtask %s - %s", job.Meta.ID, sub.ID, truncate(result.Summary, 120))
	if err := commitIfDirty(ctx, wt, message); err != nil {
		t.recordSubtaskFailure(ctx, job, sub, path, branch, err)
		return nil, fmt.Errorf("subtask %s: committing edits: %w", sub.ID, err)
	}

	status := store.SubtaskCompleted
	errMsg := ""
	if !result.OK() {
		status = store.SubtaskFailed
		errMsg = result.Summary
	}
	t.Store.RecordSubtaskResult(ctx, job.Meta, &store.Subtask{
		SubtaskID:      sub.ID,
		Title:          sub.Title,
		Description:    sub.Description,
		ParallelGroup:  sub.ParallelGroup,
		WorktreePath:   path,
		Branch:         branch,
		Summary:        result.Summary,
		ImportantFiles: result.ImportantFiles,
		Error:          errMsg,
		Status:         status,
	}, &result)
	return &result, nil
}

func (t *Tools) recordSubtaskFailure(ctx context.Context, job Job, sub store.PlanSubtask, path, branch string, cause error) {
	t.Store.RecordSubtaskResult(ctx, job.Meta, &store.Subtask{
		SubtaskID:     sub.ID,
		Title:         sub.Title,
		Description:   sub.Description,
		ParallelGroup: sub.ParallelGroup,
		WorktreePath:  path,
		Branch:        branch,
		Error:         cause.Error(),
		Status:        store.SubtaskFailed,
	}, map[string]string{"error": cause.Error()})
}

func normalizeSubtaskResult(r *SubtaskResult, id string) {
	if strings.TrimSpace(r.SubtaskID) == "" {
		r.SubtaskID = id
	}
	if r.Status != "ok" {
		r.Status = "failed"
	}
	r.Summary = strings.TrimSpace(r.Summary)
	if r.ImportantFiles == nil {
		r.ImportantFiles = []string{}
	}
}
