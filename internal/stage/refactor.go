package stage

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/orchard-dev/orchard/internal/git"
	"github.com/orchard-dev/orchard/internal/store"
	"github.com/orchard-dev/orchard/internal/worker"
)

// RefactorResult is the normalised output of the refactor stage.
type RefactorResult struct {
	Status       string   `json:"status"`
	Summary      string   `json:"summary"`
	Branch       string   `json:"branch"`
	WorktreePath string   `json:"worktreePath"`
	TouchedFiles []string `json:"touchedFiles"`
	Notes        string   `json:"notes,omitempty"`
}

// Refactor runs the preparatory refactor in a dedicated worktree on
// branch refactor-<jobId>, commits whatever the Worker CLI edited, and
// recomputes touchedFiles from the diff against the base branch.
func (t *Tools) Refactor(ctx context.Context, job Job, userTask string, analysis *AnalyzeResult) (*RefactorResult, error) {
	branch := git.SanitizeBranch("refactor-" + job.Meta.ID)
	path := filepath.Join(job.WorktreesRoot, "refactor")

	wt, err := t.ensureWorktree(ctx, path, branch, job.Meta.BaseBranch)
	if err != nil {
		return nil, fmt.Errorf("refactor stage: %w", err)
	}

	progress := newProgressReporter(ctx, t.Store, job.Meta, store.ArtifactRefactorProgress, "")

	var result RefactorResult
	err = t.runWorker(ctx, "refactor", worker.Request{
		Prompt:       refactorPrompt(userTask, analysis),
		Dir:          path,
		Label:        "refactor",
		OnStdoutLine: progress.Line,
		OnStderrLine: progress.Line,
	}, &result)
	if err != nil {
		return nil, err
	}

	message := fmt.Sprintf("job %s: refactor - %s", job.Meta.ID, truncate(result.Summary, 120))
	if err := commitIfDirty(ctx, wt, message); err != nil {
		return nil, fmt.Errorf("refactor stage: committing edits: %w", err)
	}

	// The worker's own file list is advisory; the diff is authoritative.
	touched, err := wt.DiffNamesAgainst(ctx, job.Meta.BaseBranch)
	if err != nil {
		return nil, fmt.Errorf("refactor stage: diffing against %s: %w", job.Meta.BaseBranch, err)
	}

	result.Branch = branch
	result.WorktreePath = path
	result.TouchedFiles = touched
	if result.Status == "" {
		result.Status = "ok"
	}

	t.Store.RecordRefactorOutput(ctx, job.Meta, &result)
	return &result, nil
}
