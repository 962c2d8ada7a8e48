package stage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/orchard-dev/orchard/internal/git"
	"github.com/orchard-dev/orchard/internal/jsonx"
	"github.com/orchard-dev/orchard/internal/store"
	"github.com/orchard-dev/orchard/internal/worker"
)

// ErrPointerTampered means the Worker CLI modified the result worktree's
// .git pointer file during conflict resolution. The merge is aborted.
var ErrPointerTampered = errors.New("worktree .git pointer modified during conflict resolution")

// UnresolvedError reports conflict files the Worker CLI failed to clear.
type UnresolvedError struct {
	Branch string
	Files  []string
}

func (e *UnresolvedError) Error() string {
	return fmt.Sprintf("merge of %s left unresolved conflicts: %s", e.Branch, strings.Join(e.Files, ", "))
}

// MergeInput names one subtask branch to fold into the result branch.
type MergeInput struct {
	SubtaskID string `json:"subtaskId"`
	Branch    string `json:"branch"`
	Summary   string `json:"summary"`
}

// mergeDecision is what the conflict-resolution prompt asks the worker to
// report.
type mergeDecision struct {
	Status string `json:"status"`
	Notes  string `json:"notes"`
}

// Merge folds every subtask branch into result-<jobId>, sequentially,
// resolving conflicts through the Worker CLI. Git metadata is protected:
// the worktree's .git pointer must survive conflict resolution unchanged.
func (t *Tools) Merge(ctx context.Context, job Job, inputs []MergeInput, push bool) (*store.MergeResult, error) {
	resultBranch := git.SanitizeBranch("result-" + job.Meta.ID)
	resultPath := filepath.Join(job.WorktreesRoot, "result")

	t.Store.RecordMergeStart(ctx, job.Meta, map[string]any{
		"resultBranch": resultBranch,
		"inputs":       inputs,
	})

	wt, err := t.ensureWorktree(ctx, resultPath, resultBranch, job.Meta.BaseBranch)
	if err != nil {
		return nil, t.failMerge(ctx, job, fmt.Errorf("preparing result worktree: %w", err))
	}

	progress := newProgressReporter(ctx, t.Store, job.Meta, store.ArtifactMergeProgress, "")

	needsReview := false
	reviewNotes := []string{}
	for _, input := range inputs {
		progress.Line(fmt.Sprintf("merging %s", input.Branch))

		res, err := wt.MergeNoCommitNoFF(ctx, input.Branch)
		if err != nil {
			return nil, t.failMerge(ctx, job, fmt.Errorf("merging %s: %w", input.Branch, err))
		}
		unmerged, err := wt.UnmergedFiles(ctx)
		if err != nil {
			return nil, t.failMerge(ctx, job, fmt.Errorf("listing unmerged files for %s: %w", input.Branch, err))
		}

		conflicted := len(unmerged) > 0
		if !conflicted && res.ExitCode != 0 {
			return nil, t.failMerge(ctx, job, fmt.Errorf("merging %s: git exited %d: %s",
				input.Branch, res.ExitCode, truncate(res.Stderr, errTruncateLimit)))
		}

		if conflicted {
			decision, err := t.resolveConflicts(ctx, wt, resultPath, input.Branch, unmerged, progress)
			if err != nil {
				return nil, t.failMerge(ctx, job, err)
			}
			if decision.Status == store.MergeStatusNeedsManualReview {
				needsReview = true
				if decision.Notes != "" {
					reviewNotes = append(reviewNotes, decision.Notes)
				}
			}
		}

		message := fmt.Sprintf("Merge branch %s into %s", input.Branch, resultBranch)
		if conflicted {
			message += " (conflicts resolved via Worker CLI)"
		}
		if err := commitIfDirty(ctx, wt, message); err != nil {
			return nil, t.failMerge(ctx, job, fmt.Errorf("committing merge of %s: %w", input.Branch, err))
		}
	}

	touched, err := wt.DiffNamesSinceMergeBase(ctx, job.Meta.BaseBranch)
	if err != nil {
		return nil, t.failMerge(ctx, job, fmt.Errorf("collecting touched files: %w", err))
	}

	notes := fmt.Sprintf("Merged %d branches into %s", len(inputs), resultBranch)
	if push {
		if err := wt.Push(ctx, "origin", resultBranch); err != nil {
			return nil, t.failMerge(ctx, job, fmt.Errorf("pushing %s: %w", resultBranch, err))
		}
		notes += ", pushed to origin"
	}

	result := &store.MergeResult{
		Status:       store.MergeStatusOK,
		Notes:        notes,
		TouchedFiles: touched,
	}
	if needsReview {
		result.Status = store.MergeStatusNeedsManualReview
		if len(reviewNotes) > 0 {
			result.Notes = notes + "; " + strings.Join(reviewNotes, "; ")
		}
	}
	t.Store.RecordMergeResult(ctx, job.Meta, result)
	return result, nil
}

// resolveConflicts delegates conflicted files to the Worker CLI, guarding
// the worktree's .git pointer against tampering and verifying the
// unmerged set drains.
func (t *Tools) resolveConflicts(ctx context.Context, wt *git.Client, resultPath, branch string, files []string, progress *progressReporter) (*mergeDecision, error) {
	pointerPath := filepath.Join(resultPath, ".git")
	before, err := os.ReadFile(pointerPath)
	if err != nil {
		return nil, fmt.Errorf("reading worktree pointer: %w", err)
	}

	resp, err := t.Worker.Exec(ctx, worker.Request{
		Prompt:       conflictPrompt(branch, files),
		Dir:          resultPath,
		Label:        "merge",
		OnStdoutLine: progress.Line,
		OnStderrLine: progress.Line,
	})
	if resp == nil {
		return nil, fmt.Errorf("resolving conflicts on %s: %w", branch, err)
	}

	after, err := os.ReadFile(pointerPath)
	if err != nil {
		return nil, fmt.Errorf("re-reading worktree pointer: %w", err)
	}
	if !bytes.Equal(before, after) {
		return nil, ErrPointerTampered
	}

	remaining, err := wt.UnmergedFiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("re-listing unmerged files for %s: %w", branch, err)
	}
	if len(remaining) > 0 {
		return nil, &UnresolvedError{Branch: branch, Files: remaining}
	}

	// The worker may report its own verdict; absence of JSON is fine.
	decision := &mergeDecision{}
	_ = jsonx.Decode(resp.Stdout, decision)
	if decision.Status != store.MergeStatusNeedsManualReview {
		decision.Status = store.MergeStatusOK
	}
	return decision, nil
}

func (t *Tools) failMerge(ctx context.Context, job Job, cause error) error {
	t.Store.RecordMergeFailure(ctx, job.Meta, cause.Error())
	return fmt.Errorf("merge stage: %w", cause)
}
