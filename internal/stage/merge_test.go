package stage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orchard-dev/orchard/internal/store"
	"github.com/orchard-dev/orchard/internal/worker"
)

// mkResultWorktree pre-creates the result worktree with a .git pointer
// file, as `git worktree add` would.
func (h *testHarness) mkResultWorktree(t *testing.T) string {
	t.Helper()
	path := h.mkWorktree(t, "result")
	require.NoError(t, os.WriteFile(
		filepath.Join(path, ".git"),
		[]byte("gitdir: /repo/.git/worktrees/result\n"), 0o644))
	return path
}

func TestMergeCleanBranches(t *testing.T) {
	h := newHarness(t)
	h.mkResultWorktree(t)
	h.git.stub("status --porcelain", " M a.txt\n")
	h.git.stub("diff --name-only main...HEAD", "a.txt\nb.txt\n")

	result, err := h.tools.Merge(context.Background(), h.job, []MergeInput{
		{SubtaskID: "a", Branch: "task-a-job1", Summary: "did a"},
		{SubtaskID: "b", Branch: "task-b-job1", Summary: "did b"},
	}, false)
	require.NoError(t, err)
	assert.Equal(t, store.MergeStatusOK, result.Status)
	assert.Equal(t, []string{"a.txt", "b.txt"}, result.TouchedFiles)
	assert.Contains(t, result.Notes, "Merged 2 branches")

	assert.True(t, h.git.calledMatching("merge --no-commit --no-ff task-a-job1"))
	assert.True(t, h.git.calledMatching("merge --no-commit --no-ff task-b-job1"))
	assert.True(t, h.git.calledMatching("commit -m Merge branch task-a-job1 into result-job1"))
	assert.False(t, h.git.calledMatching("push"))

	view, err := h.store.JobByID(context.Background(), "job1")
	require.NoError(t, err)
	assert.Equal(t, store.StatusDone, view.Status)
	require.NotNil(t, view.MergeResult)
}

func TestMergeResolvesConflictsViaWorker(t *testing.T) {
	h := newHarness(t)
	h.mkResultWorktree(t)
	h.git.stubFail("merge --no-commit --no-ff feature", "CONFLICT", 1)
	h.git.stub("diff --name-only --diff-filter=U", "conflict.txt\n")
	h.git.stub("diff --name-only --diff-filter=U", "\n")
	h.git.stub("status --porcelain", " M conflict.txt\n")
	h.worker.Reply("conflict markers", `{"status": "ok", "notes": "took both hunks"}`)

	result, err := h.tools.Merge(context.Background(), h.job, []MergeInput{
		{SubtaskID: "f", Branch: "feature"},
	}, false)
	require.NoError(t, err)
	assert.Equal(t, store.MergeStatusOK, result.Status)
	assert.Equal(t, 1, h.worker.CallCount())
	assert.True(t, h.git.calledMatching("(conflicts resolved via Worker CLI)"))
}

func TestMergePointerTamperAborts(t *testing.T) {
	h := newHarness(t)
	resultPath := h.mkResultWorktree(t)
	h.git.stubFail("merge --no-commit --no-ff feature", "CONFLICT", 1)
	h.git.stub("diff --name-only --diff-filter=U", "conflict.txt\n")
	h.worker.On("conflict markers", func(worker.Request) (*worker.Response, error) {
		// Simulate the worker rewriting the pointer file.
		err := os.WriteFile(filepath.Join(resultPath, ".git"), []byte("gitdir: /evil\n"), 0o644)
		require.NoError(t, err)
		return &worker.Response{Stdout: `{"status": "ok"}`}, nil
	})

	_, err := h.tools.Merge(context.Background(), h.job, []MergeInput{
		{SubtaskID: "f", Branch: "feature"},
	}, false)
	require.ErrorIs(t, err, ErrPointerTampered)
	assert.False(t, h.git.calledMatching("commit -m"))

	view, err := h.store.JobByID(context.Background(), "job1")
	require.NoError(t, err)
	assert.Equal(t, store.StatusFailed, view.Status)
	require.NotEmpty(t, view.Artifacts)
	assert.Equal(t, store.ArtifactMergeError, view.Artifacts[0].Type)
}

func TestMergeUnresolvedConflictFails(t *testing.T) {
	h := newHarness(t)
	h.mkResultWorktree(t)
	h.git.stubFail("merge --no-commit --no-ff feature", "CONFLICT", 1)
	h.git.stub("diff --name-only --diff-filter=U", "conflict.txt\n")
	h.git.stub("diff --name-only --diff-filter=U", "conflict.txt\n")
	h.worker.Reply("conflict markers", `{"status": "ok"}`)

	_, err := h.tools.Merge(context.Background(), h.job, []MergeInput{
		{SubtaskID: "f", Branch: "feature"},
	}, false)
	var unresolved *UnresolvedError
	require.ErrorAs(t, err, &unresolved)
	assert.Equal(t, "feature", unresolved.Branch)
	assert.Equal(t, []string{"conflict.txt"}, unresolved.Files)

	view, err := h.store.JobByID(context.Background(), "job1")
	require.NoError(t, err)
	assert.Equal(t, store.StatusFailed, view.Status)
}

func TestMergeWorkerReportsManualReview(t *testing.T) {
	h := newHarness(t)
	h.mkResultWorktree(t)
	h.git.stubFail("merge --no-commit --no-ff feature", "CONFLICT", 1)
	h.git.stub("diff --name-only --diff-filter=U", "conflict.txt\n")
	h.git.stub("diff --name-only --diff-filter=U", "\n")
	h.git.stub("status --porcelain", " M conflict.txt\n")
	h.worker.Reply("conflict markers",
		`{"status": "needs_manual_review", "notes": "ambiguous business logic"}`)

	result, err := h.tools.Merge(context.Background(), h.job, []MergeInput{
		{SubtaskID: "f", Branch: "feature"},
	}, false)
	require.NoError(t, err)
	assert.Equal(t, store.MergeStatusNeedsManualReview, result.Status)
	assert.Contains(t, result.Notes, "ambiguous business logic")

	view, err := h.store.JobByID(context.Background(), "job1")
	require.NoError(t, err)
	assert.Equal(t, store.StatusNeedsManualReview, view.Status)
}

func TestMergePushOnSuccess(t *testing.T) {
	h := newHarness(t)
	h.mkResultWorktree(t)
	h.git.stub("status --porcelain", " M a.txt\n")
	h.git.stub("diff --name-only main...HEAD", "a.txt\n")

	result, err := h.tools.Merge(context.Background(), h.job, []MergeInput{
		{SubtaskID: "a", Branch: "task-a-job1"},
	}, true)
	require.NoError(t, err)
	assert.Contains(t, result.Notes, "pushed")
	assert.Equal(t, 1, h.git.countMatching("push origin result-job1"))
}
