package pipeline

import (
	"context"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orchard-dev/orchard/internal/config"
	"github.com/orchard-dev/orchard/internal/store"
)

func TestSanitizeJobID(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"job-20250101-120000", "job-20250101-120000"},
		{"my job!", "my-job"},
		{"a/b/c", "a-b-c"},
		{"..dots..", "dots"},
		{"under_score.ok", "under_score.ok"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SanitizeJobID(tt.in))
	}
}

func TestSanitizeJobIDEmptyFallsBackToTimestamp(t *testing.T) {
	got := SanitizeJobID("///")
	assert.Regexp(t, regexp.MustCompile(`^job-\d{8}-\d{6}$`), got)
}

func TestResolveContextDerivesLayout(t *testing.T) {
	h := newHarness(t)

	jc, err := h.engine.resolveContext(context.Background(), "do the thing\nwith details", Options{
		RepoRoot:   h.repo,
		BaseBranch: "develop",
		JobID:      "job7",
	})
	require.NoError(t, err)
	assert.Equal(t, "job7", jc.Meta.ID)
	assert.Equal(t, h.repo, jc.Meta.RepoRoot)
	assert.Equal(t, "develop", jc.Meta.BaseBranch)
	assert.Equal(t, "do the thing", jc.Meta.TaskDescription)
	assert.Equal(t, "result-job7", jc.resultBranch)
	assert.Contains(t, jc.JobsRoot, ".codex/jobs/job7")
	assert.Contains(t, jc.WorktreesRoot, "worktrees")
}

func TestResolveBaseBranchPrecedence(t *testing.T) {
	h := newHarness(t)
	h.git.stub("rev-parse --abbrev-ref HEAD", "feature-branch\n")

	// HEAD detection when nothing explicit is set.
	jc, err := h.engine.resolveContext(context.Background(), "t", Options{RepoRoot: h.repo})
	require.NoError(t, err)
	assert.Equal(t, "feature-branch", jc.Meta.BaseBranch)

	// Explicit configuration beats HEAD.
	cfg := config.Default()
	cfg.BaseBranch = "trunk"
	cfg.BaseBranchExplicit = true
	engine := New(cfg, h.engine.deps)
	jc, err = engine.resolveContext(context.Background(), "t", Options{RepoRoot: h.repo})
	require.NoError(t, err)
	assert.Equal(t, "trunk", jc.Meta.BaseBranch)

	// CLI override beats everything.
	jc, err = engine.resolveContext(context.Background(), "t", Options{RepoRoot: h.repo, BaseBranch: "cli"})
	require.NoError(t, err)
	assert.Equal(t, "cli", jc.Meta.BaseBranch)
}

func TestResolveBaseBranchDetachedHeadFallsBack(t *testing.T) {
	h := newHarness(t)
	h.git.stub("rev-parse --abbrev-ref HEAD", "HEAD\n")

	jc, err := h.engine.resolveContext(context.Background(), "t", Options{RepoRoot: h.repo})
	require.NoError(t, err)
	assert.Equal(t, config.DefaultBaseBranch, jc.Meta.BaseBranch)
}

func TestAssignSlugsUnique(t *testing.T) {
	slugs := assignSlugs([]store.PlanSubtask{
		{ID: "Add Auth"},
		{ID: "add-auth"},
		{ID: "add auth"},
		{ID: "???"},
	})
	assert.Equal(t, "add-auth", slugs["Add Auth"])
	assert.Equal(t, "add-auth-2", slugs["add-auth"])
	assert.Equal(t, "add-auth-3", slugs["add auth"])
	assert.Equal(t, "subtask", slugs["???"])

	seen := map[string]bool{}
	for _, slug := range slugs {
		assert.False(t, seen[slug], "slug %s assigned twice", slug)
		seen[slug] = true
	}
}
