package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/orchard-dev/orchard/internal/git"
	"github.com/orchard-dev/orchard/internal/stage"
	"github.com/orchard-dev/orchard/internal/store"
)

// taskDescriptionLimit caps the human-readable job description.
const taskDescriptionLimit = 120

var jobIDInvalid = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// jobContext carries everything the engine derives before the first stage
// runs.
type jobContext struct {
	stage.Job
	git          *git.Client
	resultBranch string
}

// resolveContext builds the job context: effective repo root, base branch,
// job id, and the per-job directory layout under .codex/jobs/<jobId>.
func (e *Engine) resolveContext(ctx context.Context, userTask string, opts Options) (*jobContext, error) {
	repoRoot, err := stage.ResolveRoot("", opts.RepoRoot, e.cfg.BaseDir)
	if err != nil {
		return nil, fmt.Errorf("resolving repo root: %w", err)
	}
	g := git.NewClientWithRunner(repoRoot, e.gitRunner())

	baseBranch := e.resolveBaseBranch(ctx, g, opts)
	jobID := e.resolveJobID(opts)

	jobsRoot := filepath.Join(repoRoot, ".codex", "jobs", jobID)
	return &jobContext{
		Job: stage.Job{
			Meta: store.JobMeta{
				ID:              jobID,
				RepoRoot:        repoRoot,
				BaseBranch:      baseBranch,
				TaskDescription: describeTask(userTask),
				UserTask:        userTask,
				PushResult:      opts.PushResult,
			},
			JobsRoot:      jobsRoot,
			WorktreesRoot: filepath.Join(jobsRoot, "worktrees"),
		},
		git:          g,
		resultBranch: git.SanitizeBranch("result-" + jobID),
	}, nil
}

// resolveBaseBranch picks the base branch: CLI override, explicit
// configuration, repository HEAD, then the configured default.
func (e *Engine) resolveBaseBranch(ctx context.Context, g *git.Client, opts Options) string {
	if opts.BaseBranch != "" {
		return opts.BaseBranch
	}
	if e.cfg.BaseBranchExplicit {
		return e.cfg.BaseBranch
	}
	if head, err := g.CurrentBranch(ctx); err == nil && head != "" && head != "HEAD" {
		return head
	}
	return e.cfg.BaseBranch
}

// resolveJobID accepts an explicit id or generates job-YYYYMMDD-HHMMSS,
// sanitised to [A-Za-z0-9._-].
func (e *Engine) resolveJobID(opts Options) string {
	id := opts.JobID
	if id == "" {
		id = e.cfg.JobID
	}
	if id == "" {
		id = "job-" + e.now().Format("20060102-150405")
	}
	return SanitizeJobID(id)
}

// SanitizeJobID replaces runs of characters outside [A-Za-z0-9._-] with a
// dash and trims dashes and dots.
func SanitizeJobID(id string) string {
	id = jobIDInvalid.ReplaceAllString(id, "-")
	id = strings.Trim(id, "-.")
	if id == "" {
		id = "job-" + time.Now().Format("20060102-150405")
	}
	return id
}

// describeTask squeezes the user task into a one-line description.
func describeTask(userTask string) string {
	line := strings.TrimSpace(userTask)
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = strings.TrimSpace(line[:i])
	}
	if len(line) > taskDescriptionLimit {
		line = line[:taskDescriptionLimit]
	}
	return line
}

// assignSlugs derives a unique worktree slug per subtask: the lowercased
// id with non-alphanumerics collapsed to dashes, suffixed -2, -3, ... on
// collision.
func assignSlugs(subtasks []store.PlanSubtask) map[string]string {
	slugs := make(map[string]string, len(subtasks))
	taken := make(map[string]bool, len(subtasks))
	for _, sub := range subtasks {
		base := slugify(sub.ID)
		slug := base
		for n := 2; taken[slug]; n++ {
			slug = fmt.Sprintf("%s-%d", base, n)
		}
		taken[slug] = true
		slugs[sub.ID] = slug
	}
	return slugs
}

var slugInvalid = regexp.MustCompile(`[^a-z0-9]+`)

func slugify(id string) string {
	slug := slugInvalid.ReplaceAllString(strings.ToLower(id), "-")
	slug = strings.Trim(slug, "-")
	if slug == "" {
		slug = "subtask"
	}
	return slug
}
