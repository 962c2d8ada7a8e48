// Package stage implements the five pipeline stages: analyze, refactor,
// plan, run-subtask, and merge. Each stage builds a prompt, drives the
// Worker CLI in the right directory, normalises the JSON it emits, and
// persists the outcome through the state store.
package stage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/orchard-dev/orchard/internal/git"
	"github.com/orchard-dev/orchard/internal/jsonx"
	"github.com/orchard-dev/orchard/internal/store"
	"github.com/orchard-dev/orchard/internal/worker"
)

// Orchestrator author identity used for every commit the engine makes, so
// they are distinguishable from human commits.
const (
	AuthorName  = "Orchard Orchestrator"
	AuthorEmail = "orchestrator@localhost"
)

// errTruncateLimit caps child output embedded in error messages.
const errTruncateLimit = 2000

// Tools bundles the dependencies every stage needs. The worker client and
// git runner are injected so tests can substitute fakes.
type Tools struct {
	Worker worker.Client
	Git    *git.Client
	Store  *store.Store
}

// Job carries the per-job context stages operate under.
type Job struct {
	// Meta identifies the job row in the store.
	Meta store.JobMeta

	// JobsRoot is <repo>/.codex/jobs/<jobId>.
	JobsRoot string

	// WorktreesRoot is <JobsRoot>/worktrees.
	WorktreesRoot string
}

// InvalidRootError reports a repository or worktree path that does not
// exist.
type InvalidRootError struct {
	Path string
}

func (e *InvalidRootError) Error() string {
	return fmt.Sprintf("stage root %q does not exist", e.Path)
}

// ParseError reports Worker CLI output from which no JSON object could be
// recovered. Output is truncated so error messages stay readable.
type ParseError struct {
	Stage  string
	Stdout string
	Stderr string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s stage: no JSON object in worker output (stdout: %s) (stderr: %s)",
		e.Stage, truncate(e.Stdout, errTruncateLimit), truncate(e.Stderr, errTruncateLimit))
}

// ResolveRoot resolves the effective repository root for a stage.
// Precedence: context repo root, then an absolute project root, then
// projectRoot joined to baseDir, then the current working directory. When
// a context root is present, relative project roots resolve inside it and
// paths escaping it are rejected in favour of the context root.
func ResolveRoot(contextRoot, projectRoot, baseDir string) (string, error) {
	var root string
	switch {
	case contextRoot != "":
		root = contextRoot
		if projectRoot != "" {
			candidate := projectRoot
			if !filepath.IsAbs(candidate) {
				candidate = filepath.Join(contextRoot, candidate)
			}
			if within(contextRoot, candidate) {
				root = candidate
			}
		}
	case projectRoot != "" && filepath.IsAbs(projectRoot):
		root = projectRoot
	case projectRoot != "" && baseDir != "":
		root = filepath.Join(baseDir, projectRoot)
	case projectRoot != "":
		root = projectRoot
	default:
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("resolving working directory: %w", err)
		}
		root = cwd
	}

	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return "", &InvalidRootError{Path: root}
	}
	return root, nil
}

// within reports whether path is root or inside it.
func within(root, path string) bool {
	rel, err := filepath.Rel(filepath.Clean(root), filepath.Clean(path))
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// ensureWorktree checks out branch at path, creating the branch from base
// when it does not exist yet. An existing directory is reused as-is.
func (t *Tools) ensureWorktree(ctx context.Context, path, branch, base string) (*git.Client, error) {
	if _, err := os.Stat(path); err == nil {
		return t.Git.In(path), nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating worktrees dir: %w", err)
	}
	if t.Git.BranchExists(ctx, branch) {
		if err := t.Git.WorktreeAdd(ctx, path, branch, false, ""); err != nil {
			return nil, fmt.Errorf("adding worktree for %s: %w", branch, err)
		}
	} else {
		if err := t.Git.WorktreeAdd(ctx, path, branch, true, base); err != nil {
			return nil, fmt.Errorf("adding worktree for %s from %s: %w", branch, base, err)
		}
	}
	return t.Git.In(path), nil
}

// runWorker drives one Worker CLI invocation and recovers its JSON
// payload. On non-zero exit the combined stdout/stderr are still
// searched, so a failure-flagged result survives a bad exit code.
func (t *Tools) runWorker(ctx context.Context, stageName string, req worker.Request, out any) error {
	resp, err := t.Worker.Exec(ctx, req)
	if resp == nil {
		return fmt.Errorf("%s stage: %w", stageName, err)
	}

	if jsonErr := jsonx.Decode(resp.Stdout, out); jsonErr == nil {
		return nil
	}
	if jsonErr := jsonx.Decode(resp.Stderr, out); jsonErr == nil {
		return nil
	}
	return &ParseError{Stage: stageName, Stdout: resp.Stdout, Stderr: resp.Stderr}
}

// commitIfDirty stages and commits any uncommitted edits the Worker CLI
// left behind, under the orchestrator identity.
func commitIfDirty(ctx context.Context, wt *git.Client, message string) error {
	dirty, err := wt.IsDirty(ctx)
	if err != nil {
		return err
	}
	if !dirty {
		return nil
	}
	if err := wt.AddAll(ctx); err != nil {
		return err
	}
	return wt.CommitWithAuthor(ctx, message, AuthorName, AuthorEmail)
}

// writeStageFile drops a stage's raw JSON into the job directory for
// offline inspection. Failures are non-fatal.
func (t *Tools) writeStageFile(job Job, name string, data []byte) {
	if job.JobsRoot == "" {
		return
	}
	if err := os.MkdirAll(job.JobsRoot, 0o755); err != nil {
		return
	}
	_ = os.WriteFile(filepath.Join(job.JobsRoot, name), data, 0o644)
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "…(truncated)"
}
