package git

import (
	"context"
	"fmt"
	"strings"
)

// Client provides git operations for a specific repository or worktree.
type Client struct {
	// Dir is the working directory all commands run in.
	Dir string

	runner Runner
}

// NewClient creates a git client for the given directory using the system
// git binary.
func NewClient(dir string) *Client {
	return NewClientWithRunner(dir, OSRunner{})
}

// NewClientWithRunner creates a client with an injected runner.
func NewClientWithRunner(dir string, runner Runner) *Client {
	return &Client{Dir: dir, runner: runner}
}

// In returns a client for another directory sharing the same runner.
func (c *Client) In(dir string) *Client {
	return &Client{Dir: dir, runner: c.runner}
}

func (c *Client) exec(ctx context.Context, args ...string) (string, error) {
	return c.runner.Exec(ctx, c.Dir, args...)
}

// BranchExists reports whether a local branch or ref resolves.
func (c *Client) BranchExists(ctx context.Context, name string) bool {
	_, err := c.exec(ctx, "rev-parse", "--verify", "--quiet", name)
	return err == nil
}

// CreateBranchFrom creates a branch pointing at base if it does not
// already exist.
func (c *Client) CreateBranchFrom(ctx context.Context, name, base string) error {
	if c.BranchExists(ctx, name) {
		return nil
	}
	_, err := c.exec(ctx, "branch", name, base)
	return err
}

// CurrentBranch returns the abbreviated ref of HEAD.
func (c *Client) CurrentBranch(ctx context.Context) (string, error) {
	out, err := c.exec(ctx, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// RevParse resolves a ref to its SHA.
func (c *Client) RevParse(ctx context.Context, ref string) (string, error) {
	out, err := c.exec(ctx, "rev-parse", ref)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// WorktreeAdd creates a worktree at path checked out to branch. When
// create is true the branch is created from baseRef as part of the add.
func (c *Client) WorktreeAdd(ctx context.Context, path, branch string, create bool, baseRef string) error {
	args := []string{"worktree", "add"}
	if create {
		args = append(args, "-b", branch, path, baseRef)
	} else {
		args = append(args, path, branch)
	}
	_, err := c.exec(ctx, args...)
	return err
}

// WorktreeRemove force-removes the worktree at path.
func (c *Client) WorktreeRemove(ctx context.Context, path string) error {
	_, err := c.exec(ctx, "worktree", "remove", "--force", path)
	return err
}

// MergeNoCommitNoFF attempts a merge leaving the index and working tree in
// the merged state without committing. The exit code is returned as a
// value so the caller can detect conflicts.
func (c *Client) MergeNoCommitNoFF(ctx context.Context, branch string) (ExecResult, error) {
	return c.runner.ExecStatus(ctx, c.Dir, "merge", "--no-commit", "--no-ff", branch)
}

// UnmergedFiles lists paths still in the unmerged state.
func (c *Client) UnmergedFiles(ctx context.Context) ([]string, error) {
	out, err := c.exec(ctx, "diff", "--name-only", "--diff-filter=U")
	if err != nil {
		return nil, err
	}
	return splitLines(out), nil
}

// IsDirty reports whether the working tree has any uncommitted changes.
func (c *Client) IsDirty(ctx context.Context) (bool, error) {
	out, err := c.exec(ctx, "status", "--porcelain")
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(out) != "", nil
}

// AddAll stages every change in the working tree.
func (c *Client) AddAll(ctx context.Context) error {
	_, err := c.exec(ctx, "add", "-A")
	return err
}

// CommitWithAuthor commits staged changes under the orchestrator identity
// so the commits are identifiable, overriding any repo-level config.
func (c *Client) CommitWithAuthor(ctx context.Context, message, name, email string) error {
	_, err := c.exec(ctx,
		"-c", "user.name="+name,
		"-c", "user.email="+email,
		"commit", "-m", message,
		"--author", fmt.Sprintf("%s <%s>", name, email),
	)
	return err
}

// DiffNamesSinceMergeBase lists files changed on HEAD relative to the
// merge base with base (three-dot diff).
func (c *Client) DiffNamesSinceMergeBase(ctx context.Context, base string) ([]string, error) {
	out, err := c.exec(ctx, "diff", "--name-only", base+"...HEAD")
	if err != nil {
		return nil, err
	}
	return splitLines(out), nil
}

// DiffNamesAgainst lists files that differ between base and HEAD
// (two-dot diff).
func (c *Client) DiffNamesAgainst(ctx context.Context, base string) ([]string, error) {
	out, err := c.exec(ctx, "diff", "--name-only", base+"..HEAD")
	if err != nil {
		return nil, err
	}
	return splitLines(out), nil
}

// Push publishes branch to the named remote.
func (c *Client) Push(ctx context.Context, remote, branch string) error {
	_, err := c.exec(ctx, "push", remote, branch)
	return err
}

func splitLines(out string) []string {
	out = strings.TrimSpace(out)
	if out == "" {
		return []string{}
	}
	lines := strings.Split(out, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	return lines
}
