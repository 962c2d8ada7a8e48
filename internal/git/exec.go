// Package git wraps the git subcommands the pipeline engine relies on.
//
// Every operation is bound to one working directory; the engine never runs
// two operations with the same directory concurrently.
package git

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// ExecError reports a git command that exited non-zero.
type ExecError struct {
	Args     []string
	ExitCode int
	Stdout   string
	Stderr   string
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("git %s failed (exit %d): %s",
		strings.Join(e.Args, " "), e.ExitCode, strings.TrimSpace(e.Stderr))
}

// ExecResult carries the outcome of a command run in allow-non-zero mode,
// so callers can branch on the exit code instead of handling an error.
// Merge conflict detection depends on this.
type ExecResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Runner executes git commands. Tests substitute a fake.
type Runner interface {
	// Exec runs git in dir and returns stdout, failing with *ExecError
	// on non-zero exit.
	Exec(ctx context.Context, dir string, args ...string) (string, error)

	// ExecStatus runs git in dir and returns the exit code as a value;
	// the error is reserved for spawn failures.
	ExecStatus(ctx context.Context, dir string, args ...string) (ExecResult, error)
}

// OSRunner executes real git commands via the system git binary.
type OSRunner struct{}

func (OSRunner) Exec(ctx context.Context, dir string, args ...string) (string, error) {
	result, err := run(ctx, dir, args)
	if err != nil {
		return "", err
	}
	if result.ExitCode != 0 {
		return "", &ExecError{
			Args:     args,
			ExitCode: result.ExitCode,
			Stdout:   result.Stdout,
			Stderr:   result.Stderr,
		}
	}
	return result.Stdout, nil
}

func (OSRunner) ExecStatus(ctx context.Context, dir string, args ...string) (ExecResult, error) {
	return run(ctx, dir, args)
}

func run(ctx context.Context, dir string, args []string) (ExecResult, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := ExecResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
	if err != nil {
		exitErr, ok := err.(*exec.ExitError)
		if !ok {
			return result, fmt.Errorf("git %s: %w", strings.Join(args, " "), err)
		}
		result.ExitCode = exitErr.ExitCode()
	}
	return result, nil
}
