// Package worker invokes the external code-editing CLI.
//
// The CLI is a black box: it accepts a prompt and a working directory,
// edits files, and prints text that ends with a JSON object. The client
// returns captured output even on non-zero exit so stages can recover an
// embedded result from a failed run.
package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/orchard-dev/orchard/internal/runner"
)

// Request describes one Worker CLI invocation.
type Request struct {
	// Prompt is the stage prompt passed as the final argument.
	Prompt string

	// Dir is the working directory the CLI edits in.
	Dir string

	// Label tags log lines from this invocation.
	Label string

	// OnStdoutLine and OnStderrLine receive completed output lines for
	// live-progress capture.
	OnStdoutLine func(line string)
	OnStderrLine func(line string)
}

// Response is the captured output of a finished invocation. On non-zero
// exit both buffers are still populated.
type Response struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Client runs the Worker CLI.
type Client interface {
	Exec(ctx context.Context, req Request) (*Response, error)
}

// CLIClient invokes the real Worker CLI binary through a process runner.
type CLIClient struct {
	command string
	effort  string
	runner  runner.Runner
}

// NewCLIClient builds a client for the given binary. reasoningEffort may
// be empty to omit the model config flag.
func NewCLIClient(command, reasoningEffort string, r runner.Runner) *CLIClient {
	return &CLIClient{command: command, effort: reasoningEffort, runner: r}
}

// Exec runs `<command> exec --full-auto [--config ...] <prompt>` in
// req.Dir. A non-zero exit returns the populated Response together with
// the *runner.ExitError so callers can still parse the output.
func (c *CLIClient) Exec(ctx context.Context, req Request) (*Response, error) {
	args := []string{"exec", "--full-auto"}
	if c.effort != "" {
		args = append(args, "--config", fmt.Sprintf("model_reasoning_effort=%q", c.effort))
	}
	args = append(args, req.Prompt)

	result, err := c.runner.Run(ctx, runner.Spec{
		Command:      c.command,
		Args:         args,
		Dir:          req.Dir,
		Label:        req.Label,
		OnStdoutLine: req.OnStdoutLine,
		OnStderrLine: req.OnStderrLine,
	})
	if result == nil {
		return nil, err
	}

	resp := &Response{
		Stdout:   result.Stdout,
		Stderr:   result.Stderr,
		ExitCode: result.ExitCode,
	}
	if err != nil {
		var exitErr *runner.ExitError
		if errors.As(err, &exitErr) {
			return resp, err
		}
		return nil, err
	}
	return resp, nil
}
