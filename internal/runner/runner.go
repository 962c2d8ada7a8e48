// Package runner spawns and supervises child processes for the pipeline.
//
// Each stream is split into lines and fanned out to the configured sinks
// (job log, terminal tee) and per-invocation callbacks, while a bounded
// tail of the raw output is retained for JSON extraction.
package runner

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// DefaultCaptureLimit bounds the retained stdout/stderr tails (2 MiB). The
// final JSON object always appears near the end of output, so keeping the
// tail is sufficient even for very verbose runs.
const DefaultCaptureLimit = 2 << 20

// terminateGrace is how long a cancelled child gets between SIGTERM and
// SIGKILL.
const terminateGrace = 10 * time.Second

// Stream identifies which output stream a line came from.
type Stream int

const (
	Stdout Stream = iota
	Stderr
)

// Spec describes one child process invocation.
type Spec struct {
	// Command is the binary to execute.
	Command string

	// Args are the command arguments.
	Args []string

	// Dir is the working directory for the child.
	Dir string

	// Label tags every line emitted by this invocation.
	Label string

	// CaptureLimit bounds the retained output tails. Zero means
	// DefaultCaptureLimit.
	CaptureLimit int

	// OnStdoutLine receives each completed stdout line, if set.
	OnStdoutLine func(line string)

	// OnStderrLine receives each completed stderr line, if set.
	OnStderrLine func(line string)
}

// Result holds the captured output of a finished child.
type Result struct {
	// Stdout is the retained tail of standard output.
	Stdout string

	// Stderr is the retained tail of standard error.
	Stderr string

	// ExitCode is the child's exit status (0 on success).
	ExitCode int
}

// ExitError reports a child that exited non-zero or was killed by a
// signal. Captured output is preserved so callers can still extract an
// embedded JSON object.
type ExitError struct {
	Code   int
	Signal string
	Stdout string
	Stderr string
}

func (e *ExitError) Error() string {
	if e.Signal != "" {
		return fmt.Sprintf("process terminated by signal %s", e.Signal)
	}
	return fmt.Sprintf("process exited with code %d", e.Code)
}

// Runner executes child processes.
type Runner interface {
	Run(ctx context.Context, spec Spec) (*Result, error)
}

// ExecRunner runs real subprocesses, teeing their output to a sink.
type ExecRunner struct {
	sink LineSink
}

// New creates an ExecRunner fanning output lines to the given sinks.
func New(sinks ...LineSink) *ExecRunner {
	return &ExecRunner{sink: Fanout(sinks...)}
}

// Run spawns the child described by spec with stdin closed, splits stdout
// and stderr into lines, and waits for exit. Context cancellation sends
// SIGTERM and awaits the child.
func (r *ExecRunner) Run(ctx context.Context, spec Spec) (*Result, error) {
	limit := spec.CaptureLimit
	if limit <= 0 {
		limit = DefaultCaptureLimit
	}

	cmd := exec.CommandContext(ctx, spec.Command, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = terminateGrace

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, fmt.Errorf("worker binary %q not found: %w", spec.Command, err)
		}
		return nil, fmt.Errorf("starting %s: %w", spec.Command, err)
	}

	stdoutTail := newTailBuffer(limit)
	stderrTail := newTailBuffer(limit)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		r.consume(stdoutPipe, Stdout, spec, stdoutTail, spec.OnStdoutLine)
	}()
	go func() {
		defer wg.Done()
		r.consume(stderrPipe, Stderr, spec, stderrTail, spec.OnStderrLine)
	}()
	wg.Wait()

	waitErr := cmd.Wait()

	result := &Result{
		Stdout: stdoutTail.String(),
		Stderr: stderrTail.String(),
	}

	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			procErr := &ExitError{
				Code:   exitErr.ExitCode(),
				Stdout: result.Stdout,
				Stderr: result.Stderr,
			}
			if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
				procErr.Signal = status.Signal().String()
			}
			result.ExitCode = procErr.Code
			return result, procErr
		}
		return result, fmt.Errorf("waiting for %s: %w", spec.Command, waitErr)
	}

	return result, nil
}

// consume splits one stream into lines, retaining the raw bytes in tail
// and dispatching each completed line to the sink and callback.
func (r *ExecRunner) consume(pipe io.Reader, stream Stream, spec Spec, tail *tailBuffer, onLine func(string)) {
	reader := bufio.NewReader(pipe)
	for {
		line, err := reader.ReadString('\n')
		if line != "" {
			tail.WriteString(line)
			text := trimNewline(line)
			r.sink.WriteLine(Line{
				Time:   time.Now(),
				Stream: stream,
				Label:  spec.Label,
				Text:   text,
			})
			if onLine != nil {
				onLine(text)
			}
		}
		if err != nil {
			return
		}
	}
}

func trimNewline(s string) string {
	if n := len(s); n > 0 && s[n-1] == '\n' {
		s = s[:n-1]
		if n := len(s); n > 0 && s[n-1] == '\r' {
			s = s[:n-1]
		}
	}
	return s
}

// tailBuffer retains the most recent limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	limit int
	buf   []byte
}

func newTailBuffer(limit int) *tailBuffer {
	return &tailBuffer{limit: limit}
}

// WriteString appends s, discarding the oldest bytes beyond the limit.
func (b *tailBuffer) WriteString(s string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, s...)
	if overflow := len(b.buf) - b.limit; overflow > 0 {
		b.buf = append(b.buf[:0], b.buf[overflow:]...)
	}
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}
