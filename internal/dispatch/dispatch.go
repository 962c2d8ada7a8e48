// Package dispatch feeds user tasks from ordered sources into the
// pipeline engine, one at a time.
package dispatch

import (
	"context"
	"time"

	"github.com/orchard-dev/orchard/internal/pipeline"
)

// DefaultPollInterval is how long the loop sleeps after an empty pass.
const DefaultPollInterval = 5 * time.Second

// Task is one unit of ingested work.
type Task struct {
	// ID identifies the task within its source (queue position, message
	// id, and so on).
	ID string

	// Text is the natural-language user task.
	Text string
}

// Source produces tasks and acknowledges their outcome.
type Source interface {
	// Next returns the next task, or nil when the source is empty.
	Next(ctx context.Context) (*Task, error)

	// MarkDone acknowledges a successfully processed task.
	MarkDone(ctx context.Context, task *Task) error

	// MarkFailed acknowledges a task whose job failed.
	MarkFailed(ctx context.Context, task *Task, cause error) error
}

// Reporter observes dispatcher lifecycle events.
type Reporter interface {
	OnStart(task *Task)
	OnSuccess(task *Task, report *pipeline.Report)
	OnFailure(task *Task, err error)
	OnIdle()
}

// NopReporter ignores every event.
type NopReporter struct{}

func (NopReporter) OnStart(*Task)                     {}
func (NopReporter) OnSuccess(*Task, *pipeline.Report) {}
func (NopReporter) OnFailure(*Task, error)            {}
func (NopReporter) OnIdle()                           {}

// JobRunner executes one user task to completion.
type JobRunner func(ctx context.Context, userTask string) (*pipeline.Report, error)

// Options tune the polling loop.
type Options struct {
	// StopWhenEmpty exits after the first pass in which every source is
	// empty.
	StopWhenEmpty bool

	// PollInterval is the sleep between empty passes. Zero means
	// DefaultPollInterval.
	PollInterval time.Duration
}

// Dispatcher polls sources in priority order and runs tasks
// synchronously.
type Dispatcher struct {
	sources  []Source
	runner   JobRunner
	reporter Reporter
}

// New builds a dispatcher. A nil reporter is replaced by NopReporter.
func New(runner JobRunner, reporter Reporter, sources ...Source) *Dispatcher {
	if reporter == nil {
		reporter = NopReporter{}
	}
	return &Dispatcher{sources: sources, runner: runner, reporter: reporter}
}

// Run polls until ctx is cancelled or, with StopWhenEmpty, until a full
// pass yields no task. After each processed task polling restarts from
// the first source, so earlier sources keep priority.
func (d *Dispatcher) Run(ctx context.Context, opts Options) error {
	interval := opts.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	for {
		processed, err := d.pass(ctx)
		if err != nil {
			return err
		}
		if processed {
			continue
		}

		d.reporter.OnIdle()
		if opts.StopWhenEmpty {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}

// pass polls each source once in order and processes at most one task.
func (d *Dispatcher) pass(ctx context.Context) (bool, error) {
	for _, source := range d.sources {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		task, err := source.Next(ctx)
		if err != nil {
			return false, err
		}
		if task == nil {
			continue
		}
		d.process(ctx, source, task)
		return true, nil
	}
	return false, nil
}

func (d *Dispatcher) process(ctx context.Context, source Source, task *Task) {
	d.reporter.OnStart(task)
	report, err := d.runner(ctx, task.Text)
	if err != nil {
		d.reporter.OnFailure(task, err)
		_ = source.MarkFailed(ctx, task, err)
		return
	}
	d.reporter.OnSuccess(task, report)
	_ = source.MarkDone(ctx, task)
}
