// Package pipeline drives one job from intake to terminal status: optional
// analyze/refactor, planning, batched parallel subtask execution, and the
// final merge into the per-job result branch.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/term"

	"github.com/orchard-dev/orchard/internal/config"
	"github.com/orchard-dev/orchard/internal/git"
	"github.com/orchard-dev/orchard/internal/runner"
	"github.com/orchard-dev/orchard/internal/stage"
	"github.com/orchard-dev/orchard/internal/store"
	"github.com/orchard-dev/orchard/internal/worker"
)

// Options are the per-job overrides accepted by RunJob.
type Options struct {
	// RepoRoot overrides repository root detection.
	RepoRoot string

	// BaseBranch overrides base branch detection.
	BaseBranch string

	// JobID overrides job id generation.
	JobID string

	// PushResult pushes the result branch to origin after a clean merge.
	PushResult bool

	// EnablePrefactor runs the analyze and refactor stages before planning.
	EnablePrefactor bool

	// Verbose tees Worker CLI output to the terminal.
	Verbose bool
}

// Report is the final outcome of one job run.
type Report struct {
	JobID      string
	RepoRoot   string
	BaseBranch string
	Status     store.JobStatus
	Merge      *store.MergeResult
	Failure    string
}

// Dependencies are the engine's injectable collaborators. Store is
// required; nil Worker and GitRunner fall back to the real CLI and the
// system git binary.
type Dependencies struct {
	Store     *store.Store
	Worker    worker.Client
	GitRunner git.Runner
	Now       func() time.Time
}

// Engine runs jobs one at a time.
type Engine struct {
	cfg  config.Config
	deps Dependencies
}

// New builds an engine from configuration and dependencies.
func New(cfg config.Config, deps Dependencies) *Engine {
	return &Engine{cfg: cfg, deps: deps}
}

func (e *Engine) now() time.Time {
	if e.deps.Now != nil {
		return e.deps.Now()
	}
	return time.Now()
}

func (e *Engine) gitRunner() git.Runner {
	if e.deps.GitRunner != nil {
		return e.deps.GitRunner
	}
	return git.OSRunner{}
}

// RunJob executes one job for userTask and returns its final report. The
// returned error is non-nil when the job did not reach a clean terminal
// status.
func (e *Engine) RunJob(ctx context.Context, userTask string, opts Options) (*Report, error) {
	jc, err := e.resolveContext(ctx, userTask, opts)
	if err != nil {
		return nil, err
	}
	st := e.deps.Store
	report := &Report{
		JobID:      jc.Meta.ID,
		RepoRoot:   jc.Meta.RepoRoot,
		BaseBranch: jc.Meta.BaseBranch,
	}

	// Re-running a finished job is a no-op.
	if status, err := st.JobStatusOf(ctx, jc.Meta.ID); err == nil && status.Terminal() {
		report.Status = status
		return report, nil
	}

	workerClient, jobLog := e.buildWorker(jc, opts)
	if jobLog != nil {
		defer jobLog.Close()
	}
	defer func() {
		// The backstop must land even when ctx was cancelled mid-job.
		bg := context.WithoutCancel(ctx)
		st.EnsureTerminalJobStatus(bg, jc.Meta.ID, store.StatusDone)
		if status, err := st.JobStatusOf(bg, jc.Meta.ID); err == nil && status != "" {
			report.Status = status
		}
	}()

	tools := &stage.Tools{
		Worker: workerClient,
		Git:    jc.git,
		Store:  st,
	}

	planDir := ""
	if opts.EnablePrefactor {
		analysis, err := tools.Analyze(ctx, jc.Job, userTask)
		if err != nil {
			return report, e.failJob(ctx, jc, report, "analyze", err)
		}
		if analysis.ShouldRefactor {
			refactor, err := tools.Refactor(ctx, jc.Job, userTask, analysis)
			if err != nil {
				return report, e.failJob(ctx, jc, report, "refactor", err)
			}
			if refactor.Status == "ok" {
				planDir = refactor.WorktreePath
			}
		}
	}

	plan, err := tools.Plan(ctx, jc.Job, userTask, planDir)
	if err != nil {
		return report, e.failJob(ctx, jc, report, "plan", err)
	}

	if len(plan.Subtasks) == 0 {
		empty := &store.MergeResult{
			Status:       store.MergeStatusOK,
			Notes:        "No subtasks planned; nothing to merge",
			TouchedFiles: []string{},
		}
		st.RecordMergeResult(ctx, jc.Meta, empty)
		report.Merge = empty
		return report, nil
	}

	slugs := assignSlugs(plan.Subtasks)
	results := make(map[string]*stage.SubtaskResult, len(plan.Subtasks))

	for _, batch := range buildBatches(plan) {
		outcomes := e.runBatch(ctx, tools, jc, userTask, batch, slugs)
		failed := false
		for _, out := range outcomes {
			if out.err != nil {
				failed = true
				report.Failure = fmt.Sprintf("subtask %s: %v", out.id, out.err)
				continue
			}
			results[out.id] = out.result
			if !out.result.OK() {
				failed = true
				report.Failure = fmt.Sprintf("subtask %s failed: %s", out.id, out.result.Summary)
			}
		}
		if failed {
			// Finish the batch, then stop: no later batches, no merge.
			st.MarkJobStatus(ctx, jc.Meta, store.StatusFailed)
			return report, fmt.Errorf("job %s: %s", jc.Meta.ID, report.Failure)
		}
	}

	inputs := make([]stage.MergeInput, 0, len(plan.Subtasks))
	for _, sub := range plan.Subtasks {
		result := results[sub.ID]
		inputs = append(inputs, stage.MergeInput{
			SubtaskID: sub.ID,
			Branch:    result.Branch,
			Summary:   result.Summary,
		})
	}

	mergeResult, err := tools.Merge(ctx, jc.Job, inputs, opts.PushResult)
	if err != nil {
		report.Failure = err.Error()
		return report, fmt.Errorf("job %s: %w", jc.Meta.ID, err)
	}
	report.Merge = mergeResult
	return report, nil
}

// subtaskOutcome is the result of one subtask within a batch.
type subtaskOutcome struct {
	id     string
	result *stage.SubtaskResult
	err    error
}

// runBatch executes every subtask of one batch concurrently and joins
// before returning. Subtasks never observe each other's state.
func (e *Engine) runBatch(ctx context.Context, tools *stage.Tools, jc *jobContext, userTask string, batch []store.PlanSubtask, slugs map[string]string) []subtaskOutcome {
	outcomes := make([]subtaskOutcome, len(batch))

	var wg sync.WaitGroup
	for i, sub := range batch {
		wg.Add(1)
		go func(i int, sub store.PlanSubtask) {
			defer wg.Done()
			result, err := tools.RunSubtask(ctx, jc.Job, userTask, sub, slugs[sub.ID])
			outcomes[i] = subtaskOutcome{id: sub.ID, result: result, err: err}
		}(i, sub)
	}
	wg.Wait()
	return outcomes
}

// buildWorker returns the worker client and, when the real CLI is used,
// the job log sink feeding it.
func (e *Engine) buildWorker(jc *jobContext, opts Options) (worker.Client, *runner.JobLog) {
	if e.deps.Worker != nil {
		return e.deps.Worker, nil
	}

	jobLog, err := runner.OpenJobLog(filepath.Join(jc.JobsRoot, "orchestrator.log"))
	if err != nil {
		jobLog = nil
	}

	var sinks []runner.LineSink
	if jobLog != nil {
		sinks = append(sinks, jobLog)
	}
	if e.teeEnabled(opts, jobLog != nil) {
		sinks = append(sinks, runner.NewTerminalSink(os.Stderr))
	}

	client := worker.NewCLIClient(e.cfg.WorkerCommand, e.cfg.ReasoningEffort, runner.New(sinks...))
	return client, jobLog
}

// teeEnabled applies the tee policy: explicit overrides win, otherwise
// tee is off while a job log is active and on when stderr is a terminal.
func (e *Engine) teeEnabled(opts Options, jobLogActive bool) bool {
	switch e.cfg.Tee {
	case config.TeeOn:
		return true
	case config.TeeOff:
		return false
	}
	if opts.Verbose {
		return true
	}
	if jobLogActive {
		return false
	}
	return term.IsTerminal(int(os.Stderr.Fd()))
}

func (e *Engine) failJob(ctx context.Context, jc *jobContext, report *Report, stageName string, cause error) error {
	e.deps.Store.MarkJobStatus(ctx, jc.Meta, store.StatusFailed)
	report.Failure = fmt.Sprintf("%s stage: %v", stageName, cause)
	return fmt.Errorf("job %s: %s stage: %w", jc.Meta.ID, stageName, cause)
}
