package stage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/orchard-dev/orchard/internal/store"
	"github.com/orchard-dev/orchard/internal/worker"
)

// rawPlan mirrors the plan schema before normalisation. parallelGroup is
// decoded loosely because workers occasionally emit numbers.
type rawPlan struct {
	CanParallelize bool             `json:"canParallelize"`
	Subtasks       []rawPlanSubtask `json:"subtasks"`
}

type rawPlanSubtask struct {
	ID            string  `json:"id"`
	Title         string  `json:"title"`
	Description   string  `json:"description"`
	ParallelGroup any     `json:"parallelGroup"`
	Context       *string `json:"context"`
	Notes         *string `json:"notes"`
}

// Plan asks the Worker CLI for a deterministic subtask plan. Read-only:
// runs in dir, which is the refactor worktree when refactor ran and the
// repo root otherwise.
func (t *Tools) Plan(ctx context.Context, job Job, userTask, dir string) (*store.Plan, error) {
	if dir == "" {
		dir = job.Meta.RepoRoot
	}

	progress := newProgressReporter(ctx, t.Store, job.Meta, store.ArtifactPlanProgress, "")

	var raw rawPlan
	err := t.runWorker(ctx, "plan", worker.Request{
		Prompt:       planPrompt(userTask),
		Dir:          dir,
		Label:        "plan",
		OnStdoutLine: progress.Line,
		OnStderrLine: progress.Line,
	}, &raw)
	if err != nil {
		return nil, err
	}

	plan, err := normalizePlan(&raw)
	if err != nil {
		return nil, fmt.Errorf("plan stage: %w", err)
	}

	if data, err := json.MarshalIndent(plan, "", "  "); err == nil {
		t.writeStageFile(job, "planner-output.json", data)
	}
	t.Store.RecordPlannerOutput(ctx, job.Meta, plan)
	return plan, nil
}

// normalizePlan validates ids and coerces loose fields into the stored
// plan shape.
func normalizePlan(raw *rawPlan) (*store.Plan, error) {
	plan := &store.Plan{
		CanParallelize: raw.CanParallelize,
		Subtasks:       make([]store.PlanSubtask, 0, len(raw.Subtasks)),
	}

	seen := map[string]bool{}
	for i, sub := range raw.Subtasks {
		id := strings.TrimSpace(sub.ID)
		if id == "" {
			return nil, fmt.Errorf("subtask %d has no id", i)
		}
		if seen[id] {
			return nil, fmt.Errorf("duplicate subtask id %q", id)
		}
		seen[id] = true

		plan.Subtasks = append(plan.Subtasks, store.PlanSubtask{
			ID:            id,
			Title:         strings.TrimSpace(sub.Title),
			Description:   strings.TrimSpace(sub.Description),
			ParallelGroup: coerceGroup(sub.ParallelGroup),
			Context:       sub.Context,
			Notes:         sub.Notes,
		})
	}
	return plan, nil
}

// coerceGroup turns whatever the worker emitted for parallelGroup into a
// string label. Nil and empty values mean "no group".
func coerceGroup(v any) string {
	switch g := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(g)
	case float64:
		if g == float64(int64(g)) {
			return fmt.Sprintf("%d", int64(g))
		}
		return fmt.Sprintf("%g", g)
	case bool:
		return fmt.Sprintf("%t", g)
	default:
		return fmt.Sprintf("%v", g)
	}
}
