package stage

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/orchard-dev/orchard/internal/store"
	"github.com/orchard-dev/orchard/internal/worker"
)

// AnalyzeResult is the normalised output of the analyze stage.
type AnalyzeResult struct {
	ShouldRefactor bool        `json:"shouldRefactor"`
	Reasons        []string    `json:"reasons"`
	FocusAreas     []FocusArea `json:"focusAreas"`
	Notes          string      `json:"notes,omitempty"`
}

// FocusArea names a part of the repository the refactor should touch.
type FocusArea struct {
	Path           string `json:"path"`
	Why            string `json:"why"`
	SuggestedSplit string `json:"suggestedSplit,omitempty"`
}

// Analyze asks the Worker CLI whether a preparatory refactor would improve
// parallelisability for the task. Read-only: runs in the repo root without
// a dedicated worktree.
func (t *Tools) Analyze(ctx context.Context, job Job, userTask string) (*AnalyzeResult, error) {
	progress := newProgressReporter(ctx, t.Store, job.Meta, store.ArtifactAnalysisProgress, "")

	var result AnalyzeResult
	err := t.runWorker(ctx, "analyze", worker.Request{
		Prompt:       analyzePrompt(userTask),
		Dir:          job.Meta.RepoRoot,
		Label:        "analyze",
		OnStdoutLine: progress.Line,
		OnStderrLine: progress.Line,
	}, &result)
	if err != nil {
		return nil, err
	}

	normalizeAnalyze(&result)

	if data, err := json.MarshalIndent(&result, "", "  "); err == nil {
		t.writeStageFile(job, "analysis-output.json", data)
	}
	t.Store.RecordAnalysisOutput(ctx, job.Meta, &result)
	return &result, nil
}

func normalizeAnalyze(r *AnalyzeResult) {
	if r.Reasons == nil {
		r.Reasons = []string{}
	}
	if r.FocusAreas == nil {
		r.FocusAreas = []FocusArea{}
	}
	for i := range r.Reasons {
		r.Reasons[i] = strings.TrimSpace(r.Reasons[i])
	}
	for i := range r.FocusAreas {
		r.FocusAreas[i].Path = strings.TrimSpace(r.FocusAreas[i].Path)
	}
	r.Notes = strings.TrimSpace(r.Notes)
}
