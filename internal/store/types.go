package store

import (
	"encoding/json"
	"time"
)

// JobStatus is the lifecycle state of a job. Transitions are monotonic in
// priority order and freeze once terminal.
type JobStatus string

const (
	StatusAnalyzing         JobStatus = "analyzing"
	StatusRefactoring       JobStatus = "refactoring"
	StatusPlanning          JobStatus = "planning"
	StatusRunning           JobStatus = "running"
	StatusMerging           JobStatus = "merging"
	StatusDone              JobStatus = "done"
	StatusNeedsManualReview JobStatus = "needs_manual_review"
	StatusFailed            JobStatus = "failed"
)

// statusPriority orders job statuses; writes that would lower priority are
// ignored.
var statusPriority = map[JobStatus]int{
	StatusAnalyzing:         1,
	StatusRefactoring:       2,
	StatusPlanning:          3,
	StatusRunning:           4,
	StatusMerging:           5,
	StatusDone:              6,
	StatusNeedsManualReview: 7,
	StatusFailed:            8,
}

// Priority returns the ordering rank of the status (0 for unknown).
func (s JobStatus) Priority() int {
	return statusPriority[s]
}

// Terminal reports whether the status freezes the job.
func (s JobStatus) Terminal() bool {
	switch s {
	case StatusDone, StatusFailed, StatusNeedsManualReview:
		return true
	}
	return false
}

// SubtaskStatus is the lifecycle state of a subtask.
type SubtaskStatus string

const (
	SubtaskPending   SubtaskStatus = "pending"
	SubtaskRunning   SubtaskStatus = "running"
	SubtaskCompleted SubtaskStatus = "completed"
	SubtaskFailed    SubtaskStatus = "failed"
)

// ArtifactType enumerates the persisted artifact kinds.
type ArtifactType string

const (
	ArtifactPlan             ArtifactType = "plan"
	ArtifactPlanProgress     ArtifactType = "plan_progress"
	ArtifactAnalysis         ArtifactType = "analysis"
	ArtifactAnalysisProgress ArtifactType = "analysis_progress"
	ArtifactRefactor         ArtifactType = "refactor"
	ArtifactRefactorProgress ArtifactType = "refactor_progress"
	ArtifactMergeInput       ArtifactType = "merge_input"
	ArtifactMergeResult      ArtifactType = "merge_result"
	ArtifactMergeError       ArtifactType = "merge_error"
	ArtifactMergeProgress    ArtifactType = "merge_progress"
	ArtifactSubtaskResult    ArtifactType = "subtask_result"
)

// JobMeta identifies a job and carries the attributes written on its first
// stage write.
type JobMeta struct {
	ID              string
	RepoRoot        string
	BaseBranch      string
	TaskDescription string
	UserTask        string
	PushResult      bool
}

// Job is one orchestrator run.
type Job struct {
	ID              string    `json:"jobId"`
	RepoRoot        string    `json:"repoRoot"`
	BaseBranch      string    `json:"baseBranch"`
	TaskDescription string    `json:"taskDescription"`
	UserTask        string    `json:"userTask"`
	PushResult      bool      `json:"pushResult"`
	Status          JobStatus `json:"status"`
	StartedAt       time.Time `json:"startedAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// Subtask is one unit of a job's plan.
type Subtask struct {
	JobID          string        `json:"jobId"`
	SubtaskID      string        `json:"subtaskId"`
	Title          string        `json:"title"`
	Description    string        `json:"description"`
	ParallelGroup  string        `json:"parallelGroup,omitempty"`
	WorktreePath   string        `json:"worktreePath,omitempty"`
	Branch         string        `json:"branch,omitempty"`
	Summary        string        `json:"summary,omitempty"`
	ImportantFiles []string      `json:"importantFiles,omitempty"`
	Error          string        `json:"error,omitempty"`
	LastReasoning  string        `json:"lastReasoning,omitempty"`
	Status         SubtaskStatus `json:"status"`
	StartedAt      *time.Time    `json:"startedAt,omitempty"`
	FinishedAt     *time.Time    `json:"finishedAt,omitempty"`
	UpdatedAt      time.Time     `json:"updatedAt"`
}

// Artifact is an immutable, append-only event record.
type Artifact struct {
	ID        string          `json:"id"`
	JobID     string          `json:"jobId"`
	Type      ArtifactType    `json:"type"`
	Label     string          `json:"label,omitempty"`
	SubtaskID string          `json:"subtaskId,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
	Data      json.RawMessage `json:"data"`
}

// Plan is the payload embedded in a "plan" artifact.
type Plan struct {
	CanParallelize bool          `json:"canParallelize"`
	Subtasks       []PlanSubtask `json:"subtasks"`
}

// PlanSubtask is one planned unit of work.
type PlanSubtask struct {
	ID            string  `json:"id"`
	Title         string  `json:"title"`
	Description   string  `json:"description"`
	ParallelGroup string  `json:"parallelGroup"`
	Context       *string `json:"context"`
	Notes         *string `json:"notes"`
}

// MergeResult is the payload embedded in a "merge_result" artifact.
type MergeResult struct {
	Status       string   `json:"status"`
	Notes        string   `json:"notes"`
	TouchedFiles []string `json:"touchedFiles"`
}

// MergeStatusOK and MergeStatusNeedsManualReview are the accepted merge
// result statuses.
const (
	MergeStatusOK                = "ok"
	MergeStatusNeedsManualReview = "needs_manual_review"
)

// JobView is a job with its subtasks, artifacts, and derived payloads.
type JobView struct {
	Job
	Subtasks    []*Subtask   `json:"subtasks"`
	Artifacts   []*Artifact  `json:"artifacts"`
	Plan        *Plan        `json:"plan,omitempty"`
	MergeResult *MergeResult `json:"mergeResult,omitempty"`
}

// Dashboard is the full snapshot served to observers.
type Dashboard struct {
	Jobs []*JobView `json:"jobs"`
}
