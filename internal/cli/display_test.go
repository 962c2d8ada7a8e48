package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/orchard-dev/orchard/internal/pipeline"
	"github.com/orchard-dev/orchard/internal/store"
)

func TestRenderReport(t *testing.T) {
	var buf bytes.Buffer
	renderReport(&buf, &pipeline.Report{
		JobID:      "job1",
		RepoRoot:   "/repo",
		BaseBranch: "main",
		Status:     store.StatusDone,
		Merge: &store.MergeResult{
			Status:       store.MergeStatusOK,
			Notes:        "Merged 2 branches into result-job1",
			TouchedFiles: []string{"a.txt", "b.txt"},
		},
	})

	out := buf.String()
	assert.Contains(t, out, "job job1")
	assert.Contains(t, out, "done")
	assert.Contains(t, out, "Merged 2 branches")
	assert.Contains(t, out, "a.txt")
}

func TestRenderReportFailure(t *testing.T) {
	var buf bytes.Buffer
	renderReport(&buf, &pipeline.Report{
		JobID:   "job2",
		Status:  store.StatusFailed,
		Failure: "subtask s2 failed: boom",
	})

	out := buf.String()
	assert.Contains(t, out, "failed")
	assert.Contains(t, out, "boom")
}

func TestEnvTasks(t *testing.T) {
	t.Setenv(taskQueueEnv, "first task\n\n  second task  \n")
	assert.Equal(t, []string{"first task", "second task"}, envTasks())

	t.Setenv(taskQueueEnv, "")
	assert.Empty(t, envTasks())
}
