package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orchard-dev/orchard/internal/store"
)

func planOf(canParallelize bool, groups ...[2]string) *store.Plan {
	plan := &store.Plan{CanParallelize: canParallelize}
	for _, g := range groups {
		plan.Subtasks = append(plan.Subtasks, store.PlanSubtask{
			ID:            g[0],
			Title:         g[0],
			ParallelGroup: g[1],
		})
	}
	return plan
}

func ids(batch []store.PlanSubtask) []string {
	var out []string
	for _, sub := range batch {
		out = append(out, sub.ID)
	}
	return out
}

func TestBuildBatchesGroupsByLabel(t *testing.T) {
	plan := planOf(true,
		[2]string{"a", "g1"}, [2]string{"b", "g1"}, [2]string{"c", "g2"})

	batches := buildBatches(plan)
	require.Len(t, batches, 2)
	assert.Equal(t, []string{"a", "b"}, ids(batches[0]))
	assert.Equal(t, []string{"c"}, ids(batches[1]))
}

func TestBuildBatchesUngroupedRunSolo(t *testing.T) {
	plan := planOf(true,
		[2]string{"a", "g1"}, [2]string{"solo", ""}, [2]string{"b", "g1"})

	batches := buildBatches(plan)
	require.Len(t, batches, 2)
	assert.Equal(t, []string{"a", "b"}, ids(batches[0]))
	assert.Equal(t, []string{"solo"}, ids(batches[1]))
}

func TestBuildBatchesSequentialIgnoresGroups(t *testing.T) {
	plan := planOf(false,
		[2]string{"a", "g1"}, [2]string{"b", "g1"})

	batches := buildBatches(plan)
	require.Len(t, batches, 2)
	assert.Equal(t, []string{"a"}, ids(batches[0]))
	assert.Equal(t, []string{"b"}, ids(batches[1]))
}

func TestBuildBatchesOrderedByFirstAppearance(t *testing.T) {
	plan := planOf(true,
		[2]string{"x", "late"}, [2]string{"y", "early"}, [2]string{"z", "late"})

	batches := buildBatches(plan)
	require.Len(t, batches, 2)
	assert.Equal(t, []string{"x", "z"}, ids(batches[0]))
	assert.Equal(t, []string{"y"}, ids(batches[1]))
}

func TestBuildBatchesEmptyPlan(t *testing.T) {
	assert.Empty(t, buildBatches(planOf(true)))
	assert.Empty(t, buildBatches(planOf(false)))
}
