package pipeline

import "github.com/orchard-dev/orchard/internal/store"

// buildBatches groups the plan's subtasks into execution batches. When the
// plan allows parallelism, subtasks sharing a parallelGroup label form one
// batch and ungrouped subtasks run solo; otherwise every subtask is its
// own singleton batch. Batches keep the order in which their group label
// first appears in the plan.
func buildBatches(plan *store.Plan) [][]store.PlanSubtask {
	var batches [][]store.PlanSubtask

	if !plan.CanParallelize {
		for _, sub := range plan.Subtasks {
			batches = append(batches, []store.PlanSubtask{sub})
		}
		return batches
	}

	index := map[string]int{}
	for _, sub := range plan.Subtasks {
		if sub.ParallelGroup == "" {
			batches = append(batches, []store.PlanSubtask{sub})
			continue
		}
		if i, ok := index[sub.ParallelGroup]; ok {
			batches[i] = append(batches[i], sub)
			continue
		}
		index[sub.ParallelGroup] = len(batches)
		batches = append(batches, []store.PlanSubtask{sub})
	}
	return batches
}
