package dispatch

import (
	"context"
	"fmt"
	"sync"
)

// QueueSource is an in-memory FIFO task source. The dispatch command
// seeds it from the environment; tests seed it directly.
type QueueSource struct {
	mu     sync.Mutex
	tasks  []*Task
	nextID int
	done   []*Task
	failed []*Task
}

// NewQueueSource builds a queue pre-loaded with the given task texts.
func NewQueueSource(texts ...string) *QueueSource {
	q := &QueueSource{}
	for _, text := range texts {
		q.Push(text)
	}
	return q
}

// Push appends one task to the queue.
func (q *QueueSource) Push(text string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.nextID++
	q.tasks = append(q.tasks, &Task{ID: fmt.Sprintf("queue-%d", q.nextID), Text: text})
}

// Next pops the oldest task, or returns nil when empty.
func (q *QueueSource) Next(ctx context.Context) (*Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.tasks) == 0 {
		return nil, nil
	}
	task := q.tasks[0]
	q.tasks = q.tasks[1:]
	return task, nil
}

// MarkDone records a completed task.
func (q *QueueSource) MarkDone(ctx context.Context, task *Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.done = append(q.done, task)
	return nil
}

// MarkFailed records a failed task.
func (q *QueueSource) MarkFailed(ctx context.Context, task *Task, cause error) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.failed = append(q.failed, task)
	return nil
}

// Done returns the acknowledged-successful tasks.
func (q *QueueSource) Done() []*Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]*Task(nil), q.done...)
}

// Failed returns the acknowledged-failed tasks.
func (q *QueueSource) Failed() []*Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]*Task(nil), q.failed...)
}

// Len reports how many tasks remain queued.
func (q *QueueSource) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}
