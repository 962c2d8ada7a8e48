package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orchard-dev/orchard/internal/pipeline"
	"github.com/orchard-dev/orchard/internal/store"
)

// recordingReporter captures lifecycle events in order.
type recordingReporter struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingReporter) record(event string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingReporter) OnStart(task *Task) { r.record("start:" + task.Text) }
func (r *recordingReporter) OnSuccess(task *Task, _ *pipeline.Report) {
	r.record("ok:" + task.Text)
}
func (r *recordingReporter) OnFailure(task *Task, _ error) { r.record("fail:" + task.Text) }
func (r *recordingReporter) OnIdle()                       { r.record("idle") }

func okRunner(ctx context.Context, userTask string) (*pipeline.Report, error) {
	return &pipeline.Report{Status: store.StatusDone}, nil
}

func TestDispatcherDrainsQueueInOrder(t *testing.T) {
	queue := NewQueueSource("first", "second", "third")
	reporter := &recordingReporter{}
	d := New(okRunner, reporter, queue)

	err := d.Run(context.Background(), Options{StopWhenEmpty: true})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"start:first", "ok:first",
		"start:second", "ok:second",
		"start:third", "ok:third",
		"idle",
	}, reporter.events)
	assert.Len(t, queue.Done(), 3)
	assert.Zero(t, queue.Len())
}

func TestDispatcherMarksFailures(t *testing.T) {
	queue := NewQueueSource("bad", "good")
	reporter := &recordingReporter{}
	boom := errors.New("job failed")
	runner := func(ctx context.Context, userTask string) (*pipeline.Report, error) {
		if userTask == "bad" {
			return nil, boom
		}
		return &pipeline.Report{Status: store.StatusDone}, nil
	}

	err := New(runner, reporter, queue).Run(context.Background(), Options{StopWhenEmpty: true})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"start:bad", "fail:bad",
		"start:good", "ok:good",
		"idle",
	}, reporter.events)
	require.Len(t, queue.Failed(), 1)
	assert.Equal(t, "bad", queue.Failed()[0].Text)
	require.Len(t, queue.Done(), 1)
}

func TestDispatcherEarlierSourceKeepsPriority(t *testing.T) {
	high := NewQueueSource("h1")
	low := NewQueueSource("l1", "l2")
	reporter := &recordingReporter{}

	// h2 arrives while l1 is being processed; it must run before l2.
	runner := func(ctx context.Context, userTask string) (*pipeline.Report, error) {
		if userTask == "l1" {
			high.Push("h2")
		}
		return &pipeline.Report{Status: store.StatusDone}, nil
	}

	err := New(runner, reporter, high, low).Run(context.Background(), Options{StopWhenEmpty: true})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"start:h1", "ok:h1",
		"start:l1", "ok:l1",
		"start:h2", "ok:h2",
		"start:l2", "ok:l2",
		"idle",
	}, reporter.events)
}

func TestDispatcherPollsUntilCancelled(t *testing.T) {
	queue := NewQueueSource()
	reporter := &recordingReporter{}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- New(okRunner, reporter, queue).Run(ctx, Options{PollInterval: time.Millisecond})
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("dispatcher did not stop on cancellation")
	}

	reporter.mu.Lock()
	defer reporter.mu.Unlock()
	assert.Contains(t, reporter.events, "idle")
}

func TestDispatcherStopsOnSourceError(t *testing.T) {
	broken := &errorSource{err: errors.New("source unavailable")}
	err := New(okRunner, nil, broken).Run(context.Background(), Options{StopWhenEmpty: true})
	require.ErrorContains(t, err, "source unavailable")
}

type errorSource struct{ err error }

func (s *errorSource) Next(context.Context) (*Task, error)            { return nil, s.err }
func (s *errorSource) MarkDone(context.Context, *Task) error          { return nil }
func (s *errorSource) MarkFailed(context.Context, *Task, error) error { return nil }
