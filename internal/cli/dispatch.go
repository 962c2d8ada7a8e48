package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/orchard-dev/orchard/internal/dispatch"
	"github.com/orchard-dev/orchard/internal/pipeline"
	"github.com/orchard-dev/orchard/internal/store"
)

// taskQueueEnv seeds the dispatch queue: one task per non-empty line.
const taskQueueEnv = "ORCHESTRATOR_TASKS"

func newDispatchCmd(app *App) *cobra.Command {
	var (
		once         bool
		pollInterval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "dispatch",
		Short: "Poll task sources and run each task as a job",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := store.Open(app.cfg.DBPath)
			if err != nil {
				return err
			}
			defer st.Close()

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			engine := pipeline.New(app.cfg, pipeline.Dependencies{Store: st})
			runner := func(ctx context.Context, userTask string) (*pipeline.Report, error) {
				return engine.RunJob(ctx, userTask, pipeline.Options{})
			}

			queue := dispatch.NewQueueSource(envTasks()...)
			d := dispatch.New(runner, &printReporter{out: cmd.OutOrStdout()}, queue)
			err = d.Run(ctx, dispatch.Options{
				StopWhenEmpty: once,
				PollInterval:  pollInterval,
			})
			if err == context.Canceled {
				return nil
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&once, "once", false, "exit when every source is empty")
	cmd.Flags().DurationVar(&pollInterval, "poll-interval", dispatch.DefaultPollInterval, "sleep between empty polling passes")
	return cmd
}

// envTasks reads the seed queue from the environment.
func envTasks() []string {
	var tasks []string
	for _, line := range strings.Split(os.Getenv(taskQueueEnv), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			tasks = append(tasks, line)
		}
	}
	return tasks
}

// printReporter logs dispatcher progress to the command output.
type printReporter struct {
	out io.Writer
}

func (r *printReporter) OnStart(task *dispatch.Task) {
	fmt.Fprintf(r.out, "task %s: %s\n", task.ID, task.Text)
}

func (r *printReporter) OnSuccess(task *dispatch.Task, report *pipeline.Report) {
	fmt.Fprintf(r.out, "task %s: job %s finished %s\n", task.ID, report.JobID, report.Status)
}

func (r *printReporter) OnFailure(task *dispatch.Task, err error) {
	fmt.Fprintf(r.out, "task %s: failed: %v\n", task.ID, err)
}

func (r *printReporter) OnIdle() {}
