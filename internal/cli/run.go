package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/orchard-dev/orchard/internal/pipeline"
	"github.com/orchard-dev/orchard/internal/store"
)

func newRunCmd(app *App) *cobra.Command {
	var opts pipeline.Options

	cmd := &cobra.Command{
		Use:   "run <task>",
		Short: "Run one job for the given task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := store.Open(app.cfg.DBPath)
			if err != nil {
				return err
			}
			defer st.Close()

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			engine := pipeline.New(app.cfg, pipeline.Dependencies{Store: st})
			report, runErr := engine.RunJob(ctx, args[0], opts)
			if report != nil {
				renderReport(os.Stdout, report)
			}
			if runErr != nil {
				return runErr
			}
			if report.Status != store.StatusDone && report.Status != store.StatusNeedsManualReview {
				return fmt.Errorf("job %s ended with status %s", report.JobID, report.Status)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.RepoRoot, "repo", "", "repository root (defaults to detection)")
	cmd.Flags().StringVar(&opts.BaseBranch, "base-branch", "", "base branch (defaults to detection)")
	cmd.Flags().StringVar(&opts.JobID, "job-id", "", "explicit job id")
	cmd.Flags().BoolVar(&opts.PushResult, "push", false, "push the result branch to origin")
	cmd.Flags().BoolVar(&opts.EnablePrefactor, "prefactor", false, "run analyze and refactor before planning")
	cmd.Flags().BoolVarP(&opts.Verbose, "verbose", "v", false, "tee Worker CLI output to the terminal")
	return cmd
}
