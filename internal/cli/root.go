// Package cli wires the orchard commands: run, serve, dispatch, version.
package cli

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/orchard-dev/orchard/internal/config"
)

// App carries the loaded configuration into every command.
type App struct {
	cfg config.Config
}

// Execute loads configuration and runs the CLI. Build metadata comes from
// ldflags in cmd/orchard.
func Execute(version, commit, date string) error {
	// .env is a convenience for local runs; absence is not an error.
	_ = godotenv.Load()

	cwd, err := os.Getwd()
	if err != nil {
		return err
	}
	cfg, err := config.Load(cwd)
	if err != nil {
		return err
	}
	app := &App{cfg: cfg}

	root := &cobra.Command{
		Use:           "orchard",
		Short:         "Drive a Worker CLI across git worktrees to complete a task",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(
		newRunCmd(app),
		newServeCmd(app),
		newDispatchCmd(app),
		newVersionCmd(version, commit, date),
	)
	return root.Execute()
}
