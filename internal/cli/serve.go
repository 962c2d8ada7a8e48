package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/orchard-dev/orchard/internal/store"
	"github.com/orchard-dev/orchard/internal/web"
)

// shutdownGrace bounds how long Stop waits for in-flight requests.
const shutdownGrace = 5 * time.Second

func newServeCmd(app *App) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the dashboard snapshot and stream API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// A missing database file is fine: the API then serves an
			// empty snapshot until the first job runs.
			var st *store.Store
			if _, err := os.Stat(app.cfg.DBPath); err == nil {
				opened, err := store.Open(app.cfg.DBPath)
				if err != nil {
					return err
				}
				defer opened.Close()
				st = opened
			}

			server := web.New(web.Config{
				Addr:  fmt.Sprintf(":%d", port),
				Store: st,
			})
			if err := server.Start(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "dashboard listening on %s\n", server.Addr())

			ctx, stop := signalContext(cmd.Context())
			defer stop()
			<-ctx.Done()

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
			defer cancel()
			return server.Stop(shutdownCtx)
		},
	}

	cmd.Flags().IntVar(&port, "port", app.cfg.DashboardPort, "HTTP/WS listen port")
	return cmd
}
