package cmd

import (
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Runs the HTTP API and the cycle scheduler",
		Long: `Starts the HTTP API (health, metrics, cycle submission and link cache
inspection) and a single cycle worker. When poller.interval is set, cycles are
also submitted on that schedule. SIGINT or SIGTERM shuts the service down.`,
		Args: cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, _ []string, app App) error {
			return app.Serve(cmd.Context())
		}),
	}
}
