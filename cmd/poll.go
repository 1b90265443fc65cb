package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newPollCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "poll",
		Short: "Runs a single poll cycle and prints its report",
		Long: `Runs one cycle: fetch subscriptions and boards, scan the routed catalogs,
dispatch new links to webhooks and persist the link cache. The cycle report is
written to stdout as JSON. The command fails when the cycle fails.`,
		Args: cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, _ []string, app App) error {
			report, runErr := app.PollOnce(cmd.Context())
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(report); err != nil {
				return fmt.Errorf("write report: %w", err)
			}
			if runErr != nil {
				return fmt.Errorf("poll cycle: %w", runErr)
			}
			return nil
		}),
	}
}
