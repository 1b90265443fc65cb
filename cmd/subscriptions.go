package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	filesubscriptions "github.com/JakeFAU/catalog-alerts/internal/subscription/file"
)

func newSubscriptionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "subscriptions",
		Short: "Manages the subscription document stored in Postgres",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "import <file>",
		Short: "Replaces the stored subscriptions with a YAML document",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string, app App) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open subscriptions: %w", err)
			}
			defer f.Close()

			doc, err := filesubscriptions.Decode(f)
			if err != nil {
				return err
			}
			if err := app.ImportSubscriptions(cmd.Context(), doc); err != nil {
				return fmt.Errorf("import subscriptions: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d labels\n", len(doc))
			return nil
		}),
	})
	return cmd
}
