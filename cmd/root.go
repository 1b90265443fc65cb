// Package cmd defines the catalog-alerts command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-alerts/internal/alert"
	"github.com/JakeFAU/catalog-alerts/internal/config"
	"github.com/JakeFAU/catalog-alerts/internal/logging"
	"github.com/JakeFAU/catalog-alerts/internal/server"
)

var cfgFile string

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App is what the subcommands need from the wired application.
// Tests swap newApp for a fake.
type App interface {
	PollOnce(ctx context.Context) (alert.CycleReport, error)
	Serve(ctx context.Context) error
	Migrate(ctx context.Context) error
	ImportSubscriptions(ctx context.Context, doc alert.SubscriptionDocument) error
	Close()
}

var newApp = func(ctx context.Context, cfg *config.Config, logger *zap.Logger) (App, error) {
	return server.Build(ctx, cfg, logger)
}

func newRootCmd() *cobra.Command {
	var logger *zap.Logger
	cmd := &cobra.Command{
		Use:   "catalog-alerts",
		Short: "Polls board catalogs and notifies webhooks about new matching threads.",
		Long: `catalog-alerts reads a subscription document of labels, each naming search
terms, boards and webhooks. Every cycle it scans the catalogs of the routed
boards, collects thread links whose subject or comment matches a label's terms,
and delivers only links that were not delivered before.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("load .env: %w", err)
			}
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			logger, err = logging.New(logging.Config{
				Development: cfg.Logging.Development,
				Level:       cfg.Logging.Level,
			})
			if err != nil {
				return err
			}
			zap.ReplaceGlobals(logger)

			appInstance, err := newApp(cmd.Context(), &cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		PersistentPostRun: func(*cobra.Command, []string) {
			if logger != nil {
				_ = logger.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML); ALERTS_* environment variables override it")

	cmd.AddCommand(newPollCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newMigrateCmd())
	cmd.AddCommand(newSubscriptionsCmd())
	return cmd
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

// withApp adapts fn to a cobra RunE. The App is closed when fn returns,
// including on error, which PersistentPostRun does not cover.
func withApp(fn func(cmd *cobra.Command, args []string, app App) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		appInstance, err := resolveApp(cmd.Context())
		if err != nil {
			return err
		}
		defer appInstance.Close()
		return fn(cmd, args, appInstance)
	}
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}
