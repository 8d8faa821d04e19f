// Package cmd defines and implements the CLI commands for the freelance-crawler executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/freelance-crawler/internal/app"
	"github.com/JakeFAU/freelance-crawler/internal/config"
	"github.com/JakeFAU/freelance-crawler/internal/logging"
	"github.com/JakeFAU/freelance-crawler/internal/metrics"
)

const shutdownTimeout = 10 * time.Second

var cfgFile string

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// newApp is the application factory. It's a variable so tests can inject
// fakes through app options.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app.App, error) {
	return app.New(ctx, cfg, logger)
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "freelance-crawler",
		Short: "Crawls freelancer marketplaces and reports on the collected profiles.",
		Long: `freelance-crawler scrapes freelancer profiles, reviews and services from
Freelancer, PeoplePerHour and Truelancer into a document store, and serves a
read-only reporting API over what it collected.`,
		SilenceUsage: true,

		// Builds the application once flags are parsed and hands it to the
		// subcommand through the context.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.LoadDotEnv(); err != nil {
				return err
			}
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			zap.ReplaceGlobals(logger)
			metrics.Init()

			appInstance, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return nil //nolint:nilerr // nothing was started
			}
			ctx, cancel := context.WithTimeout(context.WithoutCancel(cmd.Context()), shutdownTimeout)
			defer cancel()
			closeErr := appInstance.Close(ctx)
			_ = appInstance.Logger().Sync() //nolint:errcheck // stderr sync fails on some terminals
			return closeErr
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml, toml or json)")

	cmd.AddCommand(
		newCrawlCmd(),
		newServeCmd(),
		newFixturesCmd(),
		newStatsCmd(),
		newImportCmd(),
	)
	return cmd
}

func resolveApp(ctx context.Context) (*app.App, error) {
	appInstance, ok := ctx.Value(appKey).(*app.App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// Execute is the main entry point. SIGINT and SIGTERM cancel the command's
// context.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		zap.L().Error("command execution failed", zap.Error(err))
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
