package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/ratings-crawler/internal/config"
	"github.com/JakeFAU/ratings-crawler/internal/logging"
)

type appKeyType string

const appKey appKeyType = "app"

// newApp is the application factory. Tests swap it for a fake.
var newApp = buildApp

// newRootCmd creates the root command. Configuration and services are built
// once in PersistentPreRunE and handed to subcommands through the context.
func newRootCmd() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "ratingscrawler",
		Short: "Crawls public user ratings into a cumulative training dataset.",
		Long: `ratingscrawler discovers users, walks their rating pages concurrently,
assigns stable numeric IDs and persists the merged ratings after each batch.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			zap.ReplaceGlobals(logger)

			instance, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				_ = logger.Sync()
				return fmt.Errorf("initialize services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, instance))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if instance, err := resolveApp(cmd.Context()); err == nil {
				instance.Close()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML); RATINGS_* env vars override it")

	cmd.AddCommand(newBatchCmd())
	cmd.AddCommand(newUserCmd())
	return cmd
}

func resolveApp(ctx context.Context) (*App, error) {
	instance, ok := ctx.Value(appKey).(*App)
	if !ok || instance == nil {
		return nil, errors.New("application services not initialized")
	}
	return instance, nil
}
