package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/ratings-crawler/internal/runner"
)

type batchFlags struct {
	batches int
	size    int
	mode    string
}

func newBatchCmd() *cobra.Command {
	var flags batchFlags
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Discover new users and crawl them in batches",
		Long: `Runs up to --batches batches of --size newly discovered users. The
cumulative dataset is saved after every batch; "new" mode starts from empty
tables, "continue" extends what is stored.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			instance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			opts := flags.options(instance)

			stopOps := instance.serveOps(cmd.Context())
			defer stopOps()

			report, err := instance.runner.Run(cmd.Context(), opts)
			for _, br := range report.Batches {
				instance.logger.Info("batch summary",
					zap.Int("batch", br.Batch),
					zap.Int("succeeded", br.Succeeded),
					zap.Int("empty", br.Empty),
					zap.Int("failed", br.Failed),
					zap.Int("new_ratings", br.NewRatings),
					zap.Int("total_ratings", br.TotalRatings),
				)
			}
			if err != nil {
				return fmt.Errorf("run batches: %w", err)
			}
			return writeReport(cmd, report)
		},
	}
	cmd.Flags().IntVar(&flags.batches, "batches", 0, "number of batches (default from config)")
	cmd.Flags().IntVar(&flags.size, "size", 0, "users per batch (default from config)")
	cmd.Flags().StringVar(&flags.mode, "mode", "", `"new" or "continue" (default from config)`)
	return cmd
}

// options overlays explicit flags on the configured batch settings.
func (f batchFlags) options(a *App) runner.Options {
	opts := runner.Options{
		Batches: a.cfg.Batch.Count,
		Size:    a.cfg.Batch.Size,
		Mode:    a.cfg.Batch.Mode,
	}
	if f.batches > 0 {
		opts.Batches = f.batches
	}
	if f.size > 0 {
		opts.Size = f.size
	}
	if f.mode != "" {
		opts.Mode = f.mode
	}
	return opts
}

func writeReport(cmd *cobra.Command, report any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}
