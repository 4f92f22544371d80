package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newUserCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "user <username>",
		Short: "Crawl one user and export their ratings",
		Long: `Crawls a single user, writes their raw and translated ratings to
per-user files and records them in the mappings. The cumulative ratings table
is left as it was.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			instance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			stopOps := instance.serveOps(cmd.Context())
			defer stopOps()

			report, err := instance.runner.RunUser(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("export user %s: %w", args[0], err)
			}
			return writeReport(cmd, report)
		},
	}
}
