package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/arcompile/internal/service/updater"
)

// updateCmd replaces the running binary with the latest release.
var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Update arcompile to the latest release",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		// Setup graceful shutdown handling.
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
		defer stop()

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		result, err := updater.Run(ctx, &updater.Options{Config: cfg})
		if err != nil {
			return err
		}

		if result.Updated {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "arcompile updated from %s to %s\n", result.From, result.To)
		} else {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "arcompile %s is up to date\n", result.From)
		}

		return nil
	},
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	rootCmd.AddCommand(updateCmd)
}
