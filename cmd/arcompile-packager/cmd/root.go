package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/arcompile/internal/logger"
	"github.com/oshokin/arcompile/internal/service/packager"
	"github.com/oshokin/arcompile/internal/version"
)

var (
	// logLevel is the minimum level printed to stderr.
	logLevel string

	// rootCmd represents the base command for preparing update metadata.
	rootCmd = &cobra.Command{
		Use:   "arcompile-packager <version> [release-dir]",
		Short: "Prepare the arcompile release manifest",
		Long: `Computes SHA-512 checksums of the arcompile_<goos>_<goarch> binaries in release-dir
(the current directory by default) and writes arcompile-version.yaml next to them.
Upload the whole folder to the update URL afterwards.`,
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return logger.Setup(logLevel)
		},
		RunE: func(_ *cobra.Command, args []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			options := &packager.Options{Version: args[0]}
			if len(args) > 1 {
				options.Dir = args[1]
			}

			_, err := packager.Run(ctx, options)

			return err
		},
	}
)

// Execute runs the arcompile-packager CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		logger.Error(context.Background(), err)
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn or error")
}
