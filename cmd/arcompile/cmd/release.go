package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/arcompile/internal/service/release"
)

var (
	// saveCmd snapshots the current binaries.
	saveCmd = &cobra.Command{
		Use:   "save <name>",
		Short: "Save the current binaries as a named release",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			options, err := releaseOptions("")
			if err != nil {
				return err
			}

			saved, err := release.Save(cmd.Context(), options, args[0])
			if err != nil {
				return err
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "saved %s\n", saved.Dir)

			return nil
		},
	}

	// flashCmd writes a saved release without rebuilding.
	flashCmd = &cobra.Command{
		Use:   "flash <name> [port]",
		Short: "Flash a saved release",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(_ *cobra.Command, args []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			explicitPort := port
			if len(args) > 1 {
				explicitPort = args[1]
			}

			options, err := releaseOptions(explicitPort)
			if err != nil {
				return err
			}

			return release.Flash(ctx, options, args[0])
		},
	}

	// releasesCmd lists saved releases.
	releasesCmd = &cobra.Command{
		Use:   "releases",
		Short: "List saved releases",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			options, err := releaseOptions("")
			if err != nil {
				return err
			}

			names, err := release.List(options)
			if err != nil {
				return err
			}

			for _, name := range names {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), name)
			}

			return nil
		},
	}
)

func releaseOptions(explicitPort string) (*release.Options, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	return &release.Options{
		Config:       cfg,
		Port:         explicitPort,
		KillMonitors: killMonitors,
	}, nil
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	rootCmd.AddCommand(saveCmd, flashCmd, releasesCmd)
}
