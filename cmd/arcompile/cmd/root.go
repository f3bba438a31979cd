package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/arcompile/internal/config"
	"github.com/oshokin/arcompile/internal/domain/sketch"
	"github.com/oshokin/arcompile/internal/logger"
	"github.com/oshokin/arcompile/internal/service/builder"
	"github.com/oshokin/arcompile/internal/service/compile"
	"github.com/oshokin/arcompile/internal/service/flasher"
	"github.com/oshokin/arcompile/internal/version"
)

// Process exit codes.
const (
	ExitOK           = 0
	ExitFailure      = 1
	ExitNoSerialPort = 2
)

var (
	// configPath to the configuration YAML file.
	configPath string
	// logLevel is the minimum level printed to stderr.
	logLevel string
	// port is an explicit serial port.
	port string
	// baud overrides the configured flashing speed.
	baud int
	// killMonitors stops serial monitors holding the port.
	killMonitors bool

	// rootCmd builds the sketch in the current directory and flashes it.
	rootCmd = &cobra.Command{
		Use:   "arcompile [board] [min_spiffs]",
		Short: "Compile the sketch on a remote build server and flash it.",
		Long: fmt.Sprintf(`Compiles the sketch in the current directory on the remote build service
and flashes the result over serial.

The sketch is uploaded only when its sources, the board or the partition
scheme changed since the last successful build; otherwise the binaries in
%s/ are flashed again. A build that does not fit the default partitions
is retried once with min_spiffs.

Boards: %s, or fqbn=VENDOR:ARCH:BOARD (default %s).`,
			config.DefaultOutputDir, strings.Join(sketch.BoardAliases(), ", "), config.DefaultFQBN),
		Args:          validatePositional,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return logger.Setup(logLevel)
		},
		RunE: func(_ *cobra.Command, args []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			options := &compile.Options{
				Config:       cfg,
				Args:         args,
				Port:         port,
				KillMonitors: killMonitors,
			}

			_, err = compile.Run(ctx, options)

			return err
		},
	}
)

// validatePositional accepts board aliases, fqbn=... and min_spiffs.
func validatePositional(_ *cobra.Command, args []string) error {
	_, _, err := compile.ParseArgs(args, config.DefaultFQBN)
	return err
}

// loadConfig reads the settings and applies command-line overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	if baud > 0 {
		cfg.Baud = baud
	}

	return cfg, nil
}

// ExitCode maps an error returned by a command to the process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, flasher.ErrNoSerialPort):
		return ExitNoSerialPort
	default:
		return ExitFailure
	}
}

// Execute runs the arcompile CLI and exits with the status ExitCode assigns.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	err := rootCmd.Execute()
	if err == nil {
		return
	}

	reportError(err)
	os.Exit(ExitCode(err))
}

// reportError logs err and, for remote compile failures, the compiler output.
func reportError(err error) {
	ctx := context.Background()

	var compileErr *builder.CompileError
	if errors.As(err, &compileErr) && compileErr.Output != "" {
		_, _ = fmt.Fprintln(os.Stderr, compileErr.Output)
	}

	if errors.Is(err, flasher.ErrNoSerialPort) {
		logger.Error(ctx, "No serial port found. Connect the board and run arcompile again; the binaries are ready.")
		return
	}

	logger.Error(ctx, err)
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	flags.StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn or error")
	flags.StringVarP(&port, "port", "p", "", "serial port (detected automatically when empty)")
	flags.IntVarP(&baud, "baud", "b", 0, "flashing speed (overrides the configuration)")
	flags.BoolVar(&killMonitors, "kill-monitors", false, "stop serial monitors that keep the port busy")
}
