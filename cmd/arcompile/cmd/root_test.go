package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/arcompile/internal/service/flasher"
)

func TestExitCode(t *testing.T) {
	t.Parallel()

	require.Equal(t, ExitOK, ExitCode(nil))
	require.Equal(t, ExitFailure, ExitCode(errors.New("boom")))
	require.Equal(t, ExitNoSerialPort, ExitCode(fmt.Errorf("flash: %w", flasher.ErrNoSerialPort)))
}

func TestValidatePositional(t *testing.T) {
	t.Parallel()

	require.NoError(t, validatePositional(rootCmd, nil))
	require.NoError(t, validatePositional(rootCmd, []string{"s3", "min_spiffs"}))
	require.NoError(t, validatePositional(rootCmd, []string{"fqbn=esp32:esp32:lolin32"}))
	require.Error(t, validatePositional(rootCmd, []string{"flash-it"}))
	require.Error(t, validatePositional(rootCmd, []string{"fqbn=broken"}))
}

// TestHelp runs the real command tree; it touches global state, so it is not parallel.
func TestHelp(t *testing.T) {
	var out bytes.Buffer

	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs([]string{"help"})

	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	require.NoError(t, rootCmd.Execute())
	require.Contains(t, out.String(), "arcompile [board] [min_spiffs]")
	require.Contains(t, out.String(), "update")
	require.Contains(t, out.String(), "--kill-monitors")
}
