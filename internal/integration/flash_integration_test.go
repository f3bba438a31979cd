package integration

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mitchellh/go-ps"
	"github.com/stretchr/testify/require"

	"github.com/oshokin/arcompile/internal/service/compile"
	"github.com/oshokin/arcompile/internal/service/flasher"
)

type boardPorts struct{}

func (boardPorts) Ports() ([]flasher.Port, error) {
	return []flasher.Port{
		{Name: "/dev/ttyS0"},
		{Name: "/dev/ttyUSB0", Product: "CP2102 USB to UART Bridge Controller", IsUSB: true},
	}, nil
}

// fakeTool writes a script that records its arguments and exits with code.
func fakeTool(t *testing.T, code string) (tool, argsFile string) {
	t.Helper()

	dir := t.TempDir()
	argsFile = filepath.Join(dir, "args.txt")
	tool = filepath.Join(dir, "esptool")

	script := "#!/bin/sh\nprintf '%s\\n' \"$@\" > '" + argsFile + "'\nexit " + code + "\n"
	require.NoError(t, os.WriteFile(tool, []byte(script), 0o755))

	return tool, argsFile
}

func scriptFlasher(tool string) *flasher.Flasher {
	return flasher.New(flasher.Options{
		Baud:      921600,
		ESPTool:   tool,
		Ports:     boardPorts{},
		Processes: func() ([]ps.Process, error) { return nil, nil },
		Runner:    flasher.ExecRunner{Stdout: io.Discard, Stderr: io.Discard},
	})
}

// TestFlash_RunsToolWithFamilyOffsets builds for c3 and checks the esptool command line.
// Tests that write and then exec a script stay sequential to avoid ETXTBSY.
func TestFlash_RunsToolWithFamilyOffsets(t *testing.T) {
	srv := startBuildServer(t, nil)
	dir := newSketch(t)
	tool, argsFile := fakeTool(t, "0")

	_, err := compile.Run(t.Context(), compileOptions(srv, dir, scriptFlasher(tool), "c3"))
	require.NoError(t, err)

	data, err := os.ReadFile(argsFile)
	require.NoError(t, err)

	args := strings.Fields(string(data))
	require.Equal(t, []string{
		"--port", "/dev/ttyUSB0",
		"--baud", "921600",
		"--before", "default_reset",
		"--after", "hard_reset",
		"write_flash", "-z",
	}, args[:10])

	out := filepath.Join(dir, "binarios")
	require.Equal(t, []string{
		"0x0", filepath.Join(out, "blink.ino.bootloader.bin"),
		"0x8000", filepath.Join(out, "blink.ino.partitions.bin"),
		"0x10000", filepath.Join(out, "blink.ino.bin"),
	}, args[10:])
}

// TestFlash_ToolFailureIsReported makes the tool fail and expects its exit code back.
func TestFlash_ToolFailureIsReported(t *testing.T) {
	srv := startBuildServer(t, nil)
	dir := newSketch(t)
	tool, argsFile := fakeTool(t, "3")

	_, err := compile.Run(t.Context(), compileOptions(srv, dir, scriptFlasher(tool)))

	var toolErr *flasher.ToolError
	require.ErrorAs(t, err, &toolErr)
	require.Equal(t, 3, toolErr.ExitCode)
	require.FileExists(t, argsFile)
	require.FileExists(t, filepath.Join(dir, "binarios", "blink.ino.bin"))
}
