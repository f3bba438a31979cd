package flasher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/mitchellh/go-ps"

	"github.com/oshokin/arcompile/internal/domain/sketch"
	"github.com/oshokin/arcompile/internal/logger"
)

// Runner executes an external tool.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) error
}

// ExecRunner runs tools with their output attached to the given writers.
type ExecRunner struct {
	Stdout io.Writer
	Stderr io.Writer
}

// Run implements Runner.
func (r ExecRunner) Run(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = r.Stdout
	cmd.Stderr = r.Stderr

	return cmd.Run()
}

// ToolError is a flashing tool that could not start, exited non-zero or was
// killed. ExitCode is -1 when the process ended without an exit status.
type ToolError struct {
	Tool     string
	Started  bool
	ExitCode int
	Err      error
}

// Error implements error.
func (e *ToolError) Error() string {
	switch {
	case !e.Started:
		return fmt.Sprintf("%s could not run: %v", e.Tool, e.Err)
	case e.ExitCode < 0:
		return fmt.Sprintf("%s was terminated before finishing: %v", e.Tool, e.Err)
	default:
		return fmt.Sprintf("%s exited with code %d; check the USB cable, the port permissions and that no serial monitor is open", e.Tool, e.ExitCode)
	}
}

// Unwrap returns the underlying process error.
func (e *ToolError) Unwrap() error {
	return e.Err
}

// Options configures a Flasher.
type Options struct {
	// Baud is the esptool serial speed.
	Baud int
	// ESPTool overrides the esptool lookup.
	ESPTool string
	// ArduinoCLI overrides the arduino-cli lookup.
	ArduinoCLI string
	// KillMonitors terminates serial monitors instead of only warning.
	KillMonitors bool
	// Ports enumerates serial devices; nil uses the OS enumerator.
	Ports PortLister
	// Processes lists running processes; nil uses go-ps.
	Processes ProcessLister
	// Runner executes the tools; nil runs them attached to stdout/stderr.
	Runner Runner
}

// Target is what to flash and where.
type Target struct {
	// Board selects the layout and the tool.
	Board sketch.Board
	// Artifacts are the classified files.
	Artifacts sketch.ArtifactSet
	// InputDir holds the artifacts (used by arduino-cli).
	InputDir string
	// SketchDir is passed to arduino-cli upload.
	SketchDir string
	// Port is an explicit port; empty means auto-detect.
	Port string
}

// Flasher writes artifact sets to boards.
type Flasher struct {
	opts Options
}

// New creates a flasher, filling OS-backed defaults.
func New(opts Options) *Flasher {
	if opts.Ports == nil {
		opts.Ports = SystemPorts{}
	}

	if opts.Processes == nil {
		opts.Processes = ps.Processes
	}

	if opts.Runner == nil {
		opts.Runner = ExecRunner{Stdout: os.Stdout, Stderr: os.Stderr}
	}

	return &Flasher{opts: opts}
}

// ResolvePort returns the explicit port or the first detected one.
func (f *Flasher) ResolvePort(ctx context.Context, explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}

	logger.Info(ctx, "Looking for a serial port")

	port, err := DetectPort(f.opts.Ports)
	if err != nil {
		return "", err
	}

	logger.InfoKV(ctx, "Serial port detected", "port", port.Name, "product", port.Product)

	return port.Name, nil
}

// Flash writes target to the board. It runs the tool once.
func (f *Flasher) Flash(ctx context.Context, target *Target) error {
	ctx = logger.WithName(ctx, "flasher")

	port, err := f.ResolvePort(ctx, target.Port)
	if err != nil {
		return err
	}

	f.handleMonitors(ctx)

	var (
		tool string
		args []string
	)

	if target.Board.Family.IsESP32() {
		base := ResolveESPTool(f.opts.ESPTool)

		espArgs, argErr := ESPToolArgs(target.Artifacts, target.Board.Family, port, f.opts.Baud)
		if argErr != nil {
			return argErr
		}

		tool, args = base[0], append(base[1:], espArgs...)
	} else {
		if _, ok := target.Artifacts[sketch.RoleApplicationHex]; !ok {
			return fmt.Errorf("%s: %w", target.InputDir, errNothingToFlash)
		}

		inputDir, absErr := filepath.Abs(target.InputDir)
		if absErr != nil {
			return absErr
		}

		tool = ResolveArduinoCLI(f.opts.ArduinoCLI)
		args = AVRUploadArgs(target.Board.FQBN, port, inputDir, target.SketchDir)
	}

	logger.InfoKV(ctx, "Flashing", "tool", tool, "args", strings.Join(args, " "))

	if err = f.opts.Runner.Run(ctx, tool, args...); err != nil {
		toolErr := &ToolError{Tool: filepath.Base(tool), ExitCode: -1, Err: err}

		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			toolErr.Started, toolErr.ExitCode = true, exitErr.ExitCode()
		}

		return toolErr
	}

	logger.InfoKV(ctx, "Flash completed", "port", port)

	return nil
}

// handleMonitors warns about serial monitors and optionally kills them.
func (f *Flasher) handleMonitors(ctx context.Context) {
	monitors, err := FindMonitors(f.opts.Processes)
	if err != nil {
		logger.DebugKV(ctx, "Unable to check for serial monitors", "error", err)
		return
	}

	for _, process := range monitors {
		if !f.opts.KillMonitors {
			logger.WarnKV(ctx, "A serial monitor may be holding the port; close it or pass --kill-monitors",
				"process", process.Executable(), "pid", process.Pid())

			continue
		}

		if err = killProcess(process.Pid()); err != nil {
			logger.WarnKV(ctx, "Unable to stop serial monitor", "process", process.Executable(), "error", err)
			continue
		}

		logger.InfoKV(ctx, "Stopped serial monitor", "process", process.Executable(), "pid", process.Pid())
	}
}
