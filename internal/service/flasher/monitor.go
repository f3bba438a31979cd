package flasher

import (
	"fmt"
	"os"
	"strings"

	"github.com/mitchellh/go-ps"
)

// ProcessLister returns the running processes.
type ProcessLister func() ([]ps.Process, error)

// monitorExecutables are programs that usually hold a serial port open.
//
//nolint:gochecknoglobals // Read-only lookup table.
var monitorExecutables = map[string]struct{}{
	"minicom":        {},
	"picocom":        {},
	"screen":         {},
	"putty":          {},
	"tio":            {},
	"cu":             {},
	"serial-monitor": {},
	"miniterm":       {},
}

// FindMonitors lists running serial monitor processes other than this one.
func FindMonitors(list ProcessLister) ([]ps.Process, error) {
	processes, err := list()
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}

	self := os.Getpid()

	var monitors []ps.Process

	for _, process := range processes {
		if process.Pid() == self {
			continue
		}

		name := strings.TrimSuffix(strings.ToLower(process.Executable()), ".exe")
		if _, found := monitorExecutables[name]; found {
			monitors = append(monitors, process)
		}
	}

	return monitors, nil
}

// killProcess terminates a process by PID.
func killProcess(pid int) error {
	process, err := os.FindProcess(pid)
	if err != nil {
		return err
	}

	return process.Kill()
}
