package flasher

import (
	"errors"
	"fmt"
	"os/exec"
	"strconv"

	"github.com/oshokin/arcompile/internal/domain/sketch"
)

// errNothingToFlash is returned when the set lacks every ESP32 image.
var errNothingToFlash = errors.New("no binaries to flash")

// ESPToolArgs builds the esptool write_flash arguments for set.
// Only bootloader, partitions, boot_app0 (when the family uses it) and the
// application are written, each at its family offset.
func ESPToolArgs(set sketch.ArtifactSet, family sketch.Family, port string, baud int) ([]string, error) {
	layout := sketch.LayoutFor(family)

	regions := []struct {
		role   sketch.ArtifactRole
		offset uint32
		use    bool
	}{
		{sketch.RoleBootloader, layout.Bootloader, true},
		{sketch.RolePartitions, layout.Partitions, true},
		{sketch.RoleBootApp0, layout.BootApp0, layout.UseBootApp0},
		{sketch.RoleApplication, layout.Application, true},
	}

	var parts []string

	for _, region := range regions {
		path, ok := set[region.role]
		if !ok || !region.use {
			continue
		}

		parts = append(parts, fmt.Sprintf("0x%x", region.offset), path)
	}

	if _, ok := set[sketch.RoleApplication]; !ok {
		return nil, errNothingToFlash
	}

	args := []string{
		"--port", port,
		"--baud", strconv.Itoa(baud),
		"--before", "default_reset",
		"--after", "hard_reset",
		"write_flash", "-z",
	}

	return append(args, parts...), nil
}

// AVRUploadArgs builds the arduino-cli upload arguments.
func AVRUploadArgs(fqbn, port, inputDir, sketchDir string) []string {
	return []string{
		"upload",
		"--fqbn", fqbn,
		"-p", port,
		"--input-dir", inputDir,
		sketchDir,
	}
}

// ResolveESPTool returns the command prefix that runs esptool.
// configured wins; otherwise esptool.py, esptool and python -m esptool are tried.
func ResolveESPTool(configured string) []string {
	if configured != "" {
		return []string{configured}
	}

	for _, name := range []string{"esptool.py", "esptool"} {
		if path, err := exec.LookPath(name); err == nil {
			return []string{path}
		}
	}

	for _, python := range []string{"python3", "python"} {
		if path, err := exec.LookPath(python); err == nil {
			return []string{path, "-m", "esptool"}
		}
	}

	return []string{"esptool.py"}
}

// ResolveArduinoCLI returns the arduino-cli executable.
func ResolveArduinoCLI(configured string) string {
	if configured != "" {
		return configured
	}

	if path, err := exec.LookPath("arduino-cli"); err == nil {
		return path
	}

	return "arduino-cli"
}
