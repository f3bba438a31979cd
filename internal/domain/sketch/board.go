package sketch

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Family is the chip family a board belongs to.
type Family string

// Supported chip families.
const (
	FamilyESP32   Family = "esp32"
	FamilyESP32C3 Family = "esp32c3"
	FamilyESP32S3 Family = "esp32s3"
	FamilyAVR     Family = "avr"
)

// IsESP32 reports whether the family is flashed with esptool.
func (f Family) IsESP32() bool {
	return f != FamilyAVR
}

// Board is a resolved build target.
type Board struct {
	// FQBN is the fully qualified board name, vendor:arch:board.
	FQBN string
	// Family selects the flash layout and the flashing tool.
	Family Family
}

// fqbnArgPrefix introduces an explicit FQBN on the command line.
const fqbnArgPrefix = "fqbn="

// errInvalidFQBN is returned for an FQBN that is not vendor:arch:board.
var errInvalidFQBN = errors.New("fqbn must look like vendor:arch:board")

// boardAliases maps short command-line names to FQBNs.
//
//nolint:gochecknoglobals // Read-only lookup table.
var boardAliases = map[string]string{
	"dev":     "esp32:esp32:esp32",
	"da":      "esp32:esp32:esp32da",
	"c3":      "esp32:esp32:esp32c3",
	"esp32c3": "esp32:esp32:esp32c3",
	"s3":      "esp32:esp32:esp32s3",
	"esp32s3": "esp32:esp32:esp32s3",
	"micro":   "arduino:avr:micro",
}

// BoardAliases returns the known alias names in sorted order.
func BoardAliases() []string {
	names := make([]string, 0, len(boardAliases))
	for name := range boardAliases {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// IsBoardArg reports whether arg selects a board (an alias or fqbn=...).
func IsBoardArg(arg string) bool {
	arg = strings.ToLower(strings.TrimSpace(arg))
	if strings.HasPrefix(arg, fqbnArgPrefix) {
		return true
	}

	_, ok := boardAliases[arg]

	return ok
}

// ResolveBoard picks the board from command-line arguments. The last board
// argument wins; without one, fallbackFQBN is used.
func ResolveBoard(args []string, fallbackFQBN string) (Board, error) {
	fqbn := fallbackFQBN

	for _, arg := range args {
		arg = strings.TrimSpace(arg)
		lower := strings.ToLower(arg)

		if strings.HasPrefix(lower, fqbnArgPrefix) {
			fqbn = arg[len(fqbnArgPrefix):]
			continue
		}

		if alias, ok := boardAliases[lower]; ok {
			fqbn = alias
		}
	}

	return NewBoard(fqbn)
}

// NewBoard validates fqbn and derives its family. Board options after the
// third segment are kept as given.
func NewBoard(fqbn string) (Board, error) {
	fqbn = strings.TrimSpace(fqbn)

	parts := strings.Split(fqbn, ":")
	if len(parts) < 3 || len(parts) > 4 {
		return Board{}, fmt.Errorf("%q: %w", fqbn, errInvalidFQBN)
	}

	for _, part := range parts {
		if part == "" {
			return Board{}, fmt.Errorf("%q: %w", fqbn, errInvalidFQBN)
		}
	}

	return Board{
		FQBN:   fqbn,
		Family: FamilyFromFQBN(fqbn),
	}, nil
}

// FamilyFromFQBN derives the chip family from an FQBN.
func FamilyFromFQBN(fqbn string) Family {
	parts := strings.Split(strings.ToLower(fqbn), ":")
	if len(parts) < 3 {
		return FamilyESP32
	}

	vendor, arch, board := parts[0], parts[1], parts[2]

	switch {
	case arch == "avr" || vendor == "arduino":
		return FamilyAVR
	case strings.Contains(board, "c3"):
		return FamilyESP32C3
	case strings.Contains(board, "s3"):
		return FamilyESP32S3
	default:
		return FamilyESP32
	}
}

// partitionOption is the board option that selects the partition table.
const partitionOption = "PartitionScheme"

// SupportsPartitions reports whether a partition scheme can be requested for the board.
func (b Board) SupportsPartitions() bool {
	return strings.HasPrefix(b.FQBN, "esp32:")
}

// HasPartitionOption reports whether the FQBN already pins a partition scheme.
func (b Board) HasPartitionOption() bool {
	_, options := b.options()
	for _, option := range options {
		if key, _, _ := strings.Cut(option, "="); key == partitionOption {
			return true
		}
	}

	return false
}

// FQBNWithScheme returns the FQBN sent to the build service for scheme. The
// scheme is merged into the existing board options, replacing any
// PartitionScheme already there.
func (b Board) FQBNWithScheme(scheme PartitionScheme) string {
	if scheme == PartitionDefault || !b.SupportsPartitions() {
		return b.FQBN
	}

	base, options := b.options()
	merged := make([]string, 0, len(options)+1)

	for _, option := range options {
		if key, _, _ := strings.Cut(option, "="); key != partitionOption {
			merged = append(merged, option)
		}
	}

	merged = append(merged, partitionOption+"="+string(scheme))

	return base + ":" + strings.Join(merged, ",")
}

// options splits the FQBN into vendor:arch:board and its comma-separated options.
func (b Board) options() (string, []string) {
	parts := strings.SplitN(b.FQBN, ":", 4)
	if len(parts) < 4 {
		return b.FQBN, nil
	}

	var options []string

	for option := range strings.SplitSeq(parts[3], ",") {
		if option = strings.TrimSpace(option); option != "" {
			options = append(options, option)
		}
	}

	return strings.Join(parts[:3], ":"), options
}
