package sketch

import "strings"

// PartitionScheme describes how flash is split between application and filesystem.
type PartitionScheme string

// Known partition schemes.
const (
	// PartitionDefault leaves the board's default layout in place.
	PartitionDefault PartitionScheme = "default"
	// PartitionMinSPIFFS trades filesystem space for a larger application slot.
	PartitionMinSPIFFS PartitionScheme = "min_spiffs"
)

// IsPartitionArg reports whether arg forces the min_spiffs scheme.
func IsPartitionArg(arg string) bool {
	return strings.EqualFold(strings.TrimSpace(arg), string(PartitionMinSPIFFS))
}

// SchemeFromArgs returns min_spiffs if any argument asks for it.
func SchemeFromArgs(args []string) PartitionScheme {
	for _, arg := range args {
		if IsPartitionArg(arg) {
			return PartitionMinSPIFFS
		}
	}

	return PartitionDefault
}

// String implements fmt.Stringer.
func (s PartitionScheme) String() string {
	if s == "" {
		return string(PartitionDefault)
	}

	return string(s)
}
