package sketch

import (
	"path/filepath"
	"strings"
)

// ArtifactRole is the purpose of a compiled file when flashing.
type ArtifactRole string

// Artifact roles, in flashing order.
const (
	RoleBootloader     ArtifactRole = "bootloader"
	RolePartitions     ArtifactRole = "partitions"
	RoleBootApp0       ArtifactRole = "boot_app0"
	RoleApplication    ArtifactRole = "application"
	RoleApplicationHex ArtifactRole = "application_hex"
)

// ArtifactSet maps each role to a local file path.
type ArtifactSet map[ArtifactRole]string

// IsMergedImage reports whether name is a combined image that must not be
// written at the application offset.
func IsMergedImage(name string) bool {
	lower := strings.ToLower(name)

	return strings.Contains(lower, "with_bootloader") || strings.Contains(lower, "merged")
}

// ClassifyArtifact assigns a role to a compiled file name.
// sketchName is the sketch base name without extension.
func ClassifyArtifact(name, sketchName string) (ArtifactRole, bool) {
	lower := strings.ToLower(filepath.Base(name))

	switch {
	case strings.HasSuffix(lower, ".hex"):
		if strings.Contains(lower, "with_bootloader") {
			return "", false
		}

		return RoleApplicationHex, true
	case !strings.HasSuffix(lower, ".bin"), IsMergedImage(lower):
		return "", false
	case strings.HasSuffix(lower, ".bootloader.bin"):
		return RoleBootloader, true
	case strings.HasSuffix(lower, ".partitions.bin"):
		return RolePartitions, true
	case strings.HasSuffix(lower, "app0.bin"):
		return RoleBootApp0, true
	case strings.HasSuffix(lower, ".ino.bin"),
		lower == strings.ToLower(sketchName)+".bin":
		return RoleApplication, true
	default:
		return "", false
	}
}

// ClassifyDir builds an ArtifactSet from the file names in dir.
func ClassifyDir(dir string, names []string, sketchName string) ArtifactSet {
	set := make(ArtifactSet, len(names))

	for _, name := range names {
		if role, ok := ClassifyArtifact(name, sketchName); ok {
			set[role] = filepath.Join(dir, name)
		}
	}

	return set
}

// HasApplication reports whether the set contains something that can be flashed for family.
func (s ArtifactSet) HasApplication(family Family) bool {
	if family == FamilyAVR {
		_, ok := s[RoleApplicationHex]
		return ok
	}

	_, ok := s[RoleApplication]

	return ok
}

// Family guesses the chip family from the artifacts: a .hex means AVR.
func (s ArtifactSet) Family() Family {
	if _, ok := s[RoleApplicationHex]; ok {
		return FamilyAVR
	}

	return FamilyESP32
}
