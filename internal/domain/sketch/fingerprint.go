package sketch

import (
	"path/filepath"
	"strings"
)

// Fingerprint is the hex SHA-256 over the recognized sketch sources.
// The zero value means "unknown" and never matches another fingerprint.
type Fingerprint string

// Matches reports whether two fingerprints are known and equal.
func (f Fingerprint) Matches(other Fingerprint) bool {
	return f != "" && f == other
}

// IsSourceFile reports whether the file takes part in the fingerprint and the upload.
func IsSourceFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".ino", ".cpp", ".h", ".txt":
		return true
	default:
		return false
	}
}
