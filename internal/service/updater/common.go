package updater

import (
	"crypto"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"

	// Ensure SHA512 available for checksum calculation.
	_ "crypto/sha512"
)

var (
	errHashUnavailable = errors.New("hash function unavailable")
	errNoAsset         = errors.New("no release asset for platform")
	errNoChecksum      = errors.New("checksum missing for file")
	errBadVersion      = errors.New("invalid version")
)

const (
	// VersionFilename is the release manifest published next to the binaries.
	VersionFilename = "arcompile-version.yaml"

	// DefaultFileMode is applied to installed executables.
	DefaultFileMode os.FileMode = 0o755

	// DefaultChecksumFunction is used to calculate release file hashes.
	DefaultChecksumFunction crypto.Hash = crypto.SHA512

	// assetPrefix starts every release binary name.
	assetPrefix = "arcompile_"
)

// Description is the release manifest.
type Description struct {
	// VersionNumber is the semantic version of this release.
	VersionNumber string `yaml:"version"`
	// Files maps filenames to their base64-encoded SHA-512 checksums.
	Files map[string]string `yaml:"files"`
	// Assets maps "goos/goarch" to the binary built for that platform.
	Assets map[string]string `yaml:"assets"`
}

// NewDescription returns an empty manifest for versionNumber.
func NewDescription(versionNumber string) *Description {
	return &Description{
		VersionNumber: versionNumber,
		Files:         make(map[string]string),
		Assets:        make(map[string]string),
	}
}

// Platform is the manifest key for a GOOS/GOARCH pair.
func Platform(goos, goarch string) string {
	return goos + "/" + goarch
}

// AssetName is the published binary name for a platform.
func AssetName(goos, goarch string) string {
	name := assetPrefix + goos + "_" + goarch
	if goos == "windows" {
		name += ".exe"
	}

	return name
}

// ParseAssetName is the inverse of AssetName.
func ParseAssetName(name string) (goos, goarch string, ok bool) {
	rest, found := strings.CutPrefix(strings.TrimSuffix(name, ".exe"), assetPrefix)
	if !found {
		return "", "", false
	}

	goos, goarch, found = strings.Cut(rest, "_")
	if !found || goos == "" || goarch == "" {
		return "", "", false
	}

	return goos, goarch, true
}

// AddAsset records a platform binary and its checksum.
func (d *Description) AddAsset(goos, goarch, name string, checksum []byte) {
	d.Assets[Platform(goos, goarch)] = name
	d.Files[name] = base64.StdEncoding.EncodeToString(checksum)
}

// AssetFor returns the asset name and expected checksum for a platform.
func (d *Description) AssetFor(goos, goarch string) (string, []byte, error) {
	name, ok := d.Assets[Platform(goos, goarch)]
	if !ok {
		return "", nil, fmt.Errorf("%s: %w", Platform(goos, goarch), errNoAsset)
	}

	encoded, ok := d.Files[name]
	if !ok {
		return "", nil, fmt.Errorf("%s: %w", name, errNoChecksum)
	}

	checksum, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", nil, fmt.Errorf("decode checksum of %s: %w", name, err)
	}

	return name, checksum, nil
}

// Platforms lists the manifest platforms in sorted order.
func (d *Description) Platforms() []string {
	platforms := make([]string, 0, len(d.Assets))
	for platform := range d.Assets {
		platforms = append(platforms, platform)
	}

	sort.Strings(platforms)

	return platforms
}

// IsNewer reports whether remote is a later semantic version than local.
// An unparsable local version (a dev build) always yields true.
func IsNewer(local, remote string) (bool, error) {
	remoteVersion, err := semver.NewVersion(remote)
	if err != nil {
		return false, fmt.Errorf("%w %q: %w", errBadVersion, remote, err)
	}

	localVersion, err := semver.NewVersion(local)
	if err != nil {
		return true, nil //nolint:nilerr // Unversioned builds are always replaced.
	}

	return remoteVersion.GreaterThan(localVersion), nil
}

// GetFileChecksum returns checksum bytes for a file using DefaultChecksumFunction.
func GetFileChecksum(path string) ([]byte, error) {
	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, err
	}

	return Checksum(contents)
}

// Checksum hashes data with DefaultChecksumFunction.
func Checksum(data []byte) ([]byte, error) {
	if !DefaultChecksumFunction.Available() {
		return nil, fmt.Errorf("checksum calculation not possible: %w", errHashUnavailable)
	}

	hasher := DefaultChecksumFunction.New()
	if _, err := hasher.Write(data); err != nil {
		return nil, fmt.Errorf("calculate checksum: %w", err)
	}

	return hasher.Sum(nil), nil
}
