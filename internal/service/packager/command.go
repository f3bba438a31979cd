package packager

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"

	"github.com/oshokin/arcompile/internal/logger"
	"github.com/oshokin/arcompile/internal/service/updater"
)

var (
	errNoBinaries     = errors.New("no release binaries found")
	errVersionMissing = errors.New("version is required")
)

// Options contains inputs for the packager entry point.
type Options struct {
	// Version is the semantic version being published.
	Version string
	// Dir holds the arcompile_<goos>_<goarch>[.exe] binaries.
	Dir string
}

// packager prepares update metadata (manifest) for distribution.
type packager struct {
	dir  string
	desc *updater.Description
}

// Run writes the manifest and returns its path.
func Run(ctx context.Context, opts *Options) (string, error) {
	ctx = logger.WithName(ctx, "packager")

	versionNumber := strings.TrimSpace(opts.Version)
	if versionNumber == "" {
		return "", errVersionMissing
	}

	parsed, err := semver.NewVersion(versionNumber)
	if err != nil {
		return "", fmt.Errorf("parse version %q: %w", versionNumber, err)
	}

	dir := opts.Dir
	if dir == "" {
		dir = "."
	}

	pkg := &packager{
		dir:  dir,
		desc: updater.NewDescription(parsed.String()),
	}

	manifestPath, err := pkg.Run(ctx)
	if err != nil {
		return "", fmt.Errorf("packager failed: %w", err)
	}

	logger.Info(ctx, "Packager completed successfully")

	return manifestPath, nil
}

// Run populates and writes the update description (manifest) to disk.
func (p *packager) Run(ctx context.Context) (string, error) {
	logger.InfoKV(ctx, "Preparing update description", "dir", p.dir)

	if err := p.fillDescription(ctx); err != nil {
		return "", err
	}

	manifestPath := filepath.Join(p.dir, updater.VersionFilename)

	logger.InfoKV(ctx, "Saving update description", "path", manifestPath)

	if err := p.saveDescription(manifestPath); err != nil {
		return "", err
	}

	p.printNextSteps(ctx)

	return manifestPath, nil
}

// fillDescription records a checksum for every platform binary in the folder.
func (p *packager) fillDescription(ctx context.Context) error {
	entries, err := os.ReadDir(p.dir)
	if err != nil {
		return fmt.Errorf("read %s: %w", p.dir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		goos, goarch, ok := updater.ParseAssetName(entry.Name())
		if !ok {
			continue
		}

		checksum, err := updater.GetFileChecksum(filepath.Join(p.dir, entry.Name()))
		if err != nil {
			return err
		}

		p.desc.AddAsset(goos, goarch, entry.Name(), checksum)
		logger.DebugKV(ctx, "Added release binary", "file", entry.Name(), "platform", updater.Platform(goos, goarch))
	}

	if len(p.desc.Assets) == 0 {
		return fmt.Errorf("%s: %w", p.dir, errNoBinaries)
	}

	return nil
}

func (p *packager) saveDescription(path string) error {
	contents, err := yaml.Marshal(p.desc)
	if err != nil {
		return err
	}

	return os.WriteFile(path, contents, updater.DefaultFileMode)
}

// printNextSteps logs which files must be published.
func (p *packager) printNextSteps(ctx context.Context) {
	var builder strings.Builder

	builder.WriteString("Upload the following files of version ")
	builder.WriteString(p.desc.VersionNumber)
	builder.WriteString(" to the update URL:\n")
	builder.WriteString(updater.VersionFilename)

	for _, platform := range p.desc.Platforms() {
		builder.WriteString(",\n")
		builder.WriteString(p.desc.Assets[platform])
	}

	logger.Info(ctx, builder.String())
}
