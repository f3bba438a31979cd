package collector

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/oshokin/arcompile/internal/config"
	"github.com/oshokin/arcompile/internal/domain/sketch"
	"github.com/oshokin/arcompile/internal/logger"
	"github.com/oshokin/arcompile/internal/service/common"
)

// Downloader fetches one artifact of a build.
type Downloader interface {
	DownloadArtifact(ctx context.Context, buildID, name string, w io.Writer) (int64, error)
}

// Collector replaces the output directory with the artifacts of a build.
type Collector struct {
	client    Downloader
	outputDir string
}

var (
	// errNoArtifacts is returned for a build that announced no files.
	errNoArtifacts = errors.New("build returned no artifacts")
	// errBadArtifactName is returned for names that would escape the output directory.
	errBadArtifactName = errors.New("invalid artifact name")
	// errSizeMismatch is returned when fewer or more bytes than announced arrive.
	errSizeMismatch = errors.New("artifact size mismatch")
	// errChecksumMismatch is returned when the SHA-256 digest differs.
	errChecksumMismatch = errors.New("artifact checksum mismatch")
	// errNoApplication is returned when nothing flashable was produced.
	errNoApplication = errors.New("build produced no application image")
)

// New creates a collector writing into outputDir.
func New(client Downloader, outputDir string) *Collector {
	return &Collector{
		client:    client,
		outputDir: filepath.Clean(outputDir),
	}
}

// Collect downloads every artifact of build. On any failure the output
// directory keeps its previous contents.
func (c *Collector) Collect(
	ctx context.Context,
	build *common.BuildResponse,
	family sketch.Family,
	sketchName string,
) (sketch.ArtifactSet, error) {
	ctx = logger.WithName(ctx, "collector")

	if build == nil || len(build.Artifacts) == 0 {
		return nil, errNoArtifacts
	}

	parent := filepath.Dir(c.outputDir)
	if err := os.MkdirAll(parent, config.DefaultDirPermissions); err != nil {
		return nil, fmt.Errorf("create output parent: %w", err)
	}

	staging, err := os.MkdirTemp(parent, "."+filepath.Base(c.outputDir)+"-staging-")
	if err != nil {
		return nil, fmt.Errorf("create staging dir: %w", err)
	}

	committed := false

	defer func() {
		if !committed {
			_ = os.RemoveAll(staging)
		}
	}()

	names := make([]string, 0, len(build.Artifacts))

	for _, artifact := range build.Artifacts {
		if err = c.fetch(ctx, build.BuildID, artifact, staging); err != nil {
			return nil, err
		}

		names = append(names, artifact.Name)

		if sketch.IsMergedImage(artifact.Name) {
			logger.InfoKV(ctx, "Ignoring combined image", "file", artifact.Name)
		}
	}

	if !sketch.ClassifyDir(staging, names, sketchName).HasApplication(family) {
		return nil, fmt.Errorf("%s: %w", strings.Join(names, ", "), errNoApplication)
	}

	if err = swapDir(staging, c.outputDir); err != nil {
		return nil, err
	}

	committed = true

	logger.InfoKV(ctx, "Artifacts downloaded", "dir", c.outputDir, "files", len(names))

	return sketch.ClassifyDir(c.outputDir, names, sketchName), nil
}

// fetch downloads one artifact into dir and verifies it.
func (c *Collector) fetch(ctx context.Context, buildID string, artifact common.Artifact, dir string) error {
	name := artifact.Name
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%q: %w", name, errBadArtifactName)
	}

	file, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, config.DefaultFilePermissions)
	if err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}

	hasher := sha256.New()

	n, err := c.client.DownloadArtifact(ctx, buildID, name, io.MultiWriter(file, hasher))
	if closeErr := file.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("close %s: %w", name, closeErr)
	}

	if err != nil {
		return err
	}

	if artifact.Size > 0 && n != artifact.Size {
		return fmt.Errorf("%s: got %d bytes, want %d: %w", name, n, artifact.Size, errSizeMismatch)
	}

	if artifact.SHA256 != "" && !strings.EqualFold(hex.EncodeToString(hasher.Sum(nil)), artifact.SHA256) {
		return fmt.Errorf("%s: %w", name, errChecksumMismatch)
	}

	logger.DebugKV(ctx, "Downloaded artifact", "file", name, "bytes", n)

	return nil
}

// swapDir moves staging to target, keeping the old target until the move succeeded.
func swapDir(staging, target string) error {
	backup := ""

	if _, err := os.Stat(target); err == nil {
		backup = fmt.Sprintf("%s.old-%d", target, os.Getpid())
		_ = os.RemoveAll(backup)

		if err = os.Rename(target, backup); err != nil {
			return fmt.Errorf("move previous artifacts aside: %w", err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat output dir: %w", err)
	}

	if err := os.Chmod(staging, config.DefaultDirPermissions); err != nil {
		return fmt.Errorf("chmod staging dir: %w", err)
	}

	if err := os.Rename(staging, target); err != nil {
		if backup != "" {
			_ = os.Rename(backup, target)
		}

		return fmt.Errorf("install artifacts: %w", err)
	}

	if backup != "" {
		_ = os.RemoveAll(backup)
	}

	return nil
}

// Existing classifies the files already present in dir. A missing directory
// yields an empty set.
func Existing(dir, sketchName string) (sketch.ArtifactSet, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return sketch.ArtifactSet{}, nil
		}

		return nil, fmt.Errorf("read %s: %w", dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.Type().IsRegular() {
			names = append(names, entry.Name())
		}
	}

	return sketch.ClassifyDir(dir, names, sketchName), nil
}
