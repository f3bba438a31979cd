package detector

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/oshokin/arcompile/internal/domain/sketch"
	"github.com/oshokin/arcompile/internal/logger"
	"github.com/oshokin/arcompile/internal/repository/fingerprint"
)

// Snapshot is the result of hashing the sketch sources.
type Snapshot struct {
	// Fingerprint is empty when a source file could not be read.
	Fingerprint sketch.Fingerprint
	// Files lists the hashed files relative to the sketch root.
	Files []string
	// Lines counts source lines in .ino, .cpp and .h files.
	Lines int
	// ReadErr collects files that could not be read.
	ReadErr error
}

// Decision explains whether a rebuild is required.
type Decision struct {
	Rebuild  bool
	Reason   string
	Current  Snapshot
	Previous *fingerprint.Record
}

// Detector compares the current sources with the last build record.
type Detector struct {
	root      string
	repo      fingerprint.Repository
	skipDirs  map[string]struct{}
	outputDir string
}

// Option configures a Detector.
type Option func(*Detector)

// WithSkipDirs excludes directories (relative to the root) from hashing.
func WithSkipDirs(dirs ...string) Option {
	return func(d *Detector) {
		for _, dir := range dirs {
			if dir != "" {
				d.skipDirs[filepath.Clean(dir)] = struct{}{}
			}
		}
	}
}

// WithOutputDir sets the artifact directory whose absence forces a rebuild.
// The directory is also excluded from hashing.
func WithOutputDir(dir string) Option {
	return func(d *Detector) {
		d.outputDir = dir
		WithSkipDirs(dir)(d)
	}
}

// Rebuild reasons reported in Decision.Reason.
const (
	ReasonNoRecord     = "no previous build"
	ReasonChanged      = "sources changed"
	ReasonUnreadable   = "unreadable source file"
	ReasonBoardChanged = "board changed"
	ReasonForced       = "partition scheme forced"
	ReasonNoArtifacts  = "artifacts missing"
	ReasonUpToDate     = "up to date"
)

// New creates a detector for the sketch rooted at root.
func New(root string, repo fingerprint.Repository, opts ...Option) *Detector {
	d := &Detector{
		root:     filepath.Clean(root),
		repo:     repo,
		skipDirs: map[string]struct{}{"build": {}},
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Compute hashes the recognized source files. Unreadable files do not fail
// the walk: they leave the fingerprint empty and are listed in ReadErr.
func (d *Detector) Compute(ctx context.Context) (Snapshot, error) {
	var (
		snap   Snapshot
		hasher = sha256.New()
	)

	err := filepath.WalkDir(d.root, func(path string, entry fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		if err != nil {
			if path == d.root {
				return err
			}

			snap.ReadErr = errors.Join(snap.ReadErr, err)

			return nil
		}

		rel, relErr := filepath.Rel(d.root, path)
		if relErr != nil {
			return relErr
		}

		if entry.IsDir() {
			if rel != "." && d.skipDir(rel, entry.Name()) {
				return filepath.SkipDir
			}

			return nil
		}

		linked := entry.Type()&fs.ModeSymlink != 0
		if (!entry.Type().IsRegular() && !linked) || !sketch.IsSourceFile(entry.Name()) {
			return nil
		}

		contents, fileErr := os.ReadFile(path)
		if fileErr != nil {
			snap.ReadErr = errors.Join(snap.ReadErr, fmt.Errorf("read %s: %w", rel, fileErr))
			return nil
		}

		writeRecord(hasher, filepath.ToSlash(rel), contents)
		snap.Files = append(snap.Files, filepath.ToSlash(rel))

		if !strings.EqualFold(filepath.Ext(rel), ".txt") {
			snap.Lines += countLines(contents)
		}

		return nil
	})
	if err != nil {
		return Snapshot{}, fmt.Errorf("walk sketch: %w", err)
	}

	if snap.ReadErr != nil {
		return snap, nil
	}

	snap.Fingerprint = sketch.Fingerprint(hex.EncodeToString(hasher.Sum(nil)))

	return snap, nil
}

// Check decides whether a rebuild is needed for board. forced is true when
// a partition scheme was requested explicitly on the command line.
func (d *Detector) Check(ctx context.Context, board sketch.Board, forced bool) (*Decision, error) {
	ctx = logger.WithName(ctx, "detector")

	snap, err := d.Compute(ctx)
	if err != nil {
		return nil, err
	}

	decision := &Decision{Current: snap}

	if snap.ReadErr != nil {
		logger.WarnKV(ctx, "Some sources could not be read, forcing a rebuild", "error", snap.ReadErr)

		decision.Rebuild, decision.Reason = true, ReasonUnreadable

		return decision, nil
	}

	previous, err := d.repo.Load(ctx)

	switch {
	case errors.Is(err, fingerprint.ErrNotFound):
		decision.Rebuild, decision.Reason = true, ReasonNoRecord

		return decision, nil
	case err != nil:
		logger.WarnKV(ctx, "Build record unreadable, forcing a rebuild", "error", err)

		decision.Rebuild, decision.Reason = true, ReasonNoRecord

		return decision, nil
	}

	decision.Previous = previous

	switch {
	case !snap.Fingerprint.Matches(previous.Fingerprint):
		decision.Rebuild, decision.Reason = true, ReasonChanged
	case previous.FQBN != "" && previous.FQBN != board.FQBN:
		decision.Rebuild, decision.Reason = true, ReasonBoardChanged
	case forced:
		decision.Rebuild, decision.Reason = true, ReasonForced
	case !d.hasArtifacts():
		decision.Rebuild, decision.Reason = true, ReasonNoArtifacts
	default:
		decision.Reason = ReasonUpToDate
	}

	logger.DebugKV(ctx, "Change check finished",
		"files", len(snap.Files), "rebuild", decision.Rebuild, "reason", decision.Reason)

	return decision, nil
}

func (d *Detector) skipDir(rel, name string) bool {
	if strings.HasPrefix(name, ".") {
		return true
	}

	_, skip := d.skipDirs[filepath.Clean(rel)]

	return skip
}

func (d *Detector) hasArtifacts() bool {
	if d.outputDir == "" {
		return true
	}

	dir := d.outputDir
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(d.root, dir)
	}

	entries, err := os.ReadDir(dir)

	return err == nil && len(entries) > 0
}

// writeRecord frames one file as path length, path, content length, content,
// so moving bytes between files or renaming a file changes the digest.
func writeRecord(w io.Writer, rel string, contents []byte) {
	var size [8]byte

	binary.BigEndian.PutUint64(size[:], uint64(len(rel)))
	_, _ = w.Write(size[:])
	_, _ = io.WriteString(w, rel)

	binary.BigEndian.PutUint64(size[:], uint64(len(contents)))
	_, _ = w.Write(size[:])
	_, _ = w.Write(contents)
}

func countLines(contents []byte) int {
	if len(contents) == 0 {
		return 0
	}

	lines := bytes.Count(contents, []byte{'\n'})
	if contents[len(contents)-1] != '\n' {
		lines++
	}

	return lines
}
