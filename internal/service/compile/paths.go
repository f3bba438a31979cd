package compile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/oshokin/arcompile/internal/config"
)

// LogFilename receives the compiler output of the last successful build.
const LogFilename = "compile.log"

// ErrNoSketch is returned when the directory holds no <dir>.ino file.
var ErrNoSketch = errors.New("no sketch found")

// Layout is the set of paths a sketch directory uses.
type Layout struct {
	// Root is the absolute sketch directory.
	Root string
	// Name is the sketch name, equal to the directory name.
	Name string
	// OutputDir is the artifact directory.
	OutputDir string
	// HashFile is the fingerprint cache.
	HashFile string
	// ReleasesDir is the release store.
	ReleasesDir string
	// LogFile receives compiler output.
	LogFile string
}

// ResolveLayout anchors the configured paths at dir.
func ResolveLayout(dir string, cfg *config.Config) (*Layout, error) {
	if dir == "" {
		dir = "."
	}

	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve sketch dir: %w", err)
	}

	return &Layout{
		Root:        root,
		Name:        filepath.Base(root),
		OutputDir:   anchor(root, cfg.OutputDir),
		HashFile:    anchor(root, cfg.HashFile),
		ReleasesDir: anchor(root, cfg.ReleasesDir),
		LogFile:     filepath.Join(root, LogFilename),
	}, nil
}

// SketchFile is the main .ino of the sketch.
func (l *Layout) SketchFile() string {
	return filepath.Join(l.Root, l.Name+".ino")
}

// EnsureSketch checks that the main .ino exists.
func (l *Layout) EnsureSketch() error {
	info, err := os.Stat(l.SketchFile())
	if err != nil || info.IsDir() {
		return fmt.Errorf("%s: %w", l.SketchFile(), ErrNoSketch)
	}

	return nil
}

// relative returns path relative to the root, or "" when it lies outside.
func (l *Layout) relative(path string) string {
	rel, err := filepath.Rel(l.Root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return ""
	}

	return rel
}

func anchor(root, path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}

	return filepath.Join(root, path)
}
