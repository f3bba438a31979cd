package release

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/oshokin/arcompile/internal/config"
	"github.com/oshokin/arcompile/internal/domain/sketch"
)

// MetaFilename is the per-release metadata file.
const MetaFilename = ".meta"

// Meta describes a saved release.
type Meta struct {
	Name       string        `yaml:"name"`
	Date       time.Time     `yaml:"date"`
	FQBN       string        `yaml:"fqbn"`
	Family     sketch.Family `yaml:"family"`
	SketchName string        `yaml:"sketch"`
}

// Release is a loaded snapshot ready to flash.
type Release struct {
	Dir       string
	Meta      Meta
	Artifacts sketch.ArtifactSet
}

var (
	// ErrExists is returned when saving over an existing release.
	ErrExists = errors.New("release already exists")
	// ErrNotFound is returned for an unknown release name.
	ErrNotFound = errors.New("release not found")
	// ErrNoArtifacts is returned when there is nothing flashable to save.
	ErrNoArtifacts = errors.New("no flashable artifacts")
	// errBadName is returned for names that are not a single path segment.
	errBadName = errors.New("invalid release name")
)

//nolint:gochecknoglobals // Compiled once.
var validName = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// Store manages releases under a root directory.
type Store struct {
	root string
}

// NewStore returns a store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{root: filepath.Clean(dir)}
}

// Save copies the flashable files of set into a new release called meta.Name.
func (s *Store) Save(set sketch.ArtifactSet, meta Meta) (*Release, error) {
	if !validName.MatchString(meta.Name) {
		return nil, fmt.Errorf("%q: %w", meta.Name, errBadName)
	}

	if len(set) == 0 {
		return nil, ErrNoArtifacts
	}

	dst := filepath.Join(s.root, meta.Name)
	if _, err := os.Stat(dst); err == nil {
		return nil, fmt.Errorf("%s: %w", meta.Name, ErrExists)
	}

	if err := os.MkdirAll(dst, config.DefaultDirPermissions); err != nil {
		return nil, fmt.Errorf("create release dir: %w", err)
	}

	copied := make(sketch.ArtifactSet, len(set))

	for role, src := range set {
		target := filepath.Join(dst, filepath.Base(src))
		if err := copyFile(src, target); err != nil {
			_ = os.RemoveAll(dst)

			return nil, fmt.Errorf("copy %s: %w", role, err)
		}

		copied[role] = target
	}

	if meta.Date.IsZero() {
		meta.Date = time.Now()
	}

	data, err := yaml.Marshal(&meta)
	if err != nil {
		_ = os.RemoveAll(dst)

		return nil, fmt.Errorf("encode release meta: %w", err)
	}

	if err = os.WriteFile(filepath.Join(dst, MetaFilename), data, config.DefaultFilePermissions); err != nil {
		_ = os.RemoveAll(dst)

		return nil, fmt.Errorf("write release meta: %w", err)
	}

	return &Release{Dir: dst, Meta: meta, Artifacts: copied}, nil
}

// Load reads a release and classifies its files.
func (s *Store) Load(name string) (*Release, error) {
	if !validName.MatchString(name) {
		return nil, fmt.Errorf("%q: %w", name, errBadName)
	}

	dir := filepath.Join(s.root, name)

	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
		}

		return nil, fmt.Errorf("read release: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.Type().IsRegular() && entry.Name() != MetaFilename {
			names = append(names, entry.Name())
		}
	}

	meta := Meta{Name: name}

	data, err := os.ReadFile(filepath.Join(dir, MetaFilename))

	switch {
	case err == nil:
		if err = yaml.Unmarshal(data, &meta); err != nil {
			return nil, fmt.Errorf("decode release meta: %w", err)
		}
	case !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("read release meta: %w", err)
	}

	set := sketch.ClassifyDir(dir, names, meta.SketchName)
	if len(set) == 0 {
		return nil, fmt.Errorf("%s: %w", name, ErrNoArtifacts)
	}

	if meta.Family == "" {
		meta.Family = set.Family()
	}

	return &Release{Dir: dir, Meta: meta, Artifacts: set}, nil
}

// List returns the names of all saved releases in sorted order.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}

		return nil, fmt.Errorf("read releases: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			names = append(names, entry.Name())
		}
	}

	sort.Strings(names)

	return names, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(filepath.Clean(src))
	if err != nil {
		return err
	}

	defer func() {
		_ = in.Close()
	}()

	out, err := os.OpenFile(filepath.Clean(dst), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, config.DefaultFilePermissions)
	if err != nil {
		return err
	}

	if _, err = io.Copy(out, in); err != nil {
		_ = out.Close()

		return err
	}

	return out.Close()
}
