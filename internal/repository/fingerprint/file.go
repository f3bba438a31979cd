package fingerprint

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/oshokin/arcompile/internal/config"
	"github.com/oshokin/arcompile/internal/domain/sketch"
)

// Record describes the build whose artifacts currently sit in the output directory.
type Record struct {
	// Fingerprint is the source hash the artifacts were built from.
	Fingerprint sketch.Fingerprint `yaml:"fingerprint"`
	// FQBN is the board the artifacts were built for.
	FQBN string `yaml:"fqbn,omitempty"`
	// Scheme is the partition scheme the server finally used.
	Scheme sketch.PartitionScheme `yaml:"partition_scheme,omitempty"`
	// BuiltAt is when the artifacts were collected.
	BuiltAt time.Time `yaml:"built_at,omitempty"`
}

// Repository defines persistence operations for the build record.
type Repository interface {
	Load(ctx context.Context) (*Record, error)
	Save(ctx context.Context, record *Record) error
}

// FileRepository keeps the record as YAML in a single file.
// Files written by older versions hold only the hex digest and are still understood.
type FileRepository struct {
	// path is the filesystem location of the record.
	path string
}

var (
	// ErrNotFound is returned when no build has been recorded yet.
	ErrNotFound = errors.New("build record not found")
	// errEmptyFingerprint is returned when saving an unknown fingerprint.
	errEmptyFingerprint = errors.New("fingerprint is empty")
)

// NewFileRepository creates a repository that reads/writes the record at path.
func NewFileRepository(path string) *FileRepository {
	return &FileRepository{
		path: filepath.Clean(path),
	}
}

// Load reads the record from disk.
func (r *FileRepository) Load(_ context.Context) (*Record, error) {
	contents, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("read build record: %w", err)
	}

	trimmed := strings.TrimSpace(string(contents))
	if trimmed == "" {
		return nil, ErrNotFound
	}

	var record Record
	if err = yaml.Unmarshal(contents, &record); err != nil || record.Fingerprint == "" {
		// Bare digest from the legacy format.
		if strings.ContainsAny(trimmed, ":\n ") {
			return nil, fmt.Errorf("decode build record: %w", err)
		}

		return &Record{Fingerprint: sketch.Fingerprint(trimmed)}, nil
	}

	return &record, nil
}

// Save writes the record to disk, replacing the previous one.
func (r *FileRepository) Save(_ context.Context, record *Record) error {
	if record == nil || record.Fingerprint == "" {
		return errEmptyFingerprint
	}

	data, err := yaml.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode build record: %w", err)
	}

	if err = os.WriteFile(r.path, data, config.DefaultFilePermissions); err != nil {
		return fmt.Errorf("write build record: %w", err)
	}

	return nil
}
