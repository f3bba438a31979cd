package release

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/arcompile/internal/domain/sketch"
)

func writeArtifacts(t *testing.T, dir string, names ...string) sketch.ArtifactSet {
	t.Helper()

	require.NoError(t, os.MkdirAll(dir, 0o755))

	for _, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(name), 0o600))
	}

	return sketch.ClassifyDir(dir, names, "blink")
}

// TestStore_SaveLoad saves a release and loads it back with roles and metadata.
func TestStore_SaveLoad(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	set := writeArtifacts(t, filepath.Join(root, "binarios"),
		"blink.ino.bin", "blink.ino.bootloader.bin", "blink.ino.partitions.bin", "boot_app0.bin")

	store := NewStore(filepath.Join(root, "releases"))

	saved, err := store.Save(set, Meta{
		Name:       "v1",
		FQBN:       "esp32:esp32:esp32",
		Family:     sketch.FamilyESP32,
		SketchName: "blink",
	})
	require.NoError(t, err)
	require.Len(t, saved.Artifacts, 4)

	loaded, err := store.Load("v1")
	require.NoError(t, err)
	require.Equal(t, "esp32:esp32:esp32", loaded.Meta.FQBN)
	require.Equal(t, sketch.FamilyESP32, loaded.Meta.Family)
	require.Equal(t, saved.Artifacts, loaded.Artifacts)

	names, err := store.List()
	require.NoError(t, err)
	require.Equal(t, []string{"v1"}, names)
}

// TestStore_SaveRefusesOverwrite keeps an existing release intact.
func TestStore_SaveRefusesOverwrite(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	set := writeArtifacts(t, filepath.Join(root, "binarios"), "blink.ino.hex")
	store := NewStore(filepath.Join(root, "releases"))

	_, err := store.Save(set, Meta{Name: "demo"})
	require.NoError(t, err)

	_, err = store.Save(set, Meta{Name: "demo"})
	require.ErrorIs(t, err, ErrExists)
}

// TestStore_Errors covers unknown, invalid and empty releases.
func TestStore_Errors(t *testing.T) {
	t.Parallel()

	store := NewStore(t.TempDir())

	_, err := store.Load("missing")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = store.Load("../escape")
	require.ErrorIs(t, err, errBadName)

	_, err = store.Save(sketch.ArtifactSet{}, Meta{Name: "empty"})
	require.ErrorIs(t, err, ErrNoArtifacts)

	names, err := NewStore(filepath.Join(t.TempDir(), "none")).List()
	require.NoError(t, err)
	require.Empty(t, names)
}

// TestStore_LoadWithoutMeta infers the family from the files.
func TestStore_LoadWithoutMeta(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeArtifacts(t, filepath.Join(root, "old"), "sketch.ino.hex")

	loaded, err := NewStore(root).Load("old")
	require.NoError(t, err)
	require.Equal(t, sketch.FamilyAVR, loaded.Meta.Family)
	require.Contains(t, loaded.Artifacts, sketch.RoleApplicationHex)
}
