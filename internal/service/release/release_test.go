package release

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/arcompile/internal/config"
	"github.com/oshokin/arcompile/internal/domain/sketch"
	"github.com/oshokin/arcompile/internal/repository/fingerprint"
	store "github.com/oshokin/arcompile/internal/repository/release"
	"github.com/oshokin/arcompile/internal/service/flasher"
)

type recordingFlasher struct {
	targets []*flasher.Target
}

func (f *recordingFlasher) Flash(_ context.Context, target *flasher.Target) error {
	f.targets = append(f.targets, target)
	return nil
}

// sketchDir creates blink/ with a built ESP32 artifact set.
func sketchDir(t *testing.T, files ...string) string {
	t.Helper()

	dir := filepath.Join(t.TempDir(), "blink")
	out := filepath.Join(dir, config.DefaultOutputDir)
	require.NoError(t, os.MkdirAll(out, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "blink.ino"), []byte("void setup() {}\n"), 0o600))

	for _, name := range files {
		require.NoError(t, os.WriteFile(filepath.Join(out, name), []byte(name), 0o600))
	}

	return dir
}

func options(dir string, f *recordingFlasher) *Options {
	return &Options{Config: config.Default(), Dir: dir, Flasher: f}
}

func TestSaveAndFlash(t *testing.T) {
	t.Parallel()

	dir := sketchDir(t, "blink.ino.bin", "blink.ino.bootloader.bin", "blink.ino.partitions.bin")

	repo := fingerprint.NewFileRepository(filepath.Join(dir, config.DefaultHashFile))
	require.NoError(t, repo.Save(t.Context(), &fingerprint.Record{Fingerprint: "abc", FQBN: "esp32:esp32:esp32c3"}))

	f := new(recordingFlasher)

	saved, err := Save(t.Context(), options(dir, f), "v1")
	require.NoError(t, err)
	require.Equal(t, "esp32:esp32:esp32c3", saved.Meta.FQBN)
	require.Equal(t, sketch.FamilyESP32C3, saved.Meta.Family)
	require.FileExists(t, filepath.Join(dir, config.DefaultReleasesDir, "v1", store.MetaFilename))

	_, err = Save(t.Context(), options(dir, f), "v1")
	require.ErrorIs(t, err, store.ErrExists)

	names, err := List(options(dir, f))
	require.NoError(t, err)
	require.Equal(t, []string{"v1"}, names)

	opts := options(dir, f)
	opts.Port = "COM5"

	require.NoError(t, Flash(t.Context(), opts, "v1"))
	require.Len(t, f.targets, 1)

	target := f.targets[0]
	require.Equal(t, "COM5", target.Port)
	require.Equal(t, sketch.FamilyESP32C3, target.Board.Family)
	require.Equal(t, filepath.Join(saved.Dir, "blink.ino.bin"), target.Artifacts[sketch.RoleApplication])
}

func TestSave_InfersBoardWithoutRecord(t *testing.T) {
	t.Parallel()

	dir := sketchDir(t, "blink.ino.hex")

	saved, err := Save(t.Context(), options(dir, new(recordingFlasher)), "avr-build")
	require.NoError(t, err)
	require.Empty(t, saved.Meta.FQBN)
	require.Equal(t, sketch.FamilyAVR, saved.Meta.Family)

	// The default board is an ESP32, so an AVR release without an FQBN cannot be flashed.
	err = Flash(t.Context(), options(dir, new(recordingFlasher)), "avr-build")
	require.ErrorIs(t, err, errUnknownBoard)
}

func TestSave_NothingToSave(t *testing.T) {
	t.Parallel()

	dir := sketchDir(t, "blink.ino.bootloader.bin")

	_, err := Save(t.Context(), options(dir, new(recordingFlasher)), "v1")
	require.ErrorIs(t, err, store.ErrNoArtifacts)
}

func TestFlash_UnknownRelease(t *testing.T) {
	t.Parallel()

	f := new(recordingFlasher)

	err := Flash(t.Context(), options(sketchDir(t), f), "missing")
	require.ErrorIs(t, err, store.ErrNotFound)
	require.Empty(t, f.targets)
}
