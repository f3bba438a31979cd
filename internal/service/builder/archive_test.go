package builder

import (
	"archive/tar"
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/require"
)

// TestPack_ProducesTarZstd checks that the archive holds every file with its relative path.
func TestPack_ProducesTarZstd(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "src"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "blink.ino"), []byte("void setup(){}"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "src", "led.cpp"), []byte("int led = 2;"), 0o600))

	var buf bytes.Buffer
	require.NoError(t, Pack(context.Background(), dir, []string{"blink.ino", "src/led.cpp"}, &buf))

	decoder, err := zstd.NewReader(&buf)
	require.NoError(t, err)

	defer decoder.Close()

	got := map[string]string{}
	tr := tar.NewReader(decoder)

	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}

		require.NoError(t, err)

		data, err := io.ReadAll(tr)
		require.NoError(t, err)

		got[header.Name] = string(data)
	}

	require.Equal(t, map[string]string{
		"blink.ino":   "void setup(){}",
		"src/led.cpp": "int led = 2;",
	}, got)
}

// TestPack_MissingFile fails instead of uploading a partial sketch.
func TestPack_MissingFile(t *testing.T) {
	t.Parallel()

	err := Pack(context.Background(), t.TempDir(), []string{"gone.ino"}, io.Discard)
	require.Error(t, err)
}

// TestReadLibraries_Missing returns nothing when libraries.txt is absent.
func TestReadLibraries_Missing(t *testing.T) {
	t.Parallel()

	libs, err := ReadLibraries(t.TempDir())
	require.NoError(t, err)
	require.Empty(t, libs)
}
