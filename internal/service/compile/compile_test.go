package compile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/arcompile/internal/config"
	"github.com/oshokin/arcompile/internal/domain/sketch"
)

func TestParseArgs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		args       []string
		wantFQBN   string
		wantScheme sketch.PartitionScheme
		wantErr    error
	}{
		{name: "defaults", wantFQBN: config.DefaultFQBN, wantScheme: sketch.PartitionDefault},
		{name: "alias", args: []string{"c3"}, wantFQBN: "esp32:esp32:esp32c3", wantScheme: sketch.PartitionDefault},
		{
			name:       "min_spiffs",
			args:       []string{"dev", "min_spiffs"},
			wantFQBN:   "esp32:esp32:esp32",
			wantScheme: sketch.PartitionMinSPIFFS,
		},
		{
			name:       "partition ignored on avr",
			args:       []string{"micro", "min_spiffs"},
			wantFQBN:   "arduino:avr:micro",
			wantScheme: sketch.PartitionDefault,
		},
		{
			name:       "explicit fqbn",
			args:       []string{"fqbn=esp32:esp32:lolin32"},
			wantFQBN:   "esp32:esp32:lolin32",
			wantScheme: sketch.PartitionDefault,
		},
		{name: "unknown", args: []string{"banana"}, wantErr: errUnknownArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			board, scheme, err := ParseArgs(tt.args, config.DefaultFQBN)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}

			require.NoError(t, err)
			require.Equal(t, tt.wantFQBN, board.FQBN)
			require.Equal(t, tt.wantScheme, scheme)
		})
	}
}

func TestResolveLayout(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "blink")
	require.NoError(t, os.MkdirAll(dir, 0o755))

	cfg := config.Default()
	cfg.ReleasesDir = filepath.Join(t.TempDir(), "shared-releases")

	layout, err := ResolveLayout(dir, cfg)
	require.NoError(t, err)
	require.Equal(t, "blink", layout.Name)
	require.Equal(t, filepath.Join(dir, "binarios"), layout.OutputDir)
	require.Equal(t, filepath.Join(dir, ".build_hash"), layout.HashFile)
	require.Equal(t, cfg.ReleasesDir, layout.ReleasesDir)
	require.Equal(t, filepath.Join(dir, LogFilename), layout.LogFile)

	require.Equal(t, "binarios", layout.relative(layout.OutputDir))
	require.Empty(t, layout.relative(layout.ReleasesDir))

	require.ErrorIs(t, layout.EnsureSketch(), ErrNoSketch)

	require.NoError(t, os.WriteFile(layout.SketchFile(), []byte("void loop() {}\n"), 0o600))
	require.NoError(t, layout.EnsureSketch())
}

func TestRun_RequiresSketch(t *testing.T) {
	t.Parallel()

	_, err := Run(t.Context(), &Options{Config: config.Default(), Dir: t.TempDir()})
	require.ErrorIs(t, err, ErrNoSketch)
}
