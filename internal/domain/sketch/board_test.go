package sketch

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestResolveBoard covers aliases, explicit fqbn= arguments and the fallback.
func TestResolveBoard(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		args   []string
		fqbn   string
		family Family
	}{
		{name: "fallback", args: nil, fqbn: "esp32:esp32:esp32", family: FamilyESP32},
		{name: "alias c3", args: []string{"c3"}, fqbn: "esp32:esp32:esp32c3", family: FamilyESP32C3},
		{name: "alias upper", args: []string{"S3"}, fqbn: "esp32:esp32:esp32s3", family: FamilyESP32S3},
		{name: "micro", args: []string{"micro", "min_spiffs"}, fqbn: "arduino:avr:micro", family: FamilyAVR},
		{name: "explicit", args: []string{"fqbn=esp32:esp32:esp32da"}, fqbn: "esp32:esp32:esp32da", family: FamilyESP32},
		{name: "last wins", args: []string{"dev", "c3"}, fqbn: "esp32:esp32:esp32c3", family: FamilyESP32C3},
		{
			name:   "explicit with options",
			args:   []string{"fqbn=esp32:esp32:esp32:PartitionScheme=huge_app,CPUFreq=80"},
			fqbn:   "esp32:esp32:esp32:PartitionScheme=huge_app,CPUFreq=80",
			family: FamilyESP32,
		},
		{
			name:   "s3 with options",
			args:   []string{"fqbn=esp32:esp32:esp32s3:USBMode=hwcdc"},
			fqbn:   "esp32:esp32:esp32s3:USBMode=hwcdc",
			family: FamilyESP32S3,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			board, err := ResolveBoard(tc.args, "esp32:esp32:esp32")
			require.NoError(t, err)
			require.Equal(t, tc.fqbn, board.FQBN)
			require.Equal(t, tc.family, board.Family)
		})
	}
}

// TestNewBoard_Invalid rejects FQBNs without three segments or with a malformed options segment.
func TestNewBoard_Invalid(t *testing.T) {
	t.Parallel()

	for _, fqbn := range []string{"", "esp32", "esp32::esp32", "a:b", "esp32:esp32:esp32:", "a:b:c:d:e"} {
		_, err := NewBoard(fqbn)
		require.ErrorIs(t, err, errInvalidFQBN, fqbn)
	}
}

// TestFQBNWithScheme only appends the partition option for ESP32 boards.
func TestFQBNWithScheme(t *testing.T) {
	t.Parallel()

	esp, err := NewBoard("esp32:esp32:esp32")
	require.NoError(t, err)
	require.Equal(t, "esp32:esp32:esp32", esp.FQBNWithScheme(PartitionDefault))
	require.Equal(t, "esp32:esp32:esp32:PartitionScheme=min_spiffs", esp.FQBNWithScheme(PartitionMinSPIFFS))

	avr, err := NewBoard("arduino:avr:micro")
	require.NoError(t, err)
	require.False(t, avr.SupportsPartitions())
	require.Equal(t, "arduino:avr:micro", avr.FQBNWithScheme(PartitionMinSPIFFS))
}

// TestFQBNWithScheme_MergesOptions keeps user board options and never adds a fifth segment.
func TestFQBNWithScheme_MergesOptions(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name          string
		fqbn          string
		want          string
		hasPartitions bool
	}{
		{
			name: "other options kept",
			fqbn: "esp32:esp32:esp32:CPUFreq=80",
			want: "esp32:esp32:esp32:CPUFreq=80,PartitionScheme=min_spiffs",
		},
		{
			name:          "existing scheme replaced",
			fqbn:          "esp32:esp32:esp32:PartitionScheme=huge_app,CPUFreq=80",
			want:          "esp32:esp32:esp32:CPUFreq=80,PartitionScheme=min_spiffs",
			hasPartitions: true,
		},
		{
			name:          "scheme only",
			fqbn:          "esp32:esp32:esp32c3:PartitionScheme=huge_app",
			want:          "esp32:esp32:esp32c3:PartitionScheme=min_spiffs",
			hasPartitions: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			board, err := NewBoard(tc.fqbn)
			require.NoError(t, err)
			require.Equal(t, tc.fqbn, board.FQBN)
			require.Equal(t, tc.hasPartitions, board.HasPartitionOption())
			require.Equal(t, tc.fqbn, board.FQBNWithScheme(PartitionDefault))
			require.Equal(t, tc.want, board.FQBNWithScheme(PartitionMinSPIFFS))
			require.Len(t, strings.Split(board.FQBNWithScheme(PartitionMinSPIFFS), ":"), 4)
		})
	}
}

// TestArgumentPredicates checks the helpers used by the CLI argument validator.
func TestArgumentPredicates(t *testing.T) {
	t.Parallel()

	require.True(t, IsBoardArg("micro"))
	require.True(t, IsBoardArg("fqbn=esp32:esp32:esp32"))
	require.False(t, IsBoardArg("min_spiffs"))
	require.True(t, IsPartitionArg("MIN_SPIFFS"))
	require.Equal(t, PartitionMinSPIFFS, SchemeFromArgs([]string{"c3", "min_spiffs"}))
	require.Equal(t, PartitionDefault, SchemeFromArgs([]string{"c3"}))
	require.Contains(t, BoardAliases(), "esp32c3")
}
