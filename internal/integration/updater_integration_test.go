package integration

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/arcompile/internal/config"
	"github.com/oshokin/arcompile/internal/service/packager"
	"github.com/oshokin/arcompile/internal/service/updater"
)

// publishRelease packages a fake binary for this platform and serves the folder.
func publishRelease(t *testing.T, versionNumber, payload string) *httptest.Server {
	t.Helper()

	dir := t.TempDir()
	asset := updater.AssetName(runtime.GOOS, runtime.GOARCH)
	require.NoError(t, os.WriteFile(filepath.Join(dir, asset), []byte(payload), 0o755))

	_, err := packager.Run(t.Context(), &packager.Options{Version: versionNumber, Dir: dir})
	require.NoError(t, err)

	srv := httptest.NewServer(http.FileServer(http.Dir(dir)))
	t.Cleanup(srv.Close)

	return srv
}

func installed(t *testing.T) string {
	t.Helper()

	target := filepath.Join(t.TempDir(), "arcompile")
	require.NoError(t, os.WriteFile(target, []byte("installed"), 0o755))

	return target
}

func updaterOptions(srv *httptest.Server, target, current string) *updater.Options {
	cfg := config.Default()
	cfg.UpdateURL = srv.URL

	return &updater.Options{Config: cfg, TargetPath: target, CurrentVersion: current}
}

// TestUpdate_LatestIsNoop checks that nothing is touched when versions match.
func TestUpdate_LatestIsNoop(t *testing.T) {
	t.Parallel()

	srv := publishRelease(t, "1.4.0", "released")
	target := installed(t)

	before, err := os.Stat(target)
	require.NoError(t, err)

	result, err := updater.Run(t.Context(), updaterOptions(srv, target, "1.4.0"))
	require.NoError(t, err)
	require.False(t, result.Updated)

	after, err := os.Stat(target)
	require.NoError(t, err)
	require.Equal(t, before.ModTime(), after.ModTime())

	entries, err := os.ReadDir(filepath.Dir(target))
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

// TestUpdate_InstallsPackagedRelease goes from packager output to an installed binary.
func TestUpdate_InstallsPackagedRelease(t *testing.T) {
	t.Parallel()

	srv := publishRelease(t, "1.5.0", "released")
	target := installed(t)

	result, err := updater.Run(t.Context(), updaterOptions(srv, target, "1.4.0"))
	require.NoError(t, err)
	require.True(t, result.Updated)

	contents, err := os.ReadFile(target)
	require.NoError(t, err)
	require.Equal(t, "released", string(contents))
}
