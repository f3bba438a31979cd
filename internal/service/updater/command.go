package updater

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"runtime"

	goupdate "github.com/doitdistributed/go-update"
	"gopkg.in/yaml.v3"

	"github.com/oshokin/arcompile/internal/config"
	"github.com/oshokin/arcompile/internal/logger"
	"github.com/oshokin/arcompile/internal/version"
)

var (
	errBadHTTPStatus     = errors.New("unexpected http status")
	errChecksumMismatch  = errors.New("downloaded file checksum mismatch")
	errRollbackFailed    = errors.New("rollback failed, the executable may be missing")
	errEmptyDescription  = errors.New("update description is empty")
	errSettingsNotLoaded = errors.New("settings are not initialized")
)

// Options are inputs accepted by the updater entry point.
type Options struct {
	// Config supplies the update URL and timeout. Nil loads ConfigPath.
	Config *config.Config
	// ConfigPath is the optional path to settings YAML file.
	ConfigPath string
	// TargetPath is the executable to replace. Empty means the running binary.
	TargetPath string
	// CurrentVersion overrides the installed version (defaults to version.Short).
	CurrentVersion string
	// HTTPClient overrides the client used for downloads.
	HTTPClient *http.Client
}

// Result describes what an update run did.
type Result struct {
	// Updated is true when a new binary was installed.
	Updated bool
	// From is the version that was running.
	From string
	// To is the latest published version.
	To string
}

// runner holds the state of a single update execution.
type runner struct {
	cfg                *config.Config
	client             *http.Client
	description        *Description
	targetPath         string
	localVersion       string
	temporaryDirectory string
}

// Run checks for a newer release and installs it.
func Run(ctx context.Context, opts *Options) (*Result, error) {
	ctx = logger.WithName(ctx, "updater")

	up, err := newRunner(opts)
	if err != nil {
		return nil, err
	}

	defer up.cleanup(ctx)

	result, err := up.Run(ctx)
	if err != nil {
		logger.ErrorKV(ctx, "Update failed", "error", err)
		return nil, err
	}

	return result, nil
}

func newRunner(opts *Options) (*runner, error) {
	cfg := opts.Config
	if cfg == nil {
		var err error

		if cfg, err = config.Load(opts.ConfigPath); err != nil {
			return nil, err
		}
	}

	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}

	localVersion := opts.CurrentVersion
	if localVersion == "" {
		localVersion = version.Short()
	}

	return &runner{
		cfg:          cfg,
		client:       client,
		targetPath:   opts.TargetPath,
		localVersion: localVersion,
	}, nil
}

// Run executes the update workflow:
// 1) Fetch the manifest.
// 2) Compare versions.
// 3) Download and verify the platform asset.
// 4) Apply it with rollback.
func (u *runner) Run(ctx context.Context) (*Result, error) {
	logger.InfoKV(ctx, "Downloading the update description", "url", u.cfg.UpdateURL)

	if err := u.fillUpdateDescription(ctx); err != nil {
		return nil, fmt.Errorf("download update description: %w", err)
	}

	result := &Result{From: u.localVersion, To: u.description.VersionNumber}

	newer, err := IsNewer(u.localVersion, u.description.VersionNumber)
	if err != nil {
		return nil, err
	}

	if !newer {
		logger.InfoKV(ctx, "Already up to date", "version", u.localVersion)
		return result, nil
	}

	logger.InfoKV(ctx, "Update available", "local", u.localVersion, "remote", u.description.VersionNumber)

	name, checksum, err := u.description.AssetFor(runtime.GOOS, runtime.GOARCH)
	if err != nil {
		return nil, err
	}

	downloaded, err := u.downloadFile(ctx, name, checksum)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", name, err)
	}

	if err = u.apply(ctx, downloaded, checksum); err != nil {
		return nil, err
	}

	result.Updated = true

	logger.InfoKV(ctx, "Update installed", "version", u.description.VersionNumber)

	return result, nil
}

// fillUpdateDescription downloads and parses the remote update manifest.
func (u *runner) fillUpdateDescription(ctx context.Context) error {
	if u.cfg == nil {
		return errSettingsNotLoaded
	}

	response, err := u.getFileBodyFromServer(ctx, VersionFilename)
	if err != nil {
		return err
	}

	defer func() {
		_ = response.Body.Close()
	}()

	data, err := io.ReadAll(response.Body)
	if err != nil {
		return err
	}

	var desc Description
	if err = yaml.Unmarshal(data, &desc); err != nil {
		return err
	}

	if desc.VersionNumber == "" {
		return errEmptyDescription
	}

	u.description = &desc

	return nil
}

// getFileBodyFromServer fetches a file from the update folder.
func (u *runner) getFileBodyFromServer(ctx context.Context, fileName string) (*http.Response, error) {
	updateURL, err := url.Parse(u.cfg.UpdateURL)
	if err != nil {
		return nil, err
	}

	// Use path.Join to normalize duplicate slashes when composing the URL path.
	updateURL.Path = path.Join(updateURL.Path, fileName)
	finalURL := updateURL.String()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, finalURL, http.NoBody)
	if err != nil {
		return nil, err
	}

	req.Header.Set("User-Agent", version.UserAgent())

	response, err := u.client.Do(req)
	if err != nil {
		return nil, err
	}

	if response.StatusCode != http.StatusOK {
		_ = response.Body.Close()
		return nil, fmt.Errorf("%s, %s: %w", finalURL, response.Status, errBadHTTPStatus)
	}

	return response, nil
}

// downloadFile stores fileName in the temporary directory and verifies it.
func (u *runner) downloadFile(ctx context.Context, fileName string, checksum []byte) (string, error) {
	temporaryDirectory, err := os.MkdirTemp("", "arcompile-update-")
	if err != nil {
		return "", err
	}

	u.temporaryDirectory = temporaryDirectory

	response, err := u.getFileBodyFromServer(ctx, fileName)
	if err != nil {
		return "", err
	}

	defer func() {
		_ = response.Body.Close()
	}()

	outputFileName := filepath.Join(temporaryDirectory, filepath.Base(fileName))

	outputFile, err := os.Create(outputFileName)
	if err != nil {
		return "", err
	}

	if _, err = io.Copy(outputFile, response.Body); err != nil {
		_ = outputFile.Close()
		return "", err
	}

	if err = outputFile.Close(); err != nil {
		return "", err
	}

	actual, err := GetFileChecksum(outputFileName)
	if err != nil {
		return "", err
	}

	if !bytes.Equal(actual, checksum) {
		return "", fmt.Errorf("%s: %w", fileName, errChecksumMismatch)
	}

	logger.InfoKV(ctx, "Downloaded file", "path", outputFileName)

	return outputFileName, nil
}

// apply swaps the executable. go-update renames the old binary aside before
// moving the new one in, restores it if the move fails and then deletes it.
func (u *runner) apply(ctx context.Context, downloaded string, checksum []byte) error {
	data, err := os.ReadFile(filepath.Clean(downloaded))
	if err != nil {
		return err
	}

	options := goupdate.Options{
		TargetPath: u.targetPath,
		TargetMode: DefaultFileMode,
		Checksum:   checksum,
		Hash:       DefaultChecksumFunction,
	}

	logger.Debug(ctx, "Applying update")

	if err = goupdate.Apply(bytes.NewReader(data), options); err != nil {
		if rollbackErr := goupdate.RollbackError(err); rollbackErr != nil {
			return fmt.Errorf("%w: %w", errRollbackFailed, rollbackErr)
		}

		return fmt.Errorf("apply update: %w", err)
	}

	return nil
}

// cleanup removes temporary artifacts.
func (u *runner) cleanup(ctx context.Context) {
	if u.temporaryDirectory != "" {
		_ = os.RemoveAll(u.temporaryDirectory)
	}

	logger.Debug(ctx, "The updater has been stopped")
}
