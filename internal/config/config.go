package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the settings shared by every arcompile command.
type Config struct {
	// ServerURL is the base URL of the remote build service.
	ServerURL string `yaml:"server_url"`
	// UpdateURL is the folder URL where the release manifest and binaries are published.
	UpdateURL string `yaml:"update_url"`
	// FQBN is the board used when no alias or fqbn= argument is given.
	FQBN string `yaml:"fqbn"`
	// Baud is the serial speed passed to the flashing tool.
	Baud int `yaml:"baud"`
	// FlashTool overrides the esptool executable lookup.
	FlashTool string `yaml:"flash_tool,omitempty"`
	// ArduinoCLI overrides the arduino-cli executable lookup (AVR uploads).
	ArduinoCLI string `yaml:"arduino_cli,omitempty"`
	// Timeout bounds every HTTP call to the build and update servers.
	Timeout time.Duration `yaml:"timeout"`
	// OutputDir is where downloaded binaries are stored.
	OutputDir string `yaml:"output_dir"`
	// HashFile stores the fingerprint of the last successful build.
	HashFile string `yaml:"hash_file"`
	// ReleasesDir holds named snapshots of OutputDir.
	ReleasesDir string `yaml:"releases_dir"`
}

const (
	// DefaultConfigFilename is looked up in the sketch directory.
	DefaultConfigFilename = "arcompile.yaml"

	// DefaultServerURL is the build service used when nothing else is configured.
	DefaultServerURL = "http://localhost:8088"

	// DefaultUpdateURL is where release manifests are published.
	DefaultUpdateURL = "https://github.com/jaestefaniah27/online_compiler/releases/latest/download"

	// DefaultFQBN is the classic ESP32 dev module.
	DefaultFQBN = "esp32:esp32:esp32"

	// DefaultBaud is the first speed esptool is asked to use.
	DefaultBaud = 921600

	// DefaultTimeout covers an upload plus a full remote compile.
	DefaultTimeout = 5 * time.Minute

	// DefaultOutputDir is the artifact directory relative to the sketch.
	DefaultOutputDir = "binarios"

	// DefaultHashFile is the fingerprint cache relative to the sketch.
	DefaultHashFile = ".build_hash"

	// DefaultReleasesDir is the release store relative to the sketch.
	DefaultReleasesDir = "releases"

	// DefaultFilePermissions is the default file permission for config files.
	DefaultFilePermissions = 0o600

	// DefaultDirPermissions is used for every directory arcompile creates.
	DefaultDirPermissions = 0o755
)

// Environment variables that override file settings.
const (
	EnvServerURL  = "ARCOMPILE_SERVER_URL"
	EnvUpdateURL  = "ARCOMPILE_UPDATE_URL"
	EnvFQBN       = "ARCOMPILE_FQBN"
	EnvFlashTool  = "ESPTOOL"
	EnvArduinoCLI = "ARDUINO_CLI"
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errNegativeBaud is returned for a non-positive baud rate.
	errNegativeBaud = errors.New("baud rate must be positive")
)

// Default returns a configuration populated with defaults only.
func Default() *Config {
	cfg := new(Config)

	// Defaults always validate.
	_ = Validate(cfg)

	return cfg
}

// Load reads configuration from path, applies .env and environment overrides,
// and validates the result. A missing file is not an error.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	var cfg Config

	contents, err := os.ReadFile(filepath.Clean(path))

	switch {
	case err == nil:
		if err = yaml.Unmarshal(contents, &cfg); err != nil {
			return nil, fmt.Errorf("unmarshal settings: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("read settings: %w", err)
	}

	if err = loadDotEnv(); err != nil {
		return nil, err
	}

	applyEnv(&cfg)

	if err = Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes cfg to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate fills defaults and checks the URLs and numeric fields.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	setDefault(&cfg.ServerURL, DefaultServerURL)
	setDefault(&cfg.UpdateURL, DefaultUpdateURL)
	setDefault(&cfg.FQBN, DefaultFQBN)
	setDefault(&cfg.OutputDir, DefaultOutputDir)
	setDefault(&cfg.HashFile, DefaultHashFile)
	setDefault(&cfg.ReleasesDir, DefaultReleasesDir)

	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	if cfg.Baud == 0 {
		cfg.Baud = DefaultBaud
	}

	if cfg.Baud < 0 {
		return fmt.Errorf("%d: %w", cfg.Baud, errNegativeBaud)
	}

	if err := validateHTTPURL(cfg.ServerURL); err != nil {
		return fmt.Errorf("invalid server url: %w", err)
	}

	if err := validateHTTPURL(cfg.UpdateURL); err != nil {
		return fmt.Errorf("invalid update url: %w", err)
	}

	return nil
}

// loadDotEnv reads .env from the working directory without overriding
// variables that are already set.
func loadDotEnv() error {
	if _, err := os.Stat(".env"); err != nil {
		return nil //nolint:nilerr // No .env file is the common case.
	}

	if err := godotenv.Load(".env"); err != nil {
		return fmt.Errorf("load .env: %w", err)
	}

	return nil
}

func applyEnv(cfg *Config) {
	overrides := map[string]*string{
		EnvServerURL:  &cfg.ServerURL,
		EnvUpdateURL:  &cfg.UpdateURL,
		EnvFQBN:       &cfg.FQBN,
		EnvFlashTool:  &cfg.FlashTool,
		EnvArduinoCLI: &cfg.ArduinoCLI,
	}

	for name, target := range overrides {
		if value := strings.TrimSpace(os.Getenv(name)); value != "" {
			*target = value
		}
	}
}

func setDefault(field *string, value string) {
	if strings.TrimSpace(*field) == "" {
		*field = value
	}
}

func validateHTTPURL(raw string) error {
	u, err := url.ParseRequestURI(raw)
	if err != nil {
		return err
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	return nil
}
