// Package config loads client configuration from a TOML file, a local
// .env file, and MERIDIAN_* environment variables, in that order of
// increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// Config is the full client configuration.
type Config struct {
	Backend BackendConfig `toml:"backend"`
	Storage StorageConfig `toml:"storage"`
	Ingest  IngestConfig  `toml:"ingest"`
}

// BackendConfig locates the Meridian analysis backend.
type BackendConfig struct {
	BaseURL  string `toml:"base_url"`
	APIToken string `toml:"api_token"`
}

// StorageConfig selects the project store implementation.
type StorageConfig struct {
	// Mode is "local" (SQLite) or "remote" (backend REST CRUD).
	Mode    string `toml:"mode"`
	DataDir string `toml:"data_dir"`
}

// IngestConfig tunes the file ingestion pipeline.
type IngestConfig struct {
	// Concurrency > 1 enables the bounded worker pool. The default
	// of 1 processes files one at a time, which caps backend load.
	Concurrency int `toml:"concurrency"`
}

func defaults() Config {
	return Config{
		Backend: BackendConfig{
			BaseURL: "http://127.0.0.1:8600",
		},
		Storage: StorageConfig{
			Mode:    "local",
			DataDir: defaultDataDir(),
		},
		Ingest: IngestConfig{
			Concurrency: 1,
		},
	}
}

func defaultDataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "meridian")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".meridian"
	}
	return filepath.Join(home, ".local", "share", "meridian")
}

// DefaultPath returns the config file location.
func DefaultPath() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "meridian", "config.toml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.toml"
	}
	return filepath.Join(home, ".config", "meridian", "config.toml")
}

// Load reads configuration from DefaultPath.
func Load() (Config, error) {
	return LoadFrom(DefaultPath())
}

// LoadFrom reads the TOML file at path (missing file is fine: defaults
// apply), loads a .env file if one exists in the working directory,
// applies MERIDIAN_* environment overrides, and validates the result.
func LoadFrom(path string) (Config, error) {
	// .env is a developer convenience; ignore its absence.
	_ = godotenv.Load()

	cfg := defaults()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		// defaults + env only
	case err != nil:
		return Config{}, fmt.Errorf("reading config %s: %w", path, err)
	default:
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MERIDIAN_BASE_URL"); v != "" {
		cfg.Backend.BaseURL = v
	}
	if v := os.Getenv("MERIDIAN_API_TOKEN"); v != "" {
		cfg.Backend.APIToken = v
	}
	if v := os.Getenv("MERIDIAN_STORAGE_MODE"); v != "" {
		cfg.Storage.Mode = v
	}
	if v := os.Getenv("MERIDIAN_DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("MERIDIAN_INGEST_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Ingest.Concurrency = n
		}
	}
}

func (c Config) validate() error {
	if c.Backend.BaseURL == "" {
		return fmt.Errorf("config: backend.base_url must not be empty")
	}
	if c.Storage.Mode != "local" && c.Storage.Mode != "remote" {
		return fmt.Errorf("config: storage.mode must be \"local\" or \"remote\", got %q", c.Storage.Mode)
	}
	if c.Ingest.Concurrency < 1 {
		return fmt.Errorf("config: ingest.concurrency must be >= 1, got %d", c.Ingest.Concurrency)
	}
	return nil
}
