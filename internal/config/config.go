// Package config holds walship configuration: a yaml file for the static
// parts (endpoints, exclusion rules) with CI environment overrides layered
// on top, so a bare `walship deploy` works inside a workflow step.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all walship configuration.
type Config struct {
	// Root is the directory tree to package. Defaults to ".".
	Root string `yaml:"root"`

	// Output is where the snapshot artifact is written before upload.
	// Empty means a file in the system temp directory.
	Output string `yaml:"output"`

	// Checkout identification, normally injected by the CI environment.
	Repository string `yaml:"repository"`
	Branch     string `yaml:"branch"`
	Commit     string `yaml:"commit"`

	Publisher PublisherConfig `yaml:"publisher"`
	Updater   UpdaterConfig   `yaml:"updater"`
	Exclude   ExcludeConfig   `yaml:"exclude"`
	History   HistoryConfig   `yaml:"history"`
	Watch     WatchConfig     `yaml:"watch"`
}

// PublisherConfig configures the Walrus publisher endpoint.
type PublisherConfig struct {
	BaseURL string `yaml:"base_url"`
	// Epochs is how many storage epochs the blob is paid for.
	Epochs  int    `yaml:"epochs"`
	Token   string `yaml:"token"`
	Timeout string `yaml:"timeout"`
}

// UpdaterConfig configures the name-record update endpoint.
type UpdaterConfig struct {
	BaseURL string `yaml:"base_url"`
	// Label is the name-service label the content identifier is bound to.
	Label   string `yaml:"label"`
	Token   string `yaml:"token"`
	Timeout string `yaml:"timeout"`
}

// ExcludeConfig overrides the built-in exclusion rules when non-empty.
type ExcludeConfig struct {
	Dirs        []string `yaml:"dirs"`
	Extensions  []string `yaml:"extensions"`
	Files       []string `yaml:"files"`
	MaxFileSize int64    `yaml:"max_file_size"`
}

// HistoryConfig configures the local publish ledger.
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// WatchConfig configures `walship watch`.
type WatchConfig struct {
	// Debounce is how long the tree must stay quiet before a burst of
	// filesystem events triggers a deploy.
	Debounce string `yaml:"debounce"`
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *Config {
	return &Config{
		Root: ".",
		Publisher: PublisherConfig{
			Epochs:  5,
			Timeout: "60s",
		},
		Updater: UpdaterConfig{
			Timeout: "30s",
		},
		History: HistoryConfig{
			Enabled: true,
			Path:    filepath.Join(".walship", "history.db"),
		},
		Watch: WatchConfig{
			Debounce: "2s",
		},
	}
}

// Load reads a yaml config file, falls back to defaults for anything the
// file omits, and applies environment overrides. A missing file is not an
// error: CI runs are expected to configure everything via environment.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("config: read %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the configuration as yaml, mainly for bootstrapping a config
// file to edit and for tests.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("config: create dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}

// applyEnvOverrides layers CI environment variables over the file values.
// GitHub Actions variables cover the checkout identity; WALSHIP_* variables
// cover endpoints and secrets that do not belong in a committed file.
func (c *Config) applyEnvOverrides() {
	setIfEnv(&c.Repository, "GITHUB_REPOSITORY")
	setIfEnv(&c.Branch, "GITHUB_REF_NAME")
	setIfEnv(&c.Commit, "GITHUB_SHA")

	setIfEnv(&c.Publisher.BaseURL, "WALSHIP_PUBLISHER_URL")
	setIfEnv(&c.Publisher.Token, "WALSHIP_PUBLISHER_TOKEN")
	setIfEnv(&c.Updater.BaseURL, "WALSHIP_UPDATER_URL")
	setIfEnv(&c.Updater.Token, "WALSHIP_UPDATER_TOKEN")
	setIfEnv(&c.Updater.Label, "WALSHIP_ENS_LABEL")
}

func setIfEnv(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// Validate checks what a full deploy needs. `walship pack` does not call
// it; packaging alone has no required endpoints.
func (c *Config) Validate() error {
	if c.Publisher.BaseURL == "" {
		return fmt.Errorf("config: publisher base_url is required (set WALSHIP_PUBLISHER_URL)")
	}
	if c.Updater.BaseURL == "" {
		return fmt.Errorf("config: updater base_url is required (set WALSHIP_UPDATER_URL)")
	}
	if c.Updater.Label == "" {
		return fmt.Errorf("config: updater label is required (set WALSHIP_ENS_LABEL)")
	}
	if c.Publisher.Epochs <= 0 {
		return fmt.Errorf("config: publisher epochs must be positive, got %d", c.Publisher.Epochs)
	}
	return nil
}

// Duration parses a yaml duration string, falling back when empty or bad.
func Duration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
