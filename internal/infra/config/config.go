// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Server   ServerConfig            `yaml:"server"`
	Catalog  CatalogConfig           `yaml:"catalog"`
	Playback PlaybackConfig          `yaml:"playback"`
	Audio    AudioConfig             `yaml:"audio"`
	History  HistoryConfig           `yaml:"history"`
	Filters  map[string]FilterConfig `yaml:"filters"`
	Log      LogConfig               `yaml:"log"`
}

// ServerConfig represents control server configuration.
type ServerConfig struct {
	Addr  string      `yaml:"addr" default:":8080"`
	Token string      `yaml:"token"` // Empty disables control authentication
	Hooks HooksConfig `yaml:"hooks"`
}

// HooksConfig represents lifecycle hooks configuration.
type HooksConfig struct {
	OnStarted []string `yaml:"on_started"`
	OnStopped []string `yaml:"on_stopped"`
}

// CatalogConfig represents music API configuration.
type CatalogConfig struct {
	BaseURL        string `yaml:"base_url" validate:"required,url"`
	TimeoutMs      int    `yaml:"timeout_ms" default:"10000" validate:"gte=100,lte=120000"`
	CredentialFile string `yaml:"credential_file"`
}

// PlaybackConfig represents playback engine configuration.
type PlaybackConfig struct {
	ProgressIntervalMs int `yaml:"progress_interval_ms" default:"250" validate:"gte=10,lte=5000"`
	LoadTimeoutMs      int `yaml:"load_timeout_ms" default:"30000" validate:"gte=100"`
	EventBuffer        int `yaml:"event_buffer" default:"64" validate:"gte=1"`
}

// AudioConfig represents audio backend configuration.
type AudioConfig struct {
	Backend  string         `yaml:"backend" default:"clock" validate:"oneof=clock decoder"`
	Settings map[string]any `yaml:"settings,omitempty"`
}

// FilterConfig represents a queue filter's configuration.
type FilterConfig struct {
	Enabled  bool           `yaml:"enabled"`
	Settings map[string]any `yaml:"settings,omitempty"`
}

// HistoryConfig represents play history configuration.
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path" default:"trackdeck.db"`
}

// LogConfig represents logging configuration.
type LogConfig struct {
	Level      string `yaml:"level" default:"info" validate:"oneof=debug info warn warning error"`
	File       string `yaml:"file"` // Empty logs to stdout
	MaxSizeMB  int    `yaml:"max_size_mb" default:"10" validate:"gte=1"`
	MaxBackups int    `yaml:"max_backups" default:"3" validate:"gte=0"`
	MaxAgeDays int    `yaml:"max_age_days" default:"28" validate:"gte=0"`
	Compress   bool   `yaml:"compress"`
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values for sensitive fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}
	return Parse(data)
}

// Parse parses configuration from YAML bytes.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	// Override with environment variables
	cfg.overrideFromEnv()

	// Set defaults using creasty/defaults
	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("TRACKDECK_API_URL"); v != "" {
		c.Catalog.BaseURL = v
	}
	if v := os.Getenv("TRACKDECK_CONTROL_TOKEN"); v != "" {
		c.Server.Token = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}
	return nil
}

// CredentialPath returns the credential file path, defaulting to the user config dir.
func (c *Config) CredentialPath() (string, error) {
	if c.Catalog.CredentialFile != "" {
		return c.Catalog.CredentialFile, nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", errors.Wrap(err, "failed to resolve user config dir")
	}
	return filepath.Join(dir, "trackdeck", "credential.yaml"), nil
}

// CatalogTimeout returns the catalog request timeout.
func (c *Config) CatalogTimeout() time.Duration {
	return time.Duration(c.Catalog.TimeoutMs) * time.Millisecond
}

// ProgressInterval returns the position reporting period.
func (c *Config) ProgressInterval() time.Duration {
	return time.Duration(c.Playback.ProgressIntervalMs) * time.Millisecond
}

// LoadTimeout returns the audio acquisition timeout.
func (c *Config) LoadTimeout() time.Duration {
	return time.Duration(c.Playback.LoadTimeoutMs) * time.Millisecond
}
