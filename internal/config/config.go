// Package config provides configuration loading and management for the
// location registry server.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/SCYip/BIPH-Air-Monitoring-System/internal/registry"
)

// EnvPrefix is the prefix for environment variable overrides (e.g.
// AIRMON_LOG_LEVEL).
const EnvPrefix = "AIRMON"

const (
	defaultStoragePath = "./data"
	defaultTimeout     = 10 * time.Second
	defaultMaxRetries  = 3
)

// Option defines the interface for configuration options
type Option func(*loaderConfig) error

// loaderConfig defines the configuration for loading a configuration
type loaderConfig struct {
	path string
}

// WithConfigPath loads configuration from a YAML file
func WithConfigPath(path string) Option {
	return func(cfg *loaderConfig) error {
		if path == "" {
			return fmt.Errorf("path is required")
		}

		// Resolve symlinks to prevent symlink attacks.
		// Note that this calls filepath.Clean internally.
		realPath, err := filepath.EvalSymlinks(path)
		if err != nil {
			return fmt.Errorf("failed to evaluate symlinks: %w", err)
		}

		if !filepath.IsAbs(realPath) {
			if !filepath.IsLocal(realPath) {
				return fmt.Errorf("path is not local or contains invalid traversal: %s", path)
			}
		}

		cfg.path = realPath
		return nil
	}
}

// Config represents the root configuration structure
type Config struct {
	// RegistryName is the name/identifier for this registry instance.
	// Defaults to "campus" if not specified.
	RegistryName string `yaml:"registryName,omitempty"`

	// Storage configures where the location collection is persisted.
	Storage StorageConfig `yaml:"storage,omitempty"`

	// ThingSpeak configures the remote feeds API.
	ThingSpeak ThingSpeakConfig `yaml:"thingspeak,omitempty"`

	// Defaults is the location set used when storage is empty or corrupt
	// and by the reset operation. May be empty.
	Defaults []DefaultLocation `yaml:"defaults,omitempty"`
}

// StorageConfig defines where and under which key locations are persisted.
type StorageConfig struct {
	// Path is the storage directory. Defaults to ./data.
	Path string `yaml:"path,omitempty"`

	// Key is the storage key for the location collection.
	// Defaults to "campus_locations".
	Key string `yaml:"key,omitempty"`
}

// ThingSpeakConfig defines the remote probe/feed endpoint settings.
type ThingSpeakConfig struct {
	// Endpoint is the base API URL without a trailing path, e.g.
	// "https://api.thingspeak.com".
	Endpoint string `yaml:"endpoint,omitempty"`

	// Timeout is the per-request timeout as a duration string (e.g. "10s").
	Timeout string `yaml:"timeout,omitempty"`

	// MaxRetries is the retry budget for feed fetches. Probes never retry.
	MaxRetries int `yaml:"maxRetries,omitempty"`
}

// DefaultLocation is a location entry in the configured default set.
type DefaultLocation struct {
	ID        string `yaml:"id"`
	Name      string `yaml:"name"`
	ChannelID string `yaml:"channelId,omitempty"`
	ReadKey   string `yaml:"readKey,omitempty"`
}

// Default returns the built-in configuration used when no config file is
// given: empty default set, local ./data storage, public ThingSpeak API.
func Default() *Config {
	return &Config{}
}

// LoadConfig loads and parses configuration from a YAML file
func LoadConfig(opts ...Option) (*Config, error) {
	loaderCfg := &loaderConfig{}
	for _, opt := range opts {
		if err := opt(loaderCfg); err != nil {
			return nil, err
		}
	}

	if loaderCfg.path == "" {
		return nil, fmt.Errorf("path is required")
	}

	data, err := os.ReadFile(loaderCfg.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// GetRegistryName returns the registry name, using "campus" if not specified
func (c *Config) GetRegistryName() string {
	if c.RegistryName == "" {
		return "campus"
	}
	return c.RegistryName
}

// GetStoragePath returns the storage directory, applying the default.
func (c *Config) GetStoragePath() string {
	if c.Storage.Path == "" {
		return defaultStoragePath
	}
	return c.Storage.Path
}

// GetStorageKey returns the storage key, applying the default.
func (c *Config) GetStorageKey() string {
	if c.Storage.Key == "" {
		return registry.DefaultStorageKey
	}
	return c.Storage.Key
}

// GetEndpoint returns the ThingSpeak endpoint, applying the default.
func (c *Config) GetEndpoint() string {
	if c.ThingSpeak.Endpoint == "" {
		return "https://api.thingspeak.com"
	}
	return c.ThingSpeak.Endpoint
}

// GetTimeout returns the per-request timeout, applying the default.
// Validate has already checked the duration parses.
func (c *Config) GetTimeout() time.Duration {
	if c.ThingSpeak.Timeout == "" {
		return defaultTimeout
	}
	d, err := time.ParseDuration(c.ThingSpeak.Timeout)
	if err != nil {
		return defaultTimeout
	}
	return d
}

// GetMaxRetries returns the feed-fetch retry budget, applying the default.
func (c *Config) GetMaxRetries() uint {
	if c.ThingSpeak.MaxRetries <= 0 {
		return defaultMaxRetries
	}
	return uint(c.ThingSpeak.MaxRetries)
}

// DefaultLocations converts the configured default set to registry records.
func (c *Config) DefaultLocations() []registry.Location {
	out := make([]registry.Location, 0, len(c.Defaults))
	for _, d := range c.Defaults {
		out = append(out, registry.Location{
			ID:        d.ID,
			Name:      d.Name,
			ChannelID: d.ChannelID,
			ReadKey:   d.ReadKey,
		})
	}
	return out
}

// Validate performs validation on the configuration
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config cannot be nil")
	}

	if err := c.validateThingSpeak(); err != nil {
		return err
	}

	return c.validateDefaults()
}

// validateThingSpeak validates the remote endpoint settings
func (c *Config) validateThingSpeak() error {
	if c.ThingSpeak.Endpoint != "" {
		u, err := url.Parse(c.ThingSpeak.Endpoint)
		if err != nil {
			return fmt.Errorf("thingspeak.endpoint is not a valid URL: %w", err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("thingspeak.endpoint must use http or https, got %q", u.Scheme)
		}
	}

	if c.ThingSpeak.Timeout != "" {
		if _, err := time.ParseDuration(c.ThingSpeak.Timeout); err != nil {
			return fmt.Errorf("thingspeak.timeout must be a valid duration (e.g., '10s'): %w", err)
		}
	}

	if c.ThingSpeak.MaxRetries < 0 {
		return fmt.Errorf("thingspeak.maxRetries cannot be negative")
	}

	return nil
}

// validateDefaults validates the default location set
func (c *Config) validateDefaults() error {
	ids := make(map[string]bool)
	for i, d := range c.Defaults {
		prefix := fmt.Sprintf("defaults[%d]", i)

		if d.ID == "" {
			return fmt.Errorf("%s: id is required", prefix)
		}
		if ids[d.ID] {
			return fmt.Errorf("%s: duplicate location id '%s'", prefix, d.ID)
		}
		ids[d.ID] = true

		if d.Name == "" {
			return fmt.Errorf("%s (%s): name is required", prefix, d.ID)
		}
	}

	return nil
}
