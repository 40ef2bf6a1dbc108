// Package config provides configuration loading and management for the catalog aggregator.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/stacklok/catalog-aggregator/internal/telemetry"
)

const (
	// EnvPrefix is the prefix of environment variables read by the CLI (e.g. CATALOG_LOG_LEVEL)
	EnvPrefix = "CATALOG"

	// DefaultFetchTimeout is the deadline applied to every single outbound fetch
	DefaultFetchTimeout = 7 * time.Second

	// DefaultMaxResponseSize is the largest catalog body accepted from a source (10MB)
	DefaultMaxResponseSize = 10 * 1024 * 1024

	// DefaultConcurrency is the number of workers resolving sources in parallel
	DefaultConcurrency = 20

	// DefaultCacheTTL is how long an aggregation result is served before it is rebuilt
	DefaultCacheTTL = 30 * time.Minute

	// DefaultRefreshTimeout bounds a whole aggregation run
	DefaultRefreshTimeout = 5 * time.Minute

	// DefaultPort is the port the API listens on when neither PORT nor an address is configured
	DefaultPort = "3000"
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

		if !filepath.IsAbs(realPath) && !filepath.IsLocal(realPath) {
			return fmt.Errorf("path is not local or contains invalid traversal: %s", path)
		}

		cfg.path = realPath
		return nil
	}
}

// Config represents the root configuration structure
type Config struct {
	// Sources is the ordered list of catalog source base URLs.
	// Defaults to DefaultSources if empty.
	Sources []string `yaml:"sources,omitempty"`

	Fetch       *FetchConfig       `yaml:"fetch,omitempty"`
	Aggregation *AggregationConfig `yaml:"aggregation,omitempty"`
	Cache       *CacheConfig       `yaml:"cache,omitempty"`
	Server      *ServerConfig      `yaml:"server,omitempty"`
	Telemetry   *telemetry.Config  `yaml:"telemetry,omitempty"`
}

// FetchConfig defines how individual source documents are fetched
type FetchConfig struct {
	// Timeout is the deadline of a single GET (e.g. "7s")
	Timeout string `yaml:"timeout,omitempty"`

	// MaxResponseSize is the maximum accepted body size in bytes
	MaxResponseSize int64 `yaml:"maxResponseSize,omitempty"`

	// Suffixes overrides the ordered list of path suffixes tried per source.
	// An empty string entry means the bare source URL.
	Suffixes []string `yaml:"suffixes,omitempty"`
}

// AggregationConfig defines the aggregation worker pool
type AggregationConfig struct {
	// Concurrency is the number of sources resolved in parallel
	Concurrency int `yaml:"concurrency,omitempty"`

	// RefreshTimeout bounds a complete aggregation run (e.g. "5m")
	RefreshTimeout string `yaml:"refreshTimeout,omitempty"`
}

// CacheConfig defines the result cache
type CacheConfig struct {
	// TTL is how long an aggregation result stays fresh (e.g. "30m")
	TTL string `yaml:"ttl,omitempty"`
}

// ServerConfig defines the HTTP server
type ServerConfig struct {
	// Address is the listen address, e.g. ":3000"
	Address string `yaml:"address,omitempty"`

	// StaticDir is the directory of the prebuilt front-end bundle
	StaticDir string `yaml:"staticDir,omitempty"`
}

// LoadConfig loads and validates the configuration.
// Without WithConfigPath the built-in defaults are returned.
func LoadConfig(opts ...Option) (*Config, error) {
	loaderCfg := &loaderConfig{}
	for _, opt := range opts {
		if err := opt(loaderCfg); err != nil {
			return nil, err
		}
	}

	var config Config
	if loaderCfg.path != "" {
		data, err := os.ReadFile(loaderCfg.path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// GetSources returns the configured sources or DefaultSources
func (c *Config) GetSources() []string {
	if len(c.Sources) == 0 {
		return DefaultSources
	}
	return c.Sources
}

// GetFetchTimeout returns the per-request fetch deadline
func (c *Config) GetFetchTimeout() time.Duration {
	if c.Fetch == nil {
		return DefaultFetchTimeout
	}
	return parseDurationOr(c.Fetch.Timeout, DefaultFetchTimeout)
}

// GetMaxResponseSize returns the maximum accepted body size
func (c *Config) GetMaxResponseSize() int64 {
	if c.Fetch == nil || c.Fetch.MaxResponseSize <= 0 {
		return DefaultMaxResponseSize
	}
	return c.Fetch.MaxResponseSize
}

// GetSuffixes returns the suffix candidates in priority order
func (c *Config) GetSuffixes() []string {
	if c.Fetch == nil || len(c.Fetch.Suffixes) == 0 {
		return DefaultSuffixes
	}
	return c.Fetch.Suffixes
}

// GetConcurrency returns the aggregation worker count
func (c *Config) GetConcurrency() int {
	if c.Aggregation == nil || c.Aggregation.Concurrency <= 0 {
		return DefaultConcurrency
	}
	return c.Aggregation.Concurrency
}

// GetRefreshTimeout returns the deadline of a full aggregation run
func (c *Config) GetRefreshTimeout() time.Duration {
	if c.Aggregation == nil {
		return DefaultRefreshTimeout
	}
	return parseDurationOr(c.Aggregation.RefreshTimeout, DefaultRefreshTimeout)
}

// GetCacheTTL returns the result cache TTL
func (c *Config) GetCacheTTL() time.Duration {
	if c.Cache == nil {
		return DefaultCacheTTL
	}
	return parseDurationOr(c.Cache.TTL, DefaultCacheTTL)
}

// GetAddress returns the configured listen address, or "" when unset
func (c *Config) GetAddress() string {
	if c.Server == nil {
		return ""
	}
	return c.Server.Address
}

// GetStaticDir returns the configured front-end directory, or "" when unset
func (c *Config) GetStaticDir() string {
	if c.Server == nil {
		return ""
	}
	return c.Server.StaticDir
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if c == nil {
		return fmt.Errorf("config cannot be nil")
	}

	var errs []error

	seen := make(map[string]bool, len(c.Sources))
	for i, src := range c.Sources {
		if err := validateSourceURL(src); err != nil {
			errs = append(errs, fmt.Errorf("sources[%d]: %w", i, err))
			continue
		}
		if seen[src] {
			errs = append(errs, fmt.Errorf("sources[%d]: duplicate source '%s'", i, src))
		}
		seen[src] = true
	}

	if c.Fetch != nil {
		if err := validateDuration(c.Fetch.Timeout, "fetch.timeout"); err != nil {
			errs = append(errs, err)
		}
		if c.Fetch.MaxResponseSize < 0 {
			errs = append(errs, fmt.Errorf("fetch.maxResponseSize must not be negative"))
		}
	}

	if c.Aggregation != nil {
		if c.Aggregation.Concurrency < 0 {
			errs = append(errs, fmt.Errorf("aggregation.concurrency must not be negative"))
		}
		if err := validateDuration(c.Aggregation.RefreshTimeout, "aggregation.refreshTimeout"); err != nil {
			errs = append(errs, err)
		}
	}

	if c.Cache != nil {
		if err := validateDuration(c.Cache.TTL, "cache.ttl"); err != nil {
			errs = append(errs, err)
		}
	}

	if err := c.Telemetry.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("telemetry: %w", err))
	}

	return errors.Join(errs...)
}

// validateSourceURL ensures the source is an absolute http(s) URL
func validateSourceURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("source URL cannot be empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid source URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("source URL must use http or https, got %q", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("source URL must include a host, got %q", raw)
	}
	return nil
}

// validateDuration ensures an optional duration string parses and is positive
func validateDuration(value, field string) error {
	if value == "" {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("%s must be a valid duration (e.g., '7s', '30m'): %w", field, err)
	}
	if d <= 0 {
		return fmt.Errorf("%s must be positive, got %s", field, value)
	}
	return nil
}

func parseDurationOr(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
