// Package config provides configuration loading and management for the
// cachebound server.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cachebound/cachebound/internal/telemetry"
)

// EnvPrefix is the prefix for environment variables read by the server.
const EnvPrefix = "CACHEBOUND"

const (
	// PolicyAbsent fetches only when no cached record exists.
	PolicyAbsent = "absent"

	// PolicyStale fetches when the cached record is older than its TTL.
	PolicyStale = "stale"

	// PolicyAlways fetches on every observe.
	PolicyAlways = "always"
)

const (
	// StoreBackendMemory keeps records in process memory only.
	StoreBackendMemory = "memory"

	// StoreBackendSQLite persists records to a SQLite database file.
	StoreBackendSQLite = "sqlite"
)

// Option defines the interface for configuration options.
type Option func(*loaderConfig) error

// loaderConfig defines the configuration for loading a configuration.
type loaderConfig struct {
	path string
}

// WithConfigPath loads configuration from a YAML file.
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

// Config represents the root configuration structure.
type Config struct {
	// Store selects the local store backend shared by all resources.
	Store StoreConfig `yaml:"store"`

	// Resources lists the synchronized resource classes.
	Resources []ResourceConfig `yaml:"resources"`

	// Telemetry contains the observability configuration.
	Telemetry *telemetry.Config `yaml:"telemetry,omitempty"`
}

// StoreConfig selects and configures the local store backend.
type StoreConfig struct {
	// Backend is "memory" or "sqlite".
	Backend string `yaml:"backend"`

	// Path is the SQLite database file. Required for the sqlite backend.
	Path string `yaml:"path,omitempty"`
}

// ResourceConfig defines one synchronized resource class: an upstream
// endpoint, a freshness policy, and optional payload handling.
type ResourceConfig struct {
	// Name is the identifier for this resource class.
	Name string `yaml:"name"`

	// Endpoint is the upstream URL template. It must contain the "{key}"
	// placeholder, e.g. "https://api.example.com/posts/{key}".
	Endpoint string `yaml:"endpoint"`

	// Policy is the freshness policy for the resource.
	Policy PolicyConfig `yaml:"policy"`

	// ExtractPath is an optional gjson path applied to the upstream
	// response before decoding, e.g. "data.items".
	ExtractPath string `yaml:"extractPath,omitempty"`

	// SchemaFile is an optional JSON Schema file validating upstream
	// payloads before they are cached.
	SchemaFile string `yaml:"schemaFile,omitempty"`

	// VersionPath is an optional gjson path to a version field inside the
	// payload. When set, a fetched payload only replaces the cached one if
	// its version is newer.
	VersionPath string `yaml:"versionPath,omitempty"`

	// Timeout is the per-request upstream timeout (e.g. "10s").
	Timeout string `yaml:"timeout,omitempty"`

	// Refresh configures optional background refreshing of warm keys.
	Refresh *RefreshConfig `yaml:"refresh,omitempty"`
}

// PolicyConfig defines a freshness policy.
type PolicyConfig struct {
	// Mode is "absent", "stale", or "always".
	Mode string `yaml:"mode"`

	// TTL is the staleness threshold (e.g. "60s"). Required for mode
	// "stale".
	TTL string `yaml:"ttl,omitempty"`
}

// RefreshConfig configures the background refresher for a resource.
type RefreshConfig struct {
	// Interval is how often warm keys are re-evaluated (e.g. "2m").
	Interval string `yaml:"interval"`

	// Keys lists the keys kept warm by the background refresher.
	Keys []string `yaml:"keys"`
}

// LoadConfig loads and parses configuration from a YAML file.
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

// Validate performs validation on the configuration.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config cannot be nil")
	}

	if err := c.Store.validate(); err != nil {
		return err
	}

	if len(c.Resources) == 0 {
		return fmt.Errorf("at least one resource must be configured")
	}

	names := make(map[string]bool)
	for i, res := range c.Resources {
		if res.Name == "" {
			return fmt.Errorf("resource[%d]: name is required", i)
		}
		if names[res.Name] {
			return fmt.Errorf("resource[%d]: duplicate resource name '%s'", i, res.Name)
		}
		names[res.Name] = true

		if err := res.validate(i); err != nil {
			return err
		}
	}

	return nil
}

func (s *StoreConfig) validate() error {
	switch s.Backend {
	case StoreBackendMemory:
		return nil
	case StoreBackendSQLite:
		if s.Path == "" {
			return fmt.Errorf("store: path is required for the sqlite backend")
		}
		return nil
	case "":
		return fmt.Errorf("store: backend is required (%s or %s)", StoreBackendMemory, StoreBackendSQLite)
	default:
		return fmt.Errorf("store: unsupported backend '%s'", s.Backend)
	}
}

func (r *ResourceConfig) validate(i int) error {
	if r.Endpoint == "" {
		return fmt.Errorf("resource[%d]: endpoint is required", i)
	}
	if !strings.Contains(r.Endpoint, "{key}") {
		return fmt.Errorf("resource[%d]: endpoint must contain the {key} placeholder", i)
	}
	if _, err := url.Parse(strings.ReplaceAll(r.Endpoint, "{key}", "k")); err != nil {
		return fmt.Errorf("resource[%d]: invalid endpoint URL: %w", i, err)
	}

	if err := r.Policy.validate(i); err != nil {
		return err
	}

	if r.Timeout != "" {
		timeout, err := time.ParseDuration(r.Timeout)
		if err != nil {
			return fmt.Errorf("resource[%d]: invalid timeout: %w", i, err)
		}
		if timeout <= 0 {
			return fmt.Errorf("resource[%d]: timeout must be positive", i)
		}
	}

	if r.Refresh != nil {
		if r.Refresh.Interval == "" {
			return fmt.Errorf("resource[%d]: refresh interval is required", i)
		}
		interval, err := time.ParseDuration(r.Refresh.Interval)
		if err != nil {
			return fmt.Errorf("resource[%d]: invalid refresh interval: %w", i, err)
		}
		if interval <= 0 {
			return fmt.Errorf("resource[%d]: refresh interval must be positive", i)
		}
		if len(r.Refresh.Keys) == 0 {
			return fmt.Errorf("resource[%d]: refresh requires at least one key", i)
		}
	}

	return nil
}

func (p *PolicyConfig) validate(i int) error {
	switch p.Mode {
	case PolicyAbsent, PolicyAlways:
		if p.TTL != "" {
			return fmt.Errorf("resource[%d]: ttl is only valid for policy mode '%s'", i, PolicyStale)
		}
		return nil
	case PolicyStale:
		if p.TTL == "" {
			return fmt.Errorf("resource[%d]: ttl is required for policy mode '%s'", i, PolicyStale)
		}
		ttl, err := time.ParseDuration(p.TTL)
		if err != nil {
			return fmt.Errorf("resource[%d]: invalid ttl: %w", i, err)
		}
		if ttl <= 0 {
			return fmt.Errorf("resource[%d]: ttl must be positive", i)
		}
		return nil
	case "":
		return fmt.Errorf("resource[%d]: policy mode is required", i)
	default:
		return fmt.Errorf("resource[%d]: unsupported policy mode '%s'", i, p.Mode)
	}
}

// TTLDuration returns the parsed TTL. Valid only after Validate.
func (p *PolicyConfig) TTLDuration() time.Duration {
	d, _ := time.ParseDuration(p.TTL)
	return d
}

// TimeoutDuration returns the parsed upstream timeout, or zero when unset.
func (r *ResourceConfig) TimeoutDuration() time.Duration {
	if r.Timeout == "" {
		return 0
	}
	d, _ := time.ParseDuration(r.Timeout)
	return d
}

// IntervalDuration returns the parsed refresh interval.
func (r *RefreshConfig) IntervalDuration() time.Duration {
	d, _ := time.ParseDuration(r.Interval)
	return d
}
