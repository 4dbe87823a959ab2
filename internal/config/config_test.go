package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

const validConfig = `
store:
  backend: sqlite
  path: ./data/cache.db
resources:
  - name: posts
    endpoint: https://api.example.com/posts/{key}
    policy:
      mode: stale
      ttl: 60s
    timeout: 5s
    refresh:
      interval: 2m
      keys: ["1", "2"]
  - name: archives
    endpoint: https://archive.example.com/items/{key}
    policy:
      mode: absent
telemetry:
  enabled: true
  metrics:
    enabled: true
`

func TestLoadConfig(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, validConfig)
	cfg, err := LoadConfig(WithConfigPath(path))
	require.NoError(t, err)

	assert.Equal(t, StoreBackendSQLite, cfg.Store.Backend)
	assert.Equal(t, "./data/cache.db", cfg.Store.Path)
	require.Len(t, cfg.Resources, 2)

	posts := cfg.Resources[0]
	assert.Equal(t, "posts", posts.Name)
	assert.Equal(t, PolicyStale, posts.Policy.Mode)
	assert.Equal(t, time.Minute, posts.Policy.TTLDuration())
	assert.Equal(t, 5*time.Second, posts.TimeoutDuration())
	require.NotNil(t, posts.Refresh)
	assert.Equal(t, 2*time.Minute, posts.Refresh.IntervalDuration())
	assert.Equal(t, []string{"1", "2"}, posts.Refresh.Keys)

	archives := cfg.Resources[1]
	assert.Equal(t, PolicyAbsent, archives.Policy.Mode)
	assert.Zero(t, archives.TimeoutDuration())

	require.NotNil(t, cfg.Telemetry)
	assert.True(t, cfg.Telemetry.MetricsEnabled())
}

func TestLoadConfigMissingFile(t *testing.T) {
	t.Parallel()

	_, err := LoadConfig(WithConfigPath(filepath.Join(t.TempDir(), "nope.yaml")))
	assert.Error(t, err)
}

func TestLoadConfigRequiresPath(t *testing.T) {
	t.Parallel()

	_, err := LoadConfig()
	assert.ErrorContains(t, err, "path is required")
}

func TestLoadConfigInvalidYAML(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "store: [broken")
	_, err := LoadConfig(WithConfigPath(path))
	assert.ErrorContains(t, err, "failed to parse YAML")
}

func TestValidate(t *testing.T) {
	t.Parallel()

	base := func() *Config {
		return &Config{
			Store: StoreConfig{Backend: StoreBackendMemory},
			Resources: []ResourceConfig{{
				Name:     "posts",
				Endpoint: "https://api.example.com/posts/{key}",
				Policy:   PolicyConfig{Mode: PolicyAbsent},
			}},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid memory config",
			mutate: func(_ *Config) {},
		},
		{
			name:    "missing store backend",
			mutate:  func(c *Config) { c.Store.Backend = "" },
			wantErr: "backend is required",
		},
		{
			name:    "unsupported store backend",
			mutate:  func(c *Config) { c.Store.Backend = "redis" },
			wantErr: "unsupported backend",
		},
		{
			name:    "sqlite without path",
			mutate:  func(c *Config) { c.Store.Backend = StoreBackendSQLite },
			wantErr: "path is required",
		},
		{
			name:    "no resources",
			mutate:  func(c *Config) { c.Resources = nil },
			wantErr: "at least one resource",
		},
		{
			name:    "missing resource name",
			mutate:  func(c *Config) { c.Resources[0].Name = "" },
			wantErr: "name is required",
		},
		{
			name: "duplicate resource names",
			mutate: func(c *Config) {
				c.Resources = append(c.Resources, c.Resources[0])
			},
			wantErr: "duplicate resource name",
		},
		{
			name:    "missing endpoint",
			mutate:  func(c *Config) { c.Resources[0].Endpoint = "" },
			wantErr: "endpoint is required",
		},
		{
			name:    "endpoint without placeholder",
			mutate:  func(c *Config) { c.Resources[0].Endpoint = "https://api.example.com/posts" },
			wantErr: "{key} placeholder",
		},
		{
			name:    "missing policy mode",
			mutate:  func(c *Config) { c.Resources[0].Policy = PolicyConfig{} },
			wantErr: "policy mode is required",
		},
		{
			name:    "unsupported policy mode",
			mutate:  func(c *Config) { c.Resources[0].Policy.Mode = "sometimes" },
			wantErr: "unsupported policy mode",
		},
		{
			name:    "stale without ttl",
			mutate:  func(c *Config) { c.Resources[0].Policy = PolicyConfig{Mode: PolicyStale} },
			wantErr: "ttl is required",
		},
		{
			name: "ttl on absent policy",
			mutate: func(c *Config) {
				c.Resources[0].Policy = PolicyConfig{Mode: PolicyAbsent, TTL: "60s"}
			},
			wantErr: "ttl is only valid",
		},
		{
			name: "invalid ttl",
			mutate: func(c *Config) {
				c.Resources[0].Policy = PolicyConfig{Mode: PolicyStale, TTL: "soon"}
			},
			wantErr: "invalid ttl",
		},
		{
			name: "negative ttl",
			mutate: func(c *Config) {
				c.Resources[0].Policy = PolicyConfig{Mode: PolicyStale, TTL: "-5s"}
			},
			wantErr: "ttl must be positive",
		},
		{
			name:    "invalid timeout",
			mutate:  func(c *Config) { c.Resources[0].Timeout = "fast" },
			wantErr: "invalid timeout",
		},
		{
			name: "refresh without keys",
			mutate: func(c *Config) {
				c.Resources[0].Refresh = &RefreshConfig{Interval: "1m"}
			},
			wantErr: "at least one key",
		},
		{
			name: "refresh without interval",
			mutate: func(c *Config) {
				c.Resources[0].Refresh = &RefreshConfig{Keys: []string{"1"}}
			},
			wantErr: "interval is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.ErrorContains(t, err, tt.wantErr)
			}
		})
	}
}
