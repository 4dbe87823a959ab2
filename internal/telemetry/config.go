// Package telemetry provides OpenTelemetry instrumentation for the
// cachebound server. Metrics are exported through a Prometheus registry
// served on the /metrics endpoint.
package telemetry

// DefaultServiceName is the default service name for telemetry.
const DefaultServiceName = "cachebound"

// Config represents the root telemetry configuration.
type Config struct {
	// Enabled controls whether telemetry is enabled globally.
	// When false, no telemetry providers are initialized.
	Enabled bool `yaml:"enabled"`

	// ServiceName is the name of the service for telemetry identification.
	// Defaults to "cachebound" if not specified.
	ServiceName string `yaml:"serviceName,omitempty"`

	// ServiceVersion is the version of the service for telemetry
	// identification. Defaults to the application version if not specified.
	ServiceVersion string `yaml:"serviceVersion,omitempty"`

	// Metrics contains metrics-specific configuration.
	Metrics *MetricsConfig `yaml:"metrics,omitempty"`
}

// MetricsConfig defines metrics-specific configuration.
type MetricsConfig struct {
	// Enabled controls whether metrics collection is enabled.
	// When false, metrics are disabled even if telemetry is enabled
	// globally.
	Enabled bool `yaml:"enabled"`
}

// GetServiceName returns the configured service name or the default.
func (c *Config) GetServiceName() string {
	if c == nil || c.ServiceName == "" {
		return DefaultServiceName
	}
	return c.ServiceName
}

// GetServiceVersion returns the configured service version or "unknown".
func (c *Config) GetServiceVersion() string {
	if c == nil || c.ServiceVersion == "" {
		return "unknown"
	}
	return c.ServiceVersion
}

// MetricsEnabled reports whether metrics collection is on.
func (c *Config) MetricsEnabled() bool {
	return c != nil && c.Enabled && c.Metrics != nil && c.Metrics.Enabled
}
