package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Telemetry encapsulates the OpenTelemetry meter provider and its
// Prometheus exporter, and handles their lifecycle.
type Telemetry struct {
	meterProvider metric.MeterProvider
	sdkProvider   *sdkmetric.MeterProvider
	registry      *prometheus.Registry
}

// Option is a function that configures the telemetry setup.
type Option func(*telemetryConfig)

// telemetryConfig holds the configuration for creating telemetry.
type telemetryConfig struct {
	config *Config
}

// WithTelemetryConfig sets the telemetry configuration.
func WithTelemetryConfig(cfg *Config) Option {
	return func(tc *telemetryConfig) {
		tc.config = cfg
	}
}

// New creates and initializes a new Telemetry instance based on the
// configuration. If telemetry is disabled or configuration is nil, returns
// a Telemetry with a no-op provider. The caller is responsible for calling
// Shutdown when the application exits.
func New(ctx context.Context, opts ...Option) (*Telemetry, error) {
	cfg := &telemetryConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	if !cfg.config.MetricsEnabled() {
		slog.Debug("Telemetry disabled, using no-op meter provider")
		return &Telemetry{meterProvider: noop.NewMeterProvider()}, nil
	}

	slog.Info("Initializing telemetry",
		"service_name", cfg.config.GetServiceName(),
		"service_version", cfg.config.GetServiceVersion(),
	)

	// We use resource.New to avoid schema URL conflicts with
	// resource.Default().
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.config.GetServiceName()),
			semconv.ServiceVersion(cfg.config.GetServiceVersion()),
		),
		resource.WithHost(),
		resource.WithTelemetrySDK(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create telemetry resource: %w", err)
	}

	registry := prometheus.NewRegistry()
	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
		sdkmetric.WithResource(res),
	)

	return &Telemetry{
		meterProvider: provider,
		sdkProvider:   provider,
		registry:      registry,
	}, nil
}

// MeterProvider returns the meter provider for instrument creation.
func (t *Telemetry) MeterProvider() metric.MeterProvider {
	return t.meterProvider
}

// MetricsHandler returns the HTTP handler serving the Prometheus scrape
// endpoint, or a 404 handler when metrics are disabled.
func (t *Telemetry) MetricsHandler() http.Handler {
	if t.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{})
}

// Shutdown flushes and stops the meter provider.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t.sdkProvider == nil {
		return nil
	}
	return t.sdkProvider.Shutdown(ctx)
}
