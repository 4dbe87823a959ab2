package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName identifies the instrumentation scope for sync metrics.
const meterName = "cachebound/sync"

// SyncMetrics holds the instruments describing fetch activity and
// subscription load across all resources.
type SyncMetrics struct {
	fetchTotal    metric.Int64Counter
	fetchDuration metric.Float64Histogram
	subscriptions metric.Int64UpDownCounter
}

// NewSyncMetrics creates the sync instruments on the given provider.
func NewSyncMetrics(provider metric.MeterProvider) (*SyncMetrics, error) {
	meter := provider.Meter(meterName)

	fetchTotal, err := meter.Int64Counter(
		"cachebound_fetch_total",
		metric.WithDescription("Total number of completed fetch attempts"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create fetch counter: %w", err)
	}

	fetchDuration, err := meter.Float64Histogram(
		"cachebound_fetch_duration_seconds",
		metric.WithDescription("Duration of fetch attempts in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create fetch duration histogram: %w", err)
	}

	subscriptions, err := meter.Int64UpDownCounter(
		"cachebound_active_subscriptions",
		metric.WithDescription("Number of currently active value subscriptions"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create subscriptions counter: %w", err)
	}

	return &SyncMetrics{
		fetchTotal:    fetchTotal,
		fetchDuration: fetchDuration,
		subscriptions: subscriptions,
	}, nil
}

// ForResource returns a recorder bound to one resource name. The returned
// value satisfies the coordinator's Metrics contract.
func (m *SyncMetrics) ForResource(name string) *ResourceMetrics {
	return &ResourceMetrics{
		parent:   m,
		resource: attribute.String("resource", name),
	}
}

// ResourceMetrics records sync metrics labeled with one resource name.
type ResourceMetrics struct {
	parent   *SyncMetrics
	resource attribute.KeyValue
}

// RecordFetch records one completed fetch attempt and its duration.
func (r *ResourceMetrics) RecordFetch(ctx context.Context, outcome string, seconds float64) {
	attrs := metric.WithAttributes(r.resource, attribute.String("outcome", outcome))
	r.parent.fetchTotal.Add(ctx, 1, attrs)
	r.parent.fetchDuration.Record(ctx, seconds, attrs)
}

// AddSubscriptions adjusts the active subscription gauge.
func (r *ResourceMetrics) AddSubscriptions(ctx context.Context, delta int64) {
	r.parent.subscriptions.Add(ctx, delta, metric.WithAttributes(r.resource))
}
