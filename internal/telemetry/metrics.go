package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	// FetchMetricsMeterName is the meter used for outbound source fetches
	FetchMetricsMeterName = "github.com/stacklok/catalog-aggregator/sources"

	// AggregationMetricsMeterName is the meter used for aggregation runs and the result cache
	AggregationMetricsMeterName = "github.com/stacklok/catalog-aggregator/aggregator"
)

// Fetch attempt outcomes
const (
	OutcomeOK           = "ok"
	OutcomeTimeout      = "timeout"
	OutcomeHTTPStatus   = "http_status"
	OutcomeMalformed    = "malformed"
	OutcomeInvalidShape = "invalid_shape"
	OutcomeError        = "error"
)

// FetchMetrics holds the instruments recorded for each suffix candidate attempt
type FetchMetrics struct {
	attempts metric.Int64Counter
	duration metric.Float64Histogram
}

// NewFetchMetrics creates the fetch instruments. A nil provider yields nil (no-op) metrics.
func NewFetchMetrics(provider metric.MeterProvider) (*FetchMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(FetchMetricsMeterName)

	attempts, err := meter.Int64Counter(
		"catalog_agg_fetch_attempts_total",
		metric.WithDescription("Number of source fetch attempts by outcome"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, err
	}

	duration, err := meter.Float64Histogram(
		"catalog_agg_fetch_duration_seconds",
		metric.WithDescription("Duration of individual source fetch attempts in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 7.5, 10),
	)
	if err != nil {
		return nil, err
	}

	return &FetchMetrics{attempts: attempts, duration: duration}, nil
}

// RecordAttempt records one fetch attempt and its outcome
func (m *FetchMetrics) RecordAttempt(ctx context.Context, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.attempts.Add(ctx, 1, attrs)
	m.duration.Record(ctx, duration.Seconds(), attrs)
}

// AggregationMetrics holds the instruments for aggregation runs and cache lookups
type AggregationMetrics struct {
	runDuration     metric.Float64Histogram
	sourcesResolved metric.Int64Gauge
	sourcesTotal    metric.Int64Gauge
	cacheLookups    metric.Int64Counter
}

// NewAggregationMetrics creates the aggregation instruments. A nil provider yields nil (no-op) metrics.
func NewAggregationMetrics(provider metric.MeterProvider) (*AggregationMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(AggregationMetricsMeterName)

	runDuration, err := meter.Float64Histogram(
		"catalog_agg_run_duration_seconds",
		metric.WithDescription("Duration of full aggregation runs in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.5, 1, 2.5, 5, 10, 30, 60, 120, 300),
	)
	if err != nil {
		return nil, err
	}

	sourcesResolved, err := meter.Int64Gauge(
		"catalog_agg_sources_resolved",
		metric.WithDescription("Number of sources resolved by the last aggregation run"),
		metric.WithUnit("{source}"),
	)
	if err != nil {
		return nil, err
	}

	sourcesTotal, err := meter.Int64Gauge(
		"catalog_agg_sources_configured",
		metric.WithDescription("Number of sources queried by the last aggregation run"),
		metric.WithUnit("{source}"),
	)
	if err != nil {
		return nil, err
	}

	cacheLookups, err := meter.Int64Counter(
		"catalog_agg_cache_lookups_total",
		metric.WithDescription("Number of result cache lookups by result"),
		metric.WithUnit("{lookup}"),
	)
	if err != nil {
		return nil, err
	}

	return &AggregationMetrics{
		runDuration:     runDuration,
		sourcesResolved: sourcesResolved,
		sourcesTotal:    sourcesTotal,
		cacheLookups:    cacheLookups,
	}, nil
}

// RecordRun records a completed aggregation run
func (m *AggregationMetrics) RecordRun(ctx context.Context, total, resolved int, duration time.Duration) {
	if m == nil {
		return
	}
	m.runDuration.Record(ctx, duration.Seconds())
	m.sourcesTotal.Record(ctx, int64(total))
	m.sourcesResolved.Record(ctx, int64(resolved))
}

// RecordCacheLookup records a cache hit or miss
func (m *AggregationMetrics) RecordCacheLookup(ctx context.Context, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}
