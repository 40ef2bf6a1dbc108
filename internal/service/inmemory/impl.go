// Package inmemory provides an in-memory implementation of the CatalogService interface
package inmemory

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/stacklok/catalog-aggregator/internal/cache"
	"github.com/stacklok/catalog-aggregator/internal/config"
	"github.com/stacklok/catalog-aggregator/internal/otel"
	"github.com/stacklok/catalog-aggregator/internal/service"
	"github.com/stacklok/catalog-aggregator/internal/sources"
	"github.com/stacklok/catalog-aggregator/internal/telemetry"
)

// refreshKey is the single-flight key shared by all cache-miss refreshes
const refreshKey = "aggregate"

// catalogSvc implements the CatalogService interface
type catalogSvc struct {
	endpoints  []string
	aggregator service.Aggregator
	cache      *cache.ResultCache

	refreshes      singleflight.Group
	refreshTimeout time.Duration

	metrics *telemetry.AggregationMetrics
	tracer  trace.Tracer
}

var _ service.CatalogService = (*catalogSvc)(nil)

// Option is a functional option for configuring the catalogSvc
type Option func(*catalogSvc)

// WithRefreshTimeout bounds a single aggregation run started on a cache miss
func WithRefreshTimeout(timeout time.Duration) Option {
	return func(s *catalogSvc) {
		if timeout > 0 {
			s.refreshTimeout = timeout
		}
	}
}

// WithMetrics records cache hits and misses
func WithMetrics(metrics *telemetry.AggregationMetrics) Option {
	return func(s *catalogSvc) {
		s.metrics = metrics
	}
}

// WithTracer wraps lookups in spans
func WithTracer(tracer trace.Tracer) Option {
	return func(s *catalogSvc) {
		s.tracer = tracer
	}
}

// New creates a catalog service over endpoints.
// aggregator and resultCache are required.
func New(
	endpoints []string,
	aggregator service.Aggregator,
	resultCache *cache.ResultCache,
	opts ...Option,
) (service.CatalogService, error) {
	if aggregator == nil {
		return nil, fmt.Errorf("aggregator is required")
	}
	if resultCache == nil {
		return nil, fmt.Errorf("result cache is required")
	}

	s := &catalogSvc{
		endpoints:      endpoints,
		aggregator:     aggregator,
		cache:          resultCache,
		refreshTimeout: config.DefaultRefreshTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// CheckReadiness implements CatalogService.CheckReadiness
func (s *catalogSvc) CheckReadiness(_ context.Context) error {
	if len(s.endpoints) == 0 {
		return service.ErrNoSources
	}
	return nil
}

// Repos implements CatalogService.Repos.
// Concurrent misses share one aggregation run. The run is detached from the
// caller's context so that one disconnecting client does not abort it for the rest.
func (s *catalogSvc) Repos(ctx context.Context) ([]sources.ResolvedSource, error) {
	ctx, span := otel.StartSpan(ctx, s.tracer, "service.Repos")
	defer span.End()

	if result, ok := s.cache.Get(); ok {
		s.metrics.RecordCacheLookup(ctx, true)
		span.SetAttributes(otel.AttrCacheHit.Bool(true))
		return result, nil
	}
	s.metrics.RecordCacheLookup(ctx, false)
	span.SetAttributes(otel.AttrCacheHit.Bool(false))

	ch := s.refreshes.DoChan(refreshKey, func() (any, error) {
		return s.refresh(context.WithoutCancel(ctx)), nil
	})

	select {
	case <-ctx.Done():
		otel.RecordError(span, ctx.Err())
		return nil, fmt.Errorf("waiting for aggregation: %w", ctx.Err())
	case res := <-ch:
		if res.Shared {
			slog.Debug("Joined in-flight aggregation")
		}
		result, _ := res.Val.([]sources.ResolvedSource)
		return result, nil
	}
}

// refresh runs one aggregation and stores the result.
// A run cut short by the refresh timeout is returned but not cached.
func (s *catalogSvc) refresh(ctx context.Context) []sources.ResolvedSource {
	// a caller that lost the race may arrive after the previous run stored its result
	if result, ok := s.cache.Get(); ok {
		return result
	}

	ctx, cancel := context.WithTimeout(ctx, s.refreshTimeout)
	defer cancel()

	result := s.aggregator.AggregateAll(ctx, s.endpoints)
	if err := ctx.Err(); err != nil {
		slog.Warn("Aggregation did not finish in time, result not cached",
			"timeout", s.refreshTimeout.String(),
			"resolved", len(result),
			"error", err)
		return result
	}

	s.cache.Set(result)
	return result
}

// Info implements CatalogService.Info
func (s *catalogSvc) Info(_ context.Context) service.Info {
	info := service.Info{Sources: len(s.endpoints)}

	if entry := s.cache.Peek(); entry != nil {
		info.Resolved = len(entry.Result)
		info.LastUpdated = entry.Timestamp
	}
	_, info.Cached = s.cache.Get()

	return info
}
