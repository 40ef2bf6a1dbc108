// Package aggregator runs source resolution across the configured endpoint list
// with a bounded pool of workers.
package aggregator

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/stacklok/catalog-aggregator/internal/config"
	"github.com/stacklok/catalog-aggregator/internal/otel"
	"github.com/stacklok/catalog-aggregator/internal/sources"
	"github.com/stacklok/catalog-aggregator/internal/telemetry"
)

// Scheduler resolves many sources concurrently and returns them in configuration order
type Scheduler struct {
	resolver    sources.Resolver
	concurrency int
	metrics     *telemetry.AggregationMetrics
	tracer      trace.Tracer
}

// Option configures a Scheduler
type Option func(*Scheduler)

// WithConcurrency sets the number of workers. Non-positive values keep the default.
func WithConcurrency(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithMetrics records run duration and resolved counts
func WithMetrics(metrics *telemetry.AggregationMetrics) Option {
	return func(s *Scheduler) {
		s.metrics = metrics
	}
}

// WithTracer wraps every run in a span
func WithTracer(tracer trace.Tracer) Option {
	return func(s *Scheduler) {
		s.tracer = tracer
	}
}

// New creates a scheduler that resolves each endpoint with resolver
func New(resolver sources.Resolver, opts ...Option) *Scheduler {
	s := &Scheduler{
		resolver:    resolver,
		concurrency: config.DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Concurrency returns the worker pool size
func (s *Scheduler) Concurrency() int {
	return s.concurrency
}

// AggregateAll resolves every endpoint and returns the resolved sources in the
// order the endpoints were given. Unresolved sources are left out. Repeated
// endpoints are resolved once, at their first position.
func (s *Scheduler) AggregateAll(ctx context.Context, endpoints []string) []sources.ResolvedSource {
	runID := uuid.NewString()
	endpoints = dedupe(endpoints)

	ctx, span := otel.StartSpan(ctx, s.tracer, "aggregator.AggregateAll",
		trace.WithAttributes(
			otel.AttrRunID.String(runID),
			otel.AttrSourceCount.Int(len(endpoints)),
		))
	defer span.End()

	logger := slog.With("run_id", runID)
	logger.Info("Starting aggregation", "sources", len(endpoints), "workers", s.concurrency)
	start := time.Now()

	// slot i belongs to endpoints[i] and is written by exactly one worker
	slots := make([]*sources.ResolvedSource, len(endpoints))
	var cursor atomic.Int64

	var g errgroup.Group
	for range s.concurrency {
		g.Go(func() error {
			for {
				idx := int(cursor.Add(1) - 1)
				if idx >= len(endpoints) {
					return nil
				}
				slots[idx] = s.resolver.Resolve(ctx, endpoints[idx])
			}
		})
	}
	_ = g.Wait()

	result := make([]sources.ResolvedSource, 0, len(endpoints))
	for _, slot := range slots {
		if slot != nil {
			result = append(result, *slot)
		}
	}

	duration := time.Since(start)
	s.metrics.RecordRun(ctx, len(endpoints), len(result), duration)
	span.SetAttributes(otel.AttrResolvedCount.Int(len(result)))
	logger.Info("Aggregation completed",
		"sources", len(endpoints),
		"resolved", len(result),
		"duration", duration.String())

	return result
}

func dedupe(endpoints []string) []string {
	seen := make(map[string]struct{}, len(endpoints))
	out := make([]string, 0, len(endpoints))
	for _, e := range endpoints {
		if _, ok := seen[e]; ok {
			slog.Warn("Skipping repeated source endpoint", "source", e)
			continue
		}
		seen[e] = struct{}{}
		out = append(out, e)
	}
	return out
}
