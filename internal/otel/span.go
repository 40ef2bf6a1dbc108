// Package otel provides tracing helpers shared by the aggregation pipeline.
package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys used on aggregation spans
const (
	AttrSourceURL     = attribute.Key("catalog.source.url")
	AttrCandidateURL  = attribute.Key("catalog.source.candidate_url")
	AttrRunID         = attribute.Key("catalog.run.id")
	AttrSourceCount   = attribute.Key("catalog.run.source_count")
	AttrResolvedCount = attribute.Key("catalog.run.resolved_count")
	AttrCacheHit      = attribute.Key("catalog.cache.hit")
)

// StartSpan starts a span on tracer, or returns the span already in ctx when tracer is nil
func StartSpan(
	ctx context.Context,
	tracer trace.Tracer,
	name string,
	opts ...trace.SpanStartOption,
) (context.Context, trace.Span) {
	if tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return tracer.Start(ctx, name, opts...)
}

// RecordError records err on span and marks it failed.
// The status description stays generic; details live in the span event.
func RecordError(span trace.Span, err error) {
	if err != nil && span != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "operation failed")
	}
}
