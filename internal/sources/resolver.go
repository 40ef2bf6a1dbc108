package sources

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel/trace"

	"github.com/stacklok/catalog-aggregator/internal/config"
	"github.com/stacklok/catalog-aggregator/internal/httpclient"
	"github.com/stacklok/catalog-aggregator/internal/otel"
	"github.com/stacklok/catalog-aggregator/internal/telemetry"
)

// SourceResolver tries suffix candidates against a source until one yields a catalog
type SourceResolver struct {
	fetcher  Fetcher
	suffixes []string
	metrics  *telemetry.FetchMetrics
	tracer   trace.Tracer
}

var _ Resolver = (*SourceResolver)(nil)

// ResolverOption configures a SourceResolver
type ResolverOption func(*SourceResolver)

// WithSuffixes overrides the candidate suffixes. An empty list keeps the defaults.
func WithSuffixes(suffixes []string) ResolverOption {
	return func(r *SourceResolver) {
		if len(suffixes) > 0 {
			r.suffixes = suffixes
		}
	}
}

// WithFetchMetrics records the outcome of every candidate attempt
func WithFetchMetrics(metrics *telemetry.FetchMetrics) ResolverOption {
	return func(r *SourceResolver) {
		r.metrics = metrics
	}
}

// WithTracer wraps every resolution in a span
func WithTracer(tracer trace.Tracer) ResolverOption {
	return func(r *SourceResolver) {
		r.tracer = tracer
	}
}

// NewSourceResolver creates a resolver backed by fetcher
func NewSourceResolver(fetcher Fetcher, opts ...ResolverOption) *SourceResolver {
	r := &SourceResolver{
		fetcher:  fetcher,
		suffixes: config.DefaultSuffixes,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the first candidate payload that is a catalog, or nil.
// Candidate failures are logged and skipped; they are never returned.
func (r *SourceResolver) Resolve(ctx context.Context, endpoint string) *ResolvedSource {
	ctx, span := otel.StartSpan(ctx, r.tracer, "sources.Resolve",
		trace.WithAttributes(otel.AttrSourceURL.String(endpoint)))
	defer span.End()

	base := strings.TrimRight(endpoint, "/")

	for _, suffix := range r.suffixes {
		if ctx.Err() != nil {
			slog.Debug("Source resolution cancelled", "source", endpoint, "error", ctx.Err())
			return nil
		}

		candidate := base + suffix
		start := time.Now()

		data, err := r.fetcher.Fetch(ctx, candidate)
		count := 0
		if err == nil {
			count, err = appCount(data)
		}
		r.metrics.RecordAttempt(ctx, outcome(err), time.Since(start))

		if err != nil {
			slog.Debug("Candidate rejected", "source", endpoint, "candidate", candidate, "error", err)
			continue
		}

		span.SetAttributes(otel.AttrCandidateURL.String(candidate))
		slog.Debug("Source resolved", "source", endpoint, "candidate", candidate, "apps", count)
		return &ResolvedSource{
			URL:         endpoint,
			Data:        data,
			ResolvedURL: candidate,
			AppCount:    count,
		}
	}

	slog.Debug("Source unavailable", "source", endpoint, "candidates", len(r.suffixes))
	return nil
}

// appCount checks that data is an object whose apps field is an array, a
// non-empty string, or an object with a positive numeric length.
func appCount(data json.RawMessage) (int, error) {
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return 0, ErrInvalidShape
	}

	apps := root.Get("apps")
	switch {
	case apps.IsArray():
		return len(apps.Array()), nil
	case apps.Type == gjson.String && apps.Str != "":
		return utf8.RuneCountInString(apps.Str), nil
	case apps.IsObject():
		if length := apps.Get("length"); length.Type == gjson.Number && length.Num > 0 {
			return int(length.Num), nil
		}
	}
	return 0, ErrInvalidShape
}

func outcome(err error) string {
	var httpErr *httpclient.HTTPError
	switch {
	case err == nil:
		return telemetry.OutcomeOK
	case errors.Is(err, ErrTimeout):
		return telemetry.OutcomeTimeout
	case errors.As(err, &httpErr):
		return telemetry.OutcomeHTTPStatus
	case errors.Is(err, ErrMalformedBody):
		return telemetry.OutcomeMalformed
	case errors.Is(err, ErrInvalidShape):
		return telemetry.OutcomeInvalidShape
	default:
		return telemetry.OutcomeError
	}
}
