package app

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/stacklok/catalog-aggregator/internal/aggregator"
	"github.com/stacklok/catalog-aggregator/internal/api"
	"github.com/stacklok/catalog-aggregator/internal/cache"
	"github.com/stacklok/catalog-aggregator/internal/config"
	"github.com/stacklok/catalog-aggregator/internal/httpclient"
	"github.com/stacklok/catalog-aggregator/internal/service"
	"github.com/stacklok/catalog-aggregator/internal/service/inmemory"
	"github.com/stacklok/catalog-aggregator/internal/sources"
	"github.com/stacklok/catalog-aggregator/internal/telemetry"
)

const (
	// tracerName names the tracer shared by the aggregation pipeline
	tracerName = "github.com/stacklok/catalog-aggregator"

	defaultHTTPAddress = ":" + config.DefaultPort

	// A cache miss holds the request until the aggregation run ends,
	// so the request and write timeouts must outlast config.DefaultRefreshTimeout
	defaultRequestTimeout = 10 * time.Minute
	defaultReadTimeout    = 10 * time.Second
	defaultWriteTimeout   = 10 * time.Minute
	defaultIdleTimeout    = 60 * time.Second
)

// CatalogAppOptions is a function that configures the catalog app builder
type CatalogAppOptions func(*catalogAppConfig) error

// catalogAppConfig collects everything NewCatalogApp needs.
// It supports dependency injection for testing while providing sensible defaults for production
type catalogAppConfig struct {
	config *config.Config

	// Optional component overrides (primarily for testing)
	httpClient     httpclient.Client
	aggregator     service.Aggregator
	catalogService service.CatalogService

	// HTTP server options
	address        string
	staticDir      string
	middlewares    []func(http.Handler) http.Handler
	requestTimeout time.Duration
	readTimeout    time.Duration
	writeTimeout   time.Duration
	idleTimeout    time.Duration

	// Telemetry components
	meterProvider      metric.MeterProvider
	tracerProvider     trace.TracerProvider
	metricsHandler     http.Handler
	aggregationMetrics *telemetry.AggregationMetrics
}

func baseConfig(opts ...CatalogAppOptions) (*catalogAppConfig, error) {
	cfg := &catalogAppConfig{
		requestTimeout: defaultRequestTimeout,
		readTimeout:    defaultReadTimeout,
		writeTimeout:   defaultWriteTimeout,
		idleTimeout:    defaultIdleTimeout,
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	// Explicit options win over the config file
	if cfg.address == "" && cfg.config != nil && cfg.config.GetAddress() != "" {
		if err := validateAddress(cfg.config.GetAddress()); err != nil {
			return nil, fmt.Errorf("invalid server.address: %w", err)
		}
		cfg.address = cfg.config.GetAddress()
	}
	if cfg.address == "" {
		cfg.address = defaultHTTPAddress
	}
	if cfg.staticDir == "" && cfg.config != nil {
		cfg.staticDir = cfg.config.GetStaticDir()
	}

	return cfg, nil
}

// NewCatalogApp assembles the fetch pipeline, the cached catalog service and the HTTP server
func NewCatalogApp(
	ctx context.Context,
	opts ...CatalogAppOptions,
) (*CatalogApp, error) {
	cfg, err := baseConfig(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build base configuration: %w", err)
	}

	if cfg.config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	// Shared by the scheduler (runs) and the service (cache lookups)
	cfg.aggregationMetrics, err = telemetry.NewAggregationMetrics(cfg.meterProvider)
	if err != nil {
		return nil, fmt.Errorf("failed to create aggregation metrics: %w", err)
	}
	if cfg.aggregationMetrics != nil {
		slog.Info("Aggregation metrics enabled")
	}

	// Build the aggregation pipeline (if not injected)
	if cfg.aggregator == nil {
		cfg.aggregator, err = buildAggregator(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to build aggregator: %w", err)
		}
	}

	resultCache := cache.New(cfg.config.GetCacheTTL())

	// Build the catalog service (if not injected)
	if cfg.catalogService == nil {
		cfg.catalogService, err = buildServiceComponents(cfg, resultCache)
		if err != nil {
			return nil, fmt.Errorf("failed to build service components: %w", err)
		}
	}

	httpServer, err := buildHTTPServer(ctx, cfg, cfg.catalogService)
	if err != nil {
		return nil, fmt.Errorf("failed to build HTTP server: %w", err)
	}

	appCtx, cancel := context.WithCancel(ctx)

	return &CatalogApp{
		config: cfg.config,
		components: &AppComponents{
			Aggregator:     cfg.aggregator,
			Cache:          resultCache,
			CatalogService: cfg.catalogService,
		},
		httpServer: httpServer,
		ctx:        appCtx,
		cancelFunc: cancel,
	}, nil
}

// WithConfig sets the configuration
func WithConfig(c *config.Config) CatalogAppOptions {
	return func(cfg *catalogAppConfig) error {
		cfg.config = c
		return nil
	}
}

// WithAddress sets the HTTP server address
func WithAddress(addr string) CatalogAppOptions {
	return func(cfg *catalogAppConfig) error {
		if err := validateAddress(addr); err != nil {
			return err
		}

		cfg.address = addr
		return nil
	}
}

// WithStaticDir sets the directory of the front-end bundle served for non-API paths
func WithStaticDir(dir string) CatalogAppOptions {
	return func(cfg *catalogAppConfig) error {
		cfg.staticDir = dir
		return nil
	}
}

// WithMiddlewares sets custom HTTP middlewares
func WithMiddlewares(mw ...func(http.Handler) http.Handler) CatalogAppOptions {
	return func(cfg *catalogAppConfig) error {
		cfg.middlewares = mw
		return nil
	}
}

// WithHTTPClient allows injecting the outbound HTTP client (for testing)
func WithHTTPClient(client httpclient.Client) CatalogAppOptions {
	return func(cfg *catalogAppConfig) error {
		cfg.httpClient = client
		return nil
	}
}

// WithAggregator allows injecting a custom aggregator (for testing)
func WithAggregator(a service.Aggregator) CatalogAppOptions {
	return func(cfg *catalogAppConfig) error {
		cfg.aggregator = a
		return nil
	}
}

// WithCatalogService allows injecting a custom catalog service (for testing)
func WithCatalogService(svc service.CatalogService) CatalogAppOptions {
	return func(cfg *catalogAppConfig) error {
		cfg.catalogService = svc
		return nil
	}
}

// WithMeterProvider sets the OpenTelemetry meter provider for pipeline and HTTP metrics
func WithMeterProvider(mp metric.MeterProvider) CatalogAppOptions {
	return func(cfg *catalogAppConfig) error {
		cfg.meterProvider = mp
		return nil
	}
}

// WithTracerProvider sets the OpenTelemetry tracer provider for inbound and outbound spans
func WithTracerProvider(tp trace.TracerProvider) CatalogAppOptions {
	return func(cfg *catalogAppConfig) error {
		cfg.tracerProvider = tp
		return nil
	}
}

// WithMetricsHandler exposes handler at /metrics
func WithMetricsHandler(handler http.Handler) CatalogAppOptions {
	return func(cfg *catalogAppConfig) error {
		cfg.metricsHandler = handler
		return nil
	}
}

// validateAddress accepts host:port where host may be empty or "localhost"
func validateAddress(addr string) error {
	if addr == "" {
		return fmt.Errorf("address cannot be empty")
	}

	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("address is not a valid host:port: %w", err)
	}
	if port == "" {
		return fmt.Errorf("address is not a valid port: %s", addr)
	}
	if host == "localhost" {
		host = "127.0.0.1"
	}
	if host == "" {
		host = "0.0.0.0"
	}

	if _, err := netip.ParseAddrPort(net.JoinHostPort(host, port)); err != nil {
		return fmt.Errorf("address is not a valid port: %w", err)
	}
	return nil
}

// tracer returns the pipeline tracer, or nil when tracing is off
func (b *catalogAppConfig) tracer() trace.Tracer {
	if b.tracerProvider == nil {
		return nil
	}
	return b.tracerProvider.Tracer(tracerName)
}

// buildAggregator builds the HTTP client, fetcher, resolver and scheduler
func buildAggregator(b *catalogAppConfig) (*aggregator.Scheduler, error) {
	slog.Info("Initializing aggregation pipeline",
		"sources", len(b.config.GetSources()),
		"concurrency", b.config.GetConcurrency(),
		"fetch_timeout", b.config.GetFetchTimeout().String())

	if b.httpClient == nil {
		clientOpts := []httpclient.Option{
			httpclient.WithMaxResponseSize(b.config.GetMaxResponseSize()),
		}
		if b.tracerProvider != nil {
			clientOpts = append(clientOpts, httpclient.WithTracerProvider(b.tracerProvider))
		}
		// The per-fetch deadline is enforced by the fetcher; the client timeout is only a backstop
		b.httpClient = httpclient.NewDefaultClient(httpclient.DefaultTimeout, clientOpts...)
	}

	fetcher := sources.NewTimeoutFetcher(b.httpClient, b.config.GetFetchTimeout())

	fetchMetrics, err := telemetry.NewFetchMetrics(b.meterProvider)
	if err != nil {
		return nil, fmt.Errorf("failed to create fetch metrics: %w", err)
	}
	resolver := sources.NewSourceResolver(fetcher,
		sources.WithSuffixes(b.config.GetSuffixes()),
		sources.WithFetchMetrics(fetchMetrics),
		sources.WithTracer(b.tracer()),
	)

	return aggregator.New(resolver,
		aggregator.WithConcurrency(b.config.GetConcurrency()),
		aggregator.WithMetrics(b.aggregationMetrics),
		aggregator.WithTracer(b.tracer()),
	), nil
}

// buildServiceComponents builds the cached catalog service
func buildServiceComponents(
	b *catalogAppConfig,
	resultCache *cache.ResultCache,
) (service.CatalogService, error) {
	slog.Info("Initializing service components", "cache_ttl", resultCache.TTL().String())

	svc, err := inmemory.New(b.config.GetSources(), b.aggregator, resultCache,
		inmemory.WithRefreshTimeout(b.config.GetRefreshTimeout()),
		inmemory.WithMetrics(b.aggregationMetrics),
		inmemory.WithTracer(b.tracer()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create catalog service: %w", err)
	}

	slog.Info("Service components initialized successfully")
	return svc, nil
}

// buildHTTPServer builds the HTTP server with router and middleware
//
//nolint:unparam // we prefer having a similar interface
func buildHTTPServer(
	_ context.Context,
	b *catalogAppConfig,
	svc service.CatalogService,
) (*http.Server, error) {
	slog.Info("Initializing HTTP server")

	// Use default middlewares if not provided
	if b.middlewares == nil {
		b.middlewares = []func(http.Handler) http.Handler{
			middleware.RequestID,
			middleware.RealIP,
			middleware.Recoverer,
			middleware.Timeout(b.requestTimeout),
			api.LoggingMiddleware,
		}
	}

	// Telemetry goes first so rejected and timed-out requests are observed too
	httpMetrics, err := telemetry.NewHTTPMetrics(b.meterProvider)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP metrics: %w", err)
	}
	if httpMetrics != nil {
		slog.Info("HTTP metrics middleware enabled")
	}
	b.middlewares = append([]func(http.Handler) http.Handler{
		telemetry.TracingMiddleware(b.tracerProvider),
		httpMetrics.Middleware,
	}, b.middlewares...)

	serverOpts := []api.ServerOption{
		api.WithMiddlewares(b.middlewares...),
		api.WithMetricsHandler(b.metricsHandler),
	}
	if b.staticDir != "" {
		serverOpts = append(serverOpts, api.WithStaticDir(b.staticDir))
	}
	router := api.NewServer(svc, serverOpts...)

	server := &http.Server{
		Addr:         b.address,
		Handler:      router,
		ReadTimeout:  b.readTimeout,
		WriteTimeout: b.writeTimeout,
		IdleTimeout:  b.idleTimeout,
	}

	slog.Info("HTTP server configured", "address", b.address, "static_dir", b.staticDir)
	return server, nil
}
