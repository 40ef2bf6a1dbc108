// Package api provides the HTTP server for the catalog aggregator.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	v0 "github.com/stacklok/catalog-aggregator/internal/api/v0"
	"github.com/stacklok/catalog-aggregator/internal/service"
)

// ServerOption configures the catalog API server
type ServerOption func(*serverConfig)

// serverConfig holds the server configuration
type serverConfig struct {
	middlewares    []func(http.Handler) http.Handler
	staticDir      string
	metricsHandler http.Handler
}

// WithMiddlewares adds middleware to the server
func WithMiddlewares(mw ...func(http.Handler) http.Handler) ServerOption {
	return func(cfg *serverConfig) {
		cfg.middlewares = append(cfg.middlewares, mw...)
	}
}

// WithStaticDir serves the front-end from dir for every path no API route claims
func WithStaticDir(dir string) ServerOption {
	return func(cfg *serverConfig) {
		cfg.staticDir = dir
	}
}

// WithMetricsHandler exposes handler at /metrics. A nil handler is ignored.
func WithMetricsHandler(handler http.Handler) ServerOption {
	return func(cfg *serverConfig) {
		cfg.metricsHandler = handler
	}
}

// NewServer creates and configures the HTTP router with the given service and options
func NewServer(svc service.CatalogService, opts ...ServerOption) *chi.Mux {
	cfg := &serverConfig{
		middlewares: []func(http.Handler) http.Handler{},
	}
	for _, opt := range opts {
		opt(cfg)
	}

	r := chi.NewRouter()

	// Every response is readable from any origin
	r.Use(middleware.SetHeader("Access-Control-Allow-Origin", "*"))
	for _, mw := range cfg.middlewares {
		r.Use(mw)
	}

	// Mount health check routes directly at root
	r.Mount("/", v0.HealthRouter(svc))
	r.Mount("/api", v0.Router(svc))

	if cfg.metricsHandler != nil {
		r.Handle("/metrics", cfg.metricsHandler)
	}

	if cfg.staticDir != "" {
		r.NotFound(staticHandler(cfg.staticDir))
	} else {
		r.NotFound(notFoundHandler)
	}

	return r
}

// LoggingMiddleware logs HTTP requests
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		slog.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start).String(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
