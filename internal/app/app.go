// Package app provides application lifecycle management for the catalog aggregator.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/stacklok/catalog-aggregator/internal/config"
	"github.com/stacklok/catalog-aggregator/internal/sources"
)

// CatalogApp encapsulates all components needed to run the catalog API server
// It provides lifecycle management and graceful shutdown capabilities
type CatalogApp struct {
	config     *config.Config
	components *AppComponents
	httpServer *http.Server

	// Lifecycle management
	ctx        context.Context
	cancelFunc context.CancelFunc
}

// Start starts the HTTP server.
// This method blocks until the HTTP server stops or encounters an error
func (app *CatalogApp) Start() error {
	slog.Info("Server listening", "address", app.httpServer.Addr)
	if err := app.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server failed: %w", err)
	}

	return nil
}

// Stop gracefully stops the application with the given timeout.
// In-flight requests, including ones waiting on an aggregation run, get until the timeout to finish.
func (app *CatalogApp) Stop(timeout time.Duration) error {
	slog.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	err := app.httpServer.Shutdown(shutdownCtx)

	// Cancel the application context after the server has drained
	if app.cancelFunc != nil {
		app.cancelFunc()
	}

	if err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	slog.Info("Server shutdown complete")
	return nil
}

// Aggregate runs one aggregation over the configured sources, bypassing the result cache
func (app *CatalogApp) Aggregate(ctx context.Context) []sources.ResolvedSource {
	return app.components.Aggregator.AggregateAll(ctx, app.config.GetSources())
}

// GetConfig returns the application configuration
func (app *CatalogApp) GetConfig() *config.Config {
	return app.config
}

// GetHTTPServer returns the HTTP server (useful for testing to get the actual port)
func (app *CatalogApp) GetHTTPServer() *http.Server {
	return app.httpServer
}
