// Package service provides the business logic behind the catalog API
package service

import (
	"context"
	"errors"
	"time"

	"github.com/stacklok/catalog-aggregator/internal/sources"
)

// ErrNoSources is returned by CheckReadiness when no source endpoints are configured
var ErrNoSources = errors.New("no source endpoints configured")

//go:generate mockgen -destination=mocks/mock_service.go -package=mocks -source=service.go CatalogService,Aggregator

// CatalogService defines the operations exposed by the catalog API
type CatalogService interface {
	// CheckReadiness checks if the service is ready to serve requests
	CheckReadiness(ctx context.Context) error

	// Repos returns the aggregated catalogs, refreshing them when the cache has expired
	Repos(ctx context.Context) ([]sources.ResolvedSource, error)

	// Info summarizes the configured sources and the state of the cache
	Info(ctx context.Context) Info
}

// Aggregator resolves a list of source endpoints
type Aggregator interface {
	// AggregateAll returns the resolved sources in endpoint order, omitting failures
	AggregateAll(ctx context.Context, endpoints []string) []sources.ResolvedSource
}

// Info describes the configured sources and the cached aggregation
type Info struct {
	// Sources is the number of configured endpoints
	Sources int

	// Resolved is the number of sources in the last aggregation, zero if none ran
	Resolved int

	// LastUpdated is when the last aggregation finished, zero if none ran
	LastUpdated time.Time

	// Cached reports whether the last aggregation is still within its TTL
	Cached bool
}
