package app

import (
	"github.com/stacklok/catalog-aggregator/internal/cache"
	"github.com/stacklok/catalog-aggregator/internal/service"
)

// AppComponents groups all application components
//
//nolint:revive // This name is fine
type AppComponents struct {
	// Aggregator resolves every configured source concurrently
	Aggregator service.Aggregator

	// Cache holds the last aggregation result
	Cache *cache.ResultCache

	// CatalogService provides the cached catalog to the API
	CatalogService service.CatalogService
}
