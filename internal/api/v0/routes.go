// Package v0 provides the REST API handlers for the catalog aggregator.
package v0

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/stacklok/catalog-aggregator/internal/api/common"
	"github.com/stacklok/catalog-aggregator/internal/service"
	"github.com/stacklok/catalog-aggregator/internal/versions"
)

// RepoResponse is one resolved source in the /api/repos listing
type RepoResponse struct {
	URL  string          `json:"url"`
	Data json.RawMessage `json:"data"`
}

// InfoResponse represents the aggregator information response
type InfoResponse struct {
	Sources     int    `json:"sources"`
	Resolved    int    `json:"resolved"`
	LastUpdated string `json:"last_updated"`
	Cached      bool   `json:"cached"`
}

// Routes defines the catalog routes with dependency injection
type Routes struct {
	service service.CatalogService
}

// NewRoutes creates a new Routes instance with the provided service
func NewRoutes(svc service.CatalogService) *Routes {
	return &Routes{
		service: svc,
	}
}

// Router creates a new router for the catalog API
func Router(svc service.CatalogService) http.Handler {
	routes := NewRoutes(svc)

	r := chi.NewRouter()
	r.Get("/repos", routes.listRepos)
	r.Get("/info", routes.getInfo)

	return r
}

// listRepos handles GET /api/repos.
// Sources that could not be resolved are simply missing from the list.
func (rr *Routes) listRepos(w http.ResponseWriter, r *http.Request) {
	repos, err := rr.service.Repos(r.Context())
	if err != nil {
		slog.Error("Failed to aggregate sources", "error", err)
		common.WriteErrorResponse(w, "Failed to aggregate sources", http.StatusInternalServerError)
		return
	}

	resp := make([]RepoResponse, 0, len(repos))
	for _, repo := range repos {
		resp = append(resp, RepoResponse{URL: repo.URL, Data: repo.Data})
	}

	common.WriteJSONResponse(w, resp, http.StatusOK)
}

// getInfo handles GET /api/info
func (rr *Routes) getInfo(w http.ResponseWriter, r *http.Request) {
	info := rr.service.Info(r.Context())

	resp := InfoResponse{
		Sources:  info.Sources,
		Resolved: info.Resolved,
		Cached:   info.Cached,
	}
	if !info.LastUpdated.IsZero() {
		resp.LastUpdated = info.LastUpdated.UTC().Format(time.RFC3339)
	}

	common.WriteJSONResponse(w, resp, http.StatusOK)
}

// HealthRouter creates a router for health check endpoints
func HealthRouter(svc service.CatalogService) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", healthHandler)
	r.Get("/readiness", readinessHandler(svc))
	r.Get("/version", versionHandler)

	return r
}

// healthHandler handles health check requests
func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"healthy"}`))
}

// readinessHandler handles readiness check requests
func readinessHandler(svc service.CatalogService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.CheckReadiness(r.Context()); err != nil {
			common.WriteErrorResponse(w, "CatalogService not ready: "+err.Error(), http.StatusServiceUnavailable)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	}
}

// versionHandler handles version information requests
func versionHandler(w http.ResponseWriter, _ *http.Request) {
	common.WriteJSONResponse(w, versions.GetVersionInfo(), http.StatusOK)
}
