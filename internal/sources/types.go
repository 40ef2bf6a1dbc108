package sources

import (
	"context"
	"encoding/json"
	"errors"
)

var (
	// ErrTimeout is returned when a fetch does not complete before its deadline
	ErrTimeout = errors.New("fetch timed out")

	// ErrMalformedBody is returned when a response body is not JSON, even after lenient repair
	ErrMalformedBody = errors.New("malformed response body")

	// ErrInvalidShape is returned when a JSON document is not a catalog with an apps field
	ErrInvalidShape = errors.New("payload is not a catalog")
)

//go:generate mockgen -destination=mocks/mock_sources.go -package=mocks -source=types.go Fetcher,Resolver

// Fetcher retrieves one candidate URL and returns its JSON payload
type Fetcher interface {
	// Fetch performs a single GET and returns the parsed JSON body
	Fetch(ctx context.Context, url string) (json.RawMessage, error)
}

// Resolver turns a source base URL into its catalog
type Resolver interface {
	// Resolve returns the resolved source, or nil when no candidate yields a catalog
	Resolve(ctx context.Context, endpoint string) *ResolvedSource
}

// ResolvedSource pairs a configured source endpoint with its catalog payload
type ResolvedSource struct {
	// URL is the endpoint exactly as configured
	URL string `json:"url"`

	// Data is the catalog document as returned by the source
	Data json.RawMessage `json:"data"`

	// ResolvedURL is the candidate URL that produced Data
	ResolvedURL string `json:"-"`

	// AppCount is the number of entries in the apps field
	AppCount int `json:"-"`
}
