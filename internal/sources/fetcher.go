package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/stacklok/catalog-aggregator/internal/config"
	"github.com/stacklok/catalog-aggregator/internal/httpclient"
)

// TimeoutFetcher fetches one URL under a hard deadline
type TimeoutFetcher struct {
	client  httpclient.Client
	timeout time.Duration
}

// NewTimeoutFetcher creates a fetcher. A non-positive timeout uses config.DefaultFetchTimeout.
func NewTimeoutFetcher(client httpclient.Client, timeout time.Duration) *TimeoutFetcher {
	if timeout <= 0 {
		timeout = config.DefaultFetchTimeout
	}
	return &TimeoutFetcher{
		client:  client,
		timeout: timeout,
	}
}

// Timeout returns the per-request deadline
func (f *TimeoutFetcher) Timeout() time.Duration {
	return f.timeout
}

// Fetch performs a GET against url and returns its JSON body.
// The deadline covers the whole transfer including reading the body.
func (f *TimeoutFetcher) Fetch(ctx context.Context, url string) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	body, err := f.client.Get(ctx, url)
	if err != nil {
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			return nil, fmt.Errorf("%w after %s: %s", ErrTimeout, f.timeout, url)
		case errors.Is(err, httpclient.ErrResponseTooLarge):
			return nil, fmt.Errorf("%w: %w", ErrMalformedBody, err)
		default:
			return nil, fmt.Errorf("failed to fetch %s: %w", url, err)
		}
	}

	data, ok := parsePayload(body)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMalformedBody, url)
	}
	return data, nil
}
