// Package httpclient provides the outbound HTTP client used to query catalog sources
package httpclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"
)

const (
	// DefaultTimeout bounds a whole request when the caller's context carries no deadline
	DefaultTimeout = 30 * time.Second

	// DefaultMaxResponseSize is the maximum allowed response size (10MB)
	DefaultMaxResponseSize = 10 * 1024 * 1024

	// UserAgent mimics a desktop browser; some sources sit behind bot protection
	UserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/128.0 Safari/537.36"
)

// browserHeaders are sent with every request in addition to the User-Agent
var browserHeaders = map[string]string{
	"Accept":          "application/json, text/javascript, */*; q=0.01",
	"Accept-Language": "en-US,en;q=0.9",
	"Referer":         "https://appstore.nabzclan.vip/",
	"Origin":          "https://appstore.nabzclan.vip",
	"Cache-Control":   "no-cache",
	"Pragma":          "no-cache",
	"Connection":      "keep-alive",
	"Sec-Fetch-Dest":  "empty",
	"Sec-Fetch-Mode":  "cors",
	"Sec-Fetch-Site":  "same-origin",
}

//go:generate mockgen -destination=mocks/mock_client.go -package=mocks -source=client.go Client

// Client is an interface for HTTP operations
type Client interface {
	// Get performs an HTTP GET request and returns the response body
	Get(ctx context.Context, url string) ([]byte, error)
}

// Option configures a DefaultClient
type Option func(*DefaultClient)

// WithMaxResponseSize overrides the response size limit. Non-positive values are ignored.
func WithMaxResponseSize(size int64) Option {
	return func(c *DefaultClient) {
		if size > 0 {
			c.maxResponseSize = size
		}
	}
}

// WithTracerProvider instruments outbound requests with client spans
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *DefaultClient) {
		c.tracerProvider = tp
	}
}

// WithTransport replaces the underlying round tripper
func WithTransport(rt http.RoundTripper) Option {
	return func(c *DefaultClient) {
		c.transport = rt
	}
}

// DefaultClient is the default HTTP client implementation
type DefaultClient struct {
	client          *http.Client
	transport       http.RoundTripper
	tracerProvider  trace.TracerProvider
	maxResponseSize int64
}

// NewDefaultClient creates a new HTTP client with the specified timeout.
// If timeout is 0, uses DefaultTimeout.
func NewDefaultClient(timeout time.Duration, opts ...Option) *DefaultClient {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	c := &DefaultClient{
		transport:       http.DefaultTransport,
		maxResponseSize: DefaultMaxResponseSize,
	}
	for _, opt := range opts {
		opt(c)
	}

	transport := c.transport
	if c.tracerProvider != nil {
		transport = otelhttp.NewTransport(transport,
			otelhttp.WithTracerProvider(c.tracerProvider),
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return "GET " + r.URL.Host
			}),
		)
	}

	c.client = &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
	return c
}

// MaxResponseSize returns the response size limit in bytes
func (c *DefaultClient) MaxResponseSize() int64 {
	return c.maxResponseSize
}

// Get performs an HTTP GET request with browser-like headers
func (c *DefaultClient) Get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", UserAgent)
	for k, v := range browserHeaders {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, NewHTTPError(resp.StatusCode, url, resp.Status)
	}

	if resp.ContentLength > c.maxResponseSize {
		return nil, fmt.Errorf("%w: content length %d bytes, limit %d bytes (%.2f MB)",
			ErrResponseTooLarge, resp.ContentLength, c.maxResponseSize, float64(c.maxResponseSize)/(1024*1024))
	}

	// +1 to detect if limit exceeded
	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if int64(len(body)) > c.maxResponseSize {
		return nil, fmt.Errorf("%w: limit %d bytes (%.2f MB)",
			ErrResponseTooLarge, c.maxResponseSize, float64(c.maxResponseSize)/(1024*1024))
	}

	return body, nil
}
