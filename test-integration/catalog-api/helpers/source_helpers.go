package helpers

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"time"
)

// MockSourceServerBuilder provides a fluent interface for building fake catalog hosts
type MockSourceServerBuilder struct {
	documents map[string]string
	delays    map[string]time.Duration
	hanging   map[string]bool
}

// NewMockSourceServerBuilder creates a new mock source server builder
func NewMockSourceServerBuilder() *MockSourceServerBuilder {
	return &MockSourceServerBuilder{
		documents: make(map[string]string),
		delays:    make(map[string]time.Duration),
		hanging:   make(map[string]bool),
	}
}

// WithDocument serves body with status 200 at path
func (b *MockSourceServerBuilder) WithDocument(path, body string) *MockSourceServerBuilder {
	b.documents[path] = body
	return b
}

// WithDelay delays the response at path
func (b *MockSourceServerBuilder) WithDelay(path string, delay time.Duration) *MockSourceServerBuilder {
	b.delays[path] = delay
	return b
}

// WithHangingPath never answers requests for path; the handler returns when the client gives up
func (b *MockSourceServerBuilder) WithHangingPath(path string) *MockSourceServerBuilder {
	b.hanging[path] = true
	return b
}

// MockSourceServer is a running fake catalog host that counts requests per path
type MockSourceServer struct {
	*httptest.Server

	mu   sync.Mutex
	hits map[string]int
}

// Hits returns how many requests path received
func (s *MockSourceServer) Hits(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

// TotalHits returns the number of requests received on any path
func (s *MockSourceServer) TotalHits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, n := range s.hits {
		total += n
	}
	return total
}

// Build creates and starts the mock HTTP server. Unknown paths return 404.
func (b *MockSourceServerBuilder) Build() *MockSourceServer {
	s := &MockSourceServer{hits: make(map[string]int)}

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.hits[r.URL.Path]++
		s.mu.Unlock()

		if b.hanging[r.URL.Path] {
			<-r.Context().Done()
			return
		}

		if delay, ok := b.delays[r.URL.Path]; ok {
			select {
			case <-time.After(delay):
			case <-r.Context().Done():
				return
			}
		}

		body, ok := b.documents[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	})

	s.Server = httptest.NewUnstartedServer(handler)
	s.Config.SetKeepAlivesEnabled(false)
	s.Start()

	return s
}
