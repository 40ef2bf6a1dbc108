package aggregator_test

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/stacklok/catalog-aggregator/internal/aggregator"
	"github.com/stacklok/catalog-aggregator/internal/config"
	"github.com/stacklok/catalog-aggregator/internal/sources"
	"github.com/stacklok/catalog-aggregator/internal/sources/mocks"
)

// fakeResolver resolves endpoints after a random delay and tracks concurrency
type fakeResolver struct {
	unresolved map[string]bool
	maxDelay   time.Duration

	inFlight    atomic.Int64
	maxInFlight atomic.Int64

	mu    sync.Mutex
	calls map[string]int
}

func newFakeResolver(maxDelay time.Duration, unresolved ...string) *fakeResolver {
	f := &fakeResolver{
		unresolved: make(map[string]bool),
		maxDelay:   maxDelay,
		calls:      make(map[string]int),
	}
	for _, u := range unresolved {
		f.unresolved[u] = true
	}
	return f
}

func (f *fakeResolver) Resolve(_ context.Context, endpoint string) *sources.ResolvedSource {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		current := f.maxInFlight.Load()
		if n <= current || f.maxInFlight.CompareAndSwap(current, n) {
			break
		}
	}

	f.mu.Lock()
	f.calls[endpoint]++
	f.mu.Unlock()

	if f.maxDelay > 0 {
		time.Sleep(rand.N(f.maxDelay))
	}
	if f.unresolved[endpoint] {
		return nil
	}
	return &sources.ResolvedSource{URL: endpoint, Data: []byte(`{"apps":[]}`)}
}

func endpointsN(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("https://source-%03d.example", i)
	}
	return out
}

func urls(result []sources.ResolvedSource) []string {
	out := make([]string, len(result))
	for i, r := range result {
		out[i] = r.URL
	}
	return out
}

func TestNew_Defaults(t *testing.T) {
	t.Parallel()

	assert.Equal(t, config.DefaultConcurrency, aggregator.New(nil).Concurrency())
	assert.Equal(t, 5, aggregator.New(nil, aggregator.WithConcurrency(5)).Concurrency())
	assert.Equal(t, config.DefaultConcurrency, aggregator.New(nil, aggregator.WithConcurrency(0)).Concurrency())
}

func TestAggregateAll_PreservesOrderUnderRandomLatency(t *testing.T) {
	t.Parallel()

	endpoints := endpointsN(60)
	var unresolved []string
	var want []string
	for i, e := range endpoints {
		if i%3 == 2 {
			unresolved = append(unresolved, e)
			continue
		}
		want = append(want, e)
	}

	resolver := newFakeResolver(20*time.Millisecond, unresolved...)
	got := aggregator.New(resolver).AggregateAll(context.Background(), endpoints)

	assert.Equal(t, want, urls(got))
	assert.LessOrEqual(t, len(got), len(endpoints))
}

func TestAggregateAll_ResolvesEachEndpointOnce(t *testing.T) {
	t.Parallel()

	endpoints := endpointsN(45)
	resolver := newFakeResolver(5 * time.Millisecond)

	got := aggregator.New(resolver).AggregateAll(context.Background(), endpoints)

	require.Len(t, got, len(endpoints))
	for _, e := range endpoints {
		assert.Equal(t, 1, resolver.calls[e], "endpoint %s", e)
	}
}

func TestAggregateAll_RepeatedEndpointsAppearOnce(t *testing.T) {
	t.Parallel()

	endpoints := []string{"https://a.example", "https://b.example", "https://a.example", "https://c.example"}
	resolver := newFakeResolver(0)

	got := aggregator.New(resolver).AggregateAll(context.Background(), endpoints)

	assert.Equal(t, []string{"https://a.example", "https://b.example", "https://c.example"}, urls(got))
	assert.Equal(t, 1, resolver.calls["https://a.example"])
}

func TestAggregateAll_BoundedConcurrency(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		concurrency int
		sources     int
	}{
		{name: "default pool with more sources than workers", concurrency: config.DefaultConcurrency, sources: 100},
		{name: "small pool", concurrency: 3, sources: 30},
		{name: "fewer sources than workers", concurrency: 20, sources: 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			resolver := newFakeResolver(10 * time.Millisecond)
			s := aggregator.New(resolver, aggregator.WithConcurrency(tt.concurrency))

			got := s.AggregateAll(context.Background(), endpointsN(tt.sources))

			assert.Len(t, got, tt.sources)
			assert.LessOrEqual(t, resolver.maxInFlight.Load(), int64(tt.concurrency))
			assert.LessOrEqual(t, resolver.maxInFlight.Load(), int64(tt.sources))
		})
	}
}

func TestAggregateAll_EmptyResults(t *testing.T) {
	t.Parallel()

	t.Run("no endpoints", func(t *testing.T) {
		t.Parallel()

		got := aggregator.New(newFakeResolver(0)).AggregateAll(context.Background(), nil)
		require.NotNil(t, got)
		assert.Empty(t, got)
	})

	t.Run("nothing resolves", func(t *testing.T) {
		t.Parallel()

		ctrl := gomock.NewController(t)
		resolver := mocks.NewMockResolver(ctrl)
		resolver.EXPECT().Resolve(gomock.Any(), gomock.Any()).Return(nil).Times(3)

		got := aggregator.New(resolver).AggregateAll(context.Background(), endpointsN(3))
		require.NotNil(t, got)
		assert.Empty(t, got)
	})
}

func TestAggregateAll_MockResolver(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	resolver := mocks.NewMockResolver(ctrl)

	resolver.EXPECT().Resolve(gomock.Any(), "https://a.example").
		Return(&sources.ResolvedSource{URL: "https://a.example", Data: []byte(`{"apps":[1]}`)})
	resolver.EXPECT().Resolve(gomock.Any(), "https://b.example/").
		Return(&sources.ResolvedSource{URL: "https://b.example/", Data: []byte(`{"apps":[]}`)})
	resolver.EXPECT().Resolve(gomock.Any(), "https://c.example").
		Return(nil)

	got := aggregator.New(resolver, aggregator.WithConcurrency(2)).
		AggregateAll(context.Background(), []string{"https://a.example", "https://b.example/", "https://c.example"})

	require.Len(t, got, 2)
	assert.Equal(t, "https://a.example", got[0].URL)
	assert.Equal(t, "https://b.example/", got[1].URL)
}
