package sources_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/mock/gomock"

	"github.com/stacklok/catalog-aggregator/internal/config"
	"github.com/stacklok/catalog-aggregator/internal/httpclient"
	"github.com/stacklok/catalog-aggregator/internal/sources"
	"github.com/stacklok/catalog-aggregator/internal/sources/mocks"
	"github.com/stacklok/catalog-aggregator/internal/telemetry"
)

// pathRecorder records request paths in arrival order
type pathRecorder struct {
	mu    sync.Mutex
	paths []string
}

func (p *pathRecorder) add(path string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paths = append(p.paths, path)
}

func (p *pathRecorder) get() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.paths...)
}

func newResolver(opts ...sources.ResolverOption) *sources.SourceResolver {
	fetcher := sources.NewTimeoutFetcher(httpclient.NewDefaultClient(0), 2*time.Second)
	return sources.NewSourceResolver(fetcher, opts...)
}

func TestSourceResolver_SuffixPriority(t *testing.T) {
	t.Parallel()

	rec := &pathRecorder{}
	server := newTestServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.add(r.URL.Path)
		switch r.URL.Path {
		case "/src/apps.json":
			_, _ = w.Write([]byte(`{"apps": [oops`))
		case "/src/repo.json":
			_, _ = w.Write([]byte(`{"apps":[{"name":"x"}]}`))
		case "/src/altstore.json":
			_, _ = w.Write([]byte(`{"apps":[{"name":"should not be reached"}]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	endpoint := server.URL + "/src//"
	got := newResolver().Resolve(context.Background(), endpoint)

	require.NotNil(t, got)
	assert.Equal(t, endpoint, got.URL, "the configured endpoint is reported, not the candidate")
	assert.Equal(t, server.URL+"/src/repo.json", got.ResolvedURL)
	assert.Equal(t, 1, got.AppCount)
	assert.JSONEq(t, `{"apps":[{"name":"x"}]}`, string(got.Data))
	assert.Equal(t, []string{"/src", "/src/apps.json", "/src/app.json", "/src/repo.json"}, rec.get())
}

func TestSourceResolver_BareURLWins(t *testing.T) {
	t.Parallel()

	rec := &pathRecorder{}
	server := newTestServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.add(r.URL.Path)
		_, _ = w.Write([]byte(`{"name":"Bare","apps":[]}`))
	}))
	defer server.Close()

	got := newResolver().Resolve(context.Background(), server.URL+"/source.json")

	require.NotNil(t, got)
	assert.Equal(t, server.URL+"/source.json", got.ResolvedURL)
	assert.Equal(t, 0, got.AppCount)
	assert.Equal(t, []string{"/source.json"}, rec.get())
}

func TestSourceResolver_AllSuffixesExhausted(t *testing.T) {
	t.Parallel()

	rec := &pathRecorder{}
	server := newTestServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.add(r.URL.Path)
		// valid JSON but never a catalog
		_, _ = w.Write([]byte(`{"name":"not a catalog"}`))
	}))
	defer server.Close()

	got := newResolver().Resolve(context.Background(), server.URL+"/c")

	assert.Nil(t, got)
	assert.Len(t, rec.get(), len(config.DefaultSuffixes))
}

func TestSourceResolver_CustomSuffixes(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	fetcher := mocks.NewMockFetcher(ctrl)

	gomock.InOrder(
		fetcher.EXPECT().Fetch(gomock.Any(), "https://a.example/one").
			Return(nil, sources.ErrTimeout),
		fetcher.EXPECT().Fetch(gomock.Any(), "https://a.example/two").
			Return(json.RawMessage(`{"apps":"abc"}`), nil),
	)

	resolver := sources.NewSourceResolver(fetcher, sources.WithSuffixes([]string{"/one", "/two", "/three"}))
	got := resolver.Resolve(context.Background(), "https://a.example/")

	require.NotNil(t, got)
	assert.Equal(t, "https://a.example/two", got.ResolvedURL)
	assert.Equal(t, 3, got.AppCount)
}

func TestSourceResolver_StopsWhenContextCancelled(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	fetcher := mocks.NewMockFetcher(ctrl)

	ctx, cancel := context.WithCancel(context.Background())
	fetcher.EXPECT().Fetch(gomock.Any(), "https://a.example").
		DoAndReturn(func(context.Context, string) (json.RawMessage, error) {
			cancel()
			return nil, context.Canceled
		}).Times(1)

	got := sources.NewSourceResolver(fetcher).Resolve(ctx, "https://a.example")

	assert.Nil(t, got)
}

func TestSourceResolver_RecordsAttemptOutcomes(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	metrics, err := telemetry.NewFetchMetrics(mp)
	require.NoError(t, err)

	ctrl := gomock.NewController(t)
	fetcher := mocks.NewMockFetcher(ctrl)
	gomock.InOrder(
		fetcher.EXPECT().Fetch(gomock.Any(), "https://a.example").
			Return(nil, httpclient.NewHTTPError(http.StatusNotFound, "https://a.example", "404")),
		fetcher.EXPECT().Fetch(gomock.Any(), "https://a.example/a").
			Return(nil, sources.ErrMalformedBody),
		fetcher.EXPECT().Fetch(gomock.Any(), "https://a.example/b").
			Return(json.RawMessage(`[]`), nil),
		fetcher.EXPECT().Fetch(gomock.Any(), "https://a.example/c").
			Return(nil, errors.New("dial tcp: connection refused")),
		fetcher.EXPECT().Fetch(gomock.Any(), "https://a.example/d").
			Return(json.RawMessage(`{"apps":[1]}`), nil),
	)

	resolver := sources.NewSourceResolver(fetcher,
		sources.WithSuffixes([]string{"", "/a", "/b", "/c", "/d"}),
		sources.WithFetchMetrics(metrics),
	)
	require.NotNil(t, resolver.Resolve(context.Background(), "https://a.example"))

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	counts := make(map[string]int64)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "catalog_agg_fetch_attempts_total" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, dp := range sum.DataPoints {
				outcome, _ := dp.Attributes.Value(attribute.Key("outcome"))
				counts[outcome.AsString()] = dp.Value
			}
		}
	}
	assert.Equal(t, map[string]int64{
		telemetry.OutcomeHTTPStatus:   1,
		telemetry.OutcomeMalformed:    1,
		telemetry.OutcomeInvalidShape: 1,
		telemetry.OutcomeError:        1,
		telemetry.OutcomeOK:           1,
	}, counts)
}
