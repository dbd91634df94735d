package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(ts *httptest.Server) *Client {
	return NewClient(ClientConfig{
		Transport:   NewDefaultTransport(ts.Client()),
		RetryPolicy: RetryPolicy{MaxRetries: 2, BaseDelay: time.Millisecond},
		Store:       NewMemoryStore(100, 0),
	})
}

func TestClientRetryThenSuccess(t *testing.T) {
	t.Parallel()
	var attempts atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	client := newTestClient(ts)
	resp, err := client.Send(context.Background(), New(MethodGet, ts.URL))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, int32(2), attempts.Load())
}

func TestClientCacheHit(t *testing.T) {
	t.Parallel()
	var hits atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Cache-Control", "max-age=3600")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("cached"))
	}))
	defer ts.Close()

	client := newTestClient(ts)
	req := New(MethodGet, ts.URL).WithCache(CacheOptions{Enabled: true})

	first, err := client.Send(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, CacheStatus(""), first.CacheStatusHeader())

	second, err := client.Send(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, CacheStatusHit, second.CacheStatusHeader())
	assert.Equal(t, int32(1), hits.Load())
}

func TestClientConditionalRevalidation(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		if n == 1 {
			w.Header().Set("ETag", `"abc"`)
			w.Header().Set("Cache-Control", "max-age=0")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("body"))
			return
		}
		if r.Header.Get("If-None-Match") == `"abc"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	client := newTestClient(ts)
	req := New(MethodGet, ts.URL).WithCache(CacheOptions{Enabled: true})

	first, err := client.Send(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, []byte("body"), first.Body)

	second, err := client.Send(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, CacheStatusRevalidated, second.CacheStatusHeader())
	assert.Equal(t, []byte("body"), second.Body)
	assert.Equal(t, int32(2), calls.Load())
}

func TestClientStaleIfError(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewMemoryStore(100, 0)

	key, err := cacheKey(cacheKeyInput{method: MethodGet, uri: "https://down.example.com/"}, "")
	require.NoError(t, err)
	already := -time.Second
	require.NoError(t, store.Set(ctx, key, &CachedResponse{
		Status:  200,
		Body:    []byte("stale body"),
		Headers: NewHeaders(map[string]string{"Cache-Control": "stale-if-error=60"}),
	}, &already))

	failing := TransportFunc(func(ctx context.Context, req *http.Request) (*http.Response, error) {
		return nil, &Error{Kind: KindTransport, Tag: TagConnect, Message: "connection refused"}
	})
	client := NewClient(ClientConfig{
		Transport:   failing,
		RetryPolicy: RetryPolicy{MaxRetries: 0},
		Store:       store,
	})

	req := New(MethodGet, "https://down.example.com/").WithCache(CacheOptions{Enabled: true})
	resp, err := client.Send(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, CacheStatusStaleIfError, resp.CacheStatusHeader())
	assert.Equal(t, []byte("stale body"), resp.Body)
}

func TestClientMockShortCircuit(t *testing.T) {
	t.Parallel()
	mock := NewMockServer()
	mock.Fake(map[string]MockResponder{
		"https://api.example.com/users": &MockResponse{Status: 201, Body: []byte("created")},
	})

	client := NewClient(ClientConfig{Mock: mock})
	resp, err := client.Send(context.Background(), New(MethodGet, "https://api.example.com/users"))
	require.NoError(t, err)
	assert.Equal(t, 201, resp.Status)
	assert.Equal(t, []byte("created"), resp.Body)
}

func TestClientConcurrentSendsDoNotLeakState(t *testing.T) {
	t.Parallel()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	client := newTestClient(ts)
	base := New(MethodGet, ts.URL)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			req := base.Header("X-Worker", string(rune('A'+i%26))).Timeout(time.Duration(i+1) * time.Second)
			resp, err := client.Send(context.Background(), req)
			assert.NoError(t, err)
			assert.Equal(t, http.StatusOK, resp.Status)
		}()
	}
	wg.Wait()

	assert.False(t, base.Headers().Has("X-Worker"))
	assert.Equal(t, time.Duration(0), base.opts.Timeout)
}
