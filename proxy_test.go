package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProxyFromRequestRoundRobin(t *testing.T) {
	t.Parallel()
	ctx := WithRoundRobinProxy(context.Background(), nil, "http://proxy-a:8080", "http://proxy-b:8080")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://example.com/", nil)
	require.NoError(t, err)

	first, err := ProxyFromRequest(req)
	require.NoError(t, err)
	second, err := ProxyFromRequest(req)
	require.NoError(t, err)
	third, err := ProxyFromRequest(req)
	require.NoError(t, err)

	assert.Equal(t, "proxy-a:8080", first.Host)
	assert.Equal(t, "proxy-b:8080", second.Host)
	assert.Equal(t, "proxy-a:8080", third.Host, "rotation wraps back to the first entry")
}

func TestProxyFromRequestNoRotationInstalled(t *testing.T) {
	t.Parallel()
	req, err := http.NewRequest(http.MethodGet, "http://example.com/", nil)
	require.NoError(t, err)

	proxy, err := ProxyFromRequest(req)
	require.NoError(t, err)
	assert.Nil(t, proxy)
}

func TestWithRoundRobinProxySkipsUnparseableEntries(t *testing.T) {
	t.Parallel()
	var warnings int
	logger := &countingWarnLogger{count: &warnings}

	ctx := WithRoundRobinProxy(context.Background(), logger, "http://ok:8080", "://not-a-url")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://example.com/", nil)
	require.NoError(t, err)

	proxy, err := ProxyFromRequest(req)
	require.NoError(t, err)
	require.NotNil(t, proxy)
	assert.Equal(t, "ok:8080", proxy.Host)
	assert.Equal(t, 1, warnings)
}

func TestWithRoundRobinProxyAllUnparseableYieldsNoRotation(t *testing.T) {
	t.Parallel()
	ctx := WithRoundRobinProxy(context.Background(), nil, "://not-a-url")
	req, err := http.NewRequest(http.MethodGet, "http://example.com/", nil)
	require.NoError(t, err)
	req = req.WithContext(ctx)

	proxy, err := ProxyFromRequest(req)
	require.NoError(t, err)
	assert.Nil(t, proxy)
}

// countingWarnLogger is a minimal Logger that only counts Warn calls, used
// to assert unparseable proxy entries are reported rather than silently
// dropped.
type countingWarnLogger struct {
	count *int
}

func (countingWarnLogger) Debug(string, ...any) {}
func (countingWarnLogger) Info(string, ...any)  {}
func (l *countingWarnLogger) Warn(string, ...any) {
	*l.count++
}
func (countingWarnLogger) Error(string, ...any) {}

func TestDefaultTransportConsultsProxyFromRequest(t *testing.T) {
	t.Parallel()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	// No proxy installed: the default transport falls through to
	// http.ProxyFromEnvironment and reaches the real test server directly.
	transport := NewDefaultTransport(nil)
	req, err := http.NewRequest(http.MethodGet, ts.URL, nil)
	require.NoError(t, err)
	resp, err := transport.Send(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
