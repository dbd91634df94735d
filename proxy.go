package fetch

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync/atomic"
)

// proxyPool is a round-robin proxy rotation threaded through the request
// context by WithRoundRobinProxy, adapted from shiroyk-ski-ext's per-request
// proxy selection: failures to parse a proxy URL are reported through this
// module's Logger port (spec.md §1/§6) rather than a hardcoded slog call,
// and a bad entry is dropped from rotation instead of left as a nil URL.
type proxyPool struct {
	proxyURLs []*url.URL
	index     uint32
}

// next returns the next proxy URL in rotation.
func (p *proxyPool) next() *url.URL {
	i := atomic.AddUint32(&p.index, 1) - 1
	return p.proxyURLs[i%uint32(len(p.proxyURLs))]
}

// newProxyPool parses raw into a rotation. Entries that fail to parse are
// logged via logger and excluded, so next never returns a nil URL.
func newProxyPool(logger Logger, raw ...string) *proxyPool {
	if len(raw) == 0 {
		return nil
	}
	if logger == nil {
		logger = noopLogger{}
	}
	parsed := make([]*url.URL, 0, len(raw))
	for _, pu := range raw {
		u, err := url.Parse(pu)
		if err != nil {
			logger.Warn(fmt.Sprintf("skipping unparseable proxy URL %q", pu), "error", err)
			continue
		}
		parsed = append(parsed, u)
	}
	if len(parsed) == 0 {
		return nil
	}
	return &proxyPool{proxyURLs: parsed}
}

// requestProxyKeyType keys the proxy rotation in a request context.
type requestProxyKeyType struct{}

var requestProxyKey requestProxyKeyType

// WithRoundRobinProxy returns a copy of ctx carrying a round-robin rotation
// over proxies, consulted by NewDefaultTransport's Proxy func ahead of
// http.ProxyFromEnvironment. Per spec.md's Proxy request option: a
// comma-separated proxy list rotates one entry per call to ProxyFromRequest.
// Unparseable entries are logged and skipped rather than silently dropping
// the whole request into a nil-proxy state.
func WithRoundRobinProxy(ctx context.Context, logger Logger, proxies ...string) context.Context {
	if len(proxies) == 0 {
		return ctx
	}
	pool := newProxyPool(logger, proxies...)
	if pool == nil {
		return ctx
	}
	return context.WithValue(ctx, requestProxyKey, pool)
}

// ProxyFromRequest returns the next proxy URL for req's context, or
// (nil, nil) when no rotation was installed by WithRoundRobinProxy.
func ProxyFromRequest(req *http.Request) (*url.URL, error) {
	if pool, ok := req.Context().Value(requestProxyKey).(*proxyPool); ok {
		return pool.next(), nil
	}
	return nil, nil
}
