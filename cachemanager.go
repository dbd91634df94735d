package fetch

import (
	"context"
	"time"
)

// CacheDecision is the outcome of the Cache Manager's lookup-path decision
// tree (spec.md §4.5).
type CacheDecision int

const (
	DecisionBypass CacheDecision = iota
	DecisionRefresh
	DecisionMiss
	DecisionHit
	DecisionStale
	DecisionRevalidate
	DecisionExpired
)

func (d CacheDecision) String() string {
	switch d {
	case DecisionBypass:
		return "BYPASS"
	case DecisionRefresh:
		return "REFRESH"
	case DecisionMiss:
		return "MISS"
	case DecisionHit:
		return "HIT"
	case DecisionStale:
		return "STALE"
	case DecisionRevalidate:
		return "REVALIDATE"
	case DecisionExpired:
		return "EXPIRED"
	default:
		return "UNKNOWN"
	}
}

// defaultCacheableMethods and defaultStoreCacheableStatuses are the store-path
// defaults from spec.md §4.5 (distinct from §4.4's shouldCache allowlist,
// which governs the header-respecting check layered on top).
var defaultCacheableMethods = map[Method]bool{MethodGet: true, MethodHead: true}

var defaultStoreCacheableStatuses = map[int]bool{
	200: true, 203: true, 204: true, 206: true, 300: true, 301: true, 404: true, 410: true,
}

const defaultTTL = 1 * time.Hour

// CacheManager is the policy orchestrator wired into client.go's executor:
// it owns no state of its own beyond a reference to the Store and the
// process-wide defaults a client was built with.
type CacheManager struct {
	store         Store
	isSharedCache bool
	defaultTTL    time.Duration
}

// NewCacheManager builds a CacheManager over store. isSharedCache governs
// private/s-maxage handling in §4.4's shouldCache/ttl.
func NewCacheManager(store Store, isSharedCache bool, ttl time.Duration) *CacheManager {
	return &CacheManager{store: store, isSharedCache: isSharedCache, defaultTTL: zeroOr(ttl, defaultTTL)}
}

// LookupResult is what the executor gets back from Lookup: the decision plus
// whatever cached entry (if any) informs it.
type LookupResult struct {
	Decision CacheDecision
	Key      string
	Cached   *CachedResponse
}

// isUsableAsStale reports whether cached, expired by now, is still within
// window of its expiry (spec.md §4.5/§4.4's stale-while-revalidate
// and stale-if-error directives share this shape).
func isUsableAsStale(cached *CachedResponse, now time.Time, window time.Duration) bool {
	if window <= 0 || cached.ExpiresAt.IsZero() {
		return false
	}
	return now.Sub(cached.ExpiresAt) <= window
}

func staleWhileRevalidateWindow(respHeaders Headers) time.Duration {
	cc := parseCacheControl(respHeaders.Get("Cache-Control"))
	if n, ok := cc.int("stale-while-revalidate"); ok {
		return time.Duration(n) * time.Second
	}
	return 0
}

// Lookup implements spec.md §4.5's lookup-path decision tree.
func (m *CacheManager) Lookup(ctx requestContext, in cacheKeyInput, cacheOpts CacheOptions) (LookupResult, error) {
	if !cacheOpts.Enabled || ctx.async {
		return LookupResult{Decision: DecisionBypass}, nil
	}

	key, err := cacheKey(in, cacheOpts.Key)
	if err != nil {
		return LookupResult{}, err
	}

	if cacheOpts.ForceRefresh {
		return LookupResult{Decision: DecisionRefresh, Key: key}, nil
	}

	cached, ok, err := m.store.Get(ctx.ctx, key)
	if err != nil {
		return LookupResult{}, err
	}
	if !ok {
		return LookupResult{Decision: DecisionMiss, Key: key}, nil
	}

	now := time.Now()
	if !cached.expired(now) {
		cc := parseCacheControl(cached.Headers.Get("Cache-Control"))
		if cc.has("no-cache") {
			return LookupResult{Decision: DecisionRevalidate, Key: key, Cached: cached}, nil
		}
		return LookupResult{Decision: DecisionHit, Key: key, Cached: cached}, nil
	}

	if isUsableAsStale(cached, now, staleWhileRevalidateWindow(cached.Headers)) {
		return LookupResult{Decision: DecisionStale, Key: key, Cached: cached}, nil
	}

	return LookupResult{Decision: DecisionExpired, Key: key, Cached: cached}, nil
}

// requestContext is the slice of per-send state the Cache Manager needs,
// kept separate from *Request so it stays a pure function of its inputs.
type requestContext struct {
	ctx   context.Context
	async bool
}

// StoreEligible implements the store-path eligibility check from spec.md
// §4.5's "Store path" paragraph (method/status defaults, respect_headers).
func StoreEligible(method Method, status int, respHeaders Headers, cacheOpts CacheOptions, isSharedCache bool) bool {
	if !cacheOpts.Enabled {
		return false
	}
	if !defaultCacheableMethods[method] {
		return false
	}
	if !defaultStoreCacheableStatuses[status] {
		return false
	}
	if cacheOpts.respectHeaders() && !shouldCache(status, respHeaders, isSharedCache) {
		return false
	}
	return true
}

// ResolveTTL implements the store-path TTL precedence: per-request > header >
// global default. The result is always meant to be stored (spec.md §4.5: an
// entry with max-age=0 is still kept so a later request can revalidate it by
// ETag/Last-Modified) — a header-derived TTL of exactly zero means
// "immediately stale", not "store forever", so it's nudged negative before
// reaching Store.Set, whose own zero sentinel is reserved for an explicit
// per-request CacheOptions.TTL override asking to cache without expiry.
func (m *CacheManager) ResolveTTL(cacheOpts CacheOptions, respHeaders Headers) time.Duration {
	if cacheOpts.TTL != nil {
		return *cacheOpts.TTL
	}
	if ttl, ok := cacheControlTTL(respHeaders, m.isSharedCache, time.Now()); ok {
		if ttl <= 0 {
			return -time.Nanosecond
		}
		return ttl
	}
	return m.defaultTTL
}

// MergeRevalidated implements spec.md §4.5's 304-merge: the cached body and
// status survive; headers are replaced by the 304's except the three
// transfer-framing headers, which stay as cached (the body didn't change).
func MergeRevalidated(cached *CachedResponse, freshHeaders Headers) *CachedResponse {
	merged := *cached
	newHeaders := freshHeaders
	for _, preserved := range []string{"Content-Length", "Content-Encoding", "Transfer-Encoding"} {
		if v := cached.Headers.Get(preserved); v != "" {
			newHeaders = newHeaders.set(preserved, v)
		}
	}
	merged.Headers = newHeaders
	return &merged
}
