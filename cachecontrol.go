package fetch

import (
	"strconv"
	"strings"
	"time"
)

// cacheControl is a parsed Cache-Control directive map, grounded on the
// identical tokenizer in lggomez-httpcache/cache_control.go and
// shiroyk-ski-ext/fetch/cache.go's parseCacheControl: split on comma, trim,
// split each token on the first "=", trim quotes, lowercase the directive.
type cacheControl map[string]string

func parseCacheControl(header string) cacheControl {
	cc := cacheControl{}
	for _, part := range strings.Split(header, ",") {
		part = strings.Trim(part, " ")
		if part == "" {
			continue
		}
		if strings.ContainsRune(part, '=') {
			keyVal := strings.SplitN(part, "=", 2)
			key := strings.ToLower(strings.Trim(keyVal[0], " "))
			cc[key] = strings.Trim(strings.Trim(keyVal[1], " "), `"`)
		} else {
			cc[strings.ToLower(part)] = ""
		}
	}
	return cc
}

func (cc cacheControl) has(directive string) bool {
	_, ok := cc[directive]
	return ok
}

func (cc cacheControl) int(directive string) (int, bool) {
	v, ok := cc[directive]
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// cacheableStatuses is the default status-code allowlist for shouldCache
// (spec.md §4.4).
var cacheableStatuses = map[int]bool{
	200: true, 203: true, 204: true, 206: true,
	300: true, 301: true, 404: true, 405: true, 410: true, 414: true, 501: true,
}

// shouldCache implements spec.md §4.4's shouldCache(response, isSharedCache).
func shouldCache(status int, respHeaders Headers, isSharedCache bool) bool {
	cc := parseCacheControl(respHeaders.Get("Cache-Control"))
	if cc.has("no-store") {
		return false
	}
	if isSharedCache && cc.has("private") {
		return false
	}
	return cacheableStatuses[status]
}

// cacheControlTTL implements spec.md §4.4's ttl(response, isSharedCache).
// Returns (ttl, true) when a header-derived TTL could be determined.
func cacheControlTTL(respHeaders Headers, isSharedCache bool, now time.Time) (time.Duration, bool) {
	cc := parseCacheControl(respHeaders.Get("Cache-Control"))

	if isSharedCache {
		if n, ok := cc.int("s-maxage"); ok {
			return time.Duration(n) * time.Second, true
		}
	}
	if n, ok := cc.int("max-age"); ok {
		return time.Duration(n) * time.Second, true
	}
	if expiresHeader := respHeaders.Get("Expires"); expiresHeader != "" {
		if expires, err := time.Parse(time.RFC1123, expiresHeader); err == nil {
			d := expires.Sub(now)
			if d < 0 {
				d = 0
			}
			return d, true
		}
	}
	return 0, false
}

// canStaleOnError reports whether either the cached response or the request
// carries the stale-if-error cache-control extension (RFC 5861), mirroring
// shiroyk-ski-ext/fetch/cache.go's canStaleOnError.
func canStaleOnError(respHeaders, reqHeaders Headers) (time.Duration, bool) {
	respCC := parseCacheControl(respHeaders.Get("Cache-Control"))
	reqCC := parseCacheControl(reqHeaders.Get("Cache-Control"))

	if v, ok := respCC["stale-if-error"]; ok {
		return parseStaleDirective(v)
	}
	if v, ok := reqCC["stale-if-error"]; ok {
		return parseStaleDirective(v)
	}
	return 0, false
}

func parseStaleDirective(v string) (time.Duration, bool) {
	if v == "" {
		return time.Duration(1<<63 - 1), true // unbounded
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return time.Duration(n) * time.Second, true
}
