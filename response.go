package fetch

import (
	"bytes"
	"io"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"golang.org/x/net/html/charset"
)

// CacheStatus is one of the values spec.md §6 defines for the
// `X-Cache-Status` response header.
type CacheStatus string

const (
	CacheStatusHit            CacheStatus = "HIT"
	CacheStatusStale          CacheStatus = "STALE"
	CacheStatusRevalidated    CacheStatus = "REVALIDATED"
	CacheStatusStaleIfError   CacheStatus = "STALE-IF-ERROR"
	cacheStatusHeader                     = "X-Cache-Status"
)

// DebugInfo carries the per-response debug record attached by the executor
// when debugging is enabled (spec.md §6). It is never shared between
// concurrent sends.
type DebugInfo struct {
	RequestMethod  string
	RequestURI     string
	ResponseStatus int
	ContentLength  int64
	TotalTime      time.Duration
	StartTime      time.Time
	EndTime        time.Time
	MemoryDeltaB   int64
}

// Response is the value returned to callers (spec.md §3). Body is always
// eagerly materialized; Client has no streaming send path.
type Response struct {
	Status      int
	Headers     Headers
	Body        []byte
	HTTPVersion string
	Reason      string
	Debug       *DebugInfo
}

// IsSuccess reports 2xx.
func (r *Response) IsSuccess() bool { return r.Status >= 200 && r.Status < 300 }

// IsRedirect reports 3xx.
func (r *Response) IsRedirect() bool { return r.Status >= 300 && r.Status < 400 }

// IsClientError reports 4xx.
func (r *Response) IsClientError() bool { return r.Status >= 400 && r.Status < 500 }

// IsServerError reports 5xx.
func (r *Response) IsServerError() bool { return r.Status >= 500 && r.Status < 600 }

// CacheStatusHeader reads the X-Cache-Status header set by the Cache Manager.
func (r *Response) CacheStatusHeader() CacheStatus {
	return CacheStatus(r.Headers.Get(cacheStatusHeader))
}

// JSON decodes the response body as JSON into v, raising KindDecode on failure.
func (r *Response) JSON(v any) error {
	if err := sonic.Unmarshal(r.Body, v); err != nil {
		return newError(KindDecode, "cannot decode JSON response body", err)
	}
	return nil
}

// Text decodes the body as text, auto-detecting charset from the Content-Type
// header the way shiroyk-ski-ext/fetch.fetcher.Do does for non-HEAD, non-empty
// bodies, unless disableCharsetDetect is true.
func (r *Response) Text(disableCharsetDetect bool) (string, error) {
	if disableCharsetDetect || len(r.Body) == 0 {
		return string(r.Body), nil
	}
	reader, err := charset.NewReader(bytes.NewReader(r.Body), r.Headers.Get("Content-Type"))
	if err != nil {
		return "", newError(KindDecode, "charset detection failed", err)
	}
	decoded, err := io.ReadAll(reader)
	if err != nil {
		return "", newError(KindDecode, "charset decode failed", err)
	}
	return string(decoded), nil
}

// ContentLength reports the Content-Length header, or len(Body) if absent.
func (r *Response) ContentLength() int64 {
	if cl := r.Headers.Get("Content-Length"); cl != "" {
		if n, err := strconv.ParseInt(cl, 10, 64); err == nil {
			return n
		}
	}
	return int64(len(r.Body))
}

// withCacheStatus returns a copy of r with the X-Cache-Status header set.
func (r *Response) withCacheStatus(status CacheStatus) *Response {
	cp := *r
	cp.Headers = cp.Headers.set(cacheStatusHeader, string(status))
	return &cp
}
