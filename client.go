package fetch

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"time"
)

// ClientConfig configures a Client (spec.md §4.10/§6).
type ClientConfig struct {
	Transport       Transport
	Logger          Logger
	Store           Store
	IsSharedCache   bool
	DefaultCacheTTL time.Duration
	RetryPolicy     RetryPolicy
	Mock            *MockServer // nil disables mock short-circuiting entirely
	Recorder        *Recorder   // nil disables recording
}

// Client is the Request Executor (spec.md §4.10): the top-level orchestrator
// wiring the Request Model, Cache Manager, Middleware Pipeline, Retry
// Controller, Mock Server and Recorder around a Transport.
type Client struct {
	transport Transport
	logger    Logger
	cache     *CacheManager
	retry     RetryPolicy
	pipeline  *Pipeline
	mock      *MockServer
	recorder  *Recorder
}

// NewClient builds a Client from cfg, filling reasonable defaults for
// anything left zero.
func NewClient(cfg ClientConfig) *Client {
	transport := cfg.Transport
	if transport == nil {
		transport = NewDefaultTransport(nil)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	store := cfg.Store
	if store == nil {
		store = NewMemoryStore(1000, 0)
	}
	policy := cfg.RetryPolicy
	if policy.MaxRetries == 0 && policy.BaseDelay == 0 {
		policy = DefaultRetryPolicy()
	}

	return &Client{
		transport: transport,
		logger:    logger,
		cache:     NewCacheManager(store, cfg.IsSharedCache, cfg.DefaultCacheTTL),
		retry:     policy,
		pipeline:  NewPipeline(),
		mock:      cfg.Mock,
		recorder:  cfg.Recorder,
	}
}

// Use registers a middleware on the client's pipeline.
func (c *Client) Use(m Middleware, priority int) *Client {
	c.pipeline.Use(m, priority)
	return c
}

// Send executes req synchronously, implementing spec.md §4.10's nine-step
// orchestration.
func (c *Client) Send(ctx context.Context, req *Request) (*Response, error) {
	startTime := time.Now()
	resp, uri, err := c.sendInternal(ctx, req)
	if err != nil {
		return nil, err
	}
	if req.opts.Debug {
		resp = attachDebugInfo(resp, req, uri, startTime)
	}
	return resp, nil
}

// sendInternal runs the nine-step orchestration and also returns the
// resolved URI, since attachDebugInfo needs it but the cache/mock steps
// below return early from many points.
func (c *Client) sendInternal(ctx context.Context, req *Request) (*Response, string, error) {
	req = req.clone() // step 1: never mutate the caller's Request

	if err := req.validate(c.logger); err != nil {
		return nil, "", err
	}

	uri, err := req.resolvedURI()
	if err != nil {
		return nil, "", err
	}

	if req.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.opts.Timeout)
		defer cancel()
	}

	if req.opts.Proxy != "" {
		ctx = WithRoundRobinProxy(ctx, c.logger, strings.Split(req.opts.Proxy, ",")...)
	}

	// Step 2: mock short-circuit.
	if c.mock != nil {
		resp, handled, err := c.tryMock(req, uri)
		if handled {
			return resp, uri, err
		}
	}

	keyIn := cacheKeyInput{method: req.method, uri: uri, reqHeaders: req.headers, cacheBody: req.opts.Cache.CacheBody}
	if body, _, encErr := req.encodedBody(); encErr == nil {
		keyIn.body = body
	}

	var lookup LookupResult
	cacheEligible := req.opts.Cache.Enabled && !req.opts.Async
	if cacheEligible {
		lookup, err = c.cache.Lookup(requestContext{ctx: ctx, async: req.opts.Async}, keyIn, req.opts.Cache)
		if err != nil {
			return nil, uri, err
		}

		switch lookup.Decision {
		case DecisionHit:
			return cachedToResponse(lookup.Cached).withCacheStatus(CacheStatusHit), uri, nil
		case DecisionStale:
			go c.revalidateInBackground(req, uri, lookup)
			return cachedToResponse(lookup.Cached).withCacheStatus(CacheStatusStale), uri, nil
		case DecisionRevalidate, DecisionExpired:
			req = attachConditionalHeaders(req, lookup.Cached)
		}
	}

	httpReq, err := buildHTTPRequest(ctx, req, uri)
	if err != nil {
		return nil, uri, err
	}

	core := c.transportCore(req.opts)
	httpResp, sendErr := c.pipeline.Compile(core)(ctx, httpReq)

	if sendErr != nil {
		if cacheEligible && lookup.Cached != nil && isNetworkRetryable(sendErr) {
			if window, ok := canStaleOnError(lookup.Cached.Headers, req.headers); ok {
				if isUsableAsStale(lookup.Cached, time.Now(), window) {
					resp := cachedToResponse(lookup.Cached).withCacheStatus(CacheStatusStaleIfError)
					c.recordExchange(req, uri, resp, nil)
					return resp, uri, nil
				}
			}
		}
		wrapped := withRequestContext(sendErr, string(req.method), uri, c.retry.MaxRetries+1)
		c.recordExchange(req, uri, nil, wrapped)
		return nil, uri, wrapped
	}
	defer httpResp.Body.Close()

	resp, err := toResponse(httpResp)
	if err != nil {
		return nil, uri, err
	}

	if cacheEligible && resp.Status == http.StatusNotModified && lookup.Cached != nil {
		merged := MergeRevalidated(lookup.Cached, resp.Headers)
		ttl := c.cache.ResolveTTL(req.opts.Cache, resp.Headers)
		_ = c.cache.store.Set(ctx, lookup.Key, merged, &ttl)
		final := cachedToResponse(merged).withCacheStatus(CacheStatusRevalidated)
		c.recordExchange(req, uri, final, nil)
		return final, uri, nil
	}

	if cacheEligible && StoreEligible(req.method, resp.Status, resp.Headers, req.opts.Cache, c.cache.isSharedCache) {
		ttl := c.cache.ResolveTTL(req.opts.Cache, resp.Headers)
		entry := &CachedResponse{Status: resp.Status, Headers: resp.Headers, Body: resp.Body, HTTPVersion: resp.HTTPVersion, Reason: resp.Reason}
		_ = c.cache.store.Set(ctx, lookup.Key, entry, &ttl)
	}

	c.recordExchange(req, uri, resp, nil)
	return resp, uri, nil
}

// attachDebugInfo builds the DebugInfo snapshot spec.md §4.10 step 9 calls
// for, per-response and never shared between concurrent sends.
func attachDebugInfo(resp *Response, req *Request, uri string, startTime time.Time) *Response {
	endTime := time.Now()
	cp := *resp
	cp.Debug = &DebugInfo{
		RequestMethod:  string(req.method),
		RequestURI:     uri,
		ResponseStatus: resp.Status,
		ContentLength:  resp.ContentLength(),
		TotalTime:      endTime.Sub(startTime),
		StartTime:      startTime,
		EndTime:        endTime,
	}
	return &cp
}

// SendAsync runs Send in a goroutine, skipping all cache steps per spec.md
// §4.10's async path, and wraps a terminal error in AsyncFailure.
func (c *Client) SendAsync(ctx context.Context, req *Request) <-chan AsyncResult {
	req = req.Async(true)
	out := make(chan AsyncResult, 1)
	go func() {
		resp, err := c.Send(ctx, req)
		if err != nil {
			out <- AsyncResult{Err: &AsyncFailure{Cause: err}}
			return
		}
		out <- AsyncResult{Response: resp}
	}()
	return out
}

// AsyncResult is what SendAsync delivers.
type AsyncResult struct {
	Response *Response
	Err      error
}

func (c *Client) tryMock(req *Request, uri string) (*Response, bool, error) {
	match, err := c.mock.Match(req.method, uri)
	if err != nil {
		c.recordExchange(req, uri, nil, err)
		return nil, true, err
	}
	if match.passThrough || match.noMatch {
		return nil, false, nil
	}

	mockResp, err := match.responder.respond(req)
	if err != nil {
		c.recordExchange(req, uri, nil, err)
		return nil, true, err
	}
	if mockResp.Delay > 0 {
		time.Sleep(mockResp.Delay)
	}
	if mockResp.Err != nil {
		c.recordExchange(req, uri, nil, mockResp.Err)
		return nil, true, mockResp.Err
	}

	resp := &Response{Status: mockResp.Status, Headers: mockResp.Headers, Body: mockResp.Body}
	c.mock.Record(req, resp, nil)
	c.recordExchange(req, uri, resp, nil)
	return resp, true, nil
}

func (c *Client) revalidateInBackground(req *Request, uri string, lookup LookupResult) {
	ctx := context.Background()
	revalReq := attachConditionalHeaders(req, lookup.Cached)
	httpReq, err := buildHTTPRequest(ctx, revalReq, uri)
	if err != nil {
		return
	}
	httpResp, err := c.pipeline.Compile(c.transportCore(req.opts))(ctx, httpReq)
	if err != nil {
		return
	}
	defer httpResp.Body.Close()
	resp, err := toResponse(httpResp)
	if err != nil {
		return
	}
	if resp.Status == http.StatusNotModified {
		merged := MergeRevalidated(lookup.Cached, resp.Headers)
		ttl := c.cache.ResolveTTL(req.opts.Cache, resp.Headers)
		_ = c.cache.store.Set(ctx, lookup.Key, merged, &ttl)
		return
	}
	if StoreEligible(req.method, resp.Status, resp.Headers, req.opts.Cache, c.cache.isSharedCache) {
		ttl := c.cache.ResolveTTL(req.opts.Cache, resp.Headers)
		entry := &CachedResponse{Status: resp.Status, Headers: resp.Headers, Body: resp.Body, HTTPVersion: resp.HTTPVersion, Reason: resp.Reason}
		_ = c.cache.store.Set(ctx, lookup.Key, entry, &ttl)
	}
}

func (c *Client) recordExchange(req *Request, uri string, resp *Response, err error) {
	if c.recorder != nil {
		c.recorder.Capture(req, uri, resp)
	}
}

// transportCore builds the innermost Handler: the Retry Controller wrapping
// the Transport port (spec.md §4.10 step 4). The request's Retries and
// RetryDelay options, when set, override the client's retry policy.
func (c *Client) transportCore(opts RequestOptions) Handler {
	policy := c.retry
	if opts.Retries != nil {
		policy.MaxRetries = *opts.Retries
	}
	if opts.RetryDelay > 0 {
		policy.BaseDelay = opts.RetryDelay
	}
	retryController := NewRetryController(policy, c.logger)
	return func(ctx context.Context, httpReq *http.Request) (*http.Response, error) {
		return retryController.Do(ctx, func(ctx context.Context, attempt int) (*http.Response, error) {
			return c.transport.Send(ctx, httpReq)
		})
	}
}

func attachConditionalHeaders(req *Request, cached *CachedResponse) *Request {
	out := req
	if etag := cached.Headers.Get("ETag"); etag != "" {
		out = out.SetHeader("If-None-Match", etag)
	}
	if lm := cached.Headers.Get("Last-Modified"); lm != "" {
		out = out.SetHeader("If-Modified-Since", lm)
	}
	return out
}

func buildHTTPRequest(ctx context.Context, req *Request, uri string) (*http.Request, error) {
	body, contentType, err := req.encodedBody()
	if err != nil {
		return nil, err
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, string(req.method), uri, reader)
	if err != nil {
		return nil, newError(KindInvalidInput, "cannot build transport request", err)
	}
	httpReq.Header = req.headers.ToHTTPHeader()
	if contentType != "" && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	if req.opts.Auth != nil {
		httpReq.SetBasicAuth(req.opts.Auth.User, req.opts.Auth.Pass)
	}
	if req.opts.Token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.opts.Token)
	}
	return httpReq, nil
}

func toResponse(httpResp *http.Response) (*Response, error) {
	var bodyReader io.Reader = httpResp.Body
	if enc := httpResp.Header.Get("Content-Encoding"); enc != "" {
		decoded, err := decodeReader(enc, httpResp.Body)
		if err != nil {
			return nil, newError(KindDecode, "cannot decode response Content-Encoding", err)
		}
		bodyReader = decoded
	}

	data, err := io.ReadAll(bodyReader)
	if err != nil {
		return nil, newError(KindTransport, "cannot read response body", err)
	}
	return &Response{
		Status:      httpResp.StatusCode,
		Headers:     headersFromHTTP(httpResp.Header),
		Body:        data,
		HTTPVersion: httpResp.Proto,
		Reason:      httpResp.Status,
	}, nil
}

func headersFromHTTP(h http.Header) Headers {
	out := Headers{}
	for key, values := range h {
		for _, v := range values {
			out = out.add(key, v)
		}
	}
	return out
}

func cachedToResponse(c *CachedResponse) *Response {
	return &Response{Status: c.Status, Headers: c.Headers, Body: c.Body, HTTPVersion: c.HTTPVersion, Reason: c.Reason}
}
