package fetch

import (
	"bytes"
	"fmt"
	"mime/multipart"
	"net/textproto"
	"net/url"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/go-querystring/query"
	"github.com/gorilla/schema"
)

// Method is one of the HTTP methods spec.md §3 enumerates.
type Method string

const (
	MethodGet     Method = "GET"
	MethodHead    Method = "HEAD"
	MethodPost    Method = "POST"
	MethodPut     Method = "PUT"
	MethodPatch   Method = "PATCH"
	MethodDelete  Method = "DELETE"
	MethodOptions Method = "OPTIONS"
)

// BodyKind tags the Request body variant (spec.md §3: None | Bytes | Json |
// Form | Multipart).
type BodyKind int

const (
	BodyNone BodyKind = iota
	BodyBytes
	BodyJSON
	BodyForm
	BodyMultipart
)

// MultipartPart is one part of a Multipart body.
type MultipartPart struct {
	FieldName   string
	FileName    string // empty for a plain form field
	ContentType string // sniffed via mimetype when empty and FileName is set
	Content     []byte
}

// Body is the tagged-union request body value.
type Body struct {
	Kind        BodyKind
	Raw         []byte
	Form        url.Values
	Parts       []MultipartPart
	ContentType string
}

var formEncoder = schema.NewEncoder()

// schemaFormValues encodes a struct into url.Values using gorilla/schema,
// the way broady-tygor pairs schema.NewDecoder with schema.NewEncoder for
// its own form handling.
func schemaFormValues(v any) (url.Values, error) {
	vals := url.Values{}
	if err := formEncoder.Encode(v, vals); err != nil {
		return nil, newError(KindInvalidInput, "cannot encode struct as form body", err)
	}
	return vals, nil
}

// queryStructValues encodes a struct into url.Values using go-querystring,
// for QueryStruct.
func queryStructValues(v any) (url.Values, error) {
	vals, err := query.Values(v)
	if err != nil {
		return nil, newError(KindInvalidInput, "cannot encode struct as query", err)
	}
	return vals, nil
}

// Request is the immutable value carrying method, URI, headers, body and
// options (spec.md §3). Every mutator returns a new Request; the zero value
// is never mutated. A Request exists only for the duration of one send.
type Request struct {
	method  Method
	baseURI string
	rel     string
	query   url.Values
	headers Headers
	body    Body
	opts    RequestOptions
}

// New starts a builder for method and a (possibly relative) URI.
func New(method Method, uri string) *Request {
	return &Request{
		method:  method,
		rel:     uri,
		headers: NewHeaders(nil),
		opts:    RequestOptions{},
	}
}

func (r *Request) clone() *Request {
	cp := *r
	cp.opts = r.opts.clone()
	if r.query != nil {
		cp.query = url.Values{}
		for k, v := range r.query {
			cp.query[k] = append([]string(nil), v...)
		}
	}
	return &cp
}

// BaseURI sets the prefix used to resolve a relative request URI (the
// `base_uri` option).
func (r *Request) BaseURI(base string) *Request {
	cp := r.clone()
	cp.baseURI = base
	return cp
}

// Header adds a header value, preserving any existing values for the same key.
func (r *Request) Header(key, value string) *Request {
	cp := r.clone()
	cp.headers = cp.headers.add(key, value)
	return cp
}

// SetHeader replaces all existing values for key with value.
func (r *Request) SetHeader(key, value string) *Request {
	cp := r.clone()
	cp.headers = cp.headers.set(key, value)
	return cp
}

// Query appends a query parameter; repeated calls for the same key accumulate
// (net/url.Values semantics), with user-supplied keys overriding any already
// present in the URI on resolution (spec.md §4.1).
func (r *Request) Query(key, value string) *Request {
	cp := r.clone()
	if cp.query == nil {
		cp.query = url.Values{}
	}
	cp.query.Add(key, value)
	return cp
}

// QueryStruct encodes v (a struct with `url` tags) via go-querystring and
// merges the result into the query string.
func (r *Request) QueryStruct(v any) (*Request, error) {
	vals, err := queryStructValues(v)
	if err != nil {
		return nil, err
	}
	cp := r.clone()
	if cp.query == nil {
		cp.query = url.Values{}
	}
	for k, vs := range vals {
		for _, v := range vs {
			cp.query.Add(k, v)
		}
	}
	return cp, nil
}

// JSON encodes v with sonic and sets Content-Type: application/json,
// overriding any previously set body (spec.md §6: `json` "overrides body").
func (r *Request) JSON(v any) (*Request, error) {
	data, err := sonic.Marshal(v)
	if err != nil {
		return nil, newError(KindInvalidInput, "cannot encode JSON body", err)
	}
	cp := r.clone()
	cp.body = Body{Kind: BodyJSON, Raw: data, ContentType: "application/json"}
	return cp, nil
}

// Form sets a application/x-www-form-urlencoded body from key/value pairs.
func (r *Request) Form(values map[string]string) *Request {
	vals := url.Values{}
	for k, v := range values {
		vals.Set(k, v)
	}
	cp := r.clone()
	cp.body = Body{Kind: BodyForm, Form: vals, ContentType: "application/x-www-form-urlencoded"}
	return cp
}

// FormStruct encodes v via gorilla/schema into a form body.
func (r *Request) FormStruct(v any) (*Request, error) {
	vals, err := schemaFormValues(v)
	if err != nil {
		return nil, err
	}
	cp := r.clone()
	cp.body = Body{Kind: BodyForm, Form: vals, ContentType: "application/x-www-form-urlencoded"}
	return cp, nil
}

// Multipart sets a multipart/form-data body with a computed boundary. Parts
// without an explicit ContentType and with a FileName are sniffed via
// mimetype.
func (r *Request) Multipart(parts []MultipartPart) *Request {
	out := make([]MultipartPart, len(parts))
	for i, p := range parts {
		if p.ContentType == "" && p.FileName != "" {
			p.ContentType = mimetype.Detect(p.Content).String()
		}
		out[i] = p
	}
	cp := r.clone()
	cp.body = Body{Kind: BodyMultipart, Parts: out}
	return cp
}

// Raw sets an explicit raw body with contentType. An explicit Content-Type
// header takes precedence; an empty contentType falls back to the
// ContentType request option, and nothing checks that either is set. No
// implicit JSON-encoding of slices/maps happens
// here — spec.md §9 documents this as a deliberate behavioral change from
// the array-body auto-coercion surprise in the original.
func (r *Request) Raw(body []byte, contentType string) *Request {
	cp := r.clone()
	cp.body = Body{Kind: BodyBytes, Raw: body, ContentType: contentType}
	return cp
}

// BasicAuth sets HTTP basic auth credentials.
func (r *Request) BasicAuth(user, pass string) *Request {
	cp := r.clone()
	cp.opts.Auth = &BasicAuth{User: user, Pass: pass}
	return cp
}

// BearerToken sets a bearer token for the Authorization header.
func (r *Request) BearerToken(token string) *Request {
	cp := r.clone()
	cp.opts.Token = token
	return cp
}

// Timeout sets the total per-send deadline.
func (r *Request) Timeout(d time.Duration) *Request {
	cp := r.clone()
	cp.opts.Timeout = d
	return cp
}

// ConnectTimeout sets the connect_timeout request option. Client and
// DefaultTransport do not read it; only Timeout bounds a send.
func (r *Request) ConnectTimeout(d time.Duration) *Request {
	cp := r.clone()
	cp.opts.ConnectTimeout = d
	return cp
}

// Retries sets the per-request retry cap, overriding the client default.
func (r *Request) Retries(n int) *Request {
	cp := r.clone()
	cp.opts.Retries = &n
	return cp
}

// RetryDelay sets the backoff base delay for this request.
func (r *Request) RetryDelay(d time.Duration) *Request {
	cp := r.clone()
	cp.opts.RetryDelay = d
	return cp
}

// WithOptions returns a copy of r with opts merged in wholesale.
func (r *Request) WithOptions(opts RequestOptions) *Request {
	cp := r.clone()
	cp.opts = opts.clone()
	return cp
}

// WithCache sets the cache option.
func (r *Request) WithCache(opts CacheOptions) *Request {
	cp := r.clone()
	cp.opts.Cache = opts
	return cp
}

// Async marks the request for asynchronous execution.
func (r *Request) Async(enabled bool) *Request {
	cp := r.clone()
	cp.opts.Async = enabled
	return cp
}

// Stream sets the stream request option. Client does not read it: every
// Response carries a fully buffered Body.
func (r *Request) Stream(enabled bool) *Request {
	cp := r.clone()
	cp.opts.Stream = enabled
	return cp
}

// Debug enables attaching a per-response DebugInfo snapshot (spec.md §4.10
// step 9).
func (r *Request) Debug(enabled bool) *Request {
	cp := r.clone()
	cp.opts.Debug = enabled
	return cp
}

// Method returns the request method.
func (r *Request) Method() Method { return r.method }

// Headers returns the request's current header set.
func (r *Request) Headers() Headers { return r.headers }

// resolvedURI returns the absolute URI per spec.md §4.1, merging r.query
// into whatever query rel already carries.
func (r *Request) resolvedURI() (string, error) {
	return resolveURI(r.baseURI, r.rel, map[string][]string(r.query))
}

// validate enforces the Request invariant from spec.md §3: body != None
// implies method in {POST, PUT, PATCH, DELETE}, warn-only for DELETE.
func (r *Request) validate(logger Logger) error {
	if err := r.opts.validate(); err != nil {
		return err
	}
	if r.body.Kind == BodyNone {
		return nil
	}
	switch r.method {
	case MethodPost, MethodPut, MethodPatch:
		return nil
	case MethodDelete:
		logger.Warn("DELETE request carries a body", "method", string(r.method))
		return nil
	default:
		return newError(KindInvalidInput,
			fmt.Sprintf("method %s does not support a request body", r.method), nil)
	}
}

// contentType resolves the effective Content-Type for the body, preferring
// an explicit header, falling back to the body's own content type, falling
// back to opts.ContentType for raw bodies.
func (r *Request) contentType() string {
	if ct := r.headers.Get("Content-Type"); ct != "" {
		return ct
	}
	if r.body.ContentType != "" {
		return r.body.ContentType
	}
	return r.opts.ContentType
}

// encodedBody renders the final wire bytes and content type for the body.
func (r *Request) encodedBody() ([]byte, string, error) {
	switch r.body.Kind {
	case BodyNone:
		return nil, "", nil
	case BodyBytes, BodyJSON:
		return r.body.Raw, r.contentType(), nil
	case BodyForm:
		return []byte(r.body.Form.Encode()), "application/x-www-form-urlencoded", nil
	case BodyMultipart:
		return encodeMultipart(r.body.Parts)
	default:
		return nil, "", newError(KindInvalidInput, "unknown body kind", nil)
	}
}

func encodeMultipart(parts []MultipartPart) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, p := range parts {
		if p.FileName != "" {
			h := make(textproto.MIMEHeader)
			h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, p.FieldName, p.FileName))
			if p.ContentType != "" {
				h.Set("Content-Type", p.ContentType)
			}
			pw, err := w.CreatePart(h)
			if err != nil {
				return nil, "", newError(KindInvalidInput, "cannot build multipart part", err)
			}
			if _, err := pw.Write(p.Content); err != nil {
				return nil, "", newError(KindInvalidInput, "cannot write multipart part", err)
			}
		} else if err := w.WriteField(p.FieldName, string(p.Content)); err != nil {
			return nil, "", newError(KindInvalidInput, "cannot write multipart field", err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", newError(KindInvalidInput, "cannot close multipart writer", err)
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}
