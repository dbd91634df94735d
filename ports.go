package fetch

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"
)

// Transport is the abstract HTTP engine the core delegates to. Connection
// pooling, TLS and HTTP/1.1-vs-2 negotiation live entirely on the other side
// of this seam; the core never reaches past it. See spec.md §6.
type Transport interface {
	Send(ctx context.Context, req *http.Request) (*http.Response, error)
}

// TransportFunc adapts a function to a Transport.
type TransportFunc func(ctx context.Context, req *http.Request) (*http.Response, error)

func (f TransportFunc) Send(ctx context.Context, req *http.Request) (*http.Response, error) {
	return f(ctx, req)
}

// DefaultTransport adapts *http.Client to the Transport port, the way
// shiroyk-ski-ext/fetch.fetcher embeds *http.Client directly.
type DefaultTransport struct {
	Client *http.Client
}

// NewDefaultTransport returns a Transport backed by client. When client is
// nil it builds an *http.Client tuned the way
// shiroyk-ski-ext/fetch.DefaultRoundTripper tunes its dialer, whose
// RoundTripper consults ProxyFromRequest so a per-request round-robin proxy
// list (set via WithRoundRobinProxy) overrides the environment-derived
// default. A non-nil client is used as is.
func NewDefaultTransport(client *http.Client) *DefaultTransport {
	if client == nil {
		client = &http.Client{
			Transport: &http.Transport{
				Proxy: func(req *http.Request) (*url.URL, error) {
					if proxy, err := ProxyFromRequest(req); proxy != nil || err != nil {
						return proxy, err
					}
					return http.ProxyFromEnvironment(req)
				},
				DialContext: (&net.Dialer{
					Timeout:   30 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:          100,
				IdleConnTimeout:       90 * time.Second,
				TLSHandshakeTimeout:   10 * time.Second,
				ExpectContinueTimeout: 1 * time.Second,
			},
		}
	}
	return &DefaultTransport{Client: client}
}

func (t *DefaultTransport) Send(ctx context.Context, req *http.Request) (*http.Response, error) {
	req = req.WithContext(ctx)
	resp, err := t.Client.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	return resp, nil
}

// classifyTransportError maps a raw net/http error onto a TransportError tag
// per spec.md §6's TransportError enum.
func classifyTransportError(err error) *Error {
	tag := TagOther
	switch {
	case isTimeoutErr(err):
		tag = TagTimeout
	case isConnectErr(err):
		tag = TagConnect
	case isCancelledErr(err):
		tag = TagCancelled
	}
	return &Error{Kind: KindTransport, Tag: tag, Message: "transport send failed", Cause: err}
}

// Logger is the abstract structured-logging port. The core never imports a
// logging backend directly, matching spec.md §1's "emits events through an
// abstract Logger port". NewSlogLogger adapts *slog.Logger, the convention
// shared by shiroyk-ski-ext/fetch/proxy.go and broady-tygor/middleware/logging.go.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// slogLogger adapts *slog.Logger to Logger.
type slogLogger struct{ l *slog.Logger }

// NewSlogLogger returns a Logger backed by l, or slog.Default() if l is nil.
func NewSlogLogger(l *slog.Logger) Logger {
	if l == nil {
		l = slog.Default()
	}
	return &slogLogger{l: l}
}

func (s *slogLogger) Debug(msg string, args ...any) { s.l.Debug(msg, args...) }
func (s *slogLogger) Info(msg string, args ...any)  { s.l.Info(msg, args...) }
func (s *slogLogger) Warn(msg string, args ...any)  { s.l.Warn(msg, args...) }
func (s *slogLogger) Error(msg string, args ...any) { s.l.Error(msg, args...) }

// noopLogger discards everything; used as the zero-value default.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
