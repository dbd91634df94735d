package fetch

import (
	"errors"
	"fmt"
)

// ErrorKind is a machine-readable classification for errors raised by
// this package. It mirrors the error-kind taxonomy in spec.md §7.
type ErrorKind string

const (
	// KindInvalidInput marks a builder or option that failed validation.
	KindInvalidInput ErrorKind = "invalid_input"
	// KindTransport marks a failure surfaced by the Transport port.
	KindTransport ErrorKind = "transport_error"
	// KindNoFakeResponse marks a stray request while preventStrayRequests is active.
	KindNoFakeResponse ErrorKind = "no_fake_response_registered"
	// KindCacheBackend marks a Cache Store I/O failure.
	KindCacheBackend ErrorKind = "cache_backend_error"
	// KindCancelled marks an aborted send due to a fired cancellation token.
	KindCancelled ErrorKind = "cancelled"
	// KindDecode marks a user-invoked body decode failure.
	KindDecode ErrorKind = "decode_error"
	// KindOutOfBounds marks a mock sequence exhausted with no fallback.
	KindOutOfBounds ErrorKind = "out_of_bounds"
)

// TransportErrorTag classifies a TransportError per spec.md §6.
type TransportErrorTag string

const (
	TagConnect   TransportErrorTag = "connect"
	TagTimeout   TransportErrorTag = "timeout"
	TagRead      TransportErrorTag = "read"
	TagTLS       TransportErrorTag = "tls"
	TagProtocol  TransportErrorTag = "protocol"
	TagCancelled TransportErrorTag = "cancelled"
	TagOther     TransportErrorTag = "other"
)

// Error is the error type returned across the package boundary. Errors from
// the transport send reach the caller with method, URI and attempt count
// filled in by withRequestContext; errors raised before or after the send
// (option validation, URI resolution, cache lookup, mock responders, body
// decoding) carry none of these. No duration is recorded.
type Error struct {
	Kind    ErrorKind
	Tag     TransportErrorTag // only meaningful when Kind == KindTransport
	Message string
	Method  string
	URI     string
	Attempt int
	Cause   error
}

func (e *Error) Error() string {
	if e.Method != "" || e.URI != "" {
		if e.Cause != nil {
			return fmt.Sprintf("%s: %s %s (attempt %d): %s: %v", e.Kind, e.Method, e.URI, e.Attempt, e.Message, e.Cause)
		}
		return fmt.Sprintf("%s: %s %s (attempt %d): %s", e.Kind, e.Method, e.URI, e.Attempt, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is allows errors.Is(err, ErrCancelled) style sentinel comparisons by Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind == "" {
		return false
	}
	return e.Kind == t.Kind
}

// newError builds an *Error, optionally wrapping a cause.
func newError(kind ErrorKind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// withRequestContext annotates err (if it is, or wraps, an *Error) with the
// request context the executor observed. Non-Error values are wrapped.
func withRequestContext(err error, method, uri string, attempt int) error {
	if err == nil {
		return nil
	}
	var fe *Error
	if errors.As(err, &fe) {
		cp := *fe
		if cp.Method == "" {
			cp.Method = method
		}
		if cp.URI == "" {
			cp.URI = uri
		}
		cp.Attempt = attempt
		return &cp
	}
	return &Error{Kind: KindTransport, Tag: TagOther, Message: err.Error(), Method: method, URI: uri, Attempt: attempt, Cause: err}
}

// ErrCancelled is a sentinel usable with errors.Is to test for cancellation.
var ErrCancelled = &Error{Kind: KindCancelled}

// ErrNoFakeResponse is a sentinel usable with errors.Is for stray mock requests.
var ErrNoFakeResponse = &Error{Kind: KindNoFakeResponse}

// ErrOutOfBounds is a sentinel usable with errors.Is for exhausted mock sequences.
var ErrOutOfBounds = &Error{Kind: KindOutOfBounds}

// AsyncFailure wraps the terminal error of an asynchronous send per spec.md
// §7: "The async path wraps the terminal error in an AsyncFailure with the
// original as cause".
type AsyncFailure struct {
	Cause error
}

func (e *AsyncFailure) Error() string { return fmt.Sprintf("async request failed: %v", e.Cause) }
func (e *AsyncFailure) Unwrap() error { return e.Cause }
