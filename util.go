package fetch

import (
	"context"
	"errors"
	"net"
	"net/url"
	"os"
)

// zeroOr returns fallback when v is the zero value, mirroring the
// cloudcat.ZeroOr helper shiroyk-ski-ext/fetch.NewFetcher relies on (that
// package isn't part of the retrieved corpus, so it's reimplemented locally).
func zeroOr[T comparable](v, fallback T) T {
	var zero T
	if v == zero {
		return fallback
	}
	return v
}

// emptyOr returns fallback when the slice is empty.
func emptyOr[T any](v, fallback []T) []T {
	if len(v) == 0 {
		return fallback
	}
	return v
}

func isTimeoutErr(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded)
}

func isConnectErr(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr.Op == "dial" || opErr.Op == "read" || opErr.Op == "write"
	}
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}

func isCancelledErr(err error) bool {
	return errors.Is(err, context.Canceled)
}

// isNetworkClassError reports whether err is a retryable network-class
// failure per spec.md §4.6: connect failures, DNS errors, read/write resets,
// timeouts.
func isNetworkClassError(err error) bool {
	if err == nil {
		return false
	}
	var fe *Error
	if errors.As(err, &fe) {
		if fe.Kind != KindTransport {
			return false
		}
		switch fe.Tag {
		case TagConnect, TagTimeout, TagRead:
			return true
		default:
			return false
		}
	}
	return isTimeoutErr(err) || isConnectErr(err)
}

// isURLAbsolute reports whether u has a scheme, i.e. is not relative.
func isURLAbsolute(u *url.URL) bool {
	return u.IsAbs()
}
