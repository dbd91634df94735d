package fetch

import (
	"context"
	"math/rand"
	"net/http"
	"strconv"
	"time"
)

// defaultRetryableStatuses is the status-class retry set from spec.md §3's
// RetryPolicy default.
var defaultRetryableStatuses = map[int]bool{408: true, 429: true, 500: true, 502: true, 503: true, 504: true}

// RetryPolicy configures the Retry Controller (spec.md §3).
type RetryPolicy struct {
	MaxRetries        int
	BaseDelay         time.Duration
	JitterFraction    float64
	RetryableStatuses map[int]bool
}

// DefaultRetryPolicy matches spec.md §3's documented defaults.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:        2,
		BaseDelay:         100 * time.Millisecond,
		JitterFraction:    0.5,
		RetryableStatuses: defaultRetryableStatuses,
	}
}

func (p RetryPolicy) statuses() map[int]bool {
	if len(p.RetryableStatuses) == 0 {
		return defaultRetryableStatuses
	}
	return p.RetryableStatuses
}

func (p RetryPolicy) isRetryableStatus(status int) bool {
	return p.statuses()[status]
}

// backoffDelay implements spec.md §4.6's formula: base × 2^(k-1) × (1 ±
// jitter), floored at 1ms, for attempt k >= 1.
func backoffDelay(policy RetryPolicy, k int) time.Duration {
	base := zeroOr(policy.BaseDelay, 100*time.Millisecond)
	jitter := policy.JitterFraction

	multiplier := 1 << uint(k-1)
	raw := float64(base) * float64(multiplier)
	factor := 1 + (rand.Float64()*2-1)*jitter
	delay := time.Duration(raw * factor)
	if delay < time.Millisecond {
		delay = time.Millisecond
	}
	return delay
}

// retryAfterDelay parses a Retry-After header (seconds or HTTP-date) per
// spec.md §4.6, returning (delay, true) when it could be determined.
func retryAfterDelay(header string, now time.Time) (time.Duration, bool) {
	if header == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(header); err == nil {
		return time.Duration(secs) * time.Second, true
	}
	if when, err := http.ParseTime(header); err == nil {
		d := when.Sub(now)
		if d < 0 {
			d = 0
		}
		return d, true
	}
	return 0, false
}

// retryTransportFunc is the shape the Retry Controller wraps: a single
// transport-invoking attempt that returns either a response or a classified
// error.
type retryTransportFunc func(ctx context.Context, attempt int) (*http.Response, error)

// RetryController wraps a single-attempt transport call in the retry loop
// described by spec.md §4.6.
type RetryController struct {
	policy RetryPolicy
	logger Logger
}

// NewRetryController builds a RetryController with policy and logger (nil
// becomes a no-op logger). The policy is used as given, except that a zero
// BaseDelay means 100ms and empty RetryableStatuses means the default set; a
// zero MaxRetries means a single attempt and a zero JitterFraction means no
// jitter.
func NewRetryController(policy RetryPolicy, logger Logger) *RetryController {
	if logger == nil {
		logger = noopLogger{}
	}
	return &RetryController{policy: policy, logger: logger}
}

// Do runs attempt at most policy.MaxRetries+1 times. A network-class error
// (attempt returns a non-nil error whose *Error.Kind is KindTransport with
// tag connect, timeout or read) always retries. A response whose status is in
// RetryableStatuses retries too, but the last such response is returned
// rather than raised once attempts are exhausted. Any other error or
// response is returned immediately.
func (c *RetryController) Do(ctx context.Context, attempt retryTransportFunc) (*http.Response, error) {
	maxAttempts := c.policy.MaxRetries + 1
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastResp *http.Response
	var lastErr error

	for k := 1; k <= maxAttempts; k++ {
		if err := ctx.Err(); err != nil {
			return nil, &Error{Kind: KindCancelled, Message: "cancelled before attempt", Attempt: k, Cause: err}
		}

		resp, err := attempt(ctx, k)
		if err != nil {
			var fe *Error
			if asError(err, &fe) && fe.Kind == KindCancelled {
				return nil, err
			}
			if !isNetworkRetryable(err) || k == maxAttempts {
				return nil, err
			}
			lastErr = err
			c.logger.Debug("retrying after transport error", "attempt", k, "error", err)
			if waitErr := c.wait(ctx, k, ""); waitErr != nil {
				return nil, waitErr
			}
			continue
		}

		lastResp = resp
		lastErr = nil

		if !c.policy.isRetryableStatus(resp.StatusCode) || k == maxAttempts {
			return resp, nil
		}

		c.logger.Debug("retrying after retryable status", "attempt", k, "status", resp.StatusCode)
		retryAfter := resp.Header.Get("Retry-After")
		if waitErr := c.wait(ctx, k, retryAfter); waitErr != nil {
			return nil, waitErr
		}
	}

	if lastResp != nil {
		return lastResp, nil
	}
	return nil, lastErr
}

func (c *RetryController) wait(ctx context.Context, attempt int, retryAfterHeader string) error {
	delay := backoffDelay(c.policy, attempt)
	if retryAfterHeader != "" {
		if raDelay, ok := retryAfterDelay(retryAfterHeader, time.Now()); ok && raDelay > delay {
			delay = raDelay
		}
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return &Error{Kind: KindCancelled, Message: "cancelled during backoff", Attempt: attempt, Cause: ctx.Err()}
	}
}

// isNetworkRetryable reports whether err is a network-class TransportError
// (always retryable per spec.md §4.6), as opposed to KindInvalidInput or a
// non-retryable transport tag like TagProtocol.
func isNetworkRetryable(err error) bool {
	return isNetworkClassError(err)
}

// asError is a small errors.As wrapper kept local so retry.go doesn't need
// its own import block juggling when errors.go's helpers change shape.
func asError(err error, target **Error) bool {
	for err != nil {
		if fe, ok := err.(*Error); ok {
			*target = fe
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
