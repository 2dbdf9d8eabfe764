package faults

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"time"
)

// RetryableError indicates a transient failure that can be retried.
type RetryableError struct {
	StatusCode int
	Message    string
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("retryable error (status %d): %s", e.StatusCode, truncate(e.Message, 200))
}

// IsRetryable checks if an error is worth retrying.
func IsRetryable(err error) bool {
	var retryErr *RetryableError
	if errors.As(err, &retryErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// Category names the failure class of err for ResilienceFault reporting.
func Category(err error) string {
	var retryErr *RetryableError
	if errors.As(err, &retryErr) {
		if retryErr.StatusCode == 429 {
			return "rate_limited"
		}
		return "server_error"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}
	return "error"
}

// Backoff returns a duration for attempt n (0-indexed) with jitter. The
// delay doubles from unit and is capped at 30 units.
func Backoff(attempt int, unit time.Duration) time.Duration {
	base := unit << uint(attempt)
	if limit := 30 * unit; base > limit || base <= 0 {
		base = limit
	}
	if base/2 <= 0 {
		return base
	}
	jitter := time.Duration(rand.Int64N(int64(base) / 2))
	return base + jitter
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
