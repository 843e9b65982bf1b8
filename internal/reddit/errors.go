package reddit

import (
	"errors"
	"fmt"
	"time"
)

// Error taxonomy for fetch outcomes. These are expected conditions,
// modeled as typed values rather than control flow.

// RateLimitedError means the API told us to slow down. RetryAfter is
// the server-provided delay, or a default when the header was absent.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

// AuthError is fatal for a source until credentials are reconfigured.
type AuthError struct {
	Status int
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed (status %d)", e.Status)
}

// TransientError covers timeouts, connection failures and 5xx
// responses. Retried with bounded backoff.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient fetch failure: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// IsRateLimited reports whether err is a rate-limit response,
// returning the delay to honor.
func IsRateLimited(err error) (time.Duration, bool) {
	var rl *RateLimitedError
	if errors.As(err, &rl) {
		return rl.RetryAfter, true
	}
	return 0, false
}

// IsAuthError reports whether err is fatal for the source.
func IsAuthError(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

// IsTransient reports whether err is retryable.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
