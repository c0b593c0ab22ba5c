package api

import (
	"errors"
	"fmt"
	"time"
)

// RateLimitError signals that the remote refused the call with a rate
// limit. ResetAt is the server-announced time the window reopens; callers
// pause until then rather than retrying immediately.
type RateLimitError struct {
	ResetAt time.Time
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited until %s", e.ResetAt.UTC().Format(time.RFC3339))
}

// AuthError signals that the remote rejected the caller's identity. This
// is permanent until the user re-authenticates; callers stop and surface
// it, never retrying automatically.
type AuthError struct {
	Status int
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication rejected (status %d)", e.Status)
}

// IsRateLimit reports whether err is (or wraps) a RateLimitError, and
// returns the reset time when it is.
func IsRateLimit(err error) (time.Time, bool) {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return rl.ResetAt, true
	}
	return time.Time{}, false
}

// IsAuthError reports whether err is (or wraps) an AuthError.
func IsAuthError(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}
