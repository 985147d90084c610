package goSession

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	// ErrInvalidCredential is the single client-facing rejection for refresh
	// tokens that are unknown, revoked, expired or lost a rotation race.
	ErrInvalidCredential = errors.New("invalid or expired refresh token")
	// ErrPrincipalNotFound reports a token whose owner no longer exists.
	// errors.Is(ErrPrincipalNotFound, ErrInvalidCredential) holds.
	ErrPrincipalNotFound = fmt.Errorf("%w: principal not found", ErrInvalidCredential)
	// ErrTransientStore wraps store, lookup and limiter backend failures.
	// Callers may retry.
	ErrTransientStore = errors.New("session store temporarily unavailable")
	// ErrRateLimited is matched by every *RateLimitError.
	ErrRateLimited = errors.New("rate limited")
	// ErrSigningMisconfigured is returned by Build when signing material is
	// unusable.
	ErrSigningMisconfigured = errors.New("token signing misconfigured")
	ErrSessionLimitExceeded = errors.New("active session limit exceeded")
	ErrInvalidPrincipal     = errors.New("principal id required")
	ErrEngineNotReady       = errors.New("engine not initialized")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrTokenClockSkew       = errors.New("token issued in the future")

	// ErrBadCredentials is returned by account directories for any failed
	// password sign-in.
	ErrBadCredentials = errors.New("invalid email or password")
	ErrAccountExists  = errors.New("account already exists")
)

// RateLimitError is returned when a rate-limit bucket rejects an attempt.
// It never names the key that was counted.
type RateLimitError struct {
	Bucket     string
	RetryAt    time.Time
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

// Is makes errors.Is(err, ErrRateLimited) hold.
func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds, minimum 1, for
// use in a Retry-After header.
func (e *RateLimitError) RetryAfterSeconds() int {
	s := int(math.Ceil(e.RetryAfter.Seconds()))
	if s < 1 {
		return 1
	}
	return s
}
