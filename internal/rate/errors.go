package rate

import "errors"

var (
	// ErrUnknownBucket is returned by Allow for a bucket without a policy.
	ErrUnknownBucket = errors.New("rate: unknown bucket")
	// ErrInvalidPolicy is returned when a policy has a non-positive window or limit.
	ErrInvalidPolicy = errors.New("rate: invalid policy")
	// ErrRedisUnavailable wraps Redis failures of the shared backend.
	ErrRedisUnavailable = errors.New("rate: redis unavailable")
)
