package rate

import (
	"context"
	"fmt"
	"time"
)

// Retention is how long an idle entry is kept before it may be reclaimed.
const Retention = 24 * time.Hour

// Policy parameterizes one bucket.
type Policy struct {
	Window        time.Duration
	MaxRequests   int
	BlockDuration time.Duration
}

// Validate reports whether p can be enforced.
func (p Policy) Validate() error {
	if p.Window <= 0 || p.MaxRequests <= 0 || p.BlockDuration < 0 {
		return fmt.Errorf("%w: window=%s max=%d block=%s", ErrInvalidPolicy, p.Window, p.MaxRequests, p.BlockDuration)
	}
	return nil
}

// Decision is the outcome of one attempt.
type Decision struct {
	Allowed bool
	// Count is the attempt count in the current window after this attempt.
	Count int
	// ResetAt is when the current window ends.
	ResetAt time.Time
	// BlockedUntil is non-zero while the key is blocked.
	BlockedUntil time.Time
}

// RetryAt returns the later of ResetAt and BlockedUntil.
func (d Decision) RetryAt() time.Time {
	if d.BlockedUntil.After(d.ResetAt) {
		return d.BlockedUntil
	}
	return d.ResetAt
}

// Limiter counts attempts per (bucket, key).
type Limiter interface {
	Allow(ctx context.Context, bucket, key string) (Decision, error)
	Close() error
}

// Policies maps bucket names to their policy.
type Policies map[string]Policy

// Validate checks every policy in the set.
func (ps Policies) Validate() error {
	for name, p := range ps {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("bucket %q: %w", name, err)
		}
	}
	return nil
}

func (ps Policies) clone() Policies {
	out := make(Policies, len(ps))
	for k, v := range ps {
		out[k] = v
	}
	return out
}

// entry is the per-key state of the algorithm.
type entry struct {
	count        int
	windowStart  time.Time
	blockedUntil time.Time
}

// attempt applies one attempt at now to e and returns the decision.
func (e *entry) attempt(p Policy, now time.Time) Decision {
	if now.Before(e.blockedUntil) {
		return Decision{
			Allowed:      false,
			Count:        e.count,
			ResetAt:      e.windowStart.Add(p.Window),
			BlockedUntil: e.blockedUntil,
		}
	}

	if e.windowStart.IsZero() || now.Sub(e.windowStart) > p.Window {
		e.count = 0
		e.windowStart = now
		e.blockedUntil = time.Time{}
	}

	e.count++
	d := Decision{
		Allowed: e.count <= p.MaxRequests,
		Count:   e.count,
		ResetAt: e.windowStart.Add(p.Window),
	}
	if !d.Allowed && p.BlockDuration > 0 {
		e.blockedUntil = now.Add(p.BlockDuration)
		d.BlockedUntil = e.blockedUntil
	}
	return d
}
