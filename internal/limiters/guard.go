package limiters

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/goSession/internal/rate"
)

// Bucket names.
const (
	BucketLogin         = "login"
	BucketRegister      = "register"
	BucketPasswordReset = "password_reset"
	BucketRefresh       = "refresh"
)

const unknownIP = "unknown"

var (
	// ErrRateLimited is matched by every *LimitError.
	ErrRateLimited = errors.New("rate limited")
	// ErrUnavailable wraps limiter backend failures.
	ErrUnavailable = errors.New("rate limiter unavailable")
)

// LimitError is returned when a bucket rejects an attempt.
type LimitError struct {
	Bucket  string
	RetryAt time.Time
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("rate limited (%s)", e.Bucket)
}

// Is makes errors.Is(err, ErrRateLimited) hold.
func (e *LimitError) Is(target error) bool {
	return target == ErrRateLimited
}

// DefaultPolicies returns the documented bucket policies.
func DefaultPolicies() rate.Policies {
	return rate.Policies{
		BucketLogin:         {Window: time.Minute, MaxRequests: 5, BlockDuration: 15 * time.Minute},
		BucketRegister:      {Window: time.Minute, MaxRequests: 3},
		BucketPasswordReset: {Window: 15 * time.Minute, MaxRequests: 3, BlockDuration: 60 * time.Minute},
		BucketRefresh:       {Window: time.Minute, MaxRequests: 30},
	}
}

// Guard applies bucket policies through a rate.Limiter.
type Guard struct {
	limiter rate.Limiter
}

// NewGuard wraps limiter.
func NewGuard(limiter rate.Limiter) *Guard {
	return &Guard{limiter: limiter}
}

// Login counts the attempt against both ip and email, so one address
// cannot be guessed at from many IPs.
func (g *Guard) Login(ctx context.Context, ip, email string) error {
	return g.checkIPAndEmail(ctx, BucketLogin, ip, email)
}

// Register checks the register bucket for ip.
func (g *Guard) Register(ctx context.Context, ip string) error {
	return g.check(ctx, BucketRegister, ipKey(ip))
}

// Refresh checks the refresh bucket for ip.
func (g *Guard) Refresh(ctx context.Context, ip string) error {
	return g.check(ctx, BucketRefresh, ipKey(ip))
}

// PasswordReset counts the attempt against both ip and email.
func (g *Guard) PasswordReset(ctx context.Context, ip, email string) error {
	return g.checkIPAndEmail(ctx, BucketPasswordReset, ip, email)
}

// Close releases the underlying limiter.
func (g *Guard) Close() error {
	if g == nil || g.limiter == nil {
		return nil
	}
	return g.limiter.Close()
}

// checkIPAndEmail rejects if either key is over its limit. Both keys are
// always counted. The reported retry instant is the later of the two.
func (g *Guard) checkIPAndEmail(ctx context.Context, bucket, ip, email string) error {
	if g == nil || g.limiter == nil {
		return nil
	}

	keys := []string{"ip:" + ipKey(ip)}
	if e := NormalizeEmail(email); e != "" {
		keys = append(keys, "email:"+e)
	}

	var rejected *LimitError
	for _, key := range keys {
		d, err := g.limiter.Allow(ctx, bucket, key)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
		if d.Allowed {
			continue
		}
		if rejected == nil {
			rejected = &LimitError{Bucket: bucket}
		}
		if at := d.RetryAt(); at.After(rejected.RetryAt) {
			rejected.RetryAt = at
		}
	}
	if rejected != nil {
		return rejected
	}
	return nil
}

func (g *Guard) check(ctx context.Context, bucket, key string) error {
	if g == nil || g.limiter == nil {
		return nil
	}
	d, err := g.limiter.Allow(ctx, bucket, key)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if !d.Allowed {
		return &LimitError{Bucket: bucket, RetryAt: d.RetryAt()}
	}
	return nil
}

// NormalizeEmail lower-cases and trims an address for use as a limiter key.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func ipKey(ip string) string {
	ip = strings.TrimSpace(ip)
	if ip == "" {
		return unknownIP
	}
	return ip
}
