package limiters

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/MrEthical07/goSession/internal/rate"
)

type clock struct{ now time.Time }

func (c *clock) Now() time.Time          { return c.now }
func (c *clock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newGuard(t *testing.T) (*Guard, *clock) {
	t.Helper()
	c := &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	mem, err := rate.NewMemory(DefaultPolicies(), rate.WithClock(c.Now))
	if err != nil {
		t.Fatalf("rate.NewMemory: %v", err)
	}
	g := NewGuard(mem)
	t.Cleanup(func() { _ = g.Close() })
	return g, c
}

func TestLoginSixthAttemptBlockedForFifteenMinutes(t *testing.T) {
	g, c := newGuard(t)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		if err := g.Login(ctx, "10.0.0.1", "ada@example.com"); err != nil {
			t.Fatalf("attempt %d: %v", i, err)
		}
		c.Advance(5 * time.Second)
	}

	err := g.Login(ctx, "10.0.0.1", "ada@example.com")
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	var le *LimitError
	if !errors.As(err, &le) {
		t.Fatalf("expected *LimitError, got %T", err)
	}
	if want := c.Now().Add(15 * time.Minute); !le.RetryAt.Equal(want) {
		t.Fatalf("RetryAt = %v, want %v", le.RetryAt, want)
	}
}

func TestLoginCountsEmailAcrossIPs(t *testing.T) {
	g, c := newGuard(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		ip := "10.0.1." + string(rune('1'+i))
		if err := g.Login(ctx, ip, "Target@Example.com"); err != nil {
			t.Fatalf("attempt %d: %v", i+1, err)
		}
	}
	var le *LimitError
	if err := g.Login(ctx, "10.0.9.9", "target@example.com"); !errors.As(err, &le) || le.Bucket != BucketLogin {
		t.Fatalf("email key should be exhausted across IPs, got %v", err)
	}
	if want := c.Now().Add(15 * time.Minute); !le.RetryAt.Equal(want) {
		t.Fatalf("RetryAt = %v, want %v", le.RetryAt, want)
	}
	if err := g.Login(ctx, "10.0.9.9", "someone@example.com"); err != nil {
		t.Fatalf("other emails must pass: %v", err)
	}
}

func TestLoginWithoutEmailFallsBackToIP(t *testing.T) {
	g, _ := newGuard(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if err := g.Login(ctx, "10.0.2.1", ""); err != nil {
			t.Fatalf("attempt %d: %v", i+1, err)
		}
	}
	if err := g.Login(ctx, "10.0.2.1", "  "); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ip key to limit, got %v", err)
	}
}

func TestRegisterHasNoBlock(t *testing.T) {
	g, c := newGuard(t)
	ctx := context.Background()
	start := c.Now()

	for i := 0; i < 3; i++ {
		if err := g.Register(ctx, "ip"); err != nil {
			t.Fatalf("attempt %d: %v", i+1, err)
		}
	}
	var le *LimitError
	if err := g.Register(ctx, "ip"); !errors.As(err, &le) {
		t.Fatalf("expected *LimitError, got %v", err)
	}
	if want := start.Add(time.Minute); !le.RetryAt.Equal(want) {
		t.Fatalf("RetryAt = %v, want window end %v", le.RetryAt, want)
	}
}

func TestPasswordResetDualKey(t *testing.T) {
	g, _ := newGuard(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ip := "10.0.0." + string(rune('1'+i))
		if err := g.PasswordReset(ctx, ip, "Victim@Example.com "); err != nil {
			t.Fatalf("attempt %d: %v", i+1, err)
		}
	}
	if err := g.PasswordReset(ctx, "10.0.0.9", "victim@example.com"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("email key should be exhausted across IPs, got %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := g.PasswordReset(ctx, "192.168.1.1", "user"+string(rune('a'+i))+"@x.com"); err != nil {
			t.Fatalf("attempt %d: %v", i+1, err)
		}
	}
	if err := g.PasswordReset(ctx, "192.168.1.1", "fresh@x.com"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("ip key should be exhausted across emails, got %v", err)
	}
}

func TestLimitErrorDoesNotNameKey(t *testing.T) {
	g, _ := newGuard(t)
	ctx := context.Background()
	var last error
	for i := 0; i < 4; i++ {
		last = g.PasswordReset(ctx, "10.1.1.1", "a@x.com")
	}
	if last == nil {
		t.Fatal("expected rejection")
	}
	for _, leak := range []string{"10.1.1.1", "a@x.com", "email", "ip:"} {
		if strings.Contains(last.Error(), leak) {
			t.Fatalf("error %q leaks %q", last.Error(), leak)
		}
	}
}

func TestNilGuardAllows(t *testing.T) {
	var g *Guard
	if err := g.Login(context.Background(), "ip", "e"); err != nil {
		t.Fatalf("nil guard should allow, got %v", err)
	}
	if err := g.PasswordReset(context.Background(), "ip", "e"); err != nil {
		t.Fatalf("nil guard should allow, got %v", err)
	}
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string, string) (rate.Decision, error) {
	return rate.Decision{}, errors.New("backend down")
}
func (failingLimiter) Close() error { return nil }

func TestBackendFailureIsUnavailable(t *testing.T) {
	g := NewGuard(failingLimiter{})
	err := g.Refresh(context.Background(), "ip")
	if !errors.Is(err, ErrUnavailable) || errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}
