package goSession

import (
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/goSession/internal/limiters"
	"github.com/MrEthical07/goSession/internal/rate"
)

// Config holds every engine setting. Obtain a populated value from
// DefaultConfig and override fields as needed.
type Config struct {
	JWT       JWTConfig
	Refresh   RefreshConfig
	Timeouts  TimeoutConfig
	RateLimit RateLimitConfig
	Cookies   CookieConfig
	Audit     AuditConfig
	Metrics   MetricsConfig
	Security  SecurityConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig configures access token signing.
type JWTConfig struct {
	AccessTTL     time.Duration
	SigningMethod string // "ed25519" (default) or "hs256"
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	KeyID         string
}

/*
====================================
REFRESH CONFIG
====================================
*/

// RefreshConfig configures refresh token lifetime and rotation behavior.
type RefreshConfig struct {
	TTL time.Duration
	// ReuseDetection revokes every session of a user when one of their
	// already-rotated tokens is presented again.
	ReuseDetection bool
	// MaxActivePerUser caps concurrent sessions at issuance. Zero disables.
	MaxActivePerUser int
}

/*
====================================
TIMEOUTS
====================================
*/

// TimeoutConfig bounds collaborator calls.
type TimeoutConfig struct {
	// Store bounds each store and user lookup call.
	Store time.Duration
	// Touch bounds the detached last-seen write after a rotation.
	Touch time.Duration
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// RatePolicy parameterizes one rate-limit bucket.
type RatePolicy = rate.Policy

// Rate-limit bucket names.
const (
	BucketLogin         = limiters.BucketLogin
	BucketRegister      = limiters.BucketRegister
	BucketPasswordReset = limiters.BucketPasswordReset
	BucketRefresh       = limiters.BucketRefresh
)

// RateLimitConfig selects bucket policies. Missing buckets fall back to the
// defaults.
type RateLimitConfig struct {
	Enabled     bool
	RedisPrefix string
	Policies    map[string]RatePolicy
}

/*
====================================
COOKIE CONFIG
====================================
*/

// CookieConfig controls how token pairs are written to HTTP cookies.
type CookieConfig struct {
	AccessName  string
	RefreshName string
	Path        string
	Domain      string
	// Production turns on Secure and SameSite=Strict.
	Production bool
}

/*
====================================
AUDIT / METRICS / SECURITY
====================================
*/

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
	// DrainTimeout bounds how long Engine.Close waits for buffered events.
	DrainTimeout time.Duration
}

// MetricsConfig controls in-process metric collection.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// SecurityConfig holds validation hardening knobs.
type SecurityConfig struct {
	// MaxClockSkew rejects access tokens whose iat lies further in the future.
	MaxClockSkew time.Duration
}

/*
====================================
DEFAULTS
====================================
*/

// DefaultConfig returns the documented production defaults. Signing keys
// must still be supplied.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:     15 * time.Minute,
			SigningMethod: "ed25519",
			Leeway:        30 * time.Second,
		},
		Refresh: RefreshConfig{
			TTL: 30 * 24 * time.Hour,
		},
		Timeouts: TimeoutConfig{
			Store: 2 * time.Second,
			Touch: 5 * time.Second,
		},
		RateLimit: RateLimitConfig{
			Enabled:     true,
			RedisPrefix: rate.DefaultRedisPrefix,
			Policies:    limiters.DefaultPolicies(),
		},
		Cookies: CookieConfig{
			AccessName:  "access_token",
			RefreshName: "refresh_token",
			Path:        "/",
			Production:  true,
		},
		Audit: AuditConfig{
			Enabled:      false,
			BufferSize:   1024,
			DropIfFull:   true,
			DrainTimeout: 5 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: true,
		},
		Security: SecurityConfig{
			MaxClockSkew: 30 * time.Second,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	if cfg.RateLimit.Policies != nil {
		out.RateLimit.Policies = make(map[string]RatePolicy, len(cfg.RateLimit.Policies))
		for k, v := range cfg.RateLimit.Policies {
			out.RateLimit.Policies[k] = v
		}
	}
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// ratePolicies merges configured policies over the defaults.
func (c *Config) ratePolicies() rate.Policies {
	out := limiters.DefaultPolicies()
	for k, v := range c.RateLimit.Policies {
		out[k] = v
	}
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate checks c for values the engine cannot run with. Signing keys are
// checked by Build.
func (c *Config) Validate() error {
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.SigningMethod != "ed25519" && c.JWT.SigningMethod != "hs256" {
		return errors.New("unsupported JWT signing method")
	}
	if c.JWT.Leeway < 0 {
		return errors.New("JWT Leeway must be >= 0")
	}

	if c.Refresh.TTL <= 0 {
		return errors.New("Refresh TTL must be > 0")
	}
	if c.Refresh.TTL <= c.JWT.AccessTTL {
		return errors.New("Refresh TTL must exceed JWT AccessTTL")
	}
	if c.Refresh.MaxActivePerUser < 0 {
		return errors.New("Refresh MaxActivePerUser must be >= 0")
	}

	if c.Timeouts.Store < 0 || c.Timeouts.Touch < 0 {
		return errors.New("Timeouts must be >= 0")
	}

	if c.RateLimit.Enabled {
		if err := c.ratePolicies().Validate(); err != nil {
			return fmt.Errorf("RateLimit: %w", err)
		}
	}

	if c.Cookies.AccessName == "" || c.Cookies.RefreshName == "" {
		return errors.New("Cookies AccessName and RefreshName are required")
	}
	if c.Cookies.AccessName == c.Cookies.RefreshName {
		return errors.New("Cookies AccessName and RefreshName must differ")
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}
	if c.Audit.DrainTimeout < 0 {
		return errors.New("Audit DrainTimeout must be >= 0")
	}

	if c.Security.MaxClockSkew < 0 {
		return errors.New("Security MaxClockSkew must be >= 0")
	}
	return nil
}
