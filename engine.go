package goSession

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	internalaudit "github.com/MrEthical07/goSession/internal/audit"
	"github.com/MrEthical07/goSession/internal/flows"
	"github.com/MrEthical07/goSession/internal/limiters"
	"github.com/MrEthical07/goSession/jwt"
	"github.com/MrEthical07/goSession/refresh"
	"github.com/MrEthical07/goSession/store"
)

// Engine runs the credential lifecycle: issuance, rotation, revocation,
// access validation and rate-limit checks. Safe for concurrent use.
type Engine struct {
	config  Config
	issuer  *TokenIssuer
	jwt     *jwt.Manager
	store   store.Store
	users   UserProvider
	guard   *limiters.Guard
	flows   flows.Service
	metrics *Metrics
	audit   *internalaudit.Dispatcher
	logger  zerolog.Logger
	now     func() time.Time

	closeOnce sync.Once
}

// Close flushes the audit dispatcher and releases the rate limiter.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.closeOnce.Do(func() {
		if err := e.audit.Close(); err != nil {
			e.logger.Warn().Err(err).Uint64("dropped", e.audit.Dropped()).Msg("audit drain incomplete")
		}
		if err := e.guard.Close(); err != nil {
			e.logger.Warn().Err(err).Msg("rate limiter close failed")
		}
	})
}

// AuditDropped returns the number of audit events dropped on a full buffer.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a copy of the engine metrics.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Config returns a copy of the engine configuration.
func (e *Engine) Config() Config {
	return cloneConfig(e.config)
}

// Issuer returns the engine's token issuer.
func (e *Engine) Issuer() *TokenIssuer {
	return e.issuer
}

func (e *Engine) ready() bool {
	return e != nil && e.flows.Initialized()
}

// Rotate describes the rotate operation and its observable behavior.
//
// Rotate exchanges a refresh token for a new pair. The presented token is
// consumed and its successor inserted in one atomic store write that happens
// only after every fallible step succeeded, so a failed rotation leaves the
// presented token usable.
// Rotate returns *RateLimitError, ErrInvalidCredential, ErrPrincipalNotFound
// or ErrTransientStore. Of several concurrent presentations of one token,
// exactly one succeeds.
func (e *Engine) Rotate(ctx context.Context, rawRefreshToken string) (TokenPair, error) {
	if !e.ready() {
		return TokenPair{}, ErrEngineNotReady
	}

	start := time.Now()
	res := e.flows.Rotate(ctx, rawRefreshToken)
	if e.metrics.LatencyEnabled() {
		e.metrics.Observe(MetricRotateLatency, time.Since(start))
	}

	if res.Failure == flows.RotateFailureNone {
		e.metrics.Inc(MetricRotateSuccess)
		e.emitAudit(ctx, AuditRotateSuccess, true, res.UserID, "", nil, nil)
		return TokenPair(res.Pair), nil
	}

	err := e.rotateError(res)
	e.metrics.Inc(MetricRotateFailure)

	if res.Failure == flows.RotateFailureReuse {
		e.emitAudit(ctx, AuditReuseDetected, false, res.UserID, "", err, func() map[string]string {
			return map[string]string{"revoked": strconv.Itoa(res.ReuseRevoked)}
		})
	}
	e.emitAudit(ctx, AuditRotateFailure, false, res.UserID, "", err, func() map[string]string {
		return map[string]string{"step": res.FailedAt.String()}
	})
	return TokenPair{}, err
}

func (e *Engine) rotateError(res flows.RotateResult) error {
	switch res.Failure {
	case flows.RotateFailureRateLimited:
		e.metrics.Inc(MetricRotateRateLimited)
		return e.limitError(res.Err)
	case flows.RotateFailureLimiter:
		e.metrics.Inc(MetricRateLimiterUnavailable)
		e.logger.Error().Err(res.Err).Msg("rotation: rate limiter unavailable")
		return fmt.Errorf("%w: %v", ErrTransientStore, res.Err)
	case flows.RotateFailureMalformed, flows.RotateFailureInvalidToken:
		e.metrics.Inc(MetricRotateInvalid)
		return ErrInvalidCredential
	case flows.RotateFailureReuse:
		e.metrics.Inc(MetricRotateReuseDetected)
		return ErrInvalidCredential
	case flows.RotateFailureRaceLost:
		e.metrics.Inc(MetricRotateRaceLost)
		return ErrInvalidCredential
	case flows.RotateFailurePrincipalNotFound:
		e.metrics.Inc(MetricPrincipalNotFound)
		return ErrPrincipalNotFound
	case flows.RotateFailurePrincipalLookup, flows.RotateFailureStore:
		e.metrics.Inc(MetricRotateTransient)
		e.logger.Error().Err(res.Err).Str("step", res.FailedAt.String()).Str("user_id", res.UserID).Msg("rotation: backend failure")
		return fmt.Errorf("%w: %v", ErrTransientStore, res.Err)
	case flows.RotateFailureIssue:
		e.logger.Error().Err(res.Err).Str("user_id", res.UserID).Msg("rotation: token issuance failed")
		return fmt.Errorf("issue token pair: %w", res.Err)
	default:
		return ErrInvalidCredential
	}
}

// IssueSession mints a pair for p and persists its refresh token. It is the
// entry point for login and SSO callbacks.
func (e *Engine) IssueSession(ctx context.Context, p Principal) (TokenPair, error) {
	if !e.ready() {
		return TokenPair{}, ErrEngineNotReady
	}

	res := e.flows.Issue(ctx, flows.Principal(p))
	var err error
	switch res.Failure {
	case flows.IssueFailureNone:
		e.metrics.Inc(MetricSessionIssued)
		e.emitAudit(ctx, AuditSessionIssued, true, p.ID, res.TokenID, nil, nil)
		return TokenPair(res.Pair), nil
	case flows.IssueFailureInvalidPrincipal:
		err = ErrInvalidPrincipal
	case flows.IssueFailureSessionLimit:
		e.metrics.Inc(MetricSessionLimitExceeded)
		err = ErrSessionLimitExceeded
	case flows.IssueFailureStore:
		e.logger.Error().Err(res.Err).Str("user_id", p.ID).Msg("issue: store failure")
		err = fmt.Errorf("%w: %v", ErrTransientStore, res.Err)
	default:
		err = fmt.Errorf("issue token pair: %w", res.Err)
	}
	e.emitAudit(ctx, AuditSessionIssued, false, p.ID, "", err, nil)
	return TokenPair{}, err
}

// Revoke revokes a single refresh token (logout). Malformed, unknown and
// already revoked tokens are not an error.
func (e *Engine) Revoke(ctx context.Context, rawRefreshToken string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	if refresh.Parse(rawRefreshToken) != nil {
		return nil
	}
	if err := e.flows.Revoke(ctx, rawRefreshToken); err != nil {
		e.logger.Error().Err(err).Msg("logout: store failure")
		return fmt.Errorf("%w: %v", ErrTransientStore, err)
	}
	e.metrics.Inc(MetricLogout)
	e.emitAudit(ctx, AuditLogout, true, "", "", nil, nil)
	return nil
}

// RevokeAll revokes every active refresh token of userID and returns how
// many were revoked.
func (e *Engine) RevokeAll(ctx context.Context, userID string) (int, error) {
	if !e.ready() {
		return 0, ErrEngineNotReady
	}
	if userID == "" {
		return 0, ErrInvalidPrincipal
	}
	n, err := e.flows.RevokeAll(ctx, userID)
	if err != nil {
		e.logger.Error().Err(err).Str("user_id", userID).Msg("logout-all: store failure")
		return 0, fmt.Errorf("%w: %v", ErrTransientStore, err)
	}
	e.metrics.Inc(MetricLogoutAll)
	e.emitAudit(ctx, AuditLogoutAll, true, userID, "", nil, func() map[string]string {
		return map[string]string{"revoked": strconv.Itoa(n)}
	})
	return n, nil
}

// ValidateAccess verifies an access token without touching any store.
func (e *Engine) ValidateAccess(token string) (*AuthResult, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	start := time.Now()
	res := e.flows.Validate(token)
	if e.metrics.LatencyEnabled() {
		e.metrics.Observe(MetricValidateLatency, time.Since(start))
	}

	switch res.Failure {
	case flows.ValidateFailureNone:
	case flows.ValidateFailureTokenClockSkew:
		e.metrics.Inc(MetricValidateFailure)
		return nil, ErrTokenClockSkew
	default:
		e.metrics.Inc(MetricValidateFailure)
		return nil, ErrUnauthorized
	}
	e.metrics.Inc(MetricValidateSuccess)

	c := res.Claims
	out := &AuthResult{
		UserID:  c.Subject,
		Email:   c.Email,
		Name:    c.Name,
		TokenID: c.ID,
	}
	if c.IssuedAt != nil {
		out.IssuedAt = c.IssuedAt.Time
	}
	if c.ExpiresAt != nil {
		out.ExpiresAt = c.ExpiresAt.Time
	}
	return out, nil
}

// CleanupExpired physically removes expired and revoked refresh tokens.
func (e *Engine) CleanupExpired(ctx context.Context) (int, error) {
	if !e.ready() {
		return 0, ErrEngineNotReady
	}
	n, err := e.store.CleanupExpired(ctx)
	if err != nil {
		return n, fmt.Errorf("%w: %v", ErrTransientStore, err)
	}
	e.metrics.Add(MetricCleanupRemoved, uint64(n))
	e.logger.Debug().Int("removed", n).Msg("refresh token cleanup")
	return n, nil
}

// CheckLogin counts a login attempt against both ip and email. Either key
// over its limit rejects the attempt.
func (e *Engine) CheckLogin(ctx context.Context, ip, email string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	return e.checkBucket(ctx, BucketLogin, MetricLoginRateLimited, e.guard.Login(ctx, ip, email))
}

// CheckRegister counts a registration attempt from ip.
func (e *Engine) CheckRegister(ctx context.Context, ip string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	return e.checkBucket(ctx, BucketRegister, MetricRegisterRateLimited, e.guard.Register(ctx, ip))
}

// CheckPasswordReset counts a password reset request against both ip and
// email. Either key over its limit rejects the request; the error does not
// say which.
func (e *Engine) CheckPasswordReset(ctx context.Context, ip, email string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	return e.checkBucket(ctx, BucketPasswordReset, MetricPasswordResetRateLimited, e.guard.PasswordReset(ctx, ip, email))
}

func (e *Engine) checkBucket(ctx context.Context, bucket string, denied MetricID, err error) error {
	if err == nil {
		return nil
	}
	out := e.limitError(err)
	if errors.Is(out, ErrRateLimited) {
		e.metrics.Inc(denied)
		e.emitAudit(ctx, AuditRateLimited, false, "", "", out, func() map[string]string {
			return map[string]string{"bucket": bucket}
		})
	} else {
		e.metrics.Inc(MetricRateLimiterUnavailable)
		e.logger.Error().Err(err).Str("bucket", bucket).Msg("rate limiter unavailable")
	}
	return out
}

func (e *Engine) limitError(err error) error {
	var le *limiters.LimitError
	if errors.As(err, &le) {
		return &RateLimitError{
			Bucket:     le.Bucket,
			RetryAt:    le.RetryAt,
			RetryAfter: retryAfter(le.RetryAt, e.now()),
		}
	}
	return fmt.Errorf("%w: %v", ErrTransientStore, err)
}
