package flows

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/MrEthical07/goSession/refresh"
	"github.com/MrEthical07/goSession/store"
)

// RotateState is the last state a rotation attempt reached.
type RotateState int

const (
	RotateReceived RotateState = iota
	RotateRateChecked
	RotateTokenValidated
	RotatePrincipalLoaded
	RotateIssued
	RotatePersisted
	RotateComplete
	RotateRejected
)

var rotateStateNames = [...]string{
	"received", "rate_checked", "token_validated", "principal_loaded",
	"issued", "persisted", "complete", "rejected",
}

func (s RotateState) String() string {
	if int(s) < len(rotateStateNames) {
		return rotateStateNames[s]
	}
	return "unknown"
}

// RotateFailureKind classifies rotation failures for root-level mapping.
type RotateFailureKind int

const (
	RotateFailureNone RotateFailureKind = iota
	RotateFailureRateLimited
	RotateFailureLimiter
	RotateFailureMalformed
	RotateFailureInvalidToken
	RotateFailureReuse
	RotateFailurePrincipalNotFound
	RotateFailurePrincipalLookup
	RotateFailureIssue
	RotateFailureRaceLost
	RotateFailureStore
)

// RotateResult carries the issued pair or failure metadata. FailedAt is the
// step during which the attempt was rejected.
type RotateResult struct {
	State     RotateState
	FailedAt  RotateState
	Failure   RotateFailureKind
	Err       error
	UserID    string
	Principal Principal
	Pair      IssuedPair
	// ReuseRevoked counts tokens revoked by reuse detection.
	ReuseRevoked int
}

// RefreshRateLimiter is the refresh bucket guard.
type RefreshRateLimiter interface {
	Refresh(ctx context.Context, ip string) error
}

// RotateStore is the subset of store.Store used by rotation.
type RotateStore interface {
	FindActive(ctx context.Context, rawToken string) (*store.RefreshToken, error)
	Find(ctx context.Context, rawToken string) (*store.RefreshToken, error)
	Rotate(ctx context.Context, oldRaw, newRaw string, expiresAt time.Time) (*store.RefreshToken, error)
	RevokeAll(ctx context.Context, userID string) (int, error)
}

// RotateDeps captures rotation flow dependencies.
type RotateDeps struct {
	ClientIP          func(context.Context) string
	RateLimiter       RefreshRateLimiter
	RateLimited       error
	Store             RotateStore
	StoreTimeout      time.Duration
	LookupPrincipal   func(context.Context, string) (Principal, error)
	PrincipalNotFound error
	IssuePair         func(Principal) (IssuedPair, error)
	ReuseDetection    bool
	// TouchLastSeen runs detached after a successful rotation. Its error is
	// logged and otherwise ignored.
	TouchLastSeen func(context.Context, string) error
	TouchTimeout  time.Duration
	Logger        zerolog.Logger
}

// RunRotate exchanges rawToken for a new pair.
func RunRotate(ctx context.Context, rawToken string, deps RotateDeps) RotateResult {
	res := RotateResult{State: RotateReceived}
	reject := func(kind RotateFailureKind, err error) RotateResult {
		res.FailedAt = res.State
		res.State = RotateRejected
		res.Failure = kind
		res.Err = err
		return res
	}

	if deps.RateLimiter != nil {
		ip := ""
		if deps.ClientIP != nil {
			ip = deps.ClientIP(ctx)
		}
		if err := deps.RateLimiter.Refresh(ctx, ip); err != nil {
			if deps.RateLimited != nil && errors.Is(err, deps.RateLimited) {
				return reject(RotateFailureRateLimited, err)
			}
			return reject(RotateFailureLimiter, err)
		}
	}
	res.State = RotateRateChecked

	if err := refresh.Parse(rawToken); err != nil {
		return reject(RotateFailureMalformed, err)
	}

	current, err := findActive(ctx, rawToken, deps)
	if err != nil {
		if !errors.Is(err, store.ErrNotActive) {
			return reject(RotateFailureStore, err)
		}
		if deps.ReuseDetection {
			if n, userID, reused := detectReuse(ctx, rawToken, deps); reused {
				res.UserID = userID
				res.ReuseRevoked = n
				return reject(RotateFailureReuse, err)
			}
		}
		return reject(RotateFailureInvalidToken, err)
	}
	res.UserID = current.UserID
	res.State = RotateTokenValidated

	principal, err := lookupPrincipal(ctx, current.UserID, deps)
	if err != nil {
		if deps.PrincipalNotFound != nil && errors.Is(err, deps.PrincipalNotFound) {
			deps.Logger.Warn().Str("user_id", current.UserID).Msg("rotation: token owner no longer exists")
			return reject(RotateFailurePrincipalNotFound, err)
		}
		return reject(RotateFailurePrincipalLookup, err)
	}
	res.Principal = principal
	res.State = RotatePrincipalLoaded

	pair, err := deps.IssuePair(principal)
	if err != nil {
		return reject(RotateFailureIssue, err)
	}
	res.State = RotateIssued

	storeCtx, cancel := withTimeout(ctx, deps.StoreTimeout)
	_, err = deps.Store.Rotate(storeCtx, rawToken, pair.RefreshToken, pair.RefreshExpiresAt)
	cancel()
	if err != nil {
		if errors.Is(err, store.ErrNotActive) {
			return reject(RotateFailureRaceLost, err)
		}
		return reject(RotateFailureStore, err)
	}
	res.State = RotatePersisted

	res.Pair = pair
	res.State = RotateComplete

	if deps.TouchLastSeen != nil {
		go touchLastSeen(context.WithoutCancel(ctx), principal.ID, deps)
	}
	return res
}

func findActive(ctx context.Context, rawToken string, deps RotateDeps) (*store.RefreshToken, error) {
	ctx, cancel := withTimeout(ctx, deps.StoreTimeout)
	defer cancel()
	return deps.Store.FindActive(ctx, rawToken)
}

func lookupPrincipal(ctx context.Context, userID string, deps RotateDeps) (Principal, error) {
	ctx, cancel := withTimeout(ctx, deps.StoreTimeout)
	defer cancel()
	return deps.LookupPrincipal(ctx, userID)
}

// detectReuse revokes every token of the owner when rawToken exists but was
// already revoked.
func detectReuse(ctx context.Context, rawToken string, deps RotateDeps) (int, string, bool) {
	ctx, cancel := withTimeout(ctx, deps.StoreTimeout)
	defer cancel()

	rec, err := deps.Store.Find(ctx, rawToken)
	if err != nil || !rec.IsRevoked {
		return 0, "", false
	}

	n, err := deps.Store.RevokeAll(ctx, rec.UserID)
	if err != nil {
		deps.Logger.Error().Err(err).Str("user_id", rec.UserID).Msg("rotation: reuse detected but revoke-all failed")
		return 0, rec.UserID, true
	}
	deps.Logger.Warn().Str("user_id", rec.UserID).Int("revoked", n).Msg("rotation: revoked refresh token presented again, all sessions revoked")
	return n, rec.UserID, true
}

func touchLastSeen(ctx context.Context, userID string, deps RotateDeps) {
	ctx, cancel := withTimeout(ctx, deps.TouchTimeout)
	defer cancel()
	if err := deps.TouchLastSeen(ctx, userID); err != nil {
		deps.Logger.Warn().Err(err).Str("user_id", userID).Msg("rotation: last-seen update failed")
	}
}
