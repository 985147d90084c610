package goSession

import (
	"fmt"
	"time"

	"github.com/MrEthical07/goSession/jwt"
	"github.com/MrEthical07/goSession/refresh"
)

// TokenIssuer mints access/refresh pairs. It performs no I/O.
type TokenIssuer struct {
	jwt        *jwt.Manager
	refreshTTL time.Duration
	now        func() time.Time
}

// NewTokenIssuer returns an issuer signing access tokens with m and giving
// refresh tokens refreshTTL of lifetime.
func NewTokenIssuer(m *jwt.Manager, refreshTTL time.Duration, now func() time.Time) *TokenIssuer {
	if now == nil {
		now = time.Now
	}
	return &TokenIssuer{jwt: m, refreshTTL: refreshTTL, now: now}
}

// IssuePair describes the issue-pair operation and its observable behavior.
//
// IssuePair signs an access token carrying p and draws a fresh random refresh
// token. It may return ErrInvalidPrincipal for an empty p.ID, or an error
// when signing or the entropy source fails.
// IssuePair does not mutate shared global state and can be used concurrently.
func (i *TokenIssuer) IssuePair(p Principal) (TokenPair, error) {
	if p.ID == "" {
		return TokenPair{}, ErrInvalidPrincipal
	}

	access, accessExp, err := i.jwt.CreateAccess(jwt.Identity{
		Subject: p.ID,
		Email:   p.Email,
		Name:    p.Name,
	})
	if err != nil {
		return TokenPair{}, fmt.Errorf("sign access token: %w", err)
	}

	raw, err := refresh.New()
	if err != nil {
		return TokenPair{}, fmt.Errorf("generate refresh token: %w", err)
	}

	return TokenPair{
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     raw,
		RefreshExpiresAt: i.now().Add(i.refreshTTL),
	}, nil
}

// AccessTTL returns the configured access token lifetime.
func (i *TokenIssuer) AccessTTL() time.Duration {
	return i.jwt.TTL()
}
