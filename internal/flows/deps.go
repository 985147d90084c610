package flows

import (
	"context"
	"time"
)

// Deps groups flow dependency sets. The root engine builds this once and
// delegates request methods to the matching flow implementation.
type Deps struct {
	Rotate   RotateDeps
	Issue    IssueDeps
	Logout   LogoutDeps
	Validate ValidateDeps
}

// Principal is the identity the issuer signs into access tokens.
type Principal struct {
	ID    string
	Email string
	Name  string
}

// IssuedPair is a freshly minted access/refresh pair.
type IssuedPair struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}
