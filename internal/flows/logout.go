package flows

import (
	"context"
	"time"
)

// LogoutStore is the subset of store.Store used by logout.
type LogoutStore interface {
	Revoke(ctx context.Context, rawToken string) error
	RevokeAll(ctx context.Context, userID string) (int, error)
}

// LogoutDeps captures logout flow dependencies.
type LogoutDeps struct {
	Store        LogoutStore
	StoreTimeout time.Duration
}

// RunRevoke revokes a single refresh token. Unknown tokens are not an error.
func RunRevoke(ctx context.Context, rawToken string, deps LogoutDeps) error {
	ctx, cancel := withTimeout(ctx, deps.StoreTimeout)
	defer cancel()
	return deps.Store.Revoke(ctx, rawToken)
}

// RunRevokeAll revokes every active refresh token of userID.
func RunRevokeAll(ctx context.Context, userID string, deps LogoutDeps) (int, error) {
	ctx, cancel := withTimeout(ctx, deps.StoreTimeout)
	defer cancel()
	return deps.Store.RevokeAll(ctx, userID)
}
