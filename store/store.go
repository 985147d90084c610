package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/goSession/refresh"
)

var (
	// ErrNotActive covers unknown, revoked and expired tokens alike.
	ErrNotActive = errors.New("refresh token not active")
	// ErrNotFound is returned by Find when no record matches.
	ErrNotFound = errors.New("refresh token not found")
	// ErrUnavailable wraps backend failures. Callers treat it as retryable.
	ErrUnavailable = errors.New("refresh token store unavailable")
)

// Store is the refresh token persistence contract shared by all backends.
type Store interface {
	// Create hashes rawToken and inserts a new active record.
	Create(ctx context.Context, userID, rawToken string, expiresAt time.Time) (*RefreshToken, error)

	// FindActive returns the record for rawToken only if it is neither
	// revoked nor expired; otherwise ErrNotActive.
	FindActive(ctx context.Context, rawToken string) (*RefreshToken, error)

	// Find returns the record for rawToken in any state, or ErrNotFound.
	Find(ctx context.Context, rawToken string) (*RefreshToken, error)

	// Rotate consumes oldRaw if it is active and inserts newRaw for the
	// same user as one atomic operation. It returns the new record, or
	// ErrNotActive without writing anything.
	Rotate(ctx context.Context, oldRaw, newRaw string, expiresAt time.Time) (*RefreshToken, error)

	// Revoke marks rawToken revoked. Unknown or already revoked tokens are
	// a no-op.
	Revoke(ctx context.Context, rawToken string) error

	// RevokeAll revokes every active token of userID and returns how many
	// records changed.
	RevokeAll(ctx context.Context, userID string) (int, error)

	// CountActive returns the number of usable tokens held by userID.
	CountActive(ctx context.Context, userID string) (int, error)

	// CleanupExpired deletes expired or revoked records and returns the
	// number removed.
	CleanupExpired(ctx context.Context) (int, error)
}

// HashToken returns the storage key of a raw token.
func HashToken(raw string) string {
	return refresh.Hash(raw)
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %w", ErrUnavailable, err)
}
