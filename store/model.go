package store

import "time"

// RefreshToken is the persisted record of one issued refresh token.
type RefreshToken struct {
	ID         string
	UserID     string
	TokenHash  string
	ExpiresAt  time.Time
	IsRevoked  bool
	CreatedAt  time.Time
	LastUsedAt *time.Time
}

// Active reports whether the token may still be rotated at now.
func (t *RefreshToken) Active(now time.Time) bool {
	return t != nil && !t.IsRevoked && now.Before(t.ExpiresAt)
}

func (t *RefreshToken) clone() *RefreshToken {
	if t == nil {
		return nil
	}
	out := *t
	if t.LastUsedAt != nil {
		lu := *t.LastUsedAt
		out.LastUsedAt = &lu
	}
	return &out
}
