package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is a process-local Store. The zero value is not usable; call NewMemory.
type Memory struct {
	mu     sync.Mutex
	byHash map[string]*RefreshToken
	now    func() time.Time
}

// MemoryOption configures a Memory store.
type MemoryOption func(*Memory)

// WithMemoryClock overrides the clock used for expiry checks and timestamps.
func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(m *Memory) {
		if now != nil {
			m.now = now
		}
	}
}

// NewMemory returns an empty in-memory store.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		byHash: make(map[string]*RefreshToken),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Memory) Create(ctx context.Context, userID, rawToken string, expiresAt time.Time) (*RefreshToken, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable(err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	rec := m.insertLocked(userID, HashToken(rawToken), expiresAt)
	return rec.clone(), nil
}

func (m *Memory) FindActive(ctx context.Context, rawToken string) (*RefreshToken, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable(err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.byHash[HashToken(rawToken)]
	if !ok || !rec.Active(m.now()) {
		return nil, ErrNotActive
	}
	return rec.clone(), nil
}

func (m *Memory) Find(ctx context.Context, rawToken string) (*RefreshToken, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable(err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.byHash[HashToken(rawToken)]
	if !ok {
		return nil, ErrNotFound
	}
	return rec.clone(), nil
}

func (m *Memory) Rotate(ctx context.Context, oldRaw, newRaw string, expiresAt time.Time) (*RefreshToken, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable(err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	old, ok := m.byHash[HashToken(oldRaw)]
	if !ok || !old.Active(now) {
		return nil, ErrNotActive
	}
	old.IsRevoked = true
	old.LastUsedAt = &now

	rec := m.insertLocked(old.UserID, HashToken(newRaw), expiresAt)
	return rec.clone(), nil
}

func (m *Memory) Revoke(ctx context.Context, rawToken string) error {
	if err := ctx.Err(); err != nil {
		return unavailable(err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if rec, ok := m.byHash[HashToken(rawToken)]; ok {
		rec.IsRevoked = true
	}
	return nil
}

func (m *Memory) RevokeAll(ctx context.Context, userID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, unavailable(err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	n := 0
	for _, rec := range m.byHash {
		if rec.UserID == userID && rec.Active(now) {
			rec.IsRevoked = true
			n++
		}
	}
	return n, nil
}

func (m *Memory) CountActive(ctx context.Context, userID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, unavailable(err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	n := 0
	for _, rec := range m.byHash {
		if rec.UserID == userID && rec.Active(now) {
			n++
		}
	}
	return n, nil
}

func (m *Memory) CleanupExpired(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, unavailable(err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	n := 0
	for hash, rec := range m.byHash {
		if !rec.Active(now) {
			delete(m.byHash, hash)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored records, active or not.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byHash)
}

func (m *Memory) insertLocked(userID, hash string, expiresAt time.Time) *RefreshToken {
	rec := &RefreshToken{
		ID:        uuid.NewString(),
		UserID:    userID,
		TokenHash: hash,
		ExpiresAt: expiresAt,
		CreatedAt: m.now(),
	}
	m.byHash[hash] = rec
	return rec
}
