package goSession

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/goSession/store"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakeUsers struct {
	mu      sync.Mutex
	users   map[string]Principal
	lookErr error
}

func newFakeUsers(ps ...Principal) *fakeUsers {
	u := &fakeUsers{users: make(map[string]Principal)}
	for _, p := range ps {
		u.users[p.ID] = p
	}
	return u
}

func (u *fakeUsers) GetUserByID(_ context.Context, userID string) (Principal, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.lookErr != nil {
		return Principal{}, u.lookErr
	}
	p, ok := u.users[userID]
	if !ok {
		return Principal{}, ErrPrincipalNotFound
	}
	return p, nil
}

func (u *fakeUsers) add(p Principal) {
	u.mu.Lock()
	u.users[p.ID] = p
	u.mu.Unlock()
}

func (u *fakeUsers) remove(id string) {
	u.mu.Lock()
	delete(u.users, id)
	u.mu.Unlock()
}

type touchingUsers struct {
	*fakeUsers
	touched chan string
	err     error
}

func (u *touchingUsers) TouchLastSeen(_ context.Context, userID string) error {
	u.touched <- userID
	return u.err
}

// flakyStore fails Rotate and FindActive while failing is set.
type flakyStore struct {
	*store.Memory
	mu      sync.Mutex
	failing bool
}

var errBackendDown = errors.New("connection refused")

func (s *flakyStore) setFailing(v bool) {
	s.mu.Lock()
	s.failing = v
	s.mu.Unlock()
}

func (s *flakyStore) fail() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failing
}

func (s *flakyStore) FindActive(ctx context.Context, raw string) (*store.RefreshToken, error) {
	if s.fail() {
		return nil, errors.Join(store.ErrUnavailable, errBackendDown)
	}
	return s.Memory.FindActive(ctx, raw)
}

func (s *flakyStore) Rotate(ctx context.Context, oldRaw, newRaw string, exp time.Time) (*store.RefreshToken, error) {
	if s.fail() {
		return nil, errors.Join(store.ErrUnavailable, errBackendDown)
	}
	return s.Memory.Rotate(ctx, oldRaw, newRaw, exp)
}

type testEnv struct {
	engine *Engine
	clock  *fakeClock
	store  *store.Memory
	users  *fakeUsers
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.SigningMethod = "hs256"
	cfg.JWT.PrivateKey = testSecret
	return cfg
}

func newTestEnv(t *testing.T, mutate func(*Config, *Builder)) *testEnv {
	t.Helper()
	clock := newFakeClock()
	mem := store.NewMemory(store.WithMemoryClock(clock.Now))
	users := newFakeUsers(Principal{ID: "u1", Email: "ada@example.com", Name: "Ada"})

	cfg := testConfig()
	b := New().WithStore(mem).WithUserProvider(users).WithClock(clock.Now)
	if mutate != nil {
		mutate(&cfg, b)
	}
	e, err := b.WithConfig(cfg).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(e.Close)
	return &testEnv{engine: e, clock: clock, store: mem, users: users}
}

func (env *testEnv) login(t *testing.T, id string) TokenPair {
	t.Helper()
	pair, err := env.engine.IssueSession(context.Background(), Principal{ID: id, Email: id + "@example.com"})
	if err != nil {
		t.Fatalf("IssueSession: %v", err)
	}
	return pair
}
