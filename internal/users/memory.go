package users

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/sso"
)

type memoryUser struct {
	principal goSession.Principal
	hash      string
	lastSeen  time.Time
}

// Memory is a process-local Directory for development and tests.
type Memory struct {
	mu         sync.RWMutex
	hasher     *Hasher
	byID       map[string]*memoryUser
	byEmail    map[string]string
	identities map[string]string
	dummy      string
}

func NewMemory(hasher *Hasher) (*Memory, error) {
	dummy, err := hasher.Hash("not-a-real-password")
	if err != nil {
		return nil, err
	}
	return &Memory{
		hasher:     hasher,
		byID:       make(map[string]*memoryUser),
		byEmail:    make(map[string]string),
		identities: make(map[string]string),
		dummy:      dummy,
	}, nil
}

func (m *Memory) GetUserByID(_ context.Context, userID string) (goSession.Principal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.byID[userID]
	if !ok {
		return goSession.Principal{}, goSession.ErrPrincipalNotFound
	}
	return u.principal, nil
}

func (m *Memory) TouchLastSeen(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.byID[userID]; ok {
		u.lastSeen = time.Now()
	}
	return nil
}

// LastSeen reports when userID last rotated a session.
func (m *Memory) LastSeen(userID string) time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if u, ok := m.byID[userID]; ok {
		return u.lastSeen
	}
	return time.Time{}
}

func (m *Memory) Register(_ context.Context, email, name, password string) (goSession.Principal, error) {
	hash, err := m.hasher.Hash(password)
	if err != nil {
		return goSession.Principal{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	email = normalizeEmail(email)
	if _, ok := m.byEmail[email]; ok {
		return goSession.Principal{}, ErrEmailTaken
	}
	p := goSession.Principal{ID: uuid.NewString(), Email: email, Name: strings.TrimSpace(name)}
	m.byID[p.ID] = &memoryUser{principal: p, hash: hash}
	m.byEmail[email] = p.ID
	return p, nil
}

func (m *Memory) Authenticate(_ context.Context, email, password string) (goSession.Principal, error) {
	m.mu.RLock()
	u, ok := m.byID[m.byEmail[normalizeEmail(email)]]
	m.mu.RUnlock()

	if !ok || u.hash == "" {
		_, _, _ = m.hasher.Verify(password, m.dummy)
		return goSession.Principal{}, ErrBadCredentials
	}
	match, _, err := m.hasher.Verify(password, u.hash)
	if err != nil {
		return goSession.Principal{}, err
	}
	if !match {
		return goSession.Principal{}, ErrBadCredentials
	}
	return u.principal, nil
}

func (m *Memory) FindByEmail(_ context.Context, email string) (goSession.Principal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.byID[m.byEmail[normalizeEmail(email)]]
	if !ok {
		return goSession.Principal{}, ErrNotFound
	}
	return u.principal, nil
}

func (m *Memory) LinkIdentity(_ context.Context, provider string, id sso.Identity) (goSession.Principal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := provider + "\x00" + id.ID
	if uid, ok := m.identities[key]; ok {
		if u, ok := m.byID[uid]; ok {
			return u.principal, nil
		}
		delete(m.identities, key)
	}

	email, err := linkableEmail(id)
	if err != nil {
		return goSession.Principal{}, err
	}
	uid, ok := m.byEmail[email]
	if !ok {
		p := goSession.Principal{ID: uuid.NewString(), Email: email, Name: id.Name}
		m.byID[p.ID] = &memoryUser{principal: p}
		m.byEmail[email] = p.ID
		uid = p.ID
	}
	m.identities[key] = uid
	return m.byID[uid].principal, nil
}

// Remove deletes a user, as an account deletion would.
func (m *Memory) Remove(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.byID[userID]; ok {
		delete(m.byEmail, u.principal.Email)
		delete(m.byID, userID)
	}
}
