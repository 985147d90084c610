package rate

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"
)

type entryKey struct {
	bucket string
	key    string
}

// Memory is the process-local backend. Create one per process with
// NewMemory and Close it at shutdown.
type Memory struct {
	mu       sync.Mutex
	policies Policies
	entries  map[entryKey]*entry
	closed   bool

	now        func() time.Time
	sampleRate float64
	sample     func() float64
}

// MemoryOption configures a Memory limiter.
type MemoryOption func(*Memory)

// WithClock overrides the time source.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) {
		if now != nil {
			m.now = now
		}
	}
}

// WithSweepSampling sets the fraction of Allow calls that trigger a sweep and
// the random source deciding it. A nil source keeps the default.
func WithSweepSampling(rate float64, source func() float64) MemoryOption {
	return func(m *Memory) {
		m.sampleRate = rate
		if source != nil {
			m.sample = source
		}
	}
}

// NewMemory returns a limiter enforcing policies.
func NewMemory(policies Policies, opts ...MemoryOption) (*Memory, error) {
	if err := policies.Validate(); err != nil {
		return nil, err
	}
	m := &Memory{
		policies:   policies.clone(),
		entries:    make(map[entryKey]*entry),
		now:        time.Now,
		sampleRate: 0.01,
		sample:     rand.Float64,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Allow records an attempt for key in bucket.
func (m *Memory) Allow(ctx context.Context, bucket, key string) (Decision, error) {
	if err := ctx.Err(); err != nil {
		return Decision{}, err
	}
	p, ok := m.policies[bucket]
	if !ok {
		return Decision{}, ErrUnknownBucket
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if m.sample() < m.sampleRate {
		m.sweepLocked(now)
	}

	k := entryKey{bucket: bucket, key: key}
	e, ok := m.entries[k]
	if !ok {
		e = &entry{}
		m.entries[k] = e
	}
	return e.attempt(p, now), nil
}

// Sweep drops entries whose window started more than Retention before now
// and which are not blocked. It returns the number removed.
func (m *Memory) Sweep(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sweepLocked(now)
}

func (m *Memory) sweepLocked(now time.Time) int {
	removed := 0
	for k, e := range m.entries {
		if now.Sub(e.windowStart) > Retention && !now.Before(e.blockedUntil) {
			delete(m.entries, k)
			removed++
		}
	}
	return removed
}

// Len returns the number of live entries.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Close drops all state. Close is idempotent.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	m.entries = make(map[entryKey]*entry)
	return nil
}
