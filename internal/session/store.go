package session

import (
	"sync"
	"time"
)

// Store is the authoritative record of every live session.
type Store interface {
	// Create inserts a session with default fields, replacing any
	// existing record with the same id.
	Create(id string) Session

	// Get returns a snapshot of the session.
	Get(id string) (Session, bool)

	// Update merges p into the session. Unknown ids are ignored.
	Update(id string, p Patch)
}

// Option configures a MemoryStore.
type Option func(*MemoryStore)

// WithStarters sets the snippets new sessions start with.
func WithStarters(s Starters) Option {
	return func(m *MemoryStore) { m.starters = s }
}

// WithIdleTTL enables eviction of sessions untouched for longer than ttl.
func WithIdleTTL(ttl time.Duration) Option {
	return func(m *MemoryStore) { m.ttl = ttl }
}

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(m *MemoryStore) { m.now = now }
}

type entry struct {
	session Session
	touched time.Time
}

// MemoryStore keeps sessions in process memory. Each operation holds the
// lock for its whole duration, so readers never observe a half-applied update.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*entry
	starters Starters
	ttl      time.Duration
	now      func() time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	m := &MemoryStore{
		sessions: make(map[string]*entry),
		starters: DefaultStarters(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *MemoryStore) Create(id string) Session {
	s := Session{
		ID:       id,
		Language: DefaultLanguage,
		Code:     m.starters.For(DefaultLanguage),
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[id] = &entry{session: s, touched: m.now()}
	return s
}

func (m *MemoryStore) Get(id string) (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[id]
	if !ok {
		return Session{}, false
	}
	e.touched = m.now()
	return e.session, true
}

func (m *MemoryStore) Update(id string, p Patch) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[id]
	if !ok {
		return
	}
	e.session = p.apply(e.session)
	e.touched = m.now()
}

// Starters returns the snippets this store seeds sessions with.
func (m *MemoryStore) Starters() Starters {
	return m.starters
}

// Len returns the number of stored sessions.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// IdleTTL returns the configured eviction window (0 when disabled).
func (m *MemoryStore) IdleTTL() time.Duration {
	return m.ttl
}

// Sweep evicts sessions idle for longer than the configured TTL and
// returns how many were removed. It does nothing when no TTL is set.
func (m *MemoryStore) Sweep(now time.Time) int {
	if m.ttl <= 0 {
		return 0
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, e := range m.sessions {
		if now.Sub(e.touched) > m.ttl {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed
}
