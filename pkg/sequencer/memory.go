package sequencer

import (
	"context"
	"sync"
	"time"

	"github.com/arena2036/vec-aas-uploader/internal/service/status"
)

// MemoryStore keeps sessions in process memory. Like the redis store, a
// session untouched for ttl is forgotten.
type MemoryStore struct {
	mu        sync.Mutex
	sessions  map[string]*memorySession
	ttl       time.Duration
	lastSweep time.Time
	now       func() time.Time
}

type memorySession struct {
	generation uint64
	projection status.Projection
	touched    time.Time
}

// NewMemoryStore expires sessions after ttl; ttl <= 0 keeps them forever.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*memorySession),
		ttl:      ttl,
		now:      time.Now,
	}
}

// lookup returns a live session, dropping it if it has expired.
func (m *MemoryStore) lookup(sessionID string, now time.Time) (*memorySession, bool) {
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, false
	}
	if m.expired(s, now) {
		delete(m.sessions, sessionID)
		return nil, false
	}
	return s, true
}

func (m *MemoryStore) expired(s *memorySession, now time.Time) bool {
	return m.ttl > 0 && now.Sub(s.touched) >= m.ttl
}

// sweep drops expired sessions, at most once per quarter ttl.
func (m *MemoryStore) sweep(now time.Time) {
	if m.ttl <= 0 || now.Sub(m.lastSweep) < m.ttl/4 {
		return
	}
	m.lastSweep = now
	for id, s := range m.sessions {
		if m.expired(s, now) {
			delete(m.sessions, id)
		}
	}
}

func (m *MemoryStore) Advance(ctx context.Context, sessionID string) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.sweep(now)

	s, ok := m.lookup(sessionID, now)
	if !ok {
		s = &memorySession{}
		m.sessions[sessionID] = s
	}
	s.generation++
	s.projection = fresh(sessionID, s.generation)
	s.touched = now
	return s.generation, nil
}

func (m *MemoryStore) Current(ctx context.Context, sessionID string) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.lookup(sessionID, m.now()); ok {
		return s.generation, nil
	}
	return 0, nil
}

func (m *MemoryStore) Commit(ctx context.Context, token Token, fn FoldFunc) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	s, ok := m.lookup(token.SessionID, now)
	if !ok || s.generation != token.Generation {
		return false, nil
	}
	next := fn(s.projection)
	next.SessionID = token.SessionID
	next.Generation = token.Generation
	s.projection = next
	s.touched = now
	return true, nil
}

func (m *MemoryStore) Load(ctx context.Context, sessionID string) (status.Projection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.sweep(now)

	if s, ok := m.lookup(sessionID, now); ok {
		return s.projection, nil
	}
	return fresh(sessionID, 0), nil
}

// Len reports how many sessions are held, expired ones included until swept.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func fresh(sessionID string, generation uint64) status.Projection {
	p := status.New()
	p.SessionID = sessionID
	p.Generation = generation
	return p
}
