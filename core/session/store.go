package session

import (
	"sync"
	"time"
)

// Store keeps live sessions by id.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{sessions: make(map[string]*Session)}
}

// Add registers s.
func (st *Store) Add(s *Session) {
	st.mu.Lock()
	st.sessions[s.ID()] = s
	st.mu.Unlock()
}

// Get returns the session with the given id.
func (st *Store) Get(id string) (*Session, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s, ok := st.sessions[id]
	return s, ok
}

// Remove detaches and forgets the session.
func (st *Store) Remove(id string) bool {
	st.mu.Lock()
	s, ok := st.sessions[id]
	delete(st.sessions, id)
	st.mu.Unlock()

	if ok {
		s.Detach()
	}
	return ok
}

// Len returns the number of live sessions.
func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

// Sweep removes sessions idle for longer than maxIdle and returns them,
// detached.
func (st *Store) Sweep(maxIdle time.Duration) []*Session {
	cutoff := time.Now().Add(-maxIdle)

	st.mu.RLock()
	var expired []*Session
	for _, s := range st.sessions {
		if s.IdleSince().Before(cutoff) {
			expired = append(expired, s)
		}
	}
	st.mu.RUnlock()

	for _, s := range expired {
		st.Remove(s.ID())
	}
	return expired
}
