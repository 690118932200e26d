package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrDetached is returned by Access once the session is detached.
var ErrDetached = errors.New("session is detached")

// Session is the owner of per-client state.
type Session struct {
	id      string
	created time.Time
	async   bool

	// mu serializes owner access.
	mu sync.Mutex

	qmu      sync.Mutex
	hooks    []func()
	pending  []func()
	detached bool
	notify   chan struct{}
	lastSeen time.Time
}

// New creates an attached session. async enables delivery of work pushed
// from background goroutines.
func New(async bool) *Session {
	now := time.Now()
	return &Session{
		id:       uuid.NewString(),
		created:  now,
		lastSeen: now,
		async:    async,
		notify:   make(chan struct{}, 1),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// AsyncEnabled reports whether Access accepts background work.
func (s *Session) AsyncEnabled() bool {
	return s.async
}

// Lock acquires exclusive access to the session state.
func (s *Session) Lock() {
	s.mu.Lock()
}

// Unlock releases the session.
func (s *Session) Unlock() {
	s.mu.Unlock()
}

// Run executes fn as one round trip: queued background work first, then fn,
// then the before-response hooks.
func (s *Session) Run(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.touch()
	s.RunPending()
	err := fn()
	s.EndRoundTrip()
	return err
}

// BeforeResponse registers fn to run at the end of the current round trip.
func (s *Session) BeforeResponse(fn func()) {
	s.qmu.Lock()
	s.hooks = append(s.hooks, fn)
	s.qmu.Unlock()
}

// EndRoundTrip runs the hooks registered so far. Hooks registered while they
// run are kept for the next round trip. The caller must hold the session.
func (s *Session) EndRoundTrip() int {
	s.qmu.Lock()
	hooks := s.hooks
	s.hooks = nil
	s.qmu.Unlock()

	for _, fn := range hooks {
		fn()
	}
	return len(hooks)
}

// PendingHooks returns the number of hooks waiting for the next round trip.
func (s *Session) PendingHooks() int {
	s.qmu.Lock()
	defer s.qmu.Unlock()
	return len(s.hooks)
}

// Access queues fn to run on the owner. It is safe to call from any goroutine.
func (s *Session) Access(fn func()) error {
	s.qmu.Lock()
	if s.detached {
		s.qmu.Unlock()
		return ErrDetached
	}
	s.pending = append(s.pending, fn)
	s.qmu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
	return nil
}

// Notify is signalled whenever Access queues work.
func (s *Session) Notify() <-chan struct{} {
	return s.notify
}

// RunPending executes the work queued through Access and returns how many
// functions ran. The caller must hold the session.
func (s *Session) RunPending() int {
	s.qmu.Lock()
	pending := s.pending
	s.pending = nil
	s.qmu.Unlock()

	for _, fn := range pending {
		fn()
	}
	return len(pending)
}

// Detach stops accepting background work and drops what is queued.
func (s *Session) Detach() {
	s.qmu.Lock()
	defer s.qmu.Unlock()
	s.detached = true
	s.pending = nil
	s.hooks = nil
}

// Detached reports whether Detach was called.
func (s *Session) Detached() bool {
	s.qmu.Lock()
	defer s.qmu.Unlock()
	return s.detached
}

// IdleSince returns the time of the last round trip.
func (s *Session) IdleSince() time.Time {
	s.qmu.Lock()
	defer s.qmu.Unlock()
	return s.lastSeen
}

// Created returns the creation time.
func (s *Session) Created() time.Time {
	return s.created
}

func (s *Session) touch() {
	s.qmu.Lock()
	s.lastSeen = time.Now()
	s.qmu.Unlock()
}
