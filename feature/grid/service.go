package grid

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"databinding/core/database"
	"databinding/core/flush"
	"databinding/core/logger"
	"databinding/core/metrics"
	"databinding/core/query"
	"databinding/core/reconcile"
	"databinding/core/session"

	"go.uber.org/zap"
)

// ErrSessionNotFound is returned for unknown or expired session ids.
var ErrSessionNotFound = errors.New("grid session not found")

// Service manages grid sessions over one backend.
type Service struct {
	backend Backend
	cfg     Config
	binding reconcile.Config
	logger  *zap.Logger
	metrics *metrics.Recorder
	exec    flush.Executor
	ctx     context.Context

	store *session.Store
	mu    sync.RWMutex
	grids map[string]binding
}

// NewService creates a service. exec is used for background fetches when the
// binding configuration enables async mode; rec may be nil.
func NewService(backend Backend, cfg Config, bindingCfg reconcile.Config, logger *zap.Logger, rec *metrics.Recorder, exec flush.Executor) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if exec == nil {
		exec = flush.GoExecutor{}
	}
	return &Service{
		backend: backend,
		cfg:     cfg,
		binding: bindingCfg,
		logger:  logger,
		metrics: rec,
		exec:    exec,
		ctx:     context.Background(),
		store:   session.NewStore(),
		grids:   make(map[string]binding),
	}
}

// Backend returns the backend name.
func (s *Service) Backend() string {
	return s.backend.Name()
}

// Sessions returns the number of live sessions.
func (s *Service) Sessions() int {
	return s.store.Len()
}

// Create opens a session. The first update carries the initial size.
func (s *Service) Create(ctx context.Context) (*Update, error) {
	sess := session.New(s.binding.Async)
	l := logger.WithSession(s.logger, sess.ID())

	b, err := s.backend.open(sess, options{
		binding: s.binding,
		logger:  l,
		metrics: s.metrics,
		exec:    s.exec,
		ctx:     s.ctx,
	})
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.grids[sess.ID()] = b
	s.mu.Unlock()
	s.store.Add(sess)
	l.Info("Grid session created", zap.String("backend", s.backend.Name()), zap.Bool("async", s.binding.Async))

	return s.roundTrip(sess, b, func() error { return nil })
}

// SetViewport sets the rows the client wants rendered.
func (s *Service) SetViewport(ctx context.Context, id string, start, length int) (*Update, error) {
	if length > s.cfg.MaxViewport && s.cfg.MaxViewport > 0 {
		return nil, fmt.Errorf("%w: viewport length %d exceeds %d", ErrInvalidRequest, length, s.cfg.MaxViewport)
	}
	return s.do(id, func(b binding) error { return b.setViewport(start, length) })
}

// SetFilter replaces the filter. An empty list removes filtering.
func (s *Service) SetFilter(ctx context.Context, id string, ws []database.Where) (*Update, error) {
	return s.do(id, func(b binding) error { return b.setFilter(ws) })
}

// SetSort replaces the sort orders.
func (s *Service) SetSort(ctx context.Context, id string, orders []query.SortOrder) (*Update, error) {
	return s.do(id, func(b binding) error { return b.setSort(orders) })
}

// Acknowledge confirms that the client applied updateID.
func (s *Service) Acknowledge(ctx context.Context, id string, updateID uint64) (*Update, error) {
	return s.do(id, func(b binding) error { return b.acknowledge(updateID) })
}

// Refresh reloads the session from the backend.
func (s *Service) Refresh(ctx context.Context, id string) (*Update, error) {
	return s.do(id, func(b binding) error {
		b.refresh()
		return nil
	})
}

// Count returns the size of the filtered data.
func (s *Service) Count(ctx context.Context, id string) (int, error) {
	var n int
	_, err := s.do(id, func(b binding) error {
		var err error
		n, err = b.count(ctx)
		return err
	})
	return n, err
}

// Item returns the row at index.
func (s *Service) Item(ctx context.Context, id string, index int) (any, error) {
	var item any
	_, err := s.do(id, func(b binding) error {
		var err error
		item, err = b.item(ctx, index)
		return err
	})
	return item, err
}

// Poll waits up to wait for background fetches of the session to complete
// and returns what they produced.
func (s *Service) Poll(ctx context.Context, id string, wait time.Duration) (*Update, error) {
	sess, _, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	if wait > 0 && sess.AsyncEnabled() {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-sess.Notify():
		case <-timer.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.do(id, func(binding) error { return nil })
}

// Close ends a session.
func (s *Service) Close(id string) bool {
	sess, b, err := s.lookup(id)
	if err != nil {
		return false
	}
	s.remove(sess, b)
	return true
}

// Sweep closes sessions idle for longer than maxIdle.
func (s *Service) Sweep(maxIdle time.Duration) int {
	expired := s.store.Sweep(maxIdle)
	for _, sess := range expired {
		s.mu.Lock()
		b, ok := s.grids[sess.ID()]
		delete(s.grids, sess.ID())
		s.mu.Unlock()
		if ok {
			sess.Lock()
			b.close()
			sess.Unlock()
		}
	}
	if len(expired) > 0 {
		s.logger.Info("Swept idle grid sessions", zap.Int("count", len(expired)))
	}
	return len(expired)
}

// Run sweeps idle sessions every interval until ctx is done.
func (s *Service) Run(ctx context.Context, maxIdle, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(maxIdle)
		}
	}
}

func (s *Service) do(id string, fn func(b binding) error) (*Update, error) {
	sess, b, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	return s.roundTrip(sess, b, func() error { return fn(b) })
}

// roundTrip runs fn on the session. Requested flushes run before the update
// is collected.
func (s *Service) roundTrip(sess *session.Session, b binding, fn func() error) (*Update, error) {
	if err := sess.Run(fn); err != nil {
		return nil, err
	}
	sess.Lock()
	defer sess.Unlock()
	return b.drain(sess.ID())
}

func (s *Service) lookup(id string) (*session.Session, binding, error) {
	sess, ok := s.store.Get(id)
	if !ok {
		return nil, nil, ErrSessionNotFound
	}
	s.mu.RLock()
	b, ok := s.grids[id]
	s.mu.RUnlock()
	if !ok {
		return nil, nil, ErrSessionNotFound
	}
	return sess, b, nil
}

func (s *Service) remove(sess *session.Session, b binding) {
	s.mu.Lock()
	delete(s.grids, sess.ID())
	s.mu.Unlock()

	sess.Lock()
	b.close()
	sess.Unlock()
	s.store.Remove(sess.ID())
	logger.WithSession(s.logger, sess.ID()).Info("Grid session closed")
}
