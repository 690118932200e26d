package flush

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"databinding/core/metrics"

	"go.uber.org/zap"
)

var (
	// ErrAsyncUnsupported is returned when an executor is combined with an owner
	// that cannot deliver deferred work.
	ErrAsyncUnsupported = errors.New("owner does not support asynchronous updates")
	// ErrDiscarded is returned by Task.Apply when the fetched result no longer
	// matches the target state. The scheduler requests a new flush.
	ErrDiscarded = errors.New("flush result discarded")
)

// Task is one reconciliation pass split into a side-effect free fetch stage
// and an apply stage that must run on the owner.
type Task interface {
	Fetch(ctx context.Context) error
	// Apply mutates the target. A non-nil next task is fetched and applied
	// in the same flush.
	Apply(ctx context.Context) (next Task, err error)
}

// Target produces a task from a snapshot of its current state.
type Target interface {
	Begin() Task
}

// Owner is the synchronization context serializing access to a target.
type Owner interface {
	ID() string
	// BeforeResponse registers fn to run once before the current round trip
	// answers the client.
	BeforeResponse(fn func())
	// Access runs fn later on the owner. It fails once the owner is detached.
	Access(fn func()) error
	// AsyncEnabled reports whether Access delivers work pushed from background
	// goroutines.
	AsyncEnabled() bool
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the scheduler logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.log = l
		}
	}
}

// WithMetrics records discarded results in r.
func WithMetrics(r *metrics.Recorder) Option {
	return func(s *Scheduler) { s.metrics = r }
}

// WithErrorHandler replaces the default handler, which logs flush errors.
func WithErrorHandler(fn func(error)) Option {
	return func(s *Scheduler) { s.onError = fn }
}

// WithContext sets the parent context of every flush.
func WithContext(ctx context.Context) Option {
	return func(s *Scheduler) { s.ctx = ctx }
}

// Scheduler coalesces flush requests for one target.
type Scheduler struct {
	target  Target
	log     *zap.Logger
	metrics *metrics.Recorder
	onError func(error)
	ctx     context.Context

	mu         sync.Mutex
	owner      Owner
	executor   Executor
	scheduled  bool
	running    bool
	again      bool
	pending    bool
	generation uint64
	cancel     context.CancelFunc
}

// New creates a detached scheduler for target.
func New(target Target, opts ...Option) *Scheduler {
	s := &Scheduler{
		target: target,
		log:    zap.NewNop(),
		ctx:    context.Background(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetExecutor enables asynchronous fetching. A nil executor restores
// synchronous flushes.
func (s *Scheduler) SetExecutor(exec Executor) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if exec != nil && s.owner != nil && !s.owner.AsyncEnabled() {
		return fmt.Errorf("%w: owner %s", ErrAsyncUnsupported, s.owner.ID())
	}
	s.executor = exec
	return nil
}

// Attach binds the scheduler to owner. Requests made while detached are
// scheduled on the new owner.
func (s *Scheduler) Attach(owner Owner) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.executor != nil && !owner.AsyncEnabled() {
		return fmt.Errorf("%w: owner %s", ErrAsyncUnsupported, owner.ID())
	}
	s.cancelLocked()
	if s.scheduled {
		s.pending = true
	}
	s.owner = owner
	s.scheduled = false

	if s.pending {
		s.pending = false
		s.scheduleLocked()
	}
	return nil
}

// Detach unbinds the owner and cancels any in-flight fetch.
func (s *Scheduler) Detach() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancelLocked()
	if s.scheduled {
		s.pending = true
	}
	s.owner = nil
	s.scheduled = false
}

// Request asks for a flush before the current round trip ends.
func (s *Scheduler) Request() {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.owner == nil:
		s.pending = true
	case s.running:
		s.again = true
	case !s.scheduled:
		s.scheduleLocked()
	}
}

// Scheduled reports whether a flush is registered with the owner.
func (s *Scheduler) Scheduled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scheduled
}

func (s *Scheduler) scheduleLocked() {
	s.scheduled = true
	owner := s.owner
	owner.BeforeResponse(func() { s.run(owner) })
}

func (s *Scheduler) cancelLocked() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

func (s *Scheduler) run(owner Owner) {
	s.mu.Lock()
	if s.owner != owner {
		s.mu.Unlock()
		s.log.Debug("Skipping flush scheduled for a previous owner", zap.String("owner", owner.ID()))
		return
	}
	s.scheduled = false
	s.running = true
	s.generation++
	gen := s.generation
	s.cancelLocked()
	exec := s.executor
	s.mu.Unlock()

	defer s.finish()

	if exec == nil {
		s.drain(s.ctx, s.target.Begin())
		return
	}
	s.submit(owner, exec, gen, s.target.Begin())
}

// drain runs tasks synchronously until none is left.
func (s *Scheduler) drain(ctx context.Context, task Task) {
	for task != nil {
		if err := task.Fetch(ctx); err != nil {
			s.handle(err)
			return
		}
		next, err := task.Apply(ctx)
		if err != nil {
			s.handle(err)
			return
		}
		task = next
	}
}

func (s *Scheduler) submit(owner Owner, exec Executor, gen uint64, task Task) {
	ctx, cancel := context.WithCancel(s.ctx)
	s.mu.Lock()
	s.cancelLocked()
	s.cancel = cancel
	s.mu.Unlock()

	err := exec.Submit(func() {
		fetchErr := task.Fetch(ctx)
		if ctx.Err() != nil {
			s.discard("fetch cancelled")
			return
		}
		if err := owner.Access(func() { s.apply(ctx, owner, gen, task, fetchErr) }); err != nil {
			s.discard("owner no longer accepts updates")
		}
	})
	if err != nil {
		cancel()
		s.handle(fmt.Errorf("submit fetch: %w", err))
	}
}

func (s *Scheduler) apply(ctx context.Context, owner Owner, gen uint64, task Task, fetchErr error) {
	s.mu.Lock()
	if s.owner != owner || s.generation != gen || ctx.Err() != nil {
		s.mu.Unlock()
		s.discard("stale result")
		return
	}
	s.running = true
	exec := s.executor
	s.mu.Unlock()

	defer s.finish()

	if fetchErr != nil {
		s.handle(fetchErr)
		return
	}
	next, err := task.Apply(ctx)
	if err != nil {
		s.handle(err)
		return
	}
	if next == nil {
		return
	}
	if exec == nil {
		s.drain(ctx, next)
		return
	}
	s.submit(owner, exec, gen, next)
}

func (s *Scheduler) finish() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.running = false
	if s.again {
		s.again = false
		if s.owner == nil {
			s.pending = true
		} else if !s.scheduled {
			s.scheduleLocked()
		}
	}
}

func (s *Scheduler) discard(reason string) {
	s.metrics.Discarded()
	s.log.Debug("Discarding asynchronous result", zap.String("reason", reason))
}

func (s *Scheduler) handle(err error) {
	if errors.Is(err, ErrDiscarded) {
		s.discard(err.Error())
		s.Request()
		return
	}
	if s.onError != nil {
		s.onError(err)
		return
	}
	s.log.Error("Flush failed", zap.Error(err))
}
