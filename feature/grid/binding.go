package grid

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"databinding/core/database"
	"databinding/core/flush"
	"databinding/core/keymapper"
	"databinding/core/metrics"
	"databinding/core/query"
	"databinding/core/reconcile"
	"databinding/core/session"
	"databinding/core/wire"

	"go.uber.org/zap"
)

// ErrInvalidRequest is returned for filters, sort orders or viewports the
// backend cannot serve.
var ErrInvalidRequest = errors.New("invalid grid request")

// Update is what a round trip sends back to the client.
type Update struct {
	Session string `json:"session"`
	// Batches holds the committed update batches, oldest first.
	Batches any `json:"batches"`
	// Count is set when the advertised size changed.
	Count *reconcile.CountChange `json:"count,omitempty"`
	// LastUpdateID is the id the client acknowledges once applied.
	LastUpdateID uint64 `json:"last_update_id"`
	// PendingKeys is the number of dropped keys kept until the client
	// acknowledges the update that dropped them.
	PendingKeys int `json:"pending_keys"`

	frames func() ([]byte, error)
}

// Frames encodes the update as wire frames.
func (u *Update) Frames() ([]byte, error) {
	return u.frames()
}

type options struct {
	binding reconcile.Config
	logger  *zap.Logger
	metrics *metrics.Recorder
	exec    flush.Executor
	ctx     context.Context
}

// binding is the type-erased grid state of one session. Every method except
// close must run on the session.
type binding interface {
	setViewport(start, length int) error
	setFilter(ws []database.Where) error
	setSort(orders []query.SortOrder) error
	acknowledge(updateID uint64) error
	refresh()
	count(ctx context.Context) (int, error)
	item(ctx context.Context, index int) (any, error)
	drain(sessionID string) (*Update, error)
	close()
}

type grid[T any] struct {
	r     *reconcile.Reconciler[T]
	sched *flush.Scheduler
	buf   *wire.Buffer[T]

	filterOf func([]database.Where) (any, error)
	sortable func(query.SortOrder) bool

	mu      sync.Mutex
	changed *reconcile.CountChange
	err     error
}

func newGrid[T any](
	sess *session.Session,
	src query.DataSource[T],
	identity keymapper.IdentityFunc[T],
	filterOf func([]database.Where) (any, error),
	sortable func(query.SortOrder) bool,
	o options,
) (*grid[T], error) {
	g := &grid[T]{
		buf:      wire.NewBuffer[T](),
		filterOf: filterOf,
		sortable: sortable,
	}

	r, err := reconcile.New[T](g.buf,
		reconcile.WithConfig[T](o.binding),
		reconcile.WithLogger[T](o.logger),
		reconcile.WithMetrics[T](o.metrics),
		reconcile.WithCountListener[T](g.onCount),
	)
	if err != nil {
		return nil, err
	}

	sched := flush.New(r,
		flush.WithLogger(o.logger),
		flush.WithMetrics(o.metrics),
		flush.WithErrorHandler(g.onError),
		flush.WithContext(o.ctx),
	)
	if o.binding.Async && o.exec != nil {
		if err := sched.SetExecutor(o.exec); err != nil {
			return nil, err
		}
	}
	if err := sched.Attach(sess); err != nil {
		return nil, err
	}

	r.SetScheduler(sched)
	r.SetIdentityFunc(identity)
	r.SetDataSource(src)

	g.r = r
	g.sched = sched
	return g, nil
}

func (g *grid[T]) onCount(c reconcile.CountChange) {
	g.mu.Lock()
	g.changed = &c
	g.mu.Unlock()
}

func (g *grid[T]) onError(err error) {
	g.mu.Lock()
	g.err = errors.Join(g.err, err)
	g.mu.Unlock()
}

func (g *grid[T]) setViewport(start, length int) error {
	if err := g.r.SetViewport(start, length); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	return nil
}

func (g *grid[T]) setFilter(ws []database.Where) error {
	filter, err := g.filterOf(ws)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	g.r.SetFilter(filter)
	return nil
}

func (g *grid[T]) setSort(orders []query.SortOrder) error {
	for _, o := range orders {
		if !g.sortable(o) {
			return fmt.Errorf("%w: cannot sort by %s %s", ErrInvalidRequest, o.Property, o.Direction)
		}
	}
	g.r.SetSortOrders(orders...)
	return nil
}

func (g *grid[T]) acknowledge(updateID uint64) error {
	return g.r.Acknowledge(updateID)
}

func (g *grid[T]) refresh() {
	g.r.Reset()
}

func (g *grid[T]) count(ctx context.Context) (int, error) {
	if !g.r.IsDefinedSize() {
		return g.r.AssumedSize(), nil
	}
	return g.r.Count(ctx)
}

func (g *grid[T]) item(ctx context.Context, index int) (any, error) {
	return g.r.Item(ctx, index)
}

// drain collects what the last round trips produced. Flush errors are
// returned once.
func (g *grid[T]) drain(sessionID string) (*Update, error) {
	g.mu.Lock()
	changed, err := g.changed, g.err
	g.changed, g.err = nil, nil
	g.mu.Unlock()

	batches := g.buf.Drain()
	if batches == nil {
		batches = []wire.Batch[T]{}
	}
	return &Update{
		Session:      sessionID,
		Batches:      batches,
		Count:        changed,
		LastUpdateID: g.r.LastUpdateID(),
		PendingKeys:  g.r.PendingPassivations(),
		frames: func() ([]byte, error) {
			return wire.EncodeBatches(batches, changed)
		},
	}, err
}

func (g *grid[T]) close() {
	g.sched.Detach()
	// drops the listener registered on the shared source
	g.r.SetDataSource(nil)
}
