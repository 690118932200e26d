package reconcile

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"time"

	"databinding/core/flush"
	"databinding/core/keymapper"
	"databinding/core/metrics"
	"databinding/core/pager"
	"databinding/core/query"
	"databinding/core/ranges"

	"go.uber.org/zap"
)

// Option configures a Reconciler.
type Option[T any] func(*Reconciler[T])

// WithLogger sets the reconciler logger.
func WithLogger[T any](l *zap.Logger) Option[T] {
	return func(r *Reconciler[T]) {
		if l != nil {
			r.log = l
		}
	}
}

// WithMetrics records passes, queries and passivations in m.
func WithMetrics[T any](m *metrics.Recorder) Option[T] {
	return func(r *Reconciler[T]) { r.metrics = m }
}

// WithMapper injects the key mapper.
func WithMapper[T any](m *keymapper.Mapper[T]) Option[T] {
	return func(r *Reconciler[T]) {
		if m != nil {
			r.mapper = m
		}
	}
}

// WithConfig replaces the default configuration.
func WithConfig[T any](cfg Config) Option[T] {
	return func(r *Reconciler[T]) { r.cfg = cfg }
}

// WithCountListener registers l before the first flush.
func WithCountListener[T any](l CountListener) Option[T] {
	return func(r *Reconciler[T]) { r.AddCountListener(l) }
}

// Reconciler keeps the rows of a client viewport in sync with a data source.
//
// All methods must be called from the owning context. Only the fetch stage of
// a pass may run elsewhere, and it works on a snapshot.
type Reconciler[T any] struct {
	sink    Sink[T]
	mapper  *keymapper.Mapper[T]
	log     *zap.Logger
	metrics *metrics.Recorder
	sched   Requester
	cache   *countCache
	cfg     Config

	source         query.DataSource[T]
	removeListener func()
	filter         any
	sortOrders     []query.SortOrder
	comparator     query.Comparator[T]

	pager       *pager.Pager
	definedSize bool
	estimate    int
	increment   int

	viewport    ranges.Range
	active      ranges.Range
	activeKeys  []string
	activeSet   map[string]int
	assumedSize int
	sized       bool
	frozen      bool

	generation   uint64
	resetPending bool
	resendAll    bool
	refreshKeys  map[string]struct{}

	updateID     uint64
	ledger       map[uint64]map[string]struct{}
	passivatedAt map[string]uint64

	notifyCount    bool
	lastCount      int
	listeners      map[int]CountListener
	nextListenerID int
}

// New creates a reconciler writing to sink. It starts with the empty data
// source and an empty viewport.
func New[T any](sink Sink[T], opts ...Option[T]) (*Reconciler[T], error) {
	if sink == nil {
		return nil, fmt.Errorf("%w: sink is required", ErrConfig)
	}

	r := &Reconciler[T]{
		sink:         sink,
		mapper:       keymapper.New[T](),
		log:          zap.NewNop(),
		cfg:          DefaultConfig(),
		source:       query.Empty[T](),
		activeSet:    make(map[string]int),
		refreshKeys:  make(map[string]struct{}),
		ledger:       make(map[uint64]map[string]struct{}),
		passivatedAt: make(map[string]uint64),
		notifyCount:  true,
		lastCount:    -1,
		listeners:    make(map[int]CountListener),
	}
	for _, opt := range opts {
		opt(r)
	}

	if err := r.cfg.Validate(); err != nil {
		return nil, err
	}
	p, err := pager.New(r.cfg.PageSize, r.cfg.PagingEnabled)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfig, err)
	}
	r.setPager(p)
	r.definedSize = r.cfg.DefinedSize
	r.estimate = r.cfg.ItemCountEstimate
	r.increment = r.cfg.ItemCountEstimateIncrement
	r.cache = newCountCache(r.cfg.CountCacheTTL)
	return r, nil
}

// SetScheduler routes flush requests of every mutator to s.
func (r *Reconciler[T]) SetScheduler(s Requester) {
	r.sched = s
}

// AddCountListener registers l and returns a function removing it.
func (r *Reconciler[T]) AddCountListener(l CountListener) func() {
	id := r.nextListenerID
	r.nextListenerID++
	r.listeners[id] = l
	return func() { delete(r.listeners, id) }
}

// SetViewport sets the rows the client wants rendered.
func (r *Reconciler[T]) SetViewport(start, length int) error {
	if start < 0 || length < 0 || start > math.MaxInt-length {
		return fmt.Errorf("%w: viewport start=%d length=%d", ErrOutOfBounds, start, length)
	}
	r.viewport = ranges.WithLength(start, length)
	r.request()
	return nil
}

// SetDataSource replaces the data source. Known keys are forgotten and the
// next flush resends everything. A nil source selects the empty source.
func (r *Reconciler[T]) SetDataSource(src query.DataSource[T]) {
	if src == nil {
		src = query.Empty[T]()
	}
	if r.removeListener != nil {
		r.removeListener()
		r.removeListener = nil
	}

	r.source = src
	if n, ok := src.(query.Notifier[T]); ok {
		r.removeListener = n.AddListener(r.onEvent)
	}
	r.definedSize = r.cfg.DefinedSize && query.CanCount(src)

	r.mapper.RemoveAll()
	clear(r.ledger)
	clear(r.passivatedAt)
	clear(r.refreshKeys)
	r.cache.invalidate()

	r.log.Debug("Data source changed", zap.String("source", fmt.Sprintf("%T", src)), zap.Bool("defined_size", r.definedSize))
	r.Reset()
}

// DataSource returns the current data source.
func (r *Reconciler[T]) DataSource() query.DataSource[T] {
	return r.source
}

// SetFilter sets the opaque filter handed to the data source.
func (r *Reconciler[T]) SetFilter(filter any) {
	r.filter = filter
	r.Reset()
}

// Filter returns the current filter.
func (r *Reconciler[T]) Filter() any {
	return r.filter
}

// SetSortOrders sets the backend sort orders.
func (r *Reconciler[T]) SetSortOrders(orders ...query.SortOrder) {
	r.sortOrders = slices.Clone(orders)
	r.Reset()
}

// SetComparator sets the in-memory comparator.
func (r *Reconciler[T]) SetComparator(cmp query.Comparator[T]) {
	r.comparator = cmp
	r.Reset()
}

// SetPageSize changes the backend page size.
func (r *Reconciler[T]) SetPageSize(size int) error {
	p, err := pager.New(size, r.pager.Enabled())
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConfig, err)
	}
	r.setPager(p)
	r.request()
	return nil
}

// SetPagingEnabled toggles page splitting.
func (r *Reconciler[T]) SetPagingEnabled(enabled bool) {
	p, _ := pager.New(r.pager.PageSize(), enabled)
	r.setPager(p)
	r.request()
}

// SetDefinedSize switches between exact counting and estimated sizing.
func (r *Reconciler[T]) SetDefinedSize(defined bool) error {
	if defined && !query.CanCount(r.source) {
		return fmt.Errorf("%w: data source %T cannot count items", ErrConfig, r.source)
	}
	r.definedSize = defined
	r.Reset()
	return nil
}

// SetCountCallback adds an exact count to a callback-backed data source and
// switches to defined size.
func (r *Reconciler[T]) SetCountCallback(count query.CountFunc[T]) error {
	if query.IsEmpty(r.source) {
		return fmt.Errorf("%w: no data source configured", ErrState)
	}
	cs, ok := r.source.(*query.CallbackSource[T])
	if !ok {
		return fmt.Errorf("%w: count callbacks need a callback data source, got %T", ErrConfig, r.source)
	}
	if count == nil {
		return fmt.Errorf("%w: count callback is nil", ErrConfig)
	}

	// events fired on either the original or the counting copy reach r
	counted := cs.WithCount(count)
	removeOld, removeNew := r.removeListener, counted.AddListener(r.onEvent)
	r.removeListener = func() {
		if removeOld != nil {
			removeOld()
		}
		removeNew()
	}
	r.source = counted
	r.definedSize = true
	r.cache.invalidate()
	r.Reset()
	return nil
}

// SetItemCountEstimate sets the initial size used in estimate mode.
func (r *Reconciler[T]) SetItemCountEstimate(estimate int) error {
	if estimate < 1 {
		return fmt.Errorf("%w: item count estimate must be at least 1, got %d", ErrConfig, estimate)
	}
	r.estimate = estimate
	r.Reset()
	return nil
}

// SetItemCountEstimateIncrement sets how much the estimate grows at a time.
func (r *Reconciler[T]) SetItemCountEstimateIncrement(increment int) error {
	if increment < 1 {
		return fmt.Errorf("%w: item count estimate increment must be at least 1, got %d", ErrConfig, increment)
	}
	r.increment = increment
	r.Reset()
	return nil
}

// SetIdentityFunc changes how items are recognized. Issued keys stay valid.
func (r *Reconciler[T]) SetIdentityFunc(fn keymapper.IdentityFunc[T]) {
	r.mapper.SetIdentityFunc(fn)
	r.Reset()
}

// SetCountNotification toggles CountChange events.
func (r *Reconciler[T]) SetCountNotification(enabled bool) {
	r.notifyCount = enabled
	r.request()
}

// Reset recomputes the size and resends every row on the next flush.
func (r *Reconciler[T]) Reset() {
	r.generation++
	r.resetPending = true
	r.request()
}

// ResendAll resends every row on the next flush, for clients that lost their
// state. The size is queried again in defined mode.
func (r *Reconciler[T]) ResendAll() {
	r.resendAll = true
	r.request()
}

// RefreshItem stores a newer instance of a known item and resends its row if
// it is active.
func (r *Reconciler[T]) RefreshItem(item T) error {
	if err := r.mapper.Refresh(item); err != nil {
		return err
	}
	key, ok := r.mapper.KeyOf(item)
	if !ok {
		return nil
	}
	if _, active := r.activeSet[key]; active {
		r.refreshKeys[key] = struct{}{}
		r.request()
	}
	return nil
}

// Acknowledge confirms that the client applied every update up to updateID.
// Keys passivated by those updates are forgotten.
func (r *Reconciler[T]) Acknowledge(updateID uint64) error {
	if updateID == 0 || updateID > r.updateID {
		return fmt.Errorf("%w: %d", ErrUnknownUpdate, updateID)
	}

	released := 0
	for id, keys := range r.ledger {
		if id > updateID {
			continue
		}
		for key := range keys {
			r.mapper.RemoveKey(key)
			delete(r.passivatedAt, key)
			released++
		}
		delete(r.ledger, id)
	}

	if released > 0 {
		r.metrics.Released(released)
		r.log.Debug("Released passivated keys", zap.Uint64("update_id", updateID), zap.Int("keys", released))
	}
	return nil
}

// Reconcile runs one synchronous pass, including the corrective pass after an
// estimate overshoot.
func (r *Reconciler[T]) Reconcile(ctx context.Context) error {
	var task flush.Task = r.begin(false)
	for task != nil {
		if err := task.Fetch(ctx); err != nil {
			return err
		}
		next, err := task.Apply(ctx)
		if err != nil {
			return err
		}
		task = next
	}
	return nil
}

// Begin implements flush.Target.
func (r *Reconciler[T]) Begin() flush.Task {
	return r.begin(false)
}

// Item returns the item at index. Active rows are served from the key mapper;
// others are fetched. In defined mode indices beyond the count fail without a
// query. In estimate mode the backend decides.
func (r *Reconciler[T]) Item(ctx context.Context, index int) (T, error) {
	var zero T
	if index < 0 {
		return zero, fmt.Errorf("%w: %d", ErrOutOfBounds, index)
	}

	if r.active.Contains(index) && !r.resetPending {
		if item, ok := r.mapper.Get(r.activeKeys[index-r.active.Start]); ok {
			return item, nil
		}
	}

	if r.definedSize {
		size := r.assumedSize
		if !r.sized || r.resetPending {
			n, err := r.Count(ctx)
			if err != nil {
				return zero, err
			}
			size = n
		}
		if index >= size {
			return zero, fmt.Errorf("%w: %d (size %d)", ErrOutOfBounds, index, size)
		}
	}

	item, ok, err := pager.FetchOne(ctx, r.pager, r.source, r.params(), index)
	if err != nil {
		r.observeError(err)
		return zero, err
	}
	if !ok {
		return zero, fmt.Errorf("%w: %d", ErrOutOfBounds, index)
	}
	return item, nil
}

// Count returns the exact number of items matching the current filter.
func (r *Reconciler[T]) Count(ctx context.Context) (int, error) {
	if !query.CanCount(r.source) {
		return 0, query.ErrCountUnsupported
	}
	return r.cache.getOrCount(ctx, r.generation, r.counter(r.source, r.params()))
}

// Viewport returns the requested range.
func (r *Reconciler[T]) Viewport() ranges.Range {
	return r.viewport
}

// ActiveRange returns the range last sent to the client.
func (r *Reconciler[T]) ActiveRange() ranges.Range {
	return r.active
}

// ActiveKeys returns the keys of the active range in order.
func (r *Reconciler[T]) ActiveKeys() []string {
	return slices.Clone(r.activeKeys)
}

// AssumedSize returns the size last computed for the client.
func (r *Reconciler[T]) AssumedSize() int {
	return r.assumedSize
}

// IsDefinedSize reports whether exact counting is used.
func (r *Reconciler[T]) IsDefinedSize() bool {
	return r.definedSize
}

// IsEstimateFrozen reports whether the backend revealed the end of the data
// in estimate mode.
func (r *Reconciler[T]) IsEstimateFrozen() bool {
	return r.frozen
}

// Mapper returns the key mapper.
func (r *Reconciler[T]) Mapper() *keymapper.Mapper[T] {
	return r.mapper
}

// PendingPassivations returns the number of keys waiting for acknowledgement.
func (r *Reconciler[T]) PendingPassivations() int {
	return len(r.passivatedAt)
}

// LastUpdateID returns the id of the last committed batch.
func (r *Reconciler[T]) LastUpdateID() uint64 {
	return r.updateID
}

// Pager returns the pager used for backend fetches.
func (r *Reconciler[T]) Pager() *pager.Pager {
	return r.pager
}

// PageSize returns the backend page size.
func (r *Reconciler[T]) PageSize() int {
	return r.pager.PageSize()
}

// SetCountCacheTTL changes how long exact counts are memoized.
func (r *Reconciler[T]) SetCountCacheTTL(ttl time.Duration) error {
	if ttl < 0 {
		return fmt.Errorf("%w: count cache ttl cannot be negative", ErrConfig)
	}
	r.cache.setTTL(ttl)
	return nil
}

func (r *Reconciler[T]) onEvent(e query.Event[T]) {
	switch e.Type {
	case query.EventRefreshAll:
		r.cache.invalidate()
		r.Reset()
	case query.EventRefreshItem:
		if err := r.RefreshItem(e.Item); err != nil {
			r.log.Warn("Ignoring item refresh", zap.Error(err))
		}
	}
}

func (r *Reconciler[T]) setPager(p *pager.Pager) {
	if r.metrics != nil {
		p = p.WithObserver(r.metrics)
	}
	r.pager = p
}

func (r *Reconciler[T]) params() query.Params[T] {
	return query.Params[T]{
		SortOrders: slices.Clone(r.sortOrders),
		Comparator: r.comparator,
		Filter:     r.filter,
	}
}

func (r *Reconciler[T]) counter(src query.DataSource[T], params query.Params[T]) func(context.Context) (int, error) {
	return func(ctx context.Context) (int, error) {
		n, err := src.Count(ctx, query.ForCount(params))
		if err != nil {
			return 0, fmt.Errorf("count items: %w", err)
		}
		return max(n, 0), nil
	}
}

func (r *Reconciler[T]) request() {
	if r.sched != nil {
		r.sched.Request()
	}
}

func (r *Reconciler[T]) observeError(err error) {
	if errors.Is(err, query.ErrContract) {
		r.metrics.ContractViolation()
		r.log.Error("Data source broke the query contract", zap.Error(err))
	}
}
