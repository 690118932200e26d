package reconcile

import (
	"context"
	"iter"
	"math"
	"math/rand/v2"
	"slices"
	"testing"
	"time"

	"databinding/core/keymapper"
	"databinding/core/pager"
	"databinding/core/query"
	"databinding/core/ranges"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// op is a recorded sink call.
type op struct {
	Kind   string
	Start  int
	Length int
}

// recordingSink records operations and mirrors the rows a client would hold.
type recordingSink[T any] struct {
	ops     []op
	commits []uint64
	rows    map[int]Entry[T]
}

func newSink[T any]() *recordingSink[T] {
	return &recordingSink[T]{rows: make(map[int]Entry[T])}
}

func (s *recordingSink[T]) Clear(start, length int) {
	s.ops = append(s.ops, op{"clear", start, length})
	for i := start; i < start+length; i++ {
		delete(s.rows, i)
	}
}

func (s *recordingSink[T]) Set(start int, entries []Entry[T]) {
	s.ops = append(s.ops, op{"set", start, len(entries)})
	for i, e := range entries {
		s.rows[start+i] = e
	}
}

func (s *recordingSink[T]) Commit(updateID uint64) {
	s.commits = append(s.commits, updateID)
}

// take returns and resets the recorded operations.
func (s *recordingSink[T]) take() []op {
	ops := s.ops
	s.ops = nil
	return ops
}

func ints(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

// sliceSource serves data through callbacks and counts backend calls.
type sliceSource struct {
	data    []int
	fetches int
	counts  []int
	counted int
}

func (s *sliceSource) fetch(_ context.Context, q *query.Query[int]) (iter.Seq[int], error) {
	s.fetches++
	offset, limit := q.Offset(), q.Limit()
	end := min(offset+limit, len(s.data))
	if offset >= end {
		return slices.Values([]int(nil)), nil
	}
	return slices.Values(s.data[offset:end]), nil
}

// count returns the scripted counts in order, then the data length.
func (s *sliceSource) count(context.Context, *query.Query[int]) (int, error) {
	s.counted++
	if len(s.counts) > 0 {
		n := s.counts[0]
		s.counts = s.counts[1:]
		return n, nil
	}
	return len(s.data), nil
}

func newReconciler[T any](t *testing.T, sink *recordingSink[T], cfg Config) (*Reconciler[T], *[]CountChange) {
	t.Helper()
	var changes []CountChange
	r, err := New[T](sink, WithConfig[T](cfg), WithCountListener[T](func(c CountChange) {
		changes = append(changes, c)
	}))
	require.NoError(t, err)
	return r, &changes
}

// assertConsistent checks the key invariant and that the mirrored client rows
// match the active range.
func assertConsistent[T any](t *testing.T, r *Reconciler[T], sink *recordingSink[T]) {
	t.Helper()
	keys := r.ActiveKeys()
	active := r.ActiveRange()
	require.Equal(t, active.Len(), len(keys))
	require.Len(t, sink.rows, len(keys))
	for i, key := range keys {
		row, ok := sink.rows[active.Start+i]
		require.True(t, ok, "row %d missing on client", active.Start+i)
		assert.Equal(t, key, row.Key)
	}
}

func TestReconcile_ExactSizeIncremental(t *testing.T) {
	ctx := context.Background()
	sink := newSink[int]()
	r, changes := newReconciler(t, sink, DefaultConfig())
	r.SetDataSource(query.FromSlice(ints(100)))

	require.NoError(t, r.SetViewport(0, 50))
	require.NoError(t, r.Reconcile(ctx))
	assert.Equal(t, []op{{"set", 0, 50}}, sink.take())
	assert.Equal(t, []CountChange{{Count: 100, Estimated: false}}, *changes)
	assert.Equal(t, []uint64{1}, sink.commits)

	require.NoError(t, r.SetViewport(0, 70))
	require.NoError(t, r.Reconcile(ctx))
	assert.Equal(t, []op{{"set", 50, 20}}, sink.take())
	assert.Equal(t, []uint64{1, 2}, sink.commits)
	assert.Len(t, *changes, 1, "count unchanged")
	assertConsistent(t, r, sink)

	// nothing changed: no operations and no commit
	require.NoError(t, r.Reconcile(ctx))
	assert.Empty(t, sink.take())
	assert.Equal(t, []uint64{1, 2}, sink.commits)
}

func TestReconcile_EstimateGrowth(t *testing.T) {
	ctx := context.Background()
	sink := newSink[int]()
	r, changes := newReconciler(t, sink, DefaultConfig())

	src := &sliceSource{data: ints(500)}
	r.SetDataSource(query.FromCallbacks(src.fetch, nil))
	assert.False(t, r.IsDefinedSize())

	require.NoError(t, r.SetViewport(0, 50))
	require.NoError(t, r.Reconcile(ctx))
	assert.Equal(t, 200, r.AssumedSize())
	assert.Equal(t, []CountChange{{Count: 200, Estimated: true}}, *changes)

	require.NoError(t, r.SetViewport(150, 50))
	require.NoError(t, r.Reconcile(ctx))
	assert.Equal(t, 400, r.AssumedSize())
	assert.Equal(t, CountChange{Count: 400, Estimated: true}, (*changes)[1])
	assert.Equal(t, []op{{"clear", 0, 50}, {"set", 150, 50}}, sink.take()[1:])
	assertConsistent(t, r, sink)
	assert.Zero(t, src.counted)
}

func TestReconcile_ShortPageRechecksCount(t *testing.T) {
	ctx := context.Background()
	sink := newSink[int]()
	r, changes := newReconciler(t, sink, DefaultConfig())

	src := &sliceSource{data: ints(40), counts: []int{50}}
	r.SetDataSource(query.FromCallbacks(src.fetch, src.count))
	require.True(t, r.IsDefinedSize())

	require.NoError(t, r.SetViewport(0, 50))
	require.NoError(t, r.Reconcile(ctx))

	assert.Equal(t, 2, src.counted, "count queried again after the short page")
	assert.Equal(t, 40, r.AssumedSize())
	assert.Equal(t, []op{{"set", 0, 40}}, sink.take())
	assert.Equal(t, []CountChange{{Count: 40}}, *changes)
	assertConsistent(t, r, sink)
}

func TestReconcile_FilterChangeResendsEverything(t *testing.T) {
	ctx := context.Background()
	sink := newSink[int]()
	r, changes := newReconciler(t, sink, DefaultConfig())
	r.SetDataSource(query.FromSlice(ints(20)))

	r.SetFilter(query.Predicate[int](func(i int) bool { return i < 10 }))
	require.NoError(t, r.SetViewport(0, 10))
	require.NoError(t, r.Reconcile(ctx))
	assert.Equal(t, []op{{"set", 0, 10}}, sink.take())

	r.SetFilter(query.Predicate[int](func(i int) bool { return i == 1 }))
	require.NoError(t, r.Reconcile(ctx))
	assert.Equal(t, []op{{"clear", 0, 10}, {"set", 0, 1}}, sink.take())
	assert.Equal(t, []CountChange{{Count: 10}, {Count: 1}}, *changes)

	// the surviving item keeps its key
	item, ok := r.Mapper().Get(r.ActiveKeys()[0])
	require.True(t, ok)
	assert.Equal(t, 1, item)
	assert.Equal(t, "2", r.ActiveKeys()[0])
	assertConsistent(t, r, sink)
}

func TestReconcile_PassivationAndAcknowledge(t *testing.T) {
	ctx := context.Background()
	sink := newSink[int]()
	r, _ := newReconciler(t, sink, DefaultConfig())
	r.SetDataSource(query.FromSlice(ints(100)))

	require.NoError(t, r.SetViewport(0, 10))
	require.NoError(t, r.Reconcile(ctx))
	first := r.ActiveKeys()

	require.NoError(t, r.SetViewport(5, 10))
	require.NoError(t, r.Reconcile(ctx))
	assert.Equal(t, []op{{"set", 0, 10}, {"clear", 0, 5}, {"set", 10, 5}}, sink.take())
	assert.Equal(t, 5, r.PendingPassivations())

	// passivated keys still resolve until acknowledged
	for _, key := range first[:5] {
		_, ok := r.Mapper().Get(key)
		assert.True(t, ok)
	}

	err := r.Acknowledge(99)
	assert.ErrorIs(t, err, ErrUnknownUpdate)
	assert.ErrorIs(t, err, ErrState)
	assert.ErrorIs(t, r.Acknowledge(0), ErrUnknownUpdate)

	require.NoError(t, r.Acknowledge(1))
	assert.Equal(t, 5, r.PendingPassivations(), "update 1 passivated nothing")

	require.NoError(t, r.Acknowledge(2))
	assert.Zero(t, r.PendingPassivations())
	for _, key := range first[:5] {
		_, ok := r.Mapper().Get(key)
		assert.False(t, ok)
	}
	for _, key := range r.ActiveKeys() {
		_, ok := r.Mapper().Get(key)
		assert.True(t, ok)
	}
	assertConsistent(t, r, sink)
}

func TestReconcile_ReactivatedKeysLeaveLedger(t *testing.T) {
	ctx := context.Background()
	sink := newSink[int]()
	r, _ := newReconciler(t, sink, DefaultConfig())
	r.SetDataSource(query.FromSlice(ints(100)))

	require.NoError(t, r.SetViewport(0, 10))
	require.NoError(t, r.Reconcile(ctx))
	first := r.ActiveKeys()

	require.NoError(t, r.SetViewport(50, 10))
	require.NoError(t, r.Reconcile(ctx))
	assert.Equal(t, 10, r.PendingPassivations())

	require.NoError(t, r.SetViewport(0, 10))
	require.NoError(t, r.Reconcile(ctx))
	assert.Equal(t, first, r.ActiveKeys(), "known items keep their keys")
	assert.Equal(t, 10, r.PendingPassivations(), "only the rows of update 3 wait")

	require.NoError(t, r.Acknowledge(3))
	for _, key := range first {
		_, ok := r.Mapper().Get(key)
		assert.True(t, ok, "active key %s must survive acknowledgement", key)
	}
	assertConsistent(t, r, sink)
}

func TestReconcile_KeyInvariantUnderRandomViewports(t *testing.T) {
	ctx := context.Background()
	rng := rand.New(rand.NewPCG(1, 2))

	for _, defined := range []bool{true, false} {
		sink := newSink[int]()
		cfg := DefaultConfig()
		cfg.PageSize = 7
		cfg.DefinedSize = defined
		r, _ := newReconciler(t, sink, cfg)
		data := ints(137)
		r.SetDataSource(query.FromSlice(data))

		for i := 0; i < 200; i++ {
			require.NoError(t, r.SetViewport(rng.IntN(160), rng.IntN(40)))
			require.NoError(t, r.Reconcile(ctx))
			assertConsistent(t, r, sink)

			active := r.ActiveRange()
			for j, key := range r.ActiveKeys() {
				item, ok := r.Mapper().Get(key)
				require.True(t, ok)
				assert.Equal(t, data[active.Start+j], item)
			}

			if i%10 == 0 && r.LastUpdateID() > 0 {
				require.NoError(t, r.Acknowledge(r.LastUpdateID()))
				assert.Zero(t, r.PendingPassivations())
			}
		}
	}
}

func TestReconcile_EstimateOvershootRewindsOnce(t *testing.T) {
	ctx := context.Background()
	sink := newSink[int]()
	r, changes := newReconciler(t, sink, DefaultConfig())

	src := &sliceSource{data: ints(380)}
	r.SetDataSource(query.FromCallbacks(src.fetch, nil))

	require.NoError(t, r.SetViewport(400, 50))
	require.NoError(t, r.Reconcile(ctx))

	assert.Equal(t, ranges.Between(350, 400), r.Viewport())
	assert.Equal(t, 380, r.AssumedSize())
	assert.True(t, r.IsEstimateFrozen())
	assert.Equal(t, []op{{"set", 350, 30}}, sink.take())
	assert.Equal(t, []CountChange{{Count: 380, Estimated: false}}, *changes)
	assertConsistent(t, r, sink)
}

func TestReconcile_EstimateOvershootPastEverything(t *testing.T) {
	ctx := context.Background()
	sink := newSink[int]()
	r, _ := newReconciler(t, sink, DefaultConfig())

	src := &sliceSource{data: ints(120)}
	r.SetDataSource(query.FromCallbacks(src.fetch, nil))

	require.NoError(t, r.SetViewport(400, 50))
	require.NoError(t, r.Reconcile(ctx))

	// one corrective pass only, even though it found nothing either
	assert.Equal(t, 2, src.fetches)
	assert.Equal(t, 350, r.AssumedSize())
	assert.True(t, r.ActiveRange().IsEmpty())
	assert.Empty(t, sink.take())
}

func TestReconcile_EstimateFarViewport(t *testing.T) {
	ctx := context.Background()
	sink := newSink[int]()
	r, _ := newReconciler(t, sink, DefaultConfig())

	src := &sliceSource{data: ints(120)}
	r.SetDataSource(query.FromCallbacks(src.fetch, nil))

	require.NoError(t, r.SetViewport(1_000_000_000_000, 50))
	done := make(chan error, 1)
	go func() { done <- r.Reconcile(ctx) }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("reconcile did not finish")
	}
	assert.Equal(t, 2, src.fetches)
	assert.True(t, r.ActiveRange().IsEmpty())
	assert.Empty(t, sink.take())

	err := r.SetViewport(math.MaxInt-10, 50)
	assert.ErrorIs(t, err, ErrOutOfBounds)
	assert.Equal(t, ranges.WithLength(1_000_000_000_000-50, 50), r.Viewport(), "rejected viewport leaves state alone")
}

func TestGrow(t *testing.T) {
	tests := []struct {
		name                       string
		size, end, page, increment int
		want                       int
	}{
		{name: "enough room", size: 200, end: 50, page: 50, increment: 200, want: 200},
		{name: "one increment", size: 200, end: 200, page: 50, increment: 200, want: 400},
		{name: "several increments", size: 200, end: 1000, page: 50, increment: 200, want: 1200},
		{name: "exact fit", size: 100, end: 150, page: 50, increment: 100, want: 200},
		{name: "saturates", size: 200, end: math.MaxInt - 10, page: 50, increment: 200, want: math.MaxInt},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, grow(tt.size, tt.end, tt.page, tt.increment))
		})
	}
}

func TestReconcile_ContractViolation(t *testing.T) {
	sink := newSink[int]()
	r, _ := newReconciler(t, sink, DefaultConfig())

	greedy := query.FromCallbacks(func(_ context.Context, q *query.Query[int]) (iter.Seq[int], error) {
		q.Offset()
		return slices.Values(ints(q.Limit() + 5)), nil
	}, func(context.Context, *query.Query[int]) (int, error) { return 100, nil })
	r.SetDataSource(greedy)

	require.NoError(t, r.SetViewport(0, 10))
	err := r.Reconcile(context.Background())
	assert.ErrorIs(t, err, query.ErrTooManyItems)
	assert.ErrorIs(t, err, query.ErrContract)
	assert.Empty(t, sink.take())
	assert.True(t, r.ActiveRange().IsEmpty())

	lazy := query.FromCallbacks(func(context.Context, *query.Query[int]) (iter.Seq[int], error) {
		return slices.Values(ints(3)), nil
	}, nil)
	r.SetDataSource(lazy)
	err = r.Reconcile(context.Background())
	assert.ErrorIs(t, err, query.ErrIgnoredParameter)
}

func TestReconciler_ConfigurationErrors(t *testing.T) {
	sink := newSink[int]()

	bad := DefaultConfig()
	bad.ItemCountEstimateIncrement = 0
	_, err := New[int](sink, WithConfig[int](bad))
	assert.ErrorIs(t, err, ErrConfig)

	_, err = New[int](nil)
	assert.ErrorIs(t, err, ErrConfig)

	r, _ := newReconciler(t, sink, DefaultConfig())

	err = r.SetPageSize(0)
	assert.ErrorIs(t, err, ErrConfig)
	assert.ErrorIs(t, err, pager.ErrInvalidPageSize)
	assert.Equal(t, 50, r.PageSize())

	assert.ErrorIs(t, r.SetItemCountEstimate(0), ErrConfig)
	assert.ErrorIs(t, r.SetItemCountEstimateIncrement(-1), ErrConfig)
	assert.ErrorIs(t, r.SetViewport(-1, 5), ErrOutOfBounds)
	assert.ErrorIs(t, r.SetCountCacheTTL(-1), ErrConfig)

	count := func(context.Context, *query.Query[int]) (int, error) { return 3, nil }
	assert.ErrorIs(t, r.SetCountCallback(count), ErrState, "empty source")

	r.SetDataSource(query.FromSlice(ints(3)))
	assert.ErrorIs(t, r.SetCountCallback(count), ErrConfig, "not a callback source")

	src := &sliceSource{data: ints(3)}
	r.SetDataSource(query.FromCallbacks(src.fetch, nil))
	assert.ErrorIs(t, r.SetDefinedSize(true), ErrConfig)
	assert.False(t, r.IsDefinedSize())
	assert.ErrorIs(t, r.SetCountCallback(nil), ErrConfig)

	require.NoError(t, r.SetCountCallback(count))
	assert.True(t, r.IsDefinedSize())
	require.NoError(t, r.SetViewport(0, 10))
	require.NoError(t, r.Reconcile(context.Background()))
	assert.Equal(t, 3, r.AssumedSize())
}

func TestReconciler_CountCallbackKeepsEvents(t *testing.T) {
	ctx := context.Background()
	sink := newSink[int]()
	r, changes := newReconciler(t, sink, DefaultConfig())

	data := &sliceSource{data: ints(3)}
	original := query.FromCallbacks(data.fetch, nil)
	r.SetDataSource(original)
	require.NoError(t, r.SetCountCallback(data.count))
	require.NoError(t, r.SetViewport(0, 10))
	require.NoError(t, r.Reconcile(ctx))
	sink.take()

	counted, ok := r.DataSource().(*query.CallbackSource[int])
	require.True(t, ok)
	require.NotSame(t, original, counted)

	data.data = ints(5)
	counted.RefreshAll()
	require.NoError(t, r.Reconcile(ctx))
	assert.Equal(t, []op{{"clear", 0, 3}, {"set", 0, 5}}, sink.take())

	data.data = ints(4)
	original.RefreshAll()
	require.NoError(t, r.Reconcile(ctx))
	assert.Equal(t, []op{{"clear", 0, 5}, {"set", 0, 4}}, sink.take())
	assert.Equal(t, []CountChange{{Count: 3}, {Count: 5}, {Count: 4}}, *changes)

	// replacing the source drops both registrations
	r.SetDataSource(query.FromSlice(ints(2)))
	require.NoError(t, r.Reconcile(ctx))
	sink.take()
	counted.RefreshAll()
	original.RefreshAll()
	require.NoError(t, r.Reconcile(ctx))
	assert.Empty(t, sink.take())
}

func TestReconciler_Item(t *testing.T) {
	ctx := context.Background()
	sink := newSink[int]()
	r, _ := newReconciler(t, sink, DefaultConfig())

	src := &sliceSource{data: ints(30)}
	r.SetDataSource(query.FromCallbacks(src.fetch, src.count))
	require.NoError(t, r.SetViewport(0, 10))
	require.NoError(t, r.Reconcile(ctx))
	fetches := src.fetches

	item, err := r.Item(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, 4, item)
	assert.Equal(t, fetches, src.fetches, "active rows come from the mapper")

	item, err = r.Item(ctx, 25)
	require.NoError(t, err)
	assert.Equal(t, 25, item)
	assert.Equal(t, fetches+1, src.fetches)

	_, err = r.Item(ctx, 30)
	assert.ErrorIs(t, err, ErrOutOfBounds)
	assert.Equal(t, fetches+1, src.fetches, "defined size rejects without a query")
	_, err = r.Item(ctx, -1)
	assert.ErrorIs(t, err, ErrOutOfBounds)

	// estimate mode asks the backend even beyond the estimate
	require.NoError(t, r.SetDefinedSize(false))
	require.NoError(t, r.SetItemCountEstimate(5))
	require.NoError(t, r.Reconcile(ctx))
	item, err = r.Item(ctx, 29)
	require.NoError(t, err)
	assert.Equal(t, 29, item)
	_, err = r.Item(ctx, 31)
	assert.ErrorIs(t, err, ErrOutOfBounds)
}

type person struct {
	ID   int
	Name string
}

func TestReconciler_RefreshItem(t *testing.T) {
	ctx := context.Background()
	sink := newSink[*person]()
	r, _ := newReconciler(t, sink, DefaultConfig())
	r.SetIdentityFunc(func(p *person) any { return p.ID })

	people := []*person{{1, "ada"}, {2, "bob"}, {3, "cy"}}
	src := query.FromSlice(people)
	r.SetDataSource(src)
	require.NoError(t, r.SetViewport(0, 3))
	require.NoError(t, r.Reconcile(ctx))
	sink.take()

	updated := &person{2, "bobby"}
	src.RefreshItem(updated)
	require.NoError(t, r.Reconcile(ctx))
	assert.Equal(t, []op{{"set", 1, 1}}, sink.take())
	assert.Equal(t, "bobby", sink.rows[1].Item.Name)

	err := r.RefreshItem(nil)
	assert.ErrorIs(t, err, keymapper.ErrNilItem)

	// unknown items are ignored
	require.NoError(t, r.RefreshItem(&person{9, "zed"}))
	require.NoError(t, r.Reconcile(ctx))
	assert.Empty(t, sink.take())
}

func TestReconciler_SourceEvents(t *testing.T) {
	ctx := context.Background()
	sink := newSink[int]()
	r, changes := newReconciler(t, sink, DefaultConfig())

	src := query.FromSlice(ints(5))
	r.SetDataSource(src)
	require.NoError(t, r.SetViewport(0, 10))
	require.NoError(t, r.Reconcile(ctx))

	src.Add(5, 6)
	require.NoError(t, r.Reconcile(ctx))
	assert.Equal(t, []op{{"set", 0, 5}, {"clear", 0, 5}, {"set", 0, 7}}, sink.take())
	assert.Equal(t, []CountChange{{Count: 5}, {Count: 7}}, *changes)

	// events of a replaced source are no longer observed
	r.SetDataSource(query.FromSlice(ints(7)))
	require.NoError(t, r.Reconcile(ctx))
	sink.take()
	src.Add(7)
	require.NoError(t, r.Reconcile(ctx))
	assert.Empty(t, sink.take())
}

func TestReconciler_CountNotificationToggle(t *testing.T) {
	ctx := context.Background()
	sink := newSink[int]()
	r, changes := newReconciler(t, sink, DefaultConfig())
	r.SetCountNotification(false)

	src := query.FromSlice(ints(5))
	r.SetDataSource(src)
	require.NoError(t, r.SetViewport(0, 10))
	require.NoError(t, r.Reconcile(ctx))
	assert.Empty(t, *changes)

	r.SetCountNotification(true)
	require.NoError(t, r.Reconcile(ctx))
	assert.Equal(t, []CountChange{{Count: 5}}, *changes)
}

func TestReconciler_ResendAll(t *testing.T) {
	ctx := context.Background()
	sink := newSink[int]()
	r, _ := newReconciler(t, sink, DefaultConfig())
	r.SetDataSource(query.FromSlice(ints(20)))
	require.NoError(t, r.SetViewport(0, 5))
	require.NoError(t, r.Reconcile(ctx))
	keys := r.ActiveKeys()
	sink.take()

	r.ResendAll()
	require.NoError(t, r.Reconcile(ctx))
	assert.Equal(t, []op{{"clear", 0, 5}, {"set", 0, 5}}, sink.take())
	assert.Equal(t, keys, r.ActiveKeys())
	assert.Zero(t, r.PendingPassivations())
}

func TestReconciler_PagingRoundsUpButKeepsViewport(t *testing.T) {
	ctx := context.Background()
	sink := newSink[int]()
	cfg := DefaultConfig()
	cfg.PageSize = 10
	r, _ := newReconciler(t, sink, cfg)

	src := &sliceSource{data: ints(100)}
	r.SetDataSource(query.FromCallbacks(src.fetch, src.count))
	require.NoError(t, r.SetViewport(0, 23))
	require.NoError(t, r.Reconcile(ctx))

	assert.Equal(t, 3, src.fetches)
	assert.Equal(t, []op{{"set", 0, 23}}, sink.take())
	assertConsistent(t, r, sink)
}
