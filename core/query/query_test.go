package query_test

import (
	"context"
	"iter"
	"slices"
	"strings"
	"testing"

	"databinding/core/query"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuery_Verify(t *testing.T) {
	tests := []struct {
		name   string
		use    func(q *query.Query[int])
		unused []string
	}{
		{"OffsetAndLimit", func(q *query.Query[int]) { q.Offset(); q.Limit() }, nil},
		{"PageAndPageSize", func(q *query.Query[int]) { q.Page(); q.PageSize() }, nil},
		{"Mixed", func(q *query.Query[int]) { q.Page(); q.Limit() }, nil},
		{"OnlyOffset", func(q *query.Query[int]) { q.Offset() }, []string{"limit/pageSize"}},
		{"OnlyLimit", func(q *query.Query[int]) { q.Limit() }, []string{"offset/page"}},
		{"Nothing", func(q *query.Query[int]) {}, []string{"offset/page", "limit/pageSize"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := query.New(20, 10, query.Params[int]{})
			tt.use(q)
			err := q.Verify()
			if tt.unused == nil {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, query.ErrIgnoredParameter)
			assert.ErrorIs(t, err, query.ErrContract)

			var ce *query.ContractError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.unused, ce.Unused)
		})
	}
}

func TestQuery_Page(t *testing.T) {
	q := query.New(20, 10, query.Params[int]{})
	assert.Equal(t, 2, q.Page())
	assert.Equal(t, 10, q.PageSize())
	assert.NoError(t, query.ForCount(query.Params[int]{}).Verify())
}

func TestListSource_FetchWindow(t *testing.T) {
	src := query.FromSlice([]int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10})
	ctx := context.Background()

	seq, err := src.Fetch(ctx, query.New(3, 4, query.Params[int]{}))
	require.NoError(t, err)
	assert.Equal(t, []int{4, 5, 6, 7}, slices.Collect(seq))

	seq, err = src.Fetch(ctx, query.New(8, 5, query.Params[int]{}))
	require.NoError(t, err)
	assert.Equal(t, []int{9, 10}, slices.Collect(seq))

	seq, err = src.Fetch(ctx, query.New(20, 5, query.Params[int]{}))
	require.NoError(t, err)
	assert.Empty(t, slices.Collect(seq))
}

func TestListSource_FilterAndSort(t *testing.T) {
	src := query.FromSlice([]string{"pear", "apple", "fig", "banana", "kiwi"}).
		SortProperty("length", func(a, b string) int { return len(a) - len(b) })
	ctx := context.Background()

	even := query.Predicate[string](func(s string) bool { return len(s)%2 == 0 })
	params := query.Params[string]{
		Filter:     even,
		SortOrders: []query.SortOrder{query.Desc("length")},
		Comparator: strings.Compare,
	}

	q := query.New(0, 10, params)
	seq, err := src.Fetch(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, []string{"banana", "kiwi", "pear"}, slices.Collect(seq))
	assert.NoError(t, q.Verify())

	n, err := src.Count(ctx, query.ForCount(params))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	// Plain funcs are accepted as filters too
	n, err = src.Count(ctx, query.ForCount(query.Params[string]{Filter: func(s string) bool { return s == "fig" }}))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestListSource_Errors(t *testing.T) {
	src := query.FromSlice([]int{1})
	ctx := context.Background()

	_, err := src.Fetch(ctx, query.New(0, 1, query.Params[int]{SortOrders: []query.SortOrder{query.Asc("missing")}}))
	assert.ErrorContains(t, err, "unknown sort property")

	_, err = src.Count(ctx, query.ForCount(query.Params[int]{Filter: "not a predicate"}))
	assert.ErrorContains(t, err, "cannot apply filter")
}

func TestListSource_Mutations(t *testing.T) {
	src := query.FromSlice([]int{1, 2, 3})

	var events []query.EventType
	remove := src.AddListener(func(e query.Event[int]) { events = append(events, e.Type) })

	src.Add(4)
	assert.Equal(t, 2, src.Remove(func(i int) bool { return i%2 == 0 }))
	assert.Equal(t, 0, src.Remove(func(i int) bool { return i > 100 }))
	src.RefreshItem(1)
	assert.Equal(t, []int{1, 3}, src.Items())

	remove()
	src.Replace([]int{9})
	assert.Equal(t, []int{9}, src.Items())

	assert.Equal(t, []query.EventType{query.EventRefreshAll, query.EventRefreshAll, query.EventRefreshItem}, events)
}

func TestCallbackSource(t *testing.T) {
	fetch := func(ctx context.Context, q *query.Query[int]) (iter.Seq[int], error) {
		out := make([]int, 0, q.Limit())
		for i := q.Offset(); i < q.Offset()+q.Limit(); i++ {
			out = append(out, i)
		}
		return slices.Values(out), nil
	}

	src := query.FromCallbacks(fetch, nil)
	assert.False(t, src.CanCount())
	assert.False(t, query.CanCount[int](src))
	_, err := src.Count(context.Background(), query.ForCount(query.Params[int]{}))
	assert.ErrorIs(t, err, query.ErrCountUnsupported)

	counted := src.WithCount(func(context.Context, *query.Query[int]) (int, error) { return 42, nil })
	assert.True(t, counted.CanCount())
	n, err := counted.Count(context.Background(), query.ForCount(query.Params[int]{}))
	require.NoError(t, err)
	assert.Equal(t, 42, n)

	seq, err := counted.Fetch(context.Background(), query.New(5, 3, query.Params[int]{}))
	require.NoError(t, err)
	assert.Equal(t, []int{5, 6, 7}, slices.Collect(seq))
}

func TestEmptySource(t *testing.T) {
	src := query.Empty[string]()
	assert.True(t, query.IsEmpty(src))
	assert.False(t, query.IsEmpty[string](query.FromSlice([]string{})))

	q := query.New(0, 10, query.Params[string]{})
	seq, err := src.Fetch(context.Background(), q)
	require.NoError(t, err)
	assert.Empty(t, slices.Collect(seq))
	assert.NoError(t, q.Verify())
}

func TestFromChannel(t *testing.T) {
	ch := make(chan int)
	go func() {
		defer close(ch)
		for i := range 5 {
			ch <- i
		}
	}()

	assert.Equal(t, []int{0, 1, 2, 3, 4}, slices.Collect(query.FromChannel(ch)))
}
