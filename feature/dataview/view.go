package dataview

import (
	"context"
	"errors"
	"iter"
	"slices"

	"databinding/core/pager"
	"databinding/core/query"
	"databinding/core/reconcile"
)

// ErrNotInMemory is returned by mutators of views over lazy sources.
var ErrNotInMemory = errors.New("view is not backed by an in-memory list")

// View configures filtering and sorting of a reconciler's source with typed
// predicates and comparators.
type View[T any] struct {
	r    *reconcile.Reconciler[T]
	list *query.ListSource[T]

	filters     []query.Predicate[T]
	comparators []query.Comparator[T]
	orders      []query.SortOrder
}

// NewList binds r to an in-memory copy of items.
func NewList[T any](r *reconcile.Reconciler[T], items []T) *View[T] {
	list := query.FromSlice(items)
	r.SetDataSource(list)
	return &View[T]{r: r, list: list}
}

// NewLazy binds r to src. Filters are only understood by sources accepting
// a query.Predicate.
func NewLazy[T any](r *reconcile.Reconciler[T], src query.DataSource[T]) *View[T] {
	r.SetDataSource(src)
	return &View[T]{r: r}
}

// Reconciler returns the bound reconciler.
func (v *View[T]) Reconciler() *reconcile.Reconciler[T] {
	return v.r
}

// SetFilter replaces all filters with p. A nil p removes filtering.
func (v *View[T]) SetFilter(p query.Predicate[T]) {
	v.filters = v.filters[:0]
	if p != nil {
		v.filters = append(v.filters, p)
	}
	v.applyFilter()
}

// AddFilter adds p to the filters. Items must match all of them.
func (v *View[T]) AddFilter(p query.Predicate[T]) {
	v.filters = append(v.filters, p)
	v.applyFilter()
}

// RemoveFilters removes every filter.
func (v *View[T]) RemoveFilters() {
	v.SetFilter(nil)
}

// SetSortComparator replaces the in-memory ordering. A nil cmp restores the
// source order.
func (v *View[T]) SetSortComparator(cmp query.Comparator[T]) {
	v.comparators = v.comparators[:0]
	if cmp != nil {
		v.comparators = append(v.comparators, cmp)
	}
	v.applyComparator()
}

// AddSortComparator adds cmp as a tie breaker of the current ordering.
func (v *View[T]) AddSortComparator(cmp query.Comparator[T]) {
	v.comparators = append(v.comparators, cmp)
	v.applyComparator()
}

// SetSortOrders sets the backend sort orders.
func (v *View[T]) SetSortOrders(orders ...query.SortOrder) {
	v.orders = slices.Clone(orders)
	v.r.SetSortOrders(orders...)
}

// ItemCount returns the number of items passing the filters.
func (v *View[T]) ItemCount(ctx context.Context) (int, error) {
	return v.r.Count(ctx)
}

// Items returns every item passing the filters, in view order.
func (v *View[T]) Items(ctx context.Context) (iter.Seq[T], error) {
	n, err := v.ItemCount(ctx)
	if err != nil {
		return nil, err
	}
	items, err := pager.Fetch(ctx, v.r.Pager(), v.r.DataSource(), v.params(), 0, n)
	if err != nil {
		return nil, err
	}
	return slices.Values(items[:min(n, len(items))]), nil
}

// Item returns the item at index in view order.
func (v *View[T]) Item(ctx context.Context, index int) (T, error) {
	return v.r.Item(ctx, index)
}

// AddItem appends items to an in-memory view.
func (v *View[T]) AddItem(items ...T) error {
	if v.list == nil {
		return ErrNotInMemory
	}
	v.list.Add(items...)
	return nil
}

// RemoveItem removes the items with the same identity as item.
func (v *View[T]) RemoveItem(item T) (bool, error) {
	if v.list == nil {
		return false, ErrNotInMemory
	}
	mapper := v.r.Mapper()
	id := mapper.IdentityOf(item)
	removed := v.list.Remove(func(x T) bool { return mapper.IdentityOf(x) == id })
	return removed > 0, nil
}

// RefreshItem resends item if it is displayed.
func (v *View[T]) RefreshItem(item T) error {
	return v.r.RefreshItem(item)
}

// RefreshAll reloads everything from the source.
func (v *View[T]) RefreshAll() {
	if v.list != nil {
		v.list.RefreshAll()
		return
	}
	v.r.Reset()
}

// AddItemCountChangeListener registers fn for size changes and returns a
// function removing it.
func (v *View[T]) AddItemCountChangeListener(fn reconcile.CountListener) func() {
	return v.r.AddCountListener(fn)
}

func (v *View[T]) applyFilter() {
	if len(v.filters) == 0 {
		v.r.SetFilter(nil)
		return
	}
	v.r.SetFilter(query.And(slices.Clone(v.filters)...))
}

func (v *View[T]) applyComparator() {
	v.r.SetComparator(v.comparator())
}

func (v *View[T]) comparator() query.Comparator[T] {
	if len(v.comparators) == 0 {
		return nil
	}
	chain := slices.Clone(v.comparators)
	return func(a, b T) int {
		for _, cmp := range chain {
			if c := cmp(a, b); c != 0 {
				return c
			}
		}
		return 0
	}
}

func (v *View[T]) params() query.Params[T] {
	return query.Params[T]{
		SortOrders: v.orders,
		Comparator: v.comparator(),
		Filter:     v.r.Filter(),
	}
}
