package query

import (
	"context"
	"fmt"
	"iter"
	"slices"
	"sync"
)

// Predicate is the filter type understood by ListSource.
type Predicate[T any] func(item T) bool

// And combines predicates so that all of them must match. Nil predicates are
// skipped.
func And[T any](preds ...Predicate[T]) Predicate[T] {
	return func(item T) bool {
		for _, p := range preds {
			if p != nil && !p(item) {
				return false
			}
		}
		return true
	}
}

// ListSource is an in-memory collection.
//
// Query filters must be a Predicate[T] (or a func(T) bool). Backend sort
// orders are resolved through properties registered with SortProperty; the
// in-memory comparator, when set, is applied after them.
type ListSource[T any] struct {
	listeners[T]

	mu         sync.RWMutex
	items      []T
	properties map[string]Comparator[T]
}

// FromSlice creates a source over a copy of items.
func FromSlice[T any](items []T) *ListSource[T] {
	return &ListSource[T]{
		items:      slices.Clone(items),
		properties: make(map[string]Comparator[T]),
	}
}

// SortProperty registers cmp as the ordering of the named property.
func (s *ListSource[T]) SortProperty(name string, cmp Comparator[T]) *ListSource[T] {
	s.mu.Lock()
	s.properties[name] = cmp
	s.mu.Unlock()
	return s
}

// Items returns a copy of the backing collection.
func (s *ListSource[T]) Items() []T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.items)
}

// Fetch filters, sorts and windows the collection.
func (s *ListSource[T]) Fetch(_ context.Context, q *Query[T]) (iter.Seq[T], error) {
	matched, err := s.matching(q)
	if err != nil {
		return nil, err
	}

	offset := q.Offset()
	limit := q.Limit()
	if offset >= len(matched) {
		return slices.Values([]T(nil)), nil
	}
	end := len(matched)
	if limit >= 0 && offset+limit < end {
		end = offset + limit
	}
	return slices.Values(matched[offset:end]), nil
}

// Count returns the number of items accepted by the filter.
func (s *ListSource[T]) Count(_ context.Context, q *Query[T]) (int, error) {
	predicate, err := predicateOf[T](q.Filter())
	if err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if predicate == nil {
		return len(s.items), nil
	}
	n := 0
	for _, item := range s.items {
		if predicate(item) {
			n++
		}
	}
	return n, nil
}

// Add appends items and notifies listeners.
func (s *ListSource[T]) Add(items ...T) {
	s.mu.Lock()
	s.items = append(s.items, items...)
	s.mu.Unlock()
	s.RefreshAll()
}

// Remove deletes every item for which match returns true and notifies
// listeners. It returns the number of removed items.
func (s *ListSource[T]) Remove(match func(T) bool) int {
	s.mu.Lock()
	before := len(s.items)
	s.items = slices.DeleteFunc(s.items, match)
	removed := before - len(s.items)
	s.mu.Unlock()

	if removed > 0 {
		s.RefreshAll()
	}
	return removed
}

// Replace swaps the whole collection and notifies listeners.
func (s *ListSource[T]) Replace(items []T) {
	s.mu.Lock()
	s.items = slices.Clone(items)
	s.mu.Unlock()
	s.RefreshAll()
}

// RefreshAll notifies listeners that any item may have changed.
func (s *ListSource[T]) RefreshAll() {
	s.fire(Event[T]{Type: EventRefreshAll})
}

// RefreshItem notifies listeners that item changed in place.
func (s *ListSource[T]) RefreshItem(item T) {
	s.fire(Event[T]{Type: EventRefreshItem, Item: item})
}

func (s *ListSource[T]) matching(q *Query[T]) ([]T, error) {
	predicate, err := predicateOf[T](q.Filter())
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	matched := make([]T, 0, len(s.items))
	for _, item := range s.items {
		if predicate == nil || predicate(item) {
			matched = append(matched, item)
		}
	}
	var cmps []Comparator[T]
	for _, order := range q.SortOrders() {
		cmp, ok := s.properties[order.Property]
		if !ok {
			s.mu.RUnlock()
			return nil, fmt.Errorf("unknown sort property %q", order.Property)
		}
		if order.Direction == Descending {
			asc := cmp
			cmp = func(a, b T) int { return asc(b, a) }
		}
		cmps = append(cmps, cmp)
	}
	s.mu.RUnlock()

	if c := q.Comparator(); c != nil {
		cmps = append(cmps, c)
	}
	if len(cmps) > 0 {
		slices.SortStableFunc(matched, func(a, b T) int {
			for _, cmp := range cmps {
				if r := cmp(a, b); r != 0 {
					return r
				}
			}
			return 0
		})
	}
	return matched, nil
}

func predicateOf[T any](filter any) (Predicate[T], error) {
	switch f := filter.(type) {
	case nil:
		return nil, nil
	case Predicate[T]:
		return f, nil
	case func(T) bool:
		return f, nil
	default:
		return nil, fmt.Errorf("list source cannot apply filter of type %T", filter)
	}
}
