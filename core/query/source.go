package query

import (
	"context"
	"errors"
	"iter"
	"sync"
)

// ErrCountUnsupported is returned by Count on sources that cannot count.
var ErrCountUnsupported = errors.New("data source cannot count items")

// DataSource provides items for the reconciliation engine.
type DataSource[T any] interface {
	// Fetch returns the items of the query window in order. Implementations
	// must read the query offset and limit (or page and page size).
	Fetch(ctx context.Context, q *Query[T]) (iter.Seq[T], error)

	// Count returns the number of items matching the query filter.
	Count(ctx context.Context, q *Query[T]) (int, error)
}

// Counter is implemented by sources that know whether Count is available.
type Counter interface {
	CanCount() bool
}

// CanCount reports whether src supports exact counting. Sources that do not
// implement Counter are assumed to count.
func CanCount[T any](src DataSource[T]) bool {
	if c, ok := src.(Counter); ok {
		return c.CanCount()
	}
	return true
}

// EventType distinguishes data change events.
type EventType int

const (
	// EventRefreshAll signals that any item may have changed.
	EventRefreshAll EventType = iota + 1
	// EventRefreshItem signals that a single item changed in place.
	EventRefreshItem
)

// Event describes a change in a data source.
type Event[T any] struct {
	Type EventType
	// Item is set for EventRefreshItem.
	Item T
}

// Listener receives data change events.
type Listener[T any] func(Event[T])

// Notifier is implemented by sources that publish change events.
type Notifier[T any] interface {
	// AddListener registers l and returns a function that removes it.
	AddListener(l Listener[T]) (remove func())
}

// listeners is an embeddable listener registry.
type listeners[T any] struct {
	mu   sync.Mutex
	next int
	set  map[int]Listener[T]
}

func (l *listeners[T]) AddListener(fn Listener[T]) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.set == nil {
		l.set = make(map[int]Listener[T])
	}
	id := l.next
	l.next++
	l.set[id] = fn
	return func() {
		l.mu.Lock()
		delete(l.set, id)
		l.mu.Unlock()
	}
}

func (l *listeners[T]) fire(e Event[T]) {
	l.mu.Lock()
	snapshot := make([]Listener[T], 0, len(l.set))
	for _, fn := range l.set {
		snapshot = append(snapshot, fn)
	}
	l.mu.Unlock()

	for _, fn := range snapshot {
		fn(e)
	}
}

// emptySource is the sentinel used before a source is configured.
type emptySource[T any] struct{}

// Empty returns a source with no items.
func Empty[T any]() DataSource[T] {
	return emptySource[T]{}
}

// IsEmpty reports whether src is the sentinel returned by Empty.
func IsEmpty[T any](src DataSource[T]) bool {
	_, ok := src.(emptySource[T])
	return ok
}

func (emptySource[T]) Fetch(_ context.Context, q *Query[T]) (iter.Seq[T], error) {
	q.Offset()
	q.Limit()
	return func(func(T) bool) {}, nil
}

func (emptySource[T]) Count(context.Context, *Query[T]) (int, error) {
	return 0, nil
}

// FetchFunc loads the items of a query window.
type FetchFunc[T any] func(ctx context.Context, q *Query[T]) (iter.Seq[T], error)

// CountFunc counts the items matching a query filter.
type CountFunc[T any] func(ctx context.Context, q *Query[T]) (int, error)

// CallbackSource is a lazy backend defined by callbacks.
type CallbackSource[T any] struct {
	listeners[T]
	fetch FetchFunc[T]
	count CountFunc[T]
}

// FromCallbacks creates a callback-backed source. count may be nil, in which
// case only estimated sizing is possible.
func FromCallbacks[T any](fetch FetchFunc[T], count CountFunc[T]) *CallbackSource[T] {
	return &CallbackSource[T]{fetch: fetch, count: count}
}

// Fetch delegates to the fetch callback.
func (s *CallbackSource[T]) Fetch(ctx context.Context, q *Query[T]) (iter.Seq[T], error) {
	return s.fetch(ctx, q)
}

// Count delegates to the count callback.
func (s *CallbackSource[T]) Count(ctx context.Context, q *Query[T]) (int, error) {
	if s.count == nil {
		return 0, ErrCountUnsupported
	}
	return s.count(ctx, q)
}

// CanCount reports whether a count callback is configured.
func (s *CallbackSource[T]) CanCount() bool {
	return s.count != nil
}

// WithCount returns a copy of the source using count as its count callback.
func (s *CallbackSource[T]) WithCount(count CountFunc[T]) *CallbackSource[T] {
	return &CallbackSource[T]{fetch: s.fetch, count: count}
}

// RefreshAll notifies listeners that any item may have changed.
func (s *CallbackSource[T]) RefreshAll() {
	s.fire(Event[T]{Type: EventRefreshAll})
}

// RefreshItem notifies listeners that item changed in place.
func (s *CallbackSource[T]) RefreshItem(item T) {
	s.fire(Event[T]{Type: EventRefreshItem, Item: item})
}

// FromChannel adapts a channel filled by another goroutine to a sequential
// iterator. Stopping the iteration early leaves draining to the producer, which
// is expected to watch its context.
func FromChannel[T any](ch <-chan T) iter.Seq[T] {
	return func(yield func(T) bool) {
		for item := range ch {
			if !yield(item) {
				return
			}
		}
	}
}
