package query

import (
	"errors"
	"fmt"
	"strings"
)

// ErrContract is the root of all backend contract violations.
var ErrContract = errors.New("data source contract violation")

var (
	// ErrTooManyItems is reported when a backend returns more items than the
	// query limit allowed.
	ErrTooManyItems = fmt.Errorf("%w: more items than requested", ErrContract)
	// ErrIgnoredParameter is reported when a backend completes a query without
	// reading its offset or limit.
	ErrIgnoredParameter = fmt.Errorf("%w: query parameter not used", ErrContract)
)

// ContractError describes a backend that did not honor a query.
type ContractError struct {
	// Err is ErrTooManyItems or ErrIgnoredParameter.
	Err error
	// Offset and Limit identify the offending query.
	Offset int
	Limit  int
	// Returned is the number of items consumed before the violation was detected.
	Returned int
	// Unused lists the accessors the backend never called.
	Unused []string
}

// Error implements the error interface.
func (e *ContractError) Error() string {
	if len(e.Unused) > 0 {
		return fmt.Sprintf("%v (offset=%d, limit=%d, unused=%s)", e.Err, e.Offset, e.Limit, strings.Join(e.Unused, ","))
	}
	return fmt.Sprintf("%v (offset=%d, limit=%d, returned=%d)", e.Err, e.Offset, e.Limit, e.Returned)
}

// Unwrap returns the underlying sentinel.
func (e *ContractError) Unwrap() error {
	return e.Err
}

// Direction is the ordering direction of a SortOrder.
type Direction int

const (
	// Ascending sorts from the smallest value to the largest.
	Ascending Direction = iota
	// Descending sorts from the largest value to the smallest.
	Descending
)

// String returns "asc" or "desc".
func (d Direction) String() string {
	if d == Descending {
		return "desc"
	}
	return "asc"
}

// SortOrder names a property to sort by in the backend.
type SortOrder struct {
	Property  string
	Direction Direction
}

// Asc is shorthand for an ascending SortOrder.
func Asc(property string) SortOrder {
	return SortOrder{Property: property, Direction: Ascending}
}

// Desc is shorthand for a descending SortOrder.
func Desc(property string) SortOrder {
	return SortOrder{Property: property, Direction: Descending}
}

// Comparator orders two items in memory. It returns a negative number when a
// sorts before b, zero when they are equal and a positive number otherwise.
type Comparator[T any] func(a, b T) int

// Params are the query settings shared by every page of a fetch.
type Params[T any] struct {
	SortOrders []SortOrder
	Comparator Comparator[T]
	Filter     any
}

// Query is a single request handed to a DataSource.
type Query[T any] struct {
	offset int
	limit  int
	params Params[T]

	offsetUsed bool
	limitUsed  bool
}

// New creates a query for the window [offset, offset+limit).
func New[T any](offset, limit int, params Params[T]) *Query[T] {
	return &Query[T]{offset: offset, limit: limit, params: params}
}

// ForCount creates a query used only for counting. Its window is not traced.
func ForCount[T any](params Params[T]) *Query[T] {
	return &Query[T]{limit: -1, params: params, offsetUsed: true, limitUsed: true}
}

// Offset returns the index of the first requested item.
func (q *Query[T]) Offset() int {
	q.offsetUsed = true
	return q.offset
}

// Limit returns the maximum number of items to return.
func (q *Query[T]) Limit() int {
	q.limitUsed = true
	return q.limit
}

// Page returns the page index for backends that address data by page. It is
// only exact when the offset is a multiple of the limit.
func (q *Query[T]) Page() int {
	q.offsetUsed = true
	if q.limit <= 0 {
		return 0
	}
	return q.offset / q.limit
}

// PageSize returns the page size for backends that address data by page.
func (q *Query[T]) PageSize() int {
	q.limitUsed = true
	return q.limit
}

// Window returns the offset and limit without recording their use. It is
// meant for the engine's own bookkeeping, never for backends.
func (q *Query[T]) Window() (offset, limit int) {
	return q.offset, q.limit
}

// SortOrders returns the backend sort orders.
func (q *Query[T]) SortOrders() []SortOrder {
	return q.params.SortOrders
}

// Comparator returns the in-memory comparator, or nil.
func (q *Query[T]) Comparator() Comparator[T] {
	return q.params.Comparator
}

// Filter returns the opaque filter, or nil.
func (q *Query[T]) Filter() any {
	return q.params.Filter
}

// Params returns the shared settings of the query.
func (q *Query[T]) Params() Params[T] {
	return q.params
}

// Verify reports whether the backend read both the offset and the limit.
func (q *Query[T]) Verify() error {
	var unused []string
	if !q.offsetUsed {
		unused = append(unused, "offset/page")
	}
	if !q.limitUsed {
		unused = append(unused, "limit/pageSize")
	}
	if len(unused) == 0 {
		return nil
	}
	return &ContractError{
		Err:    ErrIgnoredParameter,
		Offset: q.offset,
		Limit:  q.limit,
		Unused: unused,
	}
}
