package pager

import (
	"context"
	"errors"
	"fmt"

	"databinding/core/query"
)

// DefaultPageSize is the page size used when none is configured.
const DefaultPageSize = 50

// ErrInvalidPageSize is returned for page sizes below one.
var ErrInvalidPageSize = errors.New("page size must be at least 1")

// Observer is notified about every backend query the pager issues.
type Observer interface {
	ObserveQuery(offset, limit, returned int)
}

// Pager fetches windows from a data source page by page.
type Pager struct {
	pageSize int
	enabled  bool
	observer Observer
}

// New creates a pager. It returns ErrInvalidPageSize if pageSize < 1.
func New(pageSize int, enabled bool) (*Pager, error) {
	if pageSize < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPageSize, pageSize)
	}
	return &Pager{pageSize: pageSize, enabled: enabled}, nil
}

// WithObserver returns a copy of the pager reporting to o.
func (p *Pager) WithObserver(o Observer) *Pager {
	cp := *p
	cp.observer = o
	return &cp
}

// PageSize returns the configured page size.
func (p *Pager) PageSize() int {
	return p.pageSize
}

// Enabled reports whether paging is enabled.
func (p *Pager) Enabled() bool {
	return p.enabled
}

// Fetch returns up to the requested items of [offset, offset+limit). With
// paging enabled the result is rounded up to whole pages, so it may hold more
// than limit items.
func Fetch[T any](ctx context.Context, p *Pager, src query.DataSource[T], params query.Params[T], offset, limit int) ([]T, error) {
	if limit <= 0 {
		return nil, nil
	}

	if !p.enabled || limit <= p.pageSize {
		return run(ctx, p, src, query.New(offset, limit, params), nil)
	}

	pages := (limit + p.pageSize - 1) / p.pageSize
	maxItems := pages * p.pageSize
	result := make([]T, 0, maxItems)

	for page := 0; page < pages; page++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		before := len(result)
		q := query.New(offset+page*p.pageSize, p.pageSize, params)
		items, err := run(ctx, p, src, q, result)
		if err != nil {
			return nil, err
		}
		result = items

		if len(result) > maxItems {
			return nil, &query.ContractError{
				Err:      query.ErrTooManyItems,
				Offset:   offset,
				Limit:    maxItems,
				Returned: len(result),
			}
		}
		if len(result)-before < p.pageSize {
			// short page, backend is exhausted
			break
		}
	}

	return result, nil
}

// FetchOne returns the item at index, or false if the backend has none.
func FetchOne[T any](ctx context.Context, p *Pager, src query.DataSource[T], params query.Params[T], index int) (T, bool, error) {
	var zero T
	items, err := run(ctx, p, src, query.New(index, 1, params), nil)
	if err != nil {
		return zero, false, err
	}
	if len(items) == 0 {
		return zero, false, nil
	}
	return items[0], true, nil
}

// run executes a single query and appends its items to dst.
func run[T any](ctx context.Context, p *Pager, src query.DataSource[T], q *query.Query[T], dst []T) ([]T, error) {
	offset, limit := q.Window()

	seq, err := src.Fetch(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("fetch offset=%d limit=%d: %w", offset, limit, err)
	}

	returned := 0
	var overflow bool
	if seq != nil {
		for item := range seq {
			if returned == limit {
				overflow = true
				break
			}
			dst = append(dst, item)
			returned++
		}
	}

	if err := q.Verify(); err != nil {
		return nil, err
	}
	if overflow {
		return nil, &query.ContractError{
			Err:      query.ErrTooManyItems,
			Offset:   offset,
			Limit:    limit,
			Returned: returned + 1,
		}
	}
	if p.observer != nil {
		p.observer.ObserveQuery(offset, limit, returned)
	}
	return dst, nil
}
