package grid

import (
	"context"
	"fmt"
	"strings"
	"time"

	"databinding/core/database"
	"databinding/core/query"
	"databinding/core/session"
	"databinding/core/storage"
	"databinding/core/utils"
)

// Backend creates the per-session grid state over one shared data source.
type Backend interface {
	// Name identifies the backend in logs and responses.
	Name() string
	// Check verifies that the underlying store is reachable.
	Check(ctx context.Context) error
	open(sess *session.Session, o options) (binding, error)
}

// memoryBackend serves rows held in memory.
type memoryBackend struct {
	list    *query.ListSource[database.Row]
	columns map[string]struct{}
}

// NewMemoryBackend serves rows from memory. Column names are lowercased the
// way table rows are. Rows are identified by their id column.
func NewMemoryBackend(rows []database.Row) Backend {
	lowered := make([]database.Row, len(rows))
	for i, r := range rows {
		row := make(database.Row, len(r))
		for col, v := range r {
			row[strings.ToLower(col)] = v
		}
		lowered[i] = row
	}

	b := &memoryBackend{
		list:    query.FromSlice(lowered),
		columns: make(map[string]struct{}),
	}
	for _, r := range lowered {
		for col := range r {
			if _, ok := b.columns[col]; ok {
				continue
			}
			b.columns[col] = struct{}{}
			b.list.SortProperty(col, func(x, y database.Row) int {
				return utils.Compare(x[col], y[col])
			})
		}
	}
	return b
}

func (b *memoryBackend) Name() string { return SourceMemory }

func (b *memoryBackend) Check(context.Context) error { return nil }

func (b *memoryBackend) open(sess *session.Session, o options) (binding, error) {
	return newGrid(sess, query.DataSource[database.Row](b.list), rowIdentity("id"), b.filter, b.sortable, o)
}

func (b *memoryBackend) filter(ws []database.Where) (any, error) {
	if len(ws) == 0 {
		return nil, nil
	}
	for _, w := range ws {
		if _, ok := b.columns[strings.ToLower(w.Column)]; !ok {
			return nil, fmt.Errorf("%w: %s", database.ErrUnknownColumn, w.Column)
		}
		if !validOp(w.Op) {
			return nil, fmt.Errorf("%w: operator %q", database.ErrUnsupportedFilter, w.Op)
		}
	}
	return query.Predicate[database.Row](func(r database.Row) bool {
		for _, w := range ws {
			if !match(r[strings.ToLower(w.Column)], w.Op, w.Value) {
				return false
			}
		}
		return true
	}), nil
}

func (b *memoryBackend) sortable(o query.SortOrder) bool {
	_, ok := b.columns[o.Property]
	return ok
}

// tableBackend serves a SQL table.
type tableBackend struct {
	src *database.TableSource
}

// NewTableBackend serves the rows of a table.
func NewTableBackend(src *database.TableSource) Backend {
	return &tableBackend{src: src}
}

func (b *tableBackend) Name() string { return SourceSQL }

func (b *tableBackend) Check(ctx context.Context) error {
	_, err := b.src.Count(ctx, query.ForCount(query.Params[database.Row]{}))
	return err
}

func (b *tableBackend) open(sess *session.Session, o options) (binding, error) {
	return newGrid(sess, query.DataSource[database.Row](b.src), b.src.Identity, b.filter, b.sortable, o)
}

func (b *tableBackend) filter(ws []database.Where) (any, error) {
	if len(ws) == 0 {
		return nil, nil
	}
	if err := b.src.Validate(ws); err != nil {
		return nil, err
	}
	return ws, nil
}

func (b *tableBackend) sortable(o query.SortOrder) bool {
	return b.src.HasColumn(o.Property)
}

// objectBackend serves an object storage listing.
type objectBackend struct {
	src *storage.ObjectSource
}

// NewObjectBackend serves the objects of a bucket prefix.
func NewObjectBackend(src *storage.ObjectSource) Backend {
	return &objectBackend{src: src}
}

func (b *objectBackend) Name() string { return SourceStorage }

func (b *objectBackend) Check(ctx context.Context) error {
	return b.src.Check(ctx)
}

func (b *objectBackend) open(sess *session.Session, o options) (binding, error) {
	return newGrid(sess, query.DataSource[storage.Object](b.src), b.src.Identity, b.filter, b.sortable, o)
}

// filter narrows the listing itself for a lone key prefix and filters the
// listed objects otherwise.
func (b *objectBackend) filter(ws []database.Where) (any, error) {
	switch {
	case len(ws) == 0:
		return nil, nil
	case len(ws) == 1 && ws[0].Column == "key" && ws[0].Op == "prefix":
		return storage.Prefix(utils.ToString(ws[0].Value)), nil
	}

	for _, w := range ws {
		if _, ok := objectField(storage.Object{}, w.Column); !ok {
			return nil, fmt.Errorf("%w: %s", database.ErrUnknownColumn, w.Column)
		}
		if !validOp(w.Op) {
			return nil, fmt.Errorf("%w: operator %q", database.ErrUnsupportedFilter, w.Op)
		}
	}
	return query.Predicate[storage.Object](func(o storage.Object) bool {
		for _, w := range ws {
			v, _ := objectField(o, w.Column)
			if !match(v, w.Op, w.Value) {
				return false
			}
		}
		return true
	}), nil
}

func (b *objectBackend) sortable(o query.SortOrder) bool {
	return o.Property == "key" && o.Direction == query.Ascending
}

func objectField(o storage.Object, column string) (any, bool) {
	switch strings.ToLower(column) {
	case "key":
		return o.Key, true
	case "size":
		return o.Size, true
	case "etag":
		return o.ETag, true
	case "content_type":
		return o.ContentType, true
	case "last_modified":
		return o.LastModified.Format(time.RFC3339), true
	default:
		return nil, false
	}
}

func rowIdentity(column string) func(database.Row) any {
	return func(r database.Row) any {
		return utils.ToString(r[column])
	}
}
