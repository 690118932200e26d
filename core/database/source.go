package database

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"

	"databinding/core/query"
	"databinding/core/utils"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrNoTable is returned when the table has no columns.
	ErrNoTable = errors.New("table not found")
	// ErrUnknownColumn is returned for filters and sort orders on columns the
	// table does not have.
	ErrUnknownColumn = errors.New("unknown column")
	// ErrUnsupportedFilter is returned for filters other than Where values.
	ErrUnsupportedFilter = errors.New("unsupported filter")
)

// Row is one table row keyed by lowercase column name.
type Row map[string]any

// Where is a filter on a single column. Op is one of =, !=, <, <=, >, >=,
// like.
type Where struct {
	Column string `json:"column"`
	Op     string `json:"op"`
	Value  any    `json:"value"`
}

// TableSource serves the rows of one table. Filters are Where values (or a
// slice of them, combined with AND); sort orders name columns. Rows are
// always ordered by the primary key last so paging is stable.
type TableSource struct {
	*query.CallbackSource[Row]

	db      *gorm.DB
	table   string
	columns map[string]ColumnInfo
	primary string
}

// NewTableSource inspects table and returns a source over it.
func NewTableSource(db *gorm.DB, table string) (*TableSource, error) {
	cols, err := GetTableColumns(db, table)
	if err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoTable, table)
	}

	s := &TableSource{
		db:      db,
		table:   table,
		columns: make(map[string]ColumnInfo, len(cols)),
	}
	for _, c := range cols {
		s.columns[c.Field] = c
		if s.primary == "" && c.IsPrimary() {
			s.primary = c.Field
		}
	}
	if s.primary == "" {
		s.primary = cols[0].Field
	}
	s.CallbackSource = query.FromCallbacks(s.fetch, s.count)
	return s, nil
}

// Table returns the table name.
func (s *TableSource) Table() string {
	return s.table
}

// PrimaryKey returns the column identifying rows.
func (s *TableSource) PrimaryKey() string {
	return s.primary
}

// HasColumn reports whether the table has the named column.
func (s *TableSource) HasColumn(name string) bool {
	_, ok := s.columns[strings.ToLower(name)]
	return ok
}

// Validate reports the first filter the table cannot serve.
func (s *TableSource) Validate(wheres []Where) error {
	for _, w := range wheres {
		if _, err := s.expression(w); err != nil {
			return err
		}
	}
	return nil
}

// Identity returns the primary key of r. It is meant for
// reconcile.Reconciler.SetIdentityFunc.
func (s *TableSource) Identity(r Row) any {
	return utils.ToString(r[s.primary])
}

func (s *TableSource) fetch(ctx context.Context, q *query.Query[Row]) (iter.Seq[Row], error) {
	tx, err := s.scope(ctx, q.Filter())
	if err != nil {
		return nil, err
	}
	if tx, err = s.order(tx, q.SortOrders()); err != nil {
		return nil, err
	}

	var rows []map[string]any
	if err := tx.Offset(q.Offset()).Limit(q.Limit()).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("fetch %s: %w", s.table, err)
	}

	return func(yield func(Row) bool) {
		for _, r := range rows {
			if !yield(normalize(r)) {
				return
			}
		}
	}, nil
}

func (s *TableSource) count(ctx context.Context, q *query.Query[Row]) (int, error) {
	tx, err := s.scope(ctx, q.Filter())
	if err != nil {
		return 0, err
	}
	var n int64
	if err := tx.Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count %s: %w", s.table, err)
	}
	return int(n), nil
}

func (s *TableSource) scope(ctx context.Context, filter any) (*gorm.DB, error) {
	tx := s.db.WithContext(ctx).Table(s.table)

	var wheres []Where
	switch f := filter.(type) {
	case nil:
	case Where:
		wheres = []Where{f}
	case []Where:
		wheres = f
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedFilter, filter)
	}

	for _, w := range wheres {
		expr, err := s.expression(w)
		if err != nil {
			return nil, err
		}
		tx = tx.Where(expr)
	}
	return tx, nil
}

func (s *TableSource) expression(w Where) (clause.Expression, error) {
	name := strings.ToLower(w.Column)
	if _, ok := s.columns[name]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownColumn, w.Column)
	}
	col := clause.Column{Name: name}

	switch strings.ToLower(w.Op) {
	case "=", "":
		return clause.Eq{Column: col, Value: w.Value}, nil
	case "!=":
		return clause.Neq{Column: col, Value: w.Value}, nil
	case "<":
		return clause.Lt{Column: col, Value: w.Value}, nil
	case "<=":
		return clause.Lte{Column: col, Value: w.Value}, nil
	case ">":
		return clause.Gt{Column: col, Value: w.Value}, nil
	case ">=":
		return clause.Gte{Column: col, Value: w.Value}, nil
	case "like":
		return clause.Like{Column: col, Value: w.Value}, nil
	default:
		return nil, fmt.Errorf("%w: operator %q", ErrUnsupportedFilter, w.Op)
	}
}

func (s *TableSource) order(tx *gorm.DB, orders []query.SortOrder) (*gorm.DB, error) {
	primarySorted := false
	for _, o := range orders {
		name := strings.ToLower(o.Property)
		if _, ok := s.columns[name]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownColumn, o.Property)
		}
		primarySorted = primarySorted || name == s.primary
		tx = tx.Order(clause.OrderByColumn{
			Column: clause.Column{Name: name},
			Desc:   o.Direction == query.Descending,
		})
	}
	if !primarySorted {
		tx = tx.Order(clause.OrderByColumn{Column: clause.Column{Name: s.primary}})
	}
	return tx, nil
}

func normalize(r map[string]any) Row {
	row := make(Row, len(r))
	for k, v := range r {
		if b, ok := v.([]byte); ok {
			v = string(b)
		}
		row[strings.ToLower(k)] = v
	}
	return row
}
