package storage

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"slices"
	"strings"
	"time"

	"databinding/core/query"

	"github.com/minio/minio-go/v7"
)

var (
	// ErrUnsupportedSort is returned for sort orders other than ascending key.
	ErrUnsupportedSort = errors.New("objects can only be sorted by ascending key")
	// ErrUnsupportedFilter is returned for filters that are neither a Prefix
	// nor a predicate.
	ErrUnsupportedFilter = errors.New("unsupported object filter")
)

// Object is the listing entry of a stored object.
type Object struct {
	Key          string    `json:"key" cbor:"key"`
	Size         int64     `json:"size" cbor:"size"`
	ETag         string    `json:"etag" cbor:"etag"`
	ContentType  string    `json:"content_type,omitempty" cbor:"content_type,omitempty"`
	LastModified time.Time `json:"last_modified" cbor:"last_modified"`
}

// Prefix narrows a listing to keys below the source prefix plus this value.
type Prefix string

// ObjectSource serves the objects of a bucket below a prefix. Filters are a
// Prefix, a query.Predicate[Object] or a func(Object) bool. Object stores
// cannot skip, so every fetch lists from the start of the prefix and stops
// once the window is filled.
type ObjectSource struct {
	*query.CallbackSource[Object]

	client Client
	bucket string
	prefix string
}

// NewObjectSource creates a source over bucket/prefix.
func NewObjectSource(client Client, bucket, prefix string) *ObjectSource {
	s := &ObjectSource{client: client, bucket: bucket, prefix: prefix}
	s.CallbackSource = query.FromCallbacks(s.fetch, s.count)
	return s
}

// Identity returns the object key. ETag and size change with the content,
// the key does not.
func (s *ObjectSource) Identity(o Object) any {
	return o.Key
}

// Check verifies that the bucket is reachable.
func (s *ObjectSource) Check(ctx context.Context) error {
	ok, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if !ok {
		return fmt.Errorf("bucket %s does not exist", s.bucket)
	}
	return nil
}

func (s *ObjectSource) fetch(ctx context.Context, q *query.Query[Object]) (iter.Seq[Object], error) {
	for _, o := range q.SortOrders() {
		if o.Property != "key" || o.Direction != query.Ascending {
			return nil, fmt.Errorf("%w: %s %s", ErrUnsupportedSort, o.Property, o.Direction)
		}
	}

	offset, limit := q.Offset(), q.Limit()
	if limit <= 0 {
		return slices.Values([]Object(nil)), nil
	}
	objects := make([]Object, 0, limit)
	skipped := 0
	err := s.list(ctx, q.Filter(), func(o Object) bool {
		if skipped < offset {
			skipped++
			return true
		}
		objects = append(objects, o)
		return len(objects) < limit
	})
	if err != nil {
		return nil, err
	}
	return slices.Values(objects), nil
}

func (s *ObjectSource) count(ctx context.Context, q *query.Query[Object]) (int, error) {
	n := 0
	err := s.list(ctx, q.Filter(), func(Object) bool {
		n++
		return true
	})
	return n, err
}

// list walks the matching objects in key order until visit returns false.
func (s *ObjectSource) list(ctx context.Context, filter any, visit func(Object) bool) error {
	prefix := s.prefix
	var match func(Object) bool

	switch f := filter.(type) {
	case nil:
	case Prefix:
		prefix += string(f)
	case query.Predicate[Object]:
		match = f
	case func(Object) bool:
		match = f
	default:
		return fmt.Errorf("%w: %T", ErrUnsupportedFilter, filter)
	}

	// cancelling stops the listing goroutine of the client
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	for info := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if info.Err != nil {
			return fmt.Errorf("list %s/%s: %w", s.bucket, prefix, info.Err)
		}
		if strings.HasSuffix(info.Key, "/") {
			continue
		}
		o := Object{
			Key:          info.Key,
			Size:         info.Size,
			ETag:         info.ETag,
			ContentType:  info.ContentType,
			LastModified: info.LastModified,
		}
		if match != nil && !match(o) {
			continue
		}
		if !visit(o) {
			return nil
		}
	}
	return ctx.Err()
}
