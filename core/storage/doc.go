// Package storage exposes object storage listings as a data source.
//
// It wraps the MinIO Go client, which serves both AWS S3 and self-hosted
// MinIO. The Client interface is the subset the source needs, so tests use
// the testify mock in core/storage/mocks.
//
// # ObjectSource
//
// ObjectSource turns the objects below a bucket prefix into rows. Listings
// come back in key order and cannot skip, so a fetch walks the prefix from the
// start and stops once the requested window is filled; Count walks it fully.
// Large buckets are best bound in estimate mode.
//
// # Usage
//
//	client, err := storage.NewClient(cfg.Storage)
//	src := storage.NewObjectSource(client, cfg.Storage.Bucket, "exports/")
//	if err := src.Check(ctx); err != nil { ... }
//	r.SetIdentityFunc(src.Identity)
//	r.SetDataSource(src)
package storage
