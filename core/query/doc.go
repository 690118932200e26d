// Package query defines the pull-based contract between the reconciliation
// engine and the backends that provide its items.
//
// # Query
//
// A Query carries offset, limit, sort orders, an in-memory comparator and an
// opaque filter. Offset/Page and Limit/PageSize are accessors that record
// usage: after a fetch returns, Verify reports a *ContractError if the backend
// never looked at one of them. A backend that ignores the window returns data
// that looks plausible but silently corrupts the key mapping, so the engine
// treats this as a programmer error.
//
// # Data Sources
//
// DataSource is the capability interface the engine depends on. Three
// implementations cover the common cases:
//   - ListSource: an in-memory collection with predicate filters and sorting.
//   - CallbackSource: fetch and optional count callbacks for lazy backends.
//   - Empty: the sentinel used before a source is configured.
//
// SQL tables and object storage listings are provided by core/database and
// core/storage on top of the same interface.
package query
