// Package pager splits a requested window into backend page queries and
// flattens the results back into one ordered slice.
//
// With paging enabled, a window larger than the page size is fetched as
// sequential queries (offset + k*P, P). A page shorter than P means the backend
// ran out of data and stops the loop early.
//
// Every query result is drained sequentially while counting. A backend that
// returns more items than it was asked for, or that never reads the query
// offset or limit, fails the fetch with a *query.ContractError. These errors
// are never retried.
package pager
