// Package reconcile keeps the rows a client renders in sync with a data
// source, sending only what changed.
//
// A Reconciler owns a viewport (the rows the client asks for) and an active
// range (the rows last sent, each identified by a key from a keymapper.Mapper).
// Every pass computes the effective range, fetches the rows that became
// visible through the pager, and writes Clear/Set operations followed by one
// Commit to a Sink.
//
// # Architecture
//
// A pass is split in two stages:
//
// 1. Fetch: resolves the size (exact count or growing estimate), decides
// between a full resend and an incremental patch, and materializes the new
// rows. It works on a snapshot and never mutates the reconciler, so it can run
// on a background executor.
//
// 2. Apply: assigns keys, emits the delta, passivates keys that left the
// active range and notifies count listeners. It runs on the owning context.
//
// Keys that leave the active range are not forgotten right away. They are
// recorded against the update id that dropped them and released when the
// client acknowledges that update, so messages already in flight still
// resolve.
//
// # Sizing
//
// In defined mode the size is the data source count, memoized for
// Config.CountCacheTTL with stampede protection. In estimate mode the size
// starts at ItemCountEstimate and grows by ItemCountEstimateIncrement whenever
// the viewport gets within one page of it. A short page freezes the estimate
// at the real end of the data; an empty page rewinds the viewport once.
//
// # Usage Example
//
//	r, err := reconcile.New[*Person](sink,
//	    reconcile.WithLogger[*Person](log),
//	    reconcile.WithConfig[*Person](cfg.Binding),
//	)
//	r.SetDataSource(query.FromSlice(people))
//	_ = r.SetViewport(0, 50)
//	err = r.Reconcile(ctx) // Set(0, 50 entries), Commit(1)
//
//	// later, once the client applied update 1
//	_ = r.Acknowledge(1)
//
// With a flush.Scheduler attached through SetScheduler, mutators request a
// flush themselves and Reconcile is not called directly.
package reconcile
