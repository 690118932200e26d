// Package flush coalesces mutation requests into at most one reconciliation
// pass per round trip.
//
// A Scheduler is bound to a Target (usually a reconciler) and attached to an
// Owner, the synchronization context that serializes every access to the
// target. Request registers a single before-response hook with the owner. Calls
// made while a flush is running are deferred to the next round trip instead of
// nesting, which breaks server/client ping-pong when listeners mutate state
// during a flush.
//
// # Asynchronous fetching
//
// With an Executor configured, the fetch stage of each pass runs off the owner.
// The result is applied back through Owner.Access. A newer flush or a detach
// cancels the in-flight fetch, and results whose owner or generation changed
// are dropped without touching the target:
//
//	sched := flush.New(reconciler, flush.WithLogger(log))
//	if err := sched.SetExecutor(flush.GoExecutor{}); err != nil {
//	    return err // owner cannot deliver deferred work
//	}
//	if err := sched.Attach(session); err != nil {
//	    return err
//	}
package flush
