// Package ranges provides half-open integer interval arithmetic used by the
// reconciliation engine.
//
// A Range covers the indices [Start, End). Ranges are values: every operation
// returns a new Range and never mutates the receiver.
//
// # Partitioning
//
// PartitionWith splits a range against another one into the part before it,
// the overlapping part and the part after it. The reconciler uses it twice per
// pass: once to find the rows it must fetch, once to find the rows it must
// clear on the client.
//
//	active := ranges.Between(0, 50)
//	wanted := ranges.Between(20, 70)
//	parts := wanted.PartitionWith(active) // [20,20) [20,50) [50,70)
package ranges
