package ranges

import "fmt"

// Range is a half-open interval [Start, End) of item indices.
type Range struct {
	// Start is the first index included in the range.
	Start int
	// End is the first index after the range.
	End int
}

// Between returns the range [start, end).
// It panics if start is negative or end is before start.
func Between(start, end int) Range {
	if start < 0 {
		panic(fmt.Sprintf("ranges: negative start %d", start))
	}
	if end < start {
		panic(fmt.Sprintf("ranges: end %d before start %d", end, start))
	}
	return Range{Start: start, End: end}
}

// WithLength returns the range starting at start covering length indices.
func WithLength(start, length int) Range {
	if length < 0 {
		panic(fmt.Sprintf("ranges: negative length %d", length))
	}
	return Between(start, start+length)
}

// Empty returns the empty range at index 0.
func Empty() Range {
	return Range{}
}

// Len returns the number of indices in the range.
func (r Range) Len() int {
	return r.End - r.Start
}

// IsEmpty reports whether the range covers no index.
func (r Range) IsEmpty() bool {
	return r.End <= r.Start
}

// Contains reports whether index i lies inside the range.
func (r Range) Contains(i int) bool {
	return i >= r.Start && i < r.End
}

// Intersects reports whether both ranges share at least one index.
func (r Range) Intersects(o Range) bool {
	if r.IsEmpty() || o.IsEmpty() {
		return false
	}
	return r.Start < o.End && o.Start < r.End
}

// Intersect returns the indices present in both ranges. When the ranges do not
// intersect the result is empty.
func (r Range) Intersect(o Range) Range {
	start := max(r.Start, o.Start)
	end := min(r.End, o.End)
	if end < start {
		end = start
	}
	return Range{Start: start, End: end}
}

// Partition holds the three disjoint parts of a range split against another.
type Partition struct {
	// Before is the part of the range located before the other range.
	Before Range
	// Overlap is the part shared with the other range.
	Overlap Range
	// After is the part of the range located after the other range.
	After Range
}

// PartitionWith splits r against o. The parts are disjoint, ordered, and their
// union is r.
func (r Range) PartitionWith(o Range) Partition {
	beforeEnd := clamp(o.Start, r.Start, r.End)
	afterStart := clamp(o.End, r.Start, r.End)
	if afterStart < beforeEnd {
		// o is empty and located inside r
		afterStart = beforeEnd
	}
	return Partition{
		Before:  Range{Start: r.Start, End: beforeEnd},
		Overlap: Range{Start: beforeEnd, End: afterStart},
		After:   Range{Start: afterStart, End: r.End},
	}
}

// Offset moves the range by delta indices.
func (r Range) Offset(delta int) Range {
	return Between(r.Start+delta, r.End+delta)
}

// Restrict clamps r into o. A range fully outside o collapses to an empty
// range at the nearest bound of o.
func (r Range) Restrict(o Range) Range {
	start := clamp(r.Start, o.Start, o.End)
	end := clamp(r.End, start, o.End)
	return Range{Start: start, End: end}
}

// Expand grows the range by before indices at the start and after indices at
// the end. The start never goes below zero.
func (r Range) Expand(before, after int) Range {
	return Between(max(0, r.Start-before), r.End+after)
}

// Equal reports whether both ranges cover the same indices. All empty ranges
// located at the same start are equal.
func (r Range) Equal(o Range) bool {
	return r.Start == o.Start && r.End == o.End
}

// String renders the range as [start, end).
func (r Range) String() string {
	return fmt.Sprintf("[%d, %d)", r.Start, r.End)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
