package reconcile

// Entry is an item sent to the client together with its key.
type Entry[T any] struct {
	Key  string `json:"key" cbor:"1,keyasint"`
	Item T      `json:"item" cbor:"2,keyasint"`
}

// Sink receives the update operations of a flush. Clear and Set calls are
// always followed by exactly one Commit carrying the id of the batch.
type Sink[T any] interface {
	// Clear drops length rows starting at start.
	Clear(start, length int)
	// Set replaces the rows starting at start.
	Set(start int, entries []Entry[T])
	// Commit closes the batch.
	Commit(updateID uint64)
}

// CountChange is the size advertised to the client.
type CountChange struct {
	Count int `json:"count"`
	// Estimated is true while the size is a growing estimate rather than an
	// exact count.
	Estimated bool `json:"estimated"`
}

// CountListener receives size changes.
type CountListener func(CountChange)

// Requester schedules a flush.
type Requester interface {
	Request()
}

// SinkFuncs adapts plain functions to a Sink. Nil functions are skipped.
type SinkFuncs[T any] struct {
	ClearFunc  func(start, length int)
	SetFunc    func(start int, entries []Entry[T])
	CommitFunc func(updateID uint64)
}

// Clear implements Sink.
func (s SinkFuncs[T]) Clear(start, length int) {
	if s.ClearFunc != nil {
		s.ClearFunc(start, length)
	}
}

// Set implements Sink.
func (s SinkFuncs[T]) Set(start int, entries []Entry[T]) {
	if s.SetFunc != nil {
		s.SetFunc(start, entries)
	}
}

// Commit implements Sink.
func (s SinkFuncs[T]) Commit(updateID uint64) {
	if s.CommitFunc != nil {
		s.CommitFunc(updateID)
	}
}
