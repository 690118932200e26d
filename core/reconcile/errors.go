package reconcile

import (
	"errors"
	"fmt"
)

var (
	// ErrConfig is returned by setters given invalid settings. State is left
	// untouched.
	ErrConfig = errors.New("invalid reconciler configuration")
	// ErrState is returned for operations that are not valid in the current
	// state.
	ErrState = errors.New("invalid reconciler state")
	// ErrOutOfBounds is returned for item indices outside the data set.
	ErrOutOfBounds = errors.New("index out of bounds")
)

// ErrUnknownUpdate is returned when acknowledging an update id that was never
// issued.
var ErrUnknownUpdate = fmt.Errorf("%w: unknown update id", ErrState)
