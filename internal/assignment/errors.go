package assignment

import "errors"

// Domain-specific errors for assignment operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNotAssigned is returned when unassigning content from a
	// device it was never assigned to.
	ErrNotAssigned = errors.New("assignment: content not assigned to device")
)
