package fleet

import "errors"

// Domain-specific errors for fleet operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrDeviceNotFound is returned when the requested device does not exist.
	ErrDeviceNotFound = errors.New("fleet: device not found")

	// ErrContentNotFound is returned when the requested content does not exist.
	ErrContentNotFound = errors.New("fleet: content not found")

	// ErrInvalidConfig is returned when a device configuration fails validation.
	ErrInvalidConfig = errors.New("fleet: invalid device configuration")

	// ErrInvalidStatus is returned for a status value outside the allowed set.
	ErrInvalidStatus = errors.New("fleet: invalid status")

	// ErrOrderMismatch is returned when a content write would leave the
	// per-device order map out of sync with the assigned-device set.
	ErrOrderMismatch = errors.New("fleet: order map does not match assigned devices")
)
