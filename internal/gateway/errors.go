package gateway

import "errors"

// Domain-specific errors for gateway operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrMalformedMessage is returned when an inbound payload does not
	// parse as the shape its topic requires.
	ErrMalformedMessage = errors.New("gateway: malformed message")

	// ErrUnknownCommand is returned when publishing a command that is
	// not part of the device command set.
	ErrUnknownCommand = errors.New("gateway: unknown command")
)
