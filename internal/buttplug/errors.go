package buttplug

import "errors"

// Codec errors.
var (
	// ErrMalformedFrame is returned when a frame is not an array of
	// single-key message objects.
	ErrMalformedFrame = errors.New("buttplug: malformed frame")

	// ErrUnknownMessage is returned when a frame contains a message type
	// this package does not know.
	ErrUnknownMessage = errors.New("buttplug: unknown message type")

	// ErrEmptyFrame is returned when encoding zero messages.
	ErrEmptyFrame = errors.New("buttplug: empty frame")
)

// Error codes sent by the server in Error messages.
const (
	ErrorCodeUnknown = 0
	ErrorCodeInit    = 1
	ErrorCodePing    = 2
	ErrorCodeMessage = 3
	ErrorCodeDevice  = 4
)
