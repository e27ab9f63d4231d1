package gateway

import (
	"errors"
	"fmt"

	"github.com/nerrad567/buttrest/internal/device"
)

// Gateway errors. Every failure a caller can see wraps exactly one of these,
// so they can be told apart with errors.Is:
//
//	if errors.Is(err, gateway.ErrDeviceGone) {
//	    // device vanished while the command was outstanding
//	}
var (
	// ErrValidation is returned for malformed or out-of-range arguments.
	// It is always raised before anything is sent.
	ErrValidation = errors.New("gateway: invalid argument")

	// ErrDeviceNotFound is returned when a device index is not in the registry.
	ErrDeviceNotFound = device.ErrDeviceNotFound

	// ErrCapabilityNotFound is returned when a capability index is out of
	// range for the requested kind.
	ErrCapabilityNotFound = device.ErrCapabilityNotFound

	// ErrCapabilityKindMismatch is returned when the device has no capability
	// of the requested kind but the index exists under another kind.
	ErrCapabilityKindMismatch = errors.New("gateway: capability kind mismatch")

	// ErrProtocol is returned when the control server rejects a command or
	// answers with an unexpected message. See ProtocolError.
	ErrProtocol = errors.New("gateway: protocol error")

	// ErrTimeout is returned when no response arrives in time.
	ErrTimeout = errors.New("gateway: command timed out")

	// ErrDeviceGone is returned when the target device is removed while a
	// command is outstanding.
	ErrDeviceGone = errors.New("gateway: device removed")

	// ErrConnection is returned while the control server connection is down.
	ErrConnection = errors.New("gateway: connection unavailable")

	// ErrAlreadyConnected is returned by Connect on a live connection.
	ErrAlreadyConnected = errors.New("gateway: already connected")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("gateway: closed")
)

// ProtocolError carries an Error message sent by the control server.
type ProtocolError struct {
	Code    int
	Message string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("gateway: control server error %d: %s", e.Code, e.Message)
}

// Unwrap makes errors.Is(err, ErrProtocol) hold.
func (e *ProtocolError) Unwrap() error {
	return ErrProtocol
}

func validationErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
