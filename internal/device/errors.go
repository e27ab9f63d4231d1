package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrDeviceNotFound) {
//	    // handle not found case
//	}
var (
	// ErrDeviceNotFound is returned when a device index is not in the registry.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrCapabilityNotFound is returned when a feature index is out of range
	// for its kind on a device.
	ErrCapabilityNotFound = errors.New("device: capability not found")
)
