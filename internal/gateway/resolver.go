package gateway

import (
	"fmt"

	"github.com/nerrad567/buttrest/internal/device"
)

// CapabilityKind names one of the four capability lists of a device.
type CapabilityKind string

// Capability kinds, matching the REST path segments.
const (
	KindActuator         CapabilityKind = "actuator"
	KindRotatoryActuator CapabilityKind = "rotatory_actuator"
	KindLinearActuator   CapabilityKind = "linear_actuator"
	KindSensor           CapabilityKind = "sensor"
)

var allKinds = []CapabilityKind{KindActuator, KindRotatoryActuator, KindLinearActuator, KindSensor}

// Valid reports whether k is a known kind.
func (k CapabilityKind) Valid() bool {
	switch k {
	case KindActuator, KindRotatoryActuator, KindLinearActuator, KindSensor:
		return true
	default:
		return false
	}
}

// Target is a validated protocol address. Kind is empty for device-level
// commands such as StopDeviceCmd.
type Target struct {
	DeviceIndex  uint32         `json:"device_index"`
	Kind         CapabilityKind `json:"kind,omitempty"`
	Index        uint32         `json:"index"`
	ActuatorType string         `json:"actuator_type,omitempty"`
	SensorType   string         `json:"sensor_type,omitempty"`
}

// Resolve validates a REST address against a registry snapshot.
//
// It returns ErrDeviceNotFound for an unknown device, ErrCapabilityKindMismatch
// when the device has nothing of the requested kind but does have capIndex
// under another kind, and ErrCapabilityNotFound otherwise.
func Resolve(snap *device.Snapshot, deviceIndex uint32, kind CapabilityKind, capIndex uint32) (Target, error) {
	if !kind.Valid() {
		return Target{}, validationErrorf("unknown capability kind %q", kind)
	}

	d, ok := snap.Get(deviceIndex)
	if !ok {
		return Target{}, fmt.Errorf("%w: index %d", ErrDeviceNotFound, deviceIndex)
	}

	target := Target{DeviceIndex: deviceIndex, Kind: kind, Index: capIndex}
	n := capabilityCount(d, kind)
	if int(capIndex) < n {
		switch kind {
		case KindActuator:
			target.ActuatorType = d.Actuators[capIndex].ActuatorType
		case KindSensor:
			target.SensorType = d.Sensors[capIndex].SensorType
		}
		return target, nil
	}

	if n == 0 {
		for _, other := range allKinds {
			if other != kind && int(capIndex) < capabilityCount(d, other) {
				return Target{}, fmt.Errorf("%w: device %d has no %s, index %d is a %s",
					ErrCapabilityKindMismatch, deviceIndex, kind, capIndex, other)
			}
		}
	}

	return Target{}, fmt.Errorf("%w: %s %d on device %d", ErrCapabilityNotFound, kind, capIndex, deviceIndex)
}

// resolveDevice validates a device-level address.
func resolveDevice(snap *device.Snapshot, deviceIndex uint32) (Target, *device.Device, error) {
	d, ok := snap.Get(deviceIndex)
	if !ok {
		return Target{}, nil, fmt.Errorf("%w: index %d", ErrDeviceNotFound, deviceIndex)
	}
	return Target{DeviceIndex: deviceIndex}, d, nil
}

func capabilityCount(d *device.Device, kind CapabilityKind) int {
	switch kind {
	case KindActuator:
		return len(d.Actuators)
	case KindRotatoryActuator:
		return len(d.RotatoryActuators)
	case KindLinearActuator:
		return len(d.LinearActuators)
	case KindSensor:
		return len(d.Sensors)
	default:
		return 0
	}
}
