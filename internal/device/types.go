package device

import (
	"time"

	"github.com/nerrad567/buttrest/internal/buttplug"
)

// Device is one device known to the control server.
// Index is assigned by the server and is the device's only identity.
type Device struct {
	Index            uint32 `json:"index"`
	Name             string `json:"name"`
	DisplayName      string `json:"display_name,omitempty"`
	MessageTimingGap uint32 `json:"message_timing_gap,omitempty"`

	// Capabilities, each ordered by feature index.
	Actuators         []Actuator         `json:"actuators"`
	RotatoryActuators []RotatoryActuator `json:"rotatory_actuators"`
	LinearActuators   []LinearActuator   `json:"linear_actuators"`
	Sensors           []Sensor           `json:"sensors"`

	AddedAt time.Time `json:"added_at"`
}

// Actuator is a scalar output (vibrate, constrict, oscillate, ...).
type Actuator struct {
	Index        uint32  `json:"index"`
	Description  string  `json:"description"`
	StepCount    uint32  `json:"step_count"`
	ActuatorType string  `json:"actuator_type"`
	Intensity    float64 `json:"intensity"`
}

// RotatoryActuator is a motor driven by speed and direction.
type RotatoryActuator struct {
	Index       uint32  `json:"index"`
	Description string  `json:"description"`
	StepCount   uint32  `json:"step_count"`
	Speed       float64 `json:"speed"`
	Clockwise   bool    `json:"clockwise"`
}

// LinearActuator moves to a position over a duration in milliseconds.
type LinearActuator struct {
	Index       uint32  `json:"index"`
	Description string  `json:"description"`
	StepCount   uint32  `json:"step_count"`
	Duration    uint32  `json:"duration"`
	Position    float64 `json:"position"`
}

// Sensor is a readable input. LastReading stays nil until the first read.
type Sensor struct {
	Index       uint32     `json:"index"`
	Description string     `json:"description"`
	SensorType  string     `json:"sensor_type"`
	Ranges      [][2]int32 `json:"ranges,omitempty"`
	LastReading []int32    `json:"last_reading,omitempty"`
}

// Label returns the display name when set, otherwise the device name.
func (d *Device) Label() string {
	if d.DisplayName != "" {
		return d.DisplayName
	}
	return d.Name
}

// CapabilityCount is the total number of features of all kinds.
func (d *Device) CapabilityCount() int {
	return len(d.Actuators) + len(d.RotatoryActuators) + len(d.LinearActuators) + len(d.Sensors)
}

// DeepCopy creates a complete independent copy of the Device.
// All slice fields are cloned so modifications to the copy
// do not affect the original.
func (d *Device) DeepCopy() *Device {
	if d == nil {
		return nil
	}

	cpy := *d

	if d.Actuators != nil {
		cpy.Actuators = make([]Actuator, len(d.Actuators))
		copy(cpy.Actuators, d.Actuators)
	}
	if d.RotatoryActuators != nil {
		cpy.RotatoryActuators = make([]RotatoryActuator, len(d.RotatoryActuators))
		copy(cpy.RotatoryActuators, d.RotatoryActuators)
	}
	if d.LinearActuators != nil {
		cpy.LinearActuators = make([]LinearActuator, len(d.LinearActuators))
		copy(cpy.LinearActuators, d.LinearActuators)
	}
	if d.Sensors != nil {
		cpy.Sensors = make([]Sensor, len(d.Sensors))
		for i := range d.Sensors {
			cpy.Sensors[i] = d.Sensors[i].deepCopy()
		}
	}

	return &cpy
}

func (s Sensor) deepCopy() Sensor {
	if s.Ranges != nil {
		ranges := make([][2]int32, len(s.Ranges))
		copy(ranges, s.Ranges)
		s.Ranges = ranges
	}
	if s.LastReading != nil {
		reading := make([]int32, len(s.LastReading))
		copy(reading, s.LastReading)
		s.LastReading = reading
	}
	return s
}

// FromInfo converts a wire device descriptor into a registry entry.
// Feature indices are positions in each capability list.
func FromInfo(info buttplug.DeviceInfo) Device {
	d := Device{
		Index:             info.DeviceIndex,
		Name:              info.DeviceName,
		DisplayName:       info.DeviceDisplayName,
		MessageTimingGap:  info.DeviceMessageTimingGap,
		Actuators:         make([]Actuator, 0, len(info.DeviceMessages.ScalarCmd)),
		RotatoryActuators: make([]RotatoryActuator, 0, len(info.DeviceMessages.RotateCmd)),
		LinearActuators:   make([]LinearActuator, 0, len(info.DeviceMessages.LinearCmd)),
		Sensors:           make([]Sensor, 0, len(info.DeviceMessages.SensorReadCmd)),
	}

	for i, attr := range info.DeviceMessages.ScalarCmd {
		d.Actuators = append(d.Actuators, Actuator{
			Index:        uint32(i), //nolint:gosec // Feature lists are tiny
			Description:  attr.FeatureDescriptor,
			StepCount:    attr.StepCount,
			ActuatorType: attr.ActuatorType,
		})
	}
	for i, attr := range info.DeviceMessages.RotateCmd {
		d.RotatoryActuators = append(d.RotatoryActuators, RotatoryActuator{
			Index:       uint32(i), //nolint:gosec // Feature lists are tiny
			Description: attr.FeatureDescriptor,
			StepCount:   attr.StepCount,
		})
	}
	for i, attr := range info.DeviceMessages.LinearCmd {
		d.LinearActuators = append(d.LinearActuators, LinearActuator{
			Index:       uint32(i), //nolint:gosec // Feature lists are tiny
			Description: attr.FeatureDescriptor,
			StepCount:   attr.StepCount,
		})
	}
	for i, attr := range info.DeviceMessages.SensorReadCmd {
		s := Sensor{
			Index:       uint32(i), //nolint:gosec // Feature lists are tiny
			Description: attr.FeatureDescriptor,
			SensorType:  attr.SensorType,
		}
		if len(attr.SensorRange) > 0 {
			s.Ranges = make([][2]int32, len(attr.SensorRange))
			copy(s.Ranges, attr.SensorRange)
		}
		d.Sensors = append(d.Sensors, s)
	}

	return d
}
