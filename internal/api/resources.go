package api

import (
	"fmt"

	"github.com/nerrad567/buttrest/internal/device"
)

// Every resource carries its own URL in "@id" and links to its children,
// so clients can walk the API from /devices.

func deviceURL(d uint32) string { return fmt.Sprintf("/devices/%d", d) }

func sensorURL(d, s uint32) string { return fmt.Sprintf("/devices/%d/sensors/%d", d, s) }

func sensorReadURL(d, s uint32) string { return sensorURL(d, s) + "/read" }

func actuatorURL(d, a uint32) string { return fmt.Sprintf("/devices/%d/actuators/%d", d, a) }

func rotatoryActuatorURL(d, a uint32) string {
	return fmt.Sprintf("/devices/%d/rotatory_actuators/%d", d, a)
}

func linearActuatorURL(d, a uint32) string {
	return fmt.Sprintf("/devices/%d/linear_actuators/%d", d, a)
}

// DeviceSummary is one entry of GET /devices.
type DeviceSummary struct {
	ID                string `json:"@id"`
	Index             uint32 `json:"index"`
	Name              string `json:"name"`
	DisplayName       string `json:"display_name,omitempty"`
	Actuators         int    `json:"actuators"`
	RotatoryActuators int    `json:"rotatory_actuators"`
	LinearActuators   int    `json:"linear_actuators"`
	Sensors           int    `json:"sensors"`
}

// DeviceResource is GET /devices/{d}.
type DeviceResource struct {
	ID                string                     `json:"@id"`
	Index             uint32                     `json:"index"`
	Name              string                     `json:"name"`
	DisplayName       string                     `json:"display_name,omitempty"`
	MessageTimingGap  uint32                     `json:"message_timing_gap,omitempty"`
	Actuators         []ActuatorResource         `json:"actuators"`
	RotatoryActuators []RotatoryActuatorResource `json:"rotatory_actuators"`
	LinearActuators   []LinearActuatorResource   `json:"linear_actuators"`
	Sensors           []SensorResource           `json:"sensors"`
}

// SensorResource describes a sensor and links to a fresh read.
type SensorResource struct {
	ID          string     `json:"@id"`
	Device      string     `json:"device"`
	Index       uint32     `json:"index"`
	Description string     `json:"description"`
	SensorType  string     `json:"sensor_type"`
	Ranges      [][2]int32 `json:"ranges,omitempty"`
	LastReading []int32    `json:"last_reading,omitempty"`
	Read        string     `json:"sensor_reading"`
}

// SensorReadingResource is GET /devices/{d}/sensors/{s}/read.
type SensorReadingResource struct {
	ID     string  `json:"@id"`
	Sensor string  `json:"sensor"`
	Value  []int32 `json:"value"`
}

// ActuatorResource describes a scalar actuator and its last commanded intensity.
type ActuatorResource struct {
	ID           string  `json:"@id"`
	Device       string  `json:"device"`
	Index        uint32  `json:"index"`
	Description  string  `json:"description"`
	ActuatorType string  `json:"actuator_type"`
	StepCount    uint32  `json:"step_count"`
	Intensity    float64 `json:"intensity"`
}

// RotatoryActuatorResource describes a rotating actuator and its last command.
type RotatoryActuatorResource struct {
	ID          string  `json:"@id"`
	Device      string  `json:"device"`
	Index       uint32  `json:"index"`
	Description string  `json:"description"`
	StepCount   uint32  `json:"step_count"`
	Speed       float64 `json:"speed"`
	Clockwise   bool    `json:"clockwise"`
}

// LinearActuatorResource describes a linear actuator and its last command.
type LinearActuatorResource struct {
	ID          string  `json:"@id"`
	Device      string  `json:"device"`
	Index       uint32  `json:"index"`
	Description string  `json:"description"`
	StepCount   uint32  `json:"step_count"`
	Duration    uint32  `json:"duration"`
	Position    float64 `json:"position"`
}

// CommandResult acknowledges an accepted command.
type CommandResult struct {
	ID     string `json:"@id"`
	Status string `json:"status"`
}

func renderDeviceSummary(d *device.Device) DeviceSummary {
	return DeviceSummary{
		ID:                deviceURL(d.Index),
		Index:             d.Index,
		Name:              d.Name,
		DisplayName:       d.DisplayName,
		Actuators:         len(d.Actuators),
		RotatoryActuators: len(d.RotatoryActuators),
		LinearActuators:   len(d.LinearActuators),
		Sensors:           len(d.Sensors),
	}
}

func renderDevice(d *device.Device) DeviceResource {
	return DeviceResource{
		ID:                deviceURL(d.Index),
		Index:             d.Index,
		Name:              d.Name,
		DisplayName:       d.DisplayName,
		MessageTimingGap:  d.MessageTimingGap,
		Actuators:         renderActuators(d.Index, d.Actuators),
		RotatoryActuators: renderRotatoryActuators(d.Index, d.RotatoryActuators),
		LinearActuators:   renderLinearActuators(d.Index, d.LinearActuators),
		Sensors:           renderSensors(d.Index, d.Sensors),
	}
}

func renderSensor(d uint32, s device.Sensor) SensorResource {
	return SensorResource{
		ID:          sensorURL(d, s.Index),
		Device:      deviceURL(d),
		Index:       s.Index,
		Description: s.Description,
		SensorType:  s.SensorType,
		Ranges:      s.Ranges,
		LastReading: s.LastReading,
		Read:        sensorReadURL(d, s.Index),
	}
}

func renderSensors(d uint32, sensors []device.Sensor) []SensorResource {
	out := make([]SensorResource, 0, len(sensors))
	for _, s := range sensors {
		out = append(out, renderSensor(d, s))
	}
	return out
}

func renderActuator(d uint32, a device.Actuator) ActuatorResource {
	return ActuatorResource{
		ID:           actuatorURL(d, a.Index),
		Device:       deviceURL(d),
		Index:        a.Index,
		Description:  a.Description,
		ActuatorType: a.ActuatorType,
		StepCount:    a.StepCount,
		Intensity:    a.Intensity,
	}
}

func renderActuators(d uint32, actuators []device.Actuator) []ActuatorResource {
	out := make([]ActuatorResource, 0, len(actuators))
	for _, a := range actuators {
		out = append(out, renderActuator(d, a))
	}
	return out
}

func renderRotatoryActuator(d uint32, a device.RotatoryActuator) RotatoryActuatorResource {
	return RotatoryActuatorResource{
		ID:          rotatoryActuatorURL(d, a.Index),
		Device:      deviceURL(d),
		Index:       a.Index,
		Description: a.Description,
		StepCount:   a.StepCount,
		Speed:       a.Speed,
		Clockwise:   a.Clockwise,
	}
}

func renderRotatoryActuators(d uint32, actuators []device.RotatoryActuator) []RotatoryActuatorResource {
	out := make([]RotatoryActuatorResource, 0, len(actuators))
	for _, a := range actuators {
		out = append(out, renderRotatoryActuator(d, a))
	}
	return out
}

func renderLinearActuator(d uint32, a device.LinearActuator) LinearActuatorResource {
	return LinearActuatorResource{
		ID:          linearActuatorURL(d, a.Index),
		Device:      deviceURL(d),
		Index:       a.Index,
		Description: a.Description,
		StepCount:   a.StepCount,
		Duration:    a.Duration,
		Position:    a.Position,
	}
}

func renderLinearActuators(d uint32, actuators []device.LinearActuator) []LinearActuatorResource {
	out := make([]LinearActuatorResource, 0, len(actuators))
	for _, a := range actuators {
		out = append(out, renderLinearActuator(d, a))
	}
	return out
}
