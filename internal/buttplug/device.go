package buttplug

// DeviceInfo describes a device as reported in DeviceAdded and DeviceList.
type DeviceInfo struct {
	DeviceName             string         `json:"DeviceName"`
	DeviceIndex            uint32         `json:"DeviceIndex"`
	DeviceMessageTimingGap uint32         `json:"DeviceMessageTimingGap,omitempty"`
	DeviceDisplayName      string         `json:"DeviceDisplayName,omitempty"`
	DeviceMessages         DeviceMessages `json:"DeviceMessages"`
}

// DeviceMessages lists the commands a device accepts. The position of an
// attribute within its slice is the feature index used in commands.
type DeviceMessages struct {
	ScalarCmd          []ScalarAttributes  `json:"ScalarCmd,omitempty"`
	RotateCmd          []GenericAttributes `json:"RotateCmd,omitempty"`
	LinearCmd          []GenericAttributes `json:"LinearCmd,omitempty"`
	SensorReadCmd      []SensorAttributes  `json:"SensorReadCmd,omitempty"`
	SensorSubscribeCmd []SensorAttributes  `json:"SensorSubscribeCmd,omitempty"`
	StopDeviceCmd      *struct{}           `json:"StopDeviceCmd,omitempty"`
}

// ScalarAttributes describes one scalar actuator.
type ScalarAttributes struct {
	FeatureDescriptor string `json:"FeatureDescriptor"`
	StepCount         uint32 `json:"StepCount"`
	ActuatorType      string `json:"ActuatorType"`
}

// GenericAttributes describes one rotating or linear actuator.
type GenericAttributes struct {
	FeatureDescriptor string `json:"FeatureDescriptor"`
	StepCount         uint32 `json:"StepCount"`
}

// SensorAttributes describes one readable sensor.
type SensorAttributes struct {
	FeatureDescriptor string     `json:"FeatureDescriptor"`
	SensorType        string     `json:"SensorType"`
	SensorRange       [][2]int32 `json:"SensorRange"`
}
