package mqtt

import (
	"fmt"

	"github.com/nerrad567/buttrest/internal/gateway"
)

// TopicPrefix is the root of every topic ButtRest publishes.
const TopicPrefix = "buttrest"

// Topics provides builders for ButtRest MQTT topics.
//
//	topics := mqtt.Topics{}
//	topics.DeviceAdded(3)      // "buttrest/devices/3/added"
//	topics.SensorReading(3, 0) // "buttrest/devices/3/sensors/0/reading"
type Topics struct{}

// SystemStatus returns the retained online/offline topic (also the LWT topic).
func (Topics) SystemStatus() string {
	return TopicPrefix + "/system/status"
}

// Connection returns the topic for control server connect and loss events.
func (Topics) Connection() string {
	return TopicPrefix + "/system/connection"
}

// DeviceAdded returns the topic announcing a new device.
func (Topics) DeviceAdded(deviceIndex uint32) string {
	return fmt.Sprintf("%s/devices/%d/added", TopicPrefix, deviceIndex)
}

// DeviceRemoved returns the topic announcing a removed device.
func (Topics) DeviceRemoved(deviceIndex uint32) string {
	return fmt.Sprintf("%s/devices/%d/removed", TopicPrefix, deviceIndex)
}

// SensorReading returns the topic for fresh sensor values.
func (Topics) SensorReading(deviceIndex, sensorIndex uint32) string {
	return fmt.Sprintf("%s/devices/%d/sensors/%d/reading", TopicPrefix, deviceIndex, sensorIndex)
}

// Command returns the topic for resolved commands addressed to one device.
func (Topics) Command(deviceIndex uint32) string {
	return fmt.Sprintf("%s/commands/%d", TopicPrefix, deviceIndex)
}

// BroadcastCommand returns the topic for resolved commands not tied to a
// device, such as stop-all.
func (Topics) BroadcastCommand() string {
	return TopicPrefix + "/commands/all"
}

// ForActivity maps an activity record to its topic and whether the message
// should be retained. ok is false for records that are not published.
func (t Topics) ForActivity(a gateway.Activity) (topic string, retained bool, ok bool) {
	switch a.Kind {
	case gateway.ActivityConnected, gateway.ActivityConnectionLost:
		return t.Connection(), true, true
	case gateway.ActivityDeviceAdded:
		if a.DeviceIndex == nil {
			return "", false, false
		}
		return t.DeviceAdded(*a.DeviceIndex), false, true
	case gateway.ActivityDeviceRemoved:
		if a.DeviceIndex == nil {
			return "", false, false
		}
		return t.DeviceRemoved(*a.DeviceIndex), false, true
	case gateway.ActivitySensorReading:
		if a.DeviceIndex == nil || a.Sensor == nil {
			return "", false, false
		}
		return t.SensorReading(*a.DeviceIndex, a.Sensor.Index), true, true
	case gateway.ActivityCommand:
		if a.DeviceIndex == nil {
			return t.BroadcastCommand(), false, true
		}
		return t.Command(*a.DeviceIndex), false, true
	default:
		return "", false, false
	}
}
