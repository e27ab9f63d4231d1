package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementSensorReadings   = "sensor_readings"
	MeasurementActuatorCommands = "actuator_commands"
)

// WritePointWithTime queues a point for the next batch. Points written
// after Close are dropped.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writes.WritePoint(write.NewPoint(measurement, tags, fields, timestamp))
}

// sensorFields turns a reading into fields: the first element is "value",
// later elements are "value_1", "value_2", ...
func sensorFields(data []int32) map[string]interface{} {
	fields := make(map[string]interface{}, len(data))
	for i, v := range data {
		key := "value"
		if i > 0 {
			key = "value_" + strconv.Itoa(i)
		}
		fields[key] = int64(v)
	}
	return fields
}

func formatIndex(i uint32) string {
	return strconv.FormatUint(uint64(i), 10)
}
