package influxdb

import (
	"context"
	"time"

	"github.com/nerrad567/buttrest/internal/buttplug"
	"github.com/nerrad567/buttrest/internal/gateway"
)

// PointWriter is the subset of Client used by ActivitySink.
type PointWriter interface {
	WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time)
}

var _ PointWriter = (*Client)(nil)

// ActivitySink records sensor readings and resolved actuator commands as
// InfluxDB points. Other activity kinds are ignored.
//
//	sensor_readings    tags: device_index, device_name, sensor_index, sensor_type
//	                   fields: value, value_1, ...
//	actuator_commands  tags: device_index, command, outcome, [kind, index, actuator_type]
//	                   fields: latency_ms, [value, clockwise, duration_ms]
type ActivitySink struct {
	w PointWriter
}

// NewActivitySink returns a sink writing through w.
func NewActivitySink(w PointWriter) *ActivitySink {
	return &ActivitySink{w: w}
}

// HandleActivity implements gateway.ActivitySink.
func (s *ActivitySink) HandleActivity(_ context.Context, a gateway.Activity) error {
	switch a.Kind {
	case gateway.ActivitySensorReading:
		s.writeSensorReading(a)
	case gateway.ActivityCommand:
		s.writeCommand(a)
	}
	return nil
}

func (s *ActivitySink) writeSensorReading(a gateway.Activity) {
	if a.Sensor == nil || a.DeviceIndex == nil || len(a.Sensor.Data) == 0 {
		return
	}
	tags := map[string]string{
		"device_index": formatIndex(*a.DeviceIndex),
		"sensor_index": formatIndex(a.Sensor.Index),
		"sensor_type":  a.Sensor.SensorType,
	}
	if a.DeviceName != "" {
		tags["device_name"] = a.DeviceName
	}
	s.w.WritePointWithTime(MeasurementSensorReadings, tags, sensorFields(a.Sensor.Data), a.Time)
}

// writeCommand writes one point per actuator touched by the command, or a
// single point for stops.
func (s *ActivitySink) writeCommand(a gateway.Activity) {
	rec := a.Command
	if rec == nil {
		return
	}

	base := map[string]string{
		"command": rec.Type,
		"outcome": string(rec.Outcome),
	}
	if a.DeviceIndex != nil {
		base["device_index"] = formatIndex(*a.DeviceIndex)
	} else {
		base["device_index"] = "all"
	}
	latency := float64(rec.Latency) / float64(time.Millisecond)

	emit := func(extraTags map[string]string, fields map[string]interface{}) {
		tags := make(map[string]string, len(base)+len(extraTags))
		for k, v := range base {
			tags[k] = v
		}
		for k, v := range extraTags {
			tags[k] = v
		}
		fields["latency_ms"] = latency
		s.w.WritePointWithTime(MeasurementActuatorCommands, tags, fields, a.Time)
	}

	switch m := rec.Message.(type) {
	case *buttplug.ScalarCmd:
		for _, sc := range m.Scalars {
			emit(map[string]string{
				"kind":          string(gateway.KindActuator),
				"index":         formatIndex(sc.Index),
				"actuator_type": sc.ActuatorType,
			}, map[string]interface{}{"value": sc.Scalar})
		}
	case *buttplug.RotateCmd:
		for _, r := range m.Rotations {
			emit(map[string]string{
				"kind":  string(gateway.KindRotatoryActuator),
				"index": formatIndex(r.Index),
			}, map[string]interface{}{"value": r.Speed, "clockwise": r.Clockwise})
		}
	case *buttplug.LinearCmd:
		for _, v := range m.Vectors {
			emit(map[string]string{
				"kind":  string(gateway.KindLinearActuator),
				"index": formatIndex(v.Index),
			}, map[string]interface{}{"value": v.Position, "duration_ms": int64(v.Duration)})
		}
	case *buttplug.StopDeviceCmd, *buttplug.StopAllDevices:
		emit(nil, map[string]interface{}{})
	}
}
