// Package influxdb records ButtRest telemetry in InfluxDB v2.
//
// It wraps the official influxdb-client-go v2 library with connection
// management, batched non-blocking writes, and health monitoring, and
// provides an ActivitySink that turns gateway activity into points:
//
//   - sensor_readings: every successful sensor read
//   - actuator_commands: every resolved actuator or stop command, with outcome and latency
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//	client.SetOnError(func(err error) { logger.Warn("influxdb write failed", "error", err) })
//
//	sinks = append(sinks, influxdb.NewActivitySink(client))
//
// # Thread Safety
//
// All Client methods are safe for concurrent use.
package influxdb
