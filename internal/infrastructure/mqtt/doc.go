// Package mqtt publishes ButtRest gateway activity to an MQTT broker.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Publishing with QoS and payload-size checks
//   - Last Will and Testament (LWT) for offline detection
//   - Mapping gateway activity records to topics (ActivitySink)
//
// # Topics
//
//	buttrest/system/status                     online/offline, retained, LWT
//	buttrest/system/connection                 control server connected/lost, retained
//	buttrest/devices/{d}/added                 device announced
//	buttrest/devices/{d}/removed               device gone
//	buttrest/devices/{d}/sensors/{s}/reading   latest sensor value, retained
//	buttrest/commands/{d}                      resolved device command
//	buttrest/commands/all                      resolved stop-all
//
// The client never subscribes; ButtRest is controlled through its REST API only.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	sinks = append(sinks, mqtt.NewActivitySink(client, byte(cfg.MQTT.QoS)))
package mqtt
