// Package buttplug implements the Buttplug v3 message layer used to talk to an
// Intiface device-control server.
//
// The protocol is JSON over a WebSocket. Every frame is an array of
// single-key objects whose key names the message type:
//
//	[{"ScalarCmd":{"Id":7,"DeviceIndex":0,"Scalars":[{"Index":0,"Scalar":0.5,"ActuatorType":"Vibrate"}]}}]
//
// Client messages carry a non-zero Id chosen by the client; the server echoes
// it on the reply (Ok, Error, DeviceList, SensorReading, ServerInfo).
// Unsolicited server events (DeviceAdded, DeviceRemoved, ScanningFinished)
// always carry Id 0.
//
// This package only encodes and decodes. Connection handling lives in
// internal/session and request correlation in internal/gateway.
package buttplug
