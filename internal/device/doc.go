// Package device provides the Device Registry for ButtRest.
//
// The Device Registry is the gateway's view of every device the control
// server currently reports, with each device's ordered capability lists and
// the last values commanded or read through the gateway.
//
// # Architecture
//
//	┌───────────────────────────────────────────────────────────────┐
//	│                        Device Registry                         │
//	│                                                                │
//	│   writer (gateway consumer)          readers (REST requests)   │
//	│   Add / Remove / ReplaceAll          Snapshot / Lookup / List  │
//	│   Clear / Set*                                                 │
//	│          │                                     ▲               │
//	│          ▼                                     │               │
//	│   copy map, edit copy ──▶ atomic.Pointer[Snapshot] ──▶ load    │
//	└───────────────────────────────────────────────────────────────┘
//
// Every write publishes a brand new Snapshot. Readers that loaded the old
// pointer keep a consistent view; nothing they hold is ever mutated.
//
// # Key Types
//
//   - Device: server-assigned index, names and capability lists
//   - Actuator, RotatoryActuator, LinearActuator: outputs with cached last command
//   - Sensor: input with optional last reading
//   - Snapshot: immutable point-in-time view
//
// # Usage
//
//	registry := device.NewRegistry()
//	registry.SetLogger(log)
//
//	// From the event consumer only
//	registry.Add(device.FromInfo(added.DeviceInfo))
//	registry.Remove(removed.DeviceIndex)
//
//	// From anywhere
//	dev, err := registry.Lookup(0)
//	if errors.Is(err, device.ErrDeviceNotFound) {
//	    // stale index
//	}
//
// # Thread Safety
//
// Reads are lock-free and safe from any number of goroutines. Writes are
// intended for a single goroutine.
package device
