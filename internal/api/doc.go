// Package api implements the ButtRest HTTP REST API.
//
// This package provides:
//   - Resource endpoints for devices, sensors and the three actuator kinds
//   - Command endpoints that forward to the device gateway and wait for the
//     control server's answer
//   - Health, liveness and Prometheus metrics endpoints
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//
// # Resources
//
// Every resource carries its own URL in "@id", so a client can walk the
// API starting from /devices:
//
//	GET  /devices
//	GET  /devices/{d}
//	POST /devices/{d}/stop
//	GET  /devices/{d}/sensors/{s}/read
//	POST /devices/{d}/actuators/{a}            {"intensity": 0.5}
//	POST /devices/{d}/rotatory_actuators/{a}   {"speed": 0.5, "clockwise": true}
//	POST /devices/{d}/linear_actuators/{a}     {"duration": 500, "position": 1.0}
//
// # Errors
//
// Gateway errors map to fixed statuses: validation 400, unknown device or
// capability 404, device removed mid-command 409, control server
// rejection 502, connection unavailable 503, timeout 504. Bodies are
// {"status", "code", "message"}.
//
// # Graceful Degradation
//
// The server keeps serving while the control server is down. Device
// routes answer 503 until the gateway reconnects; /healthz stays 200.
package api
