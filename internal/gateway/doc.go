// Package gateway turns a single Buttplug control-server session into a
// request/response device API.
//
// Architecture:
//
//	callers (REST, CLI)
//	       │ Submit
//	       ▼
//	┌──────────────┐   Send    ┌──────────────┐
//	│  Correlator  │ ────────► │   Session    │ ──► control server
//	│ (pending map)│           │ (websocket)  │
//	└──────▲───────┘           └──────┬───────┘
//	       │ Resolve / Fail           │ Events
//	┌──────┴──────────────────────────▼───────┐
//	│            consumer goroutine           │
//	│ responses, device added/removed, loss   │
//	└──────────────────┬──────────────────────┘
//	                   │ writes
//	            ┌──────▼──────┐      ┌──────────────┐
//	            │  Registry   │      │ activity feed│ ──► sinks
//	            └─────────────┘      └──────────────┘
//
// The consumer goroutine is the only reader of session events and the only
// writer of the device registry. Command effects (recording an intensity,
// a sensor value, a stop) run on the consumer before the waiting caller is
// released, so a caller that sees success also sees the new state.
//
// Every operation checks the connection first and fails with ErrConnection
// while the session is down. The gateway never reconnects by itself; call
// Supervise from the process owner.
//
// Usage:
//
//	gw, err := gateway.New(gateway.Config{}, gateway.Deps{
//	    Session:  session.New(session.Config{URL: "ws://127.0.0.1:12345"}),
//	    Registry: device.NewRegistry(),
//	})
//	if err != nil {
//	    return err
//	}
//	defer gw.Close()
//	go gateway.Supervise(ctx, gw, gateway.NewBackOff(time.Second, 30*time.Second))
//
//	err = gw.SetActuator(ctx, 0, 0, 0.5)
package gateway
