// Package session owns the single persistent WebSocket connection to an
// Intiface control server.
//
// A Session performs the Buttplug handshake on Connect, writes commands with
// Send, and pushes every inbound message onto one ordered event stream. When
// the transport fails the session emits exactly one EventConnectionLost and
// refuses further sends until Connect succeeds again. It never reconnects on
// its own; reconnect policy belongs to the process owner.
//
//	s := session.New(session.Config{URL: "ws://127.0.0.1:12345", ClientName: "ButtRest"})
//	if err := s.Connect(ctx); err != nil {
//	    return err
//	}
//	for ev := range s.Events() {
//	    ...
//	}
package session
