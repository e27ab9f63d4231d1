package session

import "errors"

// Domain errors for the session package.
var (
	// ErrNotConnected is returned by Send while no connection is established.
	ErrNotConnected = errors.New("session: not connected")

	// ErrConnectionFailed is returned when the WebSocket dial fails.
	ErrConnectionFailed = errors.New("session: connection failed")

	// ErrHandshakeFailed is returned when the server rejects or does not
	// answer RequestServerInfo.
	ErrHandshakeFailed = errors.New("session: handshake failed")

	// ErrAlreadyConnected is returned by Connect on a live session.
	ErrAlreadyConnected = errors.New("session: already connected")

	// ErrClosed is returned after Close has been called.
	ErrClosed = errors.New("session: closed")

	// ErrDisconnected is the cause attached to EventConnectionLost when the
	// owner called Disconnect.
	ErrDisconnected = errors.New("session: disconnected by client")

	// ErrSendFailed is returned when writing a frame fails.
	ErrSendFailed = errors.New("session: send failed")
)
