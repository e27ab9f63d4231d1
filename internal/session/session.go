package session

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/buttrest/internal/buttplug"
)

// Default timeouts and sizes for the control server connection.
const (
	// defaultConnectTimeout bounds dial plus handshake.
	defaultConnectTimeout = 10 * time.Second

	// defaultWriteTimeout bounds a single frame write.
	defaultWriteTimeout = 5 * time.Second

	// defaultEventBuffer is the capacity of the inbound event stream.
	defaultEventBuffer = 256

	// defaultMaxMessageSize caps inbound frames.
	defaultMaxMessageSize = 1 << 20
)

// Config holds connection settings.
type Config struct {
	// URL is the control server WebSocket URL, e.g. "ws://127.0.0.1:12345".
	URL string

	// ClientName is announced in RequestServerInfo.
	ClientName string

	// ConnectTimeout bounds dial plus handshake. Default: 10 seconds.
	ConnectTimeout time.Duration

	// WriteTimeout bounds a single frame write. Default: 5 seconds.
	WriteTimeout time.Duration

	// EventBuffer is the capacity of the event stream. Default: 256.
	EventBuffer int

	// MaxMessageSize caps inbound frames in bytes. Default: 1 MiB.
	MaxMessageSize int64
}

// Stats holds operational counters.
type Stats struct {
	FramesTx     uint64    `json:"frames_tx"`
	FramesRx     uint64    `json:"frames_rx"`
	DecodeErrors uint64    `json:"decode_errors"`
	Connects     uint64    `json:"connects"`
	Disconnects  uint64    `json:"disconnects"`
	LastActivity time.Time `json:"last_activity"`
	Connected    bool      `json:"connected"`
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// closeOnce wraps a channel with sync.Once to prevent double-close panics.
type closeOnce struct {
	ch   chan struct{}
	once sync.Once
}

func newCloseOnce() *closeOnce {
	return &closeOnce{ch: make(chan struct{})}
}

func (c *closeOnce) Close() {
	c.once.Do(func() { close(c.ch) })
}

func (c *closeOnce) Done() <-chan struct{} {
	return c.ch
}

// Session is a Buttplug client connection.
//
// Thread Safety:
//   - Send, IsConnected, ServerInfo and Stats are safe for concurrent use.
//   - Connect and Disconnect are meant to be called by a single owner.
//   - Events must be drained by exactly one consumer.
type Session struct {
	cfg    Config
	events chan Event

	// Connection state. conn is nil while disconnected.
	connMu     sync.RWMutex
	conn       *websocket.Conn
	serverInfo buttplug.ServerInfo
	generation uint64

	// gorilla/websocket allows one concurrent writer.
	writeMu sync.Mutex

	done *closeOnce
	wg   sync.WaitGroup

	logger   Logger
	loggerMu sync.RWMutex

	framesTx     atomic.Uint64
	framesRx     atomic.Uint64
	decodeErrors atomic.Uint64
	connects     atomic.Uint64
	disconnects  atomic.Uint64
	lastActivity atomic.Int64
}

// New creates a disconnected session. Call Connect to open it.
func New(cfg Config) *Session {
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = defaultEventBuffer
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = defaultMaxMessageSize
	}

	return &Session{
		cfg:    cfg,
		events: make(chan Event, cfg.EventBuffer),
		done:   newCloseOnce(),
	}
}

// SetLogger sets the logger for this session.
func (s *Session) SetLogger(logger Logger) {
	s.loggerMu.Lock()
	s.logger = logger
	s.loggerMu.Unlock()
}

// Events returns the inbound event stream. The channel is stable for the
// lifetime of the session and is never closed.
func (s *Session) Events() <-chan Event {
	return s.events
}

// Connect dials the control server and performs the RequestServerInfo
// handshake. It blocks until the handshake completes, fails, or ctx ends.
func (s *Session) Connect(ctx context.Context) error {
	if s.isClosed() {
		return ErrClosed
	}
	if s.IsConnected() {
		return ErrAlreadyConnected
	}

	if err := validateURL(s.cfg.URL); err != nil {
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	connectCtx, cancel := context.WithTimeout(ctx, s.cfg.ConnectTimeout)
	defer cancel()

	dialer := websocket.Dialer{HandshakeTimeout: s.cfg.ConnectTimeout}
	conn, resp, err := dialer.DialContext(connectCtx, s.cfg.URL, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return fmt.Errorf("%w: dial %s: %w", ErrConnectionFailed, s.cfg.URL, err)
	}
	conn.SetReadLimit(s.cfg.MaxMessageSize)

	info, err := s.handshake(connectCtx, conn)
	if err != nil {
		conn.Close()
		return err
	}

	s.connMu.Lock()
	s.conn = conn
	s.serverInfo = info
	s.generation++
	gen := s.generation
	s.connMu.Unlock()

	s.connects.Add(1)
	s.lastActivity.Store(time.Now().Unix())

	s.wg.Add(1)
	go s.receiveLoop(conn, gen)

	s.logInfo("connected to control server",
		"url", s.cfg.URL,
		"server", info.ServerName,
		"message_version", info.MessageVersion,
		"max_ping_time_ms", info.MaxPingTime,
	)
	return nil
}

// handshake sends RequestServerInfo and waits for the matching reply.
func (s *Session) handshake(ctx context.Context, conn *websocket.Conn) (buttplug.ServerInfo, error) {
	req := &buttplug.RequestServerInfo{
		ClientName:     s.cfg.ClientName,
		MessageVersion: buttplug.MessageVersion,
	}
	req.SetMessageID(buttplug.HandshakeID)

	frame, err := buttplug.Encode(req)
	if err != nil {
		return buttplug.ServerInfo{}, fmt.Errorf("%w: %w", ErrHandshakeFailed, err)
	}

	deadline := time.Now().Add(s.cfg.ConnectTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	if err := conn.SetWriteDeadline(deadline); err != nil {
		return buttplug.ServerInfo{}, fmt.Errorf("%w: set write deadline: %w", ErrHandshakeFailed, err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return buttplug.ServerInfo{}, fmt.Errorf("%w: write: %w", ErrHandshakeFailed, err)
	}

	if err := conn.SetReadDeadline(deadline); err != nil {
		return buttplug.ServerInfo{}, fmt.Errorf("%w: set read deadline: %w", ErrHandshakeFailed, err)
	}
	defer conn.SetReadDeadline(time.Time{}) //nolint:errcheck // Clearing a deadline cannot fail meaningfully

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return buttplug.ServerInfo{}, fmt.Errorf("%w: read: %w", ErrHandshakeFailed, err)
		}

		msgs, err := buttplug.Decode(data)
		if err != nil {
			s.decodeErrors.Add(1)
			if len(msgs) == 0 {
				return buttplug.ServerInfo{}, fmt.Errorf("%w: %w", ErrHandshakeFailed, err)
			}
			s.logWarn("skipping undecodable entries during handshake", "error", err)
		}

		for _, m := range msgs {
			if m.MessageID() != buttplug.HandshakeID {
				continue
			}
			switch reply := m.(type) {
			case *buttplug.ServerInfo:
				if reply.MessageVersion < buttplug.MessageVersion {
					return buttplug.ServerInfo{}, fmt.Errorf("%w: server speaks message version %d, need %d",
						ErrHandshakeFailed, reply.MessageVersion, buttplug.MessageVersion)
				}
				return *reply, nil
			case *buttplug.Error:
				return buttplug.ServerInfo{}, fmt.Errorf("%w: server error %d: %s",
					ErrHandshakeFailed, reply.ErrorCode, reply.ErrorMessage)
			default:
				return buttplug.ServerInfo{}, fmt.Errorf("%w: unexpected reply %s",
					ErrHandshakeFailed, m.MessageType())
			}
		}
	}
}

// receiveLoop reads frames from one connection until it fails. Events are
// tagged with gen.
func (s *Session) receiveLoop(conn *websocket.Conn, gen uint64) {
	defer s.wg.Done()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			s.lose(conn, err)
			return
		}

		s.framesRx.Add(1)
		s.lastActivity.Store(time.Now().Unix())

		// Entries that decode are delivered even when their neighbours don't.
		msgs, err := buttplug.Decode(data)
		if err != nil {
			s.decodeErrors.Add(1)
			s.logWarn("dropping undecodable entries", "error", err, "decoded", len(msgs))
		}

		for _, m := range msgs {
			if !s.emit(Event{Kind: classify(m), Message: m, Generation: gen}) {
				return
			}
		}
	}
}

// emit pushes an event, blocking for backpressure. Returns false once the
// session is closed.
func (s *Session) emit(ev Event) bool {
	select {
	case s.events <- ev:
		return true
	case <-s.done.Done():
		return false
	}
}

// lose tears down conn if it is still current and emits the single
// EventConnectionLost for it. Stale calls are no-ops.
func (s *Session) lose(conn *websocket.Conn, cause error) {
	s.connMu.Lock()
	if s.conn != conn {
		s.connMu.Unlock()
		return
	}
	s.conn = nil
	gen := s.generation
	s.connMu.Unlock()

	conn.Close()
	s.disconnects.Add(1)

	if s.isClosed() {
		return
	}

	s.logWarn("connection to control server lost", "error", cause)
	s.emit(Event{Kind: EventConnectionLost, Err: cause, Generation: gen})
}

// Send writes one message. It does not wait for the reply; replies arrive on
// the event stream.
func (s *Session) Send(ctx context.Context, msg buttplug.Message) error {
	if s.isClosed() {
		return ErrClosed
	}

	s.connMu.RLock()
	conn := s.conn
	s.connMu.RUnlock()
	if conn == nil {
		return ErrNotConnected
	}

	frame, err := buttplug.Encode(msg)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSendFailed, err)
	}

	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrSendFailed, ctx.Err())
	default:
	}

	deadline := time.Now().Add(s.cfg.WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	s.writeMu.Lock()
	err = conn.SetWriteDeadline(deadline)
	if err == nil {
		err = conn.WriteMessage(websocket.TextMessage, frame)
	}
	s.writeMu.Unlock()

	if err != nil {
		s.lose(conn, err)
		return fmt.Errorf("%w: %w", ErrNotConnected, err)
	}

	s.framesTx.Add(1)
	s.lastActivity.Store(time.Now().Unix())
	s.logDebug("frame sent", "type", msg.MessageType(), "id", msg.MessageID())
	return nil
}

// Disconnect closes the current connection. The receive loop emits
// EventConnectionLost with ErrDisconnected.
func (s *Session) Disconnect() {
	s.connMu.RLock()
	conn := s.conn
	s.connMu.RUnlock()

	if conn != nil {
		s.lose(conn, ErrDisconnected)
	}
}

// Close disconnects and stops the session permanently. Safe to call
// multiple times.
func (s *Session) Close() error {
	s.done.Close()

	s.connMu.Lock()
	conn := s.conn
	s.conn = nil
	s.connMu.Unlock()

	if conn != nil {
		s.writeMu.Lock()
		//nolint:errcheck // Best-effort close frame; the socket is torn down regardless
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		s.writeMu.Unlock()
		conn.Close()
	}

	s.wg.Wait()
	s.logInfo("session closed")
	return nil
}

// IsConnected reports whether a connection is established.
func (s *Session) IsConnected() bool {
	s.connMu.RLock()
	defer s.connMu.RUnlock()
	return s.conn != nil
}

// ServerInfo returns the handshake reply of the current connection.
func (s *Session) ServerInfo() buttplug.ServerInfo {
	s.connMu.RLock()
	defer s.connMu.RUnlock()
	return s.serverInfo
}

// Generation returns the number of the most recent connection. It starts at
// zero and increases by one on every successful Connect.
func (s *Session) Generation() uint64 {
	s.connMu.RLock()
	defer s.connMu.RUnlock()
	return s.generation
}

// Stats returns current operational statistics.
func (s *Session) Stats() Stats {
	return Stats{
		FramesTx:     s.framesTx.Load(),
		FramesRx:     s.framesRx.Load(),
		DecodeErrors: s.decodeErrors.Load(),
		Connects:     s.connects.Load(),
		Disconnects:  s.disconnects.Load(),
		LastActivity: time.Unix(s.lastActivity.Load(), 0),
		Connected:    s.IsConnected(),
	}
}

func (s *Session) isClosed() bool {
	select {
	case <-s.done.Done():
		return true
	default:
		return false
	}
}

// validateURL accepts ws and wss URLs only.
func validateURL(raw string) error {
	if raw == "" {
		return errors.New("empty URL")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
	default:
		return fmt.Errorf("unsupported scheme %q (use ws or wss)", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("missing host")
	}
	return nil
}

func (s *Session) getLogger() Logger {
	s.loggerMu.RLock()
	defer s.loggerMu.RUnlock()
	return s.logger
}

func (s *Session) logDebug(msg string, keysAndValues ...any) {
	if l := s.getLogger(); l != nil {
		l.Debug(msg, keysAndValues...)
	}
}

func (s *Session) logInfo(msg string, keysAndValues ...any) {
	if l := s.getLogger(); l != nil {
		l.Info(msg, keysAndValues...)
	}
}

func (s *Session) logWarn(msg string, keysAndValues ...any) {
	if l := s.getLogger(); l != nil {
		l.Warn(msg, keysAndValues...)
	}
}
