package gateway

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/buttrest/internal/buttplug"
	"github.com/nerrad567/buttrest/internal/device"
	"github.com/nerrad567/buttrest/internal/session"
)

// Logger defines the logging interface used by the Gateway.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Session is the control server connection the gateway drives.
type Session interface {
	Sender
	Connect(ctx context.Context) error
	Disconnect()
	Close() error
	Events() <-chan session.Event
	IsConnected() bool
	ServerInfo() buttplug.ServerInfo
	Generation() uint64
}

var _ Session = (*session.Session)(nil)

// statsReporter is implemented by sessions that keep transport counters.
type statsReporter interface {
	Stats() session.Stats
}

var _ statsReporter = (*session.Session)(nil)

// Config holds gateway settings.
type Config struct {
	// CommandTimeout bounds each command round trip. Default: 5 seconds.
	CommandTimeout time.Duration

	// ScanDuration is how long Connect scans for devices. Zero skips the scan.
	ScanDuration time.Duration

	// ActivityBuffer is the activity queue capacity. Default: 256.
	ActivityBuffer int
}

// Deps holds the gateway's collaborators.
type Deps struct {
	// Session is required.
	Session Session

	// Registry defaults to an empty registry.
	Registry *device.Registry

	// Metrics may be nil.
	Metrics *Metrics

	// Sinks receive activity records. May be empty.
	Sinks []ActivitySink

	Logger Logger
}

// Status is a point-in-time summary for health endpoints.
type Status struct {
	Connected       bool       `json:"connected"`
	ServerName      string     `json:"server_name,omitempty"`
	MessageVersion  int        `json:"message_version,omitempty"`
	MaxPingTime     uint32     `json:"max_ping_time_ms,omitempty"`
	ConnectedSince  *time.Time `json:"connected_since,omitempty"`
	Scanning        bool       `json:"scanning"`
	Devices         int        `json:"devices"`
	PendingCommands int        `json:"pending_commands"`
	LateResponses   uint64     `json:"late_responses"`
	ActivityDropped uint64     `json:"activity_dropped"`

	// Transport is nil when the session keeps no counters.
	Transport *session.Stats `json:"transport,omitempty"`
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

// Gateway is the single entry point for REST handlers. It owns the event
// consumer, the registry and the correlator.
type Gateway struct {
	cfg        Config
	session    Session
	registry   *device.Registry
	correlator *Correlator
	feed       *activityFeed
	metrics    *Metrics
	logger     Logger

	// connectMu serializes Connect.
	connectMu sync.Mutex

	// lost is closed when the current connection goes away.
	lostMu sync.Mutex
	lost   *closeOnce

	scanning    atomic.Bool
	connectedAt atomic.Int64

	done     *closeOnce
	goMu     sync.Mutex
	wg       sync.WaitGroup
	shutdown sync.Once
}

// New creates a gateway and starts its event consumer. The gateway starts
// disconnected; call Connect or Supervise.
func New(cfg Config, deps Deps) (*Gateway, error) {
	if deps.Session == nil {
		return nil, errors.New("gateway: session is required")
	}
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = defaultCommandTimeout
	}
	if cfg.ScanDuration < 0 {
		return nil, fmt.Errorf("%w: negative scan duration", ErrValidation)
	}

	logger := deps.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	registry := deps.Registry
	if registry == nil {
		registry = device.NewRegistry()
	}
	registry.SetLogger(logger)

	g := &Gateway{
		cfg:      cfg,
		session:  deps.Session,
		registry: registry,
		metrics:  deps.Metrics,
		logger:   logger,
		lost:     newCloseOnce(),
		done:     newCloseOnce(),
	}
	g.lost.Close()

	g.correlator = NewCorrelator(deps.Session, cfg.CommandTimeout)
	g.correlator.logger = logger
	g.correlator.metrics = deps.Metrics
	g.correlator.resolved = g.commandResolved

	g.feed = newActivityFeed(cfg.ActivityBuffer, deps.Sinks, logger, deps.Metrics)
	g.feed.start(g.done.Done())

	g.wg.Add(1)
	go g.consume()

	return g, nil
}

// Connect opens the control server connection, loads the device list and,
// when configured, scans for devices before returning.
func (g *Gateway) Connect(ctx context.Context) error {
	if g.isClosed() {
		return ErrClosed
	}

	g.connectMu.Lock()
	defer g.connectMu.Unlock()

	if g.session.IsConnected() {
		return ErrAlreadyConnected
	}

	// The previous connection's loss must be consumed before a new one
	// starts, or its cleanup would hit the new connection.
	select {
	case <-g.Disconnected():
	case <-g.done.Done():
		return ErrClosed
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrConnection, ctx.Err())
	}

	lost := g.resetLost()
	if err := g.session.Connect(ctx); err != nil {
		g.markLost()
		return fmt.Errorf("%w: %w", ErrConnection, err)
	}

	info := g.session.ServerInfo()
	g.connectedAt.Store(time.Now().UnixNano())
	g.logger.Info("gateway connected",
		"server", info.ServerName,
		"message_version", info.MessageVersion,
		"max_ping_time_ms", info.MaxPingTime,
	)
	g.feed.publish(Activity{Kind: ActivityConnected, ServerName: info.ServerName})

	if info.MaxPingTime > 0 {
		interval := time.Duration(info.MaxPingTime) * time.Millisecond / 2
		g.spawn(func() { g.keepalive(interval, lost) })
	}

	if err := g.refreshDevices(ctx); err != nil {
		g.session.Disconnect()
		return fmt.Errorf("loading device list: %w", err)
	}

	if g.cfg.ScanDuration > 0 {
		g.scan(ctx, g.cfg.ScanDuration, lost)
	}

	g.logger.Info("gateway ready", "devices", g.registry.Count())
	return nil
}

// Disconnected returns a channel closed when the current connection is
// lost. While disconnected the returned channel is already closed.
func (g *Gateway) Disconnected() <-chan struct{} {
	g.lostMu.Lock()
	defer g.lostMu.Unlock()
	return g.lost.Done()
}

func (g *Gateway) resetLost() *closeOnce {
	g.lostMu.Lock()
	defer g.lostMu.Unlock()
	g.lost = newCloseOnce()
	return g.lost
}

func (g *Gateway) markLost() {
	g.lostMu.Lock()
	defer g.lostMu.Unlock()
	g.lost.Close()
}

// refreshDevices replaces the registry with the server's device list.
func (g *Gateway) refreshDevices(ctx context.Context) error {
	reply, err := g.correlator.Submit(ctx, nil, &buttplug.RequestDeviceList{}, func(reply buttplug.Message) error {
		list, ok := reply.(*buttplug.DeviceList)
		if !ok {
			return nil
		}
		devices := make([]device.Device, 0, len(list.Devices))
		for _, info := range list.Devices {
			devices = append(devices, device.FromInfo(info))
		}
		g.registry.ReplaceAll(devices)
		return nil
	})
	if err != nil {
		return err
	}
	if _, ok := reply.(*buttplug.DeviceList); !ok {
		return unexpectedReply(buttplug.TypeDeviceList, reply)
	}
	return nil
}

// scan runs a timed device scan. Failures are logged, not returned: a
// server without discovery managers still serves known devices.
func (g *Gateway) scan(ctx context.Context, d time.Duration, lost *closeOnce) {
	if _, err := g.correlator.Submit(ctx, nil, &buttplug.StartScanning{}, nil); err != nil {
		g.logger.Warn("start scanning failed", "error", err)
		return
	}
	g.scanning.Store(true)
	g.logger.Info("scanning for devices", "duration", d)

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
	case <-lost.Done():
		return
	case <-g.done.Done():
		return
	}

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.cfg.CommandTimeout)
	defer cancel()
	if _, err := g.correlator.Submit(stopCtx, nil, &buttplug.StopScanning{}, nil); err != nil {
		g.logger.Warn("stop scanning failed", "error", err)
	}
	g.scanning.Store(false)
}

// keepalive pings at interval until the connection it was started for ends.
func (g *Gateway) keepalive(interval time.Duration, lost *closeOnce) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-g.done.Done():
			return
		case <-lost.Done():
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			_, err := g.correlator.Submit(ctx, nil, &buttplug.Ping{}, nil)
			cancel()
			if err != nil {
				g.logger.Warn("keepalive ping failed", "error", err)
			}
		}
	}
}

// spawn runs fn tracked by the wait group unless the gateway is closing.
func (g *Gateway) spawn(fn func()) {
	g.goMu.Lock()
	defer g.goMu.Unlock()
	if g.isClosed() {
		return
	}
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		fn()
	}()
}

// Close fails outstanding commands, stops the consumer and closes the
// session. Safe to call multiple times.
func (g *Gateway) Close() error {
	var err error
	g.shutdown.Do(func() {
		g.goMu.Lock()
		g.done.Close()
		g.goMu.Unlock()

		g.wg.Wait()
		if n := g.correlator.FailAll(fmt.Errorf("%w: %w", ErrConnection, ErrClosed)); n > 0 {
			g.logger.Info("failed pending commands on shutdown", "count", n)
		}
		err = g.session.Close()
		g.markLost()
		g.feed.wait()
		g.logger.Info("gateway closed")
	})
	return err
}

func (g *Gateway) isClosed() bool {
	select {
	case <-g.done.Done():
		return true
	default:
		return false
	}
}

// IsConnected reports whether the control server connection is up.
func (g *Gateway) IsConnected() bool {
	return g.session.IsConnected()
}

// HealthCheck returns ErrConnection while disconnected.
func (g *Gateway) HealthCheck(_ context.Context) error {
	return g.requireConnection()
}

// Status summarises connection and registry state.
func (g *Gateway) Status() Status {
	st := Status{
		Connected:       g.session.IsConnected(),
		Scanning:        g.scanning.Load(),
		Devices:         g.registry.Count(),
		PendingCommands: g.correlator.Pending(),
		LateResponses:   g.correlator.LateResponses(),
		ActivityDropped: g.feed.Dropped(),
	}
	if sr, ok := g.session.(statsReporter); ok {
		stats := sr.Stats()
		st.Transport = &stats
	}
	if st.Connected {
		info := g.session.ServerInfo()
		st.ServerName = info.ServerName
		st.MessageVersion = info.MessageVersion
		st.MaxPingTime = info.MaxPingTime
		since := time.Unix(0, g.connectedAt.Load())
		st.ConnectedSince = &since
	}
	return st
}

// requireConnection reports ErrConnection while disconnected. Every
// operation checks it first so callers see the outage, not its side
// effects on the registry.
func (g *Gateway) requireConnection() error {
	if !g.session.IsConnected() {
		return fmt.Errorf("%w: control server not connected", ErrConnection)
	}
	return nil
}

// resolve validates an address against one snapshot and returns a private
// copy of the device it names.
func (g *Gateway) resolve(deviceIndex uint32, kind CapabilityKind, capIndex uint32) (Target, *device.Device, error) {
	if err := g.requireConnection(); err != nil {
		return Target{}, nil, err
	}
	snap := g.registry.Snapshot()
	target, err := Resolve(snap, deviceIndex, kind, capIndex)
	if err != nil {
		return Target{}, nil, err
	}
	d, _ := snap.Get(deviceIndex)
	return target, d.DeepCopy(), nil
}

// ListDevices returns every known device ordered by index.
func (g *Gateway) ListDevices() ([]device.Device, error) {
	if err := g.requireConnection(); err != nil {
		return nil, err
	}
	return g.registry.List(), nil
}

// GetDevice returns one device.
func (g *Gateway) GetDevice(deviceIndex uint32) (*device.Device, error) {
	if err := g.requireConnection(); err != nil {
		return nil, err
	}
	return g.registry.Lookup(deviceIndex)
}

// ListSensors returns the sensors of a device.
func (g *Gateway) ListSensors(deviceIndex uint32) ([]device.Sensor, error) {
	d, err := g.GetDevice(deviceIndex)
	if err != nil {
		return nil, err
	}
	return d.Sensors, nil
}

// GetSensor returns one sensor.
func (g *Gateway) GetSensor(deviceIndex, sensorIndex uint32) (device.Sensor, error) {
	_, d, err := g.resolve(deviceIndex, KindSensor, sensorIndex)
	if err != nil {
		return device.Sensor{}, err
	}
	return d.Sensors[sensorIndex], nil
}

// ListActuators returns the scalar actuators of a device.
func (g *Gateway) ListActuators(deviceIndex uint32) ([]device.Actuator, error) {
	d, err := g.GetDevice(deviceIndex)
	if err != nil {
		return nil, err
	}
	return d.Actuators, nil
}

// GetActuator returns one scalar actuator with its last commanded intensity.
func (g *Gateway) GetActuator(deviceIndex, actuatorIndex uint32) (device.Actuator, error) {
	_, d, err := g.resolve(deviceIndex, KindActuator, actuatorIndex)
	if err != nil {
		return device.Actuator{}, err
	}
	return d.Actuators[actuatorIndex], nil
}

// ListRotatoryActuators returns the rotatory actuators of a device.
func (g *Gateway) ListRotatoryActuators(deviceIndex uint32) ([]device.RotatoryActuator, error) {
	d, err := g.GetDevice(deviceIndex)
	if err != nil {
		return nil, err
	}
	return d.RotatoryActuators, nil
}

// GetRotatoryActuator returns one rotatory actuator.
func (g *Gateway) GetRotatoryActuator(deviceIndex, actuatorIndex uint32) (device.RotatoryActuator, error) {
	_, d, err := g.resolve(deviceIndex, KindRotatoryActuator, actuatorIndex)
	if err != nil {
		return device.RotatoryActuator{}, err
	}
	return d.RotatoryActuators[actuatorIndex], nil
}

// ListLinearActuators returns the linear actuators of a device.
func (g *Gateway) ListLinearActuators(deviceIndex uint32) ([]device.LinearActuator, error) {
	d, err := g.GetDevice(deviceIndex)
	if err != nil {
		return nil, err
	}
	return d.LinearActuators, nil
}

// GetLinearActuator returns one linear actuator.
func (g *Gateway) GetLinearActuator(deviceIndex, actuatorIndex uint32) (device.LinearActuator, error) {
	_, d, err := g.resolve(deviceIndex, KindLinearActuator, actuatorIndex)
	if err != nil {
		return device.LinearActuator{}, err
	}
	return d.LinearActuators[actuatorIndex], nil
}

// ReadSensor queries the sensor and returns the fresh reading.
func (g *Gateway) ReadSensor(ctx context.Context, deviceIndex, sensorIndex uint32) ([]int32, error) {
	target, _, err := g.resolve(deviceIndex, KindSensor, sensorIndex)
	if err != nil {
		return nil, err
	}

	cmd := &buttplug.SensorReadCmd{
		DeviceIndex: deviceIndex,
		SensorIndex: sensorIndex,
		SensorType:  target.SensorType,
	}
	reply, err := g.correlator.Submit(ctx, &target, cmd, func(reply buttplug.Message) error {
		reading, ok := reply.(*buttplug.SensorReading)
		if !ok {
			return nil
		}
		return g.registry.SetSensorReading(deviceIndex, sensorIndex, reading.Data)
	})
	if err != nil {
		return nil, err
	}

	reading, ok := reply.(*buttplug.SensorReading)
	if !ok {
		return nil, unexpectedReply(buttplug.TypeSensorReading, reply)
	}
	return reading.Data, nil
}

// SetActuator commands a scalar actuator to intensity in [0, 1].
func (g *Gateway) SetActuator(ctx context.Context, deviceIndex, actuatorIndex uint32, intensity float64) error {
	if err := validateUnit("intensity", intensity); err != nil {
		return err
	}
	target, _, err := g.resolve(deviceIndex, KindActuator, actuatorIndex)
	if err != nil {
		return err
	}

	cmd := &buttplug.ScalarCmd{
		DeviceIndex: deviceIndex,
		Scalars: []buttplug.ScalarSubcommand{{
			Index:        actuatorIndex,
			Scalar:       intensity,
			ActuatorType: target.ActuatorType,
		}},
	}
	return g.submitOk(ctx, &target, cmd, func() error {
		return g.registry.SetActuatorIntensity(deviceIndex, actuatorIndex, intensity)
	})
}

// SetRotatoryActuator commands a rotatory actuator to speed in [0, 1].
func (g *Gateway) SetRotatoryActuator(ctx context.Context, deviceIndex, actuatorIndex uint32, speed float64, clockwise bool) error {
	if err := validateUnit("speed", speed); err != nil {
		return err
	}
	target, _, err := g.resolve(deviceIndex, KindRotatoryActuator, actuatorIndex)
	if err != nil {
		return err
	}

	cmd := &buttplug.RotateCmd{
		DeviceIndex: deviceIndex,
		Rotations: []buttplug.RotateSubcommand{{
			Index:     actuatorIndex,
			Speed:     speed,
			Clockwise: clockwise,
		}},
	}
	return g.submitOk(ctx, &target, cmd, func() error {
		return g.registry.SetRotation(deviceIndex, actuatorIndex, speed, clockwise)
	})
}

// SetLinearActuator moves a linear actuator to position in [0, 1] over
// duration milliseconds.
func (g *Gateway) SetLinearActuator(ctx context.Context, deviceIndex, actuatorIndex uint32, duration int, position float64) error {
	if duration <= 0 || int64(duration) > math.MaxUint32 {
		return validationErrorf("duration %d must be a positive number of milliseconds", duration)
	}
	if err := validateUnit("position", position); err != nil {
		return err
	}
	target, _, err := g.resolve(deviceIndex, KindLinearActuator, actuatorIndex)
	if err != nil {
		return err
	}

	ms := uint32(duration) //nolint:gosec // Range checked above
	cmd := &buttplug.LinearCmd{
		DeviceIndex: deviceIndex,
		Vectors: []buttplug.LinearSubcommand{{
			Index:    actuatorIndex,
			Duration: ms,
			Position: position,
		}},
	}
	return g.submitOk(ctx, &target, cmd, func() error {
		return g.registry.SetLinearPosition(deviceIndex, actuatorIndex, ms, position)
	})
}

// StopDevice stops every output of one device.
func (g *Gateway) StopDevice(ctx context.Context, deviceIndex uint32) error {
	if err := g.requireConnection(); err != nil {
		return err
	}
	target, _, err := resolveDevice(g.registry.Snapshot(), deviceIndex)
	if err != nil {
		return err
	}

	cmd := &buttplug.StopDeviceCmd{DeviceIndex: deviceIndex}
	return g.submitOk(ctx, &target, cmd, func() error {
		return g.registry.ResetOutputs(deviceIndex)
	})
}

// StopAll stops every device.
func (g *Gateway) StopAll(ctx context.Context) error {
	if err := g.requireConnection(); err != nil {
		return err
	}

	return g.submitOk(ctx, nil, &buttplug.StopAllDevices{}, func() error {
		for _, d := range g.registry.Snapshot().Devices() {
			if err := g.registry.ResetOutputs(d.Index); err != nil {
				return err
			}
		}
		return nil
	})
}

// submitOk submits a command answered by Ok and applies update on success.
func (g *Gateway) submitOk(ctx context.Context, target *Target, msg buttplug.Message, update func() error) error {
	reply, err := g.correlator.Submit(ctx, target, msg, func(reply buttplug.Message) error {
		if _, ok := reply.(*buttplug.Ok); !ok {
			return nil
		}
		return update()
	})
	if err != nil {
		return err
	}
	if _, ok := reply.(*buttplug.Ok); !ok {
		return unexpectedReply(buttplug.TypeOk, reply)
	}
	return nil
}

// commandResolved turns resolved device commands into activity records.
func (g *Gateway) commandResolved(pc *PendingCommand, reply buttplug.Message, err error) {
	msgType := pc.Message.MessageType()
	if !isDeviceCommand(msgType) {
		return
	}

	outcome := outcomeOf(err)
	rec := &CommandRecord{
		ID:          pc.ID,
		Type:        msgType,
		Target:      pc.Target,
		Message:     pc.Message,
		Reply:       reply,
		Outcome:     outcome,
		SubmittedAt: pc.SubmittedAt,
		Latency:     time.Since(pc.SubmittedAt),
	}
	if err != nil {
		rec.Error = err.Error()
		if outcome != OutcomeCanceled {
			g.logger.Warn("command failed", "id", pc.ID, "type", msgType, "outcome", outcome, "error", err)
		}
	} else {
		g.logger.Debug("command completed", "id", pc.ID, "type", msgType, "latency", rec.Latency)
	}

	activity := Activity{Kind: ActivityCommand, Command: rec}
	if pc.Target != nil {
		idx := pc.Target.DeviceIndex
		activity.DeviceIndex = &idx
		activity.DeviceName = g.deviceName(idx)
	}
	g.feed.publish(activity)

	if reading, ok := reply.(*buttplug.SensorReading); ok {
		idx := reading.DeviceIndex
		g.feed.publish(Activity{
			Kind:        ActivitySensorReading,
			DeviceIndex: &idx,
			DeviceName:  activity.DeviceName,
			Sensor: &SensorRecord{
				Index:      reading.SensorIndex,
				SensorType: reading.SensorType,
				Data:       reading.Data,
			},
		})
	}
}

// deviceName labels a device for activity records; "" once it is gone.
func (g *Gateway) deviceName(index uint32) string {
	if d, ok := g.registry.Snapshot().Get(index); ok {
		return d.Label()
	}
	return ""
}

func isDeviceCommand(msgType string) bool {
	switch msgType {
	case buttplug.TypeScalarCmd, buttplug.TypeRotateCmd, buttplug.TypeLinearCmd,
		buttplug.TypeSensorReadCmd, buttplug.TypeStopDeviceCmd, buttplug.TypeStopAllDevices:
		return true
	default:
		return false
	}
}

func validateUnit(name string, v float64) error {
	if math.IsNaN(v) || v < 0 || v > 1 {
		return validationErrorf("%s %v outside [0, 1]", name, v)
	}
	return nil
}

func unexpectedReply(want string, got buttplug.Message) error {
	gotType := "nothing"
	if got != nil {
		gotType = got.MessageType()
	}
	return fmt.Errorf("%w: expected %s, got %s", ErrProtocol, want, gotType)
}
