package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/buttrest/internal/audit"
	"github.com/nerrad567/buttrest/internal/buttplug"
	"github.com/nerrad567/buttrest/internal/gateway"
	"github.com/nerrad567/buttrest/internal/infrastructure/config"
	"github.com/nerrad567/buttrest/internal/infrastructure/logging"
	"github.com/nerrad567/buttrest/internal/session"
)

const eventually = 2 * time.Second
const tick = 5 * time.Millisecond

// fakeIntiface answers every command immediately unless its type is
// silenced or rejected.
type fakeIntiface struct {
	mu         sync.Mutex
	connected  bool
	generation uint64
	devices    []buttplug.DeviceInfo
	silent     map[string]bool
	reject     map[string]string
	sent       []buttplug.Message
	events     chan session.Event
}

var _ gateway.Session = (*fakeIntiface)(nil)

func newFakeIntiface(devices ...buttplug.DeviceInfo) *fakeIntiface {
	return &fakeIntiface{
		devices: devices,
		silent:  map[string]bool{},
		reject:  map[string]string{},
		events:  make(chan session.Event, 64),
	}
}

func (f *fakeIntiface) Connect(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = true
	f.generation++
	return nil
}

func (f *fakeIntiface) Send(_ context.Context, msg buttplug.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return session.ErrNotConnected
	}
	f.sent = append(f.sent, msg)

	if f.silent[msg.MessageType()] {
		return nil
	}
	var reply buttplug.Message
	if text, ok := f.reject[msg.MessageType()]; ok {
		reply = &buttplug.Error{ErrorMessage: text, ErrorCode: buttplug.ErrorCodeDevice}
	} else {
		switch m := msg.(type) {
		case *buttplug.RequestDeviceList:
			reply = &buttplug.DeviceList{Devices: append([]buttplug.DeviceInfo(nil), f.devices...)}
		case *buttplug.SensorReadCmd:
			reply = &buttplug.SensorReading{DeviceIndex: m.DeviceIndex, SensorIndex: m.SensorIndex, SensorType: m.SensorType, Data: []int32{87}}
		default:
			reply = &buttplug.Ok{}
		}
	}
	reply.SetMessageID(msg.MessageID())
	f.events <- session.Event{Kind: session.EventResponse, Message: reply}
	return nil
}

func (f *fakeIntiface) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return
	}
	f.connected = false
	f.events <- session.Event{Kind: session.EventConnectionLost, Err: session.ErrDisconnected, Generation: f.generation}
}

func (f *fakeIntiface) Close() error { f.Disconnect(); return nil }

func (f *fakeIntiface) Events() <-chan session.Event { return f.events }

func (f *fakeIntiface) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeIntiface) Generation() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.generation
}

func (f *fakeIntiface) ServerInfo() buttplug.ServerInfo {
	return buttplug.ServerInfo{ServerName: "Fake Intiface", MessageVersion: buttplug.MessageVersion}
}

func (f *fakeIntiface) removeDevice(index uint32) {
	f.events <- session.Event{Kind: session.EventDeviceRemoved, Message: &buttplug.DeviceRemoved{DeviceIndex: index}}
}

func (f *fakeIntiface) setSilent(msgType string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.silent[msgType] = true
}

func (f *fakeIntiface) setReject(msgType, text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reject[msgType] = text
}

func (f *fakeIntiface) sentOfType(msgType string) []buttplug.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []buttplug.Message
	for _, m := range f.sent {
		if m.MessageType() == msgType {
			out = append(out, m)
		}
	}
	return out
}

// vibrator has two scalar actuators and a battery sensor.
func vibrator(index uint32) buttplug.DeviceInfo {
	return buttplug.DeviceInfo{
		DeviceName:  "Lovense Edge",
		DeviceIndex: index,
		DeviceMessages: buttplug.DeviceMessages{
			ScalarCmd: []buttplug.ScalarAttributes{
				{FeatureDescriptor: "Inner", StepCount: 20, ActuatorType: "Vibrate"},
				{FeatureDescriptor: "Outer", StepCount: 20, ActuatorType: "Vibrate"},
			},
			SensorReadCmd: []buttplug.SensorAttributes{
				{FeatureDescriptor: "Battery Level", SensorType: "Battery", SensorRange: [][2]int32{{0, 100}}},
			},
		},
	}
}

// stroker has one linear and one rotatory actuator.
func stroker(index uint32) buttplug.DeviceInfo {
	return buttplug.DeviceInfo{
		DeviceName:  "Kiiroo Keon",
		DeviceIndex: index,
		DeviceMessages: buttplug.DeviceMessages{
			LinearCmd: []buttplug.GenericAttributes{{FeatureDescriptor: "Stroke", StepCount: 100}},
			RotateCmd: []buttplug.GenericAttributes{{FeatureDescriptor: "Twist", StepCount: 24}},
		},
	}
}

type testEnv struct {
	fake    *fakeIntiface
	gw      *gateway.Gateway
	handler http.Handler
}

type testOptions struct {
	commandTimeout time.Duration
	audit          audit.Repository
	checks         map[string]HealthChecker
	gatherer       prometheus.Gatherer
	metrics        *gateway.Metrics
	cors           []string
}

func newTestEnv(t *testing.T, opts testOptions, devices ...buttplug.DeviceInfo) *testEnv {
	t.Helper()

	fake := newFakeIntiface(devices...)
	timeout := opts.commandTimeout
	if timeout == 0 {
		timeout = time.Second
	}
	gw, err := gateway.New(gateway.Config{CommandTimeout: timeout}, gateway.Deps{Session: fake, Metrics: opts.metrics})
	require.NoError(t, err)
	t.Cleanup(func() { gw.Close() })
	require.NoError(t, gw.Connect(context.Background()))

	log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stderr"}, "test")
	srv, err := New(Deps{
		Config:   config.APIConfig{Host: "127.0.0.1", CORS: config.CORSConfig{AllowedOrigins: opts.cors}},
		Logger:   log,
		Gateway:  gw,
		Audit:    opts.audit,
		Checks:   opts.checks,
		Gatherer: opts.gatherer,
		Version:  "test",
	})
	require.NoError(t, err)

	return &testEnv{fake: fake, gw: gw, handler: srv.Handler()}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), "body: %s", rec.Body.String())
	return v
}

func requireError(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	require.Equal(t, status, rec.Code, "body: %s", rec.Body.String())
	body := decode[Error](t, rec)
	assert.Equal(t, status, body.Status)
	assert.Equal(t, code, body.Code)
	assert.NotEmpty(t, body.Message)
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := New(Deps{})
	assert.Error(t, err)

	_, err = New(Deps{Logger: logging.Default()})
	assert.Error(t, err)
}

func TestIndexAndLiveness(t *testing.T) {
	env := newTestEnv(t, testOptions{})

	rec := env.do(t, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Hello")

	rec = env.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())

	// Liveness does not depend on the control server.
	env.fake.Disconnect()
	rec = env.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestListAndGetDevices(t *testing.T) {
	env := newTestEnv(t, testOptions{}, vibrator(0), stroker(3))

	rec := env.do(t, http.MethodGet, "/devices", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[struct {
		Devices []DeviceSummary `json:"devices"`
		Count   int             `json:"count"`
	}](t, rec)
	require.Equal(t, 2, list.Count)
	assert.Equal(t, DeviceSummary{ID: "/devices/0", Index: 0, Name: "Lovense Edge", Actuators: 2, Sensors: 1}, list.Devices[0])
	assert.Equal(t, "/devices/3", list.Devices[1].ID)
	assert.Equal(t, 1, list.Devices[1].LinearActuators)
	assert.Equal(t, 1, list.Devices[1].RotatoryActuators)

	rec = env.do(t, http.MethodGet, "/devices/0", "")
	require.Equal(t, http.StatusOK, rec.Code)
	dev := decode[DeviceResource](t, rec)
	assert.Equal(t, "/devices/0", dev.ID)
	require.Len(t, dev.Actuators, 2)
	assert.Equal(t, "/devices/0/actuators/1", dev.Actuators[1].ID)
	assert.Equal(t, "Outer", dev.Actuators[1].Description)
	require.Len(t, dev.Sensors, 1)
	assert.Equal(t, "/devices/0/sensors/0/read", dev.Sensors[0].Read)
	assert.Empty(t, dev.LinearActuators)

	requireError(t, env.do(t, http.MethodGet, "/devices/1", ""), http.StatusNotFound, ErrCodeDeviceNotFound)
}

func TestSetActuatorThenGetReflectsIntensity(t *testing.T) {
	env := newTestEnv(t, testOptions{}, vibrator(0))

	rec := env.do(t, http.MethodPost, "/devices/0/actuators/0", `{"intensity": 1.0}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, CommandResult{ID: "/devices/0/actuators/0", Status: "ok"}, decode[CommandResult](t, rec))

	rec = env.do(t, http.MethodGet, "/devices/0/actuators/0", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1.0, decode[ActuatorResource](t, rec).Intensity)

	sent := env.fake.sentOfType(buttplug.TypeScalarCmd)
	require.Len(t, sent, 1)
	cmd := sent[0].(*buttplug.ScalarCmd)
	assert.Equal(t, uint32(0), cmd.DeviceIndex)
	assert.Equal(t, 1.0, cmd.Scalars[0].Scalar)
	assert.Equal(t, "Vibrate", cmd.Scalars[0].ActuatorType)
}

func TestSetActuatorTwiceSendsTwoCommands(t *testing.T) {
	env := newTestEnv(t, testOptions{}, vibrator(0))

	for i := 0; i < 2; i++ {
		rec := env.do(t, http.MethodPost, "/devices/0/actuators/1", `{"intensity": 0}`)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	assert.Len(t, env.fake.sentOfType(buttplug.TypeScalarCmd), 2)
	rec := env.do(t, http.MethodGet, "/devices/0/actuators/1", "")
	assert.Equal(t, 0.0, decode[ActuatorResource](t, rec).Intensity)
}

func TestReadSensorUnknownDeviceMakesNoNetworkCall(t *testing.T) {
	env := newTestEnv(t, testOptions{}, vibrator(0))

	requireError(t, env.do(t, http.MethodGet, "/devices/5/sensors/0/read", ""), http.StatusNotFound, ErrCodeDeviceNotFound)
	assert.Empty(t, env.fake.sentOfType(buttplug.TypeSensorReadCmd))
}

func TestReadSensor(t *testing.T) {
	env := newTestEnv(t, testOptions{}, vibrator(0))

	rec := env.do(t, http.MethodGet, "/devices/0/sensors/0/read", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	reading := decode[SensorReadingResource](t, rec)
	assert.Equal(t, "/devices/0/sensors/0/read", reading.ID)
	assert.Equal(t, "/devices/0/sensors/0", reading.Sensor)
	assert.Equal(t, []int32{87}, reading.Value)

	rec = env.do(t, http.MethodGet, "/devices/0/sensors/0", "")
	require.Equal(t, http.StatusOK, rec.Code)
	sensor := decode[SensorResource](t, rec)
	assert.Equal(t, "Battery", sensor.SensorType)
	assert.Equal(t, []int32{87}, sensor.LastReading)

	rec = env.do(t, http.MethodGet, "/devices/0/sensors", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]SensorResource](t, rec), 1)
}

func TestConnectionLossThenCommand(t *testing.T) {
	env := newTestEnv(t, testOptions{}, vibrator(0))

	env.fake.Disconnect()

	requireError(t, env.do(t, http.MethodPost, "/devices/0/actuators/0", `{"intensity": 0.5}`),
		http.StatusServiceUnavailable, ErrCodeConnection)
	assert.Empty(t, env.fake.sentOfType(buttplug.TypeScalarCmd))

	select {
	case <-env.gw.Disconnected():
	case <-time.After(eventually):
		t.Fatal("gateway never observed the connection loss")
	}
	assert.Zero(t, env.gw.Status().Devices)
	requireError(t, env.do(t, http.MethodGet, "/devices", ""), http.StatusServiceUnavailable, ErrCodeConnection)

	// Reconnecting repopulates the registry.
	require.NoError(t, env.gw.Connect(context.Background()))
	rec := env.do(t, http.MethodGet, "/devices/0/actuators/0", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0.0, decode[ActuatorResource](t, rec).Intensity)
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		method string
		path   string
		body   string
		setup  func(*fakeIntiface)
		status int
		code   string
	}{
		{name: "intensity above range", method: http.MethodPost, path: "/devices/0/actuators/0", body: `{"intensity": 1.5}`, status: http.StatusBadRequest, code: ErrCodeValidation},
		{name: "intensity missing", method: http.MethodPost, path: "/devices/0/actuators/0", body: `{}`, status: http.StatusBadRequest, code: ErrCodeValidation},
		{name: "body missing", method: http.MethodPost, path: "/devices/0/actuators/0", status: http.StatusBadRequest, code: ErrCodeValidation},
		{name: "malformed JSON", method: http.MethodPost, path: "/devices/0/actuators/0", body: `{"intensity":`, status: http.StatusBadRequest, code: ErrCodeValidation},
		{name: "intensity wrong type", method: http.MethodPost, path: "/devices/0/actuators/0", body: `{"intensity": "high"}`, status: http.StatusBadRequest, code: ErrCodeValidation},
		{name: "non-numeric device", method: http.MethodGet, path: "/devices/abc", status: http.StatusBadRequest, code: ErrCodeValidation},
		{name: "GET on stop-all falls through to device lookup", method: http.MethodGet, path: "/devices/stop", status: http.StatusBadRequest, code: ErrCodeValidation},
		{name: "negative capability index", method: http.MethodGet, path: "/devices/0/actuators/-1", status: http.StatusBadRequest, code: ErrCodeValidation},
		{name: "unknown device", method: http.MethodGet, path: "/devices/9/actuators", status: http.StatusNotFound, code: ErrCodeDeviceNotFound},
		{name: "actuator out of range", method: http.MethodGet, path: "/devices/0/actuators/7", status: http.StatusNotFound, code: ErrCodeCapabilityNotFound},
		{name: "sensor out of range", method: http.MethodGet, path: "/devices/0/sensors/3/read", status: http.StatusNotFound, code: ErrCodeCapabilityNotFound},
		{name: "rotatory on a vibrator", method: http.MethodPost, path: "/devices/0/rotatory_actuators/0", body: `{"speed": 0.5, "clockwise": true}`, status: http.StatusNotFound, code: ErrCodeKindMismatch},
		{name: "linear on a vibrator", method: http.MethodGet, path: "/devices/0/linear_actuators/1", status: http.StatusNotFound, code: ErrCodeKindMismatch},
		{
			name: "server rejects command", method: http.MethodPost, path: "/devices/0/actuators/0", body: `{"intensity": 0.2}`,
			setup:  func(f *fakeIntiface) { f.setReject(buttplug.TypeScalarCmd, "device disconnected mid-command") },
			status: http.StatusBadGateway, code: ErrCodeProtocol,
		},
		{
			name: "no response in time", method: http.MethodGet, path: "/devices/0/sensors/0/read",
			setup:  func(f *fakeIntiface) { f.setSilent(buttplug.TypeSensorReadCmd) },
			status: http.StatusGatewayTimeout, code: ErrCodeTimeout,
		},
		{name: "unknown route", method: http.MethodGet, path: "/nope", status: http.StatusNotFound, code: ErrCodeNotFound},
		{name: "wrong method", method: http.MethodDelete, path: "/devices/0", status: http.StatusMethodNotAllowed, code: ErrCodeMethodNotAllow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, testOptions{commandTimeout: 50 * time.Millisecond}, vibrator(0))
			if tt.setup != nil {
				tt.setup(env.fake)
			}
			requireError(t, env.do(t, tt.method, tt.path, tt.body), tt.status, tt.code)
		})
	}
}

func TestDeviceRemovedMidRequest(t *testing.T) {
	env := newTestEnv(t, testOptions{commandTimeout: 5 * time.Second}, vibrator(0))
	env.fake.setSilent(buttplug.TypeScalarCmd)

	done := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		done <- env.do(t, http.MethodPost, "/devices/0/actuators/0", `{"intensity": 0.7}`)
	}()

	require.Eventually(t, func() bool { return len(env.fake.sentOfType(buttplug.TypeScalarCmd)) == 1 }, eventually, tick)
	env.fake.removeDevice(0)

	select {
	case rec := <-done:
		requireError(t, rec, http.StatusConflict, ErrCodeDeviceGone)
	case <-time.After(eventually):
		t.Fatal("request did not resolve after device removal")
	}

	requireError(t, env.do(t, http.MethodGet, "/devices/0/actuators/0", ""), http.StatusNotFound, ErrCodeDeviceNotFound)
}

func TestRotatoryAndLinearActuators(t *testing.T) {
	env := newTestEnv(t, testOptions{}, stroker(1))

	rec := env.do(t, http.MethodPost, "/devices/1/rotatory_actuators/0", `{"speed": 0.25, "clockwise": false}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = env.do(t, http.MethodGet, "/devices/1/rotatory_actuators/0", "")
	rot := decode[RotatoryActuatorResource](t, rec)
	assert.Equal(t, 0.25, rot.Speed)
	assert.False(t, rot.Clockwise)

	rec = env.do(t, http.MethodPost, "/devices/1/linear_actuators/0", `{"duration": 500, "position": 0.9}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = env.do(t, http.MethodGet, "/devices/1/linear_actuators/0", "")
	lin := decode[LinearActuatorResource](t, rec)
	assert.Equal(t, uint32(500), lin.Duration)
	assert.Equal(t, 0.9, lin.Position)

	rec = env.do(t, http.MethodGet, "/devices/1/linear_actuators", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]LinearActuatorResource](t, rec), 1)
	rec = env.do(t, http.MethodGet, "/devices/1/rotatory_actuators", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]RotatoryActuatorResource](t, rec), 1)

	requireError(t, env.do(t, http.MethodPost, "/devices/1/rotatory_actuators/0", `{"speed": 0.25}`), http.StatusBadRequest, ErrCodeValidation)
	requireError(t, env.do(t, http.MethodPost, "/devices/1/linear_actuators/0", `{"duration": 0, "position": 0.5}`), http.StatusBadRequest, ErrCodeValidation)
	requireError(t, env.do(t, http.MethodPost, "/devices/1/linear_actuators/0", `{"duration": 1.5, "position": 0.5}`), http.StatusBadRequest, ErrCodeValidation)
	requireError(t, env.do(t, http.MethodPost, "/devices/1/linear_actuators/0", `{"duration": 100, "position": -0.1}`), http.StatusBadRequest, ErrCodeValidation)

	assert.Len(t, env.fake.sentOfType(buttplug.TypeRotateCmd), 1)
	assert.Len(t, env.fake.sentOfType(buttplug.TypeLinearCmd), 1)
}

func TestStopEndpoints(t *testing.T) {
	env := newTestEnv(t, testOptions{}, vibrator(0))

	rec := env.do(t, http.MethodPost, "/devices/0/actuators/0", `{"intensity": 0.8}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, "/devices/0/stop", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "stopped", decode[CommandResult](t, rec).Status)
	rec = env.do(t, http.MethodGet, "/devices/0/actuators/0", "")
	assert.Equal(t, 0.0, decode[ActuatorResource](t, rec).Intensity)

	rec = env.do(t, http.MethodPost, "/devices/stop", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	requireError(t, env.do(t, http.MethodPost, "/devices/4/stop", ""), http.StatusNotFound, ErrCodeDeviceNotFound)

	assert.Len(t, env.fake.sentOfType(buttplug.TypeStopDeviceCmd), 1)
	assert.Len(t, env.fake.sentOfType(buttplug.TypeStopAllDevices), 1)
}

type checkFunc func(ctx context.Context) error

func (f checkFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

func TestHealth(t *testing.T) {
	env := newTestEnv(t, testOptions{checks: map[string]HealthChecker{
		"mqtt":     checkFunc(func(context.Context) error { return nil }),
		"influxdb": checkFunc(func(context.Context) error { return errors.New("influxdb: not healthy") }),
	}}, vibrator(0))

	rec := env.do(t, http.MethodGet, "/api/v1/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	health := decode[HealthResponse](t, rec)
	assert.Equal(t, "degraded", health.Status)
	assert.True(t, health.Gateway.Connected)
	assert.Equal(t, "Fake Intiface", health.Gateway.ServerName)
	assert.Equal(t, 1, health.Gateway.Devices)
	assert.Equal(t, "ok", health.Checks["mqtt"])
	assert.Equal(t, "influxdb: not healthy", health.Checks["influxdb"])
	assert.Equal(t, "test", health.Version)

	env.fake.Disconnect()
	rec = env.do(t, http.MethodGet, "/api/v1/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.False(t, decode[HealthResponse](t, rec).Gateway.Connected)
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := gateway.NewMetrics()
	env := newTestEnv(t, testOptions{gatherer: reg, metrics: metrics}, vibrator(0))
	require.NoError(t, metrics.Register(reg, env.gw))

	rec := env.do(t, http.MethodPost, "/devices/0/actuators/0", `{"intensity": 0.3}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "buttrest_gateway_devices 1")
	assert.Contains(t, body, "buttrest_gateway_connected 1")
	assert.Contains(t, body, `buttrest_gateway_commands_total{outcome="ok",type="ScalarCmd"} 1`)
}

type memoryAudit struct {
	mu      sync.Mutex
	entries []audit.CommandEntry
	last    audit.Filter
}

func (m *memoryAudit) Create(_ context.Context, e *audit.CommandEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, *e)
	return nil
}

func (m *memoryAudit) List(_ context.Context, f audit.Filter) (*audit.ListResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.last = f
	out := []audit.CommandEntry{}
	for _, e := range m.entries {
		if f.DeviceIndex != nil && (e.DeviceIndex == nil || *e.DeviceIndex != *f.DeviceIndex) {
			continue
		}
		out = append(out, e)
	}
	return &audit.ListResult{Entries: out, Total: len(out), Limit: f.Limit, Offset: f.Offset}, nil
}

func TestDeviceCommandsRoute(t *testing.T) {
	zero, two := uint32(0), uint32(2)
	repo := &memoryAudit{entries: []audit.CommandEntry{
		{ID: "a", CommandID: 5, DeviceIndex: &zero, CommandType: buttplug.TypeScalarCmd, Outcome: "ok"},
		{ID: "b", CommandID: 6, DeviceIndex: &two, CommandType: buttplug.TypeLinearCmd, Outcome: "timeout"},
	}}
	env := newTestEnv(t, testOptions{audit: repo}, vibrator(0))

	rec := env.do(t, http.MethodGet, "/devices/0/commands?limit=10&offset=0&outcome=ok", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	page := decode[audit.ListResult](t, rec)
	require.Len(t, page.Entries, 1)
	assert.Equal(t, "a", page.Entries[0].ID)
	assert.Equal(t, 10, repo.last.Limit)
	assert.Equal(t, "ok", repo.last.Outcome)

	// History is kept for indices no longer in the registry.
	rec = env.do(t, http.MethodGet, "/devices/2/commands", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[audit.ListResult](t, rec).Entries, 1)

	requireError(t, env.do(t, http.MethodGet, "/devices/0/commands?limit=ten", ""), http.StatusBadRequest, ErrCodeValidation)
}

func TestDeviceCommandsRouteDisabledWithoutAudit(t *testing.T) {
	env := newTestEnv(t, testOptions{}, vibrator(0))
	requireError(t, env.do(t, http.MethodGet, "/devices/0/commands", ""), http.StatusNotFound, ErrCodeNotFound)
}

func TestRequestIDAndCORS(t *testing.T) {
	env := newTestEnv(t, testOptions{cors: []string{"http://panel.local"}}, vibrator(0))

	req := httptest.NewRequest(http.MethodGet, "/devices", nil)
	req.Header.Set("X-Request-ID", "req-123")
	req.Header.Set("Origin", "http://panel.local")
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	assert.Equal(t, "req-123", rec.Header().Get("X-Request-ID"))
	assert.Equal(t, "http://panel.local", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/devices/0/actuators/0", nil)
	req.Header.Set("Origin", "http://evil.local")
	rec = httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestServerStartAndClose(t *testing.T) {
	fake := newFakeIntiface()
	gw, err := gateway.New(gateway.Config{}, gateway.Deps{Session: fake})
	require.NoError(t, err)
	defer gw.Close()

	srv, err := New(Deps{
		Config:  config.APIConfig{Host: "127.0.0.1", Port: 0, Timeouts: config.APITimeoutConfig{Read: 5, Write: 5, Idle: 5}},
		Logger:  logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stderr"}, "test"),
		Gateway: gw,
	})
	require.NoError(t, err)
	assert.Error(t, srv.HealthCheck(context.Background()))

	require.NoError(t, srv.Start(context.Background()))
	assert.NoError(t, srv.HealthCheck(context.Background()))

	resp, err := http.Get("http://" + srv.Addr() + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Disconnected: device routes report the outage.
	resp, err = http.Get("http://" + srv.Addr() + "/devices")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	require.NoError(t, srv.Close())
}
