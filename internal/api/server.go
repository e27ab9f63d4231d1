package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nerrad567/buttrest/internal/audit"
	"github.com/nerrad567/buttrest/internal/device"
	"github.com/nerrad567/buttrest/internal/gateway"
	"github.com/nerrad567/buttrest/internal/infrastructure/config"
	"github.com/nerrad567/buttrest/internal/infrastructure/logging"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Gateway is the device gateway as seen by the handlers.
// *gateway.Gateway implements it.
type Gateway interface {
	Status() gateway.Status

	ListDevices() ([]device.Device, error)
	GetDevice(deviceIndex uint32) (*device.Device, error)
	StopDevice(ctx context.Context, deviceIndex uint32) error
	StopAll(ctx context.Context) error

	ListSensors(deviceIndex uint32) ([]device.Sensor, error)
	GetSensor(deviceIndex, sensorIndex uint32) (device.Sensor, error)
	ReadSensor(ctx context.Context, deviceIndex, sensorIndex uint32) ([]int32, error)

	ListActuators(deviceIndex uint32) ([]device.Actuator, error)
	GetActuator(deviceIndex, actuatorIndex uint32) (device.Actuator, error)
	SetActuator(ctx context.Context, deviceIndex, actuatorIndex uint32, intensity float64) error

	ListRotatoryActuators(deviceIndex uint32) ([]device.RotatoryActuator, error)
	GetRotatoryActuator(deviceIndex, actuatorIndex uint32) (device.RotatoryActuator, error)
	SetRotatoryActuator(ctx context.Context, deviceIndex, actuatorIndex uint32, speed float64, clockwise bool) error

	ListLinearActuators(deviceIndex uint32) ([]device.LinearActuator, error)
	GetLinearActuator(deviceIndex, actuatorIndex uint32) (device.LinearActuator, error)
	SetLinearActuator(ctx context.Context, deviceIndex, actuatorIndex uint32, duration int, position float64) error
}

var _ Gateway = (*gateway.Gateway)(nil)

// HealthChecker is implemented by optional backends reported on the health
// endpoint (MQTT, InfluxDB, SQLite).
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config  config.APIConfig
	Logger  *logging.Logger
	Gateway Gateway

	// Audit serves GET /devices/{d}/commands. Nil disables the route.
	Audit audit.Repository

	// Gatherer backs /metrics. Defaults to prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer

	// Checks are reported by /api/v1/health, keyed by name.
	Checks map[string]HealthChecker

	Version string
}

// Server is the HTTP API server for ButtRest.
type Server struct {
	cfg       config.APIConfig
	logger    *logging.Logger
	gateway   Gateway
	audit     audit.Repository
	gatherer  prometheus.Gatherer
	checks    map[string]HealthChecker
	version   string
	startTime time.Time

	server   *http.Server
	listener net.Listener
}

// New creates a new API server with the given dependencies.
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if deps.Gateway == nil {
		return nil, errors.New("gateway is required")
	}

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	return &Server{
		cfg:       deps.Config,
		logger:    deps.Logger,
		gateway:   deps.Gateway,
		audit:     deps.Audit,
		gatherer:  gatherer,
		checks:    deps.Checks,
		version:   deps.Version,
		startTime: time.Now(),
	}, nil
}

// Handler returns the HTTP handler with all routes and middleware.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start binds the listener and serves in a background goroutine.
// Bind errors (port in use) are returned directly.
func (s *Server) Start(_ context.Context) error {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	s.listener = ln

	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	s.logger.Info("API server listening", "address", ln.Addr().String())

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound listener address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return errors.New("api server not started")
	}

	return nil
}
