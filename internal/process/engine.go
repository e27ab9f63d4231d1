package process

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/nerrad567/buttrest/internal/infrastructure/config"
)

// EngineName labels the managed intiface-engine in logs and stats.
const EngineName = "intiface-engine"

const (
	engineMaxRestartDelay     = time.Minute
	engineHealthCheckInterval = 30 * time.Second
	engineDialTimeout         = 2 * time.Second
)

// EngineArgs builds the intiface-engine command line: the websocket port
// followed by any configured extra arguments.
func EngineArgs(cfg config.EngineConfig) []string {
	args := make([]string, 0, len(cfg.Args)+2)
	args = append(args, "--websocket-port", strconv.Itoa(cfg.Port))
	return append(args, cfg.Args...)
}

// EngineAddr is the loopback address the managed engine listens on.
func EngineAddr(cfg config.EngineConfig) string {
	return net.JoinHostPort("127.0.0.1", strconv.Itoa(cfg.Port))
}

// NewEngine returns a Manager for a local intiface-engine. Its health check
// dials the websocket port.
func NewEngine(cfg config.EngineConfig) *Manager {
	return NewManager(Config{
		Name:                EngineName,
		Binary:              cfg.Binary,
		Args:                EngineArgs(cfg),
		RestartOnFailure:    cfg.RestartOnFailure,
		RestartDelay:        cfg.RestartDelay,
		MaxRestartDelay:     engineMaxRestartDelay,
		MaxRestartAttempts:  cfg.MaxRestartAttempts,
		GracefulTimeout:     cfg.GracefulTimeout,
		HealthCheckFunc:     PortCheck(EngineAddr(cfg)),
		HealthCheckInterval: engineHealthCheckInterval,
	})
}

// PortCheck returns a health check that succeeds when addr accepts TCP connections.
func PortCheck(addr string) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		d := net.Dialer{Timeout: engineDialTimeout}
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return fmt.Errorf("dialing %s: %w", addr, err)
		}
		return conn.Close()
	}
}

// WaitForPort blocks until addr accepts TCP connections, polling every
// interval, or until ctx ends.
func WaitForPort(ctx context.Context, addr string, interval time.Duration) error {
	check := PortCheck(addr)
	op := func() error { return check(ctx) }
	b := backoff.WithContext(backoff.NewConstantBackOff(interval), ctx)
	if err := backoff.Retry(op, b); err != nil {
		return fmt.Errorf("waiting for %s: %w", addr, err)
	}
	return nil
}
