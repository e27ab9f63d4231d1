package influxdb

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/nerrad567/buttrest/internal/infrastructure/config"
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultPingTimeout    = 5 * time.Second

	defaultBatchSize     = 100
	defaultFlushInterval = 10 * time.Second
)

// Client writes activity points to one InfluxDB bucket through the
// client library's batching, non-blocking write API.
//
// All methods are safe for concurrent use. Write failures surface
// asynchronously through the SetOnError callback.
type Client struct {
	client influxdb2.Client
	writes api.WriteAPI

	open    atomic.Bool
	onError atomic.Pointer[func(error)]
}

// Connect pings the server and opens the write API for cfg.Org and
// cfg.Bucket. Returns ErrDisabled when cfg.Enabled is false.
func Connect(cfg config.InfluxDBConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, clientOptions(cfg))

	ctx, cancel := context.WithTimeout(context.Background(), defaultConnectTimeout)
	defer cancel()
	if err := ping(ctx, client); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	c := &Client{
		client: client,
		writes: client.WriteAPI(cfg.Org, cfg.Bucket),
	}
	c.open.Store(true)
	go c.forwardErrors(c.writes.Errors())

	return c, nil
}

// clientOptions applies batch defaults. FlushInterval is in seconds.
func clientOptions(cfg config.InfluxDBConfig) *influxdb2.Options {
	batch := uint(defaultBatchSize)
	if cfg.BatchSize > 0 {
		batch = uint(cfg.BatchSize) // #nosec G115 -- checked positive
	}
	interval := defaultFlushInterval
	if cfg.FlushInterval > 0 {
		interval = time.Duration(cfg.FlushInterval) * time.Second
	}
	return influxdb2.DefaultOptions().
		SetBatchSize(batch).
		SetFlushInterval(uint(interval.Milliseconds())) // #nosec G115 -- positive
}

func ping(ctx context.Context, client influxdb2.Client) error {
	healthy, err := client.Ping(ctx)
	if err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	if !healthy {
		return errors.New("server not healthy")
	}
	return nil
}

func (c *Client) forwardErrors(errs <-chan error) {
	for err := range errs {
		if fn := c.onError.Load(); fn != nil {
			(*fn)(err)
		}
	}
}

// SetOnError sets the callback for asynchronous write failures.
func (c *Client) SetOnError(fn func(error)) {
	c.onError.Store(&fn)
}

// Flush blocks until buffered points are sent. No-op once closed.
func (c *Client) Flush() {
	if c == nil || !c.open.Load() {
		return
	}
	c.writes.Flush()
}

// Close flushes buffered points and releases the client. Safe to call more
// than once and on a nil client.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	c.Flush()
	if !c.open.CompareAndSwap(true, false) {
		return nil
	}
	c.client.Close()
	return nil
}

// IsConnected reports whether the client is open. It does not contact the
// server; HealthCheck does.
func (c *Client) IsConnected() bool {
	return c.open.Load()
}

// HealthCheck pings the server, bounded by ctx and defaultPingTimeout.
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	ctx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()
	if err := ping(ctx, c.client); err != nil {
		return fmt.Errorf("influxdb health check: %w", err)
	}
	return nil
}
