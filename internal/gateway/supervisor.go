package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// NewBackOff returns the reconnect policy used by Supervise: exponential
// between initial and max, retrying forever.
func NewBackOff(initial, maxInterval time.Duration) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initial
	b.MaxInterval = maxInterval
	b.MaxElapsedTime = 0
	return b
}

// Supervise keeps the gateway connected until ctx ends: it connects with
// retries paced by b, waits for the connection to drop and starts over.
// The gateway never reconnects on its own; this is the process owner's
// policy. Returns nil when ctx is cancelled.
func Supervise(ctx context.Context, gw *Gateway, b backoff.BackOff) error {
	for {
		b.Reset()

		connect := func() error {
			err := gw.Connect(ctx)
			switch {
			case err == nil, errors.Is(err, ErrAlreadyConnected):
				return nil
			case errors.Is(err, ErrClosed), ctx.Err() != nil:
				return backoff.Permanent(err)
			default:
				return err
			}
		}
		notify := func(err error, wait time.Duration) {
			gw.logger.Warn("connecting to control server failed, retrying",
				"error", err,
				"retry_in", wait,
			)
		}

		if err := backoff.RetryNotify(connect, backoff.WithContext(b, ctx), notify); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		select {
		case <-ctx.Done():
			return nil
		case <-gw.Disconnected():
			gw.logger.Info("control server connection lost, reconnecting")
		}
	}
}
