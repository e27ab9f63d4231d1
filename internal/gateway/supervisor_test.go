package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/buttrest/internal/session"
)

func TestSuperviseReconnectsAfterLoss(t *testing.T) {
	fs := newFakeSession(vibrator(0))
	gw := newTestGateway(t, fs, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Supervise(ctx, gw, NewBackOff(5*time.Millisecond, 20*time.Millisecond)) }()

	require.Eventually(t, gw.IsConnected, eventually, tick)

	fs.Disconnect()
	require.Eventually(t, func() bool {
		return fs.connectCount() == 2 && gw.IsConnected() && gw.Status().Devices == 1
	}, eventually, tick)

	cancel()
	assert.NoError(t, <-done)
}

func TestSuperviseRetriesFailedConnects(t *testing.T) {
	fs := newFakeSession()
	fs.connectErr = session.ErrConnectionFailed
	gw := newTestGateway(t, fs, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Supervise(ctx, gw, NewBackOff(5*time.Millisecond, 10*time.Millisecond)) }()

	time.Sleep(30 * time.Millisecond)
	assert.False(t, gw.IsConnected())

	fs.mu.Lock()
	fs.connectErr = nil
	fs.mu.Unlock()

	require.Eventually(t, gw.IsConnected, eventually, tick)

	cancel()
	assert.NoError(t, <-done)
}

func TestSuperviseStopsWhenGatewayClosed(t *testing.T) {
	fs := newFakeSession()
	fs.connectErr = session.ErrConnectionFailed
	gw := newTestGateway(t, fs, Config{})
	require.NoError(t, gw.Close())

	err := Supervise(context.Background(), gw, NewBackOff(time.Millisecond, time.Millisecond))
	assert.ErrorIs(t, err, ErrClosed)
}
