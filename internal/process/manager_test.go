package process

import (
	"context"
	"errors"
	"os/exec"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewManager_Defaults(t *testing.T) {
	cfg := Config{
		Name:   "engine",
		Binary: "/usr/local/bin/intiface-engine",
		Args:   []string{"--websocket-port", "12345"},
	}

	m := NewManager(cfg)

	if m.config.Name != "engine" {
		t.Errorf("Name = %q, want %q", m.config.Name, "engine")
	}
	if m.config.RestartDelay != 5*time.Second {
		t.Errorf("RestartDelay = %v, want %v", m.config.RestartDelay, 5*time.Second)
	}
	if m.config.MaxRestartDelay != 5*time.Minute {
		t.Errorf("MaxRestartDelay = %v, want %v", m.config.MaxRestartDelay, 5*time.Minute)
	}
	if m.config.StableThreshold != 2*time.Minute {
		t.Errorf("StableThreshold = %v, want %v", m.config.StableThreshold, 2*time.Minute)
	}
	if m.config.GracefulTimeout != 10*time.Second {
		t.Errorf("GracefulTimeout = %v, want %v", m.config.GracefulTimeout, 10*time.Second)
	}
	if m.config.HealthCheckInterval != 30*time.Second {
		t.Errorf("HealthCheckInterval = %v, want %v", m.config.HealthCheckInterval, 30*time.Second)
	}
}

func TestManager_InitialState(t *testing.T) {
	m := NewManager(Config{
		Name:   "test",
		Binary: "/bin/true",
	})

	if m.Status() != StatusStopped {
		t.Errorf("initial Status() = %q, want %q", m.Status(), StatusStopped)
	}
	if m.IsRunning() {
		t.Error("IsRunning() = true, want false")
	}
	if m.PID() != 0 {
		t.Errorf("PID() = %d, want 0", m.PID())
	}
	if m.RestartCount() != 0 {
		t.Errorf("RestartCount() = %d, want 0", m.RestartCount())
	}
	if m.Uptime() != 0 {
		t.Errorf("Uptime() = %v, want 0", m.Uptime())
	}
	if m.LastError() != nil {
		t.Errorf("LastError() = %v, want nil", m.LastError())
	}
}

func TestManager_Stats(t *testing.T) {
	m := NewManager(Config{
		Name:   "stats-test",
		Binary: "/bin/echo",
	})

	stats := m.Stats()
	if stats.Name != "stats-test" {
		t.Errorf("Stats.Name = %q, want %q", stats.Name, "stats-test")
	}
	if stats.Status != StatusStopped {
		t.Errorf("Stats.Status = %q, want %q", stats.Status, StatusStopped)
	}
	if stats.PID != 0 {
		t.Errorf("Stats.PID = %d, want 0", stats.PID)
	}
	if stats.RestartCount != 0 {
		t.Errorf("Stats.RestartCount = %d, want 0", stats.RestartCount)
	}
	if stats.LastError != "" {
		t.Errorf("Stats.LastError = %q, want empty", stats.LastError)
	}
}

func TestManager_StopWhenNotRunning(t *testing.T) {
	m := NewManager(Config{
		Name:   "test",
		Binary: "/bin/true",
	})

	// Stopping a non-running process should be a no-op
	if err := m.Stop(); err != nil {
		t.Errorf("Stop() on stopped process error = %v, want nil", err)
	}
}

func TestManager_StartAlreadyRunning(t *testing.T) {
	m := NewManager(Config{
		Name:   "test",
		Binary: "/bin/sleep",
		Args:   []string{"10"},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start the process
	if err := m.Start(ctx); err != nil {
		t.Fatalf("first Start() error: %v", err)
	}
	defer m.Stop()

	// Starting again should fail
	err := m.Start(ctx)
	if err == nil {
		t.Error("second Start() expected error, got nil")
	}
}

func TestManager_StartAndStop(t *testing.T) {
	m := NewManager(Config{
		Name:            "test-sleep",
		Binary:          "/bin/sleep",
		Args:            []string{"60"},
		GracefulTimeout: 2 * time.Second,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	// Verify running state
	if !m.IsRunning() {
		t.Error("IsRunning() = false after Start()")
	}
	if m.PID() == 0 {
		t.Error("PID() = 0 after Start()")
	}
	if m.Status() != StatusRunning {
		t.Errorf("Status() = %q, want %q", m.Status(), StatusRunning)
	}

	// Stop the process
	if err := m.Stop(); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}

	// Give the monitor goroutine time to update state
	time.Sleep(100 * time.Millisecond)

	if m.IsRunning() {
		t.Error("IsRunning() = true after Stop()")
	}
}

func TestManager_StartWithInvalidBinary(t *testing.T) {
	m := NewManager(Config{
		Name:   "bad-binary",
		Binary: "/nonexistent/binary",
	})

	ctx := context.Background()
	err := m.Start(ctx)
	if err == nil {
		t.Fatal("Start() with invalid binary expected error, got nil")
	}

	if m.Status() != StatusFailed {
		t.Errorf("Status() = %q, want %q", m.Status(), StatusFailed)
	}
}

func TestCalculateBackoffDelay(t *testing.T) {
	m := NewManager(Config{
		Name:            "test",
		Binary:          "/bin/true",
		RestartDelay:    1 * time.Second,
		MaxRestartDelay: 30 * time.Second,
	})

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 1 * time.Second},  // First attempt: base delay
		{2, 2 * time.Second},  // 2nd: 1s * 2
		{3, 4 * time.Second},  // 3rd: 1s * 4
		{4, 8 * time.Second},  // 4th: 1s * 8
		{5, 16 * time.Second}, // 5th: 1s * 16
		{6, 30 * time.Second}, // 6th: capped at max
		{7, 30 * time.Second}, // 7th: stays at max
	}

	for _, tt := range tests {
		got := m.calculateBackoffDelay(tt.attempt)
		if got != tt.want {
			t.Errorf("calculateBackoffDelay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestIsRecoverable(t *testing.T) {
	t.Run("nil error is recoverable", func(t *testing.T) {
		if !IsRecoverable(nil) {
			t.Error("IsRecoverable(nil) = false, want true")
		}
	})

	t.Run("plain error is recoverable", func(t *testing.T) {
		err := context.DeadlineExceeded
		if !IsRecoverable(err) {
			t.Error("plain error should be recoverable by default")
		}
	})

	t.Run("recoverable error interface", func(t *testing.T) {
		err := &testRecoverableError{recoverable: true}
		if !IsRecoverable(err) {
			t.Error("recoverable error should return true")
		}
	})

	t.Run("non-recoverable error interface", func(t *testing.T) {
		err := &testRecoverableError{recoverable: false}
		if IsRecoverable(err) {
			t.Error("non-recoverable error should return false")
		}
	})
}

// testRecoverableError implements RecoverableError for testing.
type testRecoverableError struct {
	recoverable bool
}

func (e *testRecoverableError) Error() string       { return "test error" }
func (e *testRecoverableError) IsRecoverable() bool { return e.recoverable }

func TestNewManager_MaxDelayNotBelowInitial(t *testing.T) {
	m := NewManager(Config{
		Name:            "test",
		Binary:          "/bin/true",
		RestartDelay:    time.Minute,
		MaxRestartDelay: time.Second,
	})

	if m.config.MaxRestartDelay != time.Minute {
		t.Errorf("MaxRestartDelay = %v, want %v", m.config.MaxRestartDelay, time.Minute)
	}
	if got := m.calculateBackoffDelay(3); got != time.Minute {
		t.Errorf("calculateBackoffDelay(3) = %v, want %v", got, time.Minute)
	}
}

func TestStartError_IsRecoverable(t *testing.T) {
	missing := &StartError{Name: "engine", Err: exec.ErrNotFound}
	if IsRecoverable(missing) {
		t.Error("missing binary should not be recoverable")
	}

	transient := &StartError{Name: "engine", Err: errors.New("resource temporarily unavailable")}
	if !IsRecoverable(transient) {
		t.Error("transient start error should be recoverable")
	}
}

func TestManager_StartWithMissingBinaryIsPermanent(t *testing.T) {
	m := NewManager(Config{
		Name:   "missing",
		Binary: "/nonexistent/intiface-engine",
	})

	err := m.Start(context.Background())
	if err == nil {
		t.Fatal("Start() expected error, got nil")
	}
	if IsRecoverable(err) {
		t.Errorf("Start() error %v should not be recoverable", err)
	}
	if m.LastError() == nil {
		t.Error("LastError() = nil after failed Start()")
	}
}

func TestManager_RestartsAfterUnexpectedExit(t *testing.T) {
	var starts, restarts atomic.Int32
	m := NewManager(Config{
		Name:               "crashy",
		Binary:             "/bin/sh",
		Args:               []string{"-c", "exit 1"},
		RestartOnFailure:   true,
		RestartDelay:       10 * time.Millisecond,
		MaxRestartDelay:    20 * time.Millisecond,
		MaxRestartAttempts: 2,
		OnStart:            func() { starts.Add(1) },
		OnRestart:          func(int) { restarts.Add(1) },
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for starts.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if got := starts.Load(); got != 3 {
		t.Fatalf("process started %d times, want 3 (initial + 2 restarts)", got)
	}

	// Attempts are exhausted; the monitor gives up and leaves the process failed.
	for m.Status() != StatusFailed && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if m.Status() != StatusFailed {
		t.Errorf("Status() = %q, want %q", m.Status(), StatusFailed)
	}
	if got := restarts.Load(); got != 2 {
		t.Errorf("OnRestart called %d times, want 2", got)
	}
	if m.LastError() == nil {
		t.Error("LastError() = nil after crashes")
	}
}

func TestManager_NoRestartWhenDisabled(t *testing.T) {
	stopped := make(chan error, 1)
	m := NewManager(Config{
		Name:   "oneshot",
		Binary: "/bin/sh",
		Args:   []string{"-c", "exit 3"},
		OnStop: func(err error) { stopped <- err },
	})

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	select {
	case err := <-stopped:
		if err == nil {
			t.Error("OnStop error = nil, want exit status")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("OnStop was not called")
	}
	if m.RestartCount() != 0 {
		t.Errorf("RestartCount() = %d, want 0", m.RestartCount())
	}
}

func TestManager_StopDuringRestartDelay(t *testing.T) {
	exited := make(chan struct{}, 1)
	m := NewManager(Config{
		Name:             "slow-restart",
		Binary:           "/bin/sh",
		Args:             []string{"-c", "exit 1"},
		RestartOnFailure: true,
		RestartDelay:     time.Hour,
		OnStop: func(error) {
			select {
			case exited <- struct{}{}:
			default:
			}
		},
	})

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	select {
	case <-exited:
	case <-time.After(5 * time.Second):
		t.Fatal("process did not exit")
	}

	stopped := make(chan error, 1)
	go func() { stopped <- m.Stop() }()

	select {
	case err := <-stopped:
		if err != nil {
			t.Errorf("Stop() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Stop() blocked on the restart delay")
	}
	if m.Status() != StatusStopped {
		t.Errorf("Status() = %q, want %q", m.Status(), StatusStopped)
	}
}

func TestManager_ContextCancelStops(t *testing.T) {
	m := NewManager(Config{
		Name:             "ctx",
		Binary:           "/bin/sleep",
		Args:             []string{"60"},
		RestartOnFailure: true,
		RestartDelay:     10 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	cancel()

	deadline := time.Now().Add(5 * time.Second)
	for m.Status() != StatusStopped && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if m.Status() != StatusStopped {
		t.Errorf("Status() = %q, want %q", m.Status(), StatusStopped)
	}
	if m.RestartCount() != 0 {
		t.Errorf("RestartCount() = %d, want 0", m.RestartCount())
	}
}
