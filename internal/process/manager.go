package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Status represents the current state of a managed process.
type Status string

const (
	StatusStopped  Status = "stopped"
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusFailed   Status = "failed"
)

// outputBufferSize is the buffer size for capturing subprocess stdout/stderr.
const outputBufferSize = 4096

// maxConsecutiveHealthFailures kills a process after this many failed checks in a row.
const maxConsecutiveHealthFailures = 3

// Config holds configuration for a managed subprocess.
type Config struct {
	// Name is a human-readable identifier for logging.
	Name string

	// Binary is the path to the executable.
	Binary string

	// Args are command-line arguments to pass to the binary.
	Args []string

	// Env are additional environment variables (key=value format).
	// If nil, inherits from parent process.
	Env []string

	// WorkDir is the working directory for the process.
	// If empty, inherits from parent process.
	WorkDir string

	// RestartOnFailure enables automatic restart when the process exits unexpectedly.
	RestartOnFailure bool

	// RestartDelay is the wait before the first restart. It doubles on each
	// further failure up to MaxRestartDelay.
	RestartDelay time.Duration

	// MaxRestartDelay caps the restart backoff.
	MaxRestartDelay time.Duration

	// StableThreshold is how long a process must run before the backoff and
	// restart count reset.
	StableThreshold time.Duration

	// MaxRestartAttempts limits restart attempts. 0 means unlimited.
	MaxRestartAttempts int

	// GracefulTimeout is how long to wait for graceful shutdown before SIGKILL.
	GracefulTimeout time.Duration

	// HealthCheckFunc is called periodically to verify the process is healthy.
	// If nil, process is considered healthy if running.
	HealthCheckFunc func(ctx context.Context) error

	// HealthCheckInterval is how often to run health checks.
	HealthCheckInterval time.Duration

	// OnStart is called when the process starts successfully.
	OnStart func()

	// OnStop is called when the process stops (either normally or due to failure).
	OnStop func(err error)

	// OnRestart is called before each restart attempt.
	OnRestart func(attempt int)
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig(name, binary string, args []string) Config {
	return Config{
		Name:                name,
		Binary:              binary,
		Args:                args,
		RestartOnFailure:    true,
		RestartDelay:        5 * time.Second,
		MaxRestartDelay:     5 * time.Minute,
		StableThreshold:     2 * time.Minute,
		MaxRestartAttempts:  10,
		GracefulTimeout:     10 * time.Second,
		HealthCheckInterval: 30 * time.Second,
	}
}

// RecoverableError is implemented by errors that know whether a restart
// could help.
type RecoverableError interface {
	error
	IsRecoverable() bool
}

// IsRecoverable reports whether restarting after err is worthwhile.
// Errors that do not implement RecoverableError are treated as recoverable.
func IsRecoverable(err error) bool {
	var re RecoverableError
	if errors.As(err, &re) {
		return re.IsRecoverable()
	}
	return true
}

// StartError is returned when the binary cannot be launched.
type StartError struct {
	Name string
	Err  error
}

func (e *StartError) Error() string { return fmt.Sprintf("starting %s: %v", e.Name, e.Err) }
func (e *StartError) Unwrap() error { return e.Err }

// IsRecoverable is false when the binary is missing or not executable.
func (e *StartError) IsRecoverable() bool {
	return !errors.Is(e.Err, exec.ErrNotFound) &&
		!errors.Is(e.Err, fs.ErrNotExist) &&
		!errors.Is(e.Err, fs.ErrPermission)
}

// Logger defines the logging interface for the process manager.
// *slog.Logger satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Manager manages the lifecycle of a subprocess.
type Manager struct {
	config Config
	logger Logger

	mu            sync.RWMutex
	cmd           *exec.Cmd
	status        Status
	restartCount  int
	lastError     error
	startTime     time.Time
	stopRequested bool
	restarts      *backoff.ExponentialBackOff

	stopCh chan struct{}
	done   chan struct{}
}

// errStopRequested aborts a launch that raced with Stop.
var errStopRequested = errors.New("stop requested")

// NewManager creates a new process manager with the given configuration.
func NewManager(cfg Config) *Manager {
	if cfg.RestartDelay == 0 {
		cfg.RestartDelay = 5 * time.Second
	}
	if cfg.MaxRestartDelay == 0 {
		cfg.MaxRestartDelay = 5 * time.Minute
	}
	if cfg.MaxRestartDelay < cfg.RestartDelay {
		cfg.MaxRestartDelay = cfg.RestartDelay
	}
	if cfg.StableThreshold == 0 {
		cfg.StableThreshold = 2 * time.Minute
	}
	if cfg.GracefulTimeout == 0 {
		cfg.GracefulTimeout = 10 * time.Second
	}
	if cfg.HealthCheckInterval == 0 {
		cfg.HealthCheckInterval = 30 * time.Second
	}

	return &Manager{
		config:   cfg,
		logger:   noopLogger{},
		status:   StatusStopped,
		restarts: newRestartBackOff(cfg.RestartDelay, cfg.MaxRestartDelay),
	}
}

// newRestartBackOff doubles from initial to maxDelay without jitter and never
// gives up on its own; MaxRestartAttempts bounds the retries instead.
func newRestartBackOff(initial, maxDelay time.Duration) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initial
	b.MaxInterval = maxDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// SetLogger sets the logger for the manager.
func (m *Manager) SetLogger(logger Logger) {
	m.logger = logger
}

// Start launches the subprocess and begins monitoring it.
// Returns an error if the process fails to start.
// The process will be automatically restarted on failure if configured.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.status == StatusRunning || m.status == StatusStarting {
		m.mu.Unlock()
		return fmt.Errorf("process %s is already running", m.config.Name)
	}
	if m.done != nil {
		select {
		case <-m.done:
		default:
			m.mu.Unlock()
			return fmt.Errorf("process %s is waiting to restart", m.config.Name)
		}
	}
	m.status = StatusStarting
	m.stopRequested = false
	m.restartCount = 0
	m.restarts.Reset()
	stopCh := make(chan struct{})
	done := make(chan struct{})
	m.stopCh = stopCh
	m.done = done
	m.mu.Unlock()

	if err := m.startProcess(ctx); err != nil {
		m.setStatus(StatusFailed, err)
		close(done)
		return err
	}

	go m.monitor(ctx, stopCh, done)

	return nil
}

func (m *Manager) startProcess(ctx context.Context) error {
	m.logger.Info("starting process",
		"name", m.config.Name,
		"binary", m.config.Binary,
		"args", m.config.Args,
	)

	cmd := exec.CommandContext(ctx, m.config.Binary, m.config.Args...) //nolint:gosec // Binary path comes from validated configuration

	// Own process group so Stop can signal any children too.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if m.config.Env != nil {
		cmd.Env = append(os.Environ(), m.config.Env...)
	}
	if m.config.WorkDir != "" {
		cmd.Dir = m.config.WorkDir
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("creating stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("creating stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return &StartError{Name: m.config.Name, Err: err}
	}

	m.mu.Lock()
	if m.stopRequested {
		m.mu.Unlock()
		_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		_ = cmd.Wait()
		return errStopRequested
	}
	m.cmd = cmd
	m.status = StatusRunning
	m.startTime = time.Now()
	m.mu.Unlock()

	go m.captureOutput("stdout", stdout)
	go m.captureOutput("stderr", stderr)

	m.logger.Info("process started",
		"name", m.config.Name,
		"pid", cmd.Process.Pid,
	)

	if m.config.OnStart != nil {
		m.config.OnStart()
	}

	return nil
}

// captureOutput reads from the given reader and logs each chunk.
func (m *Manager) captureOutput(stream string, r io.Reader) {
	buf := make([]byte, outputBufferSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			m.logger.Debug("process output",
				"name", m.config.Name,
				"stream", stream,
				"output", string(buf[:n]),
			)
		}
		if err != nil {
			return
		}
	}
}

// waitForExitOrHealthFailure waits for the process to exit or for health
// checks to fail repeatedly, in which case the process is killed.
func (m *Manager) waitForExitOrHealthFailure(ctx context.Context, cmd *exec.Cmd) error {
	exitCh := make(chan error, 1)
	go func() {
		exitCh <- cmd.Wait()
	}()

	if m.config.HealthCheckFunc == nil {
		return <-exitCh
	}

	ticker := time.NewTicker(m.config.HealthCheckInterval)
	defer ticker.Stop()

	consecutiveFailures := 0
	for {
		select {
		case err := <-exitCh:
			return err

		case <-ctx.Done():
			// CommandContext kills the process; collect its exit.
			return <-exitCh

		case <-ticker.C:
			checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := m.config.HealthCheckFunc(checkCtx)
			cancel()

			if err == nil {
				if consecutiveFailures > 0 {
					m.logger.Info("health check recovered",
						"name", m.config.Name,
						"previous_failures", consecutiveFailures,
					)
				}
				consecutiveFailures = 0
				continue
			}

			consecutiveFailures++
			m.logger.Warn("health check failed",
				"name", m.config.Name,
				"error", err,
				"consecutive_failures", consecutiveFailures,
			)
			if consecutiveFailures < maxConsecutiveHealthFailures {
				continue
			}

			m.logger.Error("health check failed repeatedly, killing process",
				"name", m.config.Name,
				"failures", consecutiveFailures,
			)
			if cmd.Process != nil {
				_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
			}
			select {
			case exitErr := <-exitCh:
				if exitErr != nil {
					return fmt.Errorf("killed due to health check failure: %w", exitErr)
				}
				return fmt.Errorf("killed due to health check failure after %d consecutive failures", consecutiveFailures)
			case <-time.After(5 * time.Second):
				return errors.New("process did not exit after kill (health check failure)")
			}
		}
	}
}

// monitor watches the process and handles restarts.
func (m *Manager) monitor(ctx context.Context, stopCh <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	for {
		m.mu.RLock()
		cmd := m.cmd
		startTime := m.startTime
		m.mu.RUnlock()

		if cmd == nil {
			return
		}

		err := m.waitForExitOrHealthFailure(ctx, cmd)

		m.mu.Lock()
		stopRequested := m.stopRequested || ctx.Err() != nil
		m.mu.Unlock()

		if stopRequested {
			m.logger.Info("process stopped as requested", "name", m.config.Name)
			m.setStatus(StatusStopped, nil)
			if m.config.OnStop != nil {
				m.config.OnStop(nil)
			}
			return
		}

		if err == nil {
			err = errors.New("exited with status 0")
		}
		m.logger.Warn("process exited unexpectedly",
			"name", m.config.Name,
			"error", err,
			"ran_for", time.Since(startTime),
		)
		m.setStatus(StatusFailed, err)

		if m.config.OnStop != nil {
			m.config.OnStop(err)
		}

		if !m.config.RestartOnFailure {
			m.logger.Info("restart disabled, not restarting", "name", m.config.Name)
			return
		}

		if !m.restartWithBackoff(ctx, stopCh, time.Since(startTime)) {
			return
		}
	}
}

// restartWithBackoff waits out the next backoff delay and starts the process
// again, retrying failed launches. Returns false when monitoring should end.
func (m *Manager) restartWithBackoff(ctx context.Context, stopCh <-chan struct{}, ranFor time.Duration) bool {
	m.mu.Lock()
	if ranFor >= m.config.StableThreshold {
		m.restartCount = 0
		m.restarts.Reset()
	}
	m.mu.Unlock()

	for {
		m.mu.Lock()
		m.restartCount++
		attempt := m.restartCount
		delay := m.restarts.NextBackOff()
		m.mu.Unlock()

		if m.config.MaxRestartAttempts > 0 && attempt > m.config.MaxRestartAttempts {
			m.logger.Error("max restart attempts reached",
				"name", m.config.Name,
				"attempts", attempt-1,
			)
			return false
		}

		m.logger.Info("restarting process",
			"name", m.config.Name,
			"attempt", attempt,
			"delay", delay,
		)
		if m.config.OnRestart != nil {
			m.config.OnRestart(attempt)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			m.logger.Info("context cancelled, not restarting", "name", m.config.Name)
			m.setStatus(StatusStopped, nil)
			return false
		case <-stopCh:
			timer.Stop()
			m.setStatus(StatusStopped, nil)
			return false
		case <-timer.C:
		}

		err := m.startProcess(ctx)
		if err == nil {
			return true
		}
		if errors.Is(err, errStopRequested) {
			m.setStatus(StatusStopped, nil)
			return false
		}
		m.logger.Error("failed to restart process",
			"name", m.config.Name,
			"error", err,
		)
		m.setStatus(StatusFailed, err)
		if !IsRecoverable(err) {
			return false
		}
	}
}

// calculateBackoffDelay returns the delay used before the given restart
// attempt (1-based) under this manager's policy.
func (m *Manager) calculateBackoffDelay(attempt int) time.Duration {
	b := newRestartBackOff(m.config.RestartDelay, m.config.MaxRestartDelay)
	var delay time.Duration
	for i := 0; i < attempt; i++ {
		delay = b.NextBackOff()
	}
	return delay
}

func (m *Manager) setStatus(status Status, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status = status
	if err != nil {
		m.lastError = err
	}
}

// Stop gracefully stops the subprocess.
// It sends SIGTERM and waits for graceful shutdown, then SIGKILL if needed.
func (m *Manager) Stop() error {
	m.mu.Lock()
	if m.done == nil || m.stopRequested {
		m.mu.Unlock()
		return nil
	}
	m.stopRequested = true
	close(m.stopCh)
	cmd := m.cmd
	done := m.done
	status := m.status
	m.mu.Unlock()

	if status != StatusRunning || cmd == nil || cmd.Process == nil {
		// Between runs: the monitor leaves its restart delay on stopCh.
		<-done
		return nil
	}

	pid := cmd.Process.Pid
	m.logger.Info("stopping process", "name", m.config.Name, "pid", pid)

	// Negative pid signals the whole process group.
	if err := syscall.Kill(-pid, syscall.SIGTERM); err != nil {
		if !errors.Is(err, syscall.ESRCH) {
			m.logger.Warn("failed to send SIGTERM to process group", "name", m.config.Name, "error", err)
		}
	}

	select {
	case <-done:
		m.logger.Info("process stopped gracefully", "name", m.config.Name)
		return nil
	case <-time.After(m.config.GracefulTimeout):
		m.logger.Warn("graceful shutdown timeout, sending SIGKILL",
			"name", m.config.Name,
			"timeout", m.config.GracefulTimeout,
		)
	}

	if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil {
		if !errors.Is(err, syscall.ESRCH) {
			return fmt.Errorf("killing process group %s: %w", m.config.Name, err)
		}
	}

	<-done
	m.logger.Info("process killed", "name", m.config.Name)

	return nil
}

// Status returns the current status of the managed process.
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// IsRunning returns true if the process is currently running.
func (m *Manager) IsRunning() bool {
	return m.Status() == StatusRunning
}

// LastError returns the last error that caused the process to exit.
func (m *Manager) LastError() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastError
}

// RestartCount returns the number of restarts since the last stable run.
func (m *Manager) RestartCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.restartCount
}

// Uptime returns how long the process has been running.
// Returns 0 if the process is not running.
func (m *Manager) Uptime() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.status != StatusRunning {
		return 0
	}
	return time.Since(m.startTime)
}

// PID returns the process ID, or 0 if not running.
func (m *Manager) PID() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.status == StatusRunning && m.cmd != nil && m.cmd.Process != nil {
		return m.cmd.Process.Pid
	}
	return 0
}

// Stats returns statistics about the managed process.
type Stats struct {
	Name         string        `json:"name"`
	Status       Status        `json:"status"`
	PID          int           `json:"pid,omitempty"`
	Uptime       time.Duration `json:"uptime,omitempty"`
	RestartCount int           `json:"restart_count"`
	LastError    string        `json:"last_error,omitempty"`
}

// Stats returns current statistics for the process.
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := Stats{
		Name:         m.config.Name,
		Status:       m.status,
		RestartCount: m.restartCount,
	}

	if m.status == StatusRunning {
		if m.cmd != nil && m.cmd.Process != nil {
			stats.PID = m.cmd.Process.Pid
		}
		stats.Uptime = time.Since(m.startTime)
	}

	if m.lastError != nil {
		stats.LastError = m.lastError.Error()
	}

	return stats
}
