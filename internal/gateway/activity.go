package gateway

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/buttrest/internal/buttplug"
)

const (
	// defaultActivityBuffer is the capacity of the activity queue.
	defaultActivityBuffer = 256

	// sinkTimeout bounds one sink call.
	sinkTimeout = 5 * time.Second
)

// ActivityKind classifies activity records.
type ActivityKind string

// Activity kinds.
const (
	ActivityConnected      ActivityKind = "connected"
	ActivityConnectionLost ActivityKind = "connection_lost"
	ActivityDeviceAdded    ActivityKind = "device_added"
	ActivityDeviceRemoved  ActivityKind = "device_removed"
	ActivityCommand        ActivityKind = "command"
	ActivitySensorReading  ActivityKind = "sensor_reading"
)

// Outcome is how a command was resolved.
type Outcome string

// Command outcomes.
const (
	OutcomeOK             Outcome = "ok"
	OutcomeProtocolError  Outcome = "protocol_error"
	OutcomeTimeout        Outcome = "timeout"
	OutcomeDeviceGone     Outcome = "device_gone"
	OutcomeConnectionLost Outcome = "connection_lost"
	OutcomeCanceled       Outcome = "canceled"
	OutcomeSendFailed     Outcome = "send_failed"
)

// Activity is one observable gateway event, fanned out to ActivitySinks.
type Activity struct {
	Kind        ActivityKind   `json:"kind"`
	Time        time.Time      `json:"time"`
	DeviceIndex *uint32        `json:"device_index,omitempty"`
	DeviceName  string         `json:"device_name,omitempty"`
	ServerName  string         `json:"server_name,omitempty"`
	Command     *CommandRecord `json:"command,omitempty"`
	Sensor      *SensorRecord  `json:"sensor,omitempty"`
	Error       string         `json:"error,omitempty"`
}

// CommandRecord describes one resolved device command.
type CommandRecord struct {
	ID          uint32           `json:"id"`
	Type        string           `json:"type"`
	Target      *Target          `json:"target,omitempty"`
	Message     buttplug.Message `json:"message"`
	Reply       buttplug.Message `json:"-"`
	Outcome     Outcome          `json:"outcome"`
	Error       string           `json:"error,omitempty"`
	SubmittedAt time.Time        `json:"submitted_at"`
	Latency     time.Duration    `json:"latency"`
}

// SensorRecord is a successful sensor read.
type SensorRecord struct {
	Index      uint32  `json:"index"`
	SensorType string  `json:"sensor_type"`
	Data       []int32 `json:"data"`
}

// ActivitySink receives activity records. Sinks run on a dedicated worker,
// one record at a time.
type ActivitySink interface {
	HandleActivity(ctx context.Context, a Activity) error
}

// ActivitySinkFunc adapts a function to ActivitySink.
type ActivitySinkFunc func(ctx context.Context, a Activity) error

// HandleActivity calls f.
func (f ActivitySinkFunc) HandleActivity(ctx context.Context, a Activity) error {
	return f(ctx, a)
}

// activityFeed queues activity for sinks without ever blocking the
// publisher. Records are dropped when the queue is full.
type activityFeed struct {
	queue   chan Activity
	sinks   []ActivitySink
	logger  Logger
	metrics *Metrics
	dropped atomic.Uint64
	wg      sync.WaitGroup
}

func newActivityFeed(size int, sinks []ActivitySink, logger Logger, metrics *Metrics) *activityFeed {
	if size <= 0 {
		size = defaultActivityBuffer
	}
	return &activityFeed{
		queue:   make(chan Activity, size),
		sinks:   sinks,
		logger:  logger,
		metrics: metrics,
	}
}

// publish enqueues a record or drops it when the queue is full.
func (f *activityFeed) publish(a Activity) {
	if len(f.sinks) == 0 {
		return
	}
	if a.Time.IsZero() {
		a.Time = time.Now()
	}

	select {
	case f.queue <- a:
	default:
		f.dropped.Add(1)
		f.metrics.activityDropped()
		f.logger.Warn("activity queue full, dropping record", "kind", a.Kind)
	}
}

// start runs the worker until done is closed; queued records are flushed
// before it returns.
func (f *activityFeed) start(done <-chan struct{}) {
	if len(f.sinks) == 0 {
		return
	}

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		for {
			select {
			case a := <-f.queue:
				f.dispatch(a)
			case <-done:
				for {
					select {
					case a := <-f.queue:
						f.dispatch(a)
					default:
						return
					}
				}
			}
		}
	}()
}

func (f *activityFeed) wait() {
	f.wg.Wait()
}

func (f *activityFeed) dispatch(a Activity) {
	for _, sink := range f.sinks {
		f.deliver(sink, a)
	}
}

// deliver calls one sink, recovering from panics so a faulty sink cannot
// stop the worker.
func (f *activityFeed) deliver(sink ActivitySink, a Activity) {
	defer func() {
		if r := recover(); r != nil {
			f.logger.Error("activity sink panicked", "kind", a.Kind, "panic", fmt.Sprint(r))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
	defer cancel()

	if err := sink.HandleActivity(ctx, a); err != nil {
		f.logger.Warn("activity sink failed", "kind", a.Kind, "error", err)
	}
}

// Dropped returns how many records were discarded because the queue was full.
func (f *activityFeed) Dropped() uint64 {
	return f.dropped.Load()
}
