package gateway

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nerrad567/buttrest/internal/session"
)

const metricsNamespace = "buttrest"

// Metrics holds the gateway's Prometheus collectors. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	commands         *prometheus.CounterVec
	commandLatency   *prometheus.HistogramVec
	lateResponses    prometheus.Counter
	connectionLosses prometheus.Counter
	deviceEvents     *prometheus.CounterVec
	activityDrops    prometheus.Counter
}

// NewMetrics creates unregistered collectors.
func NewMetrics() *Metrics {
	return &Metrics{
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "gateway",
			Name:      "commands_total",
			Help:      "Commands resolved, by message type and outcome.",
		}, []string{"type", "outcome"}),
		commandLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "gateway",
			Name:      "command_duration_seconds",
			Help:      "Time from submission to resolution.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"type"}),
		lateResponses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "gateway",
			Name:      "late_responses_total",
			Help:      "Responses discarded because no command was pending for their id.",
		}),
		connectionLosses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "gateway",
			Name:      "connection_losses_total",
			Help:      "Control server connections lost.",
		}),
		deviceEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "gateway",
			Name:      "device_events_total",
			Help:      "Device added and removed events.",
		}, []string{"event"}),
		activityDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "gateway",
			Name:      "activity_dropped_total",
			Help:      "Activity records dropped because the sink queue was full.",
		}),
	}
}

// Register registers the collectors plus gauges reading live state from g.
func (m *Metrics) Register(reg prometheus.Registerer, g *Gateway) error {
	collectors := []prometheus.Collector{
		m.commands,
		m.commandLatency,
		m.lateResponses,
		m.connectionLosses,
		m.deviceEvents,
		m.activityDrops,
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "gateway",
			Name:      "devices",
			Help:      "Devices currently in the registry.",
		}, func() float64 { return float64(g.registry.Count()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "gateway",
			Name:      "pending_commands",
			Help:      "Commands awaiting a response.",
		}, func() float64 { return float64(g.correlator.Pending()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "gateway",
			Name:      "connected",
			Help:      "1 while the control server connection is up.",
		}, func() float64 {
			if g.session.IsConnected() {
				return 1
			}
			return 0
		}),
	}
	if sr, ok := g.session.(statsReporter); ok {
		collectors = append(collectors, transportCollectors(sr)...)
	}

	var errs []error
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// transportCollectors expose the session's frame and connection counters.
func transportCollectors(sr statsReporter) []prometheus.Collector {
	counter := func(name, help string, read func(session.Stats) uint64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "session",
			Name:      name,
			Help:      help,
		}, func() float64 { return float64(read(sr.Stats())) })
	}
	return []prometheus.Collector{
		counter("frames_sent_total", "Frames written to the control server.",
			func(s session.Stats) uint64 { return s.FramesTx }),
		counter("frames_received_total", "Frames read from the control server.",
			func(s session.Stats) uint64 { return s.FramesRx }),
		counter("decode_errors_total", "Inbound frames with entries that could not be decoded.",
			func(s session.Stats) uint64 { return s.DecodeErrors }),
		counter("connects_total", "Successful control server handshakes.",
			func(s session.Stats) uint64 { return s.Connects }),
		counter("disconnects_total", "Control server connections torn down.",
			func(s session.Stats) uint64 { return s.Disconnects }),
	}
}

func (m *Metrics) observeCommand(msgType string, outcome Outcome, latency time.Duration) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(msgType, string(outcome)).Inc()
	m.commandLatency.WithLabelValues(msgType).Observe(latency.Seconds())
}

func (m *Metrics) lateResponse() {
	if m == nil {
		return
	}
	m.lateResponses.Inc()
}

func (m *Metrics) connectionLost() {
	if m == nil {
		return
	}
	m.connectionLosses.Inc()
}

func (m *Metrics) deviceEvent(event string) {
	if m == nil {
		return
	}
	m.deviceEvents.WithLabelValues(event).Inc()
}

func (m *Metrics) activityDropped() {
	if m == nil {
		return
	}
	m.activityDrops.Inc()
}
