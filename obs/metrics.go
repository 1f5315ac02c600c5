package obs

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects Prometheus-compatible metrics for CFSM runtime
// monitoring, namespaced "mpst_":
//
//   - inflight_simulators (gauge): simulators currently not blocked/complete.
//   - transport_queue_depth (gauge): total messages in flight across the transport.
//   - step_latency_ms (histogram): per-simulator step() duration.
//   - deadlocks_total (counter): global deadlocks detected by the coordinator.
//   - violations_total (counter, labeled by kind): verifier violations produced.
type Metrics struct {
	inflightSimulators prometheus.Gauge
	transportQueueDepth prometheus.Gauge
	stepLatency        *prometheus.HistogramVec
	deadlocksTotal     prometheus.Counter
	violationsTotal    *prometheus.CounterVec
}

// NewMetrics registers every metric with registry (pass
// prometheus.DefaultRegisterer for the global registry, or a fresh
// prometheus.NewRegistry() for test isolation).
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &Metrics{
		inflightSimulators: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "mpst",
			Name:      "inflight_simulators",
			Help:      "Number of CFSM simulators that are neither complete nor blocked",
		}),
		transportQueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "mpst",
			Name:      "transport_queue_depth",
			Help:      "Total number of messages currently queued across the transport",
		}),
		stepLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "mpst",
			Name:      "step_latency_ms",
			Help:      "CFSMSimulator.step() duration in milliseconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 50, 100, 500, 1000},
		}, []string{"role", "status"}),
		deadlocksTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "mpst",
			Name:      "deadlocks_total",
			Help:      "Number of global deadlocks detected by the distributed coordinator",
		}),
		violationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mpst",
			Name:      "violations_total",
			Help:      "Verifier violations produced, labeled by kind",
		}, []string{"kind"}),
	}
}

// SetInflightSimulators records the current not-blocked-not-complete count.
func (m *Metrics) SetInflightSimulators(n int) { m.inflightSimulators.Set(float64(n)) }

// SetTransportQueueDepth records the transport's current TotalPending().
func (m *Metrics) SetTransportQueueDepth(n int) { m.transportQueueDepth.Set(float64(n)) }

// RecordStep records one step() call's latency and outcome status
// ("success", "blocked", "error").
func (m *Metrics) RecordStep(role string, d time.Duration, status string) {
	m.stepLatency.WithLabelValues(role, status).Observe(float64(d.Microseconds()) / 1000.0)
}

// IncDeadlocks increments the global deadlock counter.
func (m *Metrics) IncDeadlocks() { m.deadlocksTotal.Inc() }

// RecordViolation increments the violations counter for kind.
func (m *Metrics) RecordViolation(kind string) { m.violationsTotal.WithLabelValues(kind).Inc() }
