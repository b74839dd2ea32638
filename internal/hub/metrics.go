package hub

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "switchhub"

// Metrics holds the Prometheus collectors for the ingest-to-broadcast path.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	subscribers   prometheus.Gauge
	joins         prometheus.Counter
	removals      *prometheus.CounterVec // by reason
	broadcasts    prometheus.Counter
	sendFailures  prometheus.Counter
	snapshots     *prometheus.CounterVec // by result: sent, store_error, send_error
	held          prometheus.Counter
	accepted      prometheus.Counter
	rejected      *prometheus.CounterVec // by reason
	storeWrites   *prometheus.CounterVec // by result: ok, error, dropped
	storeWriteDur prometheus.Histogram
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "hub",
			Name:      "subscribers",
			Help:      "Number of live subscribers currently registered",
		}),
		joins: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "hub",
			Name:      "joins_total",
			Help:      "Total number of subscribers that joined",
		}),
		removals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "hub",
			Name:      "removals_total",
			Help:      "Total number of subscribers removed",
		}, []string{"reason"}),
		broadcasts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "hub",
			Name:      "broadcasts_total",
			Help:      "Total number of events broadcast to subscribers",
		}),
		sendFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "hub",
			Name:      "send_failures_total",
			Help:      "Total number of messages that could not be queued for a subscriber",
		}),
		snapshots: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "hub",
			Name:      "snapshots_total",
			Help:      "Join snapshots by result",
		}, []string{"result"}),
		held: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "hub",
			Name:      "held_dropped_total",
			Help:      "Live messages dropped from a joiner's hold while its snapshot was pending",
		}),
		accepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "ingest",
			Name:      "events_accepted_total",
			Help:      "Broker messages that passed validation",
		}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "ingest",
			Name:      "events_rejected_total",
			Help:      "Broker messages rejected by validation",
		}, []string{"reason"}),
		storeWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "store",
			Name:      "writes_total",
			Help:      "Write-through store operations by result",
		}, []string{"result"}),
		storeWriteDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "store",
			Name:      "write_duration_seconds",
			Help:      "Write-through store latency in seconds",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
	}

	collectors := []prometheus.Collector{
		m.subscribers, m.joins, m.removals, m.broadcasts, m.sendFailures,
		m.snapshots, m.held, m.accepted, m.rejected, m.storeWrites, m.storeWriteDur,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) subscriberJoined() {
	if m == nil {
		return
	}
	m.joins.Inc()
	m.subscribers.Inc()
}

func (m *Metrics) subscriberRemoved(reason string) {
	if m == nil {
		return
	}
	m.subscribers.Dec()
	m.removals.WithLabelValues(reason).Inc()
}

func (m *Metrics) broadcast() {
	if m == nil {
		return
	}
	m.broadcasts.Inc()
}

func (m *Metrics) sendFailed() {
	if m == nil {
		return
	}
	m.sendFailures.Inc()
}

func (m *Metrics) snapshot(result string) {
	if m == nil {
		return
	}
	m.snapshots.WithLabelValues(result).Inc()
}

func (m *Metrics) heldDropped(n int) {
	if m == nil {
		return
	}
	m.held.Add(float64(n))
}

func (m *Metrics) storeWrite(result string, seconds float64) {
	if m == nil {
		return
	}
	m.storeWrites.WithLabelValues(result).Inc()
	if seconds > 0 {
		m.storeWriteDur.Observe(seconds)
	}
}

// EventAccepted counts a broker message that passed validation.
func (m *Metrics) EventAccepted() {
	if m == nil {
		return
	}
	m.accepted.Inc()
}

// EventRejected counts a broker message rejected for reason.
func (m *Metrics) EventRejected(reason string) {
	if m == nil {
		return
	}
	m.rejected.WithLabelValues(reason).Inc()
}
