// Package metrics exposes Prometheus collectors for the chain and the store.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "parrot"

// Metrics groups every collector. A nil *Metrics is valid and records nothing.
type Metrics struct {
	learned      *prometheus.CounterVec
	observations *prometheus.CounterVec
	replies      *prometheus.CounterVec
	attempts     prometheus.Histogram
	storeOps     *prometheus.CounterVec
	corrupt      prometheus.Counter
	workers      prometheus.Gauge
}

// MustNew constructs the collectors and registers them with reg. Tests should
// pass a fresh prometheus.NewRegistry(); registration errors panic.
func MustNew(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		learned: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "learned_messages_total",
			Help:      "Messages long enough to be learned.",
		}, []string{"channel"}),
		observations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "observations_total",
			Help:      "Context transitions recorded.",
		}, []string{"channel"}),
		replies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "replies_total",
			Help:      "Generated lines by outcome.",
		}, []string{"channel", "outcome"}),
		attempts: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "talk_attempts",
			Help:      "Generation attempts needed per reply.",
			Buckets:   []float64{1, 2, 3, 5, 6, 10, 20, 50},
		}),
		storeOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "operations_total",
			Help:      "Store operations by kind.",
		}, []string{"op"}),
		corrupt: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "corrupt_records_total",
			Help:      "Unreadable records replaced by defaults.",
		}),
		workers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "active_workers",
			Help:      "Per-key workers currently draining a queue.",
		}),
	}
	reg.MustRegister(m.learned, m.observations, m.replies, m.attempts, m.storeOps, m.corrupt, m.workers)
	return m
}

// Learned records one learned message and its observations.
func (m *Metrics) Learned(channel string, observations int) {
	if m == nil {
		return
	}
	m.learned.WithLabelValues(channel).Inc()
	m.observations.WithLabelValues(channel).Add(float64(observations))
}

// Reply records a talk outcome ("generated" or "fallback").
func (m *Metrics) Reply(channel, outcome string, attempts int) {
	if m == nil {
		return
	}
	m.replies.WithLabelValues(channel, outcome).Inc()
	if attempts > 0 {
		m.attempts.Observe(float64(attempts))
	}
}

func (m *Metrics) StoreOp(op string) {
	if m == nil {
		return
	}
	m.storeOps.WithLabelValues(op).Inc()
}

func (m *Metrics) CorruptRecord() {
	if m == nil {
		return
	}
	m.corrupt.Inc()
}

func (m *Metrics) WorkerStarted() {
	if m == nil {
		return
	}
	m.workers.Inc()
}

func (m *Metrics) WorkerRetired() {
	if m == nil {
		return
	}
	m.workers.Dec()
}
