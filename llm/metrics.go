package llm

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "llmstream"

// Metrics exposes request outcomes as Prometheus collectors. A nil
// *Metrics records nothing.
type Metrics struct {
	requests  *prometheus.CounterVec
	opened    prometheus.Counter
	chunks    prometheus.Counter
	malformed prometheus.Counter
	duration  *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg when reg
// is non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "requests_total",
			Help:      "Completed requests by outcome (success, empty, cancelled, error).",
		}, []string{"outcome"}),
		opened: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "streams_opened_total",
			Help:      "Streams that received a 2xx response.",
		}),
		chunks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "chunks_total",
			Help:      "Content deltas delivered to callers.",
		}),
		malformed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "malformed_frames_total",
			Help:      "Data frames skipped because they could not be parsed.",
		}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "request_duration_seconds",
			Help:      "Time from request start to finalization.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"outcome"}),
	}

	if reg != nil {
		reg.MustRegister(m.requests, m.opened, m.chunks, m.malformed, m.duration)
	}
	return m
}

func (m *Metrics) observe(res Result) {
	if m == nil {
		return
	}
	outcome := res.Outcome()
	m.requests.WithLabelValues(outcome).Inc()
	m.duration.WithLabelValues(outcome).Observe(res.Duration.Seconds())
}

func (m *Metrics) streamStarted() {
	if m == nil {
		return
	}
	m.opened.Inc()
}

func (m *Metrics) chunk() {
	if m == nil {
		return
	}
	m.chunks.Inc()
}

func (m *Metrics) malformedFrame() {
	if m == nil {
		return
	}
	m.malformed.Inc()
}
