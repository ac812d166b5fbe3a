package polling

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Poll outcomes recorded in Metrics.
const (
	OutcomeOK       = "ok"
	OutcomeSkipped  = "skipped"
	OutcomeError    = "error"
	OutcomeCritical = "critical"
)

// Metrics are the pull channel's Prometheus collectors.
type Metrics struct {
	Polls    *prometheus.CounterVec
	Duration *prometheus.HistogramVec
	Active   prometheus.Gauge
}

// NewMetrics creates the collectors and registers them on reg when reg is non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shopfloor",
			Subsystem: "poll",
			Name:      "requests_total",
			Help:      "Poll cycles by resource and outcome.",
		}, []string{"resource", "outcome"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "shopfloor",
			Subsystem: "poll",
			Name:      "duration_seconds",
			Help:      "Poll request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"resource"}),
		Active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "shopfloor",
			Subsystem: "poll",
			Name:      "active",
			Help:      "1 while the scheduler's timers are running.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Polls, m.Duration, m.Active)
	}
	return m
}

func (m *Metrics) observe(key, outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.Polls.WithLabelValues(key, outcome).Inc()
	m.Duration.WithLabelValues(key).Observe(took.Seconds())
}

func (m *Metrics) active(on bool) {
	if m == nil {
		return
	}
	if on {
		m.Active.Set(1)
	} else {
		m.Active.Set(0)
	}
}
