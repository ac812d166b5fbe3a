package realtime

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the push channel's Prometheus collectors.
type Metrics struct {
	Connected  prometheus.Gauge
	Connects   prometheus.Counter
	Reconnects prometheus.Counter
	GiveUps    prometheus.Counter
	Frames     *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them on reg when reg is non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "shopfloor",
			Subsystem: "socket",
			Name:      "connected",
			Help:      "1 while the push channel is open.",
		}),
		Connects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "shopfloor",
			Subsystem: "socket",
			Name:      "connects_total",
			Help:      "Successful socket opens.",
		}),
		Reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "shopfloor",
			Subsystem: "socket",
			Name:      "reconnect_attempts_total",
			Help:      "Scheduled automatic reconnects.",
		}),
		GiveUps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "shopfloor",
			Subsystem: "socket",
			Name:      "reconnect_give_ups_total",
			Help:      "Times the client exhausted its reconnect attempts.",
		}),
		Frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shopfloor",
			Subsystem: "socket",
			Name:      "frames_total",
			Help:      "Inbound frames by type.",
		}, []string{"type"}),
	}
	if reg != nil {
		reg.MustRegister(m.Connected, m.Connects, m.Reconnects, m.GiveUps, m.Frames)
	}
	return m
}

func (m *Metrics) connected(up bool) {
	if m == nil {
		return
	}
	if up {
		m.Connected.Set(1)
		m.Connects.Inc()
		return
	}
	m.Connected.Set(0)
}

func (m *Metrics) reconnect() {
	if m != nil {
		m.Reconnects.Inc()
	}
}

func (m *Metrics) giveUp() {
	if m != nil {
		m.GiveUps.Inc()
	}
}

func (m *Metrics) frame(typ string) {
	if m != nil {
		m.Frames.WithLabelValues(typ).Inc()
	}
}
