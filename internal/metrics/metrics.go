package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the collectors exported on /metrics.
type Metrics struct {
	ConnectionsActive prometheus.Gauge
	MessagesSent      prometheus.Counter
	RateLimited       prometheus.Counter
	RoomsCreated      *prometheus.CounterVec
	ReceiptsMarked    *prometheus.CounterVec
	Errors            *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ConnectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "roomcast",
			Name:      "connections_active",
			Help:      "Authenticated websocket connections currently open.",
		}),
		MessagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "roomcast",
			Name:      "messages_sent_total",
			Help:      "Chat messages persisted and broadcast.",
		}),
		RateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "roomcast",
			Name:      "messages_rate_limited_total",
			Help:      "Sends rejected by the per-user rate limiter.",
		}),
		RoomsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "roomcast",
			Name:      "rooms_created_total",
			Help:      "Rooms created, by type.",
		}, []string{"type"}),
		ReceiptsMarked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "roomcast",
			Name:      "receipts_marked_total",
			Help:      "Receipt marks applied, by kind.",
		}, []string{"kind"}),
		Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "roomcast",
			Name:      "errors_total",
			Help:      "Errors reported to connections, by event and code.",
		}, []string{"event", "code"}),
	}
	if reg != nil {
		reg.MustRegister(m.ConnectionsActive, m.MessagesSent, m.RateLimited,
			m.RoomsCreated, m.ReceiptsMarked, m.Errors)
	}
	return m
}

func (m *Metrics) ObserveError(event string, code int) {
	m.Errors.WithLabelValues(event, strconv.Itoa(code)).Inc()
}
