package relay

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the relay's Prometheus collectors.
type Metrics struct {
	rooms       prometheus.Gauge
	connections prometheus.Gauge
	relayed     *prometheus.CounterVec
	rejected    *prometheus.CounterVec
}

// NewMetrics registers the relay collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		rooms: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "liveclass",
			Subsystem: "relay",
			Name:      "rooms",
			Help:      "Rooms with at least one member.",
		}),
		connections: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "liveclass",
			Subsystem: "relay",
			Name:      "connections",
			Help:      "Open websocket connections.",
		}),
		relayed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "liveclass",
			Subsystem: "relay",
			Name:      "messages_relayed_total",
			Help:      "Messages delivered to room members, by type.",
		}, []string{"type"}),
		rejected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "liveclass",
			Subsystem: "relay",
			Name:      "messages_rejected_total",
			Help:      "Inbound messages that were not relayed, by reason.",
		}, []string{"reason"}),
	}
}
