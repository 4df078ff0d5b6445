package realtime

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instrumentation for the realtime fabric,
// grounded in yegamble-goimg-datalayer's MetricsCollector pattern of
// promauto-registered, namespaced collectors held on a struct.
type Metrics struct {
	connectionsActive prometheus.Gauge
	eventsRoutedTotal *prometheus.CounterVec
	eventsDroppedTotal *prometheus.CounterVec
	slowConnectionsClosedTotal prometheus.Counter
}

func NewMetrics() *Metrics {
	return &Metrics{
		connectionsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "chirpline",
			Subsystem: "realtime",
			Name:      "connections_active",
			Help:      "Number of currently registered websocket connections.",
		}),
		eventsRoutedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chirpline",
			Subsystem: "realtime",
			Name:      "events_routed_total",
			Help:      "Total number of events successfully enqueued to a connection, labeled by event type.",
		}, []string{"type"}),
		eventsDroppedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chirpline",
			Subsystem: "realtime",
			Name:      "events_dropped_total",
			Help:      "Total number of events dropped because a connection's writer buffer was full, labeled by event type.",
		}, []string{"type"}),
		slowConnectionsClosedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "chirpline",
			Subsystem: "realtime",
			Name:      "slow_connections_closed_total",
			Help:      "Total number of connections force-closed for sustained writer-buffer overflow.",
		}),
	}
}
