package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every StepGuard collector. It is private to the process so
// tests and embedders never collide with the default registry.
var Registry = prometheus.NewRegistry()

var (
	// Devices tracks the number of known devices per status.
	Devices = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "stepguard_devices",
			Help: "Number of known devices by presence status.",
		},
		[]string{"status"}, // status: online/offline
	)

	// TransitionsTotal counts presence transitions.
	TransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stepguard_transitions_total",
			Help: "Total number of presence transitions.",
		},
		[]string{"status", "reason"}, // reason: heartbeat/timeout/offline-payload
	)

	// HeartbeatsTotal counts accepted heartbeats.
	HeartbeatsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "stepguard_heartbeats_total",
			Help: "Total number of heartbeats accepted.",
		},
	)

	// DecodeErrorsTotal counts inbound messages dropped before reaching the registry.
	DecodeErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stepguard_decode_errors_total",
			Help: "Total number of inbound messages that could not be decoded.",
		},
		[]string{"reason"}, // reason: topic/payload
	)

	// SinkErrorsTotal counts failed sink deliveries.
	SinkErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stepguard_sink_errors_total",
			Help: "Total number of transitions a sink failed to handle.",
		},
		[]string{"sink"},
	)

	// EventsDroppedTotal counts transitions that were never delivered.
	EventsDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stepguard_events_dropped_total",
			Help: "Total number of transitions dropped before delivery.",
		},
		[]string{"reason"}, // reason: queue_full/stale
	)

	// BrokerConnected records the MQTT connection state.
	// 1 = Connected, 0 = Disconnected
	BrokerConnected = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "stepguard_broker_connected",
			Help: "The connectivity status to the MQTT broker (1=Connected, 0=Disconnected).",
		},
	)
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		Devices,
		TransitionsTotal,
		HeartbeatsTotal,
		DecodeErrorsTotal,
		SinkErrorsTotal,
		EventsDroppedTotal,
		BrokerConnected,
	)
}

// Handler serves the collectors of Registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}
