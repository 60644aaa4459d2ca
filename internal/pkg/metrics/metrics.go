package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// IngestAccepted counts telemetry messages accepted into the store.
	IngestAccepted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "carlink_ingest_accepted_total",
			Help: "Total number of telemetry messages accepted.",
		},
	)

	// IngestRejected counts telemetry messages rejected at validation,
	// labelled by the failing field.
	IngestRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "carlink_ingest_rejected_total",
			Help: "Total number of telemetry messages rejected by validation.",
		},
		[]string{"field"},
	)

	// IngestStale counts telemetry messages dropped as stale.
	IngestStale = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "carlink_ingest_stale_total",
			Help: "Total number of telemetry messages dropped as stale.",
		},
	)

	// RouterPublished counts messages enqueued to subscribers, per channel kind.
	RouterPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "carlink_router_published_total",
			Help: "Total number of messages enqueued to subscriber buffers.",
		},
		[]string{"channel"},
	)

	// RouterDropped counts messages dropped on full subscriber or transport
	// buffers, per channel kind.
	RouterDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "carlink_router_dropped_total",
			Help: "Total number of messages dropped on full buffers.",
		},
		[]string{"channel"},
	)

	// RouterSubscribers tracks the number of active subscriptions.
	RouterSubscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "carlink_router_subscribers",
			Help: "Number of active subscriptions.",
		},
	)

	// CommandOutcomes counts terminal command states, labelled by outcome
	// (acknowledged, timed_out) and command type.
	CommandOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "carlink_command_outcomes_total",
			Help: "Total number of commands reaching a terminal state.",
		},
		[]string{"outcome", "type"},
	)

	// AckLatency observes the time between dispatch and acknowledgement.
	AckLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "carlink_ack_latency_seconds",
			Help:    "Latency between command dispatch and acknowledgement.",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(
		IngestAccepted,
		IngestRejected,
		IngestStale,
		RouterPublished,
		RouterDropped,
		RouterSubscribers,
		CommandOutcomes,
		AckLatency,
	)
}
