// Package metrics holds the prometheus collectors of the engine. They are
// registered on the default registry and exposed at /metrics by `idsr serve`.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Run metrics
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "idsr_runs_total",
			Help: "Total number of detection runs",
		},
		[]string{"trigger", "status"}, // status: ok/failed/busy
	)

	RunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "idsr_run_duration_seconds",
			Help:    "Detection run duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10), // 500ms to ~4min
		},
	)

	// Per-disease metrics
	DiseasesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "idsr_diseases_total",
			Help: "Diseases processed per run, by algorithm and outcome",
		},
		[]string{"algorithm", "outcome"}, // outcome: processed/skipped
	)

	DetectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "idsr_detections_total",
			Help: "Epidemic and alert rows produced by the detectors",
		},
		[]string{"disease", "type"},
	)

	ReconciledTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "idsr_reconciled_records_total",
			Help: "Records per reconciliation partition",
		},
		[]string{"collection", "partition"}, // partition: new/updated/existing
	)

	// Collaborator metrics
	UpstreamRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "idsr_upstream_requests_total",
			Help: "Requests made to the DHIS2 instance",
		},
		[]string{"endpoint", "status"},
	)

	UpstreamRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "idsr_upstream_request_duration_seconds",
			Help:    "DHIS2 request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		},
		[]string{"endpoint"},
	)

	DeliveryFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "idsr_delivery_failures_total",
			Help: "Failed persist/push/notify handoffs",
		},
		[]string{"stage"},
	)

	// Lifecycle event metrics
	LifecycleEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "idsr_lifecycle_events_total",
			Help: "Lifecycle events published on the event bus",
		},
		[]string{"event_type", "weight"},
	)

	FeedSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "idsr_feed_subscribers",
			Help: "Connected live feed subscribers",
		},
	)
)
