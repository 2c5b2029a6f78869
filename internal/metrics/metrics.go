package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smartalerts_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "smartalerts_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"method", "route"},
	)

	// Engine metrics
	EvaluationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "smartalerts_evaluations_total",
			Help: "Total number of CheckData calls",
		},
	)

	RecordsEvaluated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "smartalerts_records_evaluated_total",
			Help: "Total number of records evaluated against thresholds",
		},
	)

	AlertsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smartalerts_alerts_created_total",
			Help: "Total number of alerts created",
		},
		[]string{"severity"},
	)

	EvaluationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "smartalerts_evaluation_duration_seconds",
			Help:    "Time taken by one CheckData call",
			Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
	)

	// Storage metrics
	PersistenceFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smartalerts_persistence_failures_total",
			Help: "Total number of failed reads/writes of persisted collections",
		},
		[]string{"key", "op"}, // op: read, write, decode
	)

	// Notification metrics
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smartalerts_notifications_total",
			Help: "Total number of notification deliveries",
		},
		[]string{"channel", "status"}, // status: sent, failed, skipped
	)

	// Monitoring metrics
	MonitoringTicks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smartalerts_monitoring_ticks_total",
			Help: "Total number of scheduled evaluations",
		},
		[]string{"status"}, // status: ok, error, panic
	)

	MonitoringActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "smartalerts_monitoring_active",
			Help: "1 when a monitoring loop is running",
		},
	)

	// Kafka metrics
	FeedPublishTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smartalerts_feed_publish_total",
			Help: "Total number of alerts published to the Kafka feed",
		},
		[]string{"status"},
	)

	FeedPublishRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "smartalerts_feed_publish_retries_total",
			Help: "Total number of Kafka feed publish retries",
		},
	)

	IngestRecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smartalerts_ingest_records_total",
			Help: "Total number of ingested records by source",
		},
		[]string{"source", "status"}, // status: accepted, failed, invalid
	)

	// Panic recovery
	PanicsRecovered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smartalerts_panics_recovered_total",
			Help: "Total number of panics recovered",
		},
		[]string{"component"},
	)
)
