// Package metrics exposes process counters/gauges via prometheus:
// package-level prometheus.New* vars, registered via explicit
// MustRegister (no promauto), served by promhttp.Handler().
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TasksDispatchedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "taskd_tasks_dispatched_total",
		Help: "Total number of tasks successfully dispatched, by src_type/dst_type.",
	}, []string{"src_type", "dst_type"})

	TasksRunning = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "taskd_tasks_running",
		Help: "Current number of tasks registered and running.",
	})

	TasksDispatchFailedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "taskd_tasks_dispatch_failed_total",
		Help: "Total number of dispatch attempts rejected, by reason.",
	}, []string{"reason"})

	SourceMessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "taskd_source_messages_total",
		Help: "Total number of source records observed, by outcome (pushed, skipped_empty, skipped_null, skipped_decode_error).",
	}, []string{"outcome"})

	SinkRowsPublishedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "taskd_sink_rows_published_total",
		Help: "Total number of flattened rows published, by outcome (ok, failed).",
	}, []string{"outcome"})

	FlattenDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "taskd_flatten_duration_seconds",
		Help:    "Time spent flattening one source message into rows.",
		Buckets: prometheus.DefBuckets,
	}, []string{})

	QueueDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "taskd_queue_depth",
		Help: "Current depth of a task's bounded source->sink queue.",
	}, []string{"task_id"})

	CatalogOperationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "taskd_catalog_operations_total",
		Help: "Total catalog operations, by operation and outcome.",
	}, []string{"operation", "outcome"})

	HeartbeatsWrittenTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "taskd_heartbeats_written_total",
		Help: "Total number of heartbeat writes to the catalog.",
	})
)

// Register registers every collector with the default registry. It is
// safe to call exactly once at process startup.
func Register() {
	prometheus.MustRegister(
		TasksDispatchedTotal,
		TasksRunning,
		TasksDispatchFailedTotal,
		SourceMessagesTotal,
		SinkRowsPublishedTotal,
		FlattenDuration,
		QueueDepth,
		CatalogOperationsTotal,
		HeartbeatsWrittenTotal,
	)
}

// Handler returns the HTTP handler Prometheus scrapes.
func Handler() http.Handler {
	return promhttp.Handler()
}
