// Package metrics defines the Prometheus collectors exposed at /metrics,
// covering ingest, sync, and ERP-call outcomes so the ambient HTTP surface
// is observable the way this codebase instruments its other services.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// IngestWritesTotal counts ingest writes by entity type and outcome
	// ("written", "no_op", "tombstoned", "error").
	IngestWritesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "prowhey_ingest_writes_total",
		Help: "Total ingest writes by entity type and outcome.",
	}, []string{"entity_type", "outcome"})

	// SyncRequestsTotal counts sync requests by tier and outcome
	// ("in_sync", "updated", "error").
	SyncRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "prowhey_sync_requests_total",
		Help: "Total sync requests by tier and outcome.",
	}, []string{"tier", "outcome"})

	// SyncUpdatesReturned histograms how many updates one sync response
	// carried, useful for tuning default batch limits.
	SyncUpdatesReturned = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "prowhey_sync_updates_returned",
		Help:    "Number of updates returned per sync response.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 10),
	})

	// ERPCallDuration histograms ERP fetch latency by operation and outcome.
	ERPCallDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "prowhey_erp_call_duration_seconds",
		Help:    "ERP fetch call duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "outcome"})

	// NotificationDispatchTotal counts dispatcher publish attempts by outcome.
	NotificationDispatchTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "prowhey_notification_dispatch_total",
		Help: "Total notification dispatch attempts by outcome.",
	}, []string{"outcome"})

	// SchedulerTaskRuns counts scheduler task executions by task name and outcome.
	SchedulerTaskRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "prowhey_scheduler_task_runs_total",
		Help: "Total scheduler task runs by task and outcome.",
	}, []string{"task", "outcome"})
)

// Registry is the collector registry the HTTP surface exposes at /metrics.
var Registry = prometheus.NewRegistry()

func init() {
	Registry.MustRegister(
		IngestWritesTotal,
		SyncRequestsTotal,
		SyncUpdatesReturned,
		ERPCallDuration,
		NotificationDispatchTotal,
		SchedulerTaskRuns,
	)
}
