// Package metrics exposes Prometheus instrumentation for the task
// executor. Counters and the duration histogram are fed from the event
// bus; point-in-time gauges are polled by the Collector. Everything
// registers on the default registry and is served by the HTTP API's
// /metrics endpoint.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Task lifecycle counters, labelled by operation.
	TasksSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gitmcp_tasks_submitted_total",
			Help: "Tasks admitted to the queue, by operation",
		},
		[]string{"operation"},
	)

	TasksCompleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gitmcp_tasks_completed_total",
			Help: "Tasks finished successfully, by operation",
		},
		[]string{"operation"},
	)

	TasksFailed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gitmcp_tasks_failed_total",
			Help: "Tasks that ended in failure, by operation and error code",
		},
		[]string{"operation", "code"},
	)

	TasksCancelled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gitmcp_tasks_cancelled_total",
			Help: "Tasks cancelled before or during execution, by operation",
		},
		[]string{"operation"},
	)

	TasksTimedOut = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gitmcp_tasks_timed_out_total",
			Help: "Tasks that exceeded their execution deadline, by operation",
		},
		[]string{"operation"},
	)

	TaskRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gitmcp_task_retries_total",
			Help: "Retry re-enqueues scheduled after retryable failures",
		},
	)

	TaskDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gitmcp_task_duration_seconds",
			Help:    "Wall-clock execution time of completed tasks, by operation",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		},
		[]string{"operation"},
	)

	// Executor state gauges, polled by the Collector.
	QueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gitmcp_queue_depth",
			Help: "Tasks waiting in the queue",
		},
	)

	QueueCapacity = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gitmcp_queue_capacity",
			Help: "Configured queue capacity",
		},
	)

	TasksActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gitmcp_tasks_active",
			Help: "Tasks currently executing on the worker pool",
		},
	)

	WorkspacesTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gitmcp_workspaces_total",
			Help: "Managed workspace directories on disk",
		},
	)

	WorkspaceBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gitmcp_workspace_bytes",
			Help: "Tracked bytes across all workspaces",
		},
	)

	EventsDropped = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gitmcp_bus_dropped_events",
			Help: "Events dropped because a bus subscriber fell behind",
		},
	)
)

func init() {
	prometheus.MustRegister(TasksSubmitted)
	prometheus.MustRegister(TasksCompleted)
	prometheus.MustRegister(TasksFailed)
	prometheus.MustRegister(TasksCancelled)
	prometheus.MustRegister(TasksTimedOut)
	prometheus.MustRegister(TaskRetries)
	prometheus.MustRegister(TaskDuration)
	prometheus.MustRegister(QueueDepth)
	prometheus.MustRegister(QueueCapacity)
	prometheus.MustRegister(TasksActive)
	prometheus.MustRegister(WorkspacesTotal)
	prometheus.MustRegister(WorkspaceBytes)
	prometheus.MustRegister(EventsDropped)
}

// Handler returns the Prometheus HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
