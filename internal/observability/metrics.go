package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequestsTotal  *prometheus.CounterVec
	httpLatencySeconds *prometheus.HistogramVec
	httpErrorsTotal    *prometheus.CounterVec

	workflowTransitionsTotal *prometheus.CounterVec
	workflowConflictsTotal   *prometheus.CounterVec

	deadlineSweepRunsTotal       *prometheus.CounterVec
	deadlineSweepDuration        prometheus.Histogram
	deadlineSubmissionsLocked    *prometheus.CounterVec
	notificationsPublishedTotal  *prometheus.CounterVec
	notificationDispatchFailures *prometheus.CounterVec
	resultsReleasedTotal         prometheus.Counter
	realtimeClientsActive        prometheus.Gauge
)

// RegisterMetrics initialises the Prometheus collectors exposed at /metrics.
func RegisterMetrics() {
	registerOnce.Do(func() {
		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		httpLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		httpErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "Total number of error responses returned by the API.",
		}, []string{"method", "route", "status"})

		workflowTransitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "workflow_transitions_total",
			Help: "Submission lifecycle transitions applied.",
		}, []string{"action", "from", "to"})

		workflowConflictsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "workflow_conflicts_total",
			Help: "Concurrency conflicts retried by workflow operations.",
		}, []string{"operation"})

		deadlineSweepRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "deadline_sweep_runs_total",
			Help: "Deadline sweep runs by outcome.",
		}, []string{"outcome"})

		deadlineSweepDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "deadline_sweep_duration_seconds",
			Help:    "Duration of deadline sweep runs.",
			Buckets: prometheus.DefBuckets,
		})

		deadlineSubmissionsLocked = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "deadline_submissions_locked_total",
			Help: "Submissions locked by the deadline sweep, by previous status.",
		}, []string{"previous"})

		notificationsPublishedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notifications_published_total",
			Help: "Notifications delivered to users.",
		}, []string{"type"})

		notificationDispatchFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notification_dispatch_failures_total",
			Help: "Best-effort notification or email deliveries that failed.",
		}, []string{"channel"})

		resultsReleasedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "results_released_total",
			Help: "Final results released to students.",
		})

		realtimeClientsActive = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "realtime_clients_active",
			Help: "Connected SSE and websocket notification clients.",
		})

		prometheus.MustRegister(
			httpRequestsTotal,
			httpLatencySeconds,
			httpErrorsTotal,
			workflowTransitionsTotal,
			workflowConflictsTotal,
			deadlineSweepRunsTotal,
			deadlineSweepDuration,
			deadlineSubmissionsLocked,
			notificationsPublishedTotal,
			notificationDispatchFailures,
			resultsReleasedTotal,
			realtimeClientsActive,
		)
	})
}

// HTTPRequests exposes the counter for API requests.
func HTTPRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return httpRequestsTotal
}

// HTTPLatency exposes the latency histogram for API requests.
func HTTPLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return httpLatencySeconds
}

// HTTPErrors exposes the counter for API error responses.
func HTTPErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return httpErrorsTotal
}

// WorkflowTransitions counts applied submission transitions.
func WorkflowTransitions() *prometheus.CounterVec {
	RegisterMetrics()
	return workflowTransitionsTotal
}

// WorkflowConflicts counts retried concurrency conflicts.
func WorkflowConflicts() *prometheus.CounterVec {
	RegisterMetrics()
	return workflowConflictsTotal
}

// DeadlineSweepRuns counts sweep runs by outcome.
func DeadlineSweepRuns() *prometheus.CounterVec {
	RegisterMetrics()
	return deadlineSweepRunsTotal
}

// DeadlineSweepDuration observes sweep durations.
func DeadlineSweepDuration() prometheus.Histogram {
	RegisterMetrics()
	return deadlineSweepDuration
}

// DeadlineSubmissionsLocked counts submissions locked by the sweep.
func DeadlineSubmissionsLocked() *prometheus.CounterVec {
	RegisterMetrics()
	return deadlineSubmissionsLocked
}

// NotificationsPublishedTotal counts delivered notifications.
func NotificationsPublishedTotal() *prometheus.CounterVec {
	RegisterMetrics()
	return notificationsPublishedTotal
}

// NotificationDispatchFailures counts failed best-effort deliveries.
func NotificationDispatchFailures() *prometheus.CounterVec {
	RegisterMetrics()
	return notificationDispatchFailures
}

// ResultsReleased counts released final results.
func ResultsReleased() prometheus.Counter {
	RegisterMetrics()
	return resultsReleasedTotal
}

// RealtimeClientsActive tracks connected streaming clients.
func RealtimeClientsActive() prometheus.Gauge {
	RegisterMetrics()
	return realtimeClientsActive
}
