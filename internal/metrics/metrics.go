// Package metrics exposes Prometheus collectors for the HTTP layer and the
// net-control domain.
package metrics

import (
	"runtime"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "netcontrol_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "netcontrol_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	HTTPActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "netcontrol_http_active_requests",
			Help: "Number of active HTTP requests",
		},
	)

	// Cache and rate limit metrics
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "netcontrol_cache_hits_total",
			Help: "Total number of response cache hits",
		},
		[]string{"cache"},
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "netcontrol_cache_misses_total",
			Help: "Total number of response cache misses",
		},
		[]string{"cache"},
	)

	RateLimited = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "netcontrol_rate_limited_total",
			Help: "Requests rejected by the rate limiter",
		},
		[]string{"limiter"},
	)

	// Domain metrics
	NetEventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "netcontrol_net_events_published_total",
			Help: "Net lifecycle events published to the broker",
		},
		[]string{"type", "status"},
	)

	NetEventsConsumed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "netcontrol_net_events_consumed_total",
			Help: "Net lifecycle events consumed from the broker",
		},
		[]string{"type"},
	)

	DirectoryLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "netcontrol_directory_lookups_total",
			Help: "Callsign directory lookups by outcome",
		},
		[]string{"status"},
	)

	ReportsGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "netcontrol_reports_generated_total",
			Help: "Reports rendered by kind and format",
		},
		[]string{"kind", "format"},
	)

	SchedulerTasks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "netcontrol_scheduler_tasks_total",
			Help: "Scheduled maintenance task runs",
		},
		[]string{"task", "status"},
	)

	SchedulerTaskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "netcontrol_scheduler_task_duration_seconds",
			Help:    "Scheduled maintenance task duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"task"},
	)

	// Application info
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "netcontrol_app_info",
			Help: "Application information",
		},
		[]string{"version", "go_version"},
	)

	AppStartTime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "netcontrol_app_start_timestamp",
			Help: "Application start timestamp",
		},
	)
)

// Init records build information and the start time.
func Init(version string) {
	AppInfo.WithLabelValues(version, runtime.Version()).Set(1)
	AppStartTime.Set(float64(time.Now().Unix()))
}

// RecordHTTPRequest records one completed request. path is the route
// pattern, not the raw URL, to keep label cardinality bounded.
func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordSchedulerTask records a maintenance task run.
func RecordSchedulerTask(task, status string, duration time.Duration) {
	SchedulerTasks.WithLabelValues(task, status).Inc()
	SchedulerTaskDuration.WithLabelValues(task).Observe(duration.Seconds())
}

// RecordPublish records the outcome of publishing a net event.
func RecordPublish(eventType string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	NetEventsPublished.WithLabelValues(eventType, status).Inc()
}

// Handler serves the Prometheus exposition format.
func Handler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.Handler())
}
