package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	apiRequestsTotal  *prometheus.CounterVec
	apiLatencySeconds *prometheus.HistogramVec
	apiErrorsTotal    *prometheus.CounterVec

	canvasRequestsTotal  *prometheus.CounterVec
	canvasLatencySeconds *prometheus.HistogramVec

	syncRunsTotal         *prometheus.CounterVec
	syncDurationSeconds   *prometheus.HistogramVec
	syncInProgress        prometheus.Gauge
	syncUpsertsTotal      *prometheus.CounterVec
	syncFailuresTotal     *prometheus.CounterVec
	syncSubscribersActive prometheus.Gauge
	cacheRefreshesTotal   *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors used by the service.
func RegisterMetrics() {
	registerOnce.Do(func() {
		apiRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		apiLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "api_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		apiErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "api_errors_total",
			Help: "Total number of error responses returned by the API.",
		}, []string{"method", "route", "status"})

		canvasRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "canvas_requests_total",
			Help: "Requests issued to the Canvas REST API by status class or error kind.",
		}, []string{"method", "result"})

		canvasLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "canvas_request_duration_seconds",
			Help:    "Latency distribution of Canvas REST API requests.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"method"})

		syncRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sync_runs_total",
			Help: "Sync passes by kind and outcome.",
		}, []string{"kind", "outcome"})

		syncDurationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sync_duration_seconds",
			Help:    "Duration of sync passes.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"kind"})

		syncInProgress = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sync_in_progress",
			Help: "1 while a full sync pass is running.",
		})

		syncUpsertsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sync_upserts_total",
			Help: "Rows written to the local cache by entity.",
		}, []string{"entity"})

		syncFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sync_failures_total",
			Help: "Isolated child failures during sync passes.",
		}, []string{"entity", "kind"})

		syncSubscribersActive = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sync_status_subscribers",
			Help: "Active sync status stream subscribers.",
		})

		cacheRefreshesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cache_background_refreshes_total",
			Help: "Background refreshes triggered by stale cache reads.",
		}, []string{"entity"})

		prometheus.MustRegister(
			apiRequestsTotal, apiLatencySeconds, apiErrorsTotal,
			canvasRequestsTotal, canvasLatencySeconds,
			syncRunsTotal, syncDurationSeconds, syncInProgress, syncUpsertsTotal, syncFailuresTotal,
			syncSubscribersActive, cacheRefreshesTotal,
		)
	})
}

// APIRequests exposes the counter for API requests.
func APIRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return apiRequestsTotal
}

// APILatency exposes the latency histogram for API requests.
func APILatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return apiLatencySeconds
}

// APIErrors exposes the counter for API error responses.
func APIErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return apiErrorsTotal
}

// CanvasRequests exposes the Canvas request counter.
func CanvasRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return canvasRequestsTotal
}

// CanvasLatency exposes the Canvas latency histogram.
func CanvasLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return canvasLatencySeconds
}

// ObserveCanvasRequest records one completed Canvas request. errKind is empty on success.
func ObserveCanvasRequest(method string, status int, errKind string, took time.Duration) {
	result := errKind
	if result == "" {
		result = strconv.Itoa(status/100) + "xx"
	}
	CanvasRequests().WithLabelValues(method, result).Inc()
	CanvasLatency().WithLabelValues(method).Observe(took.Seconds())
}

// SyncRuns exposes the sync pass counter.
func SyncRuns() *prometheus.CounterVec {
	RegisterMetrics()
	return syncRunsTotal
}

// SyncDuration exposes the sync pass duration histogram.
func SyncDuration() *prometheus.HistogramVec {
	RegisterMetrics()
	return syncDurationSeconds
}

// SyncInProgress exposes the running-pass gauge.
func SyncInProgress() prometheus.Gauge {
	RegisterMetrics()
	return syncInProgress
}

// SyncUpserts exposes the upsert counter.
func SyncUpserts() *prometheus.CounterVec {
	RegisterMetrics()
	return syncUpsertsTotal
}

// SyncFailures exposes the child failure counter.
func SyncFailures() *prometheus.CounterVec {
	RegisterMetrics()
	return syncFailuresTotal
}

// SyncSubscribers exposes the status stream subscriber gauge.
func SyncSubscribers() prometheus.Gauge {
	RegisterMetrics()
	return syncSubscribersActive
}

// CacheRefreshes exposes the background refresh counter.
func CacheRefreshes() *prometheus.CounterVec {
	RegisterMetrics()
	return cacheRefreshesTotal
}
