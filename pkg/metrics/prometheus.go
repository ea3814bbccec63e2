// Package metrics provides Prometheus metrics for the stride leaderboard service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every Prometheus metric the service emits.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         prometheus.Registerer

	// Business metrics
	activitiesRecorded  prometheus.Counter
	activitiesDuplicate prometheus.Counter
	progressUpdates     prometheus.Counter
	scoringLatency      prometheus.Histogram
	scoringErrors       prometheus.Counter
	leaderboardUpdates  prometheus.Counter
	leaderboardErrors   prometheus.Counter
	totalMembers        prometheus.Gauge

	// Cache metrics
	cacheHits          prometheus.Counter
	cacheMisses        prometheus.Counter
	cacheUnavailable   prometheus.Counter
	cacheWriteFailures prometheus.Counter
	cachedBoards       prometheus.Gauge
	cacheUpdateLatency prometheus.Histogram
	cacheQueryLatency  prometheus.Histogram
	rebuilds           prometheus.Counter
	rebuildDuration    prometheus.Histogram
	breakerState       prometheus.Gauge

	// HTTP metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Queue metrics
	queueSize        prometheus.Gauge
	queueCapacity    prometheus.Gauge
	queueUtilization prometheus.Gauge
	queueEnqueues    prometheus.Counter
	queueDequeues    prometheus.Counter
	queueDrops       prometheus.Counter

	// Worker metrics
	workerActiveCount       prometheus.Gauge
	workerIdleCount         prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter

	// Error metrics
	errorsByComponent *prometheus.CounterVec
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its metrics.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "stride",
		subsystem:        "leaderboard",
		histogramBuckets: prometheus.DefBuckets,
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) initializeMetrics() { //nolint:funlen // every metric is declared here on purpose
	auto := promauto.With(m.registry)

	m.activitiesRecorded = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "activities_recorded_total",
		Help:      "Total number of activities accepted into the source of truth",
	})

	m.activitiesDuplicate = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "activities_duplicate_total",
		Help:      "Total number of activity submissions rejected as duplicates",
	})

	m.progressUpdates = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "progress_updates_total",
		Help:      "Total number of challenge progress updates",
	})

	m.scoringLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "scoring_latency_milliseconds",
		Help:      "Histogram of per-member scoring latency in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.scoringErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "scoring_errors_total",
		Help:      "Total number of scoring failures",
	})

	m.leaderboardUpdates = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "leaderboard_updates_total",
		Help:      "Total number of incremental leaderboard score updates",
	})

	m.leaderboardErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "leaderboard_errors_total",
		Help:      "Total number of failed leaderboard score updates",
	})

	m.totalMembers = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "total_members",
		Help:      "Number of members seen by the most recent rebuild",
	})

	m.cacheHits = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "cache_hits_total",
		Help:      "Total number of leaderboard reads served from the cache",
	})

	m.cacheMisses = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "cache_misses_total",
		Help:      "Total number of leaderboard reads that required a rebuild",
	})

	m.cacheUnavailable = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "cache_unavailable_total",
		Help:      "Total number of reads served while the cache backend was down",
	})

	m.cacheWriteFailures = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "cache_write_failures_total",
		Help:      "Total number of cache writes dropped after a backend error",
	})

	m.cachedBoards = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "cached_boards",
		Help:      "Number of leaderboard keys currently held in the cache",
	})

	m.cacheUpdateLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "cache_update_latency_milliseconds",
		Help:      "Cache write latency in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.cacheQueryLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "cache_query_latency_milliseconds",
		Help:      "Cache read latency in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.rebuilds = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "rebuilds_total",
		Help:      "Total number of full leaderboard rebuilds",
	})

	m.rebuildDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "rebuild_duration_milliseconds",
		Help:      "Full rebuild duration in milliseconds",
		Buckets:   []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
	})

	m.breakerState = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "cache_breaker_state",
		Help:      "Cache circuit breaker state (0 closed, 1 half-open, 2 open)",
	})

	m.httpRequests = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by endpoint and method",
		},
		[]string{"endpoint", "method", "status_code"},
	)

	m.httpRequestDuration = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "http_request_duration_milliseconds",
			Help:      "HTTP request duration in milliseconds",
			Buckets:   m.histogramBuckets,
		},
		[]string{"endpoint", "method", "status_code"},
	)

	m.queueSize = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "queue_size",
		Help:      "Current number of pending score update jobs",
	})

	m.queueCapacity = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "queue_capacity",
		Help:      "Maximum queue capacity",
	})

	m.queueUtilization = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "queue_utilization_ratio",
		Help:      "Queue utilization ratio (current size / capacity)",
	})

	m.queueEnqueues = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "queue_enqueue_total",
		Help:      "Total number of score update jobs enqueued",
	})

	m.queueDequeues = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "queue_dequeue_total",
		Help:      "Total number of score update jobs dequeued",
	})

	m.queueDrops = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "queue_drops_total",
		Help:      "Total number of jobs dropped because the queue was full or closed",
	})

	m.workerActiveCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "worker_active_count",
		Help:      "Number of workers currently processing a job",
	})

	m.workerIdleCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "worker_idle_count",
		Help:      "Number of idle workers",
	})

	m.workerProcessingLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "worker_processing_latency_milliseconds",
		Help:      "Worker job processing latency in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.workerErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "worker_errors_total",
		Help:      "Total number of failed worker jobs",
	})

	m.errorsByComponent = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "errors_by_component_total",
			Help:      "Total number of errors by component",
		},
		[]string{"component", "error_type"},
	)
}

// RecordActivityRecorded increments the accepted activities counter.
func RecordActivityRecorded() {
	globalManager.activitiesRecorded.Inc()
}

// RecordActivityDuplicate increments the duplicate submissions counter.
func RecordActivityDuplicate() {
	globalManager.activitiesDuplicate.Inc()
}

// RecordProgressUpdate increments the challenge progress updates counter.
func RecordProgressUpdate() {
	globalManager.progressUpdates.Inc()
}

// RecordScoringLatency records per-member scoring latency in milliseconds.
func RecordScoringLatency(latencyMs float64) {
	globalManager.scoringLatency.Observe(latencyMs)
}

// RecordScoringError increments the scoring errors counter.
func RecordScoringError() {
	globalManager.scoringErrors.Inc()
}

// RecordLeaderboardUpdate increments the incremental update counter.
func RecordLeaderboardUpdate() {
	globalManager.leaderboardUpdates.Inc()
}

// RecordLeaderboardError increments the failed update counter.
func RecordLeaderboardError() {
	globalManager.leaderboardErrors.Inc()
}

// UpdateTotalMembers sets the member count observed by the last rebuild.
func UpdateTotalMembers(count int) {
	globalManager.totalMembers.Set(float64(count))
}

// Cache metrics functions.

// RecordCacheHit increments the cache hit counter.
func RecordCacheHit() {
	globalManager.cacheHits.Inc()
}

// RecordCacheMiss increments the cache miss counter.
func RecordCacheMiss() {
	globalManager.cacheMisses.Inc()
}

// RecordCacheUnavailable increments the cache unavailable counter.
func RecordCacheUnavailable() {
	globalManager.cacheUnavailable.Inc()
}

// RecordCacheWriteFailure increments the dropped cache write counter.
func RecordCacheWriteFailure() {
	globalManager.cacheWriteFailures.Inc()
}

// UpdateCachedBoards sets the number of leaderboard keys held in the cache.
func UpdateCachedBoards(count int) {
	globalManager.cachedBoards.Set(float64(count))
}

// RecordCacheUpdateLatency records cache write latency in milliseconds.
func RecordCacheUpdateLatency(latencyMs float64) {
	globalManager.cacheUpdateLatency.Observe(latencyMs)
}

// RecordCacheQueryLatency records cache read latency in milliseconds.
func RecordCacheQueryLatency(latencyMs float64) {
	globalManager.cacheQueryLatency.Observe(latencyMs)
}

// RecordRebuild increments the rebuild counter.
func RecordRebuild() {
	globalManager.rebuilds.Inc()
}

// RecordRebuildDuration records a full rebuild duration in milliseconds.
func RecordRebuildDuration(durationMs float64) {
	globalManager.rebuildDuration.Observe(durationMs)
}

// UpdateBreakerState sets the circuit breaker state gauge from the
// gobreaker state name.
func UpdateBreakerState(state string) {
	var v float64
	switch state {
	case "half-open":
		v = 1
	case "open":
		v = 2
	}
	globalManager.breakerState.Set(v)
}

// HTTP metrics functions.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration in milliseconds.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, durationMs float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
}

// Queue metrics functions.

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// UpdateQueueUtilization sets the queue utilization ratio.
func UpdateQueueUtilization(utilization float64) {
	globalManager.queueUtilization.Set(utilization)
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	globalManager.queueEnqueues.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	globalManager.queueDequeues.Inc()
}

// RecordQueueDrop increments the dropped job counter.
func RecordQueueDrop() {
	globalManager.queueDrops.Inc()
}

// Worker metrics functions.

// UpdateWorkerActiveCount sets the number of busy workers.
func UpdateWorkerActiveCount(count int) {
	globalManager.workerActiveCount.Set(float64(count))
}

// UpdateWorkerIdleCount sets the number of idle workers.
func UpdateWorkerIdleCount(count int) {
	globalManager.workerIdleCount.Set(float64(count))
}

// RecordWorkerProcessingLatency records worker job latency in milliseconds.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	globalManager.workerErrors.Inc()
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
