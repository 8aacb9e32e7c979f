// Package metrics provides Prometheus metrics for the trending service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Default metrics configuration constants.
const (
	defaultRefreshInterval = 10 * time.Second
)

// Manager owns every collector exported by the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	refreshInterval  time.Duration
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// Ingestion
	eventsIngested  prometheus.Counter
	eventsDuplicate prometheus.Counter
	eventsRejected  *prometheus.CounterVec
	ingestLatency   prometheus.Histogram
	decayedScore    prometheus.Histogram

	// Queries
	trendingQueries *prometheus.CounterVec
	queryLatency    prometheus.Histogram

	// Ranked store
	storeItems        prometheus.Gauge
	storeOpLatency    *prometheus.HistogramVec
	storeErrors       *prometheus.CounterVec
	storeBackendLabel *prometheus.GaugeVec

	// Queue
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueUtilization   prometheus.Gauge
	queueEnqueued      prometheus.Counter
	queueDequeued      prometheus.Counter
	queueEnqueueErrors *prometheus.CounterVec

	// Workers
	workerCount             prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter

	// Eviction
	evictionRuns    *prometheus.CounterVec
	evictionEvicted *prometheus.CounterVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpErrors          *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // package-level recorders write here

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // served on /metrics

func init() { //nolint:gochecknoinits // recorders must be usable without explicit setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "trending",
		subsystem:        "engine",
		histogramBuckets: prometheus.DefBuckets,
		refreshInterval:  defaultRefreshInterval,
		constLabels:      prometheus.Labels{},
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()
	return m
}

// RefreshInterval is how often periodic gauges should be refreshed.
func (m *Manager) RefreshInterval() time.Duration { return m.refreshInterval }

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, Buckets: buckets, ConstLabels: m.constLabels,
	})
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, Buckets: m.histogramBuckets, ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place to declare every collector
	m.eventsIngested = m.counter("events_ingested_total", "Events whose score was written to the ranked store")
	m.eventsDuplicate = m.counter("events_duplicate_total", "Events dropped because their event_id was already seen")
	m.eventsRejected = m.counterVec("events_rejected_total", "Events rejected before reaching the store", "reason")
	m.ingestLatency = m.histogram("ingest_latency_milliseconds", "Latency of a single record_event call", m.histogramBuckets)
	m.decayedScore = m.histogram("decayed_score", "Distribution of scores written at ingestion",
		[]float64{0.001, 0.01, 0.1, 0.25, 0.5, 1, 2, 5, 10, 100})

	m.trendingQueries = m.counterVec("trending_queries_total", "Trending and rank queries served", "kind")
	m.queryLatency = m.histogram("query_latency_milliseconds", "Latency of get_trending calls", m.histogramBuckets)

	m.storeItems = m.gauge("store_items", "Number of items held by the ranked store")
	m.storeOpLatency = m.histogramVec("store_op_latency_milliseconds", "Ranked store operation latency", "backend", "op")
	m.storeErrors = m.counterVec("store_errors_total", "Ranked store operation failures", "backend", "op")
	m.storeBackendLabel = promauto.With(m.registry).NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: "store_backend_info",
		Help: "Constant 1 labelled with the configured ranked store backend", ConstLabels: m.constLabels,
	}, []string{"backend"})

	m.queueSize = m.gauge("queue_size", "Current number of queued events")
	m.queueCapacity = m.gauge("queue_capacity", "Maximum number of queued events")
	m.queueUtilization = m.gauge("queue_utilization_ratio", "queue_size / queue_capacity")
	m.queueEnqueued = m.counter("queue_enqueued_total", "Events accepted by the queue")
	m.queueDequeued = m.counter("queue_dequeued_total", "Events handed to workers")
	m.queueEnqueueErrors = m.counterVec("queue_enqueue_errors_total", "Events refused by the queue", "reason")

	m.workerCount = m.gauge("worker_count", "Number of running ingestion workers")
	m.workerProcessingLatency = m.histogram("worker_processing_latency_milliseconds", "Worker time per event", m.histogramBuckets)
	m.workerErrors = m.counter("worker_errors_total", "Events a worker failed to record")

	m.evictionRuns = m.counterVec("eviction_runs_total", "Eviction passes by outcome", "outcome")
	m.evictionEvicted = m.counterVec("eviction_evicted_total", "Items removed by eviction", "bound")

	m.httpRequests = m.counterVec("http_requests_total", "HTTP requests by endpoint, method and status", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds", "HTTP request duration", "endpoint", "method", "status_code")
	m.httpErrors = m.counterVec("http_errors_total", "HTTP responses with status >= 400", "endpoint", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "Heap bytes allocated")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_time_milliseconds", "Average GC pause time",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000})
}

// Ingestion.

// RecordEventIngested counts a successful write and observes its score.
func RecordEventIngested(score float64) {
	globalManager.eventsIngested.Inc()
	globalManager.decayedScore.Observe(score)
}

// RecordEventDuplicate increments the duplicate events counter.
func RecordEventDuplicate() {
	globalManager.eventsDuplicate.Inc()
}

// RecordEventRejected counts an event refused for reason.
func RecordEventRejected(reason string) {
	globalManager.eventsRejected.WithLabelValues(reason).Inc()
}

// RecordIngestLatency records record_event latency in milliseconds.
func RecordIngestLatency(latencyMs float64) {
	globalManager.ingestLatency.Observe(latencyMs)
}

// Queries.

// RecordTrendingQuery counts a query of the given kind ("top" or "rank").
func RecordTrendingQuery(kind string) {
	globalManager.trendingQueries.WithLabelValues(kind).Inc()
}

// RecordQueryLatency records get_trending latency in milliseconds.
func RecordQueryLatency(latencyMs float64) {
	globalManager.queryLatency.Observe(latencyMs)
}

// Ranked store.

// UpdateStoreItems sets the number of stored items.
func UpdateStoreItems(count int) {
	globalManager.storeItems.Set(float64(count))
}

// RecordStoreOp records the latency of a store operation.
func RecordStoreOp(backend, op string, latencyMs float64) {
	globalManager.storeOpLatency.WithLabelValues(backend, op).Observe(latencyMs)
}

// RecordStoreError counts a failed store operation.
func RecordStoreError(backend, op string) {
	globalManager.storeErrors.WithLabelValues(backend, op).Inc()
}

// SetStoreBackend marks backend as the active ranked store.
func SetStoreBackend(backend string) {
	globalManager.storeBackendLabel.Reset()
	globalManager.storeBackendLabel.WithLabelValues(backend).Set(1)
}

// Queue.

// UpdateQueueSize sets the current queue size and utilization.
func UpdateQueueSize(size, capacity int) {
	globalManager.queueSize.Set(float64(size))
	if capacity > 0 {
		globalManager.queueUtilization.Set(float64(size) / float64(capacity))
	}
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	globalManager.queueEnqueued.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	globalManager.queueDequeued.Inc()
}

// RecordQueueEnqueueError counts a refused enqueue.
func RecordQueueEnqueueError(reason string) {
	globalManager.queueEnqueueErrors.WithLabelValues(reason).Inc()
}

// Workers.

// UpdateWorkerCount sets the current worker count.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// RecordWorkerProcessingLatency records worker processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	globalManager.workerErrors.Inc()
}

// Eviction.

// RecordEvictionRun counts an eviction pass ("ok" or "error").
func RecordEvictionRun(outcome string) {
	globalManager.evictionRuns.WithLabelValues(outcome).Inc()
}

// RecordEvicted adds n items removed by the given bound ("age" or "size").
func RecordEvicted(bound string, n int) {
	globalManager.evictionEvicted.WithLabelValues(bound).Add(float64(n))
}

// HTTP.

// RecordHTTPRequest records an HTTP request and its duration.
func RecordHTTPRequest(endpoint, method, statusCode string, durationMs float64) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
}

// RecordHTTPError counts an error response.
func RecordHTTPError(endpoint, errorType string) {
	globalManager.httpErrors.WithLabelValues(endpoint, errorType).Inc()
}

// System.

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

// SinceMs returns the milliseconds elapsed since start as a float.
func SinceMs(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000
}
