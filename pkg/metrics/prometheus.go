// Package metrics provides Prometheus metrics for the rankings service.
package metrics

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every Prometheus collector of the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         prometheus.Registerer

	// Ranking computation
	rankingsComputed   *prometheus.CounterVec
	computeDuration    *prometheus.HistogramVec
	computeErrors      *prometheus.CounterVec
	populationSize     prometheus.Gauge
	categoryPopulation *prometheus.GaugeVec
	dataIntegrity      *prometheus.CounterVec
	statisticsZeroed   *prometheus.CounterVec
	totalRankings      prometheus.Gauge

	// Query service
	listRequests *prometheus.CounterVec
	listLatency  prometheus.Histogram

	// Stores
	storeLatency *prometheus.HistogramVec
	storeErrors  *prometheus.CounterVec

	// Match events
	matchesAccepted  prometheus.Counter
	matchesDuplicate prometheus.Counter

	// Queue
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueUtilization   prometheus.Gauge
	queueEnqueueRate   prometheus.Counter
	queueDequeueRate   prometheus.Counter
	queueEnqueueErrors prometheus.Counter

	// Workers
	workerCount             prometheus.Gauge
	workerActiveCount       prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrorRate         prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorRateByComponent *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

var (
	globalManager  atomic.Pointer[Manager]             //nolint:gochecknoglobals // singleton metrics manager
	customRegistry atomic.Pointer[prometheus.Registry] //nolint:gochecknoglobals // avoids default Go metrics
)

func init() { //nolint:gochecknoinits // global metrics setup
	Configure()
}

// Configure replaces the global manager with one built from opts on a fresh
// registry. Call it once at startup, before anything is served; values
// recorded earlier are dropped with the old registry.
func Configure(opts ...Option) {
	registry := prometheus.NewRegistry()
	m := NewManager(append([]Option{WithPrometheusRegistry(registry)}, opts...)...)
	customRegistry.Store(registry)
	globalManager.Store(m)
}

func global() *Manager { return globalManager.Load() }

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "rankings",
		subsystem:        "engine",
		histogramBuckets: prometheus.DefBuckets,
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	})
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, Buckets: buckets,
	})
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, Buckets: m.histogramBuckets,
	}, labels)
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	m.rankingsComputed = m.counterVec("rankings_computed_total",
		"Rankings produced by the computer, by mode (one|all)", "mode")
	m.computeDuration = m.histogramVec("compute_duration_milliseconds",
		"Duration of a ranking computation pass in milliseconds", "mode")
	m.computeErrors = m.counterVec("compute_errors_total",
		"Failed ranking computations by mode and error kind", "mode", "kind")
	m.populationSize = m.gauge("population_size",
		"Players ranked by the last full computation")
	m.categoryPopulation = m.gaugeVec("category_population",
		"Players per category in the last full computation", "category")
	m.dataIntegrity = m.counterVec("data_integrity_total",
		"Data integrity problems absorbed by the engine, by reason", "reason")
	m.statisticsZeroed = m.counterVec("statistics_zeroed_total",
		"Statistics reads replaced by zeros under the zero policy, by scope", "scope")
	m.totalRankings = m.gauge("rankings_total",
		"Rankings held by the ranking store")

	m.listRequests = m.counterVec("list_requests_total",
		"Ranking list requests by outcome", "outcome")
	m.listLatency = m.histogram("list_latency_milliseconds",
		"Ranking list latency in milliseconds", m.histogramBuckets)

	m.storeLatency = m.histogramVec("store_operation_latency_milliseconds",
		"Store operation latency in milliseconds", "backend", "op")
	m.storeErrors = m.counterVec("store_operation_errors_total",
		"Failed store operations", "backend", "op")

	m.matchesAccepted = m.counter("matches_accepted_total",
		"Match completed events accepted for recomputation")
	m.matchesDuplicate = m.counter("matches_duplicate_total",
		"Match completed events dropped as duplicates")

	m.queueSize = m.gauge("queue_size", "Current size of the recompute queue")
	m.queueCapacity = m.gauge("queue_capacity", "Maximum queue capacity")
	m.queueUtilization = m.gauge("queue_utilization_ratio", "Queue utilization ratio (current size / capacity)")
	m.queueEnqueueRate = m.counter("queue_enqueue_total", "Total number of messages enqueued")
	m.queueDequeueRate = m.counter("queue_dequeue_total", "Total number of messages dequeued")
	m.queueEnqueueErrors = m.counter("queue_enqueue_errors_total", "Total number of enqueue errors")

	m.workerCount = m.gauge("worker_count", "Configured number of recompute workers")
	m.workerActiveCount = m.gauge("worker_active_count", "Number of workers currently recomputing")
	m.workerProcessingLatency = m.histogram("worker_processing_latency_milliseconds",
		"Worker processing latency in milliseconds", m.histogramBuckets)
	m.workerErrorRate = m.counter("worker_errors_total", "Total number of worker errors")

	m.httpRequests = m.counterVec("http_requests_total",
		"Total number of HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds",
		"HTTP request duration in milliseconds", "endpoint", "method", "status_code")

	m.errorRateByComponent = m.counterVec("errors_by_component_total",
		"Total number of errors by component", "component", "error_type")
	m.errorRateByEndpoint = m.counterVec("errors_by_endpoint_total",
		"Total number of errors by endpoint", "endpoint", "method", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "System memory usage in bytes")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_time_milliseconds", "GC pause time in milliseconds",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000})
}

func (m *Manager) gaugeVec(name, help string, labels ...string) *prometheus.GaugeVec {
	return promauto.With(m.registry).NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	}, labels)
}

// Ranking computation.

// RecordRankingsComputed adds n rankings produced in the given mode.
func RecordRankingsComputed(mode string, n int) {
	global().rankingsComputed.WithLabelValues(mode).Add(float64(n))
}

// RecordComputeDuration observes the duration of a computation pass.
func RecordComputeDuration(mode string, latencyMs float64) {
	global().computeDuration.WithLabelValues(mode).Observe(latencyMs)
}

// RecordComputeError counts a failed computation.
func RecordComputeError(mode, kind string) {
	global().computeErrors.WithLabelValues(mode, kind).Inc()
}

// UpdatePopulationSize sets the number of ranked players.
func UpdatePopulationSize(n int) {
	global().populationSize.Set(float64(n))
}

// UpdateCategoryPopulation sets the number of ranked players in a category.
func UpdateCategoryPopulation(category string, n int) {
	global().categoryPopulation.WithLabelValues(category).Set(float64(n))
}

// RecordDataIntegrity counts an absorbed data integrity problem.
func RecordDataIntegrity(reason string) {
	global().dataIntegrity.WithLabelValues(reason).Inc()
}

// RecordStatisticsZeroed counts a statistics read replaced by zeros.
func RecordStatisticsZeroed(scope string) {
	global().statisticsZeroed.WithLabelValues(scope).Inc()
}

// UpdateTotalRankings sets the number of stored rankings.
func UpdateTotalRankings(n int) {
	global().totalRankings.Set(float64(n))
}

// Query service.

// RecordListRequest counts a list request by outcome (ok, invalid, error).
func RecordListRequest(outcome string) {
	global().listRequests.WithLabelValues(outcome).Inc()
}

// RecordListLatency observes list latency.
func RecordListLatency(latencyMs float64) {
	global().listLatency.Observe(latencyMs)
}

// Stores.

// RecordStoreOperation observes a store call and counts it as failed when err is set.
func RecordStoreOperation(backend, op string, latencyMs float64, err error) {
	global().storeLatency.WithLabelValues(backend, op).Observe(latencyMs)
	if err != nil {
		global().storeErrors.WithLabelValues(backend, op).Inc()
	}
}

// Match events.

// RecordMatchAccepted counts an accepted match completed event.
func RecordMatchAccepted() {
	global().matchesAccepted.Inc()
}

// RecordMatchDuplicate counts a duplicate match completed event.
func RecordMatchDuplicate() {
	global().matchesDuplicate.Inc()
}

// Queue.

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	global().queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	global().queueCapacity.Set(float64(capacity))
}

// UpdateQueueUtilization sets the queue utilization ratio.
func UpdateQueueUtilization(utilization float64) {
	global().queueUtilization.Set(utilization)
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	global().queueEnqueueRate.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	global().queueDequeueRate.Inc()
}

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() {
	global().queueEnqueueErrors.Inc()
}

// Workers.

// UpdateWorkerCount sets the configured worker count.
func UpdateWorkerCount(count int) {
	global().workerCount.Set(float64(count))
}

// UpdateWorkerActiveCount sets the number of busy workers.
func UpdateWorkerActiveCount(count int) {
	global().workerActiveCount.Set(float64(count))
}

// RecordWorkerProcessingLatency records worker processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	global().workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	global().workerErrorRate.Inc()
}

// HTTP.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	global().httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	global().httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// Errors.

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	global().errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	global().errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// System.

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	global().systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	global().systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	global().systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry.Load()
}
