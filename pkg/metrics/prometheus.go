// Package metrics provides Prometheus metrics for the facetally service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	defaultRefreshInterval = 10 * time.Second
)

// similarityBuckets covers the cosine range used by the matcher.
var similarityBuckets = []float64{0, 0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1} //nolint:gochecknoglobals // fixed bucket layout

// Manager manages all Prometheus metrics for the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	refreshInterval  time.Duration
	customLabels     map[string]string
	metricPrefix     string
	registry         prometheus.Registerer

	// Recognition
	sessionsTotal    prometheus.Counter
	verdicts         *prometheus.CounterVec
	framesProcessed  prometheus.Counter
	unknownFrames    *prometheus.CounterVec
	earlyExits       *prometheus.CounterVec
	sessionLatency   prometheus.Histogram
	matchSimilarity  prometheus.Histogram
	collaboratorErrs *prometheus.CounterVec

	// Attendance ledger
	ledgerWrites       prometheus.Counter
	ledgerWriteErrors  prometheus.Counter
	ledgerSkipped      prometheus.Counter
	ledgerWriteLatency prometheus.Histogram

	// Registry
	registryIdentities     prometheus.Gauge
	registrySwaps          prometheus.Counter
	registryReloadErrors   prometheus.Counter
	registryLastSwapUnix   prometheus.Gauge
	registryReloadDuration prometheus.Histogram

	// Queue
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueUtilization   prometheus.Gauge
	queueEnqueueRate   prometheus.Counter
	queueDequeueRate   prometheus.Counter
	queueEnqueueErrors prometheus.Counter

	// Worker
	workerCount             prometheus.Gauge
	workerActiveCount       prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrorRate         prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorRateByComponent *prometheus.CounterVec
	errorRateByType      *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "facetally",
		subsystem:        "recognition",
		histogramBuckets: prometheus.DefBuckets,
		enabled:          true,
		refreshInterval:  defaultRefreshInterval,
		customLabels:     make(map[string]string),
		metricPrefix:     "",
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()
	return m
}

// factory registers with m.registry, or nowhere when metrics are disabled.
// Disabled metrics still accept updates but are never exposed.
func (m *Manager) factory() promauto.Factory {
	if !m.enabled {
		return promauto.With(nil)
	}
	return promauto.With(m.registry)
}

// RefreshInterval returns how often polled gauges should be refreshed.
func (m *Manager) RefreshInterval() time.Duration { return m.refreshInterval }

func (m *Manager) name(n string) string {
	if m.metricPrefix == "" {
		return n
	}
	return m.metricPrefix + "_" + n
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return m.factory().NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		ConstLabels: m.customLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return m.factory().NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		ConstLabels: m.customLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return m.factory().NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		ConstLabels: m.customLabels,
	})
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return m.factory().NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		Buckets:     buckets,
		ConstLabels: m.customLabels,
	})
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	m.sessionsTotal = m.counter("sessions_total", "Total number of recognition sessions run")
	m.verdicts = m.counterVec("verdicts_total", "Session verdicts by reason", "reason")
	m.framesProcessed = m.counter("frames_processed_total", "Frames evaluated by the consensus engine")
	m.unknownFrames = m.counterVec("unknown_frames_total", "Frames that produced no qualifying match, by cause", "cause")
	m.earlyExits = m.counterVec("early_exits_total", "Sessions stopped before the last frame, by rule", "rule")
	m.sessionLatency = m.histogram("session_latency_milliseconds", "Recognition session latency in milliseconds", m.histogramBuckets)
	m.matchSimilarity = m.histogram("match_similarity", "Best similarity per evaluated frame", similarityBuckets)
	m.collaboratorErrs = m.counterVec("collaborator_errors_total", "Detector and embedder failures", "collaborator")

	m.ledgerWrites = m.counter("ledger_writes_total", "Attendance rows appended")
	m.ledgerWriteErrors = m.counter("ledger_write_errors_total", "Attendance rows that failed to persist")
	m.ledgerSkipped = m.counter("ledger_skipped_total", "Attendance rows skipped by the once-per-day guard")
	m.ledgerWriteLatency = m.histogram("ledger_write_latency_milliseconds", "Attendance append latency in milliseconds", m.histogramBuckets)

	m.registryIdentities = m.gauge("registry_identities", "Identities in the published registry snapshot")
	m.registrySwaps = m.counter("registry_swaps_total", "Registry snapshots published")
	m.registryReloadErrors = m.counter("registry_reload_errors_total", "Registry reloads that failed and kept the previous snapshot")
	m.registryLastSwapUnix = m.gauge("registry_last_swap_unix", "Unix timestamp of the last registry swap")
	m.registryReloadDuration = m.histogram("registry_reload_duration_milliseconds", "Registry reload duration in milliseconds", m.histogramBuckets)

	m.queueSize = m.gauge("queue_size", "Current number of queued recognition jobs")
	m.queueCapacity = m.gauge("queue_capacity", "Maximum queue capacity")
	m.queueUtilization = m.gauge("queue_utilization_ratio", "Queue utilization ratio (current size / capacity)")
	m.queueEnqueueRate = m.counter("queue_enqueue_total", "Total number of jobs enqueued")
	m.queueDequeueRate = m.counter("queue_dequeue_total", "Total number of jobs dequeued")
	m.queueEnqueueErrors = m.counter("queue_enqueue_errors_total", "Total number of rejected enqueues")

	m.workerCount = m.gauge("worker_count", "Configured number of session workers")
	m.workerActiveCount = m.gauge("worker_active_count", "Workers currently running a session")
	m.workerProcessingLatency = m.histogram("worker_processing_latency_milliseconds", "Worker job latency in milliseconds", m.histogramBuckets)
	m.workerErrorRate = m.counter("worker_errors_total", "Total number of worker job errors")

	m.httpRequests = m.counterVec("http_requests_total", "Total number of HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.factory().NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        m.name("http_request_duration_milliseconds"),
			Help:        "HTTP request duration in milliseconds",
			Buckets:     m.histogramBuckets,
			ConstLabels: m.customLabels,
		},
		[]string{"endpoint", "method", "status_code"},
	)

	m.errorRateByComponent = m.counterVec("errors_by_component_total", "Total number of errors by component", "component", "error_type")
	m.errorRateByType = m.counterVec("errors_by_type_total", "Total number of errors by type", "error_type", "severity")
	m.errorRateByEndpoint = m.counterVec("errors_by_endpoint_total", "Total number of errors by endpoint", "endpoint", "method", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "System memory usage in bytes")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_time_milliseconds", "GC pause time in milliseconds",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000})
}

// Recognition metrics.

// RecordSession increments the session counter.
func RecordSession() {
	globalManager.sessionsTotal.Inc()
}

// RecordVerdict counts a verdict by its reason.
func RecordVerdict(reason string) {
	globalManager.verdicts.WithLabelValues(reason).Inc()
}

// RecordFrameProcessed counts one evaluated frame.
func RecordFrameProcessed() {
	globalManager.framesProcessed.Inc()
}

// RecordUnknownFrame counts a frame that produced no evidence.
// cause is one of no_face, degenerate, embed_error, below_threshold.
func RecordUnknownFrame(cause string) {
	globalManager.unknownFrames.WithLabelValues(cause).Inc()
}

// RecordEarlyExit counts a session stopped by rule before the frames ran out.
func RecordEarlyExit(rule string) {
	globalManager.earlyExits.WithLabelValues(rule).Inc()
}

// RecordSessionLatency records session latency in milliseconds.
func RecordSessionLatency(latencyMs float64) {
	globalManager.sessionLatency.Observe(latencyMs)
}

// RecordMatchSimilarity records the best similarity of a frame.
func RecordMatchSimilarity(sim float64) {
	globalManager.matchSimilarity.Observe(sim)
}

// RecordCollaboratorError counts a detector or embedder failure.
func RecordCollaboratorError(collaborator string) {
	globalManager.collaboratorErrs.WithLabelValues(collaborator).Inc()
}

// Ledger metrics.

// RecordLedgerWrite counts an appended attendance row.
func RecordLedgerWrite() {
	globalManager.ledgerWrites.Inc()
}

// RecordLedgerWriteError counts a failed attendance append.
func RecordLedgerWriteError() {
	globalManager.ledgerWriteErrors.Inc()
}

// RecordLedgerSkipped counts a row suppressed by the once-per-day guard.
func RecordLedgerSkipped() {
	globalManager.ledgerSkipped.Inc()
}

// RecordLedgerWriteLatency records append latency in milliseconds.
func RecordLedgerWriteLatency(latencyMs float64) {
	globalManager.ledgerWriteLatency.Observe(latencyMs)
}

// Registry metrics.

// UpdateRegistryIdentities sets the number of identities in the live snapshot.
func UpdateRegistryIdentities(count int) {
	globalManager.registryIdentities.Set(float64(count))
}

// RecordRegistrySwap counts a published snapshot and stamps its time.
func RecordRegistrySwap() {
	globalManager.registrySwaps.Inc()
	globalManager.registryLastSwapUnix.Set(float64(time.Now().Unix()))
}

// RecordRegistryReloadError counts a failed reload.
func RecordRegistryReloadError() {
	globalManager.registryReloadErrors.Inc()
}

// RecordRegistryReloadDuration records reload duration in milliseconds.
func RecordRegistryReloadDuration(ms float64) {
	globalManager.registryReloadDuration.Observe(ms)
}

// Queue metrics.

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// UpdateQueueUtilization sets the queue utilization ratio.
func UpdateQueueUtilization(utilization float64) {
	globalManager.queueUtilization.Set(utilization)
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	globalManager.queueEnqueueRate.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	globalManager.queueDequeueRate.Inc()
}

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrors.Inc()
}

// Worker metrics.

// UpdateWorkerCount sets the configured worker count.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// AddWorkerActive adjusts the number of busy workers by delta.
func AddWorkerActive(delta int) {
	globalManager.workerActiveCount.Add(float64(delta))
}

// RecordWorkerProcessingLatency records worker job latency in milliseconds.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	globalManager.workerErrorRate.Inc()
}

// HTTP metrics.

// RecordHTTPRequest increments the HTTP request counter.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration in milliseconds.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// Error metrics.

// RecordErrorByComponent records an error for a specific component.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByType records an error by type and severity.
func RecordErrorByType(errorType, severity string) {
	globalManager.errorRateByType.WithLabelValues(errorType, severity).Inc()
}

// RecordErrorByEndpoint records an error for a specific HTTP endpoint.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// System metrics.

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

// RefreshInterval returns the refresh interval of the global manager.
func RefreshInterval() time.Duration {
	return globalManager.RefreshInterval()
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
