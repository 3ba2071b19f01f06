// Package metrics provides Prometheus metrics for the guardline service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every Prometheus collector the service exposes.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// Scoring
	eventsProcessed    prometheus.Counter
	eventsDuplicate    prometheus.Counter
	scoringLatency     prometheus.Histogram
	threatScore        prometheus.Histogram
	assessmentsByLevel *prometheus.CounterVec
	patternsDetected   *prometheus.CounterVec
	scoringErrors      prometheus.Counter
	locationUpdates    prometheus.Counter
	locationRiskAlerts prometheus.Counter

	// Escalation
	escalationsArmed     *prometheus.CounterVec
	escalationStages     *prometheus.CounterVec
	escalationsCancelled *prometheus.CounterVec
	escalationsCompleted prometheus.Counter
	escalationsActive    prometheus.Gauge

	// Session registry and transport
	registryConnections prometheus.Gauge
	messagesPublished   *prometheus.CounterVec
	messagesDropped     *prometheus.CounterVec
	wsRejected          *prometheus.CounterVec

	// Queue
	queueSize              prometheus.Gauge
	queueCapacity          prometheus.Gauge
	queueUtilization       prometheus.Gauge
	queueEnqueueRate       prometheus.Counter
	queueDequeueRate       prometheus.Counter
	queueEnqueueErrors     prometheus.Counter
	queueProcessingLatency prometheus.Histogram

	// Worker
	workerCount             prometheus.Gauge
	workerActiveCount       prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter
	workerPanics            prometheus.Counter

	// Audit write-behind
	auditWrites       *prometheus.CounterVec
	auditWriteLatency *prometheus.HistogramVec
	auditDropped      prometheus.Counter
	breakerState      *prometheus.GaugeVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorRateByComponent *prometheus.CounterVec
	errorLatency         *prometheus.HistogramVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "guardline",
		subsystem:        "core",
		histogramBuckets: prometheus.DefBuckets,
		constLabels:      prometheus.Labels{},
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counterOpts(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	}
}

func (m *Manager) gaugeOpts(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	}
}

func (m *Manager) histogramOpts(name, help string, buckets []float64) prometheus.HistogramOpts {
	if buckets == nil {
		buckets = m.histogramBuckets
	}
	return prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels, Buckets: buckets,
	}
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	auto := promauto.With(m.registry)

	m.eventsProcessed = auto.NewCounter(m.counterOpts("events_processed_total", "Events scored"))
	m.eventsDuplicate = auto.NewCounter(m.counterOpts("events_duplicate_total", "Events skipped because their id was already seen"))
	m.scoringLatency = auto.NewHistogram(m.histogramOpts("scoring_latency_milliseconds", "Time to score, analyze and publish one event", nil))
	m.threatScore = auto.NewHistogram(m.histogramOpts("threat_score", "Distribution of computed threat scores",
		[]float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100}))
	m.assessmentsByLevel = auto.NewCounterVec(m.counterOpts("assessments_total", "Assessments by threat level"), []string{"level"})
	m.patternsDetected = auto.NewCounterVec(m.counterOpts("patterns_total", "Assessments by detected pattern"), []string{"pattern"})
	m.scoringErrors = auto.NewCounter(m.counterOpts("scoring_errors_total", "Failed evaluations"))
	m.locationUpdates = auto.NewCounter(m.counterOpts("location_updates_total", "Location updates received"))
	m.locationRiskAlerts = auto.NewCounter(m.counterOpts("location_risk_alerts_total", "High-risk zone notices sent"))

	m.escalationsArmed = auto.NewCounterVec(m.counterOpts("escalations_armed_total", "Escalation runs armed"), []string{"trigger"})
	m.escalationStages = auto.NewCounterVec(m.counterOpts("escalation_stages_total", "Escalation stages emitted"), []string{"stage"})
	m.escalationsCancelled = auto.NewCounterVec(m.counterOpts("escalations_cancelled_total", "Escalation runs cancelled"), []string{"reason"})
	m.escalationsCompleted = auto.NewCounter(m.counterOpts("escalations_completed_total", "Escalation runs that reached the last stage"))
	m.escalationsActive = auto.NewGauge(m.gaugeOpts("escalations_active", "Escalation runs currently in flight"))

	m.registryConnections = auto.NewGauge(m.gaugeOpts("registry_connections", "Live registered connections"))
	m.messagesPublished = auto.NewCounterVec(m.counterOpts("messages_published_total", "Messages delivered to connections"), []string{"type"})
	m.messagesDropped = auto.NewCounterVec(m.counterOpts("messages_dropped_total", "Messages not delivered"), []string{"reason"})
	m.wsRejected = auto.NewCounterVec(m.counterOpts("ws_rejected_total", "Inbound websocket frames rejected"), []string{"reason"})

	m.queueSize = auto.NewGauge(m.gaugeOpts("queue_size", "Tasks waiting in the shard queues"))
	m.queueCapacity = auto.NewGauge(m.gaugeOpts("queue_capacity", "Total queue capacity"))
	m.queueUtilization = auto.NewGauge(m.gaugeOpts("queue_utilization_ratio", "Queue size over capacity"))
	m.queueEnqueueRate = auto.NewCounter(m.counterOpts("queue_enqueue_total", "Tasks enqueued"))
	m.queueDequeueRate = auto.NewCounter(m.counterOpts("queue_dequeue_total", "Tasks dequeued"))
	m.queueEnqueueErrors = auto.NewCounter(m.counterOpts("queue_enqueue_errors_total", "Tasks rejected by a full or closed queue"))
	m.queueProcessingLatency = auto.NewHistogram(m.histogramOpts("queue_processing_latency_milliseconds", "Time a task waited in its queue", nil))

	m.workerCount = auto.NewGauge(m.gaugeOpts("worker_count", "Configured shard workers"))
	m.workerActiveCount = auto.NewGauge(m.gaugeOpts("worker_active_count", "Workers currently executing a task"))
	m.workerProcessingLatency = auto.NewHistogram(m.histogramOpts("worker_processing_latency_milliseconds", "Task execution time", nil))
	m.workerErrors = auto.NewCounter(m.counterOpts("worker_errors_total", "Tasks that returned an error"))
	m.workerPanics = auto.NewCounter(m.counterOpts("worker_panics_total", "Tasks that panicked"))

	m.auditWrites = auto.NewCounterVec(m.counterOpts("audit_writes_total", "Audit records written by sink and result"), []string{"sink", "result"})
	m.auditWriteLatency = auto.NewHistogramVec(m.histogramOpts("audit_write_latency_milliseconds", "Audit sink write time by sink and result", nil),
		[]string{"sink", "result"})
	m.auditDropped = auto.NewCounter(m.counterOpts("audit_dropped_total", "Audit records dropped because the buffer was full"))
	m.breakerState = auto.NewGaugeVec(m.gaugeOpts("breaker_state", "Circuit breaker state (0 closed, 1 half-open, 2 open)"), []string{"name"})

	m.httpRequests = auto.NewCounterVec(m.counterOpts("http_requests_total", "HTTP requests by endpoint and method"),
		[]string{"endpoint", "method", "status_code"})
	m.httpRequestDuration = auto.NewHistogramVec(m.histogramOpts("http_request_duration_milliseconds", "HTTP request duration", nil),
		[]string{"endpoint", "method", "status_code"})

	m.errorRateByComponent = auto.NewCounterVec(m.counterOpts("errors_by_component_total", "Errors by component"),
		[]string{"component", "error_type"})
	m.errorLatency = auto.NewHistogramVec(m.histogramOpts("error_latency_milliseconds", "Latency of operations that failed", nil),
		[]string{"component", "error_type"})

	m.systemMemoryUsage = auto.NewGauge(m.gaugeOpts("system_memory_usage_bytes", "Heap in use"))
	m.systemGoroutineCount = auto.NewGauge(m.gaugeOpts("system_goroutine_count", "Number of goroutines"))
	m.systemGCPauseTime = auto.NewHistogram(m.histogramOpts("system_gc_pause_time_milliseconds", "GC pause time",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000}))
}

// RecordEventProcessed increments the events processed counter.
func RecordEventProcessed() { globalManager.eventsProcessed.Inc() }

// RecordEventDuplicate increments the duplicate events counter.
func RecordEventDuplicate() { globalManager.eventsDuplicate.Inc() }

// RecordScoringLatency records scoring latency in milliseconds.
func RecordScoringLatency(latencyMs float64) { globalManager.scoringLatency.Observe(latencyMs) }

// RecordAssessment records one assessment's score, level and pattern.
func RecordAssessment(score int, level, pattern string) {
	globalManager.threatScore.Observe(float64(score))
	globalManager.assessmentsByLevel.WithLabelValues(level).Inc()
	globalManager.patternsDetected.WithLabelValues(pattern).Inc()
}

// RecordScoringError increments the scoring errors counter.
func RecordScoringError() { globalManager.scoringErrors.Inc() }

// RecordLocationUpdate counts a location update and whether it raised a notice.
func RecordLocationUpdate(riskNotice bool) {
	globalManager.locationUpdates.Inc()
	if riskNotice {
		globalManager.locationRiskAlerts.Inc()
	}
}

// RecordEscalationArmed counts an armed run. Trigger is "auto" or "manual".
func RecordEscalationArmed(trigger string) {
	globalManager.escalationsArmed.WithLabelValues(trigger).Inc()
}

// RecordEscalationStage counts an emitted stage.
func RecordEscalationStage(stage string) {
	globalManager.escalationStages.WithLabelValues(stage).Inc()
}

// RecordEscalationCancelled counts a cancelled run.
func RecordEscalationCancelled(reason string) {
	globalManager.escalationsCancelled.WithLabelValues(reason).Inc()
}

// RecordEscalationCompleted counts a run that emitted its last stage.
func RecordEscalationCompleted() { globalManager.escalationsCompleted.Inc() }

// UpdateEscalationsActive sets the number of runs in flight.
func UpdateEscalationsActive(n int) { globalManager.escalationsActive.Set(float64(n)) }

// UpdateRegistryConnections sets the number of live connections.
func UpdateRegistryConnections(n int) { globalManager.registryConnections.Set(float64(n)) }

// RecordMessagesPublished counts deliveries of one message type.
func RecordMessagesPublished(msgType string, delivered int) {
	if delivered > 0 {
		globalManager.messagesPublished.WithLabelValues(msgType).Add(float64(delivered))
	}
}

// RecordMessageDropped counts an undelivered message.
func RecordMessageDropped(reason string) {
	globalManager.messagesDropped.WithLabelValues(reason).Inc()
}

// RecordWSRejected counts an inbound frame rejected by the transport.
func RecordWSRejected(reason string) {
	globalManager.wsRejected.WithLabelValues(reason).Inc()
}

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) { globalManager.queueSize.Set(float64(size)) }

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) { globalManager.queueCapacity.Set(float64(capacity)) }

// UpdateQueueUtilization sets the queue utilization ratio.
func UpdateQueueUtilization(utilization float64) { globalManager.queueUtilization.Set(utilization) }

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() { globalManager.queueEnqueueRate.Inc() }

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() { globalManager.queueDequeueRate.Inc() }

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() { globalManager.queueEnqueueErrors.Inc() }

// RecordQueueProcessingLatency records queue wait latency.
func RecordQueueProcessingLatency(latencyMs float64) {
	globalManager.queueProcessingLatency.Observe(latencyMs)
}

// UpdateWorkerCount sets the configured worker count.
func UpdateWorkerCount(count int) { globalManager.workerCount.Set(float64(count)) }

// UpdateWorkerActiveCount sets the number of busy workers.
func UpdateWorkerActiveCount(count int) { globalManager.workerActiveCount.Set(float64(count)) }

// RecordWorkerProcessingLatency records worker processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() { globalManager.workerErrors.Inc() }

// RecordWorkerPanic increments the recovered panic counter.
func RecordWorkerPanic() { globalManager.workerPanics.Inc() }

// RecordAuditWrite counts an audit write attempt on sink with result "ok"
// or "error".
func RecordAuditWrite(sink, result string) {
	globalManager.auditWrites.WithLabelValues(sink, result).Inc()
}

// RecordAuditWriteLatency records how long one audit sink write took.
func RecordAuditWriteLatency(sink, result string, latencyMs float64) {
	globalManager.auditWriteLatency.WithLabelValues(sink, result).Observe(latencyMs)
}

// RecordAuditDropped counts an audit record dropped by the write-behind buffer.
func RecordAuditDropped() { globalManager.auditDropped.Inc() }

// UpdateBreakerState sets the numeric state of a named circuit breaker.
func UpdateBreakerState(name string, state int) {
	globalManager.breakerState.WithLabelValues(name).Set(float64(state))
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorLatency records the latency of an operation that resulted in an error.
func RecordErrorLatency(component, errorType string, latencyMs float64) {
	globalManager.errorLatency.WithLabelValues(component, errorType).Observe(latencyMs)
}

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) { globalManager.systemMemoryUsage.Set(float64(bytes)) }

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) { globalManager.systemGoroutineCount.Set(float64(count)) }

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) { globalManager.systemGCPauseTime.Observe(pauseMs) }

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
