// Package metrics provides Prometheus metrics for the jobrank engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every Prometheus collector the engine reports through.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         prometheus.Registerer

	// Run lifecycle
	runsTotal   *prometheus.CounterVec
	runDuration prometheus.Histogram
	runPostings prometheus.Gauge

	// Sources
	sourceFetches *prometheus.CounterVec
	sourceRecords *prometheus.CounterVec

	// Normalization and dedupe
	normalizationDrops *prometheus.CounterVec
	duplicatesMerged   prometheus.Counter

	// Scoring
	scoringCalls    *prometheus.CounterVec
	scoringRetries  prometheus.Counter
	scoringLatency  prometheus.Histogram
	scoringInFlight prometheus.Gauge
	cacheLookups    *prometheus.CounterVec

	// Queue
	queueSize     prometheus.Gauge
	queueCapacity prometheus.Gauge
	queueEnqueued prometheus.Counter
	queueDequeued prometheus.Counter
	workerCount   prometheus.Gauge

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // registry without default Go collectors

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "jobrank",
		subsystem:        "engine",
		histogramBuckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	auto := promauto.With(m.registry)

	m.runsTotal = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "runs_total",
		Help:      "Total number of runs by terminal state",
	}, []string{"state"})

	m.runDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "run_duration_milliseconds",
		Help:      "End-to-end run duration in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.runPostings = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "run_ranked_postings",
		Help:      "Number of ranked postings produced by the last run",
	})

	m.sourceFetches = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "source_fetches_total",
		Help:      "Source fetches by source and completion reason",
	}, []string{"source", "completion"})

	m.sourceRecords = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "source_records_total",
		Help:      "Raw records yielded by each source",
	}, []string{"source"})

	m.normalizationDrops = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "normalization_drops_total",
		Help:      "Raw records dropped during normalization by field",
	}, []string{"source", "field"})

	m.duplicatesMerged = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "duplicates_merged_total",
		Help:      "Postings merged into an existing fingerprint",
	})

	m.scoringCalls = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "scoring_calls_total",
		Help:      "Scorer invocations by outcome",
	}, []string{"outcome"})

	m.scoringRetries = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "scoring_retries_total",
		Help:      "Scorer retries after transient errors",
	})

	m.scoringLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "scoring_latency_milliseconds",
		Help:      "Latency of single scorer invocations in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.scoringInFlight = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "scoring_in_flight",
		Help:      "Scorer calls currently in flight",
	})

	m.cacheLookups = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "scoring_cache_lookups_total",
		Help:      "Scoring cache lookups by result (hit, miss, shared)",
	}, []string{"result"})

	m.queueSize = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "queue_size",
		Help:      "Postings waiting to be scored",
	})

	m.queueCapacity = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "queue_capacity",
		Help:      "Capacity of the scoring queue",
	})

	m.queueEnqueued = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "queue_enqueue_total",
		Help:      "Postings enqueued for scoring",
	})

	m.queueDequeued = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "queue_dequeue_total",
		Help:      "Postings dequeued by scoring workers",
	})

	m.workerCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "worker_count",
		Help:      "Scoring workers currently running",
	})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests by endpoint and method",
	}, []string{"endpoint", "method", "status_code"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "http_request_duration_milliseconds",
		Help:      "HTTP request duration in milliseconds",
		Buckets:   m.histogramBuckets,
	}, []string{"endpoint", "method", "status_code"})
}

// RecordRun records a finished run with its terminal state and duration.
func RecordRun(state string, durationMs float64, ranked int) {
	globalManager.runsTotal.WithLabelValues(state).Inc()
	globalManager.runDuration.Observe(durationMs)
	globalManager.runPostings.Set(float64(ranked))
}

// RecordSourceFetch records one source completion.
func RecordSourceFetch(source, completion string, records int) {
	globalManager.sourceFetches.WithLabelValues(source, completion).Inc()
	globalManager.sourceRecords.WithLabelValues(source).Add(float64(records))
}

// RecordNormalizationDrop counts a raw record rejected by the normalizer.
func RecordNormalizationDrop(source, field string) {
	globalManager.normalizationDrops.WithLabelValues(source, field).Inc()
}

// RecordDuplicateMerged counts a posting merged into an existing fingerprint.
func RecordDuplicateMerged() {
	globalManager.duplicatesMerged.Inc()
}

// RecordScoringCall records a scorer invocation outcome and its latency.
func RecordScoringCall(outcome string, latencyMs float64) {
	globalManager.scoringCalls.WithLabelValues(outcome).Inc()
	globalManager.scoringLatency.Observe(latencyMs)
}

// RecordScoringRetry counts a retry after a transient scorer error.
func RecordScoringRetry() {
	globalManager.scoringRetries.Inc()
}

// AddScoringInFlight adjusts the in-flight scorer gauge by delta.
func AddScoringInFlight(delta int) {
	globalManager.scoringInFlight.Add(float64(delta))
}

// RecordCacheLookup counts a scoring cache lookup by result.
func RecordCacheLookup(result string) {
	globalManager.cacheLookups.WithLabelValues(result).Inc()
}

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
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

// UpdateWorkerCount sets the current worker count.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
