// Package metrics provides Prometheus metrics for the courtmap service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Manager manages all Prometheus metrics for the courtmap service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	registry         prometheus.Registerer

	// Viewport query metrics - the core read path
	viewportQueries       *prometheus.CounterVec
	viewportQueryDuration *prometheus.HistogramVec
	viewportQueryErrors   *prometheus.CounterVec
	viewportResultCount   *prometheus.HistogramVec

	// Client clustering cache metrics
	cacheHits              prometheus.Counter
	cacheMisses            prometheus.Counter
	cacheEvictions         prometheus.Counter
	cacheEntries           prometheus.Gauge
	cacheRecomputeDuration prometheus.Histogram

	// Ingestion pipeline metrics
	pipelineRuns       prometheus.Counter
	pipelineDuration   prometheus.Histogram
	courtsMatched      prometheus.Counter
	courtsUnmatched    prometheus.Counter
	ambiguousMatches   prometheus.Counter
	recordsSkipped     prometheus.Counter
	clustersAssigned   prometheus.Gauge

	// Store metrics
	storeQueryLatency  prometheus.Histogram
	storeUpdateLatency prometheus.Histogram
	lockTimeouts       prometheus.Counter
	courtsTotal        prometheus.Gauge
	facilitiesTotal    prometheus.Gauge

	// HTTP metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Error tracking
	errorsByComponent *prometheus.CounterVec
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "courtmap",
		subsystem:        "engine",
		histogramBuckets: prometheus.DefBuckets,
		enabled:          true,
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() {
	factory := func(name, help string) prometheus.Opts {
		return prometheus.Opts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      name,
			Help:      help,
		}
	}
	histOpts := func(name, help string) prometheus.HistogramOpts {
		return prometheus.HistogramOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      name,
			Help:      help,
			Buckets:   m.histogramBuckets,
		}
	}

	m.viewportQueries = prometheus.NewCounterVec(
		prometheus.CounterOpts(factory("viewport_queries_total", "Viewport queries served, by storage tier.")),
		[]string{"tier"},
	)
	m.viewportQueryDuration = prometheus.NewHistogramVec(
		histOpts("viewport_query_duration_ms", "Viewport query latency in milliseconds, by storage tier."),
		[]string{"tier"},
	)
	m.viewportQueryErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts(factory("viewport_query_errors_total", "Viewport query failures, by reason.")),
		[]string{"reason"},
	)
	m.viewportResultCount = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "viewport_result_count",
			Help:      "Result set sizes returned by viewport queries, by storage tier.",
			Buckets:   []float64{1, 10, 50, 100, 250, 500, 750, 1000},
		},
		[]string{"tier"},
	)

	m.cacheHits = prometheus.NewCounter(prometheus.CounterOpts(factory("cache_hits_total", "Client clustering cache hits.")))
	m.cacheMisses = prometheus.NewCounter(prometheus.CounterOpts(factory("cache_misses_total", "Client clustering cache misses.")))
	m.cacheEvictions = prometheus.NewCounter(prometheus.CounterOpts(factory("cache_evictions_total", "Client clustering cache FIFO evictions.")))
	m.cacheEntries = prometheus.NewGauge(prometheus.GaugeOpts(factory("cache_entries", "Current client clustering cache entries.")))
	m.cacheRecomputeDuration = prometheus.NewHistogram(histOpts("cache_recompute_duration_ms", "Pixel clustering recompute latency in milliseconds."))

	m.pipelineRuns = prometheus.NewCounter(prometheus.CounterOpts(factory("pipeline_runs_total", "Completed ingestion pipeline runs.")))
	m.pipelineDuration = prometheus.NewHistogram(histOpts("pipeline_duration_ms", "Ingestion pipeline run duration in milliseconds."))
	m.courtsMatched = prometheus.NewCounter(prometheus.CounterOpts(factory("courts_matched_total", "Courts matched to a facility polygon.")))
	m.courtsUnmatched = prometheus.NewCounter(prometheus.CounterOpts(factory("courts_unmatched_total", "Courts with no containing facility polygon.")))
	m.ambiguousMatches = prometheus.NewCounter(prometheus.CounterOpts(factory("ambiguous_matches_total", "Courts contained by more than one facility polygon.")))
	m.recordsSkipped = prometheus.NewCounter(prometheus.CounterOpts(factory("records_skipped_total", "Records skipped by the pipeline due to malformed geometry.")))
	m.clustersAssigned = prometheus.NewGauge(prometheus.GaugeOpts(factory("clusters_assigned", "Clusters produced by the last assigner run.")))

	m.storeQueryLatency = prometheus.NewHistogram(histOpts("store_query_latency_ms", "Store read latency in milliseconds."))
	m.storeUpdateLatency = prometheus.NewHistogram(histOpts("store_update_latency_ms", "Store write latency in milliseconds."))
	m.lockTimeouts = prometheus.NewCounter(prometheus.CounterOpts(factory("lock_timeouts_total", "Row-lock acquisitions that failed within the bounded wait.")))
	m.courtsTotal = prometheus.NewGauge(prometheus.GaugeOpts(factory("courts_total", "Courts currently in the store.")))
	m.facilitiesTotal = prometheus.NewGauge(prometheus.GaugeOpts(factory("facilities_total", "Facilities currently in the store.")))

	m.httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts(factory("http_requests_total", "HTTP requests, by endpoint, method and status.")),
		[]string{"endpoint", "method", "status"},
	)
	m.httpRequestDuration = prometheus.NewHistogramVec(
		histOpts("http_request_duration_ms", "HTTP request latency in milliseconds."),
		[]string{"endpoint", "method", "status"},
	)

	m.errorsByComponent = prometheus.NewCounterVec(
		prometheus.CounterOpts(factory("errors_total", "Errors, by component and kind.")),
		[]string{"component", "kind"},
	)

	if m.enabled && m.registry != nil {
		m.registry.MustRegister(
			m.viewportQueries, m.viewportQueryDuration, m.viewportQueryErrors, m.viewportResultCount,
			m.cacheHits, m.cacheMisses, m.cacheEvictions, m.cacheEntries, m.cacheRecomputeDuration,
			m.pipelineRuns, m.pipelineDuration, m.courtsMatched, m.courtsUnmatched,
			m.ambiguousMatches, m.recordsSkipped, m.clustersAssigned,
			m.storeQueryLatency, m.storeUpdateLatency, m.lockTimeouts,
			m.courtsTotal, m.facilitiesTotal,
			m.httpRequests, m.httpRequestDuration,
			m.errorsByComponent,
		)
	}
}

// GetRegistry returns the custom registry used by the global manager.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

// Global helper functions, mirroring the manager's metric set.

// RecordViewportQuery records one served viewport query for a tier.
func RecordViewportQuery(tier string) { globalManager.viewportQueries.WithLabelValues(tier).Inc() }

// RecordViewportQueryDuration records viewport query latency for a tier.
func RecordViewportQueryDuration(tier string, ms float64) {
	globalManager.viewportQueryDuration.WithLabelValues(tier).Observe(ms)
}

// RecordViewportQueryError records a failed viewport query.
func RecordViewportQueryError(reason string) {
	globalManager.viewportQueryErrors.WithLabelValues(reason).Inc()
}

// RecordViewportResultCount records the size of a returned result set.
func RecordViewportResultCount(tier string, n int) {
	globalManager.viewportResultCount.WithLabelValues(tier).Observe(float64(n))
}

// RecordCacheHit records a clustering cache hit.
func RecordCacheHit() { globalManager.cacheHits.Inc() }

// RecordCacheMiss records a clustering cache miss.
func RecordCacheMiss() { globalManager.cacheMisses.Inc() }

// RecordCacheEviction records a FIFO eviction.
func RecordCacheEviction() { globalManager.cacheEvictions.Inc() }

// UpdateCacheEntries sets the current cache entry count.
func UpdateCacheEntries(n int) { globalManager.cacheEntries.Set(float64(n)) }

// RecordCacheRecomputeDuration records one pixel-clustering recompute.
func RecordCacheRecomputeDuration(ms float64) { globalManager.cacheRecomputeDuration.Observe(ms) }

// RecordPipelineRun records a completed pipeline run.
func RecordPipelineRun() { globalManager.pipelineRuns.Inc() }

// RecordPipelineDuration records the duration of a pipeline run.
func RecordPipelineDuration(ms float64) { globalManager.pipelineDuration.Observe(ms) }

// RecordCourtMatched records a successful facility match.
func RecordCourtMatched() { globalManager.courtsMatched.Inc() }

// RecordCourtUnmatched records a court with no containing facility.
func RecordCourtUnmatched() { globalManager.courtsUnmatched.Inc() }

// RecordAmbiguousMatch records a court contained by multiple facilities.
func RecordAmbiguousMatch() { globalManager.ambiguousMatches.Inc() }

// RecordRecordSkipped records a record skipped for malformed geometry.
func RecordRecordSkipped() { globalManager.recordsSkipped.Inc() }

// UpdateClustersAssigned sets the cluster count from the last assigner run.
func UpdateClustersAssigned(n int) { globalManager.clustersAssigned.Set(float64(n)) }

// RecordStoreQueryLatency records a store read latency sample.
func RecordStoreQueryLatency(ms float64) { globalManager.storeQueryLatency.Observe(ms) }

// RecordStoreUpdateLatency records a store write latency sample.
func RecordStoreUpdateLatency(ms float64) { globalManager.storeUpdateLatency.Observe(ms) }

// RecordLockTimeout records a bounded lock wait that expired.
func RecordLockTimeout() { globalManager.lockTimeouts.Inc() }

// UpdateCourtCount sets the current court count.
func UpdateCourtCount(n int) { globalManager.courtsTotal.Set(float64(n)) }

// UpdateFacilityCount sets the current facility count.
func UpdateFacilityCount(n int) { globalManager.facilitiesTotal.Set(float64(n)) }

// RecordHTTPRequest records one HTTP request.
func RecordHTTPRequest(endpoint, method, status string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, status).Inc()
}

// RecordHTTPRequestDuration records HTTP request latency.
func RecordHTTPRequestDuration(endpoint, method, status string, ms float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, status).Observe(ms)
}

// RecordErrorByComponent records an error for a component and kind.
func RecordErrorByComponent(component, kind string) {
	globalManager.errorsByComponent.WithLabelValues(component, kind).Inc()
}
