// Package metrics provides Prometheus metrics for the identity tracker.
package metrics

import (
	"context"
	"runtime"
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
	enabled          bool
	refreshInterval  time.Duration
	customLabels     map[string]string
	metricPrefix     string
	registry         prometheus.Registerer

	// Pipeline
	sightingsReceived   *prometheus.CounterVec
	sightingsProcessed  prometheus.Counter
	sightingsDropped    *prometheus.CounterVec
	processingLatency   prometheus.Histogram
	collaboratorLatency *prometheus.HistogramVec
	fallbacks           *prometheus.CounterVec

	// Identification
	confidenceUpdates   prometheus.Counter
	identifications     prometheus.Counter
	duplicateEmissions  prometheus.Counter
	publishAttempts     prometheus.Counter
	publishFailures     prometheus.Counter
	identificationsLost prometheus.Counter
	storeErrors         *prometheus.CounterVec
	storeKeys           *prometheus.GaugeVec

	// Tracking
	tracksCreated prometheus.Counter
	trackMatches  prometheus.Counter

	// Queue
	queueSize   *prometheus.GaugeVec
	queueErrors *prometheus.CounterVec

	// Broadcast
	subscribers       prometheus.Gauge
	broadcastsSent    prometheus.Counter
	broadcastFailures prometheus.Counter
	subscribersPruned prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "sightline",
		subsystem:        "identity",
		histogramBuckets: prometheus.DefBuckets,
		enabled:          true,
		refreshInterval:  defaultRefreshInterval,
		customLabels:     make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()
	return m
}

func (m *Manager) name(n string) string {
	if m.metricPrefix == "" {
		return n
	}
	return m.metricPrefix + "_" + n
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, ConstLabels: m.customLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, ConstLabels: m.customLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, ConstLabels: m.customLabels,
	})
}

func (m *Manager) histogram(name, help string) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help,
		Buckets: m.histogramBuckets, ConstLabels: m.customLabels,
	})
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help,
		Buckets: m.histogramBuckets, ConstLabels: m.customLabels,
	}, labels)
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	m.sightingsReceived = m.counterVec("sightings_received_total", "Sightings accepted into the pipeline by source", "source")
	m.sightingsProcessed = m.counter("sightings_processed_total", "Sightings processed to completion")
	m.sightingsDropped = m.counterVec("sightings_dropped_total", "Sightings dropped before completion by reason", "reason")
	m.processingLatency = m.histogram("processing_latency_seconds", "End-to-end processing time of one sighting")
	m.collaboratorLatency = m.histogramVec("collaborator_latency_seconds", "Latency of external collaborator calls", "collaborator", "outcome")
	m.fallbacks = m.counterVec("fallbacks_total", "Collaborator failures replaced by a safe default", "component")

	m.confidenceUpdates = m.counter("confidence_updates_total", "Candidate confidence increases written to the store")
	m.identifications = m.counter("identifications_total", "Sessions whose confidence crossed the threshold")
	m.duplicateEmissions = m.counter("identifications_suppressed_total", "Identifications suppressed because the session already emitted")
	m.publishAttempts = m.counter("publish_attempts_total", "Attempts to publish identified customer events")
	m.publishFailures = m.counter("publish_failures_total", "Failed attempts to publish identified customer events")
	m.identificationsLost = m.counter("identifications_lost_total", "Identified customer events lost after exhausting retries")
	m.storeErrors = m.counterVec("store_errors_total", "State store errors by component and operation", "component", "op")
	m.storeKeys = promauto.With(m.registry).NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name("store_keys"),
		Help: "Live keys held by an in-process store backend", ConstLabels: m.customLabels,
	}, []string{"backend"})

	m.tracksCreated = m.counter("tracks_created_total", "Person tracks minted for unmatched sightings")
	m.trackMatches = m.counter("track_matches_total", "Sightings matched to an existing person track")

	m.queueSize = promauto.With(m.registry).NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name("queue_size"),
		Help: "Current number of queued items", ConstLabels: m.customLabels,
	}, []string{"queue"})
	m.queueErrors = m.counterVec("queue_errors_total", "Queue enqueue failures by queue and reason", "queue", "reason")

	m.subscribers = m.gauge("broadcast_subscribers", "Live tracking-update subscribers")
	m.broadcastsSent = m.counter("broadcasts_total", "Tracking updates fanned out")
	m.broadcastFailures = m.counter("broadcast_delivery_failures_total", "Failed deliveries to a subscriber")
	m.subscribersPruned = m.counter("broadcast_subscribers_pruned_total", "Subscribers removed after a failed delivery")

	m.httpRequests = m.counterVec("http_requests_total", "Total number of HTTP requests", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_seconds", "HTTP request duration", "endpoint", "method", "status_code")

	m.systemMemoryUsage = m.gauge("system_memory_bytes", "Heap bytes allocated")
	m.systemGoroutineCount = m.gauge("system_goroutines", "Number of goroutines")
}

// Global metric recording functions.

func RecordSightingReceived(source string) {
	globalManager.sightingsReceived.WithLabelValues(source).Inc()
}

func RecordSightingProcessed(d time.Duration) {
	globalManager.sightingsProcessed.Inc()
	globalManager.processingLatency.Observe(d.Seconds())
}

func RecordSightingDropped(reason string) {
	globalManager.sightingsDropped.WithLabelValues(reason).Inc()
}

func RecordCollaboratorLatency(collaborator, outcome string, d time.Duration) {
	globalManager.collaboratorLatency.WithLabelValues(collaborator, outcome).Observe(d.Seconds())
}

func RecordFallback(component string) {
	globalManager.fallbacks.WithLabelValues(component).Inc()
}

func RecordConfidenceUpdate() { globalManager.confidenceUpdates.Inc() }

func RecordIdentification() { globalManager.identifications.Inc() }

func RecordSuppressedIdentification() { globalManager.duplicateEmissions.Inc() }

func RecordPublishAttempt() { globalManager.publishAttempts.Inc() }

func RecordPublishFailure() { globalManager.publishFailures.Inc() }

func RecordIdentificationLost() { globalManager.identificationsLost.Inc() }

func RecordStoreError(component, op string) {
	globalManager.storeErrors.WithLabelValues(component, op).Inc()
}

func UpdateStoreKeys(backend string, n int) {
	globalManager.storeKeys.WithLabelValues(backend).Set(float64(n))
}

func RecordTrackCreated() { globalManager.tracksCreated.Inc() }

func RecordTrackMatched() { globalManager.trackMatches.Inc() }

func UpdateQueueSize(queue string, size int) {
	globalManager.queueSize.WithLabelValues(queue).Set(float64(size))
}

func RecordQueueError(queue, reason string) {
	globalManager.queueErrors.WithLabelValues(queue, reason).Inc()
}

func UpdateSubscriberCount(n int) { globalManager.subscribers.Set(float64(n)) }

func RecordBroadcast() { globalManager.broadcastsSent.Inc() }

func RecordBroadcastFailure() { globalManager.broadcastFailures.Inc() }

func RecordSubscriberPruned() { globalManager.subscribersPruned.Inc() }

func RecordHTTPRequest(endpoint, method, statusCode string, d time.Duration) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(d.Seconds())
}

// GetRegistry returns the registry backing the global manager.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

// RunSystemSampler refreshes the runtime gauges until ctx is done.
func (m *Manager) RunSystemSampler(ctx context.Context) {
	if !m.enabled {
		return
	}
	ticker := time.NewTicker(m.refreshInterval)
	defer ticker.Stop()
	for {
		m.sampleSystem()
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (m *Manager) sampleSystem() {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	m.systemMemoryUsage.Set(float64(ms.HeapAlloc))
	m.systemGoroutineCount.Set(float64(runtime.NumGoroutine()))
}

// RunSystemSampler runs the global manager's sampler.
func RunSystemSampler(ctx context.Context) {
	globalManager.RunSystemSampler(ctx)
}
