// Package metrics provides Prometheus metrics for the PSS ingestion engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the engine.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// Transport
	datagramsReceived prometheus.Counter
	bytesReceived     prometheus.Counter
	decodeErrors      prometheus.Counter
	socketErrors      prometheus.Counter
	lastDatagramUnix  prometheus.Gauge

	// Queue between receiver and pipeline
	queueCapacity prometheus.Gauge
	queueDepth    prometheus.Gauge
	queueDrops    prometheus.Counter

	// Pipeline
	eventsClassified  *prometheus.CounterVec
	processingLatency prometheus.Histogram
	unknownPatterns   prometheus.Gauge
	overrideActive    prometheus.Gauge

	// Registry
	registryReloads    *prometheus.CounterVec
	registryGeneration prometheus.Gauge

	// Fan-out and sinks
	hubDrops    *prometheus.CounterVec
	hubSubs     prometheus.Gauge
	storeErrors *prometheus.CounterVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	errorsByEndpoint    *prometheus.CounterVec
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
		namespace:        "pss",
		subsystem:        "engine",
		histogramBuckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25, 50},
		constLabels:      prometheus.Labels{},
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
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	}, labels)
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	auto := promauto.With(m.registry)

	m.datagramsReceived = m.counter("datagrams_received_total", "Total UDP datagrams received")
	m.bytesReceived = m.counter("datagram_bytes_received_total", "Total bytes received from UDP")
	m.decodeErrors = m.counter("datagram_decode_errors_total", "Datagrams dropped because they could not be decoded as text")
	m.socketErrors = m.counter("socket_errors_total", "Socket read errors encountered")
	m.lastDatagramUnix = m.gauge("last_datagram_timestamp", "Unix timestamp of the last received datagram")

	m.queueCapacity = m.gauge("queue_capacity", "Capacity of the receive queue")
	m.queueDepth = m.gauge("queue_depth", "Messages waiting in the receive queue")
	m.queueDrops = m.counter("queue_dropped_total", "Oldest queued messages dropped under overload")

	m.eventsClassified = m.counterVec("events_classified_total", "Classified events by recognition status", "status")
	m.processingLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "processing_latency_milliseconds",
		Help:        "Parse and validate latency per event in milliseconds",
		Buckets:     m.histogramBuckets,
		ConstLabels: m.constLabels,
	})
	m.unknownPatterns = m.gauge("unknown_patterns", "Distinct unknown message shapes in the catalog")
	m.overrideActive = m.gauge("manual_override_active", "1 while a manual override is suspected in the clock-stopped window")

	m.registryReloads = m.counterVec("registry_reloads_total", "Registry reload attempts by outcome", "outcome")
	m.registryGeneration = m.gauge("registry_generation", "Generation number of the active registry snapshot")

	m.hubDrops = m.counterVec("hub_dropped_total", "Messages dropped for slow subscribers", "subscriber")
	m.hubSubs = m.gauge("hub_subscribers", "Current number of broadcast subscribers")
	m.storeErrors = m.counterVec("store_errors_total", "Durable store write failures by operation", "op")

	m.httpRequests = m.counterVec("http_requests_total", "Total number of HTTP requests by endpoint and method",
		"endpoint", "method", "status_code")
	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "http_request_duration_milliseconds",
		Help:        "HTTP request duration in milliseconds",
		Buckets:     prometheus.DefBuckets,
		ConstLabels: m.constLabels,
	}, []string{"endpoint", "method", "status_code"})
	m.errorsByEndpoint = m.counterVec("errors_by_endpoint_total", "Total number of errors by endpoint",
		"endpoint", "method", "error_type")
}

// Transport.

// RecordDatagram counts one received datagram of n bytes.
func RecordDatagram(n int, unix int64) {
	globalManager.datagramsReceived.Inc()
	globalManager.bytesReceived.Add(float64(n))
	globalManager.lastDatagramUnix.Set(float64(unix))
}

// RecordDecodeError counts a datagram dropped at the transport level.
func RecordDecodeError() {
	globalManager.decodeErrors.Inc()
}

// RecordSocketError counts a socket read failure.
func RecordSocketError() {
	globalManager.socketErrors.Inc()
}

// Queue.

// UpdateQueueCapacity sets the receive queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// UpdateQueueDepth sets the current receive queue depth.
func UpdateQueueDepth(depth int) {
	globalManager.queueDepth.Set(float64(depth))
}

// RecordQueueDrop counts one drop-oldest eviction.
func RecordQueueDrop() {
	globalManager.queueDrops.Inc()
}

// Pipeline.

// RecordClassified counts an event by its recognition status.
func RecordClassified(status string) {
	globalManager.eventsClassified.WithLabelValues(status).Inc()
}

// RecordProcessingLatency records parse+validate latency in milliseconds.
func RecordProcessingLatency(latencyMs float64) {
	globalManager.processingLatency.Observe(latencyMs)
}

// UpdateUnknownPatterns sets the number of distinct unknown shapes.
func UpdateUnknownPatterns(n int) {
	globalManager.unknownPatterns.Set(float64(n))
}

// UpdateOverrideActive mirrors the tracker's manual override flag.
func UpdateOverrideActive(active bool) {
	v := 0.0
	if active {
		v = 1
	}
	globalManager.overrideActive.Set(v)
}

// Registry.

// RecordRegistryReload counts a reload outcome ("ok" or "error").
func RecordRegistryReload(outcome string) {
	globalManager.registryReloads.WithLabelValues(outcome).Inc()
}

// UpdateRegistryGeneration sets the generation of the active snapshot.
func UpdateRegistryGeneration(gen uint64) {
	globalManager.registryGeneration.Set(float64(gen))
}

// Fan-out and sinks.

// RecordHubDrop counts a drop for the named subscriber.
func RecordHubDrop(subscriber string) {
	globalManager.hubDrops.WithLabelValues(subscriber).Inc()
}

// UpdateHubSubscribers sets the current subscriber count.
func UpdateHubSubscribers(n int) {
	globalManager.hubSubs.Set(float64(n))
}

// RecordStoreError counts a failed store operation.
func RecordStoreError(op string) {
	globalManager.storeErrors.WithLabelValues(op).Inc()
}

// HTTP.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorsByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
