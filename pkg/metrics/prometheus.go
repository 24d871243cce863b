// Package metrics provides Prometheus metrics for the amplitude forwarding
// pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the pipeline.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         prometheus.Registerer

	// Intake metrics
	messagesPulled prometheus.Counter
	messagesStale  prometheus.Counter
	watchdogResets prometheus.Counter

	// Event disposition metrics
	eventsMalformed    prometheus.Counter
	eventsFiltered     prometheus.Counter
	eventsDelivered    prometheus.Counter
	eventsFailed       prometheus.Counter
	identifySuppressed prometheus.Counter

	// Batch delivery metrics
	batchesDelivered *prometheus.CounterVec
	batchesFailed    *prometheus.CounterVec
	batchRetries     *prometheus.CounterVec
	deliveryLatency  *prometheus.HistogramVec
	queueDepth       *prometheus.GaugeVec

	// Acknowledgment metrics
	messagesAcked  prometheus.Counter
	messagesNacked prometheus.Counter
	pendingAcks    prometheus.Gauge

	// System metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

// Initialize global metrics.
func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "fxa",
		subsystem:        "amplitude",
		histogramBuckets: prometheus.DefBuckets,
		registry:         prometheus.DefaultRegisterer,
	}

	// Apply all options
	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.messagesPulled = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "messages_pulled_total",
		Help:      "Total number of raw messages received from the subscription",
	})

	m.messagesStale = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "messages_stale_total",
		Help:      "Total number of messages older than the stale-message threshold at intake",
	})

	m.watchdogResets = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "watchdog_resets_total",
		Help:      "Total number of liveness watchdog resets (one per observed message)",
	})

	m.eventsMalformed = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "events_malformed_total",
		Help:      "Total number of malformed events dropped and acked without delivery",
	})

	m.eventsFiltered = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "events_filtered_total",
		Help:      "Total number of events dropped by the operator ignore list",
	})

	m.eventsDelivered = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "events_delivered_total",
		Help:      "Total number of events durably delivered to an endpoint",
	})

	m.eventsFailed = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "events_failed_total",
		Help:      "Total number of events that permanently failed delivery",
	})

	m.identifySuppressed = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "identify_suppressed_total",
		Help:      "Total number of duplicate identify events suppressed within a batch",
	})

	m.batchesDelivered = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "batches_delivered_total",
		Help:      "Total number of batches delivered, by endpoint",
	}, []string{"endpoint"})

	m.batchesFailed = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "batches_failed_total",
		Help:      "Total number of batches that exhausted their delivery retries, by endpoint",
	}, []string{"endpoint"})

	m.batchRetries = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "batch_retries_total",
		Help:      "Total number of batch delivery retries, by endpoint",
	}, []string{"endpoint"})

	m.deliveryLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "delivery_latency_seconds",
		Help:      "Histogram of outbound delivery call latency in seconds, by endpoint",
		Buckets:   m.histogramBuckets,
	}, []string{"endpoint"})

	m.queueDepth = auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "queue_depth",
		Help:      "Current number of events pending in a batch queue, by endpoint",
	}, []string{"endpoint"})

	m.messagesAcked = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "messages_acked_total",
		Help:      "Total number of source messages positively acknowledged",
	})

	m.messagesNacked = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "messages_nacked_total",
		Help:      "Total number of source messages negatively acknowledged for redelivery",
	})

	m.pendingAcks = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "pending_acks",
		Help:      "Current number of entries in the ack correlation table",
	})

	m.systemMemoryUsage = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "system_memory_bytes",
		Help:      "Current allocated heap memory in bytes",
	})

	m.systemGoroutineCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "system_goroutines",
		Help:      "Current number of goroutines",
	})
}

// GetRegistry returns the custom Prometheus registry for serving /metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

// Package-level helpers on the global manager.

func RecordMessagePulled()      { globalManager.messagesPulled.Inc() }
func RecordStaleMessage()       { globalManager.messagesStale.Inc() }
func RecordWatchdogReset()      { globalManager.watchdogResets.Inc() }
func RecordMalformedEvent()     { globalManager.eventsMalformed.Inc() }
func RecordFilteredEvent()      { globalManager.eventsFiltered.Inc() }
func RecordEventDelivered()     { globalManager.eventsDelivered.Inc() }
func RecordEventFailed()        { globalManager.eventsFailed.Inc() }
func RecordIdentifySuppressed() { globalManager.identifySuppressed.Inc() }
func RecordMessageAcked()       { globalManager.messagesAcked.Inc() }
func RecordMessageNacked()      { globalManager.messagesNacked.Inc() }
func UpdatePendingAcks(n int)   { globalManager.pendingAcks.Set(float64(n)) }
func UpdateSystemMemoryUsage(b uint64) {
	globalManager.systemMemoryUsage.Set(float64(b))
}
func UpdateSystemGoroutineCount(n int) {
	globalManager.systemGoroutineCount.Set(float64(n))
}

func RecordBatchDelivered(endpoint string) {
	globalManager.batchesDelivered.WithLabelValues(endpoint).Inc()
}

func RecordBatchFailed(endpoint string) {
	globalManager.batchesFailed.WithLabelValues(endpoint).Inc()
}

func RecordBatchRetry(endpoint string) {
	globalManager.batchRetries.WithLabelValues(endpoint).Inc()
}

func RecordDeliveryLatency(endpoint string, seconds float64) {
	globalManager.deliveryLatency.WithLabelValues(endpoint).Observe(seconds)
}

func UpdateQueueDepth(endpoint string, depth int) {
	globalManager.queueDepth.WithLabelValues(endpoint).Set(float64(depth))
}
