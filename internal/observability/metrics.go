// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "perp_stats"

// Metrics holds all Prometheus metrics for the application.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// Engine metrics
	EventsProcessed   *prometheus.CounterVec
	EventsDuplicate   prometheus.Counter
	EventErrors       *prometheus.CounterVec
	Anomalies         *prometheus.CounterVec
	ProcessingLatency *prometheus.HistogramVec
	CommitRecords     prometheus.Histogram
	PublishErrors     prometheus.Counter

	// Progress metrics
	LastBlock          prometheus.Gauge
	LastBlockTimestamp prometheus.Gauge

	// Source metrics
	SourceMessages   *prometheus.CounterVec
	SourceReconnects *prometheus.CounterVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastSuccessfulCommit prometheus.Gauge
}

// NewMetrics creates a Metrics instance registered on its own registry.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		// Engine metrics
		EventsProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "events_processed_total",
			Help:      "Total number of events applied, by event kind",
		}, []string{"kind"}),
		EventsDuplicate: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "events_duplicate_total",
			Help:      "Total number of redelivered events skipped by the dedup ledger",
		}),
		EventErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "event_errors_total",
			Help:      "Total number of events that failed, by kind and reason",
		}, []string{"kind", "reason"}),
		Anomalies: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "anomalies_total",
			Help:      "Total number of tolerated anomalies by reason",
		}, []string{"reason"}),
		ProcessingLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "event_processing_latency_seconds",
			Help:      "Event processing latency in seconds, including commit",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
		CommitRecords: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "commit_records",
			Help:      "Number of entity records written per event",
			Buckets:   []float64{1, 2, 4, 8, 16, 32, 64},
		}),
		PublishErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "publish_errors_total",
			Help:      "Total number of change sink publish failures",
		}),

		// Progress metrics
		LastBlock: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "last_block",
			Help:      "Block number of the last processed event",
		}),
		LastBlockTimestamp: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "last_block_timestamp",
			Help:      "Block timestamp of the last processed event",
		}),

		// Source metrics
		SourceMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "source",
			Name:      "messages_total",
			Help:      "Total number of source messages by source and result",
		}, []string{"source", "result"}),
		SourceReconnects: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "source",
			Name:      "reconnects_total",
			Help:      "Total number of source reconnect attempts",
		}, []string{"source"}),

		// Database metrics
		DBQueryDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		// Health metrics
		LastSuccessfulCommit: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_commit_timestamp",
			Help:      "Unix timestamp of the last committed event",
		}),
	}
}

// Registry returns the registry holding the metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordEvent records a successfully applied event.
func (m *Metrics) RecordEvent(kind string, block, blockTime int64, records int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.EventsProcessed.WithLabelValues(kind).Inc()
	m.ProcessingLatency.WithLabelValues(kind).Observe(elapsed.Seconds())
	m.CommitRecords.Observe(float64(records))
	m.LastBlock.Set(float64(block))
	m.LastBlockTimestamp.Set(float64(blockTime))
	m.LastSuccessfulCommit.SetToCurrentTime()
}

// RecordDuplicate increments the duplicate counter.
func (m *Metrics) RecordDuplicate() {
	if m == nil {
		return
	}
	m.EventsDuplicate.Inc()
}

// RecordEventError records a failed event.
func (m *Metrics) RecordEventError(kind, reason string) {
	if m == nil {
		return
	}
	m.EventErrors.WithLabelValues(kind, reason).Inc()
}

// RecordAnomaly records a tolerated anomaly.
func (m *Metrics) RecordAnomaly(reason string) {
	if m == nil {
		return
	}
	m.Anomalies.WithLabelValues(reason).Inc()
}

// RecordPublishError increments the publish error counter.
func (m *Metrics) RecordPublishError() {
	if m == nil {
		return
	}
	m.PublishErrors.Inc()
}

// RecordSourceMessage records one message read by a source.
func (m *Metrics) RecordSourceMessage(source, result string) {
	if m == nil {
		return
	}
	m.SourceMessages.WithLabelValues(source, result).Inc()
}

// RecordReconnect records a source reconnect attempt.
func (m *Metrics) RecordReconnect(source string) {
	if m == nil {
		return
	}
	m.SourceReconnects.WithLabelValues(source).Inc()
}

// RecordDBQuery records database query metrics.
func (m *Metrics) RecordDBQuery(database, operation string, seconds float64, err error) {
	if m == nil {
		return
	}
	m.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		m.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
