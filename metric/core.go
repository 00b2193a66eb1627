package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Sink write status labels.
const (
	WriteStatusOK      = "ok"
	WriteStatusError   = "error"
	WriteStatusDropped = "dropped"
)

// Metrics contains the scan-level metrics every run exposes. Component
// metrics beyond these register through MetricsRegistry.
type Metrics struct {
	// Record flow metrics
	RecordsPulled     *prometheus.CounterVec
	RecordsMatched    *prometheus.CounterVec
	RecordsEmitted    *prometheus.CounterVec
	RecordsSuppressed *prometheus.CounterVec

	// Registry and source metrics
	TypeConflicts    prometheus.Counter
	SourceReadErrors *prometheus.CounterVec
	ScanDuration     prometheus.Histogram

	// Sink metrics
	SinkWrites   *prometheus.CounterVec
	SinkCommits  *prometheus.CounterVec
	SinkDegraded *prometheus.GaugeVec

	// NATS metrics
	NATSConnected  prometheus.Gauge
	NATSRTT        prometheus.Gauge
	NATSReconnects prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all scan metrics
func NewMetrics() *Metrics {
	return &Metrics{
		RecordsPulled: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "grepbag",
				Subsystem: "records",
				Name:      "pulled_total",
				Help:      "Total number of records pulled from sources",
			},
			[]string{"topic"},
		),

		RecordsMatched: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "grepbag",
				Subsystem: "records",
				Name:      "matched_total",
				Help:      "Total number of records that satisfied patterns and conditions",
			},
			[]string{"topic"},
		),

		RecordsEmitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "grepbag",
				Subsystem: "records",
				Name:      "emitted_total",
				Help:      "Total number of records emitted to sinks",
			},
			[]string{"topic"},
		),

		RecordsSuppressed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "grepbag",
				Subsystem: "records",
				Name:      "suppressed_total",
				Help:      "Total number of matched records suppressed by sampling policies",
			},
			[]string{"topic", "stage"},
		),

		TypeConflicts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "grepbag",
				Subsystem: "types",
				Name:      "conflicts_total",
				Help:      "Total number of schema conflicts under an already-seen type name",
			},
		),

		SourceReadErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "grepbag",
				Subsystem: "sources",
				Name:      "read_errors_total",
				Help:      "Total number of source read errors",
			},
			[]string{"source"},
		),

		ScanDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "grepbag",
				Subsystem: "scan",
				Name:      "duration_seconds",
				Help:      "Wall-clock duration of completed scans in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
			},
		),

		SinkWrites: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "grepbag",
				Subsystem: "sinks",
				Name:      "writes_total",
				Help:      "Total number of sink writes by status (ok, error, dropped)",
			},
			[]string{"sink", "status"},
		),

		SinkCommits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "grepbag",
				Subsystem: "sinks",
				Name:      "commits_total",
				Help:      "Total number of durable sink commits",
			},
			[]string{"sink"},
		),

		SinkDegraded: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "grepbag",
				Subsystem: "sinks",
				Name:      "degraded",
				Help:      "Sink degradation status (0=healthy, 1=degraded)",
			},
			[]string{"sink"},
		),

		NATSConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "grepbag",
				Subsystem: "nats",
				Name:      "connected",
				Help:      "NATS connection status (0=disconnected, 1=connected)",
			},
		),

		NATSRTT: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "grepbag",
				Subsystem: "nats",
				Name:      "rtt_milliseconds",
				Help:      "NATS round-trip time in milliseconds",
			},
		),

		NATSReconnects: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "grepbag",
				Subsystem: "nats",
				Name:      "reconnects_total",
				Help:      "Total number of NATS reconnections",
			},
		),
	}
}

// RecordPulled increments the pulled counter for a topic
func (c *Metrics) RecordPulled(topic string) {
	c.RecordsPulled.WithLabelValues(topic).Inc()
}

// RecordMatched increments the matched counter for a topic
func (c *Metrics) RecordMatched(topic string) {
	c.RecordsMatched.WithLabelValues(topic).Inc()
}

// RecordEmitted increments the emitted counter for a topic
func (c *Metrics) RecordEmitted(topic string) {
	c.RecordsEmitted.WithLabelValues(topic).Inc()
}

// RecordSuppressed increments the suppressed counter for a topic and policy stage
func (c *Metrics) RecordSuppressed(topic, stage string) {
	c.RecordsSuppressed.WithLabelValues(topic, stage).Inc()
}

// RecordTypeConflict increments the schema conflict counter
func (c *Metrics) RecordTypeConflict() {
	c.TypeConflicts.Inc()
}

// RecordSourceReadError increments the read error counter for a source
func (c *Metrics) RecordSourceReadError(source string) {
	c.SourceReadErrors.WithLabelValues(source).Inc()
}

// ObserveScanDuration records the wall-clock duration of a completed scan
func (c *Metrics) ObserveScanDuration(d time.Duration) {
	c.ScanDuration.Observe(d.Seconds())
}

// RecordSinkWrite increments the write counter for a sink with a status
func (c *Metrics) RecordSinkWrite(sink, status string) {
	c.SinkWrites.WithLabelValues(sink, status).Inc()
}

// RecordSinkCommit increments the commit counter for a sink
func (c *Metrics) RecordSinkCommit(sink string) {
	c.SinkCommits.WithLabelValues(sink).Inc()
}

// RecordSinkDegraded updates the degradation gauge for a sink
func (c *Metrics) RecordSinkDegraded(sink string, degraded bool) {
	value := 0.0
	if degraded {
		value = 1.0
	}
	c.SinkDegraded.WithLabelValues(sink).Set(value)
}

// RecordNATSStatus updates NATS connection status
func (c *Metrics) RecordNATSStatus(connected bool) {
	value := 0.0
	if connected {
		value = 1.0
	}
	c.NATSConnected.Set(value)
}

// RecordNATSRTT updates NATS round-trip time
func (c *Metrics) RecordNATSRTT(rtt time.Duration) {
	c.NATSRTT.Set(float64(rtt.Milliseconds()))
}

// RecordNATSReconnect increments reconnection counter
func (c *Metrics) RecordNATSReconnect() {
	c.NATSReconnects.Inc()
}
