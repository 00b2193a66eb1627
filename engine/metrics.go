package engine

import (
	"time"

	"github.com/c360/grepbag/metric"
)

// scanMetrics is a nil-safe view over the core scan metrics. When metrics are
// disabled the value is nil and every record call is a no-op, so the scan loop
// and the multiplexer never branch on configuration.
type scanMetrics struct {
	core *metric.Metrics
}

// newScanMetrics returns the engine's metrics view, or nil when no registry
// was provided.
func newScanMetrics(registry *metric.MetricsRegistry) *scanMetrics {
	if registry == nil {
		return nil
	}
	return &scanMetrics{core: registry.CoreMetrics()}
}

func (m *scanMetrics) recordPulled(topic string) {
	if m == nil {
		return
	}
	m.core.RecordPulled(topic)
}

func (m *scanMetrics) recordMatched(topic string) {
	if m == nil {
		return
	}
	m.core.RecordMatched(topic)
}

func (m *scanMetrics) recordEmitted(topic string) {
	if m == nil {
		return
	}
	m.core.RecordEmitted(topic)
}

func (m *scanMetrics) recordSuppressed(topic, stage string) {
	if m == nil {
		return
	}
	m.core.RecordSuppressed(topic, stage)
}

func (m *scanMetrics) recordTypeConflict() {
	if m == nil {
		return
	}
	m.core.RecordTypeConflict()
}

func (m *scanMetrics) recordReadError(source string) {
	if m == nil {
		return
	}
	m.core.RecordSourceReadError(source)
}

func (m *scanMetrics) observeScanDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.core.ObserveScanDuration(d)
}

func (m *scanMetrics) recordSinkWrite(sink, status string) {
	if m == nil {
		return
	}
	m.core.RecordSinkWrite(sink, status)
}

func (m *scanMetrics) recordSinkDegraded(sink string, degraded bool) {
	if m == nil {
		return
	}
	m.core.RecordSinkDegraded(sink, degraded)
}
