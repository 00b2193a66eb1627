package engine

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/c360/grepbag/component"
	"github.com/c360/grepbag/message"
	"github.com/c360/grepbag/metric"
)

// Multiplexer fans one emitted record out to every configured sink, in
// registration order, synchronously. A sink whose Write fails is marked
// degraded: the failure is logged, later writes to it are dropped, and the
// run continues over the remaining sinks. Dispatch never returns an error.
//
// The scan loop is the only caller; the Multiplexer is not safe for
// concurrent use.
type Multiplexer struct {
	logger  *slog.Logger
	metrics *scanMetrics
	entries []*sinkEntry
	writes  int
	closed  bool
}

type sinkEntry struct {
	name     string
	sink     component.Sink
	degraded bool
}

// NewMultiplexer creates an empty multiplexer. The registry may be nil when
// metrics are disabled.
func NewMultiplexer(logger *slog.Logger, registry *metric.MetricsRegistry) *Multiplexer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Multiplexer{
		logger:  logger.With("component", "Multiplexer"),
		metrics: newScanMetrics(registry),
	}
}

// Add appends a sink under its instance name. Registration order is dispatch
// order.
func (m *Multiplexer) Add(name string, sink component.Sink) {
	m.entries = append(m.entries, &sinkEntry{name: name, sink: sink})
}

// Len returns the number of registered sinks, degraded ones included.
func (m *Multiplexer) Len() int {
	return len(m.entries)
}

// Dispatch writes one record to every healthy sink. The write index in meta
// is assigned here: a single run-wide ordinal shared by matches and context
// records, so sinks can reproduce the emit order without tracking it.
func (m *Multiplexer) Dispatch(rec message.Record, meta component.WriteMeta) {
	if m.closed {
		return
	}
	m.writes++
	meta.Index = m.writes

	for _, e := range m.entries {
		if e.degraded {
			m.metrics.recordSinkWrite(e.name, metric.WriteStatusDropped)
			continue
		}
		if err := e.sink.Write(rec, meta); err != nil {
			e.degraded = true
			m.metrics.recordSinkWrite(e.name, metric.WriteStatusError)
			m.metrics.recordSinkDegraded(e.name, true)
			m.logger.Error("sink write failed, sink degraded",
				"sink", e.name,
				"topic", rec.Topic,
				"error", err)
			continue
		}
		m.metrics.recordSinkWrite(e.name, metric.WriteStatusOK)
	}
}

// CloseAll flushes every healthy sink and closes every sink exactly once, in
// registration order. A degraded sink is closed without flush. Errors are
// collected and combined; an earlier failure never skips a later sink.
// Repeat calls are no-ops.
func (m *Multiplexer) CloseAll() error {
	if m.closed {
		return nil
	}
	m.closed = true

	var errs []string
	for _, e := range m.entries {
		if !e.degraded {
			if err := e.sink.Flush(); err != nil {
				errs = append(errs, fmt.Sprintf("flush %s: %v", e.name, err))
				m.logger.Error("sink flush failed", "sink", e.name, "error", err)
			}
		}
		if err := e.sink.Close(); err != nil {
			errs = append(errs, fmt.Sprintf("close %s: %v", e.name, err))
			m.logger.Error("sink close failed", "sink", e.name, "error", err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("sink shutdown: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Degraded lists the names of sinks that failed during the run, in
// registration order.
func (m *Multiplexer) Degraded() []string {
	var out []string
	for _, e := range m.entries {
		if e.degraded {
			out = append(out, e.name)
		}
	}
	return out
}
