package metric_test

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/grepbag/errors"
	"github.com/c360/grepbag/metric"
)

func gatherNames(t *testing.T, r *metric.MetricsRegistry) map[string]bool {
	t.Helper()
	families, err := r.PrometheusRegistry().Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	return names
}

func TestNewMetricsRegistry_CoreMetrics(t *testing.T) {
	r := metric.NewMetricsRegistry()
	require.NotNil(t, r.CoreMetrics())

	core := r.CoreMetrics()
	core.RecordPulled("/scan")
	core.RecordMatched("/scan")
	core.RecordEmitted("/scan")
	core.RecordSuppressed("/scan", "nth-match")
	core.RecordTypeConflict()
	core.RecordSourceReadError("bagfile")
	core.ObserveScanDuration(2 * time.Second)
	core.RecordSinkWrite("console", metric.WriteStatusOK)
	core.RecordSinkCommit("console")
	core.RecordSinkDegraded("console", true)
	core.RecordNATSStatus(true)
	core.RecordNATSRTT(5 * time.Millisecond)
	core.RecordNATSReconnect()

	names := gatherNames(t, r)
	for _, want := range []string{
		"grepbag_records_pulled_total",
		"grepbag_records_matched_total",
		"grepbag_records_emitted_total",
		"grepbag_records_suppressed_total",
		"grepbag_types_conflicts_total",
		"grepbag_sources_read_errors_total",
		"grepbag_scan_duration_seconds",
		"grepbag_sinks_writes_total",
		"grepbag_sinks_commits_total",
		"grepbag_sinks_degraded",
		"grepbag_nats_connected",
		"grepbag_nats_rtt_milliseconds",
		"grepbag_nats_reconnects_total",
	} {
		assert.True(t, names[want], "missing metric family %s", want)
	}
}

func TestMetricsRegistry_RegisterCounter(t *testing.T) {
	r := metric.NewMetricsRegistry()

	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "grepbag",
		Subsystem: "db",
		Name:      "rows_written_total",
		Help:      "Rows written by the database sink",
	})

	require.NoError(t, r.RegisterCounter("db", "rows_written_total", counter))
	counter.Add(3)

	names := gatherNames(t, r)
	assert.True(t, names["grepbag_db_rows_written_total"])
}

func TestMetricsRegistry_DuplicateRegistration(t *testing.T) {
	r := metric.NewMetricsRegistry()

	gauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "grepbag",
		Subsystem: "db",
		Name:      "pool_open",
		Help:      "Open database connections",
	})
	require.NoError(t, r.RegisterGauge("db", "pool_open", gauge))

	err := r.RegisterGauge("db", "pool_open", gauge)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestMetricsRegistry_Unregister(t *testing.T) {
	r := metric.NewMetricsRegistry()

	hist := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "grepbag",
		Subsystem: "db",
		Name:      "commit_seconds",
		Help:      "Commit latency",
	})
	require.NoError(t, r.RegisterHistogram("db", "commit_seconds", hist))

	assert.True(t, r.Unregister("db", "commit_seconds"))
	assert.False(t, r.Unregister("db", "commit_seconds"), "second unregister finds nothing")
	assert.False(t, r.Unregister("db", "never_registered"))

	// The name is free again after unregistering.
	require.NoError(t, r.RegisterHistogram("db", "commit_seconds", hist))
}

func TestServer_Defaults(t *testing.T) {
	r := metric.NewMetricsRegistry()

	srv := metric.NewServer(0, "", r)
	assert.Equal(t, "http://localhost:9090/metrics", srv.Address())

	srv = metric.NewServer(9999, "/m", r)
	assert.Equal(t, "http://localhost:9999/m", srv.Address())

	// Stop before Start is a no-op.
	assert.NoError(t, srv.Stop())
}
