// Package metric provides Prometheus metrics for scan runs.
//
// # Overview
//
// A MetricsRegistry wraps a dedicated prometheus.Registry, pre-registers the
// core scan metrics, and exposes Register* methods for component-specific
// collectors. The Server serves the registry over HTTP for scrape-based
// collection during long-running live scans.
//
// # Core Metrics
//
// Record flow (labeled by topic):
//
//	grepbag_records_pulled_total      records pulled from sources
//	grepbag_records_matched_total     records that satisfied patterns and conditions
//	grepbag_records_emitted_total     records emitted to sinks
//	grepbag_records_suppressed_total  matched records suppressed, by sampling stage
//
// Registry, sources and scan:
//
//	grepbag_types_conflicts_total     schema conflicts under a known type name
//	grepbag_sources_read_errors_total source read errors, by source
//	grepbag_scan_duration_seconds     wall-clock scan duration histogram
//
// Sinks (labeled by sink instance):
//
//	grepbag_sinks_writes_total        writes by status (ok, error, dropped)
//	grepbag_sinks_commits_total       durable commits
//	grepbag_sinks_degraded            degradation gauge
//
// NATS connection health mirrors the natsclient package:
//
//	grepbag_nats_connected
//	grepbag_nats_rtt_milliseconds
//	grepbag_nats_reconnects_total
//
// # Component Metrics
//
// Components register their own collectors through the MetricsRegistrar
// interface carried in component.Dependencies:
//
//	rows := prometheus.NewCounter(prometheus.CounterOpts{
//	    Namespace: "grepbag",
//	    Subsystem: "db",
//	    Name:      "rows_written_total",
//	    Help:      "Rows written by the database sink",
//	})
//	if err := deps.MetricsRegistry.RegisterCounter("db", "rows_written_total", rows); err != nil {
//	    return nil, err
//	}
//
// Registration rejects duplicate component/metric name pairs and surfaces
// Prometheus descriptor conflicts as invalid errors.
//
// # Server
//
// The Server binds a mux with the metrics path, a /health endpoint and an
// index page:
//
//	srv := metric.NewServer(9090, "/metrics", registry)
//	go func() { _ = srv.Start() }()
//	defer srv.Stop()
//
// Start blocks until Stop closes the listener.
package metric
