package component

import (
	"log/slog"

	"github.com/c360/grepbag/message"
	"github.com/c360/grepbag/metric"
	"github.com/c360/grepbag/natsclient"
)

// Dependencies provides the external dependencies factories need to build
// components. Factories take what they use and ignore the rest; only the
// NATS-backed kinds require NATSClient.
type Dependencies struct {
	NATSClient      *natsclient.Client      // NATS client for live subscriptions and republish
	MetricsRegistry *metric.MetricsRegistry // Metrics registry for Prometheus (can be nil)
	Logger          *slog.Logger            // Structured logger (can be nil, defaults to slog.Default())

	// Types is the run's type registry. Sinks that materialize per-variant
	// output (db, csv, sqlschema) look descriptors up here by TypeID.
	Types *message.Registry
}

// GetLogger returns the configured logger or a default logger if none is provided
func (d *Dependencies) GetLogger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

// GetLoggerWithComponent returns a logger configured with component context
func (d *Dependencies) GetLoggerWithComponent(componentName string) *slog.Logger {
	return d.GetLogger().With("component", componentName)
}
