// Package main implements the grepbag command line tool. grepbag scans
// recorded bag files or live topic subscriptions for records matching
// field patterns and boolean conditions, and fans the matches out to the
// configured sinks.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/c360/grepbag/component"
	"github.com/c360/grepbag/componentregistry"
	"github.com/c360/grepbag/config"
	"github.com/c360/grepbag/engine"
	pkgerrors "github.com/c360/grepbag/errors"
	"github.com/c360/grepbag/message"
	"github.com/c360/grepbag/metric"
	"github.com/c360/grepbag/natsclient"
	"github.com/c360/grepbag/processor/match"
	"github.com/c360/grepbag/processor/sample"
	"github.com/c360/grepbag/types"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "grepbag"
)

// Exit codes. Cancellation maps to 130 so shells see the conventional
// interrupt status.
const (
	exitOK        = 0
	exitError     = 1
	exitCancelled = 130
)

func main() {
	// Add panic recovery
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	code, err := run()
	if err != nil {
		slog.Error("grepbag failed",
			"error", err,
			"kind", pkgerrors.Classify(err).String(),
			"exit_code", code)
	}
	os.Exit(code)
}

func run() (int, error) {
	cliCfg := parseFlags()
	if err := validateFlags(cliCfg); err != nil {
		return exitError, fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return exitOK, nil
	}
	if cliCfg.ShowHelp {
		printDetailedHelp()
		return exitOK, nil
	}

	cfg, err := loadConfig(cliCfg)
	if err != nil {
		return exitError, err
	}

	logger := setupLogger(cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)

	if cliCfg.Validate {
		slog.Info("configuration is valid", "config_path", cliCfg.ConfigPath)
		return exitOK, nil
	}

	slog.Info("starting grepbag",
		"version", Version,
		"build_time", BuildTime,
		"config_path", cliCfg.ConfigPath)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	summary, err := scan(ctx, cfg, logger)
	if err != nil {
		return exitError, err
	}

	printSummary(summary)

	if summary.StopCause == engine.StopCancelled {
		return exitCancelled, nil
	}
	if summary.Err != nil {
		return exitError, summary.Err
	}
	return exitOK, nil
}

// loadConfig loads the config file, applies command-line overrides, and
// validates the result. Flags win over GREPBAG_* environment variables,
// which the loader has already folded in over the file.
func loadConfig(cli *CLIConfig) (*config.Config, error) {
	loader := config.NewLoader()
	cfg, err := loader.LoadFile(cli.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if cli.LogLevel != "" {
		cfg.Logging.Level = cli.LogLevel
	}
	if cli.LogFormat != "" {
		cfg.Logging.Format = cli.LogFormat
	}
	if cli.MetricsPort >= 0 {
		cfg.Metrics.Port = cli.MetricsPort
		cfg.Metrics.Enabled = cli.MetricsPort > 0
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// scan builds the run from config and drives it to completion: metrics
// endpoint, NATS connection when a component needs one, registry, sources,
// sinks, scanner.
func scan(ctx context.Context, cfg *config.Config, logger *slog.Logger) (engine.Summary, error) {
	var metricsRegistry *metric.MetricsRegistry
	if cfg.Metrics.Enabled {
		metricsRegistry = metric.NewMetricsRegistry()
		server := metric.NewServer(cfg.Metrics.Port, cfg.Metrics.Path, metricsRegistry)
		go func() {
			if err := server.Start(); err != nil {
				slog.Warn("metrics server failed", "error", err)
			}
		}()
		defer func() { _ = server.Stop() }()
		slog.Info("metrics server listening", "address", server.Address())
	}

	var natsClient *natsclient.Client
	if needsNATS(cfg) {
		client, err := connectNATS(ctx, cfg, metricsRegistry)
		if err != nil {
			return engine.Summary{}, err
		}
		natsClient = client
		defer func() { _ = natsClient.Close(context.Background()) }()
	}

	registry := component.NewRegistry()
	if err := componentregistry.Register(registry); err != nil {
		return engine.Summary{}, fmt.Errorf("register components: %w", err)
	}

	typeRegistry := message.NewRegistry()
	deps := component.Dependencies{
		NATSClient:      natsClient,
		MetricsRegistry: metricsRegistry,
		Logger:          logger,
		Types:           typeRegistry,
	}

	source, err := buildSources(registry, cfg, deps)
	if err != nil {
		return engine.Summary{}, err
	}

	mux := engine.NewMultiplexer(logger, metricsRegistry)
	if err := buildSinks(registry, cfg, deps, mux); err != nil {
		return engine.Summary{}, err
	}

	scanner, err := engine.NewScanner(source, mux, scanOptions(cfg, logger, metricsRegistry, typeRegistry))
	if err != nil {
		return engine.Summary{}, err
	}
	return scanner.Scan(ctx), nil
}

// buildSources constructs every configured source and merges them into one.
func buildSources(registry *component.Registry, cfg *config.Config, deps component.Dependencies) (component.Source, error) {
	sources := make([]component.Source, 0, len(cfg.Sources))
	for i, srcCfg := range cfg.Sources {
		src, err := registry.NewSource(srcCfg, deps)
		if err != nil {
			return nil, fmt.Errorf("sources[%d] %s: %w", i, srcCfg.InstanceName(), err)
		}
		sources = append(sources, src)
	}
	return engine.MergeSources(cfg.Scan.OrderSources, sources...), nil
}

// buildSinks constructs every configured sink and registers it with the
// multiplexer in config order.
func buildSinks(registry *component.Registry, cfg *config.Config, deps component.Dependencies, mux *engine.Multiplexer) error {
	for i, sinkCfg := range cfg.Sinks {
		sink, err := registry.NewSink(sinkCfg, deps)
		if err != nil {
			return fmt.Errorf("sinks[%d] %s: %w", i, sinkCfg.InstanceName(), err)
		}
		mux.Add(sinkCfg.InstanceName(), sink)
	}
	return nil
}

// scanOptions maps the file config onto the engine's options.
func scanOptions(cfg *config.Config, logger *slog.Logger, metrics *metric.MetricsRegistry, typeRegistry *message.Registry) engine.Options {
	return engine.Options{
		Patterns: match.ParsePatterns(cfg.Scan.Patterns),
		Match: match.Options{
			Invert:        cfg.Scan.Invert,
			CaseSensitive: cfg.Scan.CaseSensitive,
			Raw:           cfg.Scan.Raw,
		},
		Conditions: cfg.Scan.Conditions,
		Sampling: sample.Config{
			Unique:      cfg.Sampling.Unique,
			NthMessage:  cfg.Sampling.NthMessage,
			NthMatch:    cfg.Sampling.NthMatch,
			NthInterval: cfg.Sampling.NthInterval.Std(),
			MaxPerTopic: cfg.Sampling.MaxPerTopic,
		},
		Gate: engine.GateConfig{
			Topics:     cfg.Filter.Topics,
			SkipTopics: cfg.Filter.SkipTopics,
			Types:      cfg.Filter.Types,
			SkipTypes:  cfg.Filter.SkipTypes,
			From:       cfg.Filter.StartTime.Std(),
			To:         cfg.Filter.EndTime.Std(),
			StartIndex: cfg.Filter.StartIndex,
			EndIndex:   cfg.Filter.EndIndex,
		},
		MaxTotalMatches: cfg.Scan.MaxTotalMatches,
		Before:          cfg.Scan.Before,
		After:           cfg.Scan.After,
		Progress:        engine.NewLogProgress(logger, 0),
		Logger:          logger,
		Metrics:         metrics,
		Types:           typeRegistry,
		SourceName:      sourceLabel(cfg.Sources),
	}
}

// sourceLabel names the source for read-error logs: the instance name when
// there is one source, "merged" otherwise. Merged read errors carry their
// source position already.
func sourceLabel(sources []types.SourceConfig) string {
	if len(sources) == 1 {
		return sources[0].InstanceName()
	}
	return "merged"
}

// needsNATS reports whether any configured component is NATS-backed.
func needsNATS(cfg *config.Config) bool {
	for _, src := range cfg.Sources {
		if src.Kind == "nats" {
			return true
		}
	}
	for _, sink := range cfg.Sinks {
		if sink.Kind == "nats" {
			return true
		}
	}
	return false
}

// connectNATS builds the shared NATS client from config and waits for the
// connection to come up.
func connectNATS(ctx context.Context, cfg *config.Config, metrics *metric.MetricsRegistry) (*natsclient.Client, error) {
	url := "nats://localhost:4222"
	if len(cfg.NATS.URLs) > 0 {
		url = strings.Join(cfg.NATS.URLs, ",")
	}

	opts := []natsclient.ClientOption{
		natsclient.WithMaxReconnects(cfg.NATS.MaxReconnects),
	}
	if cfg.NATS.Name != "" {
		opts = append(opts, natsclient.WithName(cfg.NATS.Name))
	}
	if wait := cfg.NATS.ReconnectWait.Std(); wait > 0 {
		opts = append(opts, natsclient.WithReconnectWait(wait))
	}
	if cfg.NATS.Username != "" {
		opts = append(opts, natsclient.WithCredentials(cfg.NATS.Username, cfg.NATS.Password))
	}
	if cfg.NATS.Token != "" {
		opts = append(opts, natsclient.WithToken(cfg.NATS.Token))
	}
	if cfg.NATS.TLS.Enabled {
		opts = append(opts, natsclient.WithTLS(cfg.NATS.TLS.CertFile, cfg.NATS.TLS.KeyFile, cfg.NATS.TLS.CAFile))
	}
	if metrics != nil {
		opts = append(opts, natsclient.WithMetrics(metrics))
	}

	client, err := natsclient.NewClient(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("create NATS client: %w", err)
	}

	slog.Info("connecting to NATS", "url", url)
	if err := client.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.WaitForConnection(connCtx); err != nil {
		_ = client.Close(context.Background())
		return nil, fmt.Errorf("NATS connection timeout: %w", err)
	}

	return client, nil
}

// printSummary writes the final counters to stderr, keeping stdout clean
// for sinks that render there. Cancelled runs report the partial counts.
func printSummary(s engine.Summary) {
	_, _ = fmt.Fprintf(os.Stderr, "%s: pulled %d records across %d topics, matched %d, emitted %d in %s (%s)\n",
		appName, s.Pulled, len(s.PerTopic), s.Matched, s.Emitted,
		s.Duration.Round(time.Millisecond), s.StopCause)
	if len(s.Conflicts) > 0 {
		_, _ = fmt.Fprintf(os.Stderr, "%s: schema conflicts: %d\n", appName, len(s.Conflicts))
	}
	if len(s.Degraded) > 0 {
		_, _ = fmt.Fprintf(os.Stderr, "%s: degraded sinks: %s\n", appName, strings.Join(s.Degraded, ", "))
	}
}
