// Package config loads and validates grepbag run configuration.
//
// A configuration describes one scan run: what to match (patterns and
// conditions), which records are eligible (filters), how the match stream
// is thinned (sampling), where records come from (sources) and where
// matches go (sinks), plus connection, metrics and logging settings.
//
// # Loading
//
// Files are YAML or JSON, decided by extension. Layers merge last-wins,
// and environment variables override files:
//
//	loader := config.NewLoader()
//	loader.AddLayer("scan.yaml")
//	loader.AddLayer("scan.local.yaml") // overrides scan.yaml
//	loader.EnableValidation(true)
//
//	cfg, err := loader.Load()
//	if err != nil {
//		log.Fatal(err)
//	}
//
// A minimal YAML configuration:
//
//	scan:
//	  patterns: ["status.level=ERROR"]
//	sources:
//	  - kind: bagfile
//	    options: {path: run1.jsonl}
//	sinks:
//	  - kind: console
//
// # Environment Variable Overrides
//
//	# Override NATS URLs (comma-separated)
//	export GREPBAG_NATS_URLS="nats://server1:4222,nats://server2:4222"
//
//	# Credentials kept out of config files
//	export GREPBAG_NATS_USERNAME="scanner"
//	export GREPBAG_NATS_PASSWORD="secret"
//
//	# Logging and metrics
//	export GREPBAG_LOG_LEVEL="debug"
//	export GREPBAG_METRICS_PORT="9091"
//
// # Durations
//
// Duration fields accept Go duration strings ("2s", "1m30s") or bare
// numbers read as seconds, so `nthInterval: 2` and `nthInterval: "2s"`
// are the same.
//
// # Security
//
// File loading enforces a 10MB size limit, JSON nesting depth limits,
// path traversal checks and regular-file checks. Config.String() redacts
// credentials for safe logging.
package config
