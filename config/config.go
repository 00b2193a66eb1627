package config

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/c360/grepbag/errors"
	"github.com/c360/grepbag/pkg/timestamp"
	"github.com/c360/grepbag/types"
)

// Logging format and level values accepted by LoggingConfig.
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// Config is the complete configuration for one scan run.
type Config struct {
	Version  string               `json:"version,omitempty"`
	Scan     ScanConfig           `json:"scan"`
	Filter   FilterConfig         `json:"filter,omitempty"`
	Sampling SamplingConfig       `json:"sampling,omitempty"`
	Sources  []types.SourceConfig `json:"sources"`
	Sinks    []types.SinkConfig   `json:"sinks"`
	NATS     NATSConfig           `json:"nats,omitempty"`
	Metrics  MetricsConfig        `json:"metrics,omitempty"`
	Logging  LoggingConfig        `json:"logging,omitempty"`
}

// ScanConfig holds the match patterns, conditions and match-stream limits.
type ScanConfig struct {
	// Patterns are "value" or "path=value" match specs. The path side takes
	// "*" wildcards per segment; the value side is a regular expression
	// unless Raw is set. No patterns means every record matches.
	Patterns []string `json:"patterns,omitempty"`

	// Invert emits records that do NOT match the patterns.
	Invert bool `json:"invert,omitempty"`

	// CaseSensitive disables the default case-insensitive value matching.
	CaseSensitive bool `json:"caseSensitive,omitempty"`

	// Raw treats pattern values as literal text instead of regular expressions.
	Raw bool `json:"raw,omitempty"`

	// Conditions are boolean expressions over the latest observed values,
	// e.g. `topic("/speed").data > 10 AND NOT topic("/brake").engaged == true`.
	// All expressions must hold for records to be emitted.
	Conditions []string `json:"conditions,omitempty"`

	// MaxTotalMatches stops a bounded scan after this many emitted matches
	// across all topics. 0 is unlimited.
	MaxTotalMatches int `json:"maxTotalMatches,omitempty"`

	// OrderSources interleaves records from multiple sources by stamp
	// instead of draining the sources one after another.
	OrderSources bool `json:"orderSources,omitempty"`

	// Before and After emit that many context records around each match.
	Before int `json:"before,omitempty"`
	After  int `json:"after,omitempty"`
}

// FilterConfig is the record gate: which records are eligible for matching.
// Gated-out records still feed condition state and message counters.
type FilterConfig struct {
	Topics     []string `json:"topics,omitempty"`     // include, "*" wildcards
	SkipTopics []string `json:"skipTopics,omitempty"` // exclude, wins over include
	Types      []string `json:"types,omitempty"`
	SkipTypes  []string `json:"skipTypes,omitempty"`
	StartTime  Time     `json:"startTime,omitempty"`  // zero = unbounded
	EndTime    Time     `json:"endTime,omitempty"`    // zero = unbounded
	StartIndex int      `json:"startIndex,omitempty"` // 1-based per topic, negative = from end
	EndIndex   int      `json:"endIndex,omitempty"`
}

// SamplingConfig thins the match stream. Zero values disable each policy.
type SamplingConfig struct {
	Unique      bool     `json:"unique,omitempty"`      // drop records whose content was already seen
	NthMessage  int      `json:"nthMessage,omitempty"`  // match only every Nth message per topic
	NthMatch    int      `json:"nthMatch,omitempty"`    // emit only every Nth match per topic
	NthInterval Duration `json:"nthInterval,omitempty"` // minimum record-stamp distance between emits
	MaxPerTopic int      `json:"maxPerTopic,omitempty"` // cap emitted matches per topic
}

// NATSConfig defines NATS connection settings for live sources and sinks.
type NATSConfig struct {
	URLs          []string      `json:"urls,omitempty"`
	Name          string        `json:"name,omitempty"`
	MaxReconnects int           `json:"maxReconnects,omitempty"`
	ReconnectWait Duration      `json:"reconnectWait,omitempty"`
	Username      string        `json:"username,omitempty"`
	Password      string        `json:"password,omitempty"`
	Token         string        `json:"token,omitempty"`
	TLS           NATSTLSConfig `json:"tls,omitempty"`
}

// NATSTLSConfig for secure NATS connections
type NATSTLSConfig struct {
	Enabled  bool   `json:"enabled"`
	CertFile string `json:"certFile,omitempty"`
	KeyFile  string `json:"keyFile,omitempty"`
	CAFile   string `json:"caFile,omitempty"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `json:"enabled,omitempty"`
	Port    int    `json:"port,omitempty"` // default 9090
	Path    string `json:"path,omitempty"` // default /metrics
}

// LoggingConfig controls slog setup.
type LoggingConfig struct {
	Level  string `json:"level,omitempty"`  // debug, info, warn, error
	Format string `json:"format,omitempty"` // text or json
}

// Duration accepts Go duration strings ("2s", "1m30s") and bare numbers
// (whole or fractional seconds) in config files.
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// MarshalJSON renders the duration as a string
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON parses a duration string or numeric seconds
func (d *Duration) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	switch v := raw.(type) {
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", v, err)
		}
		*d = Duration(parsed)
		return nil
	case float64:
		*d = Duration(time.Duration(v * float64(time.Second)))
		return nil
	default:
		return fmt.Errorf("invalid duration value %v (want string or seconds)", raw)
	}
}

// Time accepts RFC 3339 timestamps, date and datetime layouts without a
// zone, and numeric UNIX epochs in config files.
type Time time.Time

// Std returns the value as a time.Time.
func (t Time) Std() time.Time {
	return time.Time(t)
}

// IsZero reports whether the time bound is unset.
func (t Time) IsZero() bool {
	return time.Time(t).IsZero()
}

// MarshalJSON renders the timestamp as RFC 3339.
func (t Time) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Time(t))
}

// UnmarshalJSON parses any supported timestamp form.
func (t *Time) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := timestamp.Parse(raw)
	if err != nil {
		return err
	}
	*t = Time(parsed)
	return nil
}

// DefaultConfig returns a configuration with sensible defaults for a local
// scan: console output, local NATS, metrics disabled.
func DefaultConfig() *Config {
	return &Config{
		Version: "1.0.0",
		Sinks: []types.SinkConfig{
			{Kind: "console"},
		},
		NATS: NATSConfig{
			URLs:          []string{"nats://localhost:4222"},
			Name:          "grepbag",
			MaxReconnects: -1,
			ReconnectWait: Duration(2 * time.Second),
		},
		Metrics: MetricsConfig{
			Port: 9090,
			Path: "/metrics",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: LogFormatText,
		},
	}
}

// Validate checks if the config is valid
func (c *Config) Validate() error {
	if len(c.Sources) == 0 {
		return errors.WrapInvalid(errors.ErrMissingConfig,
			"Config", "Validate", "at least one source is required")
	}
	for i, src := range c.Sources {
		if err := src.Validate(); err != nil {
			return fmt.Errorf("sources[%d]: %w", i, err)
		}
	}

	if len(c.Sinks) == 0 {
		return errors.WrapInvalid(errors.ErrMissingConfig,
			"Config", "Validate", "at least one sink is required")
	}
	for i, sink := range c.Sinks {
		if err := sink.Validate(); err != nil {
			return fmt.Errorf("sinks[%d]: %w", i, err)
		}
	}

	if err := c.Sampling.validate(); err != nil {
		return err
	}
	if err := c.Filter.validate(); err != nil {
		return err
	}
	if err := c.Scan.validate(); err != nil {
		return err
	}
	if err := c.Logging.validate(); err != nil {
		return err
	}

	if c.Metrics.Port < 0 || c.Metrics.Port > 65535 {
		return errors.WrapInvalid(
			fmt.Errorf("metrics port %d out of range", c.Metrics.Port),
			"Config", "Validate", "check metrics port")
	}

	return nil
}

func (s *ScanConfig) validate() error {
	if s.MaxTotalMatches < 0 {
		return errors.WrapInvalid(
			fmt.Errorf("maxTotalMatches cannot be negative, got %d", s.MaxTotalMatches),
			"Config", "Validate", "check scan limits")
	}
	if s.Before < 0 || s.After < 0 {
		return errors.WrapInvalid(
			fmt.Errorf("context window cannot be negative (before=%d after=%d)", s.Before, s.After),
			"Config", "Validate", "check context window")
	}
	return nil
}

func (f *FilterConfig) validate() error {
	if !f.StartTime.IsZero() && !f.EndTime.IsZero() && f.EndTime.Std().Before(f.StartTime.Std()) {
		return errors.WrapInvalid(
			fmt.Errorf("endTime %s precedes startTime %s",
				f.EndTime.Std().Format(time.RFC3339), f.StartTime.Std().Format(time.RFC3339)),
			"Config", "Validate", "check time range")
	}
	return nil
}

func (s *SamplingConfig) validate() error {
	if s.NthMessage < 0 || s.NthMatch < 0 || s.MaxPerTopic < 0 {
		return errors.WrapInvalid(
			fmt.Errorf("sampling counters cannot be negative (nthMessage=%d nthMatch=%d maxPerTopic=%d)",
				s.NthMessage, s.NthMatch, s.MaxPerTopic),
			"Config", "Validate", "check sampling")
	}
	if s.NthInterval < 0 {
		return errors.WrapInvalid(
			fmt.Errorf("nthInterval cannot be negative, got %s", s.NthInterval.Std()),
			"Config", "Validate", "check sampling")
	}
	return nil
}

func (l *LoggingConfig) validate() error {
	switch l.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return errors.WrapInvalid(
			fmt.Errorf("unknown log level %q", l.Level),
			"Config", "Validate", "check logging")
	}
	switch l.Format {
	case "", LogFormatText, LogFormatJSON:
	default:
		return errors.WrapInvalid(
			fmt.Errorf("unknown log format %q", l.Format),
			"Config", "Validate", "check logging")
	}
	return nil
}

// Clone creates a deep copy of the configuration
func (c *Config) Clone() *Config {
	if c == nil {
		return &Config{}
	}

	// Use JSON marshaling/unmarshaling for deep copy
	data, err := json.Marshal(c)
	if err != nil {
		// Fallback to shallow copy if marshaling fails
		copied := *c
		return &copied
	}

	var clone Config
	if err := json.Unmarshal(data, &clone); err != nil {
		copied := *c
		return &copied
	}

	return &clone
}

// String returns an indented JSON rendering with credentials redacted
func (c *Config) String() string {
	clone := c.Clone()
	if clone.NATS.Password != "" {
		clone.NATS.Password = "[redacted]"
	}
	if clone.NATS.Token != "" {
		clone.NATS.Token = "[redacted]"
	}

	data, _ := json.MarshalIndent(clone, "", "  ")
	return string(data)
}

// SaveToFile saves the configuration to a JSON file
func (c *Config) SaveToFile(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	// Use secure file writing with validation
	return safeWriteFile(path, data)
}
