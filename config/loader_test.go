package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeConfig writes a config file into a temp dir and returns its path
func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoader_LoadYAML(t *testing.T) {
	path := writeConfig(t, "scan.yaml", `
scan:
  patterns:
    - "status.level=ERROR"
    - "warning"
  invert: false
  conditions:
    - 'topic("/speed").data > 10'
  maxTotalMatches: 100
  before: 2
  after: 1
filter:
  topics: ["/sensors/*"]
  skipTopics: ["/sensors/debug"]
  startTime: 2024-06-01T12:00:00Z
sampling:
  unique: true
  nthMatch: 2
  nthInterval: "5s"
  maxPerTopic: 10
sources:
  - kind: bagfile
    name: run1
    options:
      path: run1.jsonl
sinks:
  - kind: console
  - kind: bagfile
    options:
      path: matches.jsonl
nats:
  urls: ["nats://a:4222", "nats://b:4222"]
  reconnectWait: "5s"
metrics:
  enabled: true
  port: 9191
logging:
  level: debug
  format: json
`)

	loader := NewLoader()
	cfg, err := loader.LoadFile(path)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, []string{"status.level=ERROR", "warning"}, cfg.Scan.Patterns)
	assert.Equal(t, []string{`topic("/speed").data > 10`}, cfg.Scan.Conditions)
	assert.Equal(t, 100, cfg.Scan.MaxTotalMatches)
	assert.Equal(t, 2, cfg.Scan.Before)
	assert.Equal(t, 1, cfg.Scan.After)

	assert.Equal(t, []string{"/sensors/*"}, cfg.Filter.Topics)
	assert.Equal(t, []string{"/sensors/debug"}, cfg.Filter.SkipTopics)
	assert.True(t, cfg.Filter.StartTime.Std().Equal(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)))
	assert.True(t, cfg.Filter.EndTime.IsZero())

	assert.True(t, cfg.Sampling.Unique)
	assert.Equal(t, 2, cfg.Sampling.NthMatch)
	assert.Equal(t, 5*time.Second, cfg.Sampling.NthInterval.Std())
	assert.Equal(t, 10, cfg.Sampling.MaxPerTopic)

	require.Len(t, cfg.Sources, 1)
	assert.Equal(t, "bagfile", cfg.Sources[0].Kind)
	assert.Equal(t, "run1", cfg.Sources[0].InstanceName())
	assert.Equal(t, "run1.jsonl", cfg.Sources[0].Options["path"])

	require.Len(t, cfg.Sinks, 2)
	assert.Equal(t, "console", cfg.Sinks[0].Kind)
	assert.Equal(t, "bagfile", cfg.Sinks[1].Kind)
	assert.Equal(t, "matches.jsonl", cfg.Sinks[1].Options["path"])

	assert.Equal(t, []string{"nats://a:4222", "nats://b:4222"}, cfg.NATS.URLs)
	assert.Equal(t, 5*time.Second, cfg.NATS.ReconnectWait.Std())

	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, 9191, cfg.Metrics.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, LogFormatJSON, cfg.Logging.Format)
}

func TestLoader_LoadJSON(t *testing.T) {
	path := writeConfig(t, "scan.json", `{
		"scan": {"patterns": ["status.level=ERROR"]},
		"sampling": {"nthInterval": 2},
		"sources": [{"kind": "bagfile", "options": {"path": "run1.jsonl"}}],
		"sinks": [{"kind": "csv", "options": {"path": "out.csv"}}]
	}`)

	loader := NewLoader()
	cfg, err := loader.LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"status.level=ERROR"}, cfg.Scan.Patterns)
	assert.Equal(t, 2*time.Second, cfg.Sampling.NthInterval.Std())
	require.Len(t, cfg.Sinks, 1)
	assert.Equal(t, "csv", cfg.Sinks[0].Kind)
}

func TestLoader_DefaultsPreserved(t *testing.T) {
	path := writeConfig(t, "scan.yaml", `
sources:
  - kind: bagfile
    options: {path: run1.jsonl}
`)

	loader := NewLoader()
	cfg, err := loader.LoadFile(path)
	require.NoError(t, err)

	// Untouched sections keep their defaults
	assert.Equal(t, []string{"nats://localhost:4222"}, cfg.NATS.URLs)
	assert.Equal(t, 2*time.Second, cfg.NATS.ReconnectWait.Std())
	assert.Equal(t, 9090, cfg.Metrics.Port)
	assert.Equal(t, "info", cfg.Logging.Level)
	require.Len(t, cfg.Sinks, 1)
	assert.Equal(t, "console", cfg.Sinks[0].Kind)
}

func TestLoader_LayerMerge(t *testing.T) {
	base := writeConfig(t, "base.yaml", `
scan:
  patterns: ["error"]
sources:
  - kind: bagfile
    options: {path: run1.jsonl}
logging:
  level: debug
`)
	override := writeConfig(t, "override.yaml", `
scan:
  patterns: ["fatal"]
metrics:
  enabled: true
`)

	loader := NewLoader()
	loader.AddLayer(base)
	loader.AddLayer(override)

	cfg, err := loader.Load()
	require.NoError(t, err)

	// Override layer wins for patterns, base survives elsewhere
	assert.Equal(t, []string{"fatal"}, cfg.Scan.Patterns)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Metrics.Enabled)
	require.Len(t, cfg.Sources, 1)
	assert.Equal(t, "bagfile", cfg.Sources[0].Kind)
}

func TestLoader_EnvOverrides(t *testing.T) {
	t.Setenv("GREPBAG_NATS_URLS", "nats://env1:4222,nats://env2:4222")
	t.Setenv("GREPBAG_NATS_USERNAME", "scanner")
	t.Setenv("GREPBAG_NATS_PASSWORD", "secret")
	t.Setenv("GREPBAG_LOG_LEVEL", "warn")
	t.Setenv("GREPBAG_METRICS_PORT", "9999")

	path := writeConfig(t, "scan.yaml", `
sources:
  - kind: bagfile
    options: {path: run1.jsonl}
nats:
  urls: ["nats://file:4222"]
`)

	loader := NewLoader()
	cfg, err := loader.LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"nats://env1:4222", "nats://env2:4222"}, cfg.NATS.URLs)
	assert.Equal(t, "scanner", cfg.NATS.Username)
	assert.Equal(t, "secret", cfg.NATS.Password)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, 9999, cfg.Metrics.Port)
	assert.True(t, cfg.Metrics.Enabled)
}

func TestLoader_ValidationEnabled(t *testing.T) {
	// No sources: passes without validation, fails with it
	path := writeConfig(t, "scan.yaml", `
sinks:
  - kind: console
`)

	loader := NewLoader()
	_, err := loader.LoadFile(path)
	require.NoError(t, err)

	loader = NewLoader()
	loader.EnableValidation(true)
	_, err = loader.LoadFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one source")
}

func TestLoader_Errors(t *testing.T) {
	loader := NewLoader()

	t.Run("missing file", func(t *testing.T) {
		_, err := loader.LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.Error(t, err)
	})

	t.Run("unsupported extension", func(t *testing.T) {
		path := writeConfig(t, "scan.toml", "x = 1")
		_, err := loader.LoadFile(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "YAML")
	})

	t.Run("invalid yaml", func(t *testing.T) {
		path := writeConfig(t, "scan.yaml", "scan: [unclosed")
		_, err := loader.LoadFile(path)
		assert.Error(t, err)
	})

	t.Run("invalid json", func(t *testing.T) {
		path := writeConfig(t, "scan.json", `{"scan": `)
		_, err := loader.LoadFile(path)
		assert.Error(t, err)
	})

	t.Run("path traversal", func(t *testing.T) {
		_, err := loader.LoadFile("../../../etc/passwd.json")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "traversal")
	})
}

func TestValidateJSONDepth(t *testing.T) {
	t.Run("reasonable nesting ok", func(t *testing.T) {
		assert.NoError(t, validateJSONDepth([]byte(`{"a": {"b": [1, 2, {"c": 3}]}}`)))
	})

	t.Run("excessive nesting rejected", func(t *testing.T) {
		deep := strings.Repeat("[", 150) + strings.Repeat("]", 150)
		err := validateJSONDepth([]byte(deep))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "too deep")
	})

	t.Run("unbalanced brackets rejected", func(t *testing.T) {
		err := validateJSONDepth([]byte(`{"a": 1`))
		assert.Error(t, err)
	})

	t.Run("brackets inside strings ignored", func(t *testing.T) {
		assert.NoError(t, validateJSONDepth([]byte(`{"a": "{[["}`)))
	})
}

func TestConfig_SaveToFile(t *testing.T) {
	cfg := validConfig()
	cfg.Scan.Patterns = []string{"error"}

	path := filepath.Join(t.TempDir(), "saved.json")
	require.NoError(t, cfg.SaveToFile(path))

	loader := NewLoader()
	loaded, err := loader.LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Scan.Patterns, loaded.Scan.Patterns)
	assert.Equal(t, cfg.Sources[0].Kind, loaded.Sources[0].Kind)
}
