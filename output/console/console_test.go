package console_test

import (
	"bytes"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/grepbag/component"
	"github.com/c360/grepbag/errors"
	"github.com/c360/grepbag/message"
	"github.com/c360/grepbag/output/console"
	"github.com/c360/grepbag/testutil"
	"github.com/c360/grepbag/types"
)

func testDeps() component.Dependencies {
	return component.Dependencies{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// countingWriter records how many Write calls reach the destination, one
// per sink commit.
type countingWriter struct {
	bytes.Buffer
	writes int
}

func (w *countingWriter) Write(p []byte) (int, error) {
	w.writes++
	return w.Buffer.Write(p)
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, io.ErrClosedPipe
}

func newSink(t *testing.T, cfg console.Config) (*console.Sink, *countingWriter) {
	t.Helper()
	w := &countingWriter{}
	cfg.Writer = w
	sink, err := console.NewSink(cfg, testDeps())
	require.NoError(t, err)
	return sink, w
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     console.Config
		wantErr bool
	}{
		{"defaults", console.DefaultConfig(), false},
		{"empty target", console.Config{}, false},
		{"stderr target", console.Config{Target: "stderr"}, false},
		{"bad target", console.Config{Target: "file"}, true},
		{"negative interval", console.Config{CommitInterval: -1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsInvalid(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSink_RendersIndentedText(t *testing.T) {
	sink, w := newSink(t, console.DefaultConfig())

	rec := testutil.Rec("/robot/pose", "nav_msgs/PoseStamped", testutil.BaseStamp, message.Map(
		message.F("header", message.Map(
			message.F("frame", message.Str("map")),
		)),
		message.F("position", message.Map(
			message.F("x", message.Float(1.5)),
			message.F("y", message.Float(-2)),
		)),
		message.F("ranges", message.List(message.Int(1), message.Int(2), message.Int(3))),
		message.F("tags", message.List()),
		message.F("ok", message.Bool(true)),
	))
	require.NoError(t, sink.Write(rec, component.WriteMeta{Index: 1}))

	want := `header:
  frame: "map"
position:
  x: 1.5
  y: -2
ranges: [1, 2, 3]
tags: []
ok: true
`
	assert.Equal(t, want, w.String())
}

func TestSink_RendersBlockSequences(t *testing.T) {
	sink, w := newSink(t, console.DefaultConfig())

	rec := testutil.Rec("/path", "nav_msgs/Path", testutil.BaseStamp, message.Map(
		message.F("points", message.List(
			message.Map(message.F("x", message.Int(1)), message.F("y", message.Int(2))),
			message.Map(message.F("x", message.Int(3)), message.F("y", message.Int(4))),
		)),
	))
	require.NoError(t, sink.Write(rec, component.WriteMeta{Index: 1}))

	want := `points:
- x: 1
  y: 2
- x: 3
  y: 4
`
	assert.Equal(t, want, w.String())
}

func TestSink_HighlightsMatchedLeaves(t *testing.T) {
	sink, w := newSink(t, console.DefaultConfig())

	rec := testutil.StatusRecord("/diagnostics", 2, "WARN", "motor hot", testutil.BaseStamp)
	meta := component.WriteMeta{Index: 1, MatchedPaths: []string{"level"}}
	require.NoError(t, sink.Write(rec, meta))

	assert.Contains(t, w.String(), `level: **"WARN"**`)
	assert.Contains(t, w.String(), `text: "motor hot"`)
}

func TestSink_HighlightsSequenceElements(t *testing.T) {
	cfg := console.DefaultConfig()
	cfg.WrapStart, cfg.WrapEnd = ">>", "<<"
	sink, w := newSink(t, cfg)

	rec := testutil.Rec("/scan", "sensor_msgs/LaserScan", testutil.BaseStamp, message.Map(
		message.F("ranges", message.List(message.Float(0.5), message.Float(9.1), message.Float(0.7))),
	))
	meta := component.WriteMeta{Index: 1, MatchedPaths: []string{"ranges[1]"}}
	require.NoError(t, sink.Write(rec, meta))

	assert.Equal(t, "ranges: [0.5, >>9.1<<, 0.7]\n", w.String())
}

func TestSink_SeparatorBetweenRecords(t *testing.T) {
	sink, w := newSink(t, console.DefaultConfig())

	recs := testutil.StatusSequence("/diagnostics", 2, 0)
	require.NoError(t, sink.Write(recs[0], component.WriteMeta{Index: 1}))
	require.NoError(t, sink.Write(recs[1], component.WriteMeta{Index: 2}))

	out := w.String()
	assert.Equal(t, 1, bytes.Count([]byte(out), []byte("---\n")), "one separator between two records")
	assert.False(t, bytes.HasPrefix([]byte(out), []byte("---")), "no separator before the first record")
}

func TestSink_MetaLine(t *testing.T) {
	cfg := console.DefaultConfig()
	cfg.Meta = true
	sink, w := newSink(t, cfg)

	rec := testutil.StatusRecord("/diagnostics", 1, "INFO", "ok", testutil.BaseStamp)
	require.NoError(t, sink.Write(rec, component.WriteMeta{Index: 7}))

	assert.Contains(t, w.String(), "--- #7 /diagnostics diag_msgs/Status 2024-05-20T10:00:00Z\n")
}

func TestSink_SourcePrefix(t *testing.T) {
	cfg := console.DefaultConfig()
	cfg.SourcePrefix = true
	sink, w := newSink(t, cfg)

	rec := testutil.StatusRecord("/diagnostics", 1, "INFO", "ok", testutil.BaseStamp)
	require.NoError(t, sink.Write(rec, component.WriteMeta{Index: 1, MatchedPaths: []string{"level"}}))
	require.NoError(t, sink.Write(rec, component.WriteMeta{Index: 2, Context: true}))

	out := w.String()
	assert.Contains(t, out, "/diagnostics:seq: 1", "match lines use the colon separator")
	assert.Contains(t, out, "/diagnostics-seq: 1", "context lines use the dash separator")
}

func TestSink_MatchedOnly(t *testing.T) {
	cfg := console.DefaultConfig()
	cfg.MatchedOnly = true
	sink, w := newSink(t, cfg)

	rec := testutil.StatusRecord("/diagnostics", 3, "ERROR", "dead motor", testutil.BaseStamp)
	require.NoError(t, sink.Write(rec, component.WriteMeta{Index: 1, MatchedPaths: []string{"level"}}))

	out := w.String()
	assert.Contains(t, out, "level:")
	assert.NotContains(t, out, "seq:")
	assert.NotContains(t, out, "text:")

	// Records without matched paths render in full.
	w.Reset()
	require.NoError(t, sink.Write(rec, component.WriteMeta{Index: 2}))
	assert.Contains(t, w.String(), "seq: 3")
}

// Two sinks over the same stream: one committing every record, one every
// third. After four records the first has committed four times and the
// second once, its fourth record buffered until Flush.
func TestSink_CommitIntervals(t *testing.T) {
	cfgA := console.DefaultConfig()
	cfgA.CommitInterval = 3
	sinkA, wA := newSink(t, cfgA)
	sinkB, wB := newSink(t, console.DefaultConfig())

	recs := testutil.StatusSequence("/diagnostics", 4, 0)
	for i, rec := range recs {
		meta := component.WriteMeta{Index: i + 1}
		require.NoError(t, sinkA.Write(rec, meta))
		require.NoError(t, sinkB.Write(rec, meta))
	}

	assert.Equal(t, 1, wA.writes, "interval 3 commits once over four records")
	assert.Equal(t, 4, wB.writes, "interval 1 commits every record")
	assert.NotEqual(t, wA.String(), wB.String(), "one record still buffered")

	require.NoError(t, sinkA.Flush())
	assert.Equal(t, 2, wA.writes)
	assert.Equal(t, wB.String(), wA.String(), "flush drains the buffered record")

	// A flush with nothing buffered performs no commit.
	require.NoError(t, sinkA.Flush())
	assert.Equal(t, 2, wA.writes)
}

func TestSink_CloseCommitsAndRejectsWrites(t *testing.T) {
	cfg := console.DefaultConfig()
	cfg.CommitInterval = 10
	sink, w := newSink(t, cfg)

	rec := testutil.StatusRecord("/diagnostics", 1, "INFO", "ok", testutil.BaseStamp)
	require.NoError(t, sink.Write(rec, component.WriteMeta{Index: 1}))
	assert.Equal(t, 0, w.writes)

	require.NoError(t, sink.Close())
	assert.Equal(t, 1, w.writes, "close commits the pending buffer")

	err := sink.Write(rec, component.WriteMeta{Index: 2})
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrSinkClosed)

	assert.NoError(t, sink.Close(), "close is idempotent")
	assert.Equal(t, 1, w.writes)
}

func TestSink_WriteFailureSurfaces(t *testing.T) {
	cfg := console.DefaultConfig()
	cfg.Writer = failingWriter{}
	sink, err := console.NewSink(cfg, testDeps())
	require.NoError(t, err)

	rec := testutil.StatusRecord("/diagnostics", 1, "INFO", "ok", testutil.BaseStamp)
	err = sink.Write(rec, component.WriteMeta{Index: 1})
	require.Error(t, err)
	assert.True(t, errors.IsTransient(err))
}

func TestRegister_BuildsFromOptions(t *testing.T) {
	registry := component.NewRegistry()
	require.NoError(t, console.Register(registry))

	sink, err := registry.NewSink(types.SinkConfig{
		Kind: "console",
		Options: map[string]any{
			"target":         "stderr",
			"commitInterval": 5,
			"meta":           true,
			"sourcePrefix":   true,
			"matchedOnly":    true,
			"matchWrapper":   []any{">>", "<<"},
		},
	}, testDeps())
	require.NoError(t, err)
	require.NotNil(t, sink)
	require.NoError(t, sink.Close())
}

func TestRegister_RejectsBadOptions(t *testing.T) {
	registry := component.NewRegistry()
	require.NoError(t, console.Register(registry))

	tests := []struct {
		name string
		opts map[string]any
	}{
		{"bad target", map[string]any{"target": "file"}},
		{"zero interval", map[string]any{"commitInterval": 0}},
		{"unknown option", map[string]any{"color": "always"}},
		{"wrapper type", map[string]any{"matchWrapper": 7}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := registry.NewSink(types.SinkConfig{Kind: "console", Options: tt.opts}, testDeps())
			require.Error(t, err)
			assert.True(t, errors.IsInvalid(err))
		})
	}
}
