package sqlschema_test

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/grepbag/component"
	"github.com/c360/grepbag/errors"
	"github.com/c360/grepbag/message"
	"github.com/c360/grepbag/output/sqlschema"
	"github.com/c360/grepbag/testutil"
	"github.com/c360/grepbag/types"
)

func testDeps() component.Dependencies {
	return component.Dependencies{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func newSink(t *testing.T, cfg sqlschema.Config) *sqlschema.Sink {
	t.Helper()
	sink, err := sqlschema.NewSink(cfg, testDeps())
	require.NoError(t, err)
	t.Cleanup(func() { _ = sink.Close() })
	return sink
}

func readDoc(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(b)
}

func diagArrayRecord(topic string) message.Record {
	return testutil.Rec(topic, "diag_msgs/DiagnosticArray", testutil.BaseStamp, message.Map(
		message.F("seq", message.Int(9)),
		message.F("status", message.List(
			message.Map(
				message.F("level", message.Str("OK")),
				message.F("name", message.Str("battery")),
			),
		)),
	))
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     sqlschema.Config
		wantErr bool
	}{
		{name: "valid", cfg: sqlschema.Config{Path: "out/schema.sql"}},
		{name: "full options", cfg: sqlschema.Config{Path: "s.sql", Dialect: "sqlite", SubtypeMode: "all", CommitInterval: 10}},
		{name: "missing path", cfg: sqlschema.Config{}, wantErr: true},
		{name: "whitespace path", cfg: sqlschema.Config{Path: "   "}, wantErr: true},
		{name: "bad dialect", cfg: sqlschema.Config{Path: "s.sql", Dialect: "mysql"}, wantErr: true},
		{name: "bad subtype mode", cfg: sqlschema.Config{Path: "s.sql", SubtypeMode: "deep"}, wantErr: true},
		{name: "negative interval", cfg: sqlschema.Config{Path: "s.sql", CommitInterval: -1}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsInvalid(err))
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestSink_DocumentWrittenOnClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.sql")
	sink := newSink(t, sqlschema.Config{Path: path})

	status := testutil.StatusRecord("/diagnostics", 1, "INFO", "ok", testutil.BaseStamp)
	pose := testutil.PoseRecord("/robot/pose", 1.5, -2, 0.1, testutil.BaseStamp)
	require.NoError(t, sink.Write(status, component.WriteMeta{Index: 1}))
	require.NoError(t, sink.Write(pose, component.WriteMeta{Index: 2}))
	assert.NoFileExists(t, path, "document appears on flush or close, not per write")

	require.NoError(t, sink.Close())
	doc := readDoc(t, path)

	assert.True(t, strings.HasPrefix(doc, "-- SQL dialect: postgres.\n"))
	assert.Contains(t, doc, "-- Message type diag_msgs/Status ("+status.SchemaHash+")\n")
	assert.Contains(t, doc, `CREATE TABLE IF NOT EXISTS "diag_msgs/Status" (
  "seq" BIGINT,
  "level" TEXT,
  "text" TEXT,
  "_topic" TEXT,
  "_stamp" TIMESTAMPTZ
);`)
	assert.Contains(t, doc, `-- Topic "/diagnostics": diag_msgs/Status (`+status.SchemaHash+`)
CREATE OR REPLACE VIEW "/diagnostics" AS
SELECT * FROM "diag_msgs/Status"
WHERE "_topic" = '/diagnostics';`)

	// Tables sort ahead of views, and both sections sort by name.
	statusTable := strings.Index(doc, `CREATE TABLE IF NOT EXISTS "diag_msgs/Status"`)
	poseTable := strings.Index(doc, `CREATE TABLE IF NOT EXISTS "nav_msgs/Pose2D"`)
	diagView := strings.Index(doc, `CREATE OR REPLACE VIEW "/diagnostics"`)
	poseView := strings.Index(doc, `CREATE OR REPLACE VIEW "/robot/pose"`)
	require.NotEqual(t, -1, statusTable)
	require.NotEqual(t, -1, poseTable)
	require.NotEqual(t, -1, diagView)
	require.NotEqual(t, -1, poseView)
	assert.Less(t, statusTable, poseTable)
	assert.Less(t, poseTable, diagView)
	assert.Less(t, diagView, poseView)
}

func TestSink_FlushSnapshotsDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.sql")
	sink := newSink(t, sqlschema.Config{Path: path})

	require.NoError(t, sink.Write(
		testutil.StatusRecord("/diagnostics", 1, "INFO", "ok", testutil.BaseStamp),
		component.WriteMeta{Index: 1}))
	require.NoError(t, sink.Flush())
	first := readDoc(t, path)
	assert.Contains(t, first, `"diag_msgs/Status"`)
	assert.NotContains(t, first, `"nav_msgs/Pose2D"`)

	require.NoError(t, sink.Write(
		testutil.PoseRecord("/robot/pose", 1, 2, 3, testutil.BaseStamp),
		component.WriteMeta{Index: 2}))
	require.NoError(t, sink.Flush())
	second := readDoc(t, path)
	assert.Contains(t, second, `"diag_msgs/Status"`)
	assert.Contains(t, second, `"nav_msgs/Pose2D"`)
}

func TestSink_DedupesVariantsAndTopics(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.sql")
	sink := newSink(t, sqlschema.Config{Path: path})

	for i := 1; i <= 3; i++ {
		require.NoError(t, sink.Write(
			testutil.StatusRecord("/diagnostics", i, "INFO", "ok", testutil.BaseStamp),
			component.WriteMeta{Index: i}))
	}
	require.NoError(t, sink.Close())

	doc := readDoc(t, path)
	assert.Equal(t, 1, strings.Count(doc, "CREATE TABLE"))
	assert.Equal(t, 1, strings.Count(doc, "CREATE OR REPLACE VIEW"))
}

func TestSink_SecondVariantGetsHashSuffix(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.sql")
	sink := newSink(t, sqlschema.Config{Path: path})

	full := testutil.StatusRecord("/diagnostics", 1, "INFO", "ok", testutil.BaseStamp)
	slim := testutil.Rec("/diagnostics", testutil.TypeStatus, testutil.BaseStamp, message.Map(
		message.F("seq", message.Int(2)),
	))
	require.NotEqual(t, full.SchemaHash, slim.SchemaHash)

	require.NoError(t, sink.Write(full, component.WriteMeta{Index: 1}))
	require.NoError(t, sink.Write(slim, component.WriteMeta{Index: 2}))
	require.NoError(t, sink.Close())

	doc := readDoc(t, path)
	suffixed := "diag_msgs/Status." + slim.SchemaHash[:8]
	assert.Contains(t, doc, `CREATE TABLE IF NOT EXISTS "diag_msgs/Status" (`)
	assert.Contains(t, doc, `CREATE TABLE IF NOT EXISTS "`+suffixed+`" (`)
	assert.Contains(t, doc, `CREATE OR REPLACE VIEW "/diagnostics" AS`)
	assert.Contains(t, doc, `CREATE OR REPLACE VIEW "/diagnostics.`+slim.SchemaHash[:8]+`" AS`)
	assert.Contains(t, doc, `SELECT * FROM "`+suffixed+`"`)
}

func TestSink_SubtypeAllExpandsSubTables(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.sql")
	sink := newSink(t, sqlschema.Config{Path: path, SubtypeMode: types.SubtypeModeAll})

	require.NoError(t, sink.Write(diagArrayRecord("/diagnostics"), component.WriteMeta{Index: 1}))
	require.NoError(t, sink.Close())

	doc := readDoc(t, path)
	assert.Contains(t, doc, `CREATE TABLE IF NOT EXISTS "diag_msgs/DiagnosticArray" (`)
	assert.Contains(t, doc, `CREATE TABLE IF NOT EXISTS "diag_msgs/DiagnosticArray.status" (`)
	assert.Contains(t, doc, `"_index" BIGINT`)
	// The root table keeps no column for the lifted field.
	assert.NotContains(t, doc, `"status" JSONB`)
}

func TestSink_SQLiteDialect(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.sql")
	sink := newSink(t, sqlschema.Config{Path: path, Dialect: "sqlite"})

	require.NoError(t, sink.Write(
		testutil.StatusRecord("/diagnostics", 1, "INFO", "ok", testutil.BaseStamp),
		component.WriteMeta{Index: 1}))
	require.NoError(t, sink.Close())

	doc := readDoc(t, path)
	assert.True(t, strings.HasPrefix(doc, "-- SQL dialect: sqlite.\n"))
	assert.Contains(t, doc, `"seq" INTEGER`)
	assert.Contains(t, doc, "CREATE VIEW IF NOT EXISTS")
	assert.NotContains(t, doc, "TIMESTAMPTZ")
}

func TestSink_RegisteredDefinitionBecomesComments(t *testing.T) {
	reg := message.NewRegistry()
	deps := testDeps()
	deps.Types = reg

	rec := testutil.StatusRecord("/diagnostics", 1, "INFO", "ok", testutil.BaseStamp)
	desc := message.TypeDescriptor{
		Name:       rec.Type,
		SchemaHash: "abc123",
		Definition: "int32 seq\nstring text",
		Fields: []message.FieldDef{
			{Name: "seq", Type: "int"},
			{Name: "text", Type: "string"},
		},
	}
	rec.TypeID = reg.Register(desc, rec.Topic)

	path := filepath.Join(t.TempDir(), "schema.sql")
	sink, err := sqlschema.NewSink(sqlschema.Config{Path: path}, deps)
	require.NoError(t, err)
	require.NoError(t, sink.Write(rec, component.WriteMeta{Index: 1}))
	require.NoError(t, sink.Close())

	doc := readDoc(t, path)
	assert.Contains(t, doc, `-- Message type diag_msgs/Status (abc123)
--
-- int32 seq
-- string text
CREATE TABLE IF NOT EXISTS "diag_msgs/Status" (`)
}

func TestSink_CommitIntervalRewrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.sql")
	sink := newSink(t, sqlschema.Config{Path: path, CommitInterval: 1})

	require.NoError(t, sink.Write(
		testutil.StatusRecord("/diagnostics", 1, "INFO", "ok", testutil.BaseStamp),
		component.WriteMeta{Index: 1}))
	require.FileExists(t, path)
	assert.NotContains(t, readDoc(t, path), `"nav_msgs/Pose2D"`)

	require.NoError(t, sink.Write(
		testutil.PoseRecord("/robot/pose", 1, 2, 3, testutil.BaseStamp),
		component.WriteMeta{Index: 2}))
	assert.Contains(t, readDoc(t, path), `"nav_msgs/Pose2D"`)
}

func TestSink_NoRecordsNoFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.sql")
	sink := newSink(t, sqlschema.Config{Path: path})

	require.NoError(t, sink.Flush())
	require.NoError(t, sink.Close())
	assert.NoFileExists(t, path)
}

func TestSink_WriteAfterCloseFails(t *testing.T) {
	sink := newSink(t, sqlschema.Config{Path: filepath.Join(t.TempDir(), "schema.sql")})
	require.NoError(t, sink.Close())

	err := sink.Write(
		testutil.StatusRecord("/diagnostics", 1, "INFO", "ok", testutil.BaseStamp),
		component.WriteMeta{Index: 1})
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrSinkClosed)
}

func TestRegister_BuildsFromOptions(t *testing.T) {
	registry := component.NewRegistry()
	require.NoError(t, sqlschema.Register(registry))

	path := filepath.Join(t.TempDir(), "schema.sql")
	sink, err := registry.NewSink(types.SinkConfig{
		Kind: "sqlschema",
		Options: map[string]any{
			"path":           path,
			"dialect":        "sqlite",
			"subtypeMode":    "all",
			"commitInterval": 1,
		},
	}, testDeps())
	require.NoError(t, err)

	require.NoError(t, sink.Write(diagArrayRecord("/diagnostics"), component.WriteMeta{Index: 1}))
	require.NoError(t, sink.Close())

	doc := readDoc(t, path)
	assert.True(t, strings.HasPrefix(doc, "-- SQL dialect: sqlite.\n"))
	assert.Contains(t, doc, `"diag_msgs/DiagnosticArray.status"`)
}

func TestRegister_RejectsBadOptions(t *testing.T) {
	registry := component.NewRegistry()
	require.NoError(t, sqlschema.Register(registry))

	tests := []struct {
		name string
		opts map[string]any
	}{
		{"missing path", map[string]any{}},
		{"empty path", map[string]any{"path": ""}},
		{"bad dialect", map[string]any{"path": "s.sql", "dialect": "mysql"}},
		{"bad subtype mode", map[string]any{"path": "s.sql", "subtypeMode": "deep"}},
		{"zero interval", map[string]any{"path": "s.sql", "commitInterval": 0}},
		{"unknown option", map[string]any{"path": "s.sql", "append": true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := registry.NewSink(types.SinkConfig{Kind: "sqlschema", Options: tt.opts}, testDeps())
			require.Error(t, err)
			assert.True(t, errors.IsInvalid(err))
		})
	}
}
