package db_test

import (
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/grepbag/component"
	"github.com/c360/grepbag/errors"
	"github.com/c360/grepbag/message"
	dbsink "github.com/c360/grepbag/output/db"
	"github.com/c360/grepbag/testutil"
	"github.com/c360/grepbag/types"
)

const (
	createStatus = `CREATE TABLE IF NOT EXISTS "diag_msgs/Status" (
  "seq" BIGINT,
  "level" TEXT,
  "text" TEXT,
  "_topic" TEXT,
  "_stamp" TIMESTAMPTZ
);`
	viewDiagnostics = `CREATE OR REPLACE VIEW "/diagnostics" AS
SELECT * FROM "diag_msgs/Status"
WHERE "_topic" = '/diagnostics';`
	insertStatus = `INSERT INTO "diag_msgs/Status" ("seq", "level", "text", "_topic", "_stamp") VALUES ($1, $2, $3, $4, $5)`
)

func testDeps() component.Dependencies {
	return component.Dependencies{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func newMockSink(t *testing.T, cfg dbsink.Config) (*dbsink.Sink, sqlmock.Sqlmock) {
	t.Helper()
	dbc, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = dbc.Close() })

	sink, err := dbsink.NewSinkWithDB(dbc, cfg, testDeps())
	require.NoError(t, err)
	return sink, mock
}

// expectStatusSchema queues the DDL a first status record triggers.
func expectStatusSchema(mock sqlmock.Sqlmock) {
	mock.ExpectExec(regexp.QuoteMeta(createStatus)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(viewDiagnostics)).WillReturnResult(sqlmock.NewResult(0, 0))
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     dbsink.Config
		wantErr bool
	}{
		{name: "valid", cfg: dbsink.Config{DSN: "postgres://localhost/grepbag"}},
		{name: "full options", cfg: dbsink.Config{DSN: "postgres://localhost/grepbag", SubtypeMode: "all", CommitInterval: 50}},
		{name: "missing dsn", cfg: dbsink.Config{}, wantErr: true},
		{name: "whitespace dsn", cfg: dbsink.Config{DSN: "   "}, wantErr: true},
		{name: "bad subtype mode", cfg: dbsink.Config{DSN: "x", SubtypeMode: "deep"}, wantErr: true},
		{name: "negative interval", cfg: dbsink.Config{DSN: "x", CommitInterval: -1}, wantErr: true},
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

func TestNewSinkWithDB_RequiresHandle(t *testing.T) {
	_, err := dbsink.NewSinkWithDB(nil, dbsink.Config{}, testDeps())
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestSink_FirstWriteCreatesSchema(t *testing.T) {
	sink, mock := newMockSink(t, dbsink.Config{CommitInterval: 1})

	expectStatusSchema(mock)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(insertStatus)).
		WithArgs(int64(1), "INFO", "ok", "/diagnostics", testutil.BaseStamp).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, sink.Write(
		testutil.StatusRecord("/diagnostics", 1, "INFO", "ok", testutil.BaseStamp),
		component.WriteMeta{Index: 1}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSink_SchemaCreatedOncePerVariant(t *testing.T) {
	sink, mock := newMockSink(t, dbsink.Config{CommitInterval: 10})

	expectStatusSchema(mock)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(insertStatus)).
		WithArgs(int64(1), "INFO", "ok", "/diagnostics", testutil.BaseStamp).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(insertStatus)).
		WithArgs(int64(2), "WARN", "hot", "/diagnostics", testutil.BaseStamp).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, sink.Write(
		testutil.StatusRecord("/diagnostics", 1, "INFO", "ok", testutil.BaseStamp),
		component.WriteMeta{Index: 1}))
	require.NoError(t, sink.Write(
		testutil.StatusRecord("/diagnostics", 2, "WARN", "hot", testutil.BaseStamp),
		component.WriteMeta{Index: 2}))
	require.NoError(t, sink.Flush())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSink_SubtypeAllInsertsElementRows(t *testing.T) {
	sink, mock := newMockSink(t, dbsink.Config{SubtypeMode: types.SubtypeModeAll, CommitInterval: 1})

	rec := testutil.Rec("/diagnostics", "diag_msgs/DiagnosticArray", testutil.BaseStamp, message.Map(
		message.F("seq", message.Int(9)),
		message.F("status", message.List(
			message.Map(message.F("level", message.Str("OK")), message.F("name", message.Str("battery"))),
			message.Map(message.F("level", message.Str("WARN")), message.F("name", message.Str("motor"))),
		)),
	))

	createRoot := `CREATE TABLE IF NOT EXISTS "diag_msgs/DiagnosticArray" (
  "seq" BIGINT,
  "_topic" TEXT,
  "_stamp" TIMESTAMPTZ
);`
	createSub := `CREATE TABLE IF NOT EXISTS "diag_msgs/DiagnosticArray.status" (
  "level" TEXT,
  "name" TEXT,
  "_topic" TEXT,
  "_stamp" TIMESTAMPTZ,
  "_index" BIGINT
);`
	view := `CREATE OR REPLACE VIEW "/diagnostics" AS
SELECT * FROM "diag_msgs/DiagnosticArray"
WHERE "_topic" = '/diagnostics';`
	insertRoot := `INSERT INTO "diag_msgs/DiagnosticArray" ("seq", "_topic", "_stamp") VALUES ($1, $2, $3)`
	insertSub := `INSERT INTO "diag_msgs/DiagnosticArray.status" ("level", "name", "_topic", "_stamp", "_index") VALUES ($1, $2, $3, $4, $5)`

	mock.ExpectExec(regexp.QuoteMeta(createRoot)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(createSub)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(view)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(insertRoot)).
		WithArgs(int64(9), "/diagnostics", testutil.BaseStamp).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(insertSub)).
		WithArgs("OK", "battery", "/diagnostics", testutil.BaseStamp, int64(0)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(insertSub)).
		WithArgs("WARN", "motor", "/diagnostics", testutil.BaseStamp, int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, sink.Write(rec, component.WriteMeta{Index: 1}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSink_CommitIntervalBatches(t *testing.T) {
	sink, mock := newMockSink(t, dbsink.Config{CommitInterval: 2})

	expectStatusSchema(mock)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(insertStatus)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(insertStatus)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(insertStatus)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	for i := 1; i <= 3; i++ {
		require.NoError(t, sink.Write(
			testutil.StatusRecord("/diagnostics", i, "INFO", "ok", testutil.BaseStamp),
			component.WriteMeta{Index: i}))
	}
	require.NoError(t, sink.Close())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSink_InsertFailureIsTransient(t *testing.T) {
	sink, mock := newMockSink(t, dbsink.Config{CommitInterval: 1})

	expectStatusSchema(mock)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(insertStatus)).
		WillReturnError(fmt.Errorf("connection reset"))

	err := sink.Write(
		testutil.StatusRecord("/diagnostics", 1, "INFO", "ok", testutil.BaseStamp),
		component.WriteMeta{Index: 1})
	require.Error(t, err)
	assert.True(t, errors.IsTransient(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSink_CreateTableFailureReleasesName(t *testing.T) {
	sink, mock := newMockSink(t, dbsink.Config{CommitInterval: 1})

	mock.ExpectExec(regexp.QuoteMeta(createStatus)).
		WillReturnError(fmt.Errorf("permission denied"))

	rec := testutil.StatusRecord("/diagnostics", 1, "INFO", "ok", testutil.BaseStamp)
	err := sink.Write(rec, component.WriteMeta{Index: 1})
	require.Error(t, err)
	assert.True(t, errors.IsTransient(err))

	// The retry claims the same plain table name, not a suffixed one.
	expectStatusSchema(mock)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(insertStatus)).
		WithArgs(int64(1), "INFO", "ok", "/diagnostics", testutil.BaseStamp).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, sink.Write(rec, component.WriteMeta{Index: 2}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSink_WriteAfterCloseFails(t *testing.T) {
	sink, _ := newMockSink(t, dbsink.Config{})
	require.NoError(t, sink.Close())

	err := sink.Write(
		testutil.StatusRecord("/diagnostics", 1, "INFO", "ok", testutil.BaseStamp),
		component.WriteMeta{Index: 1})
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrSinkClosed)
}

func TestRegister_BuildsFromOptions(t *testing.T) {
	registry := component.NewRegistry()
	require.NoError(t, dbsink.Register(registry))

	// No connection is opened at construction.
	sink, err := registry.NewSink(types.SinkConfig{
		Kind: "db",
		Options: map[string]any{
			"dsn":            "postgres://localhost:1/grepbag?sslmode=disable",
			"subtypeMode":    "all",
			"commitInterval": 5,
		},
	}, testDeps())
	require.NoError(t, err)
	require.NotNil(t, sink)
	require.NoError(t, sink.Close())
}

func TestRegister_RejectsBadOptions(t *testing.T) {
	registry := component.NewRegistry()
	require.NoError(t, dbsink.Register(registry))

	tests := []struct {
		name string
		opts map[string]any
	}{
		{"missing dsn", map[string]any{}},
		{"empty dsn", map[string]any{"dsn": ""}},
		{"bad subtype mode", map[string]any{"dsn": "x", "subtypeMode": "deep"}},
		{"zero interval", map[string]any{"dsn": "x", "commitInterval": 0}},
		{"unknown option", map[string]any{"dsn": "x", "table": "records"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := registry.NewSink(types.SinkConfig{Kind: "db", Options: tt.opts}, testDeps())
			require.Error(t, err)
			assert.True(t, errors.IsInvalid(err))
		})
	}
}
