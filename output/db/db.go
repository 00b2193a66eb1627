package db

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"strings"

	_ "github.com/lib/pq"

	"github.com/c360/grepbag/component"
	"github.com/c360/grepbag/errors"
	"github.com/c360/grepbag/message"
	"github.com/c360/grepbag/pkg/sqlgen"
	"github.com/c360/grepbag/types"
)

// defaultCommitInterval is the transaction size when the options leave it
// unset.
const defaultCommitInterval = 100

// Config selects the database a Sink writes to.
type Config struct {
	// DSN is the PostgreSQL connection string.
	DSN string

	// SubtypeMode controls repeated substructures: "array" keeps them as
	// JSON columns, "all" expands each into its own sub-table. Empty means
	// "array".
	SubtypeMode string

	// CommitInterval is the number of records per transaction. Zero means
	// the default of 100.
	CommitInterval int
}

// Validate checks the configuration shape.
func (c Config) Validate() error {
	if strings.TrimSpace(c.DSN) == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate",
			"connection string required")
	}
	return c.validateOptions()
}

func (c Config) validateOptions() error {
	if _, err := types.ParseSubtypeMode(c.SubtypeMode); err != nil {
		return errors.Wrap(err, "Config", "Validate", "subtype mode option")
	}
	if c.CommitInterval < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"commit interval cannot be negative")
	}
	return nil
}

// tableEntry is one created variant table set with its insert statements.
type tableEntry struct {
	name    string
	plan    []sqlgen.Table
	inserts []string
}

// viewKey identifies one topic view: a topic carrying one type variant.
type viewKey struct {
	topic string
	typ   message.TypeKey
}

// Sink writes records into per-variant tables inside batched transactions.
// The scan loop is the only caller; Sink is not safe for concurrent use.
type Sink struct {
	cfg    Config
	logger *slog.Logger
	reg    *message.Registry
	mode   string

	db      *sql.DB
	ownsDB  bool
	opened  bool
	openErr error
	closed  bool

	tx         *sql.Tx
	tables     map[message.TypeKey]*tableEntry
	tableNames map[string]bool
	views      map[viewKey]bool
	viewNames  map[string]bool

	pending int
	writes  int
	commits int
}

var _ component.Sink = (*Sink)(nil)

// NewSink creates a database sink. The connection opens lazily on the
// first Write.
func NewSink(cfg Config, deps component.Dependencies) (*Sink, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "DBSink", "NewSink", "config validation")
	}
	return newSink(nil, cfg, deps), nil
}

// NewSinkWithDB wires an existing pool instead of opening one from the
// DSN. The sink never closes a pool it did not open.
func NewSinkWithDB(dbc *sql.DB, cfg Config, deps component.Dependencies) (*Sink, error) {
	if dbc == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "DBSink", "NewSinkWithDB",
			"database handle is required")
	}
	if err := cfg.validateOptions(); err != nil {
		return nil, errors.Wrap(err, "DBSink", "NewSinkWithDB", "config validation")
	}
	return newSink(dbc, cfg, deps), nil
}

func newSink(dbc *sql.DB, cfg Config, deps component.Dependencies) *Sink {
	if cfg.CommitInterval == 0 {
		cfg.CommitInterval = defaultCommitInterval
	}
	mode, _ := types.ParseSubtypeMode(cfg.SubtypeMode)
	return &Sink{
		cfg:        cfg,
		logger:     deps.GetLoggerWithComponent("db-sink"),
		reg:        deps.Types,
		mode:       mode,
		db:         dbc,
		tables:     make(map[message.TypeKey]*tableEntry),
		tableNames: make(map[string]bool),
		views:      make(map[viewKey]bool),
		viewNames:  make(map[string]bool),
	}
}

// Write inserts one record, creating its variant tables and topic view on
// first sight.
func (s *Sink) Write(rec message.Record, _ component.WriteMeta) error {
	if s.closed {
		return errors.WrapInvalid(errors.ErrSinkClosed, "DBSink", "Write", "write after close")
	}
	if err := s.ensureOpen(); err != nil {
		return err
	}

	desc := s.reg.DescriptorFor(rec)
	entry, err := s.ensureTable(desc)
	if err != nil {
		return err
	}
	if err := s.ensureView(rec.Topic, entry, desc); err != nil {
		return err
	}
	if err := s.insert(entry, rec); err != nil {
		return err
	}

	s.writes++
	s.pending++
	if s.pending >= s.cfg.CommitInterval {
		return s.commit()
	}
	return nil
}

// Flush commits the open transaction.
func (s *Sink) Flush() error {
	if s.closed {
		return nil
	}
	return s.commit()
}

// Close commits the open transaction and closes the pool when the sink
// opened it.
func (s *Sink) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	err := s.commit()
	if s.ownsDB && s.db != nil {
		if cerr := s.db.Close(); cerr != nil && err == nil {
			err = errors.WrapTransient(cerr, "DBSink", "Close", "close database")
		}
	}
	s.logger.Info("database output closed",
		"tables", len(s.tables),
		"views", len(s.views),
		"records", s.writes,
		"commits", s.commits)
	return err
}

func (s *Sink) ensureOpen() error {
	if s.opened {
		return s.openErr
	}
	s.opened = true
	if s.db == nil {
		dbc, err := sql.Open("postgres", s.cfg.DSN)
		if err != nil {
			s.openErr = errors.WrapFatal(err, "DBSink", "Write", "open database")
			return s.openErr
		}
		s.db = dbc
		s.ownsDB = true
	}
	if err := s.db.Ping(); err != nil {
		s.openErr = errors.WrapFatal(err, "DBSink", "Write", "connect to database")
		return s.openErr
	}
	s.logger.Debug("database connected")
	return nil
}

func (s *Sink) ensureTable(desc message.TypeDescriptor) (*tableEntry, error) {
	key := desc.Key()
	if entry, ok := s.tables[key]; ok {
		return entry, nil
	}

	name := sqlgen.ClaimName(s.tableNames, desc.Name, desc.SchemaHash)
	plan := sqlgen.TablePlan(name, desc, sqlgen.DialectPostgres, s.mode)
	entry := &tableEntry{name: name, plan: plan, inserts: make([]string, len(plan))}
	for i, t := range plan {
		if _, err := s.db.Exec(sqlgen.CreateTable(t, sqlgen.DialectPostgres)); err != nil {
			// Release the claim so a retry rebuilds the same name.
			delete(s.tableNames, name)
			return nil, errors.WrapTransient(err, "DBSink", "Write", "create table "+t.Name)
		}
		entry.inserts[i] = sqlgen.Insert(t, sqlgen.DialectPostgres)
	}
	s.tables[key] = entry

	s.logger.Debug("type table created",
		"type", desc.Name,
		"hash", desc.SchemaHash,
		"table", name,
		"subTables", len(plan)-1)
	return entry, nil
}

func (s *Sink) ensureView(topic string, entry *tableEntry, desc message.TypeDescriptor) error {
	vk := viewKey{topic: topic, typ: desc.Key()}
	if s.views[vk] {
		return nil
	}

	name := sqlgen.ClaimName(s.viewNames, topic, desc.SchemaHash)
	view := sqlgen.TopicView(name, topic, entry.name, desc)
	if _, err := s.db.Exec(sqlgen.CreateView(view, sqlgen.DialectPostgres)); err != nil {
		delete(s.viewNames, name)
		return errors.WrapTransient(err, "DBSink", "Write", "create view "+name)
	}
	s.views[vk] = true

	s.logger.Debug("topic view created",
		"topic", topic,
		"view", name,
		"table", entry.name)
	return nil
}

func (s *Sink) insert(entry *tableEntry, rec message.Record) error {
	if s.tx == nil {
		tx, err := s.db.Begin()
		if err != nil {
			return errors.WrapTransient(err, "DBSink", "Write", "begin transaction")
		}
		s.tx = tx
	}

	root := entry.plan[0]
	if _, err := s.tx.Exec(entry.inserts[0], sqlgen.RowValues(root, rec)...); err != nil {
		return errors.WrapTransient(err, "DBSink", "Write", "insert into "+root.Name)
	}
	for i, t := range entry.plan[1:] {
		for _, row := range sqlgen.NestedRows(t, rec) {
			if _, err := s.tx.Exec(entry.inserts[i+1], row...); err != nil {
				return errors.WrapTransient(err, "DBSink", "Write", "insert into "+t.Name)
			}
		}
	}
	return nil
}

func (s *Sink) commit() error {
	if s.tx == nil {
		return nil
	}
	err := s.tx.Commit()
	s.tx = nil
	s.pending = 0
	if err != nil {
		return errors.WrapTransient(err, "DBSink", "commit", "commit transaction")
	}
	s.commits++
	return nil
}

const optionsSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"properties": {
		"dsn": {
			"type": "string",
			"minLength": 1,
			"description": "PostgreSQL connection string"
		},
		"subtypeMode": {
			"type": "string",
			"enum": ["array", "all"],
			"description": "Keep repeated substructures as JSON columns (array) or expand them into sub-tables (all)"
		},
		"commitInterval": {
			"type": "integer",
			"minimum": 1,
			"description": "Records per transaction commit"
		}
	},
	"required": ["dsn"],
	"additionalProperties": false
}`

// CreateSink builds a database sink from an options map.
func CreateSink(opts map[string]any, deps component.Dependencies) (component.Sink, error) {
	cfg := Config{
		DSN:            component.GetString(opts, "dsn", ""),
		SubtypeMode:    component.GetString(opts, types.OptionSubtypeMode, ""),
		CommitInterval: component.GetInt(opts, types.OptionCommitInterval, 0),
	}
	return NewSink(cfg, deps)
}

// Register adds the db sink kind to the registry.
func Register(registry *component.Registry) error {
	return registry.Register(component.Registration{
		Kind:          "db",
		Type:          types.ComponentTypeSink,
		Description:   "Writes matched records into PostgreSQL, one table per type variant",
		Version:       "1.0.0",
		OptionsSchema: json.RawMessage(optionsSchema),
		NewSink:       CreateSink,
	})
}
