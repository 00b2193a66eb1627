package sqlschema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/c360/grepbag/component"
	"github.com/c360/grepbag/errors"
	"github.com/c360/grepbag/message"
	"github.com/c360/grepbag/pkg/sqlgen"
	"github.com/c360/grepbag/types"
)

// Config selects the output file and SQL flavor of a schema sink.
type Config struct {
	// Path is the SQL file the document is written to.
	Path string

	// Dialect is the SQL flavor, "postgres" or "sqlite". Empty means
	// postgres.
	Dialect string

	// SubtypeMode controls repeated substructures: "array" keeps them as
	// JSON columns, "all" expands each into its own sub-table. Empty means
	// "array".
	SubtypeMode string

	// CommitInterval is the number of records between document rewrites.
	// Zero writes it only on Flush and Close.
	CommitInterval int
}

// Validate checks the configuration shape.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Path) == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate",
			"output path required")
	}
	if _, err := sqlgen.ParseDialect(c.Dialect); err != nil {
		return errors.Wrap(err, "Config", "Validate", "dialect option")
	}
	if _, err := types.ParseSubtypeMode(c.SubtypeMode); err != nil {
		return errors.Wrap(err, "Config", "Validate", "subtype mode option")
	}
	if c.CommitInterval < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"commit interval cannot be negative")
	}
	return nil
}

// typeEntry is the planned schema for one type variant.
type typeEntry struct {
	name       string
	typeName   string
	hash       string
	definition string
	plan       []sqlgen.Table
}

// viewKey identifies one topic view: a topic carrying one type variant.
type viewKey struct {
	topic string
	typ   message.TypeKey
}

// Sink accumulates table and view plans for every variant it sees and
// writes them as one SQL document. The scan loop is the only caller; Sink
// is not safe for concurrent use.
type Sink struct {
	cfg     Config
	logger  *slog.Logger
	reg     *message.Registry
	dialect sqlgen.Dialect
	mode    string

	closed bool

	tables     map[message.TypeKey]*typeEntry
	tableNames map[string]bool
	views      map[viewKey]sqlgen.View
	viewNames  map[string]bool

	pending int
	writes  int
	commits int
}

var _ component.Sink = (*Sink)(nil)

// NewSink creates a schema sink. The file appears on the first commit, not
// at construction.
func NewSink(cfg Config, deps component.Dependencies) (*Sink, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "SQLSchemaSink", "NewSink", "config validation")
	}
	dialect, _ := sqlgen.ParseDialect(cfg.Dialect)
	mode, _ := types.ParseSubtypeMode(cfg.SubtypeMode)
	return &Sink{
		cfg:        cfg,
		logger:     deps.GetLoggerWithComponent("sqlschema-sink"),
		reg:        deps.Types,
		dialect:    dialect,
		mode:       mode,
		tables:     make(map[message.TypeKey]*typeEntry),
		tableNames: make(map[string]bool),
		views:      make(map[viewKey]sqlgen.View),
		viewNames:  make(map[string]bool),
	}, nil
}

// Write plans the record's variant table and topic view on first sight.
// The record body itself is not stored; only the schema matters here.
func (s *Sink) Write(rec message.Record, _ component.WriteMeta) error {
	if s.closed {
		return errors.WrapInvalid(errors.ErrSinkClosed, "SQLSchemaSink", "Write", "write after close")
	}

	desc := s.reg.DescriptorFor(rec)
	key := desc.Key()
	entry := s.tables[key]
	if entry == nil {
		entry = s.addType(desc)
	}
	vk := viewKey{topic: rec.Topic, typ: key}
	if _, ok := s.views[vk]; !ok {
		s.addView(rec.Topic, entry, desc)
	}

	s.writes++
	s.pending++
	if s.cfg.CommitInterval > 0 && s.pending >= s.cfg.CommitInterval {
		return s.commit()
	}
	return nil
}

// Flush writes the document when anything changed since the last commit.
func (s *Sink) Flush() error {
	if s.closed {
		return nil
	}
	return s.commit()
}

// Close writes the final document.
func (s *Sink) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	err := s.commit()
	s.logger.Info("sql schema closed",
		"path", s.cfg.Path,
		"tables", len(s.tables),
		"views", len(s.views),
		"records", s.writes,
		"commits", s.commits)
	return err
}

func (s *Sink) addType(desc message.TypeDescriptor) *typeEntry {
	name := sqlgen.ClaimName(s.tableNames, desc.Name, desc.SchemaHash)
	entry := &typeEntry{
		name:       name,
		typeName:   desc.Name,
		hash:       desc.SchemaHash,
		definition: desc.Definition,
		plan:       sqlgen.TablePlan(name, desc, s.dialect, s.mode),
	}
	s.tables[desc.Key()] = entry
	s.logger.Debug("new type table",
		"type", desc.Name,
		"hash", desc.SchemaHash,
		"table", name,
		"subTables", len(entry.plan)-1)
	return entry
}

func (s *Sink) addView(topic string, entry *typeEntry, desc message.TypeDescriptor) {
	name := sqlgen.ClaimName(s.viewNames, topic, desc.SchemaHash)
	v := sqlgen.TopicView(name, topic, entry.name, desc)
	s.views[viewKey{topic: topic, typ: desc.Key()}] = v
	s.logger.Debug("new topic view",
		"topic", topic,
		"type", desc.Name,
		"view", name)
}

func (s *Sink) commit() error {
	if s.pending == 0 {
		return nil
	}
	if dir := filepath.Dir(s.cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errors.WrapFatal(err, "SQLSchemaSink", "commit", "create output directory")
		}
	}
	if err := os.WriteFile(s.cfg.Path, s.document(), 0644); err != nil {
		return errors.WrapTransient(err, "SQLSchemaSink", "commit", "write "+s.cfg.Path)
	}
	s.pending = 0
	s.commits++
	return nil
}

// document renders the whole schema file: a header, then tables sorted by
// name, then views sorted by name. Each entity carries a comment naming
// its type and hash, with the schema text of recorded types as comment
// lines.
func (s *Sink) document() []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "-- SQL dialect: %s.\n", s.dialect)
	fmt.Fprintf(&b, "-- Written by grepbag on %s.\n", time.Now().Format("2006-01-02 15:04"))

	entries := make([]*typeEntry, 0, len(s.tables))
	for _, e := range s.tables {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].name < entries[j].name })
	for _, e := range entries {
		b.WriteString("\n")
		fmt.Fprintf(&b, "-- Message type %s (%s)\n", e.typeName, e.hash)
		if e.definition != "" {
			b.WriteString("--\n")
			for _, line := range strings.Split(strings.TrimRight(e.definition, "\n"), "\n") {
				b.WriteString("-- " + line + "\n")
			}
		}
		for i, t := range e.plan {
			if i > 0 {
				b.WriteString("\n")
			}
			b.WriteString(sqlgen.CreateTable(t, s.dialect))
			b.WriteString("\n")
		}
	}

	views := make([]sqlgen.View, 0, len(s.views))
	for _, v := range s.views {
		views = append(views, v)
	}
	sort.Slice(views, func(i, j int) bool { return views[i].Name < views[j].Name })
	for _, v := range views {
		b.WriteString("\n")
		fmt.Fprintf(&b, "-- Topic %q: %s (%s)\n", v.Topic, v.TypeName, v.SchemaHash)
		b.WriteString(sqlgen.CreateView(v, s.dialect))
		b.WriteString("\n")
	}
	return b.Bytes()
}

const optionsSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"properties": {
		"path": {
			"type": "string",
			"minLength": 1,
			"description": "File receiving the generated SQL schema"
		},
		"dialect": {
			"type": "string",
			"enum": ["postgres", "sqlite"],
			"description": "SQL flavor of the generated statements"
		},
		"subtypeMode": {
			"type": "string",
			"enum": ["array", "all"],
			"description": "Keep repeated substructures as JSON columns (array) or expand them into sub-tables (all)"
		},
		"commitInterval": {
			"type": "integer",
			"minimum": 1,
			"description": "Records between document rewrites; unset writes only on flush and close"
		}
	},
	"required": ["path"],
	"additionalProperties": false
}`

// CreateSink builds a schema sink from an options map.
func CreateSink(opts map[string]any, deps component.Dependencies) (component.Sink, error) {
	cfg := Config{
		Path:           component.GetString(opts, "path", ""),
		Dialect:        component.GetString(opts, "dialect", ""),
		SubtypeMode:    component.GetString(opts, types.OptionSubtypeMode, ""),
		CommitInterval: component.GetInt(opts, types.OptionCommitInterval, 0),
	}
	return NewSink(cfg, deps)
}

// Register adds the sqlschema sink kind to the registry.
func Register(registry *component.Registry) error {
	return registry.Register(component.Registration{
		Kind:          "sqlschema",
		Type:          types.ComponentTypeSink,
		Description:   "Generates SQL table and view schemas for matched record types",
		Version:       "1.0.0",
		OptionsSchema: json.RawMessage(optionsSchema),
		NewSink:       CreateSink,
	})
}
