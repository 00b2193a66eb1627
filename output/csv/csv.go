package csv

import (
	stdcsv "encoding/csv"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/c360/grepbag/component"
	"github.com/c360/grepbag/errors"
	"github.com/c360/grepbag/message"
	"github.com/c360/grepbag/types"
)

// defaultCommitInterval is the flush cadence when the options leave it
// unset.
const defaultCommitInterval = 100

// stampColumn leads every file; the topic is in the file name.
const stampColumn = "_stamp"

// Config selects the directory a Sink fills with variant files.
type Config struct {
	// Directory receives the CSV files. Created as needed.
	Directory string

	// InlineRender keeps nested mappings whole, one JSON cell per row,
	// instead of flattening their scalars into dotted columns.
	InlineRender bool

	// CommitInterval is the number of records buffered across all files
	// between writer flushes. Zero means the default of 100.
	CommitInterval int
}

// Validate checks the configuration shape.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Directory) == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate",
			"output directory required")
	}
	if c.CommitInterval < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"commit interval cannot be negative")
	}
	return nil
}

// column maps one header cell to its place in the value tree.
type column struct {
	header string
	path   []string

	// container renders the cell as JSON instead of a scalar.
	container bool
}

// variantFile is one open output file for one (topic, schema hash)
// variant.
type variantFile struct {
	path string
	f    *os.File
	w    *stdcsv.Writer
	cols []column
	rows int
}

// Sink writes one CSV file per record variant. The scan loop is the only
// caller; Sink is not safe for concurrent use.
type Sink struct {
	cfg    Config
	logger *slog.Logger
	reg    *message.Registry

	opened  bool
	openErr error
	closed  bool

	files   map[message.TopicKey]*variantFile
	names   map[string]bool
	pending int
	writes  int
	commits int
}

var _ component.Sink = (*Sink)(nil)

// NewSink creates a CSV sink. The directory and files are created lazily
// on the first Write.
func NewSink(cfg Config, deps component.Dependencies) (*Sink, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "CSVSink", "NewSink", "config validation")
	}
	if cfg.CommitInterval == 0 {
		cfg.CommitInterval = defaultCommitInterval
	}
	return &Sink{
		cfg:    cfg,
		logger: deps.GetLoggerWithComponent("csv-sink"),
		reg:    deps.Types,
		files:  make(map[message.TopicKey]*variantFile),
		names:  make(map[string]bool),
	}, nil
}

// Write appends one row to the record's variant file, opening it with a
// header row on first sight.
func (s *Sink) Write(rec message.Record, _ component.WriteMeta) error {
	if s.closed {
		return errors.WrapInvalid(errors.ErrSinkClosed, "CSVSink", "Write", "write after close")
	}
	if err := s.ensureOpen(); err != nil {
		return err
	}

	vf := s.files[rec.TopicKey()]
	if vf == nil {
		var err error
		if vf, err = s.openVariant(rec); err != nil {
			return err
		}
	}

	row := make([]string, 0, len(vf.cols)+1)
	row = append(row, rec.Stamp.Format(time.RFC3339Nano))
	for _, col := range vf.cols {
		row = append(row, cellValue(rec.Data, col))
	}
	if err := vf.w.Write(row); err != nil {
		return errors.WrapTransient(err, "CSVSink", "Write", "write row to "+vf.path)
	}
	vf.rows++

	s.writes++
	s.pending++
	if s.pending >= s.cfg.CommitInterval {
		return s.commit()
	}
	return nil
}

// Flush commits anything still buffered in the file writers.
func (s *Sink) Flush() error {
	return s.commit()
}

// Close flushes and closes every variant file.
func (s *Sink) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	err := s.commit()
	for _, vf := range s.files {
		if cerr := vf.f.Close(); cerr != nil && err == nil {
			err = errors.WrapTransient(cerr, "CSVSink", "Close", "close "+vf.path)
		}
	}
	s.logger.Info("csv output closed",
		"directory", s.cfg.Directory,
		"files", len(s.files),
		"records", s.writes,
		"commits", s.commits)
	return err
}

func (s *Sink) ensureOpen() error {
	if s.opened {
		return s.openErr
	}
	s.opened = true
	if err := os.MkdirAll(s.cfg.Directory, 0755); err != nil {
		s.openErr = errors.WrapFatal(err, "CSVSink", "Write", "create output directory")
	}
	return s.openErr
}

func (s *Sink) openVariant(rec message.Record) (*variantFile, error) {
	desc := s.reg.DescriptorFor(rec)
	cols := columnsFor(desc, s.cfg.InlineRender)

	name := s.claimName(rec)
	path := filepath.Join(s.cfg.Directory, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, errors.WrapFatal(err, "CSVSink", "Write", "create "+path)
	}

	w := stdcsv.NewWriter(f)
	header := make([]string, 0, len(cols)+1)
	header = append(header, stampColumn)
	for _, col := range cols {
		header = append(header, col.header)
	}
	if err := w.Write(header); err != nil {
		_ = f.Close()
		return nil, errors.WrapTransient(err, "CSVSink", "Write", "write header to "+path)
	}

	s.logger.Debug("csv variant opened",
		"topic", rec.Topic,
		"type", rec.Type,
		"hash", rec.SchemaHash,
		"file", path,
		"columns", len(header))

	vf := &variantFile{path: path, f: f, w: w, cols: cols}
	s.files[rec.TopicKey()] = vf
	return vf, nil
}

// claimName picks the file name for a variant: the sanitized topic, with
// a short hash suffix when another variant of the topic already took the
// plain name.
func (s *Sink) claimName(rec message.Record) string {
	base := sanitizeTopic(rec.Topic)
	name := base + ".csv"
	if s.names[name] {
		short := rec.SchemaHash
		if len(short) > 8 {
			short = short[:8]
		}
		name = base + "." + short + ".csv"
	}
	s.names[name] = true
	return name
}

func (s *Sink) commit() error {
	if s.pending == 0 {
		return nil
	}
	for _, vf := range s.files {
		vf.w.Flush()
		if err := vf.w.Error(); err != nil {
			return errors.WrapTransient(err, "CSVSink", "commit", "flush "+vf.path)
		}
	}
	s.pending = 0
	s.commits++
	return nil
}

// columnsFor derives the column layout from a variant's schema. Sequences
// always render as JSON cells; nested mappings flatten into dotted scalar
// columns unless inline rendering keeps them whole. A schema without
// fields gets a single JSON column for the record body.
func columnsFor(desc message.TypeDescriptor, inline bool) []column {
	var cols []column
	var walk func(prefix string, path []string, fields []message.FieldDef)
	walk = func(prefix string, path []string, fields []message.FieldDef) {
		for _, f := range fields {
			name := f.Name
			if prefix != "" {
				name = prefix + "." + f.Name
			}
			p := append(append([]string{}, path...), f.Name)
			switch {
			case f.Array:
				cols = append(cols, column{header: name, path: p, container: true})
			case len(f.Fields) > 0:
				if inline {
					cols = append(cols, column{header: name, path: p, container: true})
				} else {
					walk(name, p, f.Fields)
				}
			default:
				cols = append(cols, column{header: name, path: p, container: f.Type == "object"})
			}
		}
	}
	walk("", nil, desc.Fields)

	if len(cols) == 0 {
		cols = append(cols, column{header: "data", container: true})
	}
	return cols
}

// cellValue extracts one cell: scalars as their match text, containers as
// compact JSON, absent fields as the empty cell.
func cellValue(data message.Value, col column) string {
	v := data
	for _, name := range col.path {
		child, ok := v.FieldByName(name)
		if !ok {
			return ""
		}
		v = child
	}
	if !v.IsValid() {
		return ""
	}
	if col.container || !v.IsScalar() {
		b, err := v.MarshalJSON()
		if err != nil {
			return ""
		}
		return string(b)
	}
	return v.LeafString()
}

// sanitizeTopic turns a topic into a file name stem: leading slash
// dropped, inner slashes doubled to underscores, anything outside the
// portable set replaced.
func sanitizeTopic(topic string) string {
	s := strings.TrimPrefix(topic, "/")
	s = strings.ReplaceAll(s, "/", "__")
	var b strings.Builder
	for _, c := range s {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9',
			c == '_', c == '-', c == '.':
			b.WriteRune(c)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "topic"
	}
	return b.String()
}

const optionsSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"properties": {
		"directory": {
			"type": "string",
			"minLength": 1,
			"description": "Directory receiving one CSV file per topic variant"
		},
		"inlineRender": {
			"type": "boolean",
			"description": "Render nested mappings as one JSON cell instead of dotted columns"
		},
		"commitInterval": {
			"type": "integer",
			"minimum": 1,
			"description": "Records buffered across all files between flushes"
		}
	},
	"required": ["directory"],
	"additionalProperties": false
}`

// CreateSink builds a CSV sink from an options map.
func CreateSink(opts map[string]any, deps component.Dependencies) (component.Sink, error) {
	cfg := Config{
		Directory:      component.GetString(opts, "directory", ""),
		InlineRender:   component.GetBool(opts, types.OptionInlineRender, false),
		CommitInterval: component.GetInt(opts, types.OptionCommitInterval, 0),
	}
	return NewSink(cfg, deps)
}

// Register adds the csv sink kind to the registry.
func Register(registry *component.Registry) error {
	return registry.Register(component.Registration{
		Kind:          "csv",
		Type:          types.ComponentTypeSink,
		Description:   "Writes matched records as CSV files, one per topic variant",
		Version:       "1.0.0",
		OptionsSchema: json.RawMessage(optionsSchema),
		NewSink:       CreateSink,
	})
}
