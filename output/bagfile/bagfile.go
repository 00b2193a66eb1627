package bagfile

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/c360/grepbag/component"
	"github.com/c360/grepbag/errors"
	"github.com/c360/grepbag/message"
	"github.com/c360/grepbag/types"
)

// defaultCommitInterval is the flush cadence when the options leave it
// unset.
const defaultCommitInterval = 100

// Config selects the bag a Sink writes.
type Config struct {
	// Path is the bag file to create or append to. Parent directories are
	// created as needed.
	Path string

	// Overwrite truncates an existing bag instead of appending to it.
	Overwrite bool

	// CommitInterval is the number of records buffered between flushes to
	// the file. Zero means the default of 100.
	CommitInterval int

	// Sync additionally fsyncs the file on every commit.
	Sync bool
}

// Validate checks the configuration shape. Path writability is checked at
// open, not here.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Path) == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate",
			"bag path required")
	}
	if c.CommitInterval < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"commit interval cannot be negative")
	}
	return nil
}

// Sink writes envelope lines to one bag file. The scan loop is the only
// caller; Sink is not safe for concurrent use.
type Sink struct {
	cfg    Config
	logger *slog.Logger
	reg    *message.Registry

	opened  bool
	openErr error
	closed  bool
	f       *os.File
	w       *bufio.Writer

	schemas map[message.TypeKey]bool
	topics  map[message.TopicKey]int
	pending int
	writes  int
	commits int
}

var _ component.Sink = (*Sink)(nil)

// NewSink creates a bag sink. The file is opened lazily on the first
// Write.
func NewSink(cfg Config, deps component.Dependencies) (*Sink, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "BagSink", "NewSink", "config validation")
	}
	if cfg.CommitInterval == 0 {
		cfg.CommitInterval = defaultCommitInterval
	}
	return &Sink{
		cfg:     cfg,
		logger:  deps.GetLoggerWithComponent("bagfile-sink"),
		reg:     deps.Types,
		schemas: make(map[message.TypeKey]bool),
		topics:  make(map[message.TopicKey]int),
	}, nil
}

// Write appends the record's envelope line, preceded by a schema line the
// first time its type variant appears. Matched paths play no part here;
// the bag re-records the whole record.
func (s *Sink) Write(rec message.Record, _ component.WriteMeta) error {
	if s.closed {
		return errors.WrapInvalid(errors.ErrSinkClosed, "BagSink", "Write", "write after close")
	}
	if err := s.ensureOpen(); err != nil {
		return err
	}

	key := rec.TypeKey()
	if !s.schemas[key] {
		line, err := message.NewSchemaEnvelope(s.reg.DescriptorFor(rec)).Encode()
		if err != nil {
			return errors.Wrap(err, "BagSink", "Write",
				fmt.Sprintf("encode schema for %s", rec.Type))
		}
		if err := s.writeLine(line); err != nil {
			return err
		}
		s.schemas[key] = true
	}

	topicKey := rec.TopicKey()
	if _, seen := s.topics[topicKey]; !seen {
		s.logger.Debug("adding topic to bag output", "topic", rec.Topic, "type", rec.Type)
	}
	s.topics[topicKey]++

	line, err := message.NewMessageEnvelope(rec).Encode()
	if err != nil {
		return errors.Wrap(err, "BagSink", "Write",
			fmt.Sprintf("encode record on %s", rec.Topic))
	}
	if err := s.writeLine(line); err != nil {
		return err
	}

	s.writes++
	s.pending++
	if s.pending >= s.cfg.CommitInterval {
		return s.commit()
	}
	return nil
}

// Flush commits anything still buffered.
func (s *Sink) Flush() error {
	return s.commit()
}

// Close commits the remaining buffer and closes the file.
func (s *Sink) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.f == nil {
		return nil
	}

	err := s.commit()
	var size int64
	if info, statErr := s.f.Stat(); statErr == nil {
		size = info.Size()
	}
	if cerr := s.f.Close(); cerr != nil && err == nil {
		err = errors.WrapTransient(cerr, "BagSink", "Close", "close bag")
	}
	s.f = nil

	s.logger.Info("bag output closed",
		"path", s.cfg.Path,
		"records", s.writes,
		"topics", len(s.topics),
		"commits", s.commits,
		"bytes", size)
	return err
}

func (s *Sink) ensureOpen() error {
	if s.opened {
		return s.openErr
	}
	s.opened = true

	if dir := filepath.Dir(s.cfg.Path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			s.openErr = errors.WrapFatal(err, "BagSink", "Write", "create output directory")
			return s.openErr
		}
	}

	var existing int64
	if info, err := os.Stat(s.cfg.Path); err == nil {
		existing = info.Size()
	}

	flags := os.O_CREATE | os.O_WRONLY
	if s.cfg.Overwrite {
		flags |= os.O_TRUNC
	} else {
		flags |= os.O_APPEND
	}
	f, err := os.OpenFile(s.cfg.Path, flags, 0644)
	if err != nil {
		s.openErr = errors.WrapFatal(err, "BagSink", "Write", "open bag file")
		return s.openErr
	}
	s.f = f
	s.w = bufio.NewWriter(f)

	verb := "creating"
	switch {
	case existing > 0 && s.cfg.Overwrite:
		verb = "overwriting"
	case existing > 0:
		verb = "appending to"
	}
	s.logger.Info(verb+" bag file", "path", s.cfg.Path, "existing_bytes", existing)
	return nil
}

func (s *Sink) writeLine(line []byte) error {
	if _, err := s.w.Write(line); err != nil {
		return errors.WrapTransient(err, "BagSink", "Write", "write bag line")
	}
	if err := s.w.WriteByte('\n'); err != nil {
		return errors.WrapTransient(err, "BagSink", "Write", "write bag line")
	}
	return nil
}

func (s *Sink) commit() error {
	if s.pending == 0 {
		return nil
	}
	if err := s.w.Flush(); err != nil {
		return errors.WrapTransient(err, "BagSink", "commit", "flush bag")
	}
	if s.cfg.Sync {
		if err := s.f.Sync(); err != nil {
			return errors.WrapTransient(err, "BagSink", "commit", "sync bag")
		}
	}
	s.pending = 0
	s.commits++
	return nil
}

const optionsSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"properties": {
		"path": {
			"type": "string",
			"minLength": 1,
			"description": "Bag file to create or append to"
		},
		"overwrite": {
			"type": "boolean",
			"description": "Truncate an existing bag instead of appending"
		},
		"commitInterval": {
			"type": "integer",
			"minimum": 1,
			"description": "Records buffered between flushes to the file"
		},
		"sync": {
			"type": "boolean",
			"description": "fsync the file on every commit"
		}
	},
	"required": ["path"],
	"additionalProperties": false
}`

// CreateSink builds a bag sink from an options map.
func CreateSink(opts map[string]any, deps component.Dependencies) (component.Sink, error) {
	cfg := Config{
		Path:           component.GetString(opts, "path", ""),
		Overwrite:      component.GetBool(opts, "overwrite", false),
		CommitInterval: component.GetInt(opts, types.OptionCommitInterval, 0),
		Sync:           component.GetBool(opts, "sync", false),
	}
	return NewSink(cfg, deps)
}

// Register adds the bagfile sink kind to the registry.
func Register(registry *component.Registry) error {
	return registry.Register(component.Registration{
		Kind:          "bagfile",
		Type:          types.ComponentTypeSink,
		Description:   "Re-records matched records to a bag file (JSON Lines envelopes)",
		Version:       "1.0.0",
		OptionsSchema: json.RawMessage(optionsSchema),
		NewSink:       CreateSink,
	})
}
