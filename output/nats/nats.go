package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/c360/grepbag/component"
	"github.com/c360/grepbag/errors"
	"github.com/c360/grepbag/message"
	"github.com/c360/grepbag/natsclient"
	"github.com/c360/grepbag/types"
)

// Config shapes the subjects a Sink publishes on.
type Config struct {
	// SubjectPrefix is prepended to the subject derived from each record's
	// topic.
	SubjectPrefix string

	// SubjectSuffix is appended to the derived subject.
	SubjectSuffix string

	// FixedSubject routes every record to this one subject, overriding
	// prefix and suffix.
	FixedSubject string

	// CommitInterval flushes the connection after this many records. The
	// default of 1 confirms each record with the server.
	CommitInterval int
}

// DefaultConfig returns the publishing defaults.
func DefaultConfig() Config {
	return Config{CommitInterval: 1}
}

// Validate checks the configuration shape.
func (c Config) Validate() error {
	for _, part := range []struct{ name, value string }{
		{"subject prefix", c.SubjectPrefix},
		{"subject suffix", c.SubjectSuffix},
		{"fixed subject", c.FixedSubject},
	} {
		if strings.ContainsAny(part.value, " \t") {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
				fmt.Sprintf("%s %q contains whitespace", part.name, part.value))
		}
	}
	if c.CommitInterval < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"commit interval cannot be negative")
	}
	return nil
}

// Subject returns the subject a record on topic publishes to: the fixed
// subject when configured, otherwise prefix + derived topic name + suffix.
// Deriving drops the topic's leading slash and maps the rest to dots.
func (c Config) Subject(topic string) string {
	if c.FixedSubject != "" {
		return c.FixedSubject
	}
	mapped := strings.TrimPrefix(topic, "/")
	mapped = strings.ReplaceAll(mapped, "/", ".")
	mapped = strings.Map(func(r rune) rune {
		if r == ' ' || r == '\t' {
			return '_'
		}
		return r
	}, mapped)
	return c.SubjectPrefix + mapped + c.SubjectSuffix
}

// schemaKey identifies one type variant on one subject. The schema envelope
// is published once per key.
type schemaKey struct {
	typ     message.TypeKey
	subject string
}

// Sink republishes records as envelopes on NATS subjects.
type Sink struct {
	cfg    Config
	client *natsclient.Client
	logger *slog.Logger
	reg    *message.Registry

	closed   bool
	schemas  map[schemaKey]bool
	topics   map[string]string
	subjects map[string]bool

	pending int
	writes  int
	commits int
}

var _ component.Sink = (*Sink)(nil)

// NewSink creates a republish sink on the shared NATS client. The sink never
// closes the client; the run owns that connection.
func NewSink(cfg Config, deps component.Dependencies) (*Sink, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "NATSSink", "NewSink", "config validation")
	}
	if deps.NATSClient == nil {
		return nil, errors.WrapInvalid(fmt.Errorf("NATS client is required"),
			"NATSSink", "NewSink", "dependency validation")
	}
	return &Sink{
		cfg:      cfg,
		client:   deps.NATSClient,
		logger:   deps.GetLoggerWithComponent("nats-sink"),
		reg:      deps.Types,
		schemas:  make(map[schemaKey]bool),
		topics:   make(map[string]string),
		subjects: make(map[string]bool),
	}, nil
}

// Write publishes the record's envelope, preceded by the variant's schema
// envelope the first time the variant appears on its subject. Matched paths
// play no part here; the full record rides the wire.
func (s *Sink) Write(rec message.Record, _ component.WriteMeta) error {
	if s.closed {
		return errors.WrapInvalid(errors.ErrSinkClosed, "NATSSink", "Write", "sink closed")
	}

	subject := s.cfg.Subject(rec.Topic)
	if subject == "" {
		return errors.WrapInvalid(errors.ErrInvalidData, "NATSSink", "Write",
			fmt.Sprintf("topic %q maps to an empty subject", rec.Topic))
	}
	if _, seen := s.topics[rec.Topic]; !seen {
		s.topics[rec.Topic] = subject
		s.subjects[subject] = true
		s.logger.Debug("publishing topic", "topic", rec.Topic, "subject", subject)
	}

	key := schemaKey{typ: rec.TypeKey(), subject: subject}
	if !s.schemas[key] {
		if err := s.publishSchema(rec, subject); err != nil {
			return err
		}
		s.schemas[key] = true
	}

	line, err := message.NewMessageEnvelope(rec).Encode()
	if err != nil {
		return errors.Wrap(err, "NATSSink", "Write", "encode envelope")
	}
	if err := s.client.Publish(context.Background(), subject, line); err != nil {
		return errors.WrapTransient(err, "NATSSink", "Write", "publish "+subject)
	}

	s.writes++
	s.pending++
	if s.cfg.CommitInterval > 0 && s.pending >= s.cfg.CommitInterval {
		return s.commit()
	}
	return nil
}

func (s *Sink) publishSchema(rec message.Record, subject string) error {
	line, err := message.NewSchemaEnvelope(s.reg.DescriptorFor(rec)).Encode()
	if err != nil {
		return errors.Wrap(err, "NATSSink", "publishSchema", "encode schema envelope")
	}
	if err := s.client.Publish(context.Background(), subject, line); err != nil {
		return errors.WrapTransient(err, "NATSSink", "publishSchema", "publish "+subject)
	}
	return nil
}

// commit flushes buffered publishes to the server.
func (s *Sink) commit() error {
	if s.pending == 0 {
		return nil
	}
	if err := s.client.Flush(); err != nil {
		return errors.WrapTransient(err, "NATSSink", "commit", "flush connection")
	}
	s.pending = 0
	s.commits++
	return nil
}

// Flush pushes pending publishes to the server.
func (s *Sink) Flush() error {
	if s.closed {
		return nil
	}
	return s.commit()
}

// Close flushes pending publishes and releases the sink. The shared client
// stays open. Idempotent.
func (s *Sink) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	err := s.commit()
	s.logger.Info("nats output closed",
		"records", s.writes,
		"topics", len(s.topics),
		"subjects", len(s.subjects),
		"commits", s.commits)
	return err
}

const optionsSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"properties": {
		"subjectPrefix": {
			"description": "Prefix prepended to the subject derived from each topic",
			"type": "string"
		},
		"subjectSuffix": {
			"description": "Suffix appended to the derived subject",
			"type": "string"
		},
		"fixedSubject": {
			"description": "Publish every record on this one subject, overriding prefix and suffix",
			"type": "string"
		},
		"commitInterval": {
			"description": "Flush the connection after this many records",
			"type": "integer",
			"minimum": 1
		}
	},
	"additionalProperties": false
}`

// CreateSink builds a republish sink from an options map.
func CreateSink(opts map[string]any, deps component.Dependencies) (component.Sink, error) {
	cfg := DefaultConfig()
	cfg.SubjectPrefix = component.GetString(opts, "subjectPrefix", "")
	cfg.SubjectSuffix = component.GetString(opts, "subjectSuffix", "")
	cfg.FixedSubject = component.GetString(opts, "fixedSubject", "")
	cfg.CommitInterval = component.GetInt(opts, types.OptionCommitInterval, cfg.CommitInterval)
	return NewSink(cfg, deps)
}

// Register adds the nats sink kind to the registry.
func Register(registry *component.Registry) error {
	return registry.Register(component.Registration{
		Kind:          "nats",
		Type:          types.ComponentTypeSink,
		Description:   "Republishes matched records as envelopes on NATS subjects",
		Version:       "1.0.0",
		OptionsSchema: json.RawMessage(optionsSchema),
		NewSink:       CreateSink,
	})
}
