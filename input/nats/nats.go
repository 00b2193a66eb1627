package nats

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	gonats "github.com/nats-io/nats.go"

	"github.com/c360/grepbag/component"
	"github.com/c360/grepbag/errors"
	"github.com/c360/grepbag/message"
	"github.com/c360/grepbag/natsclient"
	"github.com/c360/grepbag/pkg/buffer"
	"github.com/c360/grepbag/types"
)

// defaultQueueSize bounds messages in flight between the subscription
// pumps and the read loop when no queueSize option is given.
const defaultQueueSize = 256

// Config selects the subjects a Source subscribes to.
type Config struct {
	// Subjects are NATS subjects carrying record envelopes. Wildcards are
	// allowed.
	Subjects []string

	// IdleTimeout ends the stream after this long without a message. Zero
	// waits until the run is stopped.
	IdleTimeout time.Duration

	// QueueSize bounds the input queue. When the scan falls behind, the
	// oldest queued messages are shed rather than blocking delivery.
	// Zero uses the default.
	QueueSize int
}

// Validate checks the configuration shape.
func (c Config) Validate() error {
	if len(c.Subjects) == 0 {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate",
			"at least one subject required")
	}
	for _, subject := range c.Subjects {
		if strings.TrimSpace(subject) == "" {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
				"empty subject")
		}
		if strings.ContainsAny(subject, " \t") {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
				fmt.Sprintf("subject %q contains whitespace", subject))
		}
	}
	if c.IdleTimeout < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"idle timeout cannot be negative")
	}
	if c.QueueSize < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"queue size cannot be negative")
	}
	return nil
}

// Source delivers records published as envelopes on NATS subjects.
type Source struct {
	cfg    Config
	client *natsclient.Client
	logger *slog.Logger

	mu              sync.Mutex
	opened          bool
	stopped         bool
	openErr         error
	openErrReported bool

	subs       []*gonats.Subscription
	queue      *buffer.Ring[*gonats.Msg]
	pumpCancel context.CancelFunc
	wg         sync.WaitGroup

	stopCh chan struct{}

	descs map[message.TypeKey]message.TypeDescriptor
}

var _ component.Source = (*Source)(nil)
var _ component.DescriptorProvider = (*Source)(nil)

// NewSource creates a live NATS source. Subscriptions are established on the
// first Next call.
func NewSource(cfg Config, deps component.Dependencies) (*Source, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "NATSSource", "NewSource", "config validation")
	}
	if deps.NATSClient == nil {
		return nil, errors.WrapInvalid(fmt.Errorf("NATS client is required"),
			"NATSSource", "NewSource", "dependency validation")
	}
	return &Source{
		cfg:    cfg,
		client: deps.NATSClient,
		logger: deps.GetLoggerWithComponent("nats-source"),
		descs:  make(map[message.TypeKey]message.TypeDescriptor),
		stopCh: make(chan struct{}),
	}, nil
}

// Next returns the next record delivered on the subscribed subjects. Schema
// envelopes feed the descriptor table and are not returned.
func (s *Source) Next(ctx context.Context) (message.Record, error) {
	if err := ctx.Err(); err != nil {
		return message.Record{}, err
	}
	if err := s.ensureOpen(); err != nil {
		s.mu.Lock()
		reported := s.openErrReported
		s.openErrReported = true
		s.mu.Unlock()
		if reported {
			return message.Record{}, io.EOF
		}
		return message.Record{}, err
	}

	for {
		msg, ok, err := s.wait(ctx)
		if err != nil {
			return message.Record{}, err
		}
		if !ok {
			return message.Record{}, io.EOF
		}

		env, err := message.ParseEnvelope(msg.Data)
		if err != nil {
			return message.Record{}, errors.Wrap(err, "NATSSource", "Next",
				fmt.Sprintf("envelope on %s", msg.Subject))
		}
		switch env.Kind {
		case message.EnvelopeSchema:
			desc, err := env.Descriptor()
			if err != nil {
				return message.Record{}, errors.Wrap(err, "NATSSource", "Next",
					fmt.Sprintf("schema envelope on %s", msg.Subject))
			}
			s.descs[desc.Key()] = desc
		case message.EnvelopeMessage:
			rec, err := env.Record()
			if err != nil {
				return message.Record{}, errors.Wrap(err, "NATSSource", "Next",
					fmt.Sprintf("message envelope on %s", msg.Subject))
			}
			return rec, nil
		}
	}
}

// wait blocks for the next subscription message, the idle timeout, stop or
// cancellation. ok is false when the stream ended.
func (s *Source) wait(ctx context.Context) (*gonats.Msg, bool, error) {
	var idleC <-chan time.Time
	if s.cfg.IdleTimeout > 0 {
		timer := time.NewTimer(s.cfg.IdleTimeout)
		defer timer.Stop()
		idleC = timer.C
	}
	for {
		if msg, ok := s.queue.Get(); ok {
			return msg, true, nil
		}
		if s.queue.Closed() {
			return nil, false, nil
		}
		select {
		case <-ctx.Done():
			return nil, false, ctx.Err()
		case <-s.stopCh:
			return nil, false, nil
		case <-s.queue.Ready():
		case <-idleC:
			s.logger.Info("no messages within idle timeout, ending stream",
				"idle_timeout", s.cfg.IdleTimeout)
			return nil, false, nil
		}
	}
}

func (s *Source) ensureOpen() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped || s.opened {
		return s.openErr
	}
	s.opened = true
	s.openErr = s.open()
	return s.openErr
}

// open subscribes to every configured subject and starts one pump per
// subscription. The flush confirms the server saw the subscriptions before
// the first wait.
func (s *Source) open() error {
	pumpCtx, cancel := context.WithCancel(context.Background())
	s.pumpCancel = cancel
	size := s.cfg.QueueSize
	if size == 0 {
		size = defaultQueueSize
	}
	s.queue = buffer.NewRing[*gonats.Msg](size, buffer.DropOldest)

	for _, subject := range s.cfg.Subjects {
		sub, err := s.client.SubscribeSync(subject)
		if err != nil {
			s.unsubscribeLocked()
			cancel()
			return errors.Wrap(err, "NATSSource", "open", fmt.Sprintf("subscribe %s", subject))
		}
		s.subs = append(s.subs, sub)
	}
	if err := s.client.Flush(); err != nil {
		s.unsubscribeLocked()
		cancel()
		return errors.Wrap(err, "NATSSource", "open", "flush subscriptions")
	}

	for _, sub := range s.subs {
		s.wg.Add(1)
		go s.pump(pumpCtx, sub)
	}
	go func() {
		s.wg.Wait()
		s.queue.Close()
	}()

	s.logger.Info("subscribed", "subjects", strings.Join(s.cfg.Subjects, ","))
	return nil
}

// pump moves messages from one subscription into the shared queue until the
// source stops or the subscription dies. Queue writes never block, so a
// slow scan sheds the oldest queued messages instead of backing up into
// the NATS client.
func (s *Source) pump(ctx context.Context, sub *gonats.Subscription) {
	defer s.wg.Done()
	for {
		msg, err := sub.NextMsgWithContext(ctx)
		if err != nil {
			switch {
			case stderrors.Is(err, gonats.ErrSlowConsumer):
				s.logger.Warn("subscription dropped messages", "subject", sub.Subject)
				continue
			case ctx.Err() != nil,
				stderrors.Is(err, gonats.ErrConnectionClosed),
				stderrors.Is(err, gonats.ErrBadSubscription):
				return
			default:
				s.logger.Warn("subscription read failed", "subject", sub.Subject, "error", err)
				return
			}
		}
		if !s.queue.Put(msg) {
			return
		}
	}
}

// EstimatedTotal reports -1. A live subscription has no bounded length.
func (s *Source) EstimatedTotal() int {
	return -1
}

// SupportsEarlyStop reports false. Live subscriptions deliver until stopped.
func (s *Source) SupportsEarlyStop() bool {
	return false
}

// Descriptor returns the schema announced for a type variant, when one has
// arrived on a subscribed subject.
func (s *Source) Descriptor(typeName, schemaHash string) (message.TypeDescriptor, bool) {
	desc, ok := s.descs[message.TypeKey{Name: typeName, SchemaHash: schemaHash}]
	return desc, ok
}

// Stop unsubscribes and releases the source. After Stop, Next returns io.EOF.
// Idempotent.
func (s *Source) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return nil
	}
	s.stopped = true
	close(s.stopCh)
	if s.pumpCancel != nil {
		s.pumpCancel()
	}
	s.unsubscribeLocked()
	if s.queue != nil {
		if shed := s.queue.Dropped(); shed > 0 {
			s.logger.Warn("input queue shed messages, scan could not keep up",
				"shed", shed, "queue_size", s.queue.Cap())
		}
	}
	return nil
}

func (s *Source) unsubscribeLocked() {
	for _, sub := range s.subs {
		if err := sub.Unsubscribe(); err != nil {
			s.logger.Debug("unsubscribe failed", "subject", sub.Subject, "error", err)
		}
	}
	s.subs = nil
}

const optionsSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"properties": {
		"subjects": {
			"description": "NATS subjects carrying record envelopes",
			"anyOf": [
				{"type": "string"},
				{"type": "array", "items": {"type": "string"}, "minItems": 1}
			]
		},
		"idleTimeout": {
			"description": "End the stream after this long without a message (duration string or seconds)",
			"anyOf": [{"type": "string"}, {"type": "number"}]
		},
		"queueSize": {
			"description": "Input queue bound, oldest messages are shed beyond it (default 256)",
			"type": "integer",
			"minimum": 1
		}
	},
	"required": ["subjects"],
	"additionalProperties": false
}`

// CreateSource builds a NATS source from an options map.
func CreateSource(opts map[string]any, deps component.Dependencies) (component.Source, error) {
	cfg := Config{
		Subjects:    component.GetStringSlice(opts, "subjects", nil),
		IdleTimeout: component.GetDuration(opts, "idleTimeout", 0),
		QueueSize:   component.GetInt(opts, "queueSize", 0),
	}
	return NewSource(cfg, deps)
}

// Register adds the nats source kind to the registry.
func Register(registry *component.Registry) error {
	return registry.Register(component.Registration{
		Kind:          "nats",
		Type:          types.ComponentTypeSource,
		Description:   "Subscribes to record envelopes on NATS subjects",
		Version:       "1.0.0",
		OptionsSchema: json.RawMessage(optionsSchema),
		NewSource:     CreateSource,
	})
}
