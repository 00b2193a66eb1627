package rosbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/c360/grepbag/component"
	"github.com/c360/grepbag/errors"
	"github.com/c360/grepbag/message"
	"github.com/c360/grepbag/pkg/buffer"
	"github.com/c360/grepbag/pkg/tlsutil"
	"github.com/c360/grepbag/types"
)

const (
	// handshakeTimeout bounds the websocket dial.
	handshakeTimeout = 10 * time.Second

	// writeTimeout bounds subscribe and unsubscribe sends.
	writeTimeout = 5 * time.Second

	// defaultQueueSize bounds publish frames in flight between the reader
	// and the read loop when no queueSize option is given.
	defaultQueueSize = 256
)

// Config selects the rosbridge server and topics a Source subscribes to.
type Config struct {
	// URL is the rosbridge websocket endpoint (ws:// or wss://).
	URL string

	// Topics to subscribe to.
	Topics []string

	// Types optionally names the message type per topic. The name rides the
	// subscribe op and is stamped on records; topics without an entry use the
	// topic name as the type.
	Types map[string]string

	// IdleTimeout ends the stream after this long without a message. Zero
	// waits until the run is stopped.
	IdleTimeout time.Duration

	// QueueSize bounds the input queue. When the scan falls behind, the
	// oldest queued frames are shed rather than blocking the reader. The
	// same bound rides the subscribe op as queue_length when set
	// explicitly. Zero uses the default.
	QueueSize int

	// TLS configures the wss:// dial. Certificates are loaded when the
	// connection opens, not at construction.
	TLS tlsutil.ClientConfig
}

// Validate checks the configuration shape.
func (c Config) Validate() error {
	if strings.TrimSpace(c.URL) == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate",
			"rosbridge url required")
	}
	u, err := url.Parse(c.URL)
	if err != nil {
		return errors.WrapInvalid(err, "Config", "Validate", "parse rosbridge url")
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			fmt.Sprintf("url scheme %q must be ws or wss", u.Scheme))
	}
	if len(c.Topics) == 0 {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate",
			"at least one topic required")
	}
	for _, topic := range c.Topics {
		if strings.TrimSpace(topic) == "" {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
				"empty topic")
		}
	}
	for topic := range c.Types {
		if !contains(c.Topics, topic) {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
				fmt.Sprintf("type entry for unsubscribed topic %q", topic))
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
	if !c.TLS.Empty() {
		if u.Scheme != "wss" {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
				"tls options require a wss url")
		}
		if err := c.TLS.Validate(); err != nil {
			return errors.WrapInvalid(err, "Config", "Validate", "check tls options")
		}
	}
	return nil
}

func contains(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}

// frame is a rosbridge protocol frame. Only the fields the source reads or
// writes are declared.
type frame struct {
	Op          string          `json:"op"`
	Topic       string          `json:"topic,omitempty"`
	Type        string          `json:"type,omitempty"`
	QueueLength int             `json:"queue_length,omitempty"`
	Msg         json.RawMessage `json:"msg,omitempty"`
}

// Source delivers records published on rosbridge topics.
type Source struct {
	cfg    Config
	logger *slog.Logger

	mu              sync.Mutex
	opened          bool
	stopped         bool
	openErr         error
	openErrReported bool

	conn *websocket.Conn
	wmu  sync.Mutex

	queue  *buffer.Ring[frame]
	stopCh chan struct{}

	descs map[message.TypeKey]message.TypeDescriptor
}

var _ component.Source = (*Source)(nil)
var _ component.DescriptorProvider = (*Source)(nil)

// NewSource creates a rosbridge source. The connection is dialed on the first
// Next call.
func NewSource(cfg Config, deps component.Dependencies) (*Source, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "RosbridgeSource", "NewSource", "config validation")
	}
	return &Source{
		cfg:    cfg,
		logger: deps.GetLoggerWithComponent("rosbridge-source"),
		descs:  make(map[message.TypeKey]message.TypeDescriptor),
		stopCh: make(chan struct{}),
	}, nil
}

// Next returns the next record published on the subscribed topics.
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

	f, ok, err := s.wait(ctx)
	if err != nil {
		return message.Record{}, err
	}
	if !ok {
		return message.Record{}, io.EOF
	}
	return s.record(f)
}

// wait blocks for the next publish frame, the idle timeout, stop or
// cancellation. ok is false when the stream ended.
func (s *Source) wait(ctx context.Context) (frame, bool, error) {
	var idleC <-chan time.Time
	if s.cfg.IdleTimeout > 0 {
		timer := time.NewTimer(s.cfg.IdleTimeout)
		defer timer.Stop()
		idleC = timer.C
	}
	for {
		if f, ok := s.queue.Get(); ok {
			return f, true, nil
		}
		if s.queue.Closed() {
			return frame{}, false, nil
		}
		select {
		case <-ctx.Done():
			return frame{}, false, ctx.Err()
		case <-s.stopCh:
			return frame{}, false, nil
		case <-s.queue.Ready():
		case <-idleC:
			s.logger.Info("no messages within idle timeout, ending stream",
				"idle_timeout", s.cfg.IdleTimeout)
			return frame{}, false, nil
		}
	}
}

// record converts a publish frame into a Record, inferring the type variant
// from the message shape.
func (s *Source) record(f frame) (message.Record, error) {
	if len(f.Msg) == 0 {
		return message.Record{}, errors.WrapInvalid(errors.ErrInvalidData, "RosbridgeSource", "Next",
			fmt.Sprintf("publish frame on %s has no msg", f.Topic))
	}
	tree, err := message.DecodeJSON(f.Msg)
	if err != nil {
		return message.Record{}, errors.Wrap(err, "RosbridgeSource", "Next",
			fmt.Sprintf("decode message on %s", f.Topic))
	}

	typeName := s.typeFor(f.Topic)
	desc := message.InferDescriptor(typeName, tree)
	if _, ok := s.descs[desc.Key()]; !ok {
		s.descs[desc.Key()] = desc
	}

	return message.Record{
		Topic:      f.Topic,
		Type:       typeName,
		SchemaHash: desc.SchemaHash,
		Stamp:      stampOf(tree),
		Data:       tree,
	}, nil
}

func (s *Source) typeFor(topic string) string {
	if name, ok := s.cfg.Types[topic]; ok {
		return name
	}
	return topic
}

// stampOf extracts header.stamp when the message carries one, in either the
// secs/nsecs or sec/nanosec field pair. Unstamped and zero-stamped messages
// use the receive time.
func stampOf(tree message.Value) time.Time {
	header, ok := tree.FieldByName("header")
	if !ok {
		return time.Now().UTC()
	}
	stamp, ok := header.FieldByName("stamp")
	if !ok {
		return time.Now().UTC()
	}
	sec, ok := stamp.FieldByName("secs")
	if !ok {
		sec, ok = stamp.FieldByName("sec")
	}
	if !ok || sec.IntValue() == 0 {
		return time.Now().UTC()
	}
	nsec, ok := stamp.FieldByName("nsecs")
	if !ok {
		nsec, _ = stamp.FieldByName("nanosec")
	}
	return time.Unix(sec.IntValue(), nsec.IntValue()).UTC()
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

// open dials the server, sends one subscribe op per topic and starts the
// reader. TLS material for wss endpoints is loaded here.
func (s *Source) open() error {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	if !s.cfg.TLS.Empty() {
		tlsCfg, err := s.cfg.TLS.Load()
		if err != nil {
			return errors.Wrap(err, "RosbridgeSource", "open", "load tls configuration")
		}
		dialer.TLSClientConfig = tlsCfg
	}
	conn, resp, err := dialer.Dial(s.cfg.URL, nil)
	if err != nil {
		if resp != nil {
			_ = resp.Body.Close()
		}
		return errors.Wrap(err, "RosbridgeSource", "open", fmt.Sprintf("dial %s", s.cfg.URL))
	}
	s.conn = conn

	for _, topic := range s.cfg.Topics {
		sub := frame{Op: "subscribe", Topic: topic, QueueLength: s.cfg.QueueSize}
		if name, ok := s.cfg.Types[topic]; ok {
			sub.Type = name
		}
		if err := s.writeFrame(sub); err != nil {
			_ = conn.Close()
			return errors.Wrap(err, "RosbridgeSource", "open", fmt.Sprintf("subscribe %s", topic))
		}
	}

	size := s.cfg.QueueSize
	if size == 0 {
		size = defaultQueueSize
	}
	s.queue = buffer.NewRing[frame](size, buffer.DropOldest)
	go s.reader(conn)

	s.logger.Info("subscribed", "url", s.cfg.URL, "topics", strings.Join(s.cfg.Topics, ","))
	return nil
}

// reader moves publish frames from the connection into the shared queue
// until the connection dies or the source stops. Queue writes never
// block, so a slow scan sheds the oldest queued frames.
func (s *Source) reader(conn *websocket.Conn) {
	defer s.queue.Close()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !s.isStopped() && !websocket.IsCloseError(err,
				websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Warn("rosbridge read failed", "error", err)
			}
			return
		}

		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			s.logger.Warn("undecodable rosbridge frame", "error", err)
			continue
		}
		if f.Op != "publish" {
			s.logger.Debug("ignoring rosbridge op", "op", f.Op)
			continue
		}

		if !s.queue.Put(f) {
			return
		}
	}
}

func (s *Source) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

func (s *Source) writeFrame(f frame) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return s.conn.WriteJSON(f)
}

// EstimatedTotal reports -1. A live subscription has no bounded length.
func (s *Source) EstimatedTotal() int {
	return -1
}

// SupportsEarlyStop reports false. Live subscriptions deliver until stopped.
func (s *Source) SupportsEarlyStop() bool {
	return false
}

// Descriptor returns the schema inferred for a type variant, once a message
// of that shape has arrived.
func (s *Source) Descriptor(typeName, schemaHash string) (message.TypeDescriptor, bool) {
	desc, ok := s.descs[message.TypeKey{Name: typeName, SchemaHash: schemaHash}]
	return desc, ok
}

// Stop sends an unsubscribe per topic and closes the connection. After Stop,
// Next returns io.EOF. Idempotent.
func (s *Source) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return nil
	}
	s.stopped = true
	close(s.stopCh)

	if s.conn != nil {
		for _, topic := range s.cfg.Topics {
			if err := s.writeFrame(frame{Op: "unsubscribe", Topic: topic}); err != nil {
				s.logger.Debug("unsubscribe failed", "topic", topic, "error", err)
				break
			}
		}
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeTimeout))
		_ = s.conn.Close()
	}
	if s.queue != nil {
		if shed := s.queue.Dropped(); shed > 0 {
			s.logger.Warn("input queue shed frames, scan could not keep up",
				"shed", shed, "queue_size", s.queue.Cap())
		}
	}
	return nil
}

const optionsSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"properties": {
		"url": {
			"type": "string",
			"description": "rosbridge websocket endpoint (ws:// or wss://)"
		},
		"topics": {
			"description": "Topics to subscribe to",
			"anyOf": [
				{"type": "string"},
				{"type": "array", "items": {"type": "string"}, "minItems": 1}
			]
		},
		"types": {
			"type": "object",
			"description": "Message type name per topic",
			"additionalProperties": {"type": "string"}
		},
		"idleTimeout": {
			"description": "End the stream after this long without a message (duration string or seconds)",
			"anyOf": [{"type": "string"}, {"type": "number"}]
		},
		"queueSize": {
			"description": "Input queue bound, oldest frames are shed beyond it (default 256)",
			"type": "integer",
			"minimum": 1
		},
		"caFile": {
			"type": "string",
			"description": "PEM bundle of extra roots to trust for wss endpoints"
		},
		"certFile": {
			"type": "string",
			"description": "Client certificate for mutual TLS, requires keyFile"
		},
		"keyFile": {
			"type": "string",
			"description": "Client certificate key, requires certFile"
		},
		"insecureSkipVerify": {
			"type": "boolean",
			"description": "Skip server certificate verification"
		}
	},
	"required": ["url", "topics"],
	"additionalProperties": false
}`

// CreateSource builds a rosbridge source from an options map.
func CreateSource(opts map[string]any, deps component.Dependencies) (component.Source, error) {
	cfg := Config{
		URL:         component.GetString(opts, "url", ""),
		Topics:      component.GetStringSlice(opts, "topics", nil),
		Types:       component.GetStringMap(opts, "types", nil),
		IdleTimeout: component.GetDuration(opts, "idleTimeout", 0),
		QueueSize:   component.GetInt(opts, "queueSize", 0),
		TLS: tlsutil.ClientConfig{
			CAFile:             component.GetString(opts, "caFile", ""),
			CertFile:           component.GetString(opts, "certFile", ""),
			KeyFile:            component.GetString(opts, "keyFile", ""),
			InsecureSkipVerify: component.GetBool(opts, "insecureSkipVerify", false),
		},
	}
	return NewSource(cfg, deps)
}

// Register adds the rosbridge source kind to the registry.
func Register(registry *component.Registry) error {
	return registry.Register(component.Registration{
		Kind:          "rosbridge",
		Type:          types.ComponentTypeSource,
		Description:   "Subscribes to live topics on a rosbridge websocket server",
		Version:       "1.0.0",
		OptionsSchema: json.RawMessage(optionsSchema),
		NewSource:     CreateSource,
	})
}
