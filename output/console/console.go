package console

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/c360/grepbag/component"
	"github.com/c360/grepbag/errors"
	"github.com/c360/grepbag/message"
	"github.com/c360/grepbag/types"
)

// sep prefixes separator and meta lines.
const sep = "---"

// Config controls how records are rendered and where the text goes.
type Config struct {
	// Target selects the destination stream, "stdout" or "stderr".
	Target string

	// CommitInterval is the number of records buffered between writes to
	// the destination. Zero means the default of 1, every record flushed
	// as it arrives.
	CommitInterval int

	// Meta prints a meta line before each record: emit ordinal, topic,
	// type and stamp. Without it a bare separator line is printed between
	// records instead.
	Meta bool

	// SourcePrefix prefixes every body line with the record's topic,
	// separated by ":" for matches and "-" for context records.
	SourcePrefix bool

	// MatchedOnly drops fields whose subtree holds no matched leaf.
	// Records without matched paths render in full.
	MatchedOnly bool

	// WrapStart and WrapEnd surround the rendered text of matched leaves.
	// Both empty disables highlighting.
	WrapStart string
	WrapEnd   string

	// Writer overrides Target with an explicit destination. Used by tests
	// and embedding callers; not reachable from the options map.
	Writer io.Writer
}

// DefaultConfig returns the stdout configuration with "**" highlighting.
func DefaultConfig() Config {
	return Config{
		Target:         "stdout",
		CommitInterval: 1,
		WrapStart:      "**",
		WrapEnd:        "**",
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	switch c.Target {
	case "", "stdout", "stderr":
	default:
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			fmt.Sprintf("target must be stdout or stderr, got %q", c.Target))
	}
	if c.CommitInterval < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"commit interval cannot be negative")
	}
	return nil
}

// Sink writes records as indented text. The scan loop is the only caller;
// Sink is not safe for concurrent use.
type Sink struct {
	cfg    Config
	logger *slog.Logger
	w      io.Writer

	buf     bytes.Buffer
	pending int
	writes  int
	commits int
	closed  bool
}

var _ component.Sink = (*Sink)(nil)

// NewSink creates a console sink. No I/O happens until the first commit.
func NewSink(cfg Config, deps component.Dependencies) (*Sink, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "ConsoleSink", "NewSink", "config validation")
	}
	if cfg.CommitInterval == 0 {
		cfg.CommitInterval = 1
	}

	w := cfg.Writer
	if w == nil {
		w = os.Stdout
		if cfg.Target == "stderr" {
			w = os.Stderr
		}
	}

	return &Sink{
		cfg:    cfg,
		logger: deps.GetLoggerWithComponent("console-sink"),
		w:      w,
	}, nil
}

// Write renders one record into the buffer and commits when the interval
// is reached.
func (s *Sink) Write(rec message.Record, meta component.WriteMeta) error {
	if s.closed {
		return errors.WrapInvalid(errors.ErrSinkClosed, "ConsoleSink", "Write", "write after close")
	}

	if s.cfg.Meta {
		s.buf.WriteString(metaLine(rec, meta))
		s.buf.WriteByte('\n')
	} else if s.writes > 0 {
		s.buf.WriteString(sep)
		s.buf.WriteByte('\n')
	}

	r := &renderer{
		matched: meta.MatchedPaths,
		only:    s.cfg.MatchedOnly && len(meta.MatchedPaths) > 0,
		wrapS:   s.cfg.WrapStart,
		wrapE:   s.cfg.WrapEnd,
	}
	r.body(rec.Data)

	prefix := ""
	if s.cfg.SourcePrefix {
		d := ":"
		if meta.Context {
			d = "-"
		}
		prefix = rec.Topic + d
	}
	for _, line := range r.lines {
		s.buf.WriteString(prefix)
		s.buf.WriteString(line)
		s.buf.WriteByte('\n')
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

// Close commits the remaining buffer and rejects further writes.
func (s *Sink) Close() error {
	if s.closed {
		return nil
	}
	err := s.commit()
	s.closed = true
	s.logger.Debug("console output closed", "records", s.writes, "commits", s.commits)
	return err
}

func (s *Sink) commit() error {
	if s.pending == 0 {
		return nil
	}
	if _, err := s.w.Write(s.buf.Bytes()); err != nil {
		return errors.WrapTransient(err, "ConsoleSink", "commit", "write output")
	}
	s.buf.Reset()
	s.pending = 0
	s.commits++
	return nil
}

func metaLine(rec message.Record, meta component.WriteMeta) string {
	line := fmt.Sprintf("%s #%d %s %s %s",
		sep, meta.Index, rec.Topic, rec.Type, rec.Stamp.Format(time.RFC3339Nano))
	if meta.Context {
		line += " context"
	}
	return line
}

// renderer builds the indented body lines for one record. Paths use the
// same dotted syntax match results carry, so highlighting is an exact
// path comparison.
type renderer struct {
	lines   []string
	matched []string
	only    bool
	wrapS   string
	wrapE   string
}

func (r *renderer) add(depth int, text string) {
	r.lines = append(r.lines, strings.Repeat("  ", depth)+text)
}

func (r *renderer) body(v message.Value) {
	switch v.Kind() {
	case message.KindMap:
		r.fields(v, "", 0)
	case message.KindList:
		if scalarSeq(v) {
			parts := make([]string, 0, v.Len())
			for i := 0; i < v.Len(); i++ {
				parts = append(parts, r.leaf(v.Index(i), elemPath("", i)))
			}
			r.add(0, "["+strings.Join(parts, ", ")+"]")
			return
		}
		for i := 0; i < v.Len(); i++ {
			r.element(v.Index(i), elemPath("", i), 0)
		}
	case message.KindInvalid:
	default:
		r.add(0, r.leaf(v, ""))
	}
}

func (r *renderer) fields(v message.Value, path string, depth int) {
	for _, f := range v.Fields() {
		p := joinPath(path, f.Name)
		if r.only && !r.touches(p) {
			continue
		}
		r.field(f.Name, f.Value, p, depth)
	}
}

func (r *renderer) field(name string, v message.Value, path string, depth int) {
	switch v.Kind() {
	case message.KindMap:
		if v.Len() == 0 {
			r.add(depth, name+": {}")
			return
		}
		r.add(depth, name+":")
		r.fields(v, path, depth+1)
	case message.KindList:
		r.list(name, v, path, depth)
	default:
		r.add(depth, name+": "+r.leaf(v, path))
	}
}

func (r *renderer) list(name string, v message.Value, path string, depth int) {
	if v.Len() == 0 {
		r.add(depth, name+": []")
		return
	}
	if scalarSeq(v) {
		parts := make([]string, 0, v.Len())
		for i := 0; i < v.Len(); i++ {
			parts = append(parts, r.leaf(v.Index(i), elemPath(path, i)))
		}
		r.add(depth, name+": ["+strings.Join(parts, ", ")+"]")
		return
	}
	r.add(depth, name+":")
	for i := 0; i < v.Len(); i++ {
		p := elemPath(path, i)
		if r.only && !r.touches(p) {
			continue
		}
		r.element(v.Index(i), p, depth)
	}
}

// element renders one sequence item in block form, the dash spliced onto
// the item's first line.
func (r *renderer) element(v message.Value, path string, depth int) {
	switch v.Kind() {
	case message.KindMap:
		if v.Len() == 0 {
			r.add(depth, "- {}")
			return
		}
		start := len(r.lines)
		r.fields(v, path, depth+1)
		if len(r.lines) == start {
			return
		}
		indent := strings.Repeat("  ", depth)
		r.lines[start] = indent + "- " + strings.TrimPrefix(r.lines[start], indent+"  ")
	case message.KindList:
		r.add(depth, "- "+r.inline(v, path))
	default:
		r.add(depth, "- "+r.leaf(v, path))
	}
}

// inline renders nested sequences in single-line form.
func (r *renderer) inline(v message.Value, path string) string {
	switch v.Kind() {
	case message.KindList:
		parts := make([]string, 0, v.Len())
		for i := 0; i < v.Len(); i++ {
			parts = append(parts, r.inline(v.Index(i), elemPath(path, i)))
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case message.KindMap:
		parts := make([]string, 0, v.Len())
		for _, f := range v.Fields() {
			parts = append(parts, f.Name+": "+r.inline(f.Value, joinPath(path, f.Name)))
		}
		return "{" + strings.Join(parts, ", ") + "}"
	default:
		return r.leaf(v, path)
	}
}

func (r *renderer) leaf(v message.Value, path string) string {
	var text string
	switch v.Kind() {
	case message.KindString:
		text = strconv.Quote(v.StringValue())
	case message.KindInvalid:
		text = "null"
	default:
		text = v.LeafString()
	}
	if (r.wrapS != "" || r.wrapE != "") && r.isMatch(path) {
		return r.wrapS + text + r.wrapE
	}
	return text
}

func (r *renderer) isMatch(path string) bool {
	for _, m := range r.matched {
		if m == path {
			return true
		}
	}
	return false
}

// touches reports whether any matched path lies at or under path.
func (r *renderer) touches(path string) bool {
	for _, m := range r.matched {
		if m == path || strings.HasPrefix(m, path+".") || strings.HasPrefix(m, path+"[") {
			return true
		}
	}
	return false
}

func scalarSeq(v message.Value) bool {
	for i := 0; i < v.Len(); i++ {
		if k := v.Index(i).Kind(); k == message.KindMap || k == message.KindList {
			return false
		}
	}
	return true
}

func joinPath(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

func elemPath(prefix string, i int) string {
	return fmt.Sprintf("%s[%d]", prefix, i)
}

const optionsSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"properties": {
		"target": {
			"type": "string",
			"enum": ["stdout", "stderr"],
			"description": "Destination stream"
		},
		"commitInterval": {
			"type": "integer",
			"minimum": 1,
			"description": "Records buffered between writes to the destination"
		},
		"meta": {
			"type": "boolean",
			"description": "Print a meta line before each record"
		},
		"sourcePrefix": {
			"type": "boolean",
			"description": "Prefix body lines with the record topic"
		},
		"matchedOnly": {
			"type": "boolean",
			"description": "Drop fields without matched leaves"
		},
		"matchWrapper": {
			"description": "Highlight wrapper: one string for both sides, two for start and end, empty list disables",
			"anyOf": [
				{"type": "string"},
				{"type": "array", "items": {"type": "string"}, "maxItems": 2}
			]
		}
	},
	"additionalProperties": false
}`

// CreateSink builds a console sink from an options map.
func CreateSink(opts map[string]any, deps component.Dependencies) (component.Sink, error) {
	cfg := DefaultConfig()
	cfg.Target = component.GetString(opts, "target", cfg.Target)
	cfg.CommitInterval = component.GetInt(opts, types.OptionCommitInterval, cfg.CommitInterval)
	cfg.Meta = component.GetBool(opts, "meta", false)
	cfg.SourcePrefix = component.GetBool(opts, "sourcePrefix", false)
	cfg.MatchedOnly = component.GetBool(opts, "matchedOnly", false)
	if _, ok := opts["matchWrapper"]; ok {
		wraps := component.GetStringSlice(opts, "matchWrapper", nil)
		switch len(wraps) {
		case 0:
			cfg.WrapStart, cfg.WrapEnd = "", ""
		case 1:
			cfg.WrapStart, cfg.WrapEnd = wraps[0], wraps[0]
		default:
			cfg.WrapStart, cfg.WrapEnd = wraps[0], wraps[1]
		}
	}
	return NewSink(cfg, deps)
}

// Register adds the console sink kind to the registry.
func Register(registry *component.Registry) error {
	return registry.Register(component.Registration{
		Kind:          "console",
		Type:          types.ComponentTypeSink,
		Description:   "Renders matched records as indented text on stdout or stderr",
		Version:       "1.0.0",
		OptionsSchema: json.RawMessage(optionsSchema),
		NewSink:       CreateSink,
	})
}
