package htmlreport

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/c360/grepbag/component"
	"github.com/c360/grepbag/errors"
	"github.com/c360/grepbag/message"
	"github.com/c360/grepbag/types"
)

// Config controls the report destination and layout.
type Config struct {
	// Path is the report file. Parent directories are created on demand.
	Path string

	// Title heads the report. Empty uses the default.
	Title string

	// TemplateRef points at a template file replacing the embedded page
	// layout. Loaded on the first write.
	TemplateRef string

	// CommitInterval rewrites the document every this many records. Zero
	// writes it only on Flush and Close.
	CommitInterval int
}

// DefaultConfig returns the report defaults.
func DefaultConfig() Config {
	return Config{Title: "grepbag report"}
}

// Validate checks the configuration shape.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Path) == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate",
			"report path required")
	}
	if c.CommitInterval < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"commit interval cannot be negative")
	}
	return nil
}

// Report is the data a report template executes against.
type Report struct {
	// Title heads the document.
	Title string

	// Records is the number of entries across all sections.
	Records int

	// Generated is the render time in RFC 3339 text.
	Generated string

	// Topics holds one section per topic, in first-seen order.
	Topics []*TopicSection
}

// TopicSection groups the entries of one topic.
type TopicSection struct {
	// Topic is the record topic naming the section.
	Topic string

	// Types lists the distinct type names seen on the topic.
	Types []string

	// Entries are the records written for the topic, in write order.
	Entries []Entry
}

// Entry is one rendered record.
type Entry struct {
	// Index is the run-wide emit ordinal.
	Index int

	// Type is the record's type name.
	Type string

	// Stamp is the record stamp in RFC 3339 text.
	Stamp string

	// Context marks records emitted as surrounding context rather than
	// matches.
	Context bool

	// Body is the escaped field tree, matched leaves wrapped in <mark>.
	Body template.HTML
}

// Sink accumulates records and writes them as one HTML document.
type Sink struct {
	cfg    Config
	logger *slog.Logger

	tmpl     *template.Template
	tmplErr  error
	loaded   bool
	sections map[string]*TopicSection
	order    []string

	pending int
	writes  int
	commits int
	closed  bool
}

var _ component.Sink = (*Sink)(nil)

// NewSink creates a report sink. Nothing touches the filesystem until the
// first commit.
func NewSink(cfg Config, deps component.Dependencies) (*Sink, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "HTMLSink", "NewSink", "config validation")
	}
	if cfg.Title == "" {
		cfg.Title = DefaultConfig().Title
	}
	return &Sink{
		cfg:      cfg,
		logger:   deps.GetLoggerWithComponent("html-sink"),
		sections: make(map[string]*TopicSection),
	}, nil
}

// Write renders the record into its topic section.
func (s *Sink) Write(rec message.Record, meta component.WriteMeta) error {
	if s.closed {
		return errors.WrapInvalid(errors.ErrSinkClosed, "HTMLSink", "Write", "write after close")
	}
	if err := s.ensureTemplate(); err != nil {
		return err
	}

	section, ok := s.sections[rec.Topic]
	if !ok {
		section = &TopicSection{Topic: rec.Topic}
		s.sections[rec.Topic] = section
		s.order = append(s.order, rec.Topic)
		s.logger.Debug("new report section", "topic", rec.Topic)
	}
	if !contains(section.Types, rec.Type) {
		section.Types = append(section.Types, rec.Type)
	}
	section.Entries = append(section.Entries, Entry{
		Index:   meta.Index,
		Type:    rec.Type,
		Stamp:   rec.Stamp.Format(time.RFC3339Nano),
		Context: meta.Context,
		Body:    renderBody(rec.Data, meta.MatchedPaths),
	})

	s.writes++
	s.pending++
	if s.cfg.CommitInterval > 0 && s.pending >= s.cfg.CommitInterval {
		return s.commit()
	}
	return nil
}

// Flush writes the document covering everything so far.
func (s *Sink) Flush() error {
	if s.closed {
		return nil
	}
	return s.commit()
}

// Close writes the final document and rejects further writes. Idempotent.
func (s *Sink) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	err := s.commit()
	s.logger.Info("html report closed",
		"path", s.cfg.Path,
		"records", s.writes,
		"topics", len(s.order),
		"commits", s.commits)
	return err
}

// commit renders the whole document and replaces the file.
func (s *Sink) commit() error {
	if s.pending == 0 {
		return nil
	}

	report := Report{
		Title:     s.cfg.Title,
		Records:   s.writes,
		Generated: time.Now().Format(time.RFC3339),
	}
	for _, topic := range s.order {
		report.Topics = append(report.Topics, s.sections[topic])
	}

	var buf bytes.Buffer
	if err := s.tmpl.Execute(&buf, report); err != nil {
		return errors.Wrap(err, "HTMLSink", "commit", "execute template")
	}

	if dir := filepath.Dir(s.cfg.Path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errors.WrapFatal(err, "HTMLSink", "commit", "create parent directory")
		}
	}
	if err := os.WriteFile(s.cfg.Path, buf.Bytes(), 0644); err != nil {
		return errors.WrapTransient(err, "HTMLSink", "commit", "write "+s.cfg.Path)
	}

	s.pending = 0
	s.commits++
	return nil
}

// ensureTemplate resolves the page template once. A load failure persists so
// every write fails the same way.
func (s *Sink) ensureTemplate() error {
	if s.loaded {
		return s.tmplErr
	}
	s.loaded = true

	if s.cfg.TemplateRef == "" {
		s.tmpl = defaultTmpl
		return nil
	}
	content, err := os.ReadFile(s.cfg.TemplateRef)
	if err != nil {
		s.tmplErr = errors.WrapInvalid(err, "HTMLSink", "ensureTemplate",
			"read template "+s.cfg.TemplateRef)
		return s.tmplErr
	}
	tmpl, err := template.New("report").Parse(string(content))
	if err != nil {
		s.tmplErr = errors.WrapInvalid(err, "HTMLSink", "ensureTemplate",
			"parse template "+s.cfg.TemplateRef)
		return s.tmplErr
	}
	s.tmpl = tmpl
	s.logger.Debug("report template loaded", "template", s.cfg.TemplateRef)
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// renderBody builds the escaped field tree for one record. The layout mirrors
// the console rendering: two-space indent, quoted strings, inline scalar
// sequences, block sequences of mappings.
func renderBody(data message.Value, matchedPaths []string) template.HTML {
	r := &htmlRenderer{matched: matchedPaths}
	r.body(data)
	return template.HTML(strings.Join(r.lines, "\n"))
}

// htmlRenderer walks a value tree into escaped lines, matched leaves wrapped
// in <mark>. Paths use the dotted syntax match results carry.
type htmlRenderer struct {
	lines   []string
	matched []string
}

func (r *htmlRenderer) add(depth int, text string) {
	r.lines = append(r.lines, strings.Repeat("  ", depth)+text)
}

func (r *htmlRenderer) body(v message.Value) {
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

func (r *htmlRenderer) fields(v message.Value, path string, depth int) {
	for _, f := range v.Fields() {
		r.field(f.Name, f.Value, joinPath(path, f.Name), depth)
	}
}

func (r *htmlRenderer) field(name string, v message.Value, path string, depth int) {
	esc := template.HTMLEscapeString(name)
	switch v.Kind() {
	case message.KindMap:
		if v.Len() == 0 {
			r.add(depth, esc+": {}")
			return
		}
		r.add(depth, esc+":")
		r.fields(v, path, depth+1)
	case message.KindList:
		r.list(esc, v, path, depth)
	default:
		r.add(depth, esc+": "+r.leaf(v, path))
	}
}

func (r *htmlRenderer) list(escName string, v message.Value, path string, depth int) {
	if v.Len() == 0 {
		r.add(depth, escName+": []")
		return
	}
	if scalarSeq(v) {
		parts := make([]string, 0, v.Len())
		for i := 0; i < v.Len(); i++ {
			parts = append(parts, r.leaf(v.Index(i), elemPath(path, i)))
		}
		r.add(depth, escName+": ["+strings.Join(parts, ", ")+"]")
		return
	}
	r.add(depth, escName+":")
	for i := 0; i < v.Len(); i++ {
		r.element(v.Index(i), elemPath(path, i), depth)
	}
}

func (r *htmlRenderer) element(v message.Value, path string, depth int) {
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

func (r *htmlRenderer) inline(v message.Value, path string) string {
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
			parts = append(parts, template.HTMLEscapeString(f.Name)+": "+
				r.inline(f.Value, joinPath(path, f.Name)))
		}
		return "{" + strings.Join(parts, ", ") + "}"
	default:
		return r.leaf(v, path)
	}
}

func (r *htmlRenderer) leaf(v message.Value, path string) string {
	var text string
	switch v.Kind() {
	case message.KindString:
		text = strconv.Quote(v.StringValue())
	case message.KindInvalid:
		text = "null"
	default:
		text = v.LeafString()
	}
	text = template.HTMLEscapeString(text)
	if r.isMatch(path) {
		return "<mark>" + text + "</mark>"
	}
	return text
}

func (r *htmlRenderer) isMatch(path string) bool {
	for _, m := range r.matched {
		if m == path {
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

var defaultTmpl = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: -apple-system, "Segoe UI", Roboto, sans-serif; margin: 2em; color: #1c1e21; }
h1 { border-bottom: 2px solid #e4e6e8; padding-bottom: 0.3em; }
h2 { margin-top: 1.5em; color: #2c3e50; }
h2 .count { font-size: 0.7em; color: #5f6368; font-weight: normal; }
.summary { color: #5f6368; }
.entry { border: 1px solid #e4e6e8; border-radius: 4px; margin: 0.8em 0; }
.entry-meta { background: #f6f8fa; padding: 0.4em 0.8em; font-size: 0.85em; color: #5f6368; }
.entry-meta .context { color: #9a6700; }
.entry pre { margin: 0; padding: 0.8em; overflow-x: auto; font-size: 0.9em; }
mark { background: #fff3a3; padding: 0 2px; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
<p class="summary">{{.Records}} records in {{len .Topics}} topics, generated {{.Generated}}</p>
{{range .Topics}}
<h2>{{.Topic}} <span class="count">({{len .Entries}})</span></h2>
{{range .Entries}}
<div class="entry">
<div class="entry-meta">#{{.Index}} {{.Type}} {{.Stamp}}{{if .Context}} <span class="context">context</span>{{end}}</div>
<pre>{{.Body}}</pre>
</div>
{{end}}
{{end}}
</body>
</html>
`))

const optionsSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"properties": {
		"path": {
			"description": "Report file path",
			"type": "string",
			"minLength": 1
		},
		"title": {
			"description": "Report title",
			"type": "string"
		},
		"templateRef": {
			"description": "Template file replacing the embedded page layout",
			"type": "string",
			"minLength": 1
		},
		"commitInterval": {
			"description": "Rewrite the document every this many records",
			"type": "integer",
			"minimum": 1
		}
	},
	"required": ["path"],
	"additionalProperties": false
}`

// CreateSink builds a report sink from an options map.
func CreateSink(opts map[string]any, deps component.Dependencies) (component.Sink, error) {
	cfg := DefaultConfig()
	cfg.Path = component.GetString(opts, "path", "")
	cfg.Title = component.GetString(opts, "title", cfg.Title)
	cfg.TemplateRef = component.GetString(opts, types.OptionTemplateRef, "")
	cfg.CommitInterval = component.GetInt(opts, types.OptionCommitInterval, 0)
	return NewSink(cfg, deps)
}

// Register adds the htmlreport sink kind to the registry.
func Register(registry *component.Registry) error {
	return registry.Register(component.Registration{
		Kind:          "htmlreport",
		Type:          types.ComponentTypeSink,
		Description:   "Collects matched records into a standalone HTML report",
		Version:       "1.0.0",
		OptionsSchema: json.RawMessage(optionsSchema),
		NewSink:       CreateSink,
	})
}
