package bagfile

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/c360/grepbag/component"
	"github.com/c360/grepbag/errors"
	"github.com/c360/grepbag/message"
	"github.com/c360/grepbag/types"
)

const (
	// bagExtension is the file suffix directory expansion and watch mode
	// select on.
	bagExtension = ".jsonl"

	// maxLineBytes bounds a single envelope line. A longer line aborts the
	// file it appears in.
	maxLineBytes = 32 * 1024 * 1024

	initialLineBuffer = 64 * 1024
)

// Config selects the bags a Source reads.
type Config struct {
	// Paths are bag files or directories, read in listed order. A directory
	// expands to its .jsonl files sorted by name.
	Paths []string

	// Watch keeps the source alive after the initial directory contents are
	// drained, reading newly created bags as they appear. Requires exactly
	// one directory path.
	Watch bool

	// IdleTimeout ends a watching stream after this long without a new bag.
	// Zero waits until the run is stopped.
	IdleTimeout time.Duration
}

// Validate checks the configuration shape. Path existence is checked at
// open, not here.
func (c Config) Validate() error {
	if len(c.Paths) == 0 {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate",
			"at least one bag path required")
	}
	for _, p := range c.Paths {
		if strings.TrimSpace(p) == "" {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
				"empty bag path")
		}
	}
	if c.Watch && len(c.Paths) != 1 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"watch mode takes exactly one directory path")
	}
	if c.IdleTimeout < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"idle timeout cannot be negative")
	}
	return nil
}

// Source reads envelope lines from recorded bags.
type Source struct {
	cfg    Config
	logger *slog.Logger

	mu              sync.Mutex
	opened          bool
	stopped         bool
	openErr         error
	openErrReported bool

	files   []string
	fileIdx int
	cur     *os.File
	lines   *bufio.Scanner
	curPath string
	lineNo  int

	descs  map[message.TypeKey]message.TypeDescriptor
	total  int
	totals map[message.TopicKey]int

	pending   chan string
	stopCh    chan struct{}
	watchStop func()
}

var _ component.Source = (*Source)(nil)
var _ component.DescriptorProvider = (*Source)(nil)
var _ component.TopicTotaler = (*Source)(nil)

// NewSource creates a bag source. Files are opened lazily on the first Next
// or EstimatedTotal call.
func NewSource(cfg Config, deps component.Dependencies) (*Source, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "BagSource", "NewSource", "config validation")
	}
	return &Source{
		cfg:    cfg,
		logger: deps.GetLoggerWithComponent("bagfile-source"),
		descs:  make(map[message.TypeKey]message.TypeDescriptor),
		stopCh: make(chan struct{}),
	}, nil
}

// Next returns the next record across the configured bags. Schema lines feed
// the descriptor table and are not returned.
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
		if s.isStopped() {
			s.closeCurrent()
			return message.Record{}, io.EOF
		}

		if s.lines == nil {
			ok, err := s.advance(ctx)
			if err != nil {
				return message.Record{}, err
			}
			if !ok {
				return message.Record{}, io.EOF
			}
			continue
		}

		rec, ok, err := s.scanLine()
		if err != nil {
			return message.Record{}, err
		}
		if ok {
			return rec, nil
		}
	}
}

// EstimatedTotal reports the number of message lines counted across the
// configured bags, or -1 when any bag could not be counted or the source is
// watching.
func (s *Source) EstimatedTotal() int {
	if err := s.ensureOpen(); err != nil {
		return -1
	}
	return s.total
}

// SupportsEarlyStop reports true for bounded file lists. A watching source
// keeps delivering until stopped.
func (s *Source) SupportsEarlyStop() bool {
	return !s.cfg.Watch
}

// TopicTotals returns per-stream message counts from the pre-scan, or nil
// when they are unavailable.
func (s *Source) TopicTotals() map[message.TopicKey]int {
	if err := s.ensureOpen(); err != nil {
		return nil
	}
	return s.totals
}

// Descriptor returns the schema announced for a type variant, when one of
// the bags carried it.
func (s *Source) Descriptor(typeName, schemaHash string) (message.TypeDescriptor, bool) {
	desc, ok := s.descs[message.TypeKey{Name: typeName, SchemaHash: schemaHash}]
	return desc, ok
}

// Stop releases the source. After Stop, Next returns io.EOF. Idempotent.
func (s *Source) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return nil
	}
	s.stopped = true
	close(s.stopCh)
	if s.watchStop != nil {
		s.watchStop()
	}
	if s.cur != nil {
		_ = s.cur.Close()
		s.cur = nil
	}
	s.lines = nil
	return nil
}

func (s *Source) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

func (s *Source) ensureOpen() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.opened {
		return s.openErr
	}
	s.opened = true
	if s.cfg.Watch {
		s.openErr = s.openWatch()
	} else {
		s.openErr = s.openFiles()
	}
	return s.openErr
}

// openFiles resolves the configured paths and pre-scans every regular file,
// counting message lines per stream and collecting announced schemas.
func (s *Source) openFiles() error {
	files, err := resolvePaths(s.cfg.Paths)
	if err != nil {
		return errors.Wrap(err, "BagSource", "openFiles", "resolve bag paths")
	}
	s.files = files

	s.totals = make(map[message.TopicKey]int)
	counted := true
	for _, path := range files {
		info, err := os.Stat(path)
		if err != nil || !info.Mode().IsRegular() {
			counted = false
			continue
		}
		if err := s.preScan(path); err != nil {
			s.logger.Warn("bag pre-scan failed", "path", path, "error", err)
			counted = false
		}
	}
	if !counted {
		s.total = -1
		s.totals = nil
	}

	s.logger.Info("bag files resolved", "files", len(files), "estimated_total", s.total)
	return nil
}

// openWatch validates the watch directory, lists its existing bags and
// starts the watcher pump.
func (s *Source) openWatch() error {
	dir := s.cfg.Paths[0]
	info, err := os.Stat(dir)
	if err != nil {
		return errors.Wrap(err, "BagSource", "openWatch", "stat watch directory")
	}
	if !info.IsDir() {
		return errors.WrapInvalid(fmt.Errorf("watch path %s is not a directory", dir),
			"BagSource", "openWatch", "watch directory check")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "BagSource", "openWatch", "create watcher")
	}
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return errors.Wrap(err, "BagSource", "openWatch", "watch directory")
	}
	existing, err := listBags(dir)
	if err != nil {
		_ = watcher.Close()
		return errors.Wrap(err, "BagSource", "openWatch", "list existing bags")
	}

	s.total = -1
	s.pending = make(chan string)
	done := make(chan struct{})
	s.watchStop = func() { close(done) }
	go s.pumpBags(watcher, existing, done)

	s.logger.Info("watching bag directory", "dir", dir, "existing", len(existing))
	return nil
}

// pumpBags feeds existing and newly created bags to the read loop in arrival
// order. It owns the watcher and the pending channel.
func (s *Source) pumpBags(watcher *fsnotify.Watcher, queue []string, done <-chan struct{}) {
	defer func() { _ = watcher.Close() }()
	defer close(s.pending)

	seen := make(map[string]bool, len(queue))
	for _, p := range queue {
		seen[p] = true
	}
	for {
		var out chan string
		var next string
		if len(queue) > 0 {
			out = s.pending
			next = queue[0]
		}
		select {
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !ev.Has(fsnotify.Create) || !strings.HasSuffix(ev.Name, bagExtension) || seen[ev.Name] {
				continue
			}
			seen[ev.Name] = true
			queue = append(queue, ev.Name)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			s.logger.Warn("bag watcher error", "error", err)
		case out <- next:
			queue = queue[1:]
		case <-done:
			return
		}
	}
}

// advance opens the next bag. It returns false when the stream is exhausted.
func (s *Source) advance(ctx context.Context) (bool, error) {
	var path string
	if s.cfg.Watch {
		p, ok, err := s.waitForBag(ctx)
		if err != nil || !ok {
			return false, err
		}
		path = p
	} else {
		if s.fileIdx >= len(s.files) {
			return false, nil
		}
		path = s.files[s.fileIdx]
		s.fileIdx++
	}

	f, err := os.Open(path)
	if err != nil {
		return false, errors.Wrap(err, "BagSource", "Next", "open bag")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		_ = f.Close()
		return false, nil
	}
	s.cur = f
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, initialLineBuffer), maxLineBytes)
	s.lines = sc
	s.curPath = path
	s.lineNo = 0
	s.logger.Info("reading bag", "path", path)
	return true, nil
}

// waitForBag blocks until the watcher delivers a new bag, the idle timeout
// passes, or the source is stopped or cancelled.
func (s *Source) waitForBag(ctx context.Context) (string, bool, error) {
	var idleC <-chan time.Time
	if s.cfg.IdleTimeout > 0 {
		timer := time.NewTimer(s.cfg.IdleTimeout)
		defer timer.Stop()
		idleC = timer.C
	}
	select {
	case <-ctx.Done():
		return "", false, ctx.Err()
	case <-s.stopCh:
		return "", false, nil
	case path, ok := <-s.pending:
		if !ok {
			return "", false, nil
		}
		return path, true, nil
	case <-idleC:
		s.logger.Info("no new bags within idle timeout, ending stream",
			"idle_timeout", s.cfg.IdleTimeout)
		return "", false, nil
	}
}

// scanLine consumes lines of the current bag until it yields a record or the
// file ends. ok is false when the file is exhausted and closed.
func (s *Source) scanLine() (message.Record, bool, error) {
	for s.lines.Scan() {
		s.lineNo++
		line := bytes.TrimSpace(s.lines.Bytes())
		if len(line) == 0 {
			continue
		}
		env, err := message.ParseEnvelope(line)
		if err != nil {
			return message.Record{}, false, errors.Wrap(err, "BagSource", "Next",
				fmt.Sprintf("line %d of %s", s.lineNo, s.curPath))
		}
		switch env.Kind {
		case message.EnvelopeSchema:
			desc, err := env.Descriptor()
			if err != nil {
				return message.Record{}, false, errors.Wrap(err, "BagSource", "Next",
					fmt.Sprintf("schema line %d of %s", s.lineNo, s.curPath))
			}
			s.descs[desc.Key()] = desc
		case message.EnvelopeMessage:
			rec, err := env.Record()
			if err != nil {
				return message.Record{}, false, errors.Wrap(err, "BagSource", "Next",
					fmt.Sprintf("message line %d of %s", s.lineNo, s.curPath))
			}
			return rec, true, nil
		}
	}

	err := s.lines.Err()
	path := s.curPath
	s.closeCurrent()
	if err != nil {
		return message.Record{}, false, errors.Wrap(err, "BagSource", "Next",
			fmt.Sprintf("read %s", path))
	}
	return message.Record{}, false, nil
}

func (s *Source) closeCurrent() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur != nil {
		_ = s.cur.Close()
		s.cur = nil
	}
	s.lines = nil
}

// lineHeader is the cheap pre-scan decode: envelope identity without the
// data tree.
type lineHeader struct {
	Kind  string `json:"kind"`
	Topic string `json:"topic"`
	Type  string `json:"type"`
	Hash  string `json:"hash"`
}

// preScan counts message lines per stream and collects schema descriptors.
// Malformed lines are left for the read pass to report.
func (s *Source) preScan(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, initialLineBuffer), maxLineBytes)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var h lineHeader
		if err := json.Unmarshal(line, &h); err != nil {
			continue
		}
		switch h.Kind {
		case message.EnvelopeMessage:
			s.total++
			s.totals[message.TopicKey{Topic: h.Topic, Type: h.Type, SchemaHash: h.Hash}]++
		case message.EnvelopeSchema:
			env, err := message.ParseEnvelope(line)
			if err != nil {
				continue
			}
			if desc, err := env.Descriptor(); err == nil {
				s.descs[desc.Key()] = desc
			}
		}
	}
	return sc.Err()
}

// resolvePaths expands directory entries to their .jsonl files sorted by
// name, keeping explicit file paths as listed.
func resolvePaths(paths []string) ([]string, error) {
	var out []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err == nil && info.IsDir() {
			bags, err := listBags(p)
			if err != nil {
				return nil, err
			}
			out = append(out, bags...)
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func listBags(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list bag directory %s: %w", dir, err)
	}
	var bags []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), bagExtension) {
			continue
		}
		bags = append(bags, filepath.Join(dir, e.Name()))
	}
	sort.Strings(bags)
	return bags, nil
}

const optionsSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"properties": {
		"paths": {
			"description": "Bag files or directories, read in listed order",
			"anyOf": [
				{"type": "string"},
				{"type": "array", "items": {"type": "string"}, "minItems": 1}
			]
		},
		"watch": {
			"type": "boolean",
			"description": "Watch a single directory for newly created bags"
		},
		"idleTimeout": {
			"description": "Watch mode: end the stream after this long without a new bag (duration string or seconds)",
			"anyOf": [{"type": "string"}, {"type": "number"}]
		}
	},
	"required": ["paths"],
	"additionalProperties": false
}`

// CreateSource builds a bag source from an options map.
func CreateSource(opts map[string]any, deps component.Dependencies) (component.Source, error) {
	cfg := Config{
		Paths:       component.GetStringSlice(opts, "paths", nil),
		Watch:       component.GetBool(opts, "watch", false),
		IdleTimeout: component.GetDuration(opts, "idleTimeout", 0),
	}
	return NewSource(cfg, deps)
}

// Register adds the bagfile source kind to the registry.
func Register(registry *component.Registry) error {
	return registry.Register(component.Registration{
		Kind:          "bagfile",
		Type:          types.ComponentTypeSource,
		Description:   "Reads records from recorded bags (JSON Lines envelopes)",
		Version:       "1.0.0",
		OptionsSchema: json.RawMessage(optionsSchema),
		NewSource:     CreateSource,
	})
}
