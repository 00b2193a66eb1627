package engine

import (
	"context"
	stderrors "errors"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/c360/grepbag/component"
	"github.com/c360/grepbag/errors"
	"github.com/c360/grepbag/message"
	"github.com/c360/grepbag/metric"
	"github.com/c360/grepbag/processor/condition"
	"github.com/c360/grepbag/processor/match"
	"github.com/c360/grepbag/processor/sample"
)

// StopCause says why a scan ended.
type StopCause string

const (
	// StopExhausted means the source delivered everything it had.
	StopExhausted StopCause = "exhausted"

	// StopCancelled means the run's context was cancelled.
	StopCancelled StopCause = "cancelled"

	// StopLimits means every configured limit was reached and the source
	// supported cutting delivery short.
	StopLimits StopCause = "limits"
)

// Options configures a Scanner run.
type Options struct {
	// Patterns are the field patterns a record must satisfy. Empty means
	// every record matches.
	Patterns []match.Spec

	// Match tunes pattern interpretation.
	Match match.Options

	// Conditions are boolean expressions over latest-record state. All of
	// them must hold for a record to match.
	Conditions []string

	// Sampling thins the matched stream before it reaches the sinks.
	Sampling sample.Config

	// Gate narrows which records are eligible to match at all.
	Gate GateConfig

	// MaxTotalMatches caps matches across all topics. Zero is unlimited.
	MaxTotalMatches int

	// Before and After emit up to that many unmatched neighbors around
	// every emitted match as context records.
	Before int
	After  int

	// Progress, when set, observes the counters after every pulled record.
	Progress ProgressFunc

	// Logger defaults to slog.Default. Metrics may be nil.
	Logger  *slog.Logger
	Metrics *metric.MetricsRegistry

	// Types is the run's type registry, shared with sinks that look up
	// descriptors. Nil gets a fresh registry.
	Types *message.Registry

	// SourceName labels source read errors in logs and metrics.
	SourceName string
}

// Summary reports one completed scan. It is valid even when Err is set.
type Summary struct {
	RunID    string
	Started  time.Time
	Duration time.Duration

	Pulled  int
	Matched int
	Emitted int

	// PerTopic holds the per-topic pulled/matched/emitted counters.
	PerTopic map[string]sample.Stats

	// Conflicts are the schema conflicts observed during the run.
	Conflicts []message.ConflictNotice

	// Degraded names the sinks that failed mid-run, if any.
	Degraded []string

	StopCause StopCause

	// Err is the sink shutdown error, nil when every sink closed clean.
	Err error
}

// Scanner drives one source through the scan pipeline: type resolution,
// condition cache, record gate, pattern match, sampling, and sink dispatch.
// A Scanner runs once; build a new one for a new run.
type Scanner struct {
	source  component.Source
	descs   component.DescriptorProvider
	mux     *Multiplexer
	opts    Options
	matcher *match.Matcher
	conds   *condition.Evaluator
	gate    *gate
	window  *contextWindow
	sampler *sample.Controller
	types   *message.Registry
	known   map[message.TypeKey]message.TypeID
	logger  *slog.Logger
	metrics *scanMetrics
	runID   string
}

// NewScanner compiles the patterns, conditions, and gate filters. Compile
// failures are invalid-class errors, raised here so a bad scan never pulls
// a record.
func NewScanner(source component.Source, mux *Multiplexer, opts Options) (*Scanner, error) {
	matcher, err := match.Compile(opts.Patterns, opts.Match)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Scanner", "NewScanner", "compile field patterns")
	}
	conds, err := condition.Parse(opts.Conditions)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Scanner", "NewScanner", "parse conditions")
	}
	g, err := newGate(opts.Gate)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Scanner", "NewScanner", "compile gate filters")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	types := opts.Types
	if types == nil {
		types = message.NewRegistry()
	}
	descs, _ := source.(component.DescriptorProvider)

	return &Scanner{
		source:  source,
		descs:   descs,
		mux:     mux,
		opts:    opts,
		matcher: matcher,
		conds:   conds,
		gate:    g,
		window:  newContextWindow(opts.Before, opts.After),
		sampler: sample.New(opts.Sampling),
		types:   types,
		known:   make(map[message.TypeKey]message.TypeID),
		logger:  logger.With("component", "Scanner"),
		metrics: newScanMetrics(opts.Metrics),
		runID:   uuid.NewString(),
	}, nil
}

// RunID returns this scan's unique identifier.
func (s *Scanner) RunID() string {
	return s.runID
}

// Scan pulls records until the source is exhausted, the context is
// cancelled, or every limit is reached on a source that can stop early.
// Sinks are flushed and closed exactly once on every path.
func (s *Scanner) Scan(ctx context.Context) Summary {
	started := time.Now()

	// EstimatedTotal opens lazy sources, so per-stream totals for
	// tail-relative index bounds become available right after.
	total := s.source.EstimatedTotal()
	if s.gate.needsTotals() {
		if tt, ok := s.source.(component.TopicTotaler); ok {
			s.gate.setTotals(tt.TopicTotals())
		}
	}
	earlyStop := s.source.SupportsEarlyStop()
	expected := s.expectedTopics()

	s.logger.Info("scan started",
		"run_id", s.runID,
		"estimated_total", total,
		"sinks", s.mux.Len())

	var (
		pulled, matched, emitted int

		cause  = StopExhausted
		topics []string
		seen   = make(map[string]bool)
	)

	for {
		if ctx.Err() != nil {
			cause = StopCancelled
			break
		}
		rec, err := s.source.Next(ctx)
		if err != nil {
			if stderrors.Is(err, io.EOF) {
				break
			}
			if ctx.Err() != nil {
				cause = StopCancelled
				break
			}
			s.logger.Warn("source read failed",
				"source", s.opts.SourceName,
				"error", err)
			s.metrics.recordReadError(s.opts.SourceName)
			continue
		}

		pulled++
		s.metrics.recordPulled(rec.Topic)
		s.resolveType(&rec)
		s.conds.Observe(rec)

		// maxedOut turns matching off while the stream keeps flowing:
		// conditions stay current and pending after-context drains.
		maxedOut := s.opts.MaxTotalMatches > 0 && matched >= s.opts.MaxTotalMatches

		if ok, selected := s.gate.admit(rec); selected {
			if !seen[rec.Topic] {
				seen[rec.Topic] = true
				topics = append(topics, rec.Topic)
			}
			s.sampler.NotePulled(rec.Topic)
			s.window.observe(rec)
			key := rec.TopicKey()

			wasMatch := false
			if ok && !maxedOut {
				res := s.matcher.Match(rec.Topic, rec.Data)
				if res.Matched && s.conds.Eval() == condition.VerdictTrue {
					wasMatch = true
					matched++
					s.metrics.recordMatched(rec.Topic)

					dec := s.sampler.Admit(rec)
					if dec.Emit {
						s.window.markMatch(key)
						for _, c := range s.window.takeBefore(key) {
							s.mux.Dispatch(c, component.WriteMeta{Context: true})
						}
						s.mux.Dispatch(rec, component.WriteMeta{MatchedPaths: res.Paths})
						emitted++
						s.metrics.recordEmitted(rec.Topic)
					} else {
						s.window.markSuppressed(key)
						s.metrics.recordSuppressed(rec.Topic, dec.Denied.String())
					}
				}
			}
			if !wasMatch {
				for _, c := range s.window.takeAfter(key) {
					s.mux.Dispatch(c, component.WriteMeta{Context: true})
				}
			}
		}

		if s.opts.Progress != nil {
			s.opts.Progress(Progress{
				Pulled:  pulled,
				Matched: matched,
				Emitted: emitted,
				Total:   total,
			})
		}

		stopTopics := topics
		if expected != nil {
			stopTopics = expected
		}
		if earlyStop && s.limitsReached(matched, stopTopics) && !s.window.pendingAfter() {
			cause = StopLimits
			break
		}
	}

	if err := s.source.Stop(); err != nil {
		s.logger.Warn("source stop failed", "error", err)
	}

	duration := time.Since(started)
	s.metrics.observeScanDuration(duration)

	summary := Summary{
		RunID:     s.runID,
		Started:   started,
		Duration:  duration,
		Pulled:    pulled,
		Matched:   matched,
		Emitted:   emitted,
		PerTopic:  s.sampler.Snapshot(),
		Conflicts: s.types.Conflicts(),
		StopCause: cause,
	}
	summary.Err = s.mux.CloseAll()
	summary.Degraded = s.mux.Degraded()

	s.logger.Info("scan finished",
		"run_id", s.runID,
		"cause", string(cause),
		"pulled", pulled,
		"matched", matched,
		"emitted", emitted,
		"conflicts", len(summary.Conflicts),
		"duration", duration)
	return summary
}

// limitsReached reports whether no further match can be emitted: the total
// cap is hit, or every listed topic has reached its per-topic cap.
func (s *Scanner) limitsReached(matched int, topics []string) bool {
	if s.opts.MaxTotalMatches > 0 && matched >= s.opts.MaxTotalMatches {
		return true
	}
	return s.sampler.ShouldStop(topics)
}

// expectedTopics lists the topics the source will deliver after topic and
// type filtering, when the source knows its streams up front. Sources that
// do not are judged on topics seen so far instead; a bag source announcing
// its streams keeps the per-topic cap from stopping the scan before every
// stream has been seen at all.
func (s *Scanner) expectedTopics() []string {
	tt, ok := s.source.(component.TopicTotaler)
	if !ok {
		return nil
	}
	totals := tt.TopicTotals()
	if len(totals) == 0 {
		return nil
	}
	seen := make(map[string]bool)
	var out []string
	for key := range totals {
		if !s.gate.admitsStream(key.Topic, key.Type) {
			continue
		}
		if !seen[key.Topic] {
			seen[key.Topic] = true
			out = append(out, key.Topic)
		}
	}
	return out
}

// resolveType assigns the record's TypeID, preferring the source's own
// schema descriptor and falling back to shape inference. A record arriving
// without a hash adopts the resolved descriptor's, so stream identity stays
// stable for the rest of the pipeline.
func (s *Scanner) resolveType(rec *message.Record) {
	if rec.SchemaHash != "" {
		if id, ok := s.known[rec.TypeKey()]; ok {
			rec.TypeID = id
			return
		}
	}

	var desc message.TypeDescriptor
	found := false
	if s.descs != nil {
		desc, found = s.descs.Descriptor(rec.Type, rec.SchemaHash)
	}
	if !found {
		desc = message.InferDescriptor(rec.Type, rec.Data)
		if rec.SchemaHash != "" {
			desc.SchemaHash = rec.SchemaHash
		}
	}

	known := s.types.Len()
	id := s.types.Register(desc, rec.Topic)
	rec.TypeID = id
	rec.SchemaHash = desc.SchemaHash
	s.known[desc.Key()] = id

	if s.types.Len() > known && len(s.types.Resolve(rec.Type)) > 1 {
		s.metrics.recordTypeConflict()
		s.logger.Warn("schema conflict",
			"type", rec.Type,
			"topic", rec.Topic,
			"hash", desc.SchemaHash)
	}
}
