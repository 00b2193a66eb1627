// Package sample thins the stream of matched records before they reach the
// sinks. A Controller composes up to five policies in a fixed order per
// record: content deduplication, every-nth-message, every-nth-match,
// every-nth-interval, and a per-topic emit cap. All counters are per topic
// and monotonic; a denial at one stage never advances counters owned by a
// later stage.
//
// The Controller is not safe for concurrent use. The scan loop owns it and
// mutates it from a single goroutine.
package sample

import (
	"time"

	"github.com/c360/grepbag/message"
)

// Stage identifies the policy that denied a record.
type Stage int

const (
	StageNone Stage = iota
	StageDedup
	StageNthMessage
	StageNthMatch
	StageNthInterval
	StageMaxPerTopic
)

// String returns the stage name used in logs and metric labels.
func (s Stage) String() string {
	switch s {
	case StageNone:
		return "none"
	case StageDedup:
		return "dedup"
	case StageNthMessage:
		return "nth-message"
	case StageNthMatch:
		return "nth-match"
	case StageNthInterval:
		return "nth-interval"
	case StageMaxPerTopic:
		return "max-per-topic"
	default:
		return "unknown"
	}
}

// Config selects which policies are active. Zero values disable a policy.
type Config struct {
	// Unique suppresses records whose content digest was already seen on
	// the same topic.
	Unique bool

	// NthMessage admits a match only when the record is the Nth, 2Nth, ...
	// record pulled on its topic. The counter tracks every pulled record,
	// matched or not.
	NthMessage int

	// NthMatch admits only the Nth, 2Nth, ... matched record per topic.
	NthMatch int

	// NthInterval admits a match only when its stamp is at least this far
	// past the stamp of the last emitted record on the topic. Distances
	// come from record stamps, not wall clock.
	NthInterval time.Duration

	// MaxPerTopic caps the number of emitted records per topic.
	MaxPerTopic int
}

// Decision is the outcome of admitting one matched record.
type Decision struct {
	Emit   bool
	Denied Stage
}

// Stats are the per-topic counters accumulated over a run.
type Stats struct {
	Pulled  int
	Matched int
	Emitted int
}

type topicState struct {
	pulled   int
	matched  int
	emitted  int
	lastEmit time.Time
	hasEmit  bool
	digests  map[string]bool
}

// Controller applies the sampling and limit policies.
type Controller struct {
	cfg    Config
	topics map[string]*topicState
}

// New returns a Controller with the given policy configuration.
func New(cfg Config) *Controller {
	return &Controller{
		cfg:    cfg,
		topics: make(map[string]*topicState),
	}
}

func (c *Controller) state(topic string) *topicState {
	st, ok := c.topics[topic]
	if !ok {
		st = &topicState{}
		c.topics[topic] = st
	}
	return st
}

// NotePulled advances the per-topic message counter. Call it for every record
// pulled from the source, matched or not: the every-nth-message policy samples
// the full stream, not just the matches.
func (c *Controller) NotePulled(topic string) {
	c.state(topic).pulled++
}

// Admit runs the policy chain over a matched record and decides whether it is
// emitted. NotePulled must already have been called for the record.
func (c *Controller) Admit(rec message.Record) Decision {
	st := c.state(rec.Topic)

	if c.cfg.Unique {
		if st.digests == nil {
			st.digests = make(map[string]bool)
		}
		// Seen means observed, not emitted: the digest is recorded here
		// even when a later stage denies the record.
		d := message.Digest(rec.Data)
		if st.digests[d] {
			return Decision{Denied: StageDedup}
		}
		st.digests[d] = true
	}

	if n := c.cfg.NthMessage; n > 0 && st.pulled%n != 0 {
		return Decision{Denied: StageNthMessage}
	}

	st.matched++
	if n := c.cfg.NthMatch; n > 0 && st.matched%n != 0 {
		return Decision{Denied: StageNthMatch}
	}

	if iv := c.cfg.NthInterval; iv > 0 && st.hasEmit {
		if rec.Stamp.Sub(st.lastEmit) < iv {
			return Decision{Denied: StageNthInterval}
		}
	}

	if limit := c.cfg.MaxPerTopic; limit > 0 && st.emitted >= limit {
		return Decision{Denied: StageMaxPerTopic}
	}

	st.emitted++
	st.lastEmit = rec.Stamp
	st.hasEmit = true
	return Decision{Emit: true}
}

// ShouldStop reports whether every listed topic has reached the per-topic
// emit cap. The scan loop uses it as an early-stop hint on bounded sources;
// live sources cannot honor it and keep delivering until unsubscribed.
func (c *Controller) ShouldStop(topics []string) bool {
	if c.cfg.MaxPerTopic <= 0 || len(topics) == 0 {
		return false
	}
	for _, topic := range topics {
		st, ok := c.topics[topic]
		if !ok || st.emitted < c.cfg.MaxPerTopic {
			return false
		}
	}
	return true
}

// TopicStats returns the counters for one topic.
func (c *Controller) TopicStats(topic string) Stats {
	st, ok := c.topics[topic]
	if !ok {
		return Stats{}
	}
	return Stats{Pulled: st.pulled, Matched: st.matched, Emitted: st.emitted}
}

// Snapshot returns the counters for every topic seen so far.
func (c *Controller) Snapshot() map[string]Stats {
	out := make(map[string]Stats, len(c.topics))
	for topic, st := range c.topics {
		out[topic] = Stats{Pulled: st.pulled, Matched: st.matched, Emitted: st.emitted}
	}
	return out
}
