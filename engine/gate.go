package engine

import (
	"regexp"
	"time"

	"github.com/c360/grepbag/message"
	"github.com/c360/grepbag/processor/match"
)

// GateConfig narrows which records are eligible for matching before any
// pattern work happens. The zero value admits everything.
type GateConfig struct {
	// Topics are include patterns on topic names, "*"-wildcarded; empty
	// admits every topic. SkipTopics reject even included ones.
	Topics     []string
	SkipTopics []string

	// Types and SkipTypes filter the same way on the record's type name.
	Types     []string
	SkipTypes []string

	// From and To bound record stamps inclusively. Zero means unbounded.
	From time.Time
	To   time.Time

	// StartIndex and EndIndex bound the per-stream record ordinal. Bounds
	// follow slice conventions: StartIndex 2 skips the first two records
	// of each stream, EndIndex 10 stops after the tenth. Negative bounds
	// count from the stream tail and need per-topic totals from the
	// source; without totals they are inert, which is all a live source
	// can offer.
	StartIndex int
	EndIndex   int
}

// gate applies GateConfig to the pulled stream. Records rejected on topic or
// type are outside the scan entirely; records rejected on time or ordinal
// stay part of their stream and remain eligible as context for a nearby
// match, they just cannot match themselves.
type gate struct {
	topics     []*regexp.Regexp
	skipTopics []*regexp.Regexp
	types      []*regexp.Regexp
	skipTypes  []*regexp.Regexp
	from, to   time.Time
	startIdx   int
	endIdx     int
	counts     map[message.TopicKey]int
	totals     map[message.TopicKey]int
}

func newGate(cfg GateConfig) (*gate, error) {
	g := &gate{
		from:     cfg.From,
		to:       cfg.To,
		startIdx: cfg.StartIndex,
		endIdx:   cfg.EndIndex,
		counts:   make(map[message.TopicKey]int),
	}
	var err error
	if g.topics, err = compileFilters(cfg.Topics); err != nil {
		return nil, err
	}
	if g.skipTopics, err = compileFilters(cfg.SkipTopics); err != nil {
		return nil, err
	}
	if g.types, err = compileFilters(cfg.Types); err != nil {
		return nil, err
	}
	if g.skipTypes, err = compileFilters(cfg.SkipTypes); err != nil {
		return nil, err
	}
	return g, nil
}

func compileFilters(patterns []string) ([]*regexp.Regexp, error) {
	if len(patterns) == 0 {
		return nil, nil
	}
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := match.CompileWildcard(p)
		if err != nil {
			return nil, err
		}
		out = append(out, re)
	}
	return out, nil
}

// admitsStream reports whether records on the stream would pass the topic
// and type filters.
func (g *gate) admitsStream(topic, typeName string) bool {
	return passFilters(g.topics, g.skipTopics, topic) &&
		passFilters(g.types, g.skipTypes, typeName)
}

// needsTotals reports whether any configured bound counts from the tail.
func (g *gate) needsTotals() bool {
	return g.startIdx < 0 || g.endIdx < 0
}

// setTotals supplies per-stream record totals for tail-relative bounds.
func (g *gate) setTotals(totals map[message.TopicKey]int) {
	g.totals = totals
}

// admit decides one record's standing. ok means the record may be matched.
// selected means the record belongs to one of the scan's streams: it
// advances that stream's ordinal and enters the context window even when
// time or ordinal range rejected it.
func (g *gate) admit(rec message.Record) (ok, selected bool) {
	if !passFilters(g.topics, g.skipTopics, rec.Topic) {
		return false, false
	}
	if !passFilters(g.types, g.skipTypes, rec.Type) {
		return false, false
	}

	key := rec.TopicKey()
	g.counts[key]++
	index := g.counts[key]

	if !g.from.IsZero() && rec.Stamp.Before(g.from) {
		return false, true
	}
	if !g.to.IsZero() && rec.Stamp.After(g.to) {
		return false, true
	}
	if !g.admitIndex(key, index) {
		return false, true
	}
	return true, true
}

func passFilters(include, skip []*regexp.Regexp, name string) bool {
	if len(include) > 0 {
		found := false
		for _, re := range include {
			if re.MatchString(name) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	for _, re := range skip {
		if re.MatchString(name) {
			return false
		}
	}
	return true
}

func (g *gate) admitIndex(key message.TopicKey, index int) bool {
	if g.startIdx != 0 {
		lo := g.startIdx
		if lo < 0 {
			if total, known := g.totals[key]; known {
				lo += total
			} else {
				lo = 0
			}
		}
		if lo < 0 {
			lo = 0
		}
		if index <= lo {
			return false
		}
	}
	if g.endIdx != 0 {
		hi := g.endIdx
		if hi < 0 {
			total, known := g.totals[key]
			if !known {
				return true
			}
			hi += total
		}
		if index > hi {
			return false
		}
	}
	return true
}
