package engine

import (
	"github.com/c360/grepbag/message"
)

type entryStatus int

const (
	statusNone       entryStatus = iota // retained, not emitted
	statusMatch                         // emitted as a match
	statusContext                       // emitted as context
	statusSuppressed                    // sampler-suppressed match
)

type windowEntry struct {
	rec    message.Record
	status entryStatus
}

// contextWindow retains the tail of every stream so an emitted match can be
// framed by its neighbors: the unemitted predecessors go out right before
// the match, the successors trail out one by one as they arrive. Streams are
// independent; a match on one topic never pulls context from another.
type contextWindow struct {
	before  int
	after   int
	depth   int
	streams map[message.TopicKey][]windowEntry
}

func newContextWindow(before, after int) *contextWindow {
	w := &contextWindow{before: before, after: after}
	if w.enabled() {
		w.depth = max(before, after) + 1
		w.streams = make(map[message.TopicKey][]windowEntry)
	}
	return w
}

func (w *contextWindow) enabled() bool {
	return w.before > 0 || w.after > 0
}

// observe appends a selected record to its stream's window, dropping
// anything older than the window depth.
func (w *contextWindow) observe(rec message.Record) {
	if !w.enabled() {
		return
	}
	key := rec.TopicKey()
	entries := append(w.streams[key], windowEntry{rec: rec})
	if over := len(entries) - w.depth; over > 0 {
		entries = append(entries[:0], entries[over:]...)
	}
	w.streams[key] = entries
}

// markMatch flags the stream's newest record as an emitted match. Call it
// before takeBefore so the match itself is not returned as its own context.
func (w *contextWindow) markMatch(key message.TopicKey) {
	if !w.enabled() {
		return
	}
	if entries := w.streams[key]; len(entries) > 0 {
		entries[len(entries)-1].status = statusMatch
	}
}

// markSuppressed flags the stream's newest record as a sampler-suppressed
// match. Suppressed matches neither anchor after-context nor come back as
// context records themselves.
func (w *contextWindow) markSuppressed(key message.TopicKey) {
	if !w.enabled() {
		return
	}
	if entries := w.streams[key]; len(entries) > 0 {
		entries[len(entries)-1].status = statusSuppressed
	}
}

// takeBefore returns the unemitted predecessors within reach of the
// stream's newest record, oldest first, marking them emitted as context.
func (w *contextWindow) takeBefore(key message.TopicKey) []message.Record {
	if w.before <= 0 {
		return nil
	}
	return w.drain(key, w.before+1)
}

// takeAfter returns the stream's unemitted tail when a match sits within
// reach of it, marking the returned records emitted as context. The newest
// record is part of the tail, so calling this once per pulled record drains
// a match's after-context incrementally.
func (w *contextWindow) takeAfter(key message.TopicKey) []message.Record {
	if w.after <= 0 {
		return nil
	}
	if !hasStatus(w.streams[key], w.after+1, statusMatch, false) {
		return nil
	}
	return w.drain(key, w.after)
}

func (w *contextWindow) drain(key message.TopicKey, span int) []message.Record {
	entries := w.streams[key]
	if span > len(entries) {
		span = len(entries)
	}
	var out []message.Record
	for i := len(entries) - span; i < len(entries); i++ {
		if entries[i].status == statusNone {
			out = append(out, entries[i].rec)
			entries[i].status = statusContext
		}
	}
	return out
}

// pendingAfter reports whether some stream still owes after-context: a
// match within the last After entries of a full window. Early stop waits
// until this drains.
func (w *contextWindow) pendingAfter() bool {
	if w.after <= 0 {
		return false
	}
	for _, entries := range w.streams {
		if hasStatus(entries, w.after, statusMatch, true) {
			return true
		}
	}
	return false
}

// hasStatus reports whether a status occurs within the last span entries.
// With full set, windows shorter than span report false.
func hasStatus(entries []windowEntry, span int, status entryStatus, full bool) bool {
	if span <= 0 || (full && len(entries) < span) {
		return false
	}
	if span > len(entries) {
		span = len(entries)
	}
	for i := len(entries) - span; i < len(entries); i++ {
		if entries[i].status == status {
			return true
		}
	}
	return false
}
