package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/c360/grepbag/message"
	"github.com/c360/grepbag/testutil"
)

func seqOf(rec message.Record) int {
	v, _ := rec.Data.FieldByName("seq")
	return int(v.IntValue())
}

func seqsOf(recs []message.Record) []int {
	out := make([]int, 0, len(recs))
	for _, r := range recs {
		out = append(out, seqOf(r))
	}
	return out
}

func TestContextWindow_DisabledIsInert(t *testing.T) {
	w := newContextWindow(0, 0)

	rec := testutil.StatusRecord("/diag", 1, "INFO", "x", testutil.BaseStamp)
	w.observe(rec)
	w.markMatch(rec.TopicKey())

	assert.Nil(t, w.takeBefore(rec.TopicKey()))
	assert.Nil(t, w.takeAfter(rec.TopicKey()))
	assert.False(t, w.pendingAfter())
	assert.Empty(t, w.streams)
}

func TestContextWindow_BeforeContext(t *testing.T) {
	w := newContextWindow(2, 0)
	recs := testutil.StatusSequence("/diag", 4, time.Second)
	key := recs[0].TopicKey()

	for _, rec := range recs {
		w.observe(rec)
	}
	w.markMatch(key)

	// Reachable predecessors of the match, oldest first; the match itself
	// stays out.
	assert.Equal(t, []int{2, 3}, seqsOf(w.takeBefore(key)))

	// Already emitted as context: a second take returns nothing.
	assert.Empty(t, w.takeBefore(key))
}

func TestContextWindow_BeforeWithShortHistory(t *testing.T) {
	w := newContextWindow(3, 0)
	recs := testutil.StatusSequence("/diag", 2, time.Second)
	key := recs[0].TopicKey()

	for _, rec := range recs {
		w.observe(rec)
	}
	w.markMatch(key)

	assert.Equal(t, []int{1}, seqsOf(w.takeBefore(key)))
}

func TestContextWindow_AfterContextDrainsIncrementally(t *testing.T) {
	w := newContextWindow(0, 2)
	recs := testutil.StatusSequence("/diag", 4, time.Second)
	key := recs[0].TopicKey()

	w.observe(recs[0])
	w.markMatch(key)

	w.observe(recs[1])
	assert.Equal(t, []int{2}, seqsOf(w.takeAfter(key)))

	w.observe(recs[2])
	assert.Equal(t, []int{3}, seqsOf(w.takeAfter(key)))

	// The match is out of reach now: nothing more trails it.
	w.observe(recs[3])
	assert.Empty(t, w.takeAfter(key))
}

func TestContextWindow_SuppressedMatchIsInvisible(t *testing.T) {
	w := newContextWindow(2, 1)
	recs := testutil.StatusSequence("/diag", 3, time.Second)
	key := recs[0].TopicKey()

	w.observe(recs[0])
	w.markSuppressed(key)

	// A suppressed match does not anchor after-context.
	w.observe(recs[1])
	assert.Empty(t, w.takeAfter(key))
	assert.False(t, w.pendingAfter())

	// Nor does it come back as before-context of a later match.
	w.observe(recs[2])
	w.markMatch(key)
	assert.Equal(t, []int{2}, seqsOf(w.takeBefore(key)))
}

func TestContextWindow_PendingAfter(t *testing.T) {
	w := newContextWindow(0, 2)
	recs := testutil.StatusSequence("/diag", 3, time.Second)
	key := recs[0].TopicKey()

	w.observe(recs[0])
	w.markMatch(key)
	// A window shorter than After cannot owe trailing context yet.
	assert.False(t, w.pendingAfter())

	w.observe(recs[1])
	assert.True(t, w.pendingAfter())

	w.observe(recs[2])
	assert.False(t, w.pendingAfter())
}

func TestContextWindow_StreamsIndependent(t *testing.T) {
	w := newContextWindow(2, 0)

	a1 := testutil.StatusRecord("/a", 1, "INFO", "x", testutil.BaseStamp)
	b1 := testutil.StatusRecord("/b", 1, "INFO", "x", testutil.BaseStamp)
	a2 := testutil.StatusRecord("/a", 2, "ERROR", "x", testutil.BaseStamp.Add(time.Second))

	w.observe(a1)
	w.observe(b1)
	w.observe(a2)
	w.markMatch(a2.TopicKey())

	before := w.takeBefore(a2.TopicKey())
	assert.Equal(t, []int{1}, seqsOf(before))
	for _, rec := range before {
		assert.Equal(t, "/a", rec.Topic)
	}
}
