package engine_test

import (
	"context"
	stderrors "errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/grepbag/component"
	"github.com/c360/grepbag/engine"
	"github.com/c360/grepbag/message"
	"github.com/c360/grepbag/testutil"
)

// drainSource pulls a source dry, collecting records and non-EOF errors.
func drainSource(t *testing.T, src component.Source) ([]message.Record, []error) {
	t.Helper()
	var recs []message.Record
	var errs []error
	for i := 0; i < 1000; i++ {
		rec, err := src.Next(context.Background())
		if err != nil {
			if stderrors.Is(err, io.EOF) {
				return recs, errs
			}
			errs = append(errs, err)
			continue
		}
		recs = append(recs, rec)
	}
	t.Fatal("source did not terminate")
	return nil, nil
}

func topicsOf(recs []message.Record) []string {
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.Topic)
	}
	return out
}

func TestMergeSources_EmptyIsExhausted(t *testing.T) {
	src := engine.MergeSources(true)

	_, err := src.Next(context.Background())
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, 0, src.EstimatedTotal())
	assert.True(t, src.SupportsEarlyStop())
	assert.NoError(t, src.Stop())
}

func TestMergeSources_SingleIsPassthrough(t *testing.T) {
	only := testutil.NewScriptedSource(testutil.StatusSequence("/diag", 2, time.Second)...)

	merged := engine.MergeSources(true, only)
	assert.Same(t, only, merged)
}

func TestMergeSources_SerialDrainsInOrder(t *testing.T) {
	s1 := testutil.NewScriptedSource(
		testutil.StatusRecord("/a", 1, "INFO", "x", testutil.BaseStamp.Add(9*time.Second)),
		testutil.StatusRecord("/a", 2, "INFO", "x", testutil.BaseStamp.Add(10*time.Second)),
	)
	s2 := testutil.NewScriptedSource(
		testutil.StatusRecord("/b", 1, "INFO", "x", testutil.BaseStamp),
	)

	recs, errs := drainSource(t, engine.MergeSources(false, s1, s2))
	assert.Empty(t, errs)
	// Serial merges keep source order even when stamps interleave.
	assert.Equal(t, []string{"/a", "/a", "/b"}, topicsOf(recs))
}

func TestMergeSources_OrderedInterleavesByStamp(t *testing.T) {
	at := func(sec int) time.Time { return testutil.BaseStamp.Add(time.Duration(sec) * time.Second) }
	s1 := testutil.NewScriptedSource(
		testutil.StatusRecord("/a", 1, "INFO", "x", at(0)),
		testutil.StatusRecord("/a", 2, "INFO", "x", at(4)),
	)
	s2 := testutil.NewScriptedSource(
		testutil.StatusRecord("/b", 1, "INFO", "x", at(1)),
		testutil.StatusRecord("/b", 2, "INFO", "x", at(3)),
	)

	recs, errs := drainSource(t, engine.MergeSources(true, s1, s2))
	assert.Empty(t, errs)
	assert.Equal(t, []string{"/a", "/b", "/b", "/a"}, topicsOf(recs))
}

func TestMergeSources_OrderedBreaksTiesBySourcePosition(t *testing.T) {
	s1 := testutil.NewScriptedSource(testutil.StatusRecord("/a", 1, "INFO", "x", testutil.BaseStamp))
	s2 := testutil.NewScriptedSource(testutil.StatusRecord("/b", 1, "INFO", "x", testutil.BaseStamp))

	recs, errs := drainSource(t, engine.MergeSources(true, s1, s2))
	assert.Empty(t, errs)
	assert.Equal(t, []string{"/a", "/b"}, topicsOf(recs))
}

func TestMergeSources_SerialReadErrorDropsSource(t *testing.T) {
	s1 := testutil.NewScriptedSource(
		testutil.StatusRecord("/a", 1, "INFO", "x", testutil.BaseStamp),
		testutil.StatusRecord("/a", 2, "INFO", "x", testutil.BaseStamp.Add(time.Second)),
		testutil.StatusRecord("/a", 3, "INFO", "x", testutil.BaseStamp.Add(2*time.Second)),
	)
	s1.ErrAt = map[int]error{1: stderrors.New("truncated record")}
	s2 := testutil.NewScriptedSource(
		testutil.StatusRecord("/b", 1, "INFO", "x", testutil.BaseStamp),
	)

	recs, errs := drainSource(t, engine.MergeSources(false, s1, s2))

	// The first source surfaced one error and was dropped: its third
	// record never arrives, the second source still delivers.
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "source 0")
	assert.Contains(t, errs[0].Error(), "truncated record")
	assert.Equal(t, []string{"/a", "/b"}, topicsOf(recs))
}

func TestMergeSources_OrderedReadErrorDropsSource(t *testing.T) {
	at := func(sec int) time.Time { return testutil.BaseStamp.Add(time.Duration(sec) * time.Second) }
	s1 := testutil.NewScriptedSource(
		testutil.StatusRecord("/a", 1, "INFO", "x", at(0)),
		testutil.StatusRecord("/a", 2, "INFO", "x", at(2)),
		testutil.StatusRecord("/a", 3, "INFO", "x", at(5)),
	)
	s1.ErrAt = map[int]error{1: stderrors.New("bad frame")}
	s2 := testutil.NewScriptedSource(
		testutil.StatusRecord("/b", 1, "INFO", "x", at(1)),
		testutil.StatusRecord("/b", 2, "INFO", "x", at(3)),
	)

	recs, errs := drainSource(t, engine.MergeSources(true, s1, s2))

	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "source 0")
	assert.Equal(t, []string{"/a", "/b", "/b"}, topicsOf(recs))
}

func TestMergeSources_EstimatedTotal(t *testing.T) {
	s1 := testutil.NewScriptedSource(testutil.StatusSequence("/a", 2, time.Second)...)
	s2 := testutil.NewScriptedSource(testutil.StatusSequence("/b", 3, time.Second)...)
	assert.Equal(t, 5, engine.MergeSources(true, s1, s2).EstimatedTotal())

	live := testutil.NewScriptedSource(testutil.StatusSequence("/c", 2, time.Second)...)
	live.Total = -1
	assert.Equal(t, -1, engine.MergeSources(true, s1, live).EstimatedTotal())
}

func TestMergeSources_SupportsEarlyStop(t *testing.T) {
	s1 := testutil.NewScriptedSource()
	s2 := testutil.NewScriptedSource()
	assert.True(t, engine.MergeSources(false, s1, s2).SupportsEarlyStop())

	s2.EarlyStop = false
	assert.False(t, engine.MergeSources(false, s1, s2).SupportsEarlyStop())
}

func TestMergeSources_StopStopsEveryChild(t *testing.T) {
	s1 := testutil.NewScriptedSource(testutil.StatusSequence("/a", 2, time.Second)...)
	s2 := testutil.NewScriptedSource(testutil.StatusSequence("/b", 2, time.Second)...)

	require.NoError(t, engine.MergeSources(true, s1, s2).Stop())
	assert.Equal(t, 1, s1.StopCalls)
	assert.Equal(t, 1, s2.StopCalls)
}

func TestMergeSources_ContextCancellation(t *testing.T) {
	s1 := testutil.NewScriptedSource(testutil.StatusSequence("/a", 2, time.Second)...)
	s2 := testutil.NewScriptedSource(testutil.StatusSequence("/b", 2, time.Second)...)
	merged := engine.MergeSources(false, s1, s2)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := merged.Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	// Cancellation is not a read error: nothing was dropped.
	assert.Equal(t, 2, s1.Remaining())
}
