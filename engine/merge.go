package engine

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/c360/grepbag/component"
	"github.com/c360/grepbag/message"
)

// MergeSources combines several sources into one. When ordered, records
// interleave globally by stamp through a min-heap, the way a multi-bag scan
// replays a session in time order. Otherwise the sources drain sequentially
// in the order given.
//
// Either way, a source whose Next fails with a read error is surfaced once,
// wrapped with its position, and dropped from the merge; the remaining
// sources keep delivering. One corrupt bag never sinks a multi-bag scan.
func MergeSources(ordered bool, sources ...component.Source) component.Source {
	switch len(sources) {
	case 0:
		return emptySource{}
	case 1:
		return sources[0]
	}
	if ordered {
		return &orderedMerge{mergeBase: mergeBase{sources: sources}}
	}
	return &serialMerge{mergeBase: mergeBase{sources: sources}}
}

// emptySource is the zero-source merge: immediately exhausted.
type emptySource struct{}

func (emptySource) Next(context.Context) (message.Record, error) {
	return message.Record{}, io.EOF
}
func (emptySource) EstimatedTotal() int     { return 0 }
func (emptySource) SupportsEarlyStop() bool { return true }
func (emptySource) Stop() error             { return nil }

// mergeBase aggregates the non-streaming half of the Source contract over
// the children.
type mergeBase struct {
	sources []component.Source
}

// EstimatedTotal sums the children's totals; unknown if any child's is.
func (b mergeBase) EstimatedTotal() int {
	total := 0
	for _, s := range b.sources {
		n := s.EstimatedTotal()
		if n < 0 {
			return -1
		}
		total += n
	}
	return total
}

// SupportsEarlyStop reports true only when every child can stop early.
func (b mergeBase) SupportsEarlyStop() bool {
	for _, s := range b.sources {
		if !s.SupportsEarlyStop() {
			return false
		}
	}
	return true
}

// Stop stops every child, collecting failures into one error.
func (b mergeBase) Stop() error {
	var errs []string
	for i, s := range b.sources {
		if err := s.Stop(); err != nil {
			errs = append(errs, fmt.Sprintf("source %d: %v", i, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("stop merged sources: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Descriptor consults each child that carries schema descriptors and returns
// the first hit.
func (b mergeBase) Descriptor(typeName, schemaHash string) (message.TypeDescriptor, bool) {
	for _, s := range b.sources {
		if dp, ok := s.(component.DescriptorProvider); ok {
			if desc, found := dp.Descriptor(typeName, schemaHash); found {
				return desc, true
			}
		}
	}
	return message.TypeDescriptor{}, false
}

// TopicTotals merges per-topic totals, nil unless every child reports them.
// A partial sum would make negative index ranges silently wrong.
func (b mergeBase) TopicTotals() map[message.TopicKey]int {
	out := make(map[message.TopicKey]int)
	for _, s := range b.sources {
		tt, ok := s.(component.TopicTotaler)
		if !ok {
			return nil
		}
		totals := tt.TopicTotals()
		if totals == nil {
			return nil
		}
		for k, n := range totals {
			out[k] += n
		}
	}
	return out
}

// serialMerge drains the sources one after another.
type serialMerge struct {
	mergeBase
	idx int
}

func (s *serialMerge) Next(ctx context.Context) (message.Record, error) {
	for s.idx < len(s.sources) {
		rec, err := s.sources[s.idx].Next(ctx)
		if err == nil {
			return rec, nil
		}
		if errors.Is(err, io.EOF) {
			s.idx++
			continue
		}
		if ctx.Err() != nil {
			return message.Record{}, err
		}
		dropped := s.idx
		s.idx++
		return message.Record{}, fmt.Errorf("source %d: %w", dropped, err)
	}
	return message.Record{}, io.EOF
}

// orderedMerge interleaves the sources by record stamp. Each source
// contributes its head record to a min-heap; popping the minimum refills
// from the source it came from, so one slow stream never holds more than one
// record in memory.
type orderedMerge struct {
	mergeBase
	heap    recordHeap
	primed  bool
	pending []error
}

func (m *orderedMerge) Next(ctx context.Context) (message.Record, error) {
	if !m.primed {
		m.primed = true
		for i := range m.sources {
			m.refill(ctx, i)
		}
	}
	if len(m.pending) > 0 {
		err := m.pending[0]
		m.pending = m.pending[1:]
		return message.Record{}, err
	}
	if m.heap.Len() == 0 {
		return message.Record{}, io.EOF
	}
	it := heap.Pop(&m.heap).(heapItem)
	m.refill(ctx, it.src)
	return it.rec, nil
}

// refill pulls the next record from one source onto the heap. EOF retires
// the source; a read error retires it and queues the error for the caller.
func (m *orderedMerge) refill(ctx context.Context, src int) {
	rec, err := m.sources[src].Next(ctx)
	if err == nil {
		heap.Push(&m.heap, heapItem{rec: rec, src: src})
		return
	}
	if errors.Is(err, io.EOF) {
		return
	}
	if ctx.Err() != nil {
		m.pending = append(m.pending, err)
		return
	}
	m.pending = append(m.pending, fmt.Errorf("source %d: %w", src, err))
}

type heapItem struct {
	rec message.Record
	src int
}

type recordHeap []heapItem

func (h recordHeap) Len() int { return len(h) }

// Less breaks stamp ties by source position so equal-stamp records replay in
// the order the sources were listed.
func (h recordHeap) Less(i, j int) bool {
	if !h[i].rec.Stamp.Equal(h[j].rec.Stamp) {
		return h[i].rec.Stamp.Before(h[j].rec.Stamp)
	}
	return h[i].src < h[j].src
}

func (h recordHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *recordHeap) Push(x any) { *h = append(*h, x.(heapItem)) }

func (h *recordHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[:n-1]
	return it
}
