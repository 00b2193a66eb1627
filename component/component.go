package component

import (
	"context"

	"github.com/c360/grepbag/message"
)

// Source pulls typed records from a recording or a live subscription.
//
// Implementations are driven from a single goroutine: the scan loop calls
// Next repeatedly until it returns io.EOF or the loop decides to stop.
type Source interface {
	// Next returns the next record in stream order. Bounded sources return
	// io.EOF when exhausted. Live sources block until a record arrives,
	// the configured idle timeout passes (io.EOF), or ctx is done
	// (ctx.Err()). Any other error means this record could not be read;
	// the source may still deliver later records.
	Next(ctx context.Context) (message.Record, error)

	// EstimatedTotal returns the number of records the source expects to
	// deliver, or -1 when unknown. Live sources always return -1.
	EstimatedTotal() int

	// SupportsEarlyStop reports whether the source can cut delivery short
	// once the scan has emitted everything its limits allow. Live sources
	// return false; they are stopped by cancelling the run instead.
	SupportsEarlyStop() bool

	// Stop releases the source. After Stop, Next returns io.EOF.
	// Stop is idempotent.
	Stop() error
}

// DescriptorProvider is implemented by sources that carry full schema
// descriptors for the types they deliver; bag files and NATS envelopes
// announce schemas ahead of messages. The scan loop falls back to shape
// inference when a source does not implement it.
type DescriptorProvider interface {
	Descriptor(typeName, schemaHash string) (message.TypeDescriptor, bool)
}

// TopicTotaler is implemented by bounded sources that know how many records
// each topic stream holds. Negative index ranges need the totals; without
// them they are inert.
type TopicTotaler interface {
	TopicTotals() map[message.TopicKey]int
}

// WriteMeta carries per-record presentation metadata to sinks.
type WriteMeta struct {
	// MatchedPaths are the value-tree paths whose leaves satisfied the
	// field patterns, in first-match order. Empty for match-all scans and
	// for context records.
	MatchedPaths []string

	// Context marks a record emitted as surrounding context for a nearby
	// match rather than a match in its own right.
	Context bool

	// Index is the 1-based ordinal of this write across the whole run.
	Index int
}

// Sink receives emitted records. Writes accumulate in the sink's own
// buffer until its commit boundary is reached; Flush forces a commit of
// anything still buffered.
//
// The multiplexer calls Write sequentially and calls Flush and Close exactly
// once each at run end. A Write error marks the sink degraded; its Close is
// still called.
type Sink interface {
	Write(rec message.Record, meta WriteMeta) error
	Flush() error
	Close() error
}
