// Package engine drives a scan: it pulls records from a source, resolves
// their type identity, applies the record gate, pattern matcher, condition
// evaluator, and sampling policies, and dispatches the survivors to every
// configured sink through a Multiplexer.
//
// # Scan Loop
//
// Scanner owns the single-threaded pull loop. One record at a time flows
// through registry, conditions, gate, match, sampling, and dispatch; nothing
// in the hot path takes a lock because nothing else mutates scan state.
// Cancellation is checked once per pulled record; the in-flight record's
// dispatch completes before the loop exits, and sinks are always flushed and
// closed exactly once regardless of how the loop ended.
//
// # Sink Fan-Out
//
// Multiplexer holds the sinks in registration order and writes to each one
// synchronously. A failing sink is marked degraded and skipped from then on;
// one bad sink never fails the run or starves the others.
//
// # Merged Sources
//
// MergeSources combines several sources into one. Ordered merges interleave
// records by stamp through a min-heap; unordered merges drain the sources
// sequentially. Either way a source whose read fails is reported once and
// dropped while the merge continues over the rest.
package engine
