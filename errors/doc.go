// Package errors provides standardized error handling patterns for grepbag components.
//
// # Overview
//
// The errors package implements a three-class error classification system for
// the scan pipeline: Transient (temporary, retryable), Invalid (bad input,
// non-retryable), and Fatal (unrecoverable, stop processing).
//
// Classification drives how the scan loop reacts to failures without hardcoded
// error string matching: a transient read error isolates one source, an invalid
// pattern aborts before the first record is pulled, and a fatal configuration
// error stops the run.
//
// # Error Classification
//
// Errors are automatically classified based on their type or content:
//
//   - Transient: Network timeouts, connection issues, idle live sources (retry recommended)
//   - Invalid: Malformed records, bad patterns or conditions, bad component options (do not retry)
//   - Fatal: Corrupted bag data, invalid or missing configuration (stop processing)
//
// The classification system integrates with Go's standard error handling,
// supporting errors.Is(), errors.As(), and error wrapping chains.
//
// # Error Wrapping Pattern
//
// All error wrapping follows the standardized format:
//
//	"component.method: action failed: %w"
//
// Three wrapper functions provide classification-aware wrapping:
//
//	errors.WrapTransient(err, "bagSource", "Next", "read line")   // For retryable errors
//	errors.WrapInvalid(err, "matcher", "Compile", "parse regex")  // For validation errors
//	errors.WrapFatal(err, "config", "Load", "decode yaml")        // For unrecoverable errors
//
// The generic Wrap() function preserves the original error's classification:
//
//	errors.Wrap(err, "dbSink", "Write", "insert row")
//
// # Standard Error Variables
//
// Pre-defined error variables cover common conditions, organized by category:
//
//   - Component lifecycle: ErrAlreadyStarted, ErrNotStarted, ErrAlreadyStopped
//   - Connections: ErrConnectionLost, ErrConnectionTimeout, ErrSubscriptionFailed, ErrIdleTimeout
//   - Record decoding: ErrInvalidData, ErrDataCorrupted, ErrParsingFailed
//   - Search setup: ErrInvalidPattern, ErrInvalidCondition, ErrUnknownKind, ErrInvalidOptions
//   - Configuration: ErrInvalidConfig, ErrMissingConfig
//   - Sinks: ErrSinkDegraded, ErrSinkClosed
//
// Use these variables instead of creating custom error messages:
//
//	if kind == "" {
//	    return errors.ErrUnknownKind
//	}
//
// # Context Cancellation
//
// Context errors (context.DeadlineExceeded, context.Canceled) are classified as
// Transient, so a cancelled scan drains cleanly through the same paths as a
// source timeout.
//
// # Thread Safety
//
// All classification and wrapping operations are thread-safe. Error variables
// are immutable and safe for concurrent access.
package errors
