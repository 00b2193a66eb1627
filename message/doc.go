// Package message provides the core record infrastructure for grepbag.
// It defines the value model, type identity, and wire envelope that records
// carry from a source through the scan loop to the sinks.
//
// # Architecture
//
// The package follows a small, source-agnostic design with four core concepts:
//
//  1. Value - the decoded message body, a tagged union of scalar, sequence,
//     and mapping variants with field order preserved
//  2. Record - one typed message: topic, type identity, stamp, and body
//  3. TypeDescriptor / Registry - schema identity and its run-scoped IDs
//  4. Envelope - the JSON line format shared by bag files and republishing
//
// # Type Identity
//
// A type is identified by its name together with its schema hash, never by
// name alone. Recorded logs routinely contain the same type name with
// different schema revisions; the Registry keeps every variant under its own
// TypeID and records a ConflictNotice the first time a second hash appears
// under a known name. Conflicts surface in the run summary and are never
// fatal.
//
// # Values
//
// Value trees are immutable after construction. Mapping fields keep their
// declaration order, which the canonical digest, schema inference, and
// rendered output all rely on. Missing fields read as the zero Value
// (KindInvalid), so lookups never panic on absent data.
//
// # Digests
//
// Digest computes a canonical SHA-256 over a value tree; equal trees produce
// equal digests. Unique-only sampling uses it as the dedup identity for a
// record body.
//
// # Wire Format
//
// A bag file is JSON lines: one schema envelope per type variant followed by
// message envelopes referencing the variant by name and hash. The identical
// envelope format rides NATS subjects for live subscription and republishing,
// so a republished stream can be re-recorded or re-scanned without loss of
// type identity.
package message
