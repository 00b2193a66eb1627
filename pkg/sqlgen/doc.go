// Package sqlgen plans SQL shapes for message type variants: a table per
// variant with flattened scalar columns and JSON columns for sequences, a
// view per topic filtering the variant's table, and the matching INSERT
// statements with dialect placeholders.
//
// Nested singular mappings flatten into dotted parent columns. Repeated
// substructures stay JSON columns under the "array" subtype mode, or expand
// into one sub-table per repeated field under "all", rows linked to their
// record by topic, stamp and element index. Metadata columns _topic and
// _stamp close every table.
//
// Two dialects are understood, postgres and sqlite; they differ in column
// types, view creation and placeholder style.
package sqlgen
