// Package csv writes emitted records as CSV files, one file per (topic,
// schema hash) variant under a target directory.
//
// The header row comes from the variant's schema: scalar field paths in
// declaration order, nested mappings flattened into dotted column names.
// With inline rendering, nested mappings stay whole and render as one
// JSON cell per row; sequences always render as JSON cells. A leading
// _stamp column carries the record stamp, so rows stay self-describing
// without a topic column (the topic names the file).
//
// Files open lazily as their variant first appears and are truncated,
// not appended. Writers flush every commit interval.
package csv
