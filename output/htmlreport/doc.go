// Package htmlreport provides the report sink. Matched records accumulate in
// memory and render as a standalone HTML document: one section per topic, one
// entry per record with its emit ordinal, type, stamp and field tree, matched
// leaves wrapped in <mark>.
//
// The document covers everything written so far and is rewritten whole, on
// Flush and Close by default, or every commitInterval records when the option
// is set. No file appears until the first record arrives.
//
// The page layout comes from an embedded template; templateRef points at a
// file that replaces it. Templates execute against the Report type.
package htmlreport
