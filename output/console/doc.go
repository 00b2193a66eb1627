// Package console renders matched records as indented text on standard
// output or standard error.
//
// Output follows grep conventions: an optional per-line topic prefix
// (":" after the topic for matches, "-" for context records), "---"
// separator lines between records, and matched leaves wrapped in
// highlight markers, "**" by default. An optional meta line carries the
// emit ordinal, topic, type and stamp of each record.
//
// Writes accumulate in an internal buffer and reach the destination
// writer once per commit interval, so interleaving with other process
// output happens at commit granularity.
package console
