// Package sqlschema provides a sink that generates SQL schema text for the
// record types seen during a scan: a CREATE TABLE per type variant, one
// sub-table per repeated substructure when subtypeMode is "all", and a
// CREATE VIEW per topic selecting the topic's rows from its variant table.
//
// No database is touched. The document is a commented SQL file for the
// chosen dialect (postgres or sqlite), rewritten whole on Flush, Close, or
// every commitInterval records when set, with tables and views in sorted
// order so reruns produce stable output.
package sqlschema
