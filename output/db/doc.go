// Package db provides a sink that writes matched records into PostgreSQL.
//
// Each type variant gets its own table, created on first sight, with one
// column per flattened scalar field, JSON columns for sequences and
// freeform mappings, and _topic/_stamp meta columns. A view per topic
// selects the topic's rows from its variant table. With subtypeMode "all",
// top-level repeated substructures land in sub-tables carrying an _index
// column instead of JSON cells.
//
// Inserts accumulate in a transaction committed every commitInterval
// records, on Flush, and on Close. The connection opens lazily on the
// first write; NewSinkWithDB wires a caller-managed pool instead.
package db
