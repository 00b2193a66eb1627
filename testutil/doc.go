// Package testutil provides testing utilities for grepbag packages.
//
// # Mocks
//
// ScriptedSource implements component.Source over a fixed record slice:
//
//	src := testutil.NewScriptedSource(testutil.StatusSequence("/diag", 5, time.Second)...)
//
// Read errors are injected per index via ErrAt, and Total / EarlyStop make it
// act like a live source when needed.
//
// MemorySink implements component.Sink and records every write together with
// its metadata:
//
//	sink := testutil.NewMemorySink()
//	// ... run the scan ...
//	got := sink.Topics()
//
// WriteFunc, FlushFunc and CloseFunc inject failures for degraded-sink tests.
//
// # Data
//
// Record builders produce deterministic typed records with inferred schema
// hashes: Rec for arbitrary shapes, StatusRecord and PoseRecord for the two
// canned types, StatusSequence for evenly stamped runs starting at BaseStamp.
//
// WriteBagFile materializes records as a bag file in t.TempDir for source
// tests; BagLines returns the same content as bytes.
package testutil
