// Package component defines the source and sink contracts the scan engine
// drives, and the registry that maps kind names to factories.
//
// # Sources and Sinks
//
// A Source delivers message records one at a time through Next. Bounded
// sources (recorded bag files) know their total and can stop early; live
// sources (NATS subscriptions, rosbridge) block awaiting delivery and
// report an unknown total. A Sink receives every emitted record together
// with WriteMeta naming the matched paths, buffers writes up to its commit
// boundary, and persists on Flush and Close.
//
// # Registry
//
// Kinds register once at startup:
//
//	reg := component.NewRegistry()
//	err := reg.Register(component.Registration{
//	    Kind:        "bagfile",
//	    Type:        types.ComponentTypeSource,
//	    Description: "Reads records from a recorded bag file",
//	    Version:     "1.0.0",
//	    OptionsSchema: bagfileSchema,
//	    NewSource:   bagfile.New,
//	})
//
// NewSource and NewSink validate the configured options map against the
// kind's JSON Schema before the factory runs, so a misconfigured component
// fails the run before any record is pulled. Factories never perform I/O;
// files and connections open lazily on first use.
//
// # Options
//
// Option maps arrive from YAML config files or JSON flag values, so numeric
// values may be int, int64, uint64 or float64 depending on the decoder. The
// GetString, GetInt, GetBool, GetFloat64, GetDuration and GetStringSlice
// helpers absorb that union with per-key defaults.
package component
