// Package grepbag provides grep for typed message streams: it scans
// recorded bag files or live topic subscriptions for records whose field
// values match user-supplied patterns and boolean conditions, thins the
// match stream with sampling and limit policies, and fans the survivors
// out to independent sinks.
//
// # Record Flow
//
// Every scan drives one pull loop through a fixed pipeline. Records enter
// from one source (or a merge of several), are resolved against the type
// registry, filtered by the record gate, matched, sampled, and dispatched:
//
//	┌─────────┐  ┌─────────┐  ┌───────────┐
//	│ bagfile │  │  nats   │  │ rosbridge │       sources (input/*)
//	└────┬────┘  └────┬────┘  └─────┬─────┘
//	     └────────────┼─────────────┘
//	                  ↓
//	         ┌────────────────┐
//	         │  MergeSources  │  serial or stamp-ordered interleave
//	         └────────┬───────┘
//	                  ↓
//	         ┌────────────────┐
//	         │ type registry  │  schema identity per (name, hash) variant
//	         └────────┬───────┘
//	                  ↓
//	         ┌────────────────┐
//	         │  record gate   │  topic/type/time/index eligibility
//	         └────────┬───────┘
//	                  ↓
//	         ┌────────────────┐
//	         │ match + conds  │  field patterns, boolean expressions
//	         └────────┬───────┘
//	                  ↓
//	         ┌────────────────┐
//	         │    sampling    │  unique, every-Nth, interval, caps
//	         └────────┬───────┘
//	                  ↓
//	         ┌────────────────┐
//	         │  multiplexer   │  fan-out in registration order
//	         └┬───┬───┬───┬───┘
//	          ↓   ↓   ↓   ↓
//	     console csv  db  ...                     sinks (output/*)
//
// The loop is single-threaded: matching, condition evaluation, and
// sampling are pure and non-blocking, and sinks are written sequentially
// per record. Sinks buffer internally and commit on their own cadence. A
// sink that fails a write is degraded for the rest of the run while the
// others keep receiving; at run end every sink is flushed and closed
// exactly once, on normal completion and on cancellation alike.
//
// # Schema Identity
//
// Records declare a type name and a schema hash. Two streams sharing a
// name but differing in hash are distinct variants: the message registry
// assigns each its own TypeID, records the conflict once, and never
// merges them. Sinks that materialize per-type output (csv, db,
// sqlschema) key their files and tables by variant, so a type whose
// definition changed mid-recording cannot silently mix shapes.
//
// # Packages
//
// Core:
//   - message: records, value trees, type descriptors, the type registry
//   - processor/match: field path patterns ("pose.x", "*.level=ERROR")
//   - processor/condition: boolean expressions over latest-record state
//   - processor/sample: unique/Nth/interval/cap admission policies
//   - engine: scanner loop, source merge, record gate, context windows,
//     sink multiplexer
//   - component: Source/Sink contracts, factory registry, shared deps
//
// Sources and sinks:
//   - input/bagfile, input/nats, input/rosbridge
//   - output/console, output/bagfile, output/csv, output/db,
//     output/htmlreport, output/sqlschema, output/nats
//   - componentregistry: wires every built-in kind
//
// Infrastructure:
//   - config: YAML/JSON scan configuration with env overrides
//   - errors: transient/invalid/fatal classification
//   - metric: Prometheus metrics registry and endpoint
//   - natsclient: managed NATS connection
//   - pkg/buffer: bounded input queues for the live sources
//   - pkg/sqlgen: SQL table plans shared by the db and sqlschema sinks
//   - pkg/timestamp: timestamp string and epoch parsing
//   - pkg/tlsutil: client TLS configuration
//   - testutil: scripted sources, memory sinks, record builders
//
// # Bag Format
//
// A bag file is JSON Lines: one schema envelope per (type, hash) variant
// and one message envelope per record.
//
//	{"kind":"schema","type":"diag_msgs/Status","hash":"ab12..","fields":[..]}
//	{"kind":"message","topic":"/diagnostics","type":"diag_msgs/Status",
//	 "hash":"ab12..","stamp":1716199200000000000,"data":{"level":"ERROR",..}}
//
// The same envelopes ride NATS subjects for live scans and republish.
//
// # Usage
//
// Scans are described by a config file and run with the grepbag binary:
//
//	scan:
//	  patterns: ["level=ERROR", "pose.x=4\\.[0-9]+"]
//	  conditions: ['topic("/speed").data > 10']
//	sampling:
//	  nthMatch: 3
//	  maxPerTopic: 50
//	sources:
//	  - kind: bagfile
//	    options: {paths: ["session.jsonl"]}
//	sinks:
//	  - kind: console
//	  - kind: csv
//	    options: {directory: "out"}
//
//	grepbag --config scan.yaml
//
// Embedders can skip the binary: build an engine.Scanner from any
// component.Source and a Multiplexer of component.Sink values, and call
// Scan with a context.
package grepbag
