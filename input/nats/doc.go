// Package nats subscribes to live record streams on NATS core subjects.
//
// Publishers announce a type variant with a schema envelope and follow with
// message envelopes, the same JSON lines a bag file holds. Schema envelopes
// feed the descriptor table and are not returned as records. The stream has
// no bounded length, so the source reports an unknown total and no early
// stop: a scan over a live subject runs until cancelled, stopped, or idle
// beyond the configured timeout.
//
// Subscriptions are established on the first Next call and removed by Stop.
// The source shares the process NATS client; stopping the source leaves the
// connection open.
package nats
