package message

import (
	"time"
)

// Record is one typed message pulled from a Source: the topic it was published
// on, its resolved type identity, the publish stamp, and the decoded body.
// Records are immutable once a Source hands them to the scan loop.
type Record struct {
	// Topic is the channel the record was published on, e.g. "/cmd_vel".
	Topic string

	// Type is the message type name, e.g. "geometry_msgs/Twist".
	Type string

	// SchemaHash is the content hash of the type's schema. Together with Type
	// it forms the type identity; the same name with a different hash is a
	// distinct type.
	SchemaHash string

	// TypeID is the registry-assigned identifier for (Type, SchemaHash).
	// Zero until the registry has seen the record.
	TypeID TypeID

	// Stamp is the publish or receive time of the record.
	Stamp time.Time

	// Data is the decoded message body.
	Data Value
}

// TopicKey identifies one stream of records: a topic carrying one type
// variant. Topics carrying multiple type variants yield multiple keys, and
// per-topic counters are kept per key.
type TopicKey struct {
	Topic      string
	Type       string
	SchemaHash string
}

// TypeKey identifies one type variant independent of topic.
type TypeKey struct {
	Name       string
	SchemaHash string
}

// TopicKey returns the stream identity of the record.
func (r Record) TopicKey() TopicKey {
	return TopicKey{Topic: r.Topic, Type: r.Type, SchemaHash: r.SchemaHash}
}

// TypeKey returns the type identity of the record.
func (r Record) TypeKey() TypeKey {
	return TypeKey{Name: r.Type, SchemaHash: r.SchemaHash}
}
