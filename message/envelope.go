package message

import (
	"encoding/json"
	"time"

	"github.com/c360/grepbag/errors"
)

// Envelope kinds as written on the wire.
const (
	// EnvelopeSchema announces a type variant: one line per (type, hash).
	EnvelopeSchema = "schema"
	// EnvelopeMessage carries one record.
	EnvelopeMessage = "message"
)

// Envelope is the line format shared by bag files and republish subjects.
// A bag is a sequence of JSON lines: a schema envelope the first time a type
// variant appears, then message envelopes referencing it by name and hash.
// The same envelopes ride NATS subjects when records are republished live.
type Envelope struct {
	Kind string `json:"kind"`

	// Schema fields, set when Kind is "schema".
	Type       string     `json:"type,omitempty"`
	Hash       string     `json:"hash,omitempty"`
	Definition string     `json:"definition,omitempty"`
	Fields     []FieldDef `json:"fields,omitempty"`

	// Message fields, set when Kind is "message". Type and Hash are shared
	// with schema envelopes. Stamp is nanoseconds since the Unix epoch.
	Topic string `json:"topic,omitempty"`
	Stamp int64  `json:"stamp,omitempty"`
	Data  *Value `json:"data,omitempty"`
}

// NewSchemaEnvelope wraps a type descriptor for the wire.
func NewSchemaEnvelope(desc TypeDescriptor) Envelope {
	return Envelope{
		Kind:       EnvelopeSchema,
		Type:       desc.Name,
		Hash:       desc.SchemaHash,
		Definition: desc.Definition,
		Fields:     desc.Fields,
	}
}

// NewMessageEnvelope wraps a record for the wire.
func NewMessageEnvelope(rec Record) Envelope {
	data := rec.Data
	return Envelope{
		Kind:  EnvelopeMessage,
		Type:  rec.Type,
		Hash:  rec.SchemaHash,
		Topic: rec.Topic,
		Stamp: rec.Stamp.UnixNano(),
		Data:  &data,
	}
}

// ParseEnvelope decodes one wire line.
func ParseEnvelope(line []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(line, &e); err != nil {
		return Envelope{}, errors.WrapInvalid(err, "Envelope", "ParseEnvelope", "decode line")
	}
	switch e.Kind {
	case EnvelopeSchema, EnvelopeMessage:
		return e, nil
	default:
		return Envelope{}, errors.WrapInvalid(errors.ErrInvalidData, "Envelope", "ParseEnvelope",
			"unknown envelope kind "+e.Kind)
	}
}

// Encode serializes the envelope as a single JSON line without the trailing
// newline.
func (e Envelope) Encode() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, errors.Wrap(err, "Envelope", "Encode", "marshal line")
	}
	return data, nil
}

// Record converts a message envelope to a Record. TypeID stays zero; registry
// resolution happens in the scan loop.
func (e Envelope) Record() (Record, error) {
	if e.Kind != EnvelopeMessage {
		return Record{}, errors.WrapInvalid(errors.ErrInvalidData, "Envelope", "Record",
			"envelope kind is "+e.Kind)
	}
	if e.Topic == "" || e.Type == "" {
		return Record{}, errors.WrapInvalid(errors.ErrInvalidData, "Envelope", "Record",
			"message envelope missing topic or type")
	}
	var data Value
	if e.Data != nil {
		data = *e.Data
	}
	return Record{
		Topic:      e.Topic,
		Type:       e.Type,
		SchemaHash: e.Hash,
		Stamp:      time.Unix(0, e.Stamp).UTC(),
		Data:       data,
	}, nil
}

// Descriptor converts a schema envelope to a TypeDescriptor.
func (e Envelope) Descriptor() (TypeDescriptor, error) {
	if e.Kind != EnvelopeSchema {
		return TypeDescriptor{}, errors.WrapInvalid(errors.ErrInvalidData, "Envelope", "Descriptor",
			"envelope kind is "+e.Kind)
	}
	desc := TypeDescriptor{
		Name:       e.Type,
		SchemaHash: e.Hash,
		Definition: e.Definition,
		Fields:     e.Fields,
	}
	if !desc.IsValid() {
		return TypeDescriptor{}, errors.WrapInvalid(errors.ErrInvalidData, "Envelope", "Descriptor",
			"schema envelope missing type or hash")
	}
	return desc, nil
}
