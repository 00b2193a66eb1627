package message

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
)

// FieldDef describes one field of a message type.
type FieldDef struct {
	// Name is the field name as it appears in the message body.
	Name string `json:"name"`

	// Type is the scalar type name ("bool", "int", "uint", "float", "string")
	// or the nested type name for embedded messages.
	Type string `json:"type"`

	// Array marks repeated fields.
	Array bool `json:"array,omitempty"`

	// Fields holds the nested definition for embedded messages, nil for
	// scalars.
	Fields []FieldDef `json:"fields,omitempty"`
}

// TypeDescriptor is the schema of one message type variant. Name plus
// SchemaHash form the identity: two descriptors sharing a name but not a hash
// are distinct types and are never merged.
type TypeDescriptor struct {
	// Name is the full type name, e.g. "sensor_msgs/LaserScan".
	Name string `json:"name"`

	// SchemaHash is the MD5 content hash of the schema, in the convention of
	// recorded-log type hashes. Sources that carry schema text hash the text;
	// sources that infer structure hash the field shape signature.
	SchemaHash string `json:"hash"`

	// Definition is the original schema text when the source carries one.
	Definition string `json:"definition,omitempty"`

	// Fields lists the top-level fields in declaration order.
	Fields []FieldDef `json:"fields,omitempty"`
}

// Key returns the type identity of the descriptor.
func (d TypeDescriptor) Key() TypeKey {
	return TypeKey{Name: d.Name, SchemaHash: d.SchemaHash}
}

// IsValid checks that the descriptor carries an identity.
func (d TypeDescriptor) IsValid() bool {
	return d.Name != "" && d.SchemaHash != ""
}

// HashDefinition computes the schema hash for raw schema text.
func HashDefinition(definition string) string {
	sum := md5.Sum([]byte(definition))
	return hex.EncodeToString(sum[:])
}

// InferDescriptor builds a descriptor from an observed value tree, for sources
// that deliver structure without schema text (live JSON subscriptions). The
// hash covers the field shape signature, so two messages with the same field
// names and kinds infer the same identity.
func InferDescriptor(name string, v Value) TypeDescriptor {
	fields := inferFields(v)
	var sig strings.Builder
	writeShape(&sig, fields, 0)
	sum := md5.Sum([]byte(sig.String()))
	return TypeDescriptor{
		Name:       name,
		SchemaHash: hex.EncodeToString(sum[:]),
		Fields:     fields,
	}
}

func inferFields(v Value) []FieldDef {
	if v.Kind() != KindMap {
		return nil
	}
	defs := make([]FieldDef, 0, v.Len())
	for _, f := range v.Fields() {
		defs = append(defs, inferField(f.Name, f.Value))
	}
	return defs
}

func inferField(name string, v Value) FieldDef {
	def := FieldDef{Name: name}
	switch v.Kind() {
	case KindMap:
		def.Type = "object"
		def.Fields = inferFields(v)
	case KindList:
		def.Array = true
		if v.Len() > 0 {
			elem := inferField(name, v.Index(0))
			def.Type = elem.Type
			def.Fields = elem.Fields
		} else {
			// Element kind of an empty sequence is unknowable from one sample.
			def.Type = "object"
		}
	case KindBool:
		def.Type = "bool"
	case KindInt:
		def.Type = "int"
	case KindUint:
		def.Type = "uint"
	case KindFloat:
		def.Type = "float"
	case KindString:
		def.Type = "string"
	default:
		def.Type = "object"
	}
	return def
}

func writeShape(b *strings.Builder, fields []FieldDef, depth int) {
	for _, f := range fields {
		fmt.Fprintf(b, "%*s%s %s", depth*2, "", f.Type, f.Name)
		if f.Array {
			b.WriteString("[]")
		}
		b.WriteByte('\n')
		if len(f.Fields) > 0 {
			writeShape(b, f.Fields, depth+1)
		}
	}
}
