package message_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/grepbag/message"
)

func TestHashDefinition(t *testing.T) {
	a := message.HashDefinition("float64 x\nfloat64 y\n")
	b := message.HashDefinition("float64 x\nfloat64 y\n")
	c := message.HashDefinition("float64 x\n")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 32) // hex MD5
}

func TestInferDescriptor(t *testing.T) {
	v := message.Map(
		message.F("pose", message.Map(
			message.F("x", message.Float(1)),
			message.F("y", message.Float(2)),
		)),
		message.F("id", message.Int(7)),
		message.F("tags", message.List(message.Str("a"))),
	)

	desc := message.InferDescriptor("inferred/Pose", v)
	assert.Equal(t, "inferred/Pose", desc.Name)
	assert.Len(t, desc.SchemaHash, 32)

	require.Len(t, desc.Fields, 3)
	assert.Equal(t, "pose", desc.Fields[0].Name)
	assert.Equal(t, "object", desc.Fields[0].Type)
	require.Len(t, desc.Fields[0].Fields, 2)
	assert.Equal(t, "x", desc.Fields[0].Fields[0].Name)
	assert.Equal(t, "float", desc.Fields[0].Fields[0].Type)
	assert.Equal(t, "int", desc.Fields[1].Type)
	assert.True(t, desc.Fields[2].Array)
	assert.Equal(t, "string", desc.Fields[2].Type)
}

func TestInferDescriptor_StableHash(t *testing.T) {
	build := func(x float64) message.Value {
		return message.Map(
			message.F("x", message.Float(x)),
			message.F("name", message.Str("whatever")),
		)
	}

	// Same shape, different values: same identity.
	a := message.InferDescriptor("t/T", build(1))
	b := message.InferDescriptor("t/T", build(999))
	assert.Equal(t, a.SchemaHash, b.SchemaHash)

	// Different shape: different identity.
	c := message.InferDescriptor("t/T", message.Map(message.F("x", message.Int(1))))
	assert.NotEqual(t, a.SchemaHash, c.SchemaHash)
}

func TestTypeDescriptor_Key(t *testing.T) {
	desc := message.TypeDescriptor{Name: "a/B", SchemaHash: "f00d"}
	assert.Equal(t, message.TypeKey{Name: "a/B", SchemaHash: "f00d"}, desc.Key())
	assert.True(t, desc.IsValid())
	assert.False(t, message.TypeDescriptor{Name: "a/B"}.IsValid())
}
