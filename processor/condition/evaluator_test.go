package condition

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/grepbag/message"
)

func record(topic string, fields ...message.Field) message.Record {
	return message.Record{
		Topic: topic,
		Type:  "test/Msg",
		Stamp: time.Unix(0, 1),
		Data:  message.Map(fields...),
	}
}

func mustParse(t *testing.T, exprs ...string) *Evaluator {
	t.Helper()
	e, err := Parse(exprs)
	require.NoError(t, err)
	return e
}

func TestEvaluator_EmptyGateIsOpen(t *testing.T) {
	e := mustParse(t)
	assert.True(t, e.Empty())
	assert.Equal(t, VerdictTrue, e.Eval())
}

func TestEvaluator_UnseenTopicIsUnknown(t *testing.T) {
	e := mustParse(t, `topic("/speed").value > 1`)

	assert.Equal(t, VerdictUnknown, e.Eval())

	e.Observe(record("/speed", message.F("value", message.Float(2))))
	assert.Equal(t, VerdictTrue, e.Eval())

	e.Observe(record("/speed", message.F("value", message.Float(0))))
	assert.Equal(t, VerdictFalse, e.Eval())
}

func TestEvaluator_LatestRecordWins(t *testing.T) {
	e := mustParse(t, `topic("/estop").engaged == false`)

	e.Observe(record("/estop", message.F("engaged", message.Bool(false))))
	assert.Equal(t, VerdictTrue, e.Eval())

	// The cache tracks the stream: a later record flips the verdict.
	e.Observe(record("/estop", message.F("engaged", message.Bool(true))))
	assert.Equal(t, VerdictFalse, e.Eval())
}

func TestEvaluator_OnlyReferencedTopicsRetained(t *testing.T) {
	e := mustParse(t, `topic("/a").x == 1`)

	e.Observe(record("/b", message.F("x", message.Int(1))))
	assert.Equal(t, VerdictUnknown, e.Eval(), "records on other topics must not resolve the reference")
}

func TestEvaluator_MissingFieldIsUnknown(t *testing.T) {
	e := mustParse(t, `topic("/pose").position.z > 0`)

	e.Observe(record("/pose", message.F("position", message.Map(
		message.F("x", message.Float(1)),
	))))
	assert.Equal(t, VerdictUnknown, e.Eval())
}

func TestEvaluator_UnknownPropagation(t *testing.T) {
	seen := record("/seen", message.F("ok", message.Bool(true)))

	tests := []struct {
		name string
		expr string
		want Verdict
	}{
		{
			name: "unknown AND false is false",
			expr: `topic("/unseen").x == 1 AND topic("/seen").ok == false`,
			want: VerdictFalse,
		},
		{
			name: "unknown AND true stays unknown",
			expr: `topic("/unseen").x == 1 AND topic("/seen").ok == true`,
			want: VerdictUnknown,
		},
		{
			name: "unknown OR true resolves true",
			expr: `topic("/unseen").x == 1 OR topic("/seen").ok == true`,
			want: VerdictTrue,
		},
		{
			name: "unknown OR false stays unknown",
			expr: `topic("/unseen").x == 1 OR topic("/seen").ok == false`,
			want: VerdictUnknown,
		},
		{
			name: "NOT unknown stays unknown",
			expr: `NOT topic("/unseen").x == 1`,
			want: VerdictUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := mustParse(t, tt.expr)
			e.Observe(seen)
			assert.Equal(t, tt.want, e.Eval())
		})
	}
}

func TestEvaluator_Operators(t *testing.T) {
	rec := record("/r",
		message.F("count", message.Int(5)),
		message.F("ratio", message.Float(0.5)),
		message.F("name", message.Str("front_laser")),
		message.F("flags", message.List(message.Str("a"), message.Str("b"))),
		message.F("codes", message.List(message.Int(3), message.Int(7))),
	)

	tests := []struct {
		name string
		expr string
		want Verdict
	}{
		{"eq int", `topic("/r").count == 5`, VerdictTrue},
		{"neq int", `topic("/r").count != 5`, VerdictFalse},
		{"float epsilon eq", `topic("/r").ratio == 0.5`, VerdictTrue},
		{"gte", `topic("/r").count >= 5`, VerdictTrue},
		{"lt", `topic("/r").count < 5`, VerdictFalse},
		{"string eq", `topic("/r").name == "front_laser"`, VerdictTrue},
		{"string contains", `topic("/r").name contains "laser"`, VerdictTrue},
		{"list contains string", `topic("/r").flags contains "b"`, VerdictTrue},
		{"list contains number", `topic("/r").codes contains 7`, VerdictTrue},
		{"list missing element", `topic("/r").codes contains 9`, VerdictFalse},
		{"matches", `topic("/r").name matches "^front_"`, VerdictTrue},
		{"numeric op on string is unknown", `topic("/r").name > 2`, VerdictUnknown},
		{"string eq number is unknown", `topic("/r").name == 2`, VerdictUnknown},
		{"container operand is unknown", `topic("/r") == 1`, VerdictUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := mustParse(t, tt.expr)
			e.Observe(rec)
			assert.Equal(t, tt.want, e.Eval())
		})
	}
}

func TestEvaluator_MultipleExpressionsAnd(t *testing.T) {
	e := mustParse(t,
		`topic("/a").x > 0`,
		`topic("/b").y > 0`,
	)

	e.Observe(record("/a", message.F("x", message.Int(1))))
	assert.Equal(t, VerdictUnknown, e.Eval(), "second expression unresolved")

	e.Observe(record("/b", message.F("y", message.Int(1))))
	assert.Equal(t, VerdictTrue, e.Eval())

	e.Observe(record("/b", message.F("y", message.Int(-1))))
	assert.Equal(t, VerdictFalse, e.Eval())
}

func TestEvaluator_Topics(t *testing.T) {
	e := mustParse(t, `topic("/b").x == 1 OR topic("/a").y == 2`)
	assert.Equal(t, []string{"/a", "/b"}, e.Topics())
}
