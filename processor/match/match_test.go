package match_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/grepbag/message"
	"github.com/c360/grepbag/processor/match"
)

func scanRecord() message.Value {
	return message.Map(
		message.F("header", message.Map(
			message.F("frame_id", message.Str("base_laser")),
			message.F("seq", message.Uint(42)),
		)),
		message.F("ranges", message.List(
			message.Float(0.5), message.Float(4.5), message.Float(2.25),
		)),
		message.F("intensities", message.List()),
	)
}

func compile(t *testing.T, specs []match.Spec, opts match.Options) *match.Matcher {
	t.Helper()
	m, err := match.Compile(specs, opts)
	require.NoError(t, err)
	return m
}

func TestMatcher_NoSpecsMatchesEverything(t *testing.T) {
	m := compile(t, nil, match.Options{})

	res := m.Match("/any/topic", scanRecord())
	assert.True(t, res.Matched)
	assert.Empty(t, res.Paths)

	res = m.Match("/other", message.Map())
	assert.True(t, res.Matched)
}

func TestMatcher_LiteralPath(t *testing.T) {
	m := compile(t, []match.Spec{{Path: "header.frame_id", Value: "laser"}}, match.Options{})

	res := m.Match("/scan", scanRecord())
	assert.True(t, res.Matched)
	assert.Equal(t, []string{"header.frame_id"}, res.Paths)

	res = m.Match("/scan", message.Map(message.F("header", message.Map(
		message.F("frame_id", message.Str("camera")),
	))))
	assert.False(t, res.Matched)
	assert.Empty(t, res.Paths)
}

func TestMatcher_WildcardSegment(t *testing.T) {
	m := compile(t, []match.Spec{{Path: "header.*", Value: "42"}}, match.Options{})

	res := m.Match("/scan", scanRecord())
	assert.True(t, res.Matched)
	assert.Equal(t, []string{"header.seq"}, res.Paths)
}

func TestMatcher_SequenceDescent(t *testing.T) {
	tests := []struct {
		name  string
		spec  match.Spec
		want  []string
		match bool
	}{
		{
			name:  "implicit descent collects each element",
			spec:  match.Spec{Path: "ranges", Value: `^4\.5$`},
			want:  []string{"ranges[1]"},
			match: true,
		},
		{
			name:  "explicit index wildcard",
			spec:  match.Spec{Path: "ranges[*]", Value: `^0\.5$`},
			want:  []string{"ranges[0]"},
			match: true,
		},
		{
			name:  "explicit index",
			spec:  match.Spec{Path: "ranges[2]", Value: `2\.25`},
			want:  []string{"ranges[2]"},
			match: true,
		},
		{
			name:  "explicit index out of range",
			spec:  match.Spec{Path: "ranges[9]", Value: "."},
			match: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := compile(t, []match.Spec{tt.spec}, match.Options{})
			res := m.Match("/scan", scanRecord())
			assert.Equal(t, tt.match, res.Matched)
			if diff := cmp.Diff(tt.want, res.Paths); diff != "" {
				t.Errorf("paths mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestMatcher_EmptySequence(t *testing.T) {
	// An empty sequence satisfies an any-value pattern but no literal or
	// regex pattern: there is no leaf for text to match against.
	anyValue := compile(t, []match.Spec{{Path: "intensities"}}, match.Options{})
	res := anyValue.Match("/scan", scanRecord())
	assert.True(t, res.Matched)
	assert.Empty(t, res.Paths, "an empty sequence has no leaf paths to report")

	literal := compile(t, []match.Spec{{Path: "intensities", Value: "0"}}, match.Options{})
	assert.False(t, literal.Match("/scan", scanRecord()).Matched)

	regex := compile(t, []match.Spec{{Path: "intensities", Value: ".*"}}, match.Options{})
	assert.False(t, regex.Match("/scan", scanRecord()).Matched)
}

func TestMatcher_AnyField(t *testing.T) {
	m := compile(t, []match.Spec{{Value: "laser"}}, match.Options{})

	res := m.Match("/scan", scanRecord())
	assert.True(t, res.Matched)
	assert.Equal(t, []string{"header.frame_id"}, res.Paths)

	// Every satisfying leaf is reported, not just the first.
	multi := m.Match("/scan", message.Map(
		message.F("a", message.Str("laser one")),
		message.F("b", message.Map(message.F("c", message.Str("laser two")))),
	))
	assert.True(t, multi.Matched)
	if diff := cmp.Diff([]string{"a", "b.c"}, multi.Paths); diff != "" {
		t.Errorf("paths mismatch (-want +got):\n%s", diff)
	}
}

func TestMatcher_SubtreeSelection(t *testing.T) {
	// A path landing on a mapping matches against every leaf beneath it.
	m := compile(t, []match.Spec{{Path: "header", Value: "base_laser"}}, match.Options{})

	res := m.Match("/scan", scanRecord())
	assert.True(t, res.Matched)
	assert.Equal(t, []string{"header.frame_id"}, res.Paths)
}

func TestMatcher_TopicApplicability(t *testing.T) {
	specs := []match.Spec{
		{Topic: "/scan*", Path: "header.frame_id", Value: "laser"},
	}
	m := compile(t, specs, match.Options{})

	assert.True(t, m.Match("/scan_front", scanRecord()).Matched)

	// No spec applies to this topic, so nothing can match.
	assert.False(t, m.Match("/camera", scanRecord()).Matched)
}

func TestMatcher_AllApplicableMustMatch(t *testing.T) {
	specs := []match.Spec{
		{Path: "header.frame_id", Value: "laser"},
		{Path: "ranges", Value: "4.5"},
	}
	m := compile(t, specs, match.Options{})

	res := m.Match("/scan", scanRecord())
	assert.True(t, res.Matched)
	if diff := cmp.Diff([]string{"header.frame_id", "ranges[1]"}, res.Paths); diff != "" {
		t.Errorf("paths mismatch (-want +got):\n%s", diff)
	}

	// Second spec fails: the record does not match even though the first holds.
	specs[1].Value = "no_such_value"
	m = compile(t, specs, match.Options{})
	assert.False(t, m.Match("/scan", scanRecord()).Matched)
}

func TestMatcher_Invert(t *testing.T) {
	m := compile(t, []match.Spec{{Path: "header.frame_id", Value: "laser"}},
		match.Options{Invert: true})

	// Satisfying records are suppressed.
	assert.False(t, m.Match("/scan", scanRecord()).Matched)

	// Non-satisfying records come through, without paths.
	res := m.Match("/scan", message.Map(message.F("header", message.Map(
		message.F("frame_id", message.Str("camera")),
	))))
	assert.True(t, res.Matched)
	assert.Empty(t, res.Paths)
}

func TestMatcher_CaseSensitivity(t *testing.T) {
	// Default is case-insensitive.
	m := compile(t, []match.Spec{{Path: "header.frame_id", Value: "LASER"}}, match.Options{})
	assert.True(t, m.Match("/scan", scanRecord()).Matched)

	m = compile(t, []match.Spec{{Path: "header.frame_id", Value: "LASER"}},
		match.Options{CaseSensitive: true})
	assert.False(t, m.Match("/scan", scanRecord()).Matched)
}

func TestMatcher_RawLiteral(t *testing.T) {
	data := message.Map(message.F("expr", message.Str("a.b*c")))

	// Raw disables regex interpretation.
	m := compile(t, []match.Spec{{Path: "expr", Value: "a.b*c"}}, match.Options{Raw: true})
	assert.True(t, m.Match("/t", data).Matched)

	m = compile(t, []match.Spec{{Path: "expr", Value: "a.b*c"}}, match.Options{Raw: true})
	assert.False(t, m.Match("/t", message.Map(message.F("expr", message.Str("aXbc")))).Matched)
}

func TestCompile_Errors(t *testing.T) {
	tests := []struct {
		name string
		spec match.Spec
	}{
		{"bad value regex", match.Spec{Path: "x", Value: "(unclosed"}},
		{"empty path segment", match.Spec{Path: "a..b", Value: "1"}},
		{"malformed index", match.Spec{Path: "a[x]", Value: "1"}},
		{"negative index", match.Spec{Path: "a[-1]", Value: "1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := match.Compile([]match.Spec{tt.spec}, match.Options{})
			assert.Error(t, err)
		})
	}
}
