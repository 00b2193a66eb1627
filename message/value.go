package message

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Kind identifies the variant held by a Value.
type Kind uint8

const (
	// KindInvalid is the zero Value, produced by missing fields and JSON null.
	KindInvalid Kind = iota
	// KindBool holds a boolean scalar.
	KindBool
	// KindInt holds a signed integer scalar.
	KindInt
	// KindUint holds an unsigned integer scalar.
	KindUint
	// KindFloat holds a floating point scalar.
	KindFloat
	// KindString holds a string scalar.
	KindString
	// KindList holds an ordered sequence of values.
	KindList
	// KindMap holds an ordered set of named fields.
	KindMap
)

// String returns the string representation of Kind.
func (k Kind) String() string {
	switch k {
	case KindInvalid:
		return "invalid"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindUint:
		return "uint"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	default:
		return "unknown"
	}
}

// Value is the decoded body of a record: a tagged union of scalar, sequence,
// and mapping variants. Mapping fields keep their declaration order, which
// matters for schema inference, canonical digests, and rendered output.
//
// The zero Value has KindInvalid and is returned for absent fields. Values are
// immutable once built; Sources construct them and everything downstream only
// reads.
type Value struct {
	kind Kind
	b    bool
	i    int64
	u    uint64
	f    float64
	s    string
	seq  []Value
	flds []Field
}

// Field is one named entry of a mapping Value.
type Field struct {
	Name  string
	Value Value
}

// Bool returns a boolean scalar Value.
func Bool(b bool) Value {
	return Value{kind: KindBool, b: b}
}

// Int returns a signed integer scalar Value.
func Int(i int64) Value {
	return Value{kind: KindInt, i: i}
}

// Uint returns an unsigned integer scalar Value.
func Uint(u uint64) Value {
	return Value{kind: KindUint, u: u}
}

// Float returns a floating point scalar Value.
func Float(f float64) Value {
	return Value{kind: KindFloat, f: f}
}

// Str returns a string scalar Value.
func Str(s string) Value {
	return Value{kind: KindString, s: s}
}

// List returns a sequence Value over the given items.
func List(items ...Value) Value {
	if items == nil {
		items = []Value{}
	}
	return Value{kind: KindList, seq: items}
}

// Map returns a mapping Value over the given fields, preserving order.
func Map(fields ...Field) Value {
	if fields == nil {
		fields = []Field{}
	}
	return Value{kind: KindMap, flds: fields}
}

// F is a convenience constructor for a mapping field.
func F(name string, v Value) Field {
	return Field{Name: name, Value: v}
}

// Kind returns the variant tag of the value.
func (v Value) Kind() Kind {
	return v.kind
}

// IsValid reports whether the value holds any variant at all.
func (v Value) IsValid() bool {
	return v.kind != KindInvalid
}

// BoolValue returns the boolean scalar, or false for other kinds.
func (v Value) BoolValue() bool {
	return v.kind == KindBool && v.b
}

// IntValue returns the signed integer scalar, or 0 for other kinds.
func (v Value) IntValue() int64 {
	if v.kind != KindInt {
		return 0
	}
	return v.i
}

// UintValue returns the unsigned integer scalar, or 0 for other kinds.
func (v Value) UintValue() uint64 {
	if v.kind != KindUint {
		return 0
	}
	return v.u
}

// FloatValue returns the floating point scalar, or 0 for other kinds.
func (v Value) FloatValue() float64 {
	if v.kind != KindFloat {
		return 0
	}
	return v.f
}

// StringValue returns the string scalar, or "" for other kinds.
func (v Value) StringValue() string {
	if v.kind != KindString {
		return ""
	}
	return v.s
}

// Len returns the element count for sequences, the field count for mappings,
// and 0 otherwise.
func (v Value) Len() int {
	switch v.kind {
	case KindList:
		return len(v.seq)
	case KindMap:
		return len(v.flds)
	default:
		return 0
	}
}

// Index returns the i-th element of a sequence, or the zero Value when out of
// range or not a sequence.
func (v Value) Index(i int) Value {
	if v.kind != KindList || i < 0 || i >= len(v.seq) {
		return Value{}
	}
	return v.seq[i]
}

// Fields returns the ordered fields of a mapping, or nil for other kinds.
// Callers must not mutate the returned slice.
func (v Value) Fields() []Field {
	if v.kind != KindMap {
		return nil
	}
	return v.flds
}

// FieldByName returns the named field of a mapping and whether it exists.
func (v Value) FieldByName(name string) (Value, bool) {
	if v.kind != KindMap {
		return Value{}, false
	}
	for _, f := range v.flds {
		if f.Name == name {
			return f.Value, true
		}
	}
	return Value{}, false
}

// IsScalar reports whether the value is a leaf scalar.
func (v Value) IsScalar() bool {
	switch v.kind {
	case KindBool, KindInt, KindUint, KindFloat, KindString:
		return true
	default:
		return false
	}
}

// AsFloat coerces numeric and boolean scalars to float64 for comparisons.
// Returns false for strings, containers, and invalid values.
func (v Value) AsFloat() (float64, bool) {
	switch v.kind {
	case KindBool:
		if v.b {
			return 1, true
		}
		return 0, true
	case KindInt:
		return float64(v.i), true
	case KindUint:
		return float64(v.u), true
	case KindFloat:
		return v.f, true
	default:
		return 0, false
	}
}

// LeafString renders a scalar as the text that patterns match against.
// Containers and invalid values render as "".
func (v Value) LeafString() string {
	switch v.kind {
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindUint:
		return strconv.FormatUint(v.u, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindString:
		return v.s
	default:
		return ""
	}
}

// Equal reports deep equality of two values, including field order.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindInvalid:
		return true
	case KindBool:
		return v.b == other.b
	case KindInt:
		return v.i == other.i
	case KindUint:
		return v.u == other.u
	case KindFloat:
		return v.f == other.f || (math.IsNaN(v.f) && math.IsNaN(other.f))
	case KindString:
		return v.s == other.s
	case KindList:
		if len(v.seq) != len(other.seq) {
			return false
		}
		for i := range v.seq {
			if !v.seq[i].Equal(other.seq[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(v.flds) != len(other.flds) {
			return false
		}
		for i := range v.flds {
			if v.flds[i].Name != other.flds[i].Name {
				return false
			}
			if !v.flds[i].Value.Equal(other.flds[i].Value) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// WalkLeaves visits every scalar leaf in depth-first declaration order with
// its dotted path ("pose.position.x", "ranges[3]"). Returning false from fn
// stops the walk. The return value reports whether the walk ran to completion.
func (v Value) WalkLeaves(fn func(path string, leaf Value) bool) bool {
	return walkLeaves(v, "", fn)
}

func walkLeaves(v Value, prefix string, fn func(path string, leaf Value) bool) bool {
	switch v.kind {
	case KindMap:
		for _, f := range v.flds {
			p := f.Name
			if prefix != "" {
				p = prefix + "." + f.Name
			}
			if !walkLeaves(f.Value, p, fn) {
				return false
			}
		}
		return true
	case KindList:
		for i, item := range v.seq {
			if !walkLeaves(item, fmt.Sprintf("%s[%d]", prefix, i), fn) {
				return false
			}
		}
		return true
	case KindInvalid:
		return true
	default:
		return fn(prefix, v)
	}
}

// MarshalJSON encodes the value as plain JSON: mappings as objects with field
// order preserved, sequences as arrays, scalars as JSON scalars. NaN and
// infinities encode as null since JSON has no representation for them.
func (v Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := v.encodeJSON(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (v Value) encodeJSON(buf *bytes.Buffer) error {
	switch v.kind {
	case KindInvalid:
		buf.WriteString("null")
	case KindBool:
		buf.WriteString(strconv.FormatBool(v.b))
	case KindInt:
		buf.WriteString(strconv.FormatInt(v.i, 10))
	case KindUint:
		buf.WriteString(strconv.FormatUint(v.u, 10))
	case KindFloat:
		if math.IsNaN(v.f) || math.IsInf(v.f, 0) {
			buf.WriteString("null")
			break
		}
		buf.WriteString(strconv.FormatFloat(v.f, 'g', -1, 64))
	case KindString:
		b, err := json.Marshal(v.s)
		if err != nil {
			return err
		}
		buf.Write(b)
	case KindList:
		buf.WriteByte('[')
		for i, item := range v.seq {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := item.encodeJSON(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case KindMap:
		buf.WriteByte('{')
		for i, f := range v.flds {
			if i > 0 {
				buf.WriteByte(',')
			}
			name, err := json.Marshal(f.Name)
			if err != nil {
				return err
			}
			buf.Write(name)
			buf.WriteByte(':')
			if err := f.Value.encodeJSON(buf); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("cannot encode value of kind %d", v.kind)
	}
	return nil
}

// UnmarshalJSON decodes plain JSON into a value tree. Object field order is
// preserved. Integers that fit int64 decode as KindInt, larger positive
// integers as KindUint, everything else numeric as KindFloat.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	decoded, err := decodeValue(dec)
	if err != nil {
		return err
	}
	*v = decoded
	return nil
}

// DecodeJSON decodes a JSON document into a value tree.
func DecodeJSON(data []byte) (Value, error) {
	var v Value
	if err := v.UnmarshalJSON(data); err != nil {
		return Value{}, err
	}
	return v, nil
}

func decodeValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Value{}, err
	}
	return decodeToken(dec, tok)
}

func decodeToken(dec *json.Decoder, tok json.Token) (Value, error) {
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			fields := []Field{}
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return Value{}, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return Value{}, fmt.Errorf("object key is %T, not string", keyTok)
				}
				child, err := decodeValue(dec)
				if err != nil {
					return Value{}, err
				}
				fields = append(fields, Field{Name: key, Value: child})
			}
			if _, err := dec.Token(); err != nil { // closing brace
				return Value{}, err
			}
			return Map(fields...), nil
		case '[':
			items := []Value{}
			for dec.More() {
				item, err := decodeValue(dec)
				if err != nil {
					return Value{}, err
				}
				items = append(items, item)
			}
			if _, err := dec.Token(); err != nil { // closing bracket
				return Value{}, err
			}
			return List(items...), nil
		default:
			return Value{}, fmt.Errorf("unexpected delimiter %q", t)
		}
	case string:
		return Str(t), nil
	case bool:
		return Bool(t), nil
	case json.Number:
		if i, err := strconv.ParseInt(t.String(), 10, 64); err == nil {
			return Int(i), nil
		}
		if u, err := strconv.ParseUint(t.String(), 10, 64); err == nil {
			return Uint(u), nil
		}
		f, err := t.Float64()
		if err != nil {
			return Value{}, err
		}
		return Float(f), nil
	case nil:
		return Value{}, nil
	default:
		return Value{}, fmt.Errorf("unexpected token %T", tok)
	}
}
