// Package value is a typed representation of JSON-like data used for the
// open property bags carried by graph nodes and edges.
package value

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/tidwall/gjson"
)

// Kind identifies which variant a Value holds.
type Kind uint8

const (
	Null Kind = iota
	Bool
	Number
	String
	Array
	Object
)

func (k Kind) String() string {
	switch k {
	case Null:
		return "null"
	case Bool:
		return "bool"
	case Number:
		return "number"
	case String:
		return "string"
	case Array:
		return "array"
	case Object:
		return "object"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Value is one JSON-like value. The zero Value is null.
type Value struct {
	kind Kind
	b    bool
	n    float64
	raw  string // integer literal beyond float64 precision, kept verbatim
	s    string
	arr  []Value
	obj  Map
}

// Map is an open mapping from property name to value.
type Map map[string]Value

// NullValue returns the null value.
func NullValue() Value { return Value{} }

// BoolOf wraps a boolean.
func BoolOf(b bool) Value { return Value{kind: Bool, b: b} }

// NumberOf wraps a number.
func NumberOf(n float64) Value { return Value{kind: Number, n: n} }

// StringOf wraps a string.
func StringOf(s string) Value { return Value{kind: String, s: s} }

// ArrayOf wraps a sequence of values.
func ArrayOf(vs ...Value) Value {
	if vs == nil {
		vs = []Value{}
	}
	return Value{kind: Array, arr: vs}
}

// MapOf wraps a mapping.
func MapOf(m Map) Value {
	if m == nil {
		m = Map{}
	}
	return Value{kind: Object, obj: m}
}

// Kind reports the variant held by v.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is null.
func (v Value) IsNull() bool { return v.kind == Null }

// AsBool returns the boolean held by v.
func (v Value) AsBool() (bool, bool) { return v.b, v.kind == Bool }

// AsNumber returns the number held by v.
func (v Value) AsNumber() (float64, bool) { return v.n, v.kind == Number }

// AsString returns the string held by v.
func (v Value) AsString() (string, bool) { return v.s, v.kind == String }

// AsArray returns the sequence held by v.
func (v Value) AsArray() ([]Value, bool) { return v.arr, v.kind == Array }

// AsMap returns the mapping held by v.
func (v Value) AsMap() (Map, bool) { return v.obj, v.kind == Object }

// Equal reports deep equality. Map key order is irrelevant.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case Null:
		return true
	case Bool:
		return v.b == o.b
	case Number:
		if v.raw != "" || o.raw != "" {
			return v.raw == o.raw
		}
		return v.n == o.n
	case String:
		return v.s == o.s
	case Array:
		if len(v.arr) != len(o.arr) {
			return false
		}
		for i := range v.arr {
			if !v.arr[i].Equal(o.arr[i]) {
				return false
			}
		}
		return true
	case Object:
		return v.obj.Equal(o.obj)
	}
	return false
}

// Interface converts v into plain Go values (nil, bool, float64, string,
// []any, map[string]any).
func (v Value) Interface() any {
	switch v.kind {
	case Bool:
		return v.b
	case Number:
		return v.n
	case String:
		return v.s
	case Array:
		out := make([]any, len(v.arr))
		for i, e := range v.arr {
			out[i] = e.Interface()
		}
		return out
	case Object:
		return v.obj.Interface()
	default:
		return nil
	}
}

// String renders v as compact JSON.
func (v Value) String() string {
	b, err := v.MarshalJSON()
	if err != nil {
		return "<invalid>"
	}
	return string(b)
}

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case Null:
		return []byte("null"), nil
	case Bool:
		return json.Marshal(v.b)
	case Number:
		if v.raw != "" {
			return []byte(v.raw), nil
		}
		return json.Marshal(v.n)
	case String:
		return json.Marshal(v.s)
	case Array:
		if v.arr == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.arr)
	case Object:
		return v.obj.MarshalJSON()
	}
	return nil, fmt.Errorf("value: unknown kind %d", v.kind)
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(data []byte) error {
	if !gjson.ValidBytes(data) {
		return fmt.Errorf("value: invalid JSON")
	}
	*v = FromGJSON(gjson.ParseBytes(data))
	return nil
}

// FromGJSON converts a parsed gjson result into a Value. Missing results
// become null.
func FromGJSON(r gjson.Result) Value {
	switch r.Type {
	case gjson.False:
		return BoolOf(false)
	case gjson.True:
		return BoolOf(true)
	case gjson.Number:
		return numberFromLiteral(r.Num, r.Raw)
	case gjson.String:
		return StringOf(r.Str)
	case gjson.JSON:
		if r.IsArray() {
			items := r.Array()
			out := make([]Value, 0, len(items))
			for _, item := range items {
				out = append(out, FromGJSON(item))
			}
			return ArrayOf(out...)
		}
		if r.IsObject() {
			m := Map{}
			r.ForEach(func(key, val gjson.Result) bool {
				m[key.String()] = FromGJSON(val)
				return true
			})
			return MapOf(m)
		}
	}
	return NullValue()
}

// maxExactInt is the largest magnitude at which every integer is exactly
// representable as a float64.
const maxExactInt = 1 << 53

// numberFromLiteral keeps the source text of integers too large for a
// float64, so they survive a decode/encode round trip unchanged. AsNumber
// still reports the nearest float64.
func numberFromLiteral(n float64, lit string) Value {
	v := NumberOf(n)
	if (n >= maxExactInt || n <= -maxExactInt) && !strings.ContainsAny(lit, ".eE") {
		v.raw = strings.TrimSpace(lit)
	}
	return v
}

// From converts a plain Go value into a Value. It accepts the shapes produced
// by encoding/json plus common scalar types.
func From(x any) (Value, error) {
	switch t := x.(type) {
	case nil:
		return NullValue(), nil
	case Value:
		return t, nil
	case Map:
		return MapOf(t), nil
	case bool:
		return BoolOf(t), nil
	case string:
		return StringOf(t), nil
	case float64:
		return NumberOf(t), nil
	case float32:
		return NumberOf(float64(t)), nil
	case int:
		return NumberOf(float64(t)), nil
	case int32:
		return NumberOf(float64(t)), nil
	case int64:
		return NumberOf(float64(t)), nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("value: %w", err)
		}
		return NumberOf(f), nil
	case []any:
		out := make([]Value, 0, len(t))
		for i, e := range t {
			ev, err := From(e)
			if err != nil {
				return Value{}, fmt.Errorf("value: index %d: %w", i, err)
			}
			out = append(out, ev)
		}
		return ArrayOf(out...), nil
	case map[string]any:
		m, err := MapFrom(t)
		if err != nil {
			return Value{}, err
		}
		return MapOf(m), nil
	default:
		return Value{}, fmt.Errorf("value: unsupported type %T", x)
	}
}

// MapFrom converts a plain Go map into a Map.
func MapFrom(in map[string]any) (Map, error) {
	m := make(Map, len(in))
	for k, e := range in {
		ev, err := From(e)
		if err != nil {
			return nil, fmt.Errorf("value: key %q: %w", k, err)
		}
		m[k] = ev
	}
	return m, nil
}

// Get returns the value stored under key.
func (m Map) Get(key string) (Value, bool) {
	v, ok := m[key]
	return v, ok
}

// GetString returns the string stored under key, if any.
func (m Map) GetString(key string) (string, bool) {
	v, ok := m[key]
	if !ok {
		return "", false
	}
	return v.AsString()
}

// Clone returns a shallow copy of m. Nested arrays and maps are shared,
// which is safe because Values are never mutated in place.
func (m Map) Clone() Map {
	out := make(Map, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}

// With returns a copy of m with key set to v.
func (m Map) With(key string, v Value) Map {
	out := m.Clone()
	out[key] = v
	return out
}

// Keys returns the keys of m in sorted order.
func (m Map) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Equal reports deep equality between two maps. A nil map equals an empty one.
func (m Map) Equal(o Map) bool {
	if len(m) != len(o) {
		return false
	}
	for k, v := range m {
		ov, ok := o[k]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}

// Interface converts m into a map[string]any.
func (m Map) Interface() map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v.Interface()
	}
	return out
}

// MarshalJSON implements json.Marshaler. A nil map encodes as {}.
func (m Map) MarshalJSON() ([]byte, error) {
	if len(m) == 0 {
		return []byte("{}"), nil
	}
	var sb strings.Builder
	sb.WriteByte('{')
	for i, k := range m.Keys() {
		if i > 0 {
			sb.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		sb.Write(kb)
		sb.WriteByte(':')
		vb, err := m[k].MarshalJSON()
		if err != nil {
			return nil, err
		}
		sb.Write(vb)
	}
	sb.WriteByte('}')
	return []byte(sb.String()), nil
}

// UnmarshalJSON implements json.Unmarshaler. null decodes to an empty map.
func (m *Map) UnmarshalJSON(data []byte) error {
	if !gjson.ValidBytes(data) {
		return fmt.Errorf("value: invalid JSON")
	}
	r := gjson.ParseBytes(data)
	if r.Type == gjson.Null {
		*m = Map{}
		return nil
	}
	if !r.IsObject() {
		return fmt.Errorf("value: expected object, got %s", FromGJSON(r).Kind())
	}
	obj, _ := FromGJSON(r).AsMap()
	*m = obj
	return nil
}

// ParseMap decodes a JSON object. Empty input decodes to an empty map.
func ParseMap(data []byte) (Map, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return Map{}, nil
	}
	var m Map
	if err := m.UnmarshalJSON(data); err != nil {
		return nil, err
	}
	return m, nil
}
