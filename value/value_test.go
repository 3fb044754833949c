package value

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestFromGJSONKinds(t *testing.T) {
	tests := []struct {
		raw  string
		kind Kind
	}{
		{`null`, Null},
		{`true`, Bool},
		{`false`, Bool},
		{`3.5`, Number},
		{`"x"`, String},
		{`[1,"a",null]`, Array},
		{`{"a":{"b":[true]}}`, Object},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			v := FromGJSON(gjson.Parse(tt.raw))
			assert.Equal(t, tt.kind, v.Kind())
			assert.JSONEq(t, tt.raw, v.String())
		})
	}
}

func TestMissingGJSONIsNull(t *testing.T) {
	v := FromGJSON(gjson.Get(`{"a":1}`, "b"))
	assert.True(t, v.IsNull())
}

func TestAccessorsReportKind(t *testing.T) {
	s, ok := StringOf("BERT").AsString()
	assert.True(t, ok)
	assert.Equal(t, "BERT", s)

	_, ok = NumberOf(1).AsString()
	assert.False(t, ok)

	n, ok := NumberOf(2017).AsNumber()
	assert.True(t, ok)
	assert.Equal(t, 2017.0, n)

	arr, ok := ArrayOf(BoolOf(true)).AsArray()
	require.True(t, ok)
	assert.Len(t, arr, 1)

	m, ok := MapOf(nil).AsMap()
	require.True(t, ok)
	assert.NotNil(t, m)
}

func TestEqualIgnoresKeyOrder(t *testing.T) {
	a := mustParse(t, `{"x":1,"y":{"z":[1,2]}}`)
	b := mustParse(t, `{"y":{"z":[1,2]},"x":1}`)
	c := mustParse(t, `{"y":{"z":[2,1]},"x":1}`)

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.False(t, StringOf("1").Equal(NumberOf(1)))
	assert.True(t, Map(nil).Equal(Map{}))
}

func TestFromPlainGo(t *testing.T) {
	v, err := From(map[string]any{
		"year":    2017,
		"authors": []any{"Vaswani", "Shazeer"},
		"peer":    true,
		"doi":     nil,
		"score":   json.Number("0.93"),
	})
	require.NoError(t, err)

	m, ok := v.AsMap()
	require.True(t, ok)
	assert.Equal(t, map[string]any{
		"year":    2017.0,
		"authors": []any{"Vaswani", "Shazeer"},
		"peer":    true,
		"doi":     nil,
		"score":   0.93,
	}, m.Interface())

	_, err = From(struct{}{})
	assert.Error(t, err)
	_, err = From([]any{1, make(chan int)})
	assert.ErrorContains(t, err, "index 1")
}

func TestMapWithDoesNotMutate(t *testing.T) {
	orig := Map{"a": NumberOf(1)}
	next := orig.With("source", StringOf("doc1"))

	_, has := orig.Get("source")
	assert.False(t, has)
	src, ok := next.GetString("source")
	assert.True(t, ok)
	assert.Equal(t, "doc1", src)

	var nilMap Map
	assert.Len(t, nilMap.With("k", NullValue()), 1)
}

func TestMapMarshalSortedKeys(t *testing.T) {
	m := Map{"b": NumberOf(2), "a": StringOf("x"), "c": ArrayOf()}
	raw, err := json.Marshal(m)
	require.NoError(t, err)
	assert.Equal(t, `{"a":"x","b":2,"c":[]}`, string(raw))

	raw, err = json.Marshal(Map(nil))
	require.NoError(t, err)
	assert.Equal(t, `{}`, string(raw))
}

func TestMapUnmarshal(t *testing.T) {
	var m Map
	require.NoError(t, json.Unmarshal([]byte(`null`), &m))
	assert.NotNil(t, m)
	assert.Empty(t, m)

	assert.Error(t, json.Unmarshal([]byte(`[1]`), &m))

	type wrapper struct {
		Props Map `json:"props"`
	}
	var w wrapper
	require.NoError(t, json.Unmarshal([]byte(`{"props":{"k":{"n":1}}}`), &w))
	inner, ok := w.Props["k"].AsMap()
	require.True(t, ok)
	assert.True(t, inner["n"].Equal(NumberOf(1)))
}

func TestParseMap(t *testing.T) {
	m, err := ParseMap(nil)
	require.NoError(t, err)
	assert.Empty(t, m)

	m, err = ParseMap([]byte(`{"source":"doc1"}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"source"}, m.Keys())

	_, err = ParseMap([]byte(`{broken`))
	assert.Error(t, err)
}

func mustParse(t *testing.T, raw string) Map {
	t.Helper()
	m, err := ParseMap([]byte(raw))
	require.NoError(t, err)
	return m
}

func TestLargeIntegersRoundTrip(t *testing.T) {
	m, err := ParseMap([]byte(`{"year":12345678901234567890,"neg":-9007199254740993,"small":42,"ratio":1.5e300}`))
	require.NoError(t, err)

	out, err := m.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `{"neg":-9007199254740993,"ratio":1.5e+300,"small":42,"year":12345678901234567890}`, string(out))

	again, err := ParseMap(out)
	require.NoError(t, err)
	assert.True(t, m.Equal(again))

	n, ok := m["year"].AsNumber()
	assert.True(t, ok)
	assert.InDelta(t, 1.2345678901234567e19, n, 1e4)
	assert.Equal(t, NumberOf(42), m["small"])
}
