package ir

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonicalBasic(t *testing.T) {
	tests := []struct {
		name     string
		input    Value
		expected string
	}{
		{"string", String("hello"), `"hello"`},
		{"empty string", String(""), `""`},
		{"int", Int(42), "42"},
		{"negative int", Int(-100), "-100"},
		{"float", Float(1.5), "1.5"},
		{"large float", Float(1e21), "1e+21"},
		{"bool", Bool(true), "true"},
		{"null", Null{}, "null"},
		{"absent", nil, "null"},
		{"empty array", Array{}, "[]"},
		{"empty object", Object{}, "{}"},
		{"array", Array{Int(1), String("a"), nil}, `[1,"a",null]`},
		{"object", Object{"b": Int(1), "a": Int(2)}, `{"a":2,"b":1}`},
		{"absent field omitted", Object{"a": Int(1), "gone": nil}, `{"a":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := MarshalCanonical(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(result))
		})
	}
}

func TestMarshalCanonicalStrings(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"no html escaping", "<a & b>", `"<a & b>"`},
		{"quote and backslash", `say "hi" \ bye`, `"say \"hi\" \\ bye"`},
		{"newline and tab", "a\nb\tc", `"a\nb\tc"`},
		{"other control", "\x01", `"\u0001"`},
		{"line separator kept literal", "a\u2028b", "\"a\u2028b\""},
		{"nfc normalized", "e\u0301", "\"\u00e9\""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := MarshalCanonical(String(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(result))
		})
	}
}

func TestMarshalCanonicalNested(t *testing.T) {
	doc := Object{
		"_id":  String("post-1"),
		"text": String("post 1"),
		"authorCache": Object{
			"_id":  String("author-1"),
			"name": String("author 1"),
		},
		"numberOfComments": Int(1),
	}

	result, err := MarshalCanonical(doc)
	require.NoError(t, err)
	assert.Equal(t,
		`{"_id":"post-1","authorCache":{"_id":"author-1","name":"author 1"},"numberOfComments":1,"text":"post 1"}`,
		string(result))
}

func TestMarshalCanonicalRejectsNaN(t *testing.T) {
	_, err := MarshalCanonical(Object{"x": Float(math.NaN())})
	require.Error(t, err)
}

func TestMarshalIsLossless(t *testing.T) {
	tests := []struct {
		name     string
		input    Value
		expected string
	}{
		{"integral float", Float(2), "2.0"},
		{"negative integral float", Float(-3), "-3.0"},
		{"fractional float", Float(1.5), "1.5"},
		{"exponent float", Float(1e21), "1e+21"},
		{"int", Int(2), "2"},
		{"decomposed string", String("e\u0301"), "\"e\u0301\""},
		{"decomposed and composed keys", Object{"e\u0301": Int(1), "\u00e9": Int(2)}, "{\"e\u0301\":1,\"\u00e9\":2}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Marshal(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(result))

			back, err := ParseJSON(result)
			require.NoError(t, err)
			assert.True(t, Equal(tt.input, back), "round trip of %s gave %#v", result, back)
		})
	}
}

func TestMarshalCanonicalIsLossy(t *testing.T) {
	composed, err := MarshalCanonical(Object{"s": String("\u00e9"), "n": Int(2)})
	require.NoError(t, err)
	decomposed, err := MarshalCanonical(Object{"s": String("e\u0301"), "n": Float(2)})
	require.NoError(t, err)
	assert.Equal(t, string(composed), string(decomposed))
}
