package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonicalBasic(t *testing.T) {
	tests := []struct {
		name string
		val  Value
		want string
	}{
		{"string", String("hello"), `"hello"`},
		{"int", Int(-42), `-42`},
		{"bool", Bool(true), `true`},
		{"empty list", List{}, `[]`},
		{"empty object", Object{}, `{}`},
		{"nested", Object{"b": List{Int(1)}, "a": Object{"z": Bool(false), "y": String("")}}, `{"a":{"y":"","z":false},"b":[1]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MarshalCanonical(tt.val)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestMarshalCanonicalNoHTMLEscape(t *testing.T) {
	got, err := MarshalCanonical(String("<a href=\"x\">&</a>"))
	require.NoError(t, err)
	assert.Equal(t, `"<a href=\"x\">&</a>"`, string(got))
}

func TestMarshalCanonicalRejectsFloats(t *testing.T) {
	_, err := MarshalCanonical(3.14)
	assert.Error(t, err)

	_, err = MarshalCanonical(map[string]any{"x": 0.5})
	assert.Error(t, err)
}

func TestMarshalCanonicalRejectsNull(t *testing.T) {
	_, err := MarshalCanonical(nil)
	assert.Error(t, err)
}

func TestMarshalCanonicalNFCNormalization(t *testing.T) {
	// e + combining acute (NFD) must encode as precomposed U+00E9
	nfd := "e\u0301"
	nfc := "\u00e9"

	got1, err := MarshalCanonical(String(nfd))
	require.NoError(t, err)
	got2, err := MarshalCanonical(String(nfc))
	require.NoError(t, err)

	assert.Equal(t, got2, got1)
}

func TestMarshalCanonicalNFCInObjectKeys(t *testing.T) {
	got, err := MarshalCanonical(Object{"e\u0301": Int(1)})
	require.NoError(t, err)
	assert.Equal(t, "{\"\u00e9\":1}", string(got))
}

func TestMarshalCanonicalWithGoTypes(t *testing.T) {
	got, err := MarshalCanonical(map[string]any{"b": []any{"x", 1}, "a": true})
	require.NoError(t, err)
	assert.Equal(t, `{"a":true,"b":["x",1]}`, string(got))
}

func TestMarshalCanonicalU2028U2029NotEscaped(t *testing.T) {
	got, err := MarshalCanonical(String("a\u2028b\u2029c"))
	require.NoError(t, err)
	assert.Equal(t, "\"a\u2028b\u2029c\"", string(got))
}

func TestMarshalCanonicalLiteralBackslashU2028(t *testing.T) {
	// Literal backslash followed by u2028 text must stay escaped
	got, err := MarshalCanonical(String(`\u2028`))
	require.NoError(t, err)
	assert.Equal(t, `"\\u2028"`, string(got))
}

func TestMarshalCanonicalIdempotency(t *testing.T) {
	val := Object{
		"table":       Object{"binary": Object{"prefix": String("ispn_bucket")}},
		"data-source": String("ExampleDS"),
	}
	first, err := MarshalCanonical(val)
	require.NoError(t, err)

	parsed, err := ParseValue(first)
	require.NoError(t, err)
	second, err := MarshalCanonical(parsed)
	require.NoError(t, err)

	assert.Equal(t, string(first), string(second))
}
