package ident

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonical(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"string", "latte", `"latte"`},
		{"int", 42, `42`},
		{"int64", int64(-7), `-7`},
		{"bool", true, `true`},
		{"no html escaping", "a<b>&c", `"a<b>&c"`},
		{"control chars", "a\nb\x01", `"a\nb\u0001"`},
		{"line separator literal", "a\u2028b", "\"a\u2028b\""},
		{"sorted keys", map[string]any{"b": 1, "a": 2, "A": 3}, `{"A":3,"a":2,"b":1}`},
		{"nested", map[string]any{"ids": []string{"x", "y"}, "n": []any{1, "z"}}, `{"ids":["x","y"],"n":[1,"z"]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MarshalCanonical(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestMarshalCanonical_NFC(t *testing.T) {
	// "e" + combining acute accent normalizes to the precomposed form.
	decomposed, err := MarshalCanonical("cafe\u0301")
	require.NoError(t, err)
	composed, err := MarshalCanonical("caf\u00e9")
	require.NoError(t, err)
	assert.Equal(t, composed, decomposed)
}

func TestMarshalCanonical_Rejects(t *testing.T) {
	_, err := MarshalCanonical(1.5)
	assert.Error(t, err)

	_, err = MarshalCanonical(nil)
	assert.Error(t, err)

	_, err = MarshalCanonical(map[string]any{"x": 2.0})
	assert.Error(t, err)

	_, err = MarshalCanonical(struct{}{})
	assert.Error(t, err)
}

func TestLessUTF16_SurrogatesSortAfterBMP(t *testing.T) {
	// U+1F600 encodes as a surrogate pair starting 0xD83D, which sorts before
	// U+FB01 (0xFB01) in UTF-16 even though its code point is larger.
	assert.True(t, lessUTF16("\U0001F600", "ﬁ"))
	assert.False(t, lessUTF16("ﬁ", "\U0001F600"))
}
