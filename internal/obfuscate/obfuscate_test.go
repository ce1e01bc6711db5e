package obfuscate

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestApplyReverse_RoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		o, err := Generate()
		require.NoError(t, err)

		plaintext := rapid.SliceOf(rapid.Byte()).Draw(t, "plaintext")
		sealed, err := o.Apply(plaintext)
		require.NoError(t, err)
		assert.Len(t, sealed, o.SealedSize(len(plaintext)))

		opened, err := o.Reverse(sealed)
		require.NoError(t, err)
		assert.True(t, bytes.Equal(plaintext, opened))
	})
}

func TestApply_OutputIsText(t *testing.T) {
	o, err := Generate()
	require.NoError(t, err)

	sealed, err := o.Apply([]byte(`{"data":{}}`))
	require.NoError(t, err)
	for _, c := range sealed {
		ok := c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '-' || c == '_'
		require.True(t, ok, "unexpected byte %q", c)
	}
}

func TestApply_FreshNoncePerPayload(t *testing.T) {
	o, err := Generate()
	require.NoError(t, err)

	a, err := o.Apply([]byte("same"))
	require.NoError(t, err)
	b, err := o.Apply([]byte("same"))
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestKey_ExportImport(t *testing.T) {
	o, err := Generate()
	require.NoError(t, err)
	sealed, err := o.Apply([]byte("payload"))
	require.NoError(t, err)

	restored, err := FromString(o.Key())
	require.NoError(t, err)
	opened, err := restored.Reverse(sealed)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(opened))
}

func TestReverse_Errors(t *testing.T) {
	o, err := Generate()
	require.NoError(t, err)
	other, err := Generate()
	require.NoError(t, err)

	sealed, err := o.Apply([]byte("payload"))
	require.NoError(t, err)

	tests := []struct {
		name    string
		payload []byte
		opener  *Obfuscator
	}{
		{"not base64", []byte("***"), o},
		{"too short", []byte("AAAA"), o},
		{"wrong key", sealed, other},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.opener.Reverse(tt.payload)
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestNew_InvalidKey(t *testing.T) {
	_, err := New(make([]byte, 16))
	assert.Error(t, err)

	_, err = FromString("not-base64!")
	assert.Error(t, err)
}
