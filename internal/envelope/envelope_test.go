package envelope

import (
	"bytes"
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeParseRoundTrip(t *testing.T) {
	iv := bytes.Repeat([]byte{0x01}, IVSize)
	ct := []byte("some ciphertext bytes")
	tag := bytes.Repeat([]byte{0x02}, TagSize)

	s := Encode(iv, ct, tag)
	require.True(t, IsEnvelope(s))
	assert.Equal(t, 4, strings.Count(s, ":"))

	env, err := Parse(s)
	require.NoError(t, err)
	assert.Equal(t, Version, env.Version)
	assert.Equal(t, iv, env.IV)
	assert.Equal(t, ct, env.Ciphertext)
	assert.Equal(t, tag, env.Tag)
}

func TestParseRejectsMalformed(t *testing.T) {
	iv := base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{0x01}, IVSize))
	ct := base64.StdEncoding.EncodeToString([]byte("ct"))
	tag := base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{0x02}, TagSize))

	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{"empty string", "", ErrMalformed},
		{"plaintext", "Alex", ErrMalformed},
		{"missing marker", "FOO:v1:" + iv + ":" + ct + ":" + tag, ErrMalformed},
		{"unknown version", "ENC:v9:" + iv + ":" + ct + ":" + tag, ErrUnknownVersion},
		{"too few segments", "ENC:v1:" + iv + ":" + ct, ErrMalformed},
		{"too many segments", "ENC:v1:" + iv + ":" + ct + ":" + tag + ":extra", ErrMalformed},
		{"iv not base64", "ENC:v1:***:" + ct + ":" + tag, ErrMalformed},
		{"iv wrong length", "ENC:v1:" + base64.StdEncoding.EncodeToString([]byte("short")) + ":" + ct + ":" + tag, ErrMalformed},
		{"tag wrong length", "ENC:v1:" + iv + ":" + ct + ":" + base64.StdEncoding.EncodeToString([]byte("tiny")), ErrMalformed},
		{"ciphertext not base64", "ENC:v1:" + iv + ":!!!:" + tag, ErrMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.input)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestIsEnvelope(t *testing.T) {
	assert.True(t, IsEnvelope("ENC:v1:whatever"))
	assert.False(t, IsEnvelope("ENC:v2:whatever"))
	assert.False(t, IsEnvelope("enc:v1:whatever"))
	assert.False(t, IsEnvelope(""))
	assert.False(t, IsEnvelope("megan@example.com"))
}
