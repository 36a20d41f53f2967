// Package envelope implements the on-disk ciphertext envelope format.
//
// An envelope is the self-describing ASCII string
//
//	ENC:v1:<base64 iv>:<base64 ciphertext>:<base64 tag>
//
// so encrypted values can live in ordinary string columns next to plaintext
// ones and be recognised on the way out.
package envelope

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

const (
	// Marker prefixes every envelope regardless of version.
	Marker = "ENC:"

	// Version is the envelope version written by Encode.
	Version = "v1"

	// Prefix is the full marker+version prefix of a current envelope.
	Prefix = Marker + Version + ":"

	// IVSize is the AES-GCM nonce length in bytes.
	IVSize = 12

	// TagSize is the AES-GCM authentication tag length in bytes.
	TagSize = 16
)

var (
	ErrMalformed      = errors.New("malformed envelope")
	ErrUnknownVersion = errors.New("unknown envelope version")
)

// Envelope is a parsed ciphertext envelope.
type Envelope struct {
	Version    string
	IV         []byte
	Ciphertext []byte
	Tag        []byte
}

// IsEnvelope reports whether s begins with the envelope marker and a known
// version. It is a cheap prefix check, not a structural validation; Parse is
// the authority on well-formedness.
func IsEnvelope(s string) bool {
	return strings.HasPrefix(s, Prefix)
}

// Encode formats the components into an envelope string.
func Encode(iv, ciphertext, tag []byte) string {
	return Prefix +
		base64.StdEncoding.EncodeToString(iv) + ":" +
		base64.StdEncoding.EncodeToString(ciphertext) + ":" +
		base64.StdEncoding.EncodeToString(tag)
}

// Parse splits and validates an envelope string. The string must contain
// exactly four colons, carry a known version, and its IV and tag components
// must decode to their fixed lengths.
func Parse(s string) (*Envelope, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 5 {
		return nil, fmt.Errorf("%w: expected 5 segments, got %d", ErrMalformed, len(parts))
	}
	if parts[0]+":" != Marker {
		return nil, fmt.Errorf("%w: missing %q marker", ErrMalformed, Marker)
	}
	if parts[1] != Version {
		return nil, fmt.Errorf("%w: %q", ErrUnknownVersion, parts[1])
	}

	iv, err := base64.StdEncoding.DecodeString(parts[2])
	if err != nil {
		return nil, fmt.Errorf("%w: iv is not base64: %v", ErrMalformed, err)
	}
	if len(iv) != IVSize {
		return nil, fmt.Errorf("%w: iv must be %d bytes, got %d", ErrMalformed, IVSize, len(iv))
	}

	ciphertext, err := base64.StdEncoding.DecodeString(parts[3])
	if err != nil {
		return nil, fmt.Errorf("%w: ciphertext is not base64: %v", ErrMalformed, err)
	}

	tag, err := base64.StdEncoding.DecodeString(parts[4])
	if err != nil {
		return nil, fmt.Errorf("%w: tag is not base64: %v", ErrMalformed, err)
	}
	if len(tag) != TagSize {
		return nil, fmt.Errorf("%w: tag must be %d bytes, got %d", ErrMalformed, TagSize, len(tag))
	}

	return &Envelope{
		Version:    parts[1],
		IV:         iv,
		Ciphertext: ciphertext,
		Tag:        tag,
	}, nil
}
