package phi

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"
	"time"

	"github.com/mbridgescode/BridgesPhysiotherapyServices-sub002/internal/envelope"
)

// Codec performs authenticated encryption of scalar field values into
// self-describing envelope strings and back. Ciphertext is non-deterministic
// (fresh random IV per call), which is why search is answered by blind-index
// tokens instead of by comparing envelopes.
//
// A Codec is immutable and safe for concurrent use.
type Codec struct {
	aead cipher.AEAD
}

// NewCodec builds a Codec keyed by the keyring's master key.
func NewCodec(keyring *Keyring) (*Codec, error) {
	if keyring == nil {
		return nil, fmt.Errorf("%w: keyring is nil", ErrConfigurationMissing)
	}
	block, err := aes.NewCipher(keyring.MasterKey())
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return &Codec{aead: aead}, nil
}

// IsEnvelope reports whether value looks like a current-version envelope.
func (c *Codec) IsEnvelope(value string) bool {
	return envelope.IsEnvelope(value)
}

// Encrypt seals plaintext under a fresh random IV and returns the formatted
// envelope string. Two calls on the same plaintext produce different
// envelopes.
func (c *Codec) Encrypt(plaintext []byte) (string, error) {
	iv := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", fmt.Errorf("%w: failed to generate IV: %v", ErrEncryptionFailed, err)
	}
	sealed := c.aead.Seal(nil, iv, plaintext, nil)
	// Seal appends the auth tag to the ciphertext; the envelope stores them
	// as separate components.
	split := len(sealed) - envelope.TagSize
	return envelope.Encode(iv, sealed[:split], sealed[split:]), nil
}

// Decrypt parses env and returns the sealed plaintext. A structurally
// invalid or unknown-version string fails with both ErrDecryptionFailed and
// ErrEnvelopeMalformed; a tag mismatch fails with ErrDecryptionFailed.
func (c *Codec) Decrypt(env string) ([]byte, error) {
	parsed, err := envelope.Parse(env)
	if err != nil {
		return nil, fmt.Errorf("%w: %w: %v", ErrDecryptionFailed, ErrEnvelopeMalformed, err)
	}
	sealed := append(append([]byte{}, parsed.Ciphertext...), parsed.Tag...)
	plaintext, err := c.aead.Open(nil, parsed.IV, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: authentication failed", ErrDecryptionFailed)
	}
	return plaintext, nil
}

// EncryptString seals a string value.
func (c *Codec) EncryptString(value string) (string, error) {
	return c.Encrypt([]byte(value))
}

// DecryptString opens an envelope back to a string value.
func (c *Codec) DecryptString(env string) (string, error) {
	plaintext, err := c.Decrypt(env)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

// EncryptDate seals an instant. The wire form is the RFC 3339 UTC instant,
// so logically equal times in different zones encrypt to the same plaintext.
func (c *Codec) EncryptDate(t time.Time) (string, error) {
	return c.Encrypt([]byte(t.UTC().Format(time.RFC3339Nano)))
}

// DecryptDate opens an envelope produced by EncryptDate.
func (c *Codec) DecryptDate(env string) (time.Time, error) {
	plaintext, err := c.Decrypt(env)
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, string(plaintext))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: payload is not an RFC 3339 instant: %v", ErrDecryptionFailed, err)
	}
	return t, nil
}

// EncryptStringSlice seals each element in order. The stored form is an
// ordered sequence of envelopes preserving insertion order.
func (c *Codec) EncryptStringSlice(values []string) ([]string, error) {
	if values == nil {
		return nil, nil
	}
	out := make([]string, len(values))
	for i, v := range values {
		env, err := c.EncryptString(v)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		out[i] = env
	}
	return out, nil
}

// DecryptStringSlice opens each element in order.
func (c *Codec) DecryptStringSlice(envs []string) ([]string, error) {
	if envs == nil {
		return nil, nil
	}
	out := make([]string, len(envs))
	for i, env := range envs {
		v, err := c.DecryptString(env)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}
