package phi

import (
	"context"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/argon2"
)

// MinKeyBytes is the minimum accepted length for either key. 32 bytes gives
// AES-256 for the master key and a full-width HMAC key for the index key.
const MinKeyBytes = 32

// KDFParams are the Argon2id parameters used to stretch passphrase material
// into keys. They are part of the on-disk contract: data written under one
// parameter set cannot be read after the parameters change, so deployments
// must pin them.
type KDFParams struct {
	Time        uint32 `yaml:"time"`
	MemoryKiB   uint32 `yaml:"memory_kib"`
	Parallelism uint8  `yaml:"parallelism"`
}

// DefaultKDFParams is the documented parameter set new deployments start
// from: 3 passes over 64 MiB with 2 lanes.
func DefaultKDFParams() KDFParams {
	return KDFParams{Time: 3, MemoryKiB: 64 * 1024, Parallelism: 2}
}

// KeyMaterial is the environment-supplied input for a single key: either raw
// base64 used verbatim, or a passphrase stretched through the KDF.
type KeyMaterial struct {
	Base64     string
	Passphrase string
}

func (m KeyMaterial) isZero() bool {
	return m.Base64 == "" && m.Passphrase == ""
}

// Material carries the inputs for both keys plus the KDF salt shared by any
// passphrase-derived key.
type Material struct {
	Master KeyMaterial
	Index  KeyMaterial
	Salt   []byte
}

// KeySource resolves key material from wherever the deployment keeps it
// (environment, Vault, AWS Secrets Manager). Implementations live under
// providers/.
type KeySource interface {
	Resolve(ctx context.Context) (Material, error)
}

// Keyring holds the master encryption key and the search-index key for the
// life of the process. Both are resolved once at construction and never
// change; concurrent readers need no synchronisation.
type Keyring struct {
	master []byte
	index  []byte
	params KDFParams
}

// NewKeyring resolves both keys from source and fails fast if either is
// absent or shorter than MinKeyBytes.
func NewKeyring(ctx context.Context, source KeySource, opts ...Option) (*Keyring, error) {
	if source == nil {
		return nil, fmt.Errorf("%w: key source is nil", ErrConfigurationMissing)
	}

	cfg := keyringConfig{params: DefaultKDFParams()}
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	material, err := source.Resolve(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeySourceUnavailable, err)
	}

	master, err := deriveKey("master", material.Master, material.Salt, cfg.params)
	if err != nil {
		return nil, err
	}
	index, err := deriveKey("index", material.Index, material.Salt, cfg.params)
	if err != nil {
		return nil, err
	}

	return &Keyring{master: master, index: index, params: cfg.params}, nil
}

// MasterKey returns a copy of the AEAD key.
func (k *Keyring) MasterKey() []byte {
	out := make([]byte, len(k.master))
	copy(out, k.master)
	return out
}

// IndexKey returns a copy of the blind-index HMAC key.
func (k *Keyring) IndexKey() []byte {
	out := make([]byte, len(k.index))
	copy(out, k.index)
	return out
}

// KDFParams returns the parameter set the keyring was built with.
func (k *Keyring) KDFParams() KDFParams {
	return k.params
}

// deriveKey turns one key's material into key bytes. Raw base64 wins when
// both forms are present. Passphrase derivation salts with the shared salt
// plus a per-key label, so one passphrase cannot yield identical master and
// index keys.
func deriveKey(name string, m KeyMaterial, salt []byte, params KDFParams) ([]byte, error) {
	if m.isZero() {
		return nil, NewMissingKeyError(name)
	}

	if m.Base64 != "" {
		key, err := base64.StdEncoding.DecodeString(m.Base64)
		if err != nil {
			return nil, fmt.Errorf("%w: %s key is not valid base64: %v", ErrConfigurationMissing, name, err)
		}
		if len(key) < MinKeyBytes {
			return nil, NewShortKeyError(name, len(key), MinKeyBytes)
		}
		return key, nil
	}

	if len(salt) < 8 {
		return nil, fmt.Errorf("%w: passphrase-derived %s key needs a salt of at least 8 bytes, got %d",
			ErrConfigurationMissing, name, len(salt))
	}
	labelled := append(append([]byte{}, salt...), []byte(name)...)
	key := argon2.IDKey([]byte(m.Passphrase), labelled, params.Time, params.MemoryKiB, params.Parallelism, MinKeyBytes)
	return key, nil
}
