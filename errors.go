package phi

import (
	"errors"
	"fmt"

	"github.com/mbridgescode/BridgesPhysiotherapyServices-sub002/internal/processor"
)

var (
	// Configuration errors
	ErrConfigurationMissing = errors.New("configuration missing")
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// Crypto errors
	ErrEnvelopeMalformed = errors.New("malformed envelope")
	ErrDecryptionFailed  = errors.New("decryption failed")
	ErrEncryptionFailed  = errors.New("encryption failed")

	// Field errors
	ErrFieldReadFailed  = errors.New("field read failed")
	ErrUnsupportedField = processor.ErrUnsupportedField

	// Provider errors
	ErrKeySourceUnavailable = errors.New("key source unavailable")
)

// NewMissingKeyError reports absent key material at init.
func NewMissingKeyError(name string) error {
	return fmt.Errorf("%w: %s key material is not set", ErrConfigurationMissing, name)
}

// NewShortKeyError reports key material below the minimum length at init.
func NewShortKeyError(name string, got, want int) error {
	return fmt.Errorf("%w: %s key is %d bytes, need at least %d", ErrConfigurationMissing, name, got, want)
}

// IsConfigurationError returns true if the error represents a configuration
// problem that should fail process startup.
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrConfigurationMissing) ||
		errors.Is(err, ErrInvalidConfiguration)
}

// IsCryptoError returns true if the error came out of the envelope codec.
func IsCryptoError(err error) bool {
	return errors.Is(err, ErrDecryptionFailed) ||
		errors.Is(err, ErrEncryptionFailed) ||
		errors.Is(err, ErrEnvelopeMalformed)
}
