package phi

import "fmt"

type keyringConfig struct {
	params KDFParams
}

// Option configures NewKeyring.
type Option func(*keyringConfig) error

// WithKDFParams overrides the Argon2id parameters used for passphrase
// material. Changing these on an existing deployment invalidates every value
// encrypted under passphrase-derived keys, so treat them as frozen once data
// exists.
func WithKDFParams(params KDFParams) Option {
	return func(c *keyringConfig) error {
		if params.Time == 0 {
			return fmt.Errorf("%w: KDF time parameter cannot be 0", ErrInvalidConfiguration)
		}
		if params.MemoryKiB < 8*1024 {
			return fmt.Errorf("%w: KDF memory must be at least 8 MiB, got %d KiB", ErrInvalidConfiguration, params.MemoryKiB)
		}
		if params.Parallelism == 0 {
			return fmt.Errorf("%w: KDF parallelism cannot be 0", ErrInvalidConfiguration)
		}
		c.params = params
		return nil
	}
}
