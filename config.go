package phi

import (
	"fmt"
	"os"

	"github.com/hengadev/errsx"
	"gopkg.in/yaml.v3"
)

// Config is the process-wide configuration, loaded once at startup. It names
// where key material comes from and pins the two knobs that are part of the
// on-disk contract: the KDF parameters and the token prefix bounds.
type Config struct {
	Keys    KeysConfig    `yaml:"keys"`
	KDF     KDFParams     `yaml:"kdf"`
	Index   IndexConfig   `yaml:"index"`
	Store   StoreConfig   `yaml:"store"`
	Archive ArchiveConfig `yaml:"archive"`
}

// KeysConfig selects and parameterises the key-material source.
type KeysConfig struct {
	// Source is one of "env", "vault", "aws".
	Source string `yaml:"source"`

	// EnvFile is an optional .env file loaded before reading environment
	// variables (source "env" only).
	EnvFile string `yaml:"env_file"`

	// VaultAlias scopes the Vault KV v2 path for source "vault".
	VaultAlias string `yaml:"vault_alias"`

	// AWSSecretID and AWSRegion locate the secret for source "aws".
	AWSSecretID string `yaml:"aws_secret_id"`
	AWSRegion   string `yaml:"aws_region"`
}

// IndexConfig holds the blind-index prefix bounds. Changing them invalidates
// every stored token set; run `phitool reindex` afterwards.
type IndexConfig struct {
	MinPrefix int `yaml:"min_prefix"`
	MaxPrefix int `yaml:"max_prefix"`
}

// StoreConfig locates the patient store.
type StoreConfig struct {
	// DSN is the SQLite data source name, e.g. "file:clinic.db".
	DSN string `yaml:"dsn"`
}

// ArchiveConfig locates the encrypted export archive.
type ArchiveConfig struct {
	Bucket string `yaml:"bucket"`
	Region string `yaml:"region"`
	Prefix string `yaml:"prefix"`
}

// DefaultConfig returns the configuration new deployments start from.
func DefaultConfig() *Config {
	return &Config{
		Keys:  KeysConfig{Source: "env"},
		KDF:   DefaultKDFParams(),
		Index: IndexConfig{MinPrefix: 2, MaxPrefix: 6},
		Store: StoreConfig{DSN: "file:clinic.db"},
	}
}

// LoadConfig reads a YAML configuration file and validates it.
func LoadConfig(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: config file not found: %s", ErrConfigurationMissing, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config file: %v", ErrInvalidConfiguration, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration and applies defaults to optional fields.
// All violations are collected before returning.
func (c *Config) Validate() error {
	var errs errsx.Map

	switch c.Keys.Source {
	case "env":
		// nothing else required; material comes from the environment
	case "vault":
		if c.Keys.VaultAlias == "" {
			errs.Set("keys.vault_alias", fmt.Errorf("%w: required for the vault key source", ErrConfigurationMissing))
		}
	case "aws":
		if c.Keys.AWSSecretID == "" {
			errs.Set("keys.aws_secret_id", fmt.Errorf("%w: required for the aws key source", ErrConfigurationMissing))
		}
	case "":
		c.Keys.Source = "env"
	default:
		errs.Set("keys.source", fmt.Errorf("%w: unknown key source %q", ErrInvalidConfiguration, c.Keys.Source))
	}

	if c.KDF.Time == 0 {
		c.KDF.Time = DefaultKDFParams().Time
	}
	if c.KDF.MemoryKiB == 0 {
		c.KDF.MemoryKiB = DefaultKDFParams().MemoryKiB
	}
	if c.KDF.Parallelism == 0 {
		c.KDF.Parallelism = DefaultKDFParams().Parallelism
	}

	if c.Index.MinPrefix == 0 {
		c.Index.MinPrefix = 2
	}
	if c.Index.MaxPrefix == 0 {
		c.Index.MaxPrefix = 6
	}
	if c.Index.MinPrefix < 1 {
		errs.Set("index.min_prefix", fmt.Errorf("%w: must be at least 1", ErrInvalidConfiguration))
	}
	if c.Index.MaxPrefix < c.Index.MinPrefix {
		errs.Set("index.max_prefix", fmt.Errorf("%w: must be >= min_prefix", ErrInvalidConfiguration))
	}

	if c.Store.DSN == "" {
		c.Store.DSN = "file:clinic.db"
	}

	if errs.IsEmpty() {
		return nil
	}
	return errs.AsError()
}
