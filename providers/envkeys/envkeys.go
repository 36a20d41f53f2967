// Package envkeys resolves key material from the process environment,
// optionally preloaded from a .env file. This is the default source for
// development and for deployments that inject secrets through their
// orchestrator.
package envkeys

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	phi "github.com/mbridgescode/BridgesPhysiotherapyServices-sub002"
)

// Environment variables read by Resolve. For each key, the base64 form wins
// over the passphrase form when both are set.
const (
	EnvMasterKey        = "CLINIC_MASTER_KEY"
	EnvMasterPassphrase = "CLINIC_MASTER_PASSPHRASE"
	EnvIndexKey         = "CLINIC_INDEX_KEY"
	EnvIndexPassphrase  = "CLINIC_INDEX_PASSPHRASE"
	EnvKDFSalt          = "CLINIC_KDF_SALT"
)

// Source reads key material from environment variables.
type Source struct {
	envFile string
}

// New returns an environment source. envFile is optional; when non-empty it
// is loaded into the environment first without overriding variables that are
// already set.
func New(envFile string) *Source {
	return &Source{envFile: envFile}
}

// Resolve implements phi.KeySource.
func (s *Source) Resolve(ctx context.Context) (phi.Material, error) {
	if s.envFile != "" {
		if err := godotenv.Load(s.envFile); err != nil {
			return phi.Material{}, fmt.Errorf("failed to load env file %s: %w", s.envFile, err)
		}
	}

	material := phi.Material{
		Master: phi.KeyMaterial{
			Base64:     os.Getenv(EnvMasterKey),
			Passphrase: os.Getenv(EnvMasterPassphrase),
		},
		Index: phi.KeyMaterial{
			Base64:     os.Getenv(EnvIndexKey),
			Passphrase: os.Getenv(EnvIndexPassphrase),
		},
	}

	if salt := os.Getenv(EnvKDFSalt); salt != "" {
		raw, err := base64.StdEncoding.DecodeString(salt)
		if err != nil {
			return phi.Material{}, fmt.Errorf("%s is not valid base64: %w", EnvKDFSalt, err)
		}
		material.Salt = raw
	}

	return material, nil
}
