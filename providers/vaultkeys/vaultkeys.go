// Package vaultkeys resolves clinic key material from a HashiCorp Vault
// KV v2 secrets engine.
//
// Keys are stored as a single KV v2 secret per deployment alias at
// "secret/data/clinic/{alias}/keys". The secret's data map may contain any
// of the fields "master_key", "master_passphrase", "index_key",
// "index_passphrase" and "kdf_salt"; key and salt fields are base64 encoded,
// passphrases are stored verbatim.
//
// The KV v2 engine must be enabled before use:
//
//	vault secrets enable -path=secret kv-v2
package vaultkeys

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"os"

	"github.com/hashicorp/vault/api"

	phi "github.com/mbridgescode/BridgesPhysiotherapyServices-sub002"
)

// Secret data field names inside the KV v2 entry.
const (
	FieldMasterKey        = "master_key"
	FieldMasterPassphrase = "master_passphrase"
	FieldIndexKey         = "index_key"
	FieldIndexPassphrase  = "index_passphrase"
	FieldKDFSalt          = "kdf_salt"
)

// Source reads key material from Vault KV v2. It implements phi.KeySource.
type Source struct {
	client *api.Client
	alias  string
}

// New creates a Source for the given deployment alias. The Vault client is
// configured from the environment (see newClient).
func New(alias string) (*Source, error) {
	if alias == "" {
		return nil, fmt.Errorf("%w: vault key alias is empty", phi.ErrInvalidConfiguration)
	}

	client, err := newClient()
	if err != nil {
		return nil, err
	}

	return &Source{client: client, alias: alias}, nil
}

// NewWithClient creates a Source backed by an existing Vault client. Useful
// in tests and in services that already manage their own client.
func NewWithClient(client *api.Client, alias string) (*Source, error) {
	if client == nil {
		return nil, fmt.Errorf("%w: vault client is nil", phi.ErrInvalidConfiguration)
	}
	if alias == "" {
		return nil, fmt.Errorf("%w: vault key alias is empty", phi.ErrInvalidConfiguration)
	}
	return &Source{client: client, alias: alias}, nil
}

// StoragePath returns the KV v2 path holding this alias's key material.
// The "/data/" segment is required for KV v2 API reads and writes.
func (s *Source) StoragePath() string {
	return fmt.Sprintf("secret/data/clinic/%s/keys", s.alias)
}

// Resolve reads the key secret and maps its fields onto phi.Material.
func (s *Source) Resolve(ctx context.Context) (phi.Material, error) {
	path := s.StoragePath()

	secret, err := s.client.Logical().ReadWithContext(ctx, path)
	if err != nil {
		return phi.Material{}, fmt.Errorf("%w: failed to read keys from Vault KV: %w",
			phi.ErrKeySourceUnavailable, err)
	}
	if secret == nil || secret.Data == nil {
		return phi.Material{}, fmt.Errorf("%w: no key secret at %s",
			phi.ErrConfigurationMissing, path)
	}

	// KV v2 wraps the actual data in a "data" key.
	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return phi.Material{}, fmt.Errorf("%w: invalid KV v2 secret format at %s",
			phi.ErrKeySourceUnavailable, path)
	}

	material := phi.Material{
		Master: phi.KeyMaterial{
			Base64:     stringField(data, FieldMasterKey),
			Passphrase: stringField(data, FieldMasterPassphrase),
		},
		Index: phi.KeyMaterial{
			Base64:     stringField(data, FieldIndexKey),
			Passphrase: stringField(data, FieldIndexPassphrase),
		},
	}

	if saltB64 := stringField(data, FieldKDFSalt); saltB64 != "" {
		salt, err := base64.StdEncoding.DecodeString(saltB64)
		if err != nil {
			return phi.Material{}, fmt.Errorf("%w: %s is not valid base64: %w",
				phi.ErrInvalidConfiguration, FieldKDFSalt, err)
		}
		material.Salt = salt
	}

	return material, nil
}

func stringField(data map[string]interface{}, name string) string {
	v, _ := data[name].(string)
	return v
}

// newClient creates a configured Vault client from environment variables.
//
// Environment variables:
//   - VAULT_ADDR: Vault server address (required)
//   - VAULT_NAMESPACE: namespace for HCP Vault (optional)
//   - VAULT_TOKEN: direct token auth (optional, checked first)
//   - VAULT_ROLE_ID, VAULT_SECRET_ID: AppRole auth (optional pair)
func newClient() (*api.Client, error) {
	config := api.DefaultConfig()

	if addr := os.Getenv("VAULT_ADDR"); addr != "" {
		config.Address = addr
	}
	if config.Address == "" {
		return nil, fmt.Errorf("%w: VAULT_ADDR environment variable is required", phi.ErrInvalidConfiguration)
	}

	config.HttpClient.Transport = &http.Transport{
		Proxy: http.ProxyFromEnvironment,
	}

	client, err := api.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Vault client: %w", phi.ErrKeySourceUnavailable, err)
	}

	if namespace := os.Getenv("VAULT_NAMESPACE"); namespace != "" {
		client.SetNamespace(namespace)
	}

	if token := os.Getenv("VAULT_TOKEN"); token != "" {
		client.SetToken(token)
		return client, nil
	}

	roleID := os.Getenv("VAULT_ROLE_ID")
	secretID := os.Getenv("VAULT_SECRET_ID")
	if roleID != "" && secretID != "" {
		data := map[string]interface{}{
			"role_id":   roleID,
			"secret_id": secretID,
		}

		resp, err := client.Logical().Write("auth/approle/login", data)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to login with AppRole: %w", phi.ErrKeySourceUnavailable, err)
		}
		if resp == nil || resp.Auth == nil {
			return nil, fmt.Errorf("%w: no auth info returned from AppRole login", phi.ErrKeySourceUnavailable)
		}

		client.SetToken(resp.Auth.ClientToken)
		return client, nil
	}

	return nil, fmt.Errorf("%w: no Vault authentication method configured (set VAULT_TOKEN or VAULT_ROLE_ID+VAULT_SECRET_ID)",
		phi.ErrInvalidConfiguration)
}
