package phi_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	phi "github.com/mbridgescode/BridgesPhysiotherapyServices-sub002"
)

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "phi.yaml")
	content := `
keys:
  source: vault
  vault_alias: clinic-prod
kdf:
  time: 4
index:
  min_prefix: 3
  max_prefix: 8
store:
  dsn: "file:/var/lib/clinic/clinic.db"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := phi.LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "vault", cfg.Keys.Source)
	assert.Equal(t, "clinic-prod", cfg.Keys.VaultAlias)
	assert.Equal(t, uint32(4), cfg.KDF.Time)
	// Unset KDF fields fall back to defaults.
	assert.Equal(t, phi.DefaultKDFParams().MemoryKiB, cfg.KDF.MemoryKiB)
	assert.Equal(t, 3, cfg.Index.MinPrefix)
	assert.Equal(t, 8, cfg.Index.MaxPrefix)
	assert.Equal(t, "file:/var/lib/clinic/clinic.db", cfg.Store.DSN)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := phi.LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, phi.ErrConfigurationMissing)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*phi.Config)
		wantErr bool
	}{
		{"defaults are valid", func(c *phi.Config) {}, false},
		{"empty source defaults to env", func(c *phi.Config) { c.Keys.Source = "" }, false},
		{"unknown source", func(c *phi.Config) { c.Keys.Source = "gcp" }, true},
		{"vault without alias", func(c *phi.Config) { c.Keys.Source = "vault" }, true},
		{"aws without secret id", func(c *phi.Config) { c.Keys.Source = "aws" }, true},
		{"max prefix below min", func(c *phi.Config) { c.Index.MinPrefix = 4; c.Index.MaxPrefix = 2 }, true},
		{"negative min prefix", func(c *phi.Config) { c.Index.MinPrefix = -1 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := phi.DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
