package phi_test

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	phi "github.com/mbridgescode/BridgesPhysiotherapyServices-sub002"
)

func b64Key(seed byte) string {
	key := make([]byte, 32)
	for i := range key {
		key[i] = seed
	}
	return base64.StdEncoding.EncodeToString(key)
}

func TestNewKeyring(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		material phi.Material
		wantErr  bool
		errIs    error
	}{
		{
			name: "raw base64 keys",
			material: phi.Material{
				Master: phi.KeyMaterial{Base64: b64Key(0x11)},
				Index:  phi.KeyMaterial{Base64: b64Key(0x22)},
			},
		},
		{
			name: "passphrase keys with salt",
			material: phi.Material{
				Master: phi.KeyMaterial{Passphrase: "correct horse battery staple"},
				Index:  phi.KeyMaterial{Passphrase: "correct horse battery staple"},
				Salt:   []byte("clinic-salt-0001"),
			},
		},
		{
			name: "missing master key",
			material: phi.Material{
				Index: phi.KeyMaterial{Base64: b64Key(0x22)},
			},
			wantErr: true,
			errIs:   phi.ErrConfigurationMissing,
		},
		{
			name: "missing index key",
			material: phi.Material{
				Master: phi.KeyMaterial{Base64: b64Key(0x11)},
			},
			wantErr: true,
			errIs:   phi.ErrConfigurationMissing,
		},
		{
			name: "master key too short",
			material: phi.Material{
				Master: phi.KeyMaterial{Base64: base64.StdEncoding.EncodeToString([]byte("too short"))},
				Index:  phi.KeyMaterial{Base64: b64Key(0x22)},
			},
			wantErr: true,
			errIs:   phi.ErrConfigurationMissing,
		},
		{
			name: "master key not base64",
			material: phi.Material{
				Master: phi.KeyMaterial{Base64: "!!not base64!!"},
				Index:  phi.KeyMaterial{Base64: b64Key(0x22)},
			},
			wantErr: true,
			errIs:   phi.ErrConfigurationMissing,
		},
		{
			name: "passphrase without salt",
			material: phi.Material{
				Master: phi.KeyMaterial{Passphrase: "hunter2hunter2"},
				Index:  phi.KeyMaterial{Base64: b64Key(0x22)},
			},
			wantErr: true,
			errIs:   phi.ErrConfigurationMissing,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kr, err := phi.NewKeyring(ctx, staticSource{material: tt.material})
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.errIs)
				assert.True(t, phi.IsConfigurationError(err))
				return
			}
			require.NoError(t, err)
			assert.Len(t, kr.MasterKey(), 32)
			assert.Len(t, kr.IndexKey(), 32)
			assert.NotEqual(t, kr.MasterKey(), kr.IndexKey())
		})
	}
}

func TestNewKeyringNilSource(t *testing.T) {
	_, err := phi.NewKeyring(context.Background(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, phi.ErrConfigurationMissing)
}

func TestNewKeyringSourceFailure(t *testing.T) {
	_, err := phi.NewKeyring(context.Background(), staticSource{err: errors.New("vault sealed")})
	require.Error(t, err)
	assert.ErrorIs(t, err, phi.ErrKeySourceUnavailable)
}

func TestKeyringPassphraseDerivationIsReproducible(t *testing.T) {
	ctx := context.Background()
	material := phi.Material{
		Master: phi.KeyMaterial{Passphrase: "correct horse battery staple"},
		Index:  phi.KeyMaterial{Passphrase: "other passphrase"},
		Salt:   []byte("clinic-salt-0001"),
	}

	a, err := phi.NewKeyring(ctx, staticSource{material: material})
	require.NoError(t, err)
	b, err := phi.NewKeyring(ctx, staticSource{material: material})
	require.NoError(t, err)

	// Same material, same parameters, same keys on every instance: the
	// KDF is part of the durability contract.
	assert.Equal(t, a.MasterKey(), b.MasterKey())
	assert.Equal(t, a.IndexKey(), b.IndexKey())
}

func TestKeyringKeysAreCopies(t *testing.T) {
	kr, err := phi.NewKeyring(context.Background(), staticSource{material: phi.Material{
		Master: phi.KeyMaterial{Base64: b64Key(0x11)},
		Index:  phi.KeyMaterial{Base64: b64Key(0x22)},
	}})
	require.NoError(t, err)

	leaked := kr.MasterKey()
	leaked[0] ^= 0xFF
	assert.NotEqual(t, leaked, kr.MasterKey())
}

func TestWithKDFParams(t *testing.T) {
	ctx := context.Background()
	material := phi.Material{
		Master: phi.KeyMaterial{Passphrase: "correct horse battery staple"},
		Index:  phi.KeyMaterial{Passphrase: "correct horse battery staple"},
		Salt:   []byte("clinic-salt-0001"),
	}

	standard, err := phi.NewKeyring(ctx, staticSource{material: material})
	require.NoError(t, err)

	tuned, err := phi.NewKeyring(ctx, staticSource{material: material},
		phi.WithKDFParams(phi.KDFParams{Time: 1, MemoryKiB: 16 * 1024, Parallelism: 1}))
	require.NoError(t, err)

	// Different parameters must yield different keys: a parameter change
	// invalidates existing data by construction.
	assert.NotEqual(t, standard.MasterKey(), tuned.MasterKey())

	_, err = phi.NewKeyring(ctx, staticSource{material: material},
		phi.WithKDFParams(phi.KDFParams{Time: 0, MemoryKiB: 16 * 1024, Parallelism: 1}))
	require.Error(t, err)
	assert.ErrorIs(t, err, phi.ErrInvalidConfiguration)
}
