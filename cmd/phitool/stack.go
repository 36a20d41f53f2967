package main

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	phi "github.com/mbridgescode/BridgesPhysiotherapyServices-sub002"
	"github.com/mbridgescode/BridgesPhysiotherapyServices-sub002/providers/awskeys"
	"github.com/mbridgescode/BridgesPhysiotherapyServices-sub002/providers/envkeys"
	"github.com/mbridgescode/BridgesPhysiotherapyServices-sub002/providers/vaultkeys"
	"github.com/mbridgescode/BridgesPhysiotherapyServices-sub002/search"
	"github.com/mbridgescode/BridgesPhysiotherapyServices-sub002/store/patientstore"
)

// stack is the wired-up crypto core plus the store, assembled from one
// phi.yaml.
type stack struct {
	Config  *phi.Config
	Logger  *slog.Logger
	Codec   *phi.Codec
	Binder  *phi.FieldBinder
	Builder *search.Builder
	Store   *patientstore.Store
}

func (s *stack) Close() error {
	return s.Store.Close()
}

// openStack loads configuration, resolves keys and opens the store.
// A .env file next to the config is loaded first when present, so Vault and
// AWS credentials can live there too.
func openStack(ctx context.Context, configPath string) (*stack, error) {
	_ = godotenv.Load()

	cfg, err := phi.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	source, err := keySource(ctx, cfg)
	if err != nil {
		return nil, err
	}

	keyring, err := phi.NewKeyring(ctx, source, phi.WithKDFParams(cfg.KDF))
	if err != nil {
		return nil, err
	}

	codec, err := phi.NewCodec(keyring)
	if err != nil {
		return nil, err
	}

	binder := phi.NewFieldBinder(codec, logger)
	builder := search.NewBuilder(codec, keyring, cfg.Index, logger)

	store, err := patientstore.Open(cfg.Store.DSN, binder, builder, logger)
	if err != nil {
		return nil, err
	}

	return &stack{
		Config:  cfg,
		Logger:  logger,
		Codec:   codec,
		Binder:  binder,
		Builder: builder,
		Store:   store,
	}, nil
}

func keySource(ctx context.Context, cfg *phi.Config) (phi.KeySource, error) {
	switch cfg.Keys.Source {
	case "env":
		return envkeys.New(cfg.Keys.EnvFile), nil
	case "vault":
		return vaultkeys.New(cfg.Keys.VaultAlias)
	case "aws":
		return awskeys.New(ctx, cfg.Keys.AWSSecretID, cfg.Keys.AWSRegion)
	default:
		return nil, fmt.Errorf("%w: unknown key source %q", phi.ErrInvalidConfiguration, cfg.Keys.Source)
	}
}

func randomKey(size int) ([]byte, error) {
	if size < phi.MinKeyBytes {
		return nil, fmt.Errorf("%w: keys must be at least %d bytes", phi.ErrInvalidConfiguration, phi.MinKeyBytes)
	}
	key := make([]byte, size)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	return key, nil
}

func writeDefaultConfig(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use -force to overwrite)", path)
		}
	}

	out, err := yaml.Marshal(phi.DefaultConfig())
	if err != nil {
		return err
	}
	return os.WriteFile(path, out, 0o644)
}
