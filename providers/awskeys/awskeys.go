// Package awskeys resolves clinic key material from AWS Secrets Manager.
//
// Key material for a deployment lives in a single JSON secret:
//
//	{
//	  "master_key": "<base64>",
//	  "master_passphrase": "...",
//	  "index_key": "<base64>",
//	  "index_passphrase": "...",
//	  "kdf_salt": "<base64>"
//	}
//
// Each key needs exactly one of its two members; the salt is required only
// when a passphrase is present.
package awskeys

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"

	phi "github.com/mbridgescode/BridgesPhysiotherapyServices-sub002"
)

// secretsClient is the slice of the Secrets Manager API the source needs.
// Declared locally so tests can substitute a fake.
type secretsClient interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// secretDocument is the JSON shape of the stored secret.
type secretDocument struct {
	MasterKey        string `json:"master_key,omitempty"`
	MasterPassphrase string `json:"master_passphrase,omitempty"`
	IndexKey         string `json:"index_key,omitempty"`
	IndexPassphrase  string `json:"index_passphrase,omitempty"`
	KDFSalt          string `json:"kdf_salt,omitempty"`
}

// Source reads key material from AWS Secrets Manager. It implements
// phi.KeySource.
type Source struct {
	client   secretsClient
	secretID string
}

// New creates a Source for the named secret. The AWS configuration is loaded
// from the default credential chain; region overrides the chain's region
// when non-empty.
func New(ctx context.Context, secretID, region string) (*Source, error) {
	if secretID == "" {
		return nil, fmt.Errorf("%w: secrets manager secret id is empty", phi.ErrInvalidConfiguration)
	}

	opts := []func(*config.LoadOptions) error{}
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}

	awsConfig, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to load AWS config: %w", phi.ErrKeySourceUnavailable, err)
	}

	return &Source{
		client:   secretsmanager.NewFromConfig(awsConfig),
		secretID: secretID,
	}, nil
}

// NewWithClient creates a Source backed by an existing client.
func NewWithClient(client secretsClient, secretID string) (*Source, error) {
	if client == nil {
		return nil, fmt.Errorf("%w: secrets manager client is nil", phi.ErrInvalidConfiguration)
	}
	if secretID == "" {
		return nil, fmt.Errorf("%w: secrets manager secret id is empty", phi.ErrInvalidConfiguration)
	}
	return &Source{client: client, secretID: secretID}, nil
}

// Resolve fetches the secret and maps its JSON document onto phi.Material.
func (s *Source) Resolve(ctx context.Context) (phi.Material, error) {
	out, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(s.secretID),
	})
	if err != nil {
		return phi.Material{}, fmt.Errorf("%w: failed to read secret %s: %w",
			phi.ErrKeySourceUnavailable, s.secretID, err)
	}
	if out.SecretString == nil || *out.SecretString == "" {
		return phi.Material{}, fmt.Errorf("%w: secret %s has no string value",
			phi.ErrConfigurationMissing, s.secretID)
	}

	var doc secretDocument
	if err := json.Unmarshal([]byte(*out.SecretString), &doc); err != nil {
		return phi.Material{}, fmt.Errorf("%w: secret %s is not valid JSON: %w",
			phi.ErrInvalidConfiguration, s.secretID, err)
	}

	material := phi.Material{
		Master: phi.KeyMaterial{Base64: doc.MasterKey, Passphrase: doc.MasterPassphrase},
		Index:  phi.KeyMaterial{Base64: doc.IndexKey, Passphrase: doc.IndexPassphrase},
	}

	if doc.KDFSalt != "" {
		salt, err := base64.StdEncoding.DecodeString(doc.KDFSalt)
		if err != nil {
			return phi.Material{}, fmt.Errorf("%w: kdf_salt is not valid base64: %w",
				phi.ErrInvalidConfiguration, err)
		}
		material.Salt = salt
	}

	return material, nil
}
