// Package s3archive writes record exports to an S3 bucket.
//
// Exports are the wire form of a record: PII fields still sealed in their
// envelopes, plaintext operational fields as-is. Nothing here decrypts, so
// the bucket never sees patient data in the clear.
package s3archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	phi "github.com/mbridgescode/BridgesPhysiotherapyServices-sub002"
	"github.com/mbridgescode/BridgesPhysiotherapyServices-sub002/records"
)

// Uploader is the slice of the S3 API the archiver needs. Declared locally
// so tests can substitute a fake.
type Uploader interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Archiver uploads export documents to a fixed bucket under uuid-keyed
// objects.
type Archiver struct {
	client Uploader
	bucket string
	prefix string
	logger *slog.Logger
}

// New creates an Archiver using the default AWS credential chain. region
// overrides the chain's region when non-empty.
func New(ctx context.Context, cfg phi.ArchiveConfig, logger *slog.Logger) (*Archiver, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("%w: archive bucket is empty", phi.ErrInvalidConfiguration)
	}

	opts := []func(*awsconfig.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}

	awsConfig, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return NewWithClient(s3.NewFromConfig(awsConfig), cfg, logger)
}

// NewWithClient creates an Archiver backed by an existing client.
func NewWithClient(client Uploader, cfg phi.ArchiveConfig, logger *slog.Logger) (*Archiver, error) {
	if client == nil {
		return nil, fmt.Errorf("%w: s3 client is nil", phi.ErrInvalidConfiguration)
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("%w: archive bucket is empty", phi.ErrInvalidConfiguration)
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Archiver{
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
		logger: logger,
	}, nil
}

// exportDocument is the JSON layout of an archived patient.
type exportDocument struct {
	ArchivedAt time.Time               `json:"archivedAt"`
	Patient    *records.Patient        `json:"patient"`
	Notes      []*records.ClinicalNote `json:"notes,omitempty"`
}

// ArchivePatient uploads one patient export and returns the object key.
// The record must already be in wire form; plaintext PII is refused.
func (a *Archiver) ArchivePatient(ctx context.Context, p *records.Patient, notes []*records.ClinicalNote) (string, error) {
	if p == nil {
		return "", fmt.Errorf("%w: patient is nil", phi.ErrInvalidConfiguration)
	}

	doc := exportDocument{
		ArchivedAt: time.Now().UTC(),
		Patient:    p,
		Notes:      notes,
	}

	body, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("failed to marshal export: %w", err)
	}

	key := a.objectKey(p)
	if err := a.put(ctx, key, body); err != nil {
		return "", err
	}

	a.logger.Info("archived patient export",
		"patient_id", p.PatientID,
		"bucket", a.bucket,
		"key", key,
	)
	return key, nil
}

// ArchiveJSON uploads an arbitrary export document read from r. Used by the
// CLI for bulk exports that are assembled elsewhere.
func (a *Archiver) ArchiveJSON(ctx context.Context, r io.Reader) (string, error) {
	body, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("failed to read export: %w", err)
	}

	key := path.Join(a.prefix, uuid.New().String()+".json")
	if err := a.put(ctx, key, body); err != nil {
		return "", err
	}

	a.logger.Info("archived export", "bucket", a.bucket, "key", key)
	return key, nil
}

func (a *Archiver) objectKey(p *records.Patient) string {
	name := fmt.Sprintf("patient-%d-%s.json", p.PatientID, uuid.New().String())
	return path.Join(a.prefix, name)
}

func (a *Archiver) put(ctx context.Context, key string, body []byte) error {
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}
	return nil
}
