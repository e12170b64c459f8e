package archive

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ObjectConfig holds S3-compatible connection settings.
type ObjectConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// ObjectStore keeps the raw WebM audio of committed utterances.
type ObjectStore struct {
	mc     *minio.Client
	bucket string
	logger *slog.Logger
}

// NewObjectStore creates a store for cfg.Bucket.
func NewObjectStore(cfg ObjectConfig, logger *slog.Logger) (*ObjectStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("object store: bucket is required")
	}
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}
	return &ObjectStore{mc: mc, bucket: cfg.Bucket, logger: logger}, nil
}

// Bucket returns the configured bucket name.
func (o *ObjectStore) Bucket() string {
	return o.bucket
}

// EnsureBucket creates the bucket if it does not exist.
func (o *ObjectStore) EnsureBucket(ctx context.Context) error {
	exists, err := o.mc.BucketExists(ctx, o.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", o.bucket, err)
	}
	if exists {
		return nil
	}
	if err := o.mc.MakeBucket(ctx, o.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket %s: %w", o.bucket, err)
	}
	o.logger.Info("bucket created", "bucket", o.bucket)
	return nil
}

// PutUtterance uploads the audio of one committed turn.
func (o *ObjectStore) PutUtterance(ctx context.Context, sessionID string, turn int, audio []byte) error {
	key := UtteranceKey(sessionID, turn)
	_, err := o.mc.PutObject(ctx, o.bucket, key, bytes.NewReader(audio), int64(len(audio)), minio.PutObjectOptions{
		ContentType: "audio/webm",
	})
	if err != nil {
		return fmt.Errorf("upload %s/%s: %w", o.bucket, key, err)
	}
	o.logger.Debug("utterance archived", "bucket", o.bucket, "key", key, "bytes", len(audio))
	return nil
}

// Ping reports whether the bucket is reachable.
func (o *ObjectStore) Ping(ctx context.Context) error {
	exists, err := o.mc.BucketExists(ctx, o.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", o.bucket, err)
	}
	if !exists {
		return fmt.Errorf("bucket %s does not exist", o.bucket)
	}
	return nil
}
