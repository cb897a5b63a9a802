// Package minio stores export artifacts in S3-compatible object storage.
package minio

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/lorrc/ups-collab/internal/core/ports"
)

// ArtifactStore puts rendered exports into one bucket.
type ArtifactStore struct {
	client *minio.Client
	bucket string
	logger *slog.Logger
}

var _ ports.ArtifactStore = (*ArtifactStore)(nil)

// ArtifactStoreParams defines the connection settings of an ArtifactStore.
type ArtifactStoreParams struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
	Logger    *slog.Logger
}

// NewArtifactStore creates a client for the configured endpoint. It does not
// contact the server; call EnsureBucket before first use.
func NewArtifactStore(params ArtifactStoreParams) (*ArtifactStore, error) {
	client, err := minio.New(params.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(params.AccessKey, params.SecretKey, ""),
		Secure: params.UseSSL,
		Region: params.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}

	return &ArtifactStore{
		client: client,
		bucket: params.Bucket,
		logger: params.Logger.With("component", "artifact_store"),
	}, nil
}

// EnsureBucket creates the bucket if it is missing.
func (s *ArtifactStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if exists {
		return nil
	}

	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket %s: %w", s.bucket, err)
	}
	s.logger.InfoContext(ctx, "created export bucket", "bucket", s.bucket)
	return nil
}

// PutArtifact uploads data under key.
func (s *ArtifactStore) PutArtifact(ctx context.Context, key, contentType string, data []byte) error {
	info, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}

	s.logger.DebugContext(ctx, "artifact stored", "key", key, "size", info.Size, "etag", info.ETag)
	return nil
}

// DeleteArtifact removes the object stored under key. Missing objects are not an error.
func (s *ArtifactStore) DeleteArtifact(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove %s: %w", key, err)
	}
	return nil
}

// Ping checks that the bucket is reachable.
func (s *ArtifactStore) Ping(ctx context.Context) error {
	_, err := s.client.BucketExists(ctx, s.bucket)
	return err
}
