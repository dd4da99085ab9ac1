package storage

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/noah-isme/sma-schedule-conflicts/pkg/config"
)

// MinIOStorage uploads reports to an S3 compatible bucket and links them with presigned URLs.
type MinIOStorage struct {
	client  *minio.Client
	bucket  string
	linkTTL time.Duration
}

// NewMinIOStorage connects to the endpoint and creates the bucket when missing.
func NewMinIOStorage(ctx context.Context, cfg config.MinIOConfig, linkTTL time.Duration) (*MinIOStorage, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
	}

	if linkTTL <= 0 {
		linkTTL = 24 * time.Hour
	}
	return &MinIOStorage{client: client, bucket: cfg.Bucket, linkTTL: linkTTL}, nil
}

// Put uploads data as an object named name.
func (s *MinIOStorage) Put(ctx context.Context, name, contentType string, data []byte) (string, error) {
	_, err := s.client.PutObject(ctx, s.bucket, name, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", name, err)
	}
	return name, nil
}

// Link returns a presigned GET URL.
func (s *MinIOStorage) Link(ctx context.Context, name string) (string, time.Time, error) {
	expiresAt := time.Now().Add(s.linkTTL)
	u, err := s.client.PresignedGetObject(ctx, s.bucket, name, s.linkTTL, nil)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("presign %s: %w", name, err)
	}
	return u.String(), expiresAt, nil
}
