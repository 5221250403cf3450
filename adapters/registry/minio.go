package registry

import (
	"context"
	"fmt"
	"io"

	"factorcorr/domain/core"
	"factorcorr/internal/config"
	apperrors "factorcorr/internal/errors"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// minioStore keeps objects in an S3-compatible bucket
type minioStore struct {
	client *minio.Client
	bucket string
}

func newMinioStore(ctx context.Context, cfg config.RegistryConfig) (*minioStore, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, apperrors.ConfigInvalid("minio registry requires registry.endpoint and registry.bucket")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, apperrors.ExternalServiceError("minio", err)
	}
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, apperrors.ExternalServiceError("minio", fmt.Errorf("health check: %w", err))
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
	}
	return &minioStore{client: client, bucket: cfg.Bucket}, nil
}

func (s *minioStore) put(ctx context.Context, key string, r io.Reader, size int64) error {
	_, err := s.client.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	return err
}

func (s *minioStore) get(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	// GetObject is lazy; Stat surfaces a missing key before the caller reads
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, fmt.Errorf("%w: s3://%s/%s", core.ErrSnapshotNotFound, s.bucket, key)
		}
		return nil, err
	}
	return obj, nil
}

func (s *minioStore) list(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		keys = append(keys, obj.Key)
	}
	return keys, nil
}

func (s *minioStore) uri(key string) string {
	return "s3://" + s.bucket + "/" + key
}
