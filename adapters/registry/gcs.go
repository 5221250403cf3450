package registry

import (
	"context"
	"errors"
	"fmt"
	"io"

	"factorcorr/domain/core"
	"factorcorr/internal/config"
	apperrors "factorcorr/internal/errors"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// gcsStore keeps objects in a Google Cloud Storage bucket
type gcsStore struct {
	client *storage.Client
	bucket string
}

func newGCSStore(ctx context.Context, cfg config.RegistryConfig) (*gcsStore, error) {
	if cfg.Bucket == "" {
		return nil, apperrors.ConfigInvalid("gcs registry requires registry.bucket")
	}
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, apperrors.ExternalServiceError("gcs", err)
	}
	return &gcsStore{client: client, bucket: cfg.Bucket}, nil
}

func (s *gcsStore) put(ctx context.Context, key string, r io.Reader, _ int64) error {
	w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	w.ContentType = "application/octet-stream"
	w.CacheControl = "no-cache, no-store, must-revalidate"
	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		return fmt.Errorf("failed to copy to GCS object %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close GCS writer for %s: %w", key, err)
	}
	return nil
}

func (s *gcsStore) get(ctx context.Context, key string) (io.ReadCloser, error) {
	rc, err := s.client.Bucket(s.bucket).Object(key).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, fmt.Errorf("%w: gs://%s/%s", core.ErrSnapshotNotFound, s.bucket, key)
	}
	return rc, err
}

func (s *gcsStore) list(ctx context.Context, prefix string) ([]string, error) {
	it := s.client.Bucket(s.bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	var keys []string
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return keys, nil
		}
		if err != nil {
			return nil, err
		}
		keys = append(keys, attrs.Name)
	}
}

func (s *gcsStore) uri(key string) string {
	return "gs://" + s.bucket + "/" + key
}
