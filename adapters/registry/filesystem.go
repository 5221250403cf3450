package registry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"factorcorr/domain/core"
)

// dirStore keeps objects as files under a root directory
type dirStore struct {
	root string
}

func newDirStore(root string) (*dirStore, error) {
	if root == "" {
		root = "registry"
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create registry root: %w", err)
	}
	return &dirStore{root: root}, nil
}

func (s *dirStore) path(key string) string {
	return filepath.Join(s.root, filepath.FromSlash(key))
}

func (s *dirStore) put(ctx context.Context, key string, r io.Reader, _ int64) error {
	dest := s.path(key)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".upload-*")
	if err != nil {
		return err
	}
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), dest)
}

func (s *dirStore) get(ctx context.Context, key string) (io.ReadCloser, error) {
	f, err := os.Open(s.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", core.ErrSnapshotNotFound, key)
	}
	return f, err
}

func (s *dirStore) list(ctx context.Context, prefix string) ([]string, error) {
	dir := s.path(prefix)
	var keys []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			rel, err := filepath.Rel(s.root, p)
			if err != nil {
				return err
			}
			keys = append(keys, filepath.ToSlash(rel))
		}
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return keys, err
}

func (s *dirStore) uri(key string) string {
	return s.path(key)
}
