package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"factorcorr/domain/core"
	"factorcorr/domain/snapshot"
	"factorcorr/internal"
	"factorcorr/internal/config"
	apperrors "factorcorr/internal/errors"
	"factorcorr/internal/metrics"
	"factorcorr/ports"
)

const (
	latestObject   = "LATEST"
	metadataObject = "metadata.json"
)

// objectStore is the minimal blob API each backend provides
type objectStore interface {
	put(ctx context.Context, key string, r io.Reader, size int64) error
	get(ctx context.Context, key string) (io.ReadCloser, error)
	list(ctx context.Context, prefix string) ([]string, error)
	uri(key string) string
}

// ObjectRegistry implements ports.ModelRegistry over a blob store with the layout
// {prefix}/{name}/{version}/{file} and a {prefix}/{name}/LATEST pointer
type ObjectRegistry struct {
	store    objectStore
	backend  string
	prefix   string
	cacheDir string
	logger   *internal.Logger
}

var _ ports.ModelRegistry = (*ObjectRegistry)(nil)

// New builds the registry selected by cfg.Backend
func New(ctx context.Context, cfg config.RegistryConfig, logger *internal.Logger) (*ObjectRegistry, error) {
	var (
		store objectStore
		err   error
	)
	switch cfg.Backend {
	case config.RegistryGCS:
		store, err = newGCSStore(ctx, cfg)
	case config.RegistryMinio:
		store, err = newMinioStore(ctx, cfg)
	case config.RegistryFilesystem, "":
		store, err = newDirStore(cfg.Root)
	default:
		err = fmt.Errorf("unknown registry backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}
	return newObjectRegistry(store, cfg.Backend, cfg.Prefix, cfg.CacheDir, logger), nil
}

func newObjectRegistry(store objectStore, backend, prefix, cacheDir string, logger *internal.Logger) *ObjectRegistry {
	if backend == "" {
		backend = config.RegistryFilesystem
	}
	if cacheDir == "" {
		cacheDir = filepath.Join(os.TempDir(), "factorcorr-registry")
	}
	if logger == nil {
		logger = internal.NopLogger()
	}
	return &ObjectRegistry{
		store:    store,
		backend:  backend,
		prefix:   strings.Trim(prefix, "/"),
		cacheDir: cacheDir,
		logger:   logger.WithFields(map[string]interface{}{"component": "registry", "backend": backend}),
	}
}

func (r *ObjectRegistry) key(parts ...string) string {
	if r.prefix != "" {
		parts = append([]string{r.prefix}, parts...)
	}
	return path.Join(parts...)
}

func checkSegment(kind, s string) error {
	if s == "" || s == "." || s == ".." || strings.ContainsAny(s, `/\`) {
		return fmt.Errorf("invalid %s %q", kind, s)
	}
	return nil
}

// UploadModel copies every file of the snapshot directory, then moves the LATEST pointer
func (r *ObjectRegistry) UploadModel(ctx context.Context, name, version, localPath string) (remote string, err error) {
	defer func() { r.record("upload", err) }()
	if err := checkSegment("model name", name); err != nil {
		return "", err
	}
	if err := checkSegment("version", version); err != nil {
		return "", err
	}
	entries, err := os.ReadDir(localPath)
	if err != nil {
		return "", fmt.Errorf("read snapshot dir: %w", err)
	}
	if err := r.ensureUnpublished(ctx, name, version, localPath); err != nil {
		return "", err
	}

	uploaded := 0
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		if err := r.uploadFile(ctx, filepath.Join(localPath, entry.Name()), r.key(name, version, entry.Name())); err != nil {
			return "", apperrors.StorageError("registry upload", err)
		}
		uploaded++
	}
	if uploaded == 0 {
		return "", fmt.Errorf("%w: no files in %s", core.ErrSnapshotNotFound, localPath)
	}

	pointer := []byte(version)
	if err := r.store.put(ctx, r.key(name, latestObject), bytes.NewReader(pointer), int64(len(pointer))); err != nil {
		return "", apperrors.StorageError("registry upload", fmt.Errorf("update latest pointer: %w", err))
	}
	remote = r.store.uri(r.key(name, version))
	r.logger.Info("uploaded %d files for %s@%s to %s", uploaded, name, version, remote)
	return remote, nil
}

// ensureUnpublished refuses to replace a published version that holds another model id.
// Re-uploading the same model is allowed.
func (r *ObjectRegistry) ensureUnpublished(ctx context.Context, name, version, localPath string) error {
	rc, err := r.store.get(ctx, r.key(name, version, metadataObject))
	if errors.Is(err, core.ErrNotFound) {
		return nil
	}
	if err != nil {
		return apperrors.StorageError("registry lookup", err)
	}
	remote, err := decodeModelID(rc)
	rc.Close()
	if err != nil {
		return fmt.Errorf("published %s@%s: %w", name, version, err)
	}

	local := ""
	if f, err := os.Open(filepath.Join(localPath, metadataObject)); err == nil {
		local, err = decodeModelID(f)
		f.Close()
		if err != nil {
			return fmt.Errorf("local snapshot: %w", err)
		}
	}
	if remote != local {
		return fmt.Errorf("%w: %s@%s holds %s, refusing %s", core.ErrSnapshotExists, name, version, remote, local)
	}
	return nil
}

func decodeModelID(r io.Reader) (string, error) {
	var meta snapshot.Metadata
	if err := json.NewDecoder(r).Decode(&meta); err != nil {
		return "", fmt.Errorf("decode %s: %w", metadataObject, err)
	}
	return meta.ModelID.String(), nil
}

func (r *ObjectRegistry) uploadFile(ctx context.Context, localFile, key string) error {
	f, err := os.Open(localFile)
	if err != nil {
		return fmt.Errorf("open %s: %w", localFile, err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", localFile, err)
	}
	if err := r.store.put(ctx, key, f, info.Size()); err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	return nil
}

// DownloadModel fetches a version into the local cache and returns that directory
func (r *ObjectRegistry) DownloadModel(ctx context.Context, name, version string) (local string, err error) {
	defer func() { r.record("download", err) }()
	if err := checkSegment("model name", name); err != nil {
		return "", err
	}
	if version == "" || version == ports.LatestVersion {
		if version, err = r.resolveLatest(ctx, name); err != nil {
			return "", err
		}
	}
	if err := checkSegment("version", version); err != nil {
		return "", err
	}

	prefix := r.key(name, version) + "/"
	keys, err := r.store.list(ctx, prefix)
	if err != nil {
		return "", apperrors.StorageError("registry download", fmt.Errorf("list %s: %w", prefix, err))
	}
	if len(keys) == 0 {
		return "", fmt.Errorf("%w: %s@%s", core.ErrSnapshotNotFound, name, version)
	}

	local = filepath.Join(r.cacheDir, name, version)
	if err := os.MkdirAll(local, 0o755); err != nil {
		return "", fmt.Errorf("create cache dir: %w", err)
	}
	for _, key := range keys {
		rel := strings.TrimPrefix(key, prefix)
		if rel == "" || strings.Contains(rel, "/") {
			continue
		}
		if err := r.downloadFile(ctx, key, filepath.Join(local, rel)); err != nil {
			return "", apperrors.StorageError("registry download", err)
		}
	}
	r.logger.Info("downloaded %s@%s to %s", name, version, local)
	return local, nil
}

func (r *ObjectRegistry) resolveLatest(ctx context.Context, name string) (string, error) {
	rc, err := r.store.get(ctx, r.key(name, latestObject))
	if errors.Is(err, core.ErrNotFound) {
		return "", fmt.Errorf("%w: nothing published for %s", core.ErrSnapshotNotFound, name)
	}
	if err != nil {
		return "", apperrors.StorageError("resolve latest", err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return "", apperrors.StorageError("resolve latest", err)
	}
	version := strings.TrimSpace(string(data))
	if version == "" {
		return "", fmt.Errorf("%w: empty latest pointer for %s", core.ErrSnapshotNotFound, name)
	}
	return version, nil
}

func (r *ObjectRegistry) downloadFile(ctx context.Context, key, dest string) error {
	rc, err := r.store.get(ctx, key)
	if err != nil {
		return fmt.Errorf("download %s: %w", key, err)
	}
	defer rc.Close()

	tmp := dest + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create %s: %w", tmp, err)
	}
	if _, err := io.Copy(f, rc); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("copy %s: %w", key, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmp, err)
	}
	return os.Rename(tmp, dest)
}

func (r *ObjectRegistry) record(direction string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.RegistryTransfers.WithLabelValues(r.backend, direction, status).Inc()
}
