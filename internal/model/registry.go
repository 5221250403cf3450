package model

import (
	"context"
	"fmt"

	"factorcorr/ports"
)

// SaveToRegistry saves locally then uploads under the model name and current version
func (m *Model) SaveToRegistry(ctx context.Context, registry ports.ModelRegistry) (string, error) {
	path, err := m.Save(ctx, "")
	if err != nil {
		return "", err
	}
	remote, err := registry.UploadModel(ctx, m.Config().Name, m.Version(), path)
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", path, err)
	}
	m.logger.Info("published model %s to %s", m.ID(), remote)
	return remote, nil
}

// LoadFromRegistry downloads a version (latest when empty) and loads it
func (m *Model) LoadFromRegistry(ctx context.Context, registry ports.ModelRegistry, version string) error {
	if version == "" {
		version = ports.LatestVersion
	}
	local, err := registry.DownloadModel(ctx, m.Config().Name, version)
	if err != nil {
		return fmt.Errorf("download %s@%s: %w", m.Config().Name, version, err)
	}
	return m.Load(ctx, local)
}
