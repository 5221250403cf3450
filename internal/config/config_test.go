package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"factorcorr/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 128, cfg.Model.Dimension)
	assert.Equal(t, 8, cfg.Model.NumHeads)
	assert.Equal(t, 4, cfg.Model.NumLayers)
	assert.Equal(t, 64, cfg.Model.EmbeddingDimension)
	assert.Equal(t, 365, cfg.Model.MaxSequenceLength)
	assert.Equal(t, "sinusoidal", cfg.Model.PositionalEncoding)
	assert.Equal(t, 32, cfg.Training.BatchSize)
	assert.Equal(t, 50, cfg.Training.Epochs)
	assert.InDelta(t, 0.2, cfg.Training.ValidationSplit, 1e-12)
	assert.Equal(t, 5, cfg.Training.PatienceEpochs)
	assert.True(t, cfg.Training.EarlyStopping)
	assert.Equal(t, 10*time.Minute, cfg.Redis.TTL)
	assert.Equal(t, RegistryFilesystem, cfg.Registry.Backend)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("MODEL_DIMENSION", "32")
	t.Setenv("MODEL_NUM_HEADS", "4")
	t.Setenv("TRAINING_EPOCHS", "7")
	t.Setenv("PORT", "9090")
	t.Setenv("DATABASE_URL", "postgres://localhost/factors")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 32, cfg.Model.Dimension)
	assert.Equal(t, 4, cfg.Model.NumHeads)
	assert.Equal(t, 7, cfg.Training.Epochs)
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "postgres://localhost/factors", cfg.Database.URL)
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "factorcorr.yaml")
	content := "model:\n  dimension: 16\n  num_heads: 2\n  positional_encoding: learned\nregistry:\n  backend: minio\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	t.Setenv("CONFIG_FILE", path)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 16, cfg.Model.Dimension)
	assert.Equal(t, "learned", cfg.Model.PositionalEncoding)
	assert.Equal(t, RegistryMinio, cfg.Registry.Backend)
}

func TestValidateRejectsIndivisibleHeads(t *testing.T) {
	t.Setenv("MODEL_DIMENSION", "30")
	t.Setenv("MODEL_NUM_HEADS", "8")

	_, err := Load()
	require.Error(t, err)
	assert.Equal(t, errors.CodeConfigInvalid, errors.GetCode(err))
}
