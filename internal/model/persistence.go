package model

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"factorcorr/domain/core"
	"factorcorr/domain/snapshot"
	apperrors "factorcorr/internal/errors"
)

const (
	topologyFile = "model.json"
	weightsFile  = "weights.bin"
	metadataFile = "metadata.json"

	formatVersion = "factorcorr/v1"
)

// topology is the graph description written beside the weights
type topology struct {
	Format       string                `json:"format"`
	Architecture snapshot.Architecture `json:"architecture"`
	Weights      []weightEntry         `json:"weights"`
	Parameters   int                   `json:"parameters"`
}

type weightEntry struct {
	Name  string `json:"name"`
	Shape [2]int `json:"shape"`
}

// Save writes the current snapshot under dir (the configured model directory when empty)
// and returns the snapshot path. An existing id+version is never rewritten.
func (m *Model) Save(ctx context.Context, dir string) (string, error) {
	m.writer.Lock()
	defer m.writer.Unlock()
	if err := m.ensureInitialized(ctx); err != nil {
		return "", err
	}
	if dir == "" {
		dir = m.SnapshotRoot()
	}
	return m.saveTo(ctx, dir)
}

// SnapshotRoot is the directory snapshots are written under by default
func (m *Model) SnapshotRoot() string {
	if dir := m.Config().Dir; dir != "" {
		return dir
	}
	return "models"
}

func (m *Model) saveTo(ctx context.Context, dir string) (string, error) {
	m.mu.RLock()
	net := m.net
	meta := snapshot.NewMetadata(m.cfg.Name, m.id, m.version, m.cfg.Architecture(), m.history)
	m.mu.RUnlock()

	path := filepath.Join(dir, snapshot.DirName(meta.ModelName, meta.ModelVersion, meta.ModelID))
	if _, err := os.Stat(filepath.Join(path, metadataFile)); err == nil {
		m.logger.Debug("snapshot %s already saved", path)
		m.markSaved(meta.ModelID)
		return path, nil
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", apperrors.StorageError("save snapshot", fmt.Errorf("create model dir: %w", err))
	}
	tmp, err := os.MkdirTemp(dir, ".saving-*")
	if err != nil {
		return "", apperrors.StorageError("save snapshot", fmt.Errorf("create staging dir: %w", err))
	}
	defer os.RemoveAll(tmp)

	topo := topology{Format: formatVersion, Architecture: meta.Architecture, Parameters: net.params.count()}
	for _, p := range net.params.list {
		r, c := p.Shape()
		topo.Weights = append(topo.Weights, weightEntry{Name: p.Name, Shape: [2]int{r, c}})
	}
	if err := writeJSON(filepath.Join(tmp, topologyFile), topo); err != nil {
		return "", apperrors.StorageError("save snapshot", err)
	}
	if err := writeWeights(filepath.Join(tmp, weightsFile), net.params); err != nil {
		return "", apperrors.StorageError("save snapshot", err)
	}
	if err := writeJSON(filepath.Join(tmp, metadataFile), meta); err != nil {
		return "", apperrors.StorageError("save snapshot", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", apperrors.StorageError("save snapshot", fmt.Errorf("publish snapshot: %w", err))
	}
	m.markSaved(meta.ModelID)
	m.logger.Info("saved model snapshot to %s", path)
	return path, nil
}

func (m *Model) markSaved(id core.ModelID) {
	m.mu.Lock()
	if m.id == id {
		m.saved = true
	}
	m.mu.Unlock()
}

// Load restores architecture, weights, id, version and history from a snapshot directory
func (m *Model) Load(ctx context.Context, path string) error {
	m.writer.Lock()
	defer m.writer.Unlock()

	var meta snapshot.Metadata
	if err := readJSON(filepath.Join(path, metadataFile), &meta); err != nil {
		return apperrors.StorageError("load snapshot", err)
	}
	var topo topology
	if err := readJSON(filepath.Join(path, topologyFile), &topo); err != nil {
		return apperrors.StorageError("load snapshot", err)
	}
	if topo.Format != formatVersion {
		return fmt.Errorf("unsupported snapshot format %q", topo.Format)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	cfg := m.Config().withArchitecture(meta.ResolvedArchitecture())
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("snapshot architecture: %w", err)
	}
	net := newNetwork(cfg, m.rng.SeededStream("init", cfg.Seed))
	if err := readWeights(filepath.Join(path, weightsFile), topo.Weights, net.params); err != nil {
		return apperrors.StorageError("load snapshot", err)
	}

	m.mu.Lock()
	m.cfg = cfg
	m.net = net
	m.id = meta.ModelID
	m.version = meta.ModelVersion
	m.history = append([]snapshot.TrainingRecord(nil), meta.TrainingHistory...)
	m.saved = true
	m.state = StateReady
	m.lastErr = nil
	m.mu.Unlock()

	m.logger.Info("loaded model %s version %s from %s", meta.ModelID, meta.ModelVersion, path)
	return nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", core.ErrSnapshotNotFound, path)
		}
		return fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return nil
}

// writeWeights streams every tensor as little-endian float64 in manifest order
func writeWeights(path string, params *paramSet) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create weights: %w", err)
	}
	w := bufio.NewWriter(f)
	for _, p := range params.list {
		if err := binary.Write(w, binary.LittleEndian, p.Value.RawMatrix().Data); err != nil {
			f.Close()
			return fmt.Errorf("write %s: %w", p.Name, err)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("flush weights: %w", err)
	}
	return f.Close()
}

func readWeights(path string, manifest []weightEntry, params *paramSet) error {
	if len(manifest) != len(params.list) {
		return core.NewShapeError("weight tensor count", len(params.list), len(manifest))
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open weights: %w", err)
	}
	defer f.Close()
	r := bufio.NewReader(f)

	for _, entry := range manifest {
		p, ok := params.get(entry.Name)
		if !ok {
			return fmt.Errorf("%w: unknown tensor %s", core.ErrShapeMismatch, entry.Name)
		}
		rows, cols := p.Shape()
		if entry.Shape != [2]int{rows, cols} {
			return fmt.Errorf("%w: tensor %s is %v, model expects [%d %d]", core.ErrShapeMismatch, entry.Name, entry.Shape, rows, cols)
		}
		if err := binary.Read(r, binary.LittleEndian, p.Value.RawMatrix().Data); err != nil {
			return fmt.Errorf("read %s: %w", entry.Name, err)
		}
	}
	if _, err := r.ReadByte(); err != io.EOF {
		return fmt.Errorf("%w: trailing data in %s", core.ErrShapeMismatch, weightsFile)
	}
	return nil
}
