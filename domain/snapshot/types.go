package snapshot

import (
	"time"

	"factorcorr/domain/core"
)

// DefaultModelVersion is the semantic version assigned to new snapshots
const DefaultModelVersion = "1.0.0"

// Architecture holds the hyperparameters persisted with every snapshot
type Architecture struct {
	ModelDimension     int     `json:"modelDimension"`
	NumHeads           int     `json:"numHeads"`
	NumLayers          int     `json:"numLayers"`
	EmbeddingDimension int     `json:"embeddingDimension"`
	MaxSequenceLength  int     `json:"maxSequenceLength"`
	FeedForwardFactor  int     `json:"feedForwardFactor"`
	PredictorUnits     int     `json:"predictorUnits"`
	DropoutRate        float64 `json:"dropoutRate"`
	PredictorDropout   float64 `json:"predictorDropout"`
	PositionalEncoding string  `json:"positionalEncoding"`
	Normalization      string  `json:"normalization"`
}

// TrainingRecord summarises one call to Train
type TrainingRecord struct {
	Timestamp          time.Time `json:"timestamp"`
	EpochsRun          int       `json:"epochsRun"`
	TrainLoss          float64   `json:"trainLoss"`
	ValLoss            float64   `json:"valLoss"`
	CorrelationMAE     float64   `json:"correlationMAE"`
	ConfidenceAccuracy float64   `json:"confidenceAccuracy"`
	Examples           int       `json:"examples"`
	Skipped            int       `json:"skipped"`
	StoppedEarly       bool      `json:"stoppedEarly"`
}

// Metadata is the content of metadata.json beside the saved weights
type Metadata struct {
	ModelName          string           `json:"modelName"`
	ModelID            core.ModelID     `json:"modelId"`
	ModelVersion       string           `json:"modelVersion"`
	ModelDimension     int              `json:"modelDimension"`
	NumHeads           int              `json:"numHeads"`
	NumLayers          int              `json:"numLayers"`
	EmbeddingDimension int              `json:"embeddingDimension"`
	MaxSequenceLength  int              `json:"maxSequenceLength"`
	Architecture       Architecture     `json:"architecture"`
	TrainingHistory    []TrainingRecord `json:"trainingHistory"`
	SavedAt            time.Time        `json:"savedAt"`
}

// NewMetadata flattens the architecture into the top-level fields
func NewMetadata(name string, id core.ModelID, version string, arch Architecture, history []TrainingRecord) Metadata {
	h := make([]TrainingRecord, len(history))
	copy(h, history)
	return Metadata{
		ModelName:          name,
		ModelID:            id,
		ModelVersion:       version,
		ModelDimension:     arch.ModelDimension,
		NumHeads:           arch.NumHeads,
		NumLayers:          arch.NumLayers,
		EmbeddingDimension: arch.EmbeddingDimension,
		MaxSequenceLength:  arch.MaxSequenceLength,
		Architecture:       arch,
		TrainingHistory:    h,
		SavedAt:            time.Now().UTC(),
	}
}

// ResolvedArchitecture prefers the nested block and falls back to the flat fields
func (m Metadata) ResolvedArchitecture() Architecture {
	arch := m.Architecture
	if arch.ModelDimension == 0 {
		arch.ModelDimension = m.ModelDimension
	}
	if arch.NumHeads == 0 {
		arch.NumHeads = m.NumHeads
	}
	if arch.NumLayers == 0 {
		arch.NumLayers = m.NumLayers
	}
	if arch.EmbeddingDimension == 0 {
		arch.EmbeddingDimension = m.EmbeddingDimension
	}
	if arch.MaxSequenceLength == 0 {
		arch.MaxSequenceLength = m.MaxSequenceLength
	}
	return arch
}

// DirName is the snapshot directory name: {modelName}_{version}_{modelId}
func DirName(name, version string, id core.ModelID) string {
	return name + "_" + version + "_" + id.String()
}
