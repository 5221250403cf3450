package model

import (
	"fmt"

	"factorcorr/domain/snapshot"
	"factorcorr/internal/config"
)

// Config fixes the architecture and lifecycle defaults of one model instance
type Config struct {
	Name    string
	Version string
	Dir     string

	ModelDimension     int
	NumHeads           int
	NumLayers          int
	EmbeddingDimension int
	MaxSequenceLength  int
	FeedForwardFactor  int
	PredictorUnits     int
	DropoutRate        float64
	PredictorDropout   float64
	Positional         PositionalKind
	Normalization      Normalization

	LearningRate   float64
	Seed           int64
	MaxConcurrency int

	Training TrainingDefaults
}

// TrainingDefaults apply when a Train call leaves an option unset
type TrainingDefaults struct {
	BatchSize       int
	Epochs          int
	ValidationSplit float64
	PatienceEpochs  int
	EarlyStopping   bool
}

// DefaultConfig returns the standard architecture: H=128, 8 heads, 4 layers, 64-d embeddings, 365 steps
func DefaultConfig() Config {
	return Config{
		Name:               "factor-correlation",
		Version:            snapshot.DefaultModelVersion,
		ModelDimension:     128,
		NumHeads:           8,
		NumLayers:          4,
		EmbeddingDimension: 64,
		MaxSequenceLength:  365,
		FeedForwardFactor:  4,
		PredictorUnits:     64,
		DropoutRate:        0.1,
		PredictorDropout:   0.2,
		Positional:         PositionalSinusoidal,
		Normalization:      NormalizeZScore,
		LearningRate:       0.001,
		Seed:               42,
		MaxConcurrency:     4,
		Training: TrainingDefaults{
			BatchSize:       32,
			Epochs:          50,
			ValidationSplit: 0.2,
			PatienceEpochs:  5,
			EarlyStopping:   true,
		},
	}
}

// FromSettings maps loaded application settings onto a model config
func FromSettings(m config.ModelConfig, t config.TrainingConfig) Config {
	return Config{
		Name:               m.Name,
		Version:            m.Version,
		Dir:                m.Dir,
		ModelDimension:     m.Dimension,
		NumHeads:           m.NumHeads,
		NumLayers:          m.NumLayers,
		EmbeddingDimension: m.EmbeddingDimension,
		MaxSequenceLength:  m.MaxSequenceLength,
		FeedForwardFactor:  m.FeedForwardFactor,
		PredictorUnits:     m.PredictorUnits,
		DropoutRate:        m.DropoutRate,
		PredictorDropout:   m.PredictorDropout,
		Positional:         ParsePositionalKind(m.PositionalEncoding),
		Normalization:      ParseNormalization(m.Normalization),
		LearningRate:       m.LearningRate,
		Seed:               m.Seed,
		MaxConcurrency:     m.MaxConcurrency,
		Training: TrainingDefaults{
			BatchSize:       t.BatchSize,
			Epochs:          t.Epochs,
			ValidationSplit: t.ValidationSplit,
			PatienceEpochs:  t.PatienceEpochs,
			EarlyStopping:   t.EarlyStopping,
		},
	}
}

// Validate checks the architecture can be built
func (c Config) Validate() error {
	switch {
	case c.ModelDimension <= 0, c.NumHeads <= 0, c.NumLayers <= 0:
		return fmt.Errorf("model dimension, heads and layers must be positive")
	case c.ModelDimension%c.NumHeads != 0:
		return fmt.Errorf("num heads %d does not divide model dimension %d", c.NumHeads, c.ModelDimension)
	case c.EmbeddingDimension <= 0, c.MaxSequenceLength <= 0, c.PredictorUnits <= 0, c.FeedForwardFactor <= 0:
		return fmt.Errorf("embedding dimension, sequence length, predictor units and feed-forward factor must be positive")
	case c.DropoutRate < 0, c.DropoutRate >= 1, c.PredictorDropout < 0, c.PredictorDropout >= 1:
		return fmt.Errorf("dropout rates must be in [0,1)")
	}
	return nil
}

// Architecture is the persisted hyperparameter block
func (c Config) Architecture() snapshot.Architecture {
	return snapshot.Architecture{
		ModelDimension:     c.ModelDimension,
		NumHeads:           c.NumHeads,
		NumLayers:          c.NumLayers,
		EmbeddingDimension: c.EmbeddingDimension,
		MaxSequenceLength:  c.MaxSequenceLength,
		FeedForwardFactor:  c.FeedForwardFactor,
		PredictorUnits:     c.PredictorUnits,
		DropoutRate:        c.DropoutRate,
		PredictorDropout:   c.PredictorDropout,
		PositionalEncoding: string(c.Positional),
		Normalization:      string(c.Normalization),
	}
}

// withArchitecture overlays persisted hyperparameters, keeping lifecycle settings
func (c Config) withArchitecture(a snapshot.Architecture) Config {
	c.ModelDimension = a.ModelDimension
	c.NumHeads = a.NumHeads
	c.NumLayers = a.NumLayers
	c.EmbeddingDimension = a.EmbeddingDimension
	c.MaxSequenceLength = a.MaxSequenceLength
	if a.FeedForwardFactor > 0 {
		c.FeedForwardFactor = a.FeedForwardFactor
	}
	if a.PredictorUnits > 0 {
		c.PredictorUnits = a.PredictorUnits
	}
	c.DropoutRate = a.DropoutRate
	c.PredictorDropout = a.PredictorDropout
	if a.PositionalEncoding != "" {
		c.Positional = ParsePositionalKind(a.PositionalEncoding)
	}
	if a.Normalization != "" {
		c.Normalization = ParseNormalization(a.Normalization)
	}
	return c
}
