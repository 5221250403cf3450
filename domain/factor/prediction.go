package factor

import (
	"math"

	"factorcorr/domain/core"
)

// PredictionRequest asks for the correlation between two factors
type PredictionRequest struct {
	Sequence         TimeSeriesSample `json:"sequence"`
	FactorA          string           `json:"factorA"`
	FactorB          string           `json:"factorB"`
	FactorEmbeddingA []float64        `json:"factorEmbeddingA,omitempty"`
	FactorEmbeddingB []float64        `json:"factorEmbeddingB,omitempty"`
}

// PredictionResult is the model's view of how two factors move together
type PredictionResult struct {
	FactorA             string     `json:"factorA"`
	FactorB             string     `json:"factorB"`
	Correlation         float64    `json:"correlation"`
	Confidence          float64    `json:"confidence"`
	Uncertainty         float64    `json:"uncertainty"`
	ConfidenceInterval  [2]float64 `json:"confidenceInterval"`
	EffectiveSampleSize float64    `json:"effectiveSampleSize"`
	RecencyScore        float64    `json:"recencyScore"`
	NonLinearityScore   float64    `json:"nonLinearityScore"`
	ModelID             string     `json:"modelId,omitempty"`
}

// HeadOutputs are the raw values of the three predictor heads
type HeadOutputs struct {
	Correlation float64
	Confidence  float64
	Uncertainty float64
}

// NewPredictionResult clamps the head outputs and derives the confidence interval
func NewPredictionResult(factorA, factorB string, heads HeadOutputs) PredictionResult {
	corr := clamp(heads.Correlation, -1, 1)
	unc := clamp(heads.Uncertainty, 0, 1)
	return PredictionResult{
		FactorA:            factorA,
		FactorB:            factorB,
		Correlation:        corr,
		Confidence:         clamp(heads.Confidence, 0, 1),
		Uncertainty:        unc,
		ConfidenceInterval: [2]float64{math.Max(-1, corr-unc), math.Min(1, corr+unc)},
	}
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}

// CacheKey identifies a request for a given model snapshot: factor pair, caller
// embeddings and series contents all contribute
func (r PredictionRequest) CacheKey(modelID core.ModelID) string {
	b := &core.HashBuilder{}
	b.String(modelID.String()).String(r.FactorA).String(r.FactorB)
	b.Int(int64(len(r.FactorEmbeddingA)))
	for _, v := range r.FactorEmbeddingA {
		b.Float(v)
	}
	b.Int(int64(len(r.FactorEmbeddingB)))
	for _, v := range r.FactorEmbeddingB {
		b.Float(v)
	}
	b.String(r.Sequence.Fingerprint().String())
	return b.Sum().String()
}
