package factor

import (
	"strings"

	"gonum.org/v1/gonum/stat"
)

// Pair names two factors whose joint movement is modelled
type Pair struct {
	FactorA string `json:"factorA" db:"factor_a"`
	FactorB string `json:"factorB" db:"factor_b"`
}

// Key is the canonical order-independent identifier of the pair
func (p Pair) Key() string {
	a, b := p.FactorA, p.FactorB
	if strings.Compare(a, b) > 0 {
		a, b = b, a
	}
	return a + "|" + b
}

// SeriesStats are the statistics computed on the raw series beside the model output
type SeriesStats struct {
	NonLinearity        float64 `json:"nonLinearityScore"`
	Recency             float64 `json:"recencyScore"`
	EffectiveSampleSize float64 `json:"effectiveSampleSize"`
	Pearson             float64 `json:"pearson"`
	Spearman            float64 `json:"spearman"`
}

// BatchPrediction is one slot of a batch response; exactly one of Result and Error is set
type BatchPrediction struct {
	Index  int               `json:"index"`
	Result *PredictionResult `json:"result,omitempty"`
	Error  string            `json:"error,omitempty"`
}

// EvaluationReport aggregates held-out performance of the model
type EvaluationReport struct {
	Examples           int     `json:"examples"`
	Skipped            int     `json:"skipped"`
	Loss               float64 `json:"loss"`
	CorrelationMAE     float64 `json:"correlationMAE"`
	ConfidenceAccuracy float64 `json:"confidenceAccuracy"`
	R2                 float64 `json:"r2"`
}

// RSquared is 1 - SSres/SStot around the mean of actual; 0 when actual has no spread
func RSquared(actual, predicted []float64) float64 {
	if len(actual) < 2 || len(predicted) != len(actual) {
		return 0
	}
	if stat.Variance(actual, nil) == 0 {
		return 0
	}
	return stat.RSquaredFrom(predicted, actual, nil)
}

// LeadDirection interprets the lag at which two factors move together most strongly
type LeadDirection string

const (
	DirectionALeads      LeadDirection = "a_leads"
	DirectionBLeads      LeadDirection = "b_leads"
	DirectionSynchronous LeadDirection = "synchronous"
	DirectionNone        LeadDirection = "none"
)

// LeadLag is a time-lagged cross-correlation scan; positive lag means A at t moves with B at t+lag
type LeadLag struct {
	BestLag          int             `json:"bestLag"`
	Correlation      float64         `json:"correlation"`
	PValue           float64         `json:"pValue"`
	EffectiveSamples int             `json:"effectiveSamples"`
	MaxLag           int             `json:"maxLag"`
	Direction        LeadDirection   `json:"direction"`
	ByLag            map[int]float64 `json:"byLag,omitempty"`
}

// SeriesAnalysis is the model-free view of a pair's history
type SeriesAnalysis struct {
	Stats        SeriesStats `json:"stats"`
	LeadLag      *LeadLag    `json:"leadLag,omitempty"`
	LeadLagError string      `json:"leadLagError,omitempty"`
}
