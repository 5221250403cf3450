package factor

import "math"

// DefaultConfidenceLabel is used when an example carries no confidence label
const DefaultConfidenceLabel = 0.7

// TrainingExample is one supervised sample for the correlation model
type TrainingExample struct {
	FactorA    string           `json:"factorA,omitempty"`
	FactorB    string           `json:"factorB,omitempty"`
	TimeSeries TimeSeriesSample `json:"timeSeries"`
	EmbeddingA []float64        `json:"embeddingA,omitempty"`
	EmbeddingB []float64        `json:"embeddingB,omitempty"`
	// Correlation is the supervised label in [-1,1]
	Correlation float64  `json:"correlation"`
	Confidence  *float64 `json:"confidence,omitempty"`
	DataPoints  int      `json:"dataPoints"`
}

// ConfidenceLabel returns the confidence target, defaulting to 0.7
func (e TrainingExample) ConfidenceLabel() float64 {
	if e.Confidence == nil {
		return DefaultConfidenceLabel
	}
	return math.Max(0, math.Min(1, *e.Confidence))
}

// SampleCount returns DataPoints, or the series length when unset
func (e TrainingExample) SampleCount() int {
	if e.DataPoints > 0 {
		return e.DataPoints
	}
	return len(e.TimeSeries)
}

// UncertaintyLabel derives the uncertainty target: 1 - confidence*min(1, n/100)
func (e TrainingExample) UncertaintyLabel() float64 {
	coverage := math.Min(1, float64(e.SampleCount())/100)
	return 1 - e.ConfidenceLabel()*coverage
}

// CorrelationLabel returns the correlation target clamped to [-1,1]
func (e TrainingExample) CorrelationLabel() float64 {
	return math.Max(-1, math.Min(1, e.Correlation))
}

// TrainingOptions are caller overrides for a training run; zero values mean "use config"
type TrainingOptions struct {
	BatchSize       int      `json:"batchSize,omitempty"`
	Epochs          int      `json:"epochs,omitempty"`
	ValidationSplit *float64 `json:"validationSplit,omitempty"`
	PatienceEpochs  int      `json:"patienceEpochs,omitempty"`
	EarlyStopping   *bool    `json:"earlyStopping,omitempty"`
	LearningRate    float64  `json:"learningRate,omitempty"`
}

// EpochProgress reports one finished training epoch
type EpochProgress struct {
	Epoch     int     `json:"epoch"`
	Epochs    int     `json:"epochs"`
	TrainLoss float64 `json:"trainLoss"`
	ValLoss   float64 `json:"valLoss"`
	Improved  bool    `json:"improved"`
}
