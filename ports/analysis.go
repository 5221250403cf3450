package ports

import (
	"context"

	"factorcorr/domain/factor"
)

// SeriesAnalyzer computes the classical statistics reported next to every prediction
type SeriesAnalyzer interface {
	Analyze(series factor.TimeSeriesSample) factor.SeriesStats
}

// PredictionCache memoises prediction results keyed by model, factor pair and series
type PredictionCache interface {
	Get(ctx context.Context, key string) (*factor.PredictionResult, error)
	Set(ctx context.Context, key string, result factor.PredictionResult) error
}

// TrainingObserver receives per-epoch progress while a model trains
type TrainingObserver interface {
	OnEpoch(progress factor.EpochProgress)
}

// LeadLagScanner finds the lag at which two factors co-move most strongly
type LeadLagScanner interface {
	LeadLag(series factor.TimeSeriesSample, maxLag int) (factor.LeadLag, error)
}
