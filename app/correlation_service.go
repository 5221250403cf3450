package app

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"factorcorr/domain/core"
	"factorcorr/domain/factor"
	"factorcorr/domain/snapshot"
	"factorcorr/internal"
	"factorcorr/internal/counterfactual"
	apperrors "factorcorr/internal/errors"
	"factorcorr/internal/metrics"
	"factorcorr/internal/model"
	"factorcorr/ports"

	"golang.org/x/sync/errgroup"
)

// CorrelationService is the application entry point shared by the HTTP API and the CLI
type CorrelationService struct {
	model      *model.Model
	propagator *counterfactual.Propagator
	cache      ports.PredictionCache
	history    ports.HistoryProvider
	registry   ports.ModelRegistry
	analyzer   ports.SeriesAnalyzer
	scanner    ports.LeadLagScanner
	logger     *internal.Logger
}

// ServiceOption configures optional collaborators
type ServiceOption func(*CorrelationService)

// WithCache enables prediction caching
func WithCache(c ports.PredictionCache) ServiceOption {
	return func(s *CorrelationService) { s.cache = c }
}

// WithHistory enables TrainFromHistory
func WithHistory(h ports.HistoryProvider) ServiceOption {
	return func(s *CorrelationService) { s.history = h }
}

// WithRegistry enables Publish and Fetch
func WithRegistry(r ports.ModelRegistry) ServiceOption {
	return func(s *CorrelationService) { s.registry = r }
}

// WithAnalysis enables Analyze; scanner may be nil to skip the lead/lag scan
func WithAnalysis(a ports.SeriesAnalyzer, scanner ports.LeadLagScanner) ServiceOption {
	return func(s *CorrelationService) {
		s.analyzer = a
		s.scanner = scanner
	}
}

// NewCorrelationService wires a model and propagator with optional adapters
func NewCorrelationService(m *model.Model, p *counterfactual.Propagator, logger *internal.Logger, opts ...ServiceOption) *CorrelationService {
	if logger == nil {
		logger = internal.NopLogger()
	}
	s := &CorrelationService{
		model:      m,
		propagator: p,
		logger:     logger.WithField("component", "correlation_service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Analyze reports the model-free statistics of a pair's history. A series too
// short for the lead/lag scan still gets its statistics.
func (s *CorrelationService) Analyze(series factor.TimeSeriesSample, maxLag int) (factor.SeriesAnalysis, error) {
	if s.analyzer == nil {
		return factor.SeriesAnalysis{}, errors.New("series analysis is not configured")
	}
	if !series.Usable() {
		return factor.SeriesAnalysis{}, fmt.Errorf("%w: need at least %d points, got %d", core.ErrInsufficientData, factor.MinSeriesPoints, len(series))
	}
	out := factor.SeriesAnalysis{Stats: s.analyzer.Analyze(series)}
	if s.scanner != nil {
		ll, err := s.scanner.LeadLag(series, maxLag)
		if err != nil {
			out.LeadLagError = err.Error()
		} else {
			out.LeadLag = &ll
		}
	}
	return out, nil
}

// Model exposes the underlying model for status endpoints
func (s *CorrelationService) Model() *model.Model { return s.model }

// Predict answers from the cache when possible and records outcome metrics
func (s *CorrelationService) Predict(ctx context.Context, req factor.PredictionRequest) (factor.PredictionResult, error) {
	start := time.Now()
	defer func() { metrics.PredictionDuration.Observe(time.Since(start).Seconds()) }()

	var key string
	if s.cache != nil && s.model.State() != model.StateUninitialized {
		key = req.CacheKey(s.model.ID())
		cached, err := s.cache.Get(ctx, key)
		if err != nil {
			s.logger.WithError(err).Warn("prediction cache lookup failed")
		} else if cached != nil {
			metrics.PredictionsTotal.WithLabelValues("cached").Inc()
			return *cached, nil
		}
	}

	result, err := s.model.Predict(ctx, req)
	if err != nil {
		if core.IsInputError(err) {
			metrics.PredictionsTotal.WithLabelValues("invalid").Inc()
		} else {
			metrics.PredictionsTotal.WithLabelValues("error").Inc()
		}
		return factor.PredictionResult{}, err
	}
	metrics.PredictionsTotal.WithLabelValues("ok").Inc()

	if s.cache != nil {
		if key == "" || result.ModelID != s.model.ID().String() {
			key = req.CacheKey(core.ModelID(result.ModelID))
		}
		if err := s.cache.Set(ctx, key, result); err != nil {
			s.logger.WithError(err).Warn("prediction cache store failed")
		}
	}
	return result, nil
}

// PredictBatch fans out through Predict so every item can hit the cache
func (s *CorrelationService) PredictBatch(ctx context.Context, reqs []factor.PredictionRequest) ([]factor.BatchPrediction, error) {
	if err := s.model.Initialize(ctx); err != nil {
		return nil, err
	}
	out := make([]factor.BatchPrediction, len(reqs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, s.model.Config().MaxConcurrency))
	for i := range reqs {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out[i] = factor.BatchPrediction{Index: i}
			res, err := s.Predict(gctx, reqs[i])
			if err != nil {
				out[i].Error = err.Error()
				return nil
			}
			out[i].Result = &res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Counterfactual propagates a hypothetical probability change; it never fails
func (s *CorrelationService) Counterfactual(ctx context.Context, req factor.CounterfactualRequest) factor.CounterfactualResult {
	result := s.propagator.Propagate(req)
	if result.Degraded() {
		s.logger.WithField("change_index", req.ChangeIndex).Warn("counterfactual degraded: %s", result.Error)
	}
	return result
}

// Train runs the model's training loop and records run metrics
func (s *CorrelationService) Train(ctx context.Context, examples []factor.TrainingExample, opts factor.TrainingOptions) (snapshot.TrainingRecord, error) {
	rec, err := s.model.Train(ctx, examples, opts)
	switch {
	case errors.Is(err, core.ErrTrainingInProgress):
		metrics.TrainingRuns.WithLabelValues("rejected").Inc()
		return rec, err
	case err != nil:
		metrics.TrainingRuns.WithLabelValues("failed").Inc()
		return rec, err
	}
	metrics.TrainingRuns.WithLabelValues("success").Inc()
	metrics.TrainingEpochs.Observe(float64(rec.EpochsRun))
	loss := rec.ValLoss
	if math.IsNaN(loss) || loss == 0 {
		loss = rec.TrainLoss
	}
	metrics.LastValidationLoss.Set(loss)
	s.logger.WithFields(map[string]interface{}{
		"model_id": s.model.ID().String(),
		"version":  s.model.Version(),
		"epochs":   rec.EpochsRun,
	}).Info("training finished: train=%.4f val=%.4f mae=%.4f", rec.TrainLoss, rec.ValLoss, rec.CorrelationMAE)
	return rec, nil
}

// Evaluate scores labelled examples against the current weights
func (s *CorrelationService) Evaluate(ctx context.Context, examples []factor.TrainingExample) (factor.EvaluationReport, error) {
	return s.model.Evaluate(ctx, examples)
}

// HistoryExamples builds training examples from stored history: every stored pair
// present in the latest matrix becomes one example labelled with its matrix entry
func (s *CorrelationService) HistoryExamples(ctx context.Context, sport, league string) ([]factor.TrainingExample, error) {
	if s.history == nil {
		return nil, fmt.Errorf("history provider not configured")
	}
	matrix, err := s.history.LatestMatrix(ctx, sport, league)
	if err != nil {
		return nil, err
	}
	pairs, err := s.history.ListPairs(ctx, sport, league)
	if err != nil {
		return nil, err
	}

	var examples []factor.TrainingExample
	for _, pair := range pairs {
		i, j := matrix.IndexOf(pair.FactorA), matrix.IndexOf(pair.FactorB)
		if i < 0 || j < 0 || i == j {
			continue
		}
		series, err := s.history.SeriesForPair(ctx, sport, league, pair.FactorA, pair.FactorB)
		if errors.Is(err, core.ErrSeriesNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if !series.Usable() {
			continue
		}
		conf := SampleConfidence(len(series))
		examples = append(examples, factor.TrainingExample{
			FactorA:     pair.FactorA,
			FactorB:     pair.FactorB,
			TimeSeries:  series,
			Correlation: matrix.At(i, j),
			Confidence:  &conf,
			DataPoints:  len(series),
		})
	}
	if len(examples) == 0 {
		return nil, fmt.Errorf("%w: no stored pairs for %s/%s", core.ErrNoTrainingData, sport, league)
	}
	return examples, nil
}

// TrainFromHistory trains on HistoryExamples
func (s *CorrelationService) TrainFromHistory(ctx context.Context, sport, league string, opts factor.TrainingOptions) (snapshot.TrainingRecord, error) {
	examples, err := s.HistoryExamples(ctx, sport, league)
	if err != nil {
		return snapshot.TrainingRecord{}, err
	}
	s.logger.Info("training on %d stored pairs for %s/%s", len(examples), sport, league)
	return s.Train(ctx, examples, opts)
}

// SampleConfidence is 1 - 1/sqrt(n), the complement of a correlation's standard error scale
func SampleConfidence(n int) float64 {
	if n <= 1 {
		return 0
	}
	return 1 - 1/math.Sqrt(float64(n))
}

// Publish uploads the current snapshot to the registry
func (s *CorrelationService) Publish(ctx context.Context) (string, error) {
	if s.registry == nil {
		return "", apperrors.ConfigInvalid("model registry not configured")
	}
	return s.model.SaveToRegistry(ctx, s.registry)
}

// Fetch replaces the current weights with a registry version ("" or "latest" for the newest)
func (s *CorrelationService) Fetch(ctx context.Context, version string) error {
	if s.registry == nil {
		return apperrors.ConfigInvalid("model registry not configured")
	}
	return s.model.LoadFromRegistry(ctx, s.registry, version)
}

// Save writes a local snapshot
func (s *CorrelationService) Save(ctx context.Context, dir string) (string, error) {
	return s.model.Save(ctx, dir)
}

// Load restores a local snapshot
func (s *CorrelationService) Load(ctx context.Context, path string) error {
	return s.model.Load(ctx, path)
}
