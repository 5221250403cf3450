package model

import (
	"context"
	"fmt"
	"sync"

	"factorcorr/adapters/rng"
	"factorcorr/domain/core"
	"factorcorr/domain/factor"
	"factorcorr/domain/snapshot"
	"factorcorr/internal"
	"factorcorr/ports"

	"golang.org/x/sync/errgroup"
)

// State is the lifecycle stage of a model instance
type State string

const (
	StateUninitialized State = "uninitialized"
	StateInitializing  State = "initializing"
	StateReady         State = "ready"
	StateTraining      State = "training"
	StateError         State = "error"
)

// Model is the time-series correlation model. Predictions read an immutable
// weight set and may run in parallel; training, loading and saving are serialised.
type Model struct {
	writer sync.Mutex

	mu      sync.RWMutex
	cfg     Config
	net     *network
	state   State
	lastErr error
	id      core.ModelID
	version string
	history []snapshot.TrainingRecord
	// saved is set once the current id+version exists on disk or in a registry
	saved bool

	logger     *internal.Logger
	rng        ports.RNGPort
	embeddings ports.EmbeddingProvider
	analyzer   ports.SeriesAnalyzer
	observer   ports.TrainingObserver
}

// Option configures a Model
type Option func(*Model)

// WithLogger sets the logger
func WithLogger(l *internal.Logger) Option {
	return func(m *Model) { m.logger = l }
}

// WithEmbeddingProvider replaces the random fallback embeddings
func WithEmbeddingProvider(p ports.EmbeddingProvider) Option {
	return func(m *Model) { m.embeddings = p }
}

// WithRNG replaces the source of weight-init, dropout and shuffle streams
func WithRNG(r ports.RNGPort) Option {
	return func(m *Model) { m.rng = r }
}

// WithSeriesAnalyzer attaches the statistics reported beside each prediction
func WithSeriesAnalyzer(a ports.SeriesAnalyzer) Option {
	return func(m *Model) { m.analyzer = a }
}

// WithTrainingObserver streams epoch progress to o
func WithTrainingObserver(o ports.TrainingObserver) Option {
	return func(m *Model) { m.observer = o }
}

// New creates an uninitialized model
func New(cfg Config, opts ...Option) (*Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid model config: %w", err)
	}
	if cfg.Version == "" {
		cfg.Version = snapshot.DefaultModelVersion
	}
	m := &Model{
		cfg:     cfg,
		state:   StateUninitialized,
		version: cfg.Version,
		logger:  internal.NopLogger(),
		rng:     rng.NewSeeded(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.embeddings == nil {
		m.embeddings = NewRandomEmbeddingProvider(m.rng.SeededStream("embedding", cfg.Seed))
	}
	m.logger = m.logger.WithField("component", "correlation_model")
	return m, nil
}

// Initialize builds fresh weights. It is a no-op once the model has left the uninitialized state.
func (m *Model) Initialize(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateUninitialized {
		return nil
	}
	m.state = StateInitializing
	m.net = newNetwork(m.cfg, m.rng.SeededStream("init", m.cfg.Seed))
	m.id = core.NewModelID()
	m.state = StateReady
	m.logger.Info("initialized model %s (%d parameters)", m.id, m.net.params.count())
	return nil
}

func (m *Model) ensureInitialized(ctx context.Context) error {
	if m.State() == StateUninitialized {
		return m.Initialize(ctx)
	}
	return nil
}

// State returns the current lifecycle state
func (m *Model) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// LastError returns the failure that put the model in the error state
func (m *Model) LastError() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastErr
}

// ID returns the current snapshot id
func (m *Model) ID() core.ModelID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.id
}

// Version returns the current semantic version
func (m *Model) Version() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.version
}

// Config returns the active configuration, including any loaded architecture
func (m *Model) Config() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

// History returns a copy of the training history
func (m *Model) History() []snapshot.TrainingRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]snapshot.TrainingRecord, len(m.history))
	copy(out, m.history)
	return out
}

// Metadata describes the current snapshot as it would be persisted
func (m *Model) Metadata() snapshot.Metadata {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return snapshot.NewMetadata(m.cfg.Name, m.id, m.version, m.cfg.Architecture(), m.history)
}

// current returns the serving weights; they are never mutated after publication
func (m *Model) current() (*network, core.ModelID) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.net, m.id
}

func (m *Model) embeddingFor(name string, given []float64, dim int) ([]float64, error) {
	if len(given) == 0 {
		return m.embeddings.Embedding(name, dim), nil
	}
	if len(given) != dim {
		return nil, core.NewShapeError("embedding for "+name, dim, len(given))
	}
	return given, nil
}

// Predict estimates how the two factors in req move together
func (m *Model) Predict(ctx context.Context, req factor.PredictionRequest) (factor.PredictionResult, error) {
	if err := m.ensureInitialized(ctx); err != nil {
		return factor.PredictionResult{}, err
	}
	if err := ctx.Err(); err != nil {
		return factor.PredictionResult{}, err
	}
	net, id := m.current()

	series := req.Sequence.Sorted()
	seq, err := NewPreprocessor(net.cfg.Normalization, net.cfg.MaxSequenceLength).Prepare(series)
	if err != nil {
		return factor.PredictionResult{}, err
	}
	embA, err := m.embeddingFor(req.FactorA, req.FactorEmbeddingA, net.cfg.EmbeddingDimension)
	if err != nil {
		return factor.PredictionResult{}, err
	}
	embB, err := m.embeddingFor(req.FactorB, req.FactorEmbeddingB, net.cfg.EmbeddingDimension)
	if err != nil {
		return factor.PredictionResult{}, err
	}

	heads := infer(net, seq, embA, embB)
	result := factor.NewPredictionResult(req.FactorA, req.FactorB, heads)
	result.ModelID = id.String()
	if m.analyzer != nil {
		stats := m.analyzer.Analyze(series)
		result.NonLinearityScore = stats.NonLinearity
		result.RecencyScore = stats.Recency
		result.EffectiveSampleSize = stats.EffectiveSampleSize
	} else {
		result.EffectiveSampleSize = float64(len(series))
		result.RecencyScore = 0.5
	}
	return result, nil
}

// infer runs one inference pass; scratch buffers are returned to the pool on exit
func infer(net *network, seq []Step, embA, embB []float64) factor.HeadOutputs {
	ar := acquireArena()
	defer ar.release()
	return net.forward(pass{ar: ar}, toDense(ar, seq), embA, embB).heads
}

// PredictBatch runs predictions concurrently with at most MaxConcurrency in flight.
// Per-request failures are reported in their slot; only cancellation fails the batch.
func (m *Model) PredictBatch(ctx context.Context, reqs []factor.PredictionRequest) ([]factor.BatchPrediction, error) {
	if err := m.ensureInitialized(ctx); err != nil {
		return nil, err
	}
	out := make([]factor.BatchPrediction, len(reqs))
	g, gctx := errgroup.WithContext(ctx)
	limit := m.Config().MaxConcurrency
	if limit <= 0 {
		limit = 1
	}
	g.SetLimit(limit)

	for i := range reqs {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := m.Predict(gctx, reqs[i])
			out[i] = factor.BatchPrediction{Index: i}
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
