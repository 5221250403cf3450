package model

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"factorcorr/adapters/registry"
	"factorcorr/domain/core"
	"factorcorr/domain/factor"
	"factorcorr/domain/snapshot"
	"factorcorr/internal/config"
	apperrors "factorcorr/internal/errors"
	"factorcorr/internal/testkit"
	"factorcorr/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func tinyConfig() Config {
	cfg := DefaultConfig()
	cfg.Name = "test-model"
	cfg.ModelDimension = 16
	cfg.NumHeads = 2
	cfg.NumLayers = 1
	cfg.EmbeddingDimension = 8
	cfg.MaxSequenceLength = 64
	cfg.FeedForwardFactor = 2
	cfg.PredictorUnits = 16
	cfg.LearningRate = 0.01
	cfg.Training.BatchSize = 8
	cfg.Training.Epochs = 40
	cfg.Training.EarlyStopping = false
	return cfg
}

func newTestModel(t *testing.T, cfg Config) *Model {
	t.Helper()
	m, err := New(cfg,
		WithRNG(&testkit.RNGAdapter{}),
		WithEmbeddingProvider(testkit.HashEmbeddingProvider{}),
	)
	require.NoError(t, err)
	return m
}

func seriesConfig(seed int64) testkit.SeriesGeneratorConfig {
	c := testkit.DefaultSeriesConfig()
	c.Seed = seed
	return c
}

func coMovingRequest(seed int64) factor.PredictionRequest {
	return factor.PredictionRequest{
		Sequence: testkit.NewSeriesGenerator(seriesConfig(seed)).Series(testkit.CoMoving),
		FactorA:  "co_moving_a",
		FactorB:  "co_moving_b",
	}
}

func trainingSet(seed int64) []factor.TrainingExample {
	gen := testkit.NewSeriesGenerator(seriesConfig(seed))
	return testkit.Interleave(
		gen.Examples(testkit.CoMoving, 24, 0.8, 0.9),
		gen.Examples(testkit.AntiMoving, 24, -0.8, 0.9),
	)
}

func TestNewRejectsIndivisibleHeads(t *testing.T) {
	cfg := tinyConfig()
	cfg.NumHeads = 3
	_, err := New(cfg)
	assert.Error(t, err)
}

func TestPredictAutoInitializes(t *testing.T) {
	m := newTestModel(t, tinyConfig())
	assert.Equal(t, StateUninitialized, m.State())

	res, err := m.Predict(context.Background(), coMovingRequest(1))
	require.NoError(t, err)
	assert.Equal(t, StateReady, m.State())
	assert.Equal(t, m.ID().String(), res.ModelID)
	assert.Equal(t, "co_moving_a", res.FactorA)
	assert.Equal(t, "co_moving_b", res.FactorB)
}

func TestPredictBoundsAndInterval(t *testing.T) {
	m := newTestModel(t, tinyConfig())
	for seed := int64(1); seed <= 5; seed++ {
		res, err := m.Predict(context.Background(), coMovingRequest(seed))
		require.NoError(t, err)

		assert.GreaterOrEqual(t, res.Correlation, -1.0)
		assert.LessOrEqual(t, res.Correlation, 1.0)
		assert.GreaterOrEqual(t, res.Confidence, 0.0)
		assert.LessOrEqual(t, res.Confidence, 1.0)
		assert.GreaterOrEqual(t, res.Uncertainty, 0.0)
		assert.LessOrEqual(t, res.Uncertainty, 1.0)

		lo, hi := res.ConfidenceInterval[0], res.ConfidenceInterval[1]
		assert.LessOrEqual(t, lo, res.Correlation)
		assert.GreaterOrEqual(t, hi, res.Correlation)
		assert.GreaterOrEqual(t, lo, -1.0)
		assert.LessOrEqual(t, hi, 1.0)
	}
}

func TestPredictRejectsBadInput(t *testing.T) {
	m := newTestModel(t, tinyConfig())
	ctx := context.Background()

	short := coMovingRequest(1)
	short.Sequence = short.Sequence[:2]
	_, err := m.Predict(ctx, short)
	assert.ErrorIs(t, err, core.ErrInsufficientData)

	badEmbedding := coMovingRequest(1)
	badEmbedding.FactorEmbeddingA = []float64{1, 2, 3}
	_, err = m.Predict(ctx, badEmbedding)
	assert.ErrorIs(t, err, core.ErrShapeMismatch)
}

func TestPredictIsDeterministic(t *testing.T) {
	m := newTestModel(t, tinyConfig())
	a, err := m.Predict(context.Background(), coMovingRequest(3))
	require.NoError(t, err)
	b, err := m.Predict(context.Background(), coMovingRequest(3))
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestPredictBatchReportsPerItemErrors(t *testing.T) {
	m := newTestModel(t, tinyConfig())
	reqs := make([]factor.PredictionRequest, 6)
	for i := range reqs {
		reqs[i] = coMovingRequest(int64(i + 1))
	}
	reqs[3].Sequence = reqs[3].Sequence[:1]

	out, err := m.PredictBatch(context.Background(), reqs)
	require.NoError(t, err)
	require.Len(t, out, 6)
	for i, item := range out {
		assert.Equal(t, i, item.Index)
		if i == 3 {
			assert.Nil(t, item.Result)
			assert.NotEmpty(t, item.Error)
			continue
		}
		require.NotNil(t, item.Result)
		assert.Empty(t, item.Error)
	}
}

func TestTrainCoMovingFactors(t *testing.T) {
	m := newTestModel(t, tinyConfig())
	ctx := context.Background()
	require.NoError(t, m.Initialize(ctx))
	before := m.ID()

	record, err := m.Train(ctx, trainingSet(11), factor.TrainingOptions{})
	require.NoError(t, err)

	assert.Equal(t, StateReady, m.State())
	assert.NotEqual(t, before, m.ID())
	assert.Equal(t, 40, record.EpochsRun)
	assert.Equal(t, 48, record.Examples)
	assert.Zero(t, record.Skipped)
	assert.Len(t, m.History(), 1)
	assert.Equal(t, "1.0.0", m.Version())

	res, err := m.Predict(ctx, coMovingRequest(99))
	require.NoError(t, err)
	assert.Greater(t, res.Correlation, 0.5)
	assert.Greater(t, res.Confidence, 0.5)
}

func TestTrainSkipsUnusableExamples(t *testing.T) {
	m := newTestModel(t, tinyConfig())
	examples := trainingSet(5)[:6]
	examples[0].TimeSeries = examples[0].TimeSeries[:2]
	examples[1].EmbeddingA = []float64{1}

	record, err := m.Train(context.Background(), examples, factor.TrainingOptions{Epochs: 2})
	require.NoError(t, err)
	assert.Equal(t, 4, record.Examples)
	assert.Equal(t, 2, record.Skipped)
}

func TestTrainWithoutUsableData(t *testing.T) {
	m := newTestModel(t, tinyConfig())
	examples := trainingSet(5)[:2]
	for i := range examples {
		examples[i].TimeSeries = examples[i].TimeSeries[:2]
	}
	_, err := m.Train(context.Background(), examples, factor.TrainingOptions{})
	assert.ErrorIs(t, err, core.ErrNoTrainingData)
	assert.Equal(t, StateReady, m.State())
	assert.Empty(t, m.History())
}

func TestTrainRejectsConcurrentRun(t *testing.T) {
	m := newTestModel(t, tinyConfig())
	m.writer.Lock()
	defer m.writer.Unlock()

	_, err := m.Train(context.Background(), trainingSet(1), factor.TrainingOptions{})
	assert.ErrorIs(t, err, core.ErrTrainingInProgress)
	assert.Equal(t, apperrors.CodeModelState, apperrors.GetCode(err))
}

func TestFailedTrainingKeepsPriorWeights(t *testing.T) {
	m := newTestModel(t, tinyConfig())
	ctx := context.Background()
	before, err := m.Predict(ctx, coMovingRequest(4))
	require.NoError(t, err)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = m.Train(cancelled, trainingSet(2), factor.TrainingOptions{})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateError, m.State())
	assert.ErrorIs(t, m.LastError(), context.Canceled)

	after, err := m.Predict(ctx, coMovingRequest(4))
	require.NoError(t, err)
	assert.Equal(t, before, after)

	_, err = m.Train(ctx, trainingSet(2)[:8], factor.TrainingOptions{Epochs: 1})
	require.NoError(t, err)
	assert.Equal(t, StateReady, m.State())
	assert.NoError(t, m.LastError())
}

func TestRetrainingBumpsVersion(t *testing.T) {
	m := newTestModel(t, tinyConfig())
	ctx := context.Background()
	data := trainingSet(3)[:8]

	_, err := m.Train(ctx, data, factor.TrainingOptions{Epochs: 1})
	require.NoError(t, err)
	first := m.ID()
	assert.Equal(t, "1.0.0", m.Version())

	_, err = m.Train(ctx, data, factor.TrainingOptions{Epochs: 1})
	require.NoError(t, err)
	assert.Equal(t, "1.0.1", m.Version())
	assert.NotEqual(t, first, m.ID())
	assert.Len(t, m.History(), 2)
}

func TestPredictDuringTraining(t *testing.T) {
	m := newTestModel(t, tinyConfig())
	ctx := context.Background()
	require.NoError(t, m.Initialize(ctx))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := m.Train(ctx, trainingSet(8), factor.TrainingOptions{Epochs: 3})
		assert.NoError(t, err)
	}()

	for i := 0; i < 10; i++ {
		_, err := m.Predict(ctx, coMovingRequest(int64(i+1)))
		assert.NoError(t, err)
	}
	wg.Wait()
	assert.Equal(t, StateReady, m.State())
}

func TestEvaluate(t *testing.T) {
	m := newTestModel(t, tinyConfig())
	examples := trainingSet(6)[:10]
	examples[0].TimeSeries = nil

	report, err := m.Evaluate(context.Background(), examples)
	require.NoError(t, err)
	assert.Equal(t, 9, report.Examples)
	assert.Equal(t, 1, report.Skipped)
	assert.Greater(t, report.Loss, 0.0)
	assert.GreaterOrEqual(t, report.CorrelationMAE, 0.0)
	assert.GreaterOrEqual(t, report.ConfidenceAccuracy, 0.0)
	assert.LessOrEqual(t, report.ConfidenceAccuracy, 1.0)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	cfg := tinyConfig()
	cfg.Dir = t.TempDir()
	cfg.Positional = PositionalLearned
	ctx := context.Background()

	m := newTestModel(t, cfg)
	_, err := m.Train(ctx, trainingSet(4)[:8], factor.TrainingOptions{Epochs: 2})
	require.NoError(t, err)

	path, err := m.Save(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "test-model_1.0.0_"+m.ID().String(), filepath.Base(path))
	for _, name := range []string{"model.json", "weights.bin", "metadata.json"} {
		assert.FileExists(t, filepath.Join(path, name))
	}

	raw, err := os.ReadFile(filepath.Join(path, "metadata.json"))
	require.NoError(t, err)
	var meta map[string]any
	require.NoError(t, json.Unmarshal(raw, &meta))
	for _, key := range []string{"modelId", "modelVersion", "modelDimension", "numHeads", "numLayers", "embeddingDimension", "maxSequenceLength", "trainingHistory", "savedAt"} {
		assert.Contains(t, meta, key)
	}

	loaded := newTestModel(t, DefaultConfig())
	require.NoError(t, loaded.Load(ctx, path))

	got, want := loaded.Config(), m.Config()
	assert.Equal(t, want.ModelDimension, got.ModelDimension)
	assert.Equal(t, want.NumHeads, got.NumHeads)
	assert.Equal(t, want.NumLayers, got.NumLayers)
	assert.Equal(t, want.EmbeddingDimension, got.EmbeddingDimension)
	assert.Equal(t, want.MaxSequenceLength, got.MaxSequenceLength)
	assert.Equal(t, PositionalLearned, got.Positional)
	assert.Len(t, loaded.History(), len(m.History()))
	assert.Equal(t, m.ID(), loaded.ID())
	assert.Equal(t, StateReady, loaded.State())

	req := coMovingRequest(21)
	a, err := m.Predict(ctx, req)
	require.NoError(t, err)
	b, err := loaded.Predict(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestSaveDoesNotRewriteSnapshot(t *testing.T) {
	ctx := context.Background()
	m := newTestModel(t, tinyConfig())
	dir := t.TempDir()

	first, err := m.Save(ctx, dir)
	require.NoError(t, err)
	before, err := os.ReadFile(filepath.Join(first, "metadata.json"))
	require.NoError(t, err)

	second, err := m.Save(ctx, dir)
	require.NoError(t, err)
	after, err := os.ReadFile(filepath.Join(second, "metadata.json"))
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, before, after)
}

func TestSaveFailureIsStorageError(t *testing.T) {
	m := newTestModel(t, tinyConfig())
	blocker := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	_, err := m.Save(context.Background(), blocker)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeStorageError, apperrors.GetCode(err))
}

func TestLoadMissingSnapshot(t *testing.T) {
	m := newTestModel(t, tinyConfig())
	err := m.Load(context.Background(), filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, err, core.ErrSnapshotNotFound)
	assert.Equal(t, StateUninitialized, m.State())
}

type mockRegistry struct {
	mock.Mock
}

func (r *mockRegistry) UploadModel(ctx context.Context, name, version, localPath string) (string, error) {
	args := r.Called(ctx, name, version, localPath)
	return args.String(0), args.Error(1)
}

func (r *mockRegistry) DownloadModel(ctx context.Context, name, version string) (string, error) {
	args := r.Called(ctx, name, version)
	return args.String(0), args.Error(1)
}

var _ ports.ModelRegistry = (*mockRegistry)(nil)

func TestRegistryRoundTrip(t *testing.T) {
	ctx := context.Background()
	cfg := tinyConfig()
	cfg.Dir = t.TempDir()
	m := newTestModel(t, cfg)
	require.NoError(t, m.Initialize(ctx))

	var uploaded string
	reg := &mockRegistry{}
	reg.On("UploadModel", mock.Anything, "test-model", "1.0.0", mock.AnythingOfType("string")).
		Run(func(args mock.Arguments) { uploaded = args.String(3) }).
		Return("mem://test-model/1.0.0", nil)

	remote, err := m.SaveToRegistry(ctx, reg)
	require.NoError(t, err)
	assert.Equal(t, "mem://test-model/1.0.0", remote)

	reg.On("DownloadModel", mock.Anything, "test-model", ports.LatestVersion).Return(uploaded, nil)
	other := newTestModel(t, cfg)
	require.NoError(t, other.LoadFromRegistry(ctx, reg, ""))
	assert.Equal(t, m.ID(), other.ID())
	reg.AssertExpectations(t)
}

func publishedModelID(t *testing.T, root, name, version string) core.ModelID {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(root, name, version, "metadata.json"))
	require.NoError(t, err)
	var meta snapshot.Metadata
	require.NoError(t, json.Unmarshal(data, &meta))
	return meta.ModelID
}

func TestTrainAfterPublishNeverReplacesPublishedVersion(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	reg, err := registry.New(ctx, config.RegistryConfig{
		Backend:  config.RegistryFilesystem,
		Root:     root,
		CacheDir: t.TempDir(),
	}, nil)
	require.NoError(t, err)

	cfg := tinyConfig()
	cfg.Dir = t.TempDir()
	m := newTestModel(t, cfg)

	_, err = m.SaveToRegistry(ctx, reg)
	require.NoError(t, err)
	published := m.ID()
	require.Equal(t, "1.0.0", m.Version())

	_, err = m.Train(ctx, trainingSet(5)[:8], factor.TrainingOptions{Epochs: 1})
	require.NoError(t, err)
	assert.NotEqual(t, published, m.ID())
	assert.Equal(t, "1.0.1", m.Version())

	_, err = m.SaveToRegistry(ctx, reg)
	require.NoError(t, err)
	assert.Equal(t, published, publishedModelID(t, root, "test-model", "1.0.0"))
	assert.Equal(t, m.ID(), publishedModelID(t, root, "test-model", "1.0.1"))
}

func TestTrainAfterLoadBumpsVersion(t *testing.T) {
	ctx := context.Background()
	cfg := tinyConfig()
	m := newTestModel(t, cfg)
	path, err := m.Save(ctx, t.TempDir())
	require.NoError(t, err)

	other := newTestModel(t, cfg)
	require.NoError(t, other.Load(ctx, path))
	_, err = other.Train(ctx, trainingSet(6)[:8], factor.TrainingOptions{Epochs: 1})
	require.NoError(t, err)
	assert.Equal(t, "1.0.1", other.Version())
}

func TestRegistryRefusesDifferentModelUnderSameVersion(t *testing.T) {
	ctx := context.Background()
	reg, err := registry.New(ctx, config.RegistryConfig{
		Backend:  config.RegistryFilesystem,
		Root:     t.TempDir(),
		CacheDir: t.TempDir(),
	}, nil)
	require.NoError(t, err)

	cfg := tinyConfig()
	cfg.Dir = t.TempDir()
	_, err = newTestModel(t, cfg).SaveToRegistry(ctx, reg)
	require.NoError(t, err)

	_, err = newTestModel(t, cfg).SaveToRegistry(ctx, reg)
	assert.ErrorIs(t, err, core.ErrSnapshotExists)
}

type recordingObserver struct {
	mu     sync.Mutex
	events []factor.EpochProgress
}

func (o *recordingObserver) OnEpoch(p factor.EpochProgress) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, p)
}

func TestTrainingObserverSeesEveryEpoch(t *testing.T) {
	obs := &recordingObserver{}
	m, err := New(tinyConfig(),
		WithRNG(&testkit.RNGAdapter{}),
		WithEmbeddingProvider(testkit.HashEmbeddingProvider{}),
		WithTrainingObserver(obs),
	)
	require.NoError(t, err)

	record, err := m.Train(context.Background(), trainingSet(21), factor.TrainingOptions{Epochs: 3})
	require.NoError(t, err)

	require.Len(t, obs.events, record.EpochsRun)
	for i, ev := range obs.events {
		assert.Equal(t, i+1, ev.Epoch)
		assert.Equal(t, 3, ev.Epochs)
		assert.Greater(t, ev.TrainLoss, 0.0)
	}
	assert.True(t, obs.events[0].Improved)
}
