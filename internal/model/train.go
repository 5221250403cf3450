package model

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"factorcorr/domain/core"
	"factorcorr/domain/factor"
	"factorcorr/domain/snapshot"
	apperrors "factorcorr/internal/errors"

	"github.com/coreos/go-semver/semver"
	"gonum.org/v1/gonum/mat"
)

// prepared is a training example after preprocessing and embedding resolution
type prepared struct {
	seq  []Step
	embA []float64
	embB []float64
	y    target
}

// runOptions are the resolved settings of one Train call
type runOptions struct {
	batchSize       int
	epochs          int
	validationSplit float64
	patience        int
	earlyStopping   bool
	learningRate    float64
}

func (m *Model) resolveOptions(opts factor.TrainingOptions) runOptions {
	d := m.Config()
	o := runOptions{
		batchSize:       d.Training.BatchSize,
		epochs:          d.Training.Epochs,
		validationSplit: d.Training.ValidationSplit,
		patience:        d.Training.PatienceEpochs,
		earlyStopping:   d.Training.EarlyStopping,
		learningRate:    d.LearningRate,
	}
	if opts.BatchSize > 0 {
		o.batchSize = opts.BatchSize
	}
	if opts.Epochs > 0 {
		o.epochs = opts.Epochs
	}
	if opts.ValidationSplit != nil {
		o.validationSplit = math.Max(0, math.Min(0.9, *opts.ValidationSplit))
	}
	if opts.PatienceEpochs > 0 {
		o.patience = opts.PatienceEpochs
	}
	if opts.EarlyStopping != nil {
		o.earlyStopping = *opts.EarlyStopping
	}
	if opts.LearningRate > 0 {
		o.learningRate = opts.LearningRate
	}
	if o.batchSize <= 0 {
		o.batchSize = 32
	}
	if o.epochs <= 0 {
		o.epochs = 1
	}
	if o.learningRate <= 0 {
		o.learningRate = 0.001
	}
	return o
}

// prepareExamples skips examples that cannot reach the encoder instead of failing the batch
func (m *Model) prepareExamples(cfg Config, examples []factor.TrainingExample) ([]prepared, int) {
	pre := NewPreprocessor(cfg.Normalization, cfg.MaxSequenceLength)
	out := make([]prepared, 0, len(examples))
	skipped := 0
	for i, ex := range examples {
		seq, err := pre.Prepare(ex.TimeSeries.Sorted())
		if err == nil {
			var embA, embB []float64
			if embA, err = m.embeddingFor(ex.FactorA, ex.EmbeddingA, cfg.EmbeddingDimension); err == nil {
				embB, err = m.embeddingFor(ex.FactorB, ex.EmbeddingB, cfg.EmbeddingDimension)
			}
			if err == nil {
				out = append(out, prepared{seq: seq, embA: embA, embB: embB, y: targetFor(ex)})
				continue
			}
		}
		skipped++
		m.logger.Debug("skipping training example %d (%s/%s): %v", i, ex.FactorA, ex.FactorB, err)
	}
	if skipped > 0 {
		m.logger.Warn("skipped %d of %d training examples", skipped, len(examples))
	}
	return out, skipped
}

// Train fits a copy of the current weights and publishes it on success. Predictions
// keep using the previous weights until then. A failed run leaves the model in the
// error state with its prior weights.
func (m *Model) Train(ctx context.Context, examples []factor.TrainingExample, opts factor.TrainingOptions) (snapshot.TrainingRecord, error) {
	if !m.writer.TryLock() {
		return snapshot.TrainingRecord{}, apperrors.ModelStateError("cannot train", core.ErrTrainingInProgress)
	}
	defer m.writer.Unlock()

	if err := m.ensureInitialized(ctx); err != nil {
		return snapshot.TrainingRecord{}, err
	}

	cfg := m.Config()
	data, skipped := m.prepareExamples(cfg, examples)
	if len(data) == 0 {
		return snapshot.TrainingRecord{}, fmt.Errorf("%w: %d examples given, all skipped", core.ErrNoTrainingData, len(examples))
	}
	m.mu.Lock()
	work := m.net.clone()
	prior := m.state
	m.state = StateTraining
	m.mu.Unlock()

	o := m.resolveOptions(opts)
	m.logger.Info("training on %d examples (batch %d, epochs %d, split %.2f)", len(data), o.batchSize, o.epochs, o.validationSplit)

	record, err := m.fitSafely(ctx, work, data, o)
	if err != nil {
		m.mu.Lock()
		m.state = StateError
		m.lastErr = err
		m.mu.Unlock()
		m.logger.WithError(err).Error("training failed, keeping previous weights (state was %s)", prior)
		return snapshot.TrainingRecord{}, err
	}
	record.Examples = len(data)
	record.Skipped = skipped

	m.mu.Lock()
	// a new id under a version that may already be published needs a new version
	if len(m.history) > 0 || m.saved {
		m.version = bumpPatch(m.version)
	}
	m.net = work
	m.id = core.NewModelID()
	m.saved = false
	m.history = append(m.history, record)
	m.state = StateReady
	m.lastErr = nil
	m.mu.Unlock()

	m.logger.Info("training finished after %d epochs: loss %.4f val_loss %.4f mae %.4f", record.EpochsRun, record.TrainLoss, record.ValLoss, record.CorrelationMAE)

	if cfg.Dir != "" {
		if _, err := m.saveTo(ctx, cfg.Dir); err != nil {
			return record, fmt.Errorf("model trained but not persisted: %w", err)
		}
	}
	return record, nil
}

func bumpPatch(version string) string {
	v, err := semver.NewVersion(version)
	if err != nil {
		return snapshot.DefaultModelVersion
	}
	v.BumpPatch()
	return v.String()
}

// fitSafely converts a panic inside the numeric core into an error
func (m *Model) fitSafely(ctx context.Context, net *network, data []prepared, o runOptions) (rec snapshot.TrainingRecord, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("training panicked: %v", r)
		}
	}()
	return m.fit(ctx, net, data, o)
}

// splitValidation holds out the trailing fraction of the data
func splitValidation(data []prepared, split float64) (train, val []prepared) {
	if split <= 0 || len(data) < 2 {
		return data, nil
	}
	cut := int(float64(len(data)) * (1 - split))
	if cut < 1 {
		cut = 1
	}
	if cut >= len(data) {
		return data, nil
	}
	return data[:cut], data[cut:]
}

func (m *Model) fit(ctx context.Context, net *network, data []prepared, o runOptions) (snapshot.TrainingRecord, error) {
	train, val := splitValidation(data, o.validationSplit)
	rng := m.rng.SeededStream(fmt.Sprintf("train:%d", len(m.History())), net.cfg.Seed)
	opt := newAdam(o.learningRate)

	record := snapshot.TrainingRecord{Timestamp: time.Now().UTC()}
	best := math.Inf(1)
	var bestWeights map[string]*mat.Dense
	wait := 0

	order := make([]int, len(train))
	for i := range order {
		order[i] = i
	}

	for epoch := 1; epoch <= o.epochs; epoch++ {
		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

		epochLoss := 0.0
		for start := 0; start < len(order); start += o.batchSize {
			if err := ctx.Err(); err != nil {
				return record, err
			}
			end := min(start+o.batchSize, len(order))
			epochLoss += trainStep(net, opt, rng, train, order[start:end])
		}
		epochLoss /= float64(len(train))
		if math.IsNaN(epochLoss) || math.IsInf(epochLoss, 0) {
			return record, fmt.Errorf("%w: training loss diverged at epoch %d", core.ErrNonFinite, epoch)
		}

		valLoss := math.NaN()
		monitor := epochLoss
		if len(val) > 0 {
			valLoss = evaluatePrepared(net, val).Loss
			monitor = valLoss
		}
		record.EpochsRun = epoch
		m.logger.Debug("epoch %d/%d loss %.5f val_loss %.5f", epoch, o.epochs, epochLoss, valLoss)
		if m.observer != nil {
			m.observer.OnEpoch(factor.EpochProgress{
				Epoch:     epoch,
				Epochs:    o.epochs,
				TrainLoss: epochLoss,
				ValLoss:   nanToZero(valLoss),
				Improved:  monitor < best,
			})
		}

		if monitor < best {
			best = monitor
			wait = 0
			record.TrainLoss = epochLoss
			record.ValLoss = nanToZero(valLoss)
			if o.earlyStopping {
				bestWeights = net.params.values()
			}
			continue
		}
		wait++
		if !o.earlyStopping {
			record.TrainLoss = epochLoss
			record.ValLoss = nanToZero(valLoss)
		}
		if o.earlyStopping && wait >= o.patience {
			record.StoppedEarly = true
			m.logger.Info("early stopping at epoch %d, best monitored loss %.5f", epoch, best)
			break
		}
	}

	if bestWeights != nil {
		net.params.restore(bestWeights)
	}

	report := val
	if len(report) == 0 {
		report = train
	}
	eval := evaluatePrepared(net, report)
	record.CorrelationMAE = eval.CorrelationMAE
	record.ConfidenceAccuracy = eval.ConfidenceAccuracy
	return record, nil
}

// trainStep runs one mini-batch of forward/backward passes and one Adam update.
// It returns the summed sample loss.
func trainStep(net *network, opt *adam, rng *rand.Rand, data []prepared, batch []int) float64 {
	ar := acquireArena()
	defer ar.release()

	net.params.zeroGrad()
	scale := 1 / float64(len(batch))
	p := pass{ar: ar, train: true, rng: rng}
	total := 0.0
	for _, idx := range batch {
		ex := data[idx]
		c := net.forward(p, toDense(ar, ex.seq), ex.embA, ex.embB)
		total += sampleLoss(c.heads, ex.y)
		net.backward(ar, c, lossGrads(c.heads, ex.y, scale))
	}
	opt.apply(net.params)
	return total
}

func nanToZero(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return v
}
