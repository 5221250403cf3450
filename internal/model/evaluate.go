package model

import (
	"context"
	"fmt"
	"math"

	"factorcorr/domain/core"
	"factorcorr/domain/factor"
)

// Evaluate runs inference over held-out examples and reports loss, correlation MAE,
// confidence accuracy and R² of predicted against labelled correlation
func (m *Model) Evaluate(ctx context.Context, examples []factor.TrainingExample) (factor.EvaluationReport, error) {
	if err := m.ensureInitialized(ctx); err != nil {
		return factor.EvaluationReport{}, err
	}
	net, _ := m.current()
	data, skipped := m.prepareExamples(net.cfg, examples)
	if len(data) == 0 {
		return factor.EvaluationReport{Skipped: skipped}, fmt.Errorf("%w: nothing to evaluate", core.ErrNoTrainingData)
	}
	if err := ctx.Err(); err != nil {
		return factor.EvaluationReport{}, err
	}
	report := evaluatePrepared(net, data)
	report.Skipped = skipped
	return report, nil
}

// evaluatePrepared is the shared metric pass used for validation during training.
// Confidence accuracy thresholds both prediction and label at 0.5.
func evaluatePrepared(net *network, data []prepared) factor.EvaluationReport {
	actual := make([]float64, len(data))
	predicted := make([]float64, len(data))
	loss, mae, hits := 0.0, 0.0, 0

	for i, ex := range data {
		out := infer(net, ex.seq, ex.embA, ex.embB)
		loss += sampleLoss(out, ex.y)
		mae += math.Abs(out.Correlation - ex.y.corr)
		if (out.Confidence > 0.5) == (ex.y.conf > 0.5) {
			hits++
		}
		actual[i] = ex.y.corr
		predicted[i] = out.Correlation
	}
	n := float64(len(data))
	return factor.EvaluationReport{
		Examples:           len(data),
		Loss:               loss / n,
		CorrelationMAE:     mae / n,
		ConfidenceAccuracy: float64(hits) / n,
		R2:                 factor.RSquared(actual, predicted),
	}
}
