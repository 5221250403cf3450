package senses

import (
	"math"
	"time"

	"factorcorr/domain/factor"
	"factorcorr/internal"
	"factorcorr/internal/metrics"
)

const (
	// MinNonLinearityPoints is the smallest series the estimator scores; shorter input scores 0
	MinNonLinearityPoints = 10

	// scores below this are floating-point residue of an exactly linear relation
	scoreNoiseFloor = 1e-9
)

// NonLinearityEstimator cross-checks the learned correlation against classical
// statistics computed on the raw, unencoded series
type NonLinearityEstimator struct {
	logger *internal.Logger
	now    func() time.Time
}

// NewNonLinearityEstimator creates an estimator measuring recency against the wall clock
func NewNonLinearityEstimator(logger *internal.Logger) *NonLinearityEstimator {
	if logger == nil {
		logger = internal.NopLogger()
	}
	return &NonLinearityEstimator{
		logger: logger.WithField("component", "nonlinearity"),
		now:    time.Now,
	}
}

// WithClock returns a copy that measures point age against now
func (e *NonLinearityEstimator) WithClock(now func() time.Time) *NonLinearityEstimator {
	cp := *e
	cp.now = now
	return &cp
}

// Estimate scores how far the relation between the two value streams is from linear, in [0,1]:
// min(1, (max(0, quadraticR² - linearR²)*5 + |pearson - spearman|*3) / 2).
// Numerical failures are logged and score 0.
func (e *NonLinearityEstimator) Estimate(series factor.TimeSeriesSample) float64 {
	if len(series) < MinNonLinearityPoints {
		return 0
	}
	x, y := series.Values()
	score, _, _ := e.estimate(x, y)
	return score
}

// Analyze computes the non-linearity score together with recency, effective sample size
// and both correlation coefficients
func (e *NonLinearityEstimator) Analyze(series factor.TimeSeriesSample) factor.SeriesStats {
	stats := factor.SeriesStats{
		Recency:             RecencyScore(series, e.now()),
		EffectiveSampleSize: EffectiveSampleSize(series),
	}
	if len(series) < MinNonLinearityPoints {
		return stats
	}
	x, y := series.Values()
	stats.NonLinearity, stats.Pearson, stats.Spearman = e.estimate(x, y)
	return stats
}

func (e *NonLinearityEstimator) estimate(x, y []float64) (score, pearson, spearman float64) {
	pearson, err := Pearson(x, y)
	if err != nil {
		return e.fallback("pearson", err), 0, 0
	}
	spearman, err = Spearman(x, y)
	if err != nil {
		return e.fallback("spearman", err), pearson, 0
	}
	linear, err := LinearRSquared(x, y)
	if err != nil {
		return e.fallback("linear_fit", err), pearson, spearman
	}
	quadratic, err := QuadraticRSquared(x, y)
	if err != nil {
		return e.fallback("quadratic_fit", err), pearson, spearman
	}

	gain := math.Max(0, quadratic-linear)
	score = math.Min(1, (gain*5+math.Abs(pearson-spearman)*3)/2)
	if score < scoreNoiseFloor || math.IsNaN(score) {
		score = 0
	}
	return score, pearson, spearman
}

func (e *NonLinearityEstimator) fallback(reason string, err error) float64 {
	metrics.NonLinearityFallbacks.WithLabelValues(reason).Inc()
	e.logger.WithError(err).Warn("non-linearity %s failed, using 0", reason)
	return 0
}
