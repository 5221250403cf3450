package counterfactual

import (
	"fmt"
	"math"

	"factorcorr/domain/core"
	"factorcorr/domain/factor"
	"factorcorr/internal"
	"factorcorr/internal/metrics"

	"gonum.org/v1/gonum/mat"
)

// DampingFactor attenuates propagated effects so correlated impact is not overstated
const DampingFactor = 0.7

// Propagator distributes a hypothetical probability change across correlated factors.
// It holds no state and is safe for concurrent use.
type Propagator struct {
	logger  *internal.Logger
	damping float64
}

// NewPropagator creates a propagator with the standard damping
func NewPropagator(logger *internal.Logger) *Propagator {
	if logger == nil {
		logger = internal.NopLogger()
	}
	return &Propagator{logger: logger.WithField("component", "counterfactual"), damping: DampingFactor}
}

// Propagate never fails: on any error the base probabilities pass through with only
// the changed index updated, and the result carries the error text
func (p *Propagator) Propagate(req factor.CounterfactualRequest) factor.CounterfactualResult {
	n := len(req.BaseProbabilities)
	result := factor.CounterfactualResult{FactorIndices: indices(n)}

	probs, err := p.propagateSafely(req.CorrelationMatrix, req.BaseProbabilities, req.ChangeIndex, req.NewProbability, req.Factors)
	if err == nil {
		result.PropagatedProbabilities = probs
		metrics.CounterfactualRequests.WithLabelValues("ok").Inc()
		return result
	}

	p.logger.WithError(err).Warn("counterfactual propagation degraded to pass-through")
	metrics.CounterfactualRequests.WithLabelValues("degraded").Inc()
	result.PropagatedProbabilities = passThrough(req.BaseProbabilities, req.ChangeIndex, req.NewProbability)
	result.Error = err.Error()
	return result
}

func (p *Propagator) propagateSafely(matrix [][]float64, base []float64, idx int, newProb float64, factors []string) (out []float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("propagation panicked: %v", r)
		}
	}()
	return p.propagate(matrix, base, idx, newProb, factors)
}

// propagate computes clamp(base + damping * M[:,idx] * delta) with the changed index set exactly
func (p *Propagator) propagate(matrix [][]float64, base []float64, idx int, newProb float64, factors []string) ([]float64, error) {
	n := len(base)
	if n == 0 {
		return nil, fmt.Errorf("%w: no base probabilities", core.ErrInsufficientData)
	}
	if idx < 0 || idx >= n {
		return nil, core.NewIndexError("change", idx, n)
	}
	if len(factors) > 0 && len(factors) != n {
		return nil, core.NewShapeError("factor list", n, len(factors))
	}
	// out-of-range targets still propagate; the output clamp bounds them
	if math.IsNaN(newProb) || math.IsInf(newProb, 0) {
		return nil, fmt.Errorf("%w: new probability %v", core.ErrInvalidProbability, newProb)
	}
	m, err := toDense(matrix, n)
	if err != nil {
		return nil, err
	}

	shock := mat.NewVecDense(n, nil)
	shock.SetVec(idx, newProb-base[idx])

	var effect mat.VecDense
	effect.MulVec(m, shock)
	effect.ScaleVec(p.damping, &effect)

	var raw mat.VecDense
	raw.AddVec(mat.NewVecDense(n, append([]float64(nil), base...)), &effect)

	out := make([]float64, n)
	for i := range out {
		v := raw.AtVec(i)
		if i == idx {
			v = newProb
		}
		if math.IsNaN(v) {
			return nil, fmt.Errorf("%w: propagated probability %d", core.ErrNonFinite, i)
		}
		out[i] = clamp01(v)
	}
	return out, nil
}

func toDense(matrix [][]float64, n int) (*mat.Dense, error) {
	if len(matrix) != n {
		return nil, core.NewShapeError("correlation matrix rows", n, len(matrix))
	}
	data := make([]float64, 0, n*n)
	for i, row := range matrix {
		if len(row) != n {
			return nil, core.NewShapeError(fmt.Sprintf("correlation matrix row %d", i), n, len(row))
		}
		for _, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("%w: correlation matrix row %d", core.ErrNonFinite, i)
			}
		}
		data = append(data, row...)
	}
	return mat.NewDense(n, n, data), nil
}

func passThrough(base []float64, idx int, newProb float64) []float64 {
	out := append([]float64(nil), base...)
	if idx >= 0 && idx < len(out) && !math.IsNaN(newProb) {
		out[idx] = clamp01(newProb)
	}
	return out
}

func indices(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
