package factor

import (
	"math"
	"strconv"
	"time"

	"factorcorr/domain/core"
)

// CorrelationMatrix is a square correlation matrix over an ordered factor list.
// It is produced by the external correlation engine and treated as read-only.
type CorrelationMatrix struct {
	ID         core.MatrixID `json:"id,omitempty" db:"id"`
	Sport      string        `json:"sport,omitempty" db:"sport"`
	League     string        `json:"league,omitempty" db:"league"`
	Factors    []string      `json:"factors"`
	Values     [][]float64   `json:"values"`
	ComputedAt time.Time     `json:"computedAt,omitempty" db:"computed_at"`
}

// Size returns the number of rows
func (m CorrelationMatrix) Size() int { return len(m.Values) }

// Validate checks the matrix is square and, when factors are named, that they match
func (m CorrelationMatrix) Validate() error {
	n := len(m.Values)
	if n == 0 {
		return core.ErrInsufficientData
	}
	for i, row := range m.Values {
		if len(row) != n {
			return core.NewShapeError("correlation matrix row "+strconv.Itoa(i), n, len(row))
		}
	}
	if len(m.Factors) > 0 && len(m.Factors) != n {
		return core.NewShapeError("factor list", n, len(m.Factors))
	}
	return nil
}

// IndexOf returns the position of a factor, or -1
func (m CorrelationMatrix) IndexOf(name string) int {
	for i, f := range m.Factors {
		if f == name {
			return i
		}
	}
	return -1
}

// At returns entry (i, j)
func (m CorrelationMatrix) At(i, j int) float64 { return m.Values[i][j] }

// MaxAsymmetry returns the largest |m[i][j]-m[j][i]|; upstream matrices are only approximately symmetric
func (m CorrelationMatrix) MaxAsymmetry() float64 {
	worst := 0.0
	for i := range m.Values {
		for j := i + 1; j < len(m.Values); j++ {
			worst = math.Max(worst, math.Abs(m.Values[i][j]-m.Values[j][i]))
		}
	}
	return worst
}
