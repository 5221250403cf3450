package senses

import (
	"fmt"
	"math"

	"factorcorr/domain/core"
	"factorcorr/domain/factor"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// LinearRSquared fits y = a + bx by least squares and scores it against the
// total sum of squares around the mean of y
func LinearRSquared(x, y []float64) (float64, error) {
	if len(x) != len(y) {
		return 0, core.NewShapeError("paired stream", len(x), len(y))
	}
	alpha, beta := stat.LinearRegression(x, y, nil, false)
	if math.IsNaN(alpha) || math.IsNaN(beta) {
		return 0, fmt.Errorf("%w: linear fit", core.ErrNonFinite)
	}
	fitted := make([]float64, len(x))
	for i, v := range x {
		fitted[i] = alpha + beta*v
	}
	return factor.RSquared(y, fitted), nil
}

// QuadraticFit solves the 3x3 normal equations for y = a + bz + cz², where z is x standardised.
// Standardising leaves the fitted values unchanged and keeps the power sums well conditioned.
func QuadraticFit(x, y []float64) (coef [3]float64, mean, std float64, err error) {
	n := len(x)
	if n != len(y) {
		return coef, 0, 0, core.NewShapeError("paired stream", n, len(y))
	}
	if n < 3 {
		return coef, 0, 0, fmt.Errorf("%w: quadratic fit needs 3 points, got %d", core.ErrInsufficientData, n)
	}
	mean, std = stat.PopMeanStdDev(x, nil)
	if std == 0 || math.IsNaN(std) {
		return coef, mean, std, fmt.Errorf("%w: constant regressor", core.ErrSingularMatrix)
	}

	var s [5]float64
	var t [3]float64
	for i := range x {
		z := (x[i] - mean) / std
		p := 1.0
		for k := 0; k < 5; k++ {
			s[k] += p
			if k < 3 {
				t[k] += p * y[i]
			}
			p *= z
		}
	}

	a := mat.NewDense(3, 3, []float64{
		s[0], s[1], s[2],
		s[1], s[2], s[3],
		s[2], s[3], s[4],
	})
	b := mat.NewVecDense(3, t[:])
	var sol mat.VecDense
	if err := sol.SolveVec(a, b); err != nil {
		return coef, mean, std, fmt.Errorf("%w: %v", core.ErrSingularMatrix, err)
	}
	for k := range coef {
		coef[k] = sol.AtVec(k)
		if math.IsNaN(coef[k]) || math.IsInf(coef[k], 0) {
			return coef, mean, std, fmt.Errorf("%w: quadratic coefficient", core.ErrNonFinite)
		}
	}
	return coef, mean, std, nil
}

// QuadraticRSquared is the R² of the quadratic fit
func QuadraticRSquared(x, y []float64) (float64, error) {
	coef, mean, std, err := QuadraticFit(x, y)
	if err != nil {
		return 0, err
	}
	fitted := make([]float64, len(x))
	for i, v := range x {
		z := (v - mean) / std
		fitted[i] = coef[0] + coef[1]*z + coef[2]*z*z
	}
	return factor.RSquared(y, fitted), nil
}
