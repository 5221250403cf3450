package temporal

import (
	"fmt"
	"math"

	"factorcorr/domain/factor"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// weakCorrelation is the |r| below which no direction is reported
const weakCorrelation = 0.1

// Scanner exposes LeadLag as a ports.LeadLagScanner
type Scanner struct{}

// LeadLag implements ports.LeadLagScanner
func (Scanner) LeadLag(series factor.TimeSeriesSample, maxLag int) (factor.LeadLag, error) {
	return LeadLag(series, maxLag)
}

// LeadLag scans lags in [-maxLag, maxLag] for the strongest Pearson correlation.
// maxLag <= 0 picks a quarter of the series, capped at 20 and below half the length.
func LeadLag(series factor.TimeSeriesSample, maxLag int) (factor.LeadLag, error) {
	a, b := series.Sorted().Values()
	n := len(a)
	if n < 10 {
		return factor.LeadLag{}, fmt.Errorf("insufficient data points: %d (minimum 10 required)", n)
	}

	if maxLag <= 0 {
		maxLag = n / 4
	}
	maxLag = min(maxLag, 20, n/2-1)

	res := factor.LeadLag{MaxLag: maxLag, ByLag: make(map[int]float64, 2*maxLag+1)}
	for lag := -maxLag; lag <= maxLag; lag++ {
		r := laggedCorrelation(a, b, lag)
		res.ByLag[lag] = r
		// larger |r| wins; ties go to the lag closest to zero
		if math.Abs(r) > math.Abs(res.Correlation) ||
			(math.Abs(r) == math.Abs(res.Correlation) && abs(lag) < abs(res.BestLag)) {
			res.Correlation = r
			res.BestLag = lag
		}
	}

	res.EffectiveSamples = n - abs(res.BestLag)
	res.PValue = significance(res.Correlation, res.EffectiveSamples)
	res.Direction = direction(res.BestLag, res.Correlation)
	return res, nil
}

func laggedCorrelation(a, b []float64, lag int) float64 {
	var x, y []float64
	if lag >= 0 {
		x, y = a[:len(a)-lag], b[lag:]
	} else {
		x, y = a[-lag:], b[:len(b)+lag]
	}
	if len(x) < 3 {
		return 0
	}
	r := stat.Correlation(x, y, nil)
	if math.IsNaN(r) {
		return 0
	}
	return r
}

// significance is the two-sided p-value of r under Fisher's z-transform
func significance(r float64, n int) float64 {
	if n <= 3 {
		return 1
	}
	r = math.Max(-0.999999, math.Min(0.999999, r))
	z := math.Atanh(r) * math.Sqrt(float64(n-3))
	return 2 * (1 - distuv.UnitNormal.CDF(math.Abs(z)))
}

func direction(lag int, r float64) factor.LeadDirection {
	switch {
	case math.Abs(r) < weakCorrelation:
		return factor.DirectionNone
	case lag > 0:
		return factor.DirectionALeads
	case lag < 0:
		return factor.DirectionBLeads
	default:
		return factor.DirectionSynchronous
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
