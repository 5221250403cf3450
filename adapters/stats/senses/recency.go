package senses

import (
	"math"
	"time"

	"factorcorr/domain/factor"
)

// RecencyHalfLife is the age at which a point's decay weight halves
const RecencyHalfLife = 30 * 24 * time.Hour

// recencyWeights are exponential decay weights relative to the newest point.
// Both the recent-weight fraction and the Kish size are invariant to that scale.
func recencyWeights(series factor.TimeSeriesSample) ([]float64, bool) {
	if len(series) == 0 {
		return nil, false
	}
	newest := series[0].Date
	for _, p := range series {
		if p.Date.IsZero() {
			return nil, false
		}
		if p.Date.After(newest) {
			newest = p.Date
		}
	}
	w := make([]float64, len(series))
	for i, p := range series {
		age := newest.Sub(p.Date)
		w[i] = math.Pow(0.5, float64(age)/float64(RecencyHalfLife))
	}
	return w, true
}

// RecencyScore is the share of total decay weight carried by points newer than one
// half-life at now; empty or undated input scores 0.5
func RecencyScore(series factor.TimeSeriesSample, now time.Time) float64 {
	w, ok := recencyWeights(series)
	if !ok {
		return 0.5
	}
	total, recent := 0.0, 0.0
	for i, p := range series {
		total += w[i]
		if now.Sub(p.Date) < RecencyHalfLife {
			recent += w[i]
		}
	}
	if total == 0 || math.IsNaN(total) || math.IsInf(total, 0) {
		return 0.5
	}
	return recent / total
}

// EffectiveSampleSize is the Kish size (Σw)²/Σw² of the recency weights
func EffectiveSampleSize(series factor.TimeSeriesSample) float64 {
	w, ok := recencyWeights(series)
	if !ok {
		return float64(len(series))
	}
	sum, sumSq := 0.0, 0.0
	for _, v := range w {
		sum += v
		sumSq += v * v
	}
	if sumSq == 0 {
		return 0
	}
	return sum * sum / sumSq
}
