package model

import (
	"fmt"
	"math"

	"factorcorr/domain/core"
	"factorcorr/domain/factor"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/mat"
)

// Channels per time step: rescaled time, normalised value A, normalised value B
const Channels = 3

// Normalization selects how value streams are rescaled
type Normalization string

const (
	NormalizeZScore Normalization = "zscore"
	NormalizeMinMax Normalization = "minmax"
)

// ParseNormalization maps a config string to a mode, defaulting to z-score
func ParseNormalization(s string) Normalization {
	if Normalization(s) == NormalizeMinMax {
		return NormalizeMinMax
	}
	return NormalizeZScore
}

// Step is one normalised time step
type Step [Channels]float64

// Preprocessor turns raw paired series into fixed-length numeric sequences
type Preprocessor struct {
	mode         Normalization
	targetLength int
}

// NewPreprocessor creates a preprocessor producing sequences of targetLength steps
func NewPreprocessor(mode Normalization, targetLength int) *Preprocessor {
	return &Preprocessor{mode: mode, targetLength: targetLength}
}

// TargetLength returns the fixed output length
func (p *Preprocessor) TargetLength() int { return p.targetLength }

// Normalize rescales time into [0,1] and both value streams by the configured mode.
// A zero spread (std or range) is replaced by 1.
func (p *Preprocessor) Normalize(series factor.TimeSeriesSample) []Step {
	n := len(series)
	out := make([]Step, n)
	if n == 0 {
		return out
	}

	a, b := series.Values()
	times := make([]float64, n)
	for i, pt := range series {
		times[i] = float64(pt.Date.UnixMilli())
	}

	tMin, _ := stats.Min(times)
	tMax, _ := stats.Max(times)
	span := tMax - tMin

	normA := p.normalizeStream(a)
	normB := p.normalizeStream(b)

	for i := range series {
		t := 0.5
		if span > 0 {
			t = (times[i] - tMin) / span
		}
		out[i] = Step{t, normA[i], normB[i]}
	}
	return out
}

func (p *Preprocessor) normalizeStream(values []float64) []float64 {
	out := make([]float64, len(values))
	switch p.mode {
	case NormalizeMinMax:
		lo, _ := stats.Min(values)
		hi, _ := stats.Max(values)
		spread := spreadOrOne(hi - lo)
		for i, v := range values {
			out[i] = (v - lo) / spread
		}
	default:
		mean, _ := stats.Mean(values)
		std, _ := stats.StandardDeviationPopulation(values)
		spread := spreadOrOne(std)
		for i, v := range values {
			out[i] = (v - mean) / spread
		}
	}
	return out
}

func spreadOrOne(v float64) float64 {
	if v == 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 1
	}
	return v
}

// ResampleIndices returns the deterministic decimation indices floor(i*length/target), clamped
func ResampleIndices(length, target int) []int {
	idx := make([]int, target)
	for i := range idx {
		j := i * length / target
		if j > length-1 {
			j = length - 1
		}
		idx[i] = j
	}
	return idx
}

// PadOrTruncate fits a sequence to exactly target steps. Longer sequences are
// decimated; shorter ones get zero steps prepended so real data sits at the tail.
func PadOrTruncate(seq []Step, target int) []Step {
	switch {
	case len(seq) > target:
		out := make([]Step, target)
		for i, j := range ResampleIndices(len(seq), target) {
			out[i] = seq[j]
		}
		return out
	case len(seq) < target:
		out := make([]Step, target)
		copy(out[target-len(seq):], seq)
		return out
	default:
		out := make([]Step, target)
		copy(out, seq)
		return out
	}
}

// Prepare normalises and fits a usable series to the target length
func (p *Preprocessor) Prepare(series factor.TimeSeriesSample) ([]Step, error) {
	if !series.Usable() {
		return nil, fmt.Errorf("%w: series has %d points, need at least %d", core.ErrInsufficientData, len(series), factor.MinSeriesPoints)
	}
	return PadOrTruncate(p.Normalize(series), p.targetLength), nil
}

// toDense copies a prepared sequence into a T x 3 matrix from the arena
func toDense(ar *arena, seq []Step) *mat.Dense {
	m := ar.dense(len(seq), Channels)
	for i, s := range seq {
		copy(m.RawRowView(i), s[:])
	}
	return m
}
