package model

import (
	"testing"
	"time"

	"factorcorr/domain/core"
	"factorcorr/domain/factor"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dailySeries(values ...[2]float64) factor.TimeSeriesSample {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	out := make(factor.TimeSeriesSample, len(values))
	for i, v := range values {
		out[i] = factor.Point{Date: start.AddDate(0, 0, i), ValueA: v[0], ValueB: v[1]}
	}
	return out
}

func TestPadOrTruncateLength(t *testing.T) {
	for _, n := range []int{1, 3, 10, 64, 65, 400} {
		seq := make([]Step, n)
		for i := range seq {
			seq[i] = Step{float64(i), 1, 1}
		}
		assert.Len(t, PadOrTruncate(seq, 64), 64, "input length %d", n)
	}
}

func TestResampleIndicesNonDecreasing(t *testing.T) {
	idx := ResampleIndices(1000, 365)
	require.Len(t, idx, 365)
	assert.Equal(t, 0, idx[0])
	for i := 1; i < len(idx); i++ {
		assert.GreaterOrEqual(t, idx[i], idx[i-1])
		assert.Less(t, idx[i], 1000)
	}
}

func TestPadPrependsZeroSteps(t *testing.T) {
	seq := []Step{{0, 1, 2}, {0.5, 3, 4}, {1, 5, 6}}
	out := PadOrTruncate(seq, 5)

	assert.Equal(t, Step{}, out[0])
	assert.Equal(t, Step{}, out[1])
	assert.Equal(t, seq, out[2:])
}

func TestNormalizeZScore(t *testing.T) {
	p := NewPreprocessor(NormalizeZScore, 8)
	out := p.Normalize(dailySeries([2]float64{1, 10}, [2]float64{2, 20}, [2]float64{3, 30}))

	assert.InDelta(t, 0, out[0][0], 1e-12)
	assert.InDelta(t, 0.5, out[1][0], 1e-12)
	assert.InDelta(t, 1, out[2][0], 1e-12)

	sumA, sumB := 0.0, 0.0
	for _, s := range out {
		sumA += s[1]
		sumB += s[2]
	}
	assert.InDelta(t, 0, sumA, 1e-12)
	assert.InDelta(t, 0, sumB, 1e-12)
	assert.InDelta(t, out[2][1], out[2][2], 1e-12)
}

func TestNormalizeMinMax(t *testing.T) {
	p := NewPreprocessor(NormalizeMinMax, 8)
	out := p.Normalize(dailySeries([2]float64{2, 5}, [2]float64{4, 5}, [2]float64{6, 5}))

	assert.InDelta(t, 0, out[0][1], 1e-12)
	assert.InDelta(t, 0.5, out[1][1], 1e-12)
	assert.InDelta(t, 1, out[2][1], 1e-12)
	// constant stream: range floors to 1, so values sit at zero
	for _, s := range out {
		assert.Equal(t, 0.0, s[2])
	}
}

func TestNormalizeZeroTimeSpan(t *testing.T) {
	same := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	series := factor.TimeSeriesSample{
		{Date: same, ValueA: 1, ValueB: 1},
		{Date: same, ValueA: 2, ValueB: 2},
		{Date: same, ValueA: 3, ValueB: 3},
	}
	for _, s := range NewPreprocessor(NormalizeZScore, 4).Normalize(series) {
		assert.Equal(t, 0.5, s[0])
	}
}

func TestPrepareRejectsShortSeries(t *testing.T) {
	p := NewPreprocessor(NormalizeZScore, 16)
	_, err := p.Prepare(dailySeries([2]float64{1, 1}, [2]float64{2, 2}))
	assert.ErrorIs(t, err, core.ErrInsufficientData)

	seq, err := p.Prepare(dailySeries([2]float64{1, 1}, [2]float64{2, 2}, [2]float64{3, 3}))
	require.NoError(t, err)
	assert.Len(t, seq, 16)
}
