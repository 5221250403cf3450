package temporal

import (
	"math"
	"testing"
	"time"

	"factorcorr/domain/factor"
	"factorcorr/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day0 = time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC) // a Monday

func obs(dayOffset int, v float64) factor.Observation {
	return factor.Observation{Date: day0.AddDate(0, 0, dayOffset), Value: v}
}

// ============================================================================
// TEST: Align
// ============================================================================

func TestAlign_ForwardFillsGaps(t *testing.T) {
	a := []factor.Observation{obs(0, 10), obs(2, 20), obs(3, 15)}
	b := []factor.Observation{obs(0, 100), obs(1, 150), obs(3, 200)}

	series, err := Align(a, b, DefaultConfig())
	require.NoError(t, err)
	require.Len(t, series, 4)

	assert.Equal(t, []float64{10, 10, 20, 15}, valuesA(series))
	assert.Equal(t, []float64{100, 150, 150, 200}, valuesB(series))
	assert.True(t, series[1].Date.Equal(day0.AddDate(0, 0, 1)))
}

func TestAlign_UsesOverlapOnly(t *testing.T) {
	a := []factor.Observation{obs(0, 1), obs(1, 2), obs(2, 3), obs(3, 4), obs(4, 5)}
	b := []factor.Observation{obs(2, 30), obs(3, 40), obs(4, 50), obs(5, 60)}

	series, err := Align(a, b, DefaultConfig())
	require.NoError(t, err)
	require.Len(t, series, 3)
	assert.Equal(t, []float64{3, 4, 5}, valuesA(series))
	assert.Equal(t, []float64{30, 40, 50}, valuesB(series))
}

func TestAlign_ForwardFillSeedsFromBeforeOverlap(t *testing.T) {
	a := []factor.Observation{obs(0, 7), obs(3, 9), obs(4, 11)}
	b := []factor.Observation{obs(2, 1), obs(3, 2), obs(4, 3)}

	cfg := DefaultConfig()
	cfg.MaxGapRatio = 0.5
	series, err := Align(a, b, cfg)
	require.NoError(t, err)
	require.Len(t, series, 3)
	assert.Equal(t, 7.0, series[0].ValueA)
}

func TestAlign_AggregatesWithinBucket(t *testing.T) {
	a := []factor.Observation{
		{Date: day0.Add(1 * time.Hour), Value: 5},
		{Date: day0.Add(2 * time.Hour), Value: 10},
		{Date: day0.Add(3 * time.Hour), Value: 15},
		obs(1, 1), obs(2, 2),
	}
	b := []factor.Observation{obs(0, 1), obs(1, 2), obs(2, 3)}

	cases := map[Aggregation]float64{AggMean: 10, AggSum: 30, AggLast: 15, AggMax: 15, AggMin: 5}
	for agg, want := range cases {
		cfg := DefaultConfig()
		cfg.Aggregate = agg
		series, err := Align(a, b, cfg)
		require.NoError(t, err, agg)
		assert.Equal(t, want, series[0].ValueA, agg)
	}
}

func TestAlign_WeeklyGrid(t *testing.T) {
	var a, b []factor.Observation
	for d := 0; d < 28; d++ {
		a = append(a, obs(d, float64(d)))
		b = append(b, obs(d, 1))
	}
	cfg := DefaultConfig()
	cfg.Interval = IntervalWeek
	cfg.Aggregate = AggSum

	series, err := Align(a, b, cfg)
	require.NoError(t, err)
	require.Len(t, series, 4)
	assert.Equal(t, time.Monday, series[1].Date.Weekday())
	assert.Equal(t, 21.0, series[0].ValueA)
	assert.Equal(t, 7.0, series[3].ValueB)
}

func TestAlign_Errors(t *testing.T) {
	cfg := DefaultConfig()

	_, err := Align(nil, []factor.Observation{obs(0, 1)}, cfg)
	assert.Error(t, err)

	_, err = Align([]factor.Observation{obs(0, 1), obs(1, 2)}, []factor.Observation{obs(5, 1), obs(6, 2)}, cfg)
	assert.ErrorContains(t, err, "do not overlap")

	_, err = Align([]factor.Observation{obs(0, 1), obs(1, 2)}, []factor.Observation{obs(0, 1), obs(1, 2)}, cfg)
	assert.ErrorContains(t, err, "insufficient aligned periods")

	sparse := []factor.Observation{obs(0, 1), obs(9, 2)}
	dense := []factor.Observation{}
	for d := 0; d < 10; d++ {
		dense = append(dense, obs(d, float64(d)))
	}
	_, err = Align(sparse, dense, cfg)
	assert.ErrorContains(t, err, "excessive missing data")
}

func TestAlign_DropsNonFiniteObservations(t *testing.T) {
	a := []factor.Observation{obs(0, 1), obs(1, math.NaN()), obs(2, 3)}
	b := []factor.Observation{obs(0, 1), obs(1, 2), obs(2, 3)}

	series, err := Align(a, b, DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 1, 3}, valuesA(series))
}

// ============================================================================
// TEST: LeadLag
// ============================================================================

func TestLeadLag_DetectsLeader(t *testing.T) {
	const n, shift = 60, 3
	signal := make([]float64, n+shift)
	for i := range signal {
		signal[i] = math.Sin(float64(i)*0.7) + 0.3*math.Cos(float64(i)*1.9)
	}
	series := make(factor.TimeSeriesSample, n)
	for i := range series {
		// b repeats a three periods later
		series[i] = factor.Point{Date: day0.AddDate(0, 0, i), ValueA: signal[i+shift], ValueB: signal[i]}
	}

	res, err := LeadLag(series, 0)
	require.NoError(t, err)
	assert.Equal(t, shift, res.BestLag)
	assert.Equal(t, factor.DirectionALeads, res.Direction)
	assert.InDelta(t, 1.0, res.Correlation, 1e-9)
	assert.Less(t, res.PValue, 0.001)
	assert.Equal(t, n-shift, res.EffectiveSamples)
	assert.Equal(t, 15, res.MaxLag)
}

func TestLeadLag_Synchronous(t *testing.T) {
	series := make(factor.TimeSeriesSample, 30)
	for i := range series {
		v := math.Sin(float64(i) * 0.9)
		series[i] = factor.Point{Date: day0.AddDate(0, 0, i), ValueA: v, ValueB: -2 * v}
	}

	res, err := LeadLag(series, 5)
	require.NoError(t, err)
	assert.Equal(t, 0, res.BestLag)
	assert.Equal(t, factor.DirectionSynchronous, res.Direction)
	assert.InDelta(t, -1.0, res.Correlation, 1e-9)
	assert.Len(t, res.ByLag, 11)
}

func TestScanner_ImplementsPort(t *testing.T) {
	var scanner ports.LeadLagScanner = Scanner{}
	_, err := scanner.LeadLag(make(factor.TimeSeriesSample, 5), 2)
	assert.Error(t, err)
}

func TestLeadLag_TooShort(t *testing.T) {
	_, err := LeadLag(make(factor.TimeSeriesSample, 5), 2)
	assert.Error(t, err)
}

func valuesA(s factor.TimeSeriesSample) []float64 {
	a, _ := s.Values()
	return a
}

func valuesB(s factor.TimeSeriesSample) []float64 {
	_, b := s.Values()
	return b
}
