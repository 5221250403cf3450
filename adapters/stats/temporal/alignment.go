package temporal

import (
	"fmt"
	"math"
	"sort"
	"time"

	"factorcorr/domain/factor"
)

// ============================================================================
// TEMPORAL ALIGNMENT
// ============================================================================
// Factors are often recorded on their own schedules (per game, per week,
// per injury report). The model needs both factors on one shared timeline,
// so each stream is resampled onto a common grid and the pair is cut to the
// window where both are observed.
// ============================================================================

// Interval defines the heartbeat of the aligned series
type Interval string

const (
	IntervalHour  Interval = "hour"
	IntervalDay   Interval = "day"
	IntervalWeek  Interval = "week"
	IntervalMonth Interval = "month"
)

// FillStrategy defines how to handle buckets with no observation
type FillStrategy string

const (
	FillForward FillStrategy = "forward" // carry the last observed value
	FillMean    FillStrategy = "mean"    // use the mean of observed buckets
	FillZero    FillStrategy = "zero"
)

// Aggregation defines how several observations in one bucket collapse to one value
type Aggregation string

const (
	AggMean Aggregation = "mean"
	AggSum  Aggregation = "sum"
	AggLast Aggregation = "last"
	AggMax  Aggregation = "max"
	AggMin  Aggregation = "min"
)

// Config controls resampling
type Config struct {
	Interval    Interval
	Fill        FillStrategy
	Aggregate   Aggregation
	MinPoints   int
	MaxGapRatio float64 // largest tolerated share of filled buckets per side
}

// DefaultConfig aligns daily, forward-filling, averaging same-day observations
func DefaultConfig() Config {
	return Config{
		Interval:    IntervalDay,
		Fill:        FillForward,
		Aggregate:   AggMean,
		MinPoints:   factor.MinSeriesPoints,
		MaxGapRatio: 0.5,
	}
}

// Align resamples two observation streams onto one grid spanning their overlap
func Align(a, b []factor.Observation, cfg Config) (factor.TimeSeriesSample, error) {
	a, b = finite(a), finite(b)
	if len(a) == 0 || len(b) == 0 {
		return nil, fmt.Errorf("both factors need at least one finite observation")
	}
	if cfg.MinPoints <= 0 {
		cfg.MinPoints = factor.MinSeriesPoints
	}
	if cfg.MaxGapRatio <= 0 {
		cfg.MaxGapRatio = 0.5
	}

	sortObservations(a)
	sortObservations(b)

	start := latest(truncate(a[0].Date, cfg.Interval), truncate(b[0].Date, cfg.Interval))
	end := earliest(truncate(a[len(a)-1].Date, cfg.Interval), truncate(b[len(b)-1].Date, cfg.Interval))
	if end.Before(start) {
		return nil, fmt.Errorf("observation windows do not overlap (%s..%s)", start.Format(time.DateOnly), end.Format(time.DateOnly))
	}

	grid := timeGrid(start, end, cfg.Interval)
	if len(grid) < cfg.MinPoints {
		return nil, fmt.Errorf("insufficient aligned periods: got %d, need at least %d", len(grid), cfg.MinPoints)
	}

	valuesA, observedA := resample(a, grid, cfg)
	valuesB, observedB := resample(b, grid, cfg)

	gapA, gapB := gapRatio(observedA), gapRatio(observedB)
	if gapA > cfg.MaxGapRatio || gapB > cfg.MaxGapRatio {
		return nil, fmt.Errorf("excessive missing data: a=%.1f%% b=%.1f%% max=%.1f%%", gapA*100, gapB*100, cfg.MaxGapRatio*100)
	}

	out := make(factor.TimeSeriesSample, len(grid))
	for i, t := range grid {
		out[i] = factor.Point{Date: t, ValueA: valuesA[i], ValueB: valuesB[i]}
	}
	return out, nil
}

func finite(obs []factor.Observation) []factor.Observation {
	out := make([]factor.Observation, 0, len(obs))
	for _, o := range obs {
		if !math.IsNaN(o.Value) && !math.IsInf(o.Value, 0) {
			out = append(out, o)
		}
	}
	return out
}

func sortObservations(obs []factor.Observation) {
	sort.SliceStable(obs, func(i, j int) bool { return obs[i].Date.Before(obs[j].Date) })
}

// truncate rounds down to the interval boundary in UTC; weeks start on Monday
func truncate(t time.Time, interval Interval) time.Time {
	t = t.UTC()
	switch interval {
	case IntervalHour:
		return t.Truncate(time.Hour)
	case IntervalWeek:
		day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset)
	case IntervalMonth:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	}
}

func step(t time.Time, interval Interval) time.Time {
	switch interval {
	case IntervalHour:
		return t.Add(time.Hour)
	case IntervalWeek:
		return t.AddDate(0, 0, 7)
	case IntervalMonth:
		return t.AddDate(0, 1, 0)
	default:
		return t.AddDate(0, 0, 1)
	}
}

func timeGrid(start, end time.Time, interval Interval) []time.Time {
	var grid []time.Time
	for t := start; !t.After(end); t = step(t, interval) {
		grid = append(grid, t)
	}
	return grid
}

// resample aggregates observations onto the grid; observed marks buckets that
// held at least one real value. Observations before the grid seed forward fill.
func resample(obs []factor.Observation, grid []time.Time, cfg Config) ([]float64, []bool) {
	index := make(map[time.Time]int, len(grid))
	for i, t := range grid {
		index[t] = i
	}

	buckets := make([][]float64, len(grid))
	carry, hasCarry := 0.0, false
	for _, o := range obs {
		key := truncate(o.Date, cfg.Interval)
		if i, ok := index[key]; ok {
			buckets[i] = append(buckets[i], o.Value)
		} else if key.Before(grid[0]) {
			carry, hasCarry = o.Value, true
		}
	}

	values := make([]float64, len(grid))
	observed := make([]bool, len(grid))
	var sum float64
	var count int
	for i, b := range buckets {
		if len(b) > 0 {
			values[i] = aggregate(b, cfg.Aggregate)
			observed[i] = true
			sum += values[i]
			count++
		}
	}

	mean := 0.0
	if count > 0 {
		mean = sum / float64(count)
	}
	for i := range values {
		if observed[i] {
			carry, hasCarry = values[i], true
			continue
		}
		switch cfg.Fill {
		case FillZero:
			values[i] = 0
		case FillMean:
			values[i] = mean
		default:
			if hasCarry {
				values[i] = carry
			} else {
				values[i] = mean
			}
		}
	}
	return values, observed
}

func aggregate(values []float64, fn Aggregation) float64 {
	switch fn {
	case AggSum:
		var s float64
		for _, v := range values {
			s += v
		}
		return s
	case AggLast:
		return values[len(values)-1]
	case AggMax:
		m := values[0]
		for _, v := range values[1:] {
			m = math.Max(m, v)
		}
		return m
	case AggMin:
		m := values[0]
		for _, v := range values[1:] {
			m = math.Min(m, v)
		}
		return m
	default:
		var s float64
		for _, v := range values {
			s += v
		}
		return s / float64(len(values))
	}
}

// gapRatio is the share of buckets that were filled rather than observed
func gapRatio(observed []bool) float64 {
	if len(observed) == 0 {
		return 1
	}
	missing := 0
	for _, o := range observed {
		if !o {
			missing++
		}
	}
	return float64(missing) / float64(len(observed))
}

func latest(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func earliest(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
