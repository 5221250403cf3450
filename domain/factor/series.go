package factor

import (
	"sort"
	"time"

	"factorcorr/domain/core"
)

// MinSeriesPoints is the smallest series the model accepts
const MinSeriesPoints = 3

// Point is one observation of both factors on the shared timeline
type Point struct {
	Date   time.Time `json:"date"`
	ValueA float64   `json:"valueA"`
	ValueB float64   `json:"valueB"`
}

// Observation is a single dated value of one factor before it is paired with another
type Observation struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}

// TimeSeriesSample is an ordered paired history of two factors
type TimeSeriesSample []Point

// Len returns the number of observations
func (s TimeSeriesSample) Len() int { return len(s) }

// Usable reports whether the sample has enough points to reach the encoder
func (s TimeSeriesSample) Usable() bool { return len(s) >= MinSeriesPoints }

// Values splits the sample into its two value streams
func (s TimeSeriesSample) Values() (a, b []float64) {
	a = make([]float64, len(s))
	b = make([]float64, len(s))
	for i, p := range s {
		a[i] = p.ValueA
		b[i] = p.ValueB
	}
	return a, b
}

// Sorted returns a copy ordered by date (stable for equal dates)
func (s TimeSeriesSample) Sorted() TimeSeriesSample {
	out := make(TimeSeriesSample, len(s))
	copy(out, s)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date.Before(out[j].Date)
	})
	return out
}

// Fingerprint hashes the sample contents, used for cache keys
func (s TimeSeriesSample) Fingerprint() core.Hash {
	b := &core.HashBuilder{}
	b.Int(int64(len(s)))
	for _, p := range s {
		b.Int(p.Date.UnixNano()).Float(p.ValueA).Float(p.ValueB)
	}
	return b.Sum()
}
