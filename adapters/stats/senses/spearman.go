package senses

import (
	"fmt"
	"math"
	"sort"

	"factorcorr/domain/core"

	"gonum.org/v1/gonum/stat"
)

// Pearson is the linear correlation of the two streams; a constant stream is a numerical failure
func Pearson(x, y []float64) (float64, error) {
	if len(x) != len(y) {
		return 0, core.NewShapeError("paired stream", len(x), len(y))
	}
	r := stat.Correlation(x, y, nil)
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return 0, fmt.Errorf("%w: correlation of a constant stream", core.ErrNonFinite)
	}
	return math.Max(-1, math.Min(1, r)), nil
}

// Spearman is the Pearson correlation of the rank sequences
func Spearman(x, y []float64) (float64, error) {
	return Pearson(Ranks(x), Ranks(y))
}

// Ranks converts values to 1-based ranks; tied values share the mean of their positions
func Ranks(data []float64) []float64 {
	n := len(data)
	if n == 0 {
		return []float64{}
	}

	type pair struct {
		value float64
		index int
	}

	pairs := make([]pair, n)
	for i, val := range data {
		pairs[i] = pair{value: val, index: i}
	}

	sort.SliceStable(pairs, func(i, j int) bool {
		return pairs[i].value < pairs[j].value
	})

	ranks := make([]float64, n)

	i := 0
	for i < n {
		j := i + 1

		// Find the end of the tie group
		for j < n && pairs[j].value == pairs[i].value {
			j++
		}

		avgRank := float64(i+1) + float64(j-i-1)/2.0
		for k := i; k < j; k++ {
			ranks[pairs[k].index] = avgRank
		}

		i = j
	}

	return ranks
}
