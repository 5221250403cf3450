package model

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// PositionalKind selects the positional encoding strategy at construction time
type PositionalKind string

const (
	PositionalSinusoidal PositionalKind = "sinusoidal"
	PositionalLearned    PositionalKind = "learned"
)

// ParsePositionalKind maps a config string to a strategy, defaulting to sinusoidal
func ParsePositionalKind(s string) PositionalKind {
	if PositionalKind(s) == PositionalLearned {
		return PositionalLearned
	}
	return PositionalSinusoidal
}

// PositionalEncoder injects order information into a T x H sequence in place
type PositionalEncoder interface {
	Kind() PositionalKind
	Encode(x *mat.Dense)
	// Backward accumulates gradients for trainable tables; dx is the gradient w.r.t. the encoded sequence
	Backward(dx *mat.Dense)
}

// SinusoidalEncoding adds the fixed sin/cos table; it has no parameters
type SinusoidalEncoding struct {
	table *mat.Dense
}

// NewSinusoidalEncoding precomputes the table for maxLen positions and hidden size h
func NewSinusoidalEncoding(maxLen, h int) *SinusoidalEncoding {
	table := mat.NewDense(maxLen, h, nil)
	for p := 0; p < maxLen; p++ {
		row := table.RawRowView(p)
		for d := 0; d < h; d++ {
			row[d] = SinusoidalValue(p, d, h)
		}
	}
	return &SinusoidalEncoding{table: table}
}

// SinusoidalValue is sin(angle) for even channels and cos(angle) for odd ones,
// with angle = p * 10000^(-2*floor(d/2)/h)
func SinusoidalValue(p, d, h int) float64 {
	angle := float64(p) * math.Pow(10000, -2*float64(d/2)/float64(h))
	if d%2 == 0 {
		return math.Sin(angle)
	}
	return math.Cos(angle)
}

func (s *SinusoidalEncoding) Kind() PositionalKind { return PositionalSinusoidal }

func (s *SinusoidalEncoding) Encode(x *mat.Dense) {
	addTable(x, s.table)
}

func (s *SinusoidalEncoding) Backward(*mat.Dense) {}

// LearnedEncoding adds a trainable position lookup table bounded by maxSequenceLength
type LearnedEncoding struct {
	table *Param
}

func newLearnedEncoding(params *paramSet, maxLen, h int, rng *rand.Rand) *LearnedEncoding {
	table := params.add("positional/table", maxLen, h)
	table.uniform(rng, 0.05)
	return &LearnedEncoding{table: table}
}

func (l *LearnedEncoding) Kind() PositionalKind { return PositionalLearned }

func (l *LearnedEncoding) Encode(x *mat.Dense) {
	addTable(x, l.table.Value)
}

func (l *LearnedEncoding) Backward(dx *mat.Dense) {
	t, _ := dx.Dims()
	for p := 0; p < t; p++ {
		grad := l.table.Grad.RawRowView(p)
		for d, v := range dx.RawRowView(p) {
			grad[d] += v
		}
	}
}

func addTable(x, table *mat.Dense) {
	t, _ := x.Dims()
	for p := 0; p < t; p++ {
		row := x.RawRowView(p)
		for d, v := range table.RawRowView(p) {
			row[d] += v
		}
	}
}
