package model

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
)

func TestSinusoidalValue(t *testing.T) {
	assert.Equal(t, 0.0, SinusoidalValue(0, 0, 8))
	assert.Equal(t, 1.0, SinusoidalValue(0, 1, 8))
	assert.InDelta(t, math.Sin(3), SinusoidalValue(3, 0, 8), 1e-12)
	assert.InDelta(t, math.Cos(3), SinusoidalValue(3, 1, 8), 1e-12)
	// channels 2 and 3 share the angle p * 10000^(-2/8)
	angle := 5 * math.Pow(10000, -2.0/8)
	assert.InDelta(t, math.Sin(angle), SinusoidalValue(5, 2, 8), 1e-12)
	assert.InDelta(t, math.Cos(angle), SinusoidalValue(5, 3, 8), 1e-12)
}

func TestSinusoidalEncodingAddsTable(t *testing.T) {
	enc := NewSinusoidalEncoding(10, 4)
	x := mat.NewDense(3, 4, nil)
	x.Set(2, 1, 1)
	enc.Encode(x)

	r, c := x.Dims()
	assert.Equal(t, 3, r)
	assert.Equal(t, 4, c)
	assert.InDelta(t, 1+SinusoidalValue(2, 1, 4), x.At(2, 1), 1e-12)
	assert.InDelta(t, SinusoidalValue(1, 0, 4), x.At(1, 0), 1e-12)
	assert.Equal(t, PositionalSinusoidal, enc.Kind())
}

func TestLearnedEncodingAccumulatesGradient(t *testing.T) {
	ps := newParamSet()
	enc := newLearnedEncoding(ps, 6, 2, rand.New(rand.NewSource(1)))
	assert.Equal(t, PositionalLearned, enc.Kind())

	dx := mat.NewDense(3, 2, []float64{1, 2, 3, 4, 5, 6})
	enc.Backward(dx)
	enc.Backward(dx)

	grad := enc.table.Grad
	assert.Equal(t, 2.0, grad.At(0, 0))
	assert.Equal(t, 12.0, grad.At(2, 1))
	assert.Equal(t, 0.0, grad.At(5, 0))
}

func TestParsePositionalKind(t *testing.T) {
	assert.Equal(t, PositionalLearned, ParsePositionalKind("learned"))
	assert.Equal(t, PositionalSinusoidal, ParsePositionalKind("sinusoidal"))
	assert.Equal(t, PositionalSinusoidal, ParsePositionalKind(""))
}
