package model

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

const layerNormEpsilon = 1e-5

// pass carries the per-call scratch arena and training flags through the forward pass
type pass struct {
	ar    *arena
	train bool
	rng   *rand.Rand
}

// linear is a dense layer y = xW + b over T x in rows
type linear struct {
	w *Param
	b *Param
}

func newLinear(ps *paramSet, name string, in, out int, rng *rand.Rand) *linear {
	l := &linear{
		w: ps.add(name+"/kernel", in, out),
		b: ps.add(name+"/bias", 1, out),
	}
	l.w.glorotUniform(rng)
	return l
}

func (l *linear) forward(ar *arena, x *mat.Dense) *mat.Dense {
	t, _ := x.Dims()
	_, out := l.w.Shape()
	y := ar.dense(t, out)
	y.Mul(x, l.w.Value)
	bias := l.b.Value.RawRowView(0)
	for i := 0; i < t; i++ {
		row := y.RawRowView(i)
		for j := range row {
			row[j] += bias[j]
		}
	}
	return y
}

// backward accumulates dW and db and returns dx
func (l *linear) backward(ar *arena, x, dy *mat.Dense) *mat.Dense {
	t, in := x.Dims()
	_, out := l.w.Shape()

	dw := ar.dense(in, out)
	dw.Mul(x.T(), dy)
	l.w.Grad.Add(l.w.Grad, dw)

	db := l.b.Grad.RawRowView(0)
	for i := 0; i < t; i++ {
		for j, v := range dy.RawRowView(i) {
			db[j] += v
		}
	}

	dx := ar.dense(t, in)
	dx.Mul(dy, l.w.Value.T())
	return dx
}

// layerNorm normalises each row to zero mean and unit variance, then applies gain and bias
type layerNorm struct {
	gamma *Param
	beta  *Param
}

type layerNormCache struct {
	xhat   *mat.Dense
	invStd []float64
}

func newLayerNorm(ps *paramSet, name string, h int) *layerNorm {
	ln := &layerNorm{
		gamma: ps.add(name+"/gamma", 1, h),
		beta:  ps.add(name+"/beta", 1, h),
	}
	ln.gamma.fill(1)
	return ln
}

func (ln *layerNorm) forward(ar *arena, x *mat.Dense) (*mat.Dense, *layerNormCache) {
	t, h := x.Dims()
	y := ar.dense(t, h)
	cache := &layerNormCache{xhat: ar.dense(t, h), invStd: ar.vec(t)}
	gamma := ln.gamma.Value.RawRowView(0)
	beta := ln.beta.Value.RawRowView(0)

	for i := 0; i < t; i++ {
		row := x.RawRowView(i)
		mean := 0.0
		for _, v := range row {
			mean += v
		}
		mean /= float64(h)
		variance := 0.0
		for _, v := range row {
			d := v - mean
			variance += d * d
		}
		variance /= float64(h)
		inv := 1 / math.Sqrt(variance+layerNormEpsilon)
		cache.invStd[i] = inv

		xhat := cache.xhat.RawRowView(i)
		out := y.RawRowView(i)
		for j, v := range row {
			xhat[j] = (v - mean) * inv
			out[j] = xhat[j]*gamma[j] + beta[j]
		}
	}
	return y, cache
}

func (ln *layerNorm) backward(ar *arena, dy *mat.Dense, cache *layerNormCache) *mat.Dense {
	t, h := dy.Dims()
	dx := ar.dense(t, h)
	gamma := ln.gamma.Value.RawRowView(0)
	dGamma := ln.gamma.Grad.RawRowView(0)
	dBeta := ln.beta.Grad.RawRowView(0)
	dxhat := ar.vec(h)

	for i := 0; i < t; i++ {
		g := dy.RawRowView(i)
		xhat := cache.xhat.RawRowView(i)
		meanD, meanDX := 0.0, 0.0
		for j := range g {
			dGamma[j] += g[j] * xhat[j]
			dBeta[j] += g[j]
			dxhat[j] = g[j] * gamma[j]
			meanD += dxhat[j]
			meanDX += dxhat[j] * xhat[j]
		}
		meanD /= float64(h)
		meanDX /= float64(h)
		out := dx.RawRowView(i)
		for j := range out {
			out[j] = cache.invStd[i] * (dxhat[j] - meanD - xhat[j]*meanDX)
		}
	}
	return dx
}

func relu(ar *arena, x *mat.Dense) *mat.Dense {
	r, c := x.Dims()
	y := ar.dense(r, c)
	src, dst := x.RawMatrix().Data, y.RawMatrix().Data
	for i, v := range src {
		if v > 0 {
			dst[i] = v
		}
	}
	return y
}

// reluBackward masks dy in place by the sign of the pre-activation
func reluBackward(pre, dy *mat.Dense) {
	src, g := pre.RawMatrix().Data, dy.RawMatrix().Data
	for i, v := range src {
		if v <= 0 {
			g[i] = 0
		}
	}
}

// gelu is the exact erf form
func gelu(ar *arena, x *mat.Dense) *mat.Dense {
	r, c := x.Dims()
	y := ar.dense(r, c)
	src, dst := x.RawMatrix().Data, y.RawMatrix().Data
	for i, v := range src {
		dst[i] = 0.5 * v * (1 + math.Erf(v/math.Sqrt2))
	}
	return y
}

func geluBackward(pre, dy *mat.Dense) {
	src, g := pre.RawMatrix().Data, dy.RawMatrix().Data
	for i, v := range src {
		cdf := 0.5 * (1 + math.Erf(v/math.Sqrt2))
		pdf := math.Exp(-0.5*v*v) / math.Sqrt(2*math.Pi)
		g[i] *= cdf + v*pdf
	}
}

// dropout applies inverted dropout during training; the returned mask is nil at inference
func dropout(p pass, x *mat.Dense, rate float64) (*mat.Dense, []float64) {
	if !p.train || rate <= 0 {
		return x, nil
	}
	r, c := x.Dims()
	y := p.ar.dense(r, c)
	mask := p.ar.vec(r * c)
	keep := 1 / (1 - rate)
	src, dst := x.RawMatrix().Data, y.RawMatrix().Data
	for i, v := range src {
		if p.rng.Float64() >= rate {
			mask[i] = keep
			dst[i] = v * keep
		}
	}
	return y, mask
}

func dropoutBackward(dy *mat.Dense, mask []float64) {
	if mask == nil {
		return
	}
	g := dy.RawMatrix().Data
	for i := range g {
		g[i] *= mask[i]
	}
}

func softmaxRows(m *mat.Dense) {
	r, _ := m.Dims()
	for i := 0; i < r; i++ {
		row := m.RawRowView(i)
		maxV := math.Inf(-1)
		for _, v := range row {
			maxV = math.Max(maxV, v)
		}
		sum := 0.0
		for j, v := range row {
			row[j] = math.Exp(v - maxV)
			sum += row[j]
		}
		for j := range row {
			row[j] /= sum
		}
	}
}

func addInto(dst, src *mat.Dense) {
	d, s := dst.RawMatrix().Data, src.RawMatrix().Data
	for i := range d {
		d[i] += s[i]
	}
}

func sum(ar *arena, a, b *mat.Dense) *mat.Dense {
	r, c := a.Dims()
	out := ar.dense(r, c)
	out.Add(a, b)
	return out
}

func cols(m *mat.Dense, lo, hi int) *mat.Dense {
	r, _ := m.Dims()
	return m.Slice(0, r, lo, hi).(*mat.Dense)
}

func sigmoid(x float64) float64 { return 1 / (1 + math.Exp(-x)) }
