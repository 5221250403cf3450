package model

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// attention is multi-head scaled dot-product self-attention with key dimension H/heads
type attention struct {
	heads int
	dk    int
	q     *linear
	k     *linear
	v     *linear
	o     *linear
}

type attentionCache struct {
	x, q, k, v *mat.Dense
	weights    []*mat.Dense
	concat     *mat.Dense
}

func newAttention(ps *paramSet, name string, h, heads int, rng *rand.Rand) *attention {
	return &attention{
		heads: heads,
		dk:    h / heads,
		q:     newLinear(ps, name+"/query", h, h, rng),
		k:     newLinear(ps, name+"/key", h, h, rng),
		v:     newLinear(ps, name+"/value", h, h, rng),
		o:     newLinear(ps, name+"/output", h, h, rng),
	}
}

func (a *attention) scale() float64 { return 1 / math.Sqrt(float64(a.dk)) }

func (a *attention) forward(ar *arena, x *mat.Dense) (*mat.Dense, *attentionCache) {
	t, h := x.Dims()
	c := &attentionCache{
		x:       x,
		q:       a.q.forward(ar, x),
		k:       a.k.forward(ar, x),
		v:       a.v.forward(ar, x),
		weights: make([]*mat.Dense, a.heads),
		concat:  ar.dense(t, h),
	}
	head := ar.dense(t, a.dk)
	for i := 0; i < a.heads; i++ {
		lo, hi := i*a.dk, (i+1)*a.dk
		w := ar.dense(t, t)
		w.Mul(cols(c.q, lo, hi), cols(c.k, lo, hi).T())
		w.Scale(a.scale(), w)
		softmaxRows(w)
		c.weights[i] = w

		head.Mul(w, cols(c.v, lo, hi))
		cols(c.concat, lo, hi).Copy(head)
	}
	return a.o.forward(ar, c.concat), c
}

func (a *attention) backward(ar *arena, dy *mat.Dense, c *attentionCache) *mat.Dense {
	t, h := c.x.Dims()
	dConcat := a.o.backward(ar, c.concat, dy)
	dq, dk, dv := ar.dense(t, h), ar.dense(t, h), ar.dense(t, h)

	dWeights := ar.dense(t, t)
	dScores := ar.dense(t, t)
	tmp := ar.dense(t, a.dk)
	for i := 0; i < a.heads; i++ {
		lo, hi := i*a.dk, (i+1)*a.dk
		w := c.weights[i]
		dHead := cols(dConcat, lo, hi)

		dWeights.Mul(dHead, cols(c.v, lo, hi).T())
		tmp.Mul(w.T(), dHead)
		cols(dv, lo, hi).Copy(tmp)

		for r := 0; r < t; r++ {
			wr, gr, sr := w.RawRowView(r), dWeights.RawRowView(r), dScores.RawRowView(r)
			dot := 0.0
			for j := range wr {
				dot += wr[j] * gr[j]
			}
			for j := range wr {
				sr[j] = wr[j] * (gr[j] - dot) * a.scale()
			}
		}

		tmp.Mul(dScores, cols(c.k, lo, hi))
		cols(dq, lo, hi).Copy(tmp)
		tmp.Mul(dScores.T(), cols(c.q, lo, hi))
		cols(dk, lo, hi).Copy(tmp)
	}

	dx := a.q.backward(ar, c.x, dq)
	addInto(dx, a.k.backward(ar, c.x, dk))
	addInto(dx, a.v.backward(ar, c.x, dv))
	return dx
}

// encoderLayer is attention, residual, layer norm, feed-forward with GELU, dropout, residual, layer norm
type encoderLayer struct {
	attn    *attention
	norm1   *layerNorm
	expand  *linear
	project *linear
	norm2   *layerNorm
	dropout float64
}

type encoderLayerCache struct {
	attn     *attentionCache
	norm1    *layerNormCache
	h1       *mat.Dense
	expanded *mat.Dense
	act      *mat.Dense
	mask     []float64
	norm2    *layerNormCache
}

func newEncoderLayer(ps *paramSet, name string, cfg Config, rng *rand.Rand) *encoderLayer {
	h := cfg.ModelDimension
	ff := h * cfg.FeedForwardFactor
	return &encoderLayer{
		attn:    newAttention(ps, name+"/attention", h, cfg.NumHeads, rng),
		norm1:   newLayerNorm(ps, name+"/norm1", h),
		expand:  newLinear(ps, name+"/ffn/expand", h, ff, rng),
		project: newLinear(ps, name+"/ffn/project", ff, h, rng),
		norm2:   newLayerNorm(ps, name+"/norm2", h),
		dropout: cfg.DropoutRate,
	}
}

func (l *encoderLayer) forward(p pass, x *mat.Dense) (*mat.Dense, *encoderLayerCache) {
	c := &encoderLayerCache{}
	attended, attnCache := l.attn.forward(p.ar, x)
	c.attn = attnCache

	c.h1, c.norm1 = l.norm1.forward(p.ar, sum(p.ar, x, attended))

	c.expanded = l.expand.forward(p.ar, c.h1)
	c.act = gelu(p.ar, c.expanded)
	projected := l.project.forward(p.ar, c.act)
	dropped, mask := dropout(p, projected, l.dropout)
	c.mask = mask

	out, norm2 := l.norm2.forward(p.ar, sum(p.ar, c.h1, dropped))
	c.norm2 = norm2
	return out, c
}

func (l *encoderLayer) backward(ar *arena, dy *mat.Dense, c *encoderLayerCache) *mat.Dense {
	dr2 := l.norm2.backward(ar, dy, c.norm2)

	r, cl := dr2.Dims()
	dProjected := ar.dense(r, cl)
	dProjected.Copy(dr2)
	dropoutBackward(dProjected, c.mask)
	dAct := l.project.backward(ar, c.act, dProjected)
	geluBackward(c.expanded, dAct)

	dh1 := l.expand.backward(ar, c.h1, dAct)
	addInto(dh1, dr2)

	dr1 := l.norm1.backward(ar, dh1, c.norm1)
	dx := l.attn.backward(ar, dr1, c.attn)
	addInto(dx, dr1)
	return dx
}

// meanPool averages a T x H sequence over time into a 1 x H row
func meanPool(ar *arena, x *mat.Dense) *mat.Dense {
	t, h := x.Dims()
	out := ar.dense(1, h)
	row := out.RawRowView(0)
	for i := 0; i < t; i++ {
		for j, v := range x.RawRowView(i) {
			row[j] += v
		}
	}
	for j := range row {
		row[j] /= float64(t)
	}
	return out
}

func meanPoolBackward(ar *arena, dPooled []float64, t int) *mat.Dense {
	out := ar.dense(t, len(dPooled))
	for i := 0; i < t; i++ {
		row := out.RawRowView(i)
		for j, g := range dPooled {
			row[j] = g / float64(t)
		}
	}
	return out
}
