package model

import (
	"fmt"
	"math"
	"math/rand"

	"factorcorr/domain/factor"

	"gonum.org/v1/gonum/mat"
)

// network holds every trainable tensor of the correlation model
type network struct {
	cfg      Config
	params   *paramSet
	input    *linear
	pos      PositionalEncoder
	layers   []*encoderLayer
	hidden   *linear
	corrHead *linear
	confHead *linear
	uncHead  *linear
}

// forwardCache keeps the intermediates of one sample for backpropagation
type forwardCache struct {
	seq       *mat.Dense
	projected *mat.Dense
	layers    []*encoderLayerCache
	t         int
	concat    *mat.Dense
	hiddenPre *mat.Dense
	hidden    *mat.Dense
	mask      []float64
	dropped   *mat.Dense
	heads     factor.HeadOutputs
}

func newNetwork(cfg Config, rng *rand.Rand) *network {
	h := cfg.ModelDimension
	ps := newParamSet()
	n := &network{cfg: cfg, params: ps}

	n.input = newLinear(ps, "encoder/input", Channels, h, rng)
	if cfg.Positional == PositionalLearned {
		n.pos = newLearnedEncoding(ps, cfg.MaxSequenceLength, h, rng)
	} else {
		n.pos = NewSinusoidalEncoding(cfg.MaxSequenceLength, h)
	}
	for i := 0; i < cfg.NumLayers; i++ {
		n.layers = append(n.layers, newEncoderLayer(ps, layerName(i), cfg, rng))
	}

	in := h + 2*cfg.EmbeddingDimension
	n.hidden = newLinear(ps, "predictor/hidden", in, cfg.PredictorUnits, rng)
	n.corrHead = newLinear(ps, "predictor/correlation", cfg.PredictorUnits, 1, rng)
	n.confHead = newLinear(ps, "predictor/confidence", cfg.PredictorUnits, 1, rng)
	n.uncHead = newLinear(ps, "predictor/uncertainty", cfg.PredictorUnits, 1, rng)
	return n
}

func layerName(i int) string {
	return fmt.Sprintf("encoder/layer%02d", i)
}

// clone deep-copies the weights into a fresh network with the same architecture
func (n *network) clone() *network {
	c := newNetwork(n.cfg, rand.New(rand.NewSource(0)))
	c.params.copyValuesFrom(n.params)
	return c
}

// forward runs one prepared sequence and both embeddings through the encoder and predictor
func (n *network) forward(p pass, seq *mat.Dense, embA, embB []float64) *forwardCache {
	c := &forwardCache{seq: seq}
	c.projected = n.input.forward(p.ar, seq)
	x := relu(p.ar, c.projected)
	n.pos.Encode(x)

	for _, layer := range n.layers {
		var lc *encoderLayerCache
		x, lc = layer.forward(p, x)
		c.layers = append(c.layers, lc)
	}
	c.t, _ = x.Dims()
	pooled := meanPool(p.ar, x)

	h, e := n.cfg.ModelDimension, n.cfg.EmbeddingDimension
	c.concat = p.ar.dense(1, h+2*e)
	row := c.concat.RawRowView(0)
	copy(row[:h], pooled.RawRowView(0))
	copy(row[h:h+e], embA)
	copy(row[h+e:], embB)

	c.hiddenPre = n.hidden.forward(p.ar, c.concat)
	c.hidden = relu(p.ar, c.hiddenPre)
	c.dropped, c.mask = dropout(p, c.hidden, n.cfg.PredictorDropout)

	c.heads = factor.HeadOutputs{
		Correlation: math.Tanh(n.corrHead.forward(p.ar, c.dropped).At(0, 0)),
		Confidence:  sigmoid(n.confHead.forward(p.ar, c.dropped).At(0, 0)),
		Uncertainty: sigmoid(n.uncHead.forward(p.ar, c.dropped).At(0, 0)),
	}
	return c
}

// headGrads are loss gradients with respect to the three head pre-activations
type headGrads struct {
	corr, conf, unc float64
}

// backward accumulates parameter gradients for one sample
func (n *network) backward(ar *arena, c *forwardCache, g headGrads) {
	dDropped := ar.dense(1, n.cfg.PredictorUnits)
	for _, head := range []struct {
		l *linear
		g float64
	}{{n.corrHead, g.corr}, {n.confHead, g.conf}, {n.uncHead, g.unc}} {
		dy := ar.dense(1, 1)
		dy.Set(0, 0, head.g)
		addInto(dDropped, head.l.backward(ar, c.dropped, dy))
	}
	dropoutBackward(dDropped, c.mask)
	reluBackward(c.hiddenPre, dDropped)
	dConcat := n.hidden.backward(ar, c.concat, dDropped)

	dx := meanPoolBackward(ar, dConcat.RawRowView(0)[:n.cfg.ModelDimension], c.t)
	for i := len(n.layers) - 1; i >= 0; i-- {
		dx = n.layers[i].backward(ar, dx, c.layers[i])
	}
	n.pos.Backward(dx)
	reluBackward(c.projected, dx)
	n.input.backward(ar, c.seq, dx)
}

// target is the supervised label triple of one example
type target struct {
	corr, conf, unc float64
}

func targetFor(ex factor.TrainingExample) target {
	return target{
		corr: ex.CorrelationLabel(),
		conf: ex.ConfidenceLabel(),
		unc:  ex.UncertaintyLabel(),
	}
}

const bceEpsilon = 1e-7

// sampleLoss is MSE(correlation) + 0.5*BCE(confidence) + 0.5*MSE(uncertainty)
func sampleLoss(out factor.HeadOutputs, y target) float64 {
	dc := out.Correlation - y.corr
	du := out.Uncertainty - y.unc
	conf := math.Min(1-bceEpsilon, math.Max(bceEpsilon, out.Confidence))
	bce := -(y.conf*math.Log(conf) + (1-y.conf)*math.Log(1-conf))
	return dc*dc + 0.5*bce + 0.5*du*du
}

// lossGrads differentiates sampleLoss through tanh and sigmoid, scaled by s
func lossGrads(out factor.HeadOutputs, y target, s float64) headGrads {
	corr, conf, unc := out.Correlation, out.Confidence, out.Uncertainty
	return headGrads{
		corr: s * 2 * (corr - y.corr) * (1 - corr*corr),
		conf: s * 0.5 * (conf - y.conf),
		unc:  s * (unc - y.unc) * unc * (1 - unc),
	}
}
