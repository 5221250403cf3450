package model

import (
	"math"
	"math/rand"
	"testing"

	"factorcorr/domain/factor"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func gradCheckConfig(kind PositionalKind) Config {
	cfg := DefaultConfig()
	cfg.ModelDimension = 4
	cfg.NumHeads = 2
	cfg.NumLayers = 1
	cfg.EmbeddingDimension = 2
	cfg.MaxSequenceLength = 5
	cfg.FeedForwardFactor = 2
	cfg.PredictorUnits = 3
	cfg.DropoutRate = 0
	cfg.PredictorDropout = 0
	cfg.Positional = kind
	return cfg
}

func randomInput(rng *rand.Rand, t int) (*mat.Dense, []float64, []float64) {
	seq := mat.NewDense(t, Channels, nil)
	for i := 0; i < t; i++ {
		for j := 0; j < Channels; j++ {
			seq.Set(i, j, rng.NormFloat64())
		}
	}
	embA := []float64{rng.Float64()*2 - 1, rng.Float64()*2 - 1}
	embB := []float64{rng.Float64()*2 - 1, rng.Float64()*2 - 1}
	return seq, embA, embB
}

func evalLoss(net *network, seq *mat.Dense, embA, embB []float64, y target) float64 {
	ar := acquireArena()
	defer ar.release()
	return sampleLoss(net.forward(pass{ar: ar}, seq, embA, embB).heads, y)
}

func TestGradientCheck(t *testing.T) {
	for _, kind := range []PositionalKind{PositionalSinusoidal, PositionalLearned} {
		t.Run(string(kind), func(t *testing.T) {
			rng := rand.New(rand.NewSource(7))
			net := newNetwork(gradCheckConfig(kind), rng)
			seq, embA, embB := randomInput(rng, 5)
			y := target{corr: 0.4, conf: 0.8, unc: 0.3}

			ar := acquireArena()
			net.params.zeroGrad()
			c := net.forward(pass{ar: ar}, seq, embA, embB)
			net.backward(ar, c, lossGrads(c.heads, y, 1))
			ar.release()

			const eps = 1e-5
			checked := 0
			for _, p := range net.params.list {
				w := p.Value.RawMatrix().Data
				g := p.Grad.RawMatrix().Data
				for i := range w {
					orig := w[i]
					w[i] = orig + eps
					plus := evalLoss(net, seq, embA, embB, y)
					w[i] = orig - eps
					minus := evalLoss(net, seq, embA, embB, y)
					w[i] = orig

					numeric := (plus - minus) / (2 * eps)
					tol := 1e-5 + 1e-3*math.Max(math.Abs(numeric), math.Abs(g[i]))
					if !assert.InDelta(t, numeric, g[i], tol, "%s[%d]", p.Name, i) {
						return
					}
					checked++
				}
			}
			assert.Equal(t, net.params.count(), checked)
		})
	}
}

func TestLossGradsMatchFiniteDifference(t *testing.T) {
	y := target{corr: -0.3, conf: 0.6, unc: 0.2}
	pre := [3]float64{0.2, -0.4, 0.7}
	lossAt := func(z [3]float64) float64 {
		return sampleLossFromLogits(z, y)
	}
	out := headsFromLogits(pre)
	g := lossGrads(out, y, 1)
	analytic := [3]float64{g.corr, g.conf, g.unc}

	const eps = 1e-6
	for i := range pre {
		plus, minus := pre, pre
		plus[i] += eps
		minus[i] -= eps
		numeric := (lossAt(plus) - lossAt(minus)) / (2 * eps)
		assert.InDelta(t, numeric, analytic[i], 1e-6, "head %d", i)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	net := newNetwork(gradCheckConfig(PositionalLearned), rand.New(rand.NewSource(3)))
	cp := net.clone()
	for _, p := range net.params.list {
		q, ok := cp.params.get(p.Name)
		require.True(t, ok)
		assert.True(t, mat.Equal(p.Value, q.Value), p.Name)
	}
	cp.params.list[0].Value.Set(0, 0, 99)
	assert.NotEqual(t, 99.0, net.params.list[0].Value.At(0, 0))
}

func TestAdamMovesAgainstGradient(t *testing.T) {
	ps := newParamSet()
	p := ps.add("w", 1, 2)
	p.Value.SetRow(0, []float64{1, -1})
	p.Grad.SetRow(0, []float64{0.5, -0.5})

	opt := newAdam(0.01)
	opt.apply(ps)
	// first Adam step moves each weight by about lr against the gradient sign
	assert.InDelta(t, 0.99, p.Value.At(0, 0), 1e-6)
	assert.InDelta(t, -0.99, p.Value.At(0, 1), 1e-6)
}

func headsFromLogits(z [3]float64) factor.HeadOutputs {
	return factor.HeadOutputs{Correlation: math.Tanh(z[0]), Confidence: sigmoid(z[1]), Uncertainty: sigmoid(z[2])}
}

func sampleLossFromLogits(z [3]float64, y target) float64 {
	return sampleLoss(headsFromLogits(z), y)
}
