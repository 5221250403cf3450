package model

import (
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// Param is one trainable tensor with its gradient accumulator and Adam moments
type Param struct {
	Name  string
	Value *mat.Dense
	Grad  *mat.Dense
	m     *mat.Dense
	v     *mat.Dense
}

func newParam(name string, r, c int) *Param {
	return &Param{
		Name:  name,
		Value: mat.NewDense(r, c, nil),
		Grad:  mat.NewDense(r, c, nil),
	}
}

// Shape returns rows and columns
func (p *Param) Shape() (int, int) { return p.Value.Dims() }

// glorotUniform fills the parameter from U(-limit, limit), limit = sqrt(6/(fanIn+fanOut))
func (p *Param) glorotUniform(rng *rand.Rand) {
	r, c := p.Shape()
	limit := math.Sqrt(6 / float64(r+c))
	raw := p.Value.RawMatrix().Data
	for i := range raw {
		raw[i] = (rng.Float64()*2 - 1) * limit
	}
}

func (p *Param) uniform(rng *rand.Rand, limit float64) {
	raw := p.Value.RawMatrix().Data
	for i := range raw {
		raw[i] = (rng.Float64()*2 - 1) * limit
	}
}

func (p *Param) fill(v float64) {
	raw := p.Value.RawMatrix().Data
	for i := range raw {
		raw[i] = v
	}
}

// paramSet keeps parameters in registration order; the order is the weights manifest order
type paramSet struct {
	list   []*Param
	byName map[string]*Param
}

func newParamSet() *paramSet {
	return &paramSet{byName: make(map[string]*Param)}
}

func (s *paramSet) add(name string, r, c int) *Param {
	p := newParam(name, r, c)
	s.list = append(s.list, p)
	s.byName[name] = p
	return p
}

func (s *paramSet) get(name string) (*Param, bool) {
	p, ok := s.byName[name]
	return p, ok
}

func (s *paramSet) zeroGrad() {
	for _, p := range s.list {
		p.Grad.Zero()
	}
}

// copyValuesFrom copies every same-named, same-shaped tensor from other
func (s *paramSet) copyValuesFrom(other *paramSet) {
	for _, p := range s.list {
		if src, ok := other.byName[p.Name]; ok {
			p.Value.Copy(src.Value)
		}
	}
}

// values snapshots every parameter value
func (s *paramSet) values() map[string]*mat.Dense {
	out := make(map[string]*mat.Dense, len(s.list))
	for _, p := range s.list {
		out[p.Name] = mat.DenseCopyOf(p.Value)
	}
	return out
}

func (s *paramSet) restore(vals map[string]*mat.Dense) {
	for _, p := range s.list {
		if v, ok := vals[p.Name]; ok {
			p.Value.Copy(v)
		}
	}
}

func (s *paramSet) count() int {
	n := 0
	for _, p := range s.list {
		r, c := p.Shape()
		n += r * c
	}
	return n
}

func (s *paramSet) names() []string {
	out := make([]string, 0, len(s.list))
	for _, p := range s.list {
		out = append(out, p.Name)
	}
	sort.Strings(out)
	return out
}

// adam implements the Adam update with the bias-corrected step size used by Keras
type adam struct {
	lr      float64
	beta1   float64
	beta2   float64
	epsilon float64
	step    int
}

func newAdam(lr float64) *adam {
	return &adam{lr: lr, beta1: 0.9, beta2: 0.999, epsilon: 1e-7}
}

func (o *adam) apply(params *paramSet) {
	o.step++
	t := float64(o.step)
	lrT := o.lr * math.Sqrt(1-math.Pow(o.beta2, t)) / (1 - math.Pow(o.beta1, t))

	for _, p := range params.list {
		if p.m == nil {
			r, c := p.Shape()
			p.m = mat.NewDense(r, c, nil)
			p.v = mat.NewDense(r, c, nil)
		}
		w := p.Value.RawMatrix().Data
		g := p.Grad.RawMatrix().Data
		m := p.m.RawMatrix().Data
		v := p.v.RawMatrix().Data
		for i := range w {
			m[i] = o.beta1*m[i] + (1-o.beta1)*g[i]
			v[i] = o.beta2*v[i] + (1-o.beta2)*g[i]*g[i]
			w[i] -= lrT * m[i] / (math.Sqrt(v[i]) + o.epsilon)
		}
	}
}
