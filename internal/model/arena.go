package model

import (
	"sync"

	"gonum.org/v1/gonum/mat"
)

// arena hands out zeroed float64 buffers for one Predict or training step.
// Everything allocated from it is returned to the pool by release, so callers
// must not retain matrices built on arena memory past the deferred release.
type arena struct {
	free map[int][][]float64
	used [][]float64
}

var arenaPool = sync.Pool{
	New: func() any { return &arena{free: make(map[int][][]float64)} },
}

func acquireArena() *arena {
	return arenaPool.Get().(*arena)
}

func (a *arena) release() {
	for _, buf := range a.used {
		a.free[len(buf)] = append(a.free[len(buf)], buf)
	}
	a.used = a.used[:0]
	arenaPool.Put(a)
}

func (a *arena) vec(n int) []float64 {
	var buf []float64
	if list := a.free[n]; len(list) > 0 {
		buf = list[len(list)-1]
		a.free[n] = list[:len(list)-1]
		clear(buf)
	} else {
		buf = make([]float64, n)
	}
	a.used = append(a.used, buf)
	return buf
}

func (a *arena) dense(r, c int) *mat.Dense {
	return mat.NewDense(r, c, a.vec(r*c))
}
