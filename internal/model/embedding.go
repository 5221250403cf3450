package model

import (
	"math/rand"
	"sync"
)

// RandomEmbeddingProvider is the fallback identity vector: uniform in [-1,1] from an injected stream
type RandomEmbeddingProvider struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomEmbeddingProvider wraps rng; draws are serialised
func NewRandomEmbeddingProvider(rng *rand.Rand) *RandomEmbeddingProvider {
	return &RandomEmbeddingProvider{rng: rng}
}

func (p *RandomEmbeddingProvider) Embedding(_ string, dim int) []float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]float64, dim)
	for i := range out {
		out[i] = p.rng.Float64()*2 - 1
	}
	return out
}
