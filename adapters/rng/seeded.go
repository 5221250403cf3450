package rng

import (
	"hash/fnv"
	"math/rand"
)

// Seeded derives an independent deterministic stream per operation name from one base seed
type Seeded struct{}

// NewSeeded returns the default stream source
func NewSeeded() *Seeded { return &Seeded{} }

// SeededStream mixes the operation name into the seed so streams differ by name
func (s *Seeded) SeededStream(name string, seed int64) *rand.Rand {
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	return rand.New(rand.NewSource(seed ^ int64(h.Sum64())))
}
