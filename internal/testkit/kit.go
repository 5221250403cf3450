package testkit

import (
	"math/rand"
)

// RNGAdapter implements ports.RNGPort with plain seeded streams for tests
type RNGAdapter struct{}

// SeededStream creates a deterministic generator for a named operation
func (r *RNGAdapter) SeededStream(name string, seed int64) *rand.Rand {
	return rand.New(rand.NewSource(int64(hashString(name)) + seed))
}

// HashEmbeddingProvider gives every factor name the same embedding on every call
type HashEmbeddingProvider struct{}

// Embedding draws a uniform [-1,1] vector from a stream seeded by the factor name
func (HashEmbeddingProvider) Embedding(factor string, dim int) []float64 {
	rng := rand.New(rand.NewSource(int64(hashString(factor))))
	out := make([]float64, dim)
	for i := range out {
		out[i] = rng.Float64()*2 - 1
	}
	return out
}

// hashString creates a simple hash for deterministic seeding
func hashString(s string) uint32 {
	var hash uint32 = 5381
	for _, c := range s {
		hash = ((hash << 5) + hash) + uint32(c) // djb2 algorithm
	}
	return hash
}
