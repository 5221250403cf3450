package ports

import "math/rand"

// RNGPort provides seeded random number generation for deterministic operations
type RNGPort interface {
	// SeededStream creates a deterministic generator for a named operation
	SeededStream(name string, seed int64) *rand.Rand
}
