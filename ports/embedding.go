package ports

// EmbeddingProvider supplies a factor's identity vector when the caller sends none
type EmbeddingProvider interface {
	Embedding(factor string, dim int) []float64
}
