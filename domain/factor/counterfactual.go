package factor

// CounterfactualRequest asks how a hypothetical change to one factor shifts the others
type CounterfactualRequest struct {
	Factors           []string             `json:"factors"`
	BaseProbabilities []float64            `json:"baseProbabilities"`
	ChangeIndex       int                  `json:"changeIndex"`
	NewProbability    float64              `json:"newProbability"`
	CorrelationMatrix [][]float64          `json:"correlationMatrix"`
	Embeddings        map[string][]float64 `json:"embeddings,omitempty"`
}

// CounterfactualResult carries the propagated probabilities; Error is set when the
// computation degraded to a pass-through of the base probabilities.
type CounterfactualResult struct {
	PropagatedProbabilities []float64 `json:"propagatedProbabilities"`
	FactorIndices           []int     `json:"factorIndices"`
	Error                   string    `json:"error,omitempty"`
}

// Degraded reports whether the result is a pass-through fallback
func (r CounterfactualResult) Degraded() bool { return r.Error != "" }
