package harnessports

import (
	"context"
	"math"
)

// Vector is a float64 embedding vector.
type Vector = []float64

// Embedder generates embedding vectors for a batch of texts. Implementations
// must be deterministic for identical input text so callers can cache vectors.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([]Vector, error)
	Dimension() int
}

// CosineSimilarity computes cosine similarity between two vectors in [-1, 1].
// Mismatched or zero-norm vectors score 0.
func CosineSimilarity(a, b Vector) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
