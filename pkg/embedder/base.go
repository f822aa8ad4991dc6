// Package embedder provides the embedding service interface consumed by the
// search and management engines, plus the vector math they share.
//
// Implementations live in sub-packages: hash (deterministic default), openai
// (remote), and cached (memoizing wrapper).
package embedder

import (
	"context"
	"math"
)

// Provider defines the interface for embedding providers.
//
// Both sides of a similarity comparison must come from the same provider;
// there is no contract on dimensionality beyond that.
type Provider interface {
	// Embed converts a text string into a vector embedding.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout
	//   - text: The input text to embed
	//
	// Returns the embedding vector and any error.
	Embed(ctx context.Context, text string) ([]float64, error)

	// Similarity scores two vectors produced by this provider.
	// Vectors of mismatched length score 0.
	Similarity(a, b []float64) float64

	// Dimensions returns the dimension of embedding vectors produced by this provider.
	Dimensions() int
}

// CosineSimilarity calculates the cosine similarity between two vectors.
//
// The formula is: similarity = (A · B) / (||A|| * ||B||)
//
// Returns a value between -1.0 and 1.0, or 0.0 if the vectors have different
// dimensions, are empty, or have zero norm.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	sim := dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
	if math.IsNaN(sim) {
		return 0
	}
	return sim
}

// EuclideanDistance returns the L2 distance between two vectors, or +Inf
// when their lengths differ.
func EuclideanDistance(a, b []float64) float64 {
	if len(a) != len(b) {
		return math.Inf(1)
	}
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

// Normalize scales a vector to unit length (L2 norm). A zero vector is
// returned unchanged.
func Normalize(v []float64) []float64 {
	var sum float64
	for _, val := range v {
		sum += val * val
	}
	norm := math.Sqrt(sum)

	if norm == 0 {
		return v
	}

	result := make([]float64, len(v))
	for i, val := range v {
		result[i] = val / norm
	}

	return result
}
