package embedder_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/oceanbase/powermem-recall/pkg/embedder"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float64
		want float64
	}{
		{"identical", []float64{1, 2, 3}, []float64{1, 2, 3}, 1},
		{"orthogonal", []float64{1, 0}, []float64{0, 1}, 0},
		{"opposite", []float64{1, 0}, []float64{-1, 0}, -1},
		{"length mismatch", []float64{1, 0}, []float64{1, 0, 0}, 0},
		{"empty", nil, nil, 0},
		{"zero vector", []float64{0, 0}, []float64{1, 1}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, embedder.CosineSimilarity(tt.a, tt.b), 1e-9)
		})
	}
}

func TestEuclideanDistance(t *testing.T) {
	assert.InDelta(t, 5, embedder.EuclideanDistance([]float64{0, 0}, []float64{3, 4}), 1e-9)
	assert.True(t, math.IsInf(embedder.EuclideanDistance([]float64{1}, []float64{1, 2}), 1))
}

func TestNormalize(t *testing.T) {
	v := embedder.Normalize([]float64{3, 4})
	assert.InDeltaSlice(t, []float64{0.6, 0.8}, v, 1e-9)

	zero := []float64{0, 0}
	assert.Equal(t, zero, embedder.Normalize(zero))
}
