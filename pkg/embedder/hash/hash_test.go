package hash_test

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oceanbase/powermem-recall/pkg/embedder/hash"
)

func TestEmbedder_Deterministic(t *testing.T) {
	ctx := context.Background()
	e := hash.New(nil)
	assert.Equal(t, hash.DefaultDimensions, e.Dimensions())

	a, err := e.Embed(ctx, "Walked the dog")
	require.NoError(t, err)
	b, err := hash.New(nil).Embed(ctx, "walked THE dog!")
	require.NoError(t, err)
	assert.Equal(t, a, b)

	var norm float64
	for _, v := range a {
		norm += v * v
	}
	assert.InDelta(t, 1, math.Sqrt(norm), 1e-9)
}

func TestEmbedder_SharedVocabularyIsCloser(t *testing.T) {
	ctx := context.Background()
	e := hash.New(&hash.Config{Dimensions: 256})

	query, _ := e.Embed(ctx, "dog walks in the park")
	near, _ := e.Embed(ctx, "walked the dog in the park")
	far, _ := e.Embed(ctx, "quarterly budget spreadsheet")

	assert.Greater(t, e.Similarity(query, near), e.Similarity(query, far))
}

func TestEmbedder_EdgeCases(t *testing.T) {
	ctx := context.Background()
	e := hash.New(&hash.Config{Dimensions: 16})

	empty, err := e.Embed(ctx, "  ")
	require.NoError(t, err)
	assert.Equal(t, make([]float64, 16), empty)

	seeded, _ := hash.New(&hash.Config{Dimensions: 16, Seed: 7}).Embed(ctx, "coffee")
	plain, _ := e.Embed(ctx, "coffee")
	assert.NotEqual(t, plain, seeded)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = e.Embed(cancelled, "coffee")
	assert.ErrorIs(t, err, context.Canceled)
}
