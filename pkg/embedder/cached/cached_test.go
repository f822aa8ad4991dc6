package cached_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oceanbase/powermem-recall/pkg/embedder"
	"github.com/oceanbase/powermem-recall/pkg/embedder/cached"
)

type countingProvider struct {
	calls atomic.Int32
	fail  bool
}

func (p *countingProvider) Embed(_ context.Context, text string) ([]float64, error) {
	p.calls.Add(1)
	if p.fail {
		return nil, errors.New("provider down")
	}
	return []float64{float64(len(text)), 1}, nil
}

func (p *countingProvider) Similarity(a, b []float64) float64 { return embedder.CosineSimilarity(a, b) }
func (p *countingProvider) Dimensions() int                   { return 2 }

func TestEmbedder_Memoizes(t *testing.T) {
	inner := &countingProvider{}
	e, err := cached.New(inner, 10)
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	ctx := context.Background()
	first, err := e.Embed(ctx, "coffee")
	require.NoError(t, err)
	e.Wait()

	second, err := e.Embed(ctx, "coffee")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), inner.calls.Load())

	// Callers own the returned slice.
	second[0] = 99
	third, _ := e.Embed(ctx, "coffee")
	assert.Equal(t, first, third)

	e.Clear()
	_, _ = e.Embed(ctx, "coffee")
	assert.Equal(t, int32(2), inner.calls.Load())
	assert.Equal(t, 2, e.Dimensions())
}

func TestEmbedder_ErrorsAreNotCached(t *testing.T) {
	inner := &countingProvider{fail: true}
	e, err := cached.New(inner, 0)
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	_, err = e.Embed(context.Background(), "x")
	assert.Error(t, err)
	e.Wait()
	_, err = e.Embed(context.Background(), "x")
	assert.Error(t, err)
	assert.Equal(t, int32(2), inner.calls.Load())

	_, err = cached.New(nil, 1)
	assert.Error(t, err)
}
