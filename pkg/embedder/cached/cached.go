// Package cached memoizes an embedder.Provider so repeated texts (the same
// query issued again, records re-embedded after a reload) do not hit a remote
// provider twice.
package cached

import (
	"context"
	"fmt"

	"github.com/dgraph-io/ristretto"

	"github.com/oceanbase/powermem-recall/pkg/embedder"
)

// DefaultMaxEntries bounds the memo when no size is configured.
const DefaultMaxEntries = 10000

// Embedder wraps another provider with a ristretto cache keyed by text.
type Embedder struct {
	inner embedder.Provider
	cache *ristretto.Cache
}

// New wraps inner with a cache holding up to maxEntries vectors.
func New(inner embedder.Provider, maxEntries int64) (*Embedder, error) {
	if inner == nil {
		return nil, fmt.Errorf("cached.New: nil provider")
	}
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,

		// Cost counts entries, not bytes.
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("cached.New: %w", err)
	}
	return &Embedder{inner: inner, cache: cache}, nil
}

// Embed returns the memoized vector for text, computing it on a miss.
// The returned slice is a copy; callers may modify it.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float64, error) {
	if v, ok := e.cache.Get(text); ok {
		if vec, ok := v.([]float64); ok {
			return append([]float64(nil), vec...), nil
		}
	}

	vec, err := e.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	e.cache.Set(text, append([]float64(nil), vec...), 1)
	return vec, nil
}

// Similarity delegates to the wrapped provider.
func (e *Embedder) Similarity(a, b []float64) float64 {
	return e.inner.Similarity(a, b)
}

// Dimensions delegates to the wrapped provider.
func (e *Embedder) Dimensions() int {
	return e.inner.Dimensions()
}

// Wait blocks until pending cache writes are visible to Get.
func (e *Embedder) Wait() {
	e.cache.Wait()
}

// Clear drops every memoized vector.
func (e *Embedder) Clear() {
	e.cache.Clear()
}

// Close releases the cache.
func (e *Embedder) Close() error {
	e.cache.Close()
	return nil
}
