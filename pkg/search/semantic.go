package search

import (
	"context"
	"fmt"

	"github.com/oceanbase/powermem-recall/pkg/types"
)

// semanticSearch scores records by embedding similarity to the query.
// Records without an embedding are embedded on the fly; the vector is used
// for scoring only and is not written back to the record.
func (e *Engine) semanticSearch(ctx context.Context, q *types.SearchQuery, records []*types.MemoryRecord) ([]types.SearchResult, error) {
	if e.embedder == nil {
		return nil, fmt.Errorf("%w: semantic search requires an embedder", types.ErrCapabilityUnavailable)
	}

	queryVec := q.Embedding
	if len(queryVec) == 0 {
		vec, err := e.embedder.Embed(ctx, q.Query)
		if err != nil {
			return nil, fmt.Errorf("%w: query: %v", types.ErrEmbeddingFailed, err)
		}
		queryVec = vec
	}

	results := make([]types.SearchResult, 0, len(records))
	for _, r := range records {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		vec := r.Embedding
		if len(vec) == 0 {
			transient, err := e.embedder.Embed(ctx, r.Content)
			if err != nil {
				e.logger.Warn("skipping record, embedding failed", "memory_id", r.ID, "error", err)
				continue
			}
			vec = transient
		}

		sim := e.embedder.Similarity(queryVec, vec)
		if sim <= 0 {
			continue
		}
		results = append(results, types.SearchResult{
			Memory:        r,
			Score:         sim,
			SemanticScore: floatPtr(sim),
			Explanations:  []string{fmt.Sprintf("Semantic similarity: %.3f", sim)},
		})
	}
	return results, nil
}
