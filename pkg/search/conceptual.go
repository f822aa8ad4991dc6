package search

import (
	"context"
	"fmt"

	"github.com/oceanbase/powermem-recall/pkg/types"
)

// conceptMatchThreshold is the similarity a concept pair must exceed to count.
const conceptMatchThreshold = 0.5

// conceptualSearch extracts concepts from the query (optionally expanded) and
// from each record, sums the similarity of every pair above the match
// threshold and normalizes by the number of query concepts.
func (e *Engine) conceptualSearch(ctx context.Context, q *types.SearchQuery, records []*types.MemoryRecord) ([]types.SearchResult, error) {
	if e.concepts == nil {
		return nil, fmt.Errorf("%w: conceptual search requires a concept extractor", types.ErrCapabilityUnavailable)
	}

	queryConcepts, err := e.queryConcepts(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(queryConcepts) == 0 {
		return nil, nil
	}

	results := make([]types.SearchResult, 0, len(records))
	for _, r := range records {
		recordConcepts, err := e.concepts.Extract(ctx, r.Content)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			e.logger.Warn("skipping record, concept extraction failed", "memory_id", r.ID, "error", err)
			continue
		}

		var sum float64
		var matches []types.ConceptMatch
		for _, qc := range queryConcepts {
			for _, rc := range recordConcepts {
				sim := e.concepts.Similarity(qc, rc)
				if sim > conceptMatchThreshold {
					sum += sim
					matches = append(matches, types.ConceptMatch{QueryConcept: qc, RecordConcept: rc, Similarity: sim})
				}
			}
		}
		if sum <= 0 {
			continue
		}

		score := sum / float64(len(queryConcepts))
		results = append(results, types.SearchResult{
			Memory:         r,
			Score:          score,
			ConceptMatches: matches,
			Explanations:   []string{fmt.Sprintf("Concept matches: %d", len(matches))},
		})
	}
	return results, nil
}

// queryConcepts returns the query's concepts, extracting them at most once per
// raw query string. Expansion is applied after the cache.
func (e *Engine) queryConcepts(ctx context.Context, q *types.SearchQuery) ([]string, error) {
	concepts, ok := e.conceptCache.Get(q.Query)
	if !ok {
		extracted, err := e.concepts.Extract(ctx, q.Query)
		if err != nil {
			return nil, fmt.Errorf("extract query concepts: %w", err)
		}
		concepts = extracted
		e.conceptCache.Add(q.Query, concepts)
	}

	if !q.ExpandQuery || len(concepts) == 0 {
		return concepts, nil
	}
	expanded, err := e.concepts.Expand(ctx, concepts)
	if err != nil {
		return nil, fmt.Errorf("expand query concepts: %w", err)
	}
	return expanded, nil
}
