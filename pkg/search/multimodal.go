package search

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/oceanbase/powermem-recall/pkg/types"
)

// multiModalSearch runs the semantic, keyword and conceptual strategies (plus
// relational when relationships are supplied) concurrently and merges their
// results by record id.
// A merged record's score is the mean of the scores it received; its
// explanations, highlights, concept matches and paths are concatenated.
// Any strategy failing fails the whole query.
func (e *Engine) multiModalSearch(
	ctx context.Context,
	q *types.SearchQuery,
	records []*types.MemoryRecord,
	relationships []types.MemoryRelationship,
) ([]types.SearchResult, error) {
	strategies := []types.QueryType{types.QuerySemantic, types.QueryKeyword, types.QueryConceptual}
	if len(relationships) > 0 {
		strategies = append(strategies, types.QueryRelational)
	}
	lists := make([][]types.SearchResult, len(strategies))

	g, gctx := errgroup.WithContext(ctx)
	for i, strategy := range strategies {
		sub := *q
		sub.Type = strategy
		g.Go(func() error {
			results, err := e.dispatch(gctx, &sub, records, relationships)
			if err != nil {
				return err
			}
			lists[i] = results
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	type merged struct {
		result types.SearchResult
		sum    float64
		n      int
	}
	byID := make(map[string]*merged)
	order := make([]string, 0)
	for _, list := range lists {
		for _, r := range list {
			m, ok := byID[r.Memory.ID]
			if !ok {
				m = &merged{result: types.SearchResult{Memory: r.Memory}}
				byID[r.Memory.ID] = m
				order = append(order, r.Memory.ID)
			}
			m.sum += r.Score
			m.n++
			if r.SemanticScore != nil {
				m.result.SemanticScore = r.SemanticScore
			}
			if r.KeywordScore != nil {
				m.result.KeywordScore = r.KeywordScore
			}
			m.result.Explanations = append(m.result.Explanations, r.Explanations...)
			m.result.Highlights = append(m.result.Highlights, r.Highlights...)
			m.result.ConceptMatches = append(m.result.ConceptMatches, r.ConceptMatches...)
			m.result.RelationshipPaths = append(m.result.RelationshipPaths, r.RelationshipPaths...)
		}
	}

	results := make([]types.SearchResult, 0, len(order))
	for _, id := range order {
		m := byID[id]
		m.result.Score = m.sum / float64(m.n)
		results = append(results, m.result)
	}
	return results, nil
}
