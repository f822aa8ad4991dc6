package search

import (
	"context"
	"fmt"
	"sort"

	"github.com/oceanbase/powermem-recall/pkg/types"
)

type hop struct {
	id    string
	score float64
	depth int
	path  string
}

// relationalSearch seeds with the keyword matches of the query and walks the
// relationship graph breadth-first from them, up to the query's depth.
//
// Edges are directed (source to target). Each record is reported once: the
// first path that reaches it wins. A record reached at depth d through an
// edge of strength s from a parent scoring p scores s*p/(d+1). With no
// relationships at all the query falls back to semantic search.
func (e *Engine) relationalSearch(
	ctx context.Context,
	q *types.SearchQuery,
	records []*types.MemoryRecord,
	relationships []types.MemoryRelationship,
) ([]types.SearchResult, error) {
	if len(relationships) == 0 {
		e.logger.Debug("no relationships, relational search falls back to semantic")
		return e.semanticSearch(ctx, q, records)
	}

	seeds := e.keywordSearch(q, records)
	sort.SliceStable(seeds, func(i, j int) bool {
		return seeds[i].Score > seeds[j].Score
	})

	byID := make(map[string]*types.MemoryRecord, len(records))
	for _, r := range records {
		byID[r.ID] = r
	}
	adjacency := make(map[string][]types.MemoryRelationship)
	for _, rel := range relationships {
		adjacency[rel.SourceID] = append(adjacency[rel.SourceID], rel)
	}

	maxDepth := e.depth(q)
	visited := make(map[string]struct{}, len(records))
	results := make([]types.SearchResult, 0, len(seeds))
	queue := make([]hop, 0, len(seeds))

	for _, s := range seeds {
		visited[s.Memory.ID] = struct{}{}
		s.RelationshipPaths = []string{"direct"}
		results = append(results, s)
		queue = append(queue, hop{id: s.Memory.ID, score: s.Score, path: s.Memory.ID})
	}

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cur := queue[0]
		queue = queue[1:]
		if cur.depth >= maxDepth {
			continue
		}

		for _, edge := range adjacency[cur.id] {
			if _, seen := visited[edge.TargetID]; seen {
				continue
			}
			target, ok := byID[edge.TargetID]
			if !ok {
				continue
			}
			visited[edge.TargetID] = struct{}{}

			depth := cur.depth + 1
			score := edge.Strength * cur.score / float64(depth+1)
			path := fmt.Sprintf("%s -[%s]-> %s", cur.path, edge.Type, edge.TargetID)
			results = append(results, types.SearchResult{
				Memory:            target,
				Score:             score,
				RelationshipPaths: []string{path},
				Explanations: []string{
					fmt.Sprintf("Related to %s via %s (strength %.2f, depth %d)", cur.id, edge.Type, edge.Strength, depth),
				},
			})
			queue = append(queue, hop{id: edge.TargetID, score: score, depth: depth, path: path})
		}
	}
	return results, nil
}
