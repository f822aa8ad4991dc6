package search

import (
	"context"
	"fmt"

	"github.com/oceanbase/powermem-recall/pkg/types"
)

// hybridSearch combines the semantic and keyword strategies:
//
//	score = semW*semantic + kwW*keyword + impW*importance + recW*recency
//
// A record present in either input list is scored. The combined score is
// never lower than the record's keyword score, so a record whose content
// contains the whole query ranks at least as high as under keyword search.
func (e *Engine) hybridSearch(ctx context.Context, q *types.SearchQuery, records []*types.MemoryRecord) ([]types.SearchResult, error) {
	semantic, err := e.semanticSearch(ctx, q, records)
	if err != nil {
		return nil, err
	}
	keyword := e.keywordSearch(q, records)

	semByID := make(map[string]types.SearchResult, len(semantic))
	for _, r := range semantic {
		semByID[r.Memory.ID] = r
	}
	kwByID := make(map[string]types.SearchResult, len(keyword))
	for _, r := range keyword {
		kwByID[r.Memory.ID] = r
	}

	w := e.weightsFor(q)
	results := make([]types.SearchResult, 0, len(semByID)+len(kwByID))
	for _, rec := range records {
		sem, hasSem := semByID[rec.ID]
		kw, hasKw := kwByID[rec.ID]
		if !hasSem && !hasKw {
			continue
		}

		var semScore, kwScore float64
		if hasSem {
			semScore = sem.Score
		}
		if hasKw {
			kwScore = kw.Score
		}

		importance := rec.Importance * w.ImportanceWeight
		recency := e.recencyScore(rec) * w.RecencyWeight
		score := w.SemanticWeight*semScore + w.KeywordWeight*kwScore + importance + recency
		if hasKw && score < kwScore {
			score = kwScore
		}

		result := types.SearchResult{
			Memory:        rec,
			Score:         score,
			SemanticScore: floatPtr(semScore),
			KeywordScore:  floatPtr(kwScore),
			Explanations: []string{
				fmt.Sprintf("Hybrid: semantic %.3f, keyword %.3f", semScore, kwScore),
				fmt.Sprintf("Importance boost: %.3f, recency boost: %.3f", importance, recency),
			},
		}
		if hasKw {
			result.Highlights = kw.Highlights
		}
		results = append(results, result)
	}
	return results, nil
}
