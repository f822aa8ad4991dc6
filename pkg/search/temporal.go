package search

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/oceanbase/powermem-recall/pkg/types"
)

const (
	densityWindow    = 5
	densityProximity = time.Hour
)

// temporalSearch orders records newest first and scores each as
//
//	0.5*recency + 0.5*contains(query) + 0.3*density
//
// where recency decays linearly over 30 days and density is the share of the
// record's neighbours (five positions either side in recency order) created
// within an hour of it. Records scoring zero are dropped.
func (e *Engine) temporalSearch(q *types.SearchQuery, records []*types.MemoryRecord) []types.SearchResult {
	sorted := make([]*types.MemoryRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
	})

	needle := strings.ToLower(strings.TrimSpace(q.Query))
	results := make([]types.SearchResult, 0, len(sorted))
	for i, r := range sorted {
		recency := e.recencyScore(r)
		var match float64
		if needle != "" && strings.Contains(strings.ToLower(r.Content), needle) {
			match = 1
		}
		density := localDensity(sorted, i)

		score := 0.5*recency + 0.5*match + 0.3*density
		if score <= 0 {
			continue
		}
		results = append(results, types.SearchResult{
			Memory: r,
			Score:  score,
			Explanations: []string{
				fmt.Sprintf("Recency: %.3f, content match: %.0f, temporal density: %.3f", recency, match, density),
			},
		})
	}
	return results
}

func localDensity(sorted []*types.MemoryRecord, i int) float64 {
	lo := i - densityWindow
	if lo < 0 {
		lo = 0
	}
	hi := i + densityWindow
	if hi > len(sorted)-1 {
		hi = len(sorted) - 1
	}

	var total, close int
	for j := lo; j <= hi; j++ {
		if j == i {
			continue
		}
		total++
		gap := sorted[i].CreatedAt.Sub(sorted[j].CreatedAt)
		if gap < 0 {
			gap = -gap
		}
		if gap <= densityProximity {
			close++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(close) / float64(total)
}
