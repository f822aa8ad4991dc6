package core

import (
	"time"

	"github.com/oceanbase/powermem-recall/pkg/types"
)

// SearchOption is a function type for configuring Search operations.
//
// Options are applied in order over a hybrid query with the engine's
// default page size.
type SearchOption func(*types.SearchQuery)

// WithQueryType selects the search strategy.
//
// Example:
//
//	results, _ := client.Search(ctx, "coffee", core.WithQueryType(types.QueryConceptual))
func WithQueryType(queryType types.QueryType) SearchOption {
	return func(q *types.SearchQuery) {
		q.Type = queryType
	}
}

// WithLimit sets the maximum number of results.
//
// Example:
//
//	results, _ := client.Search(ctx, "query", core.WithLimit(20))
func WithLimit(limit int) SearchOption {
	return func(q *types.SearchQuery) {
		q.Limit = limit
	}
}

// WithOffset skips the first offset ranked results.
func WithOffset(offset int) SearchOption {
	return func(q *types.SearchQuery) {
		q.Offset = offset
	}
}

// WithThreshold drops results scoring below threshold.
func WithThreshold(threshold float64) SearchOption {
	return func(q *types.SearchQuery) {
		q.Threshold = threshold
	}
}

// WithTimeRange restricts results to records created between start and end.
// A zero time leaves that side unbounded.
func WithTimeRange(start, end time.Time) SearchOption {
	return func(q *types.SearchQuery) {
		tr := &types.TimeRange{}
		if !start.IsZero() {
			tr.Start = &start
		}
		if !end.IsZero() {
			tr.End = &end
		}
		q.TimeRange = tr
	}
}

// WithLast restricts results to records created in the last n units.
//
// Example:
//
//	results, _ := client.Search(ctx, "meetings", core.WithLast(7, types.UnitDays))
func WithLast(n int, unit types.TimeUnit) SearchOption {
	return func(q *types.SearchQuery) {
		q.TimeRange = &types.TimeRange{Last: n, Unit: unit}
	}
}

// WithFilters replaces the field filters.
func WithFilters(filters *types.SearchFilters) SearchOption {
	return func(q *types.SearchQuery) {
		q.Filters = filters
	}
}

// WithTags keeps records carrying any of tags.
func WithTags(tags ...string) SearchOption {
	return func(q *types.SearchQuery) {
		ensureFilters(q).Tags = append(ensureFilters(q).Tags, tags...)
	}
}

// WithMemoryTypes keeps records of the given types.
func WithMemoryTypes(memoryTypes ...types.MemoryType) SearchOption {
	return func(q *types.SearchQuery) {
		ensureFilters(q).Types = append(ensureFilters(q).Types, memoryTypes...)
	}
}

// WithMinImportance keeps records whose importance is at least minImportance.
func WithMinImportance(minImportance float64) SearchOption {
	return func(q *types.SearchQuery) {
		ensureFilters(q).MinImportance = &minImportance
	}
}

// WithBoost overrides the hybrid weights for one query.
func WithBoost(boost types.BoostFactors) SearchOption {
	return func(q *types.SearchQuery) {
		q.Boost = &boost
	}
}

// WithExpandQuery enables concept expansion for conceptual search.
func WithExpandQuery(expand bool) SearchOption {
	return func(q *types.SearchQuery) {
		q.ExpandQuery = expand
	}
}

// WithDepth bounds relational traversal.
func WithDepth(depth int) SearchOption {
	return func(q *types.SearchQuery) {
		q.ConceptualDepth = depth
	}
}

// WithQueryEmbedding supplies a precomputed query vector.
func WithQueryEmbedding(embedding []float64) SearchOption {
	return func(q *types.SearchQuery) {
		q.Embedding = embedding
	}
}

func ensureFilters(q *types.SearchQuery) *types.SearchFilters {
	if q.Filters == nil {
		q.Filters = &types.SearchFilters{}
	}
	return q.Filters
}
