package types

import "time"

// QueryType selects the search strategy.
type QueryType string

const (
	QuerySemantic   QueryType = "semantic"
	QueryKeyword    QueryType = "keyword"
	QueryHybrid     QueryType = "hybrid"
	QueryRelational QueryType = "relational"
	QueryTemporal   QueryType = "temporal"
	QueryConceptual QueryType = "conceptual"
	QueryMultiModal QueryType = "multi_modal"
)

// TimeUnit is the unit of a relative time range.
type TimeUnit string

const (
	UnitHours  TimeUnit = "hours"
	UnitDays   TimeUnit = "days"
	UnitWeeks  TimeUnit = "weeks"
	UnitMonths TimeUnit = "months"
)

// TimeRange restricts a search to records created inside a window.
//
// Either Start/End (absolute, each optional) or Last/Unit (relative to now)
// is used. When Last is positive the relative form wins.
type TimeRange struct {
	Start *time.Time `json:"start,omitempty"`
	End   *time.Time `json:"end,omitempty"`
	Last  int        `json:"last,omitempty"`
	Unit  TimeUnit   `json:"unit,omitempty"`
}

// Bounds resolves the range against now. A zero time means unbounded.
func (r *TimeRange) Bounds(now time.Time) (start, end time.Time) {
	if r == nil {
		return time.Time{}, time.Time{}
	}
	if r.Last > 0 {
		switch r.Unit {
		case UnitHours:
			return now.Add(-time.Duration(r.Last) * time.Hour), now
		case UnitWeeks:
			return now.AddDate(0, 0, -7*r.Last), now
		case UnitMonths:
			return now.AddDate(0, -r.Last, 0), now
		default:
			return now.AddDate(0, 0, -r.Last), now
		}
	}
	if r.Start != nil {
		start = *r.Start
	}
	if r.End != nil {
		end = *r.End
	}
	return start, end
}

// Contains reports whether t falls inside the resolved range.
func (r *TimeRange) Contains(t, now time.Time) bool {
	start, end := r.Bounds(now)
	if !start.IsZero() && t.Before(start) {
		return false
	}
	if !end.IsZero() && t.After(end) {
		return false
	}
	return true
}

// SearchFilters restricts the working set by record fields.
// Empty fields do not filter.
type SearchFilters struct {
	Types         []MemoryType           `json:"types,omitempty"`
	Tags          []string               `json:"tags,omitempty"`
	Durations     []DurationClass        `json:"durations,omitempty"`
	AgentID       string                 `json:"agent_id,omitempty"`
	MinImportance *float64               `json:"min_importance,omitempty"`
	MaxImportance *float64               `json:"max_importance,omitempty"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
}

// BoostFactors override the hybrid search weights. Zero values fall back to
// the engine defaults.
type BoostFactors struct {
	SemanticWeight   float64 `json:"semantic_weight,omitempty" yaml:"semantic_weight,omitempty"`
	KeywordWeight    float64 `json:"keyword_weight,omitempty" yaml:"keyword_weight,omitempty"`
	ImportanceWeight float64 `json:"importance_weight,omitempty" yaml:"importance_weight,omitempty"`
	RecencyWeight    float64 `json:"recency_weight,omitempty" yaml:"recency_weight,omitempty"`
}

// SearchQuery is an immutable search request.
//
// Example:
//
//	query := &types.SearchQuery{
//	    Type:      types.QueryHybrid,
//	    Query:     "walks with the dog",
//	    Limit:     5,
//	    Threshold: 0.2,
//	}
type SearchQuery struct {
	// Type selects the strategy.
	Type QueryType `json:"type"`

	// Query is the free-text query.
	Query string `json:"query"`

	// Embedding is an optional precomputed query embedding.
	Embedding []float64 `json:"embedding,omitempty"`

	// TimeRange optionally restricts the working set by creation time.
	TimeRange *TimeRange `json:"time_range,omitempty"`

	// Filters optionally restricts the working set by record fields.
	Filters *SearchFilters `json:"filters,omitempty"`

	// Boost optionally overrides hybrid weights.
	Boost *BoostFactors `json:"boost,omitempty"`

	// Limit is the page size (default 10).
	Limit int `json:"limit,omitempty"`

	// Offset is the number of ranked results to skip.
	Offset int `json:"offset,omitempty"`

	// Threshold drops results scoring below it when positive.
	Threshold float64 `json:"threshold,omitempty"`

	// ExpandQuery enables concept expansion in conceptual search.
	ExpandQuery bool `json:"expand_query,omitempty"`

	// ConceptualDepth bounds relational traversal (default 2).
	ConceptualDepth int `json:"conceptual_depth,omitempty"`
}

// ConceptMatch pairs a query concept with the record concept it matched.
type ConceptMatch struct {
	QueryConcept  string  `json:"query_concept"`
	RecordConcept string  `json:"record_concept"`
	Similarity    float64 `json:"similarity"`
}

// SearchResult is one ranked match.
type SearchResult struct {
	// Memory is the matched record.
	Memory *MemoryRecord `json:"memory"`

	// Score is the composite score used for ranking.
	Score float64 `json:"score"`

	// SemanticScore is the semantic component, when one was computed.
	SemanticScore *float64 `json:"semantic_score,omitempty"`

	// KeywordScore is the keyword component, when one was computed.
	KeywordScore *float64 `json:"keyword_score,omitempty"`

	Explanations      []string       `json:"explanations,omitempty"`
	Highlights        []string       `json:"highlights,omitempty"`
	ConceptMatches    []ConceptMatch `json:"concept_matches,omitempty"`
	RelationshipPaths []string       `json:"relationship_paths,omitempty"`
}
