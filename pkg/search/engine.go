// Package search implements the retrieval side of the memory engine: ranked
// queries over an in-memory snapshot of records using seven strategies
// (semantic, keyword, hybrid, relational, temporal, conceptual, multi-modal).
//
// An Engine is owned by one agent and called sequentially. It keeps two
// private caches: query results keyed by the normalized query plus a
// fingerprint of the record snapshot, and extracted query concepts keyed by
// the raw query string.
package search

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/oceanbase/powermem-recall/pkg/concept"
	"github.com/oceanbase/powermem-recall/pkg/embedder"
	"github.com/oceanbase/powermem-recall/pkg/logging"
	"github.com/oceanbase/powermem-recall/pkg/types"
)

// Defaults applied by NewEngine.
const (
	DefaultLimit            = 10
	DefaultConceptualDepth  = 2
	DefaultQueryCacheSize   = 1000
	DefaultConceptCacheSize = 1000
)

// DefaultWeights are the hybrid search weights.
var DefaultWeights = types.BoostFactors{
	SemanticWeight:   0.7,
	KeywordWeight:    0.3,
	ImportanceWeight: 0.1,
	RecencyWeight:    0.1,
}

// Config configures an Engine.
type Config struct {
	// Embedder is required by semantic, hybrid and multi-modal search.
	// Nil leaves those strategies unavailable.
	Embedder embedder.Provider

	// Concepts drives conceptual search. Nil uses concept.NewRuleExtractor.
	Concepts concept.Extractor

	// Logger receives failure and debug logs. Nil discards them.
	Logger logging.Logger

	// QueryCacheSize bounds the query-result cache (default 1000).
	QueryCacheSize int

	// ConceptCacheSize bounds the query-concept cache (default 1000).
	ConceptCacheSize int

	// DefaultLimit is the page size when a query sets none (default 10).
	DefaultLimit int

	// DefaultDepth bounds relational traversal when a query sets none (default 2).
	DefaultDepth int

	// Weights are the hybrid weights; zero fields take DefaultWeights.
	Weights types.BoostFactors

	// Now is the clock used for recency scoring (default time.Now).
	Now func() time.Time
}

// Stats reports cache occupancy.
type Stats struct {
	QueryCacheSize   int `json:"query_cache_size"`
	ConceptCacheSize int `json:"concept_cache_size"`
}

// Engine executes typed queries against record snapshots.
//
// Example usage:
//
//	engine, _ := search.NewEngine(&search.Config{Embedder: hash.New(nil)})
//	results, err := engine.Search(ctx, &types.SearchQuery{
//	    Type:  types.QueryHybrid,
//	    Query: "dog walks",
//	}, records, nil)
type Engine struct {
	embedder     embedder.Provider
	concepts     concept.Extractor
	logger       logging.Logger
	queryCache   *lru.Cache[string, []types.SearchResult]
	conceptCache *lru.Cache[string, []string]
	defaultLimit int
	defaultDepth int
	weights      types.BoostFactors
	now          func() time.Time
}

// NewEngine creates a search engine. A nil config uses the defaults.
func NewEngine(cfg *Config) (*Engine, error) {
	if cfg == nil {
		cfg = &Config{}
	}

	queryCacheSize := cfg.QueryCacheSize
	if queryCacheSize <= 0 {
		queryCacheSize = DefaultQueryCacheSize
	}
	conceptCacheSize := cfg.ConceptCacheSize
	if conceptCacheSize <= 0 {
		conceptCacheSize = DefaultConceptCacheSize
	}

	queryCache, err := lru.New[string, []types.SearchResult](queryCacheSize)
	if err != nil {
		return nil, types.NewMemoryError("NewEngine", err)
	}
	conceptCache, err := lru.New[string, []string](conceptCacheSize)
	if err != nil {
		return nil, types.NewMemoryError("NewEngine", err)
	}

	e := &Engine{
		embedder:     cfg.Embedder,
		concepts:     cfg.Concepts,
		logger:       cfg.Logger,
		queryCache:   queryCache,
		conceptCache: conceptCache,
		defaultLimit: cfg.DefaultLimit,
		defaultDepth: cfg.DefaultDepth,
		weights:      mergeWeights(cfg.Weights, DefaultWeights),
		now:          cfg.Now,
	}
	if e.concepts == nil {
		e.concepts = concept.NewRuleExtractor()
	}
	if e.logger == nil {
		e.logger = logging.NopLogger()
	}
	if e.defaultLimit <= 0 {
		e.defaultLimit = DefaultLimit
	}
	if e.defaultDepth <= 0 {
		e.defaultDepth = DefaultConceptualDepth
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e, nil
}

// Search runs query against records (and, for relational and multi-modal
// queries, relationships) and returns one page of ranked results.
//
// The pipeline is: cache lookup, time-range then field filtering, strategy
// dispatch, threshold, descending sort, offset/limit, cache store. A cache
// hit returns the stored page without rescoring. Search never modifies the
// records it is given; records lacking an embedding are embedded transiently
// for semantic scoring (see EnsureEmbeddings to backfill them once).
//
// Errors wrap types.ErrCapabilityUnavailable when a required collaborator is
// missing and types.ErrUnsupportedQueryType for unknown strategies.
func (e *Engine) Search(
	ctx context.Context,
	query *types.SearchQuery,
	records []*types.MemoryRecord,
	relationships []types.MemoryRelationship,
) ([]types.SearchResult, error) {
	if query == nil {
		return nil, types.NewMemoryError("Search", fmt.Errorf("%w: nil query", types.ErrInvalidInput))
	}

	key, keyErr := cacheKey(query, records, relationships)
	if keyErr != nil {
		e.logger.Warn("search cache key unavailable", "error", keyErr)
	} else if cached, ok := e.queryCache.Get(key); ok {
		e.logger.Debug("search cache hit", "query_type", query.Type)
		return cached, nil
	}

	working := filterRecords(query, records, e.now())

	results, err := e.dispatch(ctx, query, working, relationships)
	if err != nil {
		e.logger.Error("search failed", "query_type", query.Type, "error", err)
		return nil, types.NewMemoryError("Search", err)
	}

	if query.Threshold > 0 {
		kept := results[:0]
		for _, r := range results {
			if r.Score >= query.Threshold {
				kept = append(kept, r)
			}
		}
		results = kept
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	page := paginate(results, query.Offset, e.limit(query))

	if keyErr == nil {
		e.queryCache.Add(key, page)
	}
	return page, nil
}

func (e *Engine) dispatch(
	ctx context.Context,
	query *types.SearchQuery,
	records []*types.MemoryRecord,
	relationships []types.MemoryRelationship,
) ([]types.SearchResult, error) {
	switch query.Type {
	case types.QuerySemantic:
		return e.semanticSearch(ctx, query, records)
	case types.QueryKeyword:
		return e.keywordSearch(query, records), nil
	case types.QueryHybrid:
		return e.hybridSearch(ctx, query, records)
	case types.QueryRelational:
		return e.relationalSearch(ctx, query, records, relationships)
	case types.QueryTemporal:
		return e.temporalSearch(query, records), nil
	case types.QueryConceptual:
		return e.conceptualSearch(ctx, query, records)
	case types.QueryMultiModal:
		return e.multiModalSearch(ctx, query, records, relationships)
	default:
		return nil, fmt.Errorf("%w: %q", types.ErrUnsupportedQueryType, query.Type)
	}
}

// EnsureEmbedding returns record itself when it already has an embedding,
// otherwise a copy carrying a freshly generated one.
func (e *Engine) EnsureEmbedding(ctx context.Context, record *types.MemoryRecord) (*types.MemoryRecord, error) {
	if record == nil {
		return nil, types.NewMemoryError("EnsureEmbedding", types.ErrInvalidInput)
	}
	if record.HasEmbedding() {
		return record, nil
	}
	if e.embedder == nil {
		return nil, types.NewMemoryError("EnsureEmbedding", types.ErrCapabilityUnavailable)
	}

	vec, err := e.embedder.Embed(ctx, record.Content)
	if err != nil {
		return nil, types.NewMemoryError("EnsureEmbedding", fmt.Errorf("%w: %v", types.ErrEmbeddingFailed, err))
	}
	out := record.Clone()
	out.Embedding = vec
	return out, nil
}

// EnsureEmbeddings applies EnsureEmbedding to every record. Records that fail
// are kept unchanged and their errors are joined into the returned error; nil
// records are dropped.
func (e *Engine) EnsureEmbeddings(ctx context.Context, records []*types.MemoryRecord) ([]*types.MemoryRecord, error) {
	out := make([]*types.MemoryRecord, 0, len(records))
	var errs []error
	for _, r := range records {
		if r == nil {
			continue
		}
		updated, err := e.EnsureEmbedding(ctx, r)
		if err != nil {
			if errors.Is(err, types.ErrCapabilityUnavailable) {
				return nil, err
			}
			e.logger.Warn("embedding backfill failed", "memory_id", r.ID, "error", err)
			errs = append(errs, err)
			out = append(out, r)
			continue
		}
		out = append(out, updated)
	}
	return out, errors.Join(errs...)
}

// ClearCache empties the query-result and concept caches.
func (e *Engine) ClearCache() {
	e.queryCache.Purge()
	e.conceptCache.Purge()
}

// Stats reports cache occupancy.
func (e *Engine) Stats() Stats {
	return Stats{
		QueryCacheSize:   e.queryCache.Len(),
		ConceptCacheSize: e.conceptCache.Len(),
	}
}

func (e *Engine) limit(q *types.SearchQuery) int {
	if q.Limit > 0 {
		return q.Limit
	}
	return e.defaultLimit
}

func (e *Engine) depth(q *types.SearchQuery) int {
	if q.ConceptualDepth > 0 {
		return q.ConceptualDepth
	}
	return e.defaultDepth
}

func (e *Engine) weightsFor(q *types.SearchQuery) types.BoostFactors {
	if q.Boost == nil {
		return e.weights
	}
	return mergeWeights(*q.Boost, e.weights)
}

// recencyScore is max(0, 1 - age_days/30).
func (e *Engine) recencyScore(r *types.MemoryRecord) float64 {
	score := 1 - r.AgeDays(e.now())/30.0
	if score < 0 {
		return 0
	}
	return score
}

func mergeWeights(w, def types.BoostFactors) types.BoostFactors {
	if w.SemanticWeight == 0 {
		w.SemanticWeight = def.SemanticWeight
	}
	if w.KeywordWeight == 0 {
		w.KeywordWeight = def.KeywordWeight
	}
	if w.ImportanceWeight == 0 {
		w.ImportanceWeight = def.ImportanceWeight
	}
	if w.RecencyWeight == 0 {
		w.RecencyWeight = def.RecencyWeight
	}
	return w
}

func paginate(results []types.SearchResult, offset, limit int) []types.SearchResult {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(results) {
		return []types.SearchResult{}
	}
	end := offset + limit
	if end > len(results) {
		end = len(results)
	}
	page := make([]types.SearchResult, end-offset)
	copy(page, results[offset:end])
	return page
}

func floatPtr(v float64) *float64 {
	return &v
}
