package search_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oceanbase/powermem-recall/pkg/embedder/hash"
	"github.com/oceanbase/powermem-recall/pkg/types"
)

func TestRelationalSearchTraversal(t *testing.T) {
	engine := newEngine(t, nil)
	records := []*types.MemoryRecord{
		record("a", "database outage at night", 0),
		record("b", "postmortem written", 0),
		record("c", "action items assigned", 0),
		record("e", "items closed", 0),
		record("d", "unrelated lunch", 0),
	}
	rels := []types.MemoryRelationship{
		{SourceID: "a", TargetID: "b", Type: "causes", Strength: 0.8},
		{SourceID: "b", TargetID: "c", Type: "follows", Strength: 0.5},
		{SourceID: "c", TargetID: "e", Type: "follows", Strength: 1.0},
		{SourceID: "d", TargetID: "a", Type: "precedes", Strength: 1.0},
	}

	results, err := engine.Search(context.Background(), &types.SearchQuery{
		Type:  types.QueryRelational,
		Query: "outage",
	}, records, rels)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "c"}, ids(results))

	assert.InDelta(t, 1.0, results[0].Score, 1e-9)
	assert.Equal(t, []string{"direct"}, results[0].RelationshipPaths)
	assert.InDelta(t, 0.4, results[1].Score, 1e-9)
	assert.Equal(t, []string{"a -[causes]-> b"}, results[1].RelationshipPaths)
	assert.InDelta(t, 0.5*0.4/3, results[2].Score, 1e-9)
	assert.Equal(t, []string{"a -[causes]-> b -[follows]-> c"}, results[2].RelationshipPaths)

	deeper, err := engine.Search(context.Background(), &types.SearchQuery{
		Type:            types.QueryRelational,
		Query:           "outage",
		ConceptualDepth: 3,
	}, records, rels)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "e"}, ids(deeper))
}

func TestRelationalSearchFirstPathWins(t *testing.T) {
	engine := newEngine(t, nil)
	records := []*types.MemoryRecord{
		record("a", "outage", 0),
		record("b", "postmortem", 0),
		record("c", "remediation", 0),
	}
	rels := []types.MemoryRelationship{
		{SourceID: "a", TargetID: "b", Type: "causes", Strength: 1.0},
		{SourceID: "a", TargetID: "c", Type: "mentions", Strength: 0.1},
		{SourceID: "b", TargetID: "c", Type: "causes", Strength: 1.0},
	}

	results, err := engine.Search(context.Background(), &types.SearchQuery{
		Type:  types.QueryRelational,
		Query: "outage",
	}, records, rels)
	require.NoError(t, err)
	require.Len(t, results, 3)

	var c types.SearchResult
	for _, r := range results {
		if r.Memory.ID == "c" {
			c = r
		}
	}
	assert.InDelta(t, 0.05, c.Score, 1e-9)
	assert.Equal(t, []string{"a -[mentions]-> c"}, c.RelationshipPaths)
}

func TestRelationalSearchFallsBackToSemantic(t *testing.T) {
	engine := newEngine(t, nil)
	_, err := engine.Search(context.Background(), &types.SearchQuery{
		Type:  types.QueryRelational,
		Query: "outage",
	}, []*types.MemoryRecord{record("a", "outage", 0)}, nil)
	assert.True(t, errors.Is(err, types.ErrCapabilityUnavailable))

	engine = newEngine(t, hash.New(nil))
	results, err := engine.Search(context.Background(), &types.SearchQuery{
		Type:  types.QueryRelational,
		Query: "outage",
	}, []*types.MemoryRecord{record("a", "outage", 0)}, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.NotNil(t, results[0].SemanticScore)
	assert.Empty(t, results[0].RelationshipPaths)
}

func TestTemporalSearch(t *testing.T) {
	engine := newEngine(t, nil)
	records := []*types.MemoryRecord{
		record("ancient", "ancient history", 40*24*time.Hour),
		record("now", "coffee", 0),
		record("rainy", "walk in the rain", 10*24*time.Hour),
		record("evening", "evening walk", 30*time.Minute),
	}

	results, err := engine.Search(context.Background(), &types.SearchQuery{
		Type:  types.QueryTemporal,
		Query: "walk",
	}, records, nil)
	require.NoError(t, err)
	require.Equal(t, []string{"evening", "rainy", "now"}, ids(results))

	eveningRecency := 1 - (0.5/24)/30
	assert.InDelta(t, 0.5*eveningRecency+0.5+0.3/3, results[0].Score, 1e-9)
	assert.InDelta(t, 0.5*(1-10.0/30)+0.5, results[1].Score, 1e-9)
	assert.InDelta(t, 0.5+0.3/3, results[2].Score, 1e-9)
}

func TestConceptualSearch(t *testing.T) {
	engine := newEngine(t, nil)
	records := []*types.MemoryRecord{
		record("cat", "my cat sleeps all day", 0),
		record("dog", "dogs bark", 0),
	}

	plain, err := engine.Search(context.Background(), &types.SearchQuery{
		Type:  types.QueryConceptual,
		Query: "cats",
	}, records, nil)
	require.NoError(t, err)
	require.Len(t, plain, 1)
	assert.Equal(t, "cat", plain[0].Memory.ID)
	assert.InDelta(t, 0.75, plain[0].Score, 1e-9)
	require.Len(t, plain[0].ConceptMatches, 1)
	assert.Equal(t, types.ConceptMatch{QueryConcept: "cats", RecordConcept: "cat", Similarity: 0.75}, plain[0].ConceptMatches[0])

	expanded, err := engine.Search(context.Background(), &types.SearchQuery{
		Type:        types.QueryConceptual,
		Query:       "cats",
		ExpandQuery: true,
	}, records, nil)
	require.NoError(t, err)
	require.Len(t, expanded, 1)
	assert.InDelta(t, (0.75+1.0)/2, expanded[0].Score, 1e-9)

	assert.Equal(t, 1, engine.Stats().ConceptCacheSize)
}

func TestMultiModalSearchMergesStrategies(t *testing.T) {
	engine := newEngine(t, hash.New(nil))
	a := record("a", "cat food", 0)
	a.Embedding = []float64{1, 0}
	b := record("b", "dog toy", 0)
	b.Embedding = []float64{0, 1}
	c := record("c", "kitten", 0)
	c.Embedding = []float64{0.6, 0.8}
	records := []*types.MemoryRecord{a, b, c}

	query := &types.SearchQuery{
		Type:      types.QueryMultiModal,
		Query:     "cat",
		Embedding: []float64{1, 0},
	}

	results, err := engine.Search(context.Background(), query, records, nil)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "c"}, ids(results))
	assert.InDelta(t, 1.0, results[0].Score, 1e-9)
	assert.Len(t, results[0].Explanations, 3)
	assert.InDelta(t, 0.6, results[1].Score, 1e-9)

	rels := []types.MemoryRelationship{{SourceID: "a", TargetID: "b", Type: "likes", Strength: 1}}
	results, err = engine.Search(context.Background(), query, records, rels)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "c", "b"}, ids(results))
	assert.InDelta(t, 1.0, results[0].Score, 1e-9)
	assert.Contains(t, results[0].RelationshipPaths, "direct")
	assert.InDelta(t, 0.5, results[2].Score, 1e-9)
	assert.Equal(t, []string{"a -[likes]-> b"}, results[2].RelationshipPaths)
}
