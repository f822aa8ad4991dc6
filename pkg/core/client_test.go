package core_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oceanbase/powermem-recall/pkg/core"
	"github.com/oceanbase/powermem-recall/pkg/intelligence"
	"github.com/oceanbase/powermem-recall/pkg/types"
)

func newClient(t *testing.T, mutate func(cfg *core.Config)) *core.Client {
	t.Helper()
	cfg := core.DefaultConfig()
	cfg.AgentID = "agent_1"
	cfg.Logging.Level = "error"
	if mutate != nil {
		mutate(cfg)
	}
	client, err := core.NewClient(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestClient_AddAndSearch(t *testing.T) {
	client := newClient(t, nil)
	ctx := context.Background()

	dog, err := client.Add(ctx, "Walked the dog in the park", core.WithRecordTags("pets"), core.WithImportance(0.7))
	require.NoError(t, err)
	assert.NotEmpty(t, dog.ID)
	assert.Equal(t, "agent_1", dog.AgentID)
	assert.True(t, dog.HasEmbedding())
	assert.Equal(t, types.DurationShortTerm, dog.Duration)

	_, err = client.Add(ctx, "Bought fresh coffee beans")
	require.NoError(t, err)

	results, err := client.Search(ctx, "dog park")
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, dog.ID, results[0].Memory.ID)

	keyword, err := client.Search(ctx, "coffee", core.WithQueryType(types.QueryKeyword))
	require.NoError(t, err)
	require.Len(t, keyword, 1)
	assert.Contains(t, keyword[0].Memory.Content, "coffee")

	tagged, err := client.Search(ctx, "anything", core.WithQueryType(types.QueryKeyword), core.WithTags("pets"))
	require.NoError(t, err)
	assert.Empty(t, tagged)
}

func TestClient_SearchTracksAccess(t *testing.T) {
	client := newClient(t, nil)
	ctx := context.Background()

	_, err := client.Add(ctx, "Morning espresso at the corner cafe")
	require.NoError(t, err)

	results, err := client.Search(ctx, "espresso", core.WithQueryType(types.QueryKeyword))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 1, client.Stats().Management.TotalAccesses)

	quiet := newClient(t, func(cfg *core.Config) { cfg.Search.TrackAccess = false })
	_, err = quiet.Add(ctx, "Morning espresso at the corner cafe")
	require.NoError(t, err)
	_, err = quiet.Search(ctx, "espresso", core.WithQueryType(types.QueryKeyword))
	require.NoError(t, err)
	assert.Zero(t, quiet.Stats().Management.TotalAccesses)
}

func TestClient_InvalidInput(t *testing.T) {
	client := newClient(t, nil)
	ctx := context.Background()

	_, err := client.Add(ctx, "")
	assert.ErrorIs(t, err, core.ErrInvalidInput)

	_, err = client.Add(ctx, "too important", core.WithImportance(1.5))
	assert.ErrorIs(t, err, core.ErrInvalidInput)

	_, err = client.Get("missing")
	assert.ErrorIs(t, err, core.ErrNotFound)

	err = client.Relate(ctx, types.MemoryRelationship{SourceID: "x", TargetID: "y"})
	assert.ErrorIs(t, err, core.ErrNotFound)

	_, err = client.Search(ctx, "x", core.WithQueryType("fuzzy"))
	assert.ErrorIs(t, err, core.ErrUnsupportedQueryType)

	assert.ErrorIs(t, client.Load(ctx), core.ErrInvalidConfig)
	assert.ErrorIs(t, client.Persist(ctx), core.ErrInvalidConfig)
}

func TestClient_RelationalSearch(t *testing.T) {
	client := newClient(t, nil)
	ctx := context.Background()

	rain, err := client.Add(ctx, "Heavy rain all afternoon", core.WithID("rain"))
	require.NoError(t, err)
	_, err = client.Add(ctx, "The streets flooded downtown", core.WithID("flood"))
	require.NoError(t, err)

	require.NoError(t, client.Relate(ctx, types.MemoryRelationship{
		SourceID: rain.ID, TargetID: "flood", Type: "causes", Strength: 0.8, Confidence: 1,
	}))
	assert.Len(t, client.Relationships(), 1)

	results, err := client.Search(ctx, "heavy rain", core.WithQueryType(types.QueryRelational))
	require.NoError(t, err)

	var paths []string
	for _, r := range results {
		if r.Memory.ID == "flood" {
			paths = r.RelationshipPaths
		}
	}
	assert.Equal(t, []string{"rain -[causes]-> flood"}, paths)

	n, err := client.Delete(ctx, "rain")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Empty(t, client.Relationships())
}

func TestClient_Maintain(t *testing.T) {
	client := newClient(t, nil)
	ctx := context.Background()

	_, err := client.Add(ctx, "Stand-up meeting about the release", core.WithID("m1"))
	require.NoError(t, err)
	_, err = client.Add(ctx, "Release checklist reviewed", core.WithID("m2"))
	require.NoError(t, err)
	_, err = client.Add(ctx, "Temporary parking note",
		core.WithID("old"),
		core.WithCreatedAt(time.Now().Add(-48*time.Hour)),
		core.WithTTL(time.Hour),
	)
	require.NoError(t, err)

	report, err := client.Maintain(ctx, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Expired)
	assert.Contains(t, report.RemovedIDs, "old")
	require.Len(t, report.Summaries, 1)
	assert.ElementsMatch(t, []string{"m1", "m2"}, report.Summaries[0].OriginalMemoryIDs)

	records := client.Records()
	assert.Len(t, records, 3)
	var summaries int
	for _, r := range records {
		assert.NotEqual(t, "old", r.ID)
		if r.HasTag(intelligence.TagSummarized) {
			summaries++
		}
	}
	assert.Equal(t, 1, summaries)

	for _, r := range records {
		assert.True(t, r.HasEmbedding(), "record %s", r.ID)
	}

	// A second sweep finds nothing new to summarize.
	again, err := client.Maintain(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, again.Summaries)
	assert.Len(t, client.Records(), 3)
}

func TestClient_Persistence(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "recall.db")
	withSQLite := func(cfg *core.Config) {
		cfg.Store = core.StoreConfig{
			Provider: core.StoreSQLite,
			SQLite:   core.SQLiteConfig{Path: dbPath},
		}
	}
	ctx := context.Background()

	first, err := core.NewClient(ctx, configWith(withSQLite))
	require.NoError(t, err)
	_, err = first.Add(ctx, "Planted tomatoes in the garden", core.WithID("g1"))
	require.NoError(t, err)
	_, err = first.Add(ctx, "Watered the tomatoes", core.WithID("g2"))
	require.NoError(t, err)
	require.NoError(t, first.Relate(ctx, types.MemoryRelationship{SourceID: "g1", TargetID: "g2", Type: "follows", Strength: 1}))
	assert.True(t, first.Stats().Persistent)
	require.NoError(t, first.Close())

	second := newClient(t, withSQLite)
	stats := second.Stats()
	assert.Equal(t, 2, stats.Records)
	assert.Equal(t, 1, stats.Relationships)

	got, err := second.Get("g1")
	require.NoError(t, err)
	assert.True(t, got.HasEmbedding())

	_, err = second.Delete(ctx, "g2")
	require.NoError(t, err)

	third := newClient(t, withSQLite)
	assert.Equal(t, 1, third.Stats().Records)
	assert.Zero(t, third.Stats().Relationships)

	// Another agent sees nothing.
	other := newClient(t, func(cfg *core.Config) {
		withSQLite(cfg)
		cfg.AgentID = "agent_2"
	})
	assert.Zero(t, other.Stats().Records)
}

func TestClient_EmbeddingCache(t *testing.T) {
	client := newClient(t, func(cfg *core.Config) { cfg.Embedder.CacheSize = 100 })
	ctx := context.Background()

	_, err := client.Add(ctx, "Read a novel before bed")
	require.NoError(t, err)
	results, err := client.Search(ctx, "novel", core.WithQueryType(types.QuerySemantic))
	require.NoError(t, err)
	assert.NotEmpty(t, results)

	client.ClearCaches()
	assert.Zero(t, client.Stats().Search.QueryCacheSize)
}

func configWith(mutate func(cfg *core.Config)) *core.Config {
	cfg := core.DefaultConfig()
	cfg.AgentID = "agent_1"
	cfg.Logging.Level = "error"
	mutate(cfg)
	return cfg
}
