package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oceanbase/powermem-recall/pkg/storage"
	sqliteStore "github.com/oceanbase/powermem-recall/pkg/storage/sqlite"
	"github.com/oceanbase/powermem-recall/pkg/types"
)

func setupSQLiteTest(t *testing.T) *sqliteStore.Client {
	t.Helper()
	store, err := sqliteStore.NewClient(context.Background(), &sqliteStore.Config{
		DBPath:      filepath.Join(t.TempDir(), "data", "recall.db"),
		TablePrefix: "test_memories",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

var base = time.Date(2024, 5, 1, 9, 30, 0, 123456789, time.UTC)

func TestSQLiteClient_RecordRoundTrip(t *testing.T) {
	store := setupSQLiteTest(t)
	ctx := context.Background()

	expires := base.Add(72 * time.Hour)
	in := &types.MemoryRecord{
		ID:         "mem_1",
		AgentID:    "agent_1",
		Type:       types.TypeExperience,
		Content:    "Walked the dog in the park",
		Embedding:  []float64{0.1, 0.2, 0.3},
		Metadata:   map[string]interface{}{"emotional_valence": 0.5, "source": "chat"},
		Importance: 0.7,
		CreatedAt:  base,
		Tags:       []string{"pets", "outdoors"},
		Duration:   types.DurationEpisodic,
		ExpiresAt:  &expires,
	}
	require.NoError(t, store.SaveRecords(ctx, []*types.MemoryRecord{in}))

	out, err := store.LoadRecords(ctx, nil)
	require.NoError(t, err)
	require.Len(t, out, 1)

	got := out[0]
	assert.Equal(t, in.ID, got.ID)
	assert.Equal(t, in.AgentID, got.AgentID)
	assert.Equal(t, in.Type, got.Type)
	assert.Equal(t, in.Content, got.Content)
	assert.Equal(t, in.Embedding, got.Embedding)
	assert.Equal(t, in.Metadata, got.Metadata)
	assert.InDelta(t, in.Importance, got.Importance, 1e-12)
	assert.True(t, in.CreatedAt.Equal(got.CreatedAt))
	assert.Equal(t, in.Tags, got.Tags)
	assert.Equal(t, in.Duration, got.Duration)
	require.NotNil(t, got.ExpiresAt)
	assert.True(t, expires.Equal(*got.ExpiresAt))
}

func TestSQLiteClient_UpsertReplaces(t *testing.T) {
	store := setupSQLiteTest(t)
	ctx := context.Background()

	r := &types.MemoryRecord{ID: "mem_1", Content: "first", Importance: 0.4, CreatedAt: base}
	require.NoError(t, store.SaveRecords(ctx, []*types.MemoryRecord{r}))

	r.Content = "second"
	r.Importance = 0.2
	require.NoError(t, store.SaveRecords(ctx, []*types.MemoryRecord{r}))

	out, err := store.LoadRecords(ctx, nil)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "second", out[0].Content)
	assert.InDelta(t, 0.2, out[0].Importance, 1e-12)
	assert.Nil(t, out[0].Embedding)
	assert.Nil(t, out[0].ExpiresAt)
}

func TestSQLiteClient_LoadFiltersAndPages(t *testing.T) {
	store := setupSQLiteTest(t)
	ctx := context.Background()

	var records []*types.MemoryRecord
	for i, id := range []string{"a", "b", "c", "d"} {
		agent := "agent_1"
		if id == "d" {
			agent = "agent_2"
		}
		records = append(records, &types.MemoryRecord{
			ID:        id,
			AgentID:   agent,
			Content:   "memory " + id,
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		})
	}
	require.NoError(t, store.SaveRecords(ctx, records))

	all, err := store.LoadRecords(ctx, &storage.LoadOptions{AgentID: "agent_1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, recordIDs(all))

	page, err := store.LoadRecords(ctx, &storage.LoadOptions{Limit: 2, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, recordIDs(page))

	tail, err := store.LoadRecords(ctx, &storage.LoadOptions{Offset: 3})
	require.NoError(t, err)
	assert.Equal(t, []string{"d"}, recordIDs(tail))
}

func TestSQLiteClient_Relationships(t *testing.T) {
	store := setupSQLiteTest(t)
	ctx := context.Background()

	require.NoError(t, store.SaveRecords(ctx, []*types.MemoryRecord{
		{ID: "a", AgentID: "agent_1", Content: "rain", CreatedAt: base},
		{ID: "b", AgentID: "agent_1", Content: "wet streets", CreatedAt: base},
		{ID: "c", AgentID: "agent_2", Content: "umbrella", CreatedAt: base},
	}))
	require.NoError(t, store.SaveRelationships(ctx, []types.MemoryRelationship{
		{SourceID: "a", TargetID: "b", Type: "causes", Strength: 0.8, Confidence: 0.9},
		{SourceID: "c", TargetID: "a", Type: "related_to", Strength: 0.3, Confidence: 0.5},
	}))

	// Upsert on (source, target, type).
	require.NoError(t, store.SaveRelationships(ctx, []types.MemoryRelationship{
		{SourceID: "a", TargetID: "b", Type: "causes", Strength: 0.6, Confidence: 0.9},
	}))

	rels, err := store.LoadRelationships(ctx, nil)
	require.NoError(t, err)
	require.Len(t, rels, 2)
	assert.Equal(t, "a", rels[0].SourceID)
	assert.InDelta(t, 0.6, rels[0].Strength, 1e-12)

	owned, err := store.LoadRelationships(ctx, &storage.LoadOptions{AgentID: "agent_1"})
	require.NoError(t, err)
	require.Len(t, owned, 1)
	assert.Equal(t, "b", owned[0].TargetID)

	err = store.SaveRelationships(ctx, []types.MemoryRelationship{{SourceID: "a"}})
	assert.ErrorIs(t, err, types.ErrStorageOperation)
	assert.ErrorIs(t, err, types.ErrInvalidInput)
}

func TestSQLiteClient_DeleteRemovesEdges(t *testing.T) {
	store := setupSQLiteTest(t)
	ctx := context.Background()

	require.NoError(t, store.SaveRecords(ctx, []*types.MemoryRecord{
		{ID: "a", Content: "one", CreatedAt: base},
		{ID: "b", Content: "two", CreatedAt: base},
	}))
	require.NoError(t, store.SaveRelationships(ctx, []types.MemoryRelationship{
		{SourceID: "a", TargetID: "b", Type: "follows", Strength: 1},
	}))

	n, err := store.DeleteRecords(ctx, []string{"a", "missing"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	records, err := store.LoadRecords(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, recordIDs(records))

	rels, err := store.LoadRelationships(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, rels)
}

func TestSQLiteClient_InvalidConfig(t *testing.T) {
	ctx := context.Background()

	_, err := sqliteStore.NewClient(ctx, nil)
	assert.ErrorIs(t, err, types.ErrInvalidConfig)

	_, err = sqliteStore.NewClient(ctx, &sqliteStore.Config{
		DBPath:      filepath.Join(t.TempDir(), "x.db"),
		TablePrefix: "bad-prefix; DROP",
	})
	assert.ErrorIs(t, err, types.ErrInvalidConfig)
}

func TestSQLiteClient_InMemory(t *testing.T) {
	store, err := sqliteStore.NewClient(context.Background(), &sqliteStore.Config{DBPath: ":memory:"})
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	require.NoError(t, store.SaveRecords(context.Background(), []*types.MemoryRecord{{ID: "x", Content: "y", CreatedAt: base}}))
	out, err := store.LoadRecords(context.Background(), nil)
	require.NoError(t, err)
	assert.Len(t, out, 1)
}

func recordIDs(records []*types.MemoryRecord) []string {
	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}
	return ids
}
