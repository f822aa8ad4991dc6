package intelligence_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oceanbase/powermem-recall/pkg/intelligence"
	"github.com/oceanbase/powermem-recall/pkg/types"
)

func at(id, content string, offset time.Duration, tags ...string) *types.MemoryRecord {
	base := testNow.Add(-48 * time.Hour)
	return &types.MemoryRecord{
		ID:         id,
		AgentID:    "agent_001",
		Type:       types.TypeObservation,
		Content:    content,
		Importance: 0.5,
		CreatedAt:  base.Add(offset),
		Tags:       tags,
		Duration:   types.DurationShortTerm,
	}
}

func clusterIDs(c types.MemoryCluster) []string {
	return c.MemoryIDs()
}

func TestTemporalClustering(t *testing.T) {
	m := newManager(t, nil)
	records := []*types.MemoryRecord{
		at("r3", "evening run", 2*time.Hour),
		at("r1", "morning coffee", 0),
		at("r2", "coffee refill", 30*time.Minute),
	}

	clusters := m.Cluster(records, nil)
	require.Len(t, clusters, 1)

	c := clusters[0]
	assert.Equal(t, types.ClusterTemporal, c.Strategy)
	assert.Equal(t, []string{"r1", "r2"}, clusterIDs(c))
	assert.Equal(t, records[1].CreatedAt, c.TimeRange.Start)
	assert.Equal(t, records[2].CreatedAt, c.TimeRange.End)
	assert.NotEmpty(t, c.ID)
	assert.Contains(t, c.Concepts, "coffee")
	assert.InDelta(t, 1.0/3.0, c.Cohesion, 1e-9)
}

func TestKMeansClustering(t *testing.T) {
	m := newManager(t, nil)
	points := [][]float64{{0, 0}, {0, 1}, {1, 0}, {10, 10}, {10, 11}, {11, 10}}
	records := make([]*types.MemoryRecord, 0, len(points)+1)
	for i, p := range points {
		r := at(fmt.Sprintf("p%d", i), "point", time.Duration(i)*24*time.Hour)
		r.Embedding = p
		records = append(records, r)
	}
	records = append(records, at("noembed", "no vector", 0))

	policy := &types.PolicyConfig{ClusteringStrategy: types.ClusterEmbedding}
	clusters := m.Cluster(records, policy)
	require.Len(t, clusters, 2)

	assert.Equal(t, []string{"p0", "p1", "p2"}, clusterIDs(clusters[0]))
	assert.Equal(t, []string{"p3", "p4", "p5"}, clusterIDs(clusters[1]))
	require.Len(t, clusters[0].Centroid, 2)
	assert.InDelta(t, 1.0/3.0, clusters[0].Centroid[0], 1e-9)
	assert.InDelta(t, 31.0/3.0, clusters[1].Centroid[1], 1e-9)
	for _, c := range clusters {
		assert.Equal(t, types.ClusterEmbedding, c.Strategy)
	}

	summary, err := m.Summarize(context.Background(), &clusters[0], policy)
	require.NoError(t, err)
	assert.Equal(t, clusters[0].Centroid, summary.Embedding)
}

func TestOnlyEmbeddingClustersHaveCentroids(t *testing.T) {
	m := newManager(t, nil)
	a := at("a", "first note", 0, "shared")
	a.Embedding = []float64{1, 0}
	b := at("b", "second note", 10*time.Minute, "shared")
	b.Embedding = []float64{0, 1}

	for _, strategy := range []types.ClusterStrategy{types.ClusterTemporal, types.ClusterConcept} {
		clusters := m.Cluster([]*types.MemoryRecord{a, b}, &types.PolicyConfig{ClusteringStrategy: strategy})
		require.Len(t, clusters, 1, "strategy=%s", strategy)
		assert.Empty(t, clusters[0].Centroid, "strategy=%s", strategy)

		summary, err := m.Summarize(context.Background(), &clusters[0], nil)
		require.NoError(t, err)
		assert.Empty(t, summary.Embedding, "strategy=%s", strategy)
	}
}

func TestKMeansTooFewRecords(t *testing.T) {
	m := newManager(t, nil)
	a := at("a", "x", 0)
	a.Embedding = []float64{0, 0}
	b := at("b", "y", 0)
	b.Embedding = []float64{1, 1}

	clusters := m.Cluster([]*types.MemoryRecord{a, b}, &types.PolicyConfig{ClusteringStrategy: types.ClusterEmbedding})
	assert.Empty(t, clusters)
}

func TestConceptClustering(t *testing.T) {
	m := newManager(t, nil)
	records := []*types.MemoryRecord{
		at("r1", "wrote a go service", 0, "go", "work"),
		at("r2", "go generics talk", time.Hour, "go"),
		at("r3", "rust borrow checker", 2*time.Hour, "rust"),
		at("r4", "quarterly planning", 3*time.Hour, "work"),
	}

	clusters := m.Cluster(records, &types.PolicyConfig{ClusteringStrategy: types.ClusterConcept})
	require.Len(t, clusters, 2)
	assert.Equal(t, []string{"r1", "r2"}, clusterIDs(clusters[0]))
	assert.Equal(t, []string{"go"}, clusters[0].Concepts)
	assert.Equal(t, []string{"r1", "r4"}, clusterIDs(clusters[1]))
	assert.Equal(t, []string{"work"}, clusters[1].Concepts)
}

func TestClustersHaveAtLeastTwoMembers(t *testing.T) {
	m := newManager(t, nil)
	strategies := []types.ClusterStrategy{types.ClusterTemporal, types.ClusterEmbedding, types.ClusterConcept}
	tags := []string{"a", "b", "c", "d"}

	for n := 0; n <= 12; n++ {
		records := make([]*types.MemoryRecord, n)
		for i := range records {
			r := at(fmt.Sprintf("r%d", i), fmt.Sprintf("item %d", i), time.Duration(i*i)*17*time.Minute, tags[(i*7)%len(tags)])
			r.Embedding = []float64{float64(i % 3), float64(i * i % 5)}
			records[i] = r
		}
		for _, s := range strategies {
			for _, c := range m.Cluster(records, &types.PolicyConfig{ClusteringStrategy: s}) {
				assert.GreaterOrEqual(t, len(c.Memories), 2, "n=%d strategy=%s", n, s)
			}
		}
	}
}

func TestCohesion(t *testing.T) {
	assert.Equal(t, 1.0, intelligence.Cohesion([]*types.MemoryRecord{at("a", "x", 0)}))
	assert.InDelta(t, 1.0, intelligence.Cohesion([]*types.MemoryRecord{
		at("a", "same words here", 0),
		at("b", "here same words", 0),
	}), 1e-9)
	assert.Equal(t, 0.0, intelligence.Cohesion([]*types.MemoryRecord{
		at("a", "apples", 0),
		at("b", "oranges", 0),
	}))
}

func TestSummarizeRoundTrip(t *testing.T) {
	m := newManager(t, nil)
	records := []*types.MemoryRecord{
		at("r1", "Kicked off the migration project with the platform team", 0, "migration"),
		at("r2", "Migration runbook drafted and shared with the platform team", 20*time.Minute, "migration"),
		at("r3", "Dry run of the migration finished without errors", 40*time.Minute, "migration"),
	}
	records[1].Importance = 0.9
	records[0].Embedding = []float64{1, 0}
	records[2].Embedding = []float64{0, 1}

	clusters := m.Cluster(records, nil)
	require.Len(t, clusters, 1)
	assert.Empty(t, clusters[0].Centroid)

	summary, err := m.Summarize(context.Background(), &clusters[0], nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"r1", "r2", "r3"}, summary.OriginalMemoryIDs)
	assert.Equal(t, summary.OriginalMemoryIDs, summary.Metadata[intelligence.MetaOriginalIDs])
	assert.Equal(t, 3, summary.Metadata[intelligence.MetaOriginalCount])
	assert.Equal(t, types.SummarizeTemporal, summary.Method)
	assert.Equal(t, 0.9, summary.Importance)
	assert.Equal(t, types.TypeReflection, summary.Type)
	assert.Equal(t, types.DurationLongTerm, summary.Duration)
	assert.Equal(t, []string{"summarized", "temporal", "auto-generated"}, summary.Tags)
	assert.Empty(t, summary.Embedding)
	assert.True(t, strings.HasPrefix(summary.Content, "Between "))
	assert.True(t, strings.HasPrefix(summary.ID, "summary_"))

	total := 0
	for _, r := range records {
		total += utf8.RuneCountInString(r.Content)
	}
	assert.InDelta(t, float64(utf8.RuneCountInString(summary.Content))/float64(total), summary.CompressionRatio, 1e-12)

	// Originals are untouched.
	assert.Equal(t, 0.5, records[0].Importance)
	assert.Len(t, records, 3)
}

func TestSummarizeFramings(t *testing.T) {
	m := newManager(t, nil)
	cluster := &types.MemoryCluster{
		ID:       "c1",
		Strategy: types.ClusterConcept,
		Memories: []*types.MemoryRecord{at("a", "one", 0), at("b", "two", time.Minute)},
		Concepts: []string{"billing", "invoices", "refunds", "taxes"},
	}

	summary, err := m.Summarize(context.Background(), cluster, nil)
	require.NoError(t, err)
	assert.Equal(t, types.SummarizeConcept, summary.Method)
	assert.Contains(t, summary.Content, "billing, invoices, refunds")
	assert.NotContains(t, summary.Content, "taxes")

	summary, err = m.Summarize(context.Background(), cluster, &types.PolicyConfig{SummarizationMethod: types.SummarizeClustering})
	require.NoError(t, err)
	assert.Equal(t, types.SummarizeClustering, summary.Method)
	assert.True(t, strings.HasPrefix(summary.Content, "2 memories about billing"))

	_, err = m.Summarize(context.Background(), &types.MemoryCluster{}, nil)
	assert.True(t, errors.Is(err, types.ErrInvalidInput))
}

func TestSummarizeWithLLM(t *testing.T) {
	stub := &stubLLM{response: "```json\n{\"summary\": \"The team prepared the release.\"}\n```"}
	m := newManager(t, &intelligence.Config{LLM: stub})
	cluster := &types.MemoryCluster{
		Strategy: types.ClusterTemporal,
		Memories: []*types.MemoryRecord{at("a", "release notes", 0), at("b", "release tagged", time.Minute)},
	}
	policy := &types.PolicyConfig{UseLLMSummaries: true}

	summary, err := m.Summarize(context.Background(), cluster, policy)
	require.NoError(t, err)
	assert.Equal(t, "The team prepared the release.", summary.Content)
	assert.Equal(t, 1, stub.calls)

	stub.err = errors.New("rate limited")
	summary, err = m.Summarize(context.Background(), cluster, policy)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(summary.Content, "Between "))

	// Without the policy flag the LLM is not consulted.
	stub.err = nil
	_, err = m.Summarize(context.Background(), cluster, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, stub.calls)
}
