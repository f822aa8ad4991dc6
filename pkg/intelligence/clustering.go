package intelligence

import (
	"context"
	"math"
	"sort"

	"github.com/oceanbase/powermem-recall/pkg/concept"
	"github.com/oceanbase/powermem-recall/pkg/embedder"
	"github.com/oceanbase/powermem-recall/pkg/types"
)

// maxClusterConcepts caps MemoryCluster.Concepts.
const maxClusterConcepts = 5

// Cluster groups records with the policy's clustering strategy:
//   - temporal: ordered by creation time, a new cluster starts whenever the
//     gap to the previous record exceeds the temporal gap (1 hour)
//   - embedding: K-means over the records that carry embeddings, with
//     k = min(max clusters, n/3), Euclidean distance, at most 10 iterations
//     and convergence when no centroid moves 0.01 or more
//   - concept: one group per tag shared by at least two records
//
// Clusters with fewer than two members are discarded. Malformed records are
// skipped. A nil policy uses the manager's default policy.
func (m *Manager) Cluster(records []*types.MemoryRecord, policy *types.PolicyConfig) []types.MemoryCluster {
	p := m.resolve(policy)

	valid := make([]*types.MemoryRecord, 0, len(records))
	for _, r := range records {
		if r != nil && m.usable("Cluster", r) {
			valid = append(valid, r)
		}
	}

	var groups [][]*types.MemoryRecord
	var centroids [][]float64
	strategy := p.ClusteringStrategy
	switch strategy {
	case types.ClusterEmbedding:
		groups, centroids = m.kmeansGroups(valid, p)
	case types.ClusterConcept:
		groups = conceptGroups(valid)
	case types.ClusterTemporal:
		groups = temporalGroups(valid, p)
	default:
		m.logger.Warn("unknown clustering strategy, using temporal", "strategy", strategy)
		strategy = types.ClusterTemporal
		groups = temporalGroups(valid, p)
	}

	clusters := make([]types.MemoryCluster, 0, len(groups))
	for i, members := range groups {
		if len(members) < 2 {
			continue
		}
		var centroid []float64
		if centroids != nil {
			centroid = centroids[i]
		}
		clusters = append(clusters, m.buildCluster(strategy, members, centroid))
	}
	return clusters
}

func temporalGroups(records []*types.MemoryRecord, p *types.PolicyConfig) [][]*types.MemoryRecord {
	sorted := make([]*types.MemoryRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})

	var groups [][]*types.MemoryRecord
	var current []*types.MemoryRecord
	for i, r := range sorted {
		if i > 0 && r.CreatedAt.Sub(sorted[i-1].CreatedAt) > p.TemporalGap {
			groups = append(groups, current)
			current = nil
		}
		current = append(current, r)
	}
	if len(current) > 0 {
		groups = append(groups, current)
	}
	return groups
}

func conceptGroups(records []*types.MemoryRecord) [][]*types.MemoryRecord {
	byTag := make(map[string][]*types.MemoryRecord)
	var order []string
	for _, r := range records {
		seen := make(map[string]struct{}, len(r.Tags))
		for _, tag := range r.Tags {
			if tag == "" {
				continue
			}
			if _, dup := seen[tag]; dup {
				continue
			}
			seen[tag] = struct{}{}
			if _, ok := byTag[tag]; !ok {
				order = append(order, tag)
			}
			byTag[tag] = append(byTag[tag], r)
		}
	}

	groups := make([][]*types.MemoryRecord, 0, len(order))
	for _, tag := range order {
		groups = append(groups, byTag[tag])
	}
	return groups
}

// kmeansGroups runs K-means with evenly spaced initial centroids so the
// result is deterministic for a given input order. Records whose embedding
// dimension differs from the first embedded record are skipped.
func (m *Manager) kmeansGroups(records []*types.MemoryRecord, p *types.PolicyConfig) ([][]*types.MemoryRecord, [][]float64) {
	var points []*types.MemoryRecord
	dims := 0
	for _, r := range records {
		if !r.HasEmbedding() {
			continue
		}
		if dims == 0 {
			dims = len(r.Embedding)
		}
		if len(r.Embedding) != dims {
			m.logger.Warn("skipping record with mismatched embedding dimension", "memory_id", r.ID, "dims", len(r.Embedding), "expected", dims)
			continue
		}
		points = append(points, r)
	}

	n := len(points)
	k := n / 3
	if k > p.MaxClusters {
		k = p.MaxClusters
	}
	if k < 1 {
		return nil, nil
	}

	centroids := make([][]float64, k)
	for i := range centroids {
		centroids[i] = append([]float64(nil), points[i*n/k].Embedding...)
	}

	assignment := make([]int, n)
	for iter := 0; iter < p.KMeansIterations; iter++ {
		for i, pt := range points {
			assignment[i] = nearest(pt.Embedding, centroids)
		}

		next := make([][]float64, k)
		counts := make([]int, k)
		for c := range next {
			next[c] = make([]float64, dims)
		}
		for i, pt := range points {
			c := assignment[i]
			counts[c]++
			for d, v := range pt.Embedding {
				next[c][d] += v
			}
		}

		movement := 0.0
		for c := range next {
			if counts[c] == 0 {
				next[c] = centroids[c]
				continue
			}
			for d := range next[c] {
				next[c][d] /= float64(counts[c])
			}
			if shift := embedder.EuclideanDistance(centroids[c], next[c]); shift > movement {
				movement = shift
			}
		}
		centroids = next

		if movement < p.ConvergenceThreshold {
			break
		}
	}

	// Final assignment against the settled centroids.
	groups := make([][]*types.MemoryRecord, k)
	for _, pt := range points {
		c := nearest(pt.Embedding, centroids)
		groups[c] = append(groups[c], pt)
	}
	return groups, centroids
}

func nearest(v []float64, centroids [][]float64) int {
	best, bestDist := 0, math.Inf(1)
	for c, centroid := range centroids {
		if d := embedder.EuclideanDistance(v, centroid); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}

func (m *Manager) buildCluster(strategy types.ClusterStrategy, members []*types.MemoryRecord, centroid []float64) types.MemoryCluster {
	span := types.TimeSpan{Start: members[0].CreatedAt, End: members[0].CreatedAt}
	for _, r := range members[1:] {
		if r.CreatedAt.Before(span.Start) {
			span.Start = r.CreatedAt
		}
		if r.CreatedAt.After(span.End) {
			span.End = r.CreatedAt
		}
	}

	return types.MemoryCluster{
		ID:        m.newID("cluster"),
		Strategy:  strategy,
		Memories:  members,
		Centroid:  centroid,
		Cohesion:  Cohesion(members),
		TimeRange: span,
		Concepts:  m.clusterConcepts(members),
	}
}

// Cohesion is the mean pairwise Jaccard similarity of the members' content
// token sets. A single member is perfectly cohesive.
func Cohesion(members []*types.MemoryRecord) float64 {
	if len(members) < 2 {
		return 1
	}
	sets := make([]map[string]struct{}, len(members))
	for i, r := range members {
		sets[i] = tokenSet(r.Content)
	}

	var sum float64
	pairs := 0
	for i := 0; i < len(sets); i++ {
		for j := i + 1; j < len(sets); j++ {
			sum += jaccard(sets[i], sets[j])
			pairs++
		}
	}
	return sum / float64(pairs)
}

func tokenSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range concept.Words(text) {
		if len(w) > 2 {
			set[w] = struct{}{}
		}
	}
	return set
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	inter := 0
	for w := range a {
		if _, ok := b[w]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

// clusterConcepts returns the tags shared by at least two members, most
// frequent first; when there are none, the most frequent content concepts.
func (m *Manager) clusterConcepts(members []*types.MemoryRecord) []string {
	tagCounts := make(map[string]int)
	for _, r := range members {
		seen := make(map[string]struct{}, len(r.Tags))
		for _, t := range r.Tags {
			if _, dup := seen[t]; dup || t == "" {
				continue
			}
			seen[t] = struct{}{}
			tagCounts[t]++
		}
	}
	if shared := topCounts(tagCounts, 2); len(shared) > 0 {
		return shared
	}

	wordCounts := make(map[string]int)
	for _, r := range members {
		words, err := m.rules.Extract(context.Background(), r.Content)
		if err != nil {
			continue
		}
		for _, w := range words {
			wordCounts[w]++
		}
	}
	return topCounts(wordCounts, 1)
}

func topCounts(counts map[string]int, atLeast int) []string {
	keys := make([]string, 0, len(counts))
	for k, c := range counts {
		if c >= atLeast {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})
	if len(keys) > maxClusterConcepts {
		keys = keys[:maxClusterConcepts]
	}
	return keys
}
