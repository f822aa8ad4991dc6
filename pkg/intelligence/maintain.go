package intelligence

import (
	"context"
	"time"

	"github.com/oceanbase/powermem-recall/pkg/types"
)

// MaintenanceReport is the outcome of one maintenance sweep.
type MaintenanceReport struct {
	// Records is the new snapshot: surviving records followed by the
	// summary records.
	Records []*types.MemoryRecord `json:"records"`

	// RemovedIDs lists the records dropped by expiry, cleanup and (when the
	// policy asks for it) summarization.
	RemovedIDs []string `json:"removed_ids,omitempty"`

	Priorities []types.MemoryPriority    `json:"priorities,omitempty"`
	Clusters   []types.MemoryCluster     `json:"clusters,omitempty"`
	Summaries  []*types.SummarizedMemory `json:"summaries,omitempty"`

	Expired    int `json:"expired"`
	Decayed    int `json:"decayed"`
	CleanedUp  int `json:"cleaned_up"`
	Summarized int `json:"summarized"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Maintain runs one lifecycle sweep over a snapshot: prune expired records,
// apply decay, prioritize, clean up low-priority records, cluster the
// survivors and summarize each cluster.
//
// Cluster members are kept alongside their summaries unless the policy sets
// RemoveSummarizedOriginals. Summary records, and the members of summaries
// still in the snapshot, are not clustered again. A failed summary is logged and skipped; only
// context cancellation aborts the sweep.
func (m *Manager) Maintain(
	ctx context.Context,
	records []*types.MemoryRecord,
	relationships []types.MemoryRelationship,
	policy *types.PolicyConfig,
) (*MaintenanceReport, error) {
	p := m.resolve(policy)
	report := &MaintenanceReport{StartedAt: m.now()}

	before := make(map[string]struct{}, len(records))
	for _, r := range records {
		if r != nil {
			before[r.ID] = struct{}{}
		}
	}

	live, expired := m.PruneExpired(records, report.StartedAt)
	report.Expired = expired

	decayed := m.ApplyDecay(live, p)
	for i, r := range decayed {
		if r.Importance != live[i].Importance {
			report.Decayed++
			m.priorities.Remove(r.ID)
		}
	}

	report.Priorities = m.Prioritize(decayed, p, relationships)
	kept, cleaned := m.Cleanup(decayed, report.Priorities, p.GetCleanupThreshold())
	report.CleanedUp = cleaned

	if err := ctx.Err(); err != nil {
		return nil, types.NewMemoryError("Maintain", err)
	}

	report.Clusters = m.Cluster(clusterCandidates(kept), p)
	summarized := make(map[string]struct{})
	for i := range report.Clusters {
		summary, err := m.Summarize(ctx, &report.Clusters[i], p)
		if err != nil {
			if ctx.Err() != nil {
				return nil, types.NewMemoryError("Maintain", ctx.Err())
			}
			m.logger.Warn("skipping cluster summary", "cluster_id", report.Clusters[i].ID, "error", err)
			continue
		}
		report.Summaries = append(report.Summaries, summary)
		for _, id := range summary.OriginalMemoryIDs {
			summarized[id] = struct{}{}
		}
	}
	report.Summarized = len(summarized)

	snapshot := make([]*types.MemoryRecord, 0, len(kept)+len(report.Summaries))
	for _, r := range kept {
		if _, done := summarized[r.ID]; done && p.RemoveSummarizedOriginals {
			continue
		}
		snapshot = append(snapshot, r)
	}
	for _, s := range report.Summaries {
		rec := s.MemoryRecord
		snapshot = append(snapshot, &rec)
	}
	report.Records = snapshot

	after := make(map[string]struct{}, len(snapshot))
	for _, r := range snapshot {
		after[r.ID] = struct{}{}
	}
	for _, r := range records {
		if r == nil {
			continue
		}
		if _, ok := after[r.ID]; !ok {
			if _, counted := before[r.ID]; counted {
				report.RemovedIDs = append(report.RemovedIDs, r.ID)
				delete(before, r.ID)
			}
		}
	}

	report.FinishedAt = m.now()
	m.logger.Info("maintenance sweep finished",
		"records", len(snapshot),
		"expired", report.Expired,
		"decayed", report.Decayed,
		"cleaned_up", report.CleanedUp,
		"clusters", len(report.Clusters),
		"summaries", len(report.Summaries),
	)
	return report, nil
}

// clusterCandidates drops summary records and the members of the summaries
// present in records.
func clusterCandidates(records []*types.MemoryRecord) []*types.MemoryRecord {
	covered := make(map[string]struct{})
	for _, r := range records {
		if r == nil || !r.HasTag(TagAutoGenerated) {
			continue
		}
		for _, id := range OriginalIDs(r) {
			covered[id] = struct{}{}
		}
	}

	out := make([]*types.MemoryRecord, 0, len(records))
	for _, r := range records {
		if r == nil || r.HasTag(TagAutoGenerated) {
			continue
		}
		if _, ok := covered[r.ID]; ok {
			continue
		}
		out = append(out, r)
	}
	return out
}

// OriginalIDs reads the member ids of a summary record from its metadata,
// either as written by Summarize or as decoded from JSON by a store.
func OriginalIDs(r *types.MemoryRecord) []string {
	if r == nil {
		return nil
	}
	switch v := r.Metadata[MetaOriginalIDs].(type) {
	case []string:
		return v
	case []interface{}:
		ids := make([]string, 0, len(v))
		for _, item := range v {
			if id, ok := item.(string); ok {
				ids = append(ids, id)
			}
		}
		return ids
	}
	return nil
}
