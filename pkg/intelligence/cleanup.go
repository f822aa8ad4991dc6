package intelligence

import (
	"time"

	"github.com/oceanbase/powermem-recall/pkg/types"
)

// PolicyThreshold asks Cleanup for the manager policy's cleanup threshold.
const PolicyThreshold = -1.0

// Cleanup keeps the records whose priority is at or above threshold and
// reports how many were dropped. Records without a priority are kept.
// A negative threshold (PolicyThreshold) uses the manager policy's cleanup
// threshold, 0.1 by default; zero keeps every record.
func (m *Manager) Cleanup(
	records []*types.MemoryRecord,
	priorities []types.MemoryPriority,
	threshold float64,
) ([]*types.MemoryRecord, int) {
	if threshold < 0 {
		threshold = m.policy.GetCleanupThreshold()
	}

	scores := make(map[string]float64, len(priorities))
	for _, p := range priorities {
		scores[p.MemoryID] = p.Score
	}

	kept := make([]*types.MemoryRecord, 0, len(records))
	removed := 0
	for _, r := range records {
		if r == nil {
			continue
		}
		if score, ok := scores[r.ID]; ok && score < threshold {
			removed++
			m.priorities.Remove(r.ID)
			continue
		}
		kept = append(kept, r)
	}

	if removed > 0 {
		m.logger.Info("cleanup removed low-priority memories", "removed", removed, "kept", len(kept), "threshold", threshold)
	}
	return kept, removed
}

// PruneExpired drops records whose expiry is at or before now and reports
// how many were dropped. A zero now uses the manager clock.
func (m *Manager) PruneExpired(records []*types.MemoryRecord, now time.Time) ([]*types.MemoryRecord, int) {
	if now.IsZero() {
		now = m.now()
	}

	kept := make([]*types.MemoryRecord, 0, len(records))
	removed := 0
	for _, r := range records {
		if r == nil {
			continue
		}
		if r.IsExpired(now) {
			removed++
			m.priorities.Remove(r.ID)
			continue
		}
		kept = append(kept, r)
	}

	if removed > 0 {
		m.logger.Info("pruned expired memories", "removed", removed)
	}
	return kept, removed
}
