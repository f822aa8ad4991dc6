package search

import (
	"fmt"
	"strings"
	"time"

	"github.com/oceanbase/powermem-recall/pkg/types"
)

// filterRecords applies the query's time range and then its field filters.
// Nil records are dropped.
func filterRecords(q *types.SearchQuery, records []*types.MemoryRecord, now time.Time) []*types.MemoryRecord {
	out := make([]*types.MemoryRecord, 0, len(records))
	for _, r := range records {
		if r == nil {
			continue
		}
		if q.TimeRange != nil && !q.TimeRange.Contains(r.CreatedAt, now) {
			continue
		}
		if q.Filters != nil && !matchesFilters(r, q.Filters) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func matchesFilters(r *types.MemoryRecord, f *types.SearchFilters) bool {
	if f.AgentID != "" && r.AgentID != f.AgentID {
		return false
	}
	if len(f.Types) > 0 && !containsType(f.Types, r.Type) {
		return false
	}
	if len(f.Durations) > 0 && !containsDuration(f.Durations, r.Duration) {
		return false
	}
	if len(f.Tags) > 0 {
		// any-of semantics
		found := false
		for _, tag := range f.Tags {
			if r.HasTag(tag) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.MinImportance != nil && r.Importance < *f.MinImportance {
		return false
	}
	if f.MaxImportance != nil && r.Importance > *f.MaxImportance {
		return false
	}
	for k, want := range f.Metadata {
		got, ok := r.Metadata[k]
		if !ok || !metadataEqual(got, want) {
			return false
		}
	}
	return true
}

func containsType(list []types.MemoryType, t types.MemoryType) bool {
	for _, v := range list {
		if v == t {
			return true
		}
	}
	return false
}

func containsDuration(list []types.DurationClass, d types.DurationClass) bool {
	for _, v := range list {
		if v == d {
			return true
		}
	}
	return false
}

// metadataEqual compares scalar metadata values by their printed form so that
// 1 (int) and 1.0 (float64 from JSON) are equal.
func metadataEqual(a, b interface{}) bool {
	return strings.EqualFold(fmt.Sprint(a), fmt.Sprint(b))
}
