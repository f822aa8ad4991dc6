package intelligence

import (
	"sort"
	"time"

	"github.com/oceanbase/powermem-recall/pkg/types"
)

// TrackAccess records one access of the given type to a record and drops the
// record's cached priority. An empty accessType counts as a read.
func (m *Manager) TrackAccess(id string, accessType types.AccessType) {
	if id == "" {
		m.logger.Warn("ignoring access with empty memory id")
		return
	}
	if accessType == "" {
		accessType = types.AccessRead
	}

	byType, ok := m.access[id]
	if !ok {
		byType = make(map[types.AccessType]*types.MemoryAccess)
		m.access[id] = byType
	}
	entry, ok := byType[accessType]
	if !ok {
		entry = &types.MemoryAccess{MemoryID: id, Type: accessType}
		byType[accessType] = entry
	}
	entry.Count++
	entry.LastAccess = m.now()

	m.priorities.Remove(id)
}

// AccessCount returns the total number of tracked accesses of a record
// across all access types.
func (m *Manager) AccessCount(id string) int {
	total := 0
	for _, a := range m.access[id] {
		total += a.Count
	}
	return total
}

// LastAccess returns the most recent tracked access of a record.
func (m *Manager) LastAccess(id string) (time.Time, bool) {
	var last time.Time
	found := false
	for _, a := range m.access[id] {
		if !found || a.LastAccess.After(last) {
			last = a.LastAccess
			found = true
		}
	}
	return last, found
}

// Accesses returns copies of a record's counters, ordered by access type.
func (m *Manager) Accesses(id string) []types.MemoryAccess {
	out := make([]types.MemoryAccess, 0, len(m.access[id]))
	for _, a := range m.access[id] {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Type < out[j].Type
	})
	return out
}

// ResetAccess forgets every counter of a record.
func (m *Manager) ResetAccess(id string) {
	delete(m.access, id)
	m.priorities.Remove(id)
}
