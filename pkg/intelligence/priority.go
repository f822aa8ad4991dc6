package intelligence

import (
	"encoding/binary"
	"encoding/json"
	"math"
	"sort"
	"strconv"

	"github.com/cespare/xxhash/v2"

	"github.com/oceanbase/powermem-recall/pkg/types"
)

// Metadata keys read by the priority calculation, in lookup order.
var valenceKeys = []string{"emotional_valence", "emotionalValence", "valence"}

// Prioritize ranks records by their composite priority, highest first.
//
// The composite is the weighted sum of five normalized factors:
//   - importance: the record's importance
//   - recency: max(0, 1 - age_days/horizon), horizon 30 days by default
//   - access frequency: min(1, accesses/10)
//   - emotional valence: |metadata["emotional_valence"]|, capped at 1
//   - relationships: min(1, degree/5), counting edges in either direction
//
// Each record's priority is cached by record id for the policy TTL (one hour
// by default) and dropped by TrackAccess, decay and cleanup. A cached entry
// is only reused while the record's importance, its relationship degree and
// the policy's priority knobs are unchanged; a call with other weights
// recomputes and replaces it. Malformed records are skipped.
func (m *Manager) Prioritize(
	records []*types.MemoryRecord,
	policy *types.PolicyConfig,
	relationships []types.MemoryRelationship,
) []types.MemoryPriority {
	p := m.resolve(policy)

	degree := make(map[string]int)
	for _, rel := range relationships {
		degree[rel.SourceID]++
		if rel.TargetID != rel.SourceID {
			degree[rel.TargetID]++
		}
	}

	priorities := make([]types.MemoryPriority, 0, len(records))
	for _, r := range records {
		if r == nil || !m.usable("Prioritize", r) {
			continue
		}
		stamp := priorityStamp(r, p, degree[r.ID])
		if cached, ok := m.priorities.Get(r.ID); ok && cached.stamp == stamp {
			priorities = append(priorities, cached.priority)
			continue
		}
		priority := m.computePriority(r, p, degree[r.ID])
		m.priorities.Add(r.ID, cachedPriority{priority: priority, stamp: stamp})
		priorities = append(priorities, priority)
	}

	sort.SliceStable(priorities, func(i, j int) bool {
		return priorities[i].Score > priorities[j].Score
	})
	return priorities
}

func (m *Manager) computePriority(r *types.MemoryRecord, p *types.PolicyConfig, degree int) types.MemoryPriority {
	now := m.now()
	w := p.PriorityWeights

	recency := 1 - r.AgeDays(now)/p.RecencyHorizonDays
	if recency < 0 {
		recency = 0
	}
	access := math.Min(1, float64(m.AccessCount(r.ID))/float64(p.AccessSaturation))
	valence := math.Min(1, math.Abs(EmotionalValence(r)))
	relations := math.Min(1, float64(degree)/float64(p.RelationshipSaturation))

	factors := types.PriorityFactors{
		Importance:       r.Importance * w.Importance,
		Recency:          recency * w.Recency,
		AccessFrequency:  access * w.AccessFrequency,
		EmotionalValence: valence * w.EmotionalValence,
		Relationships:    relations * w.Relationships,
	}
	return types.MemoryPriority{
		MemoryID: r.ID,
		Score: factors.Importance + factors.Recency + factors.AccessFrequency +
			factors.EmotionalValence + factors.Relationships,
		Factors:      factors,
		CalculatedAt: now,
	}
}

// cachedPriority is a priority together with the stamp of its inputs.
type cachedPriority struct {
	priority types.MemoryPriority
	stamp    uint64
}

// priorityStamp hashes the inputs of a priority other than the access
// counters, which invalidate the cache themselves.
func priorityStamp(r *types.MemoryRecord, p *types.PolicyConfig, degree int) uint64 {
	w := p.PriorityWeights
	values := []float64{
		r.Importance,
		w.Importance, w.Recency, w.AccessFrequency, w.EmotionalValence, w.Relationships,
		p.RecencyHorizonDays,
		float64(p.AccessSaturation),
		float64(p.RelationshipSaturation),
		float64(degree),
		EmotionalValence(r),
	}

	d := xxhash.New()
	var buf [8]byte
	for _, v := range values {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
		_, _ = d.Write(buf[:])
	}
	return d.Sum64()
}

// EmotionalValence reads a record's emotional valence from its metadata.
// Numbers may be stored as any numeric type, json.Number or a numeric
// string. Missing or unparsable values read as 0.
func EmotionalValence(r *types.MemoryRecord) float64 {
	for _, key := range valenceKeys {
		if v, ok := r.Metadata[key]; ok {
			if f, ok := toFloat(v); ok {
				return f
			}
		}
	}
	return 0
}

func toFloat(v interface{}) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case int32:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
