package intelligence

import (
	"math"
	"time"

	"github.com/oceanbase/powermem-recall/pkg/types"
)

// DecayCurve evaluates a decay function at an age in days.
//
// The curves are:
//   - linear: age * 0.01
//   - exponential: 1 - e^(-age * 0.1)
//   - sigmoid: 1 / (1 + e^(-age + 10))
//
// Unknown functions evaluate as exponential. Negative ages are treated as 0.
func DecayCurve(fn types.DecayFunction, ageDays float64) float64 {
	if ageDays < 0 || math.IsNaN(ageDays) {
		ageDays = 0
	}
	switch fn {
	case types.DecayLinear:
		return ageDays * 0.01
	case types.DecaySigmoid:
		return 1.0 / (1.0 + math.Exp(-ageDays+10))
	default:
		return 1.0 - math.Exp(-ageDays*0.1)
	}
}

// ApplyDecay lowers the importance of every record above the policy floor.
//
// The decay amount is curve(age) * rate, divided by the recent-access
// multiplier when the record was accessed within the recent-access window.
// The new importance never drops below the floor nor rises above the
// original. Records at or below the floor, and malformed records, are
// returned unchanged. Decay never removes a record.
//
// A nil policy uses the manager's default policy.
//
// Returns updated copies in input order; nil entries are dropped.
func (m *Manager) ApplyDecay(records []*types.MemoryRecord, policy *types.PolicyConfig) []*types.MemoryRecord {
	p := m.resolve(policy)
	now := m.now()

	out := make([]*types.MemoryRecord, 0, len(records))
	for _, r := range records {
		if r == nil {
			continue
		}
		if !m.usable("ApplyDecay", r) || r.Importance <= p.GetImportanceFloor() {
			out = append(out, r.Clone())
			continue
		}

		amount := DecayCurve(p.DecayFunction, r.AgeDays(now)) * p.GetDecayRate()
		if m.accessedWithin(r.ID, p.RecentAccessWindow, now) && p.RecentAccessMultiplier > 0 {
			amount /= p.RecentAccessMultiplier
		}

		updated := r.Clone()
		updated.Importance = clampImportance(r.Importance-amount, p.GetImportanceFloor(), r.Importance)
		out = append(out, updated)
	}
	return out
}

// accessedWithin reports whether any tracked access of id happened within
// window before now.
func (m *Manager) accessedWithin(id string, window time.Duration, now time.Time) bool {
	last, ok := m.LastAccess(id)
	return ok && now.Sub(last) <= window
}

func clampImportance(v, floor, ceiling float64) float64 {
	if math.IsNaN(v) || v < floor {
		return floor
	}
	if v > ceiling {
		return ceiling
	}
	return v
}
