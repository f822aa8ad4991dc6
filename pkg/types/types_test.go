package types_test

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oceanbase/powermem-recall/pkg/types"
)

func TestMemoryRecord_CloneIsDeep(t *testing.T) {
	expires := time.Now()
	r := &types.MemoryRecord{
		ID:        "m1",
		Embedding: []float64{1, 2},
		Tags:      []string{"a"},
		Metadata:  map[string]interface{}{"k": "v"},
		ExpiresAt: &expires,
	}
	c := r.Clone()
	c.Embedding[0] = 9
	c.Tags[0] = "b"
	c.Metadata["k"] = "w"
	*c.ExpiresAt = expires.Add(time.Hour)

	assert.Equal(t, 1.0, r.Embedding[0])
	assert.Equal(t, "a", r.Tags[0])
	assert.Equal(t, "v", r.Metadata["k"])
	assert.True(t, r.ExpiresAt.Equal(expires))

	var nilRecord *types.MemoryRecord
	assert.Nil(t, nilRecord.Clone())
}

func TestMemoryRecord_Validate(t *testing.T) {
	tests := []struct {
		name   string
		record *types.MemoryRecord
		valid  bool
	}{
		{"ok", &types.MemoryRecord{ID: "a", Importance: 0.5}, true},
		{"nil", nil, false},
		{"empty id", &types.MemoryRecord{Importance: 0.5}, false},
		{"importance above one", &types.MemoryRecord{ID: "a", Importance: 1.01}, false},
		{"negative importance", &types.MemoryRecord{ID: "a", Importance: -0.1}, false},
		{"nan importance", &types.MemoryRecord{ID: "a", Importance: math.NaN()}, false},
		{"nan embedding", &types.MemoryRecord{ID: "a", Embedding: []float64{1, math.NaN()}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.record.Validate()
			if tt.valid {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, types.ErrInvalidInput)
		})
	}
}

func TestMemoryRecord_AgeAndExpiry(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	r := &types.MemoryRecord{CreatedAt: now.Add(-36 * time.Hour)}
	assert.InDelta(t, 1.5, r.AgeDays(now), 1e-12)

	future := &types.MemoryRecord{CreatedAt: now.Add(time.Hour)}
	assert.Zero(t, future.AgeDays(now))

	assert.False(t, r.IsExpired(now))
	r.ExpiresAt = &now
	assert.True(t, r.IsExpired(now))
}

func TestTimeRange_Bounds(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	start, end := (&types.TimeRange{Last: 2, Unit: types.UnitWeeks}).Bounds(now)
	assert.Equal(t, now.AddDate(0, 0, -14), start)
	assert.Equal(t, now, end)

	start, _ = (&types.TimeRange{Last: 3}).Bounds(now)
	assert.Equal(t, now.AddDate(0, 0, -3), start)

	from := now.Add(-time.Hour)
	tr := &types.TimeRange{Start: &from}
	assert.True(t, tr.Contains(now, now))
	assert.False(t, tr.Contains(now.Add(-2*time.Hour), now))

	var unbounded *types.TimeRange
	assert.True(t, unbounded.Contains(time.Time{}, now))
}

func TestPolicyConfig_WithDefaults(t *testing.T) {
	var nilPolicy *types.PolicyConfig
	assert.Equal(t, types.DefaultPolicyConfig(), nilPolicy.WithDefaults())

	custom := &types.PolicyConfig{DecayFunction: types.DecayLinear, MaxClusters: 3}
	got := custom.WithDefaults()
	assert.Equal(t, types.DecayLinear, got.DecayFunction)
	assert.Equal(t, 3, got.MaxClusters)
	assert.InDelta(t, 0.1, got.GetImportanceFloor(), 1e-12)
	assert.Equal(t, time.Hour, got.TemporalGap)
	assert.Nil(t, custom.ImportanceFloor)

	zeroed := &types.PolicyConfig{
		DecayRate:        types.Float64(0),
		ImportanceFloor:  types.Float64(0),
		CleanupThreshold: types.Float64(0),
	}
	got = zeroed.WithDefaults()
	assert.Zero(t, got.GetDecayRate())
	assert.Zero(t, got.GetImportanceFloor())
	assert.Zero(t, got.GetCleanupThreshold())

	var unset *types.PolicyConfig
	assert.InDelta(t, 0.01, unset.GetDecayRate(), 1e-12)
	assert.InDelta(t, 0.1, unset.GetCleanupThreshold(), 1e-12)
}

func TestMemoryError(t *testing.T) {
	err := types.NewMemoryError("Search", types.ErrUnsupportedQueryType)
	require.Error(t, err)
	assert.Equal(t, "powermem: Search: unsupported query type", err.Error())
	assert.True(t, errors.Is(err, types.ErrUnsupportedQueryType))

	var memErr *types.MemoryError
	require.ErrorAs(t, err, &memErr)
	assert.Equal(t, "Search", memErr.Op)

	assert.NoError(t, types.NewMemoryError("Noop", nil))
}
