// Package intelligence provides the memory management engine: importance
// decay, multi-factor priority, access tracking, clustering, summarization
// and priority cleanup over snapshots of memory records.
//
// Every operation takes the records it works on and returns new or updated
// copies; the caller is responsible for swapping them into its store.
package intelligence

import (
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/oceanbase/powermem-recall/pkg/concept"
	"github.com/oceanbase/powermem-recall/pkg/llm"
	"github.com/oceanbase/powermem-recall/pkg/logging"
	"github.com/oceanbase/powermem-recall/pkg/types"
)

// DefaultPriorityCacheSize bounds the priority cache.
const DefaultPriorityCacheSize = 10000

// Config contains configuration for the management engine.
type Config struct {
	// Policy is the default policy used when an operation is given none.
	// Nil uses types.DefaultPolicyConfig. Its PriorityTTL also sets the
	// priority cache lifetime.
	Policy *types.PolicyConfig

	// LLM enables LLM-synthesized summaries when the policy asks for them.
	LLM llm.Provider

	// Logger receives skipped-record warnings and sweep summaries.
	Logger logging.Logger

	// NodeID is the snowflake node used for cluster and summary IDs (0-1023).
	NodeID int64

	// PriorityCacheSize bounds the priority cache (default 10000).
	PriorityCacheSize int

	// Now is the clock (default time.Now).
	Now func() time.Time
}

// Stats reports tracker and cache occupancy.
type Stats struct {
	TrackedRecords   int `json:"tracked_records"`
	CachedPriorities int `json:"cached_priorities"`
	TotalAccesses    int `json:"total_accesses"`
}

// Manager manages memory lifecycle for one agent.
//
// A Manager owns an access tracker and a priority cache. It is meant to be
// called sequentially by the agent that owns it and is not safe for
// concurrent use.
//
// Example usage:
//
//	manager, _ := intelligence.NewManager(nil)
//	decayed := manager.ApplyDecay(records, nil)
//	priorities := manager.Prioritize(decayed, nil, relationships)
//	kept, removed := manager.Cleanup(decayed, priorities, intelligence.PolicyThreshold)
type Manager struct {
	policy     *types.PolicyConfig
	llm        llm.Provider
	logger     logging.Logger
	node       *snowflake.Node
	rules      *concept.RuleExtractor
	priorities *expirable.LRU[string, cachedPriority]
	access     map[string]map[types.AccessType]*types.MemoryAccess
	now        func() time.Time
}

// NewManager creates a management engine. A nil config uses the defaults.
func NewManager(cfg *Config) (*Manager, error) {
	if cfg == nil {
		cfg = &Config{}
	}

	policy := cfg.Policy.WithDefaults()

	node, err := snowflake.NewNode(cfg.NodeID)
	if err != nil {
		return nil, types.NewMemoryError("NewManager", fmt.Errorf("%w: snowflake node: %v", types.ErrInvalidConfig, err))
	}

	size := cfg.PriorityCacheSize
	if size <= 0 {
		size = DefaultPriorityCacheSize
	}

	m := &Manager{
		policy:     policy,
		llm:        cfg.LLM,
		logger:     cfg.Logger,
		node:       node,
		rules:      concept.NewRuleExtractor(),
		priorities: expirable.NewLRU[string, cachedPriority](size, nil, policy.PriorityTTL),
		access:     make(map[string]map[types.AccessType]*types.MemoryAccess),
		now:        cfg.Now,
	}
	if m.logger == nil {
		m.logger = logging.NopLogger()
	}
	if m.now == nil {
		m.now = time.Now
	}
	return m, nil
}

// Policy returns the manager's default policy.
func (m *Manager) Policy() *types.PolicyConfig {
	return m.policy
}

// ClearCache empties the priority cache. Access counters are kept.
func (m *Manager) ClearCache() {
	m.priorities.Purge()
}

// Stats reports tracker and cache occupancy.
func (m *Manager) Stats() Stats {
	stats := Stats{
		TrackedRecords:   len(m.access),
		CachedPriorities: m.priorities.Len(),
	}
	for _, byType := range m.access {
		for _, a := range byType {
			stats.TotalAccesses += a.Count
		}
	}
	return stats
}

// resolve fills an operation's policy from the manager defaults.
func (m *Manager) resolve(policy *types.PolicyConfig) *types.PolicyConfig {
	if policy == nil {
		return m.policy
	}
	return policy.WithDefaults()
}

// usable reports whether a record can be processed, logging the reason when
// it cannot.
func (m *Manager) usable(op string, r *types.MemoryRecord) bool {
	if err := r.Validate(); err != nil {
		m.logger.Warn("skipping malformed record", "op", op, "error", err)
		return false
	}
	return true
}

func (m *Manager) newID(prefix string) string {
	return prefix + "_" + m.node.Generate().String()
}
