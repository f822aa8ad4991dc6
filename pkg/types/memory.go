// Package types defines the data model shared by the search engine, the
// management engine and the storage backends.
//
// It is a leaf package: it imports nothing from this module so that every
// other package can depend on it without creating import cycles.
package types

import (
	"fmt"
	"math"
	"time"
)

// MemoryType tags what kind of information a record holds.
type MemoryType string

const (
	TypeExperience  MemoryType = "experience"
	TypeKnowledge   MemoryType = "knowledge"
	TypeInteraction MemoryType = "interaction"
	TypeGoal        MemoryType = "goal"
	TypeContext     MemoryType = "context"
	TypeObservation MemoryType = "observation"
	TypeReflection  MemoryType = "reflection"
	TypeLearning    MemoryType = "learning"
	TypeReasoning   MemoryType = "reasoning"
)

// DurationClass describes how long a record is expected to live.
type DurationClass string

const (
	DurationShortTerm DurationClass = "short_term"
	DurationLongTerm  DurationClass = "long_term"
	DurationWorking   DurationClass = "working"
	DurationEpisodic  DurationClass = "episodic"
)

// MemoryRecord is a single stored memory entry.
//
// Records are owned by the external store. The engines in this module treat
// them as snapshots: operations that change a record return an updated copy
// and never write through the pointer they were given.
//
// Example:
//
//	record := &types.MemoryRecord{
//	    ID:         "mem_001",
//	    AgentID:    "agent_001",
//	    Type:       types.TypeExperience,
//	    Content:    "Walked the dog in the park",
//	    Importance: 0.6,
//	    CreatedAt:  time.Now(),
//	    Tags:       []string{"pets", "outdoors"},
//	    Duration:   types.DurationEpisodic,
//	}
type MemoryRecord struct {
	// ID is the unique identifier of the record.
	ID string `json:"id" yaml:"id"`

	// AgentID identifies the agent that owns the record.
	AgentID string `json:"agent_id" yaml:"agent_id"`

	// Type is the record's type tag.
	Type MemoryType `json:"type" yaml:"type"`

	// Content is the free-text content of the record.
	Content string `json:"content" yaml:"content"`

	// Embedding is the optional vector representation of Content.
	Embedding []float64 `json:"embedding,omitempty" yaml:"embedding,omitempty"`

	// Metadata holds arbitrary structured attributes (emotional valence,
	// provenance of summaries, ...).
	Metadata map[string]interface{} `json:"metadata,omitempty" yaml:"metadata,omitempty"`

	// Importance is the record's importance in [0, 1].
	Importance float64 `json:"importance" yaml:"importance"`

	// CreatedAt is when the record was created.
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`

	// Tags is the record's tag set.
	Tags []string `json:"tags,omitempty" yaml:"tags,omitempty"`

	// Duration is the record's duration class.
	Duration DurationClass `json:"duration" yaml:"duration"`

	// ExpiresAt is the optional expiry (nil means never).
	ExpiresAt *time.Time `json:"expires_at,omitempty" yaml:"expires_at,omitempty"`
}

// Clone returns a deep copy of the record.
func (m *MemoryRecord) Clone() *MemoryRecord {
	if m == nil {
		return nil
	}
	out := *m
	if m.Embedding != nil {
		out.Embedding = append([]float64(nil), m.Embedding...)
	}
	if m.Tags != nil {
		out.Tags = append([]string(nil), m.Tags...)
	}
	if m.Metadata != nil {
		out.Metadata = make(map[string]interface{}, len(m.Metadata))
		for k, v := range m.Metadata {
			out.Metadata[k] = v
		}
	}
	if m.ExpiresAt != nil {
		t := *m.ExpiresAt
		out.ExpiresAt = &t
	}
	return &out
}

// HasEmbedding reports whether the record carries a non-empty embedding.
func (m *MemoryRecord) HasEmbedding() bool {
	return m != nil && len(m.Embedding) > 0
}

// AgeDays returns the record's age in fractional days relative to now.
// Records dated in the future have age 0.
func (m *MemoryRecord) AgeDays(now time.Time) float64 {
	age := now.Sub(m.CreatedAt).Hours() / 24.0
	if age < 0 {
		return 0
	}
	return age
}

// IsExpired reports whether the record's expiry lies at or before now.
func (m *MemoryRecord) IsExpired(now time.Time) bool {
	return m.ExpiresAt != nil && !m.ExpiresAt.After(now)
}

// HasTag reports whether the record carries the given tag.
func (m *MemoryRecord) HasTag(tag string) bool {
	for _, t := range m.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Validate reports why a record cannot be processed, or nil if it can.
func (m *MemoryRecord) Validate() error {
	if m == nil {
		return NewMemoryError("Validate", fmt.Errorf("%w: nil record", ErrInvalidInput))
	}
	if m.ID == "" {
		return NewMemoryError("Validate", fmt.Errorf("%w: empty record id", ErrInvalidInput))
	}
	if math.IsNaN(m.Importance) || math.IsInf(m.Importance, 0) || m.Importance < 0 || m.Importance > 1 {
		return NewMemoryError("Validate", fmt.Errorf("%w: record %s importance %v out of range", ErrInvalidInput, m.ID, m.Importance))
	}
	for _, v := range m.Embedding {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return NewMemoryError("Validate", fmt.Errorf("%w: record %s has a non-finite embedding component", ErrInvalidInput, m.ID))
		}
	}
	return nil
}

// MemoryRelationship is a directed, typed, weighted edge between two records.
type MemoryRelationship struct {
	// SourceID is the ID of the record the edge starts from.
	SourceID string `json:"source_id" yaml:"source_id"`

	// TargetID is the ID of the record the edge points to.
	TargetID string `json:"target_id" yaml:"target_id"`

	// Type names the relationship ("causes", "follows", "similar_to", ...).
	Type string `json:"type" yaml:"type"`

	// Strength is the edge weight in [0, 1].
	Strength float64 `json:"strength" yaml:"strength"`

	// Confidence is how sure the producer of the edge was about it.
	Confidence float64 `json:"confidence" yaml:"confidence"`
}

// AccessType names the kind of access recorded by the access tracker.
type AccessType string

const (
	AccessRead   AccessType = "read"
	AccessWrite  AccessType = "write"
	AccessUpdate AccessType = "update"
)

// MemoryAccess is a per-record, per-access-type counter.
type MemoryAccess struct {
	MemoryID   string     `json:"memory_id"`
	Type       AccessType `json:"type"`
	Count      int        `json:"count"`
	LastAccess time.Time  `json:"last_access"`
}

// PriorityFactors are the five weighted contributions to a priority score.
// Each value is the factor's normalized score multiplied by its weight.
type PriorityFactors struct {
	Importance       float64 `json:"importance"`
	Recency          float64 `json:"recency"`
	AccessFrequency  float64 `json:"access_frequency"`
	EmotionalValence float64 `json:"emotional_valence"`
	Relationships    float64 `json:"relationships"`
}

// MemoryPriority is a record's composite retention-worthiness score.
type MemoryPriority struct {
	MemoryID     string          `json:"memory_id"`
	Score        float64         `json:"score"`
	Factors      PriorityFactors `json:"factors"`
	CalculatedAt time.Time       `json:"calculated_at"`
}

// ClusterStrategy selects how records are grouped.
type ClusterStrategy string

const (
	ClusterTemporal  ClusterStrategy = "temporal"
	ClusterEmbedding ClusterStrategy = "embedding"
	ClusterConcept   ClusterStrategy = "concept"
)

// TimeSpan is a closed time interval.
type TimeSpan struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// MemoryCluster is a group of at least two related records.
type MemoryCluster struct {
	// ID identifies the cluster within one clustering run.
	ID string `json:"id"`

	// Strategy is the strategy that produced the cluster.
	Strategy ClusterStrategy `json:"strategy"`

	// Memories are the cluster members (always two or more).
	Memories []*MemoryRecord `json:"memories"`

	// Centroid is the mean embedding of the members (embedding clusters only).
	Centroid []float64 `json:"centroid,omitempty"`

	// Cohesion is the mean pairwise Jaccard similarity of member content.
	Cohesion float64 `json:"cohesion"`

	// TimeRange spans the members' creation times.
	TimeRange TimeSpan `json:"time_range"`

	// Concepts are the tags/keywords that characterize the cluster.
	Concepts []string `json:"concepts"`
}

// MemoryIDs returns the IDs of the cluster members in order.
func (c *MemoryCluster) MemoryIDs() []string {
	ids := make([]string, 0, len(c.Memories))
	for _, m := range c.Memories {
		ids = append(ids, m.ID)
	}
	return ids
}

// SummarizationMethod names how a summary was framed.
type SummarizationMethod string

const (
	SummarizeTemporal   SummarizationMethod = "temporal"
	SummarizeClustering SummarizationMethod = "clustering"
	SummarizeConcept    SummarizationMethod = "concept"
)

// SummarizedMemory is a record produced by compressing a cluster.
type SummarizedMemory struct {
	MemoryRecord

	// OriginalMemoryIDs are the IDs of the summarized cluster members.
	OriginalMemoryIDs []string `json:"original_memory_ids"`

	// Method is the framing used for the summary content.
	Method SummarizationMethod `json:"method"`

	// CompressionRatio is len(summary) / sum(len(original contents)).
	CompressionRatio float64 `json:"compression_ratio"`
}
