package types

import "time"

// DecayFunction selects the shape of the importance decay curve.
type DecayFunction string

const (
	// DecayLinear decays by age_days * 0.01.
	DecayLinear DecayFunction = "linear"

	// DecayExponential decays by 1 - e^(-age_days * 0.1).
	DecayExponential DecayFunction = "exponential"

	// DecaySigmoid decays by 1 / (1 + e^(-age_days + 10)).
	DecaySigmoid DecayFunction = "sigmoid"
)

const (
	defaultDecayRate        = 0.01
	defaultImportanceFloor  = 0.1
	defaultCleanupThreshold = 0.1
)

// PriorityWeights weight the five priority factors. They are not required to
// sum to 1.
type PriorityWeights struct {
	Importance       float64 `json:"importance" yaml:"importance"`
	Recency          float64 `json:"recency" yaml:"recency"`
	AccessFrequency  float64 `json:"access_frequency" yaml:"access_frequency"`
	EmotionalValence float64 `json:"emotional_valence" yaml:"emotional_valence"`
	Relationships    float64 `json:"relationships" yaml:"relationships"`
}

// PolicyConfig carries every knob of the management engine.
//
// Example:
//
//	policy := types.DefaultPolicyConfig()
//	policy.DecayFunction = types.DecayExponential
//	policy.ClusteringStrategy = types.ClusterTemporal
type PolicyConfig struct {
	// DecayFunction is the decay curve. Default: exponential.
	DecayFunction DecayFunction `json:"decay_function" yaml:"decay_function"`

	// DecayRate scales the curve value. Nil means the default, 0.01; zero
	// disables decay.
	DecayRate *float64 `json:"decay_rate,omitempty" yaml:"decay_rate,omitempty"`

	// ImportanceFloor is the level decay never goes below. Nil means the
	// default, 0.1; zero lets importance decay all the way down.
	ImportanceFloor *float64 `json:"importance_floor,omitempty" yaml:"importance_floor,omitempty"`

	// RecentAccessWindow is how recent an access must be to slow decay.
	// Default: 7 days.
	RecentAccessWindow time.Duration `json:"recent_access_window" yaml:"recent_access_window"`

	// RecentAccessMultiplier divides the decay amount of recently accessed
	// records. Default: 1.5.
	RecentAccessMultiplier float64 `json:"recent_access_multiplier" yaml:"recent_access_multiplier"`

	// PriorityWeights weight the priority factors. Default: 0.3/0.2/0.2/0.15/0.15.
	PriorityWeights PriorityWeights `json:"priority_weights" yaml:"priority_weights"`

	// PriorityTTL is how long a computed priority stays cached. Default: 1h.
	PriorityTTL time.Duration `json:"priority_ttl" yaml:"priority_ttl"`

	// RecencyHorizonDays is the span of the linear recency score. Default: 30.
	RecencyHorizonDays float64 `json:"recency_horizon_days" yaml:"recency_horizon_days"`

	// AccessSaturation is the access count at which the access factor
	// saturates. Default: 10.
	AccessSaturation int `json:"access_saturation" yaml:"access_saturation"`

	// RelationshipSaturation is the relationship count at which the
	// relationship factor saturates. Default: 5.
	RelationshipSaturation int `json:"relationship_saturation" yaml:"relationship_saturation"`

	// ClusteringStrategy selects the clustering strategy. Default: temporal.
	ClusteringStrategy ClusterStrategy `json:"clustering_strategy" yaml:"clustering_strategy"`

	// TemporalGap starts a new temporal cluster when exceeded. Default: 1h.
	TemporalGap time.Duration `json:"temporal_gap" yaml:"temporal_gap"`

	// MaxClusters caps K in K-means. Default: 5.
	MaxClusters int `json:"max_clusters" yaml:"max_clusters"`

	// KMeansIterations caps K-means iterations. Default: 10.
	KMeansIterations int `json:"kmeans_iterations" yaml:"kmeans_iterations"`

	// ConvergenceThreshold stops K-means when no centroid moves further.
	// Default: 0.01.
	ConvergenceThreshold float64 `json:"convergence_threshold" yaml:"convergence_threshold"`

	// SummarizationMethod forces a framing; empty derives it from the
	// cluster strategy.
	SummarizationMethod SummarizationMethod `json:"summarization_method,omitempty" yaml:"summarization_method,omitempty"`

	// UseLLMSummaries asks the manager to synthesize summaries with its LLM
	// provider when one is configured.
	UseLLMSummaries bool `json:"use_llm_summaries,omitempty" yaml:"use_llm_summaries,omitempty"`

	// CleanupThreshold is the minimum priority kept by cleanup. Nil means
	// the default, 0.1; zero keeps every record.
	CleanupThreshold *float64 `json:"cleanup_threshold,omitempty" yaml:"cleanup_threshold,omitempty"`

	// RemoveSummarizedOriginals drops cluster members from the maintenance
	// snapshot once they have been summarized. Default: false.
	RemoveSummarizedOriginals bool `json:"remove_summarized_originals,omitempty" yaml:"remove_summarized_originals,omitempty"`
}

// DefaultPolicyConfig returns the default management policy.
func DefaultPolicyConfig() *PolicyConfig {
	return &PolicyConfig{
		DecayFunction:          DecayExponential,
		DecayRate:              Float64(defaultDecayRate),
		ImportanceFloor:        Float64(defaultImportanceFloor),
		RecentAccessWindow:     7 * 24 * time.Hour,
		RecentAccessMultiplier: 1.5,
		PriorityWeights: PriorityWeights{
			Importance:       0.3,
			Recency:          0.2,
			AccessFrequency:  0.2,
			EmotionalValence: 0.15,
			Relationships:    0.15,
		},
		PriorityTTL:            time.Hour,
		RecencyHorizonDays:     30,
		AccessSaturation:       10,
		RelationshipSaturation: 5,
		ClusteringStrategy:     ClusterTemporal,
		TemporalGap:            time.Hour,
		MaxClusters:            5,
		KMeansIterations:       10,
		ConvergenceThreshold:   0.01,
		CleanupThreshold:       Float64(defaultCleanupThreshold),
	}
}

// WithDefaults returns a copy of p where every unset knob is replaced by its
// default. Value knobs are unset when zero; DecayRate, ImportanceFloor and
// CleanupThreshold are unset when nil, so an explicit zero is kept. A nil
// policy yields the defaults.
func (p *PolicyConfig) WithDefaults() *PolicyConfig {
	def := DefaultPolicyConfig()
	if p == nil {
		return def
	}
	out := *p
	if out.DecayFunction == "" {
		out.DecayFunction = def.DecayFunction
	}
	if out.DecayRate == nil {
		out.DecayRate = def.DecayRate
	}
	if out.ImportanceFloor == nil {
		out.ImportanceFloor = def.ImportanceFloor
	}
	if out.RecentAccessWindow == 0 {
		out.RecentAccessWindow = def.RecentAccessWindow
	}
	if out.RecentAccessMultiplier == 0 {
		out.RecentAccessMultiplier = def.RecentAccessMultiplier
	}
	if out.PriorityWeights == (PriorityWeights{}) {
		out.PriorityWeights = def.PriorityWeights
	}
	if out.PriorityTTL == 0 {
		out.PriorityTTL = def.PriorityTTL
	}
	if out.RecencyHorizonDays == 0 {
		out.RecencyHorizonDays = def.RecencyHorizonDays
	}
	if out.AccessSaturation == 0 {
		out.AccessSaturation = def.AccessSaturation
	}
	if out.RelationshipSaturation == 0 {
		out.RelationshipSaturation = def.RelationshipSaturation
	}
	if out.ClusteringStrategy == "" {
		out.ClusteringStrategy = def.ClusteringStrategy
	}
	if out.TemporalGap == 0 {
		out.TemporalGap = def.TemporalGap
	}
	if out.MaxClusters == 0 {
		out.MaxClusters = def.MaxClusters
	}
	if out.KMeansIterations == 0 {
		out.KMeansIterations = def.KMeansIterations
	}
	if out.ConvergenceThreshold == 0 {
		out.ConvergenceThreshold = def.ConvergenceThreshold
	}
	if out.CleanupThreshold == nil {
		out.CleanupThreshold = def.CleanupThreshold
	}
	return &out
}

// GetDecayRate returns the decay rate, or its default when unset.
func (p *PolicyConfig) GetDecayRate() float64 {
	if p == nil || p.DecayRate == nil {
		return defaultDecayRate
	}
	return *p.DecayRate
}

// GetImportanceFloor returns the importance floor, or its default when unset.
func (p *PolicyConfig) GetImportanceFloor() float64 {
	if p == nil || p.ImportanceFloor == nil {
		return defaultImportanceFloor
	}
	return *p.ImportanceFloor
}

// GetCleanupThreshold returns the cleanup threshold, or its default when
// unset.
func (p *PolicyConfig) GetCleanupThreshold() float64 {
	if p == nil || p.CleanupThreshold == nil {
		return defaultCleanupThreshold
	}
	return *p.CleanupThreshold
}

// Float64 returns a pointer to v, for the optional policy knobs.
//
// Example:
//
//	policy := &types.PolicyConfig{ImportanceFloor: types.Float64(0)}
func Float64(v float64) *float64 {
	return &v
}
