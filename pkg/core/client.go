package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"

	"github.com/oceanbase/powermem-recall/pkg/concept"
	"github.com/oceanbase/powermem-recall/pkg/embedder"
	"github.com/oceanbase/powermem-recall/pkg/embedder/cached"
	"github.com/oceanbase/powermem-recall/pkg/embedder/hash"
	openaiEmbedder "github.com/oceanbase/powermem-recall/pkg/embedder/openai"
	"github.com/oceanbase/powermem-recall/pkg/intelligence"
	"github.com/oceanbase/powermem-recall/pkg/llm"
	openaiLLM "github.com/oceanbase/powermem-recall/pkg/llm/openai"
	"github.com/oceanbase/powermem-recall/pkg/logging"
	"github.com/oceanbase/powermem-recall/pkg/search"
	"github.com/oceanbase/powermem-recall/pkg/storage"
	"github.com/oceanbase/powermem-recall/pkg/storage/oceanbase"
	postgresStore "github.com/oceanbase/powermem-recall/pkg/storage/postgres"
	sqliteStore "github.com/oceanbase/powermem-recall/pkg/storage/sqlite"
	"github.com/oceanbase/powermem-recall/pkg/types"
)

// Client is the PowerMem recall client for one agent.
//
// It holds the agent's memory snapshot (records and relationships) and
// provides:
//   - Ranked search with seven strategies
//   - Access tracking
//   - Lifecycle maintenance (decay, priority, cleanup, clustering, summaries)
//   - Optional write-through persistence to SQLite, PostgreSQL or OceanBase
//
// Calls are serialized by an internal mutex, so a Client may be shared
// between goroutines.
//
// Example usage:
//
//	config, _ := core.LoadConfigFromEnv()
//	client, _ := core.NewClient(ctx, config)
//	defer client.Close()
//
//	_, _ = client.Add(ctx, "Walked the dog in the park", core.WithRecordTags("pets"))
//	results, _ := client.Search(ctx, "dog walks", core.WithLimit(5))
type Client struct {
	config   *Config
	logger   logging.Logger
	embedder embedder.Provider
	memo     *cached.Embedder
	llm      llm.Provider
	store    storage.RecordStore
	search   *search.Engine
	manager  *intelligence.Manager
	node     *snowflake.Node
	now      func() time.Time

	mu            sync.Mutex
	records       []*types.MemoryRecord
	relationships []types.MemoryRelationship
}

// Stats reports snapshot size and engine cache occupancy.
type Stats struct {
	Records       int                `json:"records"`
	Relationships int                `json:"relationships"`
	Search        search.Stats       `json:"search"`
	Management    intelligence.Stats `json:"management"`
	Persistent    bool               `json:"persistent"`
}

// NewClient creates a new recall client.
//
// The client is initialized with:
//   - Embedding provider (hash or OpenAI, optionally memoized)
//   - LLM provider (optional)
//   - Concept extractor (rules, or LLM with rule fallback)
//   - Record store (optional; its records are loaded into the snapshot)
//
// A nil config uses DefaultConfig.
func NewClient(ctx context.Context, cfg *Config) (*Client, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := logging.NewDefaultLogger(cfg.Logging.Level)

	node, err := snowflake.NewNode(cfg.NodeID)
	if err != nil {
		return nil, NewMemoryError("NewClient", fmt.Errorf("%w: snowflake node: %v", ErrInvalidConfig, err))
	}

	emb, memo, err := initEmbedder(cfg.Embedder)
	if err != nil {
		return nil, err
	}

	llmProvider, err := initLLM(cfg.LLM)
	if err != nil {
		closeMemo(memo)
		return nil, err
	}

	var extractor concept.Extractor = concept.NewRuleExtractor()
	if cfg.Concepts.Provider == ConceptsLLM {
		extractor = concept.NewLLMExtractor(llmProvider, logger)
	}

	engine, err := search.NewEngine(&search.Config{
		Embedder:         emb,
		Concepts:         extractor,
		Logger:           logger,
		QueryCacheSize:   cfg.Search.CacheSize,
		ConceptCacheSize: cfg.Search.ConceptCacheSize,
		DefaultLimit:     cfg.Search.DefaultLimit,
		DefaultDepth:     cfg.Search.DefaultDepth,
		Weights:          cfg.Search.Weights,
	})
	if err != nil {
		closeMemo(memo)
		return nil, err
	}

	manager, err := intelligence.NewManager(&intelligence.Config{
		Policy: cfg.Policy,
		LLM:    llmProvider,
		Logger: logger,
		NodeID: cfg.NodeID,
	})
	if err != nil {
		closeMemo(memo)
		return nil, err
	}

	store, err := initStorage(ctx, cfg.Store, logger)
	if err != nil {
		closeMemo(memo)
		return nil, err
	}

	c := &Client{
		config:   cfg,
		logger:   logger,
		embedder: emb,
		memo:     memo,
		llm:      llmProvider,
		store:    store,
		search:   engine,
		manager:  manager,
		node:     node,
		now:      time.Now,
	}

	if store != nil {
		if err := c.Load(ctx); err != nil {
			_ = c.Close()
			return nil, err
		}
	}
	return c, nil
}

// AddOption is a function type for configuring Add operations.
type AddOption func(*types.MemoryRecord)

// WithID sets an explicit record ID instead of a generated one.
func WithID(id string) AddOption {
	return func(r *types.MemoryRecord) {
		r.ID = id
	}
}

// WithAgentID sets the owning agent (default: the client's AgentID).
func WithAgentID(agentID string) AddOption {
	return func(r *types.MemoryRecord) {
		r.AgentID = agentID
	}
}

// WithMemoryType sets the record type (default experience).
func WithMemoryType(memoryType types.MemoryType) AddOption {
	return func(r *types.MemoryRecord) {
		r.Type = memoryType
	}
}

// WithImportance sets the record importance (default 0.5).
func WithImportance(importance float64) AddOption {
	return func(r *types.MemoryRecord) {
		r.Importance = importance
	}
}

// WithRecordTags sets the record tags.
//
// Example:
//
//	_, _ = client.Add(ctx, "Morning espresso", core.WithRecordTags("coffee", "morning"))
func WithRecordTags(tags ...string) AddOption {
	return func(r *types.MemoryRecord) {
		r.Tags = append(r.Tags, tags...)
	}
}

// WithMetadata merges metadata into the record.
func WithMetadata(metadata map[string]interface{}) AddOption {
	return func(r *types.MemoryRecord) {
		if r.Metadata == nil {
			r.Metadata = make(map[string]interface{}, len(metadata))
		}
		for k, v := range metadata {
			r.Metadata[k] = v
		}
	}
}

// WithDuration sets the duration class (default short_term).
func WithDuration(duration types.DurationClass) AddOption {
	return func(r *types.MemoryRecord) {
		r.Duration = duration
	}
}

// WithTTL makes the record expire ttl after creation.
func WithTTL(ttl time.Duration) AddOption {
	return func(r *types.MemoryRecord) {
		expires := r.CreatedAt.Add(ttl)
		r.ExpiresAt = &expires
	}
}

// WithCreatedAt backdates the record. Apply it before WithTTL.
func WithCreatedAt(createdAt time.Time) AddOption {
	return func(r *types.MemoryRecord) {
		r.CreatedAt = createdAt
	}
}

// Add creates a record from content, embeds it and adds it to the snapshot.
// With a store configured the record is written through.
func (c *Client) Add(ctx context.Context, content string, opts ...AddOption) (*types.MemoryRecord, error) {
	if content == "" {
		return nil, NewMemoryError("Add", fmt.Errorf("%w: empty content", ErrInvalidInput))
	}

	record := &types.MemoryRecord{
		AgentID:    c.config.AgentID,
		Type:       types.TypeExperience,
		Content:    content,
		Importance: 0.5,
		CreatedAt:  c.now(),
		Duration:   types.DurationShortTerm,
	}
	for _, opt := range opts {
		opt(record)
	}
	if record.ID == "" {
		record.ID = "mem_" + c.node.Generate().String()
	}

	if err := c.AddRecords(ctx, record); err != nil {
		return nil, err
	}
	return c.Get(record.ID)
}

// AddRecords validates, embeds and upserts prebuilt records into the
// snapshot. A record whose embedding cannot be computed is kept without one.
func (c *Client) AddRecords(ctx context.Context, records ...*types.MemoryRecord) error {
	prepared := make([]*types.MemoryRecord, 0, len(records))
	for _, r := range records {
		if err := r.Validate(); err != nil {
			return NewMemoryError("AddRecords", err)
		}
		embedded, err := c.search.EnsureEmbedding(ctx, r)
		if err != nil {
			c.logger.Warn("record stored without embedding", "memory_id", r.ID, "error", err)
			embedded = r
		}
		if embedded == r {
			embedded = r.Clone()
		}
		prepared = append(prepared, embedded)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.store != nil {
		if err := c.store.SaveRecords(ctx, prepared); err != nil {
			return NewMemoryError("AddRecords", err)
		}
	}

	index := c.indexLocked()
	for _, r := range prepared {
		if i, ok := index[r.ID]; ok {
			c.records[i] = r
			continue
		}
		index[r.ID] = len(c.records)
		c.records = append(c.records, r)
	}
	c.logger.Debug("records added", "count", len(prepared))
	return nil
}

// Relate adds relationships between records in the snapshot. Both endpoints
// must exist.
func (c *Client) Relate(ctx context.Context, relationships ...types.MemoryRelationship) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	index := c.indexLocked()
	for _, rel := range relationships {
		if _, ok := index[rel.SourceID]; !ok {
			return NewMemoryError("Relate", fmt.Errorf("%w: source %q", ErrNotFound, rel.SourceID))
		}
		if _, ok := index[rel.TargetID]; !ok {
			return NewMemoryError("Relate", fmt.Errorf("%w: target %q", ErrNotFound, rel.TargetID))
		}
	}

	if c.store != nil {
		if err := c.store.SaveRelationships(ctx, relationships); err != nil {
			return NewMemoryError("Relate", err)
		}
	}

	for _, rel := range relationships {
		replaced := false
		for i, existing := range c.relationships {
			if existing.SourceID == rel.SourceID && existing.TargetID == rel.TargetID && existing.Type == rel.Type {
				c.relationships[i] = rel
				replaced = true
				break
			}
		}
		if !replaced {
			c.relationships = append(c.relationships, rel)
		}
	}
	return nil
}

// Get returns a copy of the record with the given ID.
func (c *Client) Get(id string) (*types.MemoryRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if i, ok := c.indexLocked()[id]; ok {
		return c.records[i].Clone(), nil
	}
	return nil, NewMemoryError("Get", fmt.Errorf("%w: %q", ErrNotFound, id))
}

// Delete removes records and the relationships touching them. It returns
// how many records were removed from the snapshot.
func (c *Client) Delete(ctx context.Context, ids ...string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.store != nil {
		if _, err := c.store.DeleteRecords(ctx, ids); err != nil {
			return 0, NewMemoryError("Delete", err)
		}
	}
	return c.removeLocked(ids), nil
}

// Records returns a copy of the snapshot's records.
func (c *Client) Records() []*types.MemoryRecord {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]*types.MemoryRecord, len(c.records))
	for i, r := range c.records {
		out[i] = r.Clone()
	}
	return out
}

// Relationships returns a copy of the snapshot's relationships.
func (c *Client) Relationships() []types.MemoryRelationship {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]types.MemoryRelationship(nil), c.relationships...)
}

// Search runs a hybrid query for text, adjusted by opts.
//
// Example:
//
//	results, err := client.Search(ctx, "coffee",
//	    core.WithQueryType(types.QueryConceptual),
//	    core.WithExpandQuery(true),
//	    core.WithLimit(5),
//	)
func (c *Client) Search(ctx context.Context, text string, opts ...SearchOption) ([]types.SearchResult, error) {
	query := &types.SearchQuery{
		Type:  types.QueryHybrid,
		Query: text,
	}
	for _, opt := range opts {
		opt(query)
	}
	return c.SearchQuery(ctx, query)
}

// SearchQuery runs a fully specified query against the snapshot. When
// access tracking is enabled each returned record gets a read access.
func (c *Client) SearchQuery(ctx context.Context, query *types.SearchQuery) ([]types.SearchResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	results, err := c.search.Search(ctx, query, c.records, c.relationships)
	if err != nil {
		return nil, err
	}
	if c.config.Search.TrackAccess {
		for _, r := range results {
			c.manager.TrackAccess(r.Memory.ID, types.AccessRead)
		}
	}
	return results, nil
}

// TrackAccess records an access to a record.
func (c *Client) TrackAccess(id string, accessType types.AccessType) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.manager.TrackAccess(id, accessType)
}

// Prioritize scores the snapshot under policy (nil uses the configured
// policy), highest priority first.
func (c *Client) Prioritize(policy *types.PolicyConfig) []types.MemoryPriority {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.manager.Prioritize(c.records, policy, c.relationships)
}

// Cluster groups the snapshot under policy (nil uses the configured policy).
func (c *Client) Cluster(policy *types.PolicyConfig) []types.MemoryCluster {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.manager.Cluster(c.records, policy)
}

// Maintain runs one lifecycle sweep over the snapshot and replaces it with
// the result. With a store configured, removed records are deleted and the
// surviving and summary records are upserted.
//
// Example:
//
//	report, err := client.Maintain(ctx, nil)
//	fmt.Printf("expired=%d cleaned=%d summarized=%d\n",
//	    report.Expired, report.CleanedUp, report.Summarized)
func (c *Client) Maintain(ctx context.Context, policy *types.PolicyConfig) (*intelligence.MaintenanceReport, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	report, err := c.manager.Maintain(ctx, c.records, c.relationships, policy)
	if err != nil {
		return nil, err
	}
	c.embedSummaries(ctx, report)

	if c.store != nil {
		if _, err := c.store.DeleteRecords(ctx, report.RemovedIDs); err != nil {
			return nil, NewMemoryError("Maintain", err)
		}
		if err := c.store.SaveRecords(ctx, report.Records); err != nil {
			return nil, NewMemoryError("Maintain", err)
		}
	}

	c.records = report.Records
	c.dropRelationshipsLocked(report.RemovedIDs)
	for _, id := range report.RemovedIDs {
		c.manager.ResetAccess(id)
	}

	c.logger.Info("maintenance applied",
		"records", len(c.records),
		"removed", len(report.RemovedIDs),
		"summaries", len(report.Summaries),
	)
	return report, nil
}

// embedSummaries embeds the summaries that came without a centroid and
// mirrors the vectors into the report's snapshot.
func (c *Client) embedSummaries(ctx context.Context, report *intelligence.MaintenanceReport) {
	vectors := make(map[string][]float64)
	for _, s := range report.Summaries {
		if s.HasEmbedding() {
			continue
		}
		embedded, err := c.search.EnsureEmbedding(ctx, &s.MemoryRecord)
		if err != nil {
			c.logger.Warn("summary stored without embedding", "memory_id", s.ID, "error", err)
			continue
		}
		s.Embedding = embedded.Embedding
		vectors[s.ID] = embedded.Embedding
	}
	if len(vectors) == 0 {
		return
	}

	for i, r := range report.Records {
		if v, ok := vectors[r.ID]; ok {
			out := r.Clone()
			out.Embedding = append([]float64(nil), v...)
			report.Records[i] = out
		}
	}
}

// Load replaces the snapshot with the store's contents for the configured
// agent. It fails with ErrInvalidConfig when no store is configured.
func (c *Client) Load(ctx context.Context) error {
	if c.store == nil {
		return NewMemoryError("Load", fmt.Errorf("%w: no store configured", ErrInvalidConfig))
	}

	opts := &storage.LoadOptions{AgentID: c.config.AgentID}
	records, err := c.store.LoadRecords(ctx, opts)
	if err != nil {
		return NewMemoryError("Load", err)
	}
	relationships, err := c.store.LoadRelationships(ctx, opts)
	if err != nil {
		return NewMemoryError("Load", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.records = records
	c.relationships = relationships
	c.logger.Debug("snapshot loaded", "records", len(records), "relationships", len(relationships))
	return nil
}

// Persist writes the whole snapshot to the store. It fails with
// ErrInvalidConfig when no store is configured.
func (c *Client) Persist(ctx context.Context) error {
	if c.store == nil {
		return NewMemoryError("Persist", fmt.Errorf("%w: no store configured", ErrInvalidConfig))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.store.SaveRecords(ctx, c.records); err != nil {
		return NewMemoryError("Persist", err)
	}
	if err := c.store.SaveRelationships(ctx, c.relationships); err != nil {
		return NewMemoryError("Persist", err)
	}
	return nil
}

// ClearCaches empties the search and priority caches.
func (c *Client) ClearCaches() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.search.ClearCache()
	c.manager.ClearCache()
	if c.memo != nil {
		c.memo.Clear()
	}
}

// Stats reports snapshot size and cache occupancy.
func (c *Client) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Stats{
		Records:       len(c.records),
		Relationships: len(c.relationships),
		Search:        c.search.Stats(),
		Management:    c.manager.Stats(),
		Persistent:    c.store != nil,
	}
}

// Close releases the store connection and the embedding memo.
func (c *Client) Close() error {
	var errs []error
	if c.store != nil {
		errs = append(errs, c.store.Close())
	}
	if c.memo != nil {
		errs = append(errs, c.memo.Close())
	}
	return errors.Join(errs...)
}

func (c *Client) indexLocked() map[string]int {
	index := make(map[string]int, len(c.records))
	for i, r := range c.records {
		index[r.ID] = i
	}
	return index
}

func (c *Client) removeLocked(ids []string) int {
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}

	kept := c.records[:0]
	removed := 0
	for _, r := range c.records {
		if _, ok := drop[r.ID]; ok {
			removed++
			continue
		}
		kept = append(kept, r)
	}
	for i := len(kept); i < len(c.records); i++ {
		c.records[i] = nil
	}
	c.records = kept
	c.dropRelationshipsLocked(ids)
	for _, id := range ids {
		c.manager.ResetAccess(id)
	}
	return removed
}

func (c *Client) dropRelationshipsLocked(ids []string) {
	if len(ids) == 0 {
		return
	}
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	kept := c.relationships[:0]
	for _, rel := range c.relationships {
		_, src := drop[rel.SourceID]
		_, dst := drop[rel.TargetID]
		if !src && !dst {
			kept = append(kept, rel)
		}
	}
	c.relationships = kept
}

// initEmbedder builds the embedding provider, memoized when CacheSize > 0.
func initEmbedder(cfg EmbedderConfig) (embedder.Provider, *cached.Embedder, error) {
	var inner embedder.Provider
	switch cfg.Provider {
	case EmbedderOpenAI:
		client, err := openaiEmbedder.NewClient(&openaiEmbedder.Config{
			APIKey:            cfg.APIKey,
			Model:             cfg.Model,
			BaseURL:           cfg.BaseURL,
			Dimensions:        cfg.Dimensions,
			RequestsPerSecond: cfg.RequestsPerSecond,
		})
		if err != nil {
			return nil, nil, err
		}
		inner = client
	default:
		inner = hash.New(&hash.Config{Dimensions: cfg.Dimensions})
	}

	if cfg.CacheSize <= 0 {
		return inner, nil, nil
	}
	memo, err := cached.New(inner, cfg.CacheSize)
	if err != nil {
		return nil, nil, NewMemoryError("NewClient", err)
	}
	return memo, memo, nil
}

// initLLM builds the LLM provider; nil when none is configured.
func initLLM(cfg LLMConfig) (llm.Provider, error) {
	if cfg.Provider != LLMOpenAI {
		return nil, nil
	}
	client, err := openaiLLM.NewClient(&openaiLLM.Config{
		APIKey:            cfg.APIKey,
		Model:             cfg.Model,
		BaseURL:           cfg.BaseURL,
		RequestsPerSecond: cfg.RequestsPerSecond,
	})
	if err != nil {
		return nil, err
	}
	return client, nil
}

// initStorage opens the record store; nil when none is configured.
func initStorage(ctx context.Context, cfg StoreConfig, logger logging.Logger) (storage.RecordStore, error) {
	switch cfg.Provider {
	case StoreSQLite:
		client, err := sqliteStore.NewClient(ctx, &sqliteStore.Config{
			DBPath:      cfg.SQLite.Path,
			TablePrefix: cfg.TablePrefix,
			Logger:      logger,
		})
		if err != nil {
			return nil, err
		}
		return client, nil
	case StorePostgres:
		client, err := postgresStore.NewClient(ctx, &postgresStore.Config{
			Host:        cfg.Postgres.Host,
			Port:        cfg.Postgres.Port,
			User:        cfg.Postgres.User,
			Password:    cfg.Postgres.Password,
			DBName:      cfg.Postgres.DBName,
			SSLMode:     cfg.Postgres.SSLMode,
			TablePrefix: cfg.TablePrefix,
			Logger:      logger,
		})
		if err != nil {
			return nil, err
		}
		return client, nil
	case StoreOceanBase:
		client, err := oceanbase.NewClient(ctx, &oceanbase.Config{
			Host:        cfg.OceanBase.Host,
			Port:        cfg.OceanBase.Port,
			User:        cfg.OceanBase.User,
			Password:    cfg.OceanBase.Password,
			DBName:      cfg.OceanBase.DBName,
			TablePrefix: cfg.TablePrefix,
			Logger:      logger,
		})
		if err != nil {
			return nil, err
		}
		return client, nil
	default:
		return nil, nil
	}
}

func closeMemo(memo *cached.Embedder) {
	if memo != nil {
		_ = memo.Close()
	}
}
