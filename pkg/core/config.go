// Package core provides the PowerMem recall client: one agent's memory
// snapshot wired to the search engine, the management engine and an
// optional persistent store.
package core

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	openaiEmbedder "github.com/oceanbase/powermem-recall/pkg/embedder/openai"
	"github.com/oceanbase/powermem-recall/pkg/types"
)

// Provider names accepted by the configuration.
const (
	EmbedderHash   = "hash"
	EmbedderOpenAI = "openai"

	ConceptsRule = "rule"
	ConceptsLLM  = "llm"

	LLMNone   = "none"
	LLMOpenAI = "openai"

	StoreNone      = "none"
	StoreSQLite    = "sqlite"
	StorePostgres  = "postgres"
	StoreOceanBase = "oceanbase"
)

// Config contains the complete configuration for a recall client.
//
// It includes settings for:
//   - Search engine caches, page size and hybrid weights
//   - Management policy (decay, priority, clustering, cleanup)
//   - Embedding provider (local hash or OpenAI)
//   - Concept extraction (rules or LLM)
//   - LLM provider (optional, for concepts and summaries)
//   - Record store (optional persistence)
//
// Example:
//
//	config := core.DefaultConfig()
//	config.AgentID = "agent_001"
//	config.Store = core.StoreConfig{
//	    Provider: core.StoreSQLite,
//	    SQLite:   core.SQLiteConfig{Path: "./data/recall.db"},
//	}
type Config struct {
	// AgentID scopes loading from the store. Empty loads every record.
	AgentID string `json:"agent_id,omitempty" yaml:"agent_id,omitempty"`

	// NodeID is the snowflake node for generated IDs (0-1023).
	NodeID int64 `json:"node_id,omitempty" yaml:"node_id,omitempty"`

	// Search contains search engine configuration.
	Search SearchConfig `json:"search" yaml:"search"`

	// Policy is the default management policy. Nil uses the defaults.
	Policy *types.PolicyConfig `json:"policy,omitempty" yaml:"policy,omitempty"`

	// Embedder contains embedding provider configuration.
	Embedder EmbedderConfig `json:"embedder" yaml:"embedder"`

	// Concepts selects the concept extractor.
	Concepts ConceptConfig `json:"concepts" yaml:"concepts"`

	// LLM contains LLM provider configuration.
	LLM LLMConfig `json:"llm" yaml:"llm"`

	// Store contains record store configuration.
	Store StoreConfig `json:"store" yaml:"store"`

	// Logging contains logger configuration.
	Logging LoggingConfig `json:"logging" yaml:"logging"`
}

// SearchConfig configures the search engine.
type SearchConfig struct {
	// CacheSize bounds the query-result cache (default 1000).
	CacheSize int `json:"cache_size,omitempty" yaml:"cache_size,omitempty"`

	// ConceptCacheSize bounds the query-concept cache (default 1000).
	ConceptCacheSize int `json:"concept_cache_size,omitempty" yaml:"concept_cache_size,omitempty"`

	// DefaultLimit is the page size when a query sets none (default 10).
	DefaultLimit int `json:"default_limit,omitempty" yaml:"default_limit,omitempty"`

	// DefaultDepth bounds relational traversal (default 2).
	DefaultDepth int `json:"default_depth,omitempty" yaml:"default_depth,omitempty"`

	// Weights are the hybrid weights; zero fields use the engine defaults.
	Weights types.BoostFactors `json:"weights,omitempty" yaml:"weights,omitempty"`

	// TrackAccess records a read access for every returned result.
	TrackAccess bool `json:"track_access" yaml:"track_access"`
}

// EmbedderConfig contains configuration for the embedding provider.
//
// Supported providers: hash (local, no network), openai
//
// Example:
//
//	embedderConfig := core.EmbedderConfig{
//	    Provider:   "openai",
//	    APIKey:     "sk-...",
//	    Model:      "text-embedding-ada-002",
//	    Dimensions: 1536,
//	    CacheSize:  10000,
//	}
type EmbedderConfig struct {
	// Provider is the embedding provider name (hash, openai).
	Provider string `json:"provider" yaml:"provider"`

	// APIKey is the API key for remote providers.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`

	// Model is the embedding model name. The openai provider only accepts
	// text-embedding-ada-002 (the default when empty).
	Model string `json:"model,omitempty" yaml:"model,omitempty"`

	// BaseURL is the base URL for the API (optional, uses provider default if empty).
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`

	// Dimensions is the dimension of the embedding vectors.
	Dimensions int `json:"dimensions,omitempty" yaml:"dimensions,omitempty"`

	// CacheSize enables a memo of computed vectors when positive.
	CacheSize int64 `json:"cache_size,omitempty" yaml:"cache_size,omitempty"`

	// RequestsPerSecond rate-limits remote providers (0 means unlimited).
	RequestsPerSecond float64 `json:"requests_per_second,omitempty" yaml:"requests_per_second,omitempty"`
}

// ConceptConfig selects the concept extractor.
type ConceptConfig struct {
	// Provider is rule (default) or llm. The llm extractor needs an LLM
	// provider and falls back to rules when the LLM fails.
	Provider string `json:"provider" yaml:"provider"`
}

// LLMConfig contains configuration for the LLM provider.
//
// Supported providers: none, openai (and OpenAI-compatible endpoints via
// BaseURL)
type LLMConfig struct {
	// Provider is the LLM provider name (none, openai).
	Provider string `json:"provider" yaml:"provider"`

	// APIKey is the API key for the LLM provider.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`

	// Model is the model name to use.
	Model string `json:"model,omitempty" yaml:"model,omitempty"`

	// BaseURL is the base URL for the API (optional).
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`

	// RequestsPerSecond rate-limits requests (0 means unlimited).
	RequestsPerSecond float64 `json:"requests_per_second,omitempty" yaml:"requests_per_second,omitempty"`
}

// StoreConfig contains record store configuration.
//
// Supported providers: none, sqlite, postgres, oceanbase
type StoreConfig struct {
	// Provider is the store provider name.
	Provider string `json:"provider" yaml:"provider"`

	// TablePrefix prefixes the records and relationships tables.
	TablePrefix string `json:"table_prefix,omitempty" yaml:"table_prefix,omitempty"`

	SQLite    SQLiteConfig   `json:"sqlite,omitempty" yaml:"sqlite,omitempty"`
	Postgres  DatabaseConfig `json:"postgres,omitempty" yaml:"postgres,omitempty"`
	OceanBase DatabaseConfig `json:"oceanbase,omitempty" yaml:"oceanbase,omitempty"`
}

// SQLiteConfig locates the SQLite database file.
type SQLiteConfig struct {
	Path string `json:"path" yaml:"path"`
}

// DatabaseConfig holds server connection settings.
type DatabaseConfig struct {
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port,omitempty" yaml:"port,omitempty"`
	User     string `json:"user" yaml:"user"`
	Password string `json:"password,omitempty" yaml:"password,omitempty"`
	DBName   string `json:"db_name" yaml:"db_name"`
	SSLMode  string `json:"ssl_mode,omitempty" yaml:"ssl_mode,omitempty"`
}

// LoggingConfig configures the default logger.
type LoggingConfig struct {
	// Level is debug, info, warn or error (default warn).
	Level string `json:"level,omitempty" yaml:"level,omitempty"`
}

// DefaultConfig returns a configuration that needs no network and no
// database: hash embeddings, rule concepts, no LLM and no store.
func DefaultConfig() *Config {
	return &Config{
		Search: SearchConfig{
			TrackAccess: true,
		},
		Policy:   types.DefaultPolicyConfig(),
		Embedder: EmbedderConfig{Provider: EmbedderHash},
		Concepts: ConceptConfig{Provider: ConceptsRule},
		LLM:      LLMConfig{Provider: LLMNone},
		Store:    StoreConfig{Provider: StoreNone},
		Logging:  LoggingConfig{Level: "warn"},
	}
}

// LoadConfigFromEnv loads configuration from environment variables.
//
// The function:
//  1. Searches for .env or .env.example files (up to 5 directory levels up)
//  2. Loads environment variables from the found file
//  3. Parses environment variables over DefaultConfig
//
// Supported environment variables:
//   - AGENT_ID
//   - EMBEDDING_PROVIDER (hash, openai), EMBEDDING_API_KEY, EMBEDDING_MODEL,
//     EMBEDDING_BASE_URL, EMBEDDING_DIMS, EMBEDDING_CACHE_SIZE
//   - CONCEPT_PROVIDER (rule, llm)
//   - LLM_PROVIDER (none, openai), LLM_API_KEY, LLM_MODEL, LLM_BASE_URL
//   - DATABASE_PROVIDER (none, sqlite, postgres, oceanbase), DATABASE_TABLE_PREFIX
//   - SQLITE_PATH
//   - POSTGRES_HOST, POSTGRES_PORT, POSTGRES_USER, POSTGRES_PASSWORD,
//     POSTGRES_DATABASE, POSTGRES_SSLMODE
//   - OCEANBASE_HOST, OCEANBASE_PORT, OCEANBASE_USER, OCEANBASE_PASSWORD,
//     OCEANBASE_DATABASE
//   - SEARCH_CACHE_SIZE
//   - DECAY_FUNCTION, DECAY_RATE, IMPORTANCE_FLOOR, CLEANUP_THRESHOLD,
//     CLUSTERING_STRATEGY
//   - LOG_LEVEL
//
// Example:
//
//	config, err := core.LoadConfigFromEnv()
//	if err != nil {
//	    log.Fatal(err)
//	}
func LoadConfigFromEnv() (*Config, error) {
	if envPath, found := FindEnvFile(); found {
		_ = godotenv.Load(envPath)
	}
	return configFromEnv()
}

// LoadConfigFromEnvFile loads configuration from a specific .env file.
// Variables already set in the process environment take precedence.
func LoadConfigFromEnvFile(envPath string) (*Config, error) {
	if err := godotenv.Load(envPath); err != nil {
		return nil, NewMemoryError("LoadConfigFromEnvFile", fmt.Errorf("failed to load .env file: %w", err))
	}
	return configFromEnv()
}

// LoadConfigFromJSON loads configuration from a JSON file. Fields missing
// from the file keep their DefaultConfig values.
func LoadConfigFromJSON(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewMemoryError("LoadConfigFromJSON", err)
	}

	config := DefaultConfig()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, NewMemoryError("LoadConfigFromJSON", err)
	}
	return config, nil
}

// LoadConfigFromYAML loads configuration from a YAML file. Fields missing
// from the file keep their DefaultConfig values; durations accept Go
// duration strings such as "1h" or "168h".
func LoadConfigFromYAML(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewMemoryError("LoadConfigFromYAML", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, NewMemoryError("LoadConfigFromYAML", err)
	}
	return config, nil
}

// Validate validates the configuration.
//
// Checks that:
//   - every provider name is known
//   - remote providers have an API key
//   - the llm concept extractor has an LLM to call
//   - the selected store has its connection settings
//   - the policy names known decay and clustering functions
func (c *Config) Validate() error {
	invalid := func(format string, args ...interface{}) error {
		return NewMemoryError("Validate", fmt.Errorf("%w: "+format, append([]interface{}{ErrInvalidConfig}, args...)...))
	}

	switch c.Embedder.Provider {
	case EmbedderHash:
	case EmbedderOpenAI:
		if c.Embedder.APIKey == "" {
			return invalid("embedder %q needs an API key", c.Embedder.Provider)
		}
		if c.Embedder.Model != "" && c.Embedder.Model != openaiEmbedder.DefaultModel {
			return invalid("embedder %q does not support model %q", c.Embedder.Provider, c.Embedder.Model)
		}
	default:
		return invalid("unknown embedder provider %q", c.Embedder.Provider)
	}

	llmEnabled := false
	switch c.LLM.Provider {
	case "", LLMNone:
	case LLMOpenAI:
		if c.LLM.APIKey == "" {
			return invalid("llm %q needs an API key", c.LLM.Provider)
		}
		llmEnabled = true
	default:
		return invalid("unknown llm provider %q", c.LLM.Provider)
	}

	switch c.Concepts.Provider {
	case "", ConceptsRule:
	case ConceptsLLM:
		if !llmEnabled {
			return invalid("concept provider %q needs an llm provider", c.Concepts.Provider)
		}
	default:
		return invalid("unknown concept provider %q", c.Concepts.Provider)
	}

	switch c.Store.Provider {
	case "", StoreNone:
	case StoreSQLite:
		if c.Store.SQLite.Path == "" {
			return invalid("sqlite store needs a path")
		}
	case StorePostgres:
		if c.Store.Postgres.Host == "" || c.Store.Postgres.DBName == "" {
			return invalid("postgres store needs host and db_name")
		}
	case StoreOceanBase:
		if c.Store.OceanBase.Host == "" || c.Store.OceanBase.DBName == "" {
			return invalid("oceanbase store needs host and db_name")
		}
	default:
		return invalid("unknown store provider %q", c.Store.Provider)
	}

	if c.Search.CacheSize < 0 || c.Search.ConceptCacheSize < 0 || c.Search.DefaultLimit < 0 {
		return invalid("negative search setting")
	}

	if p := c.Policy; p != nil {
		switch p.DecayFunction {
		case "", types.DecayLinear, types.DecayExponential, types.DecaySigmoid:
		default:
			return invalid("unknown decay function %q", p.DecayFunction)
		}
		switch p.ClusteringStrategy {
		case "", types.ClusterTemporal, types.ClusterEmbedding, types.ClusterConcept:
		default:
			return invalid("unknown clustering strategy %q", p.ClusteringStrategy)
		}
		if floor := p.GetImportanceFloor(); floor < 0 || floor > 1 {
			return invalid("importance floor %v outside [0, 1]", floor)
		}
		if p.GetDecayRate() < 0 {
			return invalid("negative decay rate")
		}
		if threshold := p.GetCleanupThreshold(); threshold < 0 || threshold > 1 {
			return invalid("cleanup threshold %v outside [0, 1]", threshold)
		}
	}
	return nil
}

func configFromEnv() (*Config, error) {
	config := DefaultConfig()
	config.AgentID = os.Getenv("AGENT_ID")

	var err error
	intVar := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" && err == nil {
			n, convErr := strconv.Atoi(v)
			if convErr != nil {
				err = NewMemoryError("LoadConfigFromEnv", fmt.Errorf("%w: %s=%q", ErrInvalidConfig, key, v))
				return
			}
			*dst = n
		}
	}
	floatVar := func(key string, dst **float64) {
		if v := os.Getenv(key); v != "" && err == nil {
			f, convErr := strconv.ParseFloat(v, 64)
			if convErr != nil {
				err = NewMemoryError("LoadConfigFromEnv", fmt.Errorf("%w: %s=%q", ErrInvalidConfig, key, v))
				return
			}
			*dst = types.Float64(f)
		}
	}

	config.Embedder = EmbedderConfig{
		Provider: getEnvOrDefault("EMBEDDING_PROVIDER", EmbedderHash),
		APIKey:   os.Getenv("EMBEDDING_API_KEY"),
		Model:    os.Getenv("EMBEDDING_MODEL"),
		BaseURL:  os.Getenv("EMBEDDING_BASE_URL"),
	}
	intVar("EMBEDDING_DIMS", &config.Embedder.Dimensions)
	cacheSize := 0
	intVar("EMBEDDING_CACHE_SIZE", &cacheSize)
	config.Embedder.CacheSize = int64(cacheSize)

	config.Concepts.Provider = getEnvOrDefault("CONCEPT_PROVIDER", ConceptsRule)

	config.LLM = LLMConfig{
		Provider: getEnvOrDefault("LLM_PROVIDER", LLMNone),
		APIKey:   os.Getenv("LLM_API_KEY"),
		Model:    os.Getenv("LLM_MODEL"),
		BaseURL:  os.Getenv("LLM_BASE_URL"),
	}

	config.Store.Provider = getEnvOrDefault("DATABASE_PROVIDER", StoreNone)
	config.Store.TablePrefix = os.Getenv("DATABASE_TABLE_PREFIX")
	switch config.Store.Provider {
	case StoreSQLite:
		config.Store.SQLite.Path = getEnvOrDefault("SQLITE_PATH", "./powermem.db")
	case StorePostgres:
		config.Store.Postgres = DatabaseConfig{
			Host:     getEnvOrDefault("POSTGRES_HOST", "localhost"),
			Port:     5432,
			User:     getEnvOrDefault("POSTGRES_USER", "postgres"),
			Password: os.Getenv("POSTGRES_PASSWORD"),
			DBName:   getEnvOrDefault("POSTGRES_DATABASE", "powermem"),
			SSLMode:  getEnvOrDefault("POSTGRES_SSLMODE", "disable"),
		}
		intVar("POSTGRES_PORT", &config.Store.Postgres.Port)
	case StoreOceanBase:
		config.Store.OceanBase = DatabaseConfig{
			Host:     getEnvOrDefault("OCEANBASE_HOST", "127.0.0.1"),
			Port:     2881,
			User:     getEnvOrDefault("OCEANBASE_USER", "root@sys"),
			Password: os.Getenv("OCEANBASE_PASSWORD"),
			DBName:   getEnvOrDefault("OCEANBASE_DATABASE", "powermem"),
		}
		intVar("OCEANBASE_PORT", &config.Store.OceanBase.Port)
	}

	intVar("SEARCH_CACHE_SIZE", &config.Search.CacheSize)

	if v := os.Getenv("DECAY_FUNCTION"); v != "" {
		config.Policy.DecayFunction = types.DecayFunction(v)
	}
	floatVar("DECAY_RATE", &config.Policy.DecayRate)
	floatVar("IMPORTANCE_FLOOR", &config.Policy.ImportanceFloor)
	floatVar("CLEANUP_THRESHOLD", &config.Policy.CleanupThreshold)
	if v := os.Getenv("CLUSTERING_STRATEGY"); v != "" {
		config.Policy.ClusteringStrategy = types.ClusterStrategy(v)
	}

	config.Logging.Level = getEnvOrDefault("LOG_LEVEL", config.Logging.Level)

	if err != nil {
		return nil, err
	}
	return config, nil
}

// getEnvOrDefault gets an environment variable or returns the default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// FindEnvFile searches for .env or .env.example files.
//
// The search:
//  1. Checks the current directory
//  2. Searches up to 5 directory levels up
//  3. Returns the first .env or .env.example file found
func FindEnvFile() (string, bool) {
	dir, err := os.Getwd()
	if err != nil {
		return "", false
	}
	for i := 0; i <= 5; i++ {
		for _, name := range []string{".env", ".env.example"} {
			path := filepath.Join(dir, name)
			if _, err := os.Stat(path); err == nil {
				return path, true
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false
}
