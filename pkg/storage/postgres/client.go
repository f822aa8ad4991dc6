// Package postgres provides the PostgreSQL record store.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/oceanbase/powermem-recall/pkg/logging"
	"github.com/oceanbase/powermem-recall/pkg/storage/sqlstore"
	"github.com/oceanbase/powermem-recall/pkg/types"
)

// DefaultTablePrefix prefixes the table names when none is configured.
const DefaultTablePrefix = "powermem"

// Client implements storage.RecordStore using PostgreSQL.
type Client struct {
	*sqlstore.Store
}

// Config contains PostgreSQL configuration.
type Config struct {
	Host        string
	Port        int
	User        string
	Password    string
	DBName      string
	SSLMode     string
	TablePrefix string
	Logger      logging.Logger
}

// DSN returns the lib/pq connection string for cfg.
func (cfg *Config) DSN() string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	port := cfg.Port
	if port == 0 {
		port = 5432
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		quoteValue(cfg.Host), port, quoteValue(cfg.User), quoteValue(cfg.Password), quoteValue(cfg.DBName), sslMode)
}

// NewClient creates a new PostgreSQL store and its tables.
func NewClient(ctx context.Context, cfg *Config) (*Client, error) {
	if cfg == nil || cfg.Host == "" || cfg.DBName == "" {
		return nil, types.NewMemoryError("NewPostgresClient", fmt.Errorf("%w: host and database name are required", types.ErrInvalidConfig))
	}
	prefix := cfg.TablePrefix
	if prefix == "" {
		prefix = DefaultTablePrefix
	}
	if !sqlstore.ValidIdentifier(prefix) {
		return nil, types.NewMemoryError("NewPostgresClient", fmt.Errorf("%w: table prefix %q", types.ErrInvalidConfig, prefix))
	}

	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, types.NewMemoryError("NewPostgresClient", fmt.Errorf("%w: %v", types.ErrStorageOperation, err))
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, types.NewMemoryError("NewPostgresClient", fmt.Errorf("%w: %v", types.ErrStorageOperation, err))
	}

	records, rels := prefix+"_records", prefix+"_relationships"
	store, err := sqlstore.New(ctx, db, sqlstore.Config{
		Dialect:            sqlstore.Postgres(pq.QuoteIdentifier),
		RecordsTable:       records,
		RelationshipsTable: rels,
		Schema:             schema(records, rels),
		Logger:             cfg.Logger,
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Client{Store: store}, nil
}

func schema(records, rels string) []string {
	qr, qrel := pq.QuoteIdentifier(records), pq.QuoteIdentifier(rels)
	return []string{
		fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id VARCHAR(255) PRIMARY KEY,
			agent_id VARCHAR(255) NOT NULL DEFAULT '',
			memory_type VARCHAR(64) NOT NULL DEFAULT '',
			content TEXT NOT NULL,
			embedding TEXT,
			metadata TEXT,
			importance DOUBLE PRECISION NOT NULL DEFAULT 0,
			created_at VARCHAR(40) NOT NULL,
			tags TEXT,
			duration VARCHAR(32) NOT NULL DEFAULT '',
			expires_at VARCHAR(40)
		)`, qr),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s(agent_id, created_at)`, pq.QuoteIdentifier("idx_"+records+"_agent_created"), qr),
		fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			source_id VARCHAR(255) NOT NULL,
			target_id VARCHAR(255) NOT NULL,
			rel_type VARCHAR(128) NOT NULL DEFAULT '',
			strength DOUBLE PRECISION NOT NULL DEFAULT 0,
			confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
			PRIMARY KEY (source_id, target_id, rel_type)
		)`, qrel),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s(target_id)`, pq.QuoteIdentifier("idx_"+rels+"_target"), qrel),
	}
}

// quoteValue quotes a key/value connection parameter when it contains
// spaces, quotes or backslashes.
func quoteValue(v string) string {
	needs := v == ""
	for _, r := range v {
		if r == ' ' || r == '\'' || r == '\\' {
			needs = true
			break
		}
	}
	if !needs {
		return v
	}
	out := make([]rune, 0, len(v)+2)
	out = append(out, '\'')
	for _, r := range v {
		if r == '\'' || r == '\\' {
			out = append(out, '\\')
		}
		out = append(out, r)
	}
	return string(append(out, '\''))
}
