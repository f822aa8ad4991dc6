// Package sqlite provides the SQLite record store.
//
// SQLite is a lightweight, file-based database suitable for local development
// and single-agent deployments. Embeddings, metadata and tags are stored as
// JSON strings in TEXT columns.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/oceanbase/powermem-recall/pkg/logging"
	"github.com/oceanbase/powermem-recall/pkg/storage/sqlstore"
	"github.com/oceanbase/powermem-recall/pkg/types"
)

// DefaultTablePrefix prefixes the table names when none is configured.
const DefaultTablePrefix = "powermem"

// Client implements storage.RecordStore using SQLite as the backend.
type Client struct {
	*sqlstore.Store
}

// Config contains configuration for creating a SQLite store.
type Config struct {
	// DBPath is the path to the SQLite database file. ":memory:" keeps the
	// database in memory for the life of the client.
	DBPath string

	// TablePrefix prefixes the records and relationships tables.
	TablePrefix string

	// Logger receives debug logs.
	Logger logging.Logger
}

// NewClient creates a new SQLite store, creating the database file, its
// directory and the tables when missing.
//
// Parameters:
//   - ctx: Context for connection check and table creation
//   - cfg: Configuration containing database path and table prefix
//
// Returns:
//   - *Client: The SQLite client instance
//   - error: Error if database connection or table creation fails
func NewClient(ctx context.Context, cfg *Config) (*Client, error) {
	if cfg == nil || cfg.DBPath == "" {
		return nil, types.NewMemoryError("NewSQLiteClient", fmt.Errorf("%w: empty database path", types.ErrInvalidConfig))
	}
	prefix := cfg.TablePrefix
	if prefix == "" {
		prefix = DefaultTablePrefix
	}
	if !sqlstore.ValidIdentifier(prefix) {
		return nil, types.NewMemoryError("NewSQLiteClient", fmt.Errorf("%w: table prefix %q", types.ErrInvalidConfig, prefix))
	}

	dsn := cfg.DBPath
	if cfg.DBPath != ":memory:" {
		dbDir := filepath.Dir(cfg.DBPath)
		if dbDir != "" && dbDir != "." {
			if err := os.MkdirAll(dbDir, 0755); err != nil {
				return nil, types.NewMemoryError("NewSQLiteClient", fmt.Errorf("%w: create directory: %v", types.ErrStorageOperation, err))
			}
		}
		dsn += "?_foreign_keys=1&_journal_mode=WAL"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, types.NewMemoryError("NewSQLiteClient", fmt.Errorf("%w: %v", types.ErrStorageOperation, err))
	}
	if cfg.DBPath == ":memory:" {
		// Every pooled connection would otherwise see its own empty database.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, types.NewMemoryError("NewSQLiteClient", fmt.Errorf("%w: %v", types.ErrStorageOperation, err))
	}

	records, rels := prefix+"_records", prefix+"_relationships"
	store, err := sqlstore.New(ctx, db, sqlstore.Config{
		Dialect:            sqlstore.SQLite,
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
	return []string{
		fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			agent_id TEXT NOT NULL DEFAULT '',
			memory_type TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL,
			embedding TEXT,
			metadata TEXT,
			importance REAL NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			tags TEXT,
			duration TEXT NOT NULL DEFAULT '',
			expires_at TEXT
		)`, records),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_agent_created ON %s(agent_id, created_at)`, records, records),
		fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			source_id TEXT NOT NULL,
			target_id TEXT NOT NULL,
			rel_type TEXT NOT NULL DEFAULT '',
			strength REAL NOT NULL DEFAULT 0,
			confidence REAL NOT NULL DEFAULT 0,
			PRIMARY KEY (source_id, target_id, rel_type)
		)`, rels),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_target ON %s(target_id)`, rels, rels),
	}
}
