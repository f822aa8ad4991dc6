// Package oceanbase provides the OceanBase record store over the MySQL wire
// protocol.
package oceanbase

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"strconv"

	"github.com/go-sql-driver/mysql"

	"github.com/oceanbase/powermem-recall/pkg/logging"
	"github.com/oceanbase/powermem-recall/pkg/storage/sqlstore"
	"github.com/oceanbase/powermem-recall/pkg/types"
)

// DefaultTablePrefix prefixes the table names when none is configured.
const DefaultTablePrefix = "powermem"

// Client implements storage.RecordStore using OceanBase.
type Client struct {
	*sqlstore.Store
}

// Config contains OceanBase configuration.
type Config struct {
	Host        string
	Port        int
	User        string
	Password    string
	DBName      string
	TablePrefix string
	Logger      logging.Logger
}

// DSN returns the go-sql-driver/mysql data source name for cfg.
func (cfg *Config) DSN() string {
	port := cfg.Port
	if port == 0 {
		port = 2881
	}
	mc := mysql.NewConfig()
	mc.User = cfg.User
	mc.Passwd = cfg.Password
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(cfg.Host, strconv.Itoa(port))
	mc.DBName = cfg.DBName
	mc.ParseTime = true
	return mc.FormatDSN()
}

// NewClient creates a new OceanBase store and its tables.
func NewClient(ctx context.Context, cfg *Config) (*Client, error) {
	if cfg == nil || cfg.Host == "" || cfg.DBName == "" {
		return nil, types.NewMemoryError("NewOceanBaseClient", fmt.Errorf("%w: host and database name are required", types.ErrInvalidConfig))
	}
	prefix := cfg.TablePrefix
	if prefix == "" {
		prefix = DefaultTablePrefix
	}
	if !sqlstore.ValidIdentifier(prefix) {
		return nil, types.NewMemoryError("NewOceanBaseClient", fmt.Errorf("%w: table prefix %q", types.ErrInvalidConfig, prefix))
	}

	db, err := sql.Open("mysql", cfg.DSN())
	if err != nil {
		return nil, types.NewMemoryError("NewOceanBaseClient", fmt.Errorf("%w: %v", types.ErrStorageOperation, err))
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, types.NewMemoryError("NewOceanBaseClient", fmt.Errorf("%w: %v", types.ErrStorageOperation, err))
	}

	records, rels := prefix+"_records", prefix+"_relationships"
	store, err := sqlstore.New(ctx, db, sqlstore.Config{
		Dialect:            sqlstore.MySQL,
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
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS `%s` ("+`
			id VARCHAR(128) PRIMARY KEY,
			agent_id VARCHAR(128) NOT NULL DEFAULT '',
			memory_type VARCHAR(64) NOT NULL DEFAULT '',
			content LONGTEXT NOT NULL,
			embedding LONGTEXT,
			metadata LONGTEXT,
			importance DOUBLE NOT NULL DEFAULT 0,
			created_at VARCHAR(40) NOT NULL,
			tags TEXT,
			duration VARCHAR(32) NOT NULL DEFAULT '',
			expires_at VARCHAR(40),
			INDEX idx_agent_created (agent_id, created_at)
		)`, records),
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS `%s` ("+`
			source_id VARCHAR(128) NOT NULL,
			target_id VARCHAR(128) NOT NULL,
			rel_type VARCHAR(128) NOT NULL DEFAULT '',
			strength DOUBLE NOT NULL DEFAULT 0,
			confidence DOUBLE NOT NULL DEFAULT 0,
			PRIMARY KEY (source_id, target_id, rel_type),
			INDEX idx_target (target_id)
		)`, rels),
	}
}
