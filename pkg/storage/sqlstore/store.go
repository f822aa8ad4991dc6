package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/oceanbase/powermem-recall/pkg/logging"
	"github.com/oceanbase/powermem-recall/pkg/storage"
	"github.com/oceanbase/powermem-recall/pkg/types"
)

// TimeLayout is the fixed-width UTC layout used for time columns, so that
// text ordering matches chronological ordering on every backend.
const TimeLayout = "2006-01-02T15:04:05.000000000Z"

var recordColumns = []string{
	"id", "agent_id", "memory_type", "content", "embedding", "metadata",
	"importance", "created_at", "tags", "duration", "expires_at",
}

var relationshipColumns = []string{"source_id", "target_id", "rel_type", "strength", "confidence"}

// Config contains configuration for a Store.
type Config struct {
	// Dialect selects placeholders, upsert syntax and quoting.
	Dialect Dialect

	// RecordsTable and RelationshipsTable are the unquoted table names.
	RecordsTable       string
	RelationshipsTable string

	// Schema holds the DDL statements run by New, in order.
	Schema []string

	// Logger receives debug logs. Nil discards them.
	Logger logging.Logger
}

// Store implements storage.RecordStore on a *sql.DB.
type Store struct {
	db      *sql.DB
	dialect Dialect
	records string
	rels    string
	logger  logging.Logger

	upsertRecord       string
	upsertRelationship string
}

var _ storage.RecordStore = (*Store)(nil)

// New wraps db, runs the schema statements and prepares the query text.
// The store owns db and closes it in Close.
func New(ctx context.Context, db *sql.DB, cfg Config) (*Store, error) {
	if db == nil || cfg.RecordsTable == "" || cfg.RelationshipsTable == "" {
		return nil, types.NewMemoryError("NewStore", types.ErrInvalidConfig)
	}

	s := &Store{
		db:      db,
		dialect: cfg.Dialect,
		records: cfg.Dialect.Quote(cfg.RecordsTable),
		rels:    cfg.Dialect.Quote(cfg.RelationshipsTable),
		logger:  cfg.Logger,
	}
	if s.logger == nil {
		s.logger = logging.NopLogger()
	}

	for _, stmt := range cfg.Schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, s.fail("initTables", err)
		}
	}

	s.upsertRecord = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) %s",
		s.records,
		strings.Join(recordColumns, ", "),
		s.dialect.placeholders(1, len(recordColumns)),
		s.dialect.Upsert(recordColumns[:1], recordColumns[1:]),
	)
	s.upsertRelationship = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) %s",
		s.rels,
		strings.Join(relationshipColumns, ", "),
		s.dialect.placeholders(1, len(relationshipColumns)),
		s.dialect.Upsert(relationshipColumns[:3], relationshipColumns[3:]),
	)
	return s, nil
}

// DB returns the underlying connection pool.
func (s *Store) DB() *sql.DB {
	return s.db
}

// SaveRecords upserts records in one transaction.
func (s *Store) SaveRecords(ctx context.Context, records []*types.MemoryRecord) error {
	if len(records) == 0 {
		return nil
	}
	return s.inTx(ctx, "SaveRecords", func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, s.upsertRecord)
		if err != nil {
			return err
		}
		defer func() { _ = stmt.Close() }()

		for _, r := range records {
			if r == nil {
				continue
			}
			args, err := recordArgs(r)
			if err != nil {
				return fmt.Errorf("record %s: %w", r.ID, err)
			}
			if _, err := stmt.ExecContext(ctx, args...); err != nil {
				return fmt.Errorf("record %s: %w", r.ID, err)
			}
		}
		s.logger.Debug("saved records", "backend", s.dialect.Name, "count", len(records))
		return nil
	})
}

// LoadRecords returns records ordered by creation time, then ID.
func (s *Store) LoadRecords(ctx context.Context, opts *storage.LoadOptions) ([]*types.MemoryRecord, error) {
	if opts == nil {
		opts = &storage.LoadOptions{}
	}

	var (
		where string
		args  []interface{}
	)
	if opts.AgentID != "" {
		where = "WHERE agent_id = " + s.dialect.Placeholder(1)
		args = append(args, opts.AgentID)
	}

	query := fmt.Sprintf("SELECT %s FROM %s %s ORDER BY created_at, id%s",
		strings.Join(recordColumns, ", "), s.records, where, s.page(opts, len(args)+1, &args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, s.fail("LoadRecords", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*types.MemoryRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, s.fail("LoadRecords", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, s.fail("LoadRecords", err)
	}
	return out, nil
}

// DeleteRecords removes records and their relationships in one transaction.
func (s *Store) DeleteRecords(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	var removed int64
	err := s.inTx(ctx, "DeleteRecords", func(tx *sql.Tx) error {
		delRecord := fmt.Sprintf("DELETE FROM %s WHERE id = %s", s.records, s.dialect.Placeholder(1))
		delEdges := fmt.Sprintf("DELETE FROM %s WHERE source_id = %s OR target_id = %s",
			s.rels, s.dialect.Placeholder(1), s.dialect.Placeholder(2))

		for _, id := range ids {
			res, err := tx.ExecContext(ctx, delRecord, id)
			if err != nil {
				return err
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			removed += n
			if _, err := tx.ExecContext(ctx, delEdges, id, id); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// SaveRelationships upserts relationships in one transaction.
func (s *Store) SaveRelationships(ctx context.Context, relationships []types.MemoryRelationship) error {
	if len(relationships) == 0 {
		return nil
	}
	return s.inTx(ctx, "SaveRelationships", func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, s.upsertRelationship)
		if err != nil {
			return err
		}
		defer func() { _ = stmt.Close() }()

		for _, rel := range relationships {
			if rel.SourceID == "" || rel.TargetID == "" {
				return fmt.Errorf("%w: relationship with empty endpoint", types.ErrInvalidInput)
			}
			if _, err := stmt.ExecContext(ctx, rel.SourceID, rel.TargetID, rel.Type, rel.Strength, rel.Confidence); err != nil {
				return fmt.Errorf("relationship %s->%s: %w", rel.SourceID, rel.TargetID, err)
			}
		}
		return nil
	})
}

// LoadRelationships returns relationships ordered by source, target and type.
func (s *Store) LoadRelationships(ctx context.Context, opts *storage.LoadOptions) ([]types.MemoryRelationship, error) {
	if opts == nil {
		opts = &storage.LoadOptions{}
	}

	var (
		where string
		args  []interface{}
	)
	if opts.AgentID != "" {
		where = fmt.Sprintf("WHERE source_id IN (SELECT id FROM %s WHERE agent_id = %s)", s.records, s.dialect.Placeholder(1))
		args = append(args, opts.AgentID)
	}

	query := fmt.Sprintf("SELECT %s FROM %s %s ORDER BY source_id, target_id, rel_type%s",
		strings.Join(relationshipColumns, ", "), s.rels, where, s.page(opts, len(args)+1, &args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, s.fail("LoadRelationships", err)
	}
	defer func() { _ = rows.Close() }()

	var out []types.MemoryRelationship
	for rows.Next() {
		var rel types.MemoryRelationship
		if err := rows.Scan(&rel.SourceID, &rel.TargetID, &rel.Type, &rel.Strength, &rel.Confidence); err != nil {
			return nil, s.fail("LoadRelationships", err)
		}
		out = append(out, rel)
	}
	if err := rows.Err(); err != nil {
		return nil, s.fail("LoadRelationships", err)
	}
	return out, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// page appends LIMIT/OFFSET bind arguments and returns the clause.
func (s *Store) page(opts *storage.LoadOptions, next int, args *[]interface{}) string {
	if opts.Limit <= 0 && opts.Offset <= 0 {
		return ""
	}
	limit := opts.Limit
	if limit <= 0 {
		// MySQL has no "offset without limit"; use its documented maximum.
		limit = 1<<63 - 1
	}
	*args = append(*args, limit, opts.Offset)
	return fmt.Sprintf(" LIMIT %s OFFSET %s", s.dialect.Placeholder(next), s.dialect.Placeholder(next+1))
}

func (s *Store) inTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return s.fail(op, err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return s.fail(op, err)
	}
	if err := tx.Commit(); err != nil {
		return s.fail(op, err)
	}
	return nil
}

func (s *Store) fail(op string, err error) error {
	return types.NewMemoryError(op, fmt.Errorf("%w: %s: %w", types.ErrStorageOperation, s.dialect.Name, err))
}

func recordArgs(r *types.MemoryRecord) ([]interface{}, error) {
	embedding, err := json.Marshal(r.Embedding)
	if err != nil {
		return nil, err
	}
	metadata, err := json.Marshal(r.Metadata)
	if err != nil {
		return nil, err
	}
	tags, err := json.Marshal(r.Tags)
	if err != nil {
		return nil, err
	}

	var expires interface{}
	if r.ExpiresAt != nil {
		expires = formatTime(*r.ExpiresAt)
	}

	return []interface{}{
		r.ID,
		r.AgentID,
		string(r.Type),
		r.Content,
		string(embedding),
		string(metadata),
		r.Importance,
		formatTime(r.CreatedAt),
		string(tags),
		string(r.Duration),
		expires,
	}, nil
}

func scanRecord(rows *sql.Rows) (*types.MemoryRecord, error) {
	var (
		r                         types.MemoryRecord
		memoryType, duration      string
		embedding, metadata, tags sql.NullString
		createdAt                 string
		expiresAt                 sql.NullString
	)
	if err := rows.Scan(&r.ID, &r.AgentID, &memoryType, &r.Content, &embedding, &metadata,
		&r.Importance, &createdAt, &tags, &duration, &expiresAt); err != nil {
		return nil, err
	}
	r.Type = types.MemoryType(memoryType)
	r.Duration = types.DurationClass(duration)

	if err := unmarshalColumn(embedding, &r.Embedding); err != nil {
		return nil, fmt.Errorf("record %s embedding: %w", r.ID, err)
	}
	if err := unmarshalColumn(metadata, &r.Metadata); err != nil {
		return nil, fmt.Errorf("record %s metadata: %w", r.ID, err)
	}
	if err := unmarshalColumn(tags, &r.Tags); err != nil {
		return nil, fmt.Errorf("record %s tags: %w", r.ID, err)
	}

	created, err := parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("record %s created_at: %w", r.ID, err)
	}
	r.CreatedAt = created

	if expiresAt.Valid && expiresAt.String != "" {
		t, err := parseTime(expiresAt.String)
		if err != nil {
			return nil, fmt.Errorf("record %s expires_at: %w", r.ID, err)
		}
		r.ExpiresAt = &t
	}
	return &r, nil
}

func unmarshalColumn(col sql.NullString, dst interface{}) error {
	if !col.Valid || col.String == "" || col.String == "null" {
		return nil
	}
	return json.Unmarshal([]byte(col.String), dst)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(TimeLayout, s)
	if err != nil {
		// Rows written by other tools may use plain RFC 3339.
		return time.Parse(time.RFC3339Nano, s)
	}
	return t, nil
}
