// Package storage defines the snapshot store used to persist memory records
// and relationships between engine runs.
//
// The engines never talk to a store directly: a caller loads a snapshot,
// hands it to the search and management engines, and saves the snapshot they
// return. All implementations (SQLite, PostgreSQL, OceanBase) satisfy
// RecordStore.
package storage

import (
	"context"

	"github.com/oceanbase/powermem-recall/pkg/types"
)

// RecordStore defines the interface for record storage backends.
type RecordStore interface {
	// SaveRecords inserts or replaces records by ID.
	SaveRecords(ctx context.Context, records []*types.MemoryRecord) error

	// LoadRecords returns the stored records, oldest first.
	LoadRecords(ctx context.Context, opts *LoadOptions) ([]*types.MemoryRecord, error)

	// DeleteRecords removes records by ID together with every relationship
	// that starts or ends at them. Unknown IDs are ignored.
	//
	// Returns the number of records removed.
	DeleteRecords(ctx context.Context, ids []string) (int64, error)

	// SaveRelationships inserts or replaces relationships keyed by
	// (source, target, type).
	SaveRelationships(ctx context.Context, relationships []types.MemoryRelationship) error

	// LoadRelationships returns the stored relationships. When opts names an
	// agent, only edges whose source record belongs to that agent are
	// returned.
	LoadRelationships(ctx context.Context, opts *LoadOptions) ([]types.MemoryRelationship, error)

	// Close closes the store and releases resources.
	Close() error
}

// LoadOptions contains options for load operations.
type LoadOptions struct {
	// AgentID restricts the result to one agent's records.
	AgentID string

	// Limit sets the maximum number of results to return (0 means no limit).
	Limit int

	// Offset sets the number of results to skip (for pagination).
	Offset int
}
