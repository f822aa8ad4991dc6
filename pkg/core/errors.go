package core

import "github.com/oceanbase/powermem-recall/pkg/types"

// Errors returned by the client. They are the shared sentinels from the
// types package, re-exported so callers only need to import core.
var (
	ErrCapabilityUnavailable = types.ErrCapabilityUnavailable
	ErrUnsupportedQueryType  = types.ErrUnsupportedQueryType
	ErrInvalidInput          = types.ErrInvalidInput
	ErrNotFound              = types.ErrNotFound
	ErrInvalidConfig         = types.ErrInvalidConfig
	ErrEmbeddingFailed       = types.ErrEmbeddingFailed
	ErrStorageOperation      = types.ErrStorageOperation
	ErrLLMOperation          = types.ErrLLMOperation
	ErrCircuitOpen           = types.ErrCircuitOpen
)

// MemoryError wraps errors with operation context.
type MemoryError = types.MemoryError

// NewMemoryError creates a new MemoryError. It returns nil when err is nil.
func NewMemoryError(op string, err error) error {
	return types.NewMemoryError(op, err)
}
