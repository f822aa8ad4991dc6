package types

import (
	"errors"
	"fmt"
)

// Predefined errors for common failure scenarios.
var (
	// ErrCapabilityUnavailable indicates that a required collaborator
	// (embedder, concept extractor, LLM) is not configured.
	ErrCapabilityUnavailable = errors.New("capability unavailable")

	// ErrUnsupportedQueryType indicates an unknown search strategy tag.
	ErrUnsupportedQueryType = errors.New("unsupported query type")

	// ErrInvalidInput indicates that the provided input is invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound indicates that a requested record was not found.
	ErrNotFound = errors.New("memory not found")

	// ErrInvalidConfig indicates that the provided configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmbeddingFailed indicates that embedding generation failed.
	ErrEmbeddingFailed = errors.New("embedding generation failed")

	// ErrStorageOperation indicates that a storage operation failed.
	ErrStorageOperation = errors.New("storage operation failed")

	// ErrLLMOperation indicates that an LLM operation failed.
	ErrLLMOperation = errors.New("llm operation failed")

	// ErrCircuitOpen is returned when a remote collaborator is short-circuited.
	ErrCircuitOpen = errors.New("circuit breaker is open")
)

// MemoryError wraps errors with operation context.
//
// Example:
//
//	err := &MemoryError{
//	    Op:  "Search",
//	    Err: ErrUnsupportedQueryType,
//	}
//	// Error() returns: "powermem: Search: unsupported query type"
type MemoryError struct {
	// Op is the name of the operation that failed.
	Op string

	// Err is the underlying error.
	Err error
}

// Error returns "powermem: <Op>: <Err>".
func (e *MemoryError) Error() string {
	return fmt.Sprintf("powermem: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error so errors.Is and errors.As work.
func (e *MemoryError) Unwrap() error {
	return e.Err
}

// NewMemoryError wraps err with the operation name. It returns nil when err
// is nil, so it can be used unconditionally on return paths.
func NewMemoryError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &MemoryError{
		Op:  op,
		Err: err,
	}
}
