package domain

import (
	"errors"
	"fmt"
)

// Error classes. Every domain error unwraps to exactly one of these so
// callers can branch on the class with errors.Is.
var (
	// ErrValidation indicates bad input. Never retried.
	ErrValidation = errors.New("validation failed")

	// ErrTransient indicates a network or timeout-like failure. Retried per policy.
	ErrTransient = errors.New("transient failure")

	// ErrStorage indicates a storage failure. Only lock timeouts are retried.
	ErrStorage = errors.New("storage failure")

	// ErrPermission indicates the caller must act. Never retried automatically.
	ErrPermission = errors.New("permission denied")

	// ErrConfiguration indicates a fatal setup problem. Escalated.
	ErrConfiguration = errors.New("configuration error")
)

// classError is a sentinel that belongs to a class.
type classError struct {
	msg   string
	class error
}

func (e *classError) Error() string { return e.msg }
func (e *classError) Unwrap() error { return e.class }

func classed(msg string, class error) error {
	return &classError{msg: msg, class: class}
}

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = classed("not found", ErrValidation)

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = classed("invalid input", ErrValidation)

	// ErrEmptyQuery is returned before any retrieval path runs.
	ErrEmptyQuery = classed("empty query", ErrValidation)

	// ErrUnknownTool indicates a plan step names an unregistered tool.
	ErrUnknownTool = classed("unknown tool", ErrValidation)

	// ErrUnknownSource indicates an ingest names an unregistered source.
	ErrUnknownSource = classed("unknown source", ErrValidation)

	// ErrInvalidPlanState indicates a transition the state machine forbids.
	ErrInvalidPlanState = classed("invalid plan state", ErrValidation)

	// Storage Errors.

	// ErrConstraintViolation indicates a uniqueness, check or foreign key failure.
	ErrConstraintViolation = classed("constraint violation", ErrStorage)

	// ErrWriteTimeout indicates the store's write token was not acquired in time.
	ErrWriteTimeout = classed("write timeout", ErrStorage)

	// ErrLockTimeout indicates the storage engine reported a busy database.
	ErrLockTimeout = classed("database locked", ErrStorage)

	// ErrIndexUnavailable indicates the lexical index could not be queried.
	ErrIndexUnavailable = classed("text index unavailable", ErrStorage)

	// ErrSchemaVersionMismatch indicates the store is newer than this binary.
	// There is no automatic downgrade.
	ErrSchemaVersionMismatch = classed("schema version mismatch", ErrConfiguration)

	// Capability Errors.

	// ErrEmbeddingUnavailable indicates the embedding service is not configured
	// or not reachable. Semantic search degrades to an empty result.
	ErrEmbeddingUnavailable = classed("embedding service unavailable", ErrTransient)

	// ErrCircuitOpen indicates a call was short-circuited by an open breaker.
	ErrCircuitOpen = classed("circuit open", ErrTransient)

	// Orchestration Errors.

	// ErrConfirmationRequired indicates a gated plan was presented with a
	// missing or mismatched confirmation hash.
	ErrConfirmationRequired = classed("confirmation required", ErrPermission)

	// ErrConfirmationExpired indicates the confirmation window has elapsed.
	ErrConfirmationExpired = classed("confirmation expired", ErrPermission)

	// ErrPartialRollback may be returned by a compensation that undid only part
	// of its step. The rollback is recorded as partial.
	ErrPartialRollback = errors.New("partial rollback")
)

// NewValidationError builds an ErrInvalidInput with a formatted reason.
func NewValidationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// TransientError marks err as transient so that retry policies pick it up.
func TransientError(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrTransient, err)
}

// PermissionError marks err as requiring user action.
func PermissionError(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrPermission, err)
}

// IsLockTimeout reports whether err is a retryable storage lock failure.
func IsLockTimeout(err error) bool {
	return errors.Is(err, ErrWriteTimeout) || errors.Is(err, ErrLockTimeout)
}
