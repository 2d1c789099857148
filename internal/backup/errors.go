package backup

import (
	"errors"
	"fmt"
)

// OperationError represents errors that occur during backup and restore operations
type OperationError struct {
	Kind        ErrorKind              `json:"kind"`
	Message     string                 `json:"message"`
	OperationID string                 `json:"operation_id,omitempty"`
	Cause       error                  `json:"-"`
	Context     map[string]interface{} `json:"context,omitempty"`
}

// Error implements the error interface
func (e *OperationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause error
func (e *OperationError) Unwrap() error {
	return e.Cause
}

// WithOperation attaches the owning operation id to the error
func (e *OperationError) WithOperation(id string) *OperationError {
	e.OperationID = id
	return e
}

// WithContext adds context information to the error
func (e *OperationError) WithContext(key string, value interface{}) *OperationError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// ErrorKind classifies operation errors
type ErrorKind string

const (
	ErrorKindValidation     ErrorKind = "VALIDATION_ERROR"
	ErrorKindEncryptionKey  ErrorKind = "ENCRYPTION_KEY_ERROR"
	ErrorKindInfrastructure ErrorKind = "INFRASTRUCTURE_ERROR"
	ErrorKindTool           ErrorKind = "TOOL_ERROR"
	ErrorKindStorage        ErrorKind = "STORAGE_ERROR"
	ErrorKindIntegrity      ErrorKind = "INTEGRITY_ERROR"
)

// NewOperationError creates a new OperationError
func NewOperationError(kind ErrorKind, message string, cause error) *OperationError {
	return &OperationError{
		Kind:    kind,
		Message: message,
		Cause:   cause,
	}
}

// Common error constructors
func NewValidationError(message string, cause error) *OperationError {
	return NewOperationError(ErrorKindValidation, message, cause)
}

func NewEncryptionKeyError(message string, cause error) *OperationError {
	return NewOperationError(ErrorKindEncryptionKey, message, cause)
}

func NewInfrastructureError(message string, cause error) *OperationError {
	return NewOperationError(ErrorKindInfrastructure, message, cause)
}

func NewToolError(message string, cause error) *OperationError {
	return NewOperationError(ErrorKindTool, message, cause)
}

func NewStorageError(message string, cause error) *OperationError {
	return NewOperationError(ErrorKindStorage, message, cause)
}

func NewIntegrityError(message string, cause error) *OperationError {
	return NewOperationError(ErrorKindIntegrity, message, cause)
}

// RollbackFailedError signals that both the restore and the rollback restore
// failed. The safety backup id is carried so an operator can recover manually.
// This is the one failure mode the system cannot self-heal.
type RollbackFailedError struct {
	SafetyBackupID string
	RestoreErr     error
	RollbackErr    error
}

// Error implements the error interface
func (e *RollbackFailedError) Error() string {
	return fmt.Sprintf("rollback failed after restore failure, manual recovery required from safety backup %q (restore: %v; rollback: %v)",
		e.SafetyBackupID, e.RestoreErr, e.RollbackErr)
}

// Unwrap returns the rollback error as the primary cause
func (e *RollbackFailedError) Unwrap() error {
	return e.RollbackErr
}

// IsRetryable reports whether the executor's attempt loop should retry after err.
// Only infrastructure and tool failures are transient here; everything else is
// either a configuration problem or would corrupt state if blindly repeated.
func IsRetryable(err error) bool {
	var opErr *OperationError
	if errors.As(err, &opErr) {
		switch opErr.Kind {
		case ErrorKindInfrastructure, ErrorKindTool:
			return true
		}
	}
	return false
}

// IsPermanent reports whether err is permanent and must not be retried
func IsPermanent(err error) bool {
	var opErr *OperationError
	if errors.As(err, &opErr) {
		switch opErr.Kind {
		case ErrorKindValidation, ErrorKindEncryptionKey, ErrorKindIntegrity:
			return true
		}
	}
	return false
}

// Process exit codes consumed by automation. The mapping is deterministic so
// callers can branch on the code without parsing error text.
const (
	ExitOK             = 0
	ExitValidation     = 1
	ExitInfrastructure = 2
	ExitTool           = 3
	ExitStorage        = 4
	ExitIntegrity      = 5
)

// ExitCode maps an error to its process exit code
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}

	var rollbackErr *RollbackFailedError
	if errors.As(err, &rollbackErr) {
		return ExitInfrastructure
	}

	var opErr *OperationError
	if errors.As(err, &opErr) {
		switch opErr.Kind {
		case ErrorKindValidation:
			return ExitValidation
		case ErrorKindInfrastructure:
			return ExitInfrastructure
		case ErrorKindTool:
			return ExitTool
		case ErrorKindStorage:
			return ExitStorage
		case ErrorKindIntegrity, ErrorKindEncryptionKey:
			return ExitIntegrity
		}
	}

	return ExitInfrastructure
}
