package backup

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// OperationKind distinguishes backup from restore operations
type OperationKind string

const (
	KindBackup  OperationKind = "BACKUP"
	KindRestore OperationKind = "RESTORE"
)

// OperationStatus tracks the lifecycle of a single operation
type OperationStatus string

const (
	StatusPending    OperationStatus = "PENDING"
	StatusRunning    OperationStatus = "RUNNING"
	StatusCompleted  OperationStatus = "COMPLETED"
	StatusFailed     OperationStatus = "FAILED"
	StatusRolledBack OperationStatus = "ROLLED_BACK"
)

// DatabaseDescriptor holds the connection configuration for the target data store
type DatabaseDescriptor struct {
	Type     string `json:"type" yaml:"type"` // mysql, postgres, workflow
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	Username string `json:"username" yaml:"username"`
	Password string `json:"-" yaml:"password"`
	Database string `json:"database" yaml:"database"`
	// Container names the container the workflow tool runs in; empty for
	// direct database connections.
	Container string `json:"container,omitempty" yaml:"container,omitempty"`
}

// Operation is the mutable state of one backup or restore attempt. It is
// exclusively owned by the caller that created it and mutated only by the
// executor and the strategy the executor invokes. It is not a durable record.
type Operation struct {
	ID   string        `json:"id"`
	Kind OperationKind `json:"kind"`

	// Configuration, immutable once set
	Database *DatabaseDescriptor `json:"database"`
	Storage  *StorageConfig      `json:"storage"`
	Policy   *BackupPolicy       `json:"policy"`

	// SourceBackupID identifies the artifact to restore from (restore only)
	SourceBackupID string `json:"source_backup_id,omitempty"`

	// Mutable state
	Status              OperationStatus `json:"status"`
	StartedAt           *time.Time      `json:"started_at,omitempty"`
	EndedAt             *time.Time      `json:"ended_at,omitempty"`
	ArtifactPath        string          `json:"artifact_path,omitempty"`
	RawSizeBytes        int64           `json:"raw_size_bytes,omitempty"`
	CompressedSizeBytes int64           `json:"compressed_size_bytes,omitempty"`
	StorageLocation     string          `json:"storage_location,omitempty"`
	Checksum            string          `json:"checksum,omitempty"`
	ErrorMessage        string          `json:"error_message,omitempty"`
	Validations         map[string]bool `json:"validations,omitempty"`
	SafetyBackupID      string          `json:"safety_backup_id,omitempty"`
}

// NewOperation creates a pending operation with a fresh id
func NewOperation(kind OperationKind, db *DatabaseDescriptor, storage *StorageConfig, policy *BackupPolicy) *Operation {
	return &Operation{
		ID:          uuid.New().String(),
		Kind:        kind,
		Database:    db,
		Storage:     storage,
		Policy:      policy,
		Status:      StatusPending,
		Validations: make(map[string]bool),
	}
}

// Start transitions the operation from pending to running
func (op *Operation) Start() error {
	if op.Status != StatusPending {
		return NewValidationError(fmt.Sprintf("cannot start operation in status %s", op.Status), nil).WithOperation(op.ID)
	}
	now := time.Now()
	op.Status = StatusRunning
	op.StartedAt = &now
	return nil
}

// Complete transitions the operation from running to completed
func (op *Operation) Complete() error {
	if op.Status != StatusRunning {
		return NewValidationError(fmt.Sprintf("cannot complete operation in status %s", op.Status), nil).WithOperation(op.ID)
	}
	now := time.Now()
	op.Status = StatusCompleted
	op.EndedAt = &now
	return nil
}

// Fail transitions the operation from running to failed and records the message
func (op *Operation) Fail(message string) error {
	if op.Status != StatusRunning {
		return NewValidationError(fmt.Sprintf("cannot fail operation in status %s", op.Status), nil).WithOperation(op.ID)
	}
	now := time.Now()
	op.Status = StatusFailed
	op.EndedAt = &now
	op.ErrorMessage = message
	return nil
}

// Reject moves a pending operation directly to failed. It is the terminal
// transition for operations whose configuration was invalid before any work
// started; timestamps stay unset because the operation never ran.
func (op *Operation) Reject(message string) error {
	if op.Status != StatusPending {
		return NewValidationError(fmt.Sprintf("cannot reject operation in status %s", op.Status), nil).WithOperation(op.ID)
	}
	op.Status = StatusFailed
	op.ErrorMessage = message
	return nil
}

// MarkRolledBack upgrades a failed restore to rolled-back so callers can
// distinguish "failed and reverted" from "failed and left in an unknown state"
func (op *Operation) MarkRolledBack() error {
	if op.Status != StatusFailed {
		return NewValidationError(fmt.Sprintf("cannot mark operation rolled back in status %s", op.Status), nil).WithOperation(op.ID)
	}
	if op.Kind != KindRestore {
		return NewValidationError("only restore operations can be rolled back", nil).WithOperation(op.ID)
	}
	op.Status = StatusRolledBack
	return nil
}

// IsTerminal reports whether the operation reached a final status
func (op *Operation) IsTerminal() bool {
	switch op.Status {
	case StatusCompleted, StatusFailed, StatusRolledBack:
		return true
	}
	return false
}

// Duration returns the elapsed time of the operation. While running it is the
// time since start; before start it is zero and ok is false.
func (op *Operation) Duration() (time.Duration, bool) {
	if op.StartedAt == nil {
		return 0, false
	}
	if op.EndedAt != nil {
		return op.EndedAt.Sub(*op.StartedAt), true
	}
	if op.Status == StatusRunning {
		return time.Since(*op.StartedAt), true
	}
	return 0, false
}

// CompressionRatio returns raw/compressed size. It is only defined when both
// sizes are recorded and the compressed size is non-zero.
func (op *Operation) CompressionRatio() (float64, bool) {
	if op.RawSizeBytes <= 0 || op.CompressedSizeBytes <= 0 {
		return 0, false
	}
	return float64(op.RawSizeBytes) / float64(op.CompressedSizeBytes), true
}

// RecordValidation stores the outcome of a named check
func (op *Operation) RecordValidation(name string, passed bool) {
	if op.Validations == nil {
		op.Validations = make(map[string]bool)
	}
	op.Validations[name] = passed
}

// Report is the loggable projection of an operation. The database password is
// excluded unconditionally.
type Report struct {
	ID              string          `json:"id"`
	Kind            OperationKind   `json:"kind"`
	Status          OperationStatus `json:"status"`
	DatabaseType    string          `json:"database_type,omitempty"`
	DatabaseName    string          `json:"database_name,omitempty"`
	DatabaseHost    string          `json:"database_host,omitempty"`
	StartedAt       *time.Time      `json:"started_at,omitempty"`
	EndedAt         *time.Time      `json:"ended_at,omitempty"`
	DurationSeconds float64         `json:"duration_seconds,omitempty"`
	RawSizeBytes    int64           `json:"raw_size_bytes,omitempty"`
	CompressedBytes int64           `json:"compressed_size_bytes,omitempty"`
	StorageLocation string          `json:"storage_location,omitempty"`
	Checksum        string          `json:"checksum,omitempty"`
	ErrorMessage    string          `json:"error_message,omitempty"`
	Validations     map[string]bool `json:"validations,omitempty"`
	SafetyBackupID  string          `json:"safety_backup_id,omitempty"`
}

// BuildReport serializes the operation for reporting and logging
func (op *Operation) BuildReport() *Report {
	r := &Report{
		ID:              op.ID,
		Kind:            op.Kind,
		Status:          op.Status,
		StartedAt:       op.StartedAt,
		EndedAt:         op.EndedAt,
		RawSizeBytes:    op.RawSizeBytes,
		CompressedBytes: op.CompressedSizeBytes,
		StorageLocation: op.StorageLocation,
		Checksum:        op.Checksum,
		ErrorMessage:    op.ErrorMessage,
		Validations:     op.Validations,
		SafetyBackupID:  op.SafetyBackupID,
	}
	if op.Database != nil {
		r.DatabaseType = op.Database.Type
		r.DatabaseName = op.Database.Database
		r.DatabaseHost = op.Database.Host
	}
	if d, ok := op.Duration(); ok {
		r.DurationSeconds = d.Seconds()
	}
	return r
}
