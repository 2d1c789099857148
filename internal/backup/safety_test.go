package backup

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dbguardian/internal/logging"
)

// snapshotting builds a backup strategy stub that uploads a known payload and
// records a matching checksum, so snapshot verification passes.
func snapshotting(storage *memStorage, validator *IntegrityValidator) *stubStrategy {
	payload := []byte("-- safety snapshot contents\n")
	return &stubStrategy{name: StrategyNameBackup, fn: func(op *Operation) error {
		key := "safety-snapshot.sql"
		storage.put(key, payload)
		op.StorageLocation = key
		op.Checksum = validator.ChecksumData(payload)
		return nil
	}}
}

func newTestCoordinator(storage *memStorage, validator *IntegrityValidator,
	backup, restore, rollback *stubStrategy) *SafetyRollbackCoordinator {
	return &SafetyRollbackCoordinator{
		backupStrategy:   backup,
		restoreStrategy:  restore,
		rollbackStrategy: rollback,
		storage:          storage,
		validator:        validator,
		config:           testExecutorConfig(),
		logger:           logging.NewNopLogger(),
	}
}

func TestRestoreRejectsBackupOperations(t *testing.T) {
	c := newTestCoordinator(newMemStorage(), NewIntegrityValidator(),
		&stubStrategy{}, &stubStrategy{}, &stubStrategy{})

	err := c.Restore(context.Background(), testOperation(KindBackup))

	require.Error(t, err)
	var opErr *OperationError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, ErrorKindValidation, opErr.Kind)
}

func TestRestoreHappyPath(t *testing.T) {
	storage := newMemStorage()
	validator := NewIntegrityValidator()
	backup := snapshotting(storage, validator)
	restore := &stubStrategy{name: StrategyNameRestore}
	rollback := &stubStrategy{}

	c := newTestCoordinator(storage, validator, backup, restore, rollback)
	op := testOperation(KindRestore)
	op.SourceBackupID = "20240101T020000_mysql_appdb.sql"

	err := c.Restore(context.Background(), op)

	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, op.Status)
	assert.Equal(t, 1, backup.calls)
	assert.Equal(t, 1, restore.calls)
	assert.Equal(t, 0, rollback.calls)
	assert.Equal(t, "safety-snapshot.sql", op.SafetyBackupID)
	assert.True(t, op.Validations["safety_snapshot_verified"])
}

func TestRestoreNeverRunsWhenSnapshotFails(t *testing.T) {
	storage := newMemStorage()
	backup := &stubStrategy{name: StrategyNameBackup, fn: func(op *Operation) error {
		return NewToolError("mysqldump exited with status 2", nil)
	}}
	restore := &stubStrategy{name: StrategyNameRestore}

	c := newTestCoordinator(storage, NewIntegrityValidator(), backup, restore, &stubStrategy{})
	op := testOperation(KindRestore)
	op.SourceBackupID = "20240101T020000_mysql_appdb.sql"

	err := c.Restore(context.Background(), op)

	require.Error(t, err)
	assert.Equal(t, 0, restore.calls, "restore must not start without a verified safety snapshot")

	var opErr *OperationError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, ErrorKindValidation, opErr.Kind)
	assert.Contains(t, opErr.Message, "restore aborted")
}

func TestRestoreNeverRunsWhenSnapshotVerificationFails(t *testing.T) {
	storage := newMemStorage()
	validator := NewIntegrityValidator()
	// The snapshot uploads one payload but records a checksum of another.
	backup := &stubStrategy{name: StrategyNameBackup, fn: func(op *Operation) error {
		storage.put("safety-snapshot.sql", []byte("what landed in storage"))
		op.StorageLocation = "safety-snapshot.sql"
		op.Checksum = validator.ChecksumData([]byte("what was dumped"))
		return nil
	}}
	restore := &stubStrategy{name: StrategyNameRestore}

	c := newTestCoordinator(storage, validator, backup, restore, &stubStrategy{})
	op := testOperation(KindRestore)
	op.SourceBackupID = "20240101T020000_mysql_appdb.sql"

	err := c.Restore(context.Background(), op)

	require.Error(t, err)
	assert.Equal(t, 0, restore.calls)
	var opErr *OperationError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, ErrorKindIntegrity, opErr.Kind)
}

func TestRestoreFailureTriggersRollback(t *testing.T) {
	storage := newMemStorage()
	validator := NewIntegrityValidator()
	backup := snapshotting(storage, validator)
	restore := &stubStrategy{name: StrategyNameRestore, fn: func(op *Operation) error {
		return NewIntegrityError("artifact failed validation", nil)
	}}
	var rollbackSource string
	rollback := &stubStrategy{name: StrategyNameRestore, fn: func(op *Operation) error {
		rollbackSource = op.SourceBackupID
		return nil
	}}

	c := newTestCoordinator(storage, validator, backup, restore, rollback)
	op := testOperation(KindRestore)
	op.SourceBackupID = "20240101T020000_mysql_appdb.sql"

	err := c.Restore(context.Background(), op)

	// The original restore error comes back even though the rollback succeeded.
	require.Error(t, err)
	var opErr *OperationError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, ErrorKindIntegrity, opErr.Kind)

	assert.Equal(t, StatusRolledBack, op.Status)
	assert.Equal(t, 1, rollback.calls)
	assert.Equal(t, "safety-snapshot.sql", rollbackSource,
		"rollback must restore from the safety snapshot, not the requested artifact")
}

func TestRestoreRollbackFailure(t *testing.T) {
	storage := newMemStorage()
	validator := NewIntegrityValidator()
	backup := snapshotting(storage, validator)
	restore := &stubStrategy{name: StrategyNameRestore, fn: func(op *Operation) error {
		return NewToolError("psql exited with status 3", nil)
	}}
	rollback := &stubStrategy{name: StrategyNameRestore, fn: func(op *Operation) error {
		return NewInfrastructureError("connection refused", nil)
	}}

	c := newTestCoordinator(storage, validator, backup, restore, rollback)
	op := testOperation(KindRestore)
	op.SourceBackupID = "20240101T020000_mysql_appdb.sql"

	err := c.Restore(context.Background(), op)

	require.Error(t, err)
	var rbErr *RollbackFailedError
	require.ErrorAs(t, err, &rbErr)
	assert.Equal(t, "safety-snapshot.sql", rbErr.SafetyBackupID)
	assert.Error(t, rbErr.RestoreErr)
	assert.Error(t, rbErr.RollbackErr)
	assert.Equal(t, StatusFailed, op.Status, "a failed rollback leaves the operation failed, not rolled back")
}

func TestRestoreWithoutSafetySkipsSnapshotAndRollback(t *testing.T) {
	storage := newMemStorage()
	backup := &stubStrategy{name: StrategyNameBackup}
	restore := &stubStrategy{name: StrategyNameRestore, fn: func(op *Operation) error {
		return NewToolError("psql exited with status 3", nil)
	}}
	rollback := &stubStrategy{}

	c := newTestCoordinator(storage, NewIntegrityValidator(), backup, restore, rollback).WithoutSafety()
	op := testOperation(KindRestore)
	op.SourceBackupID = "20240101T020000_mysql_appdb.sql"

	err := c.Restore(context.Background(), op)

	require.Error(t, err)
	assert.Equal(t, 0, backup.calls)
	assert.Equal(t, 0, rollback.calls)
	assert.Equal(t, StatusFailed, op.Status)
	assert.Empty(t, op.SafetyBackupID)
}

func TestNewSafetyRollbackCoordinatorResolvesThroughRegistry(t *testing.T) {
	deps := StrategyDeps{
		Storage:   newMemStorage(),
		Validator: NewIntegrityValidator(),
		Logger:    logging.NewNopLogger(),
	}

	c, err := NewSafetyRollbackCoordinator(NewRegistry(), deps, testExecutorConfig(), logging.NewNopLogger())
	require.NoError(t, err)
	assert.Equal(t, StrategyNameBackup, c.backupStrategy.Name())
	assert.Equal(t, StrategyNameRestore, c.restoreStrategy.Name())

	// A registry missing a built-in strategy fails at construction time,
	// before any operation runs.
	empty := &Registry{factories: make(map[string]StrategyFactory)}
	_, err = NewSafetyRollbackCoordinator(empty, deps, testExecutorConfig(), logging.NewNopLogger())
	require.Error(t, err)
	var opErr *OperationError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, ErrorKindValidation, opErr.Kind)
	assert.Contains(t, err.Error(), "unknown strategy")
}
