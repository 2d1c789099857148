package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"dbguardian/internal/logging"
)

// SafetyRollbackCoordinator wraps the restore path with a pre-restore safety
// snapshot and automatic reinstatement on failure. Rollback is not a recursive
// restore call: it is a second, rollback-mode restore dispatched through the
// same executor with the safety-snapshot step structurally absent, so no
// further recursion is possible.
type SafetyRollbackCoordinator struct {
	backupStrategy   Strategy
	restoreStrategy  Strategy
	rollbackStrategy Strategy
	storage          StorageProvider
	validator        *IntegrityValidator
	config           *ExecutorConfig
	logger           *logging.Logger
	metrics          *MetricsCollector
	notifier         *NotificationManager
	skipSafety       bool
}

// NewSafetyRollbackCoordinator builds the coordinator. The snapshot and
// restore strategies are resolved by name through the registry so an unknown
// or unregistered strategy fails here, at construction time. The rollback-mode
// strategy is built directly: rollback is an internal mode of the coordinator,
// never selectable by name.
func NewSafetyRollbackCoordinator(registry *Registry, deps StrategyDeps, config *ExecutorConfig, logger *logging.Logger) (*SafetyRollbackCoordinator, error) {
	backupStrategy, err := registry.Resolve(StrategyNameBackup, deps)
	if err != nil {
		return nil, err
	}
	restoreStrategy, err := registry.Resolve(StrategyNameRestore, deps)
	if err != nil {
		return nil, err
	}
	return &SafetyRollbackCoordinator{
		backupStrategy:   backupStrategy,
		restoreStrategy:  restoreStrategy,
		rollbackStrategy: NewRollbackRestoreStrategy(deps),
		storage:          deps.Storage,
		validator:        deps.Validator,
		config:           config,
		logger:           logger,
	}, nil
}

// WithMetrics attaches a metrics collector shared by all executor runs
func (c *SafetyRollbackCoordinator) WithMetrics(metrics *MetricsCollector) *SafetyRollbackCoordinator {
	c.metrics = metrics
	return c
}

// WithNotifier attaches a notification manager shared by all executor runs
func (c *SafetyRollbackCoordinator) WithNotifier(notifier *NotificationManager) *SafetyRollbackCoordinator {
	c.notifier = notifier
	return c
}

// WithoutSafety disables the pre-restore snapshot. The caller is explicitly
// accepting that a failed restore cannot be rolled back.
func (c *SafetyRollbackCoordinator) WithoutSafety() *SafetyRollbackCoordinator {
	c.skipSafety = true
	return c
}

// Restore runs the full protected restore protocol: safety snapshot, snapshot
// verification, restore, and rollback on failure. The snapshot must reach a
// completed, checksum-verified state before the restore strategy is ever
// invoked. On a failed restore that was successfully rolled back, the
// operation ends RolledBack and the original restore error is returned; if
// the rollback itself fails, a RollbackFailedError naming the safety backup
// id is returned instead.
func (c *SafetyRollbackCoordinator) Restore(ctx context.Context, op *Operation) error {
	if op.Kind != KindRestore {
		return NewValidationError("safety rollback coordinator only drives restore operations", nil).WithOperation(op.ID)
	}

	if !c.skipSafety {
		safetyOp, err := c.createSafetySnapshot(ctx, op)
		if err != nil {
			return err
		}
		op.SafetyBackupID = safetyOp.StorageLocation
	} else {
		c.logger.WithField("operation_id", op.ID).Warn("safety snapshot disabled, a failed restore cannot be rolled back")
	}

	restoreErr := c.executor(c.restoreStrategy).Execute(ctx, op)
	if restoreErr == nil {
		return nil
	}
	if c.skipSafety || op.SafetyBackupID == "" {
		return restoreErr
	}
	if op.Status != StatusFailed {
		return restoreErr
	}

	c.logger.WithFields(map[string]interface{}{
		"operation_id":     op.ID,
		"safety_backup_id": op.SafetyBackupID,
	}).Warn("restore failed, rolling back to safety snapshot")

	rollbackOp := NewOperation(KindRestore, op.Database, op.Storage, op.Policy)
	rollbackOp.SourceBackupID = op.SafetyBackupID
	rollbackOp.SafetyBackupID = op.SafetyBackupID

	if rollbackErr := c.executor(c.rollbackStrategy).Execute(ctx, rollbackOp); rollbackErr != nil {
		err := &RollbackFailedError{
			SafetyBackupID: op.SafetyBackupID,
			RestoreErr:     restoreErr,
			RollbackErr:    rollbackErr,
		}
		c.logger.WithField("operation_id", op.ID).Errorf("manual recovery required: %v", err)
		c.notifyRollbackFailed(ctx, op, err)
		return err
	}

	if err := op.MarkRolledBack(); err != nil {
		c.logger.WithField("operation_id", op.ID).Warnf("could not mark operation rolled back: %v", err)
	}
	c.notifyRolledBack(ctx, op)
	return restoreErr
}

// createSafetySnapshot takes a full backup of current state and verifies it
// before the restore is allowed to proceed. A snapshot that silently captured
// a corrupt state would otherwise be faithfully restored on rollback.
func (c *SafetyRollbackCoordinator) createSafetySnapshot(ctx context.Context, op *Operation) (*Operation, error) {
	safetyOp := NewOperation(KindBackup, op.Database, op.Storage, op.Policy)
	c.logger.WithFields(map[string]interface{}{
		"operation_id":        op.ID,
		"safety_operation_id": safetyOp.ID,
	}).Info("creating pre-restore safety snapshot")

	if err := c.executor(c.backupStrategy).Execute(ctx, safetyOp); err != nil {
		return nil, NewOperationError(ErrorKindValidation,
			fmt.Sprintf("safety snapshot failed, restore aborted: %v", err), err).WithOperation(op.ID)
	}
	if safetyOp.Status != StatusCompleted {
		return nil, NewValidationError("safety snapshot did not complete, restore aborted", nil).WithOperation(op.ID)
	}

	if err := c.verifySnapshot(ctx, safetyOp); err != nil {
		return nil, err
	}
	op.RecordValidation("safety_snapshot_verified", true)
	return safetyOp, nil
}

// verifySnapshot re-fetches the snapshot from storage and checks it against
// the checksum computed at creation time
func (c *SafetyRollbackCoordinator) verifySnapshot(ctx context.Context, safetyOp *Operation) error {
	tmpDir, err := os.MkdirTemp("", "safety-verify-")
	if err != nil {
		return NewInfrastructureError("failed to create snapshot verification directory", err).WithOperation(safetyOp.ID)
	}
	defer os.RemoveAll(tmpDir)

	localPath := filepath.Join(tmpDir, filepath.Base(safetyOp.StorageLocation))
	if err := c.storage.Download(ctx, safetyOp.StorageLocation, localPath); err != nil {
		return NewStorageError("failed to fetch safety snapshot for verification", err).WithOperation(safetyOp.ID)
	}

	ok, err := c.validator.VerifyFileChecksum(localPath, safetyOp.Checksum)
	if err != nil {
		return NewIntegrityError("failed to checksum safety snapshot", err).WithOperation(safetyOp.ID)
	}
	if !ok {
		return NewIntegrityError(
			fmt.Sprintf("safety snapshot %q failed verification, restore aborted", safetyOp.StorageLocation),
			nil).WithOperation(safetyOp.ID)
	}
	return nil
}

func (c *SafetyRollbackCoordinator) executor(strategy Strategy) *OperationExecutor {
	exec := NewOperationExecutor(strategy, c.config, c.logger)
	if c.metrics != nil {
		exec.WithMetrics(c.metrics)
	}
	if c.notifier != nil {
		exec.WithNotifier(c.notifier)
	}
	return exec
}

func (c *SafetyRollbackCoordinator) notifyRolledBack(ctx context.Context, op *Operation) {
	if c.notifier == nil {
		return
	}
	if err := c.notifier.Notify(ctx, AlertForOperation(op)); err != nil {
		c.logger.WithField("operation_id", op.ID).Warnf("notification delivery failed: %v", err)
	}
}

func (c *SafetyRollbackCoordinator) notifyRollbackFailed(ctx context.Context, op *Operation, rbErr *RollbackFailedError) {
	if c.notifier == nil {
		return
	}
	alert := AlertForOperation(op)
	alert.Type = AlertTypeRollbackFailed
	alert.Severity = AlertSeverityCritical
	alert.Title = fmt.Sprintf("Rollback of %s failed, manual recovery required", op.Database.Database)
	alert.Message = rbErr.Error()
	if err := c.notifier.Notify(ctx, alert); err != nil {
		c.logger.WithField("operation_id", op.ID).Warnf("notification delivery failed: %v", err)
	}
}
