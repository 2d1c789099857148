package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"dbguardian/internal/logging"
)

// OperationExecutor drives one Operation through validate, start, the
// attempt-with-retry loop, terminal state, and cleanup. Retry uses a fixed
// delay rather than backoff: transient failures here are almost always
// "daemon not yet ready", and a caller wanting backoff composes it above.
type OperationExecutor struct {
	strategy Strategy
	config   *ExecutorConfig
	logger   *logging.Logger
	metrics  *MetricsCollector
	notifier *NotificationManager
}

// NewOperationExecutor creates an executor bound to one strategy
func NewOperationExecutor(strategy Strategy, config *ExecutorConfig, logger *logging.Logger) *OperationExecutor {
	if config == nil {
		config = &ExecutorConfig{}
	}
	config.SetDefaults()
	return &OperationExecutor{
		strategy: strategy,
		config:   config,
		logger:   logger,
	}
}

// WithMetrics attaches a metrics collector
func (e *OperationExecutor) WithMetrics(metrics *MetricsCollector) *OperationExecutor {
	e.metrics = metrics
	return e
}

// WithNotifier attaches a notification manager
func (e *OperationExecutor) WithNotifier(notifier *NotificationManager) *OperationExecutor {
	e.notifier = notifier
	return e
}

// Execute runs the operation to a terminal state. Cleanup runs regardless of
// outcome. A panic escaping the strategy is caught at this boundary, folded
// into a Failed state, and returned as a typed error carrying the operation id.
func (e *OperationExecutor) Execute(ctx context.Context, op *Operation) (err error) {
	defer func() {
		if r := recover(); r != nil {
			message := fmt.Sprintf("internal error during %s operation: %v", op.Kind, r)
			_ = op.Fail(message)
			e.finish(ctx, op, 1, fmt.Errorf("%v", r))
			err = NewInfrastructureError(message, nil).WithOperation(op.ID)
		}
	}()

	if err := e.validate(op); err != nil {
		_ = op.Reject(err.Error())
		return err
	}

	if err := op.Start(); err != nil {
		return NewValidationError("operation cannot be started", err).WithOperation(op.ID)
	}
	e.logger.WithFields(map[string]interface{}{
		"operation_id": op.ID,
		"kind":         string(op.Kind),
		"database":     op.Database.Database,
		"strategy":     e.strategy.Name(),
	}).Info("operation started")

	defer e.cleanup(op)

	// MaxRetries is the total attempt budget, not retries after the first try.
	attempts := e.config.MaxRetries
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	used := 0
	for i := 1; i <= attempts; i++ {
		used = i
		lastErr = e.strategy.Execute(ctx, op)
		if lastErr == nil {
			break
		}
		if !IsRetryable(lastErr) {
			e.logger.WithField("operation_id", op.ID).Errorf("non-retryable failure: %v", lastErr)
			break
		}
		if i < attempts {
			e.logger.WithField("operation_id", op.ID).Warnf("attempt failed, retrying (%d/%d): %v", i, attempts, lastErr)
			select {
			case <-time.After(e.config.RetryDelay):
			case <-ctx.Done():
				lastErr = NewInfrastructureError("operation cancelled", ctx.Err()).WithOperation(op.ID)
				i = attempts
			}
		}
	}

	if lastErr != nil {
		_ = op.Fail(lastErr.Error())
		e.logger.WithFields(map[string]interface{}{
			"operation_id": op.ID,
			"attempts":     used,
		}).Errorf("operation failed: %v", lastErr)
		e.finish(ctx, op, used, lastErr)
		if opErr, ok := lastErr.(*OperationError); ok {
			return opErr.WithOperation(op.ID)
		}
		return NewToolError(fmt.Sprintf("%s operation failed", op.Kind), lastErr).WithOperation(op.ID)
	}

	if err := op.Complete(); err != nil {
		return NewValidationError("operation cannot be completed", err).WithOperation(op.ID)
	}
	if duration, ok := op.Duration(); ok {
		e.logger.WithFields(map[string]interface{}{
			"operation_id": op.ID,
			"duration":     duration.String(),
			"attempts":     used,
		}).Info("operation completed")
	}
	e.finish(ctx, op, used, nil)
	return nil
}

func (e *OperationExecutor) validate(op *Operation) error {
	if op.Database == nil {
		return NewValidationError("operation is missing database configuration", nil).WithOperation(op.ID)
	}
	if op.Storage == nil {
		return NewValidationError("operation is missing storage configuration", nil).WithOperation(op.ID)
	}
	if op.Policy == nil {
		return NewValidationError("operation is missing backup policy", nil).WithOperation(op.ID)
	}
	return nil
}

// finish records metrics and sends the outcome notification
func (e *OperationExecutor) finish(ctx context.Context, op *Operation, attempts int, opErr error) {
	if e.metrics != nil {
		metric := OperationMetric{
			OperationID: op.ID,
			Kind:        op.Kind,
			Database:    op.Database.Database,
			Success:     opErr == nil,
			Status:      string(op.Status),
			SizeBytes:   op.RawSizeBytes,
			Attempts:    attempts,
		}
		if duration, ok := op.Duration(); ok {
			metric.DurationSeconds = duration.Seconds()
		}
		if opErr != nil {
			metric.Error = opErr.Error()
		}
		e.metrics.Record(metric)
	}
	if e.notifier != nil {
		if err := e.notifier.Notify(ctx, AlertForOperation(op)); err != nil {
			e.logger.WithField("operation_id", op.ID).Warnf("notification delivery failed: %v", err)
		}
	}
}

// cleanup removes the operation's local work directory, including compressed
// siblings. Failure to clean up never affects the operation outcome.
func (e *OperationExecutor) cleanup(op *Operation) {
	if op.Policy == nil || !op.Policy.Cleanup {
		return
	}
	workDir := filepath.Join(op.Policy.WorkDir, op.ID)
	if err := os.RemoveAll(workDir); err != nil {
		e.logger.WithField("operation_id", op.ID).Warnf("failed to clean up work directory %s: %v", workDir, err)
	}
}
