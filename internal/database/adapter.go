// Package database provides the adapters that dump and restore the systems
// dbguardian protects: MySQL and PostgreSQL over their native tooling, and
// the workflow automation tool over container exec.
package database

import (
	"fmt"
	"os/exec"
	"strings"

	"dbguardian/internal/backup"
	"dbguardian/internal/logging"
)

// NewAdapter builds the adapter for a database descriptor's type
func NewAdapter(dbType string, logger *logging.Logger) (backup.DatabaseAdapter, error) {
	switch dbType {
	case "mysql":
		return NewMySQLAdapter(logger), nil
	case "postgres", "postgresql":
		return NewPostgresAdapter(logger), nil
	case "workflow":
		return NewWorkflowAdapter(logger)
	default:
		return nil, backup.NewValidationError(
			fmt.Sprintf("unsupported database type %q", dbType), nil)
	}
}

// classifyExecError maps a failed tool invocation to the error taxonomy so
// the executor knows what to retry: an unreachable or not-yet-ready target is
// transient, a permission problem is a configuration error, and everything
// else is the tool itself reporting failure.
func classifyExecError(tool string, err error, output string) error {
	if execErr, ok := err.(*exec.Error); ok && execErr.Err == exec.ErrNotFound {
		return backup.NewValidationError(fmt.Sprintf("%s is not installed or not in PATH", tool), err)
	}

	lower := strings.ToLower(output)
	switch {
	case strings.Contains(lower, "access denied"),
		strings.Contains(lower, "permission denied"),
		strings.Contains(lower, "authentication failed"),
		strings.Contains(lower, "password authentication failed"):
		return backup.NewValidationError(
			fmt.Sprintf("%s was denied access: %s", tool, firstLine(output)), err)
	case strings.Contains(lower, "connection refused"),
		strings.Contains(lower, "could not connect"),
		strings.Contains(lower, "can't connect"),
		strings.Contains(lower, "no such host"),
		strings.Contains(lower, "connection timed out"),
		strings.Contains(lower, "server is not yet accepting connections"),
		strings.Contains(lower, "the database system is starting up"):
		return backup.NewInfrastructureError(
			fmt.Sprintf("%s could not reach the target: %s", tool, firstLine(output)), err)
	default:
		return backup.NewToolError(
			fmt.Sprintf("%s failed: %s", tool, firstLine(output)), err)
	}
}

func firstLine(output string) string {
	output = strings.TrimSpace(output)
	if i := strings.IndexByte(output, '\n'); i >= 0 {
		output = output[:i]
	}
	if len(output) > 300 {
		output = output[:300]
	}
	return output
}
