package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/exec"

	_ "github.com/lib/pq"

	"dbguardian/internal/backup"
	"dbguardian/internal/logging"
)

// PostgresAdapter dumps and restores PostgreSQL databases with pg_dump and
// psql. Dumps use the plain text format so the stored artifact can have its
// database identifier rewritten on restore.
type PostgresAdapter struct {
	logger *logging.Logger
}

// NewPostgresAdapter creates a PostgreSQL adapter
func NewPostgresAdapter(logger *logging.Logger) *PostgresAdapter {
	return &PostgresAdapter{logger: logger}
}

// Type identifies the adapter
func (a *PostgresAdapter) Type() string { return "postgres" }

// Extension is the dump file suffix
func (a *PostgresAdapter) Extension() string { return ".sql" }

// Dump writes a plain-format pg_dump of the database to destPath
func (a *PostgresAdapter) Dump(ctx context.Context, db *backup.DatabaseDescriptor, destPath string) error {
	cmd := exec.CommandContext(ctx, "pg_dump",
		fmt.Sprintf("--host=%s", db.Host),
		fmt.Sprintf("--port=%d", db.Port),
		fmt.Sprintf("--username=%s", db.Username),
		"--format=plain",
		"--no-password",
		fmt.Sprintf("--file=%s", destPath),
		db.Database,
	)
	cmd.Env = append(os.Environ(), fmt.Sprintf("PGPASSWORD=%s", db.Password))

	output, err := cmd.CombinedOutput()
	if err != nil {
		return classifyExecError("pg_dump", err, string(output))
	}
	return nil
}

// Restore applies the dump at srcPath with psql
func (a *PostgresAdapter) Restore(ctx context.Context, db *backup.DatabaseDescriptor, srcPath string) error {
	cmd := exec.CommandContext(ctx, "psql",
		fmt.Sprintf("--host=%s", db.Host),
		fmt.Sprintf("--port=%d", db.Port),
		fmt.Sprintf("--username=%s", db.Username),
		fmt.Sprintf("--dbname=%s", db.Database),
		"--no-password",
		"--set", "ON_ERROR_STOP=1",
		"--file", srcPath,
	)
	cmd.Env = append(os.Environ(), fmt.Sprintf("PGPASSWORD=%s", db.Password))

	output, err := cmd.CombinedOutput()
	if err != nil {
		return classifyExecError("psql", err, string(output))
	}
	return nil
}

// ListDatabases enumerates non-template databases visible to the account
func (a *PostgresAdapter) ListDatabases(ctx context.Context, db *backup.DatabaseDescriptor) ([]string, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=postgres sslmode=disable",
		db.Host, db.Port, db.Username, db.Password)
	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, backup.NewValidationError("invalid postgres connection settings", err)
	}
	defer conn.Close()
	return listPostgresDatabases(ctx, conn)
}

func listPostgresDatabases(ctx context.Context, conn *sql.DB) ([]string, error) {
	rows, err := conn.QueryContext(ctx,
		"SELECT datname FROM pg_database WHERE datistemplate = false ORDER BY datname")
	if err != nil {
		return nil, backup.NewInfrastructureError("failed to list databases", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, backup.NewInfrastructureError("failed to scan database name", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// CaptureGrants exports roles and their memberships with pg_dumpall so a
// restore into a fresh cluster recreates access control
func (a *PostgresAdapter) CaptureGrants(ctx context.Context, db *backup.DatabaseDescriptor) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "pg_dumpall",
		fmt.Sprintf("--host=%s", db.Host),
		fmt.Sprintf("--port=%d", db.Port),
		fmt.Sprintf("--username=%s", db.Username),
		"--roles-only",
		"--no-password",
	)
	cmd.Env = append(os.Environ(), fmt.Sprintf("PGPASSWORD=%s", db.Password))

	output, err := cmd.Output()
	if err != nil {
		stderr := ""
		if exitErr, ok := err.(*exec.ExitError); ok {
			stderr = string(exitErr.Stderr)
		}
		return nil, classifyExecError("pg_dumpall", err, stderr)
	}
	return output, nil
}
