package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/exec"
	"strings"

	_ "github.com/go-sql-driver/mysql"

	"dbguardian/internal/backup"
	"dbguardian/internal/logging"
)

// MySQLAdapter dumps and restores MySQL databases with the native client
// tools and captures grants through a direct driver connection.
type MySQLAdapter struct {
	logger *logging.Logger
}

// NewMySQLAdapter creates a MySQL adapter
func NewMySQLAdapter(logger *logging.Logger) *MySQLAdapter {
	return &MySQLAdapter{logger: logger}
}

// Type identifies the adapter
func (a *MySQLAdapter) Type() string { return "mysql" }

// Extension is the dump file suffix
func (a *MySQLAdapter) Extension() string { return ".sql" }

// Dump writes a full mysqldump of the database to destPath
func (a *MySQLAdapter) Dump(ctx context.Context, db *backup.DatabaseDescriptor, destPath string) error {
	args := []string{
		fmt.Sprintf("--host=%s", db.Host),
		fmt.Sprintf("--port=%d", db.Port),
		fmt.Sprintf("--user=%s", db.Username),
		"--single-transaction",
		"--quick",
		"--lock-tables=false",
		"--routines",
		"--triggers",
		"--events",
		fmt.Sprintf("--result-file=%s", destPath),
		db.Database,
	}

	cmd := exec.CommandContext(ctx, "mysqldump", args...)
	cmd.Env = append(os.Environ(), fmt.Sprintf("MYSQL_PWD=%s", db.Password))
	output, err := cmd.CombinedOutput()
	if err != nil {
		return classifyExecError("mysqldump", err, string(output))
	}
	return nil
}

// Restore feeds the dump at srcPath through the mysql client
func (a *MySQLAdapter) Restore(ctx context.Context, db *backup.DatabaseDescriptor, srcPath string) error {
	file, err := os.Open(srcPath)
	if err != nil {
		return backup.NewInfrastructureError("failed to open dump file", err)
	}
	defer file.Close()

	args := []string{
		fmt.Sprintf("--host=%s", db.Host),
		fmt.Sprintf("--port=%d", db.Port),
		fmt.Sprintf("--user=%s", db.Username),
		db.Database,
	}
	cmd := exec.CommandContext(ctx, "mysql", args...)
	cmd.Env = append(os.Environ(), fmt.Sprintf("MYSQL_PWD=%s", db.Password))
	cmd.Stdin = file
	output, err := cmd.CombinedOutput()
	if err != nil {
		return classifyExecError("mysql", err, string(output))
	}
	return nil
}

// ListDatabases enumerates databases visible to the configured account,
// excluding the MySQL system schemas
func (a *MySQLAdapter) ListDatabases(ctx context.Context, db *backup.DatabaseDescriptor) ([]string, error) {
	conn, err := a.open(db, "")
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	return listMySQLDatabases(ctx, conn)
}

func listMySQLDatabases(ctx context.Context, conn *sql.DB) ([]string, error) {
	rows, err := conn.QueryContext(ctx, "SHOW DATABASES")
	if err != nil {
		return nil, backup.NewInfrastructureError("failed to list databases", err)
	}
	defer rows.Close()

	system := map[string]bool{
		"information_schema": true,
		"performance_schema": true,
		"mysql":              true,
		"sys":                true,
	}
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, backup.NewInfrastructureError("failed to scan database name", err)
		}
		if !system[name] {
			names = append(names, name)
		}
	}
	return names, rows.Err()
}

// CaptureGrants exports the grants of every non-system account as SQL
// statements suitable for prepending to a dump
func (a *MySQLAdapter) CaptureGrants(ctx context.Context, db *backup.DatabaseDescriptor) ([]byte, error) {
	conn, err := a.open(db, "mysql")
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	return captureMySQLGrants(ctx, conn, a.logger)
}

func captureMySQLGrants(ctx context.Context, conn *sql.DB, logger *logging.Logger) ([]byte, error) {
	rows, err := conn.QueryContext(ctx,
		"SELECT user, host FROM mysql.user WHERE user NOT IN ('mysql.infoschema','mysql.session','mysql.sys','root')")
	if err != nil {
		return nil, backup.NewInfrastructureError("failed to list accounts for grant capture", err)
	}
	defer rows.Close()

	type account struct{ user, host string }
	var accounts []account
	for rows.Next() {
		var acc account
		if err := rows.Scan(&acc.user, &acc.host); err != nil {
			return nil, backup.NewInfrastructureError("failed to scan account", err)
		}
		accounts = append(accounts, acc)
	}
	if err := rows.Err(); err != nil {
		return nil, backup.NewInfrastructureError("failed to iterate accounts", err)
	}

	var sb strings.Builder
	sb.WriteString("-- Grants captured at backup time\n")
	for _, acc := range accounts {
		grantRows, err := conn.QueryContext(ctx,
			fmt.Sprintf("SHOW GRANTS FOR '%s'@'%s'", acc.user, acc.host))
		if err != nil {
			logger.Warnf("could not read grants for %s@%s: %v", acc.user, acc.host, err)
			continue
		}
		for grantRows.Next() {
			var grant string
			if err := grantRows.Scan(&grant); err != nil {
				grantRows.Close()
				return nil, backup.NewInfrastructureError("failed to scan grant", err)
			}
			sb.WriteString(grant)
			sb.WriteString(";\n")
		}
		grantRows.Close()
	}
	return []byte(sb.String()), nil
}

func (a *MySQLAdapter) open(db *backup.DatabaseDescriptor, schema string) (*sql.DB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s", db.Username, db.Password, db.Host, db.Port, schema)
	conn, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, backup.NewValidationError("invalid mysql connection settings", err)
	}
	return conn, nil
}
