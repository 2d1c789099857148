// Package cmd implements the dbguardian command line interface.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"dbguardian/internal/backup"
	"dbguardian/internal/display"
)

var (
	cfgFile string
	verbose bool
	quiet   bool
	logFile string
)

// Version information (set by build flags)
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "dbguardian",
	Short: "Safe, auditable backup and restore for databases and workflow stores",
	Long: `dbguardian performs scheduled, auditable backup and restore of MySQL,
PostgreSQL, and workflow-automation stores. Every backup is checksummed before
it is trusted, every destructive restore is preceded by a verified safety
snapshot that is automatically reinstated on failure, and credentials are kept
in an encrypted vault, never in plaintext.

Examples:
  # Back up one configured database
  dbguardian backup --database orders

  # Restore from a specific artifact, with automatic rollback on failure
  dbguardian restore --database orders --from 20260830T020000_mysql_orders.sql.zst

  # Store a credential in the vault
  dbguardian vault set orders

  # Apply the retention policy, showing what would be deleted
  dbguardian retention --dry-run

  # Run the scheduler daemon
  dbguardian run`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// SetVersionInfo wires build-time version metadata into the CLI
func SetVersionInfo(v, bt, gc string) {
	version, buildTime, gitCommit = v, bt, gc
	rootCmd.Version = fmt.Sprintf("%s (built %s, commit %s)", version, buildTime, gitCommit)
}

// Execute runs the CLI and returns the process exit code, mapped
// deterministically from the error kind so automation can branch on it
// without parsing text.
func Execute() int {
	err := rootCmd.Execute()
	if err == nil {
		return backup.ExitOK
	}
	printer := display.NewPrinter(os.Stderr)
	printer.Failure("%v", err)
	return backup.ExitCode(err)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default searches ., ~/.config/dbguardian, /etc/dbguardian)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress all output except errors")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "also write logs to this file")
}
