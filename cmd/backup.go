package cmd

import (
	"github.com/spf13/cobra"

	"dbguardian/internal/backup"
	"dbguardian/internal/vault"
)

var backupDatabase string

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Back up a configured database to artifact storage",
	Long: `Backup dumps the named database, optionally captures grants, compresses
the artifact, checksums it, and uploads it together with a metadata sidecar.
Transient failures are retried with a fixed delay up to the configured attempt
budget.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := setup()
		if err != nil {
			return err
		}

		var vlt *vault.Vault
		keyHash := ""
		entry, err := app.cfg.Database(backupDatabase)
		if err != nil {
			return err
		}
		if entry.Credential != "" {
			vlt, err = app.openVault()
			if err != nil {
				return err
			}
			keyHash, err = vlt.KeyHash()
			if err != nil {
				return err
			}
		}

		desc, err := app.resolveDatabase(backupDatabase, vlt)
		if err != nil {
			return err
		}
		deps, err := app.buildDeps(cmd.Context(), desc, keyHash)
		if err != nil {
			return err
		}

		strategy, err := app.registry.Resolve(backup.StrategyNameBackup, deps)
		if err != nil {
			return err
		}

		op := backup.NewOperation(backup.KindBackup, desc, &app.cfg.Storage, &app.cfg.Policy)
		executor := backup.NewOperationExecutor(strategy, &app.cfg.Executor, app.logger).
			WithMetrics(backup.NewMetricsCollector())
		if n := app.notifier(); n != nil {
			executor.WithNotifier(n)
		}

		execErr := executor.Execute(cmd.Context(), op)
		app.printer.Report(op.BuildReport())
		return execErr
	},
}

func init() {
	backupCmd.Flags().StringVarP(&backupDatabase, "database", "d", "", "configured database entry to back up (required)")
	_ = backupCmd.MarkFlagRequired("database")
	rootCmd.AddCommand(backupCmd)
}
