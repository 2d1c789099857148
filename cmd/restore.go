package cmd

import (
	"github.com/spf13/cobra"

	"dbguardian/internal/backup"
	"dbguardian/internal/vault"
)

var (
	restoreDatabase string
	restoreFrom     string
	noSafety        bool
)

var restoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Restore a database from a stored backup artifact",
	Long: `Restore first takes a verified safety snapshot of the current state, then
applies the chosen artifact. If the restore fails, the safety snapshot is
automatically reinstated and the operation ends rolled-back rather than
leaving the target in an unknown state.

--no-safety skips the snapshot. A failed restore then cannot be rolled back.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := setup()
		if err != nil {
			return err
		}

		var vlt *vault.Vault
		keyHash := ""
		entry, err := app.cfg.Database(restoreDatabase)
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

		desc, err := app.resolveDatabase(restoreDatabase, vlt)
		if err != nil {
			return err
		}
		deps, err := app.buildDeps(cmd.Context(), desc, keyHash)
		if err != nil {
			return err
		}

		coordinator, err := backup.NewSafetyRollbackCoordinator(app.registry, deps, &app.cfg.Executor, app.logger)
		if err != nil {
			return err
		}
		coordinator.WithMetrics(backup.NewMetricsCollector())
		if n := app.notifier(); n != nil {
			coordinator.WithNotifier(n)
		}
		if noSafety {
			app.printer.Warning("safety snapshot disabled; a failed restore cannot be rolled back")
			coordinator.WithoutSafety()
		}

		op := backup.NewOperation(backup.KindRestore, desc, &app.cfg.Storage, &app.cfg.Policy)
		op.SourceBackupID = restoreFrom

		restoreErr := coordinator.Restore(cmd.Context(), op)
		app.printer.Report(op.BuildReport())
		return restoreErr
	},
}

func init() {
	restoreCmd.Flags().StringVarP(&restoreDatabase, "database", "d", "", "configured database entry to restore into (required)")
	restoreCmd.Flags().StringVar(&restoreFrom, "from", "", "artifact key or local path to restore from (required)")
	restoreCmd.Flags().BoolVar(&noSafety, "no-safety", false, "skip the pre-restore safety snapshot")
	_ = restoreCmd.MarkFlagRequired("database")
	_ = restoreCmd.MarkFlagRequired("from")
	rootCmd.AddCommand(restoreCmd)
}
