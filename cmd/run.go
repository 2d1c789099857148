package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"dbguardian/internal/backup"
	"dbguardian/internal/scheduler"
	"dbguardian/internal/vault"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the scheduler daemon",
	Long: `Run starts the cron scheduler and backs up the configured databases on the
configured schedule, applying retention sweeps if enabled. The daemon exits
cleanly on SIGINT or SIGTERM, letting in-flight jobs finish.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := setup()
		if err != nil {
			return err
		}
		if !app.cfg.Schedule.Enabled {
			return backup.NewValidationError("scheduling is not enabled in the configuration", nil)
		}

		var vlt *vault.Vault
		keyHash := ""
		if len(app.cfg.CredentialNames()) > 0 {
			vlt, err = app.openVault()
			if err != nil {
				return err
			}
			if !vlt.Validate(app.cfg.CredentialNames()) {
				return backup.NewValidationError("vault is missing required credentials, run 'dbguardian vault validate'", nil)
			}
			keyHash, err = vlt.KeyHash()
			if err != nil {
				return err
			}
		}

		targets := app.cfg.Schedule.Databases
		if len(targets) == 0 {
			for _, db := range app.cfg.Databases {
				targets = append(targets, db.Name)
			}
		}
		if len(targets) == 0 {
			return backup.NewValidationError("no databases configured to back up", nil)
		}

		metrics := backup.NewMetricsCollector()
		notifier := app.notifier()
		sched := scheduler.New(app.logger)

		for _, name := range targets {
			name := name
			job := func(ctx context.Context) error {
				desc, err := app.resolveDatabase(name, vlt)
				if err != nil {
					return err
				}
				deps, err := app.buildDeps(ctx, desc, keyHash)
				if err != nil {
					return err
				}
				strategy, err := app.registry.Resolve(backup.StrategyNameBackup, deps)
				if err != nil {
					return err
				}
				op := backup.NewOperation(backup.KindBackup, desc, &app.cfg.Storage, &app.cfg.Policy)
				executor := backup.NewOperationExecutor(strategy, &app.cfg.Executor, app.logger).
					WithMetrics(metrics)
				if notifier != nil {
					executor.WithNotifier(notifier)
				}
				return executor.Execute(ctx, op)
			}
			if err := sched.AddJob("backup:"+name, app.cfg.Schedule.Cron, job); err != nil {
				return backup.NewValidationError("invalid cron expression", err)
			}
		}

		if app.cfg.Schedule.RetentionCron != "" {
			job := func(ctx context.Context) error {
				storage, err := backup.NewStorageProvider(ctx, &app.cfg.Storage)
				if err != nil {
					return err
				}
				_, err = backup.NewRetentionJob(storage, app.cfg.Policy.Retention, app.logger).Run(ctx, "", false)
				return err
			}
			if err := sched.AddJob("retention", app.cfg.Schedule.RetentionCron, job); err != nil {
				return backup.NewValidationError("invalid retention cron expression", err)
			}
		}

		sched.Start()
		app.logger.Infof("scheduler running, %d database(s) on %q", len(targets), app.cfg.Schedule.Cron)

		stop := make(chan os.Signal, 1)
		signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
		<-stop

		app.logger.Info("shutting down, waiting for running jobs")
		sched.Stop()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
