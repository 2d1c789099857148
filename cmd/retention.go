package cmd

import (
	"github.com/spf13/cobra"

	"dbguardian/internal/backup"
)

var (
	retentionDryRun bool
	retentionPrefix string
)

var retentionCmd = &cobra.Command{
	Use:   "retention",
	Short: "Apply the tiered retention policy to stored artifacts",
	Long: `Retention keeps every artifact that falls inside any configured tier window
(hourly, daily, weekly, monthly) and deletes the rest. A backup is kept when
any tier wants it, so overlapping windows never delete more than the most
permissive tier allows.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := setup()
		if err != nil {
			return err
		}

		storage, err := backup.NewStorageProvider(cmd.Context(), &app.cfg.Storage)
		if err != nil {
			return err
		}

		job := backup.NewRetentionJob(storage, app.cfg.Policy.Retention, app.logger)
		decision, err := job.Run(cmd.Context(), retentionPrefix, retentionDryRun)
		if err != nil {
			return err
		}
		app.printer.RetentionDecision(*decision, retentionDryRun)
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored backup artifacts",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := setup()
		if err != nil {
			return err
		}
		storage, err := backup.NewStorageProvider(cmd.Context(), &app.cfg.Storage)
		if err != nil {
			return err
		}
		artifacts, err := storage.List(cmd.Context(), retentionPrefix)
		if err != nil {
			return err
		}
		app.printer.Artifacts(artifacts)
		return nil
	},
}

func init() {
	retentionCmd.Flags().BoolVar(&retentionDryRun, "dry-run", false, "show what would be deleted without deleting")
	retentionCmd.Flags().StringVar(&retentionPrefix, "prefix", "", "only consider artifacts under this key prefix")
	listCmd.Flags().StringVar(&retentionPrefix, "prefix", "", "only list artifacts under this key prefix")
	rootCmd.AddCommand(retentionCmd, listCmd)
}
